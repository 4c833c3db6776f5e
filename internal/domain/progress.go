package domain

// Phase is a coarse stage of an analysis run.
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseFiltering   Phase = "filtering"
	PhaseResolving   Phase = "resolving"
	PhaseAggregating Phase = "aggregating"
	PhaseExporting   Phase = "exporting"
	PhaseComplete    Phase = "complete"
)

// ProgressEvent is emitted by the engine at each decision point.
// Fraction is the overall completion in [0, 1].
type ProgressEvent struct {
	Phase    Phase
	Fraction float64
	Message  string
}

// Percent returns Fraction as a whole percentage.
func (e ProgressEvent) Percent() int {
	return int(e.Fraction*100 + 0.5)
}

// ProgressFunc receives progress events on the engine's goroutine.
type ProgressFunc func(ProgressEvent)

// CancelFunc is polled between points; true means stop and return partial results.
type CancelFunc func() bool

// NeverCancel is the predicate for callers without cancellation support.
func NeverCancel() bool { return false }

// ReportFunc receives the resolver's descriptive messages (cache hits,
// provider calls, provider errors, retry waits).
type ReportFunc func(msg string)
