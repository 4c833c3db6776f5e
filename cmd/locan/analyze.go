package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/location-enrichment/internal/adapter/takeout"
	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/pipeline"
)

type analyzeOptions struct {
	file       string
	start      string
	end        string
	output     string
	groupBy    string
	delay      time.Duration
	batchSize  int
	noDistance bool
	water      bool
	geoapify   string
	google     string
	onwater    string
	topGroups  int
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Resolve and summarize one location-history export",
	Long: `
Resolves every point of a location-history export in the date range and
writes points.csv, summary.json, and groups_<mode>.csv into the output
directory.

The first interrupt stops after the current point and still writes the
partial results; a second interrupt aborts.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAnalyze(cmd.Context(), analyzeOpts)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeOpts.file, "file", "f", "", "location-history export (Records.json, Timeline.json, ...)")
	f.StringVar(&analyzeOpts.start, "start", "", "first day to include, YYYY-MM-DD")
	f.StringVar(&analyzeOpts.end, "end", "", "last day to include, YYYY-MM-DD")
	f.StringVarP(&analyzeOpts.output, "output", "o", "", "report directory (default $OUTPUT_DIR)")
	f.StringVarP(&analyzeOpts.groupBy, "group-by", "g", string(domain.GroupByCity), "by_city, by_state, by_country, or by_cell")
	f.DurationVar(&analyzeOpts.delay, "delay", -1, "pause after each provider call (default $PROVIDER_DELAY)")
	f.IntVar(&analyzeOpts.batchSize, "batch-size", 0, "points per progress update (default $BATCH_SIZE)")
	f.BoolVar(&analyzeOpts.noDistance, "no-distance", false, "skip distance accumulation")
	f.BoolVar(&analyzeOpts.water, "water", false, "classify water with a separate lookup per point")
	f.StringVar(&analyzeOpts.geoapify, "geoapify-key", "", "Geoapify API key (default $GEOAPIFY_API_KEY)")
	f.StringVar(&analyzeOpts.google, "google-key", "", "Google Geocoding API key (default $GOOGLE_API_KEY)")
	f.StringVar(&analyzeOpts.onwater, "onwater-key", "", "OnWater API key (default $ONWATER_API_KEY)")
	f.IntVar(&analyzeOpts.topGroups, "top", 10, "groups to print")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func runAnalyze(ctx context.Context, opts analyzeOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}()
	logger := a.logger

	req, err := buildRequest(opts, a.cfg.Credentials)
	if err != nil {
		return err
	}
	if req.Delay < 0 {
		req.Delay = a.cfg.ProviderDelay
	}
	if req.BatchSize == 0 {
		req.BatchSize = a.cfg.BatchSize
	}
	if req.OutputDir == "" {
		req.OutputDir = a.cfg.OutputDir
	}

	points, err := takeout.ReadFile(opts.file)
	if err != nil {
		return err
	}
	if points == nil {
		points = []domain.LocationPoint{}
	}
	req.Points = points
	warnOutsideRange(logger, points, req.Start, req.End)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stopRequested atomic.Bool
	req.Cancelled = stopRequested.Load
	watchInterrupts(ctx, logger, &stopRequested, cancel)

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("Analyzing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
		)
	}
	req.Progress = func(ev domain.ProgressEvent) {
		if bar == nil {
			logger.Info(ev.Message, "phase", ev.Phase, "progress", ev.Percent())
			return
		}
		bar.Describe(ev.Message)
		_ = bar.Set(ev.Percent())
	}

	res, err := a.engine.Run(ctx, req)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	printSummary(os.Stdout, res, req.OutputDir, opts.topGroups)
	return nil
}

func buildRequest(opts analyzeOptions, creds domain.Credentials) (pipeline.Request, error) {
	start, err := parseDay(opts.start)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("--start: %w", err)
	}
	end, err := parseDay(opts.end)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("--end: %w", err)
	}
	mode, err := domain.ParseGroupMode(opts.groupBy)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("--group-by: %w", err)
	}
	if opts.geoapify != "" {
		creds.Geoapify = opts.geoapify
	}
	if opts.google != "" {
		creds.Google = opts.google
	}
	if opts.onwater != "" {
		creds.OnWater = opts.onwater
	}
	if err := creds.Validate(); err != nil {
		return pipeline.Request{}, err
	}

	return pipeline.Request{
		FilePath:        opts.file,
		Start:           start,
		End:             end,
		OutputDir:       opts.output,
		GroupBy:         mode,
		Credentials:     creds,
		Delay:           opts.delay,
		BatchSize:       opts.batchSize,
		IncludeDistance: !opts.noDistance,
		ClassifyWater:   opts.water,
	}, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// warnOutsideRange logs when the requested dates miss the file's data.
func warnOutsideRange(logger *slog.Logger, points []domain.LocationPoint, start, end time.Time) {
	first, last, ok := takeout.DateRange(points)
	if !ok {
		logger.Warn("location file contains no points")
		return
	}
	logger.Info("location data range", "first", first.Format(time.DateOnly), "last", last.Format(time.DateOnly), "points", len(points))
	if (!start.IsZero() && start.After(last)) || (!end.IsZero() && end.Before(first)) {
		logger.Warn("requested dates are outside the data range; no points will be analyzed",
			"first", first.Format(time.DateOnly), "last", last.Format(time.DateOnly))
	}
}

// watchInterrupts requests a cooperative stop on the first signal and
// cancels ctx on the second.
func watchInterrupts(ctx context.Context, logger *slog.Logger, stop *atomic.Bool, abort context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		stop.Store(true)
		logger.Warn("interrupt received: finishing the current point and writing partial results (interrupt again to abort)")
		select {
		case <-sigs:
			logger.Warn("aborting")
			abort()
		case <-ctx.Done():
		}
	}()
}

func printSummary(w io.Writer, res pipeline.Result, outputDir string, top int) {
	s := res.Summary
	fmt.Fprintf(w, "\nAnalysis %s\n", s.ID)
	if s.Cancelled {
		fmt.Fprintln(w, "Cancelled: partial results")
	}
	fmt.Fprintf(w, "Points:     %d analyzed of %d in file\n", s.TotalPoints, s.InputPoints)
	fmt.Fprintf(w, "Resolved:   %d (%d unresolved, %d on water)\n", s.ResolvedPoints, s.UnresolvedPoints, s.WaterPoints)
	if s.DistanceIncluded {
		fmt.Fprintf(w, "Distance:   %.2f miles\n", s.TotalDistanceMiles)
	}
	if !s.Start.IsZero() {
		fmt.Fprintf(w, "Period:     %s to %s\n", s.Start.Format(time.DateOnly), s.End.Format(time.DateOnly))
	}

	if len(s.Groups) > 0 {
		fmt.Fprintf(w, "\nTop groups (%s):\n", s.GroupBy)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "GROUP\tPOINTS\tMILES\tFIRST\tLAST")
		for i, g := range s.Groups {
			if top > 0 && i >= top {
				break
			}
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\n", g.Key, g.Points, g.DistanceMiles,
				g.FirstSeen.Format(time.DateOnly), g.LastSeen.Format(time.DateOnly))
		}
		_ = tw.Flush()
	}

	if len(res.Files) > 0 {
		fmt.Fprintf(w, "\nWrote to %s:\n", outputDir)
		for _, f := range res.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}
