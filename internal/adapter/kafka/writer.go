package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/location-enrichment/internal/config"
	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// Writer publishes analysis summaries to a Kafka topic.
// It implements pipeline.SummaryPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured summary topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSummaryTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the summary and writes it keyed by analysis ID.
func (w *Writer) Publish(ctx context.Context, summary domain.AnalysisSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish summary %s: %w", summary.ID, err)
	}
	w.logger.Debug("summary published", "id", summary.ID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AnalysisSummary into a Kafka message.
func serializeToMessage(summary domain.AnalysisSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize analysis summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "group_by", Value: []byte(summary.GroupBy)},
			{Key: "cancelled", Value: []byte(strconv.FormatBool(summary.Cancelled))},
			{Key: "generated_at", Value: []byte(summary.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
