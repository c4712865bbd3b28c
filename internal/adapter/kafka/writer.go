package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/retry"
)

// publishPolicy bounds how long a run waits on an unavailable broker.
var publishPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

// Writer produces alert events to a Kafka topic.
// It implements alert.EventSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the alert topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		MaxAttempts:            1,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes e and writes it, retrying transient broker errors.
func (w *Writer) Publish(ctx context.Context, e domain.AlertEvent) error {
	msg, err := serializeToMessage(e)
	if err != nil {
		return err
	}

	attempt := 0
	return retry.Do(ctx, publishPolicy, func(ctx context.Context) error {
		attempt++
		if err := w.writer.WriteMessages(ctx, msg); err != nil {
			w.logger.Debug("write alert event failed", "event_id", e.ID, "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AlertEvent into a Kafka message keyed by
// station so events of one station stay ordered.
func serializeToMessage(e domain.AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}

	key := e.StationID
	if key == "" {
		key = e.Station
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "outcome", Value: []byte(e.Outcome)},
			{Key: "evaluated_at", Value: []byte(e.EvaluatedAt.Format(time.RFC3339))},
		},
	}, nil
}
