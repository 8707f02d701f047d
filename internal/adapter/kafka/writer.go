// Package kafka publishes conversion progress to a Kafka topic so downstream
// consumers can react to freshly converted timesteps.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/icon-grid-etl/internal/convert"
)

// Writer produces timestep summaries to a Kafka topic.
// It implements convert.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the summary topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTimestep serializes one timestep summary and publishes it. Messages
// are keyed by model run so a partition holds a run's timesteps in order.
func (w *Writer) PublishTimestep(ctx context.Context, s convert.TimestepSummary) error {
	msg, err := serializeToMessage(s)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a summary into a Kafka message.
func serializeToMessage(s convert.TimestepSummary) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize timestep summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.ModelRun.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "timestep", Value: []byte(strconv.Itoa(s.Timestep))},
		},
	}, nil
}
