package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/config"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventType is the event_type header of every notification.
const EventType = "ExportCompleted"

// ExportCompleted is the message body published for a finished export.
type ExportCompleted struct {
	Type string `json:"type"`
	domain.ExportResult
}

// Notifier publishes export completions to a Kafka topic.
// It implements domain.ExportNotifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one ExportCompleted message keyed by export name.
func (n *Notifier) Notify(ctx context.Context, res domain.ExportResult) error {
	msg, err := serializeToMessage(res)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish export %s: %w", res.Name, err)
	}
	n.logger.Debug("export notification published", "export", res.Name, "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals an ExportResult into a Kafka message.
func serializeToMessage(res domain.ExportResult) (kafkago.Message, error) {
	data, err := json.Marshal(ExportCompleted{Type: EventType, ExportResult: res})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize export result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(res.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "exported_at", Value: []byte(res.ExportedAt.Format(time.RFC3339))},
		},
	}, nil
}
