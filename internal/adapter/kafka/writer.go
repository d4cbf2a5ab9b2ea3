package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/garbagecal/internal/config"
	"github.com/couchcryptid/garbagecal/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces calendar change events to a Kafka topic.
// It implements pipeline.UpdatePublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured update topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one update. Updates are keyed by sector so the changes of a
// sector stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, update domain.CalendarUpdate) error {
	msg, err := serializeToMessage(update)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write calendar update: %w", err)
	}
	p.logger.Debug("calendar update published", "id", update.ID, "sector", update.Sector, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a CalendarUpdate into a Kafka message.
func serializeToMessage(update domain.CalendarUpdate) (kafkago.Message, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize calendar update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(update.Sector),
		Value: data,
		Time:  update.GeneratedAt,
		Headers: []kafkago.Header{
			{Key: "update_id", Value: []byte(update.ID)},
			{Key: "area", Value: []byte(update.Area)},
			{Key: "generated_at", Value: []byte(update.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
