package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/painelvendas/ingest-service/internal/models"
	"github.com/segmentio/kafka-go"
)

type EventProducer interface {
	Publish(ctx context.Context, event models.TransactionEvent) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, event models.TransactionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal transaction event", "transaction_id", event.TransactionID, "error", err)
		return err
	}

	// Keyed by transaction id so updates for one transaction stay ordered
	// within a partition.
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.TransactionID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send Kafka message", "topic", p.topic, "transaction_id", event.TransactionID, "error", err)
		return err
	}
	slog.Info("Kafka message sent", "topic", p.topic, "transaction_id", event.TransactionID, "event_type", event.EventType)
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}
