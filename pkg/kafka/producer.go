// Package kafka wraps segmentio/kafka-go with the publishing and consuming
// conventions used across StudyFlow services.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON messages to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer: writer,
		logger: logger.With(slog.String("component", "kafka_producer"), slog.String("topic", topic)),
	}
}

// Publish marshals value to JSON and writes it keyed by key. Messages with
// the same key land on the same partition, preserving per-key ordering.
func (p *Producer) Publish(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", slog.String("key", key), slog.String("error", err.Error()))
		return fmt.Errorf("write message: %w", err)
	}

	p.logger.Debug("message published", slog.String("key", key), slog.Int("bytes", len(payload)))
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
