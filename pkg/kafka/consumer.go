package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes a single consumed message. Returning an error leaves the
// offset uncommitted so the message is redelivered.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer reads messages from a topic as part of a consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a group consumer for the given brokers and topic.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // explicit commits
		StartOffset:    kafka.FirstOffset,
		MaxWait:        500 * time.Millisecond,
	})

	return &Consumer{
		reader: reader,
		logger: logger.With(
			slog.String("component", "kafka_consumer"),
			slog.String("topic", topic),
			slog.String("group", groupID),
		),
	}
}

// Run consumes messages until ctx is cancelled, invoking handler for each.
// Offsets are committed only after the handler succeeds.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("fetch failed", slog.String("error", err.Error()))
			return err
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("handler failed",
				slog.String("key", string(msg.Key)),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed", slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
		}
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
