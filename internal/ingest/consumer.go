package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/pkg/kafka"
)

// Indexer receives validated documents from the ingestion topic. The
// orchestrator satisfies this.
type Indexer interface {
	AddDocument(text string, meta index.Metadata) (int, bool)
}

// Consumer drains the documents topic into the index.
type Consumer struct {
	consumer *kafka.Consumer
	indexer  Indexer
	logger   *slog.Logger
}

// NewConsumer creates a consumer feeding idx.
func NewConsumer(c *kafka.Consumer, indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		consumer: c,
		indexer:  indexer,
		logger:   logger.With(slog.String("component", "ingest_consumer")),
	}
}

// Run consumes until ctx is cancelled. Malformed or invalid messages are
// logged and dropped; they would fail identically on redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	return c.consumer.Run(ctx, func(ctx context.Context, key, value []byte) error {
		var msg DocumentMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			c.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
			return nil
		}
		if err := Validate(&msg); err != nil {
			c.logger.Warn("dropping invalid document", slog.String("error", err.Error()))
			return nil
		}

		id, ok := c.indexer.AddDocument(msg.Text, index.Metadata{
			Subject:    msg.Subject,
			SourceType: msg.SourceType,
			Title:      msg.Title,
		})
		if !ok {
			c.logger.Warn("document produced no index terms", slog.String("title", msg.Title))
			return nil
		}

		c.logger.Info("document consumed",
			slog.Int("doc_id", id),
			slog.String("subject", msg.Subject),
		)
		return nil
	})
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close consumer: %w", err)
	}
	return nil
}
