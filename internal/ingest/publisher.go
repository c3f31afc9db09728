package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/studyflow-ai/studyflow/pkg/kafka"
)

// Publisher validates and publishes documents to the ingestion topic.
type Publisher struct {
	producer *kafka.Producer
}

// NewPublisher wraps a Kafka producer bound to the documents topic.
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish validates msg, stamps it, and writes it keyed by subject so all
// documents of one subject stay ordered.
func (p *Publisher) Publish(ctx context.Context, msg *DocumentMessage) error {
	if err := Validate(msg); err != nil {
		return err
	}
	msg.SubmittedAt = time.Now().UTC()

	key := msg.Subject
	if key == "" {
		key = "general"
	}
	if err := p.producer.Publish(ctx, key, msg); err != nil {
		return fmt.Errorf("publish document: %w", err)
	}
	return nil
}
