// Package ingest feeds study material into the index, either directly over
// HTTP or asynchronously through Kafka.
package ingest

import "time"

// DocumentMessage is the wire format for documents flowing through the
// ingestion topic.
type DocumentMessage struct {
	Text        string    `json:"text"`
	Subject     string    `json:"subject"`
	SourceType  string    `json:"source_type"`
	Title       string    `json:"title"`
	SubmittedAt time.Time `json:"submitted_at"`
}
