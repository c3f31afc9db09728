// seed loads study material into StudyFlow, either by publishing to the
// Kafka ingest topic or by POSTing directly to a running askd instance.
//
// The input file is a JSON array of documents:
//
//	[{"text": "...", "subject": "math", "source_type": "textbook", "title": "..."}]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/studyflow-ai/studyflow/internal/ingest"
	"github.com/studyflow-ai/studyflow/pkg/config"
	"github.com/studyflow-ai/studyflow/pkg/kafka"
	"github.com/studyflow-ai/studyflow/pkg/logger"
)

func main() {
	file := flag.String("file", "", "path to a JSON array of documents (required)")
	configPath := flag.String("config", "", "path to config file")
	target := flag.String("target", "http", "delivery mode: http or kafka")
	apiURL := flag.String("url", "http://localhost:8080", "askd base URL for http mode")
	flag.Parse()

	logger.Setup("info", "text")
	log := slog.Default()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: seed -file documents.json [-target http|kafka]")
		os.Exit(2)
	}

	docs, err := loadDocuments(*file)
	if err != nil {
		log.Error("failed to load documents", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("loaded documents", slog.Int("count", len(docs)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var failed int
	switch *target {
	case "kafka":
		failed = seedKafka(ctx, *configPath, docs, log)
	case "http":
		failed = seedHTTP(ctx, *apiURL, docs, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *target)
		os.Exit(2)
	}

	log.Info("seeding done", slog.Int("sent", len(docs)-failed), slog.Int("failed", failed))
	if failed > 0 {
		os.Exit(1)
	}
}

func loadDocuments(path string) ([]ingest.DocumentMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var docs []ingest.DocumentMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return docs, nil
}

func seedKafka(ctx context.Context, configPath string, docs []ingest.DocumentMessage, log *slog.Logger) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load config", slog.String("error", err.Error()))
		return len(docs)
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DocumentTopic, log)
	defer producer.Close()
	publisher := ingest.NewPublisher(producer)

	var failed int
	for i := range docs {
		if err := publisher.Publish(ctx, &docs[i]); err != nil {
			log.Warn("publish failed", slog.String("title", docs[i].Title), slog.String("error", err.Error()))
			failed++
		}
	}
	return failed
}

func seedHTTP(ctx context.Context, baseURL string, docs []ingest.DocumentMessage, log *slog.Logger) int {
	client := &http.Client{Timeout: 10 * time.Second}

	var failed int
	for i := range docs {
		if err := postDocument(ctx, client, baseURL, &docs[i]); err != nil {
			log.Warn("post failed", slog.String("title", docs[i].Title), slog.String("error", err.Error()))
			failed++
		}
	}
	return failed
}

func postDocument(ctx context.Context, client *http.Client, baseURL string, doc *ingest.DocumentMessage) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/documents", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
