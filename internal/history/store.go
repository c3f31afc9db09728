// Package history persists answered questions to Postgres for later review.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/studyflow-ai/studyflow/pkg/postgres"
)

// Entry is one answered question.
type Entry struct {
	ID           int64     `json:"id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Subject      string    `json:"subject"`
	ProviderUsed string    `json:"provider_used"`
	Sources      []string  `json:"sources"`
	Cached       bool      `json:"cached"`
	AskedAt      time.Time `json:"asked_at"`
}

// Store reads and writes ask history.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store and ensures its schema exists.
func NewStore(ctx context.Context, db *postgres.Client, logger *slog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logger.With(slog.String("component", "history")),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS ask_history (
			id            BIGSERIAL PRIMARY KEY,
			question      TEXT NOT NULL,
			answer        TEXT NOT NULL,
			subject       TEXT NOT NULL DEFAULT '',
			provider_used TEXT NOT NULL DEFAULT '',
			sources       TEXT[] NOT NULL DEFAULT '{}',
			cached        BOOLEAN NOT NULL DEFAULT FALSE,
			asked_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ask_history_subject ON ask_history (subject, asked_at DESC);
	`
	_, err := s.db.DB.ExecContext(ctx, schema)
	return err
}

// Record inserts one history entry. Failures are reported but callers are
// expected to log-and-continue: history is best effort, never on the
// answer path's critical section.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	const query = `
		INSERT INTO ask_history (question, answer, subject, provider_used, sources, cached, asked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	askedAt := e.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now().UTC()
	}

	err := s.db.DB.QueryRowContext(ctx, query,
		e.Question, e.Answer, e.Subject, e.ProviderUsed,
		pq.Array(e.Sources), e.Cached, askedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, optionally filtered by subject.
func (s *Store) Recent(ctx context.Context, subject string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if subject != "" {
		const query = `
			SELECT id, question, answer, subject, provider_used, sources, cached, asked_at
			FROM ask_history WHERE subject = $1
			ORDER BY asked_at DESC LIMIT $2
		`
		rows, err = s.db.DB.QueryContext(ctx, query, subject, limit)
	} else {
		const query = `
			SELECT id, question, answer, subject, provider_used, sources, cached, asked_at
			FROM ask_history
			ORDER BY asked_at DESC LIMIT $1
		`
		rows, err = s.db.DB.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Subject,
			&e.ProviderUsed, pq.Array(&e.Sources), &e.Cached, &e.AskedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
