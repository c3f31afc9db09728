// Package assembler converts retrieval hits into prompt-ready context and
// manages the two-tier response/search cache in front of generation.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/studyflow-ai/studyflow/internal/retrieval"
	"github.com/studyflow-ai/studyflow/internal/router"
	"github.com/studyflow-ai/studyflow/pkg/cache"
	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
	"github.com/studyflow-ai/studyflow/pkg/metrics"
)

const (
	answerNamespace = "ai_response"
	searchNamespace = "search"
)

// Source identifies one document that contributed context.
type Source struct {
	DocumentID int     `json:"document_id"`
	Title      string  `json:"title"`
	Subject    string  `json:"subject"`
	Score      float64 `json:"score"`
}

// Result is the assembled output of ProcessQuery. The zero Sources slice is
// always non-nil so callers can render it directly.
type Result struct {
	Context       string   `json:"context"`
	Sources       []Source `json:"sources"`
	ContextChunks int      `json:"context_chunks"`
	Subject       string   `json:"subject"`
	Answer        string   `json:"answer,omitempty"`
	ProviderUsed  string   `json:"provider_used,omitempty"`
	Cached        bool     `json:"cached"`
}

// Generator produces an answer for an assembled prompt. The router's Ask
// satisfies this; a nil generator skips the generation stage.
type Generator func(ctx context.Context, prompt string) *router.Payload

// Assembler wires retrieval, caching, and generation. Failures inside
// ProcessQuery degrade to an empty-context result rather than surfacing.
type Assembler struct {
	engine    *retrieval.Engine
	cache     *cache.Cache
	generate  Generator
	baseTTL   time.Duration
	limit     int
	excerptAt int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Config bounds retrieval depth and excerpt length.
type Config struct {
	BaseTTL       time.Duration
	ResultLimit   int
	ExcerptBudget int
}

// New creates an assembler. generate may be nil; metrics may be nil.
func New(engine *retrieval.Engine, c *cache.Cache, generate Generator, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Assembler {
	if cfg.BaseTTL <= 0 {
		cfg.BaseTTL = time.Hour
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 5
	}
	if cfg.ExcerptBudget <= 0 {
		cfg.ExcerptBudget = 200
	}
	return &Assembler{
		engine:    engine,
		cache:     c,
		generate:  generate,
		baseTTL:   cfg.BaseTTL,
		limit:     cfg.ResultLimit,
		excerptAt: cfg.ExcerptBudget,
		logger:    logger.With(slog.String("component", "assembler")),
		metrics:   m,
	}
}

// ProcessQuery assembles context for query and, when a generator is wired,
// obtains and caches an answer. Search results are cached at twice the base
// TTL since the corpus changes less often than generated answers.
func (a *Assembler) ProcessQuery(ctx context.Context, query, subject, documentType string) *Result {
	answerKey := cache.Key(answerNamespace, query, subject, documentType)

	if raw, ok := a.cache.Get(ctx, answerKey); ok {
		var cached Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			a.observeCache(answerNamespace, true)
			return &cached
		}
		a.logger.Warn("discarding undecodable answer cache entry", slog.String("key", answerKey))
	}
	a.observeCache(answerNamespace, false)

	results, err := a.searchCached(ctx, query, subject)
	if err != nil {
		a.logger.Error("retrieval degraded, continuing with empty context",
			slog.String("query", excerptString(query, 80)),
			slog.String("error", err.Error()),
		)
		return a.degraded(subject)
	}

	result := &Result{
		Context:       a.buildContext(results),
		Sources:       make([]Source, 0, len(results)),
		ContextChunks: len(results),
		Subject:       subject,
	}
	for _, r := range results {
		result.Sources = append(result.Sources, Source{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Subject:    r.Subject,
			Score:      r.Score,
		})
	}

	if a.generate != nil {
		prompt := a.buildPrompt(result.Context, query)
		payload := a.generate(ctx, prompt)
		result.Answer = payload.Answer
		result.ProviderUsed = payload.ProviderUsed

		// only successful generations are worth keeping
		if payload.Error == "" {
			if raw, err := json.Marshal(result); err == nil {
				a.cache.Set(ctx, answerKey, raw, a.baseTTL)
			}
		}
	}

	return result
}

// searchCached reuses cached search results when present, otherwise runs
// retrieval and caches the hits under the search-tier key.
func (a *Assembler) searchCached(ctx context.Context, query, subject string) ([]retrieval.Result, error) {
	searchKey := cache.Key(searchNamespace, query, subject)

	if raw, ok := a.cache.Get(ctx, searchKey); ok {
		var cached []retrieval.Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			a.observeCache(searchNamespace, true)
			return cached, nil
		}
	}
	a.observeCache(searchNamespace, false)

	var results []retrieval.Result
	if subject != "" {
		results = a.engine.SearchBySubject(query, subject, a.limit)
	} else {
		results = a.engine.Search(query, a.limit)
	}

	if raw, err := json.Marshal(results); err == nil {
		a.cache.Set(ctx, searchKey, raw, 2*a.baseTTL)
	} else {
		return nil, fmt.Errorf("%w: encode search results: %v", apperrors.ErrRetrievalDegraded, err)
	}
	return results, nil
}

// buildContext renders hits as "[subject] title: excerpt" blocks.
func (a *Assembler) buildContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return ""
	}

	chunks := make([]string, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, fmt.Sprintf("[%s] %s: %s", r.Subject, r.Title, excerptString(r.Excerpt, a.excerptAt)))
	}
	return strings.Join(chunks, "\n\n")
}

func (a *Assembler) buildPrompt(contextStr, query string) string {
	if contextStr == "" {
		return "Question: " + query
	}
	return contextStr + "\n\nQuestion: " + query
}

func (a *Assembler) degraded(subject string) *Result {
	return &Result{
		Context:       "",
		Sources:       []Source{},
		ContextChunks: 0,
		Subject:       subject,
	}
}

func (a *Assembler) observeCache(tier string, hit bool) {
	if a.metrics == nil {
		return
	}
	if hit {
		a.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		a.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

// excerptString truncates s to budget characters, not bytes, so multi-byte
// text is never cut mid-rune.
func excerptString(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	return string([]rune(s)[:budget]) + "..."
}
