// Package retrieval ranks indexed documents against free-text queries
// using token-overlap similarity.
package retrieval

import (
	"log/slog"
	"sort"

	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/internal/index/tokenizer"
	"github.com/studyflow-ai/studyflow/pkg/metrics"
)

// Result is one ranked hit. Score is a Dice coefficient in [0,1].
type Result struct {
	DocumentID int     `json:"document_id"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
	Title      string  `json:"title"`
	Subject    string  `json:"subject"`
}

// Engine scores the full corpus per query. The corpus is small and the
// dominant cost sits in the downstream generation call, so a linear scan
// keeps ranking exact and deterministic.
type Engine struct {
	index   *index.Index
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine over idx. metrics may be nil.
func NewEngine(idx *index.Index, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		index:   idx,
		logger:  logger.With(slog.String("component", "retrieval")),
		metrics: m,
	}
}

// Search ranks all documents against query and returns at most limit
// results, best first. An empty or stop-word-only query returns nil.
func (e *Engine) Search(query string, limit int) []Result {
	return e.rank(query, e.index.Documents(), limit)
}

// SearchBySubject is Search restricted to documents whose subject matches
// subject case-insensitively.
func (e *Engine) SearchBySubject(query, subject string, limit int) []Result {
	return e.rank(query, e.index.DocumentsBySubject(subject), limit)
}

func (e *Engine) rank(query string, docs []*index.Document, limit int) []Result {
	queryTokens := tokenizer.TokenSet(query)
	if len(queryTokens) == 0 {
		e.observe("empty_query", 0)
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		overlap := 0
		for token := range queryTokens {
			if _, ok := doc.Tokens[token]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}

		score := 2 * float64(overlap) / float64(len(queryTokens)+len(doc.Tokens))
		results = append(results, Result{
			DocumentID: doc.ID,
			Score:      score,
			Excerpt:    doc.Text,
			Title:      doc.Metadata.Title,
			Subject:    doc.Metadata.Subject,
		})
	}

	// stable keeps insertion order for equal scores, so ranking is
	// deterministic across runs
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, len(results))

	e.logger.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(results)),
	)
	return results
}

func (e *Engine) observe(resultType string, count int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchResultsCount.Observe(float64(count))
}
