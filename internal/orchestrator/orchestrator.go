// Package orchestrator is the composition root of the query pipeline: it
// owns the index, retrieval engine, context assembler, and provider router,
// and exposes the caller-facing entry points.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/studyflow-ai/studyflow/internal/assembler"
	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/internal/retrieval"
	"github.com/studyflow-ai/studyflow/internal/router"
	"github.com/studyflow-ai/studyflow/pkg/cache"
	"github.com/studyflow-ai/studyflow/pkg/metrics"
)

// Orchestrator is constructed once at process start and shared by every
// request handler. All statistics live inside it, scoped to its lifetime.
type Orchestrator struct {
	index     *index.Index
	engine    *retrieval.Engine
	assembler *assembler.Assembler
	router    *router.Router

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New wires the pipeline over the shared cache. The assembler's generation
// stage routes through the router without a preferred provider, with
// fallback enabled.
func New(c *cache.Cache, rt *router.Router, cfg assembler.Config, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	idx := index.New(logger)
	eng := retrieval.NewEngine(idx, logger, m)

	generate := func(ctx context.Context, prompt string) *router.Payload {
		return rt.Ask(ctx, prompt, "", true)
	}
	asm := assembler.New(eng, c, generate, cfg, logger, m)

	return &Orchestrator{
		index:     idx,
		engine:    eng,
		assembler: asm,
		router:    rt,
		logger:    logger.With(slog.String("component", "orchestrator")),
		metrics:   m,
	}
}

// Ask answers a question directly through the provider router, without
// retrieval augmentation.
func (o *Orchestrator) Ask(ctx context.Context, question, preferred string, allowFallback bool) *router.Payload {
	return o.router.Ask(ctx, question, preferred, allowFallback)
}

// ProcessQuery runs the retrieval-augmented pipeline: assemble context from
// the index, generate an answer through the router, cache both tiers.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, subject, documentType string) *assembler.Result {
	return o.assembler.ProcessQuery(ctx, query, subject, documentType)
}

// AddDocument indexes text with its metadata. Returns false when the text
// produces no index terms.
func (o *Orchestrator) AddDocument(text string, meta index.Metadata) (int, bool) {
	id, ok := o.index.AddDocument(text, meta)
	if ok && o.metrics != nil {
		o.metrics.DocsIndexedTotal.Inc()
	}
	return id, ok
}

// Search exposes raw retrieval, for the search endpoint.
func (o *Orchestrator) Search(query, subject string, limit int) []retrieval.Result {
	if subject != "" {
		return o.engine.SearchBySubject(query, subject, limit)
	}
	return o.engine.Search(query, limit)
}

// DocumentsBySubject lists indexed documents for one subject.
func (o *Orchestrator) DocumentsBySubject(subject string) []*index.Document {
	return o.index.DocumentsBySubject(subject)
}

// IndexStats reports index size counters.
func (o *Orchestrator) IndexStats() index.Stats {
	return o.index.Stats()
}

// GetStats returns the router's provider statistics snapshot.
func (o *Orchestrator) GetStats() router.Stats {
	return o.router.GetStats()
}

// TestAllProviders probes every registered provider for health reporting.
func (o *Orchestrator) TestAllProviders(ctx context.Context) map[string]bool {
	return o.router.TestAllProviders(ctx)
}
