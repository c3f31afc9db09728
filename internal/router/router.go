// Package router answers prompts by trying registered providers in a
// deterministic order with response caching, fallback, and per-provider
// latency statistics.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/studyflow-ai/studyflow/internal/provider"
	"github.com/studyflow-ai/studyflow/pkg/cache"
	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
	"github.com/studyflow-ai/studyflow/pkg/metrics"
)

const cacheNamespace = "ai_response"

// apologyAnswer is returned when every provider attempt fails.
const apologyAnswer = "Sorry, I couldn't generate an answer right now. Please try again in a moment."

// Payload is the structured answer returned to callers. Errors are carried
// in the Error field; the payload itself is always well-formed.
type Payload struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	ProviderUsed   string   `json:"provider_used"`
	Model          string   `json:"model,omitempty"`
	TokensUsed     int      `json:"tokens_used,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
	Cached         bool     `json:"cached"`
	CacheKey       string   `json:"cache_key,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// record tracks one provider's attempt history. Its mutex serializes
// read-modify-write on the running average.
type record struct {
	mu         sync.Mutex
	requests   int64
	errors     int64
	avgLatency float64 // seconds
}

// RecordSnapshot is a read-only copy of a provider record.
type RecordSnapshot struct {
	Requests   int64   `json:"requests"`
	Errors     int64   `json:"errors"`
	AvgLatency float64 `json:"avg_latency"`
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	Providers          map[string]RecordSnapshot `json:"providers"`
	AvailableProviders []string                  `json:"available_providers"`
	CacheTTLSeconds    float64                   `json:"cache_ttl_seconds"`
}

// Router routes prompts across providers. Construct once at process start
// and share across request handlers.
type Router struct {
	providers  []provider.Provider // registration order
	byName     map[string]provider.Provider
	records    map[string]*record
	classifier *classifier

	cache    *cache.Cache
	cacheTTL time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a router over the given cache. metrics may be nil.
func New(c *cache.Cache, cacheTTL time.Duration, buckets []Bucket, logger *slog.Logger, m *metrics.Metrics) *Router {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Router{
		byName:     make(map[string]provider.Provider),
		records:    make(map[string]*record),
		classifier: newClassifier(buckets),
		cache:      c,
		cacheTTL:   cacheTTL,
		logger:     logger.With(slog.String("component", "router")),
		metrics:    m,
		now:        time.Now,
	}
}

// Register adds a provider. Registration order is the final ordering
// tiebreak, so register the most capable provider first.
func (r *Router) Register(p provider.Provider) {
	name := p.Name()
	if _, exists := r.byName[name]; exists {
		return
	}
	r.providers = append(r.providers, p)
	r.byName[name] = p
	r.records[name] = &record{}
	r.logger.Info("provider registered", slog.String("provider", name))
}

// Ask answers prompt, trying providers strictly one at a time in the order
// described by ordering(). Results are cached per (prompt, preferred) pair;
// failure payloads are never cached.
func (r *Router) Ask(ctx context.Context, prompt, preferred string, allowFallback bool) *Payload {
	if isBlank(prompt) {
		return &Payload{
			Answer:       "",
			Sources:      []string{},
			ProviderUsed: "none",
			Error:        apperrors.ErrInvalidQuery.Error(),
		}
	}

	preferredKey := preferred
	if preferredKey == "" {
		preferredKey = "auto"
	}
	key := cache.Key(cacheNamespace, prompt, preferredKey)

	if raw, ok := r.cache.Get(ctx, key); ok {
		var cached Payload
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			r.observeCache("hit")
			return &cached
		}
		r.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
	}
	r.observeCache("miss")

	order := r.ordering(prompt, preferred)
	if len(order) == 0 {
		return &Payload{
			Answer:       apologyAnswer,
			Sources:      []string{},
			ProviderUsed: "none",
			Error:        "no providers available",
		}
	}

	var lastErr error
	for _, p := range order {
		start := r.now()
		resp, err := p.Answer(ctx, prompt)
		latency := r.now().Sub(start).Seconds()

		if err != nil {
			lastErr = err
			r.recordFailure(p.Name())
			r.observeAttempt(p.Name(), "error", latency)
			r.logger.Warn("provider attempt failed",
				slog.String("provider", p.Name()),
				slog.String("prompt", excerptOf(prompt)),
				slog.String("error", err.Error()),
			)
			if !allowFallback {
				break
			}
			continue
		}

		r.recordSuccess(p.Name(), latency)
		r.observeAttempt(p.Name(), "success", latency)

		payload := &Payload{
			Answer:         resp.Text,
			Sources:        []string{},
			ProviderUsed:   p.Name(),
			Model:          resp.Model,
			TokensUsed:     resp.TokensUsed,
			ProcessingTime: latency,
			CacheKey:       key,
		}
		if raw, err := json.Marshal(payload); err == nil {
			r.cache.Set(ctx, key, raw, r.cacheTTL)
		}
		return payload
	}

	errMsg := "no providers available"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	terminal := fmt.Errorf("%w: %s", apperrors.ErrAllProvidersFailed, errMsg)
	r.logger.Error("ask exhausted all providers",
		slog.String("prompt", excerptOf(prompt)),
		slog.String("error", terminal.Error()),
	)
	return &Payload{
		Answer:       apologyAnswer,
		Sources:      []string{},
		ProviderUsed: "none",
		Error:        errMsg,
	}
}

// ordering resolves the attempt order for one call:
//  1. a registered preferred provider goes first, rest in registration order
//  2. a keyword-bucket match yields that bucket's order, rest appended
//  3. when every provider has history, ascending average latency
//  4. registration order
func (r *Router) ordering(prompt, preferred string) []provider.Provider {
	if preferred != "" {
		if p, ok := r.byName[preferred]; ok {
			order := []provider.Provider{p}
			for _, other := range r.providers {
				if other.Name() != preferred {
					order = append(order, other)
				}
			}
			return order
		}
		// unregistered preferred providers are skipped, not attempted
		r.logger.Warn("preferred provider not registered", slog.String("provider", preferred))
	}

	if bucket, names := r.classifier.classify(prompt); names != nil {
		seen := make(map[string]bool, len(names))
		var order []provider.Provider
		for _, name := range names {
			if p, ok := r.byName[name]; ok && !seen[name] {
				order = append(order, p)
				seen[name] = true
			}
		}
		for _, p := range r.providers {
			if !seen[p.Name()] {
				order = append(order, p)
			}
		}
		if len(order) > 0 {
			r.logger.Debug("prompt classified", slog.String("bucket", bucket))
			return order
		}
	}

	if r.allHaveHistory() {
		order := make([]provider.Provider, len(r.providers))
		copy(order, r.providers)
		sort.SliceStable(order, func(i, j int) bool {
			return r.avgLatency(order[i].Name()) < r.avgLatency(order[j].Name())
		})
		return order
	}

	order := make([]provider.Provider, len(r.providers))
	copy(order, r.providers)
	return order
}

// GetStats returns a read-only snapshot of the record table.
func (r *Router) GetStats() Stats {
	stats := Stats{
		Providers:       make(map[string]RecordSnapshot, len(r.providers)),
		CacheTTLSeconds: r.cacheTTL.Seconds(),
	}
	for _, p := range r.providers {
		stats.AvailableProviders = append(stats.AvailableProviders, p.Name())
		rec := r.records[p.Name()]
		rec.mu.Lock()
		stats.Providers[p.Name()] = RecordSnapshot{
			Requests:   rec.requests,
			Errors:     rec.errors,
			AvgLatency: rec.avgLatency,
		}
		rec.mu.Unlock()
	}
	return stats
}

// TestAllProviders probes every provider with a minimal prompt. Probes
// bypass the cache and the record table entirely: health checks must not
// skew the latency averages that drive ordering.
func (r *Router) TestAllProviders(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		_, err := p.Answer(ctx, "ping")
		results[p.Name()] = err == nil
	}
	return results
}

func (r *Router) recordSuccess(name string, latency float64) {
	rec := r.records[name]
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.requests++
	// two-sample decaying average, kept as-is: downstream ordering was
	// tuned against this shape, not a true mean
	if rec.requests-rec.errors == 1 {
		rec.avgLatency = latency
	} else {
		rec.avgLatency = (rec.avgLatency + latency) / 2
	}
}

func (r *Router) recordFailure(name string) {
	rec := r.records[name]
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.requests++
	rec.errors++
}

func (r *Router) allHaveHistory() bool {
	for _, rec := range r.records {
		rec.mu.Lock()
		n := rec.requests
		rec.mu.Unlock()
		if n == 0 {
			return false
		}
	}
	return len(r.records) > 0
}

func (r *Router) avgLatency(name string) float64 {
	rec := r.records[name]
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.avgLatency
}

func (r *Router) observeAttempt(name, outcome string, latency float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.ProviderAttemptsTotal.WithLabelValues(name, outcome).Inc()
	r.metrics.ProviderLatency.WithLabelValues(name).Observe(latency)
}

func (r *Router) observeCache(outcome string) {
	if r.metrics == nil {
		return
	}
	if outcome == "hit" {
		r.metrics.CacheHitsTotal.WithLabelValues(cacheNamespace).Inc()
	} else {
		r.metrics.CacheMissesTotal.WithLabelValues(cacheNamespace).Inc()
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func excerptOf(prompt string) string {
	const max = 80
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) <= max {
		return prompt
	}
	return string([]rune(prompt)[:max]) + "..."
}
