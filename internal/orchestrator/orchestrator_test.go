package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/studyflow-ai/studyflow/internal/assembler"
	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/internal/provider"
	"github.com/studyflow-ai/studyflow/internal/router"
	"github.com/studyflow-ai/studyflow/pkg/cache"
)

type stubProvider struct {
	name   string
	answer string
	fail   bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Answer(_ context.Context, _ string) (*provider.Response, error) {
	if s.fail {
		return nil, errors.New(s.name + " unavailable")
	}
	return &provider.Response{Text: s.answer}, nil
}

func newOrchestrator(t *testing.T, providers ...provider.Provider) *Orchestrator {
	t.Helper()
	logger := slog.Default()
	c := cache.New(cache.NewMemoryStore(), logger)
	rt := router.New(c, time.Minute, nil, logger, nil)
	for _, p := range providers {
		rt.Register(p)
	}
	return New(c, rt, assembler.Config{BaseTTL: time.Minute}, logger, nil)
}

func TestAskRoutesToProvider(t *testing.T) {
	o := newOrchestrator(t, &stubProvider{name: "p1", answer: "42"})

	payload := o.Ask(context.Background(), "what is the answer", "", true)
	if payload.Answer != "42" || payload.ProviderUsed != "p1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestProcessQueryEndToEnd(t *testing.T) {
	o := newOrchestrator(t, &stubProvider{name: "p1", answer: "factor into (x-2)(x-3)"})
	o.AddDocument("Solve x^2-5x+6=0 for x", index.Metadata{Subject: "math", Title: "Factoring"})

	result := o.ProcessQuery(context.Background(), "solve quadratic equation", "math", "")
	if result.ContextChunks != 1 {
		t.Fatalf("chunks = %d: %+v", result.ContextChunks, result)
	}
	if result.Answer != "factor into (x-2)(x-3)" || result.ProviderUsed != "p1" {
		t.Errorf("generation not wired: %+v", result)
	}
}

func TestProcessQueryDegradesWhenProvidersFail(t *testing.T) {
	o := newOrchestrator(t, &stubProvider{name: "p1", fail: true})
	o.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "Eq"})

	result := o.ProcessQuery(context.Background(), "quadratic equations", "", "")
	// context is still assembled even though generation failed
	if result.ContextChunks != 1 {
		t.Errorf("context lost on provider failure: %+v", result)
	}
	if result.ProviderUsed != "none" {
		t.Errorf("provider_used = %q", result.ProviderUsed)
	}
}

func TestAddDocumentAndStats(t *testing.T) {
	o := newOrchestrator(t)

	if _, ok := o.AddDocument("", index.Metadata{}); ok {
		t.Error("empty document accepted")
	}

	id, ok := o.AddDocument("russian verbs of motion", index.Metadata{Subject: "russian", Title: "Verbs"})
	if !ok || id != 1 {
		t.Fatalf("add = (%d, %v)", id, ok)
	}

	stats := o.IndexStats()
	if stats.TotalDocuments != 1 || stats.BySubject["russian"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearchSubjectScoping(t *testing.T) {
	o := newOrchestrator(t)
	o.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "A"})
	o.AddDocument("quadratic drag equations", index.Metadata{Subject: "physics", Title: "B"})

	all := o.Search("quadratic equations", "", 10)
	if len(all) != 2 {
		t.Errorf("unscoped search = %d results", len(all))
	}

	scoped := o.Search("quadratic equations", "physics", 10)
	if len(scoped) != 1 || scoped[0].Subject != "physics" {
		t.Errorf("scoped search = %+v", scoped)
	}
}

func TestGetStatsAndProviderProbe(t *testing.T) {
	up := &stubProvider{name: "up", answer: "pong"}
	down := &stubProvider{name: "down", fail: true}
	o := newOrchestrator(t, up, down)

	stats := o.GetStats()
	if len(stats.AvailableProviders) != 2 {
		t.Errorf("available = %v", stats.AvailableProviders)
	}

	probe := o.TestAllProviders(context.Background())
	if !probe["up"] || probe["down"] {
		t.Errorf("probe = %v", probe)
	}
}
