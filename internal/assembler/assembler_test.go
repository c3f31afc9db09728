package assembler

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/internal/retrieval"
	"github.com/studyflow-ai/studyflow/internal/router"
	"github.com/studyflow-ai/studyflow/pkg/cache"
)

func newFixture(t *testing.T, gen Generator) (*index.Index, *Assembler) {
	t.Helper()
	logger := slog.Default()
	idx := index.New(logger)
	eng := retrieval.NewEngine(idx, logger, nil)
	c := cache.New(cache.NewMemoryStore(), logger)
	a := New(eng, c, gen, Config{BaseTTL: time.Minute, ResultLimit: 5, ExcerptBudget: 200}, logger, nil)
	return idx, a
}

func TestProcessQueryBuildsContext(t *testing.T) {
	idx, a := newFixture(t, nil)
	idx.AddDocument("Solve x^2-5x+6=0 for x", index.Metadata{Subject: "math", Title: "Factoring"})

	result := a.ProcessQuery(context.Background(), "solve quadratic equation", "", "")
	if result.ContextChunks != 1 {
		t.Fatalf("chunks = %d, want 1: %+v", result.ContextChunks, result)
	}
	if !strings.HasPrefix(result.Context, "[math] Factoring: ") {
		t.Errorf("context = %q", result.Context)
	}
	if len(result.Sources) != 1 || result.Sources[0].Title != "Factoring" {
		t.Errorf("sources = %+v", result.Sources)
	}
}

func TestProcessQueryEmptyResultsNotError(t *testing.T) {
	_, a := newFixture(t, nil)

	result := a.ProcessQuery(context.Background(), "anything at all", "", "")
	if result.Context != "" || result.ContextChunks != 0 {
		t.Errorf("empty corpus should yield empty context: %+v", result)
	}
	if result.Sources == nil {
		t.Error("sources must be non-nil")
	}
}

func TestProcessQueryExcerptTruncation(t *testing.T) {
	idx, a := newFixture(t, nil)
	long := strings.Repeat("quadratic equations and more content ", 20)
	idx.AddDocument(long, index.Metadata{Subject: "math", Title: "Long"})

	result := a.ProcessQuery(context.Background(), "quadratic equations", "", "")
	if !strings.HasSuffix(result.Context, "...") {
		t.Errorf("long excerpt not truncated: %q", result.Context)
	}
	// "[math] Long: " + 200 chars + "..."
	if len(result.Context) > len("[math] Long: ")+203 {
		t.Errorf("context length %d exceeds budget", len(result.Context))
	}
}

func TestProcessQueryExcerptTruncationCyrillic(t *testing.T) {
	idx, a := newFixture(t, nil)
	long := strings.Repeat("уравнение математика алгебра ", 20)
	idx.AddDocument(long, index.Metadata{Subject: "math", Title: "Уравнения"})

	result := a.ProcessQuery(context.Background(), "уравнение", "", "")
	if result.ContextChunks != 1 {
		t.Fatalf("chunks = %d: %+v", result.ContextChunks, result)
	}
	if !utf8.ValidString(result.Context) {
		t.Errorf("truncation produced invalid UTF-8: %q", result.Context)
	}
	if !strings.HasSuffix(result.Context, "...") {
		t.Errorf("long excerpt not truncated: %q", result.Context)
	}

	excerpt := strings.TrimSuffix(strings.TrimPrefix(result.Context, "[math] Уравнения: "), "...")
	if got := utf8.RuneCountInString(excerpt); got != 200 {
		t.Errorf("excerpt is %d characters, want the 200-character budget", got)
	}
}

func TestProcessQuerySubjectScoped(t *testing.T) {
	idx, a := newFixture(t, nil)
	idx.AddDocument("quadratic equations in math", index.Metadata{Subject: "math", Title: "Math"})
	idx.AddDocument("quadratic drag equations in physics", index.Metadata{Subject: "physics", Title: "Drag"})

	result := a.ProcessQuery(context.Background(), "quadratic equations", "physics", "")
	if result.ContextChunks != 1 || result.Sources[0].Subject != "physics" {
		t.Errorf("subject scope ignored: %+v", result)
	}
	if result.Subject != "physics" {
		t.Errorf("subject = %q", result.Subject)
	}
}

func TestProcessQueryCachesAnswerTier(t *testing.T) {
	var calls atomic.Int32
	gen := func(ctx context.Context, prompt string) *router.Payload {
		calls.Add(1)
		return &router.Payload{Answer: "generated", ProviderUsed: "p1", Sources: []string{}}
	}

	idx, a := newFixture(t, gen)
	idx.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "Eq"})
	ctx := context.Background()

	first := a.ProcessQuery(ctx, "quadratic equations", "", "")
	if first.Answer != "generated" || first.Cached {
		t.Fatalf("first = %+v", first)
	}

	second := a.ProcessQuery(ctx, "quadratic equations", "", "")
	if !second.Cached {
		t.Fatal("second call should hit the answer cache")
	}
	if second.Answer != "generated" {
		t.Errorf("cached answer = %q", second.Answer)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("generator ran %d times, want 1", n)
	}
}

func TestProcessQueryFailedGenerationNotCached(t *testing.T) {
	gen := func(ctx context.Context, prompt string) *router.Payload {
		return &router.Payload{Answer: "sorry", ProviderUsed: "none", Error: "all failed", Sources: []string{}}
	}

	idx, a := newFixture(t, gen)
	idx.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "Eq"})
	ctx := context.Background()

	a.ProcessQuery(ctx, "quadratic equations", "", "")
	second := a.ProcessQuery(ctx, "quadratic equations", "", "")
	if second.Cached {
		t.Error("failed generation must not populate the answer cache")
	}
}

func TestProcessQueryReusesSearchTier(t *testing.T) {
	idx, a := newFixture(t, nil)
	idx.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "Eq"})
	ctx := context.Background()

	first := a.ProcessQuery(ctx, "quadratic equations", "", "")

	// a document added after the search was cached is invisible until the
	// search entry expires
	idx.AddDocument("more quadratic equations", index.Metadata{Subject: "math", Title: "Eq2"})

	second := a.ProcessQuery(ctx, "quadratic equations", "", "")
	if second.ContextChunks != first.ContextChunks {
		t.Errorf("search tier not reused: %d vs %d chunks", second.ContextChunks, first.ContextChunks)
	}
}

func TestProcessQueryPromptIncludesContextAndQuestion(t *testing.T) {
	var gotPrompt string
	gen := func(ctx context.Context, prompt string) *router.Payload {
		gotPrompt = prompt
		return &router.Payload{Answer: "ok", ProviderUsed: "p1", Sources: []string{}}
	}

	idx, a := newFixture(t, gen)
	idx.AddDocument("quadratic equations", index.Metadata{Subject: "math", Title: "Eq"})

	a.ProcessQuery(context.Background(), "quadratic equations", "", "")
	if !strings.Contains(gotPrompt, "[math] Eq:") {
		t.Errorf("prompt missing context: %q", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "Question: quadratic equations") {
		t.Errorf("prompt missing question: %q", gotPrompt)
	}
}
