package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := store.Set(ctx, "k", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	store := NewMemoryStoreWithClock(clock)
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"), time.Hour)

	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("entry should be live: %v", err)
	}

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be evicted, have %d entries", store.Len())
	}
}

func TestMemoryStoreNoExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return now.Add(1000 * time.Hour) })
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"), 0)

	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("zero TTL should never expire: %v", err)
	}
}

func TestKeyDeterministicAndNormalized(t *testing.T) {
	a := Key("search", "  Quadratic Equations ", "math")
	b := Key("search", "quadratic equations", "MATH")
	if a != b {
		t.Errorf("normalized keys differ: %q vs %q", a, b)
	}

	c := Key("search", "quadratic equations", "physics")
	if a == c {
		t.Errorf("distinct inputs collided: %q", a)
	}

	d := Key("ai_response", "quadratic equations", "math")
	if a == d {
		t.Errorf("namespaces should not collide: %q", a)
	}
}

// brokenStore fails every operation, simulating an unreachable backend.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestCacheBackendErrorReadsAsMiss(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	c := New(brokenStore{}, log)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("backend error must read as a miss")
	}
	c.Set(ctx, "k", []byte("v"), time.Minute)

	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 0/1", hits, misses)
	}
	if !strings.Contains(buf.String(), "cache unavailable") {
		t.Errorf("backend failure not logged as cache unavailable: %s", buf.String())
	}

	// operations still succeed without a working backend
	got, err := c.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("computed"), nil
	})
	if err != nil || string(got) != "computed" {
		t.Errorf("GetOrCompute = %q, %v", got, err)
	}
}

func TestCacheGetOrComputeCaches(t *testing.T) {
	c := New(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	var calls atomic.Int32
	compute := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("computed"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if string(got) != "computed" {
			t.Fatalf("got %q", got)
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 2/1", hits, misses)
	}
}

func TestCacheGetOrComputeErrorNotCached(t *testing.T) {
	c := New(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	wantErr := errors.New("upstream down")
	var calls atomic.Int32

	for i := 0; i < 2; i++ {
		_, err := c.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
			calls.Add(1)
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected wrapped error, got %v", err)
		}
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("failed compute should rerun, ran %d times", n)
	}
}

func TestCacheGetOrComputeSingleflight(t *testing.T) {
	c := New(NewMemoryStore(), slog.Default())
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
				calls.Add(1)
				<-release
				return []byte("v"), nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("concurrent callers ran compute %d times, want 1", n)
	}
}
