// Package cache provides the shared caching contract used by the context
// assembler and the provider router: a Store abstraction with TTL support,
// deterministic key building, and duplicate-suppressed computation.
//
// Store errors are deliberately soft: a failed Get reads as a miss and a
// failed Set is dropped, so an unavailable backend degrades service to
// cacheless operation instead of failing requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cache: miss" }

// Store is a TTL'd byte store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key, or ErrMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key with the given TTL. A non-positive TTL
	// stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a deterministic cache key: the parts are normalized
// (lower-cased, trimmed), joined with ":", hashed with SHA-256, and
// prefixed with namespace.
func Key(namespace string, parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, ":")))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Cache wraps a Store with hit/miss accounting and singleflight-deduplicated
// computation.
type Cache struct {
	store  Store
	logger *slog.Logger
	group  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache over the given store.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// Get fetches key from the store. Backend errors count and read as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.store.Get(ctx, key)
	if err != nil {
		if _, ok := err.(errMiss); !ok {
			unavailable := fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
			c.logger.Warn("cache get failed, treating as miss", slog.String("error", unavailable.Error()))
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return value, true
}

// Set writes key to the store. Backend errors are logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		unavailable := fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
		c.logger.Warn("cache set failed, dropping entry", slog.String("error", unavailable.Error()))
	}
}

// GetOrCompute returns the cached value for key, or runs compute exactly
// once across concurrent callers and caches its result. Compute errors are
// returned uncached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// populated the entry while we queued.
		if value, err := c.store.Get(ctx, key); err == nil {
			return value, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Stats reports accumulated hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
