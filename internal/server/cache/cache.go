// Package cache keeps recently served article payloads in Redis so repeated
// requests skip the block decode. Redis trouble never fails a request: a
// broken or slow cache degrades to a miss.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/resilience"
)

const keyPrefix = "article:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ComputeFunc produces the article when the cache misses. The context it
// receives is not tied to any single caller's cancellation.
type ComputeFunc func(ctx context.Context) (text string, found bool, err error)

type ArticleCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

type Option func(*ArticleCache)

// WithBreaker routes every Redis call through cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *ArticleCache) { c.breaker = cb }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ArticleCache) { c.metrics = m }
}

func New(store Store, ttl time.Duration, opts ...Option) *ArticleCache {
	c := &ArticleCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "article-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached payload for title.
func (c *ArticleCache) Get(ctx context.Context, title string) (string, bool) {
	key := buildKey(title)
	var value string
	var found bool
	err := c.guard(func() error {
		var err error
		value, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return "", false
	}
	if !found {
		c.recordMiss()
		return "", false
	}
	text, ok := decodeEntry(value, title)
	if !ok {
		c.logger.Warn("cache entry belongs to another title", "key", key, "title", title)
		c.recordMiss()
		return "", false
	}
	c.recordHit()
	return text, true
}

// Set stores the payload for title. Failures are logged and dropped.
func (c *ArticleCache) Set(ctx context.Context, title, text string) {
	key := buildKey(title)
	err := c.guard(func() error {
		return c.store.Set(ctx, key, encodeEntry(title, text), c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves title from the cache or runs compute once for all
// concurrent callers asking for the same title. Only found articles are
// stored. The shared computation outlives a cancelled caller, which returns
// its own context error without failing the others.
func (c *ArticleCache) GetOrCompute(ctx context.Context, title string, compute ComputeFunc) (text string, found, cacheHit bool, err error) {
	if text, ok := c.Get(ctx, title); ok {
		return text, true, true, nil
	}
	type result struct {
		text  string
		found bool
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(title, func() (any, error) {
		text, found, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if found {
			c.Set(shared, title, text)
		}
		return result{text: text, found: found}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false, false, res.Err
		}
		r := res.Val.(result)
		return r.text, r.found, false, nil
	case <-ctx.Done():
		return "", false, false, ctx.Err()
	}
}

// Invalidate drops every cached article.
func (c *ArticleCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.guard(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating article cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ArticleCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ArticleCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

func (c *ArticleCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ArticleCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(title string) string {
	return keyPrefix + strconv.FormatUint(xxhash.Sum64String(title), 16)
}

// Entries carry their title so a hash collision reads as a miss. Titles never
// contain a newline.
func encodeEntry(title, text string) string {
	return title + "\n" + text
}

func decodeEntry(value, title string) (string, bool) {
	stored, text, ok := strings.Cut(value, "\n")
	if !ok || stored != title {
		return "", false
	}
	return text, true
}
