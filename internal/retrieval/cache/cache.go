// Package cache stores retrieval results in Redis and collapses concurrent
// identical lookups into a single computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "retrieval:"

// Store is the key-value backend the cache writes to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	store   Store
	ttl     time.Duration
	isMiss  func(error) bool
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ retrieval.ResultCache = (*ResultCache)(nil)

// New creates a cache over a Redis client.
func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return NewWithStore(client, ttl, pkgredis.IsNilError, m)
}

// NewWithStore creates a cache over any Store. isMiss reports whether a Get
// error means the key is absent.
func NewWithStore(store Store, ttl time.Duration, isMiss func(error) bool, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		store:   store,
		ttl:     ttl,
		isMiss:  isMiss,
		metrics: m,
		logger:  logger.WithComponent("retrieval-cache"),
	}
}

func (c *ResultCache) get(ctx context.Context, key string) ([]retrieval.ScoredChunk, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !c.isMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result []retrieval.ScoredChunk
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return result, true
}

func (c *ResultCache) set(ctx context.Context, key string, result []retrieval.ScoredChunk) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or computes, stores and returns it.
// Backend failures fall through to compute. The boolean reports a hit.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	terms []string,
	topK int,
	compute func() ([]retrieval.ScoredChunk, error),
) ([]retrieval.ScoredChunk, bool, error) {
	key := buildKey(fingerprint, terms, topK)
	if result, ok := c.get(ctx, key); ok {
		c.recordHit()
		return result, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]retrieval.ScoredChunk), false, nil
}

// Invalidate deletes every cached retrieval result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating retrieval cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey keeps term order and duplicates since both affect the score.
func buildKey(fingerprint string, terms []string, topK int) string {
	raw := fmt.Sprintf("%s|%s|k=%d", fingerprint, strings.Join(terms, "\x1f"), topK)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, fingerprint, hash[:16])
}
