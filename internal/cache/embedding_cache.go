package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"
	"rag-retrieval-service/utils"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the embedding vector on a cache miss.
type ComputeFunc func(ctx context.Context) ([]float32, error)

// EmbeddingCache memoizes embedding vectors keyed by model and
// normalized text. Concurrent misses for the same key share a single
// computation; failed computations are never cached.
type EmbeddingCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *telemetry.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache wraps backend with the given TTL. A TTL of zero or
// below disables caching entirely: every call computes.
func NewEmbeddingCache(backend Backend, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{backend: backend, ttl: ttl}
}

// WithMetrics reports hit and miss outcomes to the meter.
func (c *EmbeddingCache) WithMetrics(m *telemetry.Metrics) *EmbeddingCache {
	c.metrics = m
	return c
}

func embeddingKey(model, text string) string {
	return "emb:" + model + ":" + utils.Fingerprint(utils.NormalizeText(text))
}

// GetOrCompute returns the cached vector for (model, text) or runs
// compute and stores the result. Texts differing only in surrounding
// or repeated whitespace share an entry.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, model, text string, compute ComputeFunc) ([]float32, error) {
	if c.ttl <= 0 {
		return compute(ctx)
	}

	key := embeddingKey(model, text)

	if raw, ok, err := c.backend.Get(ctx, key); err == nil && ok {
		var vector []float32
		if err := json.Unmarshal([]byte(raw), &vector); err == nil {
			c.hits.Add(1)
			if c.metrics != nil {
				c.metrics.RecordCacheLookup("embedding", true)
			}
			return vector, nil
		}
		// Corrupt entry, drop it and recompute.
		_ = c.backend.Delete(ctx, key)
	} else if err != nil {
		logger.Warn("embedding cache read failed", "error", err)
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheLookup("embedding", false)
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		vector, err := compute(ctx)
		if err != nil {
			return nil, models.WrapError(models.KindComputeFailure, err, "embedding computation failed")
		}

		if raw, err := json.Marshal(vector); err == nil {
			if err := c.backend.Set(ctx, key, string(raw), c.ttl); err != nil {
				logger.Warn("embedding cache write failed", "error", err)
			}
		}
		return vector, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Stats reports hit and miss counters since startup plus the current
// backend entry count.
func (c *EmbeddingCache) Stats(ctx context.Context) models.CacheStats {
	entries, err := c.backend.Count(ctx, "emb:")
	if err != nil {
		logger.Warn("cache count failed", "error", err)
	}
	return models.CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

// Clear drops every embedding entry.
func (c *EmbeddingCache) Clear(ctx context.Context) (int, error) {
	return c.backend.DeletePrefix(ctx, "emb:")
}
