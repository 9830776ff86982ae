package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"
	"rag-retrieval-service/utils"

	"golang.org/x/sync/singleflight"
)

// RetrieveFunc runs the full retrieval pipeline on a cache miss.
type RetrieveFunc func(ctx context.Context) (models.RetrievalResult, error)

// QueryCache memoizes retrieval results keyed by collection, normalized
// query text, model, top-k and filter. Concurrent misses for the same
// key share a single retrieval. Entries are scoped per collection so
// ingest and delete operations can invalidate exactly the collection
// they touched.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *telemetry.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache wraps backend with the given TTL. A TTL of zero or
// below disables caching: every call retrieves.
func NewQueryCache(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{backend: backend, ttl: ttl}
}

// WithMetrics reports hit and miss outcomes to the meter.
func (c *QueryCache) WithMetrics(m *telemetry.Metrics) *QueryCache {
	c.metrics = m
	return c
}

func queryKey(collection, model, query string, topK int, filter map[string]any) string {
	return "qry:" + collection + ":" + utils.Fingerprint(
		utils.NormalizeText(query),
		model,
		strconv.Itoa(topK),
		utils.CanonicalFilter(filter),
	)
}

// GetOrRetrieve returns the cached result or runs retrieve and stores
// the outcome. Cached results come back with Cached set; failed
// retrievals are never cached.
func (c *QueryCache) GetOrRetrieve(ctx context.Context, collection, model, query string, topK int, filter map[string]any, retrieve RetrieveFunc) (models.RetrievalResult, error) {
	if c.ttl <= 0 {
		return retrieve(ctx)
	}

	key := queryKey(collection, model, query, topK, filter)

	if raw, ok, err := c.backend.Get(ctx, key); err == nil && ok {
		var result models.RetrievalResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			c.hits.Add(1)
			if c.metrics != nil {
				c.metrics.RecordCacheLookup("query", true)
			}
			result.Cached = true
			return result, nil
		}
		_ = c.backend.Delete(ctx, key)
	} else if err != nil {
		logger.Warn("query cache read failed", "error", err)
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheLookup("query", false)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := retrieve(ctx)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(result); err == nil {
			if err := c.backend.Set(ctx, key, string(raw), c.ttl); err != nil {
				logger.Warn("query cache write failed", "error", err)
			}
		}
		return result, nil
	})
	if err != nil {
		return models.RetrievalResult{}, err
	}
	return v.(models.RetrievalResult), nil
}

// InvalidateCollection drops every cached result for the collection.
// Called after any write to the collection so stale rankings are never
// served.
func (c *QueryCache) InvalidateCollection(ctx context.Context, collection string) (int, error) {
	return c.backend.DeletePrefix(ctx, "qry:"+collection+":")
}

// Stats reports hit and miss counters since startup plus the current
// backend entry count.
func (c *QueryCache) Stats(ctx context.Context) models.CacheStats {
	entries, err := c.backend.Count(ctx, "qry:")
	if err != nil {
		logger.Warn("cache count failed", "error", err)
	}
	return models.CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

// Clear drops every cached query result.
func (c *QueryCache) Clear(ctx context.Context) (int, error) {
	return c.backend.DeletePrefix(ctx, "qry:")
}
