package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryBackendTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend().WithClock(clock.Now)

	require.NoError(t, backend.Set(ctx, "k", "v", time.Minute))

	value, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)

	clock.Advance(time.Minute)
	_, ok, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackendNoExpiryWithoutTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend().WithClock(clock.Now)

	require.NoError(t, backend.Set(ctx, "k", "v", 0))
	clock.Advance(24 * time.Hour)

	_, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryBackendDeletePrefix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	require.NoError(t, backend.Set(ctx, "qry:docs:1", "a", 0))
	require.NoError(t, backend.Set(ctx, "qry:docs:2", "b", 0))
	require.NoError(t, backend.Set(ctx, "qry:other:1", "c", 0))
	require.NoError(t, backend.Set(ctx, "emb:m:1", "d", 0))

	removed, err := backend.DeletePrefix(ctx, "qry:docs:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, _ := backend.Get(ctx, "qry:other:1")
	assert.True(t, ok)
	_, ok, _ = backend.Get(ctx, "emb:m:1")
	assert.True(t, ok)
}

func TestMemoryBackendSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend().WithClock(clock.Now)

	require.NoError(t, backend.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, backend.Set(ctx, "b", "2", time.Hour))
	require.NoError(t, backend.Set(ctx, "c", "3", 0))

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, backend.Sweep())

	count, err := backend.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmbeddingCacheHit(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), time.Hour)

	calls := 0
	compute := func(ctx context.Context) ([]float32, error) {
		calls++
		return []float32{1, 2, 3}, nil
	}

	v1, err := c.GetOrCompute(ctx, "model-a", "hello world", compute)
	require.NoError(t, err)
	v2, err := c.GetOrCompute(ctx, "model-a", "hello world", compute)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestEmbeddingCacheNormalizesWhitespace(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), time.Hour)

	calls := 0
	compute := func(ctx context.Context) ([]float32, error) {
		calls++
		return []float32{1}, nil
	}

	_, err := c.GetOrCompute(ctx, "m", "hello   world", compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "m", "  hello world\n", compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbeddingCacheKeyedByModel(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), time.Hour)

	calls := 0
	compute := func(ctx context.Context) ([]float32, error) {
		calls++
		return []float32{float32(calls)}, nil
	}

	_, err := c.GetOrCompute(ctx, "model-a", "same text", compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "model-b", "same text", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEmbeddingCacheZeroTTLDisables(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), 0)

	calls := 0
	compute := func(ctx context.Context) ([]float32, error) {
		calls++
		return []float32{1}, nil
	}

	_, err := c.GetOrCompute(ctx, "m", "text", compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "m", "text", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEmbeddingCacheFailureNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), time.Hour)

	calls := 0
	failing := func(ctx context.Context) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("provider down")
		}
		return []float32{1}, nil
	}

	_, err := c.GetOrCompute(ctx, "m", "text", failing)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindComputeFailure))

	// The failure must not poison the cache: the retry computes again
	// and succeeds.
	v, err := c.GetOrCompute(ctx, "m", "text", failing)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.Equal(t, 2, calls)
}

func TestEmbeddingCacheConcurrentComputeOnce(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(NewMemoryBackend(), time.Hour)

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]float32, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []float32{42}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]float32, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, "m", "shared text", compute)
		}(i)
	}

	<-started
	// Give the remaining workers time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []float32{42}, results[i])
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestQueryCacheHitSetsCached(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(NewMemoryBackend(), time.Hour)

	calls := 0
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		calls++
		return models.RetrievalResult{
			Query: "what is the leave policy",
			Matches: []models.ScoredRecord{
				{Record: models.VectorRecord{ChunkID: "policy.txt_0"}, Score: 0.9},
			},
		}, nil
	}

	first, err := c.GetOrRetrieve(ctx, "docs", "m", "what is the leave policy", 4, nil, retrieve)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.GetOrRetrieve(ctx, "docs", "m", "what is the leave policy", 4, nil, retrieve)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Matches, second.Matches)
	assert.Equal(t, 1, calls)
}

func TestQueryCacheKeyIncludesTopKAndFilter(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(NewMemoryBackend(), time.Hour)

	calls := 0
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		calls++
		return models.RetrievalResult{}, nil
	}

	_, err := c.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	_, err = c.GetOrRetrieve(ctx, "docs", "m", "q", 8, nil, retrieve)
	require.NoError(t, err)
	_, err = c.GetOrRetrieve(ctx, "docs", "m", "q", 4, map[string]any{"source": "a.txt"}, retrieve)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestQueryCacheInvalidateCollection(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(NewMemoryBackend(), time.Hour)

	calls := 0
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		calls++
		return models.RetrievalResult{}, nil
	}

	_, err := c.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	_, err = c.GetOrRetrieve(ctx, "other", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)

	removed, err := c.InvalidateCollection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// docs recomputes, other is still cached.
	_, err = c.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	_, err = c.GetOrRetrieve(ctx, "other", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestQueryCacheConcurrentRetrieveOnce(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(NewMemoryBackend(), time.Hour)

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return models.RetrievalResult{Query: "shared question"}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]models.RetrievalResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrRetrieve(ctx, "docs", "m", "shared question", 4, nil, retrieve)
		}(i)
	}

	<-started
	// Give the remaining workers time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared question", results[i].Query)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestCacheLookupMetricsWired(t *testing.T) {
	ctx := context.Background()
	m, err := telemetry.InitMetrics()
	require.NoError(t, err)

	ec := NewEmbeddingCache(NewMemoryBackend(), time.Hour).WithMetrics(m)
	compute := func(ctx context.Context) ([]float32, error) { return []float32{1}, nil }
	_, err = ec.GetOrCompute(ctx, "m", "text", compute)
	require.NoError(t, err)
	_, err = ec.GetOrCompute(ctx, "m", "text", compute)
	require.NoError(t, err)

	qc := NewQueryCache(NewMemoryBackend(), time.Hour).WithMetrics(m)
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		return models.RetrievalResult{}, nil
	}
	_, err = qc.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	_, err = qc.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)

	// The counters keep working with the meter attached.
	assert.Equal(t, int64(1), ec.Stats(ctx).Hits)
	assert.Equal(t, int64(1), qc.Stats(ctx).Hits)
}

func TestQueryCacheFailureNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(NewMemoryBackend(), time.Hour)

	calls := 0
	retrieve := func(ctx context.Context) (models.RetrievalResult, error) {
		calls++
		if calls == 1 {
			return models.RetrievalResult{}, errors.New("store down")
		}
		return models.RetrievalResult{Query: "q"}, nil
	}

	_, err := c.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.Error(t, err)

	result, err := c.GetOrRetrieve(ctx, "docs", "m", "q", 4, nil, retrieve)
	require.NoError(t, err)
	assert.Equal(t, "q", result.Query)
	assert.Equal(t, 2, calls)
}
