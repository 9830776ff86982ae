package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	m, err := telemetry.InitMetrics()
	require.NoError(t, err)
	p := newRetryPolicy("redis", Options{Timeout: time.Second, MaxRetries: 2, BackoffBase: time.Millisecond, Metrics: m})

	calls := 0
	err = p.run(context.Background(), "upsert", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryStructuredErrorNotRetried(t *testing.T) {
	p := newRetryPolicy("redis", Options{Timeout: time.Second, MaxRetries: 3, BackoffBase: time.Millisecond})

	calls := 0
	err := p.run(context.Background(), "search", func(ctx context.Context) error {
		calls++
		return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", "docs")
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCollectionNotFound))
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustionIsStoreUnavailable(t *testing.T) {
	m, err := telemetry.InitMetrics()
	require.NoError(t, err)
	p := newRetryPolicy("mongo", Options{Timeout: time.Second, MaxRetries: 1, BackoffBase: time.Millisecond, Metrics: m})

	calls := 0
	err = p.run(context.Background(), "stats", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreUnavailable))
	assert.Equal(t, 2, calls)
}

func TestRetryDeadlineBecomesTimeout(t *testing.T) {
	p := newRetryPolicy("redis", Options{Timeout: 5 * time.Millisecond, MaxRetries: 1, BackoffBase: time.Millisecond})

	err := p.run(context.Background(), "search", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindTimeout))
}
