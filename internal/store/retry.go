package store

import (
	"context"
	"errors"
	"time"

	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"
)

// Options tunes the per-call deadline and the transient failure retry
// budget for remote backends. Metrics is optional; when set every
// operation outcome is recorded against it.
type Options struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	Metrics     *telemetry.Metrics
}

// retryPolicy applies a per-attempt deadline and bounded exponential
// backoff to remote backend calls. Structured errors (validation,
// not-found) are never retried; once the budget is exhausted the
// failure surfaces as StoreUnavailable, or Timeout when the last
// attempt hit its deadline. Failures are never swallowed.
type retryPolicy struct {
	backend     string
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	metrics     *telemetry.Metrics
}

func newRetryPolicy(backend string, opts Options) retryPolicy {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = 2
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}
	return retryPolicy{
		backend:     backend,
		timeout:     timeout,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		metrics:     opts.Metrics,
	}
}

func (p retryPolicy) record(op string, success bool) {
	if p.metrics != nil {
		p.metrics.RecordStoreOperation(op, p.backend, success)
	}
}

func (p retryPolicy) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				p.record(op, false)
				return models.WrapError(models.KindTimeout, ctx.Err(), "%s canceled while backing off", op)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			p.record(op, true)
			return nil
		}
		if models.KindOf(err) != "" {
			p.record(op, false)
			return err
		}

		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = models.WrapError(models.KindTimeout, err, "%s exceeded %s deadline", op, p.timeout)
		} else {
			lastErr = err
		}
		logger.Warn("store operation failed", "op", op, "attempt", attempt+1, "error", err)
	}

	p.record(op, false)
	if models.KindOf(lastErr) == models.KindTimeout {
		return lastErr
	}
	return models.WrapError(models.KindStoreUnavailable, lastErr, "%s failed after %d attempts", op, p.maxRetries+1)
}
