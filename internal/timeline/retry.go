package timeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/metrics"
)

// Scheduler retries fallible setup operations with a bounded, strictly
// increasing delay schedule. Not-found and permission errors are never
// retried; cancellation stops pending attempts immediately.
type Scheduler struct {
	maxAttempts int
	base        time.Duration
	log         *zap.SugaredLogger
}

func NewScheduler(maxAttempts int, base time.Duration, log *zap.SugaredLogger) *Scheduler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Scheduler{maxAttempts: maxAttempts, base: base, log: log}
}

// Run executes fn until it succeeds, the attempt budget is spent, the error
// is final, or ctx is cancelled. Exhaustion on a retryable error returns a
// *apperr.SetupFailedError carrying the last cause.
func (s *Scheduler) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		metrics.RetryAttempts.WithLabelValues(op).Inc()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		s.log.Warnw("setup attempt failed", "op", op, "attempt", attempts, "err", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !apperr.IsRetryable(err) {
		return err
	}
	metrics.SetupFailures.WithLabelValues(op).Inc()
	return &apperr.SetupFailedError{Op: op, Attempts: attempts, Err: err}
}
