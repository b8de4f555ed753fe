package timeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
)

func newTestScheduler(maxAttempts int) *Scheduler {
	return NewScheduler(maxAttempts, time.Millisecond, zap.NewNop().Sugar())
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	var calls int32
	err := newTestScheduler(3).Run(context.Background(), "history", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
}

func TestRetryExhaustsExactlyMaxAttempts(t *testing.T) {
	var calls int32
	err := newTestScheduler(3).Run(context.Background(), "history", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return apperr.Transient(errors.New("backend down"))
	})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls)

	var sf *apperr.SetupFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "history", sf.Op)
	assert.Equal(t, 3, sf.Attempts)
	assert.ErrorIs(t, err, apperr.ErrTransient)
}

func TestRetryRecoversMidSchedule(t *testing.T) {
	var calls int32
	err := newTestScheduler(3).Run(context.Background(), "subscribe", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return apperr.Transient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestRetryNeverRetriesNotFound(t *testing.T) {
	var calls int32
	err := newTestScheduler(3).Run(context.Background(), "history", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return apperr.ErrNotFound
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int32(1), calls)

	var sf *apperr.SetupFailedError
	assert.False(t, errors.As(err, &sf), "not-found must not be wrapped as setup failure")
}

func TestRetryCancelledStopsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	started := make(chan struct{}, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewScheduler(5, 50*time.Millisecond, zap.NewNop().Sugar()).Run(ctx, "history", func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			select {
			case started <- struct{}{}:
			default:
			}
			return apperr.Transient(errors.New("down"))
		})
	}()

	<-started
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)

	got := atomic.LoadInt32(&calls)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, got, atomic.LoadInt32(&calls), "no attempts may run after cancellation")
}
