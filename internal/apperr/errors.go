package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrTransient    = errors.New("temporarily unavailable")
	ErrRateLimited  = errors.New("rate limited")
	ErrInternal     = errors.New("internal error")
)

// SetupFailedError is returned when a retried setup operation (history load,
// subscription open) exhausted its attempts. The last underlying cause is
// attached.
type SetupFailedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *SetupFailedError) Error() string {
	return fmt.Sprintf("%s: setup failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *SetupFailedError) Unwrap() error { return e.Err }

// IsRetryable reports whether the scheduler may retry after err.
// Not-found and permission errors are final; everything else that smells
// like a network or backend hiccup is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBadRequest) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds, keeping
// the original cause in the chain.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Classify maps low-level driver errors onto the taxonomy. Network-ish
// failures become ErrTransient; anything already tagged passes through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTransient) || errors.Is(err, ErrBadRequest) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	return err
}
