// Package retry applies the external call policy used for model and web
// search invocations: every attempt runs under its own timeout and only
// transient transport failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
)

// Policy bounds an external call.
type Policy struct {
	// Attempts is the total number of tries, first call included.
	Attempts int
	// Timeout applies to each attempt. Zero leaves the caller's deadline alone.
	Timeout time.Duration
	// Backoff is the delay before the second attempt; it doubles afterwards.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Default returns one retry, a 30s per-attempt timeout and a 250ms backoff.
func Default() Policy {
	return Policy{
		Attempts: 2,
		Timeout:  30 * time.Second,
		Backoff:  250 * time.Millisecond,
	}
}

// StatusError carries an HTTP status from a provider response.
type StatusError struct {
	Code int
	Body string
	Err  error
}

func (e *StatusError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("status %d: %v", e.Code, e.Err)
	case e.Body != "":
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	default:
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
}

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus wraps err with its HTTP status code so IsTransient can classify it.
func WithStatus(code int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Code: code, Err: err}
}

// IsTransient reports whether err is worth one more attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Do runs op under p. The parent context stops the loop immediately; a
// per-attempt deadline does not.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.WithComponent("retry")
	}

	var lastErr error
	delay := p.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, p.Timeout, op)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("call succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt == attempts || !IsTransient(lastErr) {
			break
		}

		logger.Debug("transient failure, retrying", "attempt", attempt, "max_attempts", attempts, "error", lastErr)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
	return lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
