// Package retry runs operations against flaky backends (redis, postgres)
// with exponential backoff on transient errors.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
)

// Policy bounds the number of attempts and the backoff between them.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used by the cache and repositories unless overridden.
var DefaultPolicy = Policy{
	Attempts:       3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     time.Second,
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. Failures are returned as *logging.OperationError.
func Do(ctx context.Context, logger *zap.Logger, policy Policy, operation, requestID string, fn func() error) error {
	if policy.Attempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := policy.InitialBackoff
	opLogger := logging.WithOperation(logger, operation, requestID)
	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= policy.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransient(err) || attempt == policy.Attempts-1 {
			opLogger.Debug("operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransient reports whether err looks like a timeout or temporary failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
