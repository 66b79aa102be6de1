package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/logging"
)

// Retrier runs storage operations with exponential backoff on transient errors.
type Retrier struct {
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	expected       []error
}

// NewRetrier returns a retrier with 3 attempts backing off from 50ms to 1s.
func NewRetrier(logger *zap.Logger) Retrier {
	return Retrier{
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Expecting returns a copy that treats errs as ordinary outcomes: they are not retried
// and are logged at debug level instead of error.
func (r Retrier) Expecting(errs ...error) Retrier {
	r.expected = append(append([]error{}, r.expected...), errs...)
	return r
}

// WithBackoff returns a copy with the given backoff bounds.
func (r Retrier) WithBackoff(initial, maxBackoff time.Duration) Retrier {
	r.initialBackoff = initial
	r.maxBackoff = maxBackoff
	return r
}

// Do retries fn on transient errors. Failures are returned as *logging.OperationError.
func (r Retrier) Do(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
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

		if r.isExpected(err) {
			opLogger.Debug("operation returned expected error", zap.Error(err))
			return logging.NewOperationError(operation, requestID, err)
		}
		if !IsTransient(err) || attempt == attempts-1 {
			opLogger.Error("operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (r Retrier) isExpected(err error) bool {
	for _, target := range r.expected {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
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
	return errors.As(err, &temporary) && temporary.Temporary()
}
