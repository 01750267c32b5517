package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// conflictRetryDelay is the pause before the single retry after a concurrency conflict
const conflictRetryDelay = 25 * time.Millisecond

// retryOnConflict runs op and, if it fails with a concurrency conflict, runs it once
// more. op must re-read fresh state on every call. Other errors are returned as is.
func retryOnConflict[T any](ctx context.Context, logger Logger, operation string, op func() (T, error)) (T, error) {
	var result T
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(conflictRetryDelay), 1),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		r, err := op()
		if err != nil {
			if domainwf.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Concurrency conflict, retrying with fresh state",
			"operation", operation,
			"error", err,
			"wait", wait,
		)
	})
	return result, err
}
