package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/observability"
)

// Retry calls op until it succeeds, fails with a non-retryable error, or the attempt budget is
// spent. After failed attempt n it waits n*baseDelay. Non-retryable errors are returned at once
// without waiting; when the budget runs out the last retryable error is returned.
func Retry[T any](ctx context.Context, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := newOptions(opts)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !o.retryIf(err) {
			return zero, err
		}

		lastErr = err
		if attempt == o.maxAttempts {
			break
		}

		delay := time.Duration(attempt) * o.baseDelay
		o.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warnf("quota exceeded, backing off: %v", err)
		observability.RecordQuotaRetry()

		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	o.logger.WithField("attempts", o.maxAttempts).Errorf("giving up after quota errors: %v", lastErr)
	return zero, lastErr
}
