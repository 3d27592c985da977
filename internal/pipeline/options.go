// Package pipeline provides the retry and sequencing combinators used to pace reads against a
// rate-limited source.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/domain"
)

const (
	// DefaultMaxAttempts is the number of calls Retry makes before giving up.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the unit of the linear backoff: attempt n waits n*DefaultBaseDelay.
	DefaultBaseDelay = 10 * time.Second
)

// Sleeper pauses for d, returning early with ctx.Err() if ctx is done first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type options struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       Sleeper
	retryIf     func(error) bool
	logger      logrus.FieldLogger
}

func newOptions(opts []Option) options {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       Sleep,
		retryIf:     domain.IsQuotaExceeded,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}
	return o
}

// Option configures Retry and RunSequential.
type Option func(*options)

// WithMaxAttempts sets how many times Retry calls the operation in total.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		o.baseDelay = d
	}
}

// WithSleeper replaces the wait implementation, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithRetryIf overrides which errors Retry treats as retryable.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.retryIf = fn
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
