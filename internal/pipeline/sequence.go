package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Step is one unit of work run by RunSequential.
type Step[T any] func(ctx context.Context) (T, error)

// StepError reports which step aborted a sequence.
type StepError struct {
	Index int
	Total int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RunSequential runs steps one at a time in order, idling interStepDelay between the end of one
// step and the start of the next. The first failure stops the run; no partial results are returned.
func RunSequential[T any](ctx context.Context, steps []Step[T], interStepDelay time.Duration, opts ...Option) ([]T, error) {
	o := newOptions(opts)

	results := make([]T, 0, len(steps))
	for i, step := range steps {
		if i > 0 {
			if err := o.sleep(ctx, interStepDelay); err != nil {
				return nil, &StepError{Index: i, Total: len(steps), Err: err}
			}
		}

		out, err := step(ctx)
		if err != nil {
			o.logger.WithField("step", i+1).Warnf("sequence aborted: %v", err)
			return nil, &StepError{Index: i, Total: len(steps), Err: err}
		}
		results = append(results, out)
	}
	return results, nil
}
