package retry

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ExhaustedError is returned once a strategy gives up.
type ExhaustedError struct {
	// Attempts is the number of times the operation ran.
	Attempts int
	// Err is the failure of the last attempt.
	Err error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the last cause.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Option configures Do.
type Option func(*options)

type options struct {
	notify func(attempt int, err error, delay time.Duration)
}

// WithNotify is called before waiting for the next attempt.
func WithNotify(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Do runs op until it succeeds, s gives up, or ctx is done.
//
// Errors that declare themselves non retryable (see go-errors
// RetryableError) stop immediately and are reported as exhausted after the
// attempts made so far. Context cancellation is returned as ctx.Err().
func Do(ctx context.Context, s Strategy, op func(ctx context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, s Strategy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if s == nil {
		s = None
	}

	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		delay, ok := s(attempt)
		if !ok || permanent(err) {
			return zero, &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		if o.notify != nil {
			o.notify(attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func permanent(err error) bool {
	var re *goerrors.RetryableError
	if goerrors.As(err, &re) {
		return !re.IsRetryable()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
