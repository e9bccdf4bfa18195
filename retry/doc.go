// Package retry provides backoff strategies and a context aware retry loop.
//
// A Strategy is a plain function from attempt number to delay, so presets,
// fixed sequences and exponential schedules compose without wrappers:
//
//	err := retry.Do(ctx, retry.Standard, func(ctx context.Context) error {
//		return client.Push(ctx, id, saved)
//	})
//
// When every attempt fails Do returns an *ExhaustedError that reports the
// number of attempts and wraps the last failure.
package retry
