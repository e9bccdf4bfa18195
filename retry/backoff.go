package retry

import (
	"strings"
	"time"
)

// Strategy maps a zero based attempt number to the delay before the next
// attempt. ok=false stops retrying.
type Strategy func(attempt int) (delay time.Duration, ok bool)

// Delays returns a strategy that waits delays[attempt] and stops once the
// sequence is exhausted. With N delays an operation runs at most N+1 times.
func Delays(delays ...time.Duration) Strategy {
	seq := append([]time.Duration(nil), delays...)
	return func(attempt int) (time.Duration, bool) {
		if attempt < 0 || attempt >= len(seq) {
			return 0, false
		}
		return seq[attempt], true
	}
}

// Exponential doubles base on every attempt, capped at max, for at most
// retries retries.
func Exponential(base, max time.Duration, retries int) Strategy {
	return func(attempt int) (time.Duration, bool) {
		if attempt < 0 || attempt >= retries {
			return 0, false
		}
		delay := base
		for i := 0; i < attempt && delay < max; i++ {
			delay *= 2
		}
		if delay > max {
			delay = max
		}
		return delay, true
	}
}

// None never retries.
var None Strategy = Delays()

var (
	// Fast suits interactive reads where a stale screen beats a slow one.
	Fast = Delays(100*time.Millisecond, 250*time.Millisecond)

	// Standard is the default for remote reads and writes.
	Standard = Delays(500*time.Millisecond, time.Second, 2*time.Second)

	// LongTail keeps trying through longer outages, for background syncs.
	LongTail = Delays(time.Second, 2*time.Second, 5*time.Second, 10*time.Second, 30*time.Second)
)

// ByName resolves a preset by its config name.
func ByName(name string) (Strategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return None, true
	case "fast":
		return Fast, true
	case "", "standard":
		return Standard, true
	case "long_tail", "longtail", "long-tail":
		return LongTail, true
	}
	return nil, false
}

// Attempts reports how many times s lets an always failing operation run.
// Strategies that never stop are reported as limit.
func Attempts(s Strategy, limit int) int {
	n := 1
	for attempt := 0; n < limit; attempt++ {
		if _, ok := s(attempt); !ok {
			break
		}
		n++
	}
	return n
}
