package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelays(t *testing.T) {
	s := Delays(time.Millisecond, 2*time.Millisecond)

	d, ok := s(0)
	assert.True(t, ok)
	assert.Equal(t, time.Millisecond, d)

	d, ok = s(1)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Millisecond, d)

	_, ok = s(2)
	assert.False(t, ok)
	_, ok = s(-1)
	assert.False(t, ok)
}

func TestExponential(t *testing.T) {
	s := Exponential(10*time.Millisecond, 35*time.Millisecond, 4)
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	for i, w := range want {
		d, ok := s(i)
		require.True(t, ok, "attempt %d", i)
		assert.Equal(t, w, d, "attempt %d", i)
	}
	_, ok := s(4)
	assert.False(t, ok)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
	}{
		{"none", 1},
		{"fast", 3},
		{"standard", 4},
		{"", 4},
		{"long_tail", 6},
		{"Long-Tail", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := ByName(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.attempts, Attempts(s, 100))
		})
	}

	_, ok := ByName("forever")
	assert.False(t, ok)
}

func TestDoExhaustion(t *testing.T) {
	causes := []error{errors.New("first"), errors.New("second"), errors.New("third"), errors.New("last")}
	calls := 0
	var notified []int

	err := Do(context.Background(), Delays(0, time.Millisecond, 0), func(ctx context.Context) error {
		err := causes[calls]
		calls++
		return err
	}, WithNotify(func(attempt int, err error, delay time.Duration) {
		notified = append(notified, attempt)
	}))

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{0, 1, 2}, notified)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, causes[3])
	assert.Contains(t, err.Error(), "4 attempt(s)")
}

func TestDoValueSucceedsAfterRetries(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), Delays(0, 0, 0), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Delays(0, 0, 0), func(ctx context.Context) error {
		calls++
		return goerrors.NewNonRetryable("track removed", goerrors.CategoryNotFound)
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, 1, calls)
	assert.True(t, goerrors.IsNotFound(err))
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Delays(time.Hour), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("network down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Equal(t, 1, calls)
}

func TestDoWaitInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, Delays(time.Hour), func(ctx context.Context) error {
		return errors.New("network down")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
