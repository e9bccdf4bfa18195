package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyCellComputesOnFirstSubscription(t *testing.T) {
	var calls atomic.Int32
	l := NewLazyCell(func(ctx context.Context) (*string, error) {
		calls.Add(1)
		return ptr("loaded"), nil
	})

	assert.Nil(t, l.Value())
	assert.False(t, l.Requested())
	assert.Equal(t, int32(0), calls.Load())

	for i := 0; i < 5; i++ {
		cancel := l.Subscribe(func(*string) {})
		defer cancel()
	}
	l.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, l.Value())
	assert.Equal(t, "loaded", *l.Value())
}

func TestLazyCellInitialValueSkipsGetter(t *testing.T) {
	l := NewLazyCell(func(ctx context.Context) (*int, error) {
		t.Fatal("getter must not run")
		return nil, nil
	}, WithInitialValue(ptr(42)))

	v, err := Await[int](context.Background(), l.Observe(), func(v *int) bool { return v != nil })
	require.NoError(t, err)
	assert.Equal(t, 42, *v)
	assert.False(t, l.Request())
}

func TestLazyCellFailureIsNotRetriedUntilReset(t *testing.T) {
	var calls atomic.Int32
	var reported atomic.Int32
	boom := errors.New("boom")

	l := NewLazyCell(func(ctx context.Context) (*int, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return ptr(1), nil
	}, WithErrorHandler[int](func(err error) {
		assert.ErrorIs(t, err, boom)
		reported.Add(1)
	}))

	l.Request()
	l.Wait()
	assert.False(t, l.Request())
	l.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), reported.Load())
	assert.Nil(t, l.Value())

	l.Reset()
	assert.True(t, l.Request())
	l.Wait()
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, *l.Value())
}

func TestRequestBatchRunsOnceWithinSharedContext(t *testing.T) {
	type txKey struct{}

	var calls atomic.Int32
	getter := func(n int) Getter[int] {
		return func(ctx context.Context) (*int, error) {
			calls.Add(1)
			if ctx.Value(txKey{}) != "tx" {
				return nil, errors.New("getter ran outside the shared context")
			}
			return ptr(n), nil
		}
	}

	a := NewLazyCell(getter(1))
	b := NewLazyCell(getter(2))
	s := NewLazyCell(func(ctx context.Context) (*string, error) {
		calls.Add(1)
		return ptr("s"), nil
	})
	already := NewLazyCell(getter(3))
	already.Request()
	already.Wait()
	calls.Store(0)

	withins := 0
	within := func(ctx context.Context, run func(context.Context) error) error {
		withins++
		return run(context.WithValue(ctx, txKey{}, "tx"))
	}

	err := RequestBatch(context.Background(), within, a, b, s, already)
	require.NoError(t, err)
	assert.Equal(t, 1, withins)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, *a.Value())
	assert.Equal(t, 2, *b.Value())
	assert.Equal(t, "s", *s.Value())

	// everything is claimed now
	err = RequestBatch(context.Background(), within, a, b, s)
	require.NoError(t, err)
	assert.Equal(t, 1, withins)
}

func TestRequestBatchRacingSubscribersComputeOnce(t *testing.T) {
	var calls atomic.Int32
	cells := make([]*LazyCell[int], 20)
	reqs := make([]Requester, len(cells))
	for i := range cells {
		cells[i] = NewLazyCell(func(ctx context.Context) (*int, error) {
			calls.Add(1)
			time.Sleep(time.Millisecond)
			return ptr(1), nil
		})
		reqs[i] = cells[i]
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = RequestBatch(context.Background(), nil, reqs...)
	}()
	go func() {
		defer wg.Done()
		for _, c := range cells {
			c.Subscribe(func(*int) {})
		}
	}()
	wg.Wait()
	for _, c := range cells {
		c.Wait()
	}

	assert.Equal(t, int32(len(cells)), calls.Load())
}

func TestLazyCellResetDropsInFlightResult(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	started := make(chan struct{})
	l := NewLazyCell(func(ctx context.Context) (*string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-gate
			return ptr("stale"), nil
		}
		return ptr("fresh"), nil
	})

	require.True(t, l.Request())
	<-started
	l.Reset()
	require.True(t, l.Request())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := l.cell.Wait(ctx, func(v *string) bool { return v != nil && *v == "fresh" })
	require.NoError(t, err)

	close(gate)
	l.Wait()
	assert.Equal(t, int32(2), calls.Load())
	require.NotNil(t, l.Value())
	assert.Equal(t, "fresh", *l.Value())
}
