package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCellSetAndValue(t *testing.T) {
	c := NewCell[int](nil)
	assert.Nil(t, c.Value())

	c.Set(ptr(3))
	require.NotNil(t, c.Value())
	assert.Equal(t, 3, *c.Value())

	got := c.Update(func(cur *int) *int { return ptr(*cur + 1) })
	assert.Equal(t, 4, *got)
	assert.Equal(t, 4, *c.Value())
}

func TestCellSubscribeReceivesCurrentAndChanges(t *testing.T) {
	c := NewCell(ptr("a"))

	var mu sync.Mutex
	var seen []string
	cancel := c.Subscribe(func(v *string) {
		mu.Lock()
		defer mu.Unlock()
		if v == nil {
			seen = append(seen, "<nil>")
			return
		}
		seen = append(seen, *v)
	})

	c.Set(ptr("b"))
	c.Set(nil)
	cancel()
	c.Set(ptr("c"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "<nil>"}, seen)
	assert.Equal(t, 0, c.Subscribers())
}

func TestCellLastDeliveredIsLatest(t *testing.T) {
	c := NewCell[int](nil)

	var mu sync.Mutex
	var last *int
	c.Subscribe(func(v *int) {
		mu.Lock()
		last = v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(ptr(i))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, last)
	assert.Equal(t, *c.Value(), *last)
}

func TestCellWait(t *testing.T) {
	c := NewCell[int](nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Set(ptr(1))
		c.Set(ptr(2))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := c.Wait(ctx, func(v *int) bool { return v != nil && *v == 2 })
	require.NoError(t, err)
	assert.Equal(t, 2, *v)
}

func TestCellWaitContextDone(t *testing.T) {
	c := NewCell[int](nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, func(v *int) bool { return v != nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCellSetDeferredNotifiesOnFlush(t *testing.T) {
	c := NewCell(ptr(1))

	var seen []int
	c.Subscribe(func(v *int) { seen = append(seen, *v) })
	changed := c.Changed()

	flush := c.SetDeferred(ptr(2))
	assert.Equal(t, 2, *c.Value())
	select {
	case <-changed:
	default:
		t.Fatal("Changed did not fire before flush")
	}
	assert.Equal(t, []int{1}, seen)

	flush()
	flush()
	assert.Equal(t, []int{1, 2}, seen)
}
