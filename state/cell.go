package state

import (
	"context"
	"sync"
)

// Observable is the read-only view of a value holder that notifies on change.
type Observable[V any] interface {
	// Value returns the current value, nil when absent.
	Value() *V
	// Subscribe registers fn. fn receives the current value right away and
	// every later change. The returned func removes the subscription.
	Subscribe(fn func(*V)) (cancel func())
	// Changed returns a channel that is closed on the next change.
	Changed() <-chan struct{}
}

// Cell holds a nullable value plus its subscribers.
// It is safe for concurrent use.
type Cell[V any] struct {
	mu      sync.RWMutex
	value   *V
	version uint64
	changed chan struct{}
	subs    map[uint64]func(*V)
	nextSub uint64

	// deliverMu serializes callbacks so subscribers never observe an older
	// value after a newer one.
	deliverMu sync.Mutex
	delivered uint64
}

var _ Observable[int] = (*Cell[int])(nil)

// NewCell creates a cell holding initial.
func NewCell[V any](initial *V) *Cell[V] {
	return &Cell[V]{
		value:   initial,
		changed: make(chan struct{}),
		subs:    make(map[uint64]func(*V)),
	}
}

// Value returns the current value.
func (c *Cell[V]) Value() *V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the current value and notifies subscribers.
func (c *Cell[V]) Set(value *V) {
	c.mu.Lock()
	c.value = value
	c.bumpLocked()
	c.mu.Unlock()

	c.deliver()
}

// SetDeferred stores value like Set but holds subscriber callbacks until
// flush is called. Owners use it to mutate under their own lock and notify
// after releasing it. Changed fires immediately.
func (c *Cell[V]) SetDeferred(value *V) (flush func()) {
	c.mu.Lock()
	c.value = value
	c.bumpLocked()
	c.mu.Unlock()

	return c.deliver
}

// Update applies fn to the current value atomically and returns the result.
func (c *Cell[V]) Update(fn func(current *V) *V) *V {
	c.mu.Lock()
	next := fn(c.value)
	c.value = next
	c.bumpLocked()
	c.mu.Unlock()

	c.deliver()
	return next
}

// Subscribe implements Observable.
func (c *Cell[V]) Subscribe(fn func(*V)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	c.deliverMu.Lock()
	fn(c.Value())
	c.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Changed implements Observable.
func (c *Cell[V]) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Subscribers returns the number of active subscriptions.
func (c *Cell[V]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Wait blocks until pred holds for the current value or ctx is done.
func (c *Cell[V]) Wait(ctx context.Context, pred func(*V) bool) (*V, error) {
	return Await[V](ctx, c, pred)
}

// Await blocks until pred holds for the value of o or ctx is done.
func Await[V any](ctx context.Context, o Observable[V], pred func(*V) bool) (*V, error) {
	for {
		changed := o.Changed()
		v := o.Value()
		if pred(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-changed:
		}
	}
}

func (c *Cell[V]) bumpLocked() {
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Cell[V]) deliver() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.RLock()
	if c.version == c.delivered {
		c.mu.RUnlock()
		return
	}
	c.delivered = c.version
	value := c.value
	subs := make([]func(*V), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(value)
	}
}
