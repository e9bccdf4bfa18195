package state

import (
	"context"
	"sync"
	"sync/atomic"
)

// Getter computes the value of a LazyCell.
type Getter[T any] func(ctx context.Context) (*T, error)

// LazyCell is a cell whose value is computed once, on first observation.
//
// A failed computation still counts as requested. Reset clears the flag so
// the next observation computes again.
type LazyCell[T any] struct {
	cell      *Cell[T]
	getter    Getter[T]
	requested atomic.Bool
	baseCtx   context.Context
	onError   func(error)

	// mu orders Reset against result writes. gen is bumped by Reset; a
	// computation claimed under an older gen drops its result.
	mu  sync.Mutex
	gen uint64

	wg sync.WaitGroup
}

var _ Observable[int] = (*LazyCell[int])(nil)

// LazyOption configures a LazyCell.
type LazyOption[T any] func(*LazyCell[T])

// WithInitialValue pre-supplies a known value. The getter will not run
// unless the cell is Reset.
func WithInitialValue[T any](value *T) LazyOption[T] {
	return func(l *LazyCell[T]) {
		l.cell = NewCell(value)
		l.requested.Store(true)
	}
}

// WithErrorHandler receives getter failures.
func WithErrorHandler[T any](fn func(error)) LazyOption[T] {
	return func(l *LazyCell[T]) {
		l.onError = fn
	}
}

// WithBaseContext sets the context asynchronous computations run under.
func WithBaseContext[T any](ctx context.Context) LazyOption[T] {
	return func(l *LazyCell[T]) {
		l.baseCtx = ctx
	}
}

// NewLazyCell creates a lazy cell backed by getter.
func NewLazyCell[T any](getter Getter[T], opts ...LazyOption[T]) *LazyCell[T] {
	l := &LazyCell[T]{
		cell:    NewCell[T](nil),
		getter:  getter,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Value returns the current value without triggering the computation.
func (l *LazyCell[T]) Value() *T {
	return l.cell.Value()
}

// Changed implements Observable.
func (l *LazyCell[T]) Changed() <-chan struct{} {
	return l.cell.Changed()
}

// Subscribe triggers the computation if it was never requested and then
// subscribes to the underlying cell.
func (l *LazyCell[T]) Subscribe(fn func(*T)) (cancel func()) {
	l.Request()
	return l.cell.Subscribe(fn)
}

// Observe triggers the computation and returns the read-only view.
func (l *LazyCell[T]) Observe() Observable[T] {
	l.Request()
	return l.cell
}

// Request starts the computation asynchronously unless it already ran.
// It reports whether this call started it.
func (l *LazyCell[T]) Request() bool {
	gen, ok := l.claim()
	if !ok {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.compute(l.baseCtx, gen)
	}()
	return true
}

// Requested reports whether the computation was started.
func (l *LazyCell[T]) Requested() bool {
	return l.requested.Load()
}

// Wait blocks until every computation started by Request has returned.
func (l *LazyCell[T]) Wait() {
	l.wg.Wait()
}

// Reset clears the value and the requested flag. A computation still in
// flight keeps running but its result is discarded.
func (l *LazyCell[T]) Reset() {
	l.mu.Lock()
	l.gen++
	l.requested.Store(false)
	flush := l.cell.SetDeferred(nil)
	l.mu.Unlock()
	flush()
}

func (l *LazyCell[T]) claim() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.requested.CompareAndSwap(false, true) {
		return 0, false
	}
	return l.gen, true
}

func (l *LazyCell[T]) compute(ctx context.Context, gen uint64) error {
	value, err := l.getter(ctx)
	if err != nil {
		if l.onError != nil {
			l.onError(err)
		}
		return err
	}

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return nil
	}
	flush := l.cell.SetDeferred(value)
	l.mu.Unlock()
	flush()
	return nil
}

// Requester is the type-erased side of a LazyCell used by RequestBatch.
type Requester interface {
	claim() (gen uint64, ok bool)
	compute(ctx context.Context, gen uint64) error
}

// RequestBatch computes every cell that was not requested yet inside one
// shared operation. within receives a function that runs the getters and
// typically wraps it in a transaction. Cells are claimed before within runs,
// so a concurrent Subscribe never computes them a second time.
//
// Getter failures are reported to each cell's error handler; the first one
// is also returned.
func RequestBatch(ctx context.Context, within func(ctx context.Context, run func(ctx context.Context) error) error, cells ...Requester) error {
	type pending struct {
		cell Requester
		gen  uint64
	}
	claimed := make([]pending, 0, len(cells))
	for _, cell := range cells {
		if gen, ok := cell.claim(); ok {
			claimed = append(claimed, pending{cell: cell, gen: gen})
		}
	}
	if len(claimed) == 0 {
		return nil
	}

	run := func(ctx context.Context) error {
		var first error
		for _, c := range claimed {
			if err := c.cell.compute(ctx, c.gen); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	if within == nil {
		return run(ctx)
	}
	return within(ctx, run)
}
