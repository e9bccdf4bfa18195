package repositorycache

import "context"

// LocalStore is the local cache tier. Load returns one entry per id, in
// order, nil for misses. Store persists non-nil values keyed by id.
type LocalStore[E any] interface {
	Load(ctx context.Context, ids []string) ([]*E, error)
	Store(ctx context.Context, values map[string]*E) error
}

// RemoteSource is the source of truth. Fetch returns one entry per id, in
// order, nil for ids the remote reports as missing.
type RemoteSource[E any] interface {
	Fetch(ctx context.Context, ids []string) ([]*E, error)
}

// Transactor is implemented by local stores that can run several reads in
// one transaction. The transaction travels in the context passed to fn.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LocalStoreFuncs adapts a pair of functions to LocalStore. A nil StoreFn
// makes Store a no-op.
type LocalStoreFuncs[E any] struct {
	LoadFn  func(ctx context.Context, ids []string) ([]*E, error)
	StoreFn func(ctx context.Context, values map[string]*E) error
}

// Load implements LocalStore.
func (f LocalStoreFuncs[E]) Load(ctx context.Context, ids []string) ([]*E, error) {
	return f.LoadFn(ctx, ids)
}

// Store implements LocalStore.
func (f LocalStoreFuncs[E]) Store(ctx context.Context, values map[string]*E) error {
	if f.StoreFn == nil {
		return nil
	}
	return f.StoreFn(ctx, values)
}

// RemoteFunc adapts a positional fetch function to RemoteSource.
type RemoteFunc[E any] func(ctx context.Context, ids []string) ([]*E, error)

// Fetch implements RemoteSource.
func (f RemoteFunc[E]) Fetch(ctx context.Context, ids []string) ([]*E, error) {
	return f(ctx, ids)
}

// RemoteMapFunc adapts a fetch function that omits missing ids. Omitted
// ids are reinserted as nil in request order.
type RemoteMapFunc[E any] func(ctx context.Context, ids []string) (map[string]*E, error)

// Fetch implements RemoteSource.
func (f RemoteMapFunc[E]) Fetch(ctx context.Context, ids []string) ([]*E, error) {
	found, err := f(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*E, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}
