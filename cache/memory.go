package cache

import (
	"context"

	"github.com/goliatone/go-repository-state/repositorycache"
)

// MemoryStore is a repositorycache.LocalStore held in a MemoryClient. When
// a lower tier is set, misses are read from it and promoted, and writes go
// to both.
type MemoryStore[E any] struct {
	client    *MemoryClient
	namespace string
	next      repositorycache.LocalStore[E]
}

var (
	_ repositorycache.LocalStore[struct{}] = (*MemoryStore[struct{}])(nil)
	_ repositorycache.Transactor           = (*MemoryStore[struct{}])(nil)
)

// NewMemoryStore creates a store for namespace. next may be nil.
func NewMemoryStore[E any](client *MemoryClient, namespace string, next repositorycache.LocalStore[E]) *MemoryStore[E] {
	return &MemoryStore[E]{client: client, namespace: namespace, next: next}
}

// Namespace returns the namespace the store writes under.
func (s *MemoryStore[E]) Namespace() string {
	return s.namespace
}

// Load implements repositorycache.LocalStore.
func (s *MemoryStore[E]) Load(ctx context.Context, ids []string) ([]*E, error) {
	out := make([]*E, len(ids))
	var misses []int
	for i, id := range ids {
		if v, ok := s.client.inner.Get(s.namespace, id); ok {
			if e, ok := v.(*E); ok {
				out[i] = e
				continue
			}
		}
		misses = append(misses, i)
	}
	if s.next == nil || len(misses) == 0 {
		return out, nil
	}

	missing := make([]string, len(misses))
	for j, i := range misses {
		missing[j] = ids[i]
	}
	lower, err := s.next.Load(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, i := range misses {
		if j >= len(lower) || lower[j] == nil {
			continue
		}
		out[i] = lower[j]
		s.client.inner.Set(s.namespace, ids[i], lower[j])
	}
	return out, nil
}

// Store implements repositorycache.LocalStore. The lower tier is written
// first so that a failed write leaves the memory tier untouched.
func (s *MemoryStore[E]) Store(ctx context.Context, values map[string]*E) error {
	if s.next != nil {
		if err := s.next.Store(ctx, values); err != nil {
			return err
		}
	}
	for id, v := range values {
		if v == nil {
			s.client.inner.Delete(s.namespace, id)
			continue
		}
		s.client.inner.Set(s.namespace, id, v)
	}
	return nil
}

// RunInTx implements repositorycache.Transactor by delegating to the lower
// tier when it is transactional.
func (s *MemoryStore[E]) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := s.next.(repositorycache.Transactor); ok {
		return tx.RunInTx(ctx, fn)
	}
	return fn(ctx)
}

// Invalidate drops ids from the memory tier only.
func (s *MemoryStore[E]) Invalidate(ids ...string) {
	s.client.inner.Delete(s.namespace, ids...)
}

// InvalidateAll drops the namespace from the memory tier only.
func (s *MemoryStore[E]) InvalidateAll() int {
	return s.client.inner.DeleteNamespace(s.namespace)
}
