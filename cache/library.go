package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/goliatone/go-repository-state/repositorycache"
)

// MemoryLibraryStore keeps library snapshots in memory for a bounded time,
// optionally in front of a persistent repositorycache.LibraryStore.
type MemoryLibraryStore struct {
	snapshots *ttlcache.Cache[string, repositorycache.Library]
	key       string
	next      repositorycache.LibraryStore
}

var _ repositorycache.LibraryStore = (*MemoryLibraryStore)(nil)

// NewMemoryLibraryStore creates a store keeping the snapshot of namespace
// for cfg.TTL. A zero TTL keeps it until invalidated. next may be nil.
func NewMemoryLibraryStore(cfg LibraryConfig, namespace string, next repositorycache.LibraryStore) *MemoryLibraryStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	return &MemoryLibraryStore{
		snapshots: ttlcache.New(
			ttlcache.WithTTL[string, repositorycache.Library](ttl),
			ttlcache.WithDisableTouchOnHit[string, repositorycache.Library](),
		),
		key:  namespace,
		next: next,
	}
}

// LoadLibrary implements repositorycache.LibraryStore.
func (s *MemoryLibraryStore) LoadLibrary(ctx context.Context) (*repositorycache.Library, error) {
	if item := s.snapshots.Get(s.key); item != nil {
		l := item.Value()
		return &l, nil
	}
	if s.next == nil {
		return nil, nil
	}
	l, err := s.next.LoadLibrary(ctx)
	if err != nil || l == nil {
		return l, err
	}
	s.snapshots.Set(s.key, *l, ttlcache.DefaultTTL)
	return l, nil
}

// StoreLibrary implements repositorycache.LibraryStore.
func (s *MemoryLibraryStore) StoreLibrary(ctx context.Context, l repositorycache.Library) error {
	if s.next != nil {
		if err := s.next.StoreLibrary(ctx, l); err != nil {
			return err
		}
	}
	s.snapshots.Set(s.key, l, ttlcache.DefaultTTL)
	return nil
}

// UpdateLibrary implements repositorycache.LibraryStore. The snapshot keeps
// its original expiry.
func (s *MemoryLibraryStore) UpdateLibrary(ctx context.Context, ids []string, saved bool) error {
	if s.next != nil {
		if err := s.next.UpdateLibrary(ctx, ids, saved); err != nil {
			return err
		}
	}
	item := s.snapshots.Get(s.key)
	if item == nil {
		return nil
	}
	ttl := ttlcache.NoTTL
	if !item.ExpiresAt().IsZero() {
		ttl = time.Until(item.ExpiresAt())
		if ttl <= 0 {
			s.snapshots.Delete(s.key)
			return nil
		}
	}
	s.snapshots.Set(s.key, item.Value().With(ids, saved), ttl)
	return nil
}

// InvalidateLibrary implements repositorycache.LibraryStore.
func (s *MemoryLibraryStore) InvalidateLibrary(ctx context.Context) error {
	s.snapshots.Delete(s.key)
	if s.next != nil {
		return s.next.InvalidateLibrary(ctx)
	}
	return nil
}
