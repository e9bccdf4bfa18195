package repositorycache

import (
	"context"
	"slices"
	"time"
)

// Library is the full set of saved ids, synced as one unit.
type Library struct {
	IDs map[string]struct{}
	// UpdatedAt is the time of the last full remote sync.
	UpdatedAt time.Time
}

// NewLibrary builds a library from ids.
func NewLibrary(ids []string, updatedAt time.Time) Library {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Library{IDs: set, UpdatedAt: updatedAt}
}

// Contains reports whether id is saved.
func (l Library) Contains(id string) bool {
	_, ok := l.IDs[id]
	return ok
}

// Len returns the number of saved ids.
func (l Library) Len() int {
	return len(l.IDs)
}

// Slice returns the ids sorted.
func (l Library) Slice() []string {
	out := make([]string, 0, len(l.IDs))
	for id := range l.IDs {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// With returns a copy with ids added or removed. UpdatedAt is kept.
func (l Library) With(ids []string, saved bool) Library {
	next := make(map[string]struct{}, len(l.IDs)+len(ids))
	for id := range l.IDs {
		next[id] = struct{}{}
	}
	for _, id := range ids {
		if saved {
			next[id] = struct{}{}
		} else {
			delete(next, id)
		}
	}
	return Library{IDs: next, UpdatedAt: l.UpdatedAt}
}

// LibraryStore persists the library snapshot.
type LibraryStore interface {
	// LoadLibrary returns nil when no snapshot is stored.
	LoadLibrary(ctx context.Context) (*Library, error)
	// StoreLibrary replaces the snapshot.
	StoreLibrary(ctx context.Context, library Library) error
	// UpdateLibrary adds or removes ids from the stored snapshot. It does
	// nothing when no snapshot is stored.
	UpdateLibrary(ctx context.Context, ids []string, saved bool) error
	// InvalidateLibrary drops the snapshot.
	InvalidateLibrary(ctx context.Context) error
}
