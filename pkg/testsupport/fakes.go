package testsupport

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-repository-state/repositorycache"
)

// Oracle is an in-memory store that records every call. It implements both
// repositorycache.LocalStore and repositorycache.RemoteSource.
type Oracle[E any] struct {
	mu     sync.Mutex
	values map[string]*E
	loads  [][]string
	stores []map[string]*E
	fails  []error
	gate   chan struct{}
}

// NewOracle creates an oracle holding values.
func NewOracle[E any](values map[string]E) *Oracle[E] {
	o := &Oracle[E]{values: make(map[string]*E, len(values))}
	for id, v := range values {
		o.values[id] = &v
	}
	return o
}

// Load implements repositorycache.LocalStore.
func (o *Oracle[E]) Load(ctx context.Context, ids []string) ([]*E, error) {
	if err := o.enter(ctx, ids); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*E, len(ids))
	for i, id := range ids {
		out[i] = o.values[id]
	}
	return out, nil
}

// Fetch implements repositorycache.RemoteSource.
func (o *Oracle[E]) Fetch(ctx context.Context, ids []string) ([]*E, error) {
	return o.Load(ctx, ids)
}

// Store implements repositorycache.LocalStore.
func (o *Oracle[E]) Store(_ context.Context, values map[string]*E) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stores = append(o.stores, values)
	for id, v := range values {
		o.values[id] = v
	}
	return nil
}

// Put sets a value without recording a call.
func (o *Oracle[E]) Put(id string, v E) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[id] = &v
}

// Value returns the stored value of id.
func (o *Oracle[E]) Value(id string) *E {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.values[id]
}

// FailNext makes the next len(errs) loads fail with errs, in order.
func (o *Oracle[E]) FailNext(errs ...error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails = append(o.fails, errs...)
}

// Block makes loads wait until the returned func is called.
func (o *Oracle[E]) Block() (release func()) {
	gate := make(chan struct{})
	o.mu.Lock()
	o.gate = gate
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			if o.gate == gate {
				o.gate = nil
			}
			o.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the ids of every Load or Fetch call, in call order.
func (o *Oracle[E]) Calls() [][]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]string, len(o.loads))
	for i, ids := range o.loads {
		out[i] = slices.Clone(ids)
	}
	return out
}

// CallCount returns the number of Load or Fetch calls.
func (o *Oracle[E]) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.loads)
}

// Stores returns every Store call.
func (o *Oracle[E]) Stores() []map[string]*E {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.stores)
}

func (o *Oracle[E]) enter(ctx context.Context, ids []string) error {
	o.mu.Lock()
	o.loads = append(o.loads, slices.Clone(ids))
	gate := o.gate
	var err error
	if len(o.fails) > 0 {
		err = o.fails[0]
		o.fails = o.fails[1:]
	}
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SavedRemote is an in-memory repositorycache.SavedRemote.
type SavedRemote struct {
	mu      sync.Mutex
	saved   map[string]bool
	pushes  int
	fetches int
	libs    int
	fails   []error
}

var _ repositorycache.SavedRemote = (*SavedRemote)(nil)

// NewSavedRemote creates a remote where ids are saved.
func NewSavedRemote(ids ...string) *SavedRemote {
	r := &SavedRemote{saved: make(map[string]bool, len(ids))}
	for _, id := range ids {
		r.saved[id] = true
	}
	return r
}

// FailNext makes the next len(errs) calls of any kind fail.
func (r *SavedRemote) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, errs...)
}

// FetchIsSaved implements repositorycache.SavedRemote.
func (r *SavedRemote) FetchIsSaved(_ context.Context, ids []string) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if err := r.failLocked(); err != nil {
		return nil, err
	}
	out := make([]bool, len(ids))
	for i, id := range ids {
		out[i] = r.saved[id]
	}
	return out, nil
}

// PushSaved implements repositorycache.SavedRemote.
func (r *SavedRemote) PushSaved(_ context.Context, ids []string, saved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes++
	if err := r.failLocked(); err != nil {
		return err
	}
	for _, id := range ids {
		if saved {
			r.saved[id] = true
		} else {
			delete(r.saved, id)
		}
	}
	return nil
}

// FetchLibrary implements repositorycache.SavedRemote.
func (r *SavedRemote) FetchLibrary(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs++
	if err := r.failLocked(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(r.saved))
	for id := range r.saved {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// Counts returns the number of FetchIsSaved, PushSaved and FetchLibrary calls.
func (r *SavedRemote) Counts() (fetches, pushes, libraries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches, r.pushes, r.libs
}

func (r *SavedRemote) failLocked() error {
	if len(r.fails) == 0 {
		return nil
	}
	err := r.fails[0]
	r.fails = r.fails[1:]
	return err
}

// LibraryStore is an in-memory repositorycache.LibraryStore.
type LibraryStore struct {
	mu       sync.Mutex
	snapshot *repositorycache.Library
	loads    int
}

var _ repositorycache.LibraryStore = (*LibraryStore)(nil)

// NewLibraryStore creates a store, seeded with a snapshot of ids when ids is
// not nil.
func NewLibraryStore(ids []string, updatedAt time.Time) *LibraryStore {
	s := &LibraryStore{}
	if ids != nil {
		l := repositorycache.NewLibrary(ids, updatedAt)
		s.snapshot = &l
	}
	return s
}

// LoadLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) LoadLibrary(context.Context) (*repositorycache.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.snapshot == nil {
		return nil, nil
	}
	l := s.snapshot.With(nil, true)
	return &l, nil
}

// StoreLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) StoreLibrary(_ context.Context, l repositorycache.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l = l.With(nil, true)
	s.snapshot = &l
	return nil
}

// UpdateLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) UpdateLibrary(_ context.Context, ids []string, saved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	l := s.snapshot.With(ids, saved)
	s.snapshot = &l
	return nil
}

// InvalidateLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) InvalidateLibrary(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return nil
}

// Snapshot returns the stored library, nil when none is stored.
func (s *LibraryStore) Snapshot() *repositorycache.Library {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	l := s.snapshot.With(nil, true)
	return &l
}

// Loads returns the number of LoadLibrary calls.
func (s *LibraryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// RecordingSink keeps every event it receives.
type RecordingSink struct {
	mu     sync.Mutex
	events []repositorycache.Event
}

// Emit implements repositorycache.EventSink.
func (s *RecordingSink) Emit(_ context.Context, e repositorycache.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns the recorded events in order.
func (s *RecordingSink) Events() []repositorycache.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Kinds returns the kinds of the recorded events in order.
func (s *RecordingSink) Kinds() []repositorycache.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repositorycache.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (s *RecordingSink) Count(kind repositorycache.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops the recorded events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
