package repositorycache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-repository-state/resource"
	"github.com/goliatone/go-repository-state/retry"
	"github.com/goliatone/go-repository-state/state"
)

// SavedRemote is the remote side of a saved flag collection, such as the
// liked tracks of a user.
type SavedRemote interface {
	// FetchIsSaved returns one flag per id, in order.
	FetchIsSaved(ctx context.Context, ids []string) ([]bool, error)
	PushSaved(ctx context.Context, ids []string, saved bool) error
	FetchLibrary(ctx context.Context) ([]string, error)
}

// SavedRepository tracks a saved flag per id plus the library, the set of
// every saved id.
//
// After a successful SetSaved the per id cells, the local cache, the loaded
// library and the stored library snapshot all reflect the new flags. The
// snapshot timestamp is left alone since it records the last full sync.
// A library fetch that started before a SetSaved never undoes it.
type SavedRepository struct {
	*Repository[bool]

	saved        SavedRemote
	libraryStore LibraryStore
	library      *resource.Cached[Library]

	// mu orders library store writes. changes holds every SetSaved made
	// while at least one library fetch is outstanding.
	mu       sync.Mutex
	seq      uint64
	fetching int
	changes  []savedChange
}

type savedChange struct {
	seq   uint64
	ids   []string
	saved bool
}

// NewSaved creates a SavedRepository.
func NewSaved(local LocalStore[bool], libraryStore LibraryStore, remote SavedRemote, opts ...Option) *SavedRepository {
	s := &SavedRepository{
		saved:        remote,
		libraryStore: libraryStore,
	}
	s.Repository = New[bool](local, RemoteFunc[bool](s.fetchIsSaved), append([]Option{WithName("saved")}, opts...)...)

	s.library = resource.New(s.loadLibraryCached, s.loadLibraryRemote,
		resource.WithName(s.cfg.name+"_library"),
		resource.WithLogger(s.cfg.logger),
		resource.WithBaseContext(s.cfg.baseCtx),
		resource.WithErrorHandler(func(err error) {
			s.cfg.emit(s.cfg.baseCtx, Event{Kind: EventFetchFailed, Err: err})
		}),
	)
	return s
}

func (s *SavedRepository) fetchIsSaved(ctx context.Context, ids []string) ([]*bool, error) {
	flags, err := s.saved.FetchIsSaved(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(flags) != len(ids) {
		return nil, lengthMismatch("remote", len(ids), len(flags))
	}
	out := make([]*bool, len(flags))
	for i := range flags {
		out[i] = &flags[i]
	}
	return out, nil
}

// SavedStateOf returns the live saved flag of id.
func (s *SavedRepository) SavedStateOf(ctx context.Context, id string, opts ...ObserveOption) (state.Observable[bool], error) {
	return s.ObserveAsState(ctx, id, opts...)
}

// SavedStatesOf returns the live saved flags of ids.
func (s *SavedRepository) SavedStatesOf(ctx context.Context, ids []string, opts ...ObserveOption) ([]state.Observable[bool], error) {
	return s.ObserveAsStates(ctx, ids, opts...)
}

// IsSaved reads the flag of id, cache first. Unknown ids are not saved.
func (s *SavedRepository) IsSaved(ctx context.Context, id string, opts ...GetOption) (bool, error) {
	v, err := s.Get(ctx, id, opts...)
	if err != nil {
		return false, err
	}
	return v != nil && *v, nil
}

// Save marks id as saved.
func (s *SavedRepository) Save(ctx context.Context, id string) error {
	return s.SetSaved(ctx, []string{id}, true)
}

// Unsave marks id as not saved.
func (s *SavedRepository) Unsave(ctx context.Context, id string) error {
	return s.SetSaved(ctx, []string{id}, false)
}

// SetSaved pushes the flag to the remote, then updates the local cache, the
// live cells and the library.
func (s *SavedRepository) SetSaved(ctx context.Context, ids []string, saved bool) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	opID := uuid.NewString()
	logger := s.cfg.logger.With("op", opID)
	for _, chunk := range chunkIDs(ids, s.cfg.batchSize) {
		err := retry.Do(ctx, s.cfg.strategy, func(ctx context.Context) error {
			if err := s.wait(ctx); err != nil {
				return err
			}
			return s.saved.PushSaved(ctx, chunk, saved)
		}, retry.WithNotify(func(attempt int, err error, delay time.Duration) {
			logger.Warn("push saved failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)
		}))
		if err != nil {
			return remoteError(s.cfg.name, TextCodeRemotePush, opID, err)
		}
	}

	if err := s.recordChange(ctx, ids, saved); err != nil {
		return cacheWriteError(s.cfg.name, err)
	}

	values := make(map[string]*bool, len(ids))
	for _, id := range ids {
		flag := saved
		values[id] = &flag
	}
	if err := s.local.Store(ctx, values); err != nil {
		return cacheWriteError(s.cfg.name, err)
	}
	for id, v := range values {
		s.UpdateLiveState(id, v)
	}

	s.library.Update(func(l Library) Library {
		return l.With(ids, saved)
	})

	s.cfg.emit(ctx, Event{Kind: EventSetSaved, IDs: ids, Saved: saved, Found: len(ids), OpID: opID})
	return nil
}

// GetLibrary returns the library. It is served from memory or the library
// store when possible and fetched from the remote otherwise. WithoutCache
// forces a remote sync.
func (s *SavedRepository) GetLibrary(ctx context.Context, opts ...GetOption) (Library, error) {
	o := newGetOptions(opts)

	var err error
	if o.allowCache {
		err = s.library.EnsureLoaded(ctx)
	} else {
		err = s.library.Refresh(ctx)
	}
	if err != nil {
		return Library{}, err
	}

	if l := s.library.Get(); l != nil {
		return *l, nil
	}
	return NewLibrary(nil, time.Time{}), nil
}

// Library is the observable library. It stays empty until loaded through
// GetLibrary or RefreshLibrary.
func (s *SavedRepository) Library() state.Observable[Library] {
	return s.library.Value()
}

// RefreshLibrary starts a remote library sync in the background.
func (s *SavedRepository) RefreshLibrary() {
	s.library.RefreshFromRemote()
}

// InvalidateLibrary drops the loaded and the stored library. Per id flags
// are left alone.
func (s *SavedRepository) InvalidateLibrary(ctx context.Context) error {
	s.library.Invalidate()
	if err := s.libraryStore.InvalidateLibrary(ctx); err != nil {
		return cacheWriteError(s.cfg.name, err)
	}
	s.cfg.emit(ctx, Event{Kind: EventInvalidateLibrary})
	return nil
}

// LibraryUpdated returns the time of the last full library sync, nil when
// the library was never synced or was invalidated since.
func (s *SavedRepository) LibraryUpdated(ctx context.Context) (*time.Time, error) {
	if l := s.library.Get(); l != nil {
		return timestamp(l.UpdatedAt), nil
	}
	l, err := s.libraryStore.LoadLibrary(ctx)
	if err != nil {
		return nil, cacheReadError(s.cfg.name, err)
	}
	if l == nil {
		return nil, nil
	}
	return timestamp(l.UpdatedAt), nil
}

// WaitLibrary blocks until no library load is in flight.
func (s *SavedRepository) WaitLibrary(ctx context.Context) error {
	return s.library.Wait(ctx)
}

func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *SavedRepository) loadLibraryCached(ctx context.Context) (*Library, error) {
	l, err := s.libraryStore.LoadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	found := 0
	if l != nil {
		found = l.Len()
	}
	s.cfg.emit(ctx, Event{Kind: EventQueryLibraryCached, Found: found})
	return l, nil
}

// recordChange applies a pushed change to the stored snapshot and logs it
// for the library fetches still in flight.
func (s *SavedRepository) recordChange(ctx context.Context, ids []string, saved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.fetching > 0 {
		s.changes = append(s.changes, savedChange{seq: s.seq, ids: ids, saved: saved})
	}
	return s.libraryStore.UpdateLibrary(ctx, ids, saved)
}

func (s *SavedRepository) beginLibraryFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching++
	return s.seq
}

func (s *SavedRepository) endLibraryFetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching--
	if s.fetching == 0 {
		s.changes = nil
	}
}

// isSavedSince reports the flag of id in l, overridden by any change made
// after the fetch that produced l started.
func (s *SavedRepository) isSavedSince(l Library, start uint64, id string) bool {
	saved := l.Contains(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes {
		if c.seq > start && slices.Contains(c.ids, id) {
			saved = c.saved
		}
	}
	return saved
}

func (s *SavedRepository) loadLibraryRemote(ctx context.Context) (*Library, error) {
	opID := uuid.NewString()
	logger := s.cfg.logger.With("op", opID)
	start := s.beginLibraryFetch()
	defer s.endLibraryFetch()

	ids, err := retry.DoValue(ctx, s.cfg.strategy, func(ctx context.Context) ([]string, error) {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		return s.saved.FetchLibrary(ctx)
	}, retry.WithNotify(func(attempt int, err error, delay time.Duration) {
		logger.Warn("library fetch failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)
	}))
	if err != nil {
		return nil, remoteError(s.cfg.name, TextCodeRemoteFetch, opID, err)
	}

	l := NewLibrary(ids, s.cfg.now())
	s.mu.Lock()
	for _, c := range s.changes {
		if c.seq > start {
			l = l.With(c.ids, c.saved)
		}
	}
	err = s.libraryStore.StoreLibrary(ctx, l)
	s.mu.Unlock()
	if err != nil {
		return nil, cacheWriteError(s.cfg.name, err)
	}

	s.UpdateLiveStates(func(id string, _ *bool) *bool {
		saved := s.isSavedSince(l, start, id)
		return &saved
	})
	s.cfg.emit(ctx, Event{Kind: EventQueryLibraryRemote, Found: l.Len(), OpID: opID})
	return &l, nil
}
