package repositorycache

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-repository-state/retry"
	"github.com/goliatone/go-repository-state/state"
)

// Repository mediates between a local cache and a remote source for entities
// of type E keyed by string ids, and keeps one live observable cell per
// observed id.
//
// Batched operations are the primitives; singular ones call them with a
// single id.
type Repository[E any] struct {
	cfg    config
	local  LocalStore[E]
	remote RemoteSource[E]
	states *state.WeakContainer[string, E]

	wg sync.WaitGroup
}

// New creates a repository over local and remote.
func New[E any](local LocalStore[E], remote RemoteSource[E], opts ...Option) *Repository[E] {
	return &Repository[E]{
		cfg:    newConfig(entityName[E](), opts),
		local:  local,
		remote: remote,
		states: state.NewWeakContainer[string, E](),
	}
}

// Name returns the repository name used in logs and events.
func (r *Repository[E]) Name() string {
	return r.cfg.name
}

// GetCachedMany reads ids from the local cache only. The result has one
// entry per id, nil for misses.
func (r *Repository[E]) GetCachedMany(ctx context.Context, ids []string) ([]*E, error) {
	if len(ids) == 0 {
		return []*E{}, nil
	}

	values, err := r.local.Load(ctx, ids)
	if err == nil && len(values) != len(ids) {
		err = lengthMismatch("local cache", len(ids), len(values))
	}
	if err != nil {
		return nil, cacheReadError(r.cfg.name, err)
	}

	r.cfg.emit(ctx, Event{Kind: EventQueryCached, IDs: ids, Found: countFound(values)})
	return values, nil
}

// GetRemoteMany fetches ids from the remote, stores the results in the local
// cache and publishes them to live cells. Repeated ids are fetched once.
func (r *Repository[E]) GetRemoteMany(ctx context.Context, ids []string) ([]*E, error) {
	if len(ids) == 0 {
		return []*E{}, nil
	}

	opID := uuid.NewString()
	unique := uniqueIDs(ids)
	logger := r.cfg.logger.With("op", opID)
	logger.Debug("remote fetch", "ids", len(unique))

	fetched := make(map[string]*E, len(unique))
	for _, chunk := range chunkIDs(unique, r.cfg.batchSize) {
		values, err := retry.DoValue(ctx, r.cfg.strategy, func(ctx context.Context) ([]*E, error) {
			if err := r.wait(ctx); err != nil {
				return nil, err
			}
			values, err := r.remote.Fetch(ctx, chunk)
			if err == nil && len(values) != len(chunk) {
				err = lengthMismatch("remote", len(chunk), len(values))
			}
			return values, err
		}, retry.WithNotify(func(attempt int, err error, delay time.Duration) {
			logger.Warn("remote fetch failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)
		}))
		if err != nil {
			return nil, remoteError(r.cfg.name, TextCodeRemoteFetch, opID, err)
		}
		for i, id := range chunk {
			fetched[id] = values[i]
		}
	}

	toStore := make(map[string]*E, len(fetched))
	for id, v := range fetched {
		if v != nil {
			toStore[id] = v
		}
	}
	if len(toStore) > 0 {
		if err := r.local.Store(ctx, toStore); err != nil {
			return nil, cacheWriteError(r.cfg.name, err)
		}
	}

	for id, v := range fetched {
		r.states.UpdateValue(id, v)
	}

	r.cfg.emit(ctx, Event{Kind: EventQueryRemote, IDs: unique, Found: len(toStore), OpID: opID})

	out := make([]*E, len(ids))
	for i, id := range ids {
		out[i] = fetched[id]
	}
	return out, nil
}

// GetMany returns one entry per id. Ids whose cached value is absent or
// rejected by the cache predicate are fetched from the remote in a single
// batch and spliced back into their positions. A cache predicate written for
// another entity type is rejected with a BadInput error.
func (r *Repository[E]) GetMany(ctx context.Context, ids []string, opts ...GetOption) ([]*E, error) {
	o := newGetOptions(opts)
	if want := reflect.TypeFor[E](); o.predicateType != nil && o.predicateType != want {
		return nil, predicateTypeError(r.cfg.name, want, o.predicateType)
	}
	out := make([]*E, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var missing []string
	if !o.allowCache {
		missing = ids
	} else {
		cached, err := r.GetCachedMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i, id := range ids {
			v := cached[i]
			if v != nil && (o.predicate == nil || o.predicate(id, v)) {
				out[i] = v
				continue
			}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	missing = uniqueIDs(missing)
	remote, err := r.GetRemoteMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*E, len(missing))
	for i, id := range missing {
		byID[id] = remote[i]
	}
	for i, id := range ids {
		if v, ok := byID[id]; ok {
			out[i] = v
		}
	}
	return out, nil
}

// GetCached is GetCachedMany for one id.
func (r *Repository[E]) GetCached(ctx context.Context, id string) (*E, error) {
	return first(r.GetCachedMany(ctx, []string{id}))
}

// GetRemote is GetRemoteMany for one id.
func (r *Repository[E]) GetRemote(ctx context.Context, id string) (*E, error) {
	return first(r.GetRemoteMany(ctx, []string{id}))
}

// Get is GetMany for one id.
func (r *Repository[E]) Get(ctx context.Context, id string, opts ...GetOption) (*E, error) {
	return first(r.GetMany(ctx, []string{id}, opts...))
}

// ObserveAsState returns the live cell for id. See ObserveAsStates.
func (r *Repository[E]) ObserveAsState(ctx context.Context, id string, opts ...ObserveOption) (state.Observable[E], error) {
	cells, err := r.ObserveAsStates(ctx, []string{id}, opts...)
	if err != nil {
		return nil, err
	}
	return cells[0], nil
}

// ObserveAsStates returns the live cell of every id, creating missing cells
// from one local cache read. Unless WithoutFetchMissing is given, the new
// cells the cache could not fill are fetched from the remote in one
// background call whose result lands in the same cells.
//
// The same cell is returned for an id for as long as somebody holds it.
// Background failures go to the logger and the event sink as
// EventFetchFailed; the cells stay empty.
func (r *Repository[E]) ObserveAsStates(ctx context.Context, ids []string, opts ...ObserveOption) ([]state.Observable[E], error) {
	o := observeOptions{fetchMissing: true}
	for _, opt := range opts {
		opt(&o)
	}

	var absent []string
	for _, id := range uniqueIDs(ids) {
		if _, ok := r.states.Lookup(id); !ok {
			absent = append(absent, id)
		}
	}

	initial := make(map[string]*E, len(absent))
	if len(absent) > 0 {
		cached, err := r.GetCachedMany(ctx, absent)
		if err != nil {
			return nil, err
		}
		for i, id := range absent {
			initial[id] = cached[i]
		}
	}

	cells := r.states.GetOrCreateBatch(ids, func(id string) *E {
		return initial[id]
	}, func(created map[string]*E) {
		// cells collected between Lookup and creation were never read
		var unread []string
		for _, id := range uniqueIDs(ids) {
			if _, ok := created[id]; !ok {
				continue
			}
			if _, read := initial[id]; !read {
				unread = append(unread, id)
			}
		}
		r.fillFromCache(ctx, unread, created)

		if !o.fetchMissing {
			return
		}
		var missing []string
		for _, id := range uniqueIDs(ids) {
			if v, ok := created[id]; ok && v == nil {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			r.fetchInBackground(ctx, missing)
		}
	})

	out := make([]state.Observable[E], len(cells))
	for i, cell := range cells {
		out[i] = cell
	}
	return out, nil
}

// fillFromCache reads ids from the local cache into their live cells and
// into created. A failed read leaves them for the remote fetch.
func (r *Repository[E]) fillFromCache(ctx context.Context, ids []string, created map[string]*E) {
	if len(ids) == 0 {
		return
	}
	values, err := r.GetCachedMany(ctx, ids)
	if err != nil {
		r.cfg.logger.Warn("cache read for new cells failed", "ids", len(ids), "err", err)
		return
	}
	for i, id := range ids {
		v := values[i]
		if v == nil {
			continue
		}
		created[id] = v
		r.states.UpdateValueFunc(id, func(current *E) *E {
			if current != nil {
				return current
			}
			return v
		})
	}
}

func (r *Repository[E]) fetchInBackground(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.GetRemoteMany(ctx, ids); err != nil {
			r.cfg.logger.Error("background fetch failed", "ids", len(ids), "err", err)
			r.cfg.emit(ctx, Event{Kind: EventFetchFailed, IDs: ids, Err: err})
		}
	}()
}

// UpdateLiveState pushes value into the live cell of id, if one exists. The
// local cache is not touched.
func (r *Repository[E]) UpdateLiveState(id string, value *E) {
	r.states.UpdateValue(id, value)
}

// UpdateLiveStates replaces the value of every live cell with
// mapper(id, current).
func (r *Repository[E]) UpdateLiveStates(mapper func(id string, current *E) *E) {
	r.states.ComputeAll(mapper)
}

// LiveState returns the value of the live cell of id, nil if none exists.
func (r *Repository[E]) LiveState(id string) *E {
	return r.states.Value(id)
}

// ClearObservedStates drops every live cell from the registry.
func (r *Repository[E]) ClearObservedStates() {
	r.states.Clear()
}

// Wait blocks until background fetches started so far have finished.
func (r *Repository[E]) Wait() {
	r.wg.Wait()
}

func (r *Repository[E]) wait(ctx context.Context) error {
	if r.cfg.limiter == nil {
		return nil
	}
	return r.cfg.limiter.Wait(ctx)
}

func first[E any](values []*E, err error) (*E, error) {
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

func countFound[E any](values []*E) int {
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n
}

// uniqueIDs keeps the first occurrence of every id, in order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 || len(ids) <= size {
		return [][]string{ids}
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
