// Package repositorycache keeps remotely sourced entities in sync across a
// local cache, a remote API and live observable state.
//
// # Overview
//
// A Repository[E] sits between two collaborators:
//
//   - LocalStore[E]: the local cache tier (see the cache and cache/sqlstore packages)
//   - RemoteSource[E]: the source of truth, usually an HTTP client
//
// and keeps one live cell per observed id in a weak registry, so that every
// screen observing the same album or track sees the same value.
//
// SavedRepository specializes Repository[bool] for per id saved flags and
// adds the library, the set of all saved ids, held in a resource.Cached.
//
// # Basic Usage
//
//	albums := repositorycache.New[Album](
//		store,
//		repositorycache.RemoteFunc[Album](client.Albums),
//		repositorycache.WithLogger(logger),
//		repositorycache.WithRetry(retry.Standard),
//	)
//
//	// cache first, one remote call for every miss
//	list, err := albums.GetMany(ctx, []string{"a", "b", "c"})
//
//	// live state, filled from the cache now and from the remote later
//	cell, err := albums.ObserveAsState(ctx, "a")
//	cancel := cell.Subscribe(func(a *Album) { render(a) })
//
// # Read Paths
//
// GetMany reads the cache for every id, treats ids whose value is absent or
// rejected by WithCachePredicate as missing, fetches all of them in one
// remote call and splices the results back into request order. Remote
// results are stored in the local cache and published to live cells.
//
// Absent entities are nil, never errors. Remote failures are retried with the
// configured retry.Strategy and returned to the caller; cache failures are
// returned without retrying.
//
// # Background Work
//
// ObserveAsStates fetches cells the cache could not fill in the background.
// Those failures have no caller, so they are logged and emitted as
// EventFetchFailed. Wait blocks until background fetches finish.
//
// # Events
//
// Repositories emit Event values to an EventSink at the documented points:
// EventQueryCached, EventQueryRemote, EventSetSaved, EventInvalidateLibrary,
// EventQueryLibraryCached and EventQueryLibraryRemote. Tags attached with
// WithCacheTags travel with the events.
//
// # See Also
//
// For the observable building blocks, see the state package.
// For cache tier implementations and configuration, see the cache package.
// For dependency injection setup, see the pkg/di package.
package repositorycache
