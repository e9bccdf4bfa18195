// Package resource holds Cached, a single value with a cache tier and a
// remote tier, such as the saved library of a user.
//
// The lifecycle is Unstarted, then ReadingCache, then either Ready on a
// cache hit or FetchingRemote followed by Ready on a miss. InitFromCache,
// EnsureLoaded, RefreshFromRemote and Invalidate may be called in any order
// and from any goroutine.
package resource
