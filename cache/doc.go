// Package cache provides the local cache tiers behind repositorycache
// repositories and the configuration that selects them.
//
// # Overview
//
// This package exports:
//
//   - Config: TOML backed configuration of every tier, validated with ozzo-validation
//   - MemoryClient and MemoryStore[E]: a sturdyc memory tier, optionally in front of a lower tier
//   - MemoryLibraryStore: a TTL bound library snapshot, optionally in front of a lower tier
//   - KeySerializer: builds namespaces such as "saved:user-1234"
//
// The relational tier lives in the cache/sqlstore package.
//
// # Basic Usage
//
//	cfg, err := cache.LoadConfig("statecache.toml")
//	if err != nil {
//		return err
//	}
//
//	client, err := cache.NewMemoryClient(cfg.Memory)
//	if err != nil {
//		return err
//	}
//
//	ns := cache.NewDefaultKeySerializer().SerializeKey("album", cfg.Scope)
//	albums := repositorycache.New[Album](
//		cache.NewMemoryStore[Album](client, ns, sqlAlbums),
//		remote,
//		repositorycache.WithRetry(cfg.Retry.Strategy()),
//		repositorycache.WithRateLimiter(cfg.RateLimit.Limiter()),
//	)
//
// # Tiering
//
// A MemoryStore with a lower tier reads misses from it and keeps what it
// found. Writes go to the lower tier first and to memory only when that
// succeeded. Invalidate and InvalidateAll drop memory entries only, so the
// next read is served by the lower tier again.
//
// Memory entries are dropped by sturdyc after the configured TTL or under
// capacity pressure. A store never reports an evicted entry as an error; it
// is a miss like any other.
//
// # Configuration
//
// Durations are written as strings ("90s", "15m"). Sections left out keep
// the values of DefaultConfig, and unknown keys are rejected so that typos
// surface at startup. Validation failures are go-errors validation errors
// with one field entry per problem.
//
// # See Also
//
// For the repositories that consume these stores, see the repositorycache package.
// For dependency injection setup, see the pkg/di package.
package cache
