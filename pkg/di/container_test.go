package di

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-state/cache"
	"github.com/goliatone/go-repository-state/pkg/testsupport"
	"github.com/goliatone/go-repository-state/repositorycache"
)

func sqliteConfig() cache.Config {
	config := cache.DefaultConfig()
	config.Scope = "user-1"
	config.SQL = cache.SQLConfig{Driver: cache.DriverSQLite, DSN: ":memory:"}
	config.Retry = cache.RetryConfig{Delays: []time.Duration{0}}
	return config
}

func newTestContainer(t *testing.T, config cache.Config, opts ...Option) *Container {
	t.Helper()
	container, err := NewContainer(context.Background(), config, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return container
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	if container.Memory() == nil {
		t.Error("Default container should have a memory tier")
	}
	if container.DB() != nil {
		t.Error("Default container should not have a SQL tier")
	}
	if container.RateLimiter() != nil {
		t.Error("Default container should not rate limit")
	}

	config := container.Config()
	defaultConfig := cache.DefaultConfig()
	if config.Memory.Capacity != defaultConfig.Memory.Capacity {
		t.Errorf("Expected default capacity %d, got %d", defaultConfig.Memory.Capacity, config.Memory.Capacity)
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close() without SQL tier failed: %v", err)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	config := cache.DefaultConfig()
	config.Memory.Capacity = 0

	_, err := NewContainer(context.Background(), config)
	if err == nil {
		t.Fatal("NewContainer() should fail with invalid config")
	}
	if !goerrors.IsValidation(err) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestNewContainer_NoTier(t *testing.T) {
	config := cache.DefaultConfig()
	config.Memory.Enabled = false

	_, err := NewContainer(context.Background(), config)
	if err == nil {
		t.Fatal("NewContainer() should fail without any cache tier")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("Expected a bad input error, got %v", err)
	}
}

func TestContainerNamespace(t *testing.T) {
	testCases := []struct {
		name     string
		scope    string
		repo     string
		expected string
	}{
		{name: "unscoped", repo: "album", expected: "album"},
		{name: "scoped", scope: "user-1234", repo: "saved", expected: "saved:user-1234"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := cache.DefaultConfig()
			config.Scope = tc.scope
			container := newTestContainer(t, config)

			if got := container.Namespace(tc.repo); got != tc.expected {
				t.Errorf("Expected namespace %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestContainerSharesRateLimiter(t *testing.T) {
	config := cache.DefaultConfig()
	config.RateLimit = cache.RateLimitConfig{PerSecond: 5, Burst: 2}
	container := newTestContainer(t, config)

	limiter := container.RateLimiter()
	if limiter == nil {
		t.Fatal("Expected a rate limiter")
	}
	if limiter != container.RateLimiter() {
		t.Error("RateLimiter() should return the same instance")
	}
	if limiter.Burst() != 2 {
		t.Errorf("Expected burst 2, got %d", limiter.Burst())
	}
}

func TestNewRepository_MemoryAndSQL(t *testing.T) {
	container := newTestContainer(t, sqliteConfig())
	ctx := context.Background()

	remote := testsupport.NewOracle(map[string]testsupport.Track{
		"a": {ID: "a", Title: "Windowlicker"},
	})
	repo := NewRepository[testsupport.Track](container, "track", remote)
	t.Cleanup(repo.Wait)

	if repo.Name() != "track" {
		t.Errorf("Expected repository name %q, got %q", "track", repo.Name())
	}

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil || got.Title != "Windowlicker" {
		t.Fatalf("Expected Windowlicker, got %+v", got)
	}

	if ids := container.Memory().IDs("track:user-1"); len(ids) != 1 || ids[0] != "a" {
		t.Errorf("Expected memory tier to hold [a], got %v", ids)
	}

	stats, err := container.DB().Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Namespace != "track:user-1" || stats[0].Rows != 1 {
		t.Errorf("Expected one row under track:user-1, got %+v", stats)
	}

	// with the memory tier dropped the read is served by the SQL tier
	cold := NewRepository[testsupport.Track](container, "track", remote)
	container.Memory().DropNamespace("track:user-1")
	if _, err := cold.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() after dropping memory failed: %v", err)
	}
	if calls := remote.CallCount(); calls != 1 {
		t.Errorf("Expected one remote call, got %d", calls)
	}
}

func TestNewRepository_SQLOnly(t *testing.T) {
	config := sqliteConfig()
	config.Memory.Enabled = false
	container := newTestContainer(t, config)
	ctx := context.Background()

	if container.Memory() != nil {
		t.Fatal("Expected no memory tier")
	}

	remote := testsupport.NewOracle(map[string]testsupport.Track{"a": {ID: "a"}})
	repo := NewRepository[testsupport.Track](container, "track", remote)
	if _, err := repo.GetMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("GetMany() failed: %v", err)
	}

	cached, err := repo.GetCached(ctx, "a")
	if err != nil {
		t.Fatalf("GetCached() failed: %v", err)
	}
	if cached == nil {
		t.Error("Expected a to be cached in the SQL tier")
	}
}

func TestNewSavedRepository(t *testing.T) {
	sink := &testsupport.RecordingSink{}
	container := newTestContainer(t, sqliteConfig(), WithEventSink(sink))
	ctx := context.Background()

	remote := testsupport.NewSavedRemote("a", "b")
	saved := NewSavedRepository(container, "saved", remote)
	t.Cleanup(saved.Wait)

	library, err := saved.GetLibrary(ctx)
	if err != nil {
		t.Fatalf("GetLibrary() failed: %v", err)
	}
	if library.Len() != 2 {
		t.Errorf("Expected 2 saved ids, got %d", library.Len())
	}

	if err := saved.Save(ctx, "c"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// a second repository reads the snapshot persisted by the first
	again := NewSavedRepository(container, "saved", remote)
	t.Cleanup(again.Wait)
	library, err = again.GetLibrary(ctx)
	if err != nil {
		t.Fatalf("GetLibrary() failed: %v", err)
	}
	if !library.Contains("c") || library.Len() != 3 {
		t.Errorf("Expected persisted library with c, got %v", library.Slice())
	}

	_, _, libraries := remote.Counts()
	if libraries != 1 {
		t.Errorf("Expected one remote library fetch, got %d", libraries)
	}
	if n := sink.Count(repositorycache.EventSetSaved); n != 1 {
		t.Errorf("Expected one set saved event, got %d", n)
	}
	for _, e := range sink.Events() {
		if e.Repository != "saved" {
			t.Errorf("Expected events of repository saved, got %q", e.Repository)
		}
	}
}

func TestDropNamespace(t *testing.T) {
	container := newTestContainer(t, sqliteConfig())
	ctx := context.Background()

	remote := testsupport.NewOracle(map[string]testsupport.Track{
		"a": {ID: "a"},
		"b": {ID: "b"},
	})
	repo := NewRepository[testsupport.Track](container, "track", remote)
	if _, err := repo.GetMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("GetMany() failed: %v", err)
	}

	dropped, err := container.DropNamespace(ctx, "track")
	if err != nil {
		t.Fatalf("DropNamespace() failed: %v", err)
	}
	if dropped != 4 {
		t.Errorf("Expected 2 memory entries and 2 rows dropped, got %d", dropped)
	}

	cached, err := repo.GetCachedMany(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetCachedMany() failed: %v", err)
	}
	for i, v := range cached {
		if v != nil {
			t.Errorf("Expected entry %d to be dropped, got %+v", i, v)
		}
	}
}
