package di

import (
	"context"

	"github.com/charmbracelet/log"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-repository-state/cache"
	"github.com/goliatone/go-repository-state/cache/sqlstore"
	"github.com/goliatone/go-repository-state/repositorycache"
	"github.com/goliatone/go-repository-state/retry"
)

// Container provides dependency injection for repository related components.
// It owns the shared cache tiers, the remote rate limiter and the retry
// strategy, and provides factory functions for repositories that use them.
type Container struct {
	config        cache.Config
	memory        *cache.MemoryClient
	db            *sqlstore.DB
	keySerializer cache.KeySerializer
	strategy      retry.Strategy
	limiter       *rate.Limiter
	logger        *log.Logger
	sinks         repositorycache.MultiSink
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every repository. Repository events
// are logged through it as well.
func WithLogger(logger *log.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithEventSink adds a sink receiving the events of every repository.
func WithEventSink(sink repositorycache.EventSink) Option {
	return func(c *Container) {
		if sink != nil {
			c.sinks = append(c.sinks, sink)
		}
	}
}

// NewContainer validates config and builds the configured tiers. The SQL
// tier is migrated before NewContainer returns.
func NewContainer(ctx context.Context, config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.Memory.Enabled && config.SQL.Driver == "" {
		return nil, goerrors.New("di: no cache tier configured, enable [memory] or set [sql] driver", goerrors.CategoryBadInput)
	}

	c := &Container{
		config:        config,
		keySerializer: cache.NewDefaultKeySerializer(),
		strategy:      config.Retry.Strategy(),
		limiter:       config.RateLimit.Limiter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger != nil {
		c.sinks = append(c.sinks, repositorycache.LogSink{Logger: c.logger})
	}

	if config.Memory.Enabled {
		memory, err := cache.NewMemoryClient(config.Memory)
		if err != nil {
			return nil, err
		}
		c.memory = memory
	}

	if config.SQL.Driver != "" {
		db, err := sqlstore.Open(config.SQL.Driver, config.SQL.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		c.db = db
	}
	return c, nil
}

// NewContainerWithDefaults creates a memory only container using
// cache.DefaultConfig.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(context.Background(), cache.DefaultConfig())
}

// Close releases the SQL tier.
func (c *Container) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// KeySerializer returns the serializer that builds namespaces.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Memory returns the memory tier, nil when it is disabled.
func (c *Container) Memory() *cache.MemoryClient {
	return c.memory
}

// DB returns the SQL tier, nil when it is not configured.
func (c *Container) DB() *sqlstore.DB {
	return c.db
}

// RateLimiter returns the limiter shared by every repository, nil when rate
// limiting is off.
func (c *Container) RateLimiter() *rate.Limiter {
	return c.limiter
}

// Namespace returns the cache namespace of the named repository under the
// configured scope, such as "saved:user-1234".
func (c *Container) Namespace(name string) string {
	return c.keySerializer.SerializeKey(name, c.config.Scope)
}

// RepositoryOptions returns the options NewRepository applies before the
// caller's own.
func (c *Container) RepositoryOptions(name string) []repositorycache.Option {
	opts := []repositorycache.Option{
		repositorycache.WithName(name),
		repositorycache.WithRetry(c.strategy),
		repositorycache.WithRateLimiter(c.limiter),
		repositorycache.WithRemoteBatchSize(c.config.Remote.BatchSize),
	}
	if c.logger != nil {
		opts = append(opts, repositorycache.WithLogger(c.logger))
	}
	if len(c.sinks) > 0 {
		opts = append(opts, repositorycache.WithEventSink(c.sinks))
	}
	return opts
}

// DropNamespace removes the cached entities and library snapshot of the
// named repository from every tier. It returns how many SQL rows and memory
// entries were removed.
func (c *Container) DropNamespace(ctx context.Context, name string) (int64, error) {
	ns := c.Namespace(name)
	var dropped int64
	if c.memory != nil {
		dropped += int64(c.memory.DropNamespace(ns))
	}
	if c.db == nil {
		return dropped, nil
	}
	err := c.db.RunInTx(ctx, func(ctx context.Context) error {
		n, err := c.db.DropNamespace(ctx, ns)
		if err != nil {
			return err
		}
		dropped += n
		return sqlstore.NewLibraryStore(c.db, ns).InvalidateLibrary(ctx)
	})
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "di: drop namespace "+ns)
	}
	return dropped, nil
}

// NewRepository creates a repository for the entities served by remote,
// cached in the configured tiers under name.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewRepository[Album](container, "album", albumsAPI)
func NewRepository[E any](c *Container, name string, remote repositorycache.RemoteSource[E], opts ...repositorycache.Option) *repositorycache.Repository[E] {
	local := localStore[E](c, c.Namespace(name))
	return repositorycache.New(local, remote, append(c.RepositoryOptions(name), opts...)...)
}

// NewSavedRepository creates a saved flag repository for remote. The library
// snapshot is kept in memory for the configured library TTL and, with a SQL
// tier, persisted.
func NewSavedRepository(c *Container, name string, remote repositorycache.SavedRemote, opts ...repositorycache.Option) *repositorycache.SavedRepository {
	ns := c.Namespace(name)
	var next repositorycache.LibraryStore
	if c.db != nil {
		next = sqlstore.NewLibraryStore(c.db, ns)
	}
	library := cache.NewMemoryLibraryStore(c.config.Library, ns, next)
	return repositorycache.NewSaved(localStore[bool](c, ns), library, remote, append(c.RepositoryOptions(name), opts...)...)
}

func localStore[E any](c *Container, namespace string) repositorycache.LocalStore[E] {
	var next repositorycache.LocalStore[E]
	if c.db != nil {
		next = sqlstore.NewStore[E](c.db, namespace)
	}
	if c.memory == nil {
		return next
	}
	return cache.NewMemoryStore[E](c.memory, namespace, next)
}
