package repositorycache

import (
	"context"
	"io"
	"reflect"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-repository-state/retry"
)

// Option configures a Repository or SavedRepository.
type Option func(*config)

type config struct {
	name      string
	logger    *log.Logger
	strategy  retry.Strategy
	limiter   *rate.Limiter
	sink      EventSink
	batchSize int
	baseCtx   context.Context
	now       func() time.Time
}

func newConfig(defaultName string, opts []Option) config {
	cfg := config{
		name:     defaultName,
		logger:   log.New(io.Discard),
		strategy: retry.Standard,
		sink:     NopSink{},
		baseCtx:  context.Background(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With("repository", cfg.name)
	return cfg
}

// WithName sets the name used in log lines, events and errors. It defaults
// to the snake cased entity type name.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = toSnake(name)
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry sets the strategy applied to remote calls. Default retry.Standard.
func WithRetry(s retry.Strategy) Option {
	return func(c *config) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithRateLimiter makes every remote attempt wait for limiter first.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *config) {
		c.limiter = limiter
	}
}

// WithEventSink sets the sink receiving repository events.
func WithEventSink(sink EventSink) Option {
	return func(c *config) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithRemoteBatchSize splits remote fetches into chunks of at most n ids.
// Zero or less sends every id in one call.
func WithRemoteBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithBaseContext sets the parent context of lazy reads and of the
// library resource of a SavedRepository.
func WithBaseContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithClock overrides time.Now, used for library snapshot timestamps and
// event times.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// GetOption tunes a single read.
type GetOption func(*getOptions)

type getOptions struct {
	allowCache    bool
	predicate     func(id string, cached any) bool
	predicateType reflect.Type
}

func newGetOptions(opts []GetOption) getOptions {
	o := getOptions{allowCache: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithoutCache skips the local cache and reads everything from the remote.
func WithoutCache() GetOption {
	return func(o *getOptions) {
		o.allowCache = false
	}
}

// WithCachePredicate decides per id whether a cached value is acceptable.
// Rejected ids are fetched from the remote with the rest of the misses.
// E must be the entity type of the repository the option is passed to.
func WithCachePredicate[E any](accept func(id string, cached *E) bool) GetOption {
	return func(o *getOptions) {
		if accept == nil {
			o.predicate = nil
			o.predicateType = nil
			return
		}
		o.predicateType = reflect.TypeFor[E]()
		o.predicate = func(id string, cached any) bool {
			v, ok := cached.(*E)
			return ok && accept(id, v)
		}
	}
}

// ObserveOption tunes ObserveAsState.
type ObserveOption func(*observeOptions)

type observeOptions struct {
	fetchMissing bool
}

// WithoutFetchMissing keeps cells that the cache could not fill empty
// instead of fetching them from the remote.
func WithoutFetchMissing() ObserveOption {
	return func(o *observeOptions) {
		o.fetchMissing = false
	}
}
