package resource

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-state/state"
)

// Status is the load state of a Cached resource.
type Status int

const (
	// Unstarted means nothing was loaded since creation or the last Invalidate.
	Unstarted Status = iota
	// ReadingCache means the cache loader is running.
	ReadingCache
	// FetchingRemote means the remote loader is running and no value was loaded yet.
	FetchingRemote
	// Ready means a loader completed. The value may still be nil.
	Ready
)

func (s Status) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case ReadingCache:
		return "reading_cache"
	case FetchingRemote:
		return "fetching_remote"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Loader produces the value of a resource. A nil value means absent.
type Loader[T any] func(ctx context.Context) (*T, error)

// Option configures a Cached resource.
type Option func(*options)

type options struct {
	name    string
	logger  *log.Logger
	onError func(error)
	baseCtx context.Context
}

// WithName labels log lines and errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used for background failures.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorHandler receives failures of background loads.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithBaseContext sets the parent context of every load.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}

type job[T any] struct {
	id      uint64
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	updates []func(T) T
}

// apply replays the updates made while the job was outstanding.
func (j *job[T]) apply(value *T) *T {
	if value == nil || len(j.updates) == 0 {
		return value
	}
	next := *value
	for _, fn := range j.updates {
		next = fn(next)
	}
	return &next
}

// Cached is a single value backed by a local cache and a remote source.
//
// At most one cache read and one remote fetch are outstanding at any time.
// Starting a new one cancels the previous one of the same kind, and a task
// only applies its result while it is still the current task of its kind,
// so the value never rewinds to an older result.
//
// Subscribers of Value and Refreshing are notified after internal locks are
// released and may call back into the resource.
type Cached[T any] struct {
	fromCache  Loader[T]
	fromRemote Loader[T]
	opts       options

	value      *state.Cell[T]
	refreshing *state.Cell[bool]

	mu          sync.Mutex
	status      Status
	seq         uint64
	cacheJob    *job[T]
	remoteJob   *job[T]
	wantRemote  bool
	cacheMissed bool
	failures    uint64
	err         error
	signal      chan struct{}
}

// New creates a resource. fromCache may be nil for remote only resources.
func New[T any](fromCache, fromRemote Loader[T], opts ...Option) *Cached[T] {
	o := options{
		name:    "resource",
		logger:  log.New(io.Discard),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	notRefreshing := false
	return &Cached[T]{
		fromCache:  fromCache,
		fromRemote: fromRemote,
		opts:       o,
		value:      state.NewCell[T](nil),
		refreshing: state.NewCell(&notRefreshing),
		signal:     make(chan struct{}),
	}
}

// Value is the observable current value.
func (c *Cached[T]) Value() state.Observable[T] {
	return c.value
}

// Get returns the current value without loading anything.
func (c *Cached[T]) Get() *T {
	return c.value.Value()
}

// Refreshing is true while a cache read or a remote fetch is outstanding.
func (c *Cached[T]) Refreshing() state.Observable[bool] {
	return c.refreshing
}

// Status returns the current load state.
func (c *Cached[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the last background failure since the last Invalidate.
func (c *Cached[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// InitFromCache starts the cache read. Calls after the first are no-ops
// until Invalidate.
func (c *Cached[T]) InitFromCache() {
	c.mu.Lock()
	flush := c.initLocked()
	c.mu.Unlock()
	flush()
}

// EnsureLoaded blocks until the resource is Ready, a load attempt started by
// this call fails, or ctx is done. It starts whatever is missing: the cache
// read if nothing ran yet, the remote fetch once the cache missed.
func (c *Cached[T]) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	startFailures := c.failures
	for {
		if c.status == Ready {
			c.mu.Unlock()
			return nil
		}
		if c.failures != startFailures {
			err := c.err
			c.mu.Unlock()
			return err
		}

		var flush func()
		switch c.status {
		case Unstarted:
			c.wantRemote = true
			if c.cacheMissed || c.fromCache == nil {
				flush = c.startRemoteLocked()
			} else {
				flush = c.initLocked()
			}
		case ReadingCache:
			c.wantRemote = true
		}
		signal := c.signal
		c.mu.Unlock()
		if flush != nil {
			flush()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
		c.mu.Lock()
	}
}

// RefreshFromRemote cancels any in-flight cache read and remote fetch and
// starts a new remote fetch. The current value stays visible until the fetch
// completes.
func (c *Cached[T]) RefreshFromRemote() {
	c.mu.Lock()
	c.cancelCacheLocked()
	flush := c.startRemoteLocked()
	c.mu.Unlock()
	flush()
}

// Refresh is RefreshFromRemote that waits for the fetch it started and
// returns its error. A superseded fetch reports context.Canceled.
func (c *Cached[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.cancelCacheLocked()
	flush := c.startRemoteLocked()
	j := c.remoteJob
	c.mu.Unlock()
	flush()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return j.err
	}
}

// Invalidate cancels all in-flight work and resets the resource to
// Unstarted with no value.
func (c *Cached[T]) Invalidate() {
	c.mu.Lock()
	c.cancelCacheLocked()
	c.cancelRemoteLocked()
	c.status = Unstarted
	c.wantRemote = false
	c.cacheMissed = false
	c.err = nil
	flushValue := c.value.SetDeferred(nil)
	flushRefreshing := c.syncRefreshingLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	flushValue()
	flushRefreshing()
}

// Update replaces the current value with fn(value). fn is also applied to
// the result of any outstanding cache read or remote fetch, so a load that
// started earlier cannot undo it.
func (c *Cached[T]) Update(fn func(T) T) {
	c.mu.Lock()
	for _, j := range []*job[T]{c.cacheJob, c.remoteJob} {
		if j != nil {
			j.updates = append(j.updates, fn)
		}
	}
	current := c.value.Value()
	if current == nil {
		c.mu.Unlock()
		return
	}
	next := fn(*current)
	flush := c.value.SetDeferred(&next)
	c.mu.Unlock()
	flush()
}

// Wait blocks until no cache read or remote fetch is outstanding.
func (c *Cached[T]) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.cacheJob == nil && c.remoteJob == nil {
			c.mu.Unlock()
			return nil
		}
		signal := c.signal
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
	}
}

func noop() {}

func (c *Cached[T]) initLocked() func() {
	if c.status != Unstarted || c.cacheMissed {
		return noop
	}
	if c.fromCache == nil {
		c.cacheMissed = true
		if c.wantRemote {
			return c.startRemoteLocked()
		}
		return noop
	}

	c.status = ReadingCache
	j := c.newJobLocked()
	c.cacheJob = j
	ctx, cancel := context.WithCancel(c.opts.baseCtx)
	j.cancel = cancel
	flush := c.syncRefreshingLocked()
	c.broadcastLocked()
	c.opts.logger.Debug("cache read started", "resource", c.opts.name, "job", j.id)

	go c.runCache(ctx, j)
	return flush
}

func (c *Cached[T]) runCache(ctx context.Context, j *job[T]) {
	defer j.cancel()
	value, err := c.fromCache(ctx)
	var reported error

	c.mu.Lock()
	if c.cacheJob != j {
		c.mu.Unlock()
		return
	}
	c.cacheJob = nil

	if err != nil && ctx.Err() == nil {
		c.opts.logger.Warn("cache read failed, treating as miss", "resource", c.opts.name, "job", j.id, "err", err)
		reported = goerrors.Wrap(err, goerrors.CategoryInternal, c.opts.name+": cache read failed")
		c.err = reported
		value = nil
	}

	flush := noop
	if value != nil {
		c.status = Ready
		flush = c.value.SetDeferred(j.apply(value))
	} else {
		c.cacheMissed = true
		c.status = Unstarted
		if c.wantRemote {
			flush = c.startRemoteLocked()
		}
	}
	flushRefreshing := c.syncRefreshingLocked()
	c.broadcastLocked()
	c.mu.Unlock()
	flush()
	flushRefreshing()
	c.report(reported)
}

func (c *Cached[T]) startRemoteLocked() func() {
	c.cancelRemoteLocked()

	j := c.newJobLocked()
	c.remoteJob = j
	ctx, cancel := context.WithCancel(c.opts.baseCtx)
	j.cancel = cancel
	if c.status != Ready {
		c.status = FetchingRemote
	}
	flush := c.syncRefreshingLocked()
	c.broadcastLocked()
	c.opts.logger.Debug("remote fetch started", "resource", c.opts.name, "job", j.id)

	go c.runRemote(ctx, j)
	return flush
}

func (c *Cached[T]) runRemote(ctx context.Context, j *job[T]) {
	defer close(j.done)
	defer j.cancel()
	value, err := c.fromRemote(ctx)
	var reported error

	c.mu.Lock()
	if c.remoteJob != j {
		c.mu.Unlock()
		j.err = context.Canceled
		return
	}
	c.remoteJob = nil

	flushValue := noop
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		j.err = err
		if c.status == FetchingRemote {
			c.status = Unstarted
		}
	case err != nil:
		c.opts.logger.Error("remote fetch failed", "resource", c.opts.name, "job", j.id, "err", err)
		reported = goerrors.Wrap(err, goerrors.CategoryExternal, c.opts.name+": remote fetch failed")
		c.failures++
		c.err = reported
		j.err = reported
		if c.status == FetchingRemote {
			c.status = Unstarted
			c.cacheMissed = true
		}
	default:
		c.status = Ready
		c.err = nil
		flushValue = c.value.SetDeferred(j.apply(value))
	}
	flushRefreshing := c.syncRefreshingLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	flushValue()
	flushRefreshing()
	c.report(reported)
}

func (c *Cached[T]) report(err error) {
	if err != nil && c.opts.onError != nil {
		c.opts.onError(err)
	}
}

func (c *Cached[T]) newJobLocked() *job[T] {
	c.seq++
	return &job[T]{id: c.seq, done: make(chan struct{})}
}

func (c *Cached[T]) cancelCacheLocked() {
	if c.cacheJob == nil {
		return
	}
	c.cacheJob.cancel()
	c.cacheJob = nil
	if c.status == ReadingCache {
		c.status = Unstarted
	}
}

func (c *Cached[T]) cancelRemoteLocked() {
	if c.remoteJob == nil {
		return
	}
	c.remoteJob.cancel()
	c.remoteJob = nil
	if c.status == FetchingRemote {
		c.status = Unstarted
	}
}

// syncRefreshingLocked derives the refreshing flag from the outstanding jobs.
func (c *Cached[T]) syncRefreshingLocked() func() {
	v := c.cacheJob != nil || c.remoteJob != nil
	if cur := c.refreshing.Value(); cur != nil && *cur == v {
		return noop
	}
	return c.refreshing.SetDeferred(&v)
}

func (c *Cached[T]) broadcastLocked() {
	close(c.signal)
	c.signal = make(chan struct{})
}
