package repositorycache

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// EventKind names the point at which an Event was emitted.
type EventKind string

const (
	EventQueryCached        EventKind = "query_cached"
	EventQueryRemote        EventKind = "query_remote"
	EventSetSaved           EventKind = "set_saved"
	EventInvalidateLibrary  EventKind = "invalidate_library"
	EventQueryLibraryCached EventKind = "query_library_cached"
	EventQueryLibraryRemote EventKind = "query_library_remote"
	// EventFetchFailed reports a background fetch that had no caller to
	// return its error to.
	EventFetchFailed EventKind = "fetch_failed"
)

// Event is an advisory record of repository I/O.
type Event struct {
	Kind       EventKind
	Repository string
	IDs        []string
	// Found counts the ids that resolved to a value.
	Found int
	// Saved is the flag pushed by EventSetSaved.
	Saved bool
	// OpID correlates remote calls with log lines and error request ids.
	OpID string
	// Tags are the cache tags attached to the caller context.
	Tags []string
	Err  error
	At   time.Time
}

// EventSink receives events. Implementations must be safe for concurrent
// use and should return quickly.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// NopSink drops every event.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events to a logger at debug level, failures at error level.
type LogSink struct {
	Logger *log.Logger
}

// Emit implements EventSink.
func (s LogSink) Emit(_ context.Context, e Event) {
	if s.Logger == nil {
		return
	}
	kv := []any{
		"kind", string(e.Kind),
		"repository", e.Repository,
		"ids", len(e.IDs),
		"found", e.Found,
	}
	if e.OpID != "" {
		kv = append(kv, "op", e.OpID)
	}
	if len(e.Tags) > 0 {
		kv = append(kv, "tags", e.Tags)
	}
	if e.Kind == EventSetSaved {
		kv = append(kv, "saved", e.Saved)
	}
	if e.Err != nil {
		s.Logger.Error("repository event", append(kv, "err", e.Err)...)
		return
	}
	s.Logger.Debug("repository event", kv...)
}

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, sink := range m {
		sink.Emit(ctx, e)
	}
}

func (c *config) emit(ctx context.Context, e Event) {
	e.Repository = c.name
	e.Tags = CacheTags(ctx)
	if e.At.IsZero() {
		e.At = c.now()
	}
	c.sink.Emit(ctx, e)
}
