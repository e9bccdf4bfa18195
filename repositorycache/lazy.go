package repositorycache

import (
	"context"

	"github.com/goliatone/go-repository-state/state"
)

// LazyCached returns a cell that reads id from the local cache on first
// observation. It never touches the remote.
func (r *Repository[E]) LazyCached(id string) *state.LazyCell[E] {
	return state.NewLazyCell(func(ctx context.Context) (*E, error) {
		return r.GetCached(ctx, id)
	},
		state.WithBaseContext[E](r.cfg.baseCtx),
		state.WithErrorHandler[E](func(err error) {
			r.cfg.logger.Error("lazy cache read failed", "id", id, "err", err)
			r.cfg.emit(r.cfg.baseCtx, Event{Kind: EventFetchFailed, IDs: []string{id}, Err: err})
		}),
	)
}

// RequestLazy computes every cell that was not requested yet. When the
// local store is a Transactor all reads share one transaction.
func (r *Repository[E]) RequestLazy(ctx context.Context, cells ...state.Requester) error {
	var within func(ctx context.Context, run func(ctx context.Context) error) error
	if tx, ok := r.local.(Transactor); ok {
		within = tx.RunInTx
	}
	return state.RequestBatch(ctx, within, cells...)
}
