package sqlstore

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-state/repositorycache"
)

// Store is a repositorycache.LocalStore keeping msgpack encoded entities in
// the entity_cache table under one namespace.
type Store[E any] struct {
	db        *DB
	namespace string
}

var (
	_ repositorycache.LocalStore[struct{}] = (*Store[struct{}])(nil)
	_ repositorycache.Transactor           = (*Store[struct{}])(nil)
)

// NewStore creates a store for namespace.
func NewStore[E any](db *DB, namespace string) *Store[E] {
	return &Store[E]{db: db, namespace: namespace}
}

// Load implements repositorycache.LocalStore.
func (s *Store[E]) Load(ctx context.Context, ids []string) ([]*E, error) {
	out := make([]*E, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []entityRow
	err := s.db.conn(ctx).NewSelect().
		Model(&rows).
		Where("namespace = ?", s.namespace).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*E, len(rows))
	for _, row := range rows {
		v := new(E)
		if err := msgpack.Unmarshal(row.Payload, v); err != nil {
			return nil, err
		}
		byID[row.ID] = v
	}
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// Store implements repositorycache.LocalStore. Nil values delete the row.
func (s *Store[E]) Store(ctx context.Context, values map[string]*E) error {
	if len(values) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		now := s.db.now()
		rows := make([]entityRow, 0, len(values))
		var deleted []string
		for id, v := range values {
			if v == nil {
				deleted = append(deleted, id)
				continue
			}
			payload, err := msgpack.Marshal(v)
			if err != nil {
				return err
			}
			rows = append(rows, entityRow{Namespace: s.namespace, ID: id, Payload: payload, UpdatedAt: now})
		}

		conn := s.db.conn(ctx)
		if len(rows) > 0 {
			_, err := conn.NewInsert().
				Model(&rows).
				On("CONFLICT (namespace, id) DO UPDATE").
				Set("payload = EXCLUDED.payload").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		if len(deleted) > 0 {
			_, err := conn.NewDelete().
				Model((*entityRow)(nil)).
				Where("namespace = ?", s.namespace).
				Where("id IN (?)", bun.In(deleted)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RunInTx implements repositorycache.Transactor.
func (s *Store[E]) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, fn)
}

// Count returns the number of rows of the namespace.
func (s *Store[E]) Count(ctx context.Context) (int, error) {
	return s.db.conn(ctx).NewSelect().
		Model((*entityRow)(nil)).
		Where("namespace = ?", s.namespace).
		Count(ctx)
}

// Invalidate deletes ids from the namespace.
func (s *Store[E]) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.conn(ctx).NewDelete().
		Model((*entityRow)(nil)).
		Where("namespace = ?", s.namespace).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

// InvalidateAll deletes the namespace.
func (s *Store[E]) InvalidateAll(ctx context.Context) error {
	_, err := s.db.DropNamespace(ctx, s.namespace)
	return err
}
