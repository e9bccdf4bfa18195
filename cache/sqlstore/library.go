package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-state/repositorycache"
)

// LibraryStore persists the library of one namespace in the library_items
// and library_meta tables. A namespace without a meta row has no snapshot.
type LibraryStore struct {
	db        *DB
	namespace string
}

var _ repositorycache.LibraryStore = (*LibraryStore)(nil)

// NewLibraryStore creates a library store for namespace.
func NewLibraryStore(db *DB, namespace string) *LibraryStore {
	return &LibraryStore{db: db, namespace: namespace}
}

// LoadLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) LoadLibrary(ctx context.Context) (*repositorycache.Library, error) {
	var l *repositorycache.Library
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := s.db.conn(ctx)

		var meta libraryMetaRow
		err := conn.NewSelect().
			Model(&meta).
			Where("namespace = ?", s.namespace).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var ids []string
		err = conn.NewSelect().
			Model((*libraryItemRow)(nil)).
			Column("id").
			Where("namespace = ?", s.namespace).
			Scan(ctx, &ids)
		if err != nil {
			return err
		}

		lib := repositorycache.NewLibrary(ids, meta.UpdatedAt)
		l = &lib
		return nil
	})
	return l, err
}

// StoreLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) StoreLibrary(ctx context.Context, l repositorycache.Library) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.deleteAll(ctx); err != nil {
			return err
		}
		if err := s.insertIDs(ctx, l.Slice()); err != nil {
			return err
		}
		meta := libraryMetaRow{Namespace: s.namespace, UpdatedAt: l.UpdatedAt}
		_, err := s.db.conn(ctx).NewInsert().Model(&meta).Exec(ctx)
		return err
	})
}

// UpdateLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) UpdateLibrary(ctx context.Context, ids []string, saved bool) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := s.db.conn(ctx)
		exists, err := conn.NewSelect().
			Model((*libraryMetaRow)(nil)).
			Where("namespace = ?", s.namespace).
			Exists(ctx)
		if err != nil || !exists {
			return err
		}

		if saved {
			return s.insertIDs(ctx, ids)
		}
		_, err = conn.NewDelete().
			Model((*libraryItemRow)(nil)).
			Where("namespace = ?", s.namespace).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		return err
	})
}

// InvalidateLibrary implements repositorycache.LibraryStore.
func (s *LibraryStore) InvalidateLibrary(ctx context.Context) error {
	return s.db.RunInTx(ctx, s.deleteAll)
}

func (s *LibraryStore) insertIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]libraryItemRow, len(ids))
	for i, id := range ids {
		rows[i] = libraryItemRow{Namespace: s.namespace, ID: id}
	}
	_, err := s.db.conn(ctx).NewInsert().Model(&rows).Ignore().Exec(ctx)
	return err
}

func (s *LibraryStore) deleteAll(ctx context.Context) error {
	conn := s.db.conn(ctx)
	if _, err := conn.NewDelete().Model((*libraryItemRow)(nil)).Where("namespace = ?", s.namespace).Exec(ctx); err != nil {
		return err
	}
	_, err := conn.NewDelete().Model((*libraryMetaRow)(nil)).Where("namespace = ?", s.namespace).Exec(ctx)
	return err
}
