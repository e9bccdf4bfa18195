package sqlstore

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type entityRow struct {
	bun.BaseModel `bun:"table:entity_cache"`

	Namespace string    `bun:"namespace,pk"`
	ID        string    `bun:"id,pk"`
	Payload   []byte    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type libraryItemRow struct {
	bun.BaseModel `bun:"table:library_items"`

	Namespace string `bun:"namespace,pk"`
	ID        string `bun:"id,pk"`
}

type libraryMetaRow struct {
	bun.BaseModel `bun:"table:library_meta"`

	Namespace string    `bun:"namespace,pk"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// NamespaceStats summarizes the entity rows of one namespace.
type NamespaceStats struct {
	Namespace   string    `bun:"namespace"`
	Rows        int       `bun:"row_count"`
	LastUpdated time.Time `bun:"last_updated"`
}

// DB is a bun database holding the cache tables.
type DB struct {
	db  *bun.DB
	now func() time.Time
}

type txKey struct{}

// Open connects to driver at dsn. sqlite connections are limited to one so
// that in-memory databases survive between queries.
func Open(driver, dsn string) (*DB, error) {
	var dialect schema.Dialect
	switch driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, goerrors.New("sqlstore: unsupported driver "+driver, goerrors.CategoryBadInput)
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "sqlstore: open "+driver)
	}
	if driver == DriverSQLite {
		sqldb.SetMaxOpenConns(1)
	}
	return New(bun.NewDB(sqldb, dialect)), nil
}

// New wraps an existing bun database.
func New(db *bun.DB) *DB {
	return &DB{db: db, now: time.Now}
}

// Bun returns the underlying bun database.
func (d *DB) Bun() *bun.DB {
	return d.db
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the cache tables when they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	models := []any{
		(*entityRow)(nil),
		(*libraryItemRow)(nil),
		(*libraryMetaRow)(nil),
	}
	for _, model := range models {
		if _, err := d.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "sqlstore: migrate")
		}
	}
	return nil
}

// RunInTx runs fn in a transaction carried by the context passed to fn.
// Store and LibraryStore calls made with that context join it. Nested calls
// reuse the outer transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (d *DB) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return d.db
}

// Stats returns row counts per namespace, sorted by namespace.
func (d *DB) Stats(ctx context.Context) ([]NamespaceStats, error) {
	var stats []NamespaceStats
	err := d.conn(ctx).NewSelect().
		Model((*entityRow)(nil)).
		Column("namespace").
		ColumnExpr("count(*) AS row_count").
		ColumnExpr("max(updated_at) AS last_updated").
		Group("namespace").
		Order("namespace").
		Scan(ctx, &stats)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DropNamespace deletes every entity row of namespace and returns how many
// were deleted.
func (d *DB) DropNamespace(ctx context.Context, namespace string) (int64, error) {
	res, err := d.conn(ctx).NewDelete().
		Model((*entityRow)(nil)).
		Where("namespace = ?", namespace).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
