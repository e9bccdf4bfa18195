// Package sqlstore is the relational cache tier. It keeps msgpack encoded
// entities and library snapshots in three bun managed tables, on sqlite for
// a device local cache or on postgres for a shared one.
//
//	db, err := sqlstore.Open(sqlstore.DriverSQLite, "file:cache.db?_journal_mode=WAL")
//	if err != nil {
//		return err
//	}
//	if err := db.Migrate(ctx); err != nil {
//		return err
//	}
//	tracks := sqlstore.NewStore[Track](db, "track:user-1")
//
// Store and LibraryStore calls made inside DB.RunInTx share its transaction.
package sqlstore
