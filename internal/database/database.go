package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Connect opens the device store. The pool is pinned to one connection so
// every store.Tx runs on the same SQLite handle: repository writes are
// serialized instead of failing with SQLITE_BUSY, and a shared-cache
// in-memory DSN stays alive for as long as the pool does.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
