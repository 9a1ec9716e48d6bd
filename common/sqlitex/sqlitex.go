// Package sqlitex opens the pure-Go SQLite database shared by the
// knowledge index and the farm store.
package sqlitex

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens path and applies connection pragmas. ":memory:" databases
// are pinned to one connection so every caller sees the same data.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return db, nil
}
