// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so there is no CGo and no C
// toolchain needed to build or cross-compile the binary.
//
// CONCURRENCY:
// The pool is capped at a single connection. Every repository call runs
// its statement(s) on that connection in turn, which serializes writers
// without SQLITE_BUSY retries and makes ":memory:" databases behave (each
// pooled connection to ":memory:" would otherwise be its own empty DB).
// Callers never hold a lock across operations; each method is one atomic
// unit.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The driver's init() registers itself with database/sql as "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "sipp.sqlite" → file-based database (persistent)
//   - ":memory:"    → in-memory database (tests)
//
// New is idempotent against an existing file: the schema is created only
// when absent and nothing is ever dropped.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	// Ping forces the first real connection so a bad path or permission
	// problem surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers of the file (e.g. a local-mode client sharing the
	// server's database) proceed while this process writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Another process may hold the write lock briefly.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
//
//	db, err := sqlite.New("sipp.sqlite")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema if it is missing. CREATE ... IF NOT EXISTS
// is safe to run on every startup.
//
// id is AUTOINCREMENT so it is never reused after a delete, which keeps
// "ORDER BY id DESC" a faithful creation order.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			short_id    TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			content     TEXT NOT NULL,
			language    TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	// Databases written by earlier releases predate the language and
	// timestamp columns.
	columns := []struct{ name, definition string }{
		{"language", "TEXT NOT NULL DEFAULT ''"},
		{"created_at", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
		{"updated_at", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
	}
	for _, c := range columns {
		if err := db.addColumnIfNotExists("snippets", c.name, c.definition); err != nil {
			return fmt.Errorf("adding %s to snippets: %w", c.name, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent — safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
