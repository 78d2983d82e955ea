// Package storage opens and owns the embedded SQLite database behind
// a served application. The database is single-writer by nature,
// which is precisely why the serving model is single-threaded: one
// request holds one transaction, and no two transactions ever
// overlap.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kjosib/kale/logging"
)

// DB wraps the process-wide database handle with transaction helpers.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	path   string
}

// Open opens (or creates) the SQLite database at path. Use ":memory:"
// for a throwaway database. The connection pool is pinned to a single
// connection: the server serves one request at a time, and SQLite
// rewards not pretending otherwise.
func Open(path string, logger *logging.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	logger.Debug("database open", logging.Fields{"path": path})
	return &DB{conn: conn, logger: logger, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path this handle was opened with.
func (db *DB) Path() string {
	return db.path
}

// Begin starts a transaction. The transaction guard wraps this as its
// begin function; the *sql.Tx it returns satisfies the guard's Tx
// surface directly.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// WithTx runs fn inside a transaction, committing on nil return and
// rolling back on error or panic. For startup work like schema
// creation and seeding; request-time transactions belong to the
// guard.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("rollback failed", logging.Fields{
				"error":         err.Error(),
				"rollbackError": rbErr.Error(),
			})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Exec runs a statement outside any request transaction.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query runs a query outside any request transaction.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow runs a single-row query outside any request transaction.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
