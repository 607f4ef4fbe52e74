// Package database is the devserver's sqlite storage.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the devserver database at path. ":memory:"
// gives a throwaway database.
//
// The pool holds one connection, so code running inside WithTx must only
// use the *sql.Tx it was handed.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	params := url.Values{
		"_foreign_keys": {"on"},
		"_busy_timeout": {"5000"},
	}
	if path != ":memory:" {
		params.Set("_journal_mode", "WAL")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// WithTx runs fn in a transaction. A failing fn rolls back and its error is
// returned as is, so callers can match their own sentinels.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Now is the timestamp stored for new rows: UTC, whole seconds, as sqlite's
// CURRENT_TIMESTAMP would record it.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
