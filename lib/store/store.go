// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/sqlitepool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a compare-and-set update finds the row
// no longer in the expected state.
var ErrConflict = errors.New("store: concurrent modification")

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the SQLite database file. Its directory must exist.
	Path string

	// PoolSize is passed to sqlitepool. Defaults to 4.
	PoolSize int

	// Retry governs transient-failure retries on every operation.
	Retry sqlitepool.RetryPolicy

	// Clock stamps created_at and updated_at. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is the SQLite-backed persistence gateway.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the database and applies the schema on every connection.
func Open(cfg Config) (*Store, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Retry:    cfg.Retry,
		Clock:    clk,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Pool exposes the connection pool to packages that own their own
// queries against this database (the ledger).
func (s *Store) Pool() *sqlitepool.Pool { return s.pool }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.pool.Close() }

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func columnTime(stmt *sqlite.Stmt, col int) time.Time {
	return time.UnixMilli(stmt.ColumnInt64(col)).UTC()
}

func columnTimePointer(stmt *sqlite.Stmt, col int) *time.Time {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	t := columnTime(stmt, col)
	return &t
}

func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}
