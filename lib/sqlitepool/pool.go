// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
)

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	// ":memory:" works only with PoolSize 1, since each in-memory
	// connection is its own database.
	Path string

	// PoolSize defaults to 4. SQLite serializes writers regardless, so
	// extra connections only help concurrent readers.
	PoolSize int

	// Retry governs Do. Zero fields take DefaultRetryPolicy values.
	Retry RetryPolicy

	// Clock times retry backoff. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas,
	// typically to apply the schema. An error discards the connection
	// and fails the Take that opened it.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size set of prepared SQLite connections. Safe for
// concurrent use; a single connection is not.
type Pool struct {
	inner  *sqlitex.Pool
	path   string
	retry  RetryPolicy
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates the pool. Connections are prepared lazily on first Take.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &Pool{
		inner:  inner,
		path:   cfg.Path,
		retry:  cfg.Retry.withDefaults(),
		clock:  clk,
		logger: logger,
	}, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
// Every successful Take must be paired with Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Do runs fn on a borrowed connection, retrying transient failures per
// the pool's RetryPolicy. Each attempt borrows a fresh connection, so fn
// must be safe to run more than once; wrapping its writes in one
// transaction is enough.
func (p *Pool) Do(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return Retry(ctx, p.retry, p.clock, p.logger, IsTransient, func() error {
		conn, err := p.Take(ctx)
		if err != nil {
			return err
		}
		defer p.Put(conn)
		return fn(conn)
	})
}

// Close waits for borrowed connections to come back, then closes them.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close failed", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA cache_size=-8192",
	"PRAGMA temp_store=MEMORY",
}

func prepare(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
