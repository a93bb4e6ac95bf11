// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cask-engine/cask/lib/cas"
	"github.com/cask-engine/cask/lib/clock"
	"github.com/cask-engine/cask/lib/sqlitepool"
)

// Engine is the artifact storage and versioning engine: metadata
// relations in SQLite, payloads in a content-addressed store.
//
// All write paths run inside IMMEDIATE transactions, which SQLite
// serializes. That single serialization point carries every
// concurrency obligation the engine has: refcount updates never lose
// increments, version numbers never gap or duplicate, and competing
// handoff transitions resolve to whichever commits first.
//
// Engine is safe for concurrent use.
type Engine struct {
	pool   *sqlitepool.Pool
	cas    *cas.Store
	clock  clock.Clock
	logger *slog.Logger

	putAttempts int
}

// Config holds the parameters for opening an engine.
type Config struct {
	// DatabasePath is the filesystem path to the SQLite metadata
	// database. The parent directory must exist.
	DatabasePath string

	// PayloadRoot is the root directory for the content-addressed
	// payload store. Created if it does not exist.
	PayloadRoot string

	// PoolSize is the SQLite connection pool size. Defaults per
	// sqlitepool when zero.
	PoolSize int

	// PutAttempts bounds the retry loop around payload writes and
	// blob metadata commits. Defaults to 3 if zero or negative.
	PutAttempts int

	// Clock provides the current time for timestamps, expiry checks,
	// and retry backoff. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Open creates an engine over the given database and payload root.
// Schema creation is idempotent and happens on first connection use.
func Open(cfg Config) (*Engine, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("engine: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("engine: Logger is required")
	}

	store, err := cas.NewStore(cfg.PayloadRoot)
	if err != nil {
		return nil, fmt.Errorf("engine: payload store: %w", err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.DatabasePath,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	putAttempts := cfg.PutAttempts
	if putAttempts <= 0 {
		putAttempts = 3
	}

	return &Engine{
		pool:        pool,
		cas:         store,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		putAttempts: putAttempts,
	}, nil
}

// Close closes the metadata pool. Blocks until all borrowed
// connections are returned.
func (e *Engine) Close() error {
	return e.pool.Close()
}

// now returns the engine clock's current time in UTC.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// timestampColumn converts a nullable Unix-nanosecond column to a
// time.Time, mapping NULL to the zero time.
func timestampColumn(stmt *sqlite.Stmt, column int) time.Time {
	if stmt.ColumnIsNull(column) {
		return time.Time{}
	}
	return time.Unix(0, stmt.ColumnInt64(column)).UTC()
}

// nullableNanos converts a time to a bindable Unix-nanosecond value,
// mapping the zero time to NULL.
func nullableNanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

// nullableText maps an empty string to NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt maps zero to NULL.
func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// nullableBlob maps an empty slice to NULL.
func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
