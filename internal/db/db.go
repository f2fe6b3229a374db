// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db is the persistence layer for hosts, users, public keys,
// authorizations, pending trust requests and the audit log. One bun-backed
// store serves SQLite, PostgreSQL and MySQL; the dialect is picked from the
// configured database type.
package db // import "github.com/toeirei/keymaster-hub/internal/db"

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DefaultMaxJumpDepth bounds jump chains when the caller does not set one.
const DefaultMaxJumpDepth = 8

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// Option tweaks a BunStore at construction time.
type Option func(*BunStore)

// WithMaxJumpDepth sets the longest jump chain SetJumpHost and AddHost accept.
func WithMaxJumpDepth(n int) Option {
	return func(s *BunStore) {
		if n > 0 {
			s.maxJumpDepth = n
		}
	}
}

// driverName maps a database type to the registered database/sql driver.
func driverName(dbType string) (string, error) {
	switch dbType {
	case "sqlite", "mysql":
		return dbType, nil
	case "postgres":
		// pgx stdlib registers itself as "pgx".
		return "pgx", nil
	default:
		return "", fmt.Errorf("%w: unsupported database type %q", ErrDatabase, dbType)
	}
}

// NewStoreFromDSN opens the database, applies pending migrations and returns
// a store backed by a long-lived *bun.DB.
func NewStoreFromDSN(dbType, dsn string, opts ...Option) (*BunStore, error) {
	drv, err := driverName(dbType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	sqlDB, err := sqlOpenFunc(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDatabase, dbType, err)
	}
	configurePool(sqlDB, dbType, dsn)
	dbLogf("opened %s driver in %s", drv, time.Since(start))

	migStart := time.Now()
	if err := RunMigrations(sqlDB, dbType); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrations: %w", ErrDatabase, err)
	}
	dbLogf("migrations for %s completed in %s", dbType, time.Since(migStart))

	s := &BunStore{
		bun:          createBunDB(sqlDB, dbType),
		dbType:       dbType,
		maxJumpDepth: DefaultMaxJumpDepth,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// configurePool applies pool limits. Values can be overridden through
// KMHUB_DB_MAX_OPEN_CONNS, KMHUB_DB_MAX_IDLE_CONNS and
// KMHUB_DB_CONN_MAX_LIFETIME_SECONDS.
func configurePool(sqlDB *sql.DB, dbType, dsn string) {
	const (
		defaultMaxOpenConns    = 25
		defaultMaxIdleConns    = 25
		defaultConnMaxLifetime = 5 * time.Minute
	)
	maxOpen := envInt("KMHUB_DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
	maxIdle := envInt("KMHUB_DB_MAX_IDLE_CONNS", defaultMaxIdleConns)
	lifetime := defaultConnMaxLifetime
	if n := envInt("KMHUB_DB_CONN_MAX_LIFETIME_SECONDS", -1); n >= 0 {
		lifetime = time.Duration(n) * time.Second
	}

	// In-memory SQLite databases live per connection unless shared cache is
	// used, and shared cache locks whole tables. One connection keeps both
	// cases consistent.
	if dbType == "sqlite" && (dsn == ":memory:" || strings.Contains(dsn, "mode=memory")) {
		maxOpen, maxIdle = 1, 1
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}
