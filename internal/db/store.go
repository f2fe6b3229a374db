// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// BunStore implements persistence for every supported dialect. Each method
// is one short transaction or a single statement; no transaction outlives
// the call.
type BunStore struct {
	bun          *bun.DB
	dbType       string
	maxJumpDepth int
}

// BunDB exposes the underlying *bun.DB for maintenance and tests.
func (s *BunStore) BunDB() *bun.DB { return s.bun }

// Type returns the configured database type.
func (s *BunStore) Type() string { return s.dbType }

// MaxJumpDepth returns the longest jump chain the store accepts.
func (s *BunStore) MaxJumpDepth() int { return s.maxJumpDepth }

// Close releases the database handle.
func (s *BunStore) Close() error {
	return s.bun.Close()
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, bdb *bun.DB, fn func(ctx context.Context, tx bun.Tx) error) error {
	return bdb.RunInTx(ctx, &sql.TxOptions{}, fn)
}
