// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDatabase wraps failures reported by the database itself.
	ErrDatabase = errors.New("database error")
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrJumpCycle is returned when a jump assignment would make a host
	// reachable only through itself.
	ErrJumpCycle = errors.New("jump host chain forms a cycle")
	// ErrJumpDepth is returned when a jump chain exceeds the configured depth.
	ErrJumpDepth = errors.New("jump host chain too long")
	// ErrHostInUse is returned when deleting a host another host jumps through.
	ErrHostInUse = errors.New("host is used as a jump host")
)

// MapDBError maps common constraint violations to ErrDuplicate and leaves
// other errors untouched. Matching is string based so this file stays free
// of driver imports.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	le := strings.ToLower(err.Error())
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}

// wrapErr turns a driver error into one of the package sentinels, keeping
// the cause in the chain.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	for _, sentinel := range []error{ErrNotFound, ErrDuplicate, ErrJumpCycle, ErrJumpDepth, ErrHostInUse, ErrDatabase} {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if errors.Is(MapDBError(err), ErrDuplicate) {
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDatabase, err)
}
