// Package repository contains data access logic separated from HTTP handlers.
// This file defines sentinel errors shared across repositories so that higher
// layers can map failure scenarios to HTTP responses without inspecting SQL
// errors themselves.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrUserNotFound is returned when an account lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when an insert collides with the unique index
// over non-deleted account emails.
var ErrEmailExists = errors.New("email already registered")

// ErrAdminExists is returned when the guarded bootstrap insert finds a
// non-deleted admin already present.
var ErrAdminExists = errors.New("admin account already exists")

// ErrStrainNotFound is returned when a strain lookup matches no row, or when
// a mutation touches zero rows because the record changed state concurrently.
var ErrStrainNotFound = errors.New("strain not found")

// ErrStrainCodeExists is returned when an insert or update collides with the
// unique index over non-deleted strain codes.
var ErrStrainCodeExists = errors.New("strain code already exists")

// DBTX is satisfied by both *sql.DB and *sql.Tx.  Repository methods that
// must participate in a caller's transaction accept it instead of a concrete
// handle.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isDuplicate reports whether err is a MySQL duplicate-key violation (1062).
// The unique indexes are the correctness mechanism for concurrent inserts;
// this mapping only turns the race loser's error into a friendly conflict.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
