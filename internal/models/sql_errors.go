// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

func sqliteCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code(), true
	}
	return 0, false
}

func isUniqueConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isCheckConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlitelib.SQLITE_CONSTRAINT_CHECK
}

// isBusyError matches SQLITE_BUSY and SQLITE_LOCKED including their extended codes.
func isBusyError(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlitelib.SQLITE_BUSY || primary == sqlitelib.SQLITE_LOCKED
}

// storageError annotates err with op and, when SQLite reports contention,
// marks it as ErrTransientStorage so callers can retry.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransientStorage, err)
	}
	return errors.Wrap(err, op)
}

// notFound maps sql.ErrNoRows to sentinel and wraps anything else as a storage error.
func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return storageError(err, op)
}

// StorageError is storageError for callers outside the stores, such as
// transaction commits.
func StorageError(err error, op string) error {
	return storageError(err, op)
}
