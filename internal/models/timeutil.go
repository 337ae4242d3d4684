// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"database/sql"
	"time"
)

// Timestamps are persisted as unix microseconds so values round-trip exactly,
// which the ledger relies on when re-hashing stored blocks.

// Now returns the current UTC time at storage precision.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate converts t to UTC at storage precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func toNullMicro(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicro(*t), Valid: true}
}

func fromNullMicro(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicro(v.Int64)
	return &t
}
