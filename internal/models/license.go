// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/dbinterface"
)

// License is an issued license key with its activation counter.
type License struct {
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	PlanType        string     `json:"planType"`
	MaxActivations  int        `json:"maxActivations"`
	ActivationsLeft int        `json:"activationsLeft"`
	IsActive        bool       `json:"isActive"`
}

// IsExpired reports whether the license has an expiry at or before now.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Usable returns the policy error that blocks new activations, ignoring the counter.
func (l *License) Usable(now time.Time) error {
	switch {
	case !l.IsActive:
		return ErrLicenseInactive
	case l.IsExpired(now):
		return ErrLicenseExpired
	}
	return nil
}

// LicenseCounts summarises the licenses table for metrics.
type LicenseCounts struct {
	Active   int
	Inactive int
	Expired  int
}

type LicenseStore struct {
	db dbinterface.Querier
}

func NewLicenseStore(db dbinterface.Querier) *LicenseStore {
	return &LicenseStore{db: db}
}

// WithTx returns a store bound to q, typically an open write transaction.
func (s *LicenseStore) WithTx(q dbinterface.Querier) *LicenseStore {
	return &LicenseStore{db: q}
}

const licenseColumns = `id, code, plan_type, max_activations, activations_left, is_active, expires_at, created_at, updated_at`

func scanLicense(row interface{ Scan(dest ...any) error }) (*License, error) {
	var (
		l         License
		expiresAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&l.ID, &l.Code, &l.PlanType, &l.MaxActivations, &l.ActivationsLeft, &l.IsActive, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.ExpiresAt = fromNullMicro(expiresAt)
	l.CreatedAt = fromMicro(createdAt)
	l.UpdatedAt = fromMicro(updatedAt)
	return &l, nil
}

// Create inserts l. A code collision returns ErrDuplicateKey.
func (s *LicenseStore) Create(ctx context.Context, l *License) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Code, l.PlanType, l.MaxActivations, l.ActivationsLeft, l.IsActive,
		toNullMicro(l.ExpiresAt), toMicro(l.CreatedAt), toMicro(l.UpdatedAt))

	switch {
	case isUniqueConstraintError(err):
		return ErrDuplicateKey
	case isCheckConstraintError(err):
		return errors.Wrap(ErrInvalidArgument, "activation counts out of range")
	}
	return storageError(err, "insert license")
}

func (s *LicenseStore) GetByCode(ctx context.Context, code string) (*License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE code = ?`, code)
	l, err := scanLicense(row)
	if err != nil {
		return nil, notFound(err, ErrLicenseNotFound, "get license by code")
	}
	return l, nil
}

func (s *LicenseStore) GetByID(ctx context.Context, id string) (*License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)
	l, err := scanLicense(row)
	if err != nil {
		return nil, notFound(err, ErrLicenseNotFound, "get license by id")
	}
	return l, nil
}

// ConsumeActivation decrements activations_left in a single conditional
// UPDATE, so two callers can never both take the last slot. When the guard
// fails the current row is inspected to report why.
func (s *LicenseStore) ConsumeActivation(ctx context.Context, id string, now time.Time) (*License, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE licenses
		SET activations_left = activations_left - 1, updated_at = ?
		WHERE id = ?
		  AND activations_left > 0
		  AND is_active = 1
		  AND (expires_at IS NULL OR expires_at > ?)
		RETURNING `+licenseColumns,
		toMicro(now), id, toMicro(now))

	l, err := scanLicense(row)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storageError(err, "consume activation")
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.Usable(now); err != nil {
		return nil, err
	}
	return nil, ErrNoActivationsLeft
}

// ReleaseActivation increments activations_left, never above max_activations.
func (s *LicenseStore) ReleaseActivation(ctx context.Context, id string, now time.Time) (*License, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE licenses
		SET activations_left = MIN(activations_left + 1, max_activations), updated_at = ?
		WHERE id = ?
		RETURNING `+licenseColumns,
		toMicro(now), id)

	l, err := scanLicense(row)
	if err != nil {
		return nil, notFound(err, ErrLicenseNotFound, "release activation")
	}
	return l, nil
}

// Deactivate soft-disables the license. changed is false when it was already inactive.
func (s *LicenseStore) Deactivate(ctx context.Context, id string, now time.Time) (l *License, changed bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE licenses SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1
		RETURNING `+licenseColumns,
		toMicro(now), id)

	l, err = scanLicense(row)
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, storageError(err, "deactivate license")
	}

	l, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return l, false, nil
}

func (s *LicenseStore) List(ctx context.Context, limit, offset int) ([]*License, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+licenseColumns+` FROM licenses
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, storageError(err, "list licenses")
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, storageError(err, "scan license")
		}
		licenses = append(licenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list licenses")
	}

	return licenses, nil
}

func (s *LicenseStore) Counts(ctx context.Context, now time.Time) (LicenseCounts, error) {
	var c LicenseCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_active = 1 AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM licenses
	`, toMicro(now), toMicro(now)).Scan(&c.Active, &c.Inactive, &c.Expired)
	if err != nil {
		return c, storageError(err, "count licenses")
	}
	return c, nil
}
