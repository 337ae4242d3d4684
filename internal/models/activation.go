// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/autobrr/entitled/internal/dbinterface"
)

// Activation binds a license to a device. Rows are never deleted; a released
// binding keeps its history with IsActive=false.
type Activation struct {
	ActivatedAt   time.Time  `json:"activatedAt"`
	LastCheckedAt time.Time  `json:"lastCheckedAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	ID            string     `json:"id"`
	LicenseID     string     `json:"licenseId"`
	DeviceID      string     `json:"deviceId"`
	IPAddress     string     `json:"ipAddress,omitempty"`
	IsActive      bool       `json:"isActive"`
}

type ActivationStore struct {
	db dbinterface.Querier
}

func NewActivationStore(db dbinterface.Querier) *ActivationStore {
	return &ActivationStore{db: db}
}

func (s *ActivationStore) WithTx(q dbinterface.Querier) *ActivationStore {
	return &ActivationStore{db: q}
}

const activationColumns = `a.id, a.license_id, a.device_id, a.ip_address, a.activated_at, a.last_checked_at, a.deactivated_at, a.is_active`

func scanActivation(row interface{ Scan(dest ...any) error }) (*Activation, error) {
	var (
		a             Activation
		activatedAt   int64
		lastCheckedAt int64
		deactivatedAt sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.LicenseID, &a.DeviceID, &a.IPAddress, &activatedAt, &lastCheckedAt, &deactivatedAt, &a.IsActive); err != nil {
		return nil, err
	}
	a.ActivatedAt = fromMicro(activatedAt)
	a.LastCheckedAt = fromMicro(lastCheckedAt)
	a.DeactivatedAt = fromNullMicro(deactivatedAt)
	return &a, nil
}

// Create inserts an active binding. A second active binding for the same
// (license, device) pair returns ErrAlreadyActive.
func (s *ActivationStore) Create(ctx context.Context, a *Activation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activations (id, license_id, device_id, ip_address, activated_at, last_checked_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, a.ID, a.LicenseID, a.DeviceID, a.IPAddress, toMicro(a.ActivatedAt), toMicro(a.LastCheckedAt))

	if isUniqueConstraintError(err) {
		return ErrAlreadyActive
	}
	if err != nil {
		return storageError(err, "insert activation")
	}
	a.IsActive = true
	return nil
}

// GetActive returns the active binding for the pair or ErrNotActivated.
func (s *ActivationStore) GetActive(ctx context.Context, licenseID, deviceID string) (*Activation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+activationColumns+` FROM activations a
		WHERE a.license_id = ? AND a.device_id = ? AND a.is_active = 1
	`, licenseID, deviceID)

	a, err := scanActivation(row)
	if err != nil {
		return nil, notFound(err, ErrNotActivated, "get active binding")
	}
	return a, nil
}

// Deactivate marks the binding inactive. It returns ErrNotActivated when the
// binding is missing or already inactive.
func (s *ActivationStore) Deactivate(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE activations SET is_active = 0, deactivated_at = ?
		WHERE id = ? AND is_active = 1
	`, toMicro(now), id)
	if err != nil {
		return storageError(err, "deactivate binding")
	}
	return requireAffected(res, ErrNotActivated)
}

func (s *ActivationStore) TouchChecked(ctx context.Context, id string, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE activations SET last_checked_at = ? WHERE id = ?`, toMicro(now), id); err != nil {
		return storageError(err, "touch binding")
	}
	return nil
}

func (s *ActivationStore) ListActiveByDevice(ctx context.Context, deviceID string) ([]*Activation, error) {
	return s.list(ctx, `
		SELECT `+activationColumns+` FROM activations a
		WHERE a.device_id = ? AND a.is_active = 1
		ORDER BY a.activated_at, a.id
	`, deviceID)
}

func (s *ActivationStore) ListActiveByLicense(ctx context.Context, licenseID string) ([]*Activation, error) {
	return s.list(ctx, `
		SELECT `+activationColumns+` FROM activations a
		WHERE a.license_id = ? AND a.is_active = 1
		ORDER BY a.activated_at, a.id
	`, licenseID)
}

// ListActiveByUser returns active bindings held by any of the user's devices.
func (s *ActivationStore) ListActiveByUser(ctx context.Context, userID string) ([]*Activation, error) {
	return s.list(ctx, `
		SELECT `+activationColumns+` FROM activations a
		JOIN devices d ON d.id = a.device_id
		WHERE d.user_id = ? AND a.is_active = 1
		ORDER BY a.activated_at, a.id
	`, userID)
}

func (s *ActivationStore) list(ctx context.Context, query string, args ...any) ([]*Activation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "list bindings")
	}
	defer rows.Close()

	var out []*Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, storageError(err, "scan binding")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list bindings")
	}
	return out, nil
}

func (s *ActivationStore) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activations WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, storageError(err, "count active bindings")
	}
	return n, nil
}
