// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/entitled/internal/dbinterface"
)

const DefaultTrustScore = 50

// Device is a fingerprinted client belonging to one user account.
type Device struct {
	FirstSeen       time.Time         `json:"firstSeen"`
	LastSeen        time.Time         `json:"lastSeen"`
	BlacklistedAt   *time.Time        `json:"blacklistedAt,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	DeviceID        string            `json:"deviceId"`
	Name            string            `json:"name,omitempty"`
	Fingerprint     string            `json:"fingerprint"`
	BlacklistReason string            `json:"blacklistReason,omitempty"`
	TrustScore      int               `json:"trustScore"`
	IsBlacklisted   bool              `json:"isBlacklisted"`
	IsCurrentDevice bool              `json:"isCurrentDevice"`
}

type DeviceStore struct {
	db dbinterface.Querier
}

func NewDeviceStore(db dbinterface.Querier) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) WithTx(q dbinterface.Querier) *DeviceStore {
	return &DeviceStore{db: q}
}

const deviceColumns = `id, user_id, device_id, name, fingerprint, trust_score, is_blacklisted, blacklist_reason,
	blacklisted_at, is_current_device, metadata, first_seen, last_seen`

func scanDevice(row interface{ Scan(dest ...any) error }) (*Device, error) {
	var (
		d             Device
		reason        sql.NullString
		blacklistedAt sql.NullInt64
		metadata      string
		firstSeen     int64
		lastSeen      int64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Name, &d.Fingerprint, &d.TrustScore, &d.IsBlacklisted,
		&reason, &blacklistedAt, &d.IsCurrentDevice, &metadata, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}

	d.BlacklistReason = reason.String
	d.BlacklistedAt = fromNullMicro(blacklistedAt)
	d.FirstSeen = fromMicro(firstSeen)
	d.LastSeen = fromMicro(lastSeen)

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &d.Metadata); err != nil {
			return nil, errors.Wrapf(err, "decode metadata for device %s", d.ID)
		}
	}

	return &d, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts d. A second device with the same (userId, fingerprint)
// returns ErrDuplicateKey so the caller can re-read the winner.
func (s *DeviceStore) Create(ctx context.Context, d *Device) error {
	metadata, err := encodeMetadata(d.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode device metadata")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?)
	`, d.ID, d.UserID, d.DeviceID, d.Name, d.Fingerprint, d.TrustScore, d.IsBlacklisted,
		d.IsCurrentDevice, metadata, toMicro(d.FirstSeen), toMicro(d.LastSeen))

	if isUniqueConstraintError(err) {
		return ErrDuplicateKey
	}
	return storageError(err, "insert device")
}

func (s *DeviceStore) GetByID(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		return nil, notFound(err, ErrDeviceNotFound, "get device")
	}
	return d, nil
}

func (s *DeviceStore) GetByFingerprint(ctx context.Context, userID, fingerprint string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = ? AND fingerprint = ?`, userID, fingerprint)
	d, err := scanDevice(row)
	if err != nil {
		return nil, notFound(err, ErrDeviceNotFound, "get device by fingerprint")
	}
	return d, nil
}

// ListByFingerprint returns every account's device with this fingerprint.
func (s *DeviceStore) ListByFingerprint(ctx context.Context, fingerprint string) ([]*Device, error) {
	return s.list(ctx, `SELECT `+deviceColumns+` FROM devices WHERE fingerprint = ? ORDER BY first_seen, id`, fingerprint)
}

// ListByUser returns the user's devices; blacklisted ones only when includeBlacklisted is set.
func (s *DeviceStore) ListByUser(ctx context.Context, userID string, includeBlacklisted bool) ([]*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = ?`
	if !includeBlacklisted {
		query += ` AND is_blacklisted = 0`
	}
	query += ` ORDER BY first_seen, id`
	return s.list(ctx, query, userID)
}

func (s *DeviceStore) list(ctx context.Context, query string, args ...any) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "list devices")
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, storageError(err, "scan device")
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list devices")
	}
	return devices, nil
}

func (s *DeviceStore) Touch(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET last_seen = ? WHERE id = ?`, toMicro(now), id)
	if err != nil {
		return storageError(err, "touch device")
	}
	return requireAffected(res, ErrDeviceNotFound)
}

// SetBlacklisted flags the device. An already blacklisted device keeps its
// original reason and timestamp; changed reports whether this call flipped it.
func (s *DeviceStore) SetBlacklisted(ctx context.Context, id, reason string, now time.Time) (d *Device, changed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET is_blacklisted = 1, blacklist_reason = ?, blacklisted_at = ?, is_current_device = 0
		WHERE id = ? AND is_blacklisted = 0
	`, reason, toMicro(now), id)
	if err != nil {
		return nil, false, storageError(err, "blacklist device")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, storageError(err, "blacklist device")
	}

	d, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, n > 0, nil
}

// ClearBlacklist removes the blacklist flag and its stamps.
func (s *DeviceStore) ClearBlacklist(ctx context.Context, id string) (d *Device, changed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET is_blacklisted = 0, blacklist_reason = NULL, blacklisted_at = NULL
		WHERE id = ? AND is_blacklisted = 1
	`, id)
	if err != nil {
		return nil, false, storageError(err, "unblacklist device")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, storageError(err, "unblacklist device")
	}

	d, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, n > 0, nil
}

// MarkCurrent makes id the user's only current device.
func (s *DeviceStore) MarkCurrent(ctx context.Context, userID, id string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE devices SET is_current_device = CASE WHEN id = ? THEN 1 ELSE 0 END
		WHERE user_id = ?
	`, id, userID); err != nil {
		return storageError(err, "mark current device")
	}
	return nil
}

func (s *DeviceStore) CountBlacklisted(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE is_blacklisted = 1`).Scan(&n); err != nil {
		return 0, storageError(err, "count blacklisted devices")
	}
	return n, nil
}

func requireAffected(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageError(err, "rows affected")
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
