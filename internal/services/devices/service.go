// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package devices is the device registry: fingerprinted clients per user and
// their blacklist state.
package devices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/dbinterface"
	"github.com/autobrr/entitled/internal/ledger"
	"github.com/autobrr/entitled/internal/models"
)

type Service struct {
	store *models.DeviceStore
	clock func() time.Time
}

func NewService(db dbinterface.Querier, clock func() time.Time) *Service {
	if clock == nil {
		clock = models.Now
	}
	return &Service{
		store: models.NewDeviceStore(db),
		clock: clock,
	}
}

// WithTx returns a copy of the service bound to q.
func (s *Service) WithTx(q dbinterface.Querier) *Service {
	cp := *s
	cp.store = s.store.WithTx(q)
	return &cp
}

type Sighting struct {
	Metadata    map[string]string
	UserID      string
	Fingerprint string
	Name        string
}

// DeviceID derives the public device id from the owner and fingerprint, so
// the same sighting always maps to the same id.
func DeviceID(userID, fingerprint string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + fingerprint))
	return "dev_" + hex.EncodeToString(sum[:8])
}

// FindOrCreate returns the user's device with this fingerprint, creating it
// on first sighting. isNew reports whether this call created it.
func (s *Service) FindOrCreate(ctx context.Context, in Sighting) (d *models.Device, isNew bool, err error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Fingerprint = strings.TrimSpace(in.Fingerprint)
	if in.UserID == "" || in.Fingerprint == "" {
		return nil, false, errors.Wrap(models.ErrInvalidArgument, "user id and fingerprint are required")
	}

	d, err = s.store.GetByFingerprint(ctx, in.UserID, in.Fingerprint)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, models.ErrDeviceNotFound) {
		return nil, false, err
	}

	now := models.Truncate(s.clock())
	d = &models.Device{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		DeviceID:    DeviceID(in.UserID, in.Fingerprint),
		Name:        in.Name,
		Fingerprint: in.Fingerprint,
		TrustScore:  models.DefaultTrustScore,
		Metadata:    in.Metadata,
		FirstSeen:   now,
		LastSeen:    now,
	}

	err = s.store.Create(ctx, d)
	switch {
	case err == nil:
		log.Debug().Str("userId", d.UserID).Str("deviceId", d.DeviceID).Msg("device registered")
		return d, true, nil
	case errors.Is(err, models.ErrDuplicateKey):
		// lost a race with a concurrent first sighting
		d, err = s.store.GetByFingerprint(ctx, in.UserID, in.Fingerprint)
		if err != nil {
			return nil, false, err
		}
		return d, false, nil
	default:
		return nil, false, err
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Device, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Find(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	return s.store.GetByFingerprint(ctx, userID, fingerprint)
}

// ListByFingerprint returns the devices of every account sharing fingerprint.
func (s *Service) ListByFingerprint(ctx context.Context, fingerprint string) ([]*models.Device, error) {
	return s.store.ListByFingerprint(ctx, fingerprint)
}

func (s *Service) Touch(ctx context.Context, id string) error {
	return s.store.Touch(ctx, id, s.clock())
}

func (s *Service) MarkCurrent(ctx context.Context, d *models.Device) error {
	if err := s.store.MarkCurrent(ctx, d.UserID, d.ID); err != nil {
		return err
	}
	d.IsCurrentDevice = true
	return nil
}

// Blacklist flags the device and returns the device_blacklisted transaction
// describing the call. The transaction is produced even when the device was
// already blacklisted; its metadata records which case applied.
func (s *Service) Blacklist(ctx context.Context, id, reason string) (*models.Device, models.LedgerTransaction, error) {
	d, changed, err := s.store.SetBlacklisted(ctx, id, reason, s.clock())
	if err != nil {
		return nil, models.LedgerTransaction{}, err
	}

	if changed {
		log.Warn().Str("userId", d.UserID).Str("deviceId", d.DeviceID).Str("reason", reason).Msg("device blacklisted")
	}

	tx := ledger.NewTransaction(models.ActionDeviceBlacklisted, d.ID, map[string]string{
		"userId":             d.UserID,
		"deviceId":           d.DeviceID,
		"reason":             reason,
		"alreadyBlacklisted": strconv.FormatBool(!changed),
	})
	return d, tx, nil
}

// Unblacklist clears the blacklist state. changed is false when the device
// was not blacklisted.
func (s *Service) Unblacklist(ctx context.Context, id string) (d *models.Device, changed bool, err error) {
	d, changed, err = s.store.ClearBlacklist(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.Info().Str("userId", d.UserID).Str("deviceId", d.DeviceID).Msg("device restored")
	}
	return d, changed, nil
}

// ListActive returns the user's devices that are not blacklisted.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*models.Device, error) {
	return s.store.ListByUser(ctx, userID, false)
}

func (s *Service) ListAll(ctx context.Context, userID string) ([]*models.Device, error) {
	return s.store.ListByUser(ctx, userID, true)
}

func (s *Service) CountBlacklisted(ctx context.Context) (int, error) {
	return s.store.CountBlacklisted(ctx)
}

