// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package license is the license registry: it issues codes and owns the
// activation counter of every license.
package license

import (
	"context"
	"crypto/rand"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"github.com/autobrr/entitled/internal/dbinterface"
	"github.com/autobrr/entitled/internal/domain"
	"github.com/autobrr/entitled/internal/models"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const (
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeGroupSize = 4
)

type Options struct {
	CodeGroups  int
	MaxAttempts int
	Clock       func() time.Time
}

// IssueRequest describes a new license.
type IssueRequest struct {
	ExpiresAt      *time.Time
	PlanType       string
	MaxActivations int
}

// Service handles license operations
type Service struct {
	store       *models.LicenseStore
	clock       func() time.Time
	generate    func(groups int) (string, error)
	codeGroups  int
	maxAttempts int
}

// NewLicenseService creates a new license service
func NewLicenseService(db dbinterface.Querier, opts Options) *Service {
	if opts.CodeGroups <= 0 {
		opts.CodeGroups = domain.DefaultLicenseCodeGroups
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = domain.DefaultIssueMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = models.Now
	}

	return &Service{
		store:       models.NewLicenseStore(db),
		clock:       opts.Clock,
		generate:    GenerateCode,
		codeGroups:  opts.CodeGroups,
		maxAttempts: opts.MaxAttempts,
	}
}

// WithTx returns a copy of the service bound to q.
func (s *Service) WithTx(q dbinterface.Querier) *Service {
	cp := *s
	cp.store = s.store.WithTx(q)
	return &cp
}

// GenerateCode returns a random code of groups dash-separated blocks.
func GenerateCode(groups int) (string, error) {
	if groups <= 0 {
		return "", errors.Wrap(models.ErrInvalidArgument, "code needs at least one group")
	}

	raw := make([]byte, groups*codeGroupSize)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}

	var sb strings.Builder
	sb.Grow(len(raw) + groups - 1)
	for i, b := range raw {
		if i > 0 && i%codeGroupSize == 0 {
			sb.WriteByte('-')
		}
		// 256 is a multiple of 32, so the modulo is unbiased.
		sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return sb.String(), nil
}

// Issue creates a license with a fresh random code. A code collision is
// retried with new randomness up to the configured attempt count.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.License, error) {
	planType := strings.TrimSpace(req.PlanType)
	if planType == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "plan type is required")
	}
	if req.MaxActivations < 1 {
		return nil, errors.Wrapf(models.ErrInvalidArgument, "max activations must be positive, got %d", req.MaxActivations)
	}

	now := models.Truncate(s.clock())
	if req.ExpiresAt != nil {
		exp := models.Truncate(*req.ExpiresAt)
		req.ExpiresAt = &exp
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generate(s.codeGroups)
		if err != nil {
			return nil, err
		}

		l := &models.License{
			ID:              uuid.NewString(),
			Code:            code,
			PlanType:        planType,
			MaxActivations:  req.MaxActivations,
			ActivationsLeft: req.MaxActivations,
			IsActive:        true,
			ExpiresAt:       req.ExpiresAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		err = s.store.Create(ctx, l)
		switch {
		case err == nil:
			log.Info().
				Str("licenseId", l.ID).
				Str("licenseKey", MaskLicenseKey(code)).
				Str("planType", planType).
				Int("maxActivations", l.MaxActivations).
				Msg("license issued")
			return l, nil
		case errors.Is(err, models.ErrDuplicateKey):
			log.Warn().Int("attempt", attempt).Msg("license code collision, retrying")
			continue
		default:
			return nil, errors.Wrap(err, "store license")
		}
	}

	return nil, errors.Wrapf(models.ErrDuplicateKey, "no unique code after %d attempts", s.maxAttempts)
}

// Get looks a license up by code. The code is normalized first, see
// NormalizeCode.
func (s *Service) Get(ctx context.Context, code string) (*models.License, error) {
	return s.store.GetByCode(ctx, NormalizeCode(code))
}

// NormalizeCode folds user input onto the issued form: compatibility forms
// such as full-width letters become ASCII, letters are upper-cased, any
// Unicode dash becomes '-' and surrounding space is dropped.
func NormalizeCode(code string) string {
	code = norm.NFKC.String(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2212':
			return '-'
		}
		return unicode.ToUpper(r)
	}, code)
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.License, error) {
	return s.store.GetByID(ctx, id)
}

// ConsumeActivation takes one activation slot. It fails with
// ErrLicenseInactive, ErrLicenseExpired or ErrNoActivationsLeft without
// touching the counter.
func (s *Service) ConsumeActivation(ctx context.Context, licenseID string) (*models.License, error) {
	return s.store.ConsumeActivation(ctx, licenseID, s.clock())
}

// ReleaseActivation returns one slot, never exceeding maxActivations.
func (s *Service) ReleaseActivation(ctx context.Context, licenseID string) (*models.License, error) {
	return s.store.ReleaseActivation(ctx, licenseID, s.clock())
}

// Deactivate disables the license. changed is false when it already was.
func (s *Service) Deactivate(ctx context.Context, licenseID string) (l *models.License, changed bool, err error) {
	l, changed, err = s.store.Deactivate(ctx, licenseID, s.clock())
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.Info().Str("licenseId", l.ID).Str("licenseKey", MaskLicenseKey(l.Code)).Msg("license disabled")
	}
	return l, changed, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.License, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Counts(ctx context.Context) (models.LicenseCounts, error) {
	return s.store.Counts(ctx, s.clock())
}

// MaskLicenseKey keeps the first and last four characters of a code for logs.
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}
