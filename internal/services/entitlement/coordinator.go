// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package entitlement coordinates license and device registries and the
// ledger. Every mutating operation runs in one write transaction that also
// persists the ledger block describing it, so either all of it happens or
// none of it does.
//
// Locking: Activate and Deactivate hold the license stripe, and every
// operation that changes a user's bindings holds that user's stripe. Stripes
// are always taken before the write transaction begins.
package entitlement

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/dbinterface"
	"github.com/autobrr/entitled/internal/domain"
	"github.com/autobrr/entitled/internal/ledger"
	"github.com/autobrr/entitled/internal/models"
	"github.com/autobrr/entitled/internal/services/devices"
	"github.com/autobrr/entitled/internal/services/license"
)

const (
	ReasonSingleDevicePolicy = "single device policy"
	ReasonDeviceRevoked      = "device revoked"
)

type Options struct {
	RiskPolicy         *RiskPolicy
	Clock              func() time.Time
	Observer           func(operation string, err error)
	RetryAttempts      uint
	RetryDelay         time.Duration
	LockStripes        int
	SingleDevicePolicy bool
}

// OptionsFromConfig maps the configuration onto coordinator options.
func OptionsFromConfig(cfg *domain.Config) (Options, error) {
	risk, err := CompileRiskPolicy(cfg.RiskPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		RiskPolicy:         risk,
		RetryAttempts:      uint(max(cfg.RetryAttempts, 1)),
		RetryDelay:         cfg.RetryDelay(),
		SingleDevicePolicy: cfg.SingleDevicePolicy,
	}, nil
}

type Coordinator struct {
	db          dbinterface.TxBeginner
	licenses    *license.Service
	devices     *devices.Service
	activations *models.ActivationStore
	ledger      *ledger.Ledger
	locks       *lockTable
	clock       func() time.Time
	observer    func(operation string, err error)

	singleDevice atomic.Bool
	risk         atomic.Pointer[RiskPolicy]

	retryAttempts uint
	retryDelay    time.Duration
}

func New(db dbinterface.TxBeginner, licenses *license.Service, devs *devices.Service, l *ledger.Ledger, opts Options) *Coordinator {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = domain.DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = domain.DefaultRetryDelayMs * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = models.Now
	}

	c := &Coordinator{
		db:            db,
		licenses:      licenses,
		devices:       devs,
		activations:   models.NewActivationStore(db),
		ledger:        l,
		locks:         newLockTable(opts.LockStripes),
		clock:         opts.Clock,
		observer:      opts.Observer,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
	}
	c.singleDevice.Store(opts.SingleDevicePolicy)
	c.risk.Store(opts.RiskPolicy)
	return c
}

// SetSingleDevicePolicy toggles the account-wide single device rule.
func (c *Coordinator) SetSingleDevicePolicy(enabled bool) {
	if c.singleDevice.Swap(enabled) != enabled {
		log.Info().Bool("enabled", enabled).Msg("single device policy changed")
	}
}

func (c *Coordinator) SetRiskPolicy(p *RiskPolicy) {
	c.risk.Store(p)
	log.Info().Str("policy", p.String()).Msg("risk policy changed")
}

func (c *Coordinator) observe(op string, err error) {
	if c.observer != nil {
		c.observer(op, err)
	}
}

// inTx runs fn inside a write transaction and commits when it returns nil.
func (c *Coordinator) inTx(ctx context.Context, fn func(q dbinterface.Querier) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return models.StorageError(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return models.StorageError(tx.Commit(), "commit transaction")
}

// withRetry retries fn on transient storage errors with exponential backoff.
func (c *Coordinator) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(models.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("operation", op).Uint("attempt", n+1).Msg("transient storage error, retrying")
		}),
	)
}

// Activate binds the license to the caller's device.
func (c *Coordinator) Activate(ctx context.Context, req ActivateRequest) (res *ActivateResult, err error) {
	defer func() { c.observe("activate", err) }()

	req.LicenseCode = strings.TrimSpace(req.LicenseCode)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Fingerprint = strings.TrimSpace(req.Fingerprint)
	if req.LicenseCode == "" || req.UserID == "" || req.Fingerprint == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "license code, user id and fingerprint are required")
	}

	// code to id never changes, so it can be resolved before locking
	lic, err := c.licenses.Get(ctx, req.LicenseCode)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(licenseKey(lic.ID), userKey(req.UserID))
	defer unlock()

	err = c.withRetry(ctx, "activate", func() error {
		return c.inTx(ctx, func(q dbinterface.Querier) error {
			var err error
			res, err = c.activateTx(ctx, q, lic.ID, req)
			return err
		})
	})
	if err != nil {
		log.Debug().
			Err(err).
			Str("licenseKey", license.MaskLicenseKey(req.LicenseCode)).
			Str("userId", req.UserID).
			Msg("activation refused")
		return nil, err
	}

	if res.Notice == "" {
		log.Info().
			Str("licenseId", res.License.ID).
			Str("deviceId", res.Device.DeviceID).
			Int("activationsLeft", res.License.ActivationsLeft).
			Int("revoked", len(res.Revoked)).
			Int64("block", res.BlockIndex).
			Msg("license activated")
	}
	return res, nil
}

func (c *Coordinator) activateTx(ctx context.Context, q dbinterface.Querier, licenseID string, req ActivateRequest) (*ActivateResult, error) {
	licenses := c.licenses.WithTx(q)
	devs := c.devices.WithTx(q)
	activations := c.activations.WithTx(q)

	lic, err := licenses.GetByID(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	if err := lic.Usable(c.clock()); err != nil {
		return nil, err
	}

	dev, isNew, err := devs.FindOrCreate(ctx, devices.Sighting{
		UserID:      req.UserID,
		Fingerprint: req.Fingerprint,
		Name:        req.DeviceName,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if dev.IsBlacklisted {
		return nil, deviceBlocked(dev)
	}

	existing, err := activations.GetActive(ctx, lic.ID, dev.ID)
	switch {
	case err == nil:
		if err := devs.Touch(ctx, dev.ID); err != nil {
			return nil, err
		}
		return &ActivateResult{
			License:    lic,
			Device:     dev,
			Activation: existing,
			Notice:     NoticeAlreadyActive,
			Receipt:    receiptFor(nil),
		}, nil
	case !errors.Is(err, models.ErrNotActivated):
		return nil, err
	}

	active, err := devs.ListActive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	allowed, err := c.risk.Load().Allow(RiskInput{
		UserID:        req.UserID,
		IP:            req.IPAddress,
		PlanType:      lic.PlanType,
		TrustScore:    dev.TrustScore,
		ActiveDevices: len(active),
		IsNew:         isNew,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.ErrRiskPolicyDenied
	}

	var (
		txs     []models.LedgerTransaction
		revoked []*models.Device
	)

	if c.singleDevice.Load() {
		others, err := c.otherBoundDevices(ctx, activations, req.UserID, dev.ID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			d, _, revokeTxs, err := c.revokeTx(ctx, q, other, ReasonSingleDevicePolicy)
			if err != nil {
				return nil, err
			}
			revoked = append(revoked, d)
			txs = append(txs, revokeTxs...)
		}
	}

	lic, err = licenses.ConsumeActivation(ctx, lic.ID)
	if err != nil {
		return nil, err
	}

	now := models.Truncate(c.clock())
	binding := &models.Activation{
		ID:            uuid.NewString(),
		LicenseID:     lic.ID,
		DeviceID:      dev.ID,
		IPAddress:     req.IPAddress,
		ActivatedAt:   now,
		LastCheckedAt: now,
	}
	if err := activations.Create(ctx, binding); err != nil {
		return nil, err
	}
	if err := devs.Touch(ctx, dev.ID); err != nil {
		return nil, err
	}
	if err := devs.MarkCurrent(ctx, dev); err != nil {
		return nil, err
	}

	txs = append(txs, ledger.NewTransaction(models.ActionLicenseActivated, lic.ID, map[string]string{
		"activationId":    binding.ID,
		"deviceId":        dev.DeviceID,
		"userId":          dev.UserID,
		"ip":              req.IPAddress,
		"activationsLeft": strconv.Itoa(lic.ActivationsLeft),
	}))

	block, err := c.ledger.Commit(ctx, q, txs...)
	if err != nil {
		return nil, err
	}

	return &ActivateResult{
		License:    lic,
		Device:     dev,
		Activation: binding,
		Revoked:    revoked,
		Receipt:    receiptFor(block),
	}, nil
}

// otherBoundDevices returns the user's devices other than keep that hold an
// active binding on any license.
func (c *Coordinator) otherBoundDevices(ctx context.Context, activations *models.ActivationStore, userID, keep string) ([]string, error) {
	bindings, err := activations.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, b := range bindings {
		if b.DeviceID == keep {
			continue
		}
		if _, ok := seen[b.DeviceID]; ok {
			continue
		}
		seen[b.DeviceID] = struct{}{}
		ids = append(ids, b.DeviceID)
	}
	return ids, nil
}

// Deactivate releases one binding and returns its slot to the license.
func (c *Coordinator) Deactivate(ctx context.Context, req DeactivateRequest) (res *DeactivateResult, err error) {
	defer func() { c.observe("deactivate", err) }()

	req.LicenseID = strings.TrimSpace(req.LicenseID)
	req.Fingerprint = strings.TrimSpace(req.Fingerprint)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.LicenseID == "" || req.Fingerprint == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "license id and fingerprint are required")
	}

	_, dev, err := c.findBinding(ctx, c.activations, c.devices, req)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(licenseKey(req.LicenseID), userKey(dev.UserID))
	defer unlock()

	err = c.withRetry(ctx, "deactivate", func() error {
		return c.inTx(ctx, func(q dbinterface.Querier) error {
			var err error
			res, err = c.deactivateTx(ctx, q, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("licenseId", res.License.ID).
		Str("deviceId", dev.DeviceID).
		Int("activationsLeft", res.License.ActivationsLeft).
		Int64("block", res.BlockIndex).
		Msg("license deactivated")
	return res, nil
}

func (c *Coordinator) deactivateTx(ctx context.Context, q dbinterface.Querier, req DeactivateRequest) (*DeactivateResult, error) {
	activations := c.activations.WithTx(q)

	// re-read under the lock: a retried attempt may find the binding gone
	binding, dev, err := c.findBinding(ctx, activations, c.devices.WithTx(q), req)
	if err != nil {
		return nil, err
	}

	now := models.Truncate(c.clock())
	if err := activations.Deactivate(ctx, binding.ID, now); err != nil {
		return nil, err
	}
	binding.IsActive = false
	binding.DeactivatedAt = &now

	lic, err := c.licenses.WithTx(q).ReleaseActivation(ctx, binding.LicenseID)
	if err != nil {
		return nil, err
	}

	block, err := c.ledger.Commit(ctx, q, ledger.NewTransaction(models.ActionLicenseDeactivated, lic.ID, map[string]string{
		"activationId":    binding.ID,
		"deviceId":        dev.DeviceID,
		"userId":          dev.UserID,
		"activationsLeft": strconv.Itoa(lic.ActivationsLeft),
	}))
	if err != nil {
		return nil, err
	}

	return &DeactivateResult{License: lic, Activation: binding, Receipt: receiptFor(block)}, nil
}

// findBinding resolves the active binding of the license on the device with
// the request's fingerprint.
func (c *Coordinator) findBinding(ctx context.Context, activations *models.ActivationStore, devs *devices.Service, req DeactivateRequest) (*models.Activation, *models.Device, error) {
	if req.UserID != "" {
		dev, err := devs.Find(ctx, req.UserID, req.Fingerprint)
		if errors.Is(err, models.ErrDeviceNotFound) {
			return nil, nil, models.ErrNotActivated
		}
		if err != nil {
			return nil, nil, err
		}
		binding, err := activations.GetActive(ctx, req.LicenseID, dev.ID)
		if err != nil {
			return nil, nil, err
		}
		return binding, dev, nil
	}

	if _, err := c.licenses.GetByID(ctx, req.LicenseID); err != nil {
		return nil, nil, err
	}

	bindings, err := activations.ListActiveByLicense(ctx, req.LicenseID)
	if err != nil {
		return nil, nil, err
	}

	var (
		match    *models.Activation
		matchDev *models.Device
	)
	for _, b := range bindings {
		dev, err := devs.Get(ctx, b.DeviceID)
		if err != nil {
			return nil, nil, err
		}
		if dev.Fingerprint != req.Fingerprint {
			continue
		}
		if match != nil {
			return nil, nil, errors.Wrap(models.ErrInvalidArgument, "fingerprint is bound from several accounts, user id required")
		}
		match, matchDev = b, dev
	}
	if match == nil {
		return nil, nil, models.ErrNotActivated
	}
	return match, matchDev, nil
}

// RevokeDevice releases every binding the device holds and blacklists it.
// The released bindings and the blacklist land in a single block.
func (c *Coordinator) RevokeDevice(ctx context.Context, deviceID, reason string) (res *RevokeResult, err error) {
	defer func() { c.observe("revoke_device", err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonDeviceRevoked
	}

	dev, err := c.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(userKey(dev.UserID))
	defer unlock()

	err = c.inTx(ctx, func(q dbinterface.Querier) error {
		d, released, txs, err := c.revokeTx(ctx, q, deviceID, reason)
		if err != nil {
			return err
		}
		block, err := c.ledger.Commit(ctx, q, txs...)
		if err != nil {
			return err
		}
		res = &RevokeResult{Device: d, Released: released, Receipt: receiptFor(block)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Warn().
		Str("userId", res.Device.UserID).
		Str("deviceId", res.Device.DeviceID).
		Str("reason", reason).
		Int("released", len(res.Released)).
		Int64("block", res.BlockIndex).
		Msg("device revoked")
	return res, nil
}

// revokeTx derives the device's bindings inside q, releases them and
// blacklists the device. It returns the transactions to seal; the caller
// seals them together with its own.
func (c *Coordinator) revokeTx(ctx context.Context, q dbinterface.Querier, deviceID, reason string) (*models.Device, []*models.Activation, []models.LedgerTransaction, error) {
	activations := c.activations.WithTx(q)
	licenses := c.licenses.WithTx(q)

	bindings, err := activations.ListActiveByDevice(ctx, deviceID)
	if err != nil {
		return nil, nil, nil, err
	}

	now := models.Truncate(c.clock())
	txs := make([]models.LedgerTransaction, 0, len(bindings)+1)
	for _, b := range bindings {
		if err := activations.Deactivate(ctx, b.ID, now); err != nil {
			return nil, nil, nil, err
		}
		b.IsActive = false
		b.DeactivatedAt = &now

		lic, err := licenses.ReleaseActivation(ctx, b.LicenseID)
		if err != nil {
			return nil, nil, nil, err
		}
		txs = append(txs, ledger.NewTransaction(models.ActionLicenseDeactivated, lic.ID, map[string]string{
			"activationId":    b.ID,
			"deviceId":        deviceID,
			"reason":          reason,
			"activationsLeft": strconv.Itoa(lic.ActivationsLeft),
		}))
	}

	dev, tx, err := c.devices.WithTx(q).Blacklist(ctx, deviceID, reason)
	if err != nil {
		return nil, nil, nil, err
	}
	txs = append(txs, tx)

	if bindings == nil {
		bindings = []*models.Activation{}
	}
	return dev, bindings, txs, nil
}

// CheckStatus reports whether the license is usable on the device. The
// fingerprint is matched across accounts unless userID is given.
func (c *Coordinator) CheckStatus(ctx context.Context, code, fingerprint, userID string) (st *Status, err error) {
	defer func() { c.observe("check_status", err) }()

	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "fingerprint is required")
	}

	lic, err := c.licenses.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	st = &Status{
		LicenseID:       lic.ID,
		ExpiresAt:       lic.ExpiresAt,
		ActivationsLeft: lic.ActivationsLeft,
	}

	candidates, err := c.candidateDevices(ctx, fingerprint, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}

	// Blacklisted devices hold no bindings, so a bound device on another
	// account sharing the fingerprint still counts.
	var (
		binding *models.Activation
		blocked bool
	)
	for _, d := range candidates {
		if d.IsBlacklisted {
			blocked = true
			continue
		}
		if binding != nil {
			continue
		}
		binding, err = c.activations.GetActive(ctx, lic.ID, d.ID)
		if errors.Is(err, models.ErrNotActivated) {
			binding = nil
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	if binding == nil && blocked {
		st.Reason = models.ReasonOf(models.ErrDeviceBlacklisted)
		return st, nil
	}

	if err := lic.Usable(c.clock()); err != nil {
		st.Reason = models.ReasonOf(err)
		return st, nil
	}

	if binding != nil {
		if err := c.activations.TouchChecked(ctx, binding.ID, c.clock()); err != nil {
			log.Warn().Err(err).Str("activationId", binding.ID).Msg("failed to record status check")
		}
		st.Valid = true
		return st, nil
	}

	if lic.ActivationsLeft > 0 {
		st.CanActivate = true
		st.Reason = models.ReasonOf(models.ErrNotActivated)
		return st, nil
	}
	st.Reason = models.ReasonOf(models.ErrNoActivationsLeft)
	return st, nil
}

func (c *Coordinator) candidateDevices(ctx context.Context, fingerprint, userID string) ([]*models.Device, error) {
	if userID == "" {
		return c.devices.ListByFingerprint(ctx, fingerprint)
	}
	d, err := c.devices.Find(ctx, userID, fingerprint)
	if errors.Is(err, models.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*models.Device{d}, nil
}

// Issue creates a license and records license_issued.
func (c *Coordinator) Issue(ctx context.Context, req IssueRequest) (res *IssueResult, err error) {
	defer func() { c.observe("issue", err) }()

	err = c.inTx(ctx, func(q dbinterface.Querier) error {
		lic, err := c.licenses.WithTx(q).Issue(ctx, license.IssueRequest{
			PlanType:       req.PlanType,
			MaxActivations: req.MaxActivations,
			ExpiresAt:      req.ExpiresAt,
		})
		if err != nil {
			return err
		}

		metadata := map[string]string{
			"planType":       lic.PlanType,
			"maxActivations": strconv.Itoa(lic.MaxActivations),
		}
		if lic.ExpiresAt != nil {
			metadata["expiresAt"] = lic.ExpiresAt.UTC().Format(time.RFC3339)
		}

		block, err := c.ledger.Commit(ctx, q, ledger.NewTransaction(models.ActionLicenseIssued, lic.ID, metadata))
		if err != nil {
			return err
		}
		res = &IssueResult{License: lic, Receipt: receiptFor(block)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DisableLicense soft-disables a license. Disabling an inactive license is a
// no-op and seals nothing.
func (c *Coordinator) DisableLicense(ctx context.Context, licenseID string) (res *DisableResult, err error) {
	defer func() { c.observe("disable_license", err) }()

	unlock := c.locks.lock(licenseKey(licenseID))
	defer unlock()

	err = c.inTx(ctx, func(q dbinterface.Querier) error {
		lic, changed, err := c.licenses.WithTx(q).Deactivate(ctx, licenseID)
		if err != nil {
			return err
		}
		res = &DisableResult{License: lic, Changed: changed, Receipt: receiptFor(nil)}
		if !changed {
			return nil
		}

		block, err := c.ledger.Commit(ctx, q, ledger.NewTransaction(models.ActionLicenseDisabled, lic.ID, map[string]string{
			"planType": lic.PlanType,
		}))
		if err != nil {
			return err
		}
		res.Receipt = receiptFor(block)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RestoreDevice lifts a blacklist. Bindings released by the revocation stay
// released.
func (c *Coordinator) RestoreDevice(ctx context.Context, deviceID string) (res *RestoreResult, err error) {
	defer func() { c.observe("restore_device", err) }()

	dev, err := c.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(userKey(dev.UserID))
	defer unlock()

	err = c.inTx(ctx, func(q dbinterface.Querier) error {
		d, changed, err := c.devices.WithTx(q).Unblacklist(ctx, deviceID)
		if err != nil {
			return err
		}
		res = &RestoreResult{Device: d, Changed: changed, Receipt: receiptFor(nil)}
		if !changed {
			return nil
		}

		block, err := c.ledger.Commit(ctx, q, ledger.NewTransaction(models.ActionDeviceUnblacklisted, d.ID, map[string]string{
			"userId":   d.UserID,
			"deviceId": d.DeviceID,
		}))
		if err != nil {
			return err
		}
		res.Receipt = receiptFor(block)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListDevices returns all of the user's devices and their active bindings.
func (c *Coordinator) ListDevices(ctx context.Context, userID string) (*DeviceOverview, error) {
	devs, err := c.devices.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	bindings, err := c.activations.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if devs == nil {
		devs = []*models.Device{}
	}
	if bindings == nil {
		bindings = []*models.Activation{}
	}
	return &DeviceOverview{Devices: devs, Activations: bindings}, nil
}

// VerifyLedger audits the chain. A clean result lifts an integrity halt.
func (c *Coordinator) VerifyLedger(ctx context.Context) (res *ledger.VerifyResult, err error) {
	defer func() { c.observe("verify_ledger", err) }()

	return c.ledger.Verify(ctx)
}

func (c *Coordinator) LedgerBlocks(ctx context.Context, from int64, limit int) ([]*models.LedgerBlock, error) {
	return c.ledger.Blocks(ctx, from, limit)
}

func deviceBlocked(d *models.Device) error {
	return errors.Wrapf(models.ErrDeviceBlacklisted, "device %s", d.DeviceID)
}

func (c *Coordinator) GetLicense(ctx context.Context, code string) (*models.License, error) {
	return c.licenses.Get(ctx, code)
}

func (c *Coordinator) ListLicenses(ctx context.Context, limit, offset int) ([]*models.License, error) {
	return c.licenses.List(ctx, limit, offset)
}

func (c *Coordinator) Stats(ctx context.Context) (*Stats, error) {
	counts, err := c.licenses.Counts(ctx)
	if err != nil {
		return nil, err
	}
	active, err := c.activations.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	blacklisted, err := c.devices.CountBlacklisted(ctx)
	if err != nil {
		return nil, err
	}
	height, err := c.ledger.Height(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Licenses:           counts,
		ActiveActivations:  active,
		BlacklistedDevices: blacklisted,
		LedgerHeight:       height,
		LedgerHalted:       c.ledger.Halted() != nil,
	}, nil
}
