// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package entitlement

import (
	"time"

	"github.com/autobrr/entitled/internal/models"
)

// NoticeAlreadyActive is set on an activation that found an existing binding.
const NoticeAlreadyActive = "already active"

// Receipt correlates a mutation with its ledger entries. BlockIndex is zero
// when the call changed nothing and no block was sealed.
type Receipt struct {
	TransactionIDs []string `json:"transactionIds"`
	BlockIndex     int64    `json:"blockIndex"`
}

func receiptFor(b *models.LedgerBlock) Receipt {
	if b == nil {
		return Receipt{TransactionIDs: []string{}}
	}
	return Receipt{TransactionIDs: b.TransactionIDs(), BlockIndex: b.Index}
}

type ActivateRequest struct {
	Metadata    map[string]string `json:"metadata,omitempty"`
	LicenseCode string            `json:"licenseCode"`
	Fingerprint string            `json:"fingerprint"`
	UserID      string            `json:"userId"`
	IPAddress   string            `json:"ipAddress,omitempty"`
	DeviceName  string            `json:"deviceName,omitempty"`
}

type ActivateResult struct {
	License    *models.License    `json:"license"`
	Device     *models.Device     `json:"device"`
	Activation *models.Activation `json:"activation"`
	Revoked    []*models.Device   `json:"revoked,omitempty"`
	Notice     string             `json:"notice,omitempty"`
	Receipt
}

// DeactivateRequest identifies a binding. UserID is optional and only needed
// when the same fingerprint is bound to the license from several accounts.
type DeactivateRequest struct {
	LicenseID   string `json:"licenseId"`
	Fingerprint string `json:"fingerprint"`
	UserID      string `json:"userId,omitempty"`
}

type DeactivateResult struct {
	License    *models.License    `json:"license"`
	Activation *models.Activation `json:"activation"`
	Receipt
}

type RevokeResult struct {
	Device   *models.Device       `json:"device"`
	Released []*models.Activation `json:"released"`
	Receipt
}

type IssueRequest struct {
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	PlanType       string     `json:"planType"`
	MaxActivations int        `json:"maxActivations"`
}

type IssueResult struct {
	License *models.License `json:"license"`
	Receipt
}

type DisableResult struct {
	License *models.License `json:"license"`
	Changed bool            `json:"changed"`
	Receipt
}

type RestoreResult struct {
	Device  *models.Device `json:"device"`
	Changed bool           `json:"changed"`
	Receipt
}

// Status answers whether a license may be used on a device right now.
// CanActivate distinguishes "not bound yet" from "exhausted".
type Status struct {
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	LicenseID       string     `json:"licenseId"`
	Reason          string     `json:"reason,omitempty"`
	ActivationsLeft int        `json:"activationsLeft"`
	Valid           bool       `json:"valid"`
	CanActivate     bool       `json:"canActivate"`
}

type DeviceOverview struct {
	Devices     []*models.Device     `json:"devices"`
	Activations []*models.Activation `json:"activations"`
}

// Stats is a point-in-time summary used by the metrics collector.
type Stats struct {
	Licenses           models.LicenseCounts
	ActiveActivations  int
	BlacklistedDevices int
	LedgerHeight       int64
	LedgerHalted       bool
}
