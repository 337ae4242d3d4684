// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"github.com/pkg/errors"
)

// ErrorKind groups failures by how a caller should react to them.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindPolicyViolation  ErrorKind = "policy_violation"
	KindIntegrityFailure ErrorKind = "integrity_failure"
	KindTransient        ErrorKind = "transient_storage_error"
	KindInvalidArgument  ErrorKind = "invalid_argument"
	KindInternal         ErrorKind = "internal"
)

var (
	ErrLicenseNotFound   = errors.New("license not found")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrNotActivated      = errors.New("license is not activated on this device")
	ErrDuplicateKey      = errors.New("duplicate license code")
	ErrAlreadyActive     = errors.New("license already active on this device")
	ErrNoActivationsLeft = errors.New("no activations left")
	ErrLicenseInactive   = errors.New("license is inactive")
	ErrLicenseExpired    = errors.New("license expired")
	ErrDeviceBlacklisted = errors.New("device is blacklisted")
	ErrRiskPolicyDenied  = errors.New("activation denied by risk policy")
	ErrIntegrityFailure  = errors.New("ledger integrity failure")
	ErrProofNotFound     = errors.New("proof of work not found within iteration cap")
	ErrTransientStorage  = errors.New("transient storage error")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrLedgerEmpty       = errors.New("ledger has no blocks")
)

type errorClass struct {
	err    error
	kind   ErrorKind
	reason string
}

// Order matters: the first match wins, so specific policy errors come before
// the generic storage classes.
var errorClasses = []errorClass{
	{ErrLicenseNotFound, KindNotFound, "license not found"},
	{ErrDeviceNotFound, KindNotFound, "device not found"},
	{ErrNotActivated, KindNotFound, "not activated"},
	{ErrDuplicateKey, KindConflict, "duplicate license code"},
	{ErrAlreadyActive, KindConflict, "already active"},
	{ErrNoActivationsLeft, KindPolicyViolation, "no activations left"},
	{ErrLicenseInactive, KindPolicyViolation, "license inactive"},
	{ErrLicenseExpired, KindPolicyViolation, "license expired"},
	{ErrDeviceBlacklisted, KindPolicyViolation, "device blocked"},
	{ErrRiskPolicyDenied, KindPolicyViolation, "activation denied by risk policy"},
	{ErrIntegrityFailure, KindIntegrityFailure, "ledger integrity failure"},
	{ErrTransientStorage, KindTransient, "storage temporarily unavailable"},
	{ErrInvalidArgument, KindInvalidArgument, "invalid argument"},
	{ErrProofNotFound, KindInternal, "ledger seal failed"},
}

// KindOf classifies err. Unknown non-nil errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	if isBusyError(err) {
		return KindTransient
	}
	return KindInternal
}

// ReasonOf returns the user-visible reason for err, e.g. "device blocked".
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.reason
		}
	}
	if isBusyError(err) {
		return "storage temporarily unavailable"
	}
	return "internal error"
}

// IsTransient reports whether err may succeed when the operation is retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
