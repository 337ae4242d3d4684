// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/testdb"
)

type activationFixture struct {
	licenses    *LicenseStore
	devices     *DeviceStore
	activations *ActivationStore
	license     *License
	device      *Device
}

func newActivationFixture(t *testing.T) *activationFixture {
	t.Helper()

	db := testdb.Open(t, "models")
	f := &activationFixture{
		licenses:    NewLicenseStore(db),
		devices:     NewDeviceStore(db),
		activations: NewActivationStore(db),
		license:     newTestLicense("BIND-"+uuid.NewString()[:8], 2, nil),
		device:      newTestDevice("user-1", "fp-1"),
	}

	ctx := context.Background()
	require.NoError(t, f.licenses.Create(ctx, f.license))
	require.NoError(t, f.devices.Create(ctx, f.device))
	return f
}

func newTestActivation(licenseID, deviceID string) *Activation {
	now := Now()
	return &Activation{
		ID:            uuid.NewString(),
		LicenseID:     licenseID,
		DeviceID:      deviceID,
		IPAddress:     "203.0.113.7",
		ActivatedAt:   now,
		LastCheckedAt: now,
	}
}

func TestActivationStoreOneActiveBindingPerPair(t *testing.T) {
	t.Parallel()

	f := newActivationFixture(t)
	ctx := context.Background()

	first := newTestActivation(f.license.ID, f.device.ID)
	require.NoError(t, f.activations.Create(ctx, first))
	assert.True(t, first.IsActive)

	second := newTestActivation(f.license.ID, f.device.ID)
	assert.ErrorIs(t, f.activations.Create(ctx, second), ErrAlreadyActive)

	got, err := f.activations.GetActive(ctx, f.license.ID, f.device.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "203.0.113.7", got.IPAddress)
	assert.Nil(t, got.DeactivatedAt)

	require.NoError(t, f.activations.Deactivate(ctx, first.ID, Now()))
	assert.ErrorIs(t, f.activations.Deactivate(ctx, first.ID, Now()), ErrNotActivated)

	_, err = f.activations.GetActive(ctx, f.license.ID, f.device.ID)
	assert.ErrorIs(t, err, ErrNotActivated)

	require.NoError(t, f.activations.Create(ctx, second), "a released pair can be bound again")
}

func TestActivationStoreListings(t *testing.T) {
	t.Parallel()

	f := newActivationFixture(t)
	ctx := context.Background()

	otherDevice := newTestDevice("user-1", "fp-2")
	require.NoError(t, f.devices.Create(ctx, otherDevice))
	strangerDevice := newTestDevice("user-2", "fp-3")
	require.NoError(t, f.devices.Create(ctx, strangerDevice))

	a1 := newTestActivation(f.license.ID, f.device.ID)
	a2 := newTestActivation(f.license.ID, otherDevice.ID)
	a3 := newTestActivation(f.license.ID, strangerDevice.ID)
	for _, a := range []*Activation{a1, a2, a3} {
		require.NoError(t, f.activations.Create(ctx, a))
	}
	require.NoError(t, f.activations.Deactivate(ctx, a3.ID, Now()))

	byLicense, err := f.activations.ListActiveByLicense(ctx, f.license.ID)
	require.NoError(t, err)
	assert.Len(t, byLicense, 2)

	byDevice, err := f.activations.ListActiveByDevice(ctx, otherDevice.ID)
	require.NoError(t, err)
	require.Len(t, byDevice, 1)
	assert.Equal(t, a2.ID, byDevice[0].ID)

	byUser, err := f.activations.ListActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1.ID, a2.ID}, []string{byUser[0].ID, byUser[1].ID})

	none, err := f.activations.ListActiveByUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := f.activations.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestActivationStoreTouchChecked(t *testing.T) {
	t.Parallel()

	f := newActivationFixture(t)
	ctx := context.Background()

	a := newTestActivation(f.license.ID, f.device.ID)
	require.NoError(t, f.activations.Create(ctx, a))

	later := a.LastCheckedAt.Add(42_000_000)
	require.NoError(t, f.activations.TouchChecked(ctx, a.ID, later))

	got, err := f.activations.GetActive(ctx, f.license.ID, f.device.ID)
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastCheckedAt))
	assert.True(t, a.ActivatedAt.Equal(got.ActivatedAt))
}
