// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package devices

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/models"
	"github.com/autobrr/entitled/internal/testdb"
)

func TestDeviceID(t *testing.T) {
	t.Parallel()

	a := DeviceID("user-1", "fp")
	assert.Equal(t, a, DeviceID("user-1", "fp"))
	assert.NotEqual(t, a, DeviceID("user-2", "fp"))
	assert.Regexp(t, `^dev_[0-9a-f]{16}$`, a)
}

func TestFindOrCreate(t *testing.T) {
	t.Parallel()

	svc := NewService(testdb.Open(t, "devices"), nil)
	ctx := context.Background()

	d, isNew, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: "fp-1", Name: "desktop"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, models.DefaultTrustScore, d.TrustScore)
	assert.False(t, d.IsBlacklisted)
	assert.Equal(t, DeviceID("user-1", "fp-1"), d.DeviceID)

	again, isNew, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: " fp-1 "})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, d.ID, again.ID)
	assert.Equal(t, "desktop", again.Name)

	_, _, err = svc.FindOrCreate(ctx, Sighting{UserID: "user-1"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestFindOrCreateConcurrentFirstSighting(t *testing.T) {
	t.Parallel()

	svc := NewService(testdb.Open(t, "devices"), nil)
	ctx := context.Background()

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: "shared"})
			if assert.NoError(t, err) {
				mu.Lock()
				ids[d.ID] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
}

func TestBlacklistAlwaysEmitsTransaction(t *testing.T) {
	t.Parallel()

	svc := NewService(testdb.Open(t, "devices"), nil)
	ctx := context.Background()

	d, _, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: "fp-1"})
	require.NoError(t, err)

	blocked, tx, err := svc.Blacklist(ctx, d.ID, "fraud")
	require.NoError(t, err)
	assert.True(t, blocked.IsBlacklisted)
	assert.Equal(t, models.ActionDeviceBlacklisted, tx.Action)
	assert.Equal(t, d.ID, tx.SubjectID)
	assert.Equal(t, "false", tx.Metadata["alreadyBlacklisted"])
	assert.NotEmpty(t, tx.ID)

	_, again, err := svc.Blacklist(ctx, d.ID, "fraud")
	require.NoError(t, err)
	assert.Equal(t, "true", again.Metadata["alreadyBlacklisted"])
	assert.NotEqual(t, tx.ID, again.ID)

	blocked, err = svc.Find(ctx, "user-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, blocked.IsBlacklisted)

	shared, err := svc.ListByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.True(t, shared[0].IsBlacklisted)

	active, err := svc.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	restored, changed, err := svc.Unblacklist(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, restored.IsBlacklisted)

	_, changed, err = svc.Unblacklist(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	active, err = svc.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, _, err = svc.Blacklist(ctx, "missing", "x")
	assert.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestMarkCurrent(t *testing.T) {
	t.Parallel()

	svc := NewService(testdb.Open(t, "devices"), nil)
	ctx := context.Background()

	d1, _, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: "fp-1"})
	require.NoError(t, err)
	d2, _, err := svc.FindOrCreate(ctx, Sighting{UserID: "user-1", Fingerprint: "fp-2"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkCurrent(ctx, d1))
	require.NoError(t, svc.MarkCurrent(ctx, d2))
	assert.True(t, d2.IsCurrentDevice)

	got, err := svc.Get(ctx, d1.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrentDevice)

	require.NoError(t, svc.Touch(ctx, d1.ID))
}
