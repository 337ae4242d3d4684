// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentContainerID(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	writable := t.TempDir()

	id := persistentContainerID([]string{missing, writable})
	require.Len(t, id, 32)

	content, err := os.ReadFile(filepath.Join(writable, fingerprintFile))
	require.NoError(t, err)
	assert.Equal(t, id, string(content))

	assert.Equal(t, id, persistentContainerID([]string{missing, writable}), "existing id is reused")
}

func TestPersistentContainerIDPrefersFirstExisting(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, fingerprintFile), []byte("from-second\n"), 0o600))

	assert.Equal(t, "from-second", persistentContainerID([]string{first, second}))
}

func TestPersistentContainerIDNoWritableDir(t *testing.T) {
	t.Parallel()

	assert.Empty(t, persistentContainerID([]string{filepath.Join(t.TempDir(), "nope")}))
}
