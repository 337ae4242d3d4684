// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })
}

func TestGet(t *testing.T) {
	withBuild(t, "v1.2.3", "abc123", "2026-01-02")

	info := Get()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-02", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	withBuild(t, "v1.2.3", "abc123", "2026-01-02")

	assert.Equal(t,
		"Version: v1.2.3\nCommit: abc123\nBuild date: 2026-01-02\nGo: "+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH+"\n",
		String())
}

func TestJSONOmitsEmptyCommit(t *testing.T) {
	withBuild(t, "dev", "", "")

	data, err := JSON()
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "dev", got["version"])
	assert.NotContains(t, got, "commit")
	assert.NotContains(t, got, "date")
	assert.Equal(t, runtime.Version(), got["goVersion"])
}
