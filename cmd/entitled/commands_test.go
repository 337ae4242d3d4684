// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/services/entitlement"
)

const testConfig = `host = "127.0.0.1"
port = 7480
logLevel = "ERROR"
ledgerDifficulty = 1
ledgerMaxIterations = 100000
`

func TestLicenseAndDeviceCommandsLifecycle(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	var issued entitlement.IssueResult
	decodeOutput(t, mustRunCommand(t, RunLicenseCommand(),
		"issue", "--config-dir", configDir, "--plan", "pro", "--max-activations", "2",
	), &issued)
	require.NotNil(t, issued.License)
	assert.Equal(t, "pro", issued.License.PlanType)
	assert.Equal(t, 2, issued.License.ActivationsLeft)
	assert.Equal(t, int64(2), issued.BlockIndex)

	var activated entitlement.ActivateResult
	decodeOutput(t, mustRunCommand(t, RunDeviceCommand(),
		"activate", issued.License.Code, "--config-dir", configDir, "--user", "alice", "--fingerprint", "fp-1",
	), &activated)
	assert.Equal(t, 1, activated.License.ActivationsLeft)
	assert.Equal(t, "fp-1", activated.Device.Fingerprint)

	var status entitlement.Status
	decodeOutput(t, mustRunCommand(t, RunLicenseCommand(),
		"status", issued.License.Code, "--config-dir", configDir, "--fingerprint", "fp-1",
	), &status)
	assert.True(t, status.Valid)

	var overview entitlement.DeviceOverview
	decodeOutput(t, mustRunCommand(t, RunDeviceCommand(),
		"list", "alice", "--config-dir", configDir,
	), &overview)
	require.Len(t, overview.Devices, 1)
	require.Len(t, overview.Activations, 1)

	out := mustRunCommand(t, RunDeviceCommand(), "revoke", activated.Device.ID, "--config-dir", configDir, "--reason", "stolen")
	assert.Contains(t, out, "released 1 activations")

	out = mustRunCommand(t, RunDeviceCommand(), "restore", activated.Device.ID, "--config-dir", configDir)
	assert.Contains(t, out, "restored")

	out = mustRunCommand(t, RunDeviceCommand(), "restore", activated.Device.ID, "--config-dir", configDir)
	assert.Contains(t, out, "was not blacklisted")

	out = mustRunCommand(t, RunLicenseCommand(), "list", "--config-dir", configDir)
	assert.Contains(t, out, issued.License.Code)
	assert.Contains(t, out, "2/2\tactive")

	out = mustRunCommand(t, RunLicenseCommand(), "disable", issued.License.ID, "--config-dir", configDir)
	assert.Contains(t, out, "disabled (block")

	out = mustRunCommand(t, RunLedgerCommand(), "verify", "--config-dir", configDir)
	assert.Contains(t, out, "Ledger valid: 6 blocks")
}

func TestDeviceActivateRequiresUser(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	_, err := runCommand(RunDeviceCommand(), "activate", "AAAA-BBBB", "--config-dir", configDir, "--fingerprint", "fp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user is required")
}

func TestLicenseStatusUnknownCode(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	_, err := runCommand(RunLicenseCommand(), "status", "NOPE-NOPE", "--config-dir", configDir, "--fingerprint", "fp")
	require.Error(t, err)
}

func TestLedgerExportCompressed(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	mustRunCommand(t, RunLicenseCommand(), "issue", "--config-dir", configDir)

	target := filepath.Join(t.TempDir(), "ledger.yaml.xz")
	out := mustRunCommand(t, RunLedgerCommand(), "export", "--config-dir", configDir, "--xz", "-o", target)
	assert.Contains(t, out, "Exported 2 blocks")

	f, err := os.Open(target)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	r, err := xz.NewReader(f)
	require.NoError(t, err)

	var doc ledgerExport
	require.NoError(t, yaml.NewDecoder(r).Decode(&doc))
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "0", doc.Blocks[0].PreviousHash)
	assert.Equal(t, doc.Blocks[0].Hash, doc.Blocks[1].PreviousHash)
	require.NotNil(t, doc.Verify)
	assert.True(t, doc.Verify.Valid)
}

func TestLedgerExportPlainToStdout(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	out := mustRunCommand(t, RunLedgerCommand(), "export", "--config-dir", configDir)

	var doc ledgerExport
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, int64(1), doc.Blocks[0].Index)
}

func TestDBCommands(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)

	out := mustRunCommand(t, RunDBCommand(), "migrate", "--config-dir", configDir)
	assert.Contains(t, out, "is up to date")

	db := openDatabase(t, databasePath(configDir))
	applied, err := db.AppliedMigrations(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.NotEmpty(t, applied)

	out = mustRunCommand(t, RunDBCommand(), "status", "--config-dir", configDir)
	assert.Contains(t, out, "Ledger height: 1")
	assert.Contains(t, out, "Licenses: 0 active")
}

func TestVersionCommand(t *testing.T) {
	out := mustRunCommand(t, RunVersionCommand())
	assert.Contains(t, out, "Version: ")

	out = mustRunCommand(t, RunVersionCommand(), "--json")
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
}

func prepareConfigDir(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(testConfig), 0o600))
}

func mustRunCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	output, err := runCommand(cmd, args...)
	require.NoError(t, err, output)
	return output
}

func runCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeOutput(t *testing.T, output string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(output), v), output)
}

func databasePath(configDir string) string {
	return filepath.Join(configDir, database.DefaultFilename)
}

func openDatabase(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.New(path)
	require.NoError(t, err)
	return db
}

func TestConfigCommands(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	prepareConfigDir(t, configDir)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"),
		[]byte(testConfig+"apiToken = \"hunter2\"\n"), 0o600))

	out := mustRunCommand(t, RunConfigCommand(), "show", "--config-dir", configDir)
	assert.Contains(t, out, "apiToken: <redacted>")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "ledgerDifficulty: 1")

	out = mustRunCommand(t, RunConfigCommand(), "log", "--config-dir", configDir, "--level", "debug", "--max-backups", "7")
	assert.Contains(t, out, "Updated log settings")

	content, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "DEBUG"`)
	assert.Contains(t, string(content), "logMaxBackups = 7")
	assert.Contains(t, string(content), "logMaxSize = 50")

	_, err = runCommand(RunConfigCommand(), "log", "--config-dir", configDir, "--level", "loud")
	require.Error(t, err)
}
