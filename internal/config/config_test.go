// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
host = "localhost"
port = 8080
logLevel = "INFO"
`

func TestDatabasePathConfiguration(t *testing.T) {
	tests := []struct {
		name           string
		content        func(tmpDir string) string
		envVars        map[string]string
		expectedDBPath func(tmpDir string) string
	}{
		{
			name:    "default next to config",
			content: func(string) string { return minimalConfig },
			expectedDBPath: func(tmpDir string) string {
				return filepath.Join(tmpDir, "entitled.db")
			},
		},
		{
			name: "explicit path in config",
			content: func(tmpDir string) string {
				return minimalConfig + `databasePath = "` + filepath.Join(tmpDir, "database", "custom.db") + `"` + "\n"
			},
			expectedDBPath: func(tmpDir string) string {
				return filepath.Join(tmpDir, "database", "custom.db")
			},
		},
		{
			name:    "relative path resolved against config dir",
			content: func(string) string { return minimalConfig + `databasePath = "data/custom.db"` + "\n" },
			expectedDBPath: func(tmpDir string) string {
				return filepath.Join(tmpDir, "data", "custom.db")
			},
		},
		{
			name:    "env var",
			content: func(string) string { return minimalConfig },
			envVars: map[string]string{"ENTITLED__DATABASE_PATH": "/var/db/entitled/entitled.db"},
			expectedDBPath: func(string) string {
				return "/var/db/entitled/entitled.db"
			},
		},
		{
			name:    "env var overrides config",
			content: func(string) string { return minimalConfig + `databasePath = "/original/path.db"` + "\n" },
			envVars: map[string]string{"ENTITLED__DATABASE_PATH": "/override/path.db"},
			expectedDBPath: func(string) string {
				return "/override/path.db"
			},
		},
		{
			name:    "data dir",
			content: func(tmpDir string) string { return minimalConfig + `dataDir = "` + filepath.Join(tmpDir, "state") + `"` + "\n" },
			expectedDBPath: func(tmpDir string) string {
				return filepath.Join(tmpDir, "state", "entitled.db")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := writeConfig(t, tmpDir, tt.content(tmpDir))
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedDBPath(tmpDir), cfg.GetDatabasePath())
		})
	}
}

func TestNewAcceptsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, minimalConfig)

	cfg, err := New(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), cfg.ConfigPath())
	assert.Equal(t, 8080, cfg.Config.Port)
}

func TestNewWritesDefaultConfig(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested")

	cfg, err := New(tmpDir)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Auto-generated on first run")
	assert.Contains(t, string(content), "singleDevicePolicy = false")

	assert.Equal(t, 7480, cfg.Config.Port)
	assert.Equal(t, domain.DefaultLedgerDifficulty, cfg.Config.LedgerDifficulty)
	assert.Equal(t, domain.DefaultLedgerMaxIterations, cfg.Config.LedgerMaxIterations)
	assert.Equal(t, domain.DefaultRetryAttempts, cfg.Config.RetryAttempts)
	assert.Equal(t, domain.DefaultLicenseCodeGroups, cfg.Config.LicenseCodeGroups)
	assert.False(t, cfg.Config.SingleDevicePolicy)
	assert.Empty(t, cfg.Config.RiskPolicy)
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, minimalConfig)

	t.Setenv("ENTITLED__SINGLE_DEVICE_POLICY", "true")
	t.Setenv("ENTITLED__LEDGER_DIFFICULTY", "3")
	t.Setenv("ENTITLED__RISK_POLICY", "trustScore >= 10")
	t.Setenv("ENTITLED__PORT", "9000")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.Config.SingleDevicePolicy)
	assert.Equal(t, 3, cfg.Config.LedgerDifficulty)
	assert.Equal(t, "trustScore >= 10", cfg.Config.RiskPolicy)
	assert.Equal(t, 9000, cfg.Config.Port)
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ENTITLED__DATABASE_PATH", envName("databasePath"))
	assert.Equal(t, "ENTITLED__PORT", envName("port"))
	assert.Equal(t, "ENTITLED__METRICS_BASIC_AUTH_USERS", envName("metricsBasicAuthUsers"))
}

func TestInvalidConfigRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, minimalConfig+"ledgerDifficulty = 12\n")

	_, err := New(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledgerDifficulty")
}

func TestDockerEnvironmentCompatibility(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")

	assert.Equal(t, "/config", getDefaultConfigDir())
}

func TestReloadNotifiesListeners(t *testing.T) {
	oldLevel := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(oldLevel)

	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, minimalConfig)

	cfg, err := New(configPath)
	require.NoError(t, err)

	var got *domain.Config
	cfg.OnReload(func(c *domain.Config) { got = c })

	writeConfig(t, tmpDir, minimalConfig+"singleDevicePolicy = true\nlogLevel = \"DEBUG\"\n")
	require.NoError(t, cfg.viper.ReadInConfig())
	require.NoError(t, cfg.reload())

	require.NotNil(t, got)
	assert.True(t, got.SingleDevicePolicy)
	assert.Same(t, got, cfg.Current())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	oldLevel := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(oldLevel)

	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, minimalConfig)

	cfg, err := New(configPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfg.Close() })

	var reloads atomic.Int32
	cfg.OnReload(func(*domain.Config) { reloads.Add(1) })
	cfg.Watch()

	writeConfig(t, tmpDir, minimalConfig+"singleDevicePolicy = true\n")

	assert.Eventually(t, func() bool {
		return cfg.Current().SingleDevicePolicy
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestReloadKeepsConfigOnInvalidChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, minimalConfig)

	cfg, err := New(configPath)
	require.NoError(t, err)
	before := cfg.Current()

	writeConfig(t, tmpDir, minimalConfig+"retryAttempts = 0\n")
	require.NoError(t, cfg.viper.ReadInConfig())
	require.Error(t, cfg.reload())

	assert.Same(t, before, cfg.Current())
}

func TestUpdateLogSettingsPersists(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := New(tmpDir)
	require.NoError(t, err)

	require.NoError(t, cfg.UpdateLogSettings("TRACE", "", 10, 1))

	content, err := os.ReadFile(cfg.ConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "TRACE"`)
	assert.Contains(t, string(content), "logMaxSize = 10")
	assert.Contains(t, string(content), `#logPath = "log/entitled.log"`)
}
