// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                7480,
		LedgerDifficulty:    DefaultLedgerDifficulty,
		LedgerMaxIterations: DefaultLedgerMaxIterations,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelayMs:        DefaultRetryDelayMs,
		IssueMaxAttempts:    DefaultIssueMaxAttempts,
		LicenseCodeGroups:   DefaultLicenseCodeGroups,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "difficulty too high", mutate: func(c *Config) { c.LedgerDifficulty = 9 }, wantErr: "ledgerDifficulty"},
		{name: "negative difficulty", mutate: func(c *Config) { c.LedgerDifficulty = -1 }, wantErr: "ledgerDifficulty"},
		{name: "zero iteration cap", mutate: func(c *Config) { c.LedgerMaxIterations = 0 }, wantErr: "ledgerMaxIterations"},
		{name: "zero retry attempts", mutate: func(c *Config) { c.RetryAttempts = 0 }, wantErr: "retryAttempts"},
		{name: "metrics port required when enabled", mutate: func(c *Config) { c.MetricsEnabled = true }, wantErr: "metricsPort"},
		{name: "bad cors origin", mutate: func(c *Config) { c.CORSAllowedOrigins = []string{"example.com"} }, wantErr: "corsAllowedOrigins"},
		{name: "wildcard cors origin", mutate: func(c *Config) { c.CORSAllowedOrigins = []string{"*"} }},
		{name: "code groups out of range", mutate: func(c *Config) { c.LicenseCodeGroups = 1 }, wantErr: "licenseCodeGroups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	cfg := &Config{RetryDelayMs: 40}
	assert.Equal(t, 40*time.Millisecond, cfg.RetryDelay())
}
