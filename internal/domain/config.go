// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLedgerDifficulty    = 2
	DefaultLedgerMaxIterations = 5_000_000
	MaxLedgerDifficulty        = 8
	DefaultRetryAttempts       = 3
	DefaultRetryDelayMs        = 25
	DefaultIssueMaxAttempts    = 5
	DefaultLicenseCodeGroups   = 4
)

// Config represents the application configuration
type Config struct {
	Version            string   `toml:"-" mapstructure:"-" yaml:"version"`
	Host               string   `toml:"host" mapstructure:"host" yaml:"host"`
	Port               int      `toml:"port" mapstructure:"port" yaml:"port"`
	BaseURL            string   `toml:"baseUrl" mapstructure:"baseUrl" yaml:"baseUrl"`
	APIToken           string   `toml:"apiToken" mapstructure:"apiToken" yaml:"apiToken"`
	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins" yaml:"corsAllowedOrigins"`
	LogLevel           string   `toml:"logLevel" mapstructure:"logLevel" yaml:"logLevel"`
	LogPath            string   `toml:"logPath" mapstructure:"logPath" yaml:"logPath"`
	LogMaxSize         int      `toml:"logMaxSize" mapstructure:"logMaxSize" yaml:"logMaxSize"`
	LogMaxBackups      int      `toml:"logMaxBackups" mapstructure:"logMaxBackups" yaml:"logMaxBackups"`
	DataDir            string   `toml:"dataDir" mapstructure:"dataDir" yaml:"dataDir"`
	DatabasePath       string   `toml:"databasePath" mapstructure:"databasePath" yaml:"databasePath"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled" yaml:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost" yaml:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort" yaml:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers" yaml:"metricsBasicAuthUsers"`

	// SingleDevicePolicy restricts each user account to one device holding
	// active bindings across all licenses. Activating on a new device revokes
	// and blacklists the others.
	SingleDevicePolicy bool `toml:"singleDevicePolicy" mapstructure:"singleDevicePolicy" yaml:"singleDevicePolicy"`

	// RiskPolicy is an expression evaluated before consuming an activation
	// slot. Empty allows every activation.
	RiskPolicy string `toml:"riskPolicy" mapstructure:"riskPolicy" yaml:"riskPolicy"`

	LedgerDifficulty    int `toml:"ledgerDifficulty" mapstructure:"ledgerDifficulty" yaml:"ledgerDifficulty"`
	LedgerMaxIterations int `toml:"ledgerMaxIterations" mapstructure:"ledgerMaxIterations" yaml:"ledgerMaxIterations"`

	RetryAttempts     int `toml:"retryAttempts" mapstructure:"retryAttempts" yaml:"retryAttempts"`
	RetryDelayMs      int `toml:"retryDelayMs" mapstructure:"retryDelayMs" yaml:"retryDelayMs"`
	IssueMaxAttempts  int `toml:"issueMaxAttempts" mapstructure:"issueMaxAttempts" yaml:"issueMaxAttempts"`
	LicenseCodeGroups int `toml:"licenseCodeGroups" mapstructure:"licenseCodeGroups" yaml:"licenseCodeGroups"`
}

// RetryDelay returns the base delay between transient-storage retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("invalid metricsPort %d", c.MetricsPort))
	}
	if c.LedgerDifficulty < 0 || c.LedgerDifficulty > MaxLedgerDifficulty {
		errs = append(errs, fmt.Errorf("ledgerDifficulty must be between 0 and %d, got %d", MaxLedgerDifficulty, c.LedgerDifficulty))
	}
	if c.LedgerMaxIterations <= 0 {
		errs = append(errs, errors.New("ledgerMaxIterations must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retryAttempts must be at least 1"))
	}
	if c.RetryDelayMs < 0 {
		errs = append(errs, errors.New("retryDelayMs must not be negative"))
	}
	if c.IssueMaxAttempts < 1 {
		errs = append(errs, errors.New("issueMaxAttempts must be at least 1"))
	}
	if c.LicenseCodeGroups < 2 || c.LicenseCodeGroups > 8 {
		errs = append(errs, fmt.Errorf("licenseCodeGroups must be between 2 and 8, got %d", c.LicenseCodeGroups))
	}
	for _, origin := range c.CORSAllowedOrigins {
		if o := strings.TrimSpace(origin); o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("invalid corsAllowedOrigins entry %q", origin))
		}
	}

	return errors.Join(errs...)
}
