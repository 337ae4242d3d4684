// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/entitled/internal/config"
	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/ledger"
	"github.com/autobrr/entitled/internal/services/devices"
	"github.com/autobrr/entitled/internal/services/entitlement"
	"github.com/autobrr/entitled/internal/services/license"
)

// app is the wired engine shared by serve and the offline commands.
type app struct {
	cfg         *config.AppConfig
	db          *database.DB
	ledger      *ledger.Ledger
	coordinator *entitlement.Coordinator
}

// openApp loads configuration, opens the database and builds the coordinator.
// observer may be nil.
func openApp(ctx context.Context, configDir string, observer func(string, error)) (*app, error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	current := cfg.Current()
	opts, err := entitlement.OptionsFromConfig(current)
	if err != nil {
		_ = db.Close()
		_ = cfg.Close()
		return nil, err
	}
	opts.Observer = observer

	l := ledger.New(db, ledger.Options{
		Difficulty:    current.LedgerDifficulty,
		MaxIterations: int64(current.LedgerMaxIterations),
	})
	if _, err := l.Genesis(ctx, db); err != nil {
		_ = db.Close()
		_ = cfg.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	licenses := license.NewLicenseService(db, license.Options{
		CodeGroups:  current.LicenseCodeGroups,
		MaxAttempts: current.IssueMaxAttempts,
	})

	return &app{
		cfg:         cfg,
		db:          db,
		ledger:      l,
		coordinator: entitlement.New(db, licenses, devices.NewService(db, nil), l, opts),
	}, nil
}

func (a *app) Close() error {
	err := a.db.Close()
	if cerr := a.cfg.Close(); err == nil {
		err = cerr
	}
	return err
}

// withApp wraps a RunE body with openApp/Close using the command's
// --config-dir flag.
func withApp(configDir *string, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), *configDir, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func addConfigDirFlag(cmd *cobra.Command, configDir *string) {
	cmd.PersistentFlags().StringVar(configDir, "config-dir", "", "config directory or config.toml path (default is OS-specific)")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
