// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/entitled/internal/config"
	"github.com/autobrr/entitled/internal/database"
)

func RunDBCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}
	addConfigDirFlag(cmd, &configDir)

	cmd.AddCommand(
		runDBMigrateCommand(&configDir),
		runDBStatusCommand(&configDir),
	)
	return cmd
}

func runDBMigrateCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(*configDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			defer cfg.Close()

			path := cfg.GetDatabasePath()
			db, err := database.New(path)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Database %s is up to date (%d migrations applied)\n", path, len(applied))
			return nil
		},
	}
}

func runDBStatusCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied migrations and ledger height",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()

			applied, err := a.db.AppliedMigrations(ctx)
			if err != nil {
				return err
			}
			stats, err := a.coordinator.Stats(ctx)
			if err != nil {
				return err
			}

			cmd.Printf("Database: %s\n", a.cfg.GetDatabasePath())
			cmd.Printf("Migrations: %d\n", len(applied))
			for _, name := range applied {
				cmd.Printf("  - %s\n", name)
			}
			cmd.Printf("Licenses: %d active, %d inactive, %d expired\n", stats.Licenses.Active, stats.Licenses.Inactive, stats.Licenses.Expired)
			cmd.Printf("Active activations: %d\n", stats.ActiveActivations)
			cmd.Printf("Blacklisted devices: %d\n", stats.BlacklistedDevices)
			cmd.Printf("Ledger height: %d\n", stats.LedgerHeight)
			if stats.LedgerHalted {
				cmd.Println("Ledger: HALTED")
			}
			return nil
		}),
	}
}
