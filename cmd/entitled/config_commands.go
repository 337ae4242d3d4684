// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/entitled/internal/config"
)

func RunConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and update the configuration file",
	}
	addConfigDirFlag(cmd, &configDir)

	cmd.AddCommand(
		runConfigShowCommand(&configDir),
		runConfigLogCommand(&configDir),
	)
	return cmd
}

func runConfigShowCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(*configDir)
			if err != nil {
				return err
			}
			defer cfg.Close()

			cmd.Printf("# %s\n", cfg.ConfigPath())
			out, err := yaml.Marshal(cfg.Current().Redacted())
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
}

func runConfigLogCommand(configDir *string) *cobra.Command {
	var (
		level      string
		path       string
		maxSize    int
		maxBackups int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Update log settings; a running server picks them up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
				return fmt.Errorf("invalid log level %q", level)
			}

			cfg, err := config.New(*configDir)
			if err != nil {
				return err
			}
			defer cfg.Close()

			current := cfg.Current()
			if !cmd.Flags().Changed("max-size") {
				maxSize = current.LogMaxSize
			}
			if !cmd.Flags().Changed("max-backups") {
				maxBackups = current.LogMaxBackups
			}

			if err := cfg.UpdateLogSettings(strings.ToUpper(level), path, maxSize, maxBackups); err != nil {
				return err
			}
			cmd.Printf("Updated log settings in %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "INFO", "Log level (ERROR, WARN, INFO, DEBUG, TRACE)")
	cmd.Flags().StringVar(&path, "path", "", "Log file path (unchanged when empty)")
	cmd.Flags().IntVar(&maxSize, "max-size", 50, "Maximum log file size in megabytes")
	cmd.Flags().IntVar(&maxBackups, "max-backups", 3, "Rotated log files to keep")
	return cmd
}
