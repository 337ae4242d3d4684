// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/entitled/internal/buildinfo"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "entitled",
		Short:         "License and device entitlement engine",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		RunServeCommand(),
		RunLicenseCommand(),
		RunDeviceCommand(),
		RunLedgerCommand(),
		RunDBCommand(),
		RunConfigCommand(),
		RunVersionCommand(),
	)
	return root
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				out, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Print(buildinfo.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
