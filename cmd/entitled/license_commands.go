// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/entitled/internal/services/entitlement"
)

func RunLicenseCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "license",
		Short: "Issue and inspect licenses",
	}
	addConfigDirFlag(cmd, &configDir)

	cmd.AddCommand(
		runLicenseIssueCommand(&configDir),
		runLicenseStatusCommand(&configDir),
		runLicenseDisableCommand(&configDir),
		runLicenseListCommand(&configDir),
	)
	return cmd
}

func runLicenseIssueCommand(configDir *string) *cobra.Command {
	var (
		planType       string
		maxActivations int
		expiresIn      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new license code",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			req := entitlement.IssueRequest{
				PlanType:       planType,
				MaxActivations: maxActivations,
			}
			if expiresIn > 0 {
				exp := time.Now().Add(expiresIn).UTC()
				req.ExpiresAt = &exp
			}

			res, err := a.coordinator.Issue(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}

	cmd.Flags().StringVar(&planType, "plan", "standard", "Plan type")
	cmd.Flags().IntVar(&maxActivations, "max-activations", 1, "Number of devices the license may be active on")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expire the license after this duration (0 never expires)")
	return cmd
}

func runLicenseStatusCommand(configDir *string) *cobra.Command {
	var (
		fingerprint string
		userID      string
	)

	cmd := &cobra.Command{
		Use:   "status <code>",
		Short: "Check whether a license is valid on a device",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			if fingerprint == "" {
				return errors.New("--fingerprint is required")
			}
			st, err := a.coordinator.CheckStatus(cmd.Context(), args[0], fingerprint, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}),
	}

	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Device fingerprint")
	cmd.Flags().StringVar(&userID, "user", "", "Limit the check to this account")
	return cmd
}

func runLicenseDisableCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <license-id>",
		Short: "Disable a license",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			res, err := a.coordinator.DisableLicense(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Changed {
				cmd.Printf("License %s was already disabled\n", res.License.ID)
				return nil
			}
			cmd.Printf("License %s disabled (block %d)\n", res.License.ID, res.BlockIndex)
			return nil
		}),
	}
}

func runLicenseListCommand(configDir *string) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses, newest first",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			list, err := a.coordinator.ListLicenses(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			for _, l := range list {
				state := "active"
				switch {
				case !l.IsActive:
					state = "disabled"
				case l.IsExpired(time.Now()):
					state = "expired"
				}
				cmd.Printf("%s\t%s\t%s\t%d/%d\t%s\n", l.ID, l.Code, l.PlanType, l.ActivationsLeft, l.MaxActivations, state)
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of licenses")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of licenses to skip")
	return cmd
}
