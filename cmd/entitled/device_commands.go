// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/entitled/internal/services/devices"
	"github.com/autobrr/entitled/internal/services/entitlement"
)

const fingerprintAppID = "entitled"

func RunDeviceCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Bind, release and block devices",
	}
	addConfigDirFlag(cmd, &configDir)

	cmd.AddCommand(
		runDeviceActivateCommand(&configDir),
		runDeviceDeactivateCommand(&configDir),
		runDeviceRevokeCommand(&configDir),
		runDeviceRestoreCommand(&configDir),
		runDeviceListCommand(&configDir),
	)
	return cmd
}

// resolveFingerprint falls back to this machine's fingerprint.
func resolveFingerprint(fingerprint string) (string, error) {
	if fingerprint != "" {
		return fingerprint, nil
	}
	fp, err := devices.LocalFingerprint(fingerprintAppID)
	if err != nil {
		return "", fmt.Errorf("failed to derive local fingerprint: %w", err)
	}
	return fp, nil
}

func runDeviceActivateCommand(configDir *string) *cobra.Command {
	var req entitlement.ActivateRequest

	cmd := &cobra.Command{
		Use:   "activate <code>",
		Short: "Activate a license on a device",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			if req.UserID == "" {
				return errors.New("--user is required")
			}
			fp, err := resolveFingerprint(req.Fingerprint)
			if err != nil {
				return err
			}
			req.Fingerprint = fp
			req.LicenseCode = args[0]

			res, err := a.coordinator.Activate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}

	cmd.Flags().StringVar(&req.UserID, "user", "", "Account the device belongs to")
	cmd.Flags().StringVar(&req.Fingerprint, "fingerprint", "", "Device fingerprint (default is this machine)")
	cmd.Flags().StringVar(&req.DeviceName, "name", "", "Device display name")
	cmd.Flags().StringVar(&req.IPAddress, "ip", "", "Client IP address recorded on the activation")
	return cmd
}

func runDeviceDeactivateCommand(configDir *string) *cobra.Command {
	var req entitlement.DeactivateRequest

	cmd := &cobra.Command{
		Use:   "deactivate <license-id>",
		Short: "Release a device's activation slot",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			fp, err := resolveFingerprint(req.Fingerprint)
			if err != nil {
				return err
			}
			req.Fingerprint = fp
			req.LicenseID = args[0]

			res, err := a.coordinator.Deactivate(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("Deactivated %s, %d activations left (block %d)\n", res.Activation.ID, res.License.ActivationsLeft, res.BlockIndex)
			return nil
		}),
	}

	cmd.Flags().StringVar(&req.Fingerprint, "fingerprint", "", "Device fingerprint (default is this machine)")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Account, when the fingerprint is bound from several")
	return cmd
}

func runDeviceRevokeCommand(configDir *string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Blacklist a device and release all its activations",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			res, err := a.coordinator.RevokeDevice(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			cmd.Printf("Device %s revoked, released %d activations (block %d)\n", res.Device.ID, len(res.Released), res.BlockIndex)
			return nil
		}),
	}

	cmd.Flags().StringVar(&reason, "reason", entitlement.ReasonDeviceRevoked, "Blacklist reason")
	return cmd
}

func runDeviceRestoreCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <device-id>",
		Short: "Remove a device from the blacklist",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			res, err := a.coordinator.RestoreDevice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Changed {
				cmd.Printf("Device %s was not blacklisted\n", res.Device.ID)
				return nil
			}
			cmd.Printf("Device %s restored (block %d)\n", res.Device.ID, res.BlockIndex)
			return nil
		}),
	}
}

func runDeviceListCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List an account's devices and activations",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, args []string) error {
			overview, err := a.coordinator.ListDevices(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, overview)
		}),
	}
}
