// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/entitled/internal/buildinfo"
	"github.com/autobrr/entitled/internal/ledger"
	"github.com/autobrr/entitled/internal/models"
)

const exportPageSize = 500

func RunLedgerCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the audit ledger",
	}
	addConfigDirFlag(cmd, &configDir)

	cmd.AddCommand(
		runLedgerVerifyCommand(&configDir),
		runLedgerBlocksCommand(&configDir),
		runLedgerExportCommand(&configDir),
	)
	return cmd
}

func runLedgerVerifyCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Walk the chain and check every hash link and proof",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			res, err := a.coordinator.VerifyLedger(cmd.Context())
			if err != nil {
				return err
			}
			if !res.Valid {
				cmd.Printf("Ledger invalid after %d blocks: %s\n", res.Blocks, res.Break)
				return errors.Wrap(models.ErrIntegrityFailure, res.Break.String())
			}
			cmd.Printf("Ledger valid: %d blocks\n", res.Blocks)
			return nil
		}),
	}
}

func runLedgerBlocksCommand(configDir *string) *cobra.Command {
	var (
		from  int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Print blocks as JSON",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			blocks, err := a.coordinator.LedgerBlocks(cmd.Context(), from, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, blocks)
		}),
	}

	cmd.Flags().Int64Var(&from, "from", ledger.GenesisIndex, "First block index")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of blocks")
	return cmd
}

// ledgerExport is the on-disk archive format.
type ledgerExport struct {
	ExportedAt time.Time             `yaml:"exportedAt"`
	Version    string                `yaml:"version"`
	Verify     *ledger.VerifyResult  `yaml:"verify"`
	Blocks     []*models.LedgerBlock `yaml:"blocks"`
}

func runLedgerExportCommand(configDir *string) *cobra.Command {
	var (
		output   string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole chain as YAML, optionally xz-compressed",
		RunE: withApp(configDir, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()

			verify, err := a.coordinator.VerifyLedger(ctx)
			if err != nil {
				return err
			}

			doc := ledgerExport{
				ExportedAt: time.Now().UTC(),
				Version:    buildinfo.Version,
				Verify:     verify,
			}
			from := ledger.GenesisIndex
			for {
				page, err := a.coordinator.LedgerBlocks(ctx, from, exportPageSize)
				if err != nil {
					return err
				}
				doc.Blocks = append(doc.Blocks, page...)
				if len(page) < exportPageSize {
					break
				}
				from = page[len(page)-1].Index + 1
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			if err := writeLedgerExport(out, &doc, compress); err != nil {
				return err
			}
			if output != "" && output != "-" {
				cmd.Printf("Exported %d blocks to %s\n", len(doc.Blocks), output)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&compress, "xz", false, "Compress the output with xz")
	return cmd
}

func writeLedgerExport(w io.Writer, doc *ledgerExport, compress bool) error {
	if !compress {
		return encodeYAML(w, doc)
	}

	zw, err := xz.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "create xz writer")
	}
	if err := encodeYAML(zw, doc); err != nil {
		_ = zw.Close()
		return err
	}
	return errors.Wrap(zw.Close(), "flush xz stream")
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode ledger export")
	}
	return enc.Close()
}
