// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/entitled/internal/api"
	"github.com/autobrr/entitled/internal/buildinfo"
	"github.com/autobrr/entitled/internal/domain"
	"github.com/autobrr/entitled/internal/metrics"
	"github.com/autobrr/entitled/internal/services/entitlement"
)

const shutdownTimeout = 15 * time.Second

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the entitlement API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configDir)
		},
	}
	addConfigDirFlag(cmd, &configDir)
	return cmd
}

func serve(ctx context.Context, configDir string) error {
	// metricsManager is set before any request is served
	var metricsManager *metrics.Manager
	observer := func(op string, err error) {
		if metricsManager != nil {
			metricsManager.ObserveOperation(op, err)
		}
	}

	a, err := openApp(ctx, configDir, observer)
	if err != nil {
		return err
	}
	defer a.Close()

	a.cfg.InitLogger()
	cfg := a.cfg.Current()
	log.Info().Str("version", buildinfo.Version).Str("commit", buildinfo.Commit).Msg("Starting entitled")
	log.Debug().Interface("config", cfg.Redacted()).Msg("effective configuration")

	if cfg.MetricsEnabled {
		metricsManager = metrics.NewMetricsManager(a.db, a.coordinator)
	}

	a.cfg.OnReload(func(c *domain.Config) {
		a.coordinator.SetSingleDevicePolicy(c.SingleDevicePolicy)
		risk, err := entitlement.CompileRiskPolicy(c.RiskPolicy)
		if err != nil {
			log.Error().Err(err).Msg("keeping previous risk policy")
			return
		}
		a.coordinator.SetRiskPolicy(risk)
	})
	a.cfg.Watch()

	apiServer := api.NewServer(&api.Dependencies{
		Config:      a.cfg,
		Coordinator: a.coordinator,
		DB:          a.db,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.ListenAndServe)

	var metricsServer *metrics.MetricsServer
	if metricsManager != nil {
		metricsServer = metrics.NewMetricsServer(metricsManager, cfg.MetricsHost, cfg.MetricsPort, cfg.MetricsBasicAuthUsers)
		g.Go(metricsServer.ListenAndServe)
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := apiServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
				err = merr
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
