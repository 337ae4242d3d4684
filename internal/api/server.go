// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/api/handlers"
	"github.com/autobrr/entitled/internal/api/middleware"
	"github.com/autobrr/entitled/internal/config"
	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/services/entitlement"
)

type Dependencies struct {
	Config      *config.AppConfig
	Coordinator *entitlement.Coordinator
	DB          *database.DB
}

type Server struct {
	server *http.Server
	deps   *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	cfg := deps.Config.Current()
	return &Server{
		deps: deps,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.server.Handler = handler

	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler builds the router. Everything under /api except health, version
// and the OpenAPI document requires the X-API-Token header when apiToken is
// configured.
func (s *Server) Handler() (http.Handler, error) {
	cfg := s.deps.Config.Current()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	if origins := cfg.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(corsHandler(origins).Handler)
	}
	r.Use(middleware.SelectiveCompress(1024, 5))

	requireToken := middleware.RequireAPIToken(func() string {
		return s.deps.Config.Current().APIToken
	})

	health := handlers.NewHealthHandler(s.readinessChecks()...)
	licenses := handlers.NewLicensesHandler(s.deps.Coordinator)
	activations := handlers.NewActivationsHandler(s.deps.Coordinator)
	devices := handlers.NewDevicesHandler(s.deps.Coordinator)
	ledgerHandler := handlers.NewLedgerHandler(s.deps.Coordinator)

	api := chi.NewRouter()
	api.Get("/healthz", health.HandleHealth)
	api.Route("/health", health.Routes)
	api.Get("/version", handlers.NewVersionHandler().GetVersion)
	api.Get("/openapi.yaml", serveOpenAPI)

	api.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Route("/licenses", licenses.Routes)
		r.Route("/activations", activations.Routes)
		r.Route("/devices", devices.Routes)
		r.Get("/users/{userID}/devices", devices.ListForUser)
	})
	api.With(middleware.APITokenFromQuery("apiToken"), requireToken).Route("/ledger", ledgerHandler.Routes)

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	r.Mount(base+"/api", api)

	return r, nil
}

func (s *Server) readinessChecks() []handlers.ReadinessCheck {
	if s.deps.DB == nil {
		return nil
	}
	return []handlers.ReadinessCheck{
		func(ctx context.Context) error { return s.deps.DB.Conn().PingContext(ctx) },
	}
}

func corsHandler(origins []string) *cors.Cors {
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			trimmed = append(trimmed, o)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: trimmed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.APITokenHeader, "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}
