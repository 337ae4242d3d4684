// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/entitled/internal/domain"
)

func TestCORSPreflightBypassesToken(t *testing.T) {
	deps := newTestDependencies(t, &domain.Config{
		APIToken:           "secret",
		CORSAllowedOrigins: []string{"https://example.com"},
	})

	router, err := NewServer(deps).Handler()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/activations", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-api-token, content-type")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	allowedHeaders := strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers"))
	require.Contains(t, allowedHeaders, "x-api-token")
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	deps := newTestDependencies(t, &domain.Config{
		CORSAllowedOrigins: []string{"https://example.com"},
	})

	router, err := NewServer(deps).Handler()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
