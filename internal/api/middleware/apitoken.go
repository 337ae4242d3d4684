// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const APITokenHeader = "X-API-Token"

// APITokenFromQuery promotes a token query param into the X-API-Token header.
// Use this only on read-only routes that are opened from links.
func APITokenFromQuery(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(APITokenHeader) == "" {
				if token := r.URL.Query().Get(param); token != "" {
					r.Header.Set(APITokenHeader, token)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIToken rejects requests without the configured token. token is
// read per request so a reloaded config takes effect immediately; an empty
// token disables the check.
func RequireAPIToken(token func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := token()
			if expected == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(APITokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				log.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("rejected request with invalid api token")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing api token", "kind": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
