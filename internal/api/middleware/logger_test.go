// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveLogged(t *testing.T, level zerolog.Level, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, []map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	handler := RequestID(Logger(zerolog.New(&buf).Level(level))(h))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entries []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return rec, entries
}

func TestLoggerWritesAccessLine(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/licenses?limit=5", strings.NewReader(`{"planType":"pro"}`))
	req.Header.Set("User-Agent", "entitled-test")

	rec, entries := serveLogged(t, zerolog.TraceLevel, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "access", entry["type"])
	assert.Equal(t, "/api/licenses?limit=5", entry["url"])
	assert.Equal(t, http.MethodPost, entry["method"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
	assert.EqualValues(t, len(`{"planType":"pro"}`), entry["bytes_in"])
	assert.EqualValues(t, len("created"), entry["bytes_out"])
	assert.Equal(t, "entitled-test", entry["user_agent"])
	assert.NotEmpty(t, entry["request_id"])
	assert.Contains(t, entry, "latency_ms")
}

func TestLoggerDefaultsStatusToOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)

	_, entries := serveLogged(t, zerolog.TraceLevel, func(http.ResponseWriter, *http.Request) {}, req)

	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusOK, entries[0]["status"])
}

func TestLoggerQuietAboveTrace(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)

	_, entries := serveLogged(t, zerolog.DebugLevel, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, req)

	assert.Empty(t, entries)
}

func TestLoggerRecoversPanic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)

	rec, entries := serveLogged(t, zerolog.TraceLevel, func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, entries, 2)
	assert.Equal(t, "error", entries[0]["type"])
	assert.Equal(t, "kaboom", entries[0]["error"])
	assert.Equal(t, "access", entries[1]["type"])
	assert.EqualValues(t, http.StatusInternalServerError, entries[1]["status"])
}

func TestLoggerRepanicsAbortHandler(t *testing.T) {
	handler := Logger(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
