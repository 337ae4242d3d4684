// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/models"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// statusForKind maps the error taxonomy onto HTTP statuses.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindTransient, models.KindIntegrityFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError converts a coordinator error into {error, kind, reason}.
// Internal errors are logged and their message is not exposed.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status := statusForKind(kind)

	resp := ErrorResponse{
		Error:  err.Error(),
		Kind:   string(kind),
		Reason: models.ReasonOf(err),
	}

	if status >= http.StatusInternalServerError {
		event := log.Error()
		if kind == models.KindTransient {
			event = log.Warn()
		}
		event.Err(err).Str("path", r.URL.Path).Str("kind", string(kind)).Msg("request failed")
		if kind == models.KindInternal {
			resp.Error = "internal error"
		}
	}

	RespondJSON(w, status, resp)
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional decodes the request body into the provided struct.
// Returns true if decoding succeeds or body is empty (io.EOF).
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && err != io.EOF {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseStringParam extracts a URL parameter, trimmed. Empty values are
// rejected with 400.
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, paramName))
	if value == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}

// PaginationParams holds parsed pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination extracts and validates pagination parameters from query string.
// Uses provided defaults and enforces maxLimit. Invalid values are silently ignored.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	p := PaginationParams{Limit: defaultLimit, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			if parsed > maxLimit {
				parsed = maxLimit
			}
			p.Limit = parsed
		}
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}

	return p
}
