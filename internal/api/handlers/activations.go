// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/entitled/internal/services/entitlement"
)

type ActivationsHandler struct {
	coordinator *entitlement.Coordinator
}

func NewActivationsHandler(coordinator *entitlement.Coordinator) *ActivationsHandler {
	return &ActivationsHandler{coordinator: coordinator}
}

func (h *ActivationsHandler) Routes(r chi.Router) {
	r.Post("/", h.Activate)
	r.Post("/deactivate", h.Deactivate)
}

// Activate binds a license to a device. A new binding answers 201, an
// existing one 200 with the "already active" notice.
func (h *ActivationsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req entitlement.ActivateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IPAddress) == "" {
		req.IPAddress = clientIP(r)
	}

	res, err := h.coordinator.Activate(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Notice != "" {
		status = http.StatusOK
	}
	RespondJSON(w, status, res)
}

func (h *ActivationsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req entitlement.DeactivateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.coordinator.Deactivate(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// clientIP strips the port from RemoteAddr, which RealIP has already
// rewritten when the request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
