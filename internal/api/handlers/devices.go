// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/entitled/internal/services/entitlement"
)

type DevicesHandler struct {
	coordinator *entitlement.Coordinator
}

func NewDevicesHandler(coordinator *entitlement.Coordinator) *DevicesHandler {
	return &DevicesHandler{coordinator: coordinator}
}

func (h *DevicesHandler) Routes(r chi.Router) {
	r.Post("/{deviceID}/revoke", h.Revoke)
	r.Post("/{deviceID}/restore", h.Restore)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *DevicesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := ParseStringParam(w, r, "deviceID", "Device ID")
	if !ok {
		return
	}

	var req revokeRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}

	res, err := h.coordinator.RevokeDevice(r.Context(), deviceID, req.Reason)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

func (h *DevicesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := ParseStringParam(w, r, "deviceID", "Device ID")
	if !ok {
		return
	}

	res, err := h.coordinator.RestoreDevice(r.Context(), deviceID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// ListForUser serves GET /api/users/{userID}/devices.
func (h *DevicesHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseStringParam(w, r, "userID", "User ID")
	if !ok {
		return
	}

	overview, err := h.coordinator.ListDevices(r.Context(), userID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, overview)
}
