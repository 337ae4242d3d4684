// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/entitled/internal/services/entitlement"
)

type LicensesHandler struct {
	coordinator *entitlement.Coordinator
}

func NewLicensesHandler(coordinator *entitlement.Coordinator) *LicensesHandler {
	return &LicensesHandler{coordinator: coordinator}
}

func (h *LicensesHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Issue)
	r.Get("/{code}/status", h.Status)
	r.Post("/{licenseID}/disable", h.Disable)
}

func (h *LicensesHandler) List(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, 50, 500)

	licenses, err := h.coordinator.ListLicenses(r.Context(), page.Limit, page.Offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, licenses)
}

func (h *LicensesHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req entitlement.IssueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.coordinator.Issue(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// Status answers whether the license is usable on the device given by the
// fingerprint query param. userId narrows the match to one account.
func (h *LicensesHandler) Status(w http.ResponseWriter, r *http.Request) {
	code, ok := ParseStringParam(w, r, "code", "License code")
	if !ok {
		return
	}

	query := r.URL.Query()
	fingerprint := strings.TrimSpace(query.Get("fingerprint"))
	if fingerprint == "" {
		RespondError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	st, err := h.coordinator.CheckStatus(r.Context(), code, fingerprint, query.Get("userId"))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, st)
}

func (h *LicensesHandler) Disable(w http.ResponseWriter, r *http.Request) {
	licenseID, ok := ParseStringParam(w, r, "licenseID", "License ID")
	if !ok {
		return
	}

	res, err := h.coordinator.DisableLicense(r.Context(), licenseID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
