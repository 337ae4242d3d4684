// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/entitled/internal/ledger"
	"github.com/autobrr/entitled/internal/models"
	"github.com/autobrr/entitled/internal/services/entitlement"
)

type LedgerHandler struct {
	coordinator *entitlement.Coordinator
}

func NewLedgerHandler(coordinator *entitlement.Coordinator) *LedgerHandler {
	return &LedgerHandler{coordinator: coordinator}
}

func (h *LedgerHandler) Routes(r chi.Router) {
	r.Get("/verify", h.Verify)
	r.Get("/blocks", h.Blocks)
}

// Verify walks the whole chain. A broken chain is still a 200; the body
// carries valid=false and the break.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.coordinator.VerifyLedger(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

func (h *LedgerHandler) Blocks(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, 100, 1000)

	from := ledger.GenesisIndex
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			RespondError(w, http.StatusBadRequest, "Invalid from")
			return
		}
		from = max(parsed, ledger.GenesisIndex)
	}

	blocks, err := h.coordinator.LedgerBlocks(r.Context(), from, page.Limit)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []*models.LedgerBlock{}
	}
	RespondJSON(w, http.StatusOK, blocks)
}
