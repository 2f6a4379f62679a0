/**
 * @description
 * Handlers for the compliance review queue: flagging transactions for review,
 * listing the queue, and the terminal revoke/freeze actions. Flag creation is
 * a machine endpoint (the external fraud detector); everything else is driven
 * by dashboard actors whose role is checked once inside the service.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

type flagTransactionRequest struct {
	EscrowID    string `json:"escrow_id"`
	UserAddress string `json:"user_address"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	Severity    string `json:"severity"`
}

type complianceActionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// FlagTransactionHandler handles POST /internal/compliance/flags.
func (h *SponsorshipHandlers) FlagTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req flagTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flag, err := h.service.FlagTransaction(r.Context(), req.EscrowID, req.UserAddress, req.Amount, req.Reason, req.Severity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, flag)
}

// ListFlaggedHandler handles GET /compliance/flags.
func (h *SponsorshipHandlers) ListFlaggedHandler(w http.ResponseWriter, r *http.Request) {
	filters := domain.FlaggedTransactionFilters{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
	}

	flags, err := h.service.ListFlagged(r.Context(), filters)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if flags == nil {
		flags = []domain.FlaggedTransaction{}
	}
	h.writeJSON(w, http.StatusOK, flags)
}

// MarkReviewedHandler handles POST /compliance/flags/{id}/review.
func (h *SponsorshipHandlers) MarkReviewedHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flag id")
		return
	}
	if err := h.service.MarkReviewed(r.Context(), actor, role, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkResolvedHandler handles POST /compliance/flags/{id}/resolve.
func (h *SponsorshipHandlers) MarkResolvedHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flag id")
		return
	}
	if err := h.service.MarkResolved(r.Context(), actor, role, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeEscrowHandler handles POST /compliance/escrows/{escrowId}/revoke.
func (h *SponsorshipHandlers) RevokeEscrowHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req complianceActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.service.RevokeEscrow(r.Context(), actor, role, chi.URLParam(r, "escrowId"), req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserFrozenStatusHandler handles GET /compliance/users/{userAddress}.
func (h *SponsorshipHandlers) UserFrozenStatusHandler(w http.ResponseWriter, r *http.Request) {
	userAddress := chi.URLParam(r, "userAddress")
	frozen, err := h.service.IsUserFrozen(r.Context(), userAddress)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_address": userAddress,
		"frozen":       frozen,
	})
}

// FreezeUserHandler handles POST /compliance/users/{userAddress}/freeze.
func (h *SponsorshipHandlers) FreezeUserHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req complianceActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.service.FreezeUser(r.Context(), actor, role, chi.URLParam(r, "userAddress"), req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
