/**
 * @description
 * This file contains the HTTP handlers for the sponsor administration API.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/escrowd/sponsorship-service/internal/app"
	"github.com/escrowd/sponsorship-service/internal/domain"
	"github.com/escrowd/sponsorship-service/internal/store"
)

// SponsorshipHandlers holds the application service that handlers will use.
type SponsorshipHandlers struct {
	service *app.Service
}

// NewSponsorshipHandlers creates a new instance of SponsorshipHandlers.
func NewSponsorshipHandlers(service *app.Service) *SponsorshipHandlers {
	return &SponsorshipHandlers{service: service}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *SponsorshipHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *SponsorshipHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain error types to HTTP statuses.
func (h *SponsorshipHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var fieldErr *app.ValidationError
	var fieldErrs app.ValidationErrors
	switch {
	case errors.As(err, &fieldErr):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fieldErr.Error(), Field: fieldErr.Field})
	case errors.As(err, &fieldErrs):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fieldErrs.Error()})
	case errors.Is(err, store.ErrSponsorExists):
		h.writeError(w, http.StatusConflict, "A sponsor with this address already exists")
	case errors.Is(err, store.ErrSponsorNotFound):
		h.writeError(w, http.StatusNotFound, "Sponsor not found")
	case errors.Is(err, store.ErrSponsorRemoved):
		h.writeError(w, http.StatusConflict, "Sponsor has already been removed")
	case errors.Is(err, store.ErrWhitelistEntryNotFound):
		h.writeError(w, http.StatusNotFound, "Whitelist entry not found")
	case errors.Is(err, store.ErrFlagNotFound):
		h.writeError(w, http.StatusNotFound, "Flagged transaction not found")
	case errors.Is(err, store.ErrEscrowAlreadyRevoked):
		h.writeError(w, http.StatusConflict, "Escrow has already been revoked")
	case errors.Is(err, store.ErrUserAlreadyFrozen):
		h.writeError(w, http.StatusConflict, "User is already frozen")
	case errors.Is(err, app.ErrAdminRoleRequired), errors.Is(err, app.ErrRoleNotAllowed):
		h.writeError(w, http.StatusForbidden, "Actor role is not permitted to perform this action")
	default:
		log.Printf("level=error component=api msg=\"request failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// actor pulls the authenticated subject and role off the request context.
func (h *SponsorshipHandlers) actor(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	subject, role, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return "", "", false
	}
	return subject, role, true
}

// CreateSponsorHandler handles POST /sponsors.
func (h *SponsorshipHandlers) CreateSponsorHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.CreateSponsorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_sponsor outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sponsor, err := h.service.CreateSponsor(r.Context(), actor, role, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_sponsor outcome=created sponsor=%s actor=%s", sponsor.Address, actor)
	h.writeJSON(w, http.StatusCreated, sponsor)
}

// ListSponsorsHandler handles GET /sponsors.
func (h *SponsorshipHandlers) ListSponsorsHandler(w http.ResponseWriter, r *http.Request) {
	filters := domain.SponsorListFilters{}
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		isActive, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "is_active must be a boolean")
			return
		}
		filters.IsActive = &isActive
	}

	sponsors, err := h.service.GetAllSponsors(r.Context(), filters)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if sponsors == nil {
		sponsors = []domain.SponsorAccount{}
	}
	h.writeJSON(w, http.StatusOK, sponsors)
}

// SponsorStatusHandler handles GET /sponsors/{address}/status.
func (h *SponsorshipHandlers) SponsorStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetSponsorStatus(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// WhitelistUserHandler handles POST /sponsors/{address}/whitelist.
func (h *SponsorshipHandlers) WhitelistUserHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.WhitelistUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	whitelist, err := h.service.WhitelistUser(r.Context(), actor, role, chi.URLParam(r, "address"), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"whitelisted_users": whitelist})
}

// RemoveWhitelistedUserHandler handles DELETE /sponsors/{address}/whitelist/{userAddress}.
func (h *SponsorshipHandlers) RemoveWhitelistedUserHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	whitelist, err := h.service.RemoveWhitelistedUser(r.Context(), actor, role, chi.URLParam(r, "address"), chi.URLParam(r, "userAddress"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"whitelisted_users": whitelist})
}

// SpendLedgerHandler handles GET /sponsors/{address}/usage.
func (h *SponsorshipHandlers) SpendLedgerHandler(w http.ResponseWriter, r *http.Request) {
	granularity, err := domain.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "granularity must be one of daily, weekly, monthly")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	entries, err := h.service.GetSpendLedger(r.Context(), chi.URLParam(r, "address"), granularity, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.SpendLedgerEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

type topUpRequest struct {
	Amount string `json:"amount"`
}

// TopUpSponsorHandler handles POST /sponsors/{address}/topup.
func (h *SponsorshipHandlers) TopUpSponsorHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sponsor, err := h.service.TopUpSponsor(r.Context(), actor, role, chi.URLParam(r, "address"), req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sponsor)
}

// DeactivateSponsorHandler handles POST /sponsors/{address}/deactivate.
func (h *SponsorshipHandlers) DeactivateSponsorHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateSponsor(r.Context(), actor, role, chi.URLParam(r, "address")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReactivateSponsorHandler handles POST /sponsors/{address}/reactivate.
func (h *SponsorshipHandlers) ReactivateSponsorHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.ReactivateSponsor(r.Context(), actor, role, chi.URLParam(r, "address")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveSponsorHandler handles DELETE /sponsors/{address}.
func (h *SponsorshipHandlers) RemoveSponsorHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveSponsor(r.Context(), actor, role, chi.URLParam(r, "address")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceTransferHandler handles POST /sponsors/{address}/force-transfer. The
// whole workflow runs server-side; the response carries the terminal result.
func (h *SponsorshipHandlers) ForceTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.ForceTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SponsorAddress = chi.URLParam(r, "address")

	result, err := h.service.ForceTransfer(r.Context(), actor, role, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=force_transfer outcome=%s sponsor=%s actor=%s", result.Status, req.SponsorAddress, actor)
	h.writeJSON(w, http.StatusOK, result)
}

// AuditLogHandler handles GET /audit?target=&limit=.
func (h *SponsorshipHandlers) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		h.writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	entries, err := h.service.GetAuditLog(r.Context(), target, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}
