/**
 * @description
 * Handler for the internal authorization endpoint. The escrow transaction
 * pipeline calls it before relaying a sponsored transaction; the response
 * carries the ALLOW/DENY/FALLBACK decision and its code so the caller can
 * proceed, reject, or offer the manual gas-fallback path.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

// authorizeResponse extends the decision with the retry hint the transaction
// pipeline uses to distinguish permanent rejections from transient ones.
type authorizeResponse struct {
	domain.AuthorizationResult
	Retryable bool `json:"retryable"`
}

// AuthorizeHandler handles POST /internal/authorize.
func (h *SponsorshipHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=authorize outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Authorize(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=authorize decision=%s code=%s sponsor=%s user=%s",
		result.Decision, result.Code, req.SponsorAddress, req.UserAddress)
	h.writeJSON(w, http.StatusOK, authorizeResponse{AuthorizationResult: result, Retryable: result.Retryable()})
}
