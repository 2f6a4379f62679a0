/**
 * @description
 * This file sets up the HTTP router for the sponsorship-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS for the admin dashboard frontend.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SponsorshipRoutes creates and returns a new router for the sponsorship service.
func SponsorshipRoutes(h *SponsorshipHandlers, jwtSecret, internalAPIKey, corsOrigins string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(corsOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Api-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Machine-to-machine endpoints guarded by the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/internal/authorize", h.AuthorizeHandler)
		r.Post("/internal/compliance/flags", h.FlagTransactionHandler)
	})

	// Dashboard endpoints require an authenticated actor.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/sponsors", h.CreateSponsorHandler)
		r.Get("/sponsors", h.ListSponsorsHandler)
		r.Get("/sponsors/{address}/status", h.SponsorStatusHandler)
		r.Get("/sponsors/{address}/usage", h.SpendLedgerHandler)
		r.Post("/sponsors/{address}/whitelist", h.WhitelistUserHandler)
		r.Delete("/sponsors/{address}/whitelist/{userAddress}", h.RemoveWhitelistedUserHandler)
		r.Post("/sponsors/{address}/topup", h.TopUpSponsorHandler)
		r.Post("/sponsors/{address}/deactivate", h.DeactivateSponsorHandler)
		r.Post("/sponsors/{address}/reactivate", h.ReactivateSponsorHandler)
		r.Post("/sponsors/{address}/force-transfer", h.ForceTransferHandler)
		r.Delete("/sponsors/{address}", h.RemoveSponsorHandler)

		r.Get("/compliance/flags", h.ListFlaggedHandler)
		r.Post("/compliance/flags/{id}/review", h.MarkReviewedHandler)
		r.Post("/compliance/flags/{id}/resolve", h.MarkResolvedHandler)
		r.Post("/compliance/escrows/{escrowId}/revoke", h.RevokeEscrowHandler)
		r.Get("/compliance/users/{userAddress}", h.UserFrozenStatusHandler)
		r.Post("/compliance/users/{userAddress}/freeze", h.FreezeUserHandler)

		r.Get("/audit", h.AuditLogHandler)
	})

	return r
}
