/**
 * @description
 * This file sets up the HTTP router for the member portal using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS and session extraction, and maps routes to handlers.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new Chi router and registers the portal routes.
func NewRouter(h *Handler, webhooks *WebhookHandler) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RefreshTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Member portal is healthy"))
	})

	r.Method("GET", "/metrics", promhttp.Handler())

	// Webhooks authenticate by signature, not session
	r.Post("/webhooks/payment", webhooks.ServeHTTP)

	// Portal routes carry the caller's session tokens
	r.Group(func(r chi.Router) {
		r.Use(SessionExtractor)

		r.Get("/portal/gate", h.handleGate)
		r.Post("/portal/session/retry", h.handleSessionRetry)
		r.Post("/portal/session/reset", h.handleSessionReset)

		r.Post("/portal/activation/intent", h.handleCreateIntent)
		r.Post("/portal/activation/confirm", h.handleConfirm)

		r.Post("/portal/members/link", h.handleLinkMember)

		r.Get("/portal/application/draft", h.handleGetDraft)
		r.Put("/portal/application/draft", h.handleSaveDraft)
		r.Post("/portal/application/draft/flush", h.handleFlushDraft)
		r.Post("/portal/application/draft/customer", h.handleAdoptCustomer)
		r.Delete("/portal/application/draft", h.handleClearDraft)
	})

	return r
}
