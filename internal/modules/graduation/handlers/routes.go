package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all graduation routes
func (h *GraduationHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/tokens", h.HandleListTokens)       // Live token views
	r.Get("/tokens/{token}", h.HandleGetToken) // One token with reserves and eligibility

	r.Route("/graduation", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)   // Threshold and counts
		r.Get("/history", h.HandleGetHistory) // Persisted profiles
	})

	r.Post("/admin/graduation/threshold", h.HandleSetThreshold)
	r.Post("/admin/tokens/{token}/dex-configs", h.HandleSetDexConfigs)
}
