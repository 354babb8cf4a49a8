package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)               // Trade history
		r.Post("/exact-in", h.HandleExactIn)        // Swap a fixed input
		r.Post("/exact-out", h.HandleExactOut)      // Swap for a fixed net output
		r.Get("/tax/{token}", h.HandleGetTaxTotals) // Collected tax per asset
	})

	r.Get("/tokens/{token}/quote", h.HandleQuote)
	r.Get("/policy", h.HandleGetPolicy)
	r.Post("/admin/policy", h.HandleSetPolicy)
}
