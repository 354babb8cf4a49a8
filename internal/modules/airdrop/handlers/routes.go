package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all airdrop routes
func (h *AirdropHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/airdrops", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{token}", h.HandleGet)
		r.Get("/{token}/claimed/{index}", h.HandleIsClaimed)
		r.Post("/{token}/claim", h.HandleClaim)
	})
}
