package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all launch routes
func (h *LaunchHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/launches", func(r chi.Router) {
		r.Post("/", h.HandleLaunch)         // Launch a token
		r.Get("/", h.HandleGetLaunches)     // Recent launches
		r.Get("/config", h.HandleGetConfig) // Launch economics
	})
}
