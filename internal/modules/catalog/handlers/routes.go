package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.HandleListItems)
		r.Post("/", h.HandleCreateItem)
		r.Get("/{id}", h.HandleGetItem)
		r.Post("/{id}/rate-tiers", h.HandleAddRateTier)
	})
	r.Route("/locations", func(r chi.Router) {
		r.Get("/", h.HandleListLocations)
		r.Post("/", h.HandleCreateLocation)
	})
}
