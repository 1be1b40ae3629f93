package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all customer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/status", h.HandleSetStatus)
		r.Get("/{id}/eligibility", h.HandleEligibility)
	})
}
