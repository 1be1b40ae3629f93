package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rental routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rentals", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/availability", h.HandleAvailability)
		r.Post("/{id}/pickup", h.withID(h.HandlePickup))
		r.Post("/{id}/returns", h.withID(h.HandleReturn))
		r.Post("/{id}/extensions", h.withID(h.HandleExtend))
	})
}

func (h *Handler) withID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid rental id", http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}
