package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all purchasing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Post("/", h.HandleCreatePurchase)
		r.Post("/{id}/returns", h.withID(h.HandleCreateReturn))
	})
	r.Post("/returns/{id}/credit", h.withID(h.HandleIssueCredit))
	r.Post("/inspections/{id}/complete", h.withID(h.HandleCompleteInspection))
}

func (h *Handler) withID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}
