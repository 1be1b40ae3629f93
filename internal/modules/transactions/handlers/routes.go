package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all transaction routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.withID(h.HandleGetDetail))
		r.Get("/{id}/events", h.withID(h.HandleListEvents))
		r.Get("/{id}/payments", h.withID(h.HandleListPayments))
		r.Post("/{id}/payments", h.withID(h.HandleRecordPayment))
		r.Post("/{id}/status", h.withID(h.HandleTransitionStatus))
	})
}

func (h *Handler) withID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}
