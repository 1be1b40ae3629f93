package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all inventory routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/stock-levels", h.HandleListStockLevels)
		r.Get("/stock-levels/{itemID}/{locationID}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetStockLevel(w, r, chi.URLParam(r, "itemID"), chi.URLParam(r, "locationID"))
		})
		r.Post("/adjustments", h.HandleAdjustStock)
		r.Get("/units", h.HandleListUnits)
		r.Get("/movements/{headerID}", func(w http.ResponseWriter, r *http.Request) {
			headerID, err := strconv.ParseInt(chi.URLParam(r, "headerID"), 10, 64)
			if err != nil {
				http.Error(w, "invalid header id", http.StatusBadRequest)
				return
			}
			h.HandleListMovements(w, r, headerID)
		})
	})
}
