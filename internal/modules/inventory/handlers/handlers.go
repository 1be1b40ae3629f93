// Package handlers provides HTTP handlers for inventory ledger operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/inventory"
)

// Handler handles inventory HTTP requests
type Handler struct {
	ledger *inventory.Ledger
	log    zerolog.Logger
}

// NewHandler creates a new inventory handler
func NewHandler(ledger *inventory.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		log:    log.With().Str("handler", "inventory").Logger(),
	}
}

// HandleListStockLevels handles GET /api/inventory/stock-levels
func (h *Handler) HandleListStockLevels(w http.ResponseWriter, r *http.Request) {
	locationID := r.URL.Query().Get("location_id")

	levels, err := h.ledger.ListStockLevels(r.Context(), locationID)
	if err != nil {
		h.writeError(w, err, "Failed to list stock levels")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"stock_levels": levels,
			"count":        len(levels),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetStockLevel handles GET /api/inventory/stock-levels/{itemID}/{locationID}
func (h *Handler) HandleGetStockLevel(w http.ResponseWriter, r *http.Request, itemID, locationID string) {
	level, err := h.ledger.GetStockLevel(r.Context(), itemID, locationID)
	if err != nil {
		h.writeError(w, err, "Failed to get stock level")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": level,
	})
}

type adjustmentRequest struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	OnHand     int    `json:"on_hand"`
	Available  int    `json:"available"`
	OnRent     int    `json:"on_rent"`
	Damaged    int    `json:"damaged"`
}

// HandleAdjustStock handles POST /api/inventory/adjustments
func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid adjustment request")
		return
	}
	if req.ItemID == "" || req.LocationID == "" {
		h.writeError(w, domain.Validationf("item_id and location_id are required"), "Invalid adjustment request")
		return
	}

	delta := inventory.StockDelta{
		OnHand:    req.OnHand,
		Available: req.Available,
		OnRent:    req.OnRent,
		Damaged:   req.Damaged,
	}

	level, err := h.ledger.AdjustStock(r.Context(), req.ItemID, req.LocationID, delta,
		inventory.MovementRef{Type: inventory.MovementAdjustment})
	if err != nil {
		h.writeError(w, err, "Failed to adjust stock")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": level,
	})
}

// HandleListUnits handles GET /api/inventory/units
func (h *Handler) HandleListUnits(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("item_id")
	locationID := r.URL.Query().Get("location_id")
	status := r.URL.Query().Get("status")

	if itemID == "" || locationID == "" {
		h.writeError(w, domain.Validationf("item_id and location_id are required"), "Invalid units request")
		return
	}

	units, err := h.ledger.ListUnits(r.Context(), itemID, locationID, inventory.UnitStatus(status))
	if err != nil {
		h.writeError(w, err, "Failed to list units")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"units": units,
			"count": len(units),
		},
	})
}

// HandleListMovements handles GET /api/inventory/movements/{headerID}
func (h *Handler) HandleListMovements(w http.ResponseWriter, r *http.Request, headerID int64) {
	movements, err := h.ledger.ListMovements(r.Context(), headerID)
	if err != nil {
		h.writeError(w, err, "Failed to list movements")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"movements": movements,
			"count":     len(movements),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps an error through the taxonomy to a status code and writes
// the structured error body.
func (h *Handler) writeError(w http.ResponseWriter, err error, logMsg string) {
	status := domain.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(logMsg)
	} else {
		h.log.Warn().Err(err).Msg(logMsg)
	}

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"message": "internal error",
		},
	}
	if appErr, ok := domain.AsAppError(err); ok {
		errBody := map[string]interface{}{
			"type":    appErr.Type,
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			errBody["details"] = appErr.Details
		}
		body["error"] = errBody
	}

	h.writeJSON(w, status, body)
}
