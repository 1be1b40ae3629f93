// Package handlers provides HTTP handlers for rental engine operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/rental"
)

// Handler handles rental HTTP requests
type Handler struct {
	service *rental.Service
	log     zerolog.Logger
}

// NewHandler creates a new rental handler
func NewHandler(service *rental.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rental").Logger(),
	}
}

// HandleCreate handles POST /api/rentals
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req rental.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid rental request")
		return
	}

	result, err := h.service.CreateRental(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to create rental")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": result})
}

type pickupRequest struct {
	PickupDate string `json:"pickup_date"`
	Actor      string `json:"actor"`
}

// HandlePickup handles POST /api/rentals/{id}/pickup
func (h *Handler) HandlePickup(w http.ResponseWriter, r *http.Request, id int64) {
	var req pickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid pickup request")
		return
	}

	if err := h.service.Pickup(r.Context(), id, req.PickupDate, req.Actor); err != nil {
		h.writeError(w, err, "Failed to record pickup")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"transaction_id": id},
	})
}

// HandleReturn handles POST /api/rentals/{id}/returns
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request, id int64) {
	var req rental.ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid return request")
		return
	}
	req.RentalID = id

	result, err := h.service.ProcessReturn(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to process return")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleExtend handles POST /api/rentals/{id}/extensions
func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request, id int64) {
	var req rental.ExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid extension request")
		return
	}
	req.RentalID = id

	result, err := h.service.Extend(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to extend rental")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleAvailability handles GET /api/rentals/availability
func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	query := rental.AvailabilityQuery{
		ItemID:     r.URL.Query().Get("item_id"),
		LocationID: r.URL.Query().Get("location_id"),
		StartDate:  r.URL.Query().Get("start_date"),
		EndDate:    r.URL.Query().Get("end_date"),
		Quantity:   1,
	}
	if qty, err := strconv.Atoi(r.URL.Query().Get("quantity")); err == nil {
		query.Quantity = qty
	}

	result, err := h.service.CheckAvailability(r.Context(), &query)
	if err != nil {
		h.writeError(w, err, "Failed to check availability")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
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

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode error response")
	}
}
