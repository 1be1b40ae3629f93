// Package handlers provides HTTP handlers for purchasing operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/purchasing"
)

// Handler handles purchasing HTTP requests
type Handler struct {
	service *purchasing.Service
	log     zerolog.Logger
}

// NewHandler creates a new purchasing handler
func NewHandler(service *purchasing.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "purchasing").Logger(),
	}
}

// HandleCreatePurchase handles POST /api/purchases
func (h *Handler) HandleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchasing.CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid purchase request")
		return
	}

	result, err := h.service.CreatePurchase(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to create purchase")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": result})
}

// HandleCreateReturn handles POST /api/purchases/{id}/returns
func (h *Handler) HandleCreateReturn(w http.ResponseWriter, r *http.Request, id int64) {
	var req purchasing.CreateReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid return request")
		return
	}
	req.OriginalPurchaseID = id

	result, err := h.service.CreatePurchaseReturn(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to create purchase return")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": result})
}

// HandleIssueCredit handles POST /api/returns/{id}/credit
func (h *Handler) HandleIssueCredit(w http.ResponseWriter, r *http.Request, id int64) {
	var req purchasing.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid credit request")
		return
	}
	req.ReturnID = id

	result, err := h.service.IssueVendorCredit(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to issue vendor credit")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleCompleteInspection handles POST /api/inspections/{id}/complete
func (h *Handler) HandleCompleteInspection(w http.ResponseWriter, r *http.Request, id int64) {
	var req purchasing.InspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid inspection request")
		return
	}
	req.InspectionID = id

	result, err := h.service.CompleteInspection(r.Context(), &req)
	if err != nil {
		h.writeError(w, err, "Failed to complete inspection")
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
