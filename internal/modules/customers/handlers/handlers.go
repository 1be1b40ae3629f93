// Package handlers provides HTTP handlers for customer accounts and the
// rental eligibility check.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/customers"
)

// Handler handles customer HTTP requests
type Handler struct {
	repo *customers.Repository
	log  zerolog.Logger
}

// NewHandler creates a new customer handler
func NewHandler(repo *customers.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "customers").Logger(),
	}
}

// HandleList handles GET /api/customers
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		h.writeError(w, err, "Failed to list customers")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

// HandleGet handles GET /api/customers/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "Failed to get customer")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": c})
}

// HandleCreate handles POST /api/customers
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var c domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid customer")
		return
	}

	if err := h.repo.Create(r.Context(), &c); err != nil {
		h.writeError(w, err, "Failed to create customer")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": c})
}

type statusRequest struct {
	Status domain.CustomerStatus `json:"status"`
	Reason string                `json:"reason,omitempty"`
}

// HandleSetStatus handles PUT /api/customers/{id}/status
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid status request")
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, domain.Validationf("status must be one of ACTIVE, INACTIVE, BLACKLISTED"), "Invalid status request")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.repo.SetStatus(r.Context(), id, req.Status, req.Reason); err != nil {
		h.writeError(w, err, "Failed to update customer status")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"id": id, "status": req.Status},
	})
}

// HandleEligibility handles GET /api/customers/{id}/eligibility
func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.CheckEligibility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "Failed to check eligibility")
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
