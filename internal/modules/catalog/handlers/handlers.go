// Package handlers provides HTTP handlers for catalog reference data.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/catalog"
)

// Handler handles catalog HTTP requests
type Handler struct {
	repo *catalog.Repository
	log  zerolog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(repo *catalog.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "catalog").Logger(),
	}
}

// HandleListItems handles GET /api/items
func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListItems(r.Context())
	if err != nil {
		h.writeError(w, err, "Failed to list items")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": items})
}

// HandleGetItem handles GET /api/items/{id}
func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "Failed to get item")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": item})
}

// HandleCreateItem handles POST /api/items
func (h *Handler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid item")
		return
	}

	if err := h.repo.CreateItem(r.Context(), &item); err != nil {
		h.writeError(w, err, "Failed to create item")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": item})
}

// HandleAddRateTier handles POST /api/items/{id}/rate-tiers
func (h *Handler) HandleAddRateTier(w http.ResponseWriter, r *http.Request) {
	var tier domain.RateTier
	if err := json.NewDecoder(r.Body).Decode(&tier); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid rate tier")
		return
	}
	tier.ItemID = chi.URLParam(r, "id")

	if err := h.repo.AddRateTier(r.Context(), &tier); err != nil {
		h.writeError(w, err, "Failed to add rate tier")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": tier})
}

// HandleListLocations handles GET /api/locations
func (h *Handler) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.repo.ListLocations(r.Context())
	if err != nil {
		h.writeError(w, err, "Failed to list locations")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": locations})
}

// HandleCreateLocation handles POST /api/locations
func (h *Handler) HandleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var loc domain.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid location")
		return
	}

	if err := h.repo.CreateLocation(r.Context(), &loc); err != nil {
		h.writeError(w, err, "Failed to create location")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": loc})
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
