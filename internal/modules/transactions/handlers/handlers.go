// Package handlers provides HTTP handlers for transaction store operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// Handler handles transaction HTTP requests
type Handler struct {
	store    *transactions.Store
	journal  *journal.Journal
	location *time.Location
	log      zerolog.Logger
}

// NewHandler creates a new transactions handler
func NewHandler(store *transactions.Store, j *journal.Journal, loc *time.Location, log zerolog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:    store,
		journal:  j,
		location: loc,
		log:      log.With().Str("handler", "transactions").Logger(),
	}
}

// HandleList handles GET /api/transactions
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := transactions.ListFilter{
		Type:   transactions.Type(r.URL.Query().Get("type")),
		Status: transactions.Status(r.URL.Query().Get("status")),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil {
		filter.PageSize = size
	}

	result, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, "Failed to list transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetDetail handles GET /api/transactions/{id}. The detail view joins
// lines, events and inspections and computes balance_due and days_overdue.
func (h *Handler) HandleGetDetail(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()

	header, err := h.store.GetHeader(ctx, id)
	if err != nil {
		h.writeError(w, err, "Failed to get transaction")
		return
	}

	lines, err := h.store.GetLines(ctx, id)
	if err != nil {
		h.writeError(w, err, "Failed to get transaction lines")
		return
	}

	events, err := h.journal.ListByHeader(ctx, id, r.URL.Query().Get("event_type"))
	if err != nil {
		h.writeError(w, err, "Failed to get transaction events")
		return
	}

	inspections, err := h.store.ListInspectionsByHeader(ctx, id)
	if err != nil {
		h.writeError(w, err, "Failed to get inspections")
		return
	}

	detail := map[string]interface{}{
		"header":      header,
		"lines":       lines,
		"events":      events,
		"inspections": inspections,
		"balance_due": header.BalanceDue(),
	}
	if header.Type == transactions.TypeRental {
		detail["days_overdue"] = h.daysOverdue(lines)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": detail})
}

// daysOverdue returns the worst overdue-day count across open lines.
func (h *Handler) daysOverdue(lines []transactions.Line) int {
	today := time.Now().In(h.location)
	worst := 0
	for _, line := range lines {
		if line.RentalStatus == transactions.LineCompleted || line.RentalEndDate == "" {
			continue
		}
		end, err := domain.ParseWallDate(line.RentalEndDate, h.location)
		if err != nil {
			continue
		}
		if days := domain.DaysBetween(end, today); days > worst {
			worst = days
		}
	}
	return worst
}

type paymentRequest struct {
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Actor     string `json:"actor"`
}

// HandleRecordPayment handles POST /api/transactions/{id}/payments
func (h *Handler) HandleRecordPayment(w http.ResponseWriter, r *http.Request, id int64) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid payment request")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, domain.Validationf("invalid amount %q", req.Amount), "Invalid payment amount")
		return
	}

	header, err := h.store.RecordPayment(r.Context(), id, amount, req.Method, req.Reference, req.Actor)
	if err != nil {
		h.writeError(w, err, "Failed to record payment")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"transaction_id": header.ID,
			"paid_amount":    header.PaidAmount,
			"payment_status": header.PaymentStatus,
			"balance_due":    header.BalanceDue(),
		},
	})
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// HandleTransitionStatus handles POST /api/transactions/{id}/status
func (h *Handler) HandleTransitionStatus(w http.ResponseWriter, r *http.Request, id int64) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body: %v", err), "Invalid status request")
		return
	}
	if req.Status == "" {
		h.writeError(w, domain.Validationf("status is required"), "Invalid status request")
		return
	}

	if err := h.store.TransitionStatus(r.Context(), id,
		transactions.Status(req.Status), req.Reason, req.Actor); err != nil {
		h.writeError(w, err, "Failed to transition status")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"transaction_id": id,
			"status":         req.Status,
		},
	})
}

// HandleListEvents handles GET /api/transactions/{id}/events
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request, id int64) {
	events, err := h.journal.ListByHeader(r.Context(), id, r.URL.Query().Get("event_type"))
	if err != nil {
		h.writeError(w, err, "Failed to list events")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"events": events,
			"count":  len(events),
		},
	})
}

// HandleListPayments handles GET /api/transactions/{id}/payments
func (h *Handler) HandleListPayments(w http.ResponseWriter, r *http.Request, id int64) {
	payments, err := h.store.ListPayments(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to list payments")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"payments": payments,
			"count":    len(payments),
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
