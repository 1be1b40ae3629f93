// Package purchasing implements the purchase and returns engine: purchase
// creation with unit materialization, purchase-return validation against the
// original, restocking fees, vendor-credit issuance and condition-gated
// restock.
package purchasing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// PurchaseLineRequest is one requested purchase line.
type PurchaseLineRequest struct {
	ItemID        string          `json:"item_id"`
	Quantity      int             `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	SerialNumbers []string        `json:"serial_numbers,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// CreatePurchaseRequest is the purchase-creation request shape. With
// AutoComplete the received goods are materialized as inventory units in the
// same transaction and the purchase completes immediately.
type CreatePurchaseRequest struct {
	TransactionDate string                `json:"transaction_date"`
	SupplierID      string                `json:"supplier_id"`
	LocationID      string                `json:"location_id"`
	Lines           []PurchaseLineRequest `json:"lines"`
	AutoComplete    bool                  `json:"auto_complete"`
	ShippingAmount  decimal.Decimal       `json:"shipping_amount"`
	ReferenceNumber string                `json:"reference_number,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Actor           string                `json:"actor,omitempty"`
}

// Validate checks structural constraints.
func (r *CreatePurchaseRequest) Validate(loc *time.Location) error {
	if r.SupplierID == "" {
		return domain.Validationf("supplier_id is required")
	}
	if r.LocationID == "" {
		return domain.Validationf("location_id is required")
	}
	if r.TransactionDate == "" {
		return domain.Validationf("transaction_date is required")
	}
	if _, err := domain.ParseWallDate(r.TransactionDate, loc); err != nil {
		return domain.Validationf("invalid transaction_date: %v", err)
	}
	if len(r.Lines) == 0 {
		return domain.Validationf("at least one purchase line is required")
	}
	if r.ShippingAmount.IsNegative() {
		return domain.Validationf("shipping_amount must not be negative")
	}

	for i, line := range r.Lines {
		if line.ItemID == "" {
			return lineErr(i, "item_id is required")
		}
		if line.Quantity < 1 {
			return lineErr(i, "quantity must be at least 1")
		}
		if line.UnitCost.IsNegative() {
			return lineErr(i, "unit_cost must not be negative")
		}
		if len(line.SerialNumbers) > 0 && len(line.SerialNumbers) != line.Quantity {
			return lineErr(i, "serial_numbers count must equal quantity")
		}
	}
	return nil
}

func lineErr(index int, msg string) error {
	return domain.Validationf("lines[%d]: %s", index, msg)
}

// ReturnItemRequest is one item in a purchase-return request.
type ReturnItemRequest struct {
	ItemID    string                 `json:"item_id"`
	Quantity  int                    `json:"quantity"`
	Condition domain.ConditionRating `json:"condition,omitempty"`
}

// CreateReturnRequest is the purchase-return request shape. The reason
// applies to the whole return; it drives the window bypass, the restocking
// fee and auto-approval.
type CreateReturnRequest struct {
	OriginalPurchaseID int64               `json:"original_purchase_id"`
	TransactionDate    string              `json:"transaction_date"`
	Reason             domain.ReturnReason `json:"reason"`
	RMANumber          string              `json:"rma_number,omitempty"`
	Items              []ReturnItemRequest `json:"items"`
	Notes              string              `json:"notes,omitempty"`
	Actor              string              `json:"actor,omitempty"`
}

// Validate checks structural constraints.
func (r *CreateReturnRequest) Validate(loc *time.Location) error {
	if r.OriginalPurchaseID == 0 {
		return domain.Validationf("original_purchase_id is required")
	}
	if r.TransactionDate == "" {
		return domain.Validationf("transaction_date is required")
	}
	if _, err := domain.ParseWallDate(r.TransactionDate, loc); err != nil {
		return domain.Validationf("invalid transaction_date: %v", err)
	}
	if !r.Reason.Valid() {
		return domain.Validationf("reason must be one of DEFECTIVE, DAMAGED, WRONG_ITEM, EXCESS, EXPIRED, RECALL")
	}
	if len(r.Items) == 0 {
		return domain.Validationf("at least one returned item is required")
	}
	for i, item := range r.Items {
		if item.ItemID == "" {
			return lineErr(i, "item_id is required")
		}
		if item.Quantity < 1 {
			return lineErr(i, "quantity must be at least 1")
		}
		if item.Condition != "" && !item.Condition.Valid() {
			return lineErr(i, "condition must be one of A, B, C, D, F")
		}
	}
	return nil
}

// CreditRequest is the vendor-credit issuance request shape. A zero
// CreditAmount means the full absolute return total.
type CreditRequest struct {
	ReturnID         int64           `json:"return_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	Actor            string          `json:"actor,omitempty"`
}

// InspectionRequest completes a pending return inspection.
type InspectionRequest struct {
	InspectionID    int64                  `json:"inspection_id"`
	ConditionRating domain.ConditionRating `json:"condition_rating"`
	Notes           string                 `json:"notes,omitempty"`
	Actor           string                 `json:"actor,omitempty"`
}

// PurchaseResult is the purchase-creation response shape.
type PurchaseResult struct {
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Status            string          `json:"status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	UnitsMaterialized int             `json:"units_materialized"`
}

// ReturnResult is the purchase-return response shape.
type ReturnResult struct {
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Status            string          `json:"status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	RestockingFee     decimal.Decimal `json:"restocking_fee"`
	AutoApproved      bool            `json:"auto_approved"`
	PendingInspection int             `json:"pending_inspections"`
}

// CreditResult is the vendor-credit response shape.
type CreditResult struct {
	TransactionID    int64           `json:"transaction_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	Status           string          `json:"status"`
}

// InspectionResult is the inspection-completion response shape.
type InspectionResult struct {
	InspectionID      int64  `json:"inspection_id"`
	ConditionRating   string `json:"condition_rating"`
	Disposition       string `json:"disposition"`
	ReturnToStock     bool   `json:"return_to_stock"`
	QuantityRestocked int    `json:"quantity_restocked"`
}
