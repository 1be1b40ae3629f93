// Package rental implements the rental engine: creation with availability
// and conflict checks, pickup, lifecycle aggregation, returns, extensions and
// the availability query.
package rental

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// CreateItemRequest is one requested rental line.
type CreateItemRequest struct {
	ItemID            string          `json:"item_id"`
	Quantity          int             `json:"quantity"`
	UnitRate          decimal.Decimal `json:"unit_rate"` // zero = use computed rate
	RentalPeriodValue int             `json:"rental_period_value"`
	RentalPeriodType  string          `json:"rental_period_type"` // DAILY | WEEKLY | MONTHLY
	RentalStartDate   string          `json:"rental_start_date"`
	RentalEndDate     string          `json:"rental_end_date"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	SerialNumbers     []string        `json:"serial_numbers,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// CreateRequest is the rental-creation request shape.
type CreateRequest struct {
	TransactionDate  string              `json:"transaction_date"`
	CustomerID       string              `json:"customer_id"`
	LocationID       string              `json:"location_id"`
	PaymentMethod    string              `json:"payment_method"`
	Items            []CreateItemRequest `json:"items"`
	DeliveryRequired bool                `json:"delivery_required"`
	DeliveryAddress  string              `json:"delivery_address,omitempty"`
	DeliveryDate     string              `json:"delivery_date,omitempty"`
	PickupRequired   bool                `json:"pickup_required"`
	PickupDate       string              `json:"pickup_date,omitempty"`
	DepositAmount    decimal.Decimal     `json:"deposit_amount"` // zero = computed
	ReferenceNumber  string              `json:"reference_number,omitempty"`
	Actor            string              `json:"actor,omitempty"`
}

// Validate checks structural constraints; cross-entity checks happen inside
// the create transaction.
func (r *CreateRequest) Validate(loc *time.Location) error {
	if r.CustomerID == "" {
		return domain.Validationf("customer_id is required")
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
	if len(r.Items) == 0 {
		return domain.Validationf("at least one rental item is required")
	}

	for i, item := range r.Items {
		if item.ItemID == "" {
			return itemErr(i, "item_id is required")
		}
		if item.Quantity < 1 {
			return itemErr(i, "quantity must be at least 1")
		}
		if item.UnitRate.IsNegative() {
			return itemErr(i, "unit_rate must not be negative")
		}
		if item.DiscountValue.IsNegative() {
			return itemErr(i, "discount_value must not be negative")
		}

		start, err := domain.ParseWallDate(item.RentalStartDate, loc)
		if err != nil {
			return itemErr(i, "invalid rental_start_date")
		}
		end, err := domain.ParseWallDate(item.RentalEndDate, loc)
		if err != nil {
			return itemErr(i, "invalid rental_end_date")
		}
		if end.Before(start) {
			return itemErr(i, "rental_end_date must not precede rental_start_date")
		}
		if len(item.SerialNumbers) > 0 {
			if len(item.SerialNumbers) != item.Quantity {
				return itemErr(i, "serial_numbers count must equal quantity")
			}
			seen := make(map[string]bool, len(item.SerialNumbers))
			for _, sn := range item.SerialNumbers {
				if seen[sn] {
					return itemErr(i, "serial_numbers must be unique")
				}
				seen[sn] = true
			}
		}
	}

	return nil
}

func itemErr(index int, msg string) error {
	return domain.Validationf("items[%d]: %s", index, msg)
}

// ReturnItemRequest is one returned line in a return request.
type ReturnItemRequest struct {
	LineID             int64                  `json:"line_id"`
	QuantityReturned   int                    `json:"quantity_returned"`
	ConditionRating    domain.ConditionRating `json:"condition_rating"`
	DamageDescription  string                 `json:"damage_description,omitempty"`
	RepairCostEstimate decimal.Decimal        `json:"repair_cost_estimate"`
	PhotoRefs          string                 `json:"photo_refs,omitempty"`
}

// ReturnRequest is the rental-return request shape.
type ReturnRequest struct {
	RentalID       int64               `json:"rental_id"`
	ReturnDate     string              `json:"return_date"`
	Items          []ReturnItemRequest `json:"items"`
	InspectorNotes string              `json:"inspector_notes,omitempty"`
	Actor          string              `json:"actor,omitempty"`
}

// Validate checks structural constraints.
func (r *ReturnRequest) Validate(loc *time.Location) error {
	if r.RentalID == 0 {
		return domain.Validationf("rental_id is required")
	}
	if _, err := domain.ParseWallDate(r.ReturnDate, loc); err != nil {
		return domain.Validationf("invalid return_date: %v", err)
	}
	if len(r.Items) == 0 {
		return domain.Validationf("at least one returned item is required")
	}
	for i, item := range r.Items {
		if item.LineID == 0 {
			return itemErr(i, "line_id is required")
		}
		if item.QuantityReturned < 1 {
			return itemErr(i, "quantity_returned must be at least 1")
		}
		if !item.ConditionRating.Valid() {
			return itemErr(i, "condition_rating must be one of A, B, C, D, F")
		}
		if item.RepairCostEstimate.IsNegative() {
			return itemErr(i, "repair_cost_estimate must not be negative")
		}
	}
	return nil
}

// ExtensionRequest is the rental-extension request shape.
type ExtensionRequest struct {
	RentalID   int64  `json:"rental_id"`
	NewEndDate string `json:"new_end_date"`
	Actor      string `json:"actor,omitempty"`
}

// Validate checks structural constraints.
func (r *ExtensionRequest) Validate(loc *time.Location) error {
	if r.RentalID == 0 {
		return domain.Validationf("rental_id is required")
	}
	if _, err := domain.ParseWallDate(r.NewEndDate, loc); err != nil {
		return domain.Validationf("invalid new_end_date: %v", err)
	}
	return nil
}

// CreateResult is the creation response shape.
type CreateResult struct {
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Status            string          `json:"status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	DepositAmount     decimal.Decimal `json:"deposit_amount"`
}

// ReturnResult summarizes a processed return.
type ReturnResult struct {
	TransactionID int64           `json:"transaction_id"`
	Status        string          `json:"status"`
	LateFees      decimal.Decimal `json:"late_fees"`
	DamageCharges decimal.Decimal `json:"damage_charges"`
	DepositRefund decimal.Decimal `json:"deposit_refund_amount"`
	Complete      bool            `json:"complete"`
}

// ExtensionResult summarizes an applied extension.
type ExtensionResult struct {
	TransactionID   int64           `json:"transaction_id"`
	NewEndDate      string          `json:"new_end_date"`
	ExtensionCharge decimal.Decimal `json:"extension_charge"`
	ExtensionCount  int             `json:"extension_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}
