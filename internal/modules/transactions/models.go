// Package transactions implements the transaction store: header and line
// persistence, deterministic numbering, payment-status derivation and the
// header status machine.
package transactions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// Type discriminates transaction behavior. One record shape, behavior keyed
// by the tag.
type Type string

const (
	TypePurchase Type = "PURCHASE"
	TypeSale     Type = "SALE"
	TypeRental   Type = "RENTAL"
	TypeReturn   Type = "RETURN"
)

// Prefix returns the transaction-number prefix for the type.
func (t Type) Prefix() string {
	switch t {
	case TypePurchase:
		return "PUR"
	case TypeSale:
		return "SAL"
	case TypeRental:
		return "RENT"
	case TypeReturn:
		return "RET"
	}
	return "TXN"
}

// Valid reports whether the type is a recognized enum value.
func (t Type) Valid() bool {
	switch t {
	case TypePurchase, TypeSale, TypeRental, TypeReturn:
		return true
	}
	return false
}

// Status values. Non-rental transactions move through the PENDING /
// PROCESSING / ON_HOLD machine; rental headers additionally carry the
// aggregated lifecycle statuses computed by the rental engine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusOnHold     Status = "ON_HOLD"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"

	StatusRentalLate              Status = "RENTAL_LATE"
	StatusRentalPartialReturn     Status = "RENTAL_PARTIAL_RETURN"
	StatusRentalLatePartialReturn Status = "RENTAL_LATE_PARTIAL_RETURN"
	StatusRentalExtended          Status = "RENTAL_EXTENDED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentStatus is derived from paid_amount vs total_amount; it is never set
// directly by callers.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// LineStatus is the per-line rental lifecycle status.
type LineStatus string

const (
	LinePending           LineStatus = "RENTAL_PENDING"
	LineInProgress        LineStatus = "RENTAL_INPROGRESS"
	LineLate              LineStatus = "RENTAL_LATE"
	LinePartialReturn     LineStatus = "RENTAL_PARTIAL_RETURN"
	LineLatePartialReturn LineStatus = "RENTAL_LATE_PARTIAL_RETURN"
	LineExtended          LineStatus = "RENTAL_EXTENDED"
	LineCompleted         LineStatus = "RENTAL_COMPLETED"
)

// Header is a transaction header of any type.
type Header struct {
	ID                     int64           `json:"id"`
	TransactionNumber      string          `json:"transaction_number"`
	Type                   Type            `json:"transaction_type"`
	Status                 Status          `json:"status"`
	PaymentStatus          PaymentStatus   `json:"payment_status"`
	CustomerID             string          `json:"customer_id,omitempty"`
	SupplierID             string          `json:"supplier_id,omitempty"`
	LocationID             string          `json:"location_id"`
	TransactionDate        string          `json:"transaction_date"` // wall date YYYY-MM-DD
	Subtotal               decimal.Decimal `json:"subtotal"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	TaxAmount              decimal.Decimal `json:"tax_amount"`
	ShippingAmount         decimal.Decimal `json:"shipping_amount"`
	TotalAmount            decimal.Decimal `json:"total_amount"`
	PaidAmount             decimal.Decimal `json:"paid_amount"`
	DepositAmount          decimal.Decimal `json:"deposit_amount"`
	ReferenceTransactionID int64           `json:"reference_transaction_id,omitempty"`
	ExtensionCount         int             `json:"extension_count"`
	TotalExtensionCharges  decimal.Decimal `json:"total_extension_charges"`
	PaymentMethod          string          `json:"payment_method,omitempty"`
	ReferenceNumber        string          `json:"reference_number,omitempty"`
	ReturnReason           string          `json:"return_reason,omitempty"`
	RMANumber              string          `json:"rma_number,omitempty"`
	CreditNoteNumber       string          `json:"credit_note_number,omitempty"`
	DeliveryRequired       bool            `json:"delivery_required"`
	DeliveryAddress        string          `json:"delivery_address,omitempty"`
	DeliveryDate           string          `json:"delivery_date,omitempty"`
	PickupRequired         bool            `json:"pickup_required"`
	PickupDate             string          `json:"pickup_date,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
	CreatedBy              string          `json:"created_by,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// BalanceDue is the outstanding amount on the header.
func (h *Header) BalanceDue() decimal.Decimal {
	return h.TotalAmount.Sub(h.PaidAmount)
}

// Line is one transaction line. Quantity is signed: negative on returns.
type Line struct {
	ID               int64           `json:"id"`
	HeaderID         int64           `json:"transaction_header_id"`
	LineNumber       int             `json:"line_number"`
	LineType         string          `json:"line_type"`
	ItemID           string          `json:"item_id"`
	SKU              string          `json:"sku,omitempty"`
	Description      string          `json:"description,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	LineTotal        decimal.Decimal `json:"line_total"`
	RentalStartDate  string          `json:"rental_start_date,omitempty"`
	RentalEndDate    string          `json:"rental_end_date,omitempty"`
	RentalPeriod     int             `json:"rental_period,omitempty"`
	RentalPeriodUnit string          `json:"rental_period_unit,omitempty"`
	RentalStatus     LineStatus      `json:"current_rental_status,omitempty"`
	DailyRate        decimal.Decimal `json:"daily_rate"`
	ReturnedQuantity int             `json:"returned_quantity"`
	ReturnCondition  string          `json:"return_condition,omitempty"`
	InspectionStatus string          `json:"inspection_status,omitempty"`
}

// OutstandingQuantity is how many units of the line remain unreturned.
func (l *Line) OutstandingQuantity() int {
	return l.Quantity - l.ReturnedQuantity
}

// Inspection is one return-inspection record attached to a line.
type Inspection struct {
	ID                 int64                  `json:"id"`
	LineID             int64                  `json:"transaction_line_id"`
	ConditionRating    domain.ConditionRating `json:"condition_rating,omitempty"`
	DamageDescription  string                 `json:"damage_description,omitempty"`
	RepairCostEstimate decimal.Decimal        `json:"repair_cost_estimate"`
	Disposition        domain.Disposition     `json:"disposition,omitempty"`
	ReturnToStock      bool                   `json:"return_to_stock"`
	Status             string                 `json:"status"` // PENDING | COMPLETED
	Quantity           int                    `json:"quantity"`
	PhotoRefs          string                 `json:"photo_refs,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	InspectedAt        *time.Time             `json:"inspected_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// RentalLifecycle tracks pickup/return dates and settlement amounts for a
// rental header.
type RentalLifecycle struct {
	ID                  int64           `json:"id"`
	HeaderID            int64           `json:"transaction_header_id"`
	ExpectedPickupDate  string          `json:"expected_pickup_date,omitempty"`
	ActualPickupDate    string          `json:"actual_pickup_date,omitempty"`
	ExpectedReturnDate  string          `json:"expected_return_date,omitempty"`
	ActualReturnDate    string          `json:"actual_return_date,omitempty"`
	LateFees            decimal.Decimal `json:"late_fees"`
	DamageCharges       decimal.Decimal `json:"damage_charges"`
	DepositRefundAmount decimal.Decimal `json:"deposit_refund_amount"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Payment is one recorded payment against a header.
type Payment struct {
	ID        int64           `json:"id"`
	HeaderID  int64           `json:"transaction_header_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListFilter narrows List queries. Zero values mean no filter.
type ListFilter struct {
	Type     Type
	Status   Status
	Page     int
	PageSize int
}

// ListResult is one page of headers.
type ListResult struct {
	Items    []Header `json:"items"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
