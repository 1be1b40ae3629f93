// Package domain holds the shared entities, enumerations and error taxonomy
// of the rental-management engine. The package is pure: no infrastructure
// dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerStatus enumerates the customer account states.
type CustomerStatus string

const (
	CustomerActive      CustomerStatus = "ACTIVE"
	CustomerInactive    CustomerStatus = "INACTIVE"
	CustomerBlacklisted CustomerStatus = "BLACKLISTED"
)

// Valid reports whether the status is a recognized enum value.
func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerActive, CustomerInactive, CustomerBlacklisted:
		return true
	}
	return false
}

// Customer represents a renting party.
type Customer struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Status          CustomerStatus `json:"status"`
	BlacklistReason string         `json:"blacklist_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Location is a stocking site. Stock levels are partitioned by location.
type Location struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PeriodUnit is the rental billing period granularity.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "DAY"
	PeriodWeek  PeriodUnit = "WEEK"
	PeriodMonth PeriodUnit = "MONTH"
)

// Days returns the number of days one period spans. Months are billed as
// 30-day blocks.
func (u PeriodUnit) Days() int {
	switch u {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 1
	}
}

// PeriodUnitFromRequest maps the wire enum (DAILY/WEEKLY/MONTHLY) to the
// stored period unit. Unknown values map to DAY.
func PeriodUnitFromRequest(s string) PeriodUnit {
	switch s {
	case "WEEKLY", "WEEK":
		return PeriodWeek
	case "MONTHLY", "MONTH":
		return PeriodMonth
	default:
		return PeriodDay
	}
}

// RateTier is a duration-tiered daily rate for an item.
type RateTier struct {
	ID      int64           `json:"id"`
	ItemID  string          `json:"item_id"`
	MinDays int             `json:"min_days"`
	Rate    decimal.Decimal `json:"rate"`
}

// Item is a catalog entry. Capabilities gate which transaction types may
// reference it.
type Item struct {
	ID                   string           `json:"id"`
	SKU                  string           `json:"sku"`
	Name                 string           `json:"name"`
	Description          string           `json:"description,omitempty"`
	CategoryID           string           `json:"category_id,omitempty"`
	BrandID              string           `json:"brand_id,omitempty"`
	UOMID                string           `json:"uom_id,omitempty"`
	IsRentable           bool             `json:"is_rentable"`
	IsSellable           bool             `json:"is_sellable"`
	RequiresSerialNumber bool             `json:"requires_serial_number"`
	BaseRate             decimal.Decimal  `json:"base_rate"`
	RatePeriodUnit       PeriodUnit       `json:"rate_period_unit"`
	SecurityDeposit      *decimal.Decimal `json:"security_deposit,omitempty"` // nil = fallback percent of value
	ItemValue            decimal.Decimal  `json:"item_value"`
	RateTiers            []RateTier       `json:"rate_tiers,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// ConditionRating is the A-F scale used at return inspection.
type ConditionRating string

const (
	ConditionA ConditionRating = "A" // pristine
	ConditionB ConditionRating = "B"
	ConditionC ConditionRating = "C"
	ConditionD ConditionRating = "D"
	ConditionF ConditionRating = "F" // unusable
)

// Valid reports whether the rating is one of A-F.
func (c ConditionRating) Valid() bool {
	switch c {
	case ConditionA, ConditionB, ConditionC, ConditionD, ConditionF:
		return true
	}
	return false
}

// Rank orders ratings: A=5 down to F=1, 0 for unknown.
func (c ConditionRating) Rank() int {
	switch c {
	case ConditionA:
		return 5
	case ConditionB:
		return 4
	case ConditionC:
		return 3
	case ConditionD:
		return 2
	case ConditionF:
		return 1
	}
	return 0
}

// AtLeast reports whether the rating meets a minimum threshold rating.
func (c ConditionRating) AtLeast(min ConditionRating) bool {
	return c.Rank() >= min.Rank() && c.Rank() > 0
}

// Rentable reports whether a unit in this condition goes back to AVAILABLE
// stock (A/B) as opposed to the damaged pool (C/D/F).
func (c ConditionRating) Rentable() bool {
	return c == ConditionA || c == ConditionB
}

// Disposition is the post-inspection decision for returned goods.
type Disposition string

const (
	DispositionReturnToStock  Disposition = "RETURN_TO_STOCK"
	DispositionSendToRepair   Disposition = "SEND_TO_REPAIR"
	DispositionWriteOff       Disposition = "WRITE_OFF"
	DispositionReturnToVendor Disposition = "RETURN_TO_VENDOR"
)

// ReturnReason enumerates why a purchase return was raised.
type ReturnReason string

const (
	ReasonDefective ReturnReason = "DEFECTIVE"
	ReasonDamaged   ReturnReason = "DAMAGED"
	ReasonWrongItem ReturnReason = "WRONG_ITEM"
	ReasonExcess    ReturnReason = "EXCESS"
	ReasonExpired   ReturnReason = "EXPIRED"
	ReasonRecall    ReturnReason = "RECALL"
)

// Valid reports whether the reason is a recognized enum value.
func (r ReturnReason) Valid() bool {
	switch r {
	case ReasonDefective, ReasonDamaged, ReasonWrongItem, ReasonExcess, ReasonExpired, ReasonRecall:
		return true
	}
	return false
}

// BypassesReturnWindow reports whether the reason allows returns outside the
// configured eligibility window.
func (r ReturnReason) BypassesReturnWindow() bool {
	return r == ReasonDefective || r == ReasonRecall
}

// IncursRestockingFee reports whether the reason is attributable to buyer
// choice and therefore carries the restocking fee.
func (r ReturnReason) IncursRestockingFee() bool {
	return r == ReasonExcess || r == ReasonWrongItem
}
