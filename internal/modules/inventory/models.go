// Package inventory implements the stock ledger: per-(item, location) counter
// vectors, serialized unit claims and the append-only movement log. All
// mutating entry points take the caller's transaction so that stock changes
// commit or roll back with the business operation that caused them.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitStatus enumerates the states of a serialized inventory unit.
type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitRented    UnitStatus = "RENTED"
	UnitDamaged   UnitStatus = "DAMAGED"
	UnitInRepair  UnitStatus = "IN_REPAIR"
	UnitRetired   UnitStatus = "RETIRED"
)

// MovementType tags a stock movement with the operation that produced it.
type MovementType string

const (
	MovementRentalOut       MovementType = "RENTAL_OUT"
	MovementRentalReturn    MovementType = "RENTAL_RETURN"
	MovementPurchaseReceipt MovementType = "PURCHASE_RECEIPT"
	MovementPurchaseReturn  MovementType = "PURCHASE_RETURN"
	MovementSale            MovementType = "SALE"
	MovementAdjustment      MovementType = "ADJUSTMENT"
)

// StockLevel is the counter vector for one (item, location) pair.
type StockLevel struct {
	ID                int64     `json:"id"`
	ItemID            string    `json:"item_id"`
	LocationID        string    `json:"location_id"`
	QuantityOnHand    int       `json:"quantity_on_hand"`
	QuantityAvailable int       `json:"quantity_available"`
	QuantityOnRent    int       `json:"quantity_on_rent"`
	QuantityDamaged   int       `json:"quantity_damaged"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Consistent reports whether the conservation equation holds:
// on_hand = available + on_rent + damaged.
func (s *StockLevel) Consistent() bool {
	return s.QuantityOnHand == s.QuantityAvailable+s.QuantityOnRent+s.QuantityDamaged
}

// StockDelta is the signed change applied to a counter vector in one
// adjustment. OnHand must equal Available+OnRent+Damaged or the adjustment is
// rejected before touching the row.
type StockDelta struct {
	OnHand    int
	Available int
	OnRent    int
	Damaged   int
}

// Balanced reports whether the delta preserves the conservation equation.
func (d StockDelta) Balanced() bool {
	return d.OnHand == d.Available+d.OnRent+d.Damaged
}

// MovementRef links a stock movement back to the transaction that caused it.
type MovementRef struct {
	Type     MovementType
	HeaderID int64 // 0 = no transaction (manual adjustment)
	LineID   int64 // 0 = header-level movement
}

// StockMovement is one append-only entry in the movement log. The before and
// after quantities snapshot on-hand so the log replays to the current level.
type StockMovement struct {
	ID             int64        `json:"id"`
	StockLevelID   int64        `json:"stock_level_id"`
	MovementType   MovementType `json:"movement_type"`
	QuantityChange int          `json:"quantity_change"`
	QuantityBefore int          `json:"quantity_before"`
	QuantityAfter  int          `json:"quantity_after"`
	HeaderID       int64        `json:"transaction_header_id,omitempty"`
	LineID         int64        `json:"transaction_line_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Unit is one serialized (or batch-tracked) physical inventory unit.
type Unit struct {
	ID           string           `json:"id"`
	ItemID       string           `json:"item_id"`
	LocationID   string           `json:"location_id"`
	SerialNumber string           `json:"serial_number,omitempty"`
	BatchCode    string           `json:"batch_code,omitempty"`
	Status       UnitStatus       `json:"status"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	SupplierRef  string           `json:"supplier_ref,omitempty"`
	RentalLineID int64            `json:"rental_line_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MaterializeRequest describes units to create on purchase receipt. Either
// Serials carries exactly Quantity serial numbers, or Serials is empty and the
// units are batch-tracked under BatchCode.
type MaterializeRequest struct {
	ItemID      string
	LocationID  string
	Quantity    int
	Serials     []string
	BatchCode   string
	UnitCost    *decimal.Decimal
	SupplierRef string
}
