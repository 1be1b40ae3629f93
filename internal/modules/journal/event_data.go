// Package journal implements the append-only per-transaction event log.
// Event writes share the transaction scope of the mutation they describe, so
// an event is never observable for a rolled-back operation.
package journal

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	RentalCreated          EventType = "RENTAL_CREATED"
	RentalPickup           EventType = "RENTAL_PICKUP"
	RentalReturned         EventType = "RENTAL_RETURNED"
	RentalExtended         EventType = "RENTAL_EXTENDED"
	PurchaseCreated        EventType = "PURCHASE_CREATED"
	PurchaseReturnCreated  EventType = "PURCHASE_RETURN_CREATED"
	VendorCreditProcessed  EventType = "VENDOR_CREDIT_PROCESSED"
	PaymentRecorded        EventType = "PAYMENT_RECORDED"
	StatusChanged          EventType = "STATUS_CHANGED"
	InspectionCompleted    EventType = "INSPECTION_COMPLETED"
)

// EventData is the interface that all event payload types must implement.
// This allows for type-safe event payloads while keeping one journal table.
type EventData interface {
	// EventType returns the event type this payload is associated with
	EventType() EventType
}

// RentalLinePayload is one rental line inside a RentalCreated payload.
type RentalLinePayload struct {
	LineNumber int    `json:"line_number"`
	ItemID     string `json:"item_id"`
	SKU        string `json:"sku,omitempty"`
	Quantity   int    `json:"quantity"`
	StartDate  string `json:"rental_start_date"`
	EndDate    string `json:"rental_end_date"`
	DailyRate  string `json:"daily_rate"`
	LineTotal  string `json:"line_total"`
	UnitIDs    []string `json:"unit_ids,omitempty"`
}

// RentalCreatedData contains data for RentalCreated events
type RentalCreatedData struct {
	CustomerID    string              `json:"customer_id"`
	LocationID    string              `json:"location_id"`
	Lines         []RentalLinePayload `json:"lines"`
	Subtotal      string              `json:"subtotal"`
	TaxAmount     string              `json:"tax_amount"`
	TotalAmount   string              `json:"total_amount"`
	DepositAmount string              `json:"deposit_amount"`
}

// EventType returns the event type for RentalCreatedData
func (d *RentalCreatedData) EventType() EventType {
	return RentalCreated
}

// RentalPickupData contains data for RentalPickup events
type RentalPickupData struct {
	PickupDate string `json:"actual_pickup_date"`
}

// EventType returns the event type for RentalPickupData
func (d *RentalPickupData) EventType() EventType {
	return RentalPickup
}

// ReturnLinePayload is one returned line inside a RentalReturned payload.
type ReturnLinePayload struct {
	LineID           int64  `json:"line_id"`
	QuantityReturned int    `json:"quantity_returned"`
	Condition        string `json:"condition_rating"`
	LineStatus       string `json:"line_status"`
}

// RentalReturnedData contains data for RentalReturned events
type RentalReturnedData struct {
	ReturnDate    string              `json:"return_date"`
	Lines         []ReturnLinePayload `json:"lines"`
	LateFees      string              `json:"late_fees"`
	DamageCharges string              `json:"damage_charges"`
	DepositRefund string              `json:"deposit_refund_amount"`
	Complete      bool                `json:"complete"`
}

// EventType returns the event type for RentalReturnedData
func (d *RentalReturnedData) EventType() EventType {
	return RentalReturned
}

// RentalExtendedData contains data for RentalExtended events
type RentalExtendedData struct {
	NewEndDate      string `json:"new_end_date"`
	ExtensionCharge string `json:"extension_charge"`
	ExtensionCount  int    `json:"extension_count"`
}

// EventType returns the event type for RentalExtendedData
func (d *RentalExtendedData) EventType() EventType {
	return RentalExtended
}

// PurchaseCreatedData contains data for PurchaseCreated events
type PurchaseCreatedData struct {
	SupplierID        string `json:"supplier_id,omitempty"`
	LocationID        string `json:"location_id"`
	LineCount         int    `json:"line_count"`
	TotalAmount       string `json:"total_amount"`
	UnitsMaterialized int    `json:"units_materialized"`
}

// EventType returns the event type for PurchaseCreatedData
func (d *PurchaseCreatedData) EventType() EventType {
	return PurchaseCreated
}

// PurchaseReturnCreatedData contains data for PurchaseReturnCreated events
type PurchaseReturnCreatedData struct {
	OriginalPurchaseID int64  `json:"original_purchase_id"`
	Reason             string `json:"return_reason"`
	RMANumber          string `json:"rma_number,omitempty"`
	TotalAmount        string `json:"total_amount"`
	RestockingFee      string `json:"restocking_fee,omitempty"`
	AutoApproved       bool   `json:"auto_approved"`
}

// EventType returns the event type for PurchaseReturnCreatedData
func (d *PurchaseReturnCreatedData) EventType() EventType {
	return PurchaseReturnCreated
}

// VendorCreditProcessedData contains data for VendorCreditProcessed events
type VendorCreditProcessedData struct {
	CreditNoteNumber string `json:"credit_note_number"`
	CreditAmount     string `json:"credit_amount"`
}

// EventType returns the event type for VendorCreditProcessedData
func (d *VendorCreditProcessedData) EventType() EventType {
	return VendorCreditProcessed
}

// PaymentRecordedData contains data for PaymentRecorded events
type PaymentRecordedData struct {
	Amount        string `json:"amount"`
	Method        string `json:"method,omitempty"`
	Reference     string `json:"reference,omitempty"`
	PaidAmount    string `json:"paid_amount"`
	PaymentStatus string `json:"payment_status"`
}

// EventType returns the event type for PaymentRecordedData
func (d *PaymentRecordedData) EventType() EventType {
	return PaymentRecorded
}

// StatusChangedData contains data for StatusChanged events
type StatusChangedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// EventType returns the event type for StatusChangedData
func (d *StatusChangedData) EventType() EventType {
	return StatusChanged
}

// InspectionCompletedData contains data for InspectionCompleted events
type InspectionCompletedData struct {
	LineID            int64  `json:"line_id"`
	Rating            string `json:"condition_rating"`
	Disposition       string `json:"disposition"`
	ReturnToStock     bool   `json:"return_to_stock"`
	QuantityRestocked int    `json:"quantity_restocked"`
}

// EventType returns the event type for InspectionCompletedData
func (d *InspectionCompletedData) EventType() EventType {
	return InspectionCompleted
}

// Event is one journal entry: the envelope plus its typed payload.
type Event struct {
	EventID       string    `json:"event_id"`
	Type          EventType `json:"event_type"`
	TransactionID int64     `json:"transaction_id"`
	Description   string    `json:"description,omitempty"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
	Data          EventData `json:"payload"`
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"payload"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"payload"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		payload, err := decodePayload(aux.Type, aux.Data)
		if err != nil {
			return err
		}
		e.Data = payload
	}

	return nil
}

// decodePayload unmarshals a raw payload into its typed struct based on the
// event type tag.
func decodePayload(t EventType, raw json.RawMessage) (EventData, error) {
	var payload EventData
	switch t {
	case RentalCreated:
		payload = &RentalCreatedData{}
	case RentalPickup:
		payload = &RentalPickupData{}
	case RentalReturned:
		payload = &RentalReturnedData{}
	case RentalExtended:
		payload = &RentalExtendedData{}
	case PurchaseCreated:
		payload = &PurchaseCreatedData{}
	case PurchaseReturnCreated:
		payload = &PurchaseReturnCreatedData{}
	case VendorCreditProcessed:
		payload = &VendorCreditProcessedData{}
	case PaymentRecorded:
		payload = &PaymentRecordedData{}
	case StatusChanged:
		payload = &StatusChangedData{}
	case InspectionCompleted:
		payload = &InspectionCompletedData{}
	default:
		// For unknown types, keep the raw map
		var rawData map[string]interface{}
		if err := json.Unmarshal(raw, &rawData); err != nil {
			return nil, err
		}
		return &GenericEventData{Type: t, Data: rawData}, nil
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
