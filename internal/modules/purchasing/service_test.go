package purchasing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"

	_ "github.com/mattn/go-sqlite3"
)

func setupPurchasingTest(t *testing.T) (*Service, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("rental"))
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO locations (id, code, name, created_at, updated_at)
		VALUES ('loc-1', 'MAIN', 'Main Warehouse', ?, ?)`, now, now)
	require.NoError(t, err)

	j := journal.New(db, journal.NewBus(zerolog.Nop()), zerolog.Nop())
	store := transactions.NewStore(db, j, zerolog.Nop())
	ledger := inventory.NewLedger(db, zerolog.Nop())
	cat := catalog.NewRepository(db, zerolog.Nop())

	svc := NewService(db, ledger, store, j, cat, nil,
		config.DefaultEngine(), time.UTC, zerolog.Nop())
	return svc, db
}

func unitCountByStatus(t *testing.T, db *sql.DB, itemID string, status inventory.UnitStatus) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM inventory_units
		WHERE item_id = ? AND status = ?`, itemID, string(status)).Scan(&n)
	require.NoError(t, err)
	return n
}

func seedItem(t *testing.T, db *sql.DB, id, sku string) {
	now := time.Now().Unix()
	_, err := db.Exec(`INSERT INTO items (id, sku, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, id, sku, sku, now, now)
	require.NoError(t, err)
}

func stockVector(t *testing.T, db *sql.DB, itemID, locationID string) (onHand, available, onRent, damaged int) {
	err := db.QueryRow(`SELECT quantity_on_hand, quantity_available, quantity_on_rent, quantity_damaged
		FROM stock_levels WHERE item_id = ? AND location_id = ?`, itemID, locationID).
		Scan(&onHand, &available, &onRent, &damaged)
	require.NoError(t, err)
	return
}

// receivePurchase creates an auto-completed purchase so the return tests have
// real stock to work against.
func receivePurchase(t *testing.T, svc *Service, date, itemID string, quantity int, unitCost string) *PurchaseResult {
	t.Helper()
	result, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: date,
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		AutoComplete:    true,
		Lines: []PurchaseLineRequest{{
			ItemID:   itemID,
			Quantity: quantity,
			UnitCost: decimal.RequireFromString(unitCost),
		}},
		Actor: "tester",
	})
	require.NoError(t, err)
	return result
}

func TestCreatePurchase_AutoCompleteMaterializesStock(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")

	result, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: "2025-01-10",
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		AutoComplete:    true,
		ReferenceNumber: "REF123",
		ShippingAmount:  decimal.NewFromInt(10),
		Lines: []PurchaseLineRequest{{
			ItemID:   "item-1",
			Quantity: 3,
			UnitCost: decimal.NewFromInt(50),
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	assert.Equal(t, "COMPLETED", result.Status)
	assert.Regexp(t, `^PUR-20250110-\d{4}$`, result.TransactionNumber)
	assert.True(t, decimal.NewFromInt(160).Equal(result.TotalAmount), "total %s", result.TotalAmount)
	assert.Equal(t, 3, result.UnitsMaterialized)

	onHand, available, onRent, damaged := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, []int{3, 3, 0, 0}, []int{onHand, available, onRent, damaged})

	// Non-serialized receipts are batch-tagged off the reference number.
	var batched int
	err = db.QueryRow(`SELECT COUNT(*) FROM inventory_units
		WHERE item_id = 'item-1' AND batch_code = 'PO-REF123-20250110'`).Scan(&batched)
	require.NoError(t, err)
	assert.Equal(t, 3, batched)

	var movements int
	err = db.QueryRow(`SELECT COUNT(*) FROM stock_movements
		WHERE movement_type = ?`, string(inventory.MovementPurchaseReceipt)).Scan(&movements)
	require.NoError(t, err)
	assert.Equal(t, 1, movements)

	events, err := svc.journal.ListByHeader(context.Background(), result.TransactionID, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, journal.PurchaseCreated, events[0].Type)
}

func TestCreatePurchase_SerializedUnitsCarrySerials(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")

	result, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: "2025-01-10",
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		AutoComplete:    true,
		Lines: []PurchaseLineRequest{{
			ItemID:        "item-1",
			Quantity:      2,
			UnitCost:      decimal.NewFromInt(200),
			SerialNumbers: []string{"SN-100", "SN-101"},
		}},
		Actor: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.UnitsMaterialized)

	var serialized int
	err = db.QueryRow(`SELECT COUNT(*) FROM inventory_units
		WHERE item_id = 'item-1' AND serial_number IN ('SN-100', 'SN-101')`).Scan(&serialized)
	require.NoError(t, err)
	assert.Equal(t, 2, serialized)
}

func TestCreatePurchase_PendingDefersReceipt(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")

	result, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: "2025-01-10",
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		Lines: []PurchaseLineRequest{{
			ItemID:   "item-1",
			Quantity: 3,
			UnitCost: decimal.NewFromInt(50),
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.UnitsMaterialized)

	var stockRows int
	err = db.QueryRow(`SELECT COUNT(*) FROM stock_levels WHERE item_id = 'item-1'`).Scan(&stockRows)
	require.NoError(t, err)
	assert.Equal(t, 0, stockRows)
}

func TestCreatePurchaseReturn_WindowExpiredUnlessBypassed(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 5, "100")

	// 36 days out with an EXCESS reason: rejected.
	_, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-02-15",
		Reason:             domain.ReasonExcess,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 1}},
		Actor:              "tester",
	})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeReturnWindowExpired))

	// Same date, DEFECTIVE: the window does not apply and the return
	// auto-approves regardless of amount.
	result, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-02-15",
		Reason:             domain.ReasonDefective,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 1}},
		Actor:              "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", result.Status)
	assert.True(t, result.AutoApproved)
	assert.Regexp(t, `^RET-20250215-\d{4}$`, result.TransactionNumber)
	assert.True(t, result.RestockingFee.IsZero(), "fee %s", result.RestockingFee)

	onHand, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 4, onHand)
	assert.Equal(t, 4, available)
}

func TestCreatePurchaseReturn_OverReturnCollectsAllFailures(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	seedItem(t, db, "item-2", "GEN-02")

	purchase, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: "2025-01-10",
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		AutoComplete:    true,
		Lines: []PurchaseLineRequest{
			{ItemID: "item-1", Quantity: 10, UnitCost: decimal.NewFromInt(10)},
			{ItemID: "item-2", Quantity: 5, UnitCost: decimal.NewFromInt(10)},
		},
		Actor: "tester",
	})
	require.NoError(t, err)

	// Prior return eats into item-1's returnable quantity.
	_, err = svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-12",
		Reason:             domain.ReasonExcess,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 4}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	_, err = svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-14",
		Reason:             domain.ReasonExcess,
		Items: []ReturnItemRequest{
			{ItemID: "item-1", Quantity: 8}, // only 6 left
			{ItemID: "item-2", Quantity: 6}, // only 5 bought
			{ItemID: "item-3", Quantity: 1}, // never on the purchase
		},
		Actor: "tester",
	})
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeExcessiveQuantity, appErr.Code)
	require.Len(t, appErr.Details, 3)
	assert.Contains(t, appErr.Details[0].Message, "available=6")
	assert.Contains(t, appErr.Details[1].Message, "available=5")

	// Nothing written: one prior return, untouched stock.
	var returns int
	err = db.QueryRow(`SELECT COUNT(*) FROM transaction_headers
		WHERE transaction_type = 'RETURN'`).Scan(&returns)
	require.NoError(t, err)
	assert.Equal(t, 1, returns)

	onHand, _, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 6, onHand)
}

func TestCreatePurchaseReturn_RestockingFeeAndProportionalAmounts(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 10, "100")

	result, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-20",
		Reason:             domain.ReasonExcess,
		RMANumber:          "RMA-7",
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 5}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	// Half of a 1000 purchase returned: subtotal -500, 15% restocking fee on
	// the 500 brings the total to -425. 425 is under the auto-approve
	// threshold, so the return moves straight to PROCESSING.
	assert.True(t, decimal.NewFromInt(75).Equal(result.RestockingFee), "fee %s", result.RestockingFee)
	assert.True(t, decimal.NewFromInt(-425).Equal(result.TotalAmount), "total %s", result.TotalAmount)
	assert.True(t, result.AutoApproved)
	assert.Equal(t, "PROCESSING", result.Status)

	var quantity int
	var lineTotal string
	err = db.QueryRow(`SELECT quantity, line_total FROM transaction_lines
		WHERE transaction_header_id = ?`, result.TransactionID).Scan(&quantity, &lineTotal)
	require.NoError(t, err)
	assert.Equal(t, -5, quantity)
	assert.True(t, decimal.NewFromInt(-500).Equal(decimal.RequireFromString(lineTotal)), "line total %s", lineTotal)

	onHand, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 5, onHand)
	assert.Equal(t, 5, available)
}

func TestCreatePurchaseReturn_LargeReturnStaysPending(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 20, "100")

	result, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-20",
		Reason:             domain.ReasonExcess,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 15}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	// |-1500 + 225| is over the threshold and EXCESS gets no bypass.
	assert.False(t, result.AutoApproved)
	assert.Equal(t, "PENDING", result.Status)

	// The goods still leave the sellable pool at creation; approval only
	// gates the credit.
	onHand, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 5, onHand)
	assert.Equal(t, 5, available)
}

func TestVendorCredit_RequiresSettledInspections(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 10, "100")

	ret, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-15",
		Reason:             domain.ReasonExcess,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 3, Condition: domain.ConditionB}},
		Actor:              "tester",
	})
	require.NoError(t, err)
	require.Equal(t, "PROCESSING", ret.Status)
	require.Equal(t, 1, ret.PendingInspection)

	// Credit is blocked while the inspection is open.
	_, err = svc.IssueVendorCredit(context.Background(), &CreditRequest{
		ReturnID:         ret.TransactionID,
		CreditNoteNumber: "CN-1",
		Actor:            "tester",
	})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInvalidTransition))

	inspections, err := svc.store.ListInspectionsByHeader(context.Background(), ret.TransactionID)
	require.NoError(t, err)
	require.Len(t, inspections, 1)

	insp, err := svc.CompleteInspection(context.Background(), &InspectionRequest{
		InspectionID:    inspections[0].ID,
		ConditionRating: domain.ConditionB,
		Actor:           "tester",
	})
	require.NoError(t, err)
	assert.True(t, insp.ReturnToStock)
	assert.Equal(t, 3, insp.QuantityRestocked)

	// Zero credit amount defaults to the full absolute return total.
	credit, err := svc.IssueVendorCredit(context.Background(), &CreditRequest{
		ReturnID:         ret.TransactionID,
		CreditNoteNumber: "CN-1",
		Actor:            "tester",
	})
	require.NoError(t, err)
	assert.True(t, ret.TotalAmount.Abs().Equal(credit.CreditAmount), "credit %s", credit.CreditAmount)
	assert.Equal(t, "COMPLETED", credit.Status)

	header, err := svc.store.GetHeader(context.Background(), ret.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusCompleted, header.Status)
	assert.Equal(t, transactions.PaymentRefunded, header.PaymentStatus)
	assert.True(t, credit.CreditAmount.Neg().Equal(header.PaidAmount), "paid %s", header.PaidAmount)
	assert.Equal(t, "CN-1", header.CreditNoteNumber)

	// Re-issuing fails: the return is COMPLETED now.
	_, err = svc.IssueVendorCredit(context.Background(), &CreditRequest{
		ReturnID:         ret.TransactionID,
		CreditNoteNumber: "CN-2",
		Actor:            "tester",
	})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInvalidTransition))

	// Restocked goods are sellable again.
	onHand, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 10, onHand)
	assert.Equal(t, 10, available)
}

func TestCompleteInspection_RoutesByCondition(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 12, "10")

	cases := []struct {
		rating        domain.ConditionRating
		returnToStock bool
		disposition   string
		wantAvailable int
		wantDamaged   int
	}{
		{domain.ConditionB, true, string(domain.DispositionReturnToStock), 2, 0},
		{domain.ConditionC, true, string(domain.DispositionReturnToStock), 0, 2},
		{domain.ConditionD, false, string(domain.DispositionReturnToVendor), 0, 0},
	}

	for _, tc := range cases {
		t.Run(string(tc.rating), func(t *testing.T) {
			before := [4]int{}
			before[0], before[1], before[2], before[3] = stockVector(t, db, "item-1", "loc-1")

			ret, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
				OriginalPurchaseID: purchase.TransactionID,
				TransactionDate:    "2025-01-15",
				Reason:             domain.ReasonDamaged,
				Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 2, Condition: tc.rating}},
				Actor:              "tester",
			})
			require.NoError(t, err)

			inspections, err := svc.store.ListInspectionsByHeader(context.Background(), ret.TransactionID)
			require.NoError(t, err)
			require.Len(t, inspections, 1)

			result, err := svc.CompleteInspection(context.Background(), &InspectionRequest{
				InspectionID:    inspections[0].ID,
				ConditionRating: tc.rating,
				Notes:           "bench check",
				Actor:           "tester",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.returnToStock, result.ReturnToStock)
			assert.Equal(t, tc.disposition, result.Disposition)

			onHand, available, _, damaged := stockVector(t, db, "item-1", "loc-1")
			assert.Equal(t, before[1]-2+tc.wantAvailable, available)
			assert.Equal(t, before[3]+tc.wantDamaged, damaged)
			assert.Equal(t, before[0]-2+tc.wantAvailable+tc.wantDamaged, onHand)

			// Completing twice is rejected.
			_, err = svc.CompleteInspection(context.Background(), &InspectionRequest{
				InspectionID:    inspections[0].ID,
				ConditionRating: tc.rating,
				Actor:           "tester",
			})
			require.Error(t, err)
			assert.True(t, domain.IsConflict(err, domain.CodeInvalidTransition))
		})
	}
}

func TestCreatePurchaseReturn_RetiresUnitsFromPool(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")

	purchase, err := svc.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		TransactionDate: "2025-01-10",
		SupplierID:      "sup-1",
		LocationID:      "loc-1",
		AutoComplete:    true,
		Lines: []PurchaseLineRequest{{
			ItemID:        "item-1",
			Quantity:      2,
			UnitCost:      decimal.NewFromInt(100),
			SerialNumbers: []string{"SN-200", "SN-201"},
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	ret, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-12",
		Reason:             domain.ReasonDefective,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 1}},
		Actor:              "tester",
	})
	require.NoError(t, err)
	assert.True(t, ret.AutoApproved)

	// The unit pool matches the counter vector: a vendor-bound serial must
	// not stay claimable by a rental reservation.
	_, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, unitCountByStatus(t, db, "item-1", inventory.UnitAvailable))
	assert.Equal(t, 1, unitCountByStatus(t, db, "item-1", inventory.UnitRetired))
}

func TestCompleteInspection_ReinstatesRetiredUnits(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")
	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 4, "10")

	ret, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-15",
		Reason:             domain.ReasonDamaged,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 2, Condition: domain.ConditionB}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, unitCountByStatus(t, db, "item-1", inventory.UnitAvailable))
	assert.Equal(t, 2, unitCountByStatus(t, db, "item-1", inventory.UnitRetired))

	inspections, err := svc.store.ListInspectionsByHeader(context.Background(), ret.TransactionID)
	require.NoError(t, err)
	require.Len(t, inspections, 1)

	_, err = svc.CompleteInspection(context.Background(), &InspectionRequest{
		InspectionID:    inspections[0].ID,
		ConditionRating: domain.ConditionB,
		Actor:           "tester",
	})
	require.NoError(t, err)

	// Rentable rating brings the units back into the available pool.
	_, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 4, available)
	assert.Equal(t, 4, unitCountByStatus(t, db, "item-1", inventory.UnitAvailable))
	assert.Equal(t, 0, unitCountByStatus(t, db, "item-1", inventory.UnitRetired))

	// A non-rentable but creditable rating routes the units to the damaged
	// pool instead.
	ret2, err := svc.CreatePurchaseReturn(context.Background(), &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-16",
		Reason:             domain.ReasonDamaged,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 2, Condition: domain.ConditionC}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	inspections, err = svc.store.ListInspectionsByHeader(context.Background(), ret2.TransactionID)
	require.NoError(t, err)
	require.Len(t, inspections, 1)

	_, err = svc.CompleteInspection(context.Background(), &InspectionRequest{
		InspectionID:    inspections[0].ID,
		ConditionRating: domain.ConditionC,
		Actor:           "tester",
	})
	require.NoError(t, err)

	onHand, available, _, damaged := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 4, onHand)
	assert.Equal(t, 2, available)
	assert.Equal(t, 2, damaged)
	assert.Equal(t, 2, unitCountByStatus(t, db, "item-1", inventory.UnitAvailable))
	assert.Equal(t, 2, unitCountByStatus(t, db, "item-1", inventory.UnitDamaged))
	assert.Equal(t, 0, unitCountByStatus(t, db, "item-1", inventory.UnitRetired))
}

func TestPurchaseReturn_InvalidatesAvailabilityCache(t *testing.T) {
	svc, db := setupPurchasingTest(t)
	seedItem(t, db, "item-1", "GEN-01")

	cdb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cdb.Close() })
	_, err = cdb.Exec(database.Schema("cache"))
	require.NoError(t, err)
	svc.cache = cache.NewStore(cdb, zerolog.Nop())

	purchase := receivePurchase(t, svc, "2025-01-10", "item-1", 5, "10")

	ctx := context.Background()
	key := cache.AvailabilityPrefix("loc-1") + "item-1:2025-02-01:2025-02-05:1"
	require.NoError(t, svc.cache.Set(ctx, key, map[string]int{"available": 5}, time.Hour))

	_, err = svc.CreatePurchaseReturn(ctx, &CreateReturnRequest{
		OriginalPurchaseID: purchase.TransactionID,
		TransactionDate:    "2025-01-12",
		Reason:             domain.ReasonExcess,
		Items:              []ReturnItemRequest{{ItemID: "item-1", Quantity: 2}},
		Actor:              "tester",
	})
	require.NoError(t, err)

	// The snapshot for the location is gone; the next availability read
	// recomputes from the real counters.
	var stale map[string]int
	hit, err := svc.cache.Get(ctx, key, &stale)
	require.NoError(t, err)
	assert.False(t, hit)
}
