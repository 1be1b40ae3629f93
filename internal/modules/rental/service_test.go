package rental

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/customers"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"

	_ "github.com/mattn/go-sqlite3"
)

func setupRentalTest(t *testing.T) (*Service, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("rental"))
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO locations (id, code, name, created_at, updated_at)
		VALUES ('loc-1', 'MAIN', 'Main Warehouse', ?, ?)`, now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO customers (id, name, status, created_at, updated_at)
		VALUES ('cust-1', 'Acme Corp', 'ACTIVE', ?, ?)`, now, now)
	require.NoError(t, err)

	j := journal.New(db, journal.NewBus(zerolog.Nop()), zerolog.Nop())
	store := transactions.NewStore(db, j, zerolog.Nop())
	ledger := inventory.NewLedger(db, zerolog.Nop())
	cat := catalog.NewRepository(db, zerolog.Nop())
	cust := customers.NewRepository(db, zerolog.Nop())

	svc := NewService(db, ledger, store, j, cat, cust, nil,
		config.DefaultEngine(), time.UTC, zerolog.Nop())
	return svc, db
}

func seedRentalItem(t *testing.T, db *sql.DB, id, sku, baseRate, deposit, itemValue string, requiresSerial bool) {
	now := time.Now().Unix()
	serial := 0
	if requiresSerial {
		serial = 1
	}
	var dep interface{}
	if deposit != "" {
		dep = deposit
	}
	_, err := db.Exec(`INSERT INTO items
		(id, sku, name, is_rentable, requires_serial_number, base_rate, security_deposit, item_value, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)`,
		id, sku, sku, serial, baseRate, dep, itemValue, now, now)
	require.NoError(t, err)
}

func seedStock(t *testing.T, db *sql.DB, itemID, locationID string, onHand, available, onRent, damaged int) {
	_, err := db.Exec(`INSERT INTO stock_levels
		(item_id, location_id, quantity_on_hand, quantity_available, quantity_on_rent, quantity_damaged, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		itemID, locationID, onHand, available, onRent, damaged, time.Now().Unix())
	require.NoError(t, err)
}

func seedSerializedUnits(t *testing.T, db *sql.DB, itemID, locationID string, serials ...string) {
	now := time.Now().Unix()
	for _, sn := range serials {
		_, err := db.Exec(`INSERT INTO inventory_units
			(id, item_id, location_id, serial_number, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'AVAILABLE', ?, ?)`,
			"unit-"+sn, itemID, locationID, sn, now, now)
		require.NoError(t, err)
	}
}

func stockVector(t *testing.T, db *sql.DB, itemID, locationID string) (onHand, available, onRent, damaged int) {
	err := db.QueryRow(`SELECT quantity_on_hand, quantity_available, quantity_on_rent, quantity_damaged
		FROM stock_levels WHERE item_id = ? AND location_id = ?`, itemID, locationID).
		Scan(&onHand, &available, &onRent, &damaged)
	require.NoError(t, err)
	return
}

func basicCreateRequest() *CreateRequest {
	return &CreateRequest{
		TransactionDate: "2025-01-10",
		CustomerID:      "cust-1",
		LocationID:      "loc-1",
		Items: []CreateItemRequest{{
			ItemID:          "item-1",
			Quantity:        2,
			RentalStartDate: "2025-01-10",
			RentalEndDate:   "2025-01-15",
		}},
		Actor: "tester",
	}
}

func TestCreateRental_PricesAndReservesStock(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)

	result, err := svc.CreateRental(context.Background(), basicCreateRequest())
	require.NoError(t, err)

	// 2 units x 20/day x 5 days = 200, 10% tax, deposit 100 per unit.
	assert.True(t, decimal.NewFromInt(200).Equal(result.Subtotal), "subtotal %s", result.Subtotal)
	assert.True(t, decimal.NewFromInt(20).Equal(result.TaxAmount), "tax %s", result.TaxAmount)
	assert.True(t, decimal.NewFromInt(220).Equal(result.TotalAmount), "total %s", result.TotalAmount)
	assert.True(t, decimal.NewFromInt(200).Equal(result.DepositAmount), "deposit %s", result.DepositAmount)
	assert.Equal(t, "PENDING", result.Status)
	assert.Regexp(t, `^RENT-20250110-\d{4}$`, result.TransactionNumber)

	onHand, available, onRent, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 5, onHand)
	assert.Equal(t, 3, available)
	assert.Equal(t, 2, onRent)

	events, err := svc.journal.ListByHeader(context.Background(), result.TransactionID, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, journal.RentalCreated, events[0].Type)
}

func TestCreateRental_InsufficientStockLeavesNothingBehind(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 1, 1, 0, 0)

	_, err := svc.CreateRental(context.Background(), basicCreateRequest())
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInsufficientStock, appErr.Code)

	// Rollback: no header, no stock change.
	var headers int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transaction_headers").Scan(&headers))
	assert.Equal(t, 0, headers)
	_, available, _, _ := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 1, available)
}

func TestCreateRental_RejectsInactiveCustomer(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)

	_, err := db.Exec(`UPDATE customers SET status = 'BLACKLISTED' WHERE id = 'cust-1'`)
	require.NoError(t, err)

	_, err = svc.CreateRental(context.Background(), basicCreateRequest())
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidParty, appErr.Code)
}

func TestRentalLifecycle_OnTimeReturnRefundsDeposit(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))
	header, err := svc.store.GetHeader(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusInProgress, header.Status)

	// Pickup is idempotent.
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-11", "tester"))
	lc, err := svc.store.GetLifecycle(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", lc.ActualPickupDate)

	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	result, err := svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-15",
		Items: []ReturnItemRequest{{
			LineID:           lines[0].ID,
			QuantityReturned: 2,
			ConditionRating:  domain.ConditionA,
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	assert.True(t, result.Complete)
	assert.True(t, result.LateFees.IsZero(), "late fees %s", result.LateFees)
	assert.True(t, decimal.NewFromInt(200).Equal(result.DepositRefund), "refund %s", result.DepositRefund)
	assert.Equal(t, string(transactions.StatusCompleted), result.Status)

	onHand, available, onRent, damaged := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 5, onHand)
	assert.Equal(t, 5, available)
	assert.Equal(t, 0, onRent)
	assert.Equal(t, 0, damaged)
}

func TestProcessReturn_LateWithDamage(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))

	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)

	// Due 2025-01-15, grace 1 day, returned on the 18th: 2 billable late
	// days at 20 x 1.5 x 2 units = 120. Damage estimate 40.
	result, err := svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-18",
		Items: []ReturnItemRequest{{
			LineID:             lines[0].ID,
			QuantityReturned:   2,
			ConditionRating:    domain.ConditionC,
			DamageDescription:  "scratched housing",
			RepairCostEstimate: decimal.NewFromInt(40),
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(120).Equal(result.LateFees), "late fees %s", result.LateFees)
	assert.True(t, decimal.NewFromInt(40).Equal(result.DamageCharges), "damage %s", result.DamageCharges)
	assert.True(t, decimal.NewFromInt(40).Equal(result.DepositRefund), "refund %s", result.DepositRefund)
	assert.True(t, result.Complete)

	// Condition C goes to the damaged pool, not back to available.
	onHand, available, onRent, damaged := stockVector(t, db, "item-1", "loc-1")
	assert.Equal(t, 5, onHand)
	assert.Equal(t, 3, available)
	assert.Equal(t, 0, onRent)
	assert.Equal(t, 2, damaged)

	// Inspection recorded with repair disposition.
	var disposition string
	require.NoError(t, db.QueryRow(`SELECT disposition FROM transaction_inspections
		WHERE transaction_line_id = ?`, lines[0].ID).Scan(&disposition))
	assert.Equal(t, string(domain.DispositionSendToRepair), disposition)
}

func TestProcessReturn_GraceDayOwesNothing(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))
	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)

	// One day past the end date is inside the grace period.
	result, err := svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-16",
		Items: []ReturnItemRequest{{
			LineID:           lines[0].ID,
			QuantityReturned: 2,
			ConditionRating:  domain.ConditionA,
		}},
		Actor: "tester",
	})
	require.NoError(t, err)
	assert.True(t, result.LateFees.IsZero(), "late fees %s", result.LateFees)
	assert.True(t, decimal.NewFromInt(200).Equal(result.DepositRefund))
}

func TestProcessReturn_PartialThenFinalAccumulatesCharges(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))
	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)

	first, err := svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-14",
		Items: []ReturnItemRequest{{
			LineID:             lines[0].ID,
			QuantityReturned:   1,
			ConditionRating:    domain.ConditionD,
			RepairCostEstimate: decimal.NewFromInt(30),
		}},
		Actor: "tester",
	})
	require.NoError(t, err)
	assert.False(t, first.Complete)
	assert.True(t, first.DepositRefund.IsZero(), "no refund until complete")
	assert.Equal(t, string(transactions.StatusRentalPartialReturn), first.Status)

	// Second return is late: fee on the one remaining unit only.
	second, err := svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-18",
		Items: []ReturnItemRequest{{
			LineID:           lines[0].ID,
			QuantityReturned: 1,
			ConditionRating:  domain.ConditionA,
		}},
		Actor: "tester",
	})
	require.NoError(t, err)
	assert.True(t, second.Complete)
	assert.True(t, decimal.NewFromInt(60).Equal(second.LateFees), "late fees %s", second.LateFees)

	// Deposit 200 less damage 30 from the first return and late fee 60.
	assert.True(t, decimal.NewFromInt(110).Equal(second.DepositRefund), "refund %s", second.DepositRefund)
	assert.Equal(t, string(transactions.StatusCompleted), second.Status)

	lc, err := svc.store.GetLifecycle(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(lc.LateFees))
	assert.True(t, decimal.NewFromInt(30).Equal(lc.DamageCharges))
}

func TestProcessReturn_ExcessiveQuantityListsEveryBadLine(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))
	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)

	_, err = svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-15",
		Items: []ReturnItemRequest{{
			LineID:           lines[0].ID,
			QuantityReturned: 3,
			ConditionRating:  domain.ConditionA,
		}},
		Actor: "tester",
	})
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeExcessiveReturnQuantity, appErr.Code)
	require.Len(t, appErr.Details, 1)

	// Nothing was written.
	stored, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored[0].ReturnedQuantity)
}

func TestCreateRental_SerializedUnitsClaimedDistinctly(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-2", "CAM-01", "50", "200", "2000", true)
	seedStock(t, db, "item-2", "loc-1", 2, 2, 0, 0)
	seedSerializedUnits(t, db, "item-2", "loc-1", "SN-100", "SN-101")
	ctx := context.Background()

	req := func(serials []string) *CreateRequest {
		return &CreateRequest{
			TransactionDate: "2025-01-10",
			CustomerID:      "cust-1",
			LocationID:      "loc-1",
			Items: []CreateItemRequest{{
				ItemID:          "item-2",
				Quantity:        1,
				RentalStartDate: "2025-01-10",
				RentalEndDate:   "2025-01-12",
				SerialNumbers:   serials,
			}},
			Actor: "tester",
		}
	}

	first, err := svc.CreateRental(ctx, req(nil))
	require.NoError(t, err)
	second, err := svc.CreateRental(ctx, req([]string{"SN-101"}))
	require.NoError(t, err)

	// Both units are now claimed by different lines.
	rows, err := db.Query(`SELECT serial_number, rental_line_id FROM inventory_units
		WHERE status = 'RENTED' ORDER BY serial_number`)
	require.NoError(t, err)
	defer rows.Close()
	claimed := map[string]int64{}
	for rows.Next() {
		var sn string
		var lineID int64
		require.NoError(t, rows.Scan(&sn, &lineID))
		claimed[sn] = lineID
	}
	require.NoError(t, rows.Err())
	require.Len(t, claimed, 2)
	assert.NotEqual(t, claimed["SN-100"], claimed["SN-101"])
	_ = first
	_ = second

	// A third rental finds no stock left.
	_, err = svc.CreateRental(ctx, req(nil))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInsufficientStock))
}

func TestMarkOverdue_FlagsLateRentals(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))

	asOf, err := domain.ParseWallDate("2025-01-17", time.UTC)
	require.NoError(t, err)

	changed, err := svc.MarkOverdue(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	header, err := svc.store.GetHeader(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusRentalLate, header.Status)

	// Second sweep finds nothing new.
	changed, err = svc.MarkOverdue(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	// A day inside grace does not flag.
	svc2, db2 := setupRentalTest(t)
	seedRentalItem(t, db2, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db2, "item-1", "loc-1", 5, 5, 0, 0)
	created2, err := svc2.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc2.Pickup(ctx, created2.TransactionID, "2025-01-10", "tester"))
	graceDay, err := domain.ParseWallDate("2025-01-16", time.UTC)
	require.NoError(t, err)
	changed, err = svc2.MarkOverdue(ctx, graceDay)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	_ = db
}
