package inventory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

func setupLedgerTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("rental"))
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO locations (id, code, name, created_at, updated_at)
		VALUES ('loc-1', 'MAIN', 'Main Warehouse', ?, ?)`, now, now)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO items (id, sku, name, is_rentable, base_rate, item_value, created_at, updated_at)
		VALUES ('item-1', 'SKU-001', 'Excavator', 1, '100', '5000', ?, ?)`, now, now)
	require.NoError(t, err)

	return db
}

func seedStockLevel(t *testing.T, db *sql.DB, onHand, available, onRent, damaged int) {
	_, err := db.Exec(`
		INSERT INTO stock_levels (item_id, location_id, quantity_on_hand, quantity_available,
			quantity_on_rent, quantity_damaged, updated_at)
		VALUES ('item-1', 'loc-1', ?, ?, ?, ?, ?)
	`, onHand, available, onRent, damaged, time.Now().Unix())
	require.NoError(t, err)
}

func seedUnits(t *testing.T, db *sql.DB, count int, status UnitStatus) {
	now := time.Now().Unix()
	for i := 0; i < count; i++ {
		_, err := db.Exec(`
			INSERT INTO inventory_units (id, item_id, location_id, status, created_at, updated_at)
			VALUES (?, 'item-1', 'loc-1', ?, ?, ?)
		`, string(rune('a'+i))+"-unit", string(status), now, now)
		require.NoError(t, err)
	}
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		require.NoError(t, tx.Rollback())
		return err
	}
	require.NoError(t, tx.Commit())
	return nil
}

func TestAdjustStockTx_AppliesDeltaAndLogsMovement(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedStockLevel(t, db, 10, 10, 0, 0)

	err := inTx(t, db, func(tx *sql.Tx) error {
		level, err := ledger.AdjustStockTx(tx, "item-1", "loc-1",
			StockDelta{OnHand: 0, Available: -3, OnRent: 3},
			MovementRef{Type: MovementRentalOut, HeaderID: 42, LineID: 7})
		if err != nil {
			return err
		}
		assert.Equal(t, 10, level.QuantityOnHand)
		assert.Equal(t, 7, level.QuantityAvailable)
		assert.Equal(t, 3, level.QuantityOnRent)
		return nil
	})
	require.NoError(t, err)

	movements, err := ledger.ListMovements(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, MovementRentalOut, movements[0].MovementType)
	assert.Equal(t, 0, movements[0].QuantityChange)
	assert.Equal(t, 10, movements[0].QuantityBefore)
	assert.Equal(t, 10, movements[0].QuantityAfter)
	assert.Equal(t, int64(7), movements[0].LineID)
}

func TestAdjustStockTx_RejectsUnderflow(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedStockLevel(t, db, 2, 2, 0, 0)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.AdjustStockTx(tx, "item-1", "loc-1",
			StockDelta{OnHand: 0, Available: -5, OnRent: 5},
			MovementRef{Type: MovementRentalOut})
		return err
	})

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInsufficientStock))

	// Counters untouched, no movement row.
	level, getErr := ledger.GetStockLevel(context.Background(), "item-1", "loc-1")
	require.NoError(t, getErr)
	assert.Equal(t, 2, level.QuantityAvailable)
	assert.Equal(t, 0, level.QuantityOnRent)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM stock_movements").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestAdjustStockTx_RejectsUnbalancedDelta(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedStockLevel(t, db, 5, 5, 0, 0)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.AdjustStockTx(tx, "item-1", "loc-1",
			StockDelta{OnHand: 1, Available: 0, OnRent: 0, Damaged: 0},
			MovementRef{Type: MovementAdjustment})
		return err
	})

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorIntegrity))
}

func TestAdjustStockTx_CreatesZeroRowForNewPair(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())

	err := inTx(t, db, func(tx *sql.Tx) error {
		level, err := ledger.AdjustStockTx(tx, "item-1", "loc-1",
			StockDelta{OnHand: 4, Available: 4},
			MovementRef{Type: MovementPurchaseReceipt, HeaderID: 1})
		if err != nil {
			return err
		}
		assert.Equal(t, 4, level.QuantityOnHand)
		assert.Equal(t, 4, level.QuantityAvailable)
		return nil
	})
	require.NoError(t, err)
}

func TestReserveUnitsTx_ClaimsRequestedQuantity(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedUnits(t, db, 5, UnitAvailable)

	var claimed []string
	err := inTx(t, db, func(tx *sql.Tx) error {
		var err error
		claimed, err = ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 3, 99)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, claimed, 3)

	rented, err := ledger.CountUnits(context.Background(), "item-1", "loc-1", UnitRented)
	require.NoError(t, err)
	assert.Equal(t, 3, rented)

	available, err := ledger.CountUnits(context.Background(), "item-1", "loc-1", UnitAvailable)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestReserveUnitsTx_FailsWholeClaimWhenShort(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedUnits(t, db, 2, UnitAvailable)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 3, 99)
		return err
	})

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInsufficientUnits))

	// Rollback released the partial claim.
	rented, countErr := ledger.CountUnits(context.Background(), "item-1", "loc-1", UnitRented)
	require.NoError(t, countErr)
	assert.Equal(t, 0, rented)
}

func TestReserveUnitsTx_SequentialClaimsNeverShareUnits(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedUnits(t, db, 4, UnitAvailable)

	var first, second []string
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		var err error
		first, err = ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 2, 1)
		return err
	}))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		var err error
		second, err = ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 2, 2)
		return err
	}))

	seen := make(map[string]bool)
	for _, id := range append(first, second...) {
		assert.False(t, seen[id], "unit %s claimed twice", id)
		seen[id] = true
	}

	// A third claim finds nothing left.
	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 1, 3)
		return err
	})
	assert.True(t, domain.IsConflict(err, domain.CodeInsufficientUnits))
}

func TestReleaseUnitsTx_ConditionRoutesStatus(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedUnits(t, db, 4, UnitAvailable)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.ReserveUnitsTx(tx, "item-1", "loc-1", 4, 10)
		return err
	}))

	// Two come back clean, two damaged.
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		released, err := ledger.ReleaseUnitsTx(tx, 10, 2, domain.ConditionB)
		if err != nil {
			return err
		}
		assert.Len(t, released, 2)
		return nil
	}))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		released, err := ledger.ReleaseUnitsTx(tx, 10, 2, domain.ConditionD)
		if err != nil {
			return err
		}
		assert.Len(t, released, 2)
		return nil
	}))

	ctx := context.Background()
	available, err := ledger.CountUnits(ctx, "item-1", "loc-1", UnitAvailable)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	damaged, err := ledger.CountUnits(ctx, "item-1", "loc-1", UnitDamaged)
	require.NoError(t, err)
	assert.Equal(t, 2, damaged)

	rented, err := ledger.CountUnits(ctx, "item-1", "loc-1", UnitRented)
	require.NoError(t, err)
	assert.Equal(t, 0, rented)
}

func TestMaterializeUnitsTx_SerialCountMustMatch(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := ledger.MaterializeUnitsTx(tx, MaterializeRequest{
			ItemID:     "item-1",
			LocationID: "loc-1",
			Quantity:   3,
			Serials:    []string{"SN-1", "SN-2"},
		})
		return err
	})

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorValidation))
}

func TestMaterializeUnitsTx_BatchReceipt(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())

	var ids []string
	err := inTx(t, db, func(tx *sql.Tx) error {
		var err error
		ids, err = ledger.MaterializeUnitsTx(tx, MaterializeRequest{
			ItemID:     "item-1",
			LocationID: "loc-1",
			Quantity:   3,
			BatchCode:  "PO-TEST-20260825",
		})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	units, err := ledger.ListUnits(context.Background(), "item-1", "loc-1", UnitAvailable)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for _, u := range units {
		assert.Equal(t, "PO-TEST-20260825", u.BatchCode)
		assert.Empty(t, u.SerialNumber)
	}
}

func TestRetireAndReinstateUnitsTx_RoundTrip(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db, zerolog.Nop())
	seedUnits(t, db, 3, UnitAvailable)

	var retired int
	err := inTx(t, db, func(tx *sql.Tx) error {
		var err error
		retired, err = ledger.RetireUnitsTx(tx, "item-1", "loc-1", 2, UnitAvailable)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, retired)

	units, err := ledger.ListUnits(context.Background(), "item-1", "loc-1", UnitAvailable)
	require.NoError(t, err)
	assert.Len(t, units, 1)

	// Retiring more than exist is not an error; the shortfall is reported
	// through the count.
	err = inTx(t, db, func(tx *sql.Tx) error {
		var err error
		retired, err = ledger.RetireUnitsTx(tx, "item-1", "loc-1", 5, UnitAvailable)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	var reinstated int
	err = inTx(t, db, func(tx *sql.Tx) error {
		var err error
		reinstated, err = ledger.ReinstateUnitsTx(tx, "item-1", "loc-1", 2, UnitDamaged)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, reinstated)

	damaged, err := ledger.ListUnits(context.Background(), "item-1", "loc-1", UnitDamaged)
	require.NoError(t, err)
	assert.Len(t, damaged, 2)
	remaining, err := ledger.ListUnits(context.Background(), "item-1", "loc-1", UnitRetired)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
