package transactions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/journal"

	_ "github.com/mattn/go-sqlite3"
)

func setupStoreTest(t *testing.T) (*Store, *sql.DB) {
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
	_, err = db.Exec(`INSERT INTO items (id, sku, name, is_rentable, base_rate, item_value, created_at, updated_at)
		VALUES ('item-1', 'SKU-001', 'Excavator', 1, '100', '5000', ?, ?)`, now, now)
	require.NoError(t, err)

	j := journal.New(db, journal.NewBus(zerolog.Nop()), zerolog.Nop())
	return NewStore(db, j, zerolog.Nop()), db
}

func createHeader(t *testing.T, store *Store, db *sql.DB, h *Header) int64 {
	var id int64
	err := database.WithTx(context.Background(), db, func(tx *sql.Tx) error {
		var txErr error
		id, txErr = store.CreateHeaderTx(tx, h)
		return txErr
	})
	require.NoError(t, err)
	return id
}

func TestNextNumberTx_SequencesPerTypeAndDate(t *testing.T) {
	store, db := setupStoreTest(t)

	h1 := &Header{Type: TypeRental, Status: StatusPending, LocationID: "loc-1",
		CustomerID: "cust-1", TransactionDate: "2025-01-10"}
	createHeader(t, store, db, h1)
	assert.Equal(t, "RENT-20250110-0001", h1.TransactionNumber)

	h2 := &Header{Type: TypeRental, Status: StatusPending, LocationID: "loc-1",
		CustomerID: "cust-1", TransactionDate: "2025-01-10"}
	createHeader(t, store, db, h2)
	assert.Equal(t, "RENT-20250110-0002", h2.TransactionNumber)

	// Different type on the same date gets its own sequence.
	h3 := &Header{Type: TypePurchase, Status: StatusPending, LocationID: "loc-1",
		TransactionDate: "2025-01-10"}
	createHeader(t, store, db, h3)
	assert.Equal(t, "PUR-20250110-0001", h3.TransactionNumber)

	// Different date resets the sequence.
	h4 := &Header{Type: TypeRental, Status: StatusPending, LocationID: "loc-1",
		CustomerID: "cust-1", TransactionDate: "2025-01-11"}
	createHeader(t, store, db, h4)
	assert.Equal(t, "RENT-20250111-0001", h4.TransactionNumber)
}

func TestAppendLinesTx_SequentialNumbering(t *testing.T) {
	store, db := setupStoreTest(t)
	h := &Header{Type: TypeRental, Status: StatusPending, LocationID: "loc-1",
		CustomerID: "cust-1", TransactionDate: "2025-01-10"}
	headerID := createHeader(t, store, db, h)

	lines := []Line{
		{LineType: "RENTAL", ItemID: "item-1", Quantity: 2, UnitPrice: decimal.NewFromInt(20)},
		{LineType: "RENTAL", ItemID: "item-1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
	}
	err := database.WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, txErr := store.AppendLinesTx(tx, headerID, lines)
		return txErr
	})
	require.NoError(t, err)

	stored, err := store.GetLines(context.Background(), headerID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[0].LineNumber)
	assert.Equal(t, 2, stored[1].LineNumber)
}

func TestDerivePaymentStatus(t *testing.T) {
	total := decimal.NewFromInt(220)

	assert.Equal(t, PaymentPending, DerivePaymentStatus(decimal.Zero, total, false))
	assert.Equal(t, PaymentPartial, DerivePaymentStatus(decimal.NewFromInt(100), total, false))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(total, total, false))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(decimal.NewFromInt(300), total, false))

	negTotal := decimal.NewFromInt(-200)
	assert.Equal(t, PaymentPending, DerivePaymentStatus(decimal.Zero, negTotal, true))
	assert.Equal(t, PaymentRefunded, DerivePaymentStatus(decimal.NewFromInt(-170), negTotal, true))
}

func TestRecordPayment_AdditiveAndDerived(t *testing.T) {
	store, db := setupStoreTest(t)
	h := &Header{Type: TypeRental, Status: StatusPending, LocationID: "loc-1",
		CustomerID: "cust-1", TransactionDate: "2025-01-10",
		TotalAmount: decimal.NewFromInt(220)}
	headerID := createHeader(t, store, db, h)

	ctx := context.Background()

	updated, err := store.RecordPayment(ctx, headerID, decimal.NewFromInt(100), "CARD", "ref-1", "tester")
	require.NoError(t, err)
	assert.Equal(t, PaymentPartial, updated.PaymentStatus)
	assert.True(t, updated.PaidAmount.Equal(decimal.NewFromInt(100)))

	updated, err = store.RecordPayment(ctx, headerID, decimal.NewFromInt(120), "CARD", "ref-2", "tester")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, updated.PaymentStatus)
	assert.True(t, updated.PaidAmount.Equal(decimal.NewFromInt(220)))
	assert.True(t, updated.BalanceDue().IsZero())

	// Overpay rejected.
	_, err = store.RecordPayment(ctx, headerID, decimal.NewFromInt(1), "CARD", "", "tester")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorValidation))

	// Each payment got its own event.
	events, err := store.journal.ListByHeader(ctx, headerID, string(journal.PaymentRecorded))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRecordPayment_ReturnRejectsPositive(t *testing.T) {
	store, db := setupStoreTest(t)
	h := &Header{Type: TypeReturn, Status: StatusPending, LocationID: "loc-1",
		TransactionDate: "2025-01-10", TotalAmount: decimal.NewFromInt(-200)}
	headerID := createHeader(t, store, db, h)

	ctx := context.Background()

	_, err := store.RecordPayment(ctx, headerID, decimal.NewFromInt(50), "", "", "tester")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorValidation))

	updated, err := store.RecordPayment(ctx, headerID, decimal.NewFromInt(-170), "CREDIT", "CN-1", "tester")
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, updated.PaymentStatus)
}

func TestTransitionStatus_Machine(t *testing.T) {
	store, db := setupStoreTest(t)
	h := &Header{Type: TypePurchase, Status: StatusPending, LocationID: "loc-1",
		TransactionDate: "2025-01-10"}
	headerID := createHeader(t, store, db, h)

	ctx := context.Background()

	require.NoError(t, store.TransitionStatus(ctx, headerID, StatusProcessing, "approved", "tester"))
	require.NoError(t, store.TransitionStatus(ctx, headerID, StatusOnHold, "supplier query", "tester"))
	require.NoError(t, store.TransitionStatus(ctx, headerID, StatusProcessing, "resolved", "tester"))
	require.NoError(t, store.TransitionStatus(ctx, headerID, StatusCompleted, "", "tester"))

	// Terminal: nothing moves out of COMPLETED.
	err := store.TransitionStatus(ctx, headerID, StatusCancelled, "", "tester")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInvalidTransition))

	// Each transition appended exactly one event.
	events, err := store.journal.ListByHeader(ctx, headerID, string(journal.StatusChanged))
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestTransitionStatus_InvalidJumpRejected(t *testing.T) {
	store, db := setupStoreTest(t)
	h := &Header{Type: TypePurchase, Status: StatusPending, LocationID: "loc-1",
		TransactionDate: "2025-01-10"}
	headerID := createHeader(t, store, db, h)

	err := store.TransitionStatus(context.Background(), headerID, StatusOnHold, "", "tester")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeInvalidTransition))

	// State unchanged.
	got, getErr := store.GetHeader(context.Background(), headerID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusPending, got.Status)
}
