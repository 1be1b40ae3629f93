package rental

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

func TestExtend_ChargesAndMarksExtended(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))

	// Two extra days on two units at 20/day.
	result, err := svc.Extend(ctx, &ExtensionRequest{
		RentalID:   created.TransactionID,
		NewEndDate: "2025-01-17",
		Actor:      "tester",
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(80).Equal(result.ExtensionCharge), "charge %s", result.ExtensionCharge)
	assert.Equal(t, 1, result.ExtensionCount)
	assert.True(t, decimal.NewFromInt(300).Equal(result.TotalAmount), "total %s", result.TotalAmount)

	header, err := svc.store.GetHeader(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusRentalExtended, header.Status)
	assert.Equal(t, 1, header.ExtensionCount)
	assert.True(t, decimal.NewFromInt(80).Equal(header.TotalExtensionCharges))

	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-17", lines[0].RentalEndDate)
	assert.Equal(t, transactions.LineExtended, lines[0].RentalStatus)
}

func TestExtend_RejectsNonForwardDate(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))

	_, err = svc.Extend(ctx, &ExtensionRequest{
		RentalID:   created.TransactionID,
		NewEndDate: "2025-01-15", // same as current end
		Actor:      "tester",
	})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorValidation))
}

func TestExtend_LimitExceeded(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	svc.cfg.MaxExtensions = 2
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))

	_, err = svc.Extend(ctx, &ExtensionRequest{
		RentalID: created.TransactionID, NewEndDate: "2025-01-16", Actor: "tester"})
	require.NoError(t, err)
	_, err = svc.Extend(ctx, &ExtensionRequest{
		RentalID: created.TransactionID, NewEndDate: "2025-01-17", Actor: "tester"})
	require.NoError(t, err)

	// Third attempt exceeds the cap.
	_, err = svc.Extend(ctx, &ExtensionRequest{
		RentalID: created.TransactionID, NewEndDate: "2025-01-18", Actor: "tester"})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err, domain.CodeExtensionLimitExceeded))

	header, err := svc.store.GetHeader(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 2, header.ExtensionCount)
}

func TestExtend_ChargesOutstandingQuantityOnly(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	created, err := svc.CreateRental(ctx, basicCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Pickup(ctx, created.TransactionID, "2025-01-10", "tester"))
	lines, err := svc.store.GetLines(ctx, created.TransactionID)
	require.NoError(t, err)

	// Return one of two units, then extend: the charge covers only the
	// outstanding unit.
	_, err = svc.ProcessReturn(ctx, &ReturnRequest{
		RentalID:   created.TransactionID,
		ReturnDate: "2025-01-12",
		Items: []ReturnItemRequest{{
			LineID:           lines[0].ID,
			QuantityReturned: 1,
			ConditionRating:  domain.ConditionA,
		}},
		Actor: "tester",
	})
	require.NoError(t, err)

	result, err := svc.Extend(ctx, &ExtensionRequest{
		RentalID:   created.TransactionID,
		NewEndDate: "2025-01-17",
		Actor:      "tester",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(result.ExtensionCharge), "charge %s", result.ExtensionCharge)
}
