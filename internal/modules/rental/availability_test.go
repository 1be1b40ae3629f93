package rental

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability_FreeWindow(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)

	result, err := svc.CheckAvailability(context.Background(), &AvailabilityQuery{
		ItemID:     "item-1",
		LocationID: "loc-1",
		StartDate:  "2025-01-10",
		EndDate:    "2025-01-15",
		Quantity:   3,
	})
	require.NoError(t, err)

	assert.True(t, result.IsAvailable)
	assert.Equal(t, 5, result.OnHand)
	assert.Equal(t, 0, result.Reserved)
	assert.Equal(t, 5, result.Available)
	assert.Empty(t, result.Alternatives)
}

func TestCheckAvailability_OverlapSuggestsAlternatives(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)
	seedStock(t, db, "item-1", "loc-1", 5, 5, 0, 0)
	ctx := context.Background()

	// Commit 3 of 5 units for Jan 10-15.
	req := basicCreateRequest()
	req.Items[0].Quantity = 3
	_, err := svc.CreateRental(ctx, req)
	require.NoError(t, err)

	result, err := svc.CheckAvailability(ctx, &AvailabilityQuery{
		ItemID:     "item-1",
		LocationID: "loc-1",
		StartDate:  "2025-01-12",
		EndDate:    "2025-01-17",
		Quantity:   3,
	})
	require.NoError(t, err)

	assert.False(t, result.IsAvailable)
	assert.Equal(t, 3, result.Reserved)
	assert.Equal(t, 2, result.Available)

	// First window clear of the existing rental starts the day after its
	// end date, keeping the requested 5-day length.
	require.NotEmpty(t, result.Alternatives)
	assert.Equal(t, "2025-01-16", result.Alternatives[0].StartDate)
	assert.Equal(t, "2025-01-21", result.Alternatives[0].EndDate)
	assert.Equal(t, 5, result.Alternatives[0].Available)
	assert.LessOrEqual(t, len(result.Alternatives), 3)
}

func TestCheckAvailability_UnknownPairIsZero(t *testing.T) {
	svc, db := setupRentalTest(t)
	seedRentalItem(t, db, "item-1", "GEN-01", "20", "100", "500", false)

	result, err := svc.CheckAvailability(context.Background(), &AvailabilityQuery{
		ItemID:     "item-1",
		LocationID: "loc-1",
		StartDate:  "2025-01-10",
		EndDate:    "2025-01-12",
		Quantity:   1,
	})
	require.NoError(t, err)

	assert.False(t, result.IsAvailable)
	assert.Equal(t, 0, result.OnHand)
	assert.Empty(t, result.Alternatives)
}

func TestCheckAvailability_RejectsBadQuery(t *testing.T) {
	svc, _ := setupRentalTest(t)

	_, err := svc.CheckAvailability(context.Background(), &AvailabilityQuery{
		ItemID:     "item-1",
		LocationID: "loc-1",
		StartDate:  "2025-01-15",
		EndDate:    "2025-01-10",
		Quantity:   1,
	})
	require.Error(t, err)
}
