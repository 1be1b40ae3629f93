package journal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quartermaster/internal/database"

	_ "github.com/mattn/go-sqlite3"
)

func setupJournalTest(t *testing.T) (*Journal, *Bus, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema("rental"))
	require.NoError(t, err)

	now := time.Now().Unix()
	_, err = db.Exec(`INSERT INTO locations (id, code, name, created_at, updated_at)
		VALUES ('loc-1', 'MAIN', 'Main Warehouse', ?, ?)`, now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO transaction_headers
		(transaction_number, transaction_type, status, location_id, transaction_date, created_at, updated_at)
		VALUES ('RENT-20250110-0001', 'RENTAL', 'PENDING', 'loc-1', '2025-01-10', ?, ?)`, now, now)
	require.NoError(t, err)

	bus := NewBus(zerolog.Nop())
	return New(db, bus, zerolog.Nop()), bus, db
}

func TestAppendTx_RoundTripsTypedPayload(t *testing.T) {
	j, _, db := setupJournalTest(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		_, txErr := j.AppendTx(tx, 1, "system", "status changed", &StatusChangedData{
			From: "PENDING", To: "PROCESSING", Reason: "auto-approval",
		})
		return txErr
	})
	require.NoError(t, err)

	events, err := j.ListByHeader(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, StatusChanged, evt.Type)
	assert.Equal(t, "system", evt.Actor)
	assert.NotEmpty(t, evt.EventID)

	data, ok := evt.Data.(*StatusChangedData)
	require.True(t, ok)
	assert.Equal(t, "PENDING", data.From)
	assert.Equal(t, "PROCESSING", data.To)
	assert.Equal(t, "auto-approval", data.Reason)
}

func TestAppendTx_RolledBackEventNeverVisible(t *testing.T) {
	j, _, db := setupJournalTest(t)
	ctx := context.Background()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = j.AppendTx(tx, 1, "system", "doomed", &RentalPickupData{PickupDate: "2025-01-10"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	events, err := j.ListByHeader(ctx, 1, "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListByHeader_FiltersByType(t *testing.T) {
	j, _, db := setupJournalTest(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, txErr := j.AppendTx(tx, 1, "system", "picked up", &RentalPickupData{PickupDate: "2025-01-10"}); txErr != nil {
			return txErr
		}
		_, txErr := j.AppendTx(tx, 1, "system", "status changed", &StatusChangedData{From: "PENDING", To: "IN_PROGRESS"})
		return txErr
	})
	require.NoError(t, err)

	events, err := j.ListByHeader(ctx, 1, string(RentalPickup))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, RentalPickup, events[0].Type)

	count, err := j.CountByHeader(ctx, 1, string(StatusChanged))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBus_FansOutToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	id1, ch1 := bus.Subscribe()
	id2, ch2 := bus.Subscribe()
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(Event{Type: RentalCreated, TransactionID: 7})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, RentalCreated, evt.Type)
			assert.Equal(t, int64(7), evt.TransactionID)
		default:
			t.Fatal("expected buffered event")
		}
	}

	bus.Unsubscribe(id1)
	assert.Equal(t, 1, bus.SubscriberCount())
	_, open := <-ch1
	assert.False(t, open)

	bus.Unsubscribe(id2)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBus_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	_, ch := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: StatusChanged, TransactionID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffer holds the first events; the overflow was dropped.
	assert.Len(t, ch, 64)
}
