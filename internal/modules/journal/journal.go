package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Journal persists transaction events and fans committed ones out on the bus.
type Journal struct {
	db  *sql.DB // rental.db - transaction_events table
	bus *Bus
	log zerolog.Logger
}

// New creates a new journal
func New(db *sql.DB, bus *Bus, log zerolog.Logger) *Journal {
	return &Journal{
		db:  db,
		bus: bus,
		log: log.With().Str("service", "journal").Logger(),
	}
}

// AppendTx writes an event inside the caller's transaction. The row commits
// or rolls back with the mutation it describes. The returned event should be
// handed to Announce once the transaction has committed.
func (j *Journal) AppendTx(tx *sql.Tx, headerID int64, actor, description string, data EventData) (*Event, error) {
	if data == nil {
		return nil, fmt.Errorf("event data is required")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	evt := &Event{
		EventID:       uuid.New().String(),
		Type:          data.EventType(),
		TransactionID: headerID,
		Description:   description,
		Actor:         actor,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}

	query := `
		INSERT INTO transaction_events
		(event_id, transaction_header_id, event_type, description, actor, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		evt.EventID,
		headerID,
		string(evt.Type),
		description,
		actor,
		string(payload),
		evt.Timestamp.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	return evt, nil
}

// Announce publishes a committed event on the bus. Call only after the
// enclosing transaction has committed; rolled-back operations must never be
// observable.
func (j *Journal) Announce(evt *Event) {
	if evt == nil {
		return
	}
	j.bus.Publish(*evt)
	j.log.Debug().
		Str("event_type", string(evt.Type)).
		Int64("transaction_id", evt.TransactionID).
		Msg("Event announced")
}

// ListByHeader retrieves the ordered event log for a transaction, optionally
// filtered by event type. Ordering is (timestamp, insertion sequence).
func (j *Journal) ListByHeader(ctx context.Context, headerID int64, eventType string) ([]Event, error) {
	query := `
		SELECT event_id, transaction_header_id, event_type, description, actor, payload_json, created_at
		FROM transaction_events
		WHERE transaction_header_id = ?
	`
	args := []interface{}{headerID}

	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CountByHeader returns the number of events of a given type for a header.
func (j *Journal) CountByHeader(ctx context.Context, headerID int64, eventType string) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transaction_events WHERE transaction_header_id = ? AND event_type = ?",
		headerID, eventType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var evt Event
	var eventType string
	var description, actor, payloadJSON sql.NullString
	var createdAt int64

	err := rows.Scan(
		&evt.EventID,
		&evt.TransactionID,
		&eventType,
		&description,
		&actor,
		&payloadJSON,
		&createdAt,
	)
	if err != nil {
		return evt, err
	}

	evt.Type = EventType(eventType)
	evt.Timestamp = time.Unix(createdAt, 0).UTC()
	if description.Valid {
		evt.Description = description.String
	}
	if actor.Valid {
		evt.Actor = actor.String
	}

	if payloadJSON.Valid && payloadJSON.String != "" {
		payload, err := decodePayload(evt.Type, json.RawMessage(payloadJSON.String))
		if err != nil {
			return evt, fmt.Errorf("failed to decode payload for %s: %w", evt.EventID, err)
		}
		evt.Data = payload
	}

	return evt, nil
}
