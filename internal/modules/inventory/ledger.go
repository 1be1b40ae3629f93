package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
)

// Ledger is the stock ledger service. Counter adjustments, unit claims and
// movement logging all happen inside the caller's transaction; the ledger
// never opens its own transaction for a mutation unless asked through the
// ctx-level convenience wrappers.
type Ledger struct {
	db  *sql.DB // rental.db
	log zerolog.Logger
}

// NewLedger creates a new stock ledger service
func NewLedger(db *sql.DB, log zerolog.Logger) *Ledger {
	return &Ledger{
		db:  db,
		log: log.With().Str("service", "inventory_ledger").Logger(),
	}
}

const stockLevelColumns = `id, item_id, location_id, quantity_on_hand, quantity_available,
	quantity_on_rent, quantity_damaged, updated_at`

// EnsureStockLevelTx returns the counter row for the pair, creating a zero
// row if none exists yet.
func (l *Ledger) EnsureStockLevelTx(tx *sql.Tx, itemID, locationID string) (*StockLevel, error) {
	level, err := l.getStockLevelTx(tx, itemID, locationID)
	if err == nil {
		return level, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().Unix()
	res, err := tx.Exec(`
		INSERT INTO stock_levels (item_id, location_id, quantity_on_hand, quantity_available,
			quantity_on_rent, quantity_damaged, updated_at)
		VALUES (?, ?, 0, 0, 0, 0, ?)
	`, itemID, locationID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock level: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level id: %w", err)
	}

	return &StockLevel{
		ID:         id,
		ItemID:     itemID,
		LocationID: locationID,
		UpdatedAt:  time.Unix(now, 0).UTC(),
	}, nil
}

func (l *Ledger) getStockLevelTx(tx *sql.Tx, itemID, locationID string) (*StockLevel, error) {
	row := tx.QueryRow(`
		SELECT `+stockLevelColumns+`
		FROM stock_levels
		WHERE item_id = ? AND location_id = ?
	`, itemID, locationID)
	return scanStockLevel(row)
}

// AdjustStockTx applies a signed delta to the counter vector inside the
// caller's transaction and appends the movement-log entry. The adjustment is
// rejected whole if any counter would go negative or the delta breaks the
// conservation equation; post-update the equation is re-checked and a
// violation aborts as an integrity failure.
func (l *Ledger) AdjustStockTx(tx *sql.Tx, itemID, locationID string, delta StockDelta, ref MovementRef) (*StockLevel, error) {
	if !delta.Balanced() {
		return nil, domain.Integrityf(
			"unbalanced stock delta for item %s at %s: on_hand %+d != available %+d + on_rent %+d + damaged %+d",
			itemID, locationID, delta.OnHand, delta.Available, delta.OnRent, delta.Damaged)
	}

	level, err := l.EnsureStockLevelTx(tx, itemID, locationID)
	if err != nil {
		return nil, err
	}

	next := StockLevel{
		ID:                level.ID,
		ItemID:            itemID,
		LocationID:        locationID,
		QuantityOnHand:    level.QuantityOnHand + delta.OnHand,
		QuantityAvailable: level.QuantityAvailable + delta.Available,
		QuantityOnRent:    level.QuantityOnRent + delta.OnRent,
		QuantityDamaged:   level.QuantityDamaged + delta.Damaged,
	}

	if next.QuantityOnHand < 0 || next.QuantityAvailable < 0 ||
		next.QuantityOnRent < 0 || next.QuantityDamaged < 0 {
		return nil, domain.Conflictf(domain.CodeInsufficientStock,
			"insufficient stock for item %s at location %s", itemID, locationID).
			WithDetails(domain.ErrorDetail{
				Field: "quantity",
				Message: fmt.Sprintf("available %d, on_rent %d, damaged %d; requested change %+d/%+d/%+d",
					level.QuantityAvailable, level.QuantityOnRent, level.QuantityDamaged,
					delta.Available, delta.OnRent, delta.Damaged),
			})
	}

	if !next.Consistent() {
		return nil, domain.Integrityf(
			"stock conservation violated for item %s at %s: on_hand %d != %d + %d + %d",
			itemID, locationID, next.QuantityOnHand,
			next.QuantityAvailable, next.QuantityOnRent, next.QuantityDamaged)
	}

	now := time.Now()
	_, err = tx.Exec(`
		UPDATE stock_levels
		SET quantity_on_hand = ?, quantity_available = ?, quantity_on_rent = ?,
			quantity_damaged = ?, updated_at = ?
		WHERE id = ?
	`, next.QuantityOnHand, next.QuantityAvailable, next.QuantityOnRent,
		next.QuantityDamaged, now.Unix(), level.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock level: %w", err)
	}

	var headerID, lineID interface{}
	if ref.HeaderID > 0 {
		headerID = ref.HeaderID
	}
	if ref.LineID > 0 {
		lineID = ref.LineID
	}

	_, err = tx.Exec(`
		INSERT INTO stock_movements (stock_level_id, movement_type, quantity_change,
			quantity_before, quantity_after, transaction_header_id, transaction_line_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, level.ID, string(ref.Type), delta.OnHand,
		level.QuantityOnHand, next.QuantityOnHand, headerID, lineID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	next.UpdatedAt = now.UTC()
	return &next, nil
}

// AdjustStock applies an adjustment in its own transaction. Used for manual
// corrections; business operations call AdjustStockTx inside their own scope.
func (l *Ledger) AdjustStock(ctx context.Context, itemID, locationID string, delta StockDelta, ref MovementRef) (*StockLevel, error) {
	var level *StockLevel
	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var txErr error
		level, txErr = l.AdjustStockTx(tx, itemID, locationID, delta, ref)
		return txErr
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("stock adjustment contended, retry").WithCause(err)
		}
		return nil, err
	}
	return level, nil
}

// ReserveUnitsTx atomically claims quantity AVAILABLE units for a rental line.
// The claim is a single UPDATE over a subselect, so under the immediate write
// lock two concurrent reservations can never pick the same unit. Claimed unit
// IDs are returned; if fewer than quantity units exist the whole claim fails.
func (l *Ledger) ReserveUnitsTx(tx *sql.Tx, itemID, locationID string, quantity int, lineID int64) ([]string, error) {
	if quantity <= 0 {
		return nil, domain.Validationf("reservation quantity must be positive, got %d", quantity)
	}

	now := time.Now().Unix()
	rows, err := tx.Query(`
		UPDATE inventory_units
		SET status = 'RENTED', rental_line_id = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM inventory_units
			WHERE item_id = ? AND location_id = ? AND status = 'AVAILABLE'
			ORDER BY id
			LIMIT ?
		)
		RETURNING id
	`, lineID, now, itemID, locationID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to claim inventory units: %w", err)
	}
	defer rows.Close()

	var unitIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claimed unit id: %w", err)
		}
		unitIDs = append(unitIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed units: %w", err)
	}

	if len(unitIDs) < quantity {
		// Rolling back releases the partial claim with everything else.
		return nil, domain.Conflictf(domain.CodeInsufficientUnits,
			"only %d of %d units available for item %s at location %s",
			len(unitIDs), quantity, itemID, locationID)
	}

	return unitIDs, nil
}

// ReserveSerialsTx claims specific units by serial number for a rental line.
// Every requested serial must be AVAILABLE at the location or the whole claim
// fails.
func (l *Ledger) ReserveSerialsTx(tx *sql.Tx, itemID, locationID string, serials []string, lineID int64) ([]string, error) {
	if len(serials) == 0 {
		return nil, domain.Validationf("at least one serial number is required")
	}

	placeholders := strings.Repeat("?,", len(serials))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(serials)+4)
	args = append(args, lineID, time.Now().Unix(), itemID, locationID)
	for _, sn := range serials {
		args = append(args, sn)
	}

	rows, err := tx.Query(`
		UPDATE inventory_units
		SET status = 'RENTED', rental_line_id = ?, updated_at = ?
		WHERE item_id = ? AND location_id = ? AND status = 'AVAILABLE'
		AND serial_number IN (`+placeholders+`)
		RETURNING id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim serialized units: %w", err)
	}
	defer rows.Close()

	var unitIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claimed unit id: %w", err)
		}
		unitIDs = append(unitIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed units: %w", err)
	}

	if len(unitIDs) < len(serials) {
		return nil, domain.Conflictf(domain.CodeInsufficientUnits,
			"only %d of %d requested serial numbers are available for item %s at location %s",
			len(unitIDs), len(serials), itemID, locationID)
	}

	return unitIDs, nil
}

// ReleaseUnitsTx returns up to count units claimed by a rental line. Units in
// rentable condition (A/B) go back to AVAILABLE; the rest move to DAMAGED.
// Returns the released unit IDs.
func (l *Ledger) ReleaseUnitsTx(tx *sql.Tx, lineID int64, count int, condition domain.ConditionRating) ([]string, error) {
	if count <= 0 {
		return nil, domain.Validationf("release count must be positive, got %d", count)
	}

	status := UnitDamaged
	if condition.Rentable() {
		status = UnitAvailable
	}

	rows, err := tx.Query(`
		UPDATE inventory_units
		SET status = ?, rental_line_id = NULL, updated_at = ?
		WHERE id IN (
			SELECT id FROM inventory_units
			WHERE rental_line_id = ? AND status = 'RENTED'
			ORDER BY id
			LIMIT ?
		)
		RETURNING id
	`, string(status), time.Now().Unix(), lineID, count)
	if err != nil {
		return nil, fmt.Errorf("failed to release inventory units: %w", err)
	}
	defer rows.Close()

	var unitIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan released unit id: %w", err)
		}
		unitIDs = append(unitIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating released units: %w", err)
	}

	return unitIDs, nil
}

// MaterializeUnitsTx creates serialized or batch-tracked units on purchase
// receipt. Serial-tracked items must supply exactly Quantity serials; batch
// receipts stamp every unit with the batch code instead.
func (l *Ledger) MaterializeUnitsTx(tx *sql.Tx, req MaterializeRequest) ([]string, error) {
	if req.Quantity <= 0 {
		return nil, domain.Validationf("materialize quantity must be positive, got %d", req.Quantity)
	}
	if len(req.Serials) > 0 && len(req.Serials) != req.Quantity {
		return nil, domain.Validationf("expected %d serial numbers, got %d", req.Quantity, len(req.Serials))
	}
	if len(req.Serials) == 0 && req.BatchCode == "" {
		return nil, domain.Validationf("batch code is required for non-serialized receipts")
	}

	now := time.Now().Unix()
	var unitCost interface{}
	if req.UnitCost != nil {
		unitCost = req.UnitCost.String()
	}

	unitIDs := make([]string, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		id := uuid.New().String()

		var serial interface{}
		if len(req.Serials) > 0 {
			serial = req.Serials[i]
		}
		var batch interface{}
		if req.BatchCode != "" {
			batch = req.BatchCode
		}

		_, err := tx.Exec(`
			INSERT INTO inventory_units (id, item_id, location_id, serial_number, batch_code,
				status, unit_cost, supplier_ref, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'AVAILABLE', ?, ?, ?, ?)
		`, id, req.ItemID, req.LocationID, serial, batch, unitCost,
			nullableString(req.SupplierRef), now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to materialize unit %d/%d: %w", i+1, req.Quantity, err)
		}
		unitIDs = append(unitIDs, id)
	}

	return unitIDs, nil
}

// RetireUnitsTx moves units of a given status for an item/location to RETIRED.
// Used when damaged goods are written off or returned to the vendor.
func (l *Ledger) RetireUnitsTx(tx *sql.Tx, itemID, locationID string, count int, from UnitStatus) (int, error) {
	res, err := tx.Exec(`
		UPDATE inventory_units
		SET status = 'RETIRED', updated_at = ?
		WHERE id IN (
			SELECT id FROM inventory_units
			WHERE item_id = ? AND location_id = ? AND status = ?
			ORDER BY id
			LIMIT ?
		)
	`, time.Now().Unix(), itemID, locationID, string(from), count)
	if err != nil {
		return 0, fmt.Errorf("failed to retire units: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count retired units: %w", err)
	}
	return int(n), nil
}

// ReinstateUnitsTx moves RETIRED units for an item/location back to the given
// status. Used when an inspection routes returned goods back into stock. The
// most recently retired units come back first.
func (l *Ledger) ReinstateUnitsTx(tx *sql.Tx, itemID, locationID string, count int, to UnitStatus) (int, error) {
	res, err := tx.Exec(`
		UPDATE inventory_units
		SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM inventory_units
			WHERE item_id = ? AND location_id = ? AND status = 'RETIRED'
			ORDER BY id DESC
			LIMIT ?
		)
	`, string(to), time.Now().Unix(), itemID, locationID, count)
	if err != nil {
		return 0, fmt.Errorf("failed to reinstate units: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reinstated units: %w", err)
	}
	return int(n), nil
}

// GetStockLevel reads the counter vector for one pair. Missing pairs read as
// a zero vector rather than an error.
func (l *Ledger) GetStockLevel(ctx context.Context, itemID, locationID string) (*StockLevel, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+stockLevelColumns+`
		FROM stock_levels
		WHERE item_id = ? AND location_id = ?
	`, itemID, locationID)

	level, err := scanStockLevel(row)
	if err == sql.ErrNoRows {
		return &StockLevel{ItemID: itemID, LocationID: locationID}, nil
	}
	if err != nil {
		return nil, err
	}
	return level, nil
}

// ListStockLevels returns all counter rows, optionally filtered by location.
func (l *Ledger) ListStockLevels(ctx context.Context, locationID string) ([]StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels`
	args := []interface{}{}
	if locationID != "" {
		query += " WHERE location_id = ?"
		args = append(args, locationID)
	}
	query += " ORDER BY item_id, location_id"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		level, err := scanStockLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, *level)
	}
	return levels, rows.Err()
}

// ListMovements returns the movement log for a transaction header, oldest
// first.
func (l *Ledger) ListMovements(ctx context.Context, headerID int64) ([]StockMovement, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, stock_level_id, movement_type, quantity_change, quantity_before,
			quantity_after, transaction_header_id, transaction_line_id, created_at
		FROM stock_movements
		WHERE transaction_header_id = ?
		ORDER BY id
	`, headerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		var movementType string
		var hID, lID sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.StockLevelID, &movementType, &m.QuantityChange,
			&m.QuantityBefore, &m.QuantityAfter, &hID, &lID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		m.MovementType = MovementType(movementType)
		m.HeaderID = hID.Int64
		m.LineID = lID.Int64
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListUnits returns serialized units for an item/location, optionally
// filtered by status.
func (l *Ledger) ListUnits(ctx context.Context, itemID, locationID string, status UnitStatus) ([]Unit, error) {
	query := `
		SELECT id, item_id, location_id, serial_number, batch_code, status,
			unit_cost, supplier_ref, rental_line_id, created_at, updated_at
		FROM inventory_units
		WHERE item_id = ? AND location_id = ?
	`
	args := []interface{}{itemID, locationID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		var serial, batch, supplierRef sql.NullString
		var unitCost sql.NullString
		var rentalLineID sql.NullInt64
		var unitStatus string
		var createdAt, updatedAt int64

		if err := rows.Scan(&u.ID, &u.ItemID, &u.LocationID, &serial, &batch, &unitStatus,
			&unitCost, &supplierRef, &rentalLineID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory unit: %w", err)
		}

		u.SerialNumber = serial.String
		u.BatchCode = batch.String
		u.Status = UnitStatus(unitStatus)
		u.SupplierRef = supplierRef.String
		u.RentalLineID = rentalLineID.Int64
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		u.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		cost, err := domain.ScanDecimalPtr(unitCost)
		if err != nil {
			return nil, err
		}
		u.UnitCost = cost

		units = append(units, u)
	}
	return units, rows.Err()
}

// CountUnits returns how many units an item/location has in a given status.
func (l *Ledger) CountUnits(ctx context.Context, itemID, locationID string, status UnitStatus) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory_units
		WHERE item_id = ? AND location_id = ? AND status = ?
	`, itemID, locationID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count inventory units: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStockLevel(row rowScanner) (*StockLevel, error) {
	var level StockLevel
	var updatedAt int64
	err := row.Scan(&level.ID, &level.ItemID, &level.LocationID,
		&level.QuantityOnHand, &level.QuantityAvailable,
		&level.QuantityOnRent, &level.QuantityDamaged, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock level: %w", err)
	}
	level.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &level, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
