package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/quartermaster/internal/domain"
)

const inspectionColumns = `id, transaction_line_id, condition_rating, damage_description,
	repair_cost_estimate, disposition, return_to_stock, status, quantity,
	photo_refs, notes, inspected_at, created_at`

// CreateInspectionTx inserts an inspection record for a line.
func (s *Store) CreateInspectionTx(tx *sql.Tx, insp *Inspection) (int64, error) {
	if insp.ConditionRating != "" && !insp.ConditionRating.Valid() {
		return 0, domain.Validationf("invalid condition rating %q", insp.ConditionRating)
	}
	if insp.Status == "" {
		insp.Status = "PENDING"
	}

	var inspectedAt interface{}
	if insp.InspectedAt != nil {
		inspectedAt = insp.InspectedAt.Unix()
	}

	res, err := tx.Exec(`
		INSERT INTO transaction_inspections
		(transaction_line_id, condition_rating, damage_description, repair_cost_estimate,
		 disposition, return_to_stock, status, quantity, photo_refs, notes,
		 inspected_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insp.LineID, nullableString(string(insp.ConditionRating)),
		nullableString(insp.DamageDescription), insp.RepairCostEstimate.String(),
		nullableString(string(insp.Disposition)), boolToInt(insp.ReturnToStock),
		insp.Status, insp.Quantity, nullableString(insp.PhotoRefs),
		nullableString(insp.Notes), inspectedAt, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create inspection: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inspection id: %w", err)
	}
	insp.ID = id
	return id, nil
}

// CompleteInspectionTx closes a pending inspection with its final rating,
// disposition and restock decision. Completing an already-completed
// inspection fails with INVALID_TRANSITION.
func (s *Store) CompleteInspectionTx(tx *sql.Tx, id int64, rating domain.ConditionRating, disposition domain.Disposition, returnToStock bool, notes string) error {
	if !rating.Valid() {
		return domain.Validationf("invalid condition rating %q", rating)
	}

	res, err := tx.Exec(`
		UPDATE transaction_inspections
		SET condition_rating = ?, disposition = ?, return_to_stock = ?,
			status = 'COMPLETED', notes = COALESCE(?, notes), inspected_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, string(rating), string(disposition), boolToInt(returnToStock),
		nullableString(notes), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to complete inspection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check inspection update: %w", err)
	}
	if n == 0 {
		return domain.Conflictf(domain.CodeInvalidTransition,
			"inspection %d is not pending", id)
	}
	return nil
}

// GetInspectionTx reads one inspection inside the caller's transaction.
func (s *Store) GetInspectionTx(tx *sql.Tx, id int64) (*Inspection, error) {
	row := tx.QueryRow(`SELECT `+inspectionColumns+` FROM transaction_inspections WHERE id = ?`, id)
	insp, err := scanInspection(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("inspection %d not found", id)
	}
	return insp, err
}

// ListInspectionsByHeader returns all inspections attached to a header's
// lines.
func (s *Store) ListInspectionsByHeader(ctx context.Context, headerID int64) ([]Inspection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.transaction_line_id, i.condition_rating, i.damage_description,
			i.repair_cost_estimate, i.disposition, i.return_to_stock, i.status,
			i.quantity, i.photo_refs, i.notes, i.inspected_at, i.created_at
		FROM transaction_inspections i
		JOIN transaction_lines l ON l.id = i.transaction_line_id
		WHERE l.transaction_header_id = ?
		ORDER BY i.id
	`, headerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var inspections []Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		inspections = append(inspections, *insp)
	}
	return inspections, rows.Err()
}

// CountPendingInspectionsTx counts open inspections on a header. Vendor
// credit issuance requires zero.
func (s *Store) CountPendingInspectionsTx(tx *sql.Tx, headerID int64) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*)
		FROM transaction_inspections i
		JOIN transaction_lines l ON l.id = i.transaction_line_id
		WHERE l.transaction_header_id = ? AND i.status = 'PENDING'
	`, headerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending inspections: %w", err)
	}
	return count, nil
}

func scanInspection(row rowScanner) (*Inspection, error) {
	var insp Inspection
	var rating, damageDesc, disposition, photoRefs, notes sql.NullString
	var repairCost string
	var returnToStock int
	var inspectedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&insp.ID, &insp.LineID, &rating, &damageDesc, &repairCost,
		&disposition, &returnToStock, &insp.Status, &insp.Quantity,
		&photoRefs, &notes, &inspectedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan inspection: %w", err)
	}

	insp.ConditionRating = domain.ConditionRating(rating.String)
	insp.DamageDescription = damageDesc.String
	insp.Disposition = domain.Disposition(disposition.String)
	insp.ReturnToStock = returnToStock != 0
	insp.PhotoRefs = photoRefs.String
	insp.Notes = notes.String
	insp.CreatedAt = time.Unix(createdAt, 0).UTC()
	if inspectedAt.Valid {
		t := time.Unix(inspectedAt.Int64, 0).UTC()
		insp.InspectedAt = &t
	}

	var repairErr error
	if insp.RepairCostEstimate, repairErr = domain.ParseDecimal(repairCost); repairErr != nil {
		return nil, repairErr
	}

	return &insp, nil
}
