package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// Line mutators and the rental-lifecycle record. These are row-level
// operations; the rental engine owns the semantics and calls them inside its
// own transaction scope.

// SetLineStatusTx writes a line's current rental status.
func (s *Store) SetLineStatusTx(tx *sql.Tx, lineID int64, status LineStatus) error {
	_, err := tx.Exec(`
		UPDATE transaction_lines SET current_rental_status = ? WHERE id = ?
	`, string(status), lineID)
	if err != nil {
		return fmt.Errorf("failed to set line status: %w", err)
	}
	return nil
}

// ApplyLineReturnTx increments a line's returned quantity and records the
// latest return condition.
func (s *Store) ApplyLineReturnTx(tx *sql.Tx, lineID int64, quantityReturned int, condition domain.ConditionRating, status LineStatus) error {
	res, err := tx.Exec(`
		UPDATE transaction_lines
		SET returned_quantity = returned_quantity + ?,
			return_condition = ?,
			current_rental_status = ?
		WHERE id = ? AND returned_quantity + ? <= quantity
	`, quantityReturned, string(condition), string(status), lineID, quantityReturned)
	if err != nil {
		return fmt.Errorf("failed to apply line return: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check line return update: %w", err)
	}
	if n == 0 {
		return domain.Conflictf(domain.CodeExcessiveReturnQuantity,
			"returned quantity would exceed line %d quantity", lineID)
	}
	return nil
}

// ExtendLineTx moves a line's rental end date and marks it extended.
func (s *Store) ExtendLineTx(tx *sql.Tx, lineID int64, newEndDate string) error {
	_, err := tx.Exec(`
		UPDATE transaction_lines
		SET rental_end_date = ?, current_rental_status = ?
		WHERE id = ?
	`, newEndDate, string(LineExtended), lineID)
	if err != nil {
		return fmt.Errorf("failed to extend line: %w", err)
	}
	return nil
}

// AddExtensionChargesTx increments the header's extension counters and folds
// the charge into the total.
func (s *Store) AddExtensionChargesTx(tx *sql.Tx, headerID int64, charge decimal.Decimal) error {
	h, err := s.GetHeaderTx(tx, headerID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE transaction_headers
		SET extension_count = extension_count + 1,
			total_extension_charges = ?,
			total_amount = ?,
			updated_at = ?
		WHERE id = ?
	`, h.TotalExtensionCharges.Add(charge).String(),
		h.TotalAmount.Add(charge).String(), time.Now().Unix(), headerID)
	if err != nil {
		return fmt.Errorf("failed to add extension charges: %w", err)
	}
	return nil
}

// SetCreditNoteTx records a vendor credit against a return header: credit
// note number, negative paid amount and REFUNDED payment status.
func (s *Store) SetCreditNoteTx(tx *sql.Tx, headerID int64, creditNote string, creditAmount decimal.Decimal) error {
	_, err := tx.Exec(`
		UPDATE transaction_headers
		SET credit_note_number = ?, paid_amount = ?, payment_status = ?, updated_at = ?
		WHERE id = ?
	`, creditNote, creditAmount.Neg().String(), string(PaymentRefunded),
		time.Now().Unix(), headerID)
	if err != nil {
		return fmt.Errorf("failed to record credit note: %w", err)
	}
	return nil
}

// CreateLifecycleTx inserts the lifecycle record for a rental header.
func (s *Store) CreateLifecycleTx(tx *sql.Tx, lc *RentalLifecycle) (int64, error) {
	now := time.Now().Unix()
	res, err := tx.Exec(`
		INSERT INTO rental_lifecycles
		(transaction_header_id, expected_pickup_date, actual_pickup_date,
		 expected_return_date, actual_return_date, late_fees, damage_charges,
		 deposit_refund_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, lc.HeaderID, nullableString(lc.ExpectedPickupDate), nullableString(lc.ActualPickupDate),
		nullableString(lc.ExpectedReturnDate), nullableString(lc.ActualReturnDate),
		lc.LateFees.String(), lc.DamageCharges.String(), lc.DepositRefundAmount.String(),
		now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create rental lifecycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get lifecycle id: %w", err)
	}
	lc.ID = id
	return id, nil
}

// RecordPickupTx stamps the actual pickup date. Returns false when the date
// was already set, which makes pickup idempotent for the caller.
func (s *Store) RecordPickupTx(tx *sql.Tx, headerID int64, pickupDate string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE rental_lifecycles
		SET actual_pickup_date = ?, updated_at = ?
		WHERE transaction_header_id = ? AND actual_pickup_date IS NULL
	`, pickupDate, time.Now().Unix(), headerID)
	if err != nil {
		return false, fmt.Errorf("failed to record pickup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check pickup update: %w", err)
	}
	return n > 0, nil
}

// SettleLifecycleTx records the return date and settlement amounts. Amounts
// accumulate across partial returns.
func (s *Store) SettleLifecycleTx(tx *sql.Tx, headerID int64, actualReturnDate string, lateFees, damageCharges, depositRefund decimal.Decimal) error {
	lc, err := s.GetLifecycleTx(tx, headerID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE rental_lifecycles
		SET actual_return_date = ?, late_fees = ?, damage_charges = ?,
			deposit_refund_amount = ?, updated_at = ?
		WHERE transaction_header_id = ?
	`, actualReturnDate,
		lc.LateFees.Add(lateFees).String(),
		lc.DamageCharges.Add(damageCharges).String(),
		depositRefund.String(),
		time.Now().Unix(), headerID)
	if err != nil {
		return fmt.Errorf("failed to settle rental lifecycle: %w", err)
	}
	return nil
}

// GetLifecycleTx reads the lifecycle record inside the caller's transaction.
func (s *Store) GetLifecycleTx(tx *sql.Tx, headerID int64) (*RentalLifecycle, error) {
	row := tx.QueryRow(lifecycleQuery, headerID)
	return scanLifecycle(row, headerID)
}

// GetLifecycle reads the lifecycle record for a rental header.
func (s *Store) GetLifecycle(ctx context.Context, headerID int64) (*RentalLifecycle, error) {
	row := s.db.QueryRowContext(ctx, lifecycleQuery, headerID)
	return scanLifecycle(row, headerID)
}

const lifecycleQuery = `
	SELECT id, transaction_header_id, expected_pickup_date, actual_pickup_date,
		expected_return_date, actual_return_date, late_fees, damage_charges,
		deposit_refund_amount, created_at, updated_at
	FROM rental_lifecycles
	WHERE transaction_header_id = ?
`

func scanLifecycle(row *sql.Row, headerID int64) (*RentalLifecycle, error) {
	var lc RentalLifecycle
	var expPickup, actPickup, expReturn, actReturn sql.NullString
	var lateFees, damage, refund string
	var createdAt, updatedAt int64

	err := row.Scan(&lc.ID, &lc.HeaderID, &expPickup, &actPickup,
		&expReturn, &actReturn, &lateFees, &damage, &refund, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("rental lifecycle for transaction %d not found", headerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rental lifecycle: %w", err)
	}

	lc.ExpectedPickupDate = expPickup.String
	lc.ActualPickupDate = actPickup.String
	lc.ExpectedReturnDate = expReturn.String
	lc.ActualReturnDate = actReturn.String
	lc.CreatedAt = time.Unix(createdAt, 0).UTC()
	lc.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if lc.LateFees, err = domain.ParseDecimal(lateFees); err != nil {
		return nil, err
	}
	if lc.DamageCharges, err = domain.ParseDecimal(damage); err != nil {
		return nil, err
	}
	if lc.DepositRefundAmount, err = domain.ParseDecimal(refund); err != nil {
		return nil, err
	}

	return &lc, nil
}
