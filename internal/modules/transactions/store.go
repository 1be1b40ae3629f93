package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/journal"
)

// Store persists transaction headers, lines and payments. Mutations that
// belong to a larger business operation run through the Tx-scoped methods;
// the ctx-level methods open their own transaction.
type Store struct {
	db      *sql.DB // rental.db
	journal *journal.Journal
	log     zerolog.Logger
}

// NewStore creates a new transaction store
func NewStore(db *sql.DB, j *journal.Journal, log zerolog.Logger) *Store {
	return &Store{
		db:      db,
		journal: j,
		log:     log.With().Str("service", "transaction_store").Logger(),
	}
}

const headerColumns = `id, transaction_number, transaction_type, status, payment_status,
	customer_id, supplier_id, location_id, transaction_date,
	subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
	paid_amount, deposit_amount, reference_transaction_id, extension_count,
	total_extension_charges, payment_method, reference_number, return_reason,
	rma_number, credit_note_number, delivery_required, delivery_address,
	delivery_date, pickup_required, pickup_date, notes, created_by,
	created_at, updated_at`

const lineColumns = `id, transaction_header_id, line_number, line_type, item_id, sku,
	description, quantity, unit_price, discount_amount, tax_amount, line_total,
	rental_start_date, rental_end_date, rental_period, rental_period_unit,
	current_rental_status, daily_rate, returned_quantity, return_condition,
	inspection_status`

// NextNumberTx issues the next transaction number for the (type, date)
// bucket: {PREFIX}-{YYYYMMDD}-{NNNN}. The read runs under the ledger write
// lock and the UNIQUE constraint on transaction_number backstops it, so two
// concurrent creations always commit distinct sequential numbers.
func (s *Store) NextNumberTx(tx *sql.Tx, t Type, wallDate string) (string, error) {
	datePart := strings.ReplaceAll(wallDate, "-", "")
	if len(datePart) != 8 {
		return "", domain.Validationf("invalid transaction date %q (expected YYYY-MM-DD)", wallDate)
	}

	prefix := fmt.Sprintf("%s-%s-", t.Prefix(), datePart)

	var maxSeq int
	err := tx.QueryRow(`
		SELECT COALESCE(MAX(CAST(substr(transaction_number, -4) AS INTEGER)), 0)
		FROM transaction_headers
		WHERE transaction_number LIKE ? || '%'
	`, prefix).Scan(&maxSeq)
	if err != nil {
		return "", fmt.Errorf("failed to read number sequence: %w", err)
	}

	return fmt.Sprintf("%s%04d", prefix, maxSeq+1), nil
}

// CreateHeaderTx inserts a header, assigning its transaction number if the
// caller left it empty. Returns the new id and the assigned number.
func (s *Store) CreateHeaderTx(tx *sql.Tx, h *Header) (int64, error) {
	if !h.Type.Valid() {
		return 0, domain.Validationf("invalid transaction type %q", h.Type)
	}
	if h.TransactionDate == "" {
		return 0, domain.Validationf("transaction date is required")
	}

	if h.TransactionNumber == "" {
		number, err := s.NextNumberTx(tx, h.Type, h.TransactionDate)
		if err != nil {
			return 0, err
		}
		h.TransactionNumber = number
	}
	if h.PaymentStatus == "" {
		h.PaymentStatus = PaymentPending
	}

	now := time.Now()
	res, err := tx.Exec(`
		INSERT INTO transaction_headers
		(transaction_number, transaction_type, status, payment_status,
		 customer_id, supplier_id, location_id, transaction_date,
		 subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
		 paid_amount, deposit_amount, reference_transaction_id, extension_count,
		 total_extension_charges, payment_method, reference_number, return_reason,
		 rma_number, credit_note_number, delivery_required, delivery_address,
		 delivery_date, pickup_required, pickup_date, notes, created_by,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.TransactionNumber, string(h.Type), string(h.Status), string(h.PaymentStatus),
		nullableString(h.CustomerID), nullableString(h.SupplierID), h.LocationID, h.TransactionDate,
		h.Subtotal.String(), h.DiscountAmount.String(), h.TaxAmount.String(),
		h.ShippingAmount.String(), h.TotalAmount.String(),
		h.PaidAmount.String(), h.DepositAmount.String(),
		nullableInt64(h.ReferenceTransactionID), h.ExtensionCount,
		h.TotalExtensionCharges.String(), nullableString(h.PaymentMethod),
		nullableString(h.ReferenceNumber), nullableString(h.ReturnReason),
		nullableString(h.RMANumber), nullableString(h.CreditNoteNumber),
		boolToInt(h.DeliveryRequired), nullableString(h.DeliveryAddress),
		nullableString(h.DeliveryDate), boolToInt(h.PickupRequired),
		nullableString(h.PickupDate), nullableString(h.Notes), nullableString(h.CreatedBy),
		now.Unix(), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction header: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get header id: %w", err)
	}

	h.ID = id
	h.CreatedAt = now.UTC()
	h.UpdatedAt = now.UTC()
	return id, nil
}

// AppendLinesTx inserts lines in caller order, numbering them sequentially
// after the highest existing line number on the header.
func (s *Store) AppendLinesTx(tx *sql.Tx, headerID int64, lines []Line) ([]int64, error) {
	if len(lines) == 0 {
		return nil, domain.Validationf("at least one line is required")
	}

	var maxLine int
	err := tx.QueryRow(`
		SELECT COALESCE(MAX(line_number), 0) FROM transaction_lines
		WHERE transaction_header_id = ?
	`, headerID).Scan(&maxLine)
	if err != nil {
		return nil, fmt.Errorf("failed to read line numbers: %w", err)
	}

	ids := make([]int64, 0, len(lines))
	for i := range lines {
		line := &lines[i]
		line.HeaderID = headerID
		line.LineNumber = maxLine + i + 1

		res, err := tx.Exec(`
			INSERT INTO transaction_lines
			(transaction_header_id, line_number, line_type, item_id, sku, description,
			 quantity, unit_price, discount_amount, tax_amount, line_total,
			 rental_start_date, rental_end_date, rental_period, rental_period_unit,
			 current_rental_status, daily_rate, returned_quantity, return_condition,
			 inspection_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			headerID, line.LineNumber, line.LineType, line.ItemID,
			nullableString(line.SKU), nullableString(line.Description),
			line.Quantity, line.UnitPrice.String(), line.DiscountAmount.String(),
			line.TaxAmount.String(), line.LineTotal.String(),
			nullableString(line.RentalStartDate), nullableString(line.RentalEndDate),
			nullableInt(line.RentalPeriod), nullableString(line.RentalPeriodUnit),
			nullableString(string(line.RentalStatus)), line.DailyRate.String(),
			line.ReturnedQuantity, nullableString(line.ReturnCondition),
			nullableString(line.InspectionStatus))
		if err != nil {
			return nil, fmt.Errorf("failed to insert line %d: %w", line.LineNumber, err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get line id: %w", err)
		}
		line.ID = id
		ids = append(ids, id)
	}

	return ids, nil
}

// GetHeaderTx reads a header inside the caller's transaction.
func (s *Store) GetHeaderTx(tx *sql.Tx, id int64) (*Header, error) {
	row := tx.QueryRow(`SELECT `+headerColumns+` FROM transaction_headers WHERE id = ?`, id)
	return scanHeaderRow(row, id)
}

// GetHeader reads a header by id.
func (s *Store) GetHeader(ctx context.Context, id int64) (*Header, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+headerColumns+` FROM transaction_headers WHERE id = ?`, id)
	return scanHeaderRow(row, id)
}

// GetHeaderByNumber reads a header by its transaction number.
func (s *Store) GetHeaderByNumber(ctx context.Context, number string) (*Header, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+headerColumns+` FROM transaction_headers WHERE transaction_number = ?`, number)
	h, err := scanHeader(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("transaction %s not found", number)
	}
	return h, err
}

// GetLinesTx reads a header's lines inside the caller's transaction, ordered
// by line number.
func (s *Store) GetLinesTx(tx *sql.Tx, headerID int64) ([]Line, error) {
	rows, err := tx.Query(`
		SELECT `+lineColumns+` FROM transaction_lines
		WHERE transaction_header_id = ? ORDER BY line_number
	`, headerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()
	return collectLines(rows)
}

// GetLineTx reads a single line inside the caller's transaction.
func (s *Store) GetLineTx(tx *sql.Tx, lineID int64) (*Line, error) {
	rows, err := tx.Query(`
		SELECT `+lineColumns+` FROM transaction_lines WHERE id = ?
	`, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line: %w", err)
	}
	defer rows.Close()

	lines, err := collectLines(rows)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.NotFoundf("transaction line %d not found", lineID)
	}
	return &lines[0], nil
}

// GetLines reads a header's lines ordered by line number.
func (s *Store) GetLines(ctx context.Context, headerID int64) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lineColumns+` FROM transaction_lines
		WHERE transaction_header_id = ? ORDER BY line_number
	`, headerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()
	return collectLines(rows)
}

// UpdateTotalsTx rewrites the header's financial totals.
func (s *Store) UpdateTotalsTx(tx *sql.Tx, headerID int64, subtotal, discount, tax, total, deposit decimal.Decimal) error {
	_, err := tx.Exec(`
		UPDATE transaction_headers
		SET subtotal = ?, discount_amount = ?, tax_amount = ?, total_amount = ?,
			deposit_amount = ?, updated_at = ?
		WHERE id = ?
	`, subtotal.String(), discount.String(), tax.String(), total.String(),
		deposit.String(), time.Now().Unix(), headerID)
	if err != nil {
		return fmt.Errorf("failed to update header totals: %w", err)
	}
	return nil
}

// SetStatusTx writes the header status without transition checking. Reserved
// for the rental engine's lifecycle aggregation, which derives the status
// rather than requesting a transition.
func (s *Store) SetStatusTx(tx *sql.Tx, headerID int64, status Status) error {
	_, err := tx.Exec(`
		UPDATE transaction_headers SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().Unix(), headerID)
	if err != nil {
		return fmt.Errorf("failed to set header status: %w", err)
	}
	return nil
}

// nonRentalTransitions is the header status machine for purchases, sales and
// returns.
var nonRentalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusProcessing, StatusCancelled},
}

// rentalTransitions is the header-level machine for rentals. The lifecycle
// aggregation statuses interleave, so LATE/PARTIAL/EXTENDED are mutually
// reachable until the header completes.
var rentalTransitions = map[Status][]Status{
	StatusPending: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusRentalLate, StatusRentalPartialReturn, StatusRentalExtended,
		StatusRentalLatePartialReturn, StatusCompleted, StatusCancelled},
	StatusRentalLate: {StatusRentalLatePartialReturn, StatusRentalExtended,
		StatusRentalPartialReturn, StatusCompleted},
	StatusRentalPartialReturn: {StatusRentalLatePartialReturn, StatusRentalExtended,
		StatusRentalLate, StatusCompleted},
	StatusRentalLatePartialReturn: {StatusCompleted, StatusRentalExtended},
	StatusRentalExtended: {StatusRentalLate, StatusRentalPartialReturn,
		StatusRentalLatePartialReturn, StatusInProgress, StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a header of the given type may move from one
// status to another.
func CanTransition(t Type, from, to Status) bool {
	if from == to {
		return false
	}
	table := nonRentalTransitions
	if t == TypeRental {
		table = rentalTransitions
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionStatusTx moves a header through the status machine, appending a
// STATUS_CHANGED event. Invalid transitions fail with INVALID_TRANSITION.
func (s *Store) TransitionStatusTx(tx *sql.Tx, headerID int64, to Status, reason, actor string) (*journal.Event, error) {
	h, err := s.GetHeaderTx(tx, headerID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(h.Type, h.Status, to) {
		return nil, domain.Conflictf(domain.CodeInvalidTransition,
			"cannot transition %s transaction %s from %s to %s",
			h.Type, h.TransactionNumber, h.Status, to)
	}

	if err := s.SetStatusTx(tx, headerID, to); err != nil {
		return nil, err
	}

	return s.journal.AppendTx(tx, headerID, actor,
		fmt.Sprintf("Status changed from %s to %s", h.Status, to),
		&journal.StatusChangedData{From: string(h.Status), To: string(to), Reason: reason})
}

// TransitionStatus is the standalone form of TransitionStatusTx.
func (s *Store) TransitionStatus(ctx context.Context, headerID int64, to Status, reason, actor string) error {
	var evt *journal.Event
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		evt, txErr = s.TransitionStatusTx(tx, headerID, to, reason, actor)
		return txErr
	})
	if err != nil {
		return err
	}
	s.journal.Announce(evt)
	return nil
}

// DerivePaymentStatus computes payment_status from the paid and total
// amounts. Returns carry negative totals; an issued refund (negative paid)
// marks them REFUNDED.
func DerivePaymentStatus(paid, total decimal.Decimal, isReturn bool) PaymentStatus {
	if isReturn {
		if paid.IsNegative() {
			return PaymentRefunded
		}
		return PaymentPending
	}
	switch {
	case paid.IsZero():
		return PaymentPending
	case paid.LessThan(total):
		return PaymentPartial
	default:
		return PaymentPaid
	}
}

// RecordPayment adds a payment to a header, recomputes payment_status and
// appends a PAYMENT_RECORDED event. Payments are additive: N payments
// totalling T behave exactly like one payment of T.
func (s *Store) RecordPayment(ctx context.Context, headerID int64, amount decimal.Decimal, method, reference, actor string) (*Header, error) {
	if amount.IsZero() {
		return nil, domain.Validationf("payment amount must be non-zero")
	}

	var updated *Header
	var evt *journal.Event
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		h, err := s.GetHeaderTx(tx, headerID)
		if err != nil {
			return err
		}

		isReturn := h.Type == TypeReturn
		newPaid := h.PaidAmount.Add(amount)

		if isReturn && amount.IsPositive() {
			return domain.Validationf("return transactions accept only negative payments (credits)")
		}
		if !isReturn && newPaid.GreaterThan(h.TotalAmount) {
			return domain.Validationf("payment of %s would exceed total %s (already paid %s)",
				amount, h.TotalAmount, h.PaidAmount)
		}

		now := time.Now()
		if _, err := tx.Exec(`
			INSERT INTO payments (transaction_header_id, amount, method, reference, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, headerID, amount.String(), nullableString(method), nullableString(reference), now.Unix()); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		paymentStatus := DerivePaymentStatus(newPaid, h.TotalAmount, isReturn)
		if _, err := tx.Exec(`
			UPDATE transaction_headers
			SET paid_amount = ?, payment_status = ?, updated_at = ?
			WHERE id = ?
		`, newPaid.String(), string(paymentStatus), now.Unix(), headerID); err != nil {
			return fmt.Errorf("failed to update paid amount: %w", err)
		}

		evt, err = s.journal.AppendTx(tx, headerID, actor,
			fmt.Sprintf("Payment of %s recorded", amount),
			&journal.PaymentRecordedData{
				Amount:        amount.String(),
				Method:        method,
				Reference:     reference,
				PaidAmount:    newPaid.String(),
				PaymentStatus: string(paymentStatus),
			})
		if err != nil {
			return err
		}

		h.PaidAmount = newPaid
		h.PaymentStatus = paymentStatus
		updated = h
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("payment recording contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(evt)
	return updated, nil
}

// List returns a page of headers matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 500 {
		filter.PageSize = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	if filter.Type != "" {
		where += " AND transaction_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transaction_headers"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + headerColumns + ` FROM transaction_headers` + where +
		" ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	items := make([]Header, 0)
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return &ListResult{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ListReturnsReferencing returns all RETURN headers chained to an original
// transaction, any status.
func (s *Store) ListReturnsReferencing(ctx context.Context, originalID int64) ([]Header, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+headerColumns+` FROM transaction_headers
		WHERE transaction_type = 'RETURN' AND reference_transaction_id = ?
		ORDER BY id
	`, originalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns chain: %w", err)
	}
	defer rows.Close()

	var headers []Header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *h)
	}
	return headers, rows.Err()
}

// ListReturnsReferencingTx is the Tx-scoped form of ListReturnsReferencing.
func (s *Store) ListReturnsReferencingTx(tx *sql.Tx, originalID int64) ([]Header, error) {
	rows, err := tx.Query(`
		SELECT `+headerColumns+` FROM transaction_headers
		WHERE transaction_type = 'RETURN' AND reference_transaction_id = ?
		ORDER BY id
	`, originalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns chain: %w", err)
	}
	defer rows.Close()

	var headers []Header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *h)
	}
	return headers, rows.Err()
}

// ListPayments returns the payments recorded against a header, oldest first.
func (s *Store) ListPayments(ctx context.Context, headerID int64) ([]Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_header_id, amount, method, reference, created_at
		FROM payments WHERE transaction_header_id = ? ORDER BY id
	`, headerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		var amount string
		var method, reference sql.NullString
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.HeaderID, &amount, &method, &reference, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount, err = domain.ParseDecimal(amount)
		if err != nil {
			return nil, err
		}
		p.Method = method.String
		p.Reference = reference.String
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanHeaderRow(row *sql.Row, id int64) (*Header, error) {
	h, err := scanHeader(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("transaction %d not found", id)
	}
	return h, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHeader(row rowScanner) (*Header, error) {
	var h Header
	var txType, status, paymentStatus string
	var customerID, supplierID, paymentMethod, referenceNumber sql.NullString
	var returnReason, rmaNumber, creditNoteNumber sql.NullString
	var deliveryAddress, deliveryDate, pickupDate, notes, createdBy sql.NullString
	var referenceTransactionID sql.NullInt64
	var subtotal, discount, tax, shipping, total, paid, deposit, extCharges string
	var deliveryRequired, pickupRequired int
	var createdAt, updatedAt int64

	err := row.Scan(&h.ID, &h.TransactionNumber, &txType, &status, &paymentStatus,
		&customerID, &supplierID, &h.LocationID, &h.TransactionDate,
		&subtotal, &discount, &tax, &shipping, &total,
		&paid, &deposit, &referenceTransactionID, &h.ExtensionCount,
		&extCharges, &paymentMethod, &referenceNumber, &returnReason,
		&rmaNumber, &creditNoteNumber, &deliveryRequired, &deliveryAddress,
		&deliveryDate, &pickupRequired, &pickupDate, &notes, &createdBy,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction header: %w", err)
	}

	h.Type = Type(txType)
	h.Status = Status(status)
	h.PaymentStatus = PaymentStatus(paymentStatus)
	h.CustomerID = customerID.String
	h.SupplierID = supplierID.String
	h.ReferenceTransactionID = referenceTransactionID.Int64
	h.PaymentMethod = paymentMethod.String
	h.ReferenceNumber = referenceNumber.String
	h.ReturnReason = returnReason.String
	h.RMANumber = rmaNumber.String
	h.CreditNoteNumber = creditNoteNumber.String
	h.DeliveryRequired = deliveryRequired != 0
	h.DeliveryAddress = deliveryAddress.String
	h.DeliveryDate = deliveryDate.String
	h.PickupRequired = pickupRequired != 0
	h.PickupDate = pickupDate.String
	h.Notes = notes.String
	h.CreatedBy = createdBy.String
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&h.Subtotal, subtotal}, {&h.DiscountAmount, discount}, {&h.TaxAmount, tax},
		{&h.ShippingAmount, shipping}, {&h.TotalAmount, total}, {&h.PaidAmount, paid},
		{&h.DepositAmount, deposit}, {&h.TotalExtensionCharges, extCharges},
	} {
		d, err := domain.ParseDecimal(pair.src)
		if err != nil {
			return nil, err
		}
		*pair.dst = d
	}

	return &h, nil
}

func collectLines(rows *sql.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var l Line
		var sku, description, startDate, endDate, periodUnit sql.NullString
		var rentalStatus, returnCondition, inspectionStatus sql.NullString
		var rentalPeriod sql.NullInt64
		var unitPrice, discount, tax, lineTotal string
		var dailyRate sql.NullString

		err := rows.Scan(&l.ID, &l.HeaderID, &l.LineNumber, &l.LineType, &l.ItemID, &sku,
			&description, &l.Quantity, &unitPrice, &discount, &tax, &lineTotal,
			&startDate, &endDate, &rentalPeriod, &periodUnit,
			&rentalStatus, &dailyRate, &l.ReturnedQuantity, &returnCondition,
			&inspectionStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction line: %w", err)
		}

		l.SKU = sku.String
		l.Description = description.String
		l.RentalStartDate = startDate.String
		l.RentalEndDate = endDate.String
		l.RentalPeriod = int(rentalPeriod.Int64)
		l.RentalPeriodUnit = periodUnit.String
		l.RentalStatus = LineStatus(rentalStatus.String)
		l.ReturnCondition = returnCondition.String
		l.InspectionStatus = inspectionStatus.String

		if l.UnitPrice, err = domain.ParseDecimal(unitPrice); err != nil {
			return nil, err
		}
		if l.DiscountAmount, err = domain.ParseDecimal(discount); err != nil {
			return nil, err
		}
		if l.TaxAmount, err = domain.ParseDecimal(tax); err != nil {
			return nil, err
		}
		if l.LineTotal, err = domain.ParseDecimal(lineTotal); err != nil {
			return nil, err
		}
		if l.DailyRate, err = domain.ScanDecimal(dailyRate); err != nil {
			return nil, err
		}

		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
