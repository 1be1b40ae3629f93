// Package customers provides customer reference data and the rental
// eligibility check.
package customers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// Repository provides access to customers.
type Repository struct {
	db  *sql.DB // rental.db
	log zerolog.Logger
}

// NewRepository creates a new customer repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "customers").Logger(),
	}
}

// Get loads a customer by id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, customerQuery, id)
	return scanCustomerRow(row, id)
}

// GetTx loads a customer inside the caller's transaction.
func (r *Repository) GetTx(tx *sql.Tx, id string) (*domain.Customer, error) {
	row := tx.QueryRow(customerQuery, id)
	return scanCustomerRow(row, id)
}

const customerQuery = `
	SELECT id, name, email, phone, status, blacklist_reason, created_at, updated_at
	FROM customers WHERE id = ?
`

// Create inserts a new customer.
func (r *Repository) Create(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Name == "" {
		return domain.Validationf("customer name is required")
	}
	if c.Status == "" {
		c.Status = domain.CustomerActive
	}

	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, status, blacklist_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, nullableString(c.Email), nullableString(c.Phone),
		string(c.Status), nullableString(c.BlacklistReason), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	c.CreatedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// List returns all customers ordered by name.
func (r *Repository) List(ctx context.Context) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, phone, status, blacklist_reason, created_at, updated_at
		FROM customers ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// SetStatus updates a customer's account status.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.CustomerStatus, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET status = ?, blacklist_reason = ?, updated_at = ?
		WHERE id = ?
	`, string(status), nullableString(reason), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update customer status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check customer update: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("customer %s not found", id)
	}
	return nil
}

// Eligibility is the result of a rental eligibility check: the decision plus
// the account context it was based on.
type Eligibility struct {
	Eligible           bool                  `json:"eligible"`
	Status             domain.CustomerStatus `json:"status"`
	Reason             string                `json:"reason,omitempty"`
	OpenRentals        int                   `json:"open_rentals"`
	OutstandingBalance decimal.Decimal       `json:"outstanding_balance"`
}

// CheckEligibility reports whether a customer may open a new rental, with
// the open-rental count and outstanding balance across their transactions.
func (r *Repository) CheckEligibility(ctx context.Context, id string) (*Eligibility, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &Eligibility{Status: c.Status}

	switch c.Status {
	case domain.CustomerBlacklisted:
		result.Reason = "customer is blacklisted"
		if c.BlacklistReason != "" {
			result.Reason = fmt.Sprintf("customer is blacklisted: %s", c.BlacklistReason)
		}
	case domain.CustomerInactive:
		result.Reason = "customer account is inactive"
	default:
		result.Eligible = true
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transaction_headers
		WHERE customer_id = ? AND transaction_type = 'RENTAL'
		AND status NOT IN ('COMPLETED', 'CANCELLED')
	`, id).Scan(&result.OpenRentals)
	if err != nil {
		return nil, fmt.Errorf("failed to count open rentals: %w", err)
	}

	var balance sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CAST(total_amount AS REAL) - CAST(paid_amount AS REAL)), 0)
		FROM transaction_headers
		WHERE customer_id = ? AND status NOT IN ('CANCELLED')
	`, id).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding balance: %w", err)
	}
	if result.OutstandingBalance, err = domain.ScanDecimal(balance); err != nil {
		return nil, err
	}

	return result, nil
}

func scanCustomerRow(row *sql.Row, id string) (*domain.Customer, error) {
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("customer %s not found", id)
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var email, phone, blacklistReason sql.NullString
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(&c.ID, &c.Name, &email, &phone, &status, &blacklistReason,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	c.Email = email.String
	c.Phone = phone.String
	c.Status = domain.CustomerStatus(status)
	c.BlacklistReason = blacklistReason.String
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &c, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
