// Package catalog provides the item and location reference data consumed by
// the rental and purchasing engines.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

// Repository provides access to items, rate tiers and locations.
type Repository struct {
	db  *sql.DB // rental.db
	log zerolog.Logger
}

// NewRepository creates a new catalog repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "catalog").Logger(),
	}
}

const itemColumns = `id, sku, name, description, category_id, brand_id, uom_id,
	is_rentable, is_sellable, requires_serial_number, base_rate, rate_period_unit,
	security_deposit, item_value, created_at, updated_at`

type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// GetItem loads an item with its rate tiers.
func (r *Repository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return r.getItem(queryAdapter{db: r.db, ctx: ctx}, id)
}

// GetItemTx loads an item with its rate tiers inside the caller's
// transaction.
func (r *Repository) GetItemTx(tx *sql.Tx, id string) (*domain.Item, error) {
	return r.getItem(tx, id)
}

func (r *Repository) getItem(q querier, id string) (*domain.Item, error) {
	row := q.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("item %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(`
		SELECT id, item_id, min_days, rate FROM item_rate_tiers
		WHERE item_id = ? ORDER BY min_days
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier domain.RateTier
		var rate string
		if err := rows.Scan(&tier.ID, &tier.ItemID, &tier.MinDays, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate tier: %w", err)
		}
		if tier.Rate, err = domain.ParseDecimal(rate); err != nil {
			return nil, err
		}
		item.RateTiers = append(item.RateTiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return item, nil
}

// GetItemBySKU loads an item by its SKU, without rate tiers.
func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE sku = ?`, sku)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("item with SKU %s not found", sku)
	}
	return item, err
}

// CreateItem inserts a new catalog item.
func (r *Repository) CreateItem(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.SKU == "" || item.Name == "" {
		return domain.Validationf("sku and name are required")
	}
	if item.RatePeriodUnit == "" {
		item.RatePeriodUnit = domain.PeriodDay
	}

	var deposit interface{}
	if item.SecurityDeposit != nil {
		deposit = item.SecurityDeposit.String()
	}

	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, sku, name, description, category_id, brand_id, uom_id,
			is_rentable, is_sellable, requires_serial_number, base_rate, rate_period_unit,
			security_deposit, item_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.SKU, item.Name, nullableString(item.Description),
		nullableString(item.CategoryID), nullableString(item.BrandID), nullableString(item.UOMID),
		boolToInt(item.IsRentable), boolToInt(item.IsSellable), boolToInt(item.RequiresSerialNumber),
		item.BaseRate.String(), string(item.RatePeriodUnit), deposit, item.ItemValue.String(),
		now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	item.CreatedAt = now.UTC()
	item.UpdatedAt = now.UTC()
	return nil
}

// AddRateTier attaches a duration-tiered rate to an item.
func (r *Repository) AddRateTier(ctx context.Context, tier *domain.RateTier) error {
	if tier.MinDays < 1 {
		return domain.Validationf("min_days must be at least 1")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO item_rate_tiers (item_id, min_days, rate) VALUES (?, ?, ?)
	`, tier.ItemID, tier.MinDays, tier.Rate.String())
	if err != nil {
		return fmt.Errorf("failed to add rate tier: %w", err)
	}
	tier.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rate tier id: %w", err)
	}
	return nil
}

// ListItems returns all catalog items, without tiers.
func (r *Repository) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetLocation loads a location by id.
func (r *Repository) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, is_active, created_at, updated_at
		FROM locations WHERE id = ?
	`, id)
	return scanLocationRow(row, id)
}

// GetLocationTx loads a location inside the caller's transaction.
func (r *Repository) GetLocationTx(tx *sql.Tx, id string) (*domain.Location, error) {
	row := tx.QueryRow(`
		SELECT id, code, name, is_active, created_at, updated_at
		FROM locations WHERE id = ?
	`, id)
	return scanLocationRow(row, id)
}

// CreateLocation inserts a stocking site.
func (r *Repository) CreateLocation(ctx context.Context, loc *domain.Location) error {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}
	if loc.Code == "" || loc.Name == "" {
		return domain.Validationf("code and name are required")
	}

	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (id, code, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, loc.ID, loc.Code, loc.Name, boolToInt(loc.IsActive), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}

	loc.CreatedAt = now.UTC()
	loc.UpdatedAt = now.UTC()
	return nil
}

// ListLocations returns all locations.
func (r *Repository) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, is_active, created_at, updated_at
		FROM locations ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []domain.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	return locations, rows.Err()
}

// queryAdapter lets context-scoped reads share the tx-scoped query helpers.
type queryAdapter struct {
	db  *sql.DB
	ctx context.Context
}

func (q queryAdapter) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return q.db.QueryContext(q.ctx, query, args...)
}

func (q queryAdapter) QueryRow(query string, args ...interface{}) *sql.Row {
	return q.db.QueryRowContext(q.ctx, query, args...)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var description, categoryID, brandID, uomID sql.NullString
	var baseRate, itemValue string
	var securityDeposit sql.NullString
	var periodUnit string
	var isRentable, isSellable, requiresSerial int
	var createdAt, updatedAt int64

	err := row.Scan(&item.ID, &item.SKU, &item.Name, &description,
		&categoryID, &brandID, &uomID,
		&isRentable, &isSellable, &requiresSerial, &baseRate, &periodUnit,
		&securityDeposit, &itemValue, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Description = description.String
	item.CategoryID = categoryID.String
	item.BrandID = brandID.String
	item.UOMID = uomID.String
	item.IsRentable = isRentable != 0
	item.IsSellable = isSellable != 0
	item.RequiresSerialNumber = requiresSerial != 0
	item.RatePeriodUnit = domain.PeriodUnit(periodUnit)
	item.CreatedAt = time.Unix(createdAt, 0).UTC()
	item.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if item.BaseRate, err = domain.ParseDecimal(baseRate); err != nil {
		return nil, err
	}
	if item.ItemValue, err = domain.ParseDecimal(itemValue); err != nil {
		return nil, err
	}
	if item.SecurityDeposit, err = domain.ScanDecimalPtr(securityDeposit); err != nil {
		return nil, err
	}

	return &item, nil
}

func scanLocationRow(row *sql.Row, id string) (*domain.Location, error) {
	loc, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundf("location %s not found", id)
	}
	return loc, err
}

func scanLocation(row rowScanner) (*domain.Location, error) {
	var loc domain.Location
	var isActive int
	var createdAt, updatedAt int64

	err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &isActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan location: %w", err)
	}

	loc.IsActive = isActive != 0
	loc.CreatedAt = time.Unix(createdAt, 0).UTC()
	loc.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &loc, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
