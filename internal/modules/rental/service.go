package rental

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/customers"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// Service is the rental engine. Every public operation runs in exactly one
// database transaction; stock, persistence and journal writes compose through
// the Tx-scoped methods of the underlying services so partial success is
// never observable.
type Service struct {
	db        *sql.DB // rental.db
	ledger    *inventory.Ledger
	store     *transactions.Store
	journal   *journal.Journal
	catalog   *catalog.Repository
	customers *customers.Repository
	cache     *cache.Store
	cfg       config.Engine
	location  *time.Location
	group     singleflight.Group
	log       zerolog.Logger
}

// NewService creates a new rental engine
func NewService(
	db *sql.DB,
	ledger *inventory.Ledger,
	store *transactions.Store,
	j *journal.Journal,
	cat *catalog.Repository,
	cust *customers.Repository,
	cacheStore *cache.Store,
	cfg config.Engine,
	location *time.Location,
	log zerolog.Logger,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		db:        db,
		ledger:    ledger,
		store:     store,
		journal:   j,
		catalog:   cat,
		customers: cust,
		cache:     cacheStore,
		cfg:       cfg,
		location:  location,
		log:       log.With().Str("service", "rental").Logger(),
	}
}

// pricedLine pairs a request line with its resolved item and pricing.
type pricedLine struct {
	req   CreateItemRequest
	item  *domain.Item
	price linePrice
}

// CreateRental creates a rental transaction: validation, availability and
// conflict checks, pricing, persistence, stock deduction, unit reservation
// and the creation event, all in one transaction.
func (s *Service) CreateRental(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if err := req.Validate(s.location); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *CreateResult
	var evt *journal.Event

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.checkParties(tx, req.CustomerID, req.LocationID); err != nil {
			return err
		}

		priced, err := s.resolveAndPrice(tx, req)
		if err != nil {
			return err
		}

		for _, pl := range priced {
			if err := s.checkAvailabilityTx(tx, pl.item.ID, req.LocationID,
				pl.req.Quantity, pl.req.RentalStartDate, pl.req.RentalEndDate, 0); err != nil {
				return err
			}
		}

		subtotal, discount, tax, deposit := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		for _, pl := range priced {
			subtotal = subtotal.Add(pl.price.LineTotal)
			discount = discount.Add(pl.price.Discount)
			tax = tax.Add(pl.price.Tax)
			deposit = deposit.Add(depositFor(pl.item, s.cfg.SecurityDepositPct).
				Mul(decimal.NewFromInt(int64(pl.req.Quantity))))
		}
		if req.DepositAmount.IsPositive() {
			deposit = req.DepositAmount
		}
		total := subtotal.Add(tax)

		header := &transactions.Header{
			Type:             transactions.TypeRental,
			Status:           transactions.StatusPending,
			CustomerID:       req.CustomerID,
			LocationID:       req.LocationID,
			TransactionDate:  req.TransactionDate,
			Subtotal:         subtotal,
			DiscountAmount:   discount,
			TaxAmount:        tax,
			TotalAmount:      total,
			DepositAmount:    deposit,
			PaymentMethod:    req.PaymentMethod,
			ReferenceNumber:  req.ReferenceNumber,
			DeliveryRequired: req.DeliveryRequired,
			DeliveryAddress:  req.DeliveryAddress,
			DeliveryDate:     req.DeliveryDate,
			PickupRequired:   req.PickupRequired,
			PickupDate:       req.PickupDate,
			CreatedBy:        req.Actor,
		}
		headerID, err := s.store.CreateHeaderTx(tx, header)
		if err != nil {
			return err
		}

		lines := make([]transactions.Line, len(priced))
		for i, pl := range priced {
			unit := domain.PeriodUnitFromRequest(pl.req.RentalPeriodType)
			lines[i] = transactions.Line{
				LineType:         "RENTAL",
				ItemID:           pl.item.ID,
				SKU:              pl.item.SKU,
				Description:      pl.req.Notes,
				Quantity:         pl.req.Quantity,
				UnitPrice:        pl.price.DailyRate,
				DiscountAmount:   pl.price.Discount,
				TaxAmount:        pl.price.Tax,
				LineTotal:        pl.price.LineTotal,
				RentalStartDate:  pl.req.RentalStartDate,
				RentalEndDate:    pl.req.RentalEndDate,
				RentalPeriod:     pl.price.Periods,
				RentalPeriodUnit: string(unit),
				RentalStatus:     transactions.LinePending,
				DailyRate:        pl.price.DailyRate,
			}
		}
		if _, err := s.store.AppendLinesTx(tx, headerID, lines); err != nil {
			return err
		}

		linePayloads := make([]journal.RentalLinePayload, len(priced))
		for i, pl := range priced {
			line := lines[i]

			if _, err := s.ledger.AdjustStockTx(tx, pl.item.ID, req.LocationID,
				inventory.StockDelta{Available: -pl.req.Quantity, OnRent: pl.req.Quantity},
				inventory.MovementRef{
					Type:     inventory.MovementRentalOut,
					HeaderID: headerID,
					LineID:   line.ID,
				}); err != nil {
				return err
			}

			var unitIDs []string
			if pl.item.RequiresSerialNumber {
				if len(pl.req.SerialNumbers) > 0 {
					unitIDs, err = s.ledger.ReserveSerialsTx(tx, pl.item.ID, req.LocationID,
						pl.req.SerialNumbers, line.ID)
				} else {
					unitIDs, err = s.ledger.ReserveUnitsTx(tx, pl.item.ID, req.LocationID,
						pl.req.Quantity, line.ID)
				}
				if err != nil {
					return err
				}
			}

			linePayloads[i] = journal.RentalLinePayload{
				LineNumber: line.LineNumber,
				ItemID:     pl.item.ID,
				SKU:        pl.item.SKU,
				Quantity:   pl.req.Quantity,
				StartDate:  pl.req.RentalStartDate,
				EndDate:    pl.req.RentalEndDate,
				DailyRate:  pl.price.DailyRate.String(),
				LineTotal:  pl.price.LineTotal.String(),
				UnitIDs:    unitIDs,
			}
		}

		lifecycle := &transactions.RentalLifecycle{
			HeaderID:           headerID,
			ExpectedPickupDate: earliestStart(req.Items),
			ExpectedReturnDate: latestEnd(req.Items),
		}
		if _, err := s.store.CreateLifecycleTx(tx, lifecycle); err != nil {
			return err
		}

		evt, err = s.journal.AppendTx(tx, headerID, req.Actor,
			fmt.Sprintf("Rental %s created", header.TransactionNumber),
			&journal.RentalCreatedData{
				CustomerID:    req.CustomerID,
				LocationID:    req.LocationID,
				Lines:         linePayloads,
				Subtotal:      subtotal.String(),
				TaxAmount:     tax.String(),
				TotalAmount:   total.String(),
				DepositAmount: deposit.String(),
			})
		if err != nil {
			return err
		}

		result = &CreateResult{
			TransactionID:     headerID,
			TransactionNumber: header.TransactionNumber,
			Status:            string(header.Status),
			Subtotal:          subtotal,
			TaxAmount:         tax,
			TotalAmount:       total,
			DepositAmount:     deposit,
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("rental creation contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(evt)
	s.invalidateAvailability(ctx, req.LocationID)

	s.log.Info().
		Str("transaction_number", result.TransactionNumber).
		Str("customer_id", req.CustomerID).
		Int("lines", len(req.Items)).
		Msg("Rental created")

	return result, nil
}

// checkParties validates the customer and location gate.
func (s *Service) checkParties(tx *sql.Tx, customerID, locationID string) error {
	customer, err := s.customers.GetTx(tx, customerID)
	if err != nil {
		return err
	}
	if customer.Status != domain.CustomerActive {
		return domain.ValidationWithCode(domain.CodeInvalidParty,
			"customer %s is %s", customerID, customer.Status)
	}

	location, err := s.catalog.GetLocationTx(tx, locationID)
	if err != nil {
		return err
	}
	if !location.IsActive {
		return domain.ValidationWithCode(domain.CodeInvalidParty,
			"location %s is inactive", locationID)
	}
	return nil
}

// resolveAndPrice loads each requested item, verifies rentability and prices
// the lines.
func (s *Service) resolveAndPrice(tx *sql.Tx, req *CreateRequest) ([]pricedLine, error) {
	priced := make([]pricedLine, 0, len(req.Items))
	for i, itemReq := range req.Items {
		item, err := s.catalog.GetItemTx(tx, itemReq.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.IsRentable {
			return nil, domain.Validationf("items[%d]: item %s (%s) is not rentable", i, item.SKU, item.ID)
		}

		start, err := domain.ParseWallDate(itemReq.RentalStartDate, s.location)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseWallDate(itemReq.RentalEndDate, s.location)
		if err != nil {
			return nil, err
		}
		days := domain.DaysBetween(start, end)

		priced = append(priced, pricedLine{
			req:   itemReq,
			item:  item,
			price: priceLine(item, itemReq, days, s.cfg.DefaultTaxRatePct),
		})
	}
	return priced, nil
}

// checkAvailabilityTx enforces both gates for one line: counter headroom at
// the location, and window-overlap commitment against the physical inventory
// count. excludeHeaderID omits a header from the overlap scan (used by
// extensions re-checking their own rental).
func (s *Service) checkAvailabilityTx(tx *sql.Tx, itemID, locationID string, quantity int, startDate, endDate string, excludeHeaderID int64) error {
	level, err := s.ledger.EnsureStockLevelTx(tx, itemID, locationID)
	if err != nil {
		return err
	}
	if level.QuantityAvailable < quantity {
		return domain.Conflictf(domain.CodeInsufficientStock,
			"item %s has %d available at location %s, requested %d",
			itemID, level.QuantityAvailable, locationID, quantity)
	}

	committed, err := s.overlappingCommitmentTx(tx, itemID, locationID, startDate, endDate, excludeHeaderID)
	if err != nil {
		return err
	}
	if committed+quantity > level.QuantityOnHand {
		return domain.Conflictf(domain.CodeOverbooked,
			"item %s is overbooked for %s..%s: %d committed of %d on hand, requested %d",
			itemID, startDate, endDate, committed, level.QuantityOnHand, quantity)
	}
	return nil
}

// overlappingCommitmentTx sums outstanding quantity across active rental
// lines whose window intersects [startDate, endDate].
func (s *Service) overlappingCommitmentTx(tx *sql.Tx, itemID, locationID, startDate, endDate string, excludeHeaderID int64) (int, error) {
	var committed int
	err := tx.QueryRow(`
		SELECT COALESCE(SUM(l.quantity - l.returned_quantity), 0)
		FROM transaction_lines l
		JOIN transaction_headers h ON h.id = l.transaction_header_id
		WHERE l.item_id = ?
		AND h.location_id = ?
		AND h.transaction_type = 'RENTAL'
		AND h.status NOT IN ('COMPLETED', 'CANCELLED')
		AND (l.current_rental_status IS NULL OR l.current_rental_status != 'RENTAL_COMPLETED')
		AND l.rental_start_date <= ?
		AND l.rental_end_date >= ?
		AND h.id != ?
	`, itemID, locationID, endDate, startDate, excludeHeaderID).Scan(&committed)
	if err != nil {
		return 0, fmt.Errorf("failed to scan overlapping rentals: %w", err)
	}
	return committed, nil
}

// Pickup transitions a rental from PENDING to IN_PROGRESS, marks every line
// in progress and stamps the actual pickup date. Idempotent: a second call
// on the same header is a no-op.
func (s *Service) Pickup(ctx context.Context, rentalID int64, pickupDate, actor string) error {
	if pickupDate == "" {
		pickupDate = domain.FormatWallDate(time.Now().In(s.location))
	} else if _, err := domain.ParseWallDate(pickupDate, s.location); err != nil {
		return domain.Validationf("invalid pickup date: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var evt *journal.Event
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		header, err := s.store.GetHeaderTx(tx, rentalID)
		if err != nil {
			return err
		}
		if header.Type != transactions.TypeRental {
			return domain.Validationf("transaction %s is not a rental", header.TransactionNumber)
		}
		if header.Status != transactions.StatusPending {
			// Already picked up (or beyond): no-op.
			return nil
		}

		if err := s.store.SetStatusTx(tx, rentalID, transactions.StatusInProgress); err != nil {
			return err
		}

		lines, err := s.store.GetLinesTx(tx, rentalID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := s.store.SetLineStatusTx(tx, line.ID, transactions.LineInProgress); err != nil {
				return err
			}
		}

		if _, err := s.store.RecordPickupTx(tx, rentalID, pickupDate); err != nil {
			return err
		}

		evt, err = s.journal.AppendTx(tx, rentalID, actor,
			fmt.Sprintf("Rental %s picked up", header.TransactionNumber),
			&journal.RentalPickupData{PickupDate: pickupDate})
		return err
	})
	if err != nil {
		if database.IsBusy(err) {
			return domain.Transientf("pickup contended, retry").WithCause(err)
		}
		return err
	}

	s.journal.Announce(evt)
	return nil
}

func earliestStart(items []CreateItemRequest) string {
	earliest := ""
	for _, item := range items {
		if earliest == "" || item.RentalStartDate < earliest {
			earliest = item.RentalStartDate
		}
	}
	return earliest
}

func latestEnd(items []CreateItemRequest) string {
	latest := ""
	for _, item := range items {
		if item.RentalEndDate > latest {
			latest = item.RentalEndDate
		}
	}
	return latest
}

// invalidateAvailability drops cached availability snapshots for a location
// after any stock-affecting mutation.
func (s *Service) invalidateAvailability(ctx context.Context, locationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, cache.AvailabilityPrefix(locationID)); err != nil {
		s.log.Warn().Err(err).Str("location_id", locationID).
			Msg("Failed to invalidate availability cache")
	}
}
