package purchasing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// Service is the purchase and returns engine. Like the rental engine, every
// public operation runs in exactly one database transaction.
type Service struct {
	db       *sql.DB // rental.db
	ledger   *inventory.Ledger
	store    *transactions.Store
	journal  *journal.Journal
	catalog  *catalog.Repository
	cache    *cache.Store
	cfg      config.Engine
	location *time.Location
	log      zerolog.Logger
}

// NewService creates a new purchasing engine
func NewService(
	db *sql.DB,
	ledger *inventory.Ledger,
	store *transactions.Store,
	j *journal.Journal,
	cat *catalog.Repository,
	cacheStore *cache.Store,
	cfg config.Engine,
	location *time.Location,
	log zerolog.Logger,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		db:       db,
		ledger:   ledger,
		store:    store,
		journal:  j,
		catalog:  cat,
		cache:    cacheStore,
		cfg:      cfg,
		location: location,
		log:      log.With().Str("service", "purchasing").Logger(),
	}
}

// invalidateAvailability drops cached availability snapshots for a location
// after a stock-affecting mutation, same as the rental engine does.
func (s *Service) invalidateAvailability(ctx context.Context, locationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, cache.AvailabilityPrefix(locationID)); err != nil {
		s.log.Warn().Err(err).Str("location_id", locationID).
			Msg("Failed to invalidate availability cache")
	}
}

// CreatePurchase creates a purchase transaction. With auto_complete the
// received goods are materialized as inventory units and the stock counters
// credited in the same transaction; a materialization failure rolls the
// whole purchase back.
func (s *Service) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*PurchaseResult, error) {
	if err := req.Validate(s.location); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *PurchaseResult
	var evt *journal.Event

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		location, err := s.catalog.GetLocationTx(tx, req.LocationID)
		if err != nil {
			return err
		}
		if !location.IsActive {
			return domain.ValidationWithCode(domain.CodeInvalidParty,
				"location %s is inactive", req.LocationID)
		}

		items := make([]*domain.Item, len(req.Lines))
		subtotal := decimal.Zero
		for i, line := range req.Lines {
			item, err := s.catalog.GetItemTx(tx, line.ItemID)
			if err != nil {
				return err
			}
			items[i] = item
			subtotal = subtotal.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		total := subtotal.Add(req.ShippingAmount)

		status := transactions.StatusPending
		if req.AutoComplete {
			status = transactions.StatusCompleted
		}

		header := &transactions.Header{
			Type:            transactions.TypePurchase,
			Status:          status,
			SupplierID:      req.SupplierID,
			LocationID:      req.LocationID,
			TransactionDate: req.TransactionDate,
			Subtotal:        subtotal,
			ShippingAmount:  req.ShippingAmount,
			TotalAmount:     total,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
			CreatedBy:       req.Actor,
		}
		headerID, err := s.store.CreateHeaderTx(tx, header)
		if err != nil {
			return err
		}

		lines := make([]transactions.Line, len(req.Lines))
		for i, line := range req.Lines {
			lines[i] = transactions.Line{
				LineType:    "PURCHASE",
				ItemID:      line.ItemID,
				SKU:         items[i].SKU,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitCost,
				LineTotal:   line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))),
			}
		}
		if _, err := s.store.AppendLinesTx(tx, headerID, lines); err != nil {
			return err
		}

		materialized := 0
		if req.AutoComplete {
			batchCode := s.batchCode(req.ReferenceNumber, headerID, req.TransactionDate)
			for i, line := range req.Lines {
				unitCost := line.UnitCost
				mreq := inventory.MaterializeRequest{
					ItemID:      line.ItemID,
					LocationID:  req.LocationID,
					Quantity:    line.Quantity,
					Serials:     line.SerialNumbers,
					UnitCost:    &unitCost,
					SupplierRef: req.SupplierID,
				}
				if len(line.SerialNumbers) == 0 {
					mreq.BatchCode = batchCode
				}

				unitIDs, err := s.ledger.MaterializeUnitsTx(tx, mreq)
				if err != nil {
					return err
				}
				materialized += len(unitIDs)

				if _, err := s.ledger.AdjustStockTx(tx, line.ItemID, req.LocationID,
					inventory.StockDelta{OnHand: line.Quantity, Available: line.Quantity},
					inventory.MovementRef{
						Type:     inventory.MovementPurchaseReceipt,
						HeaderID: headerID,
						LineID:   lines[i].ID,
					}); err != nil {
					return err
				}
			}
		}

		evt, err = s.journal.AppendTx(tx, headerID, req.Actor,
			fmt.Sprintf("Purchase %s created", header.TransactionNumber),
			&journal.PurchaseCreatedData{
				SupplierID:        req.SupplierID,
				LocationID:        req.LocationID,
				LineCount:         len(req.Lines),
				TotalAmount:       total.String(),
				UnitsMaterialized: materialized,
			})
		if err != nil {
			return err
		}

		result = &PurchaseResult{
			TransactionID:     headerID,
			TransactionNumber: header.TransactionNumber,
			Status:            string(status),
			TotalAmount:       total,
			UnitsMaterialized: materialized,
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("purchase creation contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(evt)
	if result.UnitsMaterialized > 0 {
		s.invalidateAvailability(ctx, req.LocationID)
	}

	s.log.Info().
		Str("transaction_number", result.TransactionNumber).
		Str("supplier_id", req.SupplierID).
		Int("units_materialized", result.UnitsMaterialized).
		Msg("Purchase created")

	return result, nil
}

// batchCode tags non-serialized receipts: PO-{ref|id8}-{YYYYMMDD}.
func (s *Service) batchCode(reference string, headerID int64, wallDate string) string {
	ref := reference
	if ref == "" {
		ref = fmt.Sprintf("%08d", headerID)
	}
	return fmt.Sprintf("PO-%s-%s", ref, strings.ReplaceAll(wallDate, "-", ""))
}
