package purchasing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// CreatePurchaseReturn validates a return against the original purchase and
// its prior returns, prices it proportionally with negative amounts, applies
// the restocking fee where the reason warrants it, and creates the RETURN
// transaction with pending inspections. Auto-approval moves it straight to
// PROCESSING.
func (s *Service) CreatePurchaseReturn(ctx context.Context, req *CreateReturnRequest) (*ReturnResult, error) {
	if err := req.Validate(s.location); err != nil {
		return nil, err
	}

	returnDate, err := domain.ParseWallDate(req.TransactionDate, s.location)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *ReturnResult
	var evt, statusEvt *journal.Event
	var locationID string

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		original, err := s.store.GetHeaderTx(tx, req.OriginalPurchaseID)
		if err != nil {
			return err
		}
		if original.Type != transactions.TypePurchase {
			return domain.Validationf("transaction %s is not a purchase", original.TransactionNumber)
		}
		if original.Status == transactions.StatusCancelled {
			return domain.Conflictf(domain.CodeInvalidTransition,
				"purchase %s is cancelled", original.TransactionNumber)
		}

		purchaseDate, err := domain.ParseWallDate(original.TransactionDate, s.location)
		if err != nil {
			return domain.Integrityf("purchase %s carries invalid date %q",
				original.TransactionNumber, original.TransactionDate)
		}
		age := domain.DaysBetween(purchaseDate, returnDate)
		if age > s.cfg.ReturnPeriodDays && !req.Reason.BypassesReturnWindow() {
			return domain.Conflictf(domain.CodeReturnWindowExpired,
				"purchase %s is %d days old, outside the %d-day return window",
				original.TransactionNumber, age, s.cfg.ReturnPeriodDays)
		}

		originalLines, err := s.store.GetLinesTx(tx, req.OriginalPurchaseID)
		if err != nil {
			return err
		}
		lineByItem := make(map[string]*transactions.Line, len(originalLines))
		for i := range originalLines {
			lineByItem[originalLines[i].ItemID] = &originalLines[i]
		}

		returnedByItem, err := s.alreadyReturnedTx(tx, req.OriginalPurchaseID)
		if err != nil {
			return err
		}

		// Validate every request line before writing anything; all failures
		// are reported together.
		var details []domain.ErrorDetail
		for i, item := range req.Items {
			origLine, ok := lineByItem[item.ItemID]
			if !ok {
				details = append(details, domain.ErrorDetail{
					Field:   fmt.Sprintf("items[%d].item_id", i),
					Code:    string(domain.CodeExcessiveQuantity),
					Message: fmt.Sprintf("item %s is not on purchase %s", item.ItemID, original.TransactionNumber),
				})
				continue
			}
			available := origLine.Quantity - returnedByItem[item.ItemID]
			if item.Quantity > available {
				details = append(details, domain.ErrorDetail{
					Field: fmt.Sprintf("items[%d].quantity", i),
					Code:  string(domain.CodeExcessiveQuantity),
					Message: fmt.Sprintf("returning %d of item %s exceeds remaining quantity, available=%d",
						item.Quantity, item.ItemID, available),
				})
			}
		}
		if len(details) > 0 {
			return domain.Conflictf(domain.CodeExcessiveQuantity,
				"return quantities exceed what purchase %s can still accept",
				original.TransactionNumber).WithDetails(details...)
		}

		// Proportional amounts with negative sign: returns are negative
		// transactions.
		subtotal, discount, tax := decimal.Zero, decimal.Zero, decimal.Zero
		returnLines := make([]transactions.Line, len(req.Items))
		for i, item := range req.Items {
			origLine := lineByItem[item.ItemID]
			ratio := decimal.NewFromInt(int64(item.Quantity)).
				Div(decimal.NewFromInt(int64(origLine.Quantity)))

			lineSubtotal := origLine.LineTotal.Mul(ratio).Neg()
			lineDiscount := origLine.DiscountAmount.Mul(ratio).Neg()
			lineTax := origLine.TaxAmount.Mul(ratio).Neg()

			subtotal = subtotal.Add(lineSubtotal)
			discount = discount.Add(lineDiscount)
			tax = tax.Add(lineTax)

			returnLines[i] = transactions.Line{
				LineType:        "RETURN",
				ItemID:          item.ItemID,
				SKU:             origLine.SKU,
				Quantity:        -item.Quantity,
				UnitPrice:       origLine.UnitPrice,
				DiscountAmount:  lineDiscount,
				TaxAmount:       lineTax,
				LineTotal:       lineSubtotal,
				ReturnCondition: string(item.Condition),
			}
		}

		restockingFee := decimal.Zero
		if req.Reason.IncursRestockingFee() {
			restockingFee = domain.Percent(subtotal.Abs(), s.cfg.RestockingFeePercent)
		}
		total := subtotal.Add(tax).Add(restockingFee)

		header := &transactions.Header{
			Type:                   transactions.TypeReturn,
			Status:                 transactions.StatusPending,
			SupplierID:             original.SupplierID,
			LocationID:             original.LocationID,
			TransactionDate:        req.TransactionDate,
			Subtotal:               subtotal,
			DiscountAmount:         discount,
			TaxAmount:              tax,
			TotalAmount:            total,
			ReferenceTransactionID: req.OriginalPurchaseID,
			ReturnReason:           string(req.Reason),
			RMANumber:              req.RMANumber,
			Notes:                  req.Notes,
			CreatedBy:              req.Actor,
		}
		headerID, err := s.store.CreateHeaderTx(tx, header)
		if err != nil {
			return err
		}
		if _, err := s.store.AppendLinesTx(tx, headerID, returnLines); err != nil {
			return err
		}
		locationID = original.LocationID

		// The goods leave the sellable pool now; inspection decides what
		// flows back.
		pendingInspections := 0
		for i, item := range req.Items {
			if _, err := s.ledger.AdjustStockTx(tx, item.ItemID, original.LocationID,
				inventory.StockDelta{OnHand: -item.Quantity, Available: -item.Quantity},
				inventory.MovementRef{
					Type:     inventory.MovementPurchaseReturn,
					HeaderID: headerID,
					LineID:   returnLines[i].ID,
				}); err != nil {
				return err
			}

			// The unit pool follows the counters out: vendor-bound units must
			// not stay claimable by a rental. Manual adjustments can leave the
			// pool short of the counters, so retire what exists.
			if _, err := s.ledger.RetireUnitsTx(tx, item.ItemID, original.LocationID,
				item.Quantity, inventory.UnitAvailable); err != nil {
				return err
			}

			if item.Condition != "" {
				if _, err := s.store.CreateInspectionTx(tx, &transactions.Inspection{
					LineID:          returnLines[i].ID,
					ConditionRating: item.Condition,
					Status:          "PENDING",
					Quantity:        item.Quantity,
				}); err != nil {
					return err
				}
				pendingInspections++
			}
		}

		autoApproved := total.Abs().LessThanOrEqual(s.cfg.AutoApproveThreshold) ||
			req.Reason.BypassesReturnWindow()
		if autoApproved {
			statusEvt, err = s.store.TransitionStatusTx(tx, headerID,
				transactions.StatusProcessing, "auto-approval", req.Actor)
			if err != nil {
				return err
			}
			header.Status = transactions.StatusProcessing
		}

		evt, err = s.journal.AppendTx(tx, headerID, req.Actor,
			fmt.Sprintf("Purchase return %s created against %s",
				header.TransactionNumber, original.TransactionNumber),
			&journal.PurchaseReturnCreatedData{
				OriginalPurchaseID: req.OriginalPurchaseID,
				Reason:             string(req.Reason),
				RMANumber:          req.RMANumber,
				TotalAmount:        total.String(),
				RestockingFee:      restockingFee.String(),
				AutoApproved:       autoApproved,
			})
		if err != nil {
			return err
		}

		result = &ReturnResult{
			TransactionID:     headerID,
			TransactionNumber: header.TransactionNumber,
			Status:            string(header.Status),
			TotalAmount:       total,
			RestockingFee:     restockingFee,
			AutoApproved:      autoApproved,
			PendingInspection: pendingInspections,
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("purchase return contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(statusEvt)
	s.journal.Announce(evt)
	s.invalidateAvailability(ctx, locationID)

	s.log.Info().
		Str("transaction_number", result.TransactionNumber).
		Int64("original_purchase_id", req.OriginalPurchaseID).
		Str("reason", string(req.Reason)).
		Bool("auto_approved", result.AutoApproved).
		Msg("Purchase return created")

	return result, nil
}

// alreadyReturnedTx sums per-item returned quantity across all non-cancelled
// RETURN transactions referencing the original. Line quantities on returns
// are negative; the map carries positive counts.
func (s *Service) alreadyReturnedTx(tx *sql.Tx, originalID int64) (map[string]int, error) {
	priorReturns, err := s.store.ListReturnsReferencingTx(tx, originalID)
	if err != nil {
		return nil, err
	}

	returned := make(map[string]int)
	for _, ret := range priorReturns {
		if ret.Status == transactions.StatusCancelled {
			continue
		}
		lines, err := s.store.GetLinesTx(tx, ret.ID)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			returned[line.ItemID] += -line.Quantity
		}
	}
	return returned, nil
}
