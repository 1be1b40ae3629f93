package purchasing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// IssueVendorCredit settles an approved purchase return: the credit note is
// recorded, paid_amount goes negative to signal the outgoing credit,
// payment_status becomes REFUNDED and the return completes. Requires
// PROCESSING status and no pending inspections.
func (s *Service) IssueVendorCredit(ctx context.Context, req *CreditRequest) (*CreditResult, error) {
	if req.ReturnID == 0 {
		return nil, domain.Validationf("return_id is required")
	}
	if req.CreditNoteNumber == "" {
		return nil, domain.Validationf("credit_note_number is required")
	}
	if req.CreditAmount.IsNegative() {
		return nil, domain.Validationf("credit_amount must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *CreditResult
	var evt, statusEvt *journal.Event

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		header, err := s.store.GetHeaderTx(tx, req.ReturnID)
		if err != nil {
			return err
		}
		if header.Type != transactions.TypeReturn {
			return domain.Validationf("transaction %s is not a return", header.TransactionNumber)
		}
		if header.Status != transactions.StatusProcessing {
			return domain.Conflictf(domain.CodeInvalidTransition,
				"return %s is %s; vendor credit requires PROCESSING",
				header.TransactionNumber, header.Status)
		}

		pending, err := s.store.CountPendingInspectionsTx(tx, req.ReturnID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return domain.Conflictf(domain.CodeInvalidTransition,
				"return %s has %d pending inspections", header.TransactionNumber, pending)
		}

		credit := req.CreditAmount
		if credit.IsZero() {
			credit = header.TotalAmount.Abs()
		}

		if err := s.store.SetCreditNoteTx(tx, req.ReturnID, req.CreditNoteNumber, credit); err != nil {
			return err
		}

		statusEvt, err = s.store.TransitionStatusTx(tx, req.ReturnID,
			transactions.StatusCompleted, "vendor credit issued", req.Actor)
		if err != nil {
			return err
		}

		evt, err = s.journal.AppendTx(tx, req.ReturnID, req.Actor,
			fmt.Sprintf("Vendor credit %s issued for return %s",
				req.CreditNoteNumber, header.TransactionNumber),
			&journal.VendorCreditProcessedData{
				CreditNoteNumber: req.CreditNoteNumber,
				CreditAmount:     credit.String(),
			})
		if err != nil {
			return err
		}

		result = &CreditResult{
			TransactionID:    req.ReturnID,
			CreditNoteNumber: req.CreditNoteNumber,
			CreditAmount:     credit,
			Status:           string(transactions.StatusCompleted),
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("vendor credit contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(statusEvt)
	s.journal.Announce(evt)

	s.log.Info().
		Int64("return_id", req.ReturnID).
		Str("credit_note", req.CreditNoteNumber).
		Str("amount", result.CreditAmount.String()).
		Msg("Vendor credit issued")

	return result, nil
}

// CompleteInspection finishes a pending return inspection. Goods rated at or
// above the configured minimum flow back into stock: available for rentable
// condition, the damaged pool otherwise. Everything below the minimum stays
// segregated for vendor ship-back.
func (s *Service) CompleteInspection(ctx context.Context, req *InspectionRequest) (*InspectionResult, error) {
	if req.InspectionID == 0 {
		return nil, domain.Validationf("inspection_id is required")
	}
	if !req.ConditionRating.Valid() {
		return nil, domain.Validationf("condition_rating must be one of A, B, C, D, F")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *InspectionResult
	var evt *journal.Event
	var locationID string

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		inspection, err := s.store.GetInspectionTx(tx, req.InspectionID)
		if err != nil {
			return err
		}

		line, err := s.store.GetLineTx(tx, inspection.LineID)
		if err != nil {
			return err
		}
		header, err := s.store.GetHeaderTx(tx, line.HeaderID)
		if err != nil {
			return err
		}
		locationID = header.LocationID

		returnToStock := req.ConditionRating.AtLeast(
			domain.ConditionRating(s.cfg.MinConditionForCredit))

		disposition := domain.DispositionReturnToVendor
		if returnToStock {
			disposition = domain.DispositionReturnToStock
		}

		if err := s.store.CompleteInspectionTx(tx, req.InspectionID,
			req.ConditionRating, disposition, returnToStock, req.Notes); err != nil {
			return err
		}

		restocked := 0
		if returnToStock {
			delta := inventory.StockDelta{OnHand: inspection.Quantity, Available: inspection.Quantity}
			unitStatus := inventory.UnitAvailable
			if !req.ConditionRating.Rentable() {
				delta = inventory.StockDelta{OnHand: inspection.Quantity, Damaged: inspection.Quantity}
				unitStatus = inventory.UnitDamaged
			}
			if _, err := s.ledger.AdjustStockTx(tx, line.ItemID, header.LocationID,
				delta, inventory.MovementRef{
					Type:     inventory.MovementAdjustment,
					HeaderID: header.ID,
					LineID:   line.ID,
				}); err != nil {
				return err
			}
			// Bring the retired units back alongside the counters.
			if _, err := s.ledger.ReinstateUnitsTx(tx, line.ItemID, header.LocationID,
				inspection.Quantity, unitStatus); err != nil {
				return err
			}
			restocked = inspection.Quantity
		}

		evt, err = s.journal.AppendTx(tx, header.ID, req.Actor,
			fmt.Sprintf("Inspection %d completed for return %s",
				req.InspectionID, header.TransactionNumber),
			&journal.InspectionCompletedData{
				LineID:            line.ID,
				Rating:            string(req.ConditionRating),
				Disposition:       string(disposition),
				ReturnToStock:     returnToStock,
				QuantityRestocked: restocked,
			})
		if err != nil {
			return err
		}

		result = &InspectionResult{
			InspectionID:      req.InspectionID,
			ConditionRating:   string(req.ConditionRating),
			Disposition:       string(disposition),
			ReturnToStock:     returnToStock,
			QuantityRestocked: restocked,
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("inspection completion contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(evt)
	if result.QuantityRestocked > 0 {
		s.invalidateAvailability(ctx, locationID)
	}
	return result, nil
}
