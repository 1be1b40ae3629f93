package rental

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// returnableStatuses are the header states that accept a return.
var returnableStatuses = map[transactions.Status]bool{
	transactions.StatusInProgress:              true,
	transactions.StatusRentalLate:              true,
	transactions.StatusRentalExtended:          true,
	transactions.StatusRentalPartialReturn:     true,
	transactions.StatusRentalLatePartialReturn: true,
}

// ProcessReturn processes a rental return: quantity validation, inspections,
// late fees, damage charges, deposit settlement, stock restoration and unit
// release, in one transaction.
func (s *Service) ProcessReturn(ctx context.Context, req *ReturnRequest) (*ReturnResult, error) {
	if err := req.Validate(s.location); err != nil {
		return nil, err
	}

	returnDate, err := domain.ParseWallDate(req.ReturnDate, s.location)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *ReturnResult
	var evt, statusEvt *journal.Event
	var locationID string

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		header, err := s.store.GetHeaderTx(tx, req.RentalID)
		if err != nil {
			return err
		}
		if header.Type != transactions.TypeRental {
			return domain.Validationf("transaction %s is not a rental", header.TransactionNumber)
		}
		if !returnableStatuses[header.Status] {
			return domain.Conflictf(domain.CodeInvalidTransition,
				"rental %s in status %s does not accept returns", header.TransactionNumber, header.Status)
		}
		locationID = header.LocationID

		lines, err := s.store.GetLinesTx(tx, req.RentalID)
		if err != nil {
			return err
		}
		lineByID := make(map[int64]*transactions.Line, len(lines))
		for i := range lines {
			lineByID[lines[i].ID] = &lines[i]
		}

		// Validate all quantities up front, collecting every failing line.
		var details []domain.ErrorDetail
		for _, item := range req.Items {
			line, ok := lineByID[item.LineID]
			if !ok {
				return domain.NotFoundf("line %d does not belong to rental %s",
					item.LineID, header.TransactionNumber)
			}
			if item.QuantityReturned+line.ReturnedQuantity > line.Quantity {
				details = append(details, domain.ErrorDetail{
					Field: fmt.Sprintf("items[line_id=%d].quantity_returned", item.LineID),
					Code:  string(domain.CodeExcessiveReturnQuantity),
					Message: fmt.Sprintf("returning %d with %d already returned exceeds quantity %d",
						item.QuantityReturned, line.ReturnedQuantity, line.Quantity),
				})
			}
		}
		if len(details) > 0 {
			return domain.Conflictf(domain.CodeExcessiveReturnQuantity,
				"return quantities exceed outstanding quantities on rental %s",
				header.TransactionNumber).WithDetails(details...)
		}

		totalLateFees := decimal.Zero
		totalDamage := decimal.Zero
		returnPayloads := make([]journal.ReturnLinePayload, 0, len(req.Items))

		now := time.Now()
		for _, item := range req.Items {
			line := lineByID[item.LineID]

			late := s.lineIsLate(line, returnDate)
			if late {
				totalLateFees = totalLateFees.Add(s.lateFee(line, returnDate, item.QuantityReturned))
			}
			totalDamage = totalDamage.Add(item.RepairCostEstimate)

			disposition := domain.DispositionReturnToStock
			if !item.ConditionRating.Rentable() {
				disposition = domain.DispositionSendToRepair
				if item.ConditionRating == domain.ConditionF {
					disposition = domain.DispositionWriteOff
				}
			}

			inspection := &transactions.Inspection{
				LineID:             line.ID,
				ConditionRating:    item.ConditionRating,
				DamageDescription:  item.DamageDescription,
				RepairCostEstimate: item.RepairCostEstimate,
				Disposition:        disposition,
				ReturnToStock:      item.ConditionRating.Rentable(),
				Status:             "COMPLETED",
				Quantity:           item.QuantityReturned,
				PhotoRefs:          item.PhotoRefs,
				Notes:              req.InspectorNotes,
				InspectedAt:        &now,
			}
			if _, err := s.store.CreateInspectionTx(tx, inspection); err != nil {
				return err
			}

			line.ReturnedQuantity += item.QuantityReturned
			nextStatus := nextLineStatus(line, late)
			if err := s.store.ApplyLineReturnTx(tx, line.ID, item.QuantityReturned,
				item.ConditionRating, nextStatus); err != nil {
				return err
			}
			line.RentalStatus = nextStatus

			goodQty, damagedQty := item.QuantityReturned, 0
			if !item.ConditionRating.Rentable() {
				goodQty, damagedQty = 0, item.QuantityReturned
			}
			if _, err := s.ledger.AdjustStockTx(tx, line.ItemID, header.LocationID,
				inventory.StockDelta{
					OnRent:    -item.QuantityReturned,
					Available: goodQty,
					Damaged:   damagedQty,
				},
				inventory.MovementRef{
					Type:     inventory.MovementRentalReturn,
					HeaderID: header.ID,
					LineID:   line.ID,
				}); err != nil {
				return err
			}

			// Serialized items also release their claimed units; lines
			// without units simply match zero rows.
			if _, err := s.ledger.ReleaseUnitsTx(tx, line.ID, item.QuantityReturned,
				item.ConditionRating); err != nil {
				return err
			}

			returnPayloads = append(returnPayloads, journal.ReturnLinePayload{
				LineID:           line.ID,
				QuantityReturned: item.QuantityReturned,
				Condition:        string(item.ConditionRating),
				LineStatus:       string(nextStatus),
			})
		}

		complete := true
		for _, line := range lines {
			if line.RentalStatus != transactions.LineCompleted {
				complete = false
				break
			}
		}

		lifecycle, err := s.store.GetLifecycleTx(tx, req.RentalID)
		if err != nil {
			return err
		}
		accumulatedFees := lifecycle.LateFees.Add(totalLateFees)
		accumulatedDamage := lifecycle.DamageCharges.Add(totalDamage)

		refund := decimal.Zero
		if complete {
			refund = header.DepositAmount.Sub(accumulatedFees).Sub(accumulatedDamage)
			if refund.IsNegative() {
				refund = decimal.Zero
			}
		}

		if err := s.store.SettleLifecycleTx(tx, req.RentalID, req.ReturnDate,
			totalLateFees, totalDamage, refund); err != nil {
			return err
		}

		status, sEvt, err := s.reaggregateHeaderTx(tx, req.RentalID, req.Actor)
		if err != nil {
			return err
		}
		statusEvt = sEvt

		evt, err = s.journal.AppendTx(tx, req.RentalID, req.Actor,
			fmt.Sprintf("Rental %s return processed", header.TransactionNumber),
			&journal.RentalReturnedData{
				ReturnDate:    req.ReturnDate,
				Lines:         returnPayloads,
				LateFees:      totalLateFees.String(),
				DamageCharges: totalDamage.String(),
				DepositRefund: refund.String(),
				Complete:      complete,
			})
		if err != nil {
			return err
		}

		result = &ReturnResult{
			TransactionID: req.RentalID,
			Status:        string(status),
			LateFees:      totalLateFees,
			DamageCharges: totalDamage,
			DepositRefund: refund,
			Complete:      complete,
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("return processing contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(statusEvt)
	s.journal.Announce(evt)
	s.invalidateAvailability(ctx, locationID)

	s.log.Info().
		Int64("rental_id", req.RentalID).
		Str("late_fees", result.LateFees.String()).
		Str("damage_charges", result.DamageCharges.String()).
		Bool("complete", result.Complete).
		Msg("Rental return processed")

	return result, nil
}

// lateFee computes one line's late fee for the units being returned:
// daily_rate x multiplier x days_late x quantity. Days late count from the
// end date, less the grace period; a return inside grace owes nothing and
// any part of a day past it bills as a full day.
func (s *Service) lateFee(line *transactions.Line, returnDate time.Time, quantity int) decimal.Decimal {
	end, err := domain.ParseWallDate(line.RentalEndDate, s.location)
	if err != nil {
		return decimal.Zero
	}

	daysLate := domain.DaysBetween(end, returnDate) - s.cfg.GracePeriodDays
	if daysLate <= 0 {
		return decimal.Zero
	}

	return line.DailyRate.
		Mul(s.cfg.LateFeeMultiplier).
		Mul(decimal.NewFromInt(int64(daysLate))).
		Mul(decimal.NewFromInt(int64(quantity)))
}
