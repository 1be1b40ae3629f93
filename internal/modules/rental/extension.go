package rental

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// Extend moves a rental's end date out. The extension cap is checked first,
// then each open line's extended window is availability-checked
// independently before any write.
func (s *Service) Extend(ctx context.Context, req *ExtensionRequest) (*ExtensionResult, error) {
	if err := req.Validate(s.location); err != nil {
		return nil, err
	}

	newEnd, err := domain.ParseWallDate(req.NewEndDate, s.location)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var result *ExtensionResult
	var evt *journal.Event
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
				"rental %s in status %s cannot be extended", header.TransactionNumber, header.Status)
		}
		if header.ExtensionCount >= s.cfg.MaxExtensions {
			return domain.Conflictf(domain.CodeExtensionLimitExceeded,
				"rental %s already extended %d of %d times",
				header.TransactionNumber, header.ExtensionCount, s.cfg.MaxExtensions)
		}
		locationID = header.LocationID

		lines, err := s.store.GetLinesTx(tx, req.RentalID)
		if err != nil {
			return err
		}

		totalCharge := decimal.Zero
		extendedLines := 0
		for i := range lines {
			line := &lines[i]
			if line.RentalStatus == transactions.LineCompleted || line.RentalEndDate == "" {
				continue
			}

			currentEnd, err := domain.ParseWallDate(line.RentalEndDate, s.location)
			if err != nil {
				return domain.Integrityf("line %d carries invalid end date %q", line.ID, line.RentalEndDate)
			}
			extensionDays := domain.DaysBetween(currentEnd, newEnd)
			if extensionDays <= 0 {
				return domain.Validationf(
					"new end date %s does not extend line %d (current end %s)",
					req.NewEndDate, line.ID, line.RentalEndDate)
			}

			// Each line's extended window is checked on its own; a rental
			// with heterogeneous line ends never under-reserves.
			outstanding := line.OutstandingQuantity()
			if outstanding > 0 {
				if err := s.checkAvailabilityExtensionTx(tx, line.ItemID, locationID,
					outstanding, line.RentalEndDate, req.NewEndDate, header.ID); err != nil {
					return err
				}
			}

			charge := line.DailyRate.
				Mul(decimal.NewFromInt(int64(extensionDays))).
				Mul(decimal.NewFromInt(int64(outstanding)))
			totalCharge = totalCharge.Add(charge)

			if err := s.store.ExtendLineTx(tx, line.ID, req.NewEndDate); err != nil {
				return err
			}
			extendedLines++
		}
		if extendedLines == 0 {
			return domain.Validationf("rental %s has no open lines to extend", header.TransactionNumber)
		}

		if err := s.store.AddExtensionChargesTx(tx, req.RentalID, totalCharge); err != nil {
			return err
		}
		if _, _, err := s.reaggregateHeaderTx(tx, req.RentalID, req.Actor); err != nil {
			return err
		}

		evt, err = s.journal.AppendTx(tx, req.RentalID, req.Actor,
			fmt.Sprintf("Rental %s extended to %s", header.TransactionNumber, req.NewEndDate),
			&journal.RentalExtendedData{
				NewEndDate:      req.NewEndDate,
				ExtensionCharge: totalCharge.String(),
				ExtensionCount:  header.ExtensionCount + 1,
			})
		if err != nil {
			return err
		}

		result = &ExtensionResult{
			TransactionID:   req.RentalID,
			NewEndDate:      req.NewEndDate,
			ExtensionCharge: totalCharge,
			ExtensionCount:  header.ExtensionCount + 1,
			TotalAmount:     header.TotalAmount.Add(totalCharge),
		}
		return nil
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, domain.Transientf("extension contended, retry").WithCause(err)
		}
		return nil, err
	}

	s.journal.Announce(evt)
	s.invalidateAvailability(ctx, locationID)

	s.log.Info().
		Int64("rental_id", req.RentalID).
		Str("new_end_date", req.NewEndDate).
		Str("charge", result.ExtensionCharge.String()).
		Msg("Rental extended")

	return result, nil
}

// checkAvailabilityExtensionTx verifies the extension window for one line:
// other rentals' overlapping commitment in (currentEnd, newEnd] must leave
// room within the physical inventory count.
func (s *Service) checkAvailabilityExtensionTx(tx *sql.Tx, itemID, locationID string, quantity int, fromDate, toDate string, excludeHeaderID int64) error {
	level, err := s.ledger.EnsureStockLevelTx(tx, itemID, locationID)
	if err != nil {
		return err
	}

	committed, err := s.overlappingCommitmentTx(tx, itemID, locationID, fromDate, toDate, excludeHeaderID)
	if err != nil {
		return err
	}
	if committed+quantity > level.QuantityOnHand {
		return domain.Conflictf(domain.CodeOverbooked,
			"item %s is overbooked for extension window %s..%s: %d committed of %d on hand, holding %d",
			itemID, fromDate, toDate, committed, level.QuantityOnHand, quantity)
	}
	return nil
}
