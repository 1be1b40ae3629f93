package rental

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/domain"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// lineIsLate reports whether a line is past its end date plus the grace
// period as of the given wall date.
func (s *Service) lineIsLate(line *transactions.Line, asOf time.Time) bool {
	if line.RentalEndDate == "" {
		return false
	}
	end, err := domain.ParseWallDate(line.RentalEndDate, s.location)
	if err != nil {
		return false
	}
	deadline := end.AddDate(0, 0, s.cfg.GracePeriodDays)
	return asOf.After(deadline)
}

// nextLineStatus computes a line's status after a return event.
func nextLineStatus(line *transactions.Line, late bool) transactions.LineStatus {
	if line.ReturnedQuantity >= line.Quantity {
		return transactions.LineCompleted
	}
	if line.ReturnedQuantity > 0 {
		if late {
			return transactions.LineLatePartialReturn
		}
		return transactions.LinePartialReturn
	}
	if late {
		return transactions.LineLate
	}
	return line.RentalStatus
}

// aggregateStatus folds per-line statuses into the header status by
// precedence: late+partial, late, partial, completed, extended, in-progress.
func aggregateStatus(lines []transactions.Line) transactions.Status {
	var anyLate, anyPartial, anyExtended bool
	allCompleted := len(lines) > 0

	for _, line := range lines {
		switch line.RentalStatus {
		case transactions.LineLate:
			anyLate = true
		case transactions.LinePartialReturn:
			anyPartial = true
		case transactions.LineLatePartialReturn:
			anyLate = true
			anyPartial = true
		case transactions.LineExtended:
			anyExtended = true
		}
		if line.RentalStatus != transactions.LineCompleted {
			allCompleted = false
		}
	}

	switch {
	case anyLate && anyPartial:
		return transactions.StatusRentalLatePartialReturn
	case anyLate:
		return transactions.StatusRentalLate
	case anyPartial:
		return transactions.StatusRentalPartialReturn
	case allCompleted:
		return transactions.StatusCompleted
	case anyExtended:
		return transactions.StatusRentalExtended
	default:
		return transactions.StatusInProgress
	}
}

// reaggregateHeaderTx recomputes the header status from its lines, writing
// the change and its event when the status moves. Returns the new status.
func (s *Service) reaggregateHeaderTx(tx *sql.Tx, headerID int64, actor string) (transactions.Status, *journal.Event, error) {
	header, err := s.store.GetHeaderTx(tx, headerID)
	if err != nil {
		return "", nil, err
	}
	lines, err := s.store.GetLinesTx(tx, headerID)
	if err != nil {
		return "", nil, err
	}

	next := aggregateStatus(lines)
	if next == header.Status || header.Status.Terminal() {
		return header.Status, nil, nil
	}

	if err := s.store.SetStatusTx(tx, headerID, next); err != nil {
		return "", nil, err
	}

	evt, err := s.journal.AppendTx(tx, headerID, actor,
		fmt.Sprintf("Rental status changed from %s to %s", header.Status, next),
		&journal.StatusChangedData{From: string(header.Status), To: string(next), Reason: "lifecycle aggregation"})
	if err != nil {
		return "", nil, err
	}
	return next, evt, nil
}

// MarkOverdue is the reconciliation sweep: it finds active rental lines past
// their end date plus grace, marks them late and re-aggregates the affected
// headers. Cancellable between headers. Returns how many headers changed.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = time.Now().In(s.location)
	}

	// Candidate headers: active rentals with any not-yet-late open line.
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT h.id
		FROM transaction_headers h
		JOIN transaction_lines l ON l.transaction_header_id = h.id
		WHERE h.transaction_type = 'RENTAL'
		AND h.status NOT IN ('PENDING', 'COMPLETED', 'CANCELLED')
		AND l.current_rental_status IN (?, ?, ?)
		ORDER BY h.id
	`, string(transactions.LineInProgress), string(transactions.LineExtended),
		string(transactions.LinePartialReturn))
	if err != nil {
		return 0, fmt.Errorf("failed to scan for overdue candidates: %w", err)
	}

	var headerIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan header id: %w", err)
		}
		headerIDs = append(headerIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	changed := 0
	for _, headerID := range headerIDs {
		select {
		case <-ctx.Done():
			return changed, ctx.Err()
		default:
		}

		var evt *journal.Event
		err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			lines, err := s.store.GetLinesTx(tx, headerID)
			if err != nil {
				return err
			}

			touched := false
			for i := range lines {
				line := &lines[i]
				if !s.lineIsLate(line, asOf) {
					continue
				}

				var next transactions.LineStatus
				switch line.RentalStatus {
				case transactions.LineInProgress, transactions.LineExtended:
					next = transactions.LineLate
				case transactions.LinePartialReturn:
					next = transactions.LineLatePartialReturn
				default:
					continue
				}

				if err := s.store.SetLineStatusTx(tx, line.ID, next); err != nil {
					return err
				}
				line.RentalStatus = next
				touched = true
			}
			if !touched {
				return nil
			}

			_, evt, err = s.reaggregateHeaderTx(tx, headerID, "reconciliation")
			return err
		})
		if err != nil {
			return changed, err
		}
		if evt != nil {
			s.journal.Announce(evt)
			changed++
		}
	}

	if changed > 0 {
		s.log.Info().Int("headers", changed).Msg("Reconciliation marked overdue rentals")
	}
	return changed, nil
}
