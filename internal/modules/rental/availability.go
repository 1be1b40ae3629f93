package rental

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/domain"
)

// AvailabilityQuery asks whether a quantity of an item can be rented at a
// location over a date window.
type AvailabilityQuery struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Quantity   int    `json:"quantity"`
}

// Validate checks the query fields.
func (q *AvailabilityQuery) Validate(loc *time.Location) error {
	if q.ItemID == "" {
		return domain.Validationf("item_id is required")
	}
	if q.LocationID == "" {
		return domain.Validationf("location_id is required")
	}
	if q.Quantity < 1 {
		return domain.Validationf("quantity must be at least 1")
	}
	start, err := domain.ParseWallDate(q.StartDate, loc)
	if err != nil {
		return domain.Validationf("invalid start_date: %v", err)
	}
	end, err := domain.ParseWallDate(q.EndDate, loc)
	if err != nil {
		return domain.Validationf("invalid end_date: %v", err)
	}
	if end.Before(start) {
		return domain.Validationf("end_date %s is before start_date %s", q.EndDate, q.StartDate)
	}
	return nil
}

// AlternativeWindow is a same-length window where the requested quantity is
// free, offered when the requested window is not.
type AlternativeWindow struct {
	StartDate string `json:"start_date" msgpack:"start_date"`
	EndDate   string `json:"end_date" msgpack:"end_date"`
	Available int    `json:"available" msgpack:"available"`
}

// AvailabilityResult is the availability snapshot for one query. Snapshots
// are cached briefly, so CheckedAt travels with the payload.
type AvailabilityResult struct {
	ItemID       string              `json:"item_id" msgpack:"item_id"`
	LocationID   string              `json:"location_id" msgpack:"location_id"`
	StartDate    string              `json:"start_date" msgpack:"start_date"`
	EndDate      string              `json:"end_date" msgpack:"end_date"`
	Quantity     int                 `json:"quantity" msgpack:"quantity"`
	OnHand       int                 `json:"quantity_on_hand" msgpack:"quantity_on_hand"`
	Reserved     int                 `json:"quantity_reserved" msgpack:"quantity_reserved"`
	Available    int                 `json:"quantity_available" msgpack:"quantity_available"`
	IsAvailable  bool                `json:"is_available" msgpack:"is_available"`
	Alternatives []AlternativeWindow `json:"alternative_windows,omitempty" msgpack:"alternative_windows"`
	CheckedAt    int64               `json:"checked_at" msgpack:"checked_at"`
}

// alternativeProbeDays bounds the linear probe for alternative windows.
const alternativeProbeDays = 30

// maxAlternatives caps how many alternative windows a result carries.
const maxAlternatives = 3

func availabilityKey(q *AvailabilityQuery) string {
	return fmt.Sprintf("%s%s:%s:%s:%d",
		cache.AvailabilityPrefix(q.LocationID), q.ItemID, q.StartDate, q.EndDate, q.Quantity)
}

// CheckAvailability reports whether the requested window can be satisfied.
// It is a pure read: reserved quantity comes from overlapping active rental
// lines, available is the physical count minus that. When the window is
// taken, up to three same-length alternative windows within the next thirty
// days are suggested. Results are cached and concurrent identical queries
// are coalesced through singleflight.
func (s *Service) CheckAvailability(ctx context.Context, q *AvailabilityQuery) (*AvailabilityResult, error) {
	if err := q.Validate(s.location); err != nil {
		return nil, err
	}

	key := availabilityKey(q)

	if s.cache != nil {
		var cached AvailabilityResult
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Availability cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		result, err := s.computeAvailability(ctx, q)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, result, s.cfg.AvailabilityCacheTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Availability cache write failed")
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AvailabilityResult), nil
}

func (s *Service) computeAvailability(ctx context.Context, q *AvailabilityQuery) (*AvailabilityResult, error) {
	// The item must exist and be rentable before counting anything.
	item, err := s.catalog.GetItem(ctx, q.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsRentable {
		return nil, domain.Validationf("item %s (%s) is not rentable", item.SKU, item.ID)
	}

	level, err := s.ledger.GetStockLevel(ctx, q.ItemID, q.LocationID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.overlappingCommitment(ctx, q.ItemID, q.LocationID, q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}

	available := level.QuantityOnHand - reserved
	if available < 0 {
		available = 0
	}

	result := &AvailabilityResult{
		ItemID:      q.ItemID,
		LocationID:  q.LocationID,
		StartDate:   q.StartDate,
		EndDate:     q.EndDate,
		Quantity:    q.Quantity,
		OnHand:      level.QuantityOnHand,
		Reserved:    reserved,
		Available:   available,
		IsAvailable: available >= q.Quantity,
		CheckedAt:   time.Now().Unix(),
	}

	if !result.IsAvailable {
		alternatives, err := s.alternativeWindows(ctx, q, level.QuantityOnHand)
		if err != nil {
			return nil, err
		}
		result.Alternatives = alternatives
	}

	return result, nil
}

// alternativeWindows probes same-length windows starting one day after the
// requested start, up to alternativeProbeDays out, and keeps the first
// maxAlternatives that can hold the quantity.
func (s *Service) alternativeWindows(ctx context.Context, q *AvailabilityQuery, onHand int) ([]AlternativeWindow, error) {
	if onHand < q.Quantity {
		// No shifted window can beat the physical count.
		return nil, nil
	}

	start, err := domain.ParseWallDate(q.StartDate, s.location)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseWallDate(q.EndDate, s.location)
	if err != nil {
		return nil, err
	}

	var windows []AlternativeWindow
	for offset := 1; offset <= alternativeProbeDays && len(windows) < maxAlternatives; offset++ {
		altStart := domain.FormatWallDate(start.AddDate(0, 0, offset))
		altEnd := domain.FormatWallDate(end.AddDate(0, 0, offset))

		reserved, err := s.overlappingCommitment(ctx, q.ItemID, q.LocationID, altStart, altEnd)
		if err != nil {
			return nil, err
		}
		available := onHand - reserved
		if available >= q.Quantity {
			windows = append(windows, AlternativeWindow{
				StartDate: altStart,
				EndDate:   altEnd,
				Available: available,
			})
		}
	}
	return windows, nil
}

// overlappingCommitment is the read-path twin of overlappingCommitmentTx.
func (s *Service) overlappingCommitment(ctx context.Context, itemID, locationID, startDate, endDate string) (int, error) {
	var committed int
	err := s.db.QueryRowContext(ctx, `
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
	`, itemID, locationID, endDate, startDate).Scan(&committed)
	if err != nil {
		return 0, fmt.Errorf("failed to scan overlapping rentals: %w", err)
	}
	return committed, nil
}
