package rental

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/quartermaster/internal/domain"
)

// linePrice is the priced form of one requested rental line.
type linePrice struct {
	DailyRate decimal.Decimal
	Periods   int
	Days      int
	Subtotal  decimal.Decimal // quantity x rate x periods, before discount
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	LineTotal decimal.Decimal // subtotal - discount (tax carried separately)
}

// selectRate resolves the daily rate for a duration: the tier with the
// largest min_days not exceeding the duration wins, the item's base rate is
// the fallback. An explicit non-zero request rate overrides both.
func selectRate(item *domain.Item, requested decimal.Decimal, days int) decimal.Decimal {
	if requested.IsPositive() {
		return requested
	}

	rate := item.BaseRate
	best := 0
	for _, tier := range item.RateTiers {
		if tier.MinDays <= days && tier.MinDays > best {
			best = tier.MinDays
			rate = tier.Rate
		}
	}
	return rate
}

// priceLine computes one line's charges. Duration in days comes from the
// wall-date difference; a zero-day rental (same-day) bills one period.
func priceLine(item *domain.Item, req CreateItemRequest, days int, taxRate decimal.Decimal) linePrice {
	unit := domain.PeriodUnitFromRequest(req.RentalPeriodType)

	billableDays := days
	if billableDays < 1 {
		billableDays = 1
	}
	periods := domain.CeilDiv(billableDays, unit.Days())

	rate := selectRate(item, req.UnitRate, billableDays)
	qty := decimal.NewFromInt(int64(req.Quantity))

	subtotal := qty.Mul(rate).Mul(decimal.NewFromInt(int64(periods)))
	lineTotal := subtotal.Sub(req.DiscountValue)
	if lineTotal.IsNegative() {
		lineTotal = decimal.Zero
	}
	tax := domain.Percent(lineTotal, taxRate)

	return linePrice{
		DailyRate: rate,
		Periods:   periods,
		Days:      billableDays,
		Subtotal:  subtotal,
		Discount:  req.DiscountValue,
		Tax:       tax,
		LineTotal: lineTotal,
	}
}

// depositFor returns the per-unit security deposit for an item: the explicit
// deposit when set, otherwise the configured fraction of the item's value.
func depositFor(item *domain.Item, fallbackPct decimal.Decimal) decimal.Decimal {
	if item.SecurityDeposit != nil {
		return *item.SecurityDeposit
	}
	return domain.Percent(item.ItemValue, fallbackPct)
}
