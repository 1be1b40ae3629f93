package rental

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/quartermaster/internal/domain"
)

func tieredItem() *domain.Item {
	return &domain.Item{
		ID:       "item-t",
		SKU:      "TIER-01",
		BaseRate: decimal.NewFromInt(20),
		RateTiers: []domain.RateTier{
			{MinDays: 7, Rate: decimal.NewFromInt(15)},
			{MinDays: 30, Rate: decimal.NewFromInt(10)},
		},
	}
}

func TestSelectRate_TierByDuration(t *testing.T) {
	item := tieredItem()

	// Below the first tier the base rate applies.
	assert.True(t, decimal.NewFromInt(20).Equal(selectRate(item, decimal.Zero, 5)))

	// The largest tier not exceeding the duration wins.
	assert.True(t, decimal.NewFromInt(15).Equal(selectRate(item, decimal.Zero, 7)))
	assert.True(t, decimal.NewFromInt(15).Equal(selectRate(item, decimal.Zero, 29)))
	assert.True(t, decimal.NewFromInt(10).Equal(selectRate(item, decimal.Zero, 30)))
	assert.True(t, decimal.NewFromInt(10).Equal(selectRate(item, decimal.Zero, 90)))

	// An explicit rate overrides the tiers.
	assert.True(t, decimal.NewFromInt(99).Equal(selectRate(item, decimal.NewFromInt(99), 30)))
}

func TestPriceLine_WeeklyPeriodsRoundUp(t *testing.T) {
	item := &domain.Item{BaseRate: decimal.NewFromInt(70)}
	req := CreateItemRequest{Quantity: 1, RentalPeriodType: "WEEKLY"}
	taxRate := decimal.NewFromInt(10)

	// 10 days bills as two whole weeks.
	price := priceLine(item, req, 10, taxRate)
	assert.Equal(t, 2, price.Periods)
	assert.True(t, decimal.NewFromInt(140).Equal(price.LineTotal), "total %s", price.LineTotal)
	assert.True(t, decimal.NewFromInt(14).Equal(price.Tax))
}

func TestPriceLine_SameDayBillsOnePeriod(t *testing.T) {
	item := &domain.Item{BaseRate: decimal.NewFromInt(20)}
	req := CreateItemRequest{Quantity: 2}

	price := priceLine(item, req, 0, decimal.Zero)
	assert.Equal(t, 1, price.Periods)
	assert.True(t, decimal.NewFromInt(40).Equal(price.LineTotal))
}

func TestPriceLine_DiscountFloorsAtZero(t *testing.T) {
	item := &domain.Item{BaseRate: decimal.NewFromInt(10)}
	req := CreateItemRequest{Quantity: 1, DiscountValue: decimal.NewFromInt(50)}

	price := priceLine(item, req, 2, decimal.NewFromInt(10))
	assert.True(t, price.LineTotal.IsZero())
	assert.True(t, price.Tax.IsZero())
}

func TestDepositFor_ExplicitAndFallback(t *testing.T) {
	dep := decimal.NewFromInt(100)
	explicit := &domain.Item{SecurityDeposit: &dep, ItemValue: decimal.NewFromInt(500)}
	assert.True(t, decimal.NewFromInt(100).Equal(depositFor(explicit, decimal.NewFromInt(20))))

	// No explicit deposit: the configured fraction of item value applies.
	fallback := &domain.Item{ItemValue: decimal.NewFromInt(500)}
	assert.True(t, decimal.NewFromInt(100).Equal(depositFor(fallback, decimal.NewFromInt(20))))
}
