package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	tests := []struct {
		name       string
		gross      string
		commission string
		processing string
		platform   string
		fees       string
		net        string
	}{
		{"single order 100 at 10% and 3%", "100", "0.10", "0.03", "10", "3", "87"},
		{"rounds fees to cents", "33.33", "0.10", "0.029", "3.33", "0.97", "29.03"},
		{"zero rates", "50", "0", "0", "0", "0", "50"},
		{"processing capped at what is left", "10", "0.8", "0.5", "8", "2", "0"},
		{"rates summing to one on a single cent", "0.01", "0.5", "0.5", "0.01", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeBreakdown(
				decimal.RequireFromString(tt.gross),
				decimal.RequireFromString(tt.commission),
				decimal.RequireFromString(tt.processing),
			)
			assert.True(t, b.PlatformFees.Equal(decimal.RequireFromString(tt.platform)), "platform fees %s", b.PlatformFees)
			assert.True(t, b.ProcessingFees.Equal(decimal.RequireFromString(tt.fees)), "processing fees %s", b.ProcessingFees)
			assert.True(t, b.Net.Equal(decimal.RequireFromString(tt.net)), "net %s", b.Net)
		})
	}
}

func TestComputeBreakdown_Conserves(t *testing.T) {
	cases := []struct{ gross, commission, processing string }{
		{"1234.56", "0.125", "0.0275"},
		{"0.01", "0.5", "0.5"},
		{"0.03", "0.5", "0.5"},
		{"0.05", "0.7", "0.3"},
		{"1", "1", "0"},
	}
	for _, c := range cases {
		b := ComputeBreakdown(decimal.RequireFromString(c.gross), decimal.RequireFromString(c.commission), decimal.RequireFromString(c.processing))
		assert.True(t, b.Net.Equal(b.Gross.Sub(b.PlatformFees).Sub(b.ProcessingFees)), "gross %s", c.gross)
		assert.False(t, b.Net.IsNegative(), "gross %s", c.gross)
		assert.False(t, b.ProcessingFees.IsNegative(), "gross %s", c.gross)
	}
}

func TestPromoCode_Discount(t *testing.T) {
	maxDiscount := decimal.NewFromInt(15)

	percentage := &PromoCode{DiscountType: DiscountTypePercentage, DiscountValue: decimal.NewFromInt(20), MaxDiscount: &maxDiscount}
	assert.True(t, percentage.Discount(decimal.NewFromInt(50)).Equal(decimal.NewFromInt(10)))
	assert.True(t, percentage.Discount(decimal.NewFromInt(200)).Equal(decimal.NewFromInt(15)), "capped by max discount")

	fixed := &PromoCode{DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(25)}
	assert.True(t, fixed.Discount(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(25)))
	assert.True(t, fixed.Discount(decimal.NewFromInt(10)).Equal(decimal.NewFromInt(10)), "never above cart total")
}

func TestPromoCode_IsActiveAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	promo := &PromoCode{IsActive: true, StartDate: start, EndDate: start.AddDate(0, 1, 0)}

	assert.True(t, promo.IsActiveAt(start))
	assert.True(t, promo.IsActiveAt(start.AddDate(0, 0, 10)))
	assert.False(t, promo.IsActiveAt(start.Add(-time.Second)))
	assert.False(t, promo.IsActiveAt(start.AddDate(0, 2, 0)))

	promo.IsActive = false
	assert.False(t, promo.IsActiveAt(start.AddDate(0, 0, 10)))
}

func TestMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(10050).Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(10050), ToMinorUnits(decimal.RequireFromString("100.5")))
}

func TestOrder_RefundHelpers(t *testing.T) {
	order := &Order{
		Total: decimal.NewFromInt(30),
		Items: []OrderItem{
			{PayoutStatus: PayoutItemStatusRefunded},
			{PayoutStatus: PayoutItemStatusPending},
		},
		RefundDetails: RefundDetails{Amount: decimal.NewFromInt(10)},
	}
	assert.False(t, order.AllItemsRefunded())
	assert.True(t, order.RefundableAmount().Equal(decimal.NewFromInt(20)))

	order.Items[1].PayoutStatus = PayoutItemStatusRefunded
	order.RefundDetails.Amount = decimal.NewFromInt(40)
	assert.True(t, order.AllItemsRefunded())
	assert.True(t, order.RefundableAmount().IsZero())
}
