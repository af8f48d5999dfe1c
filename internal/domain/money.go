package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Breakdown is the fee split of a payout
type Breakdown struct {
	Gross          decimal.Decimal
	PlatformFees   decimal.Decimal
	ProcessingFees decimal.Decimal
	Net            decimal.Decimal
}

// ComputeBreakdown derives both fees from gross (not compounded), rounded to
// cents. Fees never exceed gross: the processing fee is capped at what the
// platform fee leaves, so net = gross - platform - processing always holds.
func ComputeBreakdown(gross, commissionRate, processingRate decimal.Decimal) Breakdown {
	platform := decimal.Min(gross.Mul(commissionRate).Round(2), gross)
	processing := decimal.Min(gross.Mul(processingRate).Round(2), gross.Sub(platform))
	if processing.IsNegative() {
		processing = decimal.Zero
	}
	net := gross.Sub(platform).Sub(processing)
	return Breakdown{
		Gross:          gross,
		PlatformFees:   platform,
		ProcessingFees: processing,
		Net:            net,
	}
}

// IsActiveAt reports whether the code can be used at t
func (p *PromoCode) IsActiveAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// UsageExhausted reports whether the global usage limit has been reached
func (p *PromoCode) UsageExhausted() bool {
	return p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit
}

// Discount computes the discount for a cart total. The result never exceeds
// the cart total.
func (p *PromoCode) Discount(cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch p.DiscountType {
	case DiscountTypePercentage:
		amount = cartTotal.Mul(p.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if p.MaxDiscount != nil && amount.GreaterThan(*p.MaxDiscount) {
			amount = *p.MaxDiscount
		}
	case DiscountTypeFixed:
		amount = p.DiscountValue
	}
	if amount.GreaterThan(cartTotal) {
		amount = cartTotal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount
}

// FromMinorUnits converts an integer amount in the smallest currency unit
// (cents, paise) to a decimal amount.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// ToMinorUnits is the inverse of FromMinorUnits
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
