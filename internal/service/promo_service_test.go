package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

// createPromo registers a 10% code valid for a day on either side of the fixture clock
func (f *fixture) createPromo(t *testing.T, code string, mutate func(req *CreatePromoRequest)) *domain.PromoCode {
	t.Helper()
	req := CreatePromoRequest{
		Code:          code,
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		StartDate:     f.now.Add(-24 * time.Hour),
		EndDate:       f.now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(&req)
	}
	promo, err := f.promos.CreatePromo(f.ctx, req)
	require.NoError(t, err)
	return promo
}

func intPtr(v int) *int { return &v }

func TestPromoService_Validate(t *testing.T) {
	f := newFixture(t)
	f.createPromo(t, " welcome ", func(req *CreatePromoRequest) {
		capAt := decimal.NewFromInt(15)
		req.MaxDiscount = &capAt
		req.MinOrderAmount = decimal.NewFromInt(20)
	})
	f.createPromo(t, "FLAT5", func(req *CreatePromoRequest) {
		req.DiscountType = domain.DiscountTypeFixed
		req.DiscountValue = decimal.NewFromInt(5)
	})
	f.createPromo(t, "EXPIRED", func(req *CreatePromoRequest) {
		req.StartDate = f.now.Add(-48 * time.Hour)
		req.EndDate = f.now.Add(-time.Hour)
	})
	f.createPromo(t, "USEDUP", func(req *CreatePromoRequest) {
		req.UsageLimit = intPtr(1)
	})
	require.NoError(t, f.repos.PromoCode.IncrementUsage(f.ctx, "USEDUP"))

	tests := []struct {
		name     string
		code     string
		total    string
		discount string
		wantErr  interface{}
	}{
		{name: "percentage", code: "welcome", total: "100", discount: "10"},
		{name: "percentage capped", code: "WELCOME", total: "400", discount: "15"},
		{name: "fixed", code: "flat5", total: "3", discount: "3"},
		{name: "below minimum", code: "WELCOME", total: "19.99", wantErr: &errors.ErrInvalidState{}},
		{name: "expired", code: "EXPIRED", total: "100", wantErr: &errors.ErrInvalidState{}},
		{name: "usage exhausted", code: "USEDUP", total: "100", wantErr: &errors.ErrLimitExceeded{}},
		{name: "unknown", code: "NOPE", total: "100", wantErr: &errors.ErrNotFound{}},
		{name: "blank", code: "  ", total: "100", wantErr: &errors.ErrValidation{}},
		{name: "negative total", code: "FLAT5", total: "-1", wantErr: &errors.ErrValidation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.promos.Validate(f.ctx, tt.code, decimal.RequireFromString(tt.total), &f.buyer.ID)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.IsType(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assertMoney(t, tt.discount, result.DiscountAmount)
			assertMoney(t, decimal.RequireFromString(tt.total).Sub(result.DiscountAmount).String(), result.FinalTotal)
		})
	}
}

func TestPromoService_PerBuyerLimitCountsCapturedOrders(t *testing.T) {
	f := newFixture(t)
	f.createPromo(t, "ONCE", func(req *CreatePromoRequest) {
		req.UsageLimitPerUser = intPtr(1)
	})
	code := "once"
	req := CreateOrderRequest{
		Items:     []CreateOrderItem{{ItemRef: "bowl", ItemType: domain.ItemTypeProduct, Name: "Bowl", SellerID: f.seller.ID, Price: decimal.NewFromInt(40), Quantity: 1}},
		PromoCode: &code,
	}

	// unpaid orders do not count
	first, err := f.orders.CreateOrder(f.ctx, f.buyer.ID, req)
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(f.ctx, f.buyer.ID, req)
	require.NoError(t, err)

	f.pay(t, first)

	_, err = f.orders.CreateOrder(f.ctx, f.buyer.ID, req)
	var limit *errors.ErrLimitExceeded
	require.ErrorAs(t, err, &limit)

	other := f.principal(t, "Second Buyer", domain.RoleBuyer)
	_, err = f.orders.CreateOrder(f.ctx, other.ID, req)
	require.NoError(t, err)
}

func TestPromoService_CreatePromo(t *testing.T) {
	f := newFixture(t)
	promo := f.createPromo(t, "summer24", nil)
	assert.Equal(t, "SUMMER24", promo.Code)
	assert.True(t, promo.IsActive)
	assert.Equal(t, 0, promo.UsedCount)

	_, err := f.promos.CreatePromo(f.ctx, CreatePromoRequest{
		Code:          "SUMMER24",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(1),
		StartDate:     f.now,
		EndDate:       f.now.Add(time.Hour),
	})
	var stateErr *errors.ErrInvalidState
	require.ErrorAs(t, err, &stateErr)

	invalid := []CreatePromoRequest{
		{Code: "A", DiscountType: "bogo", DiscountValue: decimal.NewFromInt(1), StartDate: f.now, EndDate: f.now.Add(time.Hour)},
		{Code: "B", DiscountType: domain.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(101), StartDate: f.now, EndDate: f.now.Add(time.Hour)},
		{Code: "C", DiscountType: domain.DiscountTypeFixed, DiscountValue: decimal.Zero, StartDate: f.now, EndDate: f.now.Add(time.Hour)},
		{Code: "D", DiscountType: domain.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), StartDate: f.now, EndDate: f.now},
	}
	for _, req := range invalid {
		_, err := f.promos.CreatePromo(f.ctx, req)
		var valErr *errors.ErrValidation
		assert.ErrorAs(t, err, &valErr, req.Code)
	}
}
