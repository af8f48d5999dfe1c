package memory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

func newOrder(buyerID, sellerID uuid.UUID) *domain.Order {
	return &domain.Order{
		BuyerID: buyerID,
		Items: []domain.OrderItem{{
			ItemRef:      "sku-1",
			ItemType:     domain.ItemTypeProduct,
			Name:         "Clay pot",
			SellerID:     sellerID,
			Price:        decimal.NewFromInt(10),
			Quantity:     1,
			PayoutStatus: domain.PayoutItemStatusPending,
		}},
		Total:         decimal.NewFromInt(10),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store, zap.NewNop())

	order := newOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.Order.Create(ctx, order))
	writes := store.Writes()

	boom := stderrors.New("boom")
	err := repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		o, err := tx.Order.GetByID(ctx, order.ID)
		require.NoError(t, err)
		o.PaymentStatus = domain.PaymentStatusPaid
		require.NoError(t, tx.Order.Update(ctx, o))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, writes, store.Writes())
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := NewRepositories(store, zap.NewNop())

	order := newOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.Order.Create(ctx, order))

	err := repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		o, err := tx.Order.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		o.PaymentStatus = domain.PaymentStatusPaid
		return tx.Order.Update(ctx, o)
	})
	require.NoError(t, err)

	stored, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, 2, store.Writes())
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore(), zap.NewNop())

	order := newOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.Order.Create(ctx, order))

	loaded, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	loaded.Items[0].PayoutStatus = domain.PayoutItemStatusRefunded

	again, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutItemStatusPending, again.Items[0].PayoutStatus)
}

func TestOrderRepository_ListPayoutCandidates(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore(), zap.NewNop())
	sellerID := uuid.New()
	now := time.Now()

	paid := newOrder(uuid.New(), sellerID)
	paid.PaymentStatus = domain.PaymentStatusPaid
	paid.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repos.Order.Create(ctx, paid))

	unpaid := newOrder(uuid.New(), sellerID)
	unpaid.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repos.Order.Create(ctx, unpaid))

	claimed := newOrder(uuid.New(), sellerID)
	claimed.PaymentStatus = domain.PaymentStatusPaid
	claimed.CreatedAt = now.Add(-time.Hour)
	payoutID := uuid.New()
	claimed.Items[0].PayoutID = &payoutID
	require.NoError(t, repos.Order.Create(ctx, claimed))

	cancelled := newOrder(uuid.New(), sellerID)
	cancelled.PaymentStatus = domain.PaymentStatusPaid
	cancelled.Status = domain.OrderStatusCancelled
	cancelled.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repos.Order.Create(ctx, cancelled))

	otherSeller := newOrder(uuid.New(), uuid.New())
	otherSeller.PaymentStatus = domain.PaymentStatusPaid
	otherSeller.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repos.Order.Create(ctx, otherSeller))

	ids, err := repos.Order.ListPayoutCandidates(ctx, sellerID, now.Add(-2*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{paid.ID}, ids)
}

func TestReturnRequestRepository_OneOpenRequestPerItem(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore(), zap.NewNop())

	orderID, itemID := uuid.New(), uuid.New()
	first := &domain.ReturnRequest{OrderID: orderID, Item: domain.ReturnItemSnapshot{OrderItemID: itemID}, Status: domain.ReturnStatusPending}
	require.NoError(t, repos.ReturnRequest.Create(ctx, first))

	second := &domain.ReturnRequest{OrderID: orderID, Item: domain.ReturnItemSnapshot{OrderItemID: itemID}, Status: domain.ReturnStatusPending}
	err := repos.ReturnRequest.Create(ctx, second)
	var stateErr *errors.ErrInvalidState
	assert.True(t, errors.As(err, &stateErr))

	first.Status = domain.ReturnStatusRejected
	require.NoError(t, repos.ReturnRequest.Update(ctx, first))

	third := &domain.ReturnRequest{OrderID: orderID, Item: domain.ReturnItemSnapshot{OrderItemID: itemID}, Status: domain.ReturnStatusPending}
	assert.NoError(t, repos.ReturnRequest.Create(ctx, third))
}

func TestPromoCodeRepository_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore(), zap.NewNop())

	require.NoError(t, repos.PromoCode.Create(ctx, &domain.PromoCode{Code: "welcome10", DiscountType: domain.DiscountTypeFixed}))
	require.NoError(t, repos.PromoCode.IncrementUsage(ctx, "WELCOME10"))
	require.NoError(t, repos.PromoCode.IncrementUsage(ctx, "welcome10"))

	promo, err := repos.PromoCode.GetByCode(ctx, "Welcome10")
	require.NoError(t, err)
	assert.Equal(t, 2, promo.UsedCount)
}
