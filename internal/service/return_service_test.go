package service

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

func TestNewRequestNumber(t *testing.T) {
	at := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	number := NewRequestNumber(at)
	assert.Regexp(t, regexp.MustCompile(`^RET-20240131-[0-9A-F]{6}$`), number)
	assert.NotEqual(t, number, NewRequestNumber(at))
}

func TestFileReturn(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t,
		product(f.seller, "30.00"),
		lineSpec{seller: f.seller, price: "80.00", itemType: domain.ItemTypeCourse},
	))

	t.Run("records a pending request", func(t *testing.T) {
		request := f.fileReturn(t, order, 0)
		assert.Equal(t, domain.ReturnStatusPending, request.Status)
		assert.Equal(t, order.Items[0].ID, request.Item.OrderItemID)
		assert.Equal(t, f.seller.ID, request.Item.SellerID)
		assertMoney(t, "30", request.RefundAmount)
		assert.Nil(t, request.AdminReview)
		assert.Contains(t, f.recorder.Types(), events.ReturnFiled)
	})

	t.Run("second open request for the item", func(t *testing.T) {
		_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
			OrderID: order.ID,
			ItemID:  order.Items[0].ID,
			Type:    domain.ReturnTypeReturn,
			Reason:  domain.ReturnReasonOther,
		})
		var stateErr *errors.ErrInvalidState
		require.ErrorAs(t, err, &stateErr)
	})

	t.Run("courses are not returnable", func(t *testing.T) {
		_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
			OrderID: order.ID,
			ItemID:  order.Items[1].ID,
			Type:    domain.ReturnTypeRefund,
			Reason:  domain.ReturnReasonDefective,
		})
		var stateErr *errors.ErrInvalidState
		require.ErrorAs(t, err, &stateErr)
	})

	t.Run("other buyer", func(t *testing.T) {
		_, err := f.returns.FileReturn(f.ctx, f.seller.ID, FileReturnRequest{
			OrderID: order.ID,
			ItemID:  order.Items[0].ID,
			Type:    domain.ReturnTypeRefund,
			Reason:  domain.ReturnReasonDamaged,
		})
		var forbidden *errors.ErrForbidden
		require.ErrorAs(t, err, &forbidden)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
			OrderID: order.ID,
			ItemID:  order.ID,
			Type:    domain.ReturnTypeRefund,
			Reason:  domain.ReturnReasonDamaged,
		})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("amount above the line total", func(t *testing.T) {
		tooMuch := decimal.NewFromInt(31)
		_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
			OrderID:      order.ID,
			ItemID:       order.Items[0].ID,
			Type:         domain.ReturnTypeRefund,
			Reason:       domain.ReturnReasonDamaged,
			RefundAmount: &tooMuch,
		})
		var valErr *errors.ErrValidation
		require.ErrorAs(t, err, &valErr)
	})

	t.Run("evidence needs a url", func(t *testing.T) {
		_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
			OrderID:  order.ID,
			ItemID:   order.Items[0].ID,
			Type:     domain.ReturnTypeRefund,
			Reason:   domain.ReturnReasonDamaged,
			Evidence: []domain.Evidence{{Type: domain.EvidenceTypeImage}},
		})
		var valErr *errors.ErrValidation
		require.ErrorAs(t, err, &valErr)
	})
}

func TestFileReturn_ConcurrentFilingsOpenOneRequest(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "30.00")))

	const filings = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		start     = make(chan struct{})
		filed     []*domain.ReturnRequest
		rejected  int
		unexpects []error
	)
	for i := 0; i < filings; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			request, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
				OrderID: order.ID,
				ItemID:  order.Items[0].ID,
				Type:    domain.ReturnTypeRefund,
				Reason:  domain.ReturnReasonDamaged,
			})
			mu.Lock()
			defer mu.Unlock()
			var stateErr *errors.ErrInvalidState
			switch {
			case err == nil:
				filed = append(filed, request)
			case errors.As(err, &stateErr):
				rejected++
			default:
				unexpects = append(unexpects, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unexpects)
	require.Len(t, filed, 1)
	assert.Equal(t, filings-1, rejected)

	orderID := order.ID
	open, err := f.returns.ListReturns(f.ctx, repository.ReturnFilter{OrderID: &orderID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, filed[0].ID, open[0].ID)
}

func TestFileReturn_RequiresDelivery(t *testing.T) {
	f := newFixture(t)
	order := f.pay(t, f.placeOrder(t, product(f.seller, "30.00")))

	_, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
		OrderID: order.ID,
		ItemID:  order.Items[0].ID,
		Type:    domain.ReturnTypeRefund,
		Reason:  domain.ReturnReasonDamaged,
	})
	var stateErr *errors.ErrInvalidState
	require.ErrorAs(t, err, &stateErr)
}

func TestFileReturn_AllowedAgainAfterRejection(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "30.00")))
	request := f.fileReturn(t, order, 0)

	rejected, err := f.returns.DecideReturn(f.ctx, f.admin.ID, request.ID, DecideReturnRequest{
		Decision: domain.ReviewDecisionRejected,
		Notes:    "no damage visible",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, rejected.Status)
	assert.Equal(t, domain.PaymentStatusPaid, f.reload(t, order.ID).PaymentStatus)

	again := f.fileReturn(t, order, 0)
	assert.NotEqual(t, request.RequestNumber, again.RequestNumber)
}

func TestDecideReturn_ThreeItemsAggregate(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t,
		product(f.seller, "10.00"),
		product(f.seller, "10.00"),
		product(f.seller, "10.00"),
	))

	expected := []struct {
		refunded string
		status   domain.PaymentStatus
	}{
		{"10", domain.PaymentStatusPartiallyRefunded},
		{"20", domain.PaymentStatusPartiallyRefunded},
		{"30", domain.PaymentStatusRefunded},
	}
	for i, want := range expected {
		approved := f.approve(t, f.fileReturn(t, order, i))
		assert.Equal(t, domain.ReturnStatusApproved, approved.Status)

		current := f.reload(t, order.ID)
		assertMoney(t, want.refunded, current.RefundDetails.Amount, "after return %d", i)
		assert.Equal(t, want.status, current.PaymentStatus, "after return %d", i)
		assert.Equal(t, domain.PayoutItemStatusRefunded, current.Items[i].PayoutStatus)
	}

	current := f.reload(t, order.ID)
	assert.True(t, current.RefundDetails.Amount.Equal(current.Total))
	assert.Len(t, current.RefundDetails.ReturnRequestNumbers, 3)
}

func TestDecideReturn_PartialAmount(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "40.00")))
	request := f.fileReturn(t, order, 0)

	partial := decimal.RequireFromString("12.50")
	decided, err := f.returns.DecideReturn(f.ctx, f.admin.ID, request.ID, DecideReturnRequest{
		Decision:     domain.ReviewDecisionApproved,
		RefundAmount: &partial,
	})
	require.NoError(t, err)
	assertMoney(t, "12.50", decided.AdminReview.RefundAmount)

	current := f.reload(t, order.ID)
	assertMoney(t, "12.50", current.RefundDetails.Amount)
	// the only item is refunded even though part of the money was kept
	assert.Equal(t, domain.PaymentStatusRefunded, current.PaymentStatus)
}

func TestDecideReturn_AlreadyReviewed(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "30.00")))
	request := f.approve(t, f.fileReturn(t, order, 0))
	before := f.reload(t, order.ID)

	for _, decision := range []domain.ReviewDecision{domain.ReviewDecisionApproved, domain.ReviewDecisionRejected} {
		_, err := f.returns.DecideReturn(f.ctx, f.admin.ID, request.ID, DecideReturnRequest{Decision: decision})
		var reviewed *errors.ErrAlreadyReviewed
		require.ErrorAs(t, err, &reviewed)
	}

	after := f.reload(t, order.ID)
	assert.True(t, before.RefundDetails.Amount.Equal(after.RefundDetails.Amount))

	completed, err := f.returns.CompleteReturn(f.ctx, f.admin.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusCompleted, completed.Status)
}

func TestDecideReturn_ReleasesItemFromPendingPayout(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00"), product(f.seller, "20.00")))
	payout, err := f.createPayout(f.seller)
	require.NoError(t, err)
	assertMoney(t, "30", payout.GrossEarnings)

	f.approve(t, f.fileReturn(t, order, 0))

	updated, err := f.payouts.GetPayout(f.ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, updated.Status)
	assert.Equal(t, 1, updated.ItemCount)
	assertMoney(t, "20", updated.GrossEarnings)
	assertMoney(t, "2", updated.PlatformFees)
	assertMoney(t, "0.60", updated.ProcessingFees)
	assertMoney(t, "17.40", updated.NetEarnings)

	current := f.reload(t, order.ID)
	assert.Nil(t, current.Items[0].PayoutID)
	assert.Equal(t, domain.PayoutItemStatusRefunded, current.Items[0].PayoutStatus)

	// completing the payout leaves the refunded item alone
	_, err = f.payouts.UpdatePayoutStatus(f.ctx, payout.ID, f.admin.ID, UpdatePayoutStatusRequest{Status: domain.PayoutStatusCompleted})
	require.NoError(t, err)
	current = f.reload(t, order.ID)
	assert.Equal(t, domain.PayoutItemStatusRefunded, current.Items[0].PayoutStatus)
	assert.Equal(t, domain.PayoutItemStatusPaid, current.Items[1].PayoutStatus)
}

func TestDecideReturn_EmptiedPayoutIsCancelled(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00")))
	payout, err := f.createPayout(f.seller)
	require.NoError(t, err)

	f.approve(t, f.fileReturn(t, order, 0))

	updated, err := f.payouts.GetPayout(f.ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCancelled, updated.Status)
	assert.Equal(t, 0, updated.ItemCount)
	assert.Empty(t, updated.OrderIDs)
	assert.True(t, updated.GrossEarnings.IsZero())
	assert.True(t, updated.NetEarnings.IsZero())
}

func TestDecideReturn_RejectsSettledItems(t *testing.T) {
	tests := []struct {
		name   string
		status domain.PayoutStatus
	}{
		{name: "paid out", status: domain.PayoutStatusCompleted},
		{name: "payout in flight", status: domain.PayoutStatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00")))
			payout, err := f.createPayout(f.seller)
			require.NoError(t, err)
			_, err = f.payouts.UpdatePayoutStatus(f.ctx, payout.ID, f.admin.ID, UpdatePayoutStatusRequest{Status: tt.status})
			require.NoError(t, err)

			request := f.fileReturn(t, order, 0)
			writes := f.store.Writes()

			_, err = f.returns.DecideReturn(f.ctx, f.admin.ID, request.ID, DecideReturnRequest{Decision: domain.ReviewDecisionApproved})
			var stateErr *errors.ErrInvalidState
			require.ErrorAs(t, err, &stateErr)

			// the rejected approval left nothing behind
			assert.Equal(t, writes, f.store.Writes())
			stored, err := f.repos.ReturnRequest.GetByID(f.ctx, request.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.AdminReview)
			assert.Equal(t, domain.ReturnStatusPending, stored.Status)
			assert.True(t, f.reload(t, order.ID).RefundDetails.Amount.IsZero())
		})
	}
}

func TestDecideReturn_GatewayRefundCountedOnce(t *testing.T) {
	t.Run("approval first", func(t *testing.T) {
		f := newFixture(t)
		order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00"), product(f.seller, "15.00")))
		request := f.approve(t, f.fileReturn(t, order, 0))

		result, err := f.webhook(t, refundBody(f.nextEventID(), order.PaymentDetails.GatewayPaymentID, "rfnd_1", decimal.NewFromInt(10), request.RequestNumber))
		require.NoError(t, err)
		assert.Equal(t, WebhookIgnored, result.Status)

		current := f.reload(t, order.ID)
		assertMoney(t, "10", current.RefundDetails.Amount)
		assert.Equal(t, []string{"rfnd_1"}, current.RefundDetails.GatewayRefundIDs)
	})

	t.Run("webhook first", func(t *testing.T) {
		f := newFixture(t)
		order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00"), product(f.seller, "15.00")))
		request := f.fileReturn(t, order, 0)

		_, err := f.webhook(t, refundBody(f.nextEventID(), order.PaymentDetails.GatewayPaymentID, "rfnd_1", decimal.NewFromInt(10), request.RequestNumber))
		require.NoError(t, err)
		f.approve(t, request)

		current := f.reload(t, order.ID)
		assertMoney(t, "10", current.RefundDetails.Amount)
		assert.Equal(t, domain.PaymentStatusPartiallyRefunded, current.PaymentStatus)
		assert.Equal(t, domain.PayoutItemStatusRefunded, current.Items[0].PayoutStatus)
	})
}

func TestReturnTransitions(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00")))
	request := f.fileReturn(t, order, 0)

	_, err := f.returns.CompleteReturn(f.ctx, f.admin.ID, request.ID)
	var transition *errors.ErrInvalidStateTransition
	require.ErrorAs(t, err, &transition)

	reviewing, err := f.returns.StartReview(f.ctx, f.admin.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusUnderReview, reviewing.Status)

	_, err = f.returns.StartReview(f.ctx, f.admin.ID, request.ID)
	require.ErrorAs(t, err, &transition)

	approved := f.approve(t, reviewing)
	assert.Equal(t, domain.ReturnStatusApproved, approved.Status)
}

func TestAddStudioFeedback(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00")))
	request := f.fileReturn(t, order, 0)

	_, err := f.returns.AddStudioFeedback(f.ctx, f.seller2.ID, request.ID, "not ours")
	var forbidden *errors.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	_, err = f.returns.AddStudioFeedback(f.ctx, f.seller.ID, request.ID, "   ")
	var valErr *errors.ErrValidation
	require.ErrorAs(t, err, &valErr)

	_, err = f.returns.AddStudioFeedback(f.ctx, f.seller.ID, request.ID, "Packed with bubble wrap")
	require.NoError(t, err)
	updated, err := f.returns.AddStudioFeedback(f.ctx, f.seller.ID, request.ID, "Happy to replace it")
	require.NoError(t, err)

	assert.Equal(t, domain.ReturnStatusPending, updated.Status)
	require.Len(t, updated.StudioFeedback, 2)
	assert.Equal(t, "Packed with bubble wrap", updated.StudioFeedback[0].Message)
	assert.Equal(t, f.seller.ID, updated.StudioFeedback[1].SellerID)
}

func TestGetReturn(t *testing.T) {
	f := newFixture(t)
	order := f.deliver(t, f.placeOrder(t, product(f.seller, "10.00")))
	request := f.approve(t, f.fileReturn(t, order, 0))

	view, err := f.returns.GetReturn(f.ctx, f.buyer, request.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Order)
	assert.Equal(t, domain.PaymentStatusRefunded, view.Order.PaymentStatus)
	require.NotNil(t, view.Order.Item)
	assert.Equal(t, domain.PayoutItemStatusRefunded, view.Order.Item.PayoutStatus)
	require.NotNil(t, view.Reviewer)
	assert.Equal(t, f.admin.Name, view.Reviewer.Name)

	_, err = f.returns.GetReturn(f.ctx, f.seller, request.ID)
	require.NoError(t, err)

	_, err = f.returns.GetReturn(f.ctx, f.seller2, request.ID)
	var forbidden *errors.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
}
