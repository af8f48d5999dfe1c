package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusShipped, false},
		{OrderStatusDelivered, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_OnlyForward(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusPaid))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPaid))
	assert.True(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusPartiallyRefunded))
	assert.True(t, PaymentStatusPartiallyRefunded.CanTransitionTo(PaymentStatusRefunded))

	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusPartiallyRefunded))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusPaid))
}

func TestPayoutItemStatus_RefundedIsTerminal(t *testing.T) {
	for _, to := range []PayoutItemStatus{PayoutItemStatusPending, PayoutItemStatusPaid, PayoutItemStatusRefunded} {
		assert.False(t, PayoutItemStatusRefunded.CanTransitionTo(to), "refunded -> %s", to)
	}
	assert.True(t, PayoutItemStatusPending.CanTransitionTo(PayoutItemStatusPaid))
	assert.True(t, PayoutItemStatusPaid.CanTransitionTo(PayoutItemStatusRefunded))
	assert.False(t, PayoutItemStatusPaid.CanTransitionTo(PayoutItemStatusPending))
}

func TestPayoutStatus_TerminalStates(t *testing.T) {
	for _, s := range []PayoutStatus{PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.CanTransitionTo(PayoutStatusPending))
		assert.False(t, s.CanTransitionTo(PayoutStatusProcessing))
	}
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusProcessing))
	assert.True(t, PayoutStatusProcessing.CanTransitionTo(PayoutStatusCompleted))
	assert.False(t, PayoutStatusProcessing.CanTransitionTo(PayoutStatusPending))
}

func TestReturnStatus_Open(t *testing.T) {
	assert.True(t, ReturnStatusPending.IsOpen())
	assert.True(t, ReturnStatusUnderReview.IsOpen())
	assert.True(t, ReturnStatusApproved.IsOpen())
	assert.False(t, ReturnStatusRejected.IsOpen())
	assert.False(t, ReturnStatusCompleted.IsOpen())

	assert.True(t, ReturnStatusApproved.CanTransitionTo(ReturnStatusCompleted))
	assert.False(t, ReturnStatusRejected.CanTransitionTo(ReturnStatusApproved))
}

func TestItemType_IsReturnable(t *testing.T) {
	assert.True(t, ItemTypeProduct.IsReturnable())
	assert.False(t, ItemTypeCourse.IsReturnable())
	assert.False(t, ItemTypeWorkshop.IsReturnable())
}
