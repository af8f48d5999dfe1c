package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/gateway"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/internal/repository/memory"
)

const (
	testWebhookSecret = "whsec_test"
	testKeySecret     = "key_secret_test"
)

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	repos    *repository.Repositories
	recorder *events.Recorder
	deduper  *mapDeduper
	promos   *PromoService
	orders   *OrderService
	payments *PaymentService
	payouts  *PayoutService
	returns  *ReturnService
	buyer    *domain.Principal
	seller   *domain.Principal
	seller2  *domain.Principal
	admin    *domain.Principal
	now      time.Time
	eventSeq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    memory.NewStore(),
		recorder: &events.Recorder{},
		deduper:  newMapDeduper(),
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	f.repos = memory.NewRepositories(f.store, logger)

	rates := config.SettlementConfig{
		PlatformCommissionRate: decimal.RequireFromString("0.10"),
		PaymentProcessingRate:  decimal.RequireFromString("0.03"),
	}
	gw := config.GatewayConfig{KeySecret: testKeySecret, WebhookSecret: testWebhookSecret}
	clock := func() time.Time { return f.now }

	f.promos = NewPromoService(f.repos, logger)
	f.promos.now = clock
	f.orders = NewOrderService(f.repos, f.promos, nil, "INR", f.recorder, logger)
	f.orders.now = clock
	f.payments = NewPaymentService(gw, f.repos, f.promos, nil, f.deduper, f.recorder, logger)
	f.payments.now = clock
	f.payouts = NewPayoutService(rates, f.repos, f.recorder, logger)
	f.payouts.now = clock
	f.returns = NewReturnService(f.repos, f.recorder, logger)
	f.returns.now = clock

	f.buyer = f.principal(t, "Buyer", domain.RoleBuyer)
	f.seller = f.principal(t, "Clay Studio", domain.RoleSeller)
	f.seller2 = f.principal(t, "Loom Studio", domain.RoleSeller)
	f.admin = f.principal(t, "Admin", domain.RoleAdmin)
	return f
}

func (f *fixture) principal(t *testing.T, name string, role domain.Role) *domain.Principal {
	t.Helper()
	p := &domain.Principal{
		Name:     name,
		Email:    name + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, f.repos.Principal.Create(f.ctx, p))
	return p
}

type lineSpec struct {
	seller   *domain.Principal
	price    string
	itemType domain.ItemType
}

func product(seller *domain.Principal, price string) lineSpec {
	return lineSpec{seller: seller, price: price, itemType: domain.ItemTypeProduct}
}

// placeOrder creates a pending order for the fixture buyer
func (f *fixture) placeOrder(t *testing.T, lines ...lineSpec) *domain.Order {
	t.Helper()
	req := CreateOrderRequest{}
	for i, l := range lines {
		req.Items = append(req.Items, CreateOrderItem{
			ItemRef:  fmt.Sprintf("ref-%d", i),
			ItemType: l.itemType,
			Name:     fmt.Sprintf("Item %d", i),
			SellerID: l.seller.ID,
			Price:    decimal.RequireFromString(l.price),
			Quantity: 1,
		})
	}
	order, err := f.orders.CreateOrder(f.ctx, f.buyer.ID, req)
	require.NoError(t, err)
	return order
}

func (f *fixture) nextEventID() string {
	f.eventSeq++
	return fmt.Sprintf("evt_%03d", f.eventSeq)
}

func (f *fixture) webhook(t *testing.T, body []byte) (*WebhookResult, error) {
	t.Helper()
	return f.payments.HandleWebhookEvent(f.ctx, body, gateway.Sign(testWebhookSecret, body))
}

func capturedBody(eventID, gatewayOrderID, paymentID string, amount decimal.Decimal) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":    eventID,
		"event": gateway.EventPaymentCaptured,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": gatewayOrderID,
					"amount":   domain.ToMinorUnits(amount),
					"method":   "card",
				},
			},
		},
	})
	return body
}

func failedBody(eventID, gatewayOrderID, paymentID, reason string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":    eventID,
		"event": gateway.EventPaymentFailed,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":                paymentID,
					"order_id":          gatewayOrderID,
					"error_description": reason,
				},
			},
		},
	})
	return body
}

func refundBody(eventID, paymentID, refundID string, amount decimal.Decimal, requestNumber string) []byte {
	entity := map[string]interface{}{
		"id":         refundID,
		"payment_id": paymentID,
		"amount":     domain.ToMinorUnits(amount),
	}
	if requestNumber != "" {
		entity["notes"] = map[string]string{"returnRequestNumber": requestNumber}
	}
	body, _ := json.Marshal(map[string]interface{}{
		"id":      eventID,
		"event":   gateway.EventRefundProcessed,
		"payload": map[string]interface{}{"refund": map[string]interface{}{"entity": entity}},
	})
	return body
}

// pay captures the order through a webhook and returns the reloaded order
func (f *fixture) pay(t *testing.T, order *domain.Order) *domain.Order {
	t.Helper()
	paymentID := "pay_" + uuid.NewString()[:8]
	result, err := f.webhook(t, capturedBody(f.nextEventID(), order.PaymentDetails.GatewayOrderID, paymentID, order.Total))
	require.NoError(t, err)
	require.Equal(t, WebhookProcessed, result.Status)
	return f.reload(t, order.ID)
}

// deliver pays for the order and walks it to delivered
func (f *fixture) deliver(t *testing.T, order *domain.Order) *domain.Order {
	t.Helper()
	order = f.pay(t, order)
	sellers := map[uuid.UUID]bool{}
	for _, item := range order.Items {
		sellers[item.SellerID] = true
	}
	var sellerID uuid.UUID
	for id := range sellers {
		sellerID = id
		break
	}
	for _, status := range []domain.OrderStatus{domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		_, err := f.orders.ApplyShippingUpdate(f.ctx, order.ID, sellerID, ShippingUpdateRequest{Status: status})
		require.NoError(t, err)
	}
	return f.reload(t, order.ID)
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *domain.Order {
	t.Helper()
	order, err := f.repos.Order.GetByID(f.ctx, orderID)
	require.NoError(t, err)
	return order
}

func (f *fixture) period() (time.Time, time.Time) {
	return f.now.Add(-time.Hour), f.now.Add(time.Hour)
}

func (f *fixture) createPayout(seller *domain.Principal) (*domain.Payout, error) {
	start, end := f.period()
	return f.payouts.CreatePayout(f.ctx, f.admin.ID, CreatePayoutRequest{
		SellerID:    seller.ID,
		PeriodStart: start,
		PeriodEnd:   end,
	})
}

func (f *fixture) fileReturn(t *testing.T, order *domain.Order, itemIndex int) *domain.ReturnRequest {
	t.Helper()
	request, err := f.returns.FileReturn(f.ctx, f.buyer.ID, FileReturnRequest{
		OrderID: order.ID,
		ItemID:  order.Items[itemIndex].ID,
		Type:    domain.ReturnTypeRefund,
		Reason:  domain.ReturnReasonDamaged,
	})
	require.NoError(t, err)
	return request
}

func (f *fixture) approve(t *testing.T, request *domain.ReturnRequest) *domain.ReturnRequest {
	t.Helper()
	decided, err := f.returns.DecideReturn(f.ctx, f.admin.ID, request.ID, DecideReturnRequest{Decision: domain.ReviewDecisionApproved})
	require.NoError(t, err)
	return decided
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual),
		append([]interface{}{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

// mapDeduper is an in-process Deduper
type mapDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMapDeduper() *mapDeduper {
	return &mapDeduper{seen: make(map[string]bool)}
}

func (d *mapDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *mapDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
