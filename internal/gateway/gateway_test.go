package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/config"
)

func TestVerifyReturnCallback(t *testing.T) {
	sig := SignReturnCallback("secret", "order_1", "pay_1")

	assert.True(t, VerifyReturnCallback("secret", "order_1", "pay_1", sig))
	assert.False(t, VerifyReturnCallback("secret", "order_1", "pay_2", sig))
	assert.False(t, VerifyReturnCallback("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyReturnCallback("secret", "order_1", "pay_1", ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifyWebhookSignature("whsec", body, sig))
	assert.False(t, VerifyWebhookSignature("whsec", []byte(`{"event":"payment.failed"}`), sig))
	assert.False(t, VerifyWebhookSignature("whsec", body, "deadbeef"))
}

func TestParseWebhookEvent(t *testing.T) {
	t.Run("captured payment", func(t *testing.T) {
		event, err := ParseWebhookEvent([]byte(`{
			"id": "evt_1",
			"event": "payment.captured",
			"payload": {"payment": {"entity": {"id": "pay_1", "order_id": "order_1", "amount": 12550, "method": "card"}}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentCaptured, event.Event)
		assert.Equal(t, "125.5", event.Payload.Payment.Entity.AmountDecimal().String())
		assert.Equal(t, "evt_1", event.DedupeKey())
	})

	t.Run("refund with return request note", func(t *testing.T) {
		event, err := ParseWebhookEvent([]byte(`{
			"event": "refund.processed",
			"payload": {"refund": {"entity": {"id": "rfnd_1", "payment_id": "pay_1", "amount": 500, "notes": {"returnRequestNumber": "RET-20240101-ABC123"}}}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "RET-20240101-ABC123", event.Payload.Refund.Entity.ReturnRequestNumber())
		assert.Equal(t, "refund.processed:rfnd_1", event.DedupeKey())
	})

	t.Run("unknown event passes through", func(t *testing.T) {
		event, err := ParseWebhookEvent([]byte(`{"event": "settlement.processed", "payload": {}}`))
		require.NoError(t, err)
		assert.Equal(t, "settlement.processed", event.Event)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseWebhookEvent([]byte(`{"event":`))
		assert.Error(t, err)
	})

	t.Run("payment event without entity", func(t *testing.T) {
		_, err := ParseWebhookEvent([]byte(`{"event": "payment.captured", "payload": {}}`))
		assert.Error(t, err)
	})
}

func TestClient_CreateOrderAndFetchPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
			var req createOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(GatewayOrder{ID: "order_abc", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payments/pay_1":
			json.NewEncoder(w).Encode(PaymentEntity{ID: "pay_1", OrderID: "order_abc", Amount: 1000, Method: "upi"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(config.GatewayConfig{KeyID: "key_id", KeySecret: "key_secret", APIBaseURL: server.URL + "/"}, zap.NewNop())
	ctx := context.Background()

	order, err := client.CreateOrder(ctx, 1000, "INR", "rcpt-1")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(1000), order.Amount)

	payment, err := client.FetchPayment(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "upi", payment.Method)

	_, err = client.FetchPayment(ctx, "pay_missing")
	assert.Error(t, err)
}
