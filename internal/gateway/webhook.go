package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/settlement/internal/domain"
)

// Webhook event names the settlement engine reacts to
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEvent is the decoded gateway envelope.
// Amounts arrive in minor units and are converted by the accessor methods.
type WebhookEvent struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment *PaymentEnvelope `json:"payment,omitempty"`
	Refund  *RefundEnvelope  `json:"refund,omitempty"`
}

type PaymentEnvelope struct {
	Entity PaymentEntity `json:"entity"`
}

type RefundEnvelope struct {
	Entity RefundEntity `json:"entity"`
}

// Payment states reported by the gateway
const (
	PaymentStateCreated    = "created"
	PaymentStateAuthorized = "authorized"
	PaymentStateCaptured   = "captured"
	PaymentStateFailed     = "failed"
	PaymentStateRefunded   = "refunded"
)

// PaymentEntity is the gateway's view of a payment
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

func (p PaymentEntity) AmountDecimal() decimal.Decimal {
	return domain.FromMinorUnits(p.Amount)
}

// Captured reports whether the gateway holds the money for this payment.
// A refunded payment was captured first.
func (p PaymentEntity) Captured() bool {
	return p.Status == PaymentStateCaptured || p.Status == PaymentStateRefunded
}

// RefundEntity is the gateway's view of a refund. Notes may carry the return
// request number the refund was issued for.
type RefundEntity struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"`
	Notes     map[string]string `json:"notes"`
	CreatedAt int64             `json:"created_at"`
}

func (r RefundEntity) AmountDecimal() decimal.Decimal {
	return domain.FromMinorUnits(r.Amount)
}

// ReturnRequestNumber returns the request number noted on the refund, if any
func (r RefundEntity) ReturnRequestNumber() string {
	return r.Notes["returnRequestNumber"]
}

// ParseWebhookEvent decodes a raw webhook body. It checks only the shape
// required by the events that are handled; unknown events pass through.
func ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook body: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook body has no event name")
	}

	switch event.Event {
	case EventPaymentCaptured, EventPaymentFailed:
		if event.Payload.Payment == nil {
			return nil, fmt.Errorf("%s event has no payment entity", event.Event)
		}
		if event.Payload.Payment.Entity.ID == "" && event.Payload.Payment.Entity.OrderID == "" {
			return nil, fmt.Errorf("%s event has neither payment nor order id", event.Event)
		}
	case EventRefundProcessed:
		if event.Payload.Refund == nil {
			return nil, fmt.Errorf("%s event has no refund entity", event.Event)
		}
		if event.Payload.Refund.Entity.PaymentID == "" {
			return nil, fmt.Errorf("%s event has no payment id", event.Event)
		}
	}
	return &event, nil
}

// DedupeKey identifies the delivery for replay suppression. Envelopes without
// an id fall back to the entity id and event name.
func (e *WebhookEvent) DedupeKey() string {
	if e.ID != "" {
		return e.ID
	}
	switch {
	case e.Payload.Refund != nil && e.Payload.Refund.Entity.ID != "":
		return e.Event + ":" + e.Payload.Refund.Entity.ID
	case e.Payload.Payment != nil && e.Payload.Payment.Entity.ID != "":
		return e.Event + ":" + e.Payload.Payment.Entity.ID
	}
	return ""
}
