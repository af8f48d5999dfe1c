package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/gateway"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

// GatewayClient is the part of the gateway REST API the services call
type GatewayClient interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*gateway.GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.PaymentEntity, error)
}

// WebhookStatus tells the gateway-facing caller what happened to a delivery
type WebhookStatus string

const (
	WebhookProcessed WebhookStatus = "processed"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookDuplicate WebhookStatus = "duplicate"
)

type WebhookResult struct {
	Event   string        `json:"event"`
	Status  WebhookStatus `json:"status"`
	OrderID *uuid.UUID    `json:"orderId,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

type PaymentService struct {
	repos         *repository.Repositories
	promos        *PromoService
	gateway       GatewayClient
	deduper       gateway.Deduper
	publisher     events.Publisher
	keySecret     string
	webhookSecret string
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentService creates a new payment service. gw may be nil.
func NewPaymentService(
	cfg config.GatewayConfig,
	repos *repository.Repositories,
	promos *PromoService,
	gw GatewayClient,
	deduper gateway.Deduper,
	publisher events.Publisher,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repos:         repos,
		promos:        promos,
		gateway:       gw,
		deduper:       deduper,
		publisher:     publisher,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleWebhookEvent verifies and applies one gateway webhook delivery.
// Business outcomes such as an unknown order are acknowledged with an ignored
// result; only signature failures, malformed bodies and store errors are
// returned as errors.
func (s *PaymentService) HandleWebhookEvent(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if !gateway.VerifyWebhookSignature(s.webhookSecret, rawBody, signature) {
		s.logger.Warn("Rejected webhook with invalid signature", zap.Int("body_size", len(rawBody)))
		return nil, &errors.ErrInvalidSignature{Source: "webhook"}
	}

	event, err := gateway.ParseWebhookEvent(rawBody)
	if err != nil {
		return nil, &errors.ErrValidation{Field: "body", Message: err.Error()}
	}

	key := event.DedupeKey()
	if key != "" {
		claimed, err := s.deduper.Claim(ctx, key)
		if err != nil {
			// state checks below still make the delivery idempotent
			s.logger.Warn("Webhook dedupe unavailable", zap.String("key", key), zap.Error(err))
			claimed = true
		}
		if !claimed {
			s.logger.Info("Duplicate webhook delivery", zap.String("event", event.Event), zap.String("key", key))
			return &WebhookResult{Event: event.Event, Status: WebhookDuplicate}, nil
		}
	}

	var result *WebhookResult
	switch event.Event {
	case gateway.EventPaymentCaptured:
		result, err = s.handleCaptured(ctx, event.Payload.Payment.Entity)
	case gateway.EventPaymentFailed:
		result, err = s.handleFailed(ctx, event.Payload.Payment.Entity)
	case gateway.EventRefundProcessed:
		result, err = s.handleRefund(ctx, event.Payload.Refund.Entity)
	default:
		result = &WebhookResult{Status: WebhookIgnored, Reason: "unhandled event"}
	}

	if err != nil {
		if key != "" {
			if relErr := s.deduper.Release(ctx, key); relErr != nil {
				s.logger.Warn("Failed to release webhook dedupe key", zap.String("key", key), zap.Error(relErr))
			}
		}
		s.logger.Error("Failed to process webhook", zap.String("event", event.Event), zap.Error(err))
		return nil, err
	}

	result.Event = event.Event
	s.logger.Info("Webhook handled",
		zap.String("event", event.Event),
		zap.String("status", string(result.Status)),
		zap.String("reason", result.Reason))
	return result, nil
}

// ignoreMissing turns an unknown order into an acknowledged no-op
func (s *PaymentService) ignoreMissing(err error, ref string) (*WebhookResult, error) {
	if errors.IsNotFound(err) {
		s.logger.Warn("Webhook references unknown order", zap.String("ref", ref))
		return &WebhookResult{Status: WebhookIgnored, Reason: "order not found"}, nil
	}
	return nil, err
}

func (s *PaymentService) handleCaptured(ctx context.Context, payment gateway.PaymentEntity) (*WebhookResult, error) {
	payment, err := s.resolvePaymentOrder(ctx, payment)
	if err != nil {
		return nil, err
	}

	in := captureInput{
		GatewayOrderID:   payment.OrderID,
		GatewayPaymentID: payment.ID,
		Method:           payment.Method,
		Amount:           payment.AmountDecimal(),
		PaidAt:           s.now(),
	}
	if payment.CreatedAt > 0 {
		in.PaidAt = time.Unix(payment.CreatedAt, 0).UTC()
	}

	order, outcome, err := s.capture(ctx, in, "gateway:webhook", func(tx *repository.Repositories) (*domain.Order, error) {
		return locateByPayment(ctx, tx, payment)
	})
	if err != nil {
		return s.ignoreMissing(err, paymentRef(payment))
	}

	result := &WebhookResult{OrderID: &order.ID, Status: WebhookProcessed}
	switch outcome {
	case captureRepeated:
		result.Status, result.Reason = WebhookIgnored, "already captured"
	case captureConflict:
		result.Status, result.Reason = WebhookIgnored, "captured with a different payment"
	case captureAmountMismatch:
		result.Status, result.Reason = WebhookIgnored, "captured amount does not match order total"
	}
	return result, nil
}

// resolvePaymentOrder fills in the gateway order id of a payment entity that
// carries only a payment id, asking the gateway when a client is configured.
func (s *PaymentService) resolvePaymentOrder(ctx context.Context, payment gateway.PaymentEntity) (gateway.PaymentEntity, error) {
	if payment.OrderID != "" || payment.ID == "" || s.gateway == nil {
		return payment, nil
	}
	fetched, err := s.gateway.FetchPayment(ctx, payment.ID)
	if err != nil {
		return payment, fmt.Errorf("failed to fetch payment %s: %w", payment.ID, err)
	}
	payment.OrderID = fetched.OrderID
	return payment, nil
}

// locateByPayment finds the order by gateway order id, falling back to a
// previously recorded gateway payment id
func locateByPayment(ctx context.Context, tx *repository.Repositories, payment gateway.PaymentEntity) (*domain.Order, error) {
	if payment.OrderID != "" {
		return tx.Order.GetByGatewayOrderID(ctx, payment.OrderID)
	}
	return tx.Order.GetByGatewayPaymentID(ctx, payment.ID)
}

func paymentRef(payment gateway.PaymentEntity) string {
	if payment.OrderID != "" {
		return payment.OrderID
	}
	return payment.ID
}

func (s *PaymentService) handleFailed(ctx context.Context, payment gateway.PaymentEntity) (*WebhookResult, error) {
	payment, err := s.resolvePaymentOrder(ctx, payment)
	if err != nil {
		return nil, err
	}

	var (
		order   *domain.Order
		changed bool
	)
	err = s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		if order, err = locateByPayment(ctx, tx, payment); err != nil {
			return err
		}

		// a failure reported after a capture is stale
		if !order.PaymentStatus.CanTransitionTo(domain.PaymentStatusFailed) {
			return nil
		}

		reason := payment.ErrorDescription
		if reason == "" {
			reason = "payment failed"
		}
		if order.PaymentStatus == domain.PaymentStatusFailed &&
			order.PaymentDetails.FailureReason != nil && *order.PaymentDetails.FailureReason == reason {
			return nil
		}

		order.PaymentStatus = domain.PaymentStatusFailed
		order.PaymentDetails.FailureReason = &reason
		if payment.ID != "" {
			order.PaymentDetails.GatewayPaymentID = payment.ID
		}
		if payment.Method != "" {
			order.PaymentDetails.Method = payment.Method
		}
		changed = true
		return tx.Order.Update(ctx, order)
	})
	if err != nil {
		return s.ignoreMissing(err, paymentRef(payment))
	}

	if !changed {
		return &WebhookResult{OrderID: &order.ID, Status: WebhookIgnored, Reason: "payment already " + string(order.PaymentStatus)}, nil
	}

	publish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderPaymentFailed, order.ID, map[string]interface{}{
		"gatewayPaymentId": payment.ID,
		"reason":           *order.PaymentDetails.FailureReason,
	}))
	return &WebhookResult{OrderID: &order.ID, Status: WebhookProcessed}, nil
}

func (s *PaymentService) handleRefund(ctx context.Context, refund gateway.RefundEntity) (*WebhookResult, error) {
	var (
		order  *domain.Order
		reason string
		added  decimal.Decimal
	)
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		if order, err = tx.Order.GetByGatewayPaymentID(ctx, refund.PaymentID); err != nil {
			return err
		}
		if !order.PaymentStatus.IsCaptured() {
			reason = "payment not captured"
			return nil
		}
		if contains(order.RefundDetails.GatewayRefundIDs, refund.ID) {
			reason = "refund already recorded"
			return nil
		}

		order.RefundDetails.GatewayRefundIDs = append(order.RefundDetails.GatewayRefundIDs, refund.ID)

		number := refund.ReturnRequestNumber()
		if number != "" && contains(order.RefundDetails.ReturnRequestNumbers, number) {
			// the approved return already counted this money
			reason = "refund already counted by return " + number
			return tx.Order.Update(ctx, order)
		}
		if number != "" {
			order.RefundDetails.ReturnRequestNumbers = append(order.RefundDetails.ReturnRequestNumbers, number)
		}

		added = minDecimal(refund.AmountDecimal(), order.RefundableAmount())
		applyRefund(order, added, s.now())
		if !order.RefundDetails.Amount.LessThan(order.Total) {
			order.PaymentStatus = domain.PaymentStatusRefunded
		} else if order.PaymentStatus != domain.PaymentStatusRefunded {
			order.PaymentStatus = domain.PaymentStatusPartiallyRefunded
		}
		return tx.Order.Update(ctx, order)
	})
	if err != nil {
		return s.ignoreMissing(err, refund.PaymentID)
	}

	if reason != "" {
		return &WebhookResult{OrderID: &order.ID, Status: WebhookIgnored, Reason: reason}, nil
	}

	publish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderRefunded, order.ID, map[string]interface{}{
		"gatewayRefundId": refund.ID,
		"amount":          added,
		"refundedTotal":   order.RefundDetails.Amount,
		"paymentStatus":   order.PaymentStatus,
	}))
	return &WebhookResult{OrderID: &order.ID, Status: WebhookProcessed}, nil
}

// VerifyReturnFlow confirms a payment from the buyer's checkout return. A bad
// signature is rejected before anything is read or written.
func (s *PaymentService) VerifyReturnFlow(ctx context.Context, buyerID uuid.UUID, req VerifyPaymentRequest) (*PaymentVerification, error) {
	if !gateway.VerifyReturnCallback(s.keySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.logger.Warn("Rejected checkout return with invalid signature", zap.String("order_id", req.OrderID.String()))
		return nil, &errors.ErrInvalidSignature{Source: "payment"}
	}

	order, err := s.repos.Order.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, &errors.ErrForbidden{Message: "order belongs to another buyer"}
	}
	if order.PaymentDetails.GatewayOrderID != req.GatewayOrderID {
		return nil, &errors.ErrInvalidState{Message: "gateway order id does not match the order"}
	}

	in := captureInput{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Amount:           order.Total,
		PaidAt:           s.now(),
	}
	if s.gateway != nil {
		payment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payment: %w", err)
		}
		if payment.OrderID != "" && payment.OrderID != req.GatewayOrderID {
			return nil, &errors.ErrInvalidState{Message: "payment belongs to another gateway order"}
		}
		if !payment.Captured() {
			s.logger.Warn("Checkout return for an uncaptured payment",
				zap.String("order_id", order.ID.String()),
				zap.String("payment_id", req.GatewayPaymentID),
				zap.String("gateway_status", payment.Status))
			return nil, &errors.ErrInvalidState{Message: "payment is not captured (gateway status " + payment.Status + ")"}
		}
		if payment.Amount != domain.ToMinorUnits(order.Total) {
			return nil, &errors.ErrInvalidState{Message: "payment amount does not match the order total"}
		}
		in.Method = payment.Method
		in.Amount = payment.AmountDecimal()
	}

	order, outcome, err := s.capture(ctx, in, "buyer:"+buyerID.String(), func(tx *repository.Repositories) (*domain.Order, error) {
		return tx.Order.GetByID(ctx, req.OrderID)
	})
	if err != nil {
		return nil, err
	}
	switch outcome {
	case captureConflict:
		return nil, &errors.ErrInvalidState{Message: "order was paid with a different payment"}
	case captureAmountMismatch:
		return nil, &errors.ErrInvalidState{Message: "payment amount does not match the order total"}
	}

	return &PaymentVerification{
		OrderID:          order.ID,
		GatewayOrderID:   order.PaymentDetails.GatewayOrderID,
		GatewayPaymentID: order.PaymentDetails.GatewayPaymentID,
		Method:           order.PaymentDetails.Method,
		Amount:           order.PaymentDetails.Amount,
		PaidAt:           order.PaymentDetails.PaidAt,
		AlreadyPaid:      outcome == captureRepeated,
	}, nil
}

type captureInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Method           string
	Amount           decimal.Decimal
	PaidAt           time.Time
}

type captureOutcome int

const (
	captureApplied captureOutcome = iota
	captureRepeated
	captureConflict
	captureAmountMismatch
)

// capture moves an order to paid. The decision is made on the locked current
// state, so a replayed or reordered confirmation writes nothing.
func (s *PaymentService) capture(
	ctx context.Context,
	in captureInput,
	actor string,
	locate func(tx *repository.Repositories) (*domain.Order, error),
) (*domain.Order, captureOutcome, error) {
	var (
		order   *domain.Order
		outcome captureOutcome
	)
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		if order, err = locate(tx); err != nil {
			return err
		}

		if order.PaymentStatus.IsCaptured() {
			if order.PaymentDetails.GatewayPaymentID == in.GatewayPaymentID {
				outcome = captureRepeated
			} else {
				outcome = captureConflict
				s.logger.Warn("Capture for an order already paid with another payment",
					zap.String("order_id", order.ID.String()),
					zap.String("recorded_payment_id", order.PaymentDetails.GatewayPaymentID),
					zap.String("payment_id", in.GatewayPaymentID))
			}
			return nil
		}

		// an envelope without an amount is taken at the order total
		amount := in.Amount
		if amount.IsZero() {
			amount = order.Total
		}
		if domain.ToMinorUnits(amount) != domain.ToMinorUnits(order.Total) {
			outcome = captureAmountMismatch
			s.logger.Warn("Captured amount does not match order total",
				zap.String("order_id", order.ID.String()),
				zap.String("payment_id", in.GatewayPaymentID),
				zap.String("amount", amount.StringFixed(2)),
				zap.String("total", order.Total.StringFixed(2)))
			return nil
		}

		now := s.now()
		paidAt := in.PaidAt

		order.PaymentStatus = domain.PaymentStatusPaid
		if order.PaymentDetails.GatewayOrderID == "" {
			order.PaymentDetails.GatewayOrderID = in.GatewayOrderID
		}
		order.PaymentDetails.GatewayPaymentID = in.GatewayPaymentID
		if in.Method != "" {
			order.PaymentDetails.Method = in.Method
		}
		order.PaymentDetails.Amount = amount
		order.PaymentDetails.PaidAt = &paidAt
		order.PaymentDetails.FailureReason = nil

		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
			order.Track(domain.OrderStatusConfirmed, actor, "Payment captured", now)
		} else {
			s.logger.Warn("Payment captured for order in non-pending status",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status)))
			order.Track(order.Status, actor, "Payment captured", now)
		}

		outcome = captureApplied
		return tx.Order.Update(ctx, order)
	})
	if err != nil {
		return nil, 0, err
	}

	if outcome == captureApplied {
		if order.PromoCode != nil {
			s.promos.consume(ctx, *order.PromoCode, order.ID)
		}
		publish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderPaid, order.ID, map[string]interface{}{
			"gatewayOrderId":   order.PaymentDetails.GatewayOrderID,
			"gatewayPaymentId": order.PaymentDetails.GatewayPaymentID,
			"amount":           order.PaymentDetails.Amount,
		}))
		s.logger.Info("Payment captured",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_id", in.GatewayPaymentID))
	}
	return order, outcome, nil
}

// applyRefund adds amount to the order's refund ledger
func applyRefund(order *domain.Order, amount decimal.Decimal, at time.Time) {
	order.RefundDetails.Amount = order.RefundDetails.Amount.Add(amount)
	order.RefundDetails.Status = domain.RefundStatusProcessed
	order.RefundDetails.ProcessedAt = &at
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
