package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type OrderService struct {
	repos     *repository.Repositories
	promos    *PromoService
	gateway   GatewayClient
	currency  string
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service. gw may be nil, in which case
// gateway order ids are generated locally.
func NewOrderService(
	repos *repository.Repositories,
	promos *PromoService,
	gw GatewayClient,
	currency string,
	publisher events.Publisher,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		repos:     repos,
		promos:    promos,
		gateway:   gw,
		currency:  currency,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder places a buyer checkout. The promo code is priced but not
// consumed; usage is counted when the payment is captured.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, req CreateOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, &errors.ErrValidation{Field: "items", Message: "at least one item is required"}
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		RefundDetails: domain.RefundDetails{Status: domain.RefundStatusNone},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sellers := make(map[uuid.UUID]bool)
	for i, in := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if !in.ItemType.IsValid() {
			return nil, &errors.ErrValidation{Field: field + ".itemType", Message: "must be product, course or workshop"}
		}
		if in.Price.IsNegative() {
			return nil, &errors.ErrValidation{Field: field + ".price", Message: "must not be negative"}
		}
		if in.Quantity < 1 {
			return nil, &errors.ErrValidation{Field: field + ".quantity", Message: "must be at least 1"}
		}
		if !sellers[in.SellerID] {
			if err := s.checkSeller(ctx, in.SellerID); err != nil {
				return nil, err
			}
			sellers[in.SellerID] = true
		}

		item := domain.OrderItem{
			ID:           uuid.New(),
			ItemRef:      in.ItemRef,
			ItemType:     in.ItemType,
			Name:         in.Name,
			SellerID:     in.SellerID,
			Price:        in.Price,
			Quantity:     in.Quantity,
			PayoutStatus: domain.PayoutItemStatusPending,
		}
		order.Items = append(order.Items, item)
		order.Subtotal = order.Subtotal.Add(item.LineTotal())
	}

	if req.PromoCode != nil && strings.TrimSpace(*req.PromoCode) != "" {
		discount, err := s.promos.Validate(ctx, *req.PromoCode, order.Subtotal, &buyerID)
		if err != nil {
			return nil, err
		}
		code := discount.Code
		order.PromoCode = &code
		order.DiscountAmount = discount.DiscountAmount
	}
	order.Total = order.Subtotal.Sub(order.DiscountAmount)

	gatewayOrderID, err := s.gatewayOrderID(ctx, order)
	if err != nil {
		return nil, err
	}
	order.PaymentDetails = domain.PaymentDetails{
		GatewayOrderID: gatewayOrderID,
		Amount:         order.Total,
	}
	order.Track(domain.OrderStatusPending, "buyer:"+buyerID.String(), "Order placed", now)

	if err := s.repos.Order.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("total", order.Total.StringFixed(2)))
	return order, nil
}

func (s *OrderService) checkSeller(ctx context.Context, sellerID uuid.UUID) error {
	seller, err := s.repos.Principal.GetByID(ctx, sellerID)
	if err != nil {
		if errors.IsNotFound(err) {
			return &errors.ErrValidation{Field: "sellerId", Message: "unknown seller " + sellerID.String()}
		}
		return err
	}
	if seller.Role != domain.RoleSeller || !seller.IsActive {
		return &errors.ErrValidation{Field: "sellerId", Message: "not an active seller: " + sellerID.String()}
	}
	return nil
}

func (s *OrderService) gatewayOrderID(ctx context.Context, order *domain.Order) (string, error) {
	if s.gateway == nil {
		return "order_" + strings.ReplaceAll(order.ID.String(), "-", "")[:14], nil
	}
	gwOrder, err := s.gateway.CreateOrder(ctx, domain.ToMinorUnits(order.Total), s.currency, order.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create gateway order: %w", err)
	}
	return gwOrder.ID, nil
}

// ApplyShippingUpdate records a seller's fulfillment progress. The seller must
// own at least one item of the order. Reporting the current status again only
// appends tracking, since each seller of a shared order reports separately.
func (s *OrderService) ApplyShippingUpdate(ctx context.Context, orderID, sellerID uuid.UUID, req ShippingUpdateRequest) (*domain.Order, error) {
	if !req.Status.IsValid() {
		return nil, &errors.ErrValidation{Field: "status", Message: "unknown order status"}
	}
	if req.Status == domain.OrderStatusPending || req.Status == domain.OrderStatusConfirmed {
		return nil, &errors.ErrValidation{Field: "status", Message: "orders are confirmed by payment capture"}
	}

	var (
		updated *domain.Order
		from    domain.OrderStatus
	)
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Order.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.HasSeller(sellerID) {
			return &errors.ErrNotFound{Resource: "order", ID: orderID.String()}
		}

		from = order.Status
		if order.Status != req.Status && !order.Status.CanTransitionTo(req.Status) {
			return &errors.ErrInvalidStateTransition{
				Entity: "order status",
				From:   string(order.Status),
				To:     string(req.Status),
			}
		}

		message := req.Message
		if message == "" {
			message = "Status updated to " + string(req.Status)
		}
		event := domain.TrackingEvent{
			Status:    req.Status,
			Message:   message,
			Actor:     "seller:" + sellerID.String(),
			Timestamp: s.now(),
		}
		if req.Tracking != nil {
			event.Carrier = req.Tracking.Carrier
			event.TrackingNumber = req.Tracking.TrackingNumber
			event.TrackingURL = req.Tracking.TrackingURL
		}

		order.Status = req.Status
		order.TrackingHistory = append(order.TrackingHistory, event)
		if err := tx.Order.Update(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != updated.Status {
		s.publishStatusChanged(ctx, updated, from)
	}
	return updated, nil
}

// CancelOrder cancels an order from any state but cancelled. Money already
// captured is returned through the gateway, not here.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*domain.Order, error) {
	var (
		updated *domain.Order
		from    domain.OrderStatus
	)
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Order.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return &errors.ErrInvalidStateTransition{
				Entity: "order status",
				From:   string(order.Status),
				To:     string(domain.OrderStatusCancelled),
			}
		}

		from = order.Status
		order.Status = domain.OrderStatusCancelled
		order.Track(domain.OrderStatusCancelled, "admin:"+actorID.String(), "Order cancelled: "+reason, s.now())
		if err := tx.Order.Update(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled", zap.String("order_id", orderID.String()), zap.String("actor_id", actorID.String()))
	s.publishStatusChanged(ctx, updated, from)
	return updated, nil
}

// GetOrder returns an order the viewer may see: admins see every order,
// buyers their own and sellers those holding one of their items.
func (s *OrderService) GetOrder(ctx context.Context, viewer *domain.Principal, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch viewer.Role {
	case domain.RoleAdmin:
		return order, nil
	case domain.RoleBuyer:
		if order.BuyerID == viewer.ID {
			return order, nil
		}
	case domain.RoleSeller:
		if order.HasSeller(viewer.ID) {
			return order, nil
		}
	}
	return nil, &errors.ErrForbidden{Message: "access denied"}
}

func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	return s.repos.Order.List(ctx, filter)
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus) {
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderStatusChanged, order.ID, map[string]interface{}{
		"from": from,
		"to":   order.Status,
	}))
}

// publish delivers an event after commit. Failures are logged only.
func publish(ctx context.Context, publisher events.Publisher, logger *zap.Logger, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish settlement event",
			zap.String("type", event.Type),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err))
	}
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
