package service

import (
	"context"
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

type ReturnService struct {
	repos     *repository.Repositories
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewReturnService creates a new return service
func NewReturnService(repos *repository.Repositories, publisher events.Publisher, logger *zap.Logger) *ReturnService {
	return &ReturnService{
		repos:     repos,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// NewRequestNumber builds a human-readable number like RET-20240131-4F9A1C
func NewRequestNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "RET-" + at.UTC().Format("20060102") + "-" + suffix
}

// FileReturn opens a return request against one delivered order item
func (s *ReturnService) FileReturn(ctx context.Context, buyerID uuid.UUID, req FileReturnRequest) (*domain.ReturnRequest, error) {
	if !req.Type.IsValid() {
		return nil, &errors.ErrValidation{Field: "type", Message: "must be return or refund"}
	}
	if !req.Reason.IsValid() {
		return nil, &errors.ErrValidation{Field: "reason", Message: "unknown return reason"}
	}
	for _, e := range req.Evidence {
		if (e.Type != domain.EvidenceTypeImage && e.Type != domain.EvidenceTypeVideo) || e.URL == "" {
			return nil, &errors.ErrValidation{Field: "evidence", Message: "evidence needs an image or video url"}
		}
	}

	order, err := s.repos.Order.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, &errors.ErrForbidden{Message: "order belongs to another buyer"}
	}
	if order.Status != domain.OrderStatusDelivered {
		return nil, &errors.ErrInvalidState{Message: "only delivered orders can be returned"}
	}

	item := order.FindItem(req.ItemID)
	if item == nil {
		return nil, &errors.ErrNotFound{Resource: "order item", ID: req.ItemID.String()}
	}
	if !item.ItemType.IsReturnable() {
		return nil, &errors.ErrInvalidState{Message: string(item.ItemType) + " items cannot be returned"}
	}
	if item.PayoutStatus == domain.PayoutItemStatusRefunded {
		return nil, &errors.ErrInvalidState{Message: "item was already refunded"}
	}

	maxAmount := item.LineTotal()
	amount := maxAmount
	if req.RefundAmount != nil {
		amount = *req.RefundAmount
	}
	if !amount.IsPositive() || amount.GreaterThan(maxAmount) {
		return nil, &errors.ErrValidation{Field: "refundAmount", Message: "must be positive and at most " + maxAmount.StringFixed(2)}
	}

	now := s.now()
	request := &domain.ReturnRequest{
		ID:            uuid.New(),
		RequestNumber: NewRequestNumber(now),
		OrderID:       order.ID,
		BuyerID:       buyerID,
		Item: domain.ReturnItemSnapshot{
			OrderItemID: item.ID,
			ItemRef:     item.ItemRef,
			ItemType:    item.ItemType,
			Name:        item.Name,
			Price:       item.Price,
			Quantity:    item.Quantity,
			SellerID:    item.SellerID,
		},
		Type:           req.Type,
		Reason:         req.Reason,
		Description:    req.Description,
		Evidence:       req.Evidence,
		Status:         domain.ReturnStatusPending,
		StudioFeedback: []domain.StudioFeedback{},
		RefundAmount:   amount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// the store rejects a second open request for the same item
	if err := s.repos.ReturnRequest.Create(ctx, request); err != nil {
		return nil, err
	}

	s.logger.Info("Return request filed",
		zap.String("return_id", request.ID.String()),
		zap.String("request_number", request.RequestNumber),
		zap.String("order_id", order.ID.String()))
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.ReturnFiled, request.ID, map[string]interface{}{
		"requestNumber": request.RequestNumber,
		"orderId":       request.OrderID,
		"sellerId":      request.Item.SellerID,
		"refundAmount":  request.RefundAmount,
	}))
	return request, nil
}

// StartReview marks a pending request as being looked at
func (s *ReturnService) StartReview(ctx context.Context, adminID, requestID uuid.UUID) (*domain.ReturnRequest, error) {
	return s.transition(ctx, requestID, domain.ReturnStatusUnderReview)
}

// CompleteReturn closes an approved request once the refund is issued
func (s *ReturnService) CompleteReturn(ctx context.Context, adminID, requestID uuid.UUID) (*domain.ReturnRequest, error) {
	request, err := s.transition(ctx, requestID, domain.ReturnStatusCompleted)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Return request completed", zap.String("return_id", requestID.String()), zap.String("admin_id", adminID.String()))
	return request, nil
}

func (s *ReturnService) transition(ctx context.Context, requestID uuid.UUID, to domain.ReturnStatus) (*domain.ReturnRequest, error) {
	var request *domain.ReturnRequest
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		if request, err = tx.ReturnRequest.GetByID(ctx, requestID); err != nil {
			return err
		}
		if !request.Status.CanTransitionTo(to) {
			return &errors.ErrInvalidStateTransition{
				Entity: "return status",
				From:   string(request.Status),
				To:     string(to),
			}
		}
		request.Status = to
		return tx.ReturnRequest.Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// DecideReturn records the admin's verdict. The review is written once; a
// second decision fails with ErrAlreadyReviewed. Approval refunds the item in
// the same transaction: the item leaves any pending payout, the order's refund
// ledger grows and its payment status is recomputed.
func (s *ReturnService) DecideReturn(ctx context.Context, adminID, requestID uuid.UUID, req DecideReturnRequest) (*domain.ReturnRequest, error) {
	if !req.Decision.IsValid() {
		return nil, &errors.ErrValidation{Field: "decision", Message: "must be approved or rejected"}
	}

	snapshot, err := s.repos.ReturnRequest.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var (
		request *domain.ReturnRequest
		order   *domain.Order
	)
	err = s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		// order first, then request, then payout
		if order, err = tx.Order.GetByID(ctx, snapshot.OrderID); err != nil {
			return err
		}
		if request, err = tx.ReturnRequest.GetByID(ctx, requestID); err != nil {
			return err
		}

		if request.AdminReview != nil {
			return &errors.ErrAlreadyReviewed{RequestID: request.ID.String()}
		}
		to := domain.ReturnStatus(req.Decision)
		if !request.Status.CanTransitionTo(to) {
			return &errors.ErrInvalidStateTransition{
				Entity: "return status",
				From:   string(request.Status),
				To:     string(to),
			}
		}

		amount := request.RefundAmount
		if req.RefundAmount != nil {
			amount = *req.RefundAmount
		}
		maxAmount := request.Item.Price.Mul(decimal.NewFromInt(int64(request.Item.Quantity)))
		if req.Decision == domain.ReviewDecisionApproved && (!amount.IsPositive() || amount.GreaterThan(maxAmount)) {
			return &errors.ErrValidation{Field: "refundAmount", Message: "must be positive and at most " + maxAmount.StringFixed(2)}
		}

		now := s.now()
		request.Status = to
		request.AdminReview = &domain.AdminReview{
			ReviewerID:   adminID,
			Decision:     req.Decision,
			Notes:        req.Notes,
			RefundAmount: amount,
			ReviewedAt:   now,
		}

		if req.Decision == domain.ReviewDecisionApproved {
			if err := s.refundItem(ctx, tx, order, request, amount, now); err != nil {
				return err
			}
		}
		return tx.ReturnRequest.Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Return request decided",
		zap.String("return_id", request.ID.String()),
		zap.String("decision", string(req.Decision)),
		zap.String("admin_id", adminID.String()))
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.ReturnDecided, request.ID, map[string]interface{}{
		"requestNumber": request.RequestNumber,
		"orderId":       request.OrderID,
		"decision":      req.Decision,
		"refundAmount":  request.AdminReview.RefundAmount,
	}))
	if req.Decision == domain.ReviewDecisionApproved {
		publish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderRefunded, order.ID, map[string]interface{}{
			"returnRequestNumber": request.RequestNumber,
			"refundedTotal":       order.RefundDetails.Amount,
			"paymentStatus":       order.PaymentStatus,
		}))
	}
	return request, nil
}

// refundItem applies an approved return to the order inside tx
func (s *ReturnService) refundItem(
	ctx context.Context,
	tx *repository.Repositories,
	order *domain.Order,
	request *domain.ReturnRequest,
	amount decimal.Decimal,
	now time.Time,
) error {
	if !order.PaymentStatus.IsCaptured() {
		return &errors.ErrInvalidState{Message: "order payment was never captured"}
	}

	item := order.FindItem(request.Item.OrderItemID)
	if item == nil {
		return &errors.ErrNotFound{Resource: "order item", ID: request.Item.OrderItemID.String()}
	}
	switch item.PayoutStatus {
	case domain.PayoutItemStatusPaid:
		return &errors.ErrInvalidState{Message: "item was already paid out to the seller"}
	case domain.PayoutItemStatusRefunded:
		return &errors.ErrInvalidState{Message: "item was already refunded"}
	}

	if item.PayoutID != nil {
		payout, err := tx.Payout.GetByID(ctx, *item.PayoutID)
		if err != nil {
			return err
		}
		if payout.Status != domain.PayoutStatusPending {
			return &errors.ErrInvalidState{Message: "item is claimed by a payout in " + string(payout.Status) + " status"}
		}
		releaseItem(order, item, payout)
		if err := tx.Payout.Update(ctx, payout); err != nil {
			return err
		}
		s.logger.Info("Released refunded item from pending payout",
			zap.String("payout_id", payout.ID.String()),
			zap.String("item_id", item.ID.String()),
			zap.String("payout_status", string(payout.Status)))
	}

	item.PayoutStatus = domain.PayoutItemStatusRefunded

	// a gateway refund webhook may already have counted this request
	if !contains(order.RefundDetails.ReturnRequestNumbers, request.RequestNumber) {
		order.RefundDetails.ReturnRequestNumbers = append(order.RefundDetails.ReturnRequestNumbers, request.RequestNumber)
		applyRefund(order, minDecimal(amount, order.RefundableAmount()), now)
	}

	if order.AllItemsRefunded() {
		order.PaymentStatus = domain.PaymentStatusRefunded
	} else if order.PaymentStatus != domain.PaymentStatusRefunded {
		order.PaymentStatus = domain.PaymentStatusPartiallyRefunded
	}
	return tx.Order.Update(ctx, order)
}

// AddStudioFeedback appends a seller reply. It never changes the request status.
func (s *ReturnService) AddStudioFeedback(ctx context.Context, sellerID, requestID uuid.UUID, message string) (*domain.ReturnRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &errors.ErrValidation{Field: "message", Message: "message is required"}
	}

	var request *domain.ReturnRequest
	err := s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		var err error
		if request, err = tx.ReturnRequest.GetByID(ctx, requestID); err != nil {
			return err
		}
		if request.Item.SellerID != sellerID {
			return &errors.ErrForbidden{Message: "return request concerns another seller"}
		}
		request.StudioFeedback = append(request.StudioFeedback, domain.StudioFeedback{
			SellerID:  sellerID,
			Message:   message,
			CreatedAt: s.now(),
		})
		return tx.ReturnRequest.Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// GetReturn returns the request joined with its order, item and reviewer
func (s *ReturnService) GetReturn(ctx context.Context, viewer *domain.Principal, requestID uuid.UUID) (*ReturnRequestView, error) {
	request, err := s.repos.ReturnRequest.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch {
	case viewer.Role == domain.RoleAdmin:
	case viewer.Role == domain.RoleBuyer && request.BuyerID == viewer.ID:
	case viewer.Role == domain.RoleSeller && request.Item.SellerID == viewer.ID:
	default:
		return nil, &errors.ErrForbidden{Message: "access denied"}
	}

	view := &ReturnRequestView{ReturnRequest: request}

	order, err := s.repos.Order.GetByID(ctx, request.OrderID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if order != nil {
		view.Order = &OrderSummary{
			ID:            order.ID,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
			Total:         order.Total,
			RefundDetails: order.RefundDetails,
			Item:          order.FindItem(request.Item.OrderItemID),
			CreatedAt:     order.CreatedAt,
		}
	}

	if request.AdminReview != nil {
		reviewer, err := s.repos.Principal.GetByID(ctx, request.AdminReview.ReviewerID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}
		if reviewer != nil {
			view.Reviewer = &PrincipalSummary{
				ID:    reviewer.ID,
				Name:  reviewer.Name,
				Email: reviewer.Email,
				Role:  reviewer.Role,
			}
		}
	}
	return view, nil
}

func (s *ReturnService) ListReturns(ctx context.Context, filter repository.ReturnFilter) ([]*domain.ReturnRequest, error) {
	return s.repos.ReturnRequest.List(ctx, filter)
}
