package service

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type PayoutService struct {
	repos     *repository.Repositories
	rates     config.SettlementConfig
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPayoutService creates a new payout service using the given fee rates
func NewPayoutService(rates config.SettlementConfig, repos *repository.Repositories, publisher events.Publisher, logger *zap.Logger) *PayoutService {
	return &PayoutService{
		repos:     repos,
		rates:     rates,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreatePayout claims every eligible item of the seller paid within the period
// and records a pending payout for them. Claiming stamps the payout id on each
// item inside the same transaction, so concurrent runs never claim an item twice.
func (s *PayoutService) CreatePayout(ctx context.Context, actorID uuid.UUID, req CreatePayoutRequest) (*domain.Payout, error) {
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		return nil, &errors.ErrValidation{Field: "periodStart", Message: "period start and end are required"}
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		return nil, &errors.ErrValidation{Field: "periodEnd", Message: "period end is before period start"}
	}

	seller, err := s.repos.Principal.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, err
	}
	if seller.Role != domain.RoleSeller {
		return nil, &errors.ErrNotFound{Resource: "seller", ID: req.SellerID.String()}
	}

	now := s.now()
	payout := &domain.Payout{
		ID:                     uuid.New(),
		SellerID:               seller.ID,
		SellerName:             seller.Name,
		SellerEmail:            seller.Email,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		PlatformCommissionRate: s.rates.PlatformCommissionRate,
		PaymentProcessingRate:  s.rates.PaymentProcessingRate,
		Status:                 domain.PayoutStatusPending,
		PaymentMethod:          req.PaymentMethod,
		CreatedBy:              actorID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err = s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		candidates, err := tx.Order.ListPayoutCandidates(ctx, seller.ID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			return err
		}
		sortIDs(candidates)

		gross := decimal.Zero
		var claimed []*domain.Order
		for _, id := range candidates {
			order, err := tx.Order.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if !payoutEligible(order, req.PeriodStart, req.PeriodEnd) {
				continue
			}

			count := 0
			for i := range order.Items {
				item := &order.Items[i]
				if item.SellerID != seller.ID || item.PayoutStatus != domain.PayoutItemStatusPending || item.PayoutID != nil {
					continue
				}
				payoutID := payout.ID
				item.PayoutID = &payoutID
				gross = gross.Add(item.LineTotal())
				count++
			}
			if count == 0 {
				continue
			}
			payout.ItemCount += count
			payout.OrderIDs = append(payout.OrderIDs, order.ID)
			claimed = append(claimed, order)
		}

		if payout.ItemCount == 0 {
			return &errors.ErrNoEligibleItems{SellerID: seller.ID.String()}
		}

		payout.ApplyBreakdown(domain.ComputeBreakdown(gross, payout.PlatformCommissionRate, payout.PaymentProcessingRate))
		if err := tx.Payout.Create(ctx, payout); err != nil {
			return err
		}
		for _, order := range claimed {
			if err := tx.Order.Update(ctx, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payout created",
		zap.String("payout_id", payout.ID.String()),
		zap.String("seller_id", seller.ID.String()),
		zap.Int("item_count", payout.ItemCount),
		zap.String("net_earnings", payout.NetEarnings.StringFixed(2)))
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.PayoutCreated, payout.ID, map[string]interface{}{
		"sellerId":      payout.SellerID,
		"itemCount":     payout.ItemCount,
		"grossEarnings": payout.GrossEarnings,
		"netEarnings":   payout.NetEarnings,
	}))
	return payout, nil
}

// payoutEligible re-checks a candidate under lock. Cancelled orders are never
// settled, even when the refund for them has not arrived yet.
func payoutEligible(order *domain.Order, start, end time.Time) bool {
	if order.PaymentStatus != domain.PaymentStatusPaid && order.PaymentStatus != domain.PaymentStatusPartiallyRefunded {
		return false
	}
	if order.Status == domain.OrderStatusCancelled {
		return false
	}
	return !order.CreatedAt.Before(start) && !order.CreatedAt.After(end)
}

// UpdatePayoutStatus moves a payout through its lifecycle and fans the result
// out to the items it claims: completion marks them paid, failure or
// cancellation releases them for a later run.
func (s *PayoutService) UpdatePayoutStatus(ctx context.Context, payoutID, actorID uuid.UUID, req UpdatePayoutStatusRequest) (*domain.Payout, error) {
	if !req.Status.IsValid() {
		return nil, &errors.ErrValidation{Field: "status", Message: "unknown payout status"}
	}

	// Orders are locked before the payout, the same order return approval uses.
	// The claimed order set can only shrink, so this snapshot covers it.
	snapshot, err := s.repos.Payout.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	orderIDs := append([]uuid.UUID(nil), snapshot.OrderIDs...)
	sortIDs(orderIDs)

	var (
		payout *domain.Payout
		from   domain.PayoutStatus
	)
	err = s.repos.WithinTx(ctx, func(tx *repository.Repositories) error {
		orders := make(map[uuid.UUID]*domain.Order, len(orderIDs))
		for _, id := range orderIDs {
			order, err := tx.Order.GetByID(ctx, id)
			if err != nil {
				return err
			}
			orders[id] = order
		}

		var err error
		if payout, err = tx.Payout.GetByID(ctx, payoutID); err != nil {
			return err
		}
		if !payout.Status.CanTransitionTo(req.Status) {
			return &errors.ErrInvalidStateTransition{
				Entity: "payout status",
				From:   string(payout.Status),
				To:     string(req.Status),
			}
		}

		from = payout.Status
		payout.Status = req.Status
		if req.TransactionID != nil {
			payout.PaymentDetails.TransactionID = req.TransactionID
		}
		if req.Notes != nil {
			payout.PaymentDetails.Notes = req.Notes
		}
		if req.FailureReason != nil {
			payout.PaymentDetails.FailureReason = req.FailureReason
		}
		if req.PaymentMethod != nil {
			payout.PaymentMethod = *req.PaymentMethod
		}

		switch req.Status {
		case domain.PayoutStatusCompleted:
			now := s.now()
			processedBy := actorID
			payout.ProcessedBy = &processedBy
			payout.ProcessedAt = &now
		case domain.PayoutStatusFailed, domain.PayoutStatusCancelled:
		default:
			return tx.Payout.Update(ctx, payout)
		}

		for _, id := range payout.OrderIDs {
			order, ok := orders[id]
			if !ok {
				return &errors.ErrInvalidState{Message: "payout claims changed concurrently, retry"}
			}
			if err := settleClaimedItems(order, payout); err != nil {
				return err
			}
			if err := tx.Order.Update(ctx, order); err != nil {
				return err
			}
		}
		return tx.Payout.Update(ctx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payout status updated",
		zap.String("payout_id", payout.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(payout.Status)),
		zap.String("actor_id", actorID.String()))
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.PayoutStatusChanged, payout.ID, map[string]interface{}{
		"sellerId": payout.SellerID,
		"from":     from,
		"to":       payout.Status,
	}))
	return payout, nil
}

// settleClaimedItems applies a terminal payout status to the items it claims
func settleClaimedItems(order *domain.Order, payout *domain.Payout) error {
	for i := range order.Items {
		item := &order.Items[i]
		if item.PayoutID == nil || *item.PayoutID != payout.ID {
			continue
		}
		switch payout.Status {
		case domain.PayoutStatusCompleted:
			if !item.PayoutStatus.CanTransitionTo(domain.PayoutItemStatusPaid) {
				return &errors.ErrInvalidStateTransition{
					Entity: "item payout status",
					From:   string(item.PayoutStatus),
					To:     string(domain.PayoutItemStatusPaid),
				}
			}
			item.PayoutStatus = domain.PayoutItemStatusPaid
		case domain.PayoutStatusFailed, domain.PayoutStatusCancelled:
			item.PayoutID = nil
		}
	}
	return nil
}

// releaseItem drops one item from a pending payout and recomputes its
// breakdown with the rates frozen on it. An emptied payout is cancelled.
func releaseItem(order *domain.Order, item *domain.OrderItem, payout *domain.Payout) {
	item.PayoutID = nil
	payout.ItemCount--

	stillClaimed := false
	for _, other := range order.Items {
		if other.PayoutID != nil && *other.PayoutID == payout.ID {
			stillClaimed = true
			break
		}
	}
	if !stillClaimed {
		kept := payout.OrderIDs[:0]
		for _, id := range payout.OrderIDs {
			if id != order.ID {
				kept = append(kept, id)
			}
		}
		payout.OrderIDs = kept
	}

	gross := payout.GrossEarnings.Sub(item.LineTotal())
	if gross.IsNegative() {
		gross = decimal.Zero
	}
	payout.ApplyBreakdown(domain.ComputeBreakdown(gross, payout.PlatformCommissionRate, payout.PaymentProcessingRate))
	if payout.ItemCount <= 0 {
		payout.ItemCount = 0
		payout.Status = domain.PayoutStatusCancelled
		reason := "all claimed items were refunded"
		payout.PaymentDetails.FailureReason = &reason
	}
}

func (s *PayoutService) GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	return s.repos.Payout.GetByID(ctx, id)
}

func (s *PayoutService) ListPayouts(ctx context.Context, filter repository.PayoutFilter) ([]*domain.Payout, error) {
	return s.repos.Payout.List(ctx, filter)
}

// sortIDs orders ids so that rows are always locked in the same sequence
func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
