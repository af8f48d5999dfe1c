package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type orderRepository struct {
	v      *view
	logger *zap.Logger
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
	}

	return r.v.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return &errors.ErrInvalidState{Message: "order already exists"}
		}
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := r.v.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return &errors.ErrNotFound{Resource: "order", ID: id.String()}
		}
		order = o.Clone()
		return nil
	})
	return order, err
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return r.findOne("gateway order", gatewayOrderID, func(o *domain.Order) bool {
		return gatewayOrderID != "" && o.PaymentDetails.GatewayOrderID == gatewayOrderID
	})
}

func (r *orderRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.Order, error) {
	return r.findOne("gateway payment", gatewayPaymentID, func(o *domain.Order) bool {
		return gatewayPaymentID != "" && o.PaymentDetails.GatewayPaymentID == gatewayPaymentID
	})
}

func (r *orderRepository) findOne(resource, id string, match func(o *domain.Order) bool) (*domain.Order, error) {
	var order *domain.Order
	err := r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				order = o.Clone()
				return nil
			}
		}
		return &errors.ErrNotFound{Resource: resource, ID: id}
	})
	return order, err
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now()
	return r.v.write(func(st *state) error {
		if _, ok := st.orders[order.ID]; !ok {
			return &errors.ErrNotFound{Resource: "order", ID: order.ID.String()}
		}
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r *orderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
				continue
			}
			if filter.SellerID != nil && !o.HasSeller(*filter.SellerID) {
				continue
			}
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			if filter.PaymentStatus != nil && o.PaymentStatus != *filter.PaymentStatus {
				continue
			}
			orders = append(orders, o.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	start, end := paginate(len(orders), filter.Limit, filter.Offset)
	return orders[start:end], nil
}

func (r *orderRepository) ListPayoutCandidates(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]uuid.UUID, error) {
	var candidates []*domain.Order
	err := r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if o.PaymentStatus != domain.PaymentStatusPaid && o.PaymentStatus != domain.PaymentStatusPartiallyRefunded {
				continue
			}
			if o.Status == domain.OrderStatusCancelled {
				continue
			}
			if o.CreatedAt.Before(start) || o.CreatedAt.After(end) {
				continue
			}
			for _, item := range o.Items {
				if item.SellerID == sellerID && item.PayoutStatus == domain.PayoutItemStatusPending && item.PayoutID == nil {
					candidates = append(candidates, o)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	ids := make([]uuid.UUID, len(candidates))
	for i, o := range candidates {
		ids[i] = o.ID
	}
	return ids, nil
}

func (r *orderRepository) CountCapturedWithPromo(ctx context.Context, buyerID uuid.UUID, code string) (int, error) {
	count := 0
	err := r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if o.BuyerID == buyerID && o.PromoCode != nil && strings.EqualFold(*o.PromoCode, code) && o.PaymentStatus.IsCaptured() {
				count++
			}
		}
		return nil
	})
	return count, err
}
