package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type payoutRepository struct {
	v      *view
	logger *zap.Logger
}

func (r *payoutRepository) Create(ctx context.Context, payout *domain.Payout) error {
	now := time.Now()
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = now
	}
	payout.UpdatedAt = now

	return r.v.write(func(st *state) error {
		st.payouts[payout.ID] = payout.Clone()
		return nil
	})
}

func (r *payoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	var payout *domain.Payout
	err := r.v.read(func(st *state) error {
		p, ok := st.payouts[id]
		if !ok {
			return &errors.ErrNotFound{Resource: "payout", ID: id.String()}
		}
		payout = p.Clone()
		return nil
	})
	return payout, err
}

func (r *payoutRepository) Update(ctx context.Context, payout *domain.Payout) error {
	payout.UpdatedAt = time.Now()
	return r.v.write(func(st *state) error {
		if _, ok := st.payouts[payout.ID]; !ok {
			return &errors.ErrNotFound{Resource: "payout", ID: payout.ID.String()}
		}
		st.payouts[payout.ID] = payout.Clone()
		return nil
	})
}

func (r *payoutRepository) List(ctx context.Context, filter repository.PayoutFilter) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	err := r.v.read(func(st *state) error {
		for _, p := range st.payouts {
			if filter.SellerID != nil && p.SellerID != *filter.SellerID {
				continue
			}
			if filter.Status != nil && p.Status != *filter.Status {
				continue
			}
			payouts = append(payouts, p.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(payouts, func(i, j int) bool {
		return payouts[i].CreatedAt.After(payouts[j].CreatedAt)
	})
	start, end := paginate(len(payouts), filter.Limit, filter.Offset)
	return payouts[start:end], nil
}
