package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

type promoCodeRepository struct {
	v      *view
	logger *zap.Logger
}

func promoKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *promoCodeRepository) Create(ctx context.Context, promo *domain.PromoCode) error {
	now := time.Now()
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	promo.Code = promoKey(promo.Code)
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	promo.UpdatedAt = now

	return r.v.write(func(st *state) error {
		if _, exists := st.promos[promo.Code]; exists {
			return &errors.ErrInvalidState{Message: "promo code already exists"}
		}
		st.promos[promo.Code] = promo.Clone()
		return nil
	})
}

func (r *promoCodeRepository) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var promo *domain.PromoCode
	err := r.v.read(func(st *state) error {
		p, ok := st.promos[promoKey(code)]
		if !ok {
			return &errors.ErrNotFound{Resource: "promo code", ID: code}
		}
		promo = p.Clone()
		return nil
	})
	return promo, err
}

func (r *promoCodeRepository) IncrementUsage(ctx context.Context, code string) error {
	return r.v.write(func(st *state) error {
		p, ok := st.promos[promoKey(code)]
		if !ok {
			return &errors.ErrNotFound{Resource: "promo code", ID: code}
		}
		p.UsedCount++
		p.UpdatedAt = time.Now()
		return nil
	})
}
