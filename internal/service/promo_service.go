package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type PromoService struct {
	repos  *repository.Repositories
	logger *zap.Logger
	now    func() time.Time
}

// NewPromoService creates a new promo service
func NewPromoService(repos *repository.Repositories, logger *zap.Logger) *PromoService {
	return &PromoService{
		repos:  repos,
		logger: logger,
		now:    time.Now,
	}
}

// Validate prices a promo code against a cart. It never consumes the code:
// usage is counted only once the payment is captured.
func (s *PromoService) Validate(ctx context.Context, code string, cartTotal decimal.Decimal, buyerID *uuid.UUID) (*PromoDiscount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &errors.ErrValidation{Field: "code", Message: "promo code is required"}
	}
	if cartTotal.IsNegative() {
		return nil, &errors.ErrValidation{Field: "cartTotal", Message: "cart total must not be negative"}
	}

	promo, err := s.repos.PromoCode.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !promo.IsActiveAt(s.now()) {
		return nil, &errors.ErrInvalidState{Message: "promo code is not active"}
	}
	if cartTotal.LessThan(promo.MinOrderAmount) {
		return nil, &errors.ErrInvalidState{Message: "order total is below the promo minimum of " + promo.MinOrderAmount.StringFixed(2)}
	}
	if promo.UsageExhausted() {
		return nil, &errors.ErrLimitExceeded{Message: "promo code usage limit reached"}
	}
	if promo.UsageLimitPerUser != nil && buyerID != nil {
		used, err := s.repos.Order.CountCapturedWithPromo(ctx, *buyerID, promo.Code)
		if err != nil {
			return nil, err
		}
		if used >= *promo.UsageLimitPerUser {
			return nil, &errors.ErrLimitExceeded{Message: "promo code already used the maximum number of times"}
		}
	}

	discount := promo.Discount(cartTotal)
	return &PromoDiscount{
		Code:           promo.Code,
		DiscountType:   promo.DiscountType,
		DiscountValue:  promo.DiscountValue,
		DiscountAmount: discount,
		FinalTotal:     cartTotal.Sub(discount),
	}, nil
}

// CreatePromo registers a new promo code
func (s *PromoService) CreatePromo(ctx context.Context, req CreatePromoRequest) (*domain.PromoCode, error) {
	if !req.DiscountType.IsValid() {
		return nil, &errors.ErrValidation{Field: "discountType", Message: "must be percentage or fixed"}
	}
	if !req.DiscountValue.IsPositive() {
		return nil, &errors.ErrValidation{Field: "discountValue", Message: "must be positive"}
	}
	if req.DiscountType == domain.DiscountTypePercentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &errors.ErrValidation{Field: "discountValue", Message: "percentage must not exceed 100"}
	}
	if req.MaxDiscount != nil && !req.MaxDiscount.IsPositive() {
		return nil, &errors.ErrValidation{Field: "maxDiscount", Message: "must be positive"}
	}
	if req.MinOrderAmount.IsNegative() {
		return nil, &errors.ErrValidation{Field: "minOrderAmount", Message: "must not be negative"}
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.EndDate.After(req.StartDate) {
		return nil, &errors.ErrValidation{Field: "endDate", Message: "validity window must end after it starts"}
	}

	promo := &domain.PromoCode{
		Code:              strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscount:       req.MaxDiscount,
		MinOrderAmount:    req.MinOrderAmount,
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		IsActive:          true,
	}
	if err := s.repos.PromoCode.Create(ctx, promo); err != nil {
		return nil, err
	}

	s.logger.Info("Promo code created", zap.String("code", promo.Code))
	return promo, nil
}

// consume counts one use of a code. Failures are logged, never returned.
func (s *PromoService) consume(ctx context.Context, code string, orderID uuid.UUID) {
	if err := s.repos.PromoCode.IncrementUsage(ctx, code); err != nil {
		s.logger.Warn("Failed to increment promo usage",
			zap.String("code", code),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
}
