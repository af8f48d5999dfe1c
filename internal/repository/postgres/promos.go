package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

type promoCodeRepository struct {
	base
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *promoCodeRepository) Create(ctx context.Context, promo *domain.PromoCode) error {
	now := time.Now()
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	if promo.UpdatedAt.IsZero() {
		promo.UpdatedAt = now
	}
	promo.Code = normalizeCode(promo.Code)

	var maxDiscount decimal.NullDecimal
	if promo.MaxDiscount != nil {
		maxDiscount = decimal.NewNullDecimal(*promo.MaxDiscount)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO promo_codes (
			id, code, discount_type, discount_value, max_discount, min_order_amount, usage_limit,
			usage_limit_per_user, used_count, start_date, end_date, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		promo.ID,
		promo.Code,
		promo.DiscountType,
		promo.DiscountValue,
		maxDiscount,
		promo.MinOrderAmount,
		promo.UsageLimit,
		promo.UsageLimitPerUser,
		promo.UsedCount,
		promo.StartDate,
		promo.EndDate,
		promo.IsActive,
		promo.CreatedAt,
		promo.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return &errors.ErrInvalidState{Message: "promo code already exists"}
		}
		r.logger.Error("Failed to create promo code", zap.String("code", promo.Code), zap.Error(err))
		return err
	}
	return nil
}

func (r *promoCodeRepository) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var (
		promo             domain.PromoCode
		maxDiscount       decimal.NullDecimal
		usageLimit        sql.NullInt64
		usageLimitPerUser sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, discount_value, max_discount, min_order_amount, usage_limit,
			usage_limit_per_user, used_count, start_date, end_date, is_active, created_at, updated_at
		FROM promo_codes
		WHERE code = $1
	`+r.lockClause(), normalizeCode(code)).Scan(
		&promo.ID,
		&promo.Code,
		&promo.DiscountType,
		&promo.DiscountValue,
		&maxDiscount,
		&promo.MinOrderAmount,
		&usageLimit,
		&usageLimitPerUser,
		&promo.UsedCount,
		&promo.StartDate,
		&promo.EndDate,
		&promo.IsActive,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "promo code", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get promo code", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	if maxDiscount.Valid {
		d := maxDiscount.Decimal
		promo.MaxDiscount = &d
	}
	if usageLimit.Valid {
		n := int(usageLimit.Int64)
		promo.UsageLimit = &n
	}
	if usageLimitPerUser.Valid {
		n := int(usageLimitPerUser.Int64)
		promo.UsageLimitPerUser = &n
	}
	return &promo, nil
}

func (r *promoCodeRepository) IncrementUsage(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promo_codes SET used_count = used_count + 1, updated_at = $2 WHERE code = $1
	`, normalizeCode(code), time.Now())
	if err != nil {
		r.logger.Error("Failed to increment promo usage", zap.String("code", code), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "promo code", ID: code}
	}
	return nil
}
