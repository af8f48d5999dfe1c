package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type payoutRepository struct {
	base
}

const payoutColumns = `
	id, seller_id, seller_name, seller_email, order_ids, item_count, period_start, period_end,
	platform_commission_rate, payment_processing_rate, gross_earnings, platform_fees,
	processing_fees, net_earnings, status, payment_method, payment_details,
	processed_by, processed_at, created_by, created_at, updated_at`

func (r *payoutRepository) Create(ctx context.Context, payout *domain.Payout) error {
	now := time.Now()
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = now
	}
	if payout.UpdatedAt.IsZero() {
		payout.UpdatedAt = now
	}

	details, err := json.Marshal(payout.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to encode payout details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		payout.ID,
		payout.SellerID,
		payout.SellerName,
		payout.SellerEmail,
		pq.Array(uuidStrings(payout.OrderIDs)),
		payout.ItemCount,
		payout.PeriodStart,
		payout.PeriodEnd,
		payout.PlatformCommissionRate,
		payout.PaymentProcessingRate,
		payout.GrossEarnings,
		payout.PlatformFees,
		payout.ProcessingFees,
		payout.NetEarnings,
		payout.Status,
		payout.PaymentMethod,
		details,
		payout.ProcessedBy,
		payout.ProcessedAt,
		payout.CreatedBy,
		payout.CreatedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payout", zap.String("seller_id", payout.SellerID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *payoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1` + r.lockClause()

	payout, err := scanPayout(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "payout", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get payout", zap.String("payout_id", id.String()), zap.Error(err))
		return nil, err
	}
	return payout, nil
}

func (r *payoutRepository) Update(ctx context.Context, payout *domain.Payout) error {
	payout.UpdatedAt = time.Now()

	details, err := json.Marshal(payout.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to encode payout details: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payouts
		SET order_ids = $2, item_count = $3, gross_earnings = $4, platform_fees = $5,
			processing_fees = $6, net_earnings = $7, status = $8, payment_method = $9,
			payment_details = $10, processed_by = $11, processed_at = $12, updated_at = $13
		WHERE id = $1
	`,
		payout.ID,
		pq.Array(uuidStrings(payout.OrderIDs)),
		payout.ItemCount,
		payout.GrossEarnings,
		payout.PlatformFees,
		payout.ProcessingFees,
		payout.NetEarnings,
		payout.Status,
		payout.PaymentMethod,
		details,
		payout.ProcessedBy,
		payout.ProcessedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update payout", zap.String("payout_id", payout.ID.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "payout", ID: payout.ID.String()}
	}
	return nil
}

func (r *payoutRepository) List(ctx context.Context, filter repository.PayoutFilter) ([]*domain.Payout, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SellerID != nil {
		conds = append(conds, "seller_id = "+arg(*filter.SellerID))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(*filter.Status))
	}

	query := `SELECT ` + payoutColumns + ` FROM payouts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list payouts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}
	return payouts, rows.Err()
}

func scanPayout(row rowScanner) (*domain.Payout, error) {
	var (
		payout      domain.Payout
		orderIDs    pq.StringArray
		details     []byte
		processedBy uuid.NullUUID
		processedAt sql.NullTime
	)

	err := row.Scan(
		&payout.ID,
		&payout.SellerID,
		&payout.SellerName,
		&payout.SellerEmail,
		&orderIDs,
		&payout.ItemCount,
		&payout.PeriodStart,
		&payout.PeriodEnd,
		&payout.PlatformCommissionRate,
		&payout.PaymentProcessingRate,
		&payout.GrossEarnings,
		&payout.PlatformFees,
		&payout.ProcessingFees,
		&payout.NetEarnings,
		&payout.Status,
		&payout.PaymentMethod,
		&details,
		&processedBy,
		&processedAt,
		&payout.CreatedBy,
		&payout.CreatedAt,
		&payout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, s := range orderIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid order id in payout: %w", err)
		}
		payout.OrderIDs = append(payout.OrderIDs, id)
	}
	if err := json.Unmarshal(details, &payout.PaymentDetails); err != nil {
		return nil, fmt.Errorf("failed to decode payout details: %w", err)
	}
	if processedBy.Valid {
		id := processedBy.UUID
		payout.ProcessedBy = &id
	}
	if processedAt.Valid {
		t := processedAt.Time
		payout.ProcessedAt = &t
	}

	return &payout, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
