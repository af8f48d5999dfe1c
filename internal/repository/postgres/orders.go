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

type orderRepository struct {
	base
}

const orderColumns = `
	id, buyer_id, subtotal, discount_amount, total, status, payment_status,
	payment_details, refund_details, promo_code, tracking_history, created_at, updated_at`

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

	paymentDetails, refundDetails, tracking, err := marshalOrderDocuments(order)
	if err != nil {
		return err
	}

	err = r.atomically(ctx, func(q dbtx) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (
				id, buyer_id, subtotal, discount_amount, total, status, payment_status,
				gateway_order_id, gateway_payment_id, payment_details, refund_details,
				refunded_amount, promo_code, tracking_history, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`,
			order.ID,
			order.BuyerID,
			order.Subtotal,
			order.DiscountAmount,
			order.Total,
			order.Status,
			order.PaymentStatus,
			nullString(order.PaymentDetails.GatewayOrderID),
			nullString(order.PaymentDetails.GatewayPaymentID),
			paymentDetails,
			refundDetails,
			order.RefundDetails.Amount,
			order.PromoCode,
			tracking,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_items (
					id, order_id, position, item_ref, item_type, name, seller_id,
					price, quantity, payout_status, payout_id
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`,
				item.ID,
				order.ID,
				i,
				item.ItemRef,
				item.ItemType,
				item.Name,
				item.SellerID,
				item.Price,
				item.Quantity,
				item.PayoutStatus,
				item.PayoutID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err, "orders_gateway_order_id_key") {
			return &errors.ErrInvalidState{Message: "gateway order id already in use"}
		}
		r.logger.Error("Failed to create order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOne(ctx, "order", id.String(), "id = $1", id)
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return r.getOne(ctx, "gateway order", gatewayOrderID, "gateway_order_id = $1", gatewayOrderID)
}

func (r *orderRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.Order, error) {
	return r.getOne(ctx, "gateway payment", gatewayPaymentID, "gateway_payment_id = $1", gatewayPaymentID)
}

func (r *orderRepository) getOne(ctx context.Context, resource, key, where string, arg interface{}) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + ` LIMIT 1` + r.lockClause()

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: resource, ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.String(resource, key), zap.Error(err))
		return nil, err
	}

	items, err := r.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now()

	paymentDetails, refundDetails, tracking, err := marshalOrderDocuments(order)
	if err != nil {
		return err
	}

	err = r.atomically(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `
			UPDATE orders
			SET status = $2, payment_status = $3, gateway_order_id = $4, gateway_payment_id = $5,
				payment_details = $6, refund_details = $7, refunded_amount = $8,
				promo_code = $9, tracking_history = $10, updated_at = $11
			WHERE id = $1
		`,
			order.ID,
			order.Status,
			order.PaymentStatus,
			nullString(order.PaymentDetails.GatewayOrderID),
			nullString(order.PaymentDetails.GatewayPaymentID),
			paymentDetails,
			refundDetails,
			order.RefundDetails.Amount,
			order.PromoCode,
			tracking,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &errors.ErrNotFound{Resource: "order", ID: order.ID.String()}
		}

		// Items are snapshots; only their settlement fields ever change.
		for _, item := range order.Items {
			_, err := q.ExecContext(ctx, `
				UPDATE order_items SET payout_status = $3, payout_id = $4
				WHERE id = $1 AND order_id = $2
			`, item.ID, order.ID, item.PayoutStatus, item.PayoutID)
			if err != nil {
				return fmt.Errorf("failed to update order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to update order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.BuyerID != nil {
		conds = append(conds, "buyer_id = "+arg(*filter.BuyerID))
	}
	if filter.SellerID != nil {
		conds = append(conds, "EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.seller_id = "+arg(*filter.SellerID)+")")
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(*filter.Status))
	}
	if filter.PaymentStatus != nil {
		conds = append(conds, "payment_status = "+arg(*filter.PaymentStatus))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
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
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var (
		orders []*domain.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		order.Items = items[order.ID]
	}
	return orders, nil
}

func (r *orderRepository) ListPayoutCandidates(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id
		FROM orders o
		WHERE o.payment_status IN ($2, $3)
		  AND o.status <> $7
		  AND o.created_at BETWEEN $4 AND $5
		  AND EXISTS (
			SELECT 1 FROM order_items oi
			WHERE oi.order_id = o.id
			  AND oi.seller_id = $1
			  AND oi.payout_status = $6
			  AND oi.payout_id IS NULL
		  )
		ORDER BY o.created_at, o.id
	`,
		sellerID,
		domain.PaymentStatusPaid,
		domain.PaymentStatusPartiallyRefunded,
		start,
		end,
		domain.PayoutItemStatusPending,
		domain.OrderStatusCancelled,
	)
	if err != nil {
		r.logger.Error("Failed to list payout candidates", zap.String("seller_id", sellerID.String()), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *orderRepository) CountCapturedWithPromo(ctx context.Context, buyerID uuid.UUID, code string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE buyer_id = $1 AND upper(promo_code) = upper($2) AND payment_status IN ($3, $4, $5)
	`,
		buyerID,
		code,
		domain.PaymentStatusPaid,
		domain.PaymentStatusPartiallyRefunded,
		domain.PaymentStatusRefunded,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count promo usage", zap.String("code", code), zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	items := make(map[uuid.UUID][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return items, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, item_ref, item_type, name, seller_id, price, quantity, payout_status, payout_id
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, pq.Array(uuidStrings(orderIDs)))
	if err != nil {
		r.logger.Error("Failed to load order items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID  uuid.UUID
			item     domain.OrderItem
			payoutID uuid.NullUUID
		)
		err := rows.Scan(
			&orderID,
			&item.ID,
			&item.ItemRef,
			&item.ItemType,
			&item.Name,
			&item.SellerID,
			&item.Price,
			&item.Quantity,
			&item.PayoutStatus,
			&payoutID,
		)
		if err != nil {
			return nil, err
		}
		if payoutID.Valid {
			id := payoutID.UUID
			item.PayoutID = &id
		}
		items[orderID] = append(items[orderID], item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order          domain.Order
		paymentDetails []byte
		refundDetails  []byte
		tracking       []byte
		promoCode      sql.NullString
	)

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.Subtotal,
		&order.DiscountAmount,
		&order.Total,
		&order.Status,
		&order.PaymentStatus,
		&paymentDetails,
		&refundDetails,
		&promoCode,
		&tracking,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paymentDetails, &order.PaymentDetails); err != nil {
		return nil, fmt.Errorf("failed to decode payment details: %w", err)
	}
	if err := json.Unmarshal(refundDetails, &order.RefundDetails); err != nil {
		return nil, fmt.Errorf("failed to decode refund details: %w", err)
	}
	if err := json.Unmarshal(tracking, &order.TrackingHistory); err != nil {
		return nil, fmt.Errorf("failed to decode tracking history: %w", err)
	}
	if promoCode.Valid {
		order.PromoCode = &promoCode.String
	}

	return &order, nil
}

func marshalOrderDocuments(order *domain.Order) (paymentDetails, refundDetails, tracking []byte, err error) {
	if paymentDetails, err = json.Marshal(order.PaymentDetails); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode payment details: %w", err)
	}
	if refundDetails, err = json.Marshal(order.RefundDetails); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode refund details: %w", err)
	}
	history := order.TrackingHistory
	if history == nil {
		history = []domain.TrackingEvent{}
	}
	if tracking, err = json.Marshal(history); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode tracking history: %w", err)
	}
	return paymentDetails, refundDetails, tracking, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
