package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

type returnRequestRepository struct {
	base
}

const returnColumns = `
	id, request_number, order_id, buyer_id, item, type, reason, description, evidence,
	status, admin_review, studio_feedback, refund_amount, created_at, updated_at`

func (r *returnRequestRepository) Create(ctx context.Context, request *domain.ReturnRequest) error {
	now := time.Now()
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = now
	}

	docs, err := marshalReturnDocuments(request)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO return_requests (
			id, request_number, order_id, buyer_id, order_item_id, seller_id, item, type, reason,
			description, evidence, status, admin_review, studio_feedback, refund_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		request.ID,
		request.RequestNumber,
		request.OrderID,
		request.BuyerID,
		request.Item.OrderItemID,
		request.Item.SellerID,
		docs.item,
		request.Type,
		request.Reason,
		request.Description,
		docs.evidence,
		request.Status,
		docs.adminReview,
		docs.feedback,
		request.RefundAmount,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "return_requests_open_item_key") {
			return &errors.ErrInvalidState{Message: "an open return request already exists for this item"}
		}
		r.logger.Error("Failed to create return request", zap.String("order_id", request.OrderID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *returnRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	query := `SELECT ` + returnColumns + ` FROM return_requests WHERE id = $1` + r.lockClause()

	request, err := scanReturnRequest(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "return request", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get return request", zap.String("return_id", id.String()), zap.Error(err))
		return nil, err
	}
	return request, nil
}

func (r *returnRequestRepository) Update(ctx context.Context, request *domain.ReturnRequest) error {
	request.UpdatedAt = time.Now()

	docs, err := marshalReturnDocuments(request)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE return_requests
		SET status = $2, admin_review = $3, studio_feedback = $4, refund_amount = $5, updated_at = $6
		WHERE id = $1
	`,
		request.ID,
		request.Status,
		docs.adminReview,
		docs.feedback,
		request.RefundAmount,
		request.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update return request", zap.String("return_id", request.ID.String()), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "return request", ID: request.ID.String()}
	}
	return nil
}

func (r *returnRequestRepository) List(ctx context.Context, filter repository.ReturnFilter) ([]*domain.ReturnRequest, error) {
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
		conds = append(conds, "seller_id = "+arg(*filter.SellerID))
	}
	if filter.OrderID != nil {
		conds = append(conds, "order_id = "+arg(*filter.OrderID))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(*filter.Status))
	}

	query := `SELECT ` + returnColumns + ` FROM return_requests`
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
		r.logger.Error("Failed to list return requests", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.ReturnRequest
	for rows.Next() {
		request, err := scanReturnRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

type returnDocuments struct {
	item        []byte
	evidence    []byte
	adminReview []byte
	feedback    []byte
}

func marshalReturnDocuments(request *domain.ReturnRequest) (*returnDocuments, error) {
	var (
		docs returnDocuments
		err  error
	)
	if docs.item, err = json.Marshal(request.Item); err != nil {
		return nil, fmt.Errorf("failed to encode return item: %w", err)
	}

	evidence := request.Evidence
	if evidence == nil {
		evidence = []domain.Evidence{}
	}
	if docs.evidence, err = json.Marshal(evidence); err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}

	if request.AdminReview != nil {
		if docs.adminReview, err = json.Marshal(request.AdminReview); err != nil {
			return nil, fmt.Errorf("failed to encode admin review: %w", err)
		}
	}

	feedback := request.StudioFeedback
	if feedback == nil {
		feedback = []domain.StudioFeedback{}
	}
	if docs.feedback, err = json.Marshal(feedback); err != nil {
		return nil, fmt.Errorf("failed to encode studio feedback: %w", err)
	}
	return &docs, nil
}

func scanReturnRequest(row rowScanner) (*domain.ReturnRequest, error) {
	var (
		request     domain.ReturnRequest
		item        []byte
		evidence    []byte
		adminReview []byte
		feedback    []byte
	)

	err := row.Scan(
		&request.ID,
		&request.RequestNumber,
		&request.OrderID,
		&request.BuyerID,
		&item,
		&request.Type,
		&request.Reason,
		&request.Description,
		&evidence,
		&request.Status,
		&adminReview,
		&feedback,
		&request.RefundAmount,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(item, &request.Item); err != nil {
		return nil, fmt.Errorf("failed to decode return item: %w", err)
	}
	if err := json.Unmarshal(evidence, &request.Evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence: %w", err)
	}
	if adminReview != nil {
		request.AdminReview = &domain.AdminReview{}
		if err := json.Unmarshal(adminReview, request.AdminReview); err != nil {
			return nil, fmt.Errorf("failed to decode admin review: %w", err)
		}
	}
	if err := json.Unmarshal(feedback, &request.StudioFeedback); err != nil {
		return nil, fmt.Errorf("failed to decode studio feedback: %w", err)
	}

	return &request, nil
}
