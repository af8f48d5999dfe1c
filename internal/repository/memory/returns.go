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

type returnRequestRepository struct {
	v      *view
	logger *zap.Logger
}

func (r *returnRequestRepository) Create(ctx context.Context, request *domain.ReturnRequest) error {
	now := time.Now()
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	// Check and insert under the same lock, mirroring the partial unique index
	// used by the postgres store.
	return r.v.write(func(st *state) error {
		for _, existing := range st.returns {
			if existing.OrderID == request.OrderID &&
				existing.Item.OrderItemID == request.Item.OrderItemID &&
				existing.Status.IsOpen() {
				return &errors.ErrInvalidState{Message: "an open return request already exists for this item"}
			}
		}
		st.returns[request.ID] = request.Clone()
		return nil
	})
}

func (r *returnRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	var request *domain.ReturnRequest
	err := r.v.read(func(st *state) error {
		rr, ok := st.returns[id]
		if !ok {
			return &errors.ErrNotFound{Resource: "return request", ID: id.String()}
		}
		request = rr.Clone()
		return nil
	})
	return request, err
}

func (r *returnRequestRepository) Update(ctx context.Context, request *domain.ReturnRequest) error {
	request.UpdatedAt = time.Now()
	return r.v.write(func(st *state) error {
		if _, ok := st.returns[request.ID]; !ok {
			return &errors.ErrNotFound{Resource: "return request", ID: request.ID.String()}
		}
		st.returns[request.ID] = request.Clone()
		return nil
	})
}

func (r *returnRequestRepository) List(ctx context.Context, filter repository.ReturnFilter) ([]*domain.ReturnRequest, error) {
	var requests []*domain.ReturnRequest
	err := r.v.read(func(st *state) error {
		for _, rr := range st.returns {
			if filter.BuyerID != nil && rr.BuyerID != *filter.BuyerID {
				continue
			}
			if filter.SellerID != nil && rr.Item.SellerID != *filter.SellerID {
				continue
			}
			if filter.OrderID != nil && rr.OrderID != *filter.OrderID {
				continue
			}
			if filter.Status != nil && rr.Status != *filter.Status {
				continue
			}
			requests = append(requests, rr.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	start, end := paginate(len(requests), filter.Limit, filter.Offset)
	return requests[start:end], nil
}
