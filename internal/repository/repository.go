package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/settlement/internal/domain"
)

// OrderRepository persists orders together with their embedded items.
// Lookups made through a transactional Repositories lock the order until commit.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.Order, error)
	// Update writes the order's mutable fields and every item's payout fields.
	Update(ctx context.Context, order *domain.Order) error
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	// ListPayoutCandidates returns the ids of orders holding at least one
	// unclaimed pending item for the seller, paid inside [start, end].
	ListPayoutCandidates(ctx context.Context, sellerID uuid.UUID, start, end time.Time) ([]uuid.UUID, error)
	CountCapturedWithPromo(ctx context.Context, buyerID uuid.UUID, code string) (int, error)
}

type OrderFilter struct {
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	Limit         int
	Offset        int
}

type PayoutRepository interface {
	Create(ctx context.Context, payout *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	Update(ctx context.Context, payout *domain.Payout) error
	List(ctx context.Context, filter PayoutFilter) ([]*domain.Payout, error)
}

type PayoutFilter struct {
	SellerID *uuid.UUID
	Status   *domain.PayoutStatus
	Limit    int
	Offset   int
}

// ReturnRequestRepository persists return requests. Create fails with
// errors.ErrInvalidState when an open request already exists for the same
// (order, item) pair.
type ReturnRequestRepository interface {
	Create(ctx context.Context, request *domain.ReturnRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error)
	Update(ctx context.Context, request *domain.ReturnRequest) error
	List(ctx context.Context, filter ReturnFilter) ([]*domain.ReturnRequest, error)
}

type ReturnFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	OrderID  *uuid.UUID
	Status   *domain.ReturnStatus
	Limit    int
	Offset   int
}

type PromoCodeRepository interface {
	Create(ctx context.Context, promo *domain.PromoCode) error
	GetByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	// IncrementUsage atomically bumps used_count by one.
	IncrementUsage(ctx context.Context, code string) error
}

type PrincipalRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Principal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.Principal, error)
	Create(ctx context.Context, principal *domain.Principal) error
	Update(ctx context.Context, principal *domain.Principal) error
}

// TxFunc runs fn so that every repository call made through the
// Repositories it receives is part of one atomic unit.
type TxFunc func(ctx context.Context, fn func(tx *Repositories) error) error

// Repositories groups every repository behind a shared transaction boundary
type Repositories struct {
	Order         OrderRepository
	Payout        PayoutRepository
	ReturnRequest ReturnRequestRepository
	PromoCode     PromoCodeRepository
	Principal     PrincipalRepository

	tx TxFunc
}

// New builds a Repositories aggregate
func New(
	order OrderRepository,
	payout PayoutRepository,
	returnRequest ReturnRequestRepository,
	promo PromoCodeRepository,
	principal PrincipalRepository,
	tx TxFunc,
) *Repositories {
	return &Repositories{
		Order:         order,
		Payout:        payout,
		ReturnRequest: returnRequest,
		PromoCode:     promo,
		Principal:     principal,
		tx:            tx,
	}
}

// WithinTx runs fn atomically. If fn returns an error nothing it wrote is kept.
// Calling WithinTx on the Repositories handed to fn just runs fn again in the
// same transaction.
func (r *Repositories) WithinTx(ctx context.Context, fn func(tx *Repositories) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx(ctx, fn)
}
