package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

type principalRepository struct {
	v      *view
	logger *zap.Logger
}

func (r *principalRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	var active []domain.Principal
	_ = r.v.read(func(st *state) error {
		for _, p := range st.principals {
			if p.IsActive {
				active = append(active, *p)
			}
		}
		return nil
	})

	// bcrypt comparisons run outside the store lock
	for _, p := range active {
		if err := bcrypt.CompareHashAndPassword([]byte(p.APIKeyHash), []byte(apiKey)); err == nil {
			principal := p
			return &principal, nil
		}
	}
	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *principalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	var principal *domain.Principal
	err := r.v.read(func(st *state) error {
		p, ok := st.principals[id]
		if !ok {
			return &errors.ErrNotFound{Resource: "principal", ID: id.String()}
		}
		c := *p
		principal = &c
		return nil
	})
	return principal, err
}

func (r *principalRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.Principal, error) {
	var principals []*domain.Principal
	err := r.v.read(func(st *state) error {
		for _, p := range st.principals {
			if p.Role == role && p.IsActive {
				c := *p
				principals = append(principals, &c)
			}
		}
		return nil
	})
	sort.Slice(principals, func(i, j int) bool {
		return principals[i].Name < principals[j].Name
	})
	return principals, err
}

func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	now := time.Now()
	if principal.ID == uuid.Nil {
		principal.ID = uuid.New()
	}
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = now
	}
	if principal.UpdatedAt.IsZero() {
		principal.UpdatedAt = now
	}

	return r.v.write(func(st *state) error {
		c := *principal
		st.principals[principal.ID] = &c
		return nil
	})
}

func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	principal.UpdatedAt = time.Now()
	return r.v.write(func(st *state) error {
		if _, ok := st.principals[principal.ID]; !ok {
			return &errors.ErrNotFound{Resource: "principal", ID: principal.ID.String()}
		}
		c := *principal
		st.principals[principal.ID] = &c
		return nil
	})
}
