package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

type principalRepository struct {
	base
}

const principalColumns = `id, name, email, role, api_key_hash, is_active, created_at, updated_at`

func scanPrincipal(row rowScanner) (*domain.Principal, error) {
	var p domain.Principal
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Role,
		&p.APIKeyHash,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	// bcrypt hashes are salted, so the key cannot be looked up directly.
	rows, err := r.db.QueryContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE is_active = true`)
	if err != nil {
		r.logger.Error("Failed to query principals", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(p.APIKeyHash), []byte(apiKey)); err == nil {
			return p, nil
		}
	}

	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *principalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "principal", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get principal by ID", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *principalRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.Principal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+principalColumns+` FROM principals
		WHERE role = $1 AND is_active = true
		ORDER BY name
	`, role)
	if err != nil {
		r.logger.Error("Failed to list principals", zap.String("role", string(role)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var principals []*domain.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
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

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO principals (`+principalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		principal.ID,
		principal.Name,
		principal.Email,
		principal.Role,
		principal.APIKeyHash,
		principal.IsActive,
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create principal", zap.Error(err))
		return err
	}
	return nil
}

func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	principal.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		UPDATE principals
		SET name = $2, email = $3, role = $4, api_key_hash = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`,
		principal.ID,
		principal.Name,
		principal.Email,
		principal.Role,
		principal.APIKeyHash,
		principal.IsActive,
		principal.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update principal", zap.Error(err))
		return err
	}
	return nil
}
