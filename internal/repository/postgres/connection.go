package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/pkg/errors"
)

//go:embed schema.sql
var schema string

// NewConnection opens and pings a postgres connection pool
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// base is embedded by every repository. conn is nil when the repository is
// bound to a transaction.
type base struct {
	db     dbtx
	conn   *sql.DB
	logger *zap.Logger
}

func (b *base) inTx() bool {
	return b.conn == nil
}

// lockClause makes reads inside a transaction hold row locks until commit
func (b *base) lockClause() string {
	if b.inTx() {
		return " FOR UPDATE"
	}
	return ""
}

// atomically runs fn in the surrounding transaction, or in a new one
func (b *base) atomically(ctx context.Context, fn func(q dbtx) error) error {
	if b.inTx() {
		return fn(b.db)
	}
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// NewRepositories creates all repositories over a connection pool
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	return build(base{db: db, conn: db, logger: logger}, func(ctx context.Context, fn func(tx *repository.Repositories) error) error {
		return withinTx(ctx, db, logger, fn)
	})
}

func build(b base, tx repository.TxFunc) *repository.Repositories {
	return repository.New(
		&orderRepository{base: b},
		&payoutRepository{base: b},
		&returnRequestRepository{base: b},
		&promoCodeRepository{base: b},
		&principalRepository{base: b},
		tx,
	)
}

func withinTx(ctx context.Context, db *sql.DB, logger *zap.Logger, fn func(tx *repository.Repositories) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(build(base{db: tx, logger: logger}, nil)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a postgres unique_violation
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
