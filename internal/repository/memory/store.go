// Package memory is an in-process implementation of the repositories. It is
// used by the test suites and for running the service without postgres.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
)

type state struct {
	orders     map[uuid.UUID]*domain.Order
	payouts    map[uuid.UUID]*domain.Payout
	returns    map[uuid.UUID]*domain.ReturnRequest
	promos     map[string]*domain.PromoCode
	principals map[uuid.UUID]*domain.Principal
}

func newState() *state {
	return &state{
		orders:     make(map[uuid.UUID]*domain.Order),
		payouts:    make(map[uuid.UUID]*domain.Payout),
		returns:    make(map[uuid.UUID]*domain.ReturnRequest),
		promos:     make(map[string]*domain.PromoCode),
		principals: make(map[uuid.UUID]*domain.Principal),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, o := range s.orders {
		c.orders[id] = o.Clone()
	}
	for id, p := range s.payouts {
		c.payouts[id] = p.Clone()
	}
	for id, r := range s.returns {
		c.returns[id] = r.Clone()
	}
	for code, p := range s.promos {
		c.promos[code] = p.Clone()
	}
	for id, p := range s.principals {
		principal := *p
		c.principals[id] = &principal
	}
	return c
}

// Store holds all documents behind one mutex. Transactions work on a copy of
// the state that replaces the live state only when the transaction succeeds.
type Store struct {
	mu     sync.Mutex
	state  *state
	writes int
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// Writes returns the number of committed write operations.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// view is the handle every repository works through. Outside a transaction it
// locks the store per call; inside one the lock is already held.
type view struct {
	store  *Store
	st     *state
	inTx   bool
	writes int
}

func (v *view) read(fn func(st *state) error) error {
	if v.inTx {
		return fn(v.st)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func (v *view) write(fn func(st *state) error) error {
	if v.inTx {
		if err := fn(v.st); err != nil {
			return err
		}
		v.writes++
		return nil
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if err := fn(v.store.state); err != nil {
		return err
	}
	v.store.writes++
	return nil
}

// NewRepositories creates the repository aggregate backed by store
func NewRepositories(store *Store, logger *zap.Logger) *repository.Repositories {
	v := &view{store: store}
	return build(v, logger, func(ctx context.Context, fn func(tx *repository.Repositories) error) error {
		return store.withinTx(ctx, logger, fn)
	})
}

func build(v *view, logger *zap.Logger, tx repository.TxFunc) *repository.Repositories {
	return repository.New(
		&orderRepository{v: v, logger: logger},
		&payoutRepository{v: v, logger: logger},
		&returnRequestRepository{v: v, logger: logger},
		&promoCodeRepository{v: v, logger: logger},
		&principalRepository{v: v, logger: logger},
		tx,
	)
}

func (s *Store) withinTx(ctx context.Context, logger *zap.Logger, fn func(tx *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := &view{store: s, st: s.state.clone(), inTx: true}
	if err := fn(build(v, logger, nil)); err != nil {
		return err
	}

	s.state = v.st
	s.writes += v.writes
	return nil
}

func paginate(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end
}
