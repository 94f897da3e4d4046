// Package bunsession provides a unit-of-work session on top of bun.
//
// Like gormsession, writes are buffered and applied in one transaction by
// SaveChanges, so bun sessions can be registered in the same pool as GORM
// sessions.
package bunsession

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/karloscodes/scopedb/pool"
)

// Operation is a buffered write applied inside the commit transaction.
type Operation func(ctx context.Context, tx bun.Tx) error

// Session buffers writes against a bun database until SaveChanges.
type Session struct {
	id     string
	db     *bun.DB
	logger *slog.Logger
	txOpts *sql.TxOptions

	mu      sync.Mutex
	pending []Operation
	// gen changes on Discard so an in-flight save does not trim work
	// buffered afterwards.
	gen uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTxOptions sets the options used to begin the commit transaction.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(s *Session) {
		s.txOpts = opts
	}
}

// New creates a session bound to db.
func New(db *bun.DB, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		db:     db,
		logger: slog.Default(),
		txOpts: &sql.TxOptions{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// DB returns the underlying database for reads.
func (s *Session) DB() *bun.DB { return s.db }

// Add schedules an insert of model.
func (s *Session) Add(model any) {
	s.Do(func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(model).Exec(ctx)
		return err
	})
}

// Update schedules an update of model by primary key.
func (s *Session) Update(model any) {
	s.Do(func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().Model(model).WherePK().Exec(ctx)
		return err
	})
}

// Remove schedules a delete of model by primary key.
func (s *Session) Remove(model any) {
	s.Do(func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().Model(model).WherePK().Exec(ctx)
		return err
	})
}

// Exec schedules a raw statement.
func (s *Session) Exec(query string, args ...any) {
	s.Do(func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

// Do schedules an arbitrary operation.
func (s *Session) Do(op Operation) {
	s.mu.Lock()
	s.pending = append(s.pending, op)
	s.mu.Unlock()
}

// Pending returns the number of buffered operations.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HasChanges reports whether any operation is buffered.
func (s *Session) HasChanges() bool {
	return s.Pending() > 0
}

// SaveChanges applies the buffered operations in one transaction. On failure
// the operations stay buffered.
func (s *Session) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	ops := make([]Operation, len(s.pending))
	copy(ops, s.pending)
	gen := s.gen
	s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	err := s.db.RunInTx(ctx, s.txOpts, func(ctx context.Context, tx bun.Tx) error {
		for i, op := range ops {
			if err := op(ctx, tx); err != nil {
				return fmt.Errorf("bunsession: operation %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("session commit failed", slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.pending = s.pending[len(ops):]
	}
	s.mu.Unlock()

	s.logger.Debug("session changes saved", slog.Int("operations", len(ops)))
	return nil
}

// Discard drops all buffered operations.
func (s *Session) Discard() {
	s.mu.Lock()
	dropped := len(s.pending)
	s.pending = nil
	s.gen++
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("session changes discarded", slog.Int("operations", dropped))
	}
}

var (
	_ pool.Session   = (*Session)(nil)
	_ pool.Discarder = (*Session)(nil)
)
