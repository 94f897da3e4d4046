// Package gormsession provides a unit-of-work session on top of GORM.
//
// GORM writes immediately, so a Session buffers write operations instead and
// applies them in a single transaction when SaveChanges is called. This gives
// GORM the "pending changes" semantics the pool package relies on.
package gormsession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/database"
	"github.com/karloscodes/scopedb/pool"
)

// Operation is a buffered write applied inside the commit transaction.
type Operation func(tx *gorm.DB) error

// Session buffers writes against a GORM connection until SaveChanges.
type Session struct {
	id     string
	db     *gorm.DB
	logger *slog.Logger
	write  database.TransactionConfig

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

// WithTransactionConfig sets the retry policy used by SaveChanges.
func WithTransactionConfig(cfg database.TransactionConfig) Option {
	return func(s *Session) {
		s.write = cfg
	}
}

// New creates a session bound to db.
func New(db *gorm.DB, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		db:     db,
		logger: slog.Default(),
		write:  database.DefaultTransactionConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	return s
}

// FromManager opens a session on the manager's connection using the
// manager's logger and write configuration.
func FromManager(m *database.Manager, opts ...Option) (*Session, error) {
	db, err := m.Connect()
	if err != nil {
		return nil, fmt.Errorf("gormsession: connect: %w", err)
	}
	base := []Option{
		WithLogger(m.Logger()),
		WithTransactionConfig(m.WriteConfig()),
	}
	return New(db, append(base, opts...)...), nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// DB returns a handle for reads bound to ctx. Writes made through it bypass
// the session and are applied immediately.
func (s *Session) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Add schedules an insert of model.
func (s *Session) Add(model any) {
	s.Do(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
}

// Update schedules a full save of model.
func (s *Session) Update(model any) {
	s.Do(func(tx *gorm.DB) error {
		return tx.Save(model).Error
	})
}

// Remove schedules a delete of model.
func (s *Session) Remove(model any) {
	s.Do(func(tx *gorm.DB) error {
		return tx.Delete(model).Error
	})
}

// Exec schedules a raw statement.
func (s *Session) Exec(sql string, args ...any) {
	s.Do(func(tx *gorm.DB) error {
		return tx.Exec(sql, args...).Error
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
// the transaction is rolled back and the operations stay buffered.
// Operations scheduled while SaveChanges runs are kept for the next call.
func (s *Session) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	ops := make([]Operation, len(s.pending))
	copy(ops, s.pending)
	gen := s.gen
	s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	err := database.PerformWriteWithConfig(ctx, s.logger, s.db, func(tx *gorm.DB) error {
		for i, op := range ops {
			if err := op(tx); err != nil {
				return fmt.Errorf("gormsession: operation %d: %w", i, err)
			}
		}
		return nil
	}, s.write)
	if err != nil {
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
