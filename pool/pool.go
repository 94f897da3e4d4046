// Package pool collects the database sessions opened during one scope
// (usually one HTTP request) and commits the dirty ones when the scope ends.
//
// A Pool never opens sessions itself. Code that creates a session outside the
// request's primary one registers it, and the owner of the scope calls
// CommitAll once all work has joined:
//
//	p := pool.New()
//	_ = p.Register(primary)
//	_ = p.Register(extra)
//	n, err := p.CommitAllContext(ctx)
//
// Commits run one session at a time. A failing save stops the pass and is
// returned to the caller; sessions already saved stay saved. Callers that
// need atomicity across sessions must coordinate an outer transaction.
package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
)

var (
	// ErrNilSession is returned when a nil session is registered, including
	// a typed nil pointer.
	ErrNilSession = errors.New("pool: session is nil")

	// ErrInvalidSession is returned for sessions whose type cannot be
	// compared by identity.
	ErrInvalidSession = errors.New("pool: session type is not comparable")
)

// Session is a unit-of-work handle that tracks pending changes.
// The pool deduplicates by identity, so implementations are normally
// pointer types. Nil and non-comparable sessions are rejected.
type Session interface {
	// HasChanges reports whether the session holds unsaved work.
	HasChanges() bool

	// SaveChanges persists the pending work.
	SaveChanges(ctx context.Context) error
}

// Discarder is implemented by sessions that can drop unsaved work.
type Discarder interface {
	Discard()
}

// Pool is a deduplicated, insertion-ordered set of sessions for one scope.
type Pool struct {
	mu       sync.Mutex
	sessions []Session
	index    map[Session]struct{}
	logger   *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		index:  make(map[Session]struct{}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds s to the pool. Registering the same session again is a no-op.
func (p *Pool) Register(s Session) error {
	if err := validate(s); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[s]; ok {
		return nil
	}
	p.index[s] = struct{}{}
	p.sessions = append(p.sessions, s)
	return nil
}

func validate(s Session) error {
	if s == nil {
		return ErrNilSession
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return ErrNilSession
		}
	}
	if !v.Comparable() {
		return ErrInvalidSession
	}
	return nil
}

// RegisterContext is Register for callers holding a context. It never blocks;
// it only refuses to register once ctx is done.
func (p *Pool) RegisterContext(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Register(s)
}

// List returns a snapshot of the registered sessions in insertion order.
func (p *Pool) List() []Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Len returns the number of registered sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// CommitAll saves every session with pending changes and returns how many
// were saved.
func (p *Pool) CommitAll() (int, error) {
	return p.commit(context.Background(), false)
}

// CommitAllContext is CommitAll with ctx handed to every save. The context is
// checked before each session; saves are never run in parallel.
func (p *Pool) CommitAllContext(ctx context.Context) (int, error) {
	return p.commit(ctx, true)
}

func (p *Pool) commit(ctx context.Context, checkCtx bool) (int, error) {
	committed := 0
	for i, s := range p.List() {
		if checkCtx {
			if err := ctx.Err(); err != nil {
				return committed, err
			}
		}
		if !s.HasChanges() {
			continue
		}
		if err := s.SaveChanges(ctx); err != nil {
			p.logger.Error("session commit failed",
				slog.Int("position", i),
				slog.Int("committed", committed),
				slog.Any("error", err),
			)
			return committed, err
		}
		committed++
	}

	if committed > 0 {
		p.logger.Debug("sessions committed", slog.Int("count", committed))
	}
	return committed, nil
}

// Release discards unsaved work on every session that supports it and
// empties the pool. Owners call it at scope end; the pool must not be reused
// afterwards.
func (p *Pool) Release() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.index = make(map[Session]struct{})
	p.mu.Unlock()

	for _, s := range sessions {
		if d, ok := s.(Discarder); ok {
			d.Discard()
		}
	}
}
