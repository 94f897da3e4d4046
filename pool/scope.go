package pool

import "context"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Pool) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the pool carried by ctx, if any.
func FromContext(ctx context.Context) (*Pool, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Pool)
	return p, ok && p != nil
}

// Scope runs fn with a fresh pool attached to ctx. When fn succeeds the pool
// is committed; in every case it is released before Scope returns.
// The returned count is the number of sessions that were saved.
func Scope(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) (int, error) {
	p := New(opts...)
	defer p.Release()

	if err := fn(NewContext(ctx, p)); err != nil {
		return 0, err
	}
	return p.CommitAllContext(ctx)
}
