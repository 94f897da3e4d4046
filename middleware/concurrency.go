package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/semaphore"
)

// Logger is the logging surface middleware needs. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ConcurrencyLimiter bounds concurrent read and write requests.
// SQLite in WAL mode allows many readers but a single writer, so write routes
// are typically limited much harder than reads.
type ConcurrencyLimiter struct {
	read    *semaphore.Weighted
	write   *semaphore.Weighted
	timeout time.Duration
	logger  Logger
}

// NewConcurrencyLimiter creates a limiter. Acquire calls give up after timeout.
func NewConcurrencyLimiter(readLimit, writeLimit int64, timeout time.Duration, logger Logger) *ConcurrencyLimiter {
	if readLimit <= 0 {
		readLimit = 1
	}
	if writeLimit <= 0 {
		writeLimit = 1
	}
	return &ConcurrencyLimiter{
		read:    semaphore.NewWeighted(readLimit),
		write:   semaphore.NewWeighted(writeLimit),
		timeout: timeout,
		logger:  logger,
	}
}

// AcquireRead blocks until a read slot is free, ctx is done or the timeout hits.
func (l *ConcurrencyLimiter) AcquireRead(ctx context.Context) error {
	return l.acquire(ctx, l.read)
}

// ReleaseRead frees a read slot.
func (l *ConcurrencyLimiter) ReleaseRead() { l.read.Release(1) }

// AcquireWrite blocks until a write slot is free, ctx is done or the timeout hits.
func (l *ConcurrencyLimiter) AcquireWrite(ctx context.Context) error {
	return l.acquire(ctx, l.write)
}

// ReleaseWrite frees a write slot.
func (l *ConcurrencyLimiter) ReleaseWrite() { l.write.Release(1) }

func (l *ConcurrencyLimiter) acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return sem.Acquire(ctx, 1)
}

// WriteConcurrencyLimitMiddleware holds a write slot for the whole request,
// including the end-of-request session commit.
func WriteConcurrencyLimitMiddleware(l *ConcurrencyLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := l.AcquireWrite(c.UserContext()); err != nil {
			l.logger.Warn("write concurrency limit reached", "path", c.Path(), "error", err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "server busy, retry later")
		}
		defer l.ReleaseWrite()
		return c.Next()
	}
}

// ReadConcurrencyLimitMiddleware holds a read slot for the whole request.
func ReadConcurrencyLimitMiddleware(l *ConcurrencyLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := l.AcquireRead(c.UserContext()); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.logger.Warn("read concurrency limit reached", "path", c.Path(), "error", err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "server busy, retry later")
		}
		defer l.ReleaseRead()
		return c.Next()
	}
}
