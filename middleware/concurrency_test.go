package middleware_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/karloscodes/scopedb/middleware"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConcurrencyLimiter_ReadSlots(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(2, 1, time.Second, quietLogger())
	ctx := context.Background()

	require.NoError(t, l.AcquireRead(ctx))
	require.NoError(t, l.AcquireRead(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.AcquireRead(short))

	l.ReleaseRead()
	require.NoError(t, l.AcquireRead(ctx))

	l.ReleaseRead()
	l.ReleaseRead()
}

func TestConcurrencyLimiter_SingleWriter(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(10, 1, 20*time.Millisecond, quietLogger())
	ctx := context.Background()

	require.NoError(t, l.AcquireWrite(ctx))
	assert.ErrorIs(t, l.AcquireWrite(ctx), context.DeadlineExceeded)

	l.ReleaseWrite()
	require.NoError(t, l.AcquireWrite(ctx))
	l.ReleaseWrite()
}

func TestConcurrencyLimiter_CanceledContext(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(1, 1, time.Second, quietLogger())
	require.NoError(t, l.AcquireWrite(context.Background()))
	defer l.ReleaseWrite()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.AcquireWrite(ctx), context.Canceled)
}

func TestConcurrencyLimiter_WritersNeverOverlap(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(5, 1, time.Second, quietLogger())
	var active, peak int32

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			if err := l.AcquireWrite(context.Background()); err != nil {
				return err
			}
			defer l.ReleaseWrite()

			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), peak)
}

func TestWriteConcurrencyLimitMiddleware_Busy(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(1, 1, 10*time.Millisecond, quietLogger())
	require.NoError(t, l.AcquireWrite(context.Background()))
	defer l.ReleaseWrite()

	app := fiber.New()
	app.Post("/notes", middleware.WriteConcurrencyLimitMiddleware(l), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/notes", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadConcurrencyLimitMiddleware_ReleasesSlot(t *testing.T) {
	l := middleware.NewConcurrencyLimiter(1, 1, 10*time.Millisecond, quietLogger())

	app := fiber.New()
	app.Get("/notes", middleware.ReadConcurrencyLimitMiddleware(l), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/notes", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
