package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/scopedb/middleware"
	"github.com/karloscodes/scopedb/pool"
)

type countingSession struct {
	dirty     bool
	saveErr   error
	saves     int32
	discarded int32
}

func (s *countingSession) HasChanges() bool { return s.dirty }

func (s *countingSession) SaveChanges(context.Context) error {
	atomic.AddInt32(&s.saves, 1)
	if s.saveErr != nil {
		return s.saveErr
	}
	s.dirty = false
	return nil
}

func (s *countingSession) Discard() { atomic.AddInt32(&s.discarded, 1) }

func newPoolApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(middleware.SessionPool(middleware.SessionPoolConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	app.Get("/", handler)
	return app
}

func TestSessionPool_CommitsOnSuccess(t *testing.T) {
	s := &countingSession{dirty: true}
	app := newPoolApp(func(c *fiber.Ctx) error {
		p, ok := middleware.PoolFromCtx(c)
		require.True(t, ok)
		require.NoError(t, p.Register(s))
		require.NoError(t, p.Register(s))
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), s.saves)
	assert.Equal(t, int32(1), s.discarded)
}

func TestSessionPool_UserContextCarriesPool(t *testing.T) {
	s := &countingSession{dirty: true}
	app := newPoolApp(func(c *fiber.Ctx) error {
		p, ok := pool.FromContext(c.UserContext())
		require.True(t, ok)
		fromLocals, _ := middleware.PoolFromCtx(c)
		assert.Same(t, fromLocals, p)
		return p.Register(s)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), s.saves)
}

func TestSessionPool_SkipsCommitOnHandlerError(t *testing.T) {
	s := &countingSession{dirty: true}
	app := newPoolApp(func(c *fiber.Ctx) error {
		p, _ := middleware.PoolFromCtx(c)
		require.NoError(t, p.Register(s))
		return fiber.NewError(fiber.StatusUnprocessableEntity, "invalid")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, s.saves)
	assert.Equal(t, int32(1), s.discarded)
}

func TestSessionPool_SkipsCommitOnClientErrorStatus(t *testing.T) {
	s := &countingSession{dirty: true}
	app := newPoolApp(func(c *fiber.Ctx) error {
		p, _ := middleware.PoolFromCtx(c)
		require.NoError(t, p.Register(s))
		return c.Status(fiber.StatusNotFound).SendString("missing")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Zero(t, s.saves)
}

func TestSessionPool_CommitFailureBecomesError(t *testing.T) {
	s := &countingSession{dirty: true, saveErr: errors.New("disk full")}
	app := newPoolApp(func(c *fiber.Ctx) error {
		p, _ := middleware.PoolFromCtx(c)
		require.NoError(t, p.Register(s))
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), s.saves)
}

func TestSessionPool_CustomShouldCommit(t *testing.T) {
	s := &countingSession{dirty: true}
	app := fiber.New()
	app.Use(middleware.SessionPool(middleware.SessionPoolConfig{
		ShouldCommit: func(c *fiber.Ctx, err error) bool { return false },
	}))
	app.Post("/", func(c *fiber.Ctx) error {
		p, _ := middleware.PoolFromCtx(c)
		return p.Register(s)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Zero(t, s.saves)
}

func TestPoolFromCtx_WithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := middleware.PoolFromCtx(c)
		assert.False(t, ok)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}
