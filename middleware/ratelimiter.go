package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/utils"
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Max      int
	Duration time.Duration
	Skip     func(*fiber.Ctx) bool

	// Storage shares counters between instances. nil keeps them in memory.
	Storage fiber.Storage
}

// RateLimiterOption modifies a RateLimiterConfig.
type RateLimiterOption func(*RateLimiterConfig)

// WithMax sets the number of requests allowed per window.
func WithMax(max int) RateLimiterOption {
	return func(cfg *RateLimiterConfig) { cfg.Max = max }
}

// WithDuration sets the window length.
func WithDuration(d time.Duration) RateLimiterOption {
	return func(cfg *RateLimiterConfig) { cfg.Duration = d }
}

// WithSkip exempts requests for which skip returns true.
func WithSkip(skip func(*fiber.Ctx) bool) RateLimiterOption {
	return func(cfg *RateLimiterConfig) { cfg.Skip = skip }
}

// WithStorage sets the counter storage.
func WithStorage(storage fiber.Storage) RateLimiterOption {
	return func(cfg *RateLimiterConfig) { cfg.Storage = storage }
}

// RateLimiter limits requests per client IP. Default: 50 per second.
// Rejected requests get a 429 with Retry-After set to the window length.
func RateLimiter(options ...RateLimiterOption) fiber.Handler {
	cfg := RateLimiterConfig{Max: 50, Duration: time.Second}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.Max <= 0 {
		cfg.Max = 50
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Second
	}

	retryAfter := int(math.Ceil(cfg.Duration.Seconds()))

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Duration,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			// fiber reuses the request buffers
			return utils.CopyString(c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			c.Set("X-RateLimit-Remaining", "0")
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded, retry later")
		},
		Next: func(c *fiber.Ctx) bool {
			return cfg.Skip != nil && cfg.Skip(c)
		},
	})
}
