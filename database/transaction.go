package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrRetriesExhausted wraps the last busy error once every attempt failed.
var ErrRetriesExhausted = errors.New("database: write retries exhausted")

// serialWrites is held for the whole attempt when native queuing is off.
var serialWrites sync.Mutex

// TransactionConfig is the retry policy for writes and session commits.
type TransactionConfig struct {
	// UseNativeSQLiteQueuing leaves writer ordering to SQLite
	// (busy_timeout plus immediate transactions). When false, writes in
	// this process run one at a time behind a mutex.
	UseNativeSQLiteQueuing bool

	// MaxRetries is the number of attempts. Values below 1 mean one attempt.
	MaxRetries int

	// BaseDelay is the backoff before the second attempt; it doubles after
	// each further busy error up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultTransactionConfig returns the policy used when none is configured.
func DefaultTransactionConfig() TransactionConfig {
	return TransactionConfig{
		UseNativeSQLiteQueuing: true,
		MaxRetries:             10,
		BaseDelay:              100 * time.Millisecond,
		MaxDelay:               5 * time.Second,
	}
}

func (c TransactionConfig) normalized() TransactionConfig {
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// PerformWrite runs f in a transaction with the default policy.
func PerformWrite(ctx context.Context, logger *slog.Logger, db *gorm.DB, f func(tx *gorm.DB) error) error {
	return PerformWriteWithConfig(ctx, logger, db, f, DefaultTransactionConfig())
}

// PerformWriteWithConfig runs f in a transaction bound to ctx. Busy or locked
// errors roll back and retry with jittered exponential backoff; any other
// error from f or from the commit is returned as is. Cancelling ctx stops
// the backoff.
func PerformWriteWithConfig(ctx context.Context, logger *slog.Logger, db *gorm.DB, f func(tx *gorm.DB) error, cfg TransactionConfig) error {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalized()
	db = db.WithContext(ctx)

	var err error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := calculateRetryDelay(attempt-1, cfg.BaseDelay, cfg.MaxDelay)
			logger.Info("retrying write",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
			if werr := sleepContext(ctx, delay); werr != nil {
				return werr
			}
		}

		err = runAttempt(db, f, !cfg.UseNativeSQLiteQueuing)
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		logger.Debug("write hit a busy database", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, cfg.MaxRetries, err)
}

func runAttempt(db *gorm.DB, f func(tx *gorm.DB) error, serial bool) error {
	if serial {
		serialWrites.Lock()
		defer serialWrites.Unlock()
	}
	return db.Transaction(f)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// calculateRetryDelay is base * 2^(retry-1), capped at max, plus up to 20%
// jitter.
func calculateRetryDelay(retry int, base, max time.Duration) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(retry-1)))
	if delay > max {
		delay = max
	}
	return delay + time.Duration(rand.Float64()*0.2*float64(delay))
}

// IsBusy reports whether err is a lock contention error worth retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"locked", "busy", "sql statements in progress"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
