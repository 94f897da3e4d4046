package scopedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/gormsession"
	"github.com/karloscodes/scopedb/pool"
)

// JobContext provides batch-scoped access to dependencies. Like a request
// Context, it owns a session pool that is committed when the batch returns
// nil and discarded otherwise.
type JobContext struct {
	context.Context
	Logger *slog.Logger

	pool     *pool.Pool
	sessions sessionFactory
	primary  *gormsession.Session
}

// Pool returns the batch's session pool.
func (jc *JobContext) Pool() *pool.Pool { return jc.pool }

// DB returns the batch's primary session, registering it on first use.
func (jc *JobContext) DB() (*gormsession.Session, error) {
	if jc.primary != nil {
		return jc.primary, nil
	}
	s, err := jc.NewSession()
	if err != nil {
		return nil, err
	}
	jc.primary = s
	return s, nil
}

// NewSession returns an additional session registered in the batch's pool.
func (jc *JobContext) NewSession() (*gormsession.Session, error) {
	s, err := jc.sessions.open()
	if err != nil {
		return nil, err
	}
	if err := jc.pool.RegisterContext(jc, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadDB returns a read handle bound to the batch context.
func (jc *JobContext) ReadDB() (*gorm.DB, error) {
	s, err := jc.DB()
	if err != nil {
		return nil, err
	}
	return s.DB(jc), nil
}

// Processor processes one batch of background work.
type Processor interface {
	ProcessBatch(ctx *JobContext) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *JobContext) error

// ProcessBatch calls f(ctx).
func (f ProcessorFunc) ProcessBatch(ctx *JobContext) error { return f(ctx) }

// JobDispatcher runs processors periodically in a background loop. Each
// processor batch runs in its own session scope.
type JobDispatcher struct {
	logger     *slog.Logger
	sessions   sessionFactory
	processors []Processor
	interval   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewJobDispatcher creates a background job dispatcher.
func NewJobDispatcher(logger *slog.Logger, dbManager DBManager, interval time.Duration, processors ...Processor) *JobDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobDispatcher{
		logger:     logger.With(slog.String("component", "jobs")),
		sessions:   newSessionFactory(dbManager, logger),
		processors: processors,
		interval:   interval,
	}
}

// Start begins the background loop. Calling Start on a running dispatcher
// is a no-op.
func (d *JobDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	if d.interval <= 0 {
		return fmt.Errorf("scopedb: job interval must be positive, got %s", d.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Stop cancels the running batch, if any, and waits for the loop to exit.
func (d *JobDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *JobDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	d.logger.Info("jobs dispatcher started", slog.Int("processors", len(d.processors)))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	_ = d.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			_ = d.RunOnce(ctx)
		case <-ctx.Done():
			d.logger.Info("jobs dispatcher stopped")
			return
		}
	}
}

// RunOnce runs every processor once, each in its own scope. A failing
// processor does not prevent the others from running; all failures are
// returned joined.
func (d *JobDispatcher) RunOnce(ctx context.Context) error {
	var errs []error
	for i, proc := range d.processors {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		start := time.Now()
		n, err := pool.Scope(ctx, func(scoped context.Context) error {
			batchPool, _ := pool.FromContext(scoped)
			return proc.ProcessBatch(&JobContext{
				Context:  scoped,
				Logger:   d.logger,
				pool:     batchPool,
				sessions: d.sessions,
			})
		}, pool.WithLogger(d.logger))

		if err != nil {
			d.logger.Error("processor failed",
				slog.Int("processor", i),
				slog.Int("committed", n),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("processor %d: %w", i, err))
			continue
		}
		d.logger.Debug("processor batch done",
			slog.Int("processor", i),
			slog.Int("committed", n),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}
