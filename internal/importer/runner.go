package importer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/timmy/geoimport/internal/logger"
)

// RunnerConfig holds configuration for the background runner.
type RunnerConfig struct {
	Workers   int
	QueueSize int
}

// Runner executes commit passes on a fixed pool of worker goroutines so
// callers can trigger a run and poll for its outcome.
type Runner struct {
	manager *Manager
	workers int
	queue   chan int64
	logger  *logger.Logger

	mu      sync.Mutex
	pending map[int64]bool
	stopped bool
	wg      sync.WaitGroup
}

// NewRunner creates a runner for m. Call Start before Submit.
func NewRunner(m *Manager, cfg *RunnerConfig, log *logger.Logger) *Runner {
	workers, size := 2, 16
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.QueueSize > 0 {
			size = cfg.QueueSize
		}
	}
	return &Runner{
		manager: m,
		workers: workers,
		queue:   make(chan int64, size),
		logger:  log,
		pending: make(map[int64]bool),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(workerID int) {
			defer r.wg.Done()
			r.worker(ctx, workerID)
		}(i)
	}
}

// Submit queues a commit pass for a context. A context can be queued only
// once at a time.
func (r *Runner) Submit(contextID int64) error {
	if _, err := r.manager.GetContext(contextID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errors.Wrap(ErrQueueFull, "runner is stopped")
	}
	if r.pending[contextID] {
		return errors.WithHint(
			errors.Wrapf(ErrAlreadyRunning, "context %d is already queued", contextID),
			"poll the import until it is no longer running")
	}
	select {
	case r.queue <- contextID:
		r.pending[contextID] = true
		return nil
	default:
		return errors.WithHint(errors.Wrapf(ErrQueueFull, "context %d", contextID), "retry later")
	}
}

// Pending reports whether a context is queued or running on the runner.
func (r *Runner) Pending(contextID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[contextID]
}

// Stop refuses new submissions and waits for queued passes to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-r.queue:
			if !ok {
				return
			}
			r.run(ctx, workerID, id)
		}
	}
}

func (r *Runner) run(ctx context.Context, workerID int, contextID int64) {
	defer func() {
		r.mu.Lock()
		delete(r.pending, contextID)
		r.mu.Unlock()
	}()

	ctx = logger.FromContextOr(ctx, r.logger).WithFields(logger.Fields{
		logger.FieldComponent: "runner",
		"worker":              workerID,
	}).WithContext(ctx)

	start := time.Now()
	state, err := r.manager.RunContext(ctx, contextID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldContextID, contextID).Error("Background run failed")
		return
	}
	logger.With(logger.Fields{logger.FieldContextID: contextID}).
		WithStatus(string(state)).
		WithDuration(time.Since(start)).
		Info(ctx, "Background run finished")
}
