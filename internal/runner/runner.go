// Package runner owns crawl execution: the single-flight gate, the job
// lifecycle transitions, and the background goroutine a run lives on.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// ErrBusy signals that a crawl is already active.
var ErrBusy = errors.New("a crawl is already running")

// terminalTimeout bounds the store write that records a run's final
// state. It runs on its own context so shutdown cannot strand a job in
// running state.
const terminalTimeout = 10 * time.Second

// Engine runs one crawl and reports how many products it processed.
type Engine interface {
	Run(ctx context.Context, req catalog.CrawlRequest) (int, error)
}

// Config controls the Runner.
type Config struct {
	// DefaultTargetURL is recorded on jobs triggered without a seed
	// override.
	DefaultTargetURL string
}

// Runner accepts crawl triggers, rejects concurrent runs, and executes
// each accepted run on its own goroutine. The run context derives from
// the runner, not the trigger request, so a closed HTTP connection does
// not cancel a crawl in flight.
type Runner struct {
	cfg      Config
	engine   Engine
	jobs     store.JobStore
	notifier catalog.Notifier
	clock    catalog.Clock
	ids      catalog.IDGenerator
	emitter  progress.Emitter
	logger   *zap.Logger

	mu     sync.Mutex
	active bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Runner. The notifier and emitter may be nil.
func New(
	cfg Config,
	engine Engine,
	jobs store.JobStore,
	notifier catalog.Notifier,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		jobs:     jobs,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		emitter:  emitter,
		logger:   logger,
		runCtx:   ctx,
		cancel:   cancel,
	}
}

// Start accepts a crawl trigger: it inserts a pending job and launches the
// run in the background. Returns ErrBusy while a run is active, whether
// held by this process or recorded as running in the store. The passed
// context covers only the synchronous store calls.
func (r *Runner) Start(ctx context.Context, targetURL string, maxProducts *int) (catalog.Job, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return catalog.Job{}, ErrBusy
	}
	r.active = true
	r.mu.Unlock()

	if _, err := r.jobs.GetRunning(ctx); err == nil {
		r.release()
		return catalog.Job{}, ErrBusy
	} else if !errors.Is(err, store.ErrNotFound) {
		r.release()
		return catalog.Job{}, fmt.Errorf("check running job: %w", err)
	}

	jobID, err := r.ids.NewID()
	if err != nil {
		r.release()
		return catalog.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	target := targetURL
	if target == "" {
		target = r.cfg.DefaultTargetURL
	}
	job := catalog.Job{
		ID:        jobID,
		TargetURL: target,
		Status:    catalog.JobStatusPending,
		StartedAt: r.clock.Now(),
	}
	if err := r.jobs.Create(ctx, job); err != nil {
		r.release()
		return catalog.Job{}, fmt.Errorf("create job: %w", err)
	}

	req := catalog.CrawlRequest{
		JobID:       jobID,
		TargetURL:   target,
		MaxProducts: maxProducts,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		r.run(job, req)
	}()

	return job, nil
}

// Shutdown cancels the active run, if any, and waits for it to finish or
// for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

func (r *Runner) run(job catalog.Job, req catalog.CrawlRequest) {
	logger := r.logger.With(zap.String("job_id", job.ID), zap.String("target_url", job.TargetURL))

	r.emit(progress.Event{
		JobID: job.ID,
		TS:    r.clock.Now(),
		Stage: progress.StageRunStart,
		URL:   job.TargetURL,
	})

	if err := r.jobs.MarkRunning(r.runCtx, job.ID); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		r.emit(progress.Event{
			JobID: job.ID,
			TS:    r.clock.Now(),
			Stage: progress.StageRunError,
			Note:  err.Error(),
		})
		return
	}
	logger.Info("crawl started")

	count, err := r.engine.Run(r.runCtx, req)
	elapsed := r.clock.Now().Sub(job.StartedAt)

	markCtx, cancelMark := context.WithTimeout(context.Background(), terminalTimeout)
	defer cancelMark()

	if err != nil {
		logger.Error("crawl failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if markErr := r.jobs.MarkFailed(markCtx, job.ID, r.clock.Now()); markErr != nil {
			logger.Error("mark job failed failed", zap.Error(markErr))
		}
		r.emit(progress.Event{
			JobID: job.ID,
			TS:    r.clock.Now(),
			Stage: progress.StageRunError,
			Dur:   elapsed,
			Note:  err.Error(),
		})
		return
	}

	if err := r.jobs.MarkCompleted(markCtx, job.ID, count, r.clock.Now()); err != nil {
		// The crawl itself succeeded; only the terminal transition is lost.
		logger.Error("mark job completed failed", zap.Error(err))
	}
	logger.Info("crawl completed", zap.Int("products_count", count), zap.Duration("elapsed", elapsed))
	r.emit(progress.Event{
		JobID: job.ID,
		TS:    r.clock.Now(),
		Stage: progress.StageRunDone,
		Count: int64(count),
		Dur:   elapsed,
	})

	if count > 0 && r.notifier != nil {
		outcome := progress.OutcomeSent
		if err := r.notifier.ProductsScraped(r.runCtx, count); err != nil {
			logger.Warn("indexer notification failed", zap.Error(err))
			outcome = progress.OutcomeFailed
		}
		r.emit(progress.Event{
			JobID:   job.ID,
			TS:      r.clock.Now(),
			Stage:   progress.StageNotify,
			Outcome: outcome,
			Count:   int64(count),
		})
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}
