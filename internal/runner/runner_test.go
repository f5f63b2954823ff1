package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	systemclock "github.com/uncommonlabs/catalog-crawler/internal/clock/system"
	iduuid "github.com/uncommonlabs/catalog-crawler/internal/id/uuid"
	notifymemory "github.com/uncommonlabs/catalog-crawler/internal/notify/memory"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
	storagememory "github.com/uncommonlabs/catalog-crawler/internal/storage/memory"
)

const testDefaultTarget = "https://ucmeyewear.earth/category/all/87/"

type stubEngine struct {
	mu    sync.Mutex
	reqs  []catalog.CrawlRequest
	count int
	err   error
	block chan struct{}
}

func (e *stubEngine) Run(ctx context.Context, req catalog.CrawlRequest) (int, error) {
	e.mu.Lock()
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return e.count, e.err
}

func (e *stubEngine) Requests() []catalog.CrawlRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]catalog.CrawlRequest, len(e.reqs))
	copy(out, e.reqs)
	return out
}

type stubEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *stubEmitter) Emit(evt progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *stubEmitter) withStage(stage progress.Stage) []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []progress.Event
	for _, evt := range s.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func newTestRunner(engine Engine, notifier catalog.Notifier) (*Runner, *storagememory.JobStore, *stubEmitter) {
	jobs := storagememory.NewJobStore()
	emitter := &stubEmitter{}
	r := New(
		Config{DefaultTargetURL: testDefaultTarget},
		engine,
		jobs,
		notifier,
		systemclock.New(),
		iduuid.New(),
		emitter,
		nil,
	)
	return r, jobs, emitter
}

func waitForStage(t *testing.T, emitter *stubEmitter, stage progress.Stage) progress.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(emitter.withStage(stage)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return emitter.withStage(stage)[0]
}

func TestStartRunsJobToCompletion(t *testing.T) {
	engine := &stubEngine{count: 5}
	notifier := notifymemory.New()
	r, jobs, emitter := newTestRunner(engine, notifier)

	limit := 3
	job, err := r.Start(context.Background(), "https://staging.ucmeyewear.earth/category/all/87/", &limit)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusPending, job.Status)
	require.Equal(t, "https://staging.ucmeyewear.earth/category/all/87/", job.TargetURL)

	done := waitForStage(t, emitter, progress.StageNotify)
	require.Equal(t, progress.OutcomeSent, done.Outcome)
	require.Equal(t, int64(5), done.Count)

	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, stored.Status)
	require.Equal(t, 5, stored.ProductsCount)
	require.NotNil(t, stored.CompletedAt)

	require.Equal(t, []int{5}, notifier.Counts())

	reqs := engine.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, job.ID, reqs[0].JobID)
	require.Equal(t, "https://staging.ucmeyewear.earth/category/all/87/", reqs[0].TargetURL)
	require.Equal(t, 3, *reqs[0].MaxProducts)
}

func TestStartFallsBackToDefaultTarget(t *testing.T) {
	engine := &stubEngine{count: 1}
	r, _, emitter := newTestRunner(engine, nil)

	job, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, testDefaultTarget, job.TargetURL)

	waitForStage(t, emitter, progress.StageRunDone)
	reqs := engine.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, testDefaultTarget, reqs[0].TargetURL)
	require.Nil(t, reqs[0].MaxProducts)
}

func TestStartRejectsConcurrentRuns(t *testing.T) {
	engine := &stubEngine{count: 2, block: make(chan struct{})}
	r, _, emitter := newTestRunner(engine, nil)

	_, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)

	_, err = r.Start(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrBusy)

	close(engine.block)
	waitForStage(t, emitter, progress.StageRunDone)

	// The gate releases once the run finishes.
	require.Eventually(t, func() bool {
		_, err := r.Start(context.Background(), "", nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRejectsWhenStoreShowsRunningJob(t *testing.T) {
	engine := &stubEngine{}
	r, jobs, _ := newTestRunner(engine, nil)

	// A job left running by another process blocks new triggers.
	seed := catalog.Job{ID: "stale-run", TargetURL: testDefaultTarget, StartedAt: time.Now().UTC()}
	require.NoError(t, jobs.Create(context.Background(), seed))
	require.NoError(t, jobs.MarkRunning(context.Background(), seed.ID))

	_, err := r.Start(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrBusy)
	require.Empty(t, engine.Requests())
}

func TestEngineErrorMarksJobFailed(t *testing.T) {
	engine := &stubEngine{err: errors.New("global pass: boom")}
	notifier := notifymemory.New()
	r, jobs, emitter := newTestRunner(engine, notifier)

	job, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)

	evt := waitForStage(t, emitter, progress.StageRunError)
	require.Contains(t, evt.Note, "boom")

	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusFailed, stored.Status)
	require.Equal(t, 0, stored.ProductsCount)
	require.NotNil(t, stored.CompletedAt)
	require.Empty(t, notifier.Counts())
}

func TestCompletionWithZeroProductsSkipsNotification(t *testing.T) {
	engine := &stubEngine{count: 0}
	notifier := notifymemory.New()
	r, jobs, emitter := newTestRunner(engine, notifier)

	job, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)

	waitForStage(t, emitter, progress.StageRunDone)

	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, stored.Status)
	require.Empty(t, notifier.Counts())
	require.Empty(t, emitter.withStage(progress.StageNotify))
}

func TestNotifyFailureDoesNotAffectJobState(t *testing.T) {
	engine := &stubEngine{count: 4}
	notifier := notifymemory.New()
	notifier.FailWith(errors.New("indexer down"))
	r, jobs, emitter := newTestRunner(engine, notifier)

	job, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)

	evt := waitForStage(t, emitter, progress.StageNotify)
	require.Equal(t, progress.OutcomeFailed, evt.Outcome)

	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, stored.Status)
	require.Equal(t, 4, stored.ProductsCount)
}

func TestShutdownCancelsActiveRun(t *testing.T) {
	engine := &stubEngine{block: make(chan struct{})}
	r, jobs, _ := newTestRunner(engine, nil)

	job, err := r.Start(context.Background(), "", nil)
	require.NoError(t, err)

	// Wait until the run is underway before shutting down.
	require.Eventually(t, func() bool {
		stored, err := jobs.Get(context.Background(), job.ID)
		return err == nil && stored.Status == catalog.JobStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusFailed, stored.Status)
}
