// Package app assembles the crawler service from configuration and owns its
// run lifecycle: it builds the store, crawl, and HTTP layers, starts the
// server, and shuts everything down in order on SIGINT/SIGTERM.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/api"
	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/clock/system"
	"github.com/uncommonlabs/catalog-crawler/internal/config"
	"github.com/uncommonlabs/catalog-crawler/internal/crawler"
	collyfetcher "github.com/uncommonlabs/catalog-crawler/internal/fetcher/colly"
	iduuid "github.com/uncommonlabs/catalog-crawler/internal/id/uuid"
	"github.com/uncommonlabs/catalog-crawler/internal/images"
	"github.com/uncommonlabs/catalog-crawler/internal/logging"
	"github.com/uncommonlabs/catalog-crawler/internal/merge"
	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
	"github.com/uncommonlabs/catalog-crawler/internal/notify"
	"github.com/uncommonlabs/catalog-crawler/internal/policy"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
	progresssinks "github.com/uncommonlabs/catalog-crawler/internal/progress/sinks"
	"github.com/uncommonlabs/catalog-crawler/internal/runner"
	memorystorage "github.com/uncommonlabs/catalog-crawler/internal/storage/memory"
	pgstore "github.com/uncommonlabs/catalog-crawler/internal/storage/postgres"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App holds the application's long-lived dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer   *api.Server
	runner      *runner.Runner
	engine      *crawler.Engine
	progressHub *progress.Hub
	pool        *pgxpool.Pool

	products store.ProductStore
	jobs     store.JobStore
	notifier catalog.Notifier
}

// Build creates the application's dependencies. Postgres is used when a DSN
// is configured; otherwise products and jobs live in memory and vanish on
// restart. Failures are fatal so the process never runs half-wired.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	// Log only non-sensitive config fields; the DSN stays out of the logs.
	type sanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		GlobalURL  string `json:"global_url"`
		KRURL      string `json:"kr_url"`
		Database   bool   `json:"database_configured"`
		Indexer    bool   `json:"indexer_configured"`
	}
	logger.Info("building application dependencies", zap.Any("config", sanitizedConfig{
		ServerPort: cfg.Server.Port,
		GlobalURL:  cfg.Crawler.GlobalURL,
		KRURL:      cfg.Crawler.KRURL,
		Database:   cfg.Database.DSN != "",
		Indexer:    cfg.Indexer.URL != "",
	}))

	if err := a.setupStores(ctx); err != nil {
		return nil, err
	}
	emitter := a.setupProgress()
	a.setupNotifier()

	clock := system.New()
	a.engine = a.buildEngine(clock, emitter)
	a.runner = runner.New(
		runner.Config{DefaultTargetURL: cfg.Crawler.GlobalURL},
		a.engine,
		a.jobs,
		a.notifier,
		clock,
		iduuid.New(),
		emitter,
		logger.Named("runner"),
	)

	var db api.Pinger
	if a.pool != nil {
		db = a.pool
	}
	a.apiServer = api.NewServer(a.runner, a.jobs, db, logger.Named("api"))

	return a, nil
}

func (a *App) setupStores(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, products and jobs are kept in memory")
		a.products = memorystorage.NewProductStore()
		a.jobs = memorystorage.NewJobStore()
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:      a.cfg.Database.DSN,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	if err := pgstore.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	a.products = pgstore.NewProductStore(pool)
	a.jobs = pgstore.NewJobStore(pool)
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return nil
}

func (a *App) setupProgress() progress.Emitter {
	sinks := []progress.Sink{progresssinks.NewLogSink(a.logger.Named("progress_log"))}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.logger.Warn("prometheus progress sink init failed", zap.Error(err))
	} else {
		sinks = append(sinks, promSink)
	}
	a.progressHub = progress.NewHub(progress.Config{
		Buffer: a.cfg.Progress.Buffer,
		Batch:  a.cfg.Progress.Batch,
		Logger: a.logger.Named("progress_hub"),
	}, sinks...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer", a.cfg.Progress.Buffer),
		zap.Int("batch", a.cfg.Progress.Batch),
	)
	return a.progressHub
}

func (a *App) setupNotifier() {
	if a.cfg.Indexer.URL == "" {
		a.logger.Warn("no indexer URL configured, completion notifications disabled")
		return
	}
	a.notifier = notify.NewIndexer(notify.Config{
		URL:     a.cfg.Indexer.URL,
		Timeout: a.cfg.Indexer.Timeout,
	}, a.logger.Named("notify"))
	a.logger.Info("indexer notifications enabled", zap.String("url", a.cfg.Indexer.URL))
}

func (a *App) buildEngine(clock catalog.Clock, emitter progress.Emitter) *crawler.Engine {
	requestPolicy := policy.New(policy.Config{
		MinDelay:      a.cfg.Crawler.MinDelay,
		MaxDelay:      a.cfg.Crawler.MaxDelay,
		ImageMinDelay: a.cfg.Crawler.ImageMinDelay,
		ImageMaxDelay: a.cfg.Crawler.ImageMaxDelay,
		RotateEvery:   a.cfg.Crawler.RotateEvery,
		MaxRPS:        a.cfg.Crawler.MaxRPS,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout: a.cfg.Crawler.RequestTimeout,
	}, requestPolicy)
	merger := merge.New(a.products, clock, a.logger.Named("merge"))
	loader := images.NewLoader(fetcher, requestPolicy, a.products, a.logger.Named("images"))
	return crawler.NewEngine(crawler.Config{
		GlobalURL: a.cfg.Crawler.GlobalURL,
		KRURL:     a.cfg.Crawler.KRURL,
		MaxPages:  a.cfg.Crawler.MaxPages,
	}, fetcher, requestPolicy, merger, loader, emitter, a.logger.Named("crawler"))
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce executes a single crawl synchronously, outside the job lifecycle
// and without the HTTP server. It backs the crawl CLI command. A nil
// maxProducts means unlimited; zero means a link-harvest dry run.
func (a *App) RunOnce(ctx context.Context, targetURL string, maxProducts *int) (int, error) {
	return a.engine.Run(ctx, catalog.CrawlRequest{
		TargetURL:   targetURL,
		MaxProducts: maxProducts,
	})
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close tears down the application: the runner drains first so an active
// crawl stops before its stores disappear, then the progress hub flushes,
// then the pool closes.
func (a *App) Close(ctx context.Context) error {
	if a.runner != nil {
		if err := a.runner.Shutdown(ctx); err != nil {
			a.logger.Warn("runner shutdown incomplete", zap.Error(err))
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}
