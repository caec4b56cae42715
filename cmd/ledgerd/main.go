// Command ledgerd runs the background job worker, its cron scheduler and the
// ops HTTP server (health, readiness, metrics, job triggers).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/app"
	"github.com/DocMeNN/DocMeNN-sub000/internal/integration"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	jobmetrics "github.com/DocMeNN/DocMeNN-sub000/internal/jobs"
	"github.com/DocMeNN/DocMeNN-sub000/internal/observability"
	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/cache"
	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/stockcontrol"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	"github.com/DocMeNN/DocMeNN-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if cfg.DBAutoMigrate {
		if err := db.RunMigrations(cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	registry := accounts.NewRegistry(redisClient, logger)
	if err := registry.Listen(ctx); err != nil {
		logger.Error("listen chart invalidations", slog.Any("error", err))
		os.Exit(1)
	}
	engine := journals.NewEngine(metrics)
	poster := integration.NewPoster(registry, engine, logger)
	runner := store.NewPG(pool)
	stock := inventory.NewEngine(inventory.Options{StoreScoped: cfg.Capabilities().StoreScopedStock}, metrics)
	stockControl := stockcontrol.NewService(runner, stock, poster, logger)

	glJob := jobs.NewGLIntegrityJob(reports.NewService(reports.NewStore(pool)), accounts.NewStore(pool), logger, jobMetrics)
	glJob.Violations = metrics
	expiryJob := jobs.NewStockExpiryJob(stockControl, cfg.ExpirySweepWorkers, logger, jobMetrics)

	glTask, err := jobs.NewGLIntegrityTask(jobs.GLIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewStockExpiryTask(jobs.StockExpiryPayload{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGLIntegrity, Handler: glJob.Handle},
			{Type: jobs.TaskStockExpiry, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.GLIntegrityCron, Task: glTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.StockExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(inspector, client, logger),
		Dependencies: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting ops server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("ledgerd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
