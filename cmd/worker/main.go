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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/cv-shortlist/internal/bootstrap"
	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/watch"
	"github.com/kirillkom/cv-shortlist/internal/observability/logging"
	"github.com/kirillkom/cv-shortlist/internal/observability/metrics"
)

const buildTimeout = 30 * time.Minute

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger("worker", "info").Error("env_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:  "worker",
		Logger:   logger,
		Registry: workerMetrics.Registry(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Events == nil && !cfg.StagingWatch {
		logger.Error("worker_has_no_trigger", "hint", "set NATS_URL or STAGING_WATCH=true")
		os.Exit(1)
	}

	build := func(parent context.Context, trigger, stagingPath string) error {
		buildCtx, cancel := context.WithTimeout(parent, buildTimeout)
		defer cancel()

		workerMetrics.StartReindex()
		start := time.Now()
		_, err := app.IndexUC.Build(buildCtx, stagingPath)
		workerMetrics.FinishReindex("worker", trigger, time.Since(start), err == nil)
		return err
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if app.Events != nil {
		g.Go(func() error {
			logger.Info("worker_subscribed", "subject", cfg.NATSReindexSubject)
			return app.Events.SubscribeReindexRequested(gctx, func(handlerCtx context.Context, stagingPath string) error {
				if stagingPath == "" {
					stagingPath = cfg.StagingPath
				}
				return build(handlerCtx, "nats", stagingPath)
			})
		})
	}

	if cfg.StagingWatch {
		watcher := watch.NewStagingWatcher(cfg.StagingPath, cfg.StagingWatchDebounce, func(watchCtx context.Context) {
			if err := build(watchCtx, "watch", cfg.StagingPath); err != nil {
				logger.Warn("watch_reindex_failed", "error", err)
			}
		}, logger)
		g.Go(func() error {
			logger.Info("worker_watching", "path", cfg.StagingPath)
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
}
