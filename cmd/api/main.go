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

	httpadapter "github.com/kirillkom/cv-shortlist/internal/adapters/http"
	"github.com/kirillkom/cv-shortlist/internal/bootstrap"
	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/observability/logging"
	"github.com/kirillkom/cv-shortlist/internal/observability/metrics"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger("api", "info").Error("env_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:  "api",
		Logger:   logger,
		Registry: httpMetrics.Registry(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []httpadapter.RouterOption{
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
	}
	if app.Events != nil {
		opts = append(opts, httpadapter.WithEvents(app.Events))
		go func() {
			// Builds committed by the worker are picked up without a restart.
			err := app.Events.SubscribeIndexRebuilt(ctx, func(handlerCtx context.Context, buildID string) error {
				logger.Info("index_rebuilt_received", "build_id", buildID)
				return app.Index.Reload(handlerCtx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("index_rebuilt_subscribe_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, app.QueryUC, app.IndexUC, app.IndexUC, opts...).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}
}
