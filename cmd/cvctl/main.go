package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/cv-shortlist/internal/adapters/cli"
	"github.com/kirillkom/cv-shortlist/internal/bootstrap"
	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/observability/logging"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "cvctl", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cfg, version, func(ctx context.Context) (*cli.Runtime, func(), error) {
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "cvctl", Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return &cli.Runtime{Ranker: app.QueryUC, Indexer: app.IndexUC, Status: app.IndexUC}, app.Close, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
