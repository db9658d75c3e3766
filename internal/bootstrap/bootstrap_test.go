package bootstrap

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		StagingPath:      filepath.Join(dir, "staging"),
		IndexPath:        filepath.Join(dir, "index", "cv.idx"),
		LLMProvider:      config.ProviderOllama,
		OllamaURL:        "http://127.0.0.1:1",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",
		ChunkSize:        200,
		ChunkOverlap:     20,
		RAGTopK:          10,
	}
}

func TestNewWiresMinimalApp(t *testing.T) {
	registry := prometheus.NewRegistry()
	app, err := New(context.Background(), testConfig(t), Options{
		Service:  "test",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Events != nil {
		t.Fatalf("events must be disabled without NATS_URL")
	}
	if _, ok := app.IndexUC.Active(); ok {
		t.Fatalf("fresh install must not have an active index")
	}
	builds, err := app.IndexUC.RecentBuilds(context.Background(), 5)
	if err != nil || len(builds) != 0 {
		t.Fatalf("expected empty history without postgres, got %v %v", builds, err)
	}

	_, err = app.QueryUC.Ask(context.Background(), "go engineer", nil)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "cvs_shortlist_asks_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pipeline metrics on the shared registry")
	}
}

func TestNewEmptyStagingReportsCorpusEmpty(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	ok, msg := app.IndexUC.Reindex(context.Background(), app.Config.StagingPath)
	if ok || !strings.HasPrefix(msg, "indexing failed:") {
		t.Fatalf("expected corpus empty failure, got %v %q", ok, msg)
	}
	if _, err := os.Stat(app.Config.IndexPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("empty corpus must not persist an index file, stat err = %v", err)
	}
	if _, ok := app.IndexUC.Active(); ok {
		t.Fatalf("empty corpus must not activate an index")
	}
}

func TestNewRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkOverlap = 250
	if _, err := New(context.Background(), cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}); err == nil {
		t.Fatalf("expected chunk overlap to be rejected")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "bard"
	if _, err := New(context.Background(), cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = config.ProviderOpenAI
	if _, err := New(context.Background(), cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}); err == nil {
		t.Fatalf("expected missing api key error")
	}
}

func TestResilienceConfigFromEnv(t *testing.T) {
	out := resilienceConfig(config.Config{
		ResilienceRetryMaxAttempts:    5,
		ResilienceRetryInitialBackoff: 50 * time.Millisecond,
		ResilienceRetryMaxBackoff:     time.Second,
		ResilienceBreakerEnabled:      false,
		ResilienceBreakerMinRequests:  20,
		ResilienceBreakerFailureRatio: 0.25,
		ResilienceBreakerOpenTimeout:  time.Minute,
	})
	if out.RetryMaxAttempts != 5 || out.RetryInitialBackoff != 50*time.Millisecond || out.RetryMaxBackoff != time.Second {
		t.Fatalf("unexpected retry config: %+v", out)
	}
	if out.BreakerEnabled || out.BreakerMinRequests != 20 || out.BreakerFailureRatio != 0.25 || out.BreakerOpenTimeout != time.Minute {
		t.Fatalf("unexpected breaker config: %+v", out)
	}
	if out.RetryMultiplier != 0 {
		t.Fatalf("unset multiplier is left for the executor to default, got %v", out.RetryMultiplier)
	}
}
