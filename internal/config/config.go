package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	APIPort  string
	LogLevel string

	StagingPath string
	IndexPath   string

	LLMProvider    string
	LLMTemperature float64

	OllamaURL            string
	OllamaGenModel       string
	OllamaEmbedModel     string
	OllamaTimeoutSeconds int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIEmbedModel string

	ChunkSize        int
	ChunkOverlap     int
	RAGTopK          int
	EmbedBatchSize   int
	JudgeConcurrency int

	JudgeTimeoutSeconds  int
	JudgeCacheTTLSeconds int

	PostgresDSN string

	NATSURL            string
	NATSReindexSubject string
	NATSRebuiltSubject string

	RedisURL string

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	WorkerMetricsPort    string
	StagingWatch         bool
	StagingWatchDebounce time.Duration

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceRetryMultiplier     float64
	ResilienceBreakerEnabled      bool
	ResilienceBreakerMinRequests  int
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenTimeout  time.Duration
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		StagingPath: mustEnv("STAGING_PATH", "./data/staging"),
		IndexPath:   mustEnv("INDEX_PATH", "./data/index/cv.idx"),

		LLMProvider:    mustEnv("LLM_PROVIDER", ProviderOllama),
		LLMTemperature: mustEnvFloat("LLM_TEMPERATURE", 0),

		OllamaURL:            mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:       mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel:     mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaTimeoutSeconds: mustEnvInt("OLLAMA_TIMEOUT_SECONDS", 120),

		OpenAIAPIKey:     mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    mustEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel:  mustEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		ChunkSize:        mustEnvInt("CHUNK_SIZE", 200),
		ChunkOverlap:     mustEnvInt("CHUNK_OVERLAP", 20),
		RAGTopK:          mustEnvInt("RAG_TOP_K", 10),
		EmbedBatchSize:   mustEnvInt("EMBED_BATCH_SIZE", 64),
		JudgeConcurrency: mustEnvInt("JUDGE_CONCURRENCY", 1),

		JudgeTimeoutSeconds:  mustEnvInt("JUDGE_TIMEOUT_SECONDS", 90),
		JudgeCacheTTLSeconds: mustEnvInt("JUDGE_CACHE_TTL_SECONDS", 86400),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:            mustEnv("NATS_URL", ""),
		NATSReindexSubject: mustEnv("NATS_REINDEX_SUBJECT", "cv.index.reindex"),
		NATSRebuiltSubject: mustEnv("NATS_REBUILT_SUBJECT", "cv.index.rebuilt"),

		RedisURL: mustEnv("REDIS_URL", ""),

		APIRateLimitRPS:     mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst:   mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:      mustEnvInt("API_MAX_IN_FLIGHT", 4),
		APIBackpressureWait: mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		WorkerMetricsPort:    mustEnv("WORKER_METRICS_PORT", "9090"),
		StagingWatch:         mustEnvBool("STAGING_WATCH", false),
		StagingWatchDebounce: mustEnvDuration("STAGING_WATCH_DEBOUNCE", 2*time.Second),

		ResilienceRetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoff: mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		ResilienceRetryMaxBackoff:     mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", 2*time.Second),
		ResilienceRetryMultiplier:     mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", 2.0),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:  mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 10),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeout:  mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d with CHUNK_SIZE %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files, or from ./.env when
// none are given. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

func (c Config) JudgeTimeout() time.Duration {
	return time.Duration(c.JudgeTimeoutSeconds) * time.Second
}

func (c Config) JudgeCacheTTL() time.Duration {
	return time.Duration(c.JudgeCacheTTLSeconds) * time.Second
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("250ms", "2s") or a bare number of milliseconds.
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
