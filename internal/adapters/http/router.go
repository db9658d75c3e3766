package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
	"github.com/kirillkom/cv-shortlist/internal/observability/metrics"
)

const (
	maxRequestBodyBytes = 1 << 20
	defaultBuildsLimit  = 20
	maxBuildsLimit      = 200
)

type Router struct {
	ranker      ports.CandidateRanker
	indexer     ports.IndexBuilder
	status      ports.IndexStatusReader
	events      ports.IndexEvents
	httpMetrics *metrics.HTTPServerMetrics
	logger      *slog.Logger

	stagingPath         string
	rateLimitRPS        float64
	rateLimitBurst      int
	maxInFlight         int
	backpressureMaxWait time.Duration
}

type RouterOption func(*Router)

// WithEvents lets POST /v1/index/rebuild hand async requests to the worker.
func WithEvents(events ports.IndexEvents) RouterOption {
	return func(rt *Router) { rt.events = events }
}

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.httpMetrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) { rt.logger = logger }
}

func NewRouter(
	cfg config.Config,
	ranker ports.CandidateRanker,
	indexer ports.IndexBuilder,
	status ports.IndexStatusReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		ranker:              ranker,
		indexer:             indexer,
		status:              status,
		stagingPath:         cfg.StagingPath,
		rateLimitRPS:        cfg.APIRateLimitRPS,
		rateLimitBurst:      cfg.APIRateLimitBurst,
		maxInFlight:         cfg.APIMaxInFlight,
		backpressureMaxWait: cfg.APIBackpressureWait,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/shortlist/ask", rt.ask)
	api.HandleFunc("/v1/index/rebuild", rt.rebuild)
	api.HandleFunc("/v1/index/status", rt.indexStatus)
	api.HandleFunc("/v1/index/builds", rt.listBuilds)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.backpressureMaxWait)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.httpMetrics != nil {
		mux.Handle("/metrics", rt.httpMetrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askResponse struct {
	*domain.Shortlist
	Summary string `json:"summary"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req domain.AskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	conversation, err := domain.NormalizeConversation(req.Conversation)
	if err != nil {
		writeError(w, err)
		return
	}

	shortlist, err := rt.ranker.Ask(r.Context(), req.Question, conversation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Shortlist: shortlist, Summary: shortlist.Summary()})
}

func (rt *Router) rebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req struct {
		Async bool `json:"async"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	if req.Async {
		if rt.events == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "async rebuild requires NATS_URL"})
			return
		}
		if err := rt.events.PublishReindexRequested(r.Context(), rt.stagingPath); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "staging_path": rt.stagingPath})
		return
	}

	report, err := rt.indexer.Build(r.Context(), rt.stagingPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) indexStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	info, ok := rt.status.Active()
	resp := map[string]any{"ready": ok}
	if ok {
		resp["index"] = info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) listBuilds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	limit := defaultBuildsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxBuildsLimit {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("limit must be an integer between 1 and %d", maxBuildsLimit),
			})
			return
		}
		limit = n
	}

	builds, err := rt.status.RecentBuilds(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusServiceUnavailable && domain.IsKind(err, domain.ErrTemporary) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
