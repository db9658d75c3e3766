package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics implements ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	asksTotal      *prometheus.CounterVec
	askDuration    *prometheus.HistogramVec
	askCandidates  *prometheus.HistogramVec
	judgmentsTotal *prometheus.CounterVec
	buildsTotal    *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	indexDocuments prometheus.Gauge
	indexChunks    prometheus.Gauge
}

func NewPipelineMetrics(registry *prometheus.Registry, service string) *PipelineMetrics {
	asksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shortlist",
			Name:      "asks_total",
			Help:      "Total shortlist queries by status.",
		},
		[]string{"service", "status"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shortlist",
			Name:      "ask_duration_seconds",
			Help:      "Shortlist query duration including every judge call.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"service", "status"},
	)
	askCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shortlist",
			Name:      "candidates",
			Help:      "Distinct CVs judged per successful query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	judgmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "judgments_total",
			Help:      "Relevance judgments by outcome.",
		},
		[]string{"service", "outcome"},
	)
	buildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Index builds by status.",
		},
		[]string{"service", "status"},
	)
	buildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Index build duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	indexDocuments := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "documents",
			Help:        "Documents in the last successfully built index.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	indexChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "chunks",
			Help:        "Chunks in the last successfully built index.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		asksTotal,
		askDuration,
		askCandidates,
		judgmentsTotal,
		buildsTotal,
		buildDuration,
		indexDocuments,
		indexChunks,
	)

	return &PipelineMetrics{
		service:        service,
		asksTotal:      asksTotal,
		askDuration:    askDuration,
		askCandidates:  askCandidates,
		judgmentsTotal: judgmentsTotal,
		buildsTotal:    buildsTotal,
		buildDuration:  buildDuration,
		indexDocuments: indexDocuments,
		indexChunks:    indexChunks,
	}
}

func (m *PipelineMetrics) ObserveAsk(status string, candidates int, durationSeconds float64) {
	if status == "" {
		status = "unknown"
	}
	m.asksTotal.WithLabelValues(m.service, status).Inc()
	m.askDuration.WithLabelValues(m.service, status).Observe(durationSeconds)
	if status == "success" {
		m.askCandidates.WithLabelValues(m.service).Observe(float64(candidates))
	}
}

func (m *PipelineMetrics) ObserveJudgment(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.judgmentsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveBuild(status string, documents, chunks int, durationSeconds float64) {
	if status == "" {
		status = "unknown"
	}
	m.buildsTotal.WithLabelValues(m.service, status).Inc()
	m.buildDuration.WithLabelValues(m.service, status).Observe(durationSeconds)
	if status == "success" {
		m.indexDocuments.Set(float64(documents))
		m.indexChunks.Set(float64(chunks))
	}
}

// BreakerStateSource is satisfied by resilience.Executor.
type BreakerStateSource interface {
	BreakerStates() map[string]string
}

var breakerStates = []string{"closed", "half-open", "open"}

type breakerCollector struct {
	service string
	source  BreakerStateSource
	desc    *prometheus.Desc
}

// RegisterBreakerStates exports one gauge per breaker and state, set to 1 for the current state.
func RegisterBreakerStates(registry *prometheus.Registry, service string, source BreakerStateSource) {
	registry.MustRegister(&breakerCollector{
		service: service,
		source:  source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "resilience", "breaker_state"),
			"Circuit breaker state per outbound operation.",
			[]string{"service", "operation", "state"},
			nil,
		),
	})
}

func (c *breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for operation, current := range c.source.BreakerStates() {
		for _, state := range breakerStates {
			value := 0.0
			if state == current {
				value = 1
			}
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, value, c.service, operation, state)
		}
	}
}
