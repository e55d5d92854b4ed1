package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the collectors updated during a run.
type Metrics struct {
	FilesTotal         *prometheus.CounterVec
	StatementsTotal    *prometheus.CounterVec
	LineagesTotal      *prometheus.CounterVec
	LLMRequestsTotal   prometheus.Counter
	LLMErrorsTotal     prometheus.Counter
	LLMTokensTotal     *prometheus.CounterVec
	LLMRequestDuration prometheus.Histogram
	PersistErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests and metric-less runs use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqllineage_files_total",
			Help: "Files processed, by outcome.",
		}, []string{"status"}),
		StatementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqllineage_statements_total",
			Help: "Statements segmented, by whether they need lineage analysis.",
		}, []string{"needs_lineage"}),
		LineagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqllineage_lineages_total",
			Help: "Classifier candidates, by validation outcome.",
		}, []string{"outcome"}),
		LLMRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqllineage_llm_requests_total",
			Help: "Classifier requests sent.",
		}),
		LLMErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqllineage_llm_errors_total",
			Help: "Classifier requests that failed after retries.",
		}),
		LLMTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqllineage_llm_tokens_total",
			Help: "Tokens reported by the classifier.",
		}, []string{"direction"}),
		LLMRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqllineage_llm_request_duration_seconds",
			Help:    "Classifier request latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		PersistErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqllineage_persist_errors_total",
			Help: "Failed writes, by sink.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FilesTotal,
			m.StatementsTotal,
			m.LineagesTotal,
			m.LLMRequestsTotal,
			m.LLMErrorsTotal,
			m.LLMTokensTotal,
			m.LLMRequestDuration,
			m.PersistErrorsTotal,
		)
	}
	return m
}

// RecordLLMRequest records one classifier call.
func (m *Metrics) RecordLLMRequest(duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.LLMTokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordValidation records how many candidates were accepted and rejected.
func (m *Metrics) RecordValidation(accepted, rejected int) {
	if m == nil {
		return
	}
	m.LineagesTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.LineagesTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordStatement counts a segmented statement.
func (m *Metrics) RecordStatement(needsLineage bool) {
	if m == nil {
		return
	}
	label := "false"
	if needsLineage {
		label = "true"
	}
	m.StatementsTotal.WithLabelValues(label).Inc()
}

// RecordFile counts a processed file by status.
func (m *Metrics) RecordFile(status string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(status).Inc()
}

// RecordPersistError counts a failed write to sink.
func (m *Metrics) RecordPersistError(sink string) {
	if m == nil {
		return
	}
	m.PersistErrorsTotal.WithLabelValues(sink).Inc()
}

// MetricsServer exposes /metrics over HTTP.
type MetricsServer struct {
	server *http.Server
	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewMetricsServer serves the metrics gathered by g on addr.
func NewMetricsServer(addr string, g prometheus.Gatherer, logger zerolog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		mux:    mux,
		logger: logger,
	}
}

// Handle serves h next to /metrics. Call before Start.
func (s *MetricsServer) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start listens in the background until Shutdown.
func (s *MetricsServer) Start() {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

// Shutdown stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
