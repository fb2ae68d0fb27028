package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the rightsize
// service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics.
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	RecommendationsTotal *prometheus.CounterVec

	// Pricing provider metrics.
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	QuotesParsedTotal    prometheus.Counter

	// Evaluation metrics.
	EvaluationsTotal *prometheus.CounterVec
	EvaluationScore  *prometheus.HistogramVec

	// Rate limiting and auth metrics.
	RateLimitRejectionsTotal *prometheus.CounterVec
	AuthFailuresTotal        *prometheus.CounterVec
	AuthSuccessesTotal       *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rightsize_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_runs_total",
			Help: "Total number of pipeline runs by terminal state.",
		}, []string{"state"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rightsize_run_duration_seconds",
			Help:    "Pipeline run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		RecommendationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_recommendations_total",
			Help: "Total number of per-VM recommendations by outcome.",
		}, []string{"outcome"}),

		ProviderCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_provider_calls_total",
			Help: "Total number of pricing provider calls.",
		}, []string{"tool", "outcome"}),

		ProviderCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rightsize_provider_call_duration_seconds",
			Help:    "Pricing provider call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),

		QuotesParsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rightsize_quotes_parsed_total",
			Help: "Total number of price quotes parsed from provider text.",
		}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_evaluations_total",
			Help: "Total number of metric evaluations by pass/fail.",
		}, []string{"metric", "passed"}),

		EvaluationScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rightsize_evaluation_score",
			Help:    "Distribution of evaluation scores per metric.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"metric"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsize_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rightsize_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RunsTotal,
		m.RunDuration,
		m.RecommendationsTotal,
		m.ProviderCallsTotal,
		m.ProviderCallDuration,
		m.QuotesParsedTotal,
		m.EvaluationsTotal,
		m.EvaluationScore,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncHTTPRequest increments the HTTP request counter.
func (m *Metrics) IncHTTPRequest(method, pathPattern string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
}

// ObserveHTTPDuration records an HTTP request duration.
func (m *Metrics) ObserveHTTPDuration(method, pathPattern string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncRun increments the run counter for the given terminal state.
func (m *Metrics) IncRun(state string) {
	m.RunsTotal.WithLabelValues(state).Inc()
}

// ObserveRunDuration records a pipeline run duration.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.RunDuration.Observe(seconds)
}

// AddRecommendations records the per-VM outcomes of a finished run.
func (m *Metrics) AddRecommendations(viable, null int) {
	m.RecommendationsTotal.WithLabelValues("viable").Add(float64(viable))
	m.RecommendationsTotal.WithLabelValues("null").Add(float64(null))
}

// IncProviderCall increments the provider call counter.
func (m *Metrics) IncProviderCall(tool, outcome string) {
	m.ProviderCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveProviderDuration records a provider call duration.
func (m *Metrics) ObserveProviderDuration(tool string, seconds float64) {
	m.ProviderCallDuration.WithLabelValues(tool).Observe(seconds)
}

// AddQuotesParsed adds to the parsed-quote counter.
func (m *Metrics) AddQuotesParsed(n int) {
	m.QuotesParsedTotal.Add(float64(n))
}

// ObserveEvaluation records one metric evaluation outcome.
func (m *Metrics) ObserveEvaluation(metric string, score float64, passed bool) {
	m.EvaluationsTotal.WithLabelValues(metric, strconv.FormatBool(passed)).Inc()
	m.EvaluationScore.WithLabelValues(metric).Observe(score)
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// IncAuthFailure increments the auth failure counter.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}
