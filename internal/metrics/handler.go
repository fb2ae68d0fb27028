package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics endpoint.
type Summary struct {
	HTTP       httpSummary       `json:"http"`
	Pipeline   pipelineSummary   `json:"pipeline"`
	Provider   providerSummary   `json:"provider"`
	Evaluation evaluationSummary `json:"evaluation"`
	RateLimit  rateLimitInfo     `json:"rateLimit"`
	Auth       authInfo          `json:"auth"`
	DB         dbInfo            `json:"db"`
	Server     serverInfo        `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type pipelineSummary struct {
	TotalRuns             float64 `json:"totalRuns"`
	FailedRuns            float64 `json:"failedRuns"`
	P50RunDuration        float64 `json:"p50RunDuration"`
	P95RunDuration        float64 `json:"p95RunDuration"`
	ViableRecommendations float64 `json:"viableRecommendations"`
	NullRecommendations   float64 `json:"nullRecommendations"`
}

type providerSummary struct {
	TotalCalls   float64 `json:"totalCalls"`
	ErrorCalls   float64 `json:"errorCalls"`
	P50Duration  float64 `json:"p50Duration"`
	P95Duration  float64 `json:"p95Duration"`
	QuotesParsed float64 `json:"quotesParsed"`
}

type evaluationSummary struct {
	TotalEvaluations float64 `json:"totalEvaluations"`
	PassRate         float64 `json:"passRate"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves live metrics in
// JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

// PrometheusHandler serves the registry in the standard exposition
// format for scrapers.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	summary := Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["rightsize_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["rightsize_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["rightsize_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["rightsize_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["rightsize_http_request_duration_seconds"], 0.99),
		},
		Pipeline: pipelineSummary{
			TotalRuns:             sumCounter(fam["rightsize_runs_total"]),
			FailedRuns:            counterWithLabel(fam["rightsize_runs_total"], "state", "failed"),
			P50RunDuration:        histogramPercentile(fam["rightsize_run_duration_seconds"], 0.50),
			P95RunDuration:        histogramPercentile(fam["rightsize_run_duration_seconds"], 0.95),
			ViableRecommendations: counterWithLabel(fam["rightsize_recommendations_total"], "outcome", "viable"),
			NullRecommendations:   counterWithLabel(fam["rightsize_recommendations_total"], "outcome", "null"),
		},
		Provider: providerSummary{
			TotalCalls:   sumCounter(fam["rightsize_provider_calls_total"]),
			ErrorCalls:   counterWithLabel(fam["rightsize_provider_calls_total"], "outcome", "error"),
			P50Duration:  histogramPercentile(fam["rightsize_provider_call_duration_seconds"], 0.50),
			P95Duration:  histogramPercentile(fam["rightsize_provider_call_duration_seconds"], 0.95),
			QuotesParsed: counterValue(fam["rightsize_quotes_parsed_total"]),
		},
		Evaluation: evaluationSummary{
			TotalEvaluations: sumCounter(fam["rightsize_evaluations_total"]),
			PassRate:         computePassRate(fam["rightsize_evaluations_total"]),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["rightsize_ratelimit_rejections_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["rightsize_auth_failures_total"]),
			Successes: sumCounter(fam["rightsize_auth_successes_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["rightsize_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["rightsize_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["rightsize_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["rightsize_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["rightsize_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

func computePassRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	total := sumCounter(f)
	if total == 0 {
		return 0
	}
	return counterWithLabel(f, "passed", "true") / total
}

// histogramPercentile computes a percentile from aggregated histogram
// buckets using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	if len(buckets) > 0 {
		for i := len(buckets) - 1; i >= 0; i-- {
			if !math.IsInf(buckets[i].upperBound, 1) {
				return buckets[i].upperBound
			}
		}
	}
	return 0
}
