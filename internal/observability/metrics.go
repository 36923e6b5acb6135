package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	evaluationsTotal      *prometheus.CounterVec
	judgeRequestsTotal    *prometheus.CounterVec
	evaluationPollRetries prometheus.Counter
	jobRequeuesTotal      prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the HTTP layer and
// the evaluation pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "code_evaluations_total",
			Help: "Total number of code challenge evaluation runs by outcome.",
		}, []string{"outcome"})

		judgeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_requests_total",
			Help: "Total number of judge API calls by operation and result.",
		}, []string{"operation", "result"})

		evaluationPollRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_poll_retries_total",
			Help: "Total number of poll iterations that left tokens outstanding.",
		})

		jobRequeuesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_job_requeues_total",
			Help: "Total number of scheduler-level requeues of evaluation jobs.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			evaluationsTotal,
			judgeRequestsTotal,
			evaluationPollRetries,
			jobRequeuesTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Evaluations exposes the per-outcome evaluation run counter.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// JudgeRequests exposes the judge API call counter.
func JudgeRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return judgeRequestsTotal
}

// PollRetries exposes the poll retry counter.
func PollRetries() prometheus.Counter {
	RegisterMetrics()
	return evaluationPollRetries
}

// JobRequeues exposes the job requeue counter.
func JobRequeues() prometheus.Counter {
	RegisterMetrics()
	return jobRequeuesTotal
}
