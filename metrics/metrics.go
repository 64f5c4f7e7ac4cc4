package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets spans fast-failing validation up to well past the
// default 10s polling budget.
var ExecutionBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30}

var (
	// ExecutionsTotal counts finished orchestrations by language and outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_executions_total",
			Help: "Finished code executions",
		},
		[]string{"language", "outcome"},
	)

	// ExecutionDuration records wall time from pod creation to teardown.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_execution_duration_seconds",
			Help:    "Execution duration including teardown",
			Buckets: ExecutionBuckets,
		},
		[]string{"language", "outcome"},
	)

	// PodsActive tracks execution units created and not yet torn down.
	PodsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_pods_active",
			Help: "Execution units currently alive",
		},
	)

	// PollErrorsTotal counts transient status poll failures.
	PollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_poll_errors_total",
			Help: "Failed status polls",
		},
	)

	// LogRetrievalFailuresTotal counts outcomes whose logs could not be read.
	LogRetrievalFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_log_retrieval_failures_total",
			Help: "Failed log retrievals",
		},
	)

	// TeardownFailuresTotal counts delete calls that failed for a reason
	// other than the unit already being gone.
	TeardownFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_teardown_failures_total",
			Help: "Failed execution unit deletions",
		},
	)

	// PodsReapedTotal counts leftover pods removed by the reaper.
	PodsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_pods_reaped_total",
			Help: "Leftover pods deleted by the reaper",
		},
	)

	// HTTPRequestsTotal counts API requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration records API request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		PodsActive,
		PollErrorsTotal,
		LogRetrievalFailuresTotal,
		TeardownFailuresTotal,
		PodsReapedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
