package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics
	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_scheduler_queue_length",
			Help: "Number of executions waiting in the scheduler queue",
		},
	)

	TerminationWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_scheduler_termination_workers",
			Help: "Number of live asynchronous termination workers",
		},
	)

	ExecutionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_executions_started_total",
			Help: "Total number of executions that reached the running state",
		},
	)

	ExecutionsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_executions_retried_total",
			Help: "Total number of transient start failures that were requeued",
		},
	)

	ExecutionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_executions_failed_total",
			Help: "Total number of executions that ended in the error state",
		},
	)

	ExecutionsTerminated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_executions_terminated_total",
			Help: "Total number of executions terminated on user or monitor request",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoe_api_requests_total",
			Help: "API requests served, by method and response status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zoe_api_request_duration_seconds",
			Help:    "Time spent serving API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(QueueLength)
	prometheus.MustRegister(TerminationWorkers)
	prometheus.MustRegister(ExecutionsStarted)
	prometheus.MustRegister(ExecutionsRetried)
	prometheus.MustRegister(ExecutionsFailed)
	prometheus.MustRegister(ExecutionsTerminated)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler exposes the registered collectors over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
