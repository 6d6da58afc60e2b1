package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "avatargate"

	statusLabel = "status"
	codeLabel   = "code"
	methodLabel = "method"
)

/**
* Metrics definition
**/
var jobsSubmittedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "number of video jobs accepted for processing",
	},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "number of video jobs that reached a terminal state",
	},
	[]string{statusLabel},
)

var jobsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "number of submitted jobs not yet in a terminal state",
	},
)

var synthesisDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_duration_seconds",
		Help:      "wall time of external synthesis process runs",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	},
)

var httpRequestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "number of HTTP requests partitioned by status code and method",
	},
	[]string{codeLabel, methodLabel},
)

func IncreaseJobsSubmitted() {
	jobsSubmittedMetric.Inc()
	jobsInFlightMetric.Inc()
}

func IncreaseJobsFinished(status string) {
	jobsFinishedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
	jobsInFlightMetric.Dec()
}

func ObserveSynthesisDuration(d time.Duration) {
	synthesisDurationMetric.Observe(d.Seconds())
}

func IncreaseHTTPRequests(code int, method string) {
	httpRequestsMetric.With(prometheus.Labels{
		codeLabel:   strconv.Itoa(code),
		methodLabel: methodValue(method),
	}).Inc()
}

// methodValue keeps the method label bounded; the client chooses the method.
func methodValue(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions:
		return method
	default:
		return "other"
	}
}


// JobsFinished returns the counter for one terminal status; used by tests.
func JobsFinished(status string) prometheus.Counter {
	return jobsFinishedMetric.With(prometheus.Labels{statusLabel: status})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(jobsInFlightMetric)
	prometheus.MustRegister(synthesisDurationMetric)
	prometheus.MustRegister(httpRequestsMetric)
}
