package session

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics are the session client's Prometheus collectors.
type Metrics struct {
	refreshes       *prometheus.CounterVec
	refreshShared   prometheus.Counter
	refreshDuration prometheus.Histogram
	replays         prometheus.Counter
	retryExhausted  prometheus.Counter
	terminations    prometheus.Counter
	upstream        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Refresh calls sent to the backend, by outcome.",
		}, []string{"outcome"}),
		refreshShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "refresh_waiters_total",
			Help:      "Callers that joined a refresh already in flight instead of starting one.",
		}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "replays_total",
			Help:      "Requests replayed after a 401.",
		}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "retry_exhausted_total",
			Help:      "Replayed requests that were rejected with 401 again.",
		}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "session",
			Name:      "terminations_total",
			Help:      "Sessions terminated after a failed refresh.",
		}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Round trips to the REST backend, by method and status code.",
		}, []string{"method", "code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fintrack",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency to the REST backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.refreshes, m.refreshShared, m.refreshDuration, m.replays,
			m.retryExhausted, m.terminations, m.upstream, m.upstreamLatency,
		)
	}
	return m
}

func (m *Metrics) observeUpstream(method string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.upstream.WithLabelValues(method, code).Inc()
	m.upstreamLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
