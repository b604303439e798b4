// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tinouy/kegtracker-backend/internal/domain"
)

const namespace = "kegtracker"

type Metrics struct {
	Registry *prometheus.Registry

	// RED metrics
	reqs *prometheus.CounterVec
	durs *prometheus.HistogramVec

	transitions *prometheus.CounterVec
	logins      *prometheus.CounterVec
}

// New registers the process, Go runtime and KegTracker collectors on a fresh
// registry.
func New() *Metrics {
	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests by route and method",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keg",
		Name:      "state_transitions_total",
		Help:      "Number of committed keg state changes",
	}, []string{"from", "to"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Number of login attempts by outcome",
	}, []string{"outcome"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		reqs, durs, transitions, logins,
	)

	return &Metrics{
		Registry:    reg,
		reqs:        reqs,
		durs:        durs,
		transitions: transitions,
		logins:      logins,
	}
}

// ObserveRequest records one served request. route is the matched route
// pattern, never the raw path.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.reqs.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durs.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) KegTransition(from, to domain.KegState) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) LoginAttempt(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.logins.WithLabelValues(outcome).Inc()
}
