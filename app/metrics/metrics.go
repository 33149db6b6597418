// Package metrics provides prometheus instrumentation of the detector and its checks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spamd/spamd/lib/checks"
)

// Metrics collects durations and outcomes of checks and requests. Implements detector.Observer.
// Nil Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Gatherer

	// CheckLatency is a duration of a single check, by check name and kind
	CheckLatency *prometheus.HistogramVec

	// CheckOutcome counts check results, by check name and passed flag
	CheckOutcome *prometheus.CounterVec

	// RequestLatency is a duration of all checks of a request
	RequestLatency prometheus.Histogram

	// Verdicts counts aggregated verdicts, by spam flag
	Verdicts *prometheus.CounterVec

	// UnknownChecks counts requested checks not registered
	UnknownChecks prometheus.Counter
}

// New creates Metrics registered with the registry. Go runtime and process collectors are added as well.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		CheckLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamd_check_duration_seconds",
			Help:    "Duration of a single check by name and kind",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"check", "kind"}),

		CheckOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spamd_check_results_total",
			Help: "Total check results by name and passed flag",
		}, []string{"check", "passed"}),

		RequestLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spamd_request_duration_seconds",
			Help:    "Duration of all checks of a request",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spamd_verdicts_total",
			Help: "Total aggregated verdicts by spam flag",
		}, []string{"spam"}),

		UnknownChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "spamd_unknown_checks_total",
			Help: "Total requested checks not registered",
		}),
	}
}

// CheckDone records a completed check
func (m *Metrics) CheckDone(name string, kind checks.Kind, passed bool, dur time.Duration) {
	if m == nil {
		return
	}
	m.CheckLatency.WithLabelValues(name, kind.String()).Observe(dur.Seconds())
	m.CheckOutcome.WithLabelValues(name, strconv.FormatBool(passed)).Inc()
}

// UnknownCheck records a requested check not registered
func (m *Metrics) UnknownCheck(string) {
	if m != nil {
		m.UnknownChecks.Inc()
	}
}

// RequestDone records a completed request
func (m *Metrics) RequestDone(spam bool, dur time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.Observe(dur.Seconds())
	m.Verdicts.WithLabelValues(strconv.FormatBool(spam)).Inc()
}

// Handler returns http handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
