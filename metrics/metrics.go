// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "insurecalc"

// Recorder groups the collectors for one registry.
type Recorder struct {
	registry     *prometheus.Registry
	calculations *prometheus.CounterVec
	generation   *prometheus.HistogramVec
	sandbox      *prometheus.CounterVec
	historySize  prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculations by type and outcome code.",
		}, []string{"type", "outcome"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_seconds",
			Help:      "Latency of Gemini generateContent requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"outcome"}),
		sandbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_executions_total",
			Help:      "Generated code executions by outcome.",
		}, []string{"outcome"}),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Entries currently kept in the calculation history.",
		}),
	}
	reg.MustRegister(
		r.calculations,
		r.generation,
		r.sandbox,
		r.historySize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCalculation counts a finished calculation. outcome is "ok" or an
// error code.
func (r *Recorder) ObserveCalculation(calcType, outcome string) {
	if r == nil {
		return
	}
	r.calculations.WithLabelValues(calcType, outcome).Inc()
}

func (r *Recorder) ObserveGeneration(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.generation.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *Recorder) ObserveSandbox(outcome string) {
	if r == nil {
		return
	}
	r.sandbox.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SetHistorySize(n int) {
	if r == nil {
		return
	}
	r.historySize.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
