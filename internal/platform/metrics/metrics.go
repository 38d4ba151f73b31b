// Package metrics は入退場判定と一括退場のメトリクスを Prometheus 形式で公開します。
package metrics

import (
	"net/http"
	"time"

	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "siteaccess"

// Collectors は admission.Observer と access.SweepObserver を満たします。
type Collectors struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	denials   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	swept     prometheus.Counter
	sweeps    prometheus.Counter
}

// New は専用レジストリにコレクターを登録して返します。
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Recorded decision attempts by requested type and outcome.",
		}, []string{"type", "outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_denials_total",
			Help:      "Entry refusals by reason.",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding and recording a scan.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"type"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_close_exits_total",
			Help:      "Compensating exits appended by the stale entry sweep.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_close_runs_total",
			Help:      "Completed stale entry sweeps.",
		}),
	}

	c.registry.MustRegister(
		c.decisions,
		c.denials,
		c.latency,
		c.swept,
		c.sweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveDecision は判定 1 件の結果を記録します。
func (c *Collectors) ObserveDecision(typ ledger.Type, outcome admission.Outcome, reason admission.Reason, elapsed time.Duration) {
	c.decisions.WithLabelValues(string(typ), string(outcome)).Inc()
	if outcome == admission.OutcomeDenied {
		c.denials.WithLabelValues(string(reason)).Inc()
	}
	c.latency.WithLabelValues(string(typ)).Observe(elapsed.Seconds())
}

// ObserveBulkClose は一括退場で追記した件数を記録します。
func (c *Collectors) ObserveBulkClose(count int) {
	c.sweeps.Inc()
	c.swept.Add(float64(count))
}

// Registry は登録先のレジストリを返します。
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler は /metrics 用の HTTP ハンドラーを返します。
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
