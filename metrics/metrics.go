// Package metrics exposes pipeline run outcomes as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerone/warehouse/ledger"
)

const metricPrefix = "ledgerone_"

var (
	registerOnce sync.Once
	global       *Observer
)

// Observer implements ledger.RunObserver.
type Observer struct {
	runs          *prometheus.CounterVec
	runLatency    *prometheus.HistogramVec
	violations    *prometheus.CounterVec
	rejected      prometheus.Counter
	publishedRows *prometheus.GaugeVec
	lastPublished prometheus.Gauge
}

var _ ledger.RunObserver = (*Observer)(nil)

// Default returns the observer registered on the default Prometheus
// registry. It registers on first use.
func Default() *Observer {
	registerOnce.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New creates an observer and registers its collectors on reg.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_runs_total",
				Help: "Total pipeline runs by status",
			},
			[]string{"status"},
		),
		runLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "integrity_violations_total",
				Help: "Integrity violations by check and severity",
			},
			[]string{"check", "severity"},
		),
		rejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_rejected_total",
				Help: "Events excluded from the ledger by schema checks",
			},
		),
		publishedRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "published_rows",
				Help: "Row count of each published table",
			},
			[]string{"table"},
		),
		lastPublished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_publication_timestamp_seconds",
				Help: "Unix time of the last successful publication",
			},
		),
	}
	reg.MustRegister(o.runs, o.runLatency, o.violations, o.rejected, o.publishedRows, o.lastPublished)
	return o
}

// ObserveRun records one run. Row gauges only move on publication.
func (o *Observer) ObserveRun(run ledger.RunRecord, report *ledger.Report, duration time.Duration) {
	if o == nil {
		return
	}
	status := string(run.Status)
	o.runs.WithLabelValues(status).Inc()
	o.runLatency.WithLabelValues(status).Observe(duration.Seconds())
	o.rejected.Add(float64(run.Rejected))

	if report != nil {
		for _, v := range report.Violations {
			o.violations.WithLabelValues(v.Check, string(v.Severity)).Inc()
		}
	}

	if run.Status == ledger.RunPublished {
		for table, n := range run.RowCounts {
			o.publishedRows.WithLabelValues(table).Set(float64(n))
		}
		o.lastPublished.Set(float64(run.FinishedAt.Unix()))
	}
}
