// Package metrics exposes sync engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records job and record outcomes on its own registry.
type Collector struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kinsync",
				Subsystem: "jobs",
				Name:      "finished_total",
				Help:      "Sync jobs finished, by provider and final status.",
			},
			[]string{"provider", "status"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kinsync",
				Subsystem: "records",
				Name:      "processed_total",
				Help:      "Records processed by sync runs, by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kinsync",
				Subsystem: "jobs",
				Name:      "run_duration_seconds",
				Help:      "Duration of sync runs.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
			},
			[]string{"provider"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kinsync",
				Subsystem: "jobs",
				Name:      "in_flight",
				Help:      "Sync runs currently executing.",
			},
		),
	}
	c.registry.MustRegister(c.jobs, c.records, c.runDuration, c.inFlight)
	return c
}

// RunStarted marks a run in flight and returns the func that records its
// end.
func (c *Collector) RunStarted(provider models.Provider) func(status models.JobStatus, stats models.SyncStats) {
	start := time.Now()
	c.inFlight.Inc()
	return func(status models.JobStatus, stats models.SyncStats) {
		c.inFlight.Dec()
		p := string(provider)
		c.runDuration.WithLabelValues(p).Observe(time.Since(start).Seconds())
		c.jobs.WithLabelValues(p, string(status)).Inc()
		c.records.WithLabelValues(p, string(models.OutcomeCreated)).Add(float64(stats.Created))
		c.records.WithLabelValues(p, string(models.OutcomeMerged)).Add(float64(stats.Merged))
		c.records.WithLabelValues(p, string(models.OutcomeSkipped)).Add(float64(stats.Skipped))
		c.records.WithLabelValues(p, "exported").Add(float64(stats.Exported))
		c.records.WithLabelValues(p, "failed").Add(float64(stats.Failed))
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
