// Package metrics exposes prometheus instrumentation for a batchfeed run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batchfeed"

// Recorder holds the collectors for one run. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	BatchesTotal    prometheus.Counter
	RecordsTotal    prometheus.Counter
	BytesTotal      prometheus.Counter
	CollisionsTotal prometheus.Counter
	BatchSize       prometheus.Histogram
	TickSeconds     prometheus.Histogram
	LastBatchID     prometheus.Gauge
}

// NewRecorder registers the run collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_emitted_total",
			Help:      "Artifacts published to the output directory",
		}),
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Records written across all artifacts",
		}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_total",
			Help:      "Bytes written across all artifacts",
		}),
		CollisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_collisions_total",
			Help:      "Emits refused because the artifact name was already taken",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Records per emitted batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		TickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent logging, sampling and emitting one tick, excluding the wait",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LastBatchID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_id",
			Help:      "Id of the most recently published batch",
		}),
	}
	reg.MustRegister(r.BatchesTotal, r.RecordsTotal, r.BytesTotal, r.CollisionsTotal,
		r.BatchSize, r.TickSeconds, r.LastBatchID)
	return r
}

// ObserveEmit records a published artifact.
func (r *Recorder) ObserveEmit(batchID int64, records int, bytes int64, tick time.Duration) {
	if r == nil {
		return
	}
	r.BatchesTotal.Inc()
	r.RecordsTotal.Add(float64(records))
	r.BytesTotal.Add(float64(bytes))
	r.BatchSize.Observe(float64(records))
	r.TickSeconds.Observe(tick.Seconds())
	r.LastBatchID.Set(float64(batchID))
}

// ObserveCollision records an emit refused by an existing artifact.
func (r *Recorder) ObserveCollision() {
	if r == nil {
		return
	}
	r.CollisionsTotal.Inc()
}

// Handler serves the run's collectors in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry backing this recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
