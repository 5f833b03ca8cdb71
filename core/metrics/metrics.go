// Package metrics records deck composition counters and exports them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheDisabled = "disabled"
)

// Recorder collects metrics for one process. A nil *Recorder records
// nothing, so callers never need to check.
type Recorder struct {
	registry        *prometheus.Registry
	composeDuration *prometheus.HistogramVec
	filesWritten    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	solverRuns      *prometheus.CounterVec
	solverDuration  prometheus.Histogram
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		composeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwdeck_compose_duration_seconds",
			Help:    "Duration of run file composition by flavor",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"flavor"}),
		filesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwdeck_files_written_total",
			Help: "Deck files written by extension",
		}, []string{"extension"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwdeck_cache_lookups_total",
			Help: "Composition cache lookups by outcome",
		}, []string{"outcome"}),
		solverRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwdeck_solver_runs_total",
			Help: "Solver invocations by outcome",
		}, []string{"outcome"}),
		solverDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gwdeck_solver_duration_seconds",
			Help:    "Wall time of solver invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

func (r *Recorder) ObserveCompose(flavor string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.composeDuration.WithLabelValues(flavor).Observe(elapsed.Seconds())
}

func (r *Recorder) FileWritten(extension string) {
	if r == nil {
		return
	}
	r.filesWritten.WithLabelValues(extension).Inc()
}

func (r *Recorder) CacheLookup(outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SolverRun(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.solverRuns.WithLabelValues(outcome).Inc()
	r.solverDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
