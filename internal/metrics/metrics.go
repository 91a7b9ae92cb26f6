// Package metrics provides Prometheus metrics for sync runs. Metrics live in
// their own registry so that a one-shot CLI run can export them to a
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind label values.
const (
	KindFile = "file"
	KindDir  = "dir"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	copiesTotal       *prometheus.CounterVec
	deletesTotal      *prometheus.CounterVec
	filesHashedTotal  prometheus.Counter
	hashCacheHits     prometheus.Counter
	syncDuration      *prometheus.HistogramVec
	lastSuccessfulRun prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		copiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentsync_copies_total",
				Help: "Total number of copy operations issued",
			},
			[]string{"kind"},
		),

		deletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentsync_deletes_total",
				Help: "Total number of delete operations issued",
			},
			[]string{"kind"},
		),

		filesHashedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contentsync_files_hashed_total",
				Help: "Total number of files whose content was hashed",
			},
		),

		hashCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contentsync_hash_cache_hits_total",
				Help: "Total number of file hashes reused from a snapshot",
			},
		),

		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contentsync_sync_duration_seconds",
				Help:    "Duration of sync runs",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0},
			},
			[]string{"dry_run", "status"},
		),

		lastSuccessfulRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contentsync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful sync run",
			},
		),
	}

	m.registry.MustRegister(
		m.copiesTotal,
		m.deletesTotal,
		m.filesHashedTotal,
		m.hashCacheHits,
		m.syncDuration,
		m.lastSuccessfulRun,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func kind(recursive bool) string {
	if recursive {
		return KindDir
	}
	return KindFile
}

// ObserveCopy records one copy operation.
func (m *Metrics) ObserveCopy(recursive bool) {
	if m == nil {
		return
	}
	m.copiesTotal.WithLabelValues(kind(recursive)).Inc()
}

// ObserveDelete records one delete operation.
func (m *Metrics) ObserveDelete(recursive bool) {
	if m == nil {
		return
	}
	m.deletesTotal.WithLabelValues(kind(recursive)).Inc()
}

// FileHashed records one file hashed from its content.
func (m *Metrics) FileHashed() {
	if m == nil {
		return
	}
	m.filesHashedTotal.Inc()
}

// HashCacheHit records one hash reused from a snapshot.
func (m *Metrics) HashCacheHit() {
	if m == nil {
		return
	}
	m.hashCacheHits.Inc()
}

// ObserveSync records the duration and outcome of a run.
func (m *Metrics) ObserveSync(duration time.Duration, dryRun bool, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.syncDuration.WithLabelValues(strconv.FormatBool(dryRun), status).Observe(duration.Seconds())
	if err == nil && !dryRun {
		m.lastSuccessfulRun.SetToCurrentTime()
	}
}

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
