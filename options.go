package contentsync

import (
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger. Each run logs with an additional run_id
// attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithSourceCache sets the snapshot cache of the source location.
func WithSourceCache(cache *snapshot.Cache) Option {
	return func(s *Syncer) {
		s.sourceCache = cache
	}
}

// WithDestinationCache sets the snapshot cache of the destination location.
func WithDestinationCache(cache *snapshot.Cache) Option {
	return func(s *Syncer) {
		s.destinationCache = cache
	}
}

// WithMetrics records runs, operations and hashing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithClock sets the clock used for snapshot capture times and run
// durations.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}
