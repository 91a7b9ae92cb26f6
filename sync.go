package contentsync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/sync/executor"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/sync/planner"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

// Config holds the settings of one sync run.
type Config struct {
	// DryRun plans and logs every operation without performing any.
	DryRun bool

	// ForceFullRehash discards both snapshots before the run, so every
	// source file is hashed and the destination is listed again.
	ForceFullRehash bool
}

// Operation is one planned copy or delete.
type Operation = planner.Operation

// Result describes a finished sync run.
type Result struct {
	// RunID identifies the run in logs.
	RunID string

	// Operations lists the planned copies followed by the planned deletes.
	Operations []Operation

	// Copies is the number of copies issued (or described, in a dry run).
	Copies int

	// Deletes is the number of deletes issued (or described, in a dry run).
	Deletes int

	// Source and Destination are the marked trees the run was planned on.
	Source      *contenttree.Dir
	Destination *contenttree.Dir
}

// Syncer mirrors a source location onto a destination location.
type Syncer struct {
	source           location.Location
	destination      location.Location
	sourceCache      *snapshot.Cache
	destinationCache *snapshot.Cache
	logger           *slog.Logger
	metrics          *metrics.Metrics
	now              func() time.Time

	mu gosync.Mutex
}

// NewSyncer creates a syncer copying from source to destination.
func NewSyncer(source, destination location.Location, opts ...Option) *Syncer {
	s := &Syncer{
		source:      source,
		destination: destination,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one sync. The first failing operation aborts the run and nothing
// already done is rolled back; the destination snapshot is left cleared so
// the next run lists the destination again.
func (s *Syncer) Sync(ctx context.Context, cfg Config) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	result := &Result{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", result.RunID, "dry_run", cfg.DryRun)
	logger.Info("Starting sync", "source", s.source.String(), "destination", s.destination.String())

	err := s.run(ctx, cfg, result, logger)
	elapsed := s.now().Sub(start)
	s.metrics.ObserveSync(elapsed, cfg.DryRun, err)
	if err != nil {
		logger.Error("Sync failed", "error", err, "duration", elapsed)
		return result, err
	}

	logger.Info("Sync finished", "copies", result.Copies, "deletes", result.Deletes, "duration", elapsed)
	return result, nil
}

func (s *Syncer) run(ctx context.Context, cfg Config, result *Result, logger *slog.Logger) error {
	if cfg.ForceFullRehash {
		if err := clearCache(s.sourceCache); err != nil {
			return err
		}
		if err := clearCache(s.destinationCache); err != nil {
			return err
		}
	}

	sc := scanner.New(
		scanner.WithLogger(logger),
		scanner.WithMetrics(s.metrics),
		scanner.WithClock(s.now),
	)
	source, err := sc.Scan(ctx, s.source, s.sourceCache)
	if err != nil {
		return fmt.Errorf("failed to scan source: %w", err)
	}
	destination, err := sc.Scan(ctx, s.destination, s.destinationCache)
	if err != nil {
		return fmt.Errorf("failed to scan destination: %w", err)
	}

	planner.MarkSyncOperations(source, destination)
	result.Source = source
	result.Destination = destination
	result.Operations = planner.Operations(source, destination)
	logTree(ctx, logger, "Marked source tree", source)
	logTree(ctx, logger, "Marked destination tree", destination)
	logger.Info("Planned sync", "operations", len(result.Operations))

	if !cfg.DryRun {
		// The destination is about to diverge from its snapshot.
		if err := clearCache(s.destinationCache); err != nil {
			return err
		}
	}

	exec := executor.New(s.source, s.destination,
		executor.WithDryRun(cfg.DryRun),
		executor.WithLogger(logger),
		executor.WithMetrics(s.metrics),
	)
	result.Copies, err = exec.ExecuteCopies(ctx, source, destination)
	if err != nil {
		return fmt.Errorf("failed to execute copies: %w", err)
	}
	result.Deletes, err = exec.ExecuteDeletes(ctx, destination)
	if err != nil {
		return fmt.Errorf("failed to execute deletes: %w", err)
	}

	if !cfg.DryRun && s.sourceCache != nil && s.destinationCache != nil {
		if err := s.destinationCache.CopyFrom(s.sourceCache); err != nil {
			return fmt.Errorf("failed to update destination snapshot: %w", err)
		}
	}
	return nil
}

// Close closes both locations.
func (s *Syncer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcErr := s.source.Close()
	dstErr := s.destination.Close()
	if srcErr != nil {
		return fmt.Errorf("failed to close source: %w", srcErr)
	}
	if dstErr != nil {
		return fmt.Errorf("failed to close destination: %w", dstErr)
	}
	return nil
}

func clearCache(cache *snapshot.Cache) error {
	if cache == nil {
		return nil
	}
	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", cache.Path(), err)
	}
	return nil
}

func logTree(ctx context.Context, logger *slog.Logger, msg string, tree *contenttree.Dir) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	var buf bytes.Buffer
	if err := tree.Show(&buf); err != nil {
		logger.Warn("Failed to render tree", "error", err)
		return
	}
	logger.Debug(msg, "tree", buf.String())
}
