// Package scanner builds the content tree of a location.
//
// Locations that can list files with modification times (location.FileLister)
// are scanned file by file, reusing the hash recorded in the location's
// snapshot for every file not modified since that snapshot was captured.
// Other locations are listed remotely in two round trips, or, when their
// snapshot exists, not contacted at all: the snapshot is trusted to describe
// the location as the last sync left it.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

// Scanner builds content trees.
type Scanner struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithMetrics records hashing and cache reuse.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithClock sets the clock used for capture times.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// New creates a scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan builds the sorted content tree of loc. cache may be nil; when set, a
// freshly built tree is stored in it.
func (s *Scanner) Scan(ctx context.Context, loc location.Location, cache *snapshot.Cache) (*contenttree.Dir, error) {
	logger := s.logger.With("location", loc.String())

	var (
		tree *contenttree.Dir
		err  error
	)
	if lister, ok := loc.(location.FileLister); ok {
		tree, err = s.scanFiles(ctx, loc, lister, cache, logger)
	} else {
		if cache != nil {
			cached, err := cache.LoadTree()
			if err != nil {
				return nil, fmt.Errorf("failed to load snapshot of %s: %w", loc, err)
			}
			if cached != nil {
				cached.Sort()
				logger.Info("Using cached snapshot", "snapshot", cache.Path())
				return cached, nil
			}
		}
		tree, err = s.scanHashes(ctx, loc, logger)
	}
	if err != nil {
		return nil, err
	}

	tree.Sort()
	if cache != nil {
		if err := cache.Store(tree); err != nil {
			return nil, fmt.Errorf("failed to store snapshot of %s: %w", loc, err)
		}
	}
	return tree, nil
}

func (s *Scanner) scanFiles(
	ctx context.Context,
	loc location.Location,
	lister location.FileLister,
	cache *snapshot.Cache,
	logger *slog.Logger,
) (*contenttree.Dir, error) {
	var cached *snapshot.Hashes
	if cache != nil {
		hashes, err := cache.LoadHashes()
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot of %s: %w", loc, err)
		}
		cached = hashes
	}

	tree := contenttree.New()
	tree.SetCapturedAt(s.captureTime())

	if err := s.addDirs(ctx, loc, tree); err != nil {
		return nil, err
	}

	files, err := lister.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", loc, err)
	}

	reused := 0
	for _, f := range files {
		hash, ok := cached.Lookup(f.Path, f.ModTime)
		if ok {
			reused++
			s.metrics.HashCacheHit()
		} else {
			hash, err = lister.HashFile(ctx, f.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to hash %s: %w", f.Path, err)
			}
			s.metrics.FileHashed()
		}
		if err := tree.AddFile(f.Path, hash); err != nil {
			return nil, err
		}
	}
	logger.Info("Scanned location", "files", len(files), "hashed", len(files)-reused, "reused", reused)
	return tree, nil
}

func (s *Scanner) scanHashes(ctx context.Context, loc location.Location, logger *slog.Logger) (*contenttree.Dir, error) {
	tree := contenttree.New()
	tree.SetCapturedAt(s.captureTime())

	if err := s.addDirs(ctx, loc, tree); err != nil {
		return nil, err
	}

	hashes, err := loc.ListFileHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list file hashes of %s: %w", loc, err)
	}
	for _, fh := range hashes {
		if err := tree.AddFile(fh.Path, fh.Hash); err != nil {
			return nil, err
		}
	}
	logger.Info("Scanned location", "files", len(hashes))
	return tree, nil
}

// captureTime is truncated to the precision the snapshot codec keeps, so a
// stored tree decodes to the same capture time.
func (s *Scanner) captureTime() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Scanner) addDirs(ctx context.Context, loc location.Location, tree *contenttree.Dir) error {
	dirs, err := loc.ListDirectories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list directories of %s: %w", loc, err)
	}
	for _, dir := range dirs {
		if err := tree.AddDir(dir); err != nil {
			return err
		}
	}
	return nil
}
