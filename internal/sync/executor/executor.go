package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
)

// Executor issues copies and deletes between two locations.
type Executor struct {
	source      location.Location
	destination location.Location
	dryRun      bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithDryRun makes the executor describe operations without performing them.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics records performed operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an executor copying from source to destination.
func New(source, destination location.Location, opts ...Option) *Executor {
	e := &Executor{
		source:      source,
		destination: destination,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteCopies walks the source tree alongside the destination tree and
// performs every marked copy. It returns the number of copies issued.
//
// A marked directory is copied with a single recursive copy, unless the
// source is location.Filtered: the directory is then recreated at the
// destination and its listed files are copied one by one.
func (e *Executor) ExecuteCopies(ctx context.Context, source, destination *contenttree.Dir) (int, error) {
	count := 0
	if err := e.copies(ctx, source, destination, &count); err != nil {
		return count, err
	}
	return count, nil
}

func (e *Executor) copies(ctx context.Context, source, destination *contenttree.Dir, count *int) error {
	for _, dir := range source.Dirs {
		if dir.CopyDestination != nil {
			if err := e.copyDir(ctx, dir); err != nil {
				return err
			}
			*count++
			continue
		}
		destDir := destination.Dir(dir.Name)
		if destDir == nil {
			return errors.NewPathError(errors.CodeInternal, "execute copies", dir.RelativePath(),
				fmt.Errorf("unmarked directory has no destination counterpart"))
		}
		if err := e.copies(ctx, dir, destDir, count); err != nil {
			return err
		}
	}
	for _, file := range source.Files {
		if file.CopyDestination == nil {
			continue
		}
		if err := e.copy(ctx, file.RelativePath(), file.CopyDestination.RelativePath(), false); err != nil {
			return err
		}
		*count++
	}
	return nil
}

func (e *Executor) filtered() bool {
	f, ok := e.source.(location.Filtered)
	return ok && f.Filtered()
}

func (e *Executor) copyDir(ctx context.Context, dir *contenttree.Dir) error {
	if e.dryRun || !e.filtered() {
		return e.copy(ctx, dir.RelativePath(), dir.CopyDestination.RelativePath(), true)
	}
	e.logger.Debug("Copying filtered directory entry by entry", "path", dir.RelativePath())
	return e.expand(ctx, dir)
}

// expand recreates dir at the destination from its listed content.
func (e *Executor) expand(ctx context.Context, dir *contenttree.Dir) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	relPath := dir.RelativePath()
	target := e.destination.FullPath(relPath)
	e.logger.Info("Creating directory", "path", relPath, "target", target)
	if err := e.destination.MakeDir(ctx, target); err != nil {
		return errors.NewPathError(errors.CodeExecutionFailed, "copy", relPath, err)
	}
	e.metrics.ObserveCopy(true)

	for _, sub := range dir.Dirs {
		if err := e.expand(ctx, sub); err != nil {
			return err
		}
	}
	for _, file := range dir.Files {
		if err := e.copy(ctx, file.RelativePath(), relPath, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) copy(ctx context.Context, relPath, destRelDir string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sourcePath := e.source.FullPath(relPath)
	destinationDir := e.destination.FullPath(destRelDir)
	logger := e.logger.With("path", relPath, "target", destinationDir, "recursive", recursive)

	if e.dryRun {
		logger.Info("Would copy")
		return nil
	}
	logger.Info("Copying")
	if err := e.destination.Copy(ctx, sourcePath, destinationDir, recursive); err != nil {
		return errors.NewPathError(errors.CodeExecutionFailed, "copy", relPath, err)
	}
	e.metrics.ObserveCopy(recursive)
	return nil
}

// ExecuteDeletes walks the destination tree and performs every marked
// delete. It returns the number of deletes issued.
func (e *Executor) ExecuteDeletes(ctx context.Context, destination *contenttree.Dir) (int, error) {
	count := 0
	if err := e.deletes(ctx, destination, &count); err != nil {
		return count, err
	}
	return count, nil
}

func (e *Executor) deletes(ctx context.Context, destination *contenttree.Dir, count *int) error {
	for _, dir := range destination.Dirs {
		if dir.ToBeDeleted {
			if err := e.delete(ctx, dir.RelativePath(), true); err != nil {
				return err
			}
			*count++
			continue
		}
		if err := e.deletes(ctx, dir, count); err != nil {
			return err
		}
	}
	for _, file := range destination.Files {
		if !file.ToBeDeleted {
			continue
		}
		if err := e.delete(ctx, file.RelativePath(), false); err != nil {
			return err
		}
		*count++
	}
	return nil
}

func (e *Executor) delete(ctx context.Context, relPath string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath := e.destination.FullPath(relPath)
	logger := e.logger.With("path", relPath, "target", fullPath, "recursive", recursive)

	if e.dryRun {
		logger.Info("Would delete")
		return nil
	}
	logger.Info("Deleting")
	if err := e.destination.Delete(ctx, fullPath, recursive); err != nil {
		return errors.NewPathError(errors.CodeExecutionFailed, "delete", relPath, err)
	}
	e.metrics.ObserveDelete(recursive)
	return nil
}
