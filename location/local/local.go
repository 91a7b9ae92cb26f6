// Package local implements a sync location on a filesystem reachable from
// this process, normally the native filesystem.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
)

// Location is a directory tree on an fs.Filesystem.
type Location struct {
	fs      fs.Filesystem
	base    string
	matcher *PatternMatcher
	logger  *slog.Logger
}

// Option configures a Location.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	include    []string
	exclude    []string
	dirExclude []string
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInclude restricts files to those matching at least one pattern.
func WithInclude(patterns ...string) Option {
	return func(o *options) {
		o.include = append(o.include, patterns...)
	}
}

// WithExclude skips files matching any pattern.
func WithExclude(patterns ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, patterns...)
	}
}

// WithDirExclude skips directories, and everything below them, matching any pattern.
func WithDirExclude(patterns ...string) Option {
	return func(o *options) {
		o.dirExclude = append(o.dirExclude, patterns...)
	}
}

var (
	_ location.Location   = (*Location)(nil)
	_ location.FileLister = (*Location)(nil)
)

// New returns a location rooted at base on fsys.
func New(fsys fs.Filesystem, base string, opts ...Option) (*Location, error) {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}

	if base == "" {
		return nil, errors.NewError(errors.CodeInvalidInput, "new local location",
			fmt.Errorf("%w: base directory is required", errors.ErrInvalidInput))
	}

	var matcher *PatternMatcher
	if len(o.include)+len(o.exclude)+len(o.dirExclude) > 0 {
		m, err := NewPatternMatcher(o.include, o.exclude, o.dirExclude)
		if err != nil {
			return nil, errors.NewError(errors.CodeInvalidInput, "new local location", err)
		}
		matcher = m
	}

	return &Location{
		fs:      fsys,
		base:    path.Clean(filepath.ToSlash(base)),
		matcher: matcher,
		logger:  o.logger,
	}, nil
}

// String implements location.Location.
func (l *Location) String() string {
	return l.base
}

// Filtered implements location.Filtered. It reports whether include or
// exclude patterns hide part of the tree.
func (l *Location) Filtered() bool {
	return l.matcher != nil
}

// Base returns the base directory.
func (l *Location) Base() string {
	return l.base
}

// FullPath implements location.Location.
func (l *Location) FullPath(relativePath string) string {
	if relativePath == "" {
		return l.base
	}
	return path.Join(l.base, relativePath)
}

// ListDirectories implements location.Location.
func (l *Location) ListDirectories(ctx context.Context) ([]string, error) {
	var dirs []string
	err := l.walk(ctx, func(rel string, info os.FileInfo) error {
		if info.IsDir() {
			dirs = append(dirs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// ListFiles implements location.FileLister.
func (l *Location) ListFiles(ctx context.Context) ([]location.FileInfo, error) {
	var files []location.FileInfo
	err := l.walk(ctx, func(rel string, info os.FileInfo) error {
		if info.Mode().IsRegular() {
			files = append(files, location.FileInfo{Path: rel, ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// HashFile implements location.FileLister. The hash is the lowercase hex
// SHA-256 of the file content.
func (l *Location) HashFile(ctx context.Context, relativePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath := l.FullPath(relativePath)
	f, err := l.fs.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", fullPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", fullPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ListFileHashes implements location.Location by hashing every file.
func (l *Location) ListFileHashes(ctx context.Context) ([]location.FileHash, error) {
	files, err := l.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	hashes := make([]location.FileHash, 0, len(files))
	for _, f := range files {
		hash, err := l.HashFile(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, location.FileHash{Path: f.Path, Hash: hash})
	}
	return hashes, nil
}

// walk visits every entry below the base, skipping excluded directories and
// files, and passes the slash-separated relative path to visit.
func (l *Location) walk(ctx context.Context, visit func(rel string, info os.FileInfo) error) error {
	err := l.fs.Walk(l.base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := l.relative(p)
		if err != nil {
			return err
		}
		if rel == "" {
			return nil
		}

		if info.IsDir() {
			if !l.matcher.IncludeDir(rel) {
				l.logger.Debug("Skipping excluded directory", "path", rel)
				return filepath.SkipDir
			}
		} else if !l.matcher.IncludeFile(rel) {
			return nil
		}
		return visit(rel, info)
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", l.base, err)
	}
	return nil
}

func (l *Location) relative(p string) (string, error) {
	p = path.Clean(filepath.ToSlash(p))
	if p == l.base {
		return "", nil
	}
	prefix := l.base + "/"
	switch {
	case l.base == "/":
		prefix = "/"
	case l.base == "." && !path.IsAbs(p) && p != ".." && !strings.HasPrefix(p, "../"):
		prefix = ""
	}
	if !strings.HasPrefix(p, prefix) {
		return "", errors.NewPathError(errors.CodeMalformedOutput, "walk", p,
			fmt.Errorf("%w: path is not under %s", errors.ErrMalformedListing, l.base))
	}
	return p[len(prefix):], nil
}

// Copy implements location.Location. sourcePath is read from the same
// filesystem the location lives on.
func (l *Location) Copy(ctx context.Context, sourcePath, destinationDir string, recursive bool) error {
	target := path.Join(destinationDir, path.Base(sourcePath))
	l.logger.Debug("Copying", "source", sourcePath, "target", target, "recursive", recursive)

	if !recursive {
		if err := l.fs.MkdirAll(destinationDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", destinationDir, err)
		}
		return l.copyFile(sourcePath, target)
	}

	err := l.fs.Walk(sourcePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(filepath.ToSlash(p), sourcePath), "/")
		dst := path.Join(target, rel)
		if info.IsDir() {
			return l.fs.MkdirAll(dst, 0o755)
		}
		return l.copyFile(p, dst)
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", sourcePath, target, err)
	}
	return nil
}

func (l *Location) copyFile(src, dst string) error {
	in, err := l.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close() //nolint:errcheck // read-only

	out, err := l.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

// MakeDir implements location.Location.
func (l *Location) MakeDir(_ context.Context, p string) error {
	if err := l.fs.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", p, err)
	}
	return nil
}

// Delete implements location.Location.
func (l *Location) Delete(_ context.Context, p string, recursive bool) error {
	l.logger.Debug("Deleting", "path", p, "recursive", recursive)
	var err error
	if recursive {
		err = l.fs.RemoveAll(p)
	} else {
		err = l.fs.Remove(p)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// Close implements location.Location. A local location holds no resources.
func (l *Location) Close() error {
	return nil
}
