// Package ssh implements a sync location on a remote host reached over SSH.
// Listings run find and a hash program on the remote side; copies upload with
// SCP and deletes run rm.
package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
)

// Location is a directory on a remote host.
type Location struct {
	shell  Shell
	base   string
	hash   HashCommand
	logger *slog.Logger
}

// Option configures a Location.
type Option func(*Location)

// WithHashCommand sets the remote hash program. Defaults to Sha256Sum.
func WithHashCommand(hash HashCommand) Option {
	return func(l *Location) {
		l.hash = hash
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Location) {
		l.logger = logger
	}
}

var _ location.Location = (*Location)(nil)

// New returns a location for the absolute directory base on shell's host.
func New(shell Shell, base string, opts ...Option) (*Location, error) {
	if !strings.HasPrefix(base, "/") {
		return nil, errors.NewPathError(errors.CodeInvalidInput, "new ssh location", base,
			fmt.Errorf("%w: remote base directory must be absolute", errors.ErrInvalidInput))
	}
	l := &Location{
		shell:  shell,
		base:   path.Clean(base),
		hash:   Sha256Sum(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// String implements location.Location.
func (l *Location) String() string {
	return l.shell.String() + ":" + l.base
}

// FullPath implements location.Location.
func (l *Location) FullPath(relativePath string) string {
	if relativePath == "" {
		return l.base
	}
	return path.Join(l.base, relativePath)
}

// baseDir returns the base with exactly one trailing slash.
func (l *Location) baseDir() string {
	if l.base == "/" {
		return "/"
	}
	return l.base + "/"
}

// ListDirectories implements location.Location.
func (l *Location) ListDirectories(ctx context.Context) ([]string, error) {
	command := fmt.Sprintf("find %s -type d -print", quote(l.base))
	result, err := l.shell.Run(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("failed to list directories of %s: %w", l, err)
	}

	baseDir := l.baseDir()
	var dirs []string
	for _, line := range result.Lines() {
		if line == l.base || line == baseDir {
			continue
		}
		rel, ok := strings.CutPrefix(line, baseDir)
		if !ok || rel == "" {
			return nil, errors.NewError(errors.CodeMalformedOutput, "list directories",
				fmt.Errorf("%w: %q is not under %s", errors.ErrMalformedListing, line, baseDir))
		}
		dirs = append(dirs, strings.TrimSuffix(rel, "/"))
	}
	l.logger.Debug("Listed remote directories", "location", l.String(), "count", len(dirs))
	return dirs, nil
}

// ListFileHashes implements location.Location.
func (l *Location) ListFileHashes(ctx context.Context) ([]location.FileHash, error) {
	command := fmt.Sprintf("find %s -type f -print0 | xargs -0 -r %s", quote(l.base), l.hash.Command)
	result, err := l.shell.Run(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("failed to list file hashes of %s: %w", l, err)
	}

	baseDir := l.baseDir()
	var hashes []location.FileHash
	for _, line := range result.Lines() {
		fh, skip, err := l.hash.ParseLine(baseDir, line)
		if err != nil {
			return nil, err
		}
		if skip {
			l.logger.Debug("Ignoring hash line", "line", line)
			continue
		}
		hashes = append(hashes, fh)
	}
	l.logger.Debug("Listed remote file hashes", "location", l.String(), "count", len(hashes))
	return hashes, nil
}

// Copy implements location.Location.
func (l *Location) Copy(ctx context.Context, sourcePath, destinationDir string, recursive bool) error {
	if recursive {
		return l.shell.CopyDir(ctx, sourcePath, destinationDir)
	}
	return l.shell.CopyFile(ctx, sourcePath, destinationDir)
}

// MakeDir implements location.Location.
func (l *Location) MakeDir(ctx context.Context, p string) error {
	if _, err := l.shell.Run(ctx, "mkdir -p "+quote(p)); err != nil {
		return fmt.Errorf("failed to create %s on %s: %w", p, l.shell, err)
	}
	return nil
}

// Delete implements location.Location.
func (l *Location) Delete(ctx context.Context, p string, recursive bool) error {
	command := "rm " + quote(p)
	if recursive {
		command = "rm -r " + quote(p)
	}
	if _, err := l.shell.Run(ctx, command); err != nil {
		return fmt.Errorf("failed to delete %s on %s: %w", p, l.shell, err)
	}
	return nil
}

// Close implements location.Location.
func (l *Location) Close() error {
	return l.shell.Close()
}
