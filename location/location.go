// Package location defines the capabilities a sync endpoint must provide.
//
// A Location is rooted at a base directory. Listings report paths relative
// to that base, while Copy and Delete take paths produced by FullPath. Copy
// always reads from the local filesystem: the source of a sync is local and
// the destination is whatever Location the caller picked.
package location

import (
	"context"
	"time"
)

// FileHash is a file path relative to a location's base with its content hash.
type FileHash struct {
	Path string
	Hash string
}

// FileInfo is a file path relative to a location's base with its last
// modification time.
type FileInfo struct {
	Path    string
	ModTime time.Time
}

// Location is a sync endpoint.
type Location interface {
	// String returns a human-readable description of the location.
	String() string

	// FullPath returns the location-specific path of relativePath. An empty
	// relativePath yields the base itself.
	FullPath(relativePath string) string

	// ListDirectories returns every directory below the base, relative to it.
	ListDirectories(ctx context.Context) ([]string, error)

	// ListFileHashes returns every file below the base with its content hash.
	ListFileHashes(ctx context.Context) ([]FileHash, error)

	// Copy copies the local sourcePath into destinationDir, keeping its base
	// name. recursive must be set when sourcePath is a directory.
	Copy(ctx context.Context, sourcePath, destinationDir string, recursive bool) error

	// MakeDir creates the directory path, and any missing parent, where path
	// is produced by FullPath. An existing directory is not an error.
	MakeDir(ctx context.Context, path string) error

	// Delete removes path, recursively when it is a directory.
	Delete(ctx context.Context, path string, recursive bool) error

	// Close releases any connection held by the location.
	Close() error
}

// FileLister is implemented by locations that can list files with their
// modification times and hash them one at a time. It lets callers reuse
// cached hashes for files that have not changed.
type FileLister interface {
	ListFiles(ctx context.Context) ([]FileInfo, error)
	HashFile(ctx context.Context, relativePath string) (string, error)
}

// Filtered is implemented by locations whose listings leave out part of what
// is on disk, e.g. through exclude patterns. A directory copied out of a
// filtered location must be copied entry by entry from its listed tree, since
// a recursive copy would also carry the entries the listing left out.
type Filtered interface {
	Filtered() bool
}
