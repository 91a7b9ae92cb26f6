package snapshot

import (
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs"
)

// Hashes is the flat view of a snapshot used to skip rehashing files.
type Hashes struct {
	// CapturedAt is the capture time recorded in the snapshot, if any.
	CapturedAt *time.Time

	byPath map[string]string
}

// NewHashes builds a Hashes from a tree.
func NewHashes(tree *contenttree.Dir) *Hashes {
	return &Hashes{CapturedAt: tree.CapturedAt, byPath: tree.Hashes()}
}

// Lookup returns the cached hash for relPath when the file was last modified
// strictly before the snapshot was captured. A snapshot without a capture
// time never yields a hash.
func (h *Hashes) Lookup(relPath string, modTime time.Time) (string, bool) {
	if h == nil || h.CapturedAt == nil {
		return "", false
	}
	hash, ok := h.byPath[relPath]
	if !ok || !modTime.Before(*h.CapturedAt) {
		return "", false
	}
	return hash, true
}

// Len returns the number of cached file hashes.
func (h *Hashes) Len() int {
	if h == nil {
		return 0
	}
	return len(h.byPath)
}

// Cache is a snapshot file stored on a filesystem.
type Cache struct {
	fs     fs.Filesystem
	path   string
	codec  Codec
	logger *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCodec sets the codec used to read and write the snapshot file.
func WithCodec(codec Codec) CacheOption {
	return func(c *Cache) {
		c.codec = codec
	}
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache returns a cache for the snapshot file at path on fsys.
func NewCache(fsys fs.Filesystem, path string, opts ...CacheOption) *Cache {
	c := &Cache{
		fs:     fsys,
		path:   path,
		codec:  NewCodec(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the snapshot file path.
func (c *Cache) Path() string {
	return c.path
}

// Exists reports whether the snapshot file is present.
func (c *Cache) Exists() (bool, error) {
	exists, err := c.fs.Exists(c.path)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot %s: %w", c.path, err)
	}
	return exists, nil
}

// LoadTree reads the full tree from the snapshot file. It returns nil and no
// error when the file does not exist.
func (c *Cache) LoadTree() (*contenttree.Dir, error) {
	data, err := c.read()
	if err != nil || data == nil {
		return nil, err
	}
	tree, err := c.codec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", c.path, err)
	}
	return tree, nil
}

// LoadHashes reads the hash map from the snapshot file. A missing file
// yields an empty Hashes.
func (c *Cache) LoadHashes() (*Hashes, error) {
	data, err := c.read()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &Hashes{byPath: make(map[string]string)}, nil
	}
	hashes, err := c.codec.DecodeHashes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", c.path, err)
	}
	c.logger.Debug("Loaded cached hashes", "path", c.path, "files", hashes.Len())
	return hashes, nil
}

func (c *Cache) read() ([]byte, error) {
	exists, err := c.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		c.logger.Debug("No snapshot file", "path", c.path)
		return nil, nil
	}
	data, err := c.fs.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", c.path, err)
	}
	return data, nil
}

// Store writes tree to the snapshot file. The file is written next to its
// final location and renamed into place so readers never see a partial file.
func (c *Cache) Store(tree *contenttree.Dir) error {
	var buf bytes.Buffer
	if err := c.codec.Encode(&buf, tree); err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", c.path, err)
	}
	return c.write(buf.Bytes())
}

// CopyFrom replaces this snapshot with the contents of other. A missing
// source snapshot leaves this one untouched.
func (c *Cache) CopyFrom(other *Cache) error {
	data, err := other.read()
	if err != nil || data == nil {
		return err
	}
	return c.write(data)
}

func (c *Cache) write(data []byte) error {
	if dir := path.Dir(c.path); dir != "." && dir != "/" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
		}
	}
	tmp := c.path + ".tmp"
	if err := c.fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", tmp, err)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place %s: %w", c.path, err)
	}
	c.logger.Debug("Stored snapshot", "path", c.path, "bytes", len(data))
	return nil
}

// Clear removes the snapshot file if present.
func (c *Cache) Clear() error {
	exists, err := c.Exists()
	if err != nil || !exists {
		return err
	}
	if err := c.fs.Remove(c.path); err != nil {
		return fmt.Errorf("failed to remove snapshot %s: %w", c.path, err)
	}
	c.logger.Debug("Cleared snapshot", "path", c.path)
	return nil
}
