// Package fs defines the filesystem abstraction used by local locations and
// snapshot cache files. Production code uses the native filesystem through
// the billy adapter; tests use an in-memory filesystem.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem is the set of filesystem operations contentsync relies on.
// Paths are slash-separated and interpreted relative to the filesystem root.
type Filesystem interface {
	Create(name string) (File, error)
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	Open(name string) (File, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	Walk(root string, walkFn filepath.WalkFunc) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
}

// GetAbs returns the absolute, slash-separated form of path.
func GetAbs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %q: %w", path, err)
	}
	return filepath.ToSlash(abs), nil
}
