package billy

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/input-output-hk/catalyst-forge-libs/contentsync/fs"
)

func testMkdirAllStat(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "a/b/c"), 0o755))

	info, err := fs.Stat(filepath.Join(root, "a/b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func testCreateWriteReadRemove(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	p := filepath.Join(root, "file.txt")

	f, err := fs.Create(p)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := fs.Open(p)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(data))

	exists, err := fs.Exists(p)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, fs.Remove(p))

	exists, err = fs.Exists(p)
	require.NoError(t, err)
	assert.False(t, exists)
}

func testRenameAndRemoveAll(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(filepath.Join(root, "tree/x/one.txt"), []byte("1"), 0o644))
	require.NoError(t, fs.WriteFile(filepath.Join(root, "tmp.txt"), []byte("2"), 0o644))

	require.NoError(t, fs.Rename(filepath.Join(root, "tmp.txt"), filepath.Join(root, "final.txt")))
	b, err := fs.ReadFile(filepath.Join(root, "final.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(b))

	require.NoError(t, fs.RemoveAll(filepath.Join(root, "tree")))
	exists, err := fs.Exists(filepath.Join(root, "tree"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func testWalk(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(filepath.Join(root, "w/a.txt"), []byte("a"), 0o644))
	require.NoError(t, fs.WriteFile(filepath.Join(root, "w/sub/b.txt"), []byte("b"), 0o644))

	var files []string
	err := fs.Walk(filepath.Join(root, "w"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, relErr := filepath.Rel(filepath.Join(root, "w"), path)
			require.NoError(t, relErr)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, files)
}

func TestInMemoryFS(t *testing.T) {
	fs := NewInMemoryFS()
	t.Run("MkdirAllStat", func(t *testing.T) { testMkdirAllStat(t, fs, "/") })
	t.Run("CreateWriteReadRemove", func(t *testing.T) { testCreateWriteReadRemove(t, fs, "/") })
	t.Run("RenameAndRemoveAll", func(t *testing.T) { testRenameAndRemoveAll(t, fs, "/") })
	t.Run("Walk", func(t *testing.T) { testWalk(t, fs, "/") })
}

func TestOSFS(t *testing.T) {
	root := t.TempDir()
	fs := NewOSFS(root)
	t.Run("MkdirAllStat", func(t *testing.T) { testMkdirAllStat(t, fs, "") })
	t.Run("CreateWriteReadRemove", func(t *testing.T) { testCreateWriteReadRemove(t, fs, "") })
	t.Run("RenameAndRemoveAll", func(t *testing.T) { testRenameAndRemoveAll(t, fs, "") })
}

func TestBaseOSFS(t *testing.T) {
	root := t.TempDir()
	fs := NewBaseOSFS()
	assert.Equal(t, "/", fs.Raw().Root())
	t.Run("CreateWriteReadRemove", func(t *testing.T) { testCreateWriteReadRemove(t, fs, root) })
}
