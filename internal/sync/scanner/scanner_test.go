package scanner

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

// remoteLocation serves fixed listings and counts how often it is listed.
type remoteLocation struct {
	dirs   []string
	hashes []location.FileHash
	lists  int
	err    error
}

func (r *remoteLocation) String() string          { return "remote:/base" }
func (r *remoteLocation) FullPath(p string) string { return "/base/" + p }

func (r *remoteLocation) ListDirectories(context.Context) ([]string, error) {
	r.lists++
	return r.dirs, r.err
}

func (r *remoteLocation) ListFileHashes(context.Context) ([]location.FileHash, error) {
	r.lists++
	return r.hashes, nil
}

func (r *remoteLocation) Copy(context.Context, string, string, bool) error { return nil }
func (r *remoteLocation) MakeDir(context.Context, string) error           { return nil }
func (r *remoteLocation) Delete(context.Context, string, bool) error       { return nil }
func (r *remoteLocation) Close() error                                    { return nil }

// listerLocation is a location that can report modification times and hash
// files individually.
type listerLocation struct {
	remoteLocation
	files   []location.FileInfo
	content map[string]string
	hashed  []string
}

func (l *listerLocation) ListFiles(context.Context) ([]location.FileInfo, error) {
	return l.files, nil
}

func (l *listerLocation) HashFile(_ context.Context, rel string) (string, error) {
	l.hashed = append(l.hashed, rel)
	content, ok := l.content[rel]
	if !ok {
		return "", fmt.Errorf("%s: no such file", rel)
	}
	return "h-" + content, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScan_ListsRemoteLocation(t *testing.T) {
	loc := &remoteLocation{
		dirs: []string{"b", "a", "a/empty"},
		hashes: []location.FileHash{
			{Path: "b/2.txt", Hash: "h2"},
			{Path: "a/1.txt", Hash: "h1"},
			{Path: "top", Hash: "h0"},
		},
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tree, err := New(WithClock(fixedClock(now))).Scan(context.Background(), loc, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a/1.txt": "h1", "b/2.txt": "h2", "top": "h0"}, tree.Hashes())
	require.Len(t, tree.Dirs, 2)
	assert.Equal(t, "a", tree.Dirs[0].Name)
	assert.Equal(t, "b", tree.Dirs[1].Name)
	assert.NotNil(t, tree.Dir("a").Dir("empty"))
	require.NotNil(t, tree.CapturedAt)
	assert.True(t, now.Equal(*tree.CapturedAt))
}

func TestScan_RemoteLocationUsesExistingSnapshot(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	cache := snapshot.NewCache(fsys, "/state/dst.snap")

	cached := contenttree.New()
	require.NoError(t, cached.AddFile("z.txt", "hz"))
	require.NoError(t, cached.AddFile("a.txt", "ha"))
	require.NoError(t, cache.Store(cached))

	loc := &remoteLocation{hashes: []location.FileHash{{Path: "other", Hash: "x"}}}
	tree, err := New().Scan(context.Background(), loc, cache)
	require.NoError(t, err)

	assert.Equal(t, 0, loc.lists)
	assert.Equal(t, map[string]string{"a.txt": "ha", "z.txt": "hz"}, tree.Hashes())
	require.Len(t, tree.Files, 2)
	assert.Equal(t, "a.txt", tree.Files[0].Name)
}

func TestScan_RemoteLocationStoresSnapshot(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	cache := snapshot.NewCache(fsys, "/state/dst.snap")
	loc := &remoteLocation{hashes: []location.FileHash{{Path: "d/f", Hash: "hf"}}}

	_, err := New().Scan(context.Background(), loc, cache)
	require.NoError(t, err)
	assert.Equal(t, 2, loc.lists)

	stored, err := cache.LoadTree()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, map[string]string{"d/f": "hf"}, stored.Hashes())
}

func TestScan_RemoteListingError(t *testing.T) {
	loc := &remoteLocation{err: fmt.Errorf("connection refused")}

	_, err := New().Scan(context.Background(), loc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestScan_ReusesHashesOfUnmodifiedFiles(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	cache := snapshot.NewCache(fsys, "/state/src.snap")

	captured := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	previous := contenttree.New()
	require.NoError(t, previous.AddFile("old.txt", "cached-old"))
	require.NoError(t, previous.AddFile("edited.txt", "cached-edited"))
	previous.SetCapturedAt(captured)
	require.NoError(t, cache.Store(previous))

	loc := &listerLocation{
		remoteLocation: remoteLocation{dirs: []string{"sub"}},
		files: []location.FileInfo{
			{Path: "old.txt", ModTime: captured.Add(-time.Hour)},
			{Path: "edited.txt", ModTime: captured.Add(time.Minute)},
			{Path: "sub/new.txt", ModTime: captured.Add(-time.Hour)},
		},
		content: map[string]string{"old.txt": "1", "edited.txt": "2", "sub/new.txt": "3"},
	}
	m := metrics.New()
	now := captured.Add(time.Hour)

	tree, err := New(WithClock(fixedClock(now)), WithMetrics(m)).Scan(context.Background(), loc, cache)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"old.txt":     "cached-old",
		"edited.txt":  "h-2",
		"sub/new.txt": "h-3",
	}, tree.Hashes())
	assert.ElementsMatch(t, []string{"edited.txt", "sub/new.txt"}, loc.hashed)
	expected := `
# HELP contentsync_files_hashed_total Total number of files whose content was hashed
# TYPE contentsync_files_hashed_total counter
contentsync_files_hashed_total 2
# HELP contentsync_hash_cache_hits_total Total number of file hashes reused from a snapshot
# TYPE contentsync_hash_cache_hits_total counter
contentsync_hash_cache_hits_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"contentsync_files_hashed_total", "contentsync_hash_cache_hits_total"))

	stored, err := cache.LoadTree()
	require.NoError(t, err)
	require.NotNil(t, stored.CapturedAt)
	assert.True(t, now.Equal(*stored.CapturedAt))
	assert.Equal(t, tree.Hashes(), stored.Hashes())
}

func TestScan_FileModifiedAtCaptureTimeIsRehashed(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	cache := snapshot.NewCache(fsys, "/state/src.snap")

	captured := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	previous := contenttree.New()
	require.NoError(t, previous.AddFile("f", "cached"))
	previous.SetCapturedAt(captured)
	require.NoError(t, cache.Store(previous))

	loc := &listerLocation{
		files:   []location.FileInfo{{Path: "f", ModTime: captured}},
		content: map[string]string{"f": "x"},
	}

	tree, err := New().Scan(context.Background(), loc, cache)
	require.NoError(t, err)
	assert.Equal(t, "h-x", tree.File("f").Hash)
}

func TestScan_CaptureTimeTakenBeforeListing(t *testing.T) {
	calls := 0
	times := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		v := times[calls]
		calls++
		return v
	}
	loc := &listerLocation{
		files:   []location.FileInfo{{Path: "f", ModTime: times[0]}},
		content: map[string]string{"f": "x"},
	}

	tree, err := New(WithClock(clock)).Scan(context.Background(), loc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, times[0].Equal(*tree.CapturedAt))
}

func TestScan_HashError(t *testing.T) {
	loc := &listerLocation{
		files:   []location.FileInfo{{Path: "vanished"}},
		content: map[string]string{},
	}

	_, err := New().Scan(context.Background(), loc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vanished")
}

func TestScan_CaptureTimeSurvivesSnapshotRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)
	loc := &remoteLocation{hashes: []location.FileHash{{Path: "a.txt", Hash: "ha"}}}

	tree, err := New(WithClock(fixedClock(now))).Scan(context.Background(), loc, nil)
	require.NoError(t, err)
	require.NotNil(t, tree.CapturedAt)
	assert.True(t, now.Truncate(time.Millisecond).Equal(*tree.CapturedAt))

	codec := snapshot.NewCodec()
	var buf strings.Builder
	require.NoError(t, codec.Encode(&buf, tree))
	decoded, err := codec.Decode(strings.NewReader(buf.String()))
	require.NoError(t, err)

	require.NotNil(t, decoded.CapturedAt)
	assert.True(t, tree.CapturedAt.Equal(*decoded.CapturedAt))
	assert.Equal(t, tree.Hashes(), decoded.Hashes())
}
