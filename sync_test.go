package contentsync

import (
	"context"
	"fmt"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/location/local"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

// remote hides the FileLister capability of a location and counts listings,
// the way an ssh or s3 destination behaves.
type remote struct {
	location.Location
	listings int
	copyErr  error
	closed   bool
}

func (r *remote) ListDirectories(ctx context.Context) ([]string, error) {
	r.listings++
	return r.Location.ListDirectories(ctx)
}

func (r *remote) Copy(ctx context.Context, src, dstDir string, recursive bool) error {
	if r.copyErr != nil {
		return r.copyErr
	}
	return r.Location.Copy(ctx, src, dstDir, recursive)
}

func (r *remote) Close() error {
	r.closed = true
	return nil
}

type fixture struct {
	fs  *billy.FS
	src *local.Location
	dst *local.Location
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	fsys := billy.NewInMemoryFS()
	for name, content := range files {
		require.NoError(t, fsys.MkdirAll(path.Dir(name), 0o755))
		require.NoError(t, fsys.WriteFile(name, []byte(content), 0o644))
	}
	require.NoError(t, fsys.MkdirAll("/src", 0o755))
	require.NoError(t, fsys.MkdirAll("/dst", 0o755))

	src, err := local.New(fsys, "/src")
	require.NoError(t, err)
	dst, err := local.New(fsys, "/dst")
	require.NoError(t, err)
	return &fixture{fs: fsys, src: src, dst: dst}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := f.fs.ReadFile(name)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) exists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := f.fs.Exists(name)
	require.NoError(t, err)
	return ok
}

var scenario = map[string]string{
	"/src/a.txt":     "alpha",
	"/src/sub/b.txt": "beta",
	"/src/new/c.txt": "gamma",
	"/dst/a.txt":     "alpha",
	"/dst/sub/b.txt": "stale",
	"/dst/sub/x.txt": "extra",
	"/dst/old/d.txt": "delta",
}

func TestSync_MirrorsSource(t *testing.T) {
	f := newFixture(t, scenario)
	m := metrics.New()
	s := NewSyncer(f.src, f.dst, WithMetrics(m))

	result, err := s.Sync(context.Background(), Config{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Copies)
	assert.Equal(t, 2, result.Deletes)
	var ops []string
	for _, op := range result.Operations {
		ops = append(ops, op.String())
	}
	assert.Equal(t, []string{
		"copy dir new -> .",
		"copy file sub/b.txt -> sub",
		"delete dir old",
		"delete file sub/x.txt",
	}, ops)

	assert.Equal(t, "alpha", f.read(t, "/dst/a.txt"))
	assert.Equal(t, "beta", f.read(t, "/dst/sub/b.txt"))
	assert.Equal(t, "gamma", f.read(t, "/dst/new/c.txt"))
	assert.False(t, f.exists(t, "/dst/sub/x.txt"))
	assert.False(t, f.exists(t, "/dst/old"))

	expected := `
# HELP contentsync_copies_total Total number of copy operations issued
# TYPE contentsync_copies_total counter
contentsync_copies_total{kind="dir"} 1
contentsync_copies_total{kind="file"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"contentsync_copies_total"))

	again, err := s.Sync(context.Background(), Config{})
	require.NoError(t, err)
	assert.Empty(t, again.Operations)
	assert.NotEqual(t, result.RunID, again.RunID)
}

func TestSync_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t, scenario)
	s := NewSyncer(f.src, f.dst)

	dry, err := s.Sync(context.Background(), Config{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Copies)
	assert.Equal(t, 2, dry.Deletes)

	assert.Equal(t, "stale", f.read(t, "/dst/sub/b.txt"))
	assert.True(t, f.exists(t, "/dst/sub/x.txt"))
	assert.False(t, f.exists(t, "/dst/new"))

	applied, err := s.Sync(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, dry.Operations, applied.Operations)
}

func TestSync_RemoteDestinationUsesSnapshot(t *testing.T) {
	f := newFixture(t, scenario)
	dst := &remote{Location: f.dst}
	srcCache := snapshot.NewCache(f.fs, "/state/src.snap")
	dstCache := snapshot.NewCache(f.fs, "/state/dst.snap")
	s := NewSyncer(f.src, dst, WithSourceCache(srcCache), WithDestinationCache(dstCache))
	ctx := context.Background()

	_, err := s.Sync(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, dst.listings)

	srcData := f.read(t, "/state/src.snap")
	assert.Equal(t, srcData, f.read(t, "/state/dst.snap"))

	// The destination is not listed again while its snapshot is present.
	result, err := s.Sync(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, dst.listings)
	assert.Empty(t, result.Operations)

	// A changed source file is copied based on the snapshot alone.
	require.NoError(t, f.fs.WriteFile("/src/a.txt", []byte("changed"), 0o644))
	result, err = s.Sync(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, dst.listings)
	require.Len(t, result.Operations, 1)
	assert.Equal(t, "copy file a.txt -> .", result.Operations[0].String())
	assert.Equal(t, "changed", f.read(t, "/dst/a.txt"))
}

func TestSync_ForceFullRehashDiscardsSnapshots(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/a.txt": "alpha",
		"/dst/a.txt": "alpha",
	})
	srcCache := snapshot.NewCache(f.fs, "/state/src.snap")

	// A snapshot claiming a.txt was hashed long after its last change.
	bogus := contenttree.New()
	require.NoError(t, bogus.AddFile("a.txt", "bogus"))
	bogus.SetCapturedAt(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, srcCache.Store(bogus))

	s := NewSyncer(f.src, f.dst, WithSourceCache(srcCache))

	trusted, err := s.Sync(context.Background(), Config{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "bogus", trusted.Source.File("a.txt").Hash)
	assert.Len(t, trusted.Operations, 1)

	rehashed, err := s.Sync(context.Background(), Config{DryRun: true, ForceFullRehash: true})
	require.NoError(t, err)
	assert.NotEqual(t, "bogus", rehashed.Source.File("a.txt").Hash)
	assert.Empty(t, rehashed.Operations)
}

func TestSync_FailureClearsDestinationSnapshot(t *testing.T) {
	f := newFixture(t, scenario)
	dst := &remote{Location: f.dst}
	srcCache := snapshot.NewCache(f.fs, "/state/src.snap")
	dstCache := snapshot.NewCache(f.fs, "/state/dst.snap")
	m := metrics.New()
	s := NewSyncer(f.src, dst,
		WithSourceCache(srcCache), WithDestinationCache(dstCache), WithMetrics(m))

	dst.copyErr = fmt.Errorf("connection reset")
	_, err := s.Sync(context.Background(), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dst.copyErr)
	assert.Equal(t, errors.CodeExecutionFailed, errors.CodeOf(err))

	exists, err := dstCache.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
	series, err := testutil.GatherAndCount(m.Registry(), "contentsync_sync_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)

	// Deletes never started.
	assert.True(t, f.exists(t, "/dst/old/d.txt"))

	dst.copyErr = nil
	_, err = s.Sync(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, dst.listings)
}

func TestSync_DryRunKeepsDestinationSnapshot(t *testing.T) {
	f := newFixture(t, scenario)
	dst := &remote{Location: f.dst}
	dstCache := snapshot.NewCache(f.fs, "/state/dst.snap")
	s := NewSyncer(f.src, dst, WithDestinationCache(dstCache))

	_, err := s.Sync(context.Background(), Config{DryRun: true})
	require.NoError(t, err)
	exists, err := dstCache.Exists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncer_Close(t *testing.T) {
	f := newFixture(t, nil)
	dst := &remote{Location: f.dst}
	s := NewSyncer(f.src, dst)

	require.NoError(t, s.Close())
	assert.True(t, dst.closed)
}
