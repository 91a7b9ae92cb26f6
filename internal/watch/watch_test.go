package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
	err     error
}

func (c *counter) sync(ctx context.Context) error {
	if c.running.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.running.Add(-1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	c.calls.Add(1)
	return c.err
}

func start(t *testing.T, w *Watcher) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
			return nil
		}
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	events := make(chan fsnotify.Event, 10)
	c := &counter{}
	w := New("/src", 50*time.Millisecond, c.sync, WithEvents(events, nil), WithInitialSync(false))
	stop := start(t, w)

	for i := 0; i < 5; i++ {
		events <- fsnotify.Event{Name: fmt.Sprintf("/src/f%d", i), Op: fsnotify.Write}
	}
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// No further sync without further changes.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), c.calls.Load())
	require.NoError(t, stop())
}

func TestWatcher_InitialSync(t *testing.T) {
	c := &counter{}
	w := New("/src", time.Hour, c.sync, WithEvents(make(chan fsnotify.Event), nil))
	stop := start(t, w)

	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestWatcher_SyncsRunOneAtATime(t *testing.T) {
	events := make(chan fsnotify.Event, 10)
	c := &counter{delay: 100 * time.Millisecond}
	w := New("/src", 10*time.Millisecond, c.sync, WithEvents(events, nil), WithInitialSync(false))
	stop := start(t, w)

	events <- fsnotify.Event{Name: "/src/a", Op: fsnotify.Write}
	require.Eventually(t, func() bool { return c.running.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Changes during a sync schedule exactly one more.
	events <- fsnotify.Event{Name: "/src/b", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/src/c", Op: fsnotify.Write}
	require.Eventually(t, func() bool { return c.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), c.calls.Load())
	assert.False(t, c.overlap.Load())
	require.NoError(t, stop())
}

func TestWatcher_SyncErrorKeepsWatching(t *testing.T) {
	events := make(chan fsnotify.Event, 10)
	c := &counter{err: fmt.Errorf("destination unreachable")}
	w := New("/src", 10*time.Millisecond, c.sync, WithEvents(events, nil), WithInitialSync(false))
	stop := start(t, w)

	events <- fsnotify.Event{Name: "/src/a", Op: fsnotify.Write}
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	events <- fsnotify.Event{Name: "/src/a", Op: fsnotify.Write}
	require.Eventually(t, func() bool { return c.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestWatcher_IgnoredPaths(t *testing.T) {
	events := make(chan fsnotify.Event, 10)
	c := &counter{}
	ignore := func(p string) bool { return strings.HasSuffix(p, ".snap") }
	w := New("/src", 10*time.Millisecond, c.sync,
		WithEvents(events, nil), WithInitialSync(false), WithIgnore(ignore))
	stop := start(t, w)

	events <- fsnotify.Event{Name: "/src/state.snap", Op: fsnotify.Write}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), c.calls.Load())
	require.NoError(t, stop())
}

func TestWatcher_ClosedEventStream(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)
	w := New("/src", time.Second, (&counter{}).sync, WithEvents(events, nil), WithInitialSync(false))

	err := w.Run(context.Background())
	assert.Error(t, err)
}

func TestWatcher_WatchesDirectoryTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	c := &counter{}
	w := New(root, 50*time.Millisecond, c.sync)
	stop := start(t, w)
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	syncsAfter := func(change func()) {
		t.Helper()
		before := c.calls.Load()
		change()
		require.Eventually(t, func() bool { return c.calls.Load() > before }, 5*time.Second, 10*time.Millisecond)
	}

	syncsAfter(func() {
		require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.txt"), []byte("a"), 0o644))
	})
	newDir := filepath.Join(root, "new")
	syncsAfter(func() {
		require.NoError(t, os.Mkdir(newDir, 0o755))
	})
	syncsAfter(func() {
		require.NoError(t, os.WriteFile(filepath.Join(newDir, "b.txt"), []byte("b"), 0o644))
	})
	require.NoError(t, stop())
}
