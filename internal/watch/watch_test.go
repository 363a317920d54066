package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs w in the background and returns the channel batches
// are delivered on.
func startWatcher(t *testing.T, w *Watcher) <-chan []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []string, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(_ context.Context, changed []string) {
			batches <- changed
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)
	return batches
}

func waitForBatch(ch <-chan []string, timeout time.Duration) ([]string, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		return nil, false
	}
}

func TestWatcher_DetectsChangeInTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "veneer")
	require.NoError(t, os.MkdirAll(src, 0o755))
	file := filepath.Join(src, "table.rs")
	require.NoError(t, os.WriteFile(file, []byte("// original"), 0o644))

	w, err := New(root, []string{"src"}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	batches := startWatcher(t, w)

	require.NoError(t, os.WriteFile(file, []byte("// modified"), 0o644))

	batch, ok := waitForBatch(batches, 2*time.Second)
	require.True(t, ok, "expected a batch for the modified file")
	assert.Equal(t, []string{file}, batch)
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	w, err := New(root, []string{"src"}, 200*time.Millisecond, nil)
	require.NoError(t, err)
	batches := startWatcher(t, w)

	a := filepath.Join(root, "src", "a.rs")
	b := filepath.Join(root, "src", "b.rs")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(a, []byte{byte(i)}, 0o644))
		require.NoError(t, os.WriteFile(b, []byte{byte(i)}, 0o644))
	}

	batch, ok := waitForBatch(batches, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, []string{a, b}, batch)

	_, ok = waitForBatch(batches, 400*time.Millisecond)
	assert.False(t, ok, "a burst must produce a single batch")
}

func TestWatcher_WatchesSingleFile(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "Cargo.toml")
	other := filepath.Join(root, "README.md")
	require.NoError(t, os.WriteFile(manifest, []byte("[package]\n"), 0o644))

	w, err := New(root, []string{"Cargo.toml"}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	batches := startWatcher(t, w)

	require.NoError(t, os.WriteFile(other, []byte("docs"), 0o644))
	_, ok := waitForBatch(batches, 200*time.Millisecond)
	assert.False(t, ok, "siblings of a watched file are not relevant")

	require.NoError(t, os.WriteFile(manifest, []byte("[package]\nname = \"fls\"\n"), 0o644))
	batch, ok := waitForBatch(batches, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, []string{manifest}, batch)
}

func TestWatcher_IgnoresTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target", "debug")
	require.NoError(t, os.MkdirAll(target, 0o755))

	w, err := New(root, []string{"."}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	batches := startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(target, "fls"), []byte("bin"), 0o755))
	_, ok := waitForBatch(batches, 200*time.Millisecond)
	assert.False(t, ok, "build output must not trigger a run")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	w, err := New(root, []string{"src"}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	batches := startWatcher(t, w)

	sub := filepath.Join(root, "src", "fmt")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_, ok := waitForBatch(batches, 2*time.Second)
	require.True(t, ok, "creating a directory is a change")

	file := filepath.Join(sub, "mod.rs")
	require.NoError(t, os.WriteFile(file, []byte("// new"), 0o644))
	batch, ok := waitForBatch(batches, 2*time.Second)
	require.True(t, ok, "files in new directories are watched")
	assert.Contains(t, batch, file)
}

func TestNew_NoPaths(t *testing.T) {
	_, err := New(t.TempDir(), []string{"missing"}, time.Millisecond, nil)
	assert.Error(t, err)
}

func TestShouldIgnorePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/p/src/main.rs", false},
		{"/p/src/.main.rs.swp", true},
		{"/p/src/main.rs~", true},
		{"/p/target/debug/fls", true},
		{"/p/.git/HEAD", true},
	}
	for _, tt := range tests {
		if got := shouldIgnorePath(tt.path); got != tt.want {
			t.Errorf("shouldIgnorePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
