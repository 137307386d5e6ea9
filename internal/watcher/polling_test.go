package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, p *PollingWatcher) FileEvent {
	t.Helper()
	select {
	case e := <-p.Events():
		return e
	case err := <-p.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return FileEvent{}
}

func TestPollingWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a directory with one document under a polling watcher
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.md")
	require.NoError(t, os.WriteFile(existing, []byte("a"), 0o644))

	p := NewPollingWatcher(20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(60 * time.Millisecond)

	// When/Then: each change is reported once
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("b"), 0o644))
	e := receiveEvent(t, p)
	assert.Equal(t, OpCreate, e.Operation)
	assert.Equal(t, "new.md", e.Path)

	require.NoError(t, os.WriteFile(existing, []byte("longer content"), 0o644))
	e = receiveEvent(t, p)
	assert.Equal(t, OpModify, e.Operation)
	assert.Equal(t, "old.md", e.Path)

	require.NoError(t, os.Remove(existing))
	e = receiveEvent(t, p)
	assert.Equal(t, OpDelete, e.Operation)
	assert.Equal(t, "old.md", e.Path)

	require.NoError(t, p.Stop())
}

func TestPollingWatcher_FilterSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "skip"), 0o755))

	p := NewPollingWatcher(20*time.Millisecond, func(rel string, isDir bool) bool {
		return rel != "skip"
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip", "x.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.md"), []byte("k"), 0o644))

	e := receiveEvent(t, p)
	assert.Equal(t, "keep.md", e.Path)
	select {
	case extra := <-p.Events():
		t.Fatalf("unexpected event %v", extra)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestPollingWatcher_StopsOnContextCancel(t *testing.T) {
	p := NewPollingWatcher(10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx, t.TempDir()) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	_, ok := <-p.Events()
	assert.False(t, ok)
}
