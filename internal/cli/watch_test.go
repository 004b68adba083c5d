package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoopDebouncesRelevantChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := newDirWatcher(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, w, []string{".lvdash.json", ".sql"}, 50*time.Millisecond, func(string, ...any) {}, func() {
			changes <- struct{}{}
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.lvdash.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daily.sql"), []byte("SELECT 1"), 0o600))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestHasSuffix(t *testing.T) {
	suffixes := []string{".lvdash.json", ".sql"}
	assert.True(t, hasSuffix("/tmp/x/sales.lvdash.json", suffixes))
	assert.True(t, hasSuffix("daily.sql", suffixes))
	assert.False(t, hasSuffix("sales.json", suffixes))
	assert.False(t, hasSuffix("x.sql.bak", suffixes))
}
