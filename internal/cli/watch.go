package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return w, nil
}

// watchLoop debounces events for files with one of the suffixes and calls
// onChange once per burst.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, suffixes []string, debounce time.Duration, warn func(string, ...any), onChange func()) error {
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !hasSuffix(ev.Name, suffixes) {
				continue
			}
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			warn("file watcher error", "error", err)
		case <-fire:
			fire = nil
			onChange()
		}
	}
}

func hasSuffix(name string, suffixes []string) bool {
	base := filepath.Base(name)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}
