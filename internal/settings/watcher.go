package settings

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs editor write bursts into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the settings file on change and hands the result to a
// callback. A reload that fails to parse keeps the previous settings.
type Watcher struct {
	path     string
	onChange func(*Settings)
	debounce time.Duration
}

// NewWatcher creates a watcher for the settings file at path.
func NewWatcher(path string, onChange func(*Settings)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: reloadDebounce,
	}
}

// Run watches the settings file until ctx is cancelled. The parent directory
// is watched, not the file, so atomic save (write temp + rename) still
// triggers a reload.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Single debounce timer, reset on each event. Initialized as stopped;
	// first event starts it.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("settings: watch error: %v", err)
		case <-timer.C:
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("settings: reload failed, keeping previous: %v", err)
				continue
			}
			w.onChange(cfg)
		}
	}
}
