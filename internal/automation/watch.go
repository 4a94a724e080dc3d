package automation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"devprobe/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the burst of events one editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// WatchScript calls onChange with the reparsed script each time the file at
// path is written, until ctx is done. The directory is watched rather than
// the file so atomic saves (write temp, rename over) are seen.
func WatchScript(ctx context.Context, path string, debounce time.Duration, onChange func(*Script, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log := logging.Get(logging.CategoryAutomation)
	log.Info("watching %s", abs)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug("%s event for %s", event.Op, event.Name)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error: %v", err)

		case <-timer.C:
			onChange(LoadScript(abs))
		}
	}
}
