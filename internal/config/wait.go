package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForFile blocks until the configuration file exists. The daemon is
// typically installed before the first setup run, so a missing file is not an
// error; we watch the parent directory until it shows up.
func WaitForFile(ctx context.Context, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: could not create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: could not create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: could not watch %s: %w", dir, err)
	}

	// The file may have been created between the stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	slog.Info("Waiting for configuration file", "path", path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("config: watcher closed")
			}
			if event.Name != path {
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				slog.Info("Configuration file appeared", "path", path)
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("config: watcher closed")
			}
			slog.Warn("Watcher error while waiting for configuration", "error", err)
		}
	}
}
