package config

import (
	"context"
	"path/filepath"
	"time"

	"adDecisioning/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads path into m whenever it changes until ctx is done. The
// parent directory is watched so editors that replace the file by rename
// are picked up. A file that fails to parse or validate is logged and the
// previous config stays live.
func Watch(ctx context.Context, path string, m *Manager, validate *validator.Validate) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var pending <-chan time.Time
	for {
		select {
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
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil
			reload(path, m, validate)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config_watch_error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func reload(path string, m *Manager, validate *validator.Validate) {
	next, err := LoadRuntime(path, validate)
	if err != nil {
		logger.Error("config_reload_rejected", "path", path, "error", err)
		return
	}
	if err := m.Apply(next); err != nil {
		logger.Error("config_reload_rejected", "path", path, "error", err)
		return
	}
	logger.Info("config_reloaded", "path", path)
}
