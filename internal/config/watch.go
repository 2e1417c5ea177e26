package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the config into h whenever the file at h.Path() is written,
// until ctx is done. load resolves the new config (re-applying env and CLI
// overrides); an invalid file is logged and the previous config stays in
// effect. onReload, when non-nil, receives every applied config.
//
// The parent directory is watched rather than the file, because editors
// commonly save by renaming a temporary file over the original.
func Watch(
	ctx context.Context, h *Holder, load func() (*Resolved, error),
	logger *slog.Logger, onReload func(*Resolved),
) error {
	target := filepath.Clean(h.Path())

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(target), err)
	}

	logger.Debug("watching config file", slog.String("path", target))

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		case <-pending:
			pending = nil

			cfg, err := load()
			if err != nil {
				logger.Warn("ignoring invalid config reload",
					slog.String("path", target),
					slog.String("error", err.Error()),
				)

				continue
			}

			h.Update(cfg)
			logger.Info("config reloaded", slog.String("path", target))

			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
