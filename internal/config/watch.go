package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors produce when they
// save (truncate, write, chmod, or write-temp-then-rename).
const reloadDebounce = 250 * time.Millisecond

// ReloadFunc receives the previous and the newly loaded configuration after
// the config file changed and the new contents validated.
type ReloadFunc func(prev, next *Resolved)

// Watcher re-resolves the config file when it changes on disk and pushes
// valid results into a Holder. Invalid edits are logged and ignored; the
// previous configuration stays in effect.
type Watcher struct {
	holder   *Holder
	env      EnvOverrides
	cli      CLIOverrides
	onReload ReloadFunc
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for h.Path(). env and cli are re-applied on
// every reload so overrides keep winning over the file.
func NewWatcher(h *Holder, env EnvOverrides, cli CLIOverrides, onReload ReloadFunc, logger *slog.Logger) *Watcher {
	return &Watcher{
		holder:   h,
		env:      env,
		cli:      cli,
		onReload: onReload,
		logger:   logger,
		debounce: reloadDebounce,
	}
}

// Run watches until ctx is canceled. The parent directory is watched rather
// than the file, so atomic replace-by-rename saves are seen. A missing
// directory disables watching without failing.
func (w *Watcher) Run(ctx context.Context) error {
	path := w.holder.Path()
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		w.logger.Debug("config directory missing, hot reload disabled", slog.String("dir", dir))
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	w.logger.Debug("watching config file", slog.String("path", path))

	return w.loop(ctx, fw, filepath.Clean(path))
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, path string) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path || ev.Op == fsnotify.Chmod {
				continue
			}

			timer.Reset(w.debounce)

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("config watcher error", slog.String("error", werr.Error()))

		case <-timer.C:
			if err := w.Reload(); err != nil {
				w.logger.Debug("config watcher keeps previous config", slog.String("error", err.Error()))
			}
		}
	}
}

// Reload re-resolves the config file now. It returns the error that kept
// the new contents from being applied, if any.
func (w *Watcher) Reload() error {
	next, err := ResolveFile(w.holder.Path(), w.env, w.cli)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous config",
			slog.String("path", w.holder.Path()),
			slog.String("error", err.Error()),
		)

		return err
	}

	prev := w.holder.Update(next)

	w.logger.Info("config reloaded", slog.String("path", w.holder.Path()))

	if w.onReload != nil {
		w.onReload(prev, next)
	}

	return nil
}
