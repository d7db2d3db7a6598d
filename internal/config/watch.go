package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stockwatchdog/marketdata/internal/observ"
)

// Watch reloads path whenever it changes and hands the parsed result to
// apply. The parent directory is watched rather than the file itself
// because editors and deploy tools replace config files by rename. Rapid
// event bursts are coalesced; parse failures keep the previous config.
func Watch(ctx context.Context, path string, apply func(Root)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}
	go watchLoop(ctx, w, abs, apply)
	return nil
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, path string, apply func(Root)) {
	defer w.Close()
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				c, err := Load(path)
				if err != nil {
					observ.Warn("config_reload_failed", map[string]any{"path": path, "error": err.Error()})
					return
				}
				observ.Log("config_reload", map[string]any{"path": path})
				apply(c)
			})
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			observ.Warn("config_watch_error", map[string]any{"error": err.Error()})
		}
	}
}
