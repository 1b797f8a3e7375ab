package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/resbind"
)

// settle absorbs the burst of events editors produce for one save.
const settle = 100 * time.Millisecond

// watchFile calls fn once, then again after every change to path, until
// ctx is done. The directory is watched rather than the file so that
// editors replacing the file by rename are followed.
func watchFile(ctx context.Context, path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fn()
	resbind.Logger().Info("sigdump: watching", slog.String("file", abs))

	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			resbind.Logger().Debug("sigdump: change", slog.String("op", ev.Op.String()))
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			resbind.Logger().Warn("sigdump: watch error", slog.String("error", err.Error()))
		case <-timer.C:
			fn()
		}
	}
}
