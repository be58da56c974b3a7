package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// codeplugTarget receives reloaded codeplugs
type codeplugTarget interface {
	SetCodeplug(cp *codeplug.Codeplug)
}

// codeplugWatcher reloads the codeplug when its file is rewritten
type codeplugWatcher struct {
	path     string
	target   codeplugTarget
	log      *logger.Logger
	debounce time.Duration
}

func newCodeplugWatcher(path string, target codeplugTarget, log *logger.Logger) *codeplugWatcher {
	return &codeplugWatcher{
		path:     path,
		target:   target,
		log:      log.WithComponent("codeplug"),
		debounce: 250 * time.Millisecond,
	}
}

// Run watches the codeplug's directory until ctx is cancelled. Editors
// often replace files by rename, so the directory is watched rather than
// the file.
func (w *codeplugWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	want := filepath.Clean(w.path)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != want || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reload = time.After(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Codeplug watch error", logger.Error(err))
		case <-reload:
			reload = nil
			w.reload()
		}
	}
}

func (w *codeplugWatcher) reload() {
	cp, err := codeplug.Load(w.path)
	if err != nil {
		w.log.Error("Codeplug reload failed", logger.Error(err))
		return
	}
	w.log.Info("Codeplug reloaded",
		logger.String("path", w.path),
		logger.Int("zones", len(cp.Zones)))
	w.target.SetCodeplug(cp)
}
