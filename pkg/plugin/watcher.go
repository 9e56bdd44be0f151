package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 250 * time.Millisecond

// DefaultRetryInterval paces attempts to watch a directory that does not exist yet.
const DefaultRetryInterval = 5 * time.Second

// Watcher triggers a reload when script files in a directory change.
type Watcher struct {
	dir        string
	extensions []string
	debounce   time.Duration
	retry      time.Duration
	reload     func(context.Context)
	log        *slog.Logger
}

// NewWatcher watches dir and calls reload after changes to files with one of
// the given extensions settle for debounce.
func NewWatcher(dir string, extensions []string, debounce time.Duration, reload func(context.Context), log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:        filepath.Clean(dir),
		extensions: extensions,
		debounce:   debounce,
		retry:      DefaultRetryInterval,
		reload:     reload,
		log:        log.With("component", "plugin.watcher"),
	}
}

// Run blocks until ctx ends. A missing directory is polled until it appears,
// then reloaded at once; a directory that disappears is polled again.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	retry := time.NewTicker(w.retry)
	defer retry.Stop()

	watching := w.add(fsw, true)
	if watching {
		retry.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
			if watching || !w.add(fsw, false) {
				continue
			}
			watching = true
			retry.Stop()
			timer.Reset(w.debounce)
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.lost(event) {
				w.log.Warn("Plugin directory went away, waiting for it to return", "dir", w.dir)
				watching = false
				retry.Reset(w.retry)
				timer.Reset(w.debounce)
				continue
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("Plugin file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				timer.Reset(w.debounce)
			}
			w.log.Warn("Plugin watcher error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) add(fsw *fsnotify.Watcher, first bool) bool {
	if err := fsw.Add(w.dir); err != nil {
		if first {
			w.log.Warn("Plugin directory not watchable yet, retrying", "dir", w.dir, "interval", w.retry, "error", err)
		} else {
			w.log.Debug("Plugin directory still unavailable", "dir", w.dir, "error", err)
		}
		return false
	}
	w.log.Info("Watching plugin directory", "dir", w.dir)
	return true
}

// lost reports whether event removed the watched directory itself.
func (w *Watcher) lost(event fsnotify.Event) bool {
	return filepath.Clean(event.Name) == w.dir && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename))
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(event.Name)))
}
