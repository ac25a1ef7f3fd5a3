package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// watchDebounce collapses the write+chmod+rename burst of one Save.
const watchDebounce = 100 * time.Millisecond

// ChangePublisher receives config change notifications.
// *events.EventBus satisfies it.
type ChangePublisher interface {
	PublishConfigChanged(path string)
}

// Watcher publishes a change whenever the config file is written,
// created, or replaced by rename.
type Watcher struct {
	path string
	pub  ChangePublisher
	fsw  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the directory containing path. The directory is
// watched rather than the file because Save replaces the file by rename.
func NewWatcher(path string, pub ChangePublisher) (*Watcher, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: filepath.Clean(path), pub: pub, fsw: fsw}, nil
}

// Run dispatches events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() {
		log.Debug().Str("path", w.path).Msg("config changed")
		w.pub.PublishConfigChanged(w.path)
	})
}
