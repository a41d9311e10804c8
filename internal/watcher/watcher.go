package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/alucardeht/chrome-bridge/internal/logger"
)

var log = logger.ForComponent("watcher")

// Watcher observes the settings directory and reports debounced change
// batches. It exists so that out-of-band edits to the settings store
// (another process, a manual sqlite session) reach the daemon the same
// way control-socket writes do.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	dir       string
	mu        sync.Mutex
	running   bool
	done      chan struct{}
}

func New(config Config, dir string, onFlush func([]ChangeEvent)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:    config,
		fsWatcher: fsWatcher,
		dir:       dir,
		done:      make(chan struct{}),
	}
	w.debouncer = NewDebouncer(config.DebounceWindow, config.MaxBatchSize, onFlush)

	return w, nil
}

func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.running = true
	go w.loop()

	log.Info("watching settings directory", "dir", w.dir)
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			log.Debug("settings change observed", "path", event.Name, "op", event.Op.String())
			w.debouncer.Add(ChangeEvent{
				Path: event.Name,
				Op:   event.Op.String(),
				At:   time.Now(),
			})
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.config.IgnorePatterns {
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false

	close(w.done)
	w.fsWatcher.Close()
	w.debouncer.Stop()
}
