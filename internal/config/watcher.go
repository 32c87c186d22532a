package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/hwestman/personabot/internal/logging"
)

// Watcher fires onChange when the config file is rewritten. It watches
// the parent directory because editors and AtomicWrite replace the file
// by rename, which would orphan a watch on the file itself.
type Watcher struct {
	watcher  *fsnotify.Watcher
	base     string
	debounce time.Duration
	onChange func()
	stopCh   chan struct{}

	mu           sync.Mutex
	pendingTimer *time.Timer
}

// Watch starts watching path. onChange runs on a watcher goroutine,
// debounced so an editor's write burst triggers a single reload.
func Watch(path string, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		base:     filepath.Base(path),
		debounce: 500 * time.Millisecond,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	L_debug("config: watching for changes", "path", path)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.base {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	L_debug("config: file changed", "op", event.Op.String())
	w.triggerReload()
}

func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.pendingTimer = nil
		w.mu.Unlock()

		L_info("config: changed on disk, reloading")
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Stop halts the watcher and cancels any pending reload.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
