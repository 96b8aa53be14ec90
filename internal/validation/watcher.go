package validation

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"artificer/internal/logging"
)

// debounceWindow collapses editor write bursts into one reload.
const debounceWindow = 500 * time.Millisecond

// RuleWatcher hot-reloads a custom rule file when it changes on disk.
// The parent directory is watched so atomic save-and-rename editors
// still trigger events.
type RuleWatcher struct {
	validator *Validator
	path      string
	watcher   *fsnotify.Watcher

	mu       sync.Mutex
	debounce map[string]time.Time

	reloads  int64
	failures int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRuleWatcher loads the rule file once, then watches it for changes.
func NewRuleWatcher(v *Validator, path string) (*RuleWatcher, error) {
	if err := v.LoadCustomRules(path); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &RuleWatcher{
		validator: v,
		path:      filepath.Clean(path),
		watcher:   fsw,
		debounce:  make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go w.loop()
	logging.Validation("watching rule file %s for changes", path)
	return w, nil
}

func (w *RuleWatcher) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.debounce[w.path] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.ValidationWarn("rule watcher error: %v", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *RuleWatcher) flushPending() {
	w.mu.Lock()
	stamp, pending := w.debounce[w.path]
	if pending && time.Since(stamp) >= debounceWindow {
		delete(w.debounce, w.path)
	} else {
		pending = false
	}
	w.mu.Unlock()

	if !pending {
		return
	}
	if err := w.validator.LoadCustomRules(w.path); err != nil {
		atomic.AddInt64(&w.failures, 1)
		logging.ValidationWarn("rule reload failed, keeping previous rules: %v", err)
		return
	}
	atomic.AddInt64(&w.reloads, 1)
	logging.Validation("reloaded custom rules from %s", w.path)
}

// Stats reports successful reloads and failed reload attempts since start.
func (w *RuleWatcher) Stats() (reloads, failures int64) {
	return atomic.LoadInt64(&w.reloads), atomic.LoadInt64(&w.failures)
}

// Close stops the watch loop and releases the fsnotify watcher.
func (w *RuleWatcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}
