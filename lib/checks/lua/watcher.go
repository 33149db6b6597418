package lua

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads scripts of a Checker when files in the plugins directory change.
// Changes are debounced, a file is reloaded only after it has been quiet for the debounce period.
type Watcher struct {
	checker  *Checker
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // file name -> time of the last change
}

// NewWatcher makes a watcher for the plugins directory
func NewWatcher(checker *Checker, dir string) *Watcher {
	return &Watcher{checker: checker, dir: dir, debounce: 500 * time.Millisecond, pending: map[string]time.Time{}}
}

// Run watches the directory until the context is canceled
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("plugins directory %s is not accessible: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			log.Printf("[WARN] failed to close file watcher: %v", err)
		}
	}()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch plugins directory: %w", err)
	}
	log.Printf("[INFO] watching lua plugins directory %s", w.dir)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopped watching lua plugins directory %s", w.dir)
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.track(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] plugins watcher error: %v", err)
		case <-ticker.C:
			w.flush(time.Now())
		}
	}
}

// track records a change of a lua file
func (w *Watcher) track(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ".lua" {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[ev.Name] = time.Now()
		w.mu.Unlock()
	}
}

// flush reloads or unloads files quiet for the debounce period
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for file, ts := range w.pending {
		if now.Sub(ts) < w.debounce {
			continue
		}
		delete(w.pending, file)
		if _, err := os.Stat(file); os.IsNotExist(err) {
			log.Printf("[INFO] lua script %s removed", file)
			w.checker.Unload(ScriptName(file))
			continue
		}
		if err := w.checker.ReloadScript(file); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
}
