// Package notify watches the personas directory and re-imports persona
// documents as they are created or edited, so persona changes reach
// personality memory without a restart.
package notify

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileImporter imports a single persona document.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (int, error)
}

// Watcher watches a personas directory and imports changed .md files.
// Editors emit bursts of create/write events per save; imports are debounced
// per path so each save triggers one import.
type Watcher struct {
	dir      string
	debounce time.Duration
	importer FileImporter
	watcher  *fsnotify.Watcher
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a persona watcher. A non-positive debounce defaults to
// one second.
func NewWatcher(dir string, debounce time.Duration, importer FileImporter) *Watcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		importer: importer,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
}

// Start begins watching. Call Stop to clean up.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("notify: watching %s for persona changes (debounce %v)", w.dir, w.debounce)
	return nil
}

// Stop shuts down the watcher and cancels pending imports.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(evt.Name), ".md") {
				continue
			}
			w.schedule(evt.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer for a path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if _, err := w.importer.ImportFile(context.Background(), path); err != nil {
			log.Printf("notify: import of %s failed: %v", filepath.Base(path), err)
		}
	})
}
