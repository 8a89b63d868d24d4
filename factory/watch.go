/*
watch.go - Hot reload of the mappings file

PURPOSE:
  Alias edits land in the mappings file from the admin surface and must
  take effect on the NEXT sync without restarting the process. The watcher
  observes the file, debounces editor write bursts, re-parses, and swaps
  the registry catalog atomically via Registry.Replace.

FAILURE MODEL:
  A reload that fails to parse or validate leaves the previous catalog in
  place and logs the error. A half-edited file must never take down a
  running sync.
*/
package factory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/classly/reconcile-engine/mapping"
)

// debouncePeriod collapses the rapid write/rename bursts editors and
// atomic-save tools produce into one reload.
const debouncePeriod = 500 * time.Millisecond

// Watcher hot-reloads a mappings file into a registry.
type Watcher struct {
	path     string
	registry *mapping.Registry
	fs       *fsnotify.Watcher
}

// NewWatcher loads the file once (so startup fails fast on a bad catalog)
// and begins watching it.
func NewWatcher(path string, registry *mapping.Registry) (*Watcher, error) {
	mappings, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := registry.Replace(mappings); err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fs.Add(path); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watching mappings file %s: %w", path, err)
	}
	return &Watcher{path: path, registry: registry, fs: fs}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.fs.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debouncePeriod, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("mappings watcher error: %v", err)
		}
	}
}

// reload re-parses the file and swaps the catalog. On failure the previous
// catalog stays live.
func (w *Watcher) reload() {
	mappings, err := LoadFile(w.path)
	if err != nil {
		log.Printf("mappings reload skipped, file not loadable: %v", err)
		return
	}
	if err := w.registry.Replace(mappings); err != nil {
		log.Printf("mappings reload skipped, catalog invalid: %v", err)
		return
	}
	log.Printf("mappings reloaded: %d tables from %s", len(mappings), w.path)
}
