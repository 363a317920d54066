// Package watch re-triggers the matrix when the tool's sources change.
// Directories are watched recursively; rapid bursts of events (editors
// often write several times per save) are coalesced into one trigger.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Directories that never trigger a run. target/ holds build output, so
// watching it would re-trigger on every build.
var ignoreDirs = map[string]bool{
	".git":    true,
	".idea":   true,
	".vscode": true,
	"target":  true,
}

// Editor and build droppings.
var ignoreSuffixes = []string{".swp", ".swx", "~", ".tmp", ".DS_Store"}

// Watcher watches a set of files and directories.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	dirs  []string        // recursive roots
	files map[string]bool // individually watched files
}

// New starts watching paths. Relative paths are resolved against root.
// Missing paths are skipped with a warning so that an optional build.rs
// does not prevent watching src/.
func New(root string, paths []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{fw: fw, debounce: debounce, logger: logger, files: make(map[string]bool)}

	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn("watch path unavailable", "path", p, "error", err)
			continue
		}
		if info.IsDir() {
			if err := w.addTree(p); err != nil {
				fw.Close()
				return nil, err
			}
			w.dirs = append(w.dirs, p)
			continue
		}
		// Watch the parent so that editors replacing the file by rename
		// are still observed.
		if err := fw.Add(filepath.Dir(p)); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		w.files[p] = true
	}
	if len(w.dirs) == 0 && len(w.files) == 0 {
		fw.Close()
		return nil, fmt.Errorf("none of the watch paths exist: %s", strings.Join(paths, ", "))
	}
	return w, nil
}

// addTree adds dir and every non-ignored subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if ignoreDirs[d.Name()] && path != dir {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers debounced batches of changed paths to onChange until ctx
// is cancelled. onChange runs on the watcher goroutine, so batches never
// overlap; changes made while it runs form the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && w.underDir(event.Name) {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("could not watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			onChange(ctx, changed)
		}
	}
}

// Close stops watching and releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		return false
	}
	if shouldIgnorePath(event.Name) {
		return false
	}
	return w.files[event.Name] || w.underDir(event.Name)
}

func (w *Watcher) underDir(path string) bool {
	for _, d := range w.dirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnorePath reports whether path should never trigger a run.
func shouldIgnorePath(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if ignoreDirs[part] {
			return true
		}
	}
	return false
}
