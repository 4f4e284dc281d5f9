package watch

// Recursive fsnotify watcher. Directories created after Start are added as
// they appear; directories matched by SkipDir are never watched.

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

const eventBuffer = 64

type Watcher struct {
	dir            string
	ignorePatterns []string

	events  chan Event
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func New(dir string, ignorePatterns []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:            dir,
		ignorePatterns: ignorePatterns,
		events:         make(chan Event, eventBuffer),
		logger:         logger,
		stopped:        make(chan struct{}),
	}
}

// Events is closed after Stop, or when the underlying notifier fails.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify")
	}
	w.fsw = fsw

	n, err := w.addTree(w.dir)
	if err != nil {
		fsw.Close()
		return errors.Wrapf(err, "watch %s", w.dir)
	}
	w.logger.Info("watch", "dir", w.dir, "dirs", n)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.events)
		w.run()
	}()
	return nil
}

func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopped)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
	w.wg.Wait()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopped:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skipDir(ev.Name) {
					if _, err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watch add failed", "dir", ev.Name, "error", err)
					}
				}
			}
			w.forward(Convert(ev))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// forward never blocks the fsnotify reader; a full buffer drops the event.
func (w *Watcher) forward(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.logger.Debug("watch event dropped", "paths", ev.Paths)
	}
}

func (w *Watcher) addTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return errors.Wrapf(err, "add %s", path)
		}
		count++
		return nil
	})
	return count, err
}

func (w *Watcher) skipDir(path string) bool {
	return SkipDir(path, w.ignorePatterns)
}

// SkipDir reports whether the directory at path is left out of both the
// watch set and the upload bundle: hidden directories, node_modules, vendor
// and anything matching one of patterns.
func SkipDir(path string, patterns []string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
		return true
	}
	return MatchesAny(path, patterns)
}

// Convert maps an fsnotify event onto an Event. Create wins over Write when
// both bits are set.
func Convert(ev fsnotify.Event) Event {
	kind := Other
	switch {
	case ev.Has(fsnotify.Create):
		kind = Created
	case ev.Has(fsnotify.Write):
		kind = Modified
	}
	return Event{Kind: kind, Paths: []string{ev.Name}}
}

func MatchesAny(path string, patterns []string) bool {
	name := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
