package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Unwatch() error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	}
	return "unknown"
}

// FSWatcher watches one library root, recursively, and reports a single
// debounced change per burst of filesystem events.
type FSWatcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	filter   func(path string) bool
	logger   *slog.Logger

	mu       sync.Mutex
	root     string
	dirs     []string
	callback func(path string, event EventType)
	timer    *time.Timer
	pending  EventType

	done     chan struct{}
	stopOnce sync.Once
}

// NewFSWatcher starts the event loop. filter, if set, limits file events to
// matching paths; directory events always count.
func NewFSWatcher(debounce time.Duration, filter func(path string) bool, logger *slog.Logger) (*FSWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &FSWatcher{
		fsw:      fsw,
		debounce: debounce,
		filter:   filter,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch replaces the watched root with path and every non-hidden directory
// below it.
func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	if err := w.Unwatch(); err != nil {
		w.logger.Debug("unwatch failed", "error", err)
	}

	var dirs []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Debug("cannot watch directory", "path", p, "error", err)
			return nil
		}
		dirs = append(dirs, p)
		return nil
	})
	if err != nil {
		for _, d := range dirs {
			_ = w.fsw.Remove(d)
		}
		return err
	}

	w.mu.Lock()
	w.root = path
	w.dirs = dirs
	w.mu.Unlock()

	w.logger.Info("watching library", "root", path, "directories", len(dirs))
	return nil
}

// Unwatch drops the current root, if any.
func (w *FSWatcher) Unwatch() error {
	w.mu.Lock()
	dirs := w.dirs
	w.dirs = nil
	w.root = ""
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	var errs []error
	for _, d := range dirs {
		if err := w.fsw.Remove(d); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *FSWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

func (w *FSWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	if isHidden(filepath.Base(ev.Name)) {
		return
	}

	isDir := false
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
			if err := w.fsw.Add(ev.Name); err == nil {
				w.mu.Lock()
				w.dirs = append(w.dirs, ev.Name)
				w.mu.Unlock()
			}
		}
	}

	if !isDir && w.filter != nil && !w.filter(ev.Name) {
		// a removed directory can no longer be stat'ed
		removedDir := (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) && filepath.Ext(ev.Name) == ""
		if !removedDir {
			return
		}
	}

	var kind EventType
	switch {
	case ev.Has(fsnotify.Create):
		kind = EventCreate
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = EventDelete
	case ev.Has(fsnotify.Write):
		kind = EventModify
	default:
		return
	}

	w.schedule(kind)
}

func (w *FSWatcher) schedule(kind EventType) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.root == "" {
		return
	}
	w.pending = kind
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *FSWatcher) fire() {
	w.mu.Lock()
	root := w.root
	kind := w.pending
	cb := w.callback
	w.timer = nil
	w.mu.Unlock()

	if root == "" || cb == nil {
		return
	}
	w.logger.Debug("library changed", "root", root, "event", kind.String())
	cb(root, kind)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
