package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
)

// StoredDirectory is the persisted form of a root directory handle.
type StoredDirectory struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// HandleStore persists the single root directory handle under the fixed key
// "directory". GetDirectory returns nil, nil when nothing is stored.
type HandleStore interface {
	GetDirectory(ctx context.Context) (*StoredDirectory, error)
	PutDirectory(ctx context.Context, dir StoredDirectory) error
	ClearHandles(ctx context.Context) error
}

// Opener turns a stored handle back into a live DirectoryHandle.
type Opener func(StoredDirectory) DirectoryHandle

func OpenOSDirectory(dir StoredDirectory) DirectoryHandle {
	return NewOSDirectory(dir.Path)
}

// Snapshot is a read-only copy of the library state.
type Snapshot struct {
	Files      []LocalAudioRef `json:"files"`
	IsScanning bool            `json:"is_scanning"`
	RootName   string          `json:"root_name,omitempty"`
	TotalBytes uint64          `json:"total_bytes"`
}

// Library owns the current list of local audio files, the root they came
// from and the scanning flag. A scan either replaces the whole list or leaves
// it untouched.
type Library struct {
	scanner  *Scanner
	handles  HandleStore
	open     Opener
	logger   *slog.Logger
	onChange func()

	// scanMu serialises scans so two folders never race to populate files.
	scanMu sync.Mutex

	mu       sync.Mutex
	files    []LocalAudioRef
	root     DirectoryHandle
	scanning bool
}

type LibraryConfig struct {
	Scanner     *Scanner
	HandleStore HandleStore
	Opener      Opener
	Logger      *slog.Logger
	OnChange    func()
}

func NewLibrary(cfg LibraryConfig) *Library {
	open := cfg.Opener
	if open == nil {
		open = OpenOSDirectory
	}
	scanner := cfg.Scanner
	if scanner == nil {
		scanner = NewScanner(0, cfg.Logger)
	}
	return &Library{
		scanner:  scanner,
		handles:  cfg.HandleStore,
		open:     open,
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
	}
}

// LoadDirectory asks picker for a root, remembers it and scans it.
// ErrUserCancelled is returned unchanged so callers can swallow it.
func (l *Library) LoadDirectory(ctx context.Context, picker Picker) error {
	if picker == nil {
		return ErrDirectoryAccessUnsupported
	}

	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	l.setScanning(true)
	defer l.setScanning(false)

	root, err := picker.PickDirectory(ctx)
	if err != nil {
		return err
	}

	perm, err := root.QueryPermission(ctx)
	if err != nil {
		return fmt.Errorf("failed to query permission: %w", err)
	}
	if perm != PermissionGranted {
		return ErrPermissionDenied
	}

	if l.handles != nil {
		if err := l.handles.PutDirectory(ctx, StoredDirectory{Path: root.Path(), Name: root.Name()}); err != nil {
			l.logWarn("failed to persist directory handle", "error", err)
		}
	}

	return l.scanAndReplace(ctx, root)
}

// Rehydrate reuses the persisted root if read permission is still granted.
// Any other permission answer clears the stored handle; the operator is never
// prompted.
func (l *Library) Rehydrate(ctx context.Context) error {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	l.setScanning(true)
	defer l.setScanning(false)

	if l.handles == nil {
		return nil
	}

	stored, err := l.handles.GetDirectory(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored directory: %w", err)
	}
	if stored == nil {
		return nil
	}

	root := l.open(*stored)
	perm, err := root.QueryPermission(ctx)
	if err != nil {
		l.logWarn("permission query failed", "path", stored.Path, "error", err)
		perm = PermissionDenied
	}

	if perm != PermissionGranted {
		l.logInfo("stored directory no longer usable, forgetting it", "path", stored.Path, "permission", perm)
		if err := l.handles.ClearHandles(ctx); err != nil {
			l.logWarn("failed to clear stored directory", "error", err)
		}
		return nil
	}

	return l.scanAndReplace(ctx, root)
}

// Rescan re-reads the current root, if any.
func (l *Library) Rescan(ctx context.Context) error {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	root := l.Root()
	if root == nil {
		return nil
	}

	l.setScanning(true)
	defer l.setScanning(false)

	return l.scanAndReplace(ctx, root)
}

// SelectFiles replaces the library with individually chosen files and drops
// the current root. It returns how many files were accepted.
func (l *Library) SelectFiles(paths []string) int {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	refs := FilesFromPaths(paths)

	l.mu.Lock()
	l.files = refs
	l.root = nil
	l.mu.Unlock()

	l.notify()
	return len(refs)
}

func (l *Library) scanAndReplace(ctx context.Context, root DirectoryHandle) error {
	refs, err := l.scanner.Scan(ctx, root)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.files = refs
	l.root = root
	l.mu.Unlock()

	l.logInfo("library scanned",
		"root", root.Name(),
		"files", len(refs),
		"size", humanize.Bytes(TotalSize(refs)),
	)
	l.notify()
	return nil
}

// Files returns a copy of the current list.
func (l *Library) Files() []LocalAudioRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LocalAudioRef, len(l.files))
	copy(out, l.files)
	return out
}

// Find looks a file up by its display path.
func (l *Library) Find(path string) (LocalAudioRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.files {
		if f.Path == path {
			return f, true
		}
	}
	return LocalAudioRef{}, false
}

func (l *Library) Root() DirectoryHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root
}

func (l *Library) Scanning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scanning
}

func (l *Library) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	files := make([]LocalAudioRef, len(l.files))
	copy(files, l.files)
	snap := Snapshot{
		Files:      files,
		IsScanning: l.scanning,
		TotalBytes: TotalSize(files),
	}
	if l.root != nil {
		snap.RootName = l.root.Name()
	}
	return snap
}

func (l *Library) setScanning(v bool) {
	l.mu.Lock()
	l.scanning = v
	l.mu.Unlock()
	l.notify()
}

func (l *Library) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

func (l *Library) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Library) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

// IsCancelled reports whether err is the picker's cancellation outcome.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}
