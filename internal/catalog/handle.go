package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUserCancelled is returned by a Picker when the operator dismissed
	// the selection. Callers treat it as a clean no-op.
	ErrUserCancelled = errors.New("directory selection cancelled")

	ErrNotDirectory = errors.New("path is not a directory")

	// ErrPermissionDenied is returned when a picked root cannot be read.
	ErrPermissionDenied = errors.New("read permission denied")

	// ErrDirectoryAccessUnsupported means no picker is available; only
	// file-by-file selection works.
	ErrDirectoryAccessUnsupported = errors.New("directory access not supported")
)

// Permission is the tri-state answer of a read permission query.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// Entry is one child of a DirectoryHandle. Exactly one of File and Dir is set,
// matching Kind.
type Entry struct {
	Name string
	Kind EntryKind
	File FileHandle
	Dir  DirectoryHandle
}

// FileHandle is an opaque reference to a readable file.
type FileHandle interface {
	Name() string
	// Path is the location the playback side reads bytes from.
	Path() string
	Size() int64
}

// DirectoryHandle is an opaque, permission-scoped reference to a folder.
type DirectoryHandle interface {
	Name() string
	Path() string
	Entries(ctx context.Context) ([]Entry, error)
	QueryPermission(ctx context.Context) (Permission, error)
}

// Picker yields a root directory chosen by the operator, or ErrUserCancelled.
type Picker interface {
	PickDirectory(ctx context.Context) (DirectoryHandle, error)
}

// PathPicker is the agent's picker: the UI sends the folder path it collected
// from the operator. An empty path means the dialog was dismissed.
type PathPicker struct {
	Path string
}

func (p PathPicker) PickDirectory(ctx context.Context) (DirectoryHandle, error) {
	path := strings.TrimSpace(p.Path)
	if path == "" {
		return nil, ErrUserCancelled
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	return NewOSDirectory(absPath), nil
}

// OSDirectory is a DirectoryHandle backed by the local filesystem.
type OSDirectory struct {
	path string
}

func NewOSDirectory(path string) *OSDirectory {
	return &OSDirectory{path: filepath.Clean(path)}
}

func (d *OSDirectory) Name() string {
	return filepath.Base(d.path)
}

func (d *OSDirectory) Path() string {
	return d.path
}

func (d *OSDirectory) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		full := filepath.Join(d.path, de.Name())

		info, err := os.Stat(full) // follows symlinks
		if err != nil {
			continue
		}

		switch {
		case info.IsDir():
			entries = append(entries, Entry{Name: de.Name(), Kind: KindDirectory, Dir: NewOSDirectory(full)})
		case info.Mode().IsRegular():
			entries = append(entries, Entry{Name: de.Name(), Kind: KindFile, File: &OSFile{path: full, size: info.Size()}})
		}
	}
	return entries, nil
}

// QueryPermission maps filesystem state to the tri-state permission model.
// A root that has disappeared (unmounted drive, renamed folder) answers
// PermissionPrompt: it needs the operator to pick it again.
func (d *OSDirectory) QueryPermission(ctx context.Context) (Permission, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PermissionPrompt, nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return PermissionDenied, nil
		}
		return "", err
	}
	if !info.IsDir() {
		return PermissionPrompt, nil
	}

	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return PermissionDenied, nil
		}
		return "", err
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); err != nil && err != io.EOF {
		if errors.Is(err, fs.ErrPermission) {
			return PermissionDenied, nil
		}
		return "", err
	}
	return PermissionGranted, nil
}

// OSFile is a FileHandle backed by the local filesystem.
type OSFile struct {
	path string
	size int64
}

func NewOSFile(path string) (*OSFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return &OSFile{path: path, size: info.Size()}, nil
}

func (f *OSFile) Name() string {
	return filepath.Base(f.path)
}

func (f *OSFile) Path() string {
	return f.path
}

func (f *OSFile) Size() int64 {
	return f.size
}
