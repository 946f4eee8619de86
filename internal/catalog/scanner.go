package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner enumerates a directory handle for audio files.
type Scanner struct {
	maxDepth int
	logger   *slog.Logger
}

// NewScanner returns a Scanner. maxDepth caps how many directory levels below
// the root are visited; 0 means unlimited.
func NewScanner(maxDepth int, logger *slog.Logger) *Scanner {
	return &Scanner{maxDepth: maxDepth, logger: logger}
}

// Scan walks root recursively and returns every audio file found, sorted by
// display name. A root that cannot be enumerated fails the whole scan; any
// other unreadable entry is skipped.
func (s *Scanner) Scan(ctx context.Context, root DirectoryHandle) ([]LocalAudioRef, error) {
	entries, err := root.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root.Name(), err)
	}

	visited := make(map[string]bool)
	enterOnce(root, visited)

	var refs []LocalAudioRef
	if err := s.collect(ctx, entries, root.Name(), 0, visited, &refs); err != nil {
		return nil, err
	}

	SortRefs(refs)
	return refs, nil
}

func (s *Scanner) collect(ctx context.Context, entries []Entry, parent string, depth int, visited map[string]bool, out *[]LocalAudioRef) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := parent + "/" + entry.Name

		switch entry.Kind {
		case KindFile:
			if entry.File == nil || !IsAudioFile(entry.Name) {
				continue
			}
			*out = append(*out, LocalAudioRef{
				Handle: entry.File,
				Name:   entry.Name,
				Path:   path,
				Size:   entry.File.Size(),
			})

		case KindDirectory:
			if entry.Dir == nil || strings.HasPrefix(entry.Name, ".") {
				continue
			}
			if s.maxDepth > 0 && depth+1 >= s.maxDepth {
				continue
			}
			if !enterOnce(entry.Dir, visited) {
				if s.logger != nil {
					s.logger.Debug("skipping already visited directory", "path", path)
				}
				continue
			}
			children, err := entry.Dir.Entries(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if s.logger != nil {
					s.logger.Debug("skipping unreadable directory", "path", path, "error", err)
				}
				continue
			}
			if err := s.collect(ctx, children, path, depth+1, visited, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// enterOnce records dir by its symlink-free location and reports whether it
// was seen for the first time. Links back to an ancestor or to a folder
// already walked are entered once. Handles that do not live on disk are
// always entered.
func enterOnce(dir DirectoryHandle, visited map[string]bool) bool {
	resolved, err := filepath.EvalSymlinks(dir.Path())
	if err != nil {
		return true
	}
	if visited[resolved] {
		return false
	}
	visited[resolved] = true
	return true
}

// SortRefs orders refs by display name, then by path for equal names.
func SortRefs(refs []LocalAudioRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].Path < refs[j].Path
	})
}

// FilesFromPaths builds refs for individually selected files. It is the
// fallback when a whole folder cannot be granted. Non-audio and unreadable
// paths are skipped.
func FilesFromPaths(paths []string) []LocalAudioRef {
	refs := make([]LocalAudioRef, 0, len(paths))
	for _, p := range paths {
		if !IsAudioFile(p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		f, err := NewOSFile(abs)
		if err != nil {
			continue
		}
		refs = append(refs, LocalAudioRef{
			Handle: f,
			Name:   f.Name(),
			Path:   SelectedPrefix + f.Name(),
			Size:   f.Size(),
		})
	}
	SortRefs(refs)
	return refs
}
