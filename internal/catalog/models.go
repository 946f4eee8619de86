package catalog

import (
	"path/filepath"
	"strings"
)

// LocalAudioRef is one audio file discovered under a user-chosen root.
// Path is the root-relative display path ("root/sub/file.mp3") and is the
// stable key for the file within a session.
type LocalAudioRef struct {
	Handle FileHandle `json:"-"`
	Name   string     `json:"name"`
	Path   string     `json:"path"`
	Size   int64      `json:"size"`
}

// SelectedPrefix is the display path prefix for files picked one by one
// instead of through a directory.
const SelectedPrefix = "/selected/"

var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
}

func IsAudioFile(filename string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// TotalSize sums the byte size of refs.
func TotalSize(refs []LocalAudioRef) uint64 {
	var total uint64
	for _, r := range refs {
		if r.Size > 0 {
			total += uint64(r.Size)
		}
	}
	return total
}
