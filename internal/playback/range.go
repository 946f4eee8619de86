package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range of a media file.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single-range "Range: bytes=" header against a file of
// size bytes. An empty header yields nil, nil. Only the first range of a
// multi-range request is honoured; audio elements never ask for more.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}

	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(set, ","); multi {
		set = first
	}
	set = strings.TrimSpace(set)

	startStr, endStr, ok := strings.Cut(set, "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if startStr == "" {
		return suffixRange(endStr, size)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, ErrInvalidRange
		}
	}

	if start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}

// suffixRange handles "bytes=-N": the last N bytes of the file.
func suffixRange(lengthStr string, size int64) (*Range, error) {
	n, err := strconv.ParseInt(lengthStr, 10, 64)
	if err != nil || n <= 0 {
		return nil, ErrInvalidRange
	}
	if size == 0 {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: max(size-n, 0), End: size - 1}, nil
}
