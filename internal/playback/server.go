package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

func ContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Server streams locator-backed media with Range support.
type Server struct {
	locators *Locators
	logger   *slog.Logger
}

func NewServer(locators *Locators, logger *slog.Logger) *Server {
	return &Server{locators: locators, logger: logger}
}

// ServeLocator writes the file behind token, or 404 if it was revoked.
func (s *Server) ServeLocator(w http.ResponseWriter, r *http.Request, token string) error {
	loc, err := s.locators.Resolve(token)
	if errors.Is(err, ErrUnknownLocator) {
		http.Error(w, "media not found", http.StatusNotFound)
		return nil
	}
	return s.ServeFile(w, r, loc.FilePath)
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", ContentType(filePath))
	w.Header().Set("Cache-Control", "no-store")

	byteRange, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		byteRange = nil
	case err != nil:
		return err
	}

	if byteRange == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, file, size)
		}
		return nil
	}

	if _, err := file.Seek(byteRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(byteRange.ContentLength(), 10))
	w.Header().Set("Content-Range", byteRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		s.copy(w, file, byteRange.ContentLength())
	}
	return nil
}

func (s *Server) copy(w io.Writer, r io.Reader, n int64) {
	if _, err := io.CopyN(w, r, n); err != nil && s.logger != nil {
		// client went away mid-stream; nothing to report to it
		s.logger.Debug("media stream interrupted", "error", err)
	}
}
