package playback

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeClip(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLocators_CreateResolveRevoke(t *testing.T) {
	clip := writeClip(t, "cue.mp3", "0123456789")
	locs := NewLocators("http://127.0.0.1:8787", nil)

	url, err := locs.Create(clip)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(url, "http://127.0.0.1:8787/media/") {
		t.Errorf("url = %q", url)
	}
	if locs.Live() != 1 {
		t.Errorf("Live() = %d, want 1", locs.Live())
	}

	loc, err := locs.Resolve(tokenFromURL(url))
	if err != nil || loc.FilePath != clip {
		t.Fatalf("Resolve() = %+v, %v", loc, err)
	}

	if !locs.Revoke(url) {
		t.Error("first Revoke() = false, want true")
	}
	if locs.Revoke(url) {
		t.Error("second Revoke() = true, want false")
	}
	if locs.Live() != 0 {
		t.Errorf("Live() = %d, want 0", locs.Live())
	}
	if _, err := locs.Resolve(loc.Token); err != ErrUnknownLocator {
		t.Errorf("Resolve() after revoke err = %v", err)
	}
}

func TestLocators_CreateMissingFile(t *testing.T) {
	locs := NewLocators("", nil)
	if _, err := locs.Create(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if locs.Live() != 0 {
		t.Errorf("Live() = %d, want 0", locs.Live())
	}
}

func TestServer_ServeLocator(t *testing.T) {
	clip := writeClip(t, "cue.mp3", "0123456789")
	locs := NewLocators("", nil)
	url, err := locs.Create(clip)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(locs, nil)
	token := strings.TrimPrefix(url, MediaPrefix)

	t.Run("full", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		if err := srv.ServeLocator(rec, req, token); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(rec.Body)
		if string(body) != "0123456789" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("range", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Range", "bytes=2-5")
		if err := srv.ServeLocator(rec, req, token); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusPartialContent {
			t.Errorf("status = %d, want 206", rec.Code)
		}
		if cr := rec.Header().Get("Content-Range"); cr != "bytes 2-5/10" {
			t.Errorf("Content-Range = %q", cr)
		}
		if rec.Body.String() != "2345" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Range", "bytes=50-")
		if err := srv.ServeLocator(rec, req, token); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Errorf("status = %d, want 416", rec.Code)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		locs.Revoke(url)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		if err := srv.ServeLocator(rec, req, token); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp3":  "audio/mpeg",
		"a.FLAC": "audio/flac",
		"a.m4a":  "audio/mp4",
		"a.zzcue": "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
