package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuedeck/cuedeck-agent/internal/engine"
	"github.com/cuedeck/cuedeck-agent/internal/engine/enginetest"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
	"github.com/cuedeck/cuedeck-agent/internal/playback"
	"github.com/cuedeck/cuedeck-agent/internal/production"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
)

const testToken = "test-token-0123456789"

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) GetConfig(ctx context.Context, key string) (string, error) {
	if key != AuthTokenKey {
		return "", nil
	}
	return f.token, f.err
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, query string) ([]freesound.Result, error) {
	return []freesound.Result{{ID: 42, Name: query, Previews: freesound.Previews{HQMP3: "https://cdn/42.mp3"}}}, nil
}

type testAPI struct {
	handler  http.Handler
	store    *production.Store
	locators *playback.Locators
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	locators := playback.NewLocators("", logger)

	store := production.New(production.Config{
		Production: &timeline.Production{Name: "Show", Moments: []timeline.Moment{
			{ID: "m1", Title: "One", DurationSeconds: 30},
			{ID: "m2", Title: "Two"},
			{ID: "m3", Title: "Three"},
		}},
		Factory:  &enginetest.Factory{},
		Prober:   &enginetest.Prober{},
		Locators: locators,
		Searcher: fakeSearcher{},
		Logger:   logger,
	})
	t.Cleanup(func() { _ = store.Close() })

	doctor := engine.NewDoctor("ffplay", "ffprobe", func(ctx context.Context, binary string) engine.DepInfo {
		return engine.DepInfo{Available: true, Path: "/usr/bin/" + binary}
	}, logger)

	cfg := ServerConfig{
		Store:     store,
		Media:     playback.NewServer(locators, logger),
		Tokens:    fakeTokens{token: testToken},
		Doctor:    doctor,
		Logger:    logger,
		StartTime: time.Now(),
		Version:   "test",
	}
	return &testAPI{handler: NewRouter(cfg), store: store, locators: locators}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func writeAudioDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("0123456789"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestHealth_NoAuth(t *testing.T) {
	a := newTestAPI(t)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStatus_IncludesEngineAndLibrary(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/status", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	body := decodeJSONBody(t, rr)
	if body["production"] != "Show" || body["library_size"] != "0 B" {
		t.Errorf("unexpected status: %v", body)
	}
	eng, ok := body["engine"].(map[string]interface{})
	if !ok || eng["can_play"] != true {
		t.Errorf("engine capabilities missing: %v", body["engine"])
	}
}

func TestTimelineRoutes(t *testing.T) {
	a := newTestAPI(t)

	if rr := a.do(t, http.MethodPost, "/timeline/start", nil); rr.Code != http.StatusOK {
		t.Fatalf("start = %d", rr.Code)
	}
	rr := a.do(t, http.MethodPost, "/timeline/goto", map[string]int{"index": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("goto = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["current_moment_index"] != float64(2) || body["is_playing"] != true {
		t.Errorf("unexpected timeline: %v", body)
	}

	if rr := a.do(t, http.MethodPost, "/timeline/goto", map[string]any{}); rr.Code != http.StatusBadRequest {
		t.Errorf("goto without index = %d, want 400", rr.Code)
	}

	a.do(t, http.MethodPost, "/timeline/previous", nil)
	if got := a.store.Snapshot().Timeline.CurrentMomentIndex; got != 1 {
		t.Errorf("after previous index = %d, want 1", got)
	}
	a.do(t, http.MethodPost, "/timeline/stop", nil)
	if got := a.store.Snapshot().Timeline; got.IsPlaying || got.CurrentMomentIndex != 0 {
		t.Errorf("stop did not reset: %+v", got)
	}
}

func TestLibraryAndPlayerRoutes(t *testing.T) {
	a := newTestAPI(t)
	dir := writeAudioDir(t, "b.mp3", "a.mp3", "readme.txt")

	rr := a.do(t, http.MethodPost, "/library/directory", DirectoryRequest{Path: dir})
	if rr.Code != http.StatusOK {
		t.Fatalf("directory = %d: %s", rr.Code, rr.Body)
	}
	files := a.store.Library().Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	rr = a.do(t, http.MethodPost, "/player/load", LoadTrackRequest{Path: files[0].Path})
	if rr.Code != http.StatusOK {
		t.Fatalf("load = %d: %s", rr.Code, rr.Body)
	}

	rr = a.do(t, http.MethodPost, "/player/volume", map[string]float64{"volume": 1.7})
	if body := decodeJSONBody(t, rr); body["volume"] != float64(1) {
		t.Errorf("volume not clamped: %v", body["volume"])
	}

	rr = a.do(t, http.MethodPost, "/player/stop", nil)
	body := decodeJSONBody(t, rr)
	if body["current_track"] == nil || body["is_playing"] != false {
		t.Errorf("stop should keep the track: %v", body)
	}

	if rr := a.do(t, http.MethodPost, "/player/load", LoadTrackRequest{Path: "missing.mp3"}); rr.Code != http.StatusNotFound {
		t.Errorf("unknown track = %d, want 404", rr.Code)
	}
	if rr := a.do(t, http.MethodPost, "/player/seek", map[string]any{}); rr.Code != http.StatusBadRequest {
		t.Errorf("seek without seconds = %d, want 400", rr.Code)
	}
}

func TestLibraryDirectory_Errors(t *testing.T) {
	a := newTestAPI(t)

	if rr := a.do(t, http.MethodPost, "/library/directory", DirectoryRequest{Path: ""}); rr.Code != http.StatusOK {
		t.Errorf("cancelled pick = %d, want 200", rr.Code)
	}
	missing := filepath.Join(t.TempDir(), "gone")
	if rr := a.do(t, http.MethodPost, "/library/directory", DirectoryRequest{Path: missing}); rr.Code != http.StatusBadRequest {
		t.Errorf("missing dir = %d, want 400", rr.Code)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/library/directory", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rr.Code)
	}
}

func TestSoundboardRoutes(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodGet, "/soundboard/search?q=rain", nil)
	var results []freesound.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil || len(results) != 1 {
		t.Fatalf("search: %v %s", err, rr.Body)
	}

	rr = a.do(t, http.MethodPost, "/soundboard/sounds", results[0])
	if rr.Code != http.StatusCreated {
		t.Fatalf("add = %d: %s", rr.Code, rr.Body)
	}
	id, _ := decodeJSONBody(t, rr)["id"].(string)

	if rr := a.do(t, http.MethodPost, "/soundboard/sounds/"+id+"/play", nil); rr.Code != http.StatusOK {
		t.Fatalf("play = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodPut, "/soundboard/sounds/"+id+"/volume", map[string]float64{"volume": -0.5}); rr.Code != http.StatusOK {
		t.Fatalf("volume = %d", rr.Code)
	}
	if got := a.store.Board().Snapshot().Sounds[0].Volume; got != 0 {
		t.Errorf("volume = %v, want 0", got)
	}

	if rr := a.do(t, http.MethodPost, "/soundboard/preview", results[0]); rr.Code != http.StatusOK {
		t.Fatalf("preview = %d", rr.Code)
	}
	if a.store.Board().Snapshot().Sounds[0].IsPlaying {
		t.Error("preview should stop board sounds")
	}

	if rr := a.do(t, http.MethodDelete, "/soundboard/sounds/"+id, nil); rr.Code != http.StatusOK {
		t.Fatalf("remove = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodPost, "/soundboard/sounds/nope/play", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown sound = %d, want 404", rr.Code)
	}
	if rr := a.do(t, http.MethodGet, "/soundboard/search", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("empty query = %d, want 400", rr.Code)
	}
}

func TestExportRoute(t *testing.T) {
	a := newTestAPI(t)
	out := t.TempDir()

	rr := a.do(t, http.MethodPost, "/production/export", map[string]string{"output_dir": out, "format": "edl"})
	if rr.Code != http.StatusOK {
		t.Fatalf("export = %d: %s", rr.Code, rr.Body)
	}
	if _, err := os.Stat(filepath.Join(out, "Show.edl")); err != nil {
		t.Fatalf("cue sheet not written: %v", err)
	}

	rr = a.do(t, http.MethodPost, "/production/export", map[string]string{"output_dir": out, "format": "xml"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad format = %d, want 400", rr.Code)
	}
}

func TestMediaRoute_LoopbackOnly(t *testing.T) {
	a := newTestAPI(t)
	dir := writeAudioDir(t, "clip.mp3")
	url, err := a.locators.Create(filepath.Join(dir, "clip.mp3"))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.RemoteAddr = "192.168.1.20:5000"
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote media = %d, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, url, nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("Range", "bytes=0-3")
	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent || rr.Body.String() != "0123" {
		t.Fatalf("range = %d %q", rr.Code, rr.Body.String())
	}

	a.locators.Revoke(url)
	req = httptest.NewRequest(http.MethodGet, url, nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("revoked media = %d, want 404", rr.Code)
	}
}
