package production

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/engine/enginetest"
	"github.com/cuedeck/cuedeck-agent/internal/export"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
	"github.com/cuedeck/cuedeck-agent/internal/playback"
	"github.com/cuedeck/cuedeck-agent/internal/soundboard"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
	"github.com/cuedeck/cuedeck-agent/internal/watcher"
)

type memRepo struct {
	mu     sync.Mutex
	sounds []soundboard.SoundEffect
	dir    *catalog.StoredDirectory
}

func (r *memRepo) LoadSounds(ctx context.Context) ([]soundboard.SoundEffect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]soundboard.SoundEffect(nil), r.sounds...), nil
}

func (r *memRepo) SaveSounds(ctx context.Context, sounds []soundboard.SoundEffect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sounds = append([]soundboard.SoundEffect(nil), sounds...)
	return nil
}

func (r *memRepo) GetDirectory(ctx context.Context) (*catalog.StoredDirectory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dir == nil {
		return nil, nil
	}
	d := *r.dir
	return &d, nil
}

func (r *memRepo) PutDirectory(ctx context.Context, dir catalog.StoredDirectory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = &dir
	return nil
}

func (r *memRepo) ClearHandles(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = nil
	return nil
}

type fakeWatcher struct {
	mu       sync.Mutex
	watched  []string
	unwatch  int
	stopped  bool
	callback func(string, watcher.EventType)
}

func (w *fakeWatcher) Watch(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, path)
	return nil
}

func (w *fakeWatcher) Unwatch() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatch++
	return nil
}

func (w *fakeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	return nil
}

func (w *fakeWatcher) OnChange(cb func(string, watcher.EventType)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

func (w *fakeWatcher) fire(path string) {
	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()
	cb(path, watcher.EventCreate)
}

type fakeSearcher struct {
	results []freesound.Result
}

func (s *fakeSearcher) Search(ctx context.Context, query string) ([]freesound.Result, error) {
	return s.results, nil
}

type testStore struct {
	*Store
	repo    *memRepo
	factory *enginetest.Factory
	watcher *fakeWatcher
	now     *time.Time
}

func newTestStore(t *testing.T, prod *timeline.Production) *testStore {
	t.Helper()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	ts := &testStore{
		repo:    &memRepo{},
		factory: &enginetest.Factory{},
		watcher: &fakeWatcher{},
		now:     &now,
	}
	ts.Store = New(Config{
		Production: prod,
		Repository: ts.repo,
		Factory:    ts.factory,
		Prober:     &enginetest.Prober{},
		Locators:   playback.NewLocators("", nil),
		Searcher: &fakeSearcher{results: []freesound.Result{{
			ID: 7, Name: "Thunder", Previews: freesound.Previews{HQMP3: "https://cdn/7.mp3"},
		}}},
		Watcher: ts.watcher,
		Now:     func() time.Time { return *ts.now },
	})
	t.Cleanup(func() { _ = ts.Close() })
	return ts
}

func writeAudio(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func threeMoments() *timeline.Production {
	return &timeline.Production{Name: "Show", Moments: []timeline.Moment{
		{ID: "m1", Title: "One", DurationSeconds: 60},
		{ID: "m2", Title: "Two", DurationSeconds: 30},
		{ID: "m3", Title: "Three"},
	}}
}

func TestStore_TimelineDrivesSnapshot(t *testing.T) {
	s := newTestStore(t, threeMoments())
	l := s.Broadcaster().Subscribe()
	defer s.Broadcaster().Unsubscribe(l)

	s.StartTimeline()
	select {
	case <-l.C:
	default:
		t.Fatal("expected a change signal after start")
	}

	*s.now = s.now.Add(65 * time.Second)
	s.Tick()
	s.NextMoment()

	snap := s.Snapshot()
	if !snap.Timeline.IsPlaying || snap.Timeline.GlobalTime != 65 {
		t.Fatalf("unexpected timeline: %+v", snap.Timeline)
	}
	if snap.FormattedTime != "01:05" {
		t.Errorf("FormattedTime = %q, want 01:05", snap.FormattedTime)
	}
	if snap.CurrentMoment == nil || snap.CurrentMoment.ID != "m2" {
		t.Errorf("CurrentMoment = %+v, want m2", snap.CurrentMoment)
	}

	s.GoToMoment(2)
	if got := s.Snapshot(); got.CurrentMoment.ID != "m3" || got.Timeline.CurrentMomentTime != 0 {
		t.Errorf("GoTo(2) gave %+v", got.Timeline)
	}

	s.StopTimeline()
	if got := s.Snapshot().Timeline; got.IsPlaying || got.GlobalTime != 0 || got.CurrentMomentIndex != 0 {
		t.Errorf("stop did not reset: %+v", got)
	}
}

func TestStore_SetProductionRewinds(t *testing.T) {
	s := newTestStore(t, threeMoments())
	s.GoToMoment(2)

	s.SetProduction(&timeline.Production{Name: "Other", Moments: []timeline.Moment{{ID: "x"}}})

	snap := s.Snapshot()
	if snap.Production.Name != "Other" || snap.Timeline.CurrentMomentIndex != 0 {
		t.Fatalf("unexpected snapshot after swap: %+v", snap.Timeline)
	}

	s.SetProduction(nil)
	if s.Snapshot().CurrentMoment != nil {
		t.Error("empty production should have no current moment")
	}
}

func TestStore_LoadDirectoryWatchesAndLoadsTrack(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "b.mp3", "a.wav", "notes.txt")

	s := newTestStore(t, threeMoments())
	ctx := context.Background()

	if err := s.LoadDirectory(ctx, dir); err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}

	files := s.Library().Files()
	if len(files) != 2 || files[0].Name != "a.wav" {
		t.Fatalf("unexpected library: %+v", files)
	}
	if len(s.watcher.watched) != 1 || s.watcher.watched[0] != filepath.Clean(dir) {
		t.Errorf("watched = %v", s.watcher.watched)
	}
	if s.repo.dir == nil {
		t.Error("root handle was not persisted")
	}

	if err := s.LoadTrack(ctx, files[0].Path); err != nil {
		t.Fatalf("LoadTrack failed: %v", err)
	}
	track := s.Snapshot().Player.CurrentTrack
	if track == nil || track.Name != "a.wav" {
		t.Fatalf("unexpected track: %+v", track)
	}

	if err := s.LoadTrack(ctx, "nope.mp3"); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestStore_LoadDirectoryCancelledIsNoop(t *testing.T) {
	s := newTestStore(t, threeMoments())
	if err := s.LoadDirectory(context.Background(), "  "); err != nil {
		t.Fatalf("cancel should be swallowed, got %v", err)
	}
	if len(s.watcher.watched) != 0 {
		t.Error("cancelled pick should not start watching")
	}
}

func TestStore_WatcherTriggersRescan(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "a.mp3")

	s := newTestStore(t, threeMoments())
	if err := s.LoadDirectory(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	writeAudio(t, dir, "sub/c.mp3")
	s.watcher.fire(dir)

	if n := len(s.Library().Files()); n != 2 {
		t.Fatalf("expected 2 files after rescan, got %d", n)
	}
}

func TestStore_SelectFilesDetachesWatcher(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "a.mp3")

	s := newTestStore(t, threeMoments())
	ctx := context.Background()
	if err := s.LoadDirectory(ctx, dir); err != nil {
		t.Fatal(err)
	}

	if n := s.SelectFiles(ctx, []string{filepath.Join(dir, "a.mp3")}); n != 1 {
		t.Fatalf("SelectFiles accepted %d", n)
	}
	if s.watcher.unwatch != 1 {
		t.Errorf("expected one Unwatch, got %d", s.watcher.unwatch)
	}
}

func TestStore_InitRestoresState(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "a.mp3")

	s := newTestStore(t, threeMoments())
	s.repo.sounds = []soundboard.SoundEffect{{ID: "sfx-1", Name: "Bell", URL: "https://cdn/1.mp3", Volume: 0.5, IsPlaying: true}}
	s.repo.dir = &catalog.StoredDirectory{Path: dir, Name: filepath.Base(dir)}

	s.Init(context.Background())

	snap := s.Snapshot()
	if len(snap.Soundboard.Sounds) != 1 || snap.Soundboard.Sounds[0].IsPlaying {
		t.Errorf("unexpected board: %+v", snap.Soundboard.Sounds)
	}
	if len(snap.Library.Files) != 1 {
		t.Errorf("expected rehydrated library, got %+v", snap.Library)
	}
	if len(s.watcher.watched) != 1 {
		t.Errorf("expected rehydrated root to be watched, got %v", s.watcher.watched)
	}
}

func TestStore_InitForgetsMissingRoot(t *testing.T) {
	s := newTestStore(t, threeMoments())
	s.repo.dir = &catalog.StoredDirectory{Path: filepath.Join(t.TempDir(), "gone"), Name: "gone"}

	s.Init(context.Background())

	if s.repo.dir != nil {
		t.Error("missing root should be cleared")
	}
	if len(s.Library().Files()) != 0 {
		t.Error("library should stay empty")
	}
}

func TestStore_StopAllSounds(t *testing.T) {
	s := newTestStore(t, threeMoments())
	results := s.Board().Search(context.Background(), "thunder")
	sound, err := s.Board().AddToBoard(results[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Board().Play(sound.ID); err != nil {
		t.Fatal(err)
	}

	s.StopAllSounds()

	for _, sfx := range s.Snapshot().Soundboard.Sounds {
		if sfx.IsPlaying {
			t.Errorf("%s still playing", sfx.ID)
		}
	}
}

func TestStore_ExportCueSheet(t *testing.T) {
	s := newTestStore(t, threeMoments())
	resp, err := s.ExportCueSheet(export.CueSheetRequest{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if resp.CueCount != 3 || len(resp.UntimedCues) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestStore_CloseStopsWatcher(t *testing.T) {
	s := newTestStore(t, threeMoments())
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.watcher.stopped {
		t.Error("watcher not stopped")
	}
}
