// Package production wires the show together: the script and its clock, the
// primary track player, the effect board and the local library. Every
// component reports changes here and the store fans them out to listeners.
package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/engine"
	"github.com/cuedeck/cuedeck-agent/internal/export"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
	"github.com/cuedeck/cuedeck-agent/internal/player"
	"github.com/cuedeck/cuedeck-agent/internal/soundboard"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
	"github.com/cuedeck/cuedeck-agent/internal/watcher"
)

const TickInterval = time.Second

var ErrTrackNotFound = errors.New("track not in library")

// Repository is the persisted state the store needs.
type Repository interface {
	soundboard.Store
	catalog.HandleStore
}

type Config struct {
	Production   *timeline.Production
	Repository   Repository
	Factory      engine.Factory
	Prober       engine.Prober
	Locators     player.LocatorRegistry
	Searcher     freesound.Searcher
	Watcher      watcher.Watcher
	ScanMaxDepth int
	Autoplay     bool
	Now          func() time.Time
	Logger       *slog.Logger
}

// State is the full snapshot pushed to the UI.
type State struct {
	Production    *timeline.Production `json:"production"`
	Timeline      timeline.State       `json:"timeline"`
	CurrentMoment *timeline.Moment     `json:"current_moment,omitempty"`
	FormattedTime string               `json:"formatted_time"`
	MomentTime    string               `json:"formatted_moment_time"`
	Player        player.PlaybackState `json:"player"`
	Soundboard    soundboard.Snapshot  `json:"soundboard"`
	Library       catalog.Snapshot     `json:"library"`
}

type Store struct {
	logger      *slog.Logger
	watcher     watcher.Watcher
	broadcaster *Broadcaster

	library *catalog.Library
	player  *player.Player
	board   *soundboard.Board
	clock   *timeline.Clock

	mu         sync.RWMutex
	production *timeline.Production
	watched    string
}

func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	prod := cfg.Production
	if prod == nil {
		prod = &timeline.Production{}
	}

	s := &Store{
		logger:      logger,
		watcher:     cfg.Watcher,
		broadcaster: NewBroadcaster(),
		production:  prod,
		clock:       timeline.NewClock(len(prod.Moments), cfg.Now),
	}

	var handles catalog.HandleStore
	var sounds soundboard.Store
	if cfg.Repository != nil {
		handles, sounds = cfg.Repository, cfg.Repository
	}

	s.library = catalog.NewLibrary(catalog.LibraryConfig{
		Scanner:     catalog.NewScanner(cfg.ScanMaxDepth, logger.With("component", "scanner")),
		HandleStore: handles,
		Logger:      logger.With("component", "library"),
		OnChange:    s.changed,
	})
	s.player = player.New(player.Config{
		Factory:  cfg.Factory,
		Prober:   cfg.Prober,
		Locators: cfg.Locators,
		Autoplay: cfg.Autoplay,
		Logger:   logger.With("component", "player"),
		OnChange: s.changed,
	})
	s.board = soundboard.New(soundboard.Config{
		Factory:  cfg.Factory,
		Searcher: cfg.Searcher,
		Store:    sounds,
		Logger:   logger.With("component", "soundboard"),
		OnChange: s.changed,
	})

	if s.watcher != nil {
		s.watcher.OnChange(s.onLibraryChange)
	}
	return s
}

// Init restores the persisted board and the last library root. Failures are
// logged; the show can always start empty.
func (s *Store) Init(ctx context.Context) {
	if err := s.board.Hydrate(ctx); err != nil {
		s.logger.Warn("failed to restore soundboard", "error", err)
	}
	if err := s.library.Rehydrate(ctx); err != nil {
		s.logger.Warn("failed to restore library", "error", err)
	}
	s.syncWatch(ctx)
}

// Run drives the clock and the player position until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick advances the clock and refreshes the player position once.
func (s *Store) Tick() {
	if s.clock.Advance() {
		s.changed()
	}
	s.player.Tick()
}

func (s *Store) Library() *catalog.Library { return s.library }
func (s *Store) Player() *player.Player    { return s.player }
func (s *Store) Board() *soundboard.Board  { return s.board }
func (s *Store) Broadcaster() *Broadcaster { return s.broadcaster }

func (s *Store) Production() *timeline.Production {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.production
}

// SetProduction swaps the script and rewinds the clock.
func (s *Store) SetProduction(p *timeline.Production) {
	if p == nil {
		p = &timeline.Production{}
	}
	s.mu.Lock()
	s.production = p
	s.mu.Unlock()
	s.clock.SetMomentCount(len(p.Moments))
	s.changed()
}

func (s *Store) StartTimeline() {
	s.clock.Start()
	s.changed()
}

func (s *Store) PauseTimeline() {
	s.clock.Pause()
	s.changed()
}

func (s *Store) StopTimeline() {
	s.clock.Stop()
	s.changed()
}

func (s *Store) NextMoment() {
	s.clock.Next()
	s.changed()
}

func (s *Store) PreviousMoment() {
	s.clock.Previous()
	s.changed()
}

func (s *Store) GoToMoment(i int) {
	s.clock.GoTo(i)
	s.changed()
}

// LoadDirectory picks path as the library root. A dismissed picker is not an
// error.
func (s *Store) LoadDirectory(ctx context.Context, path string) error {
	err := s.library.LoadDirectory(ctx, catalog.PathPicker{Path: path})
	if catalog.IsCancelled(err) {
		return nil
	}
	if err != nil {
		return err
	}
	s.syncWatch(ctx)
	return nil
}

func (s *Store) SelectFiles(ctx context.Context, paths []string) int {
	n := s.library.SelectFiles(paths)
	s.syncWatch(ctx)
	return n
}

func (s *Store) Rescan(ctx context.Context) error {
	return s.library.Rescan(ctx)
}

// LoadTrack makes the library file at path the primary track. A load that
// was overtaken by a newer one is not an error.
func (s *Store) LoadTrack(ctx context.Context, path string) error {
	ref, ok := s.library.Find(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, path)
	}
	err := s.player.Load(ctx, ref)
	if errors.Is(err, player.ErrSuperseded) {
		return nil
	}
	return err
}

func (s *Store) StopAllSounds() {
	s.board.StopAll()
}

func (s *Store) ExportCueSheet(req export.CueSheetRequest) (export.CueSheetResponse, error) {
	return export.WriteCueSheet(s.Production(), req)
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	prod := s.production
	s.mu.RUnlock()

	tl := s.clock.State()
	state := State{
		Production:    prod,
		Timeline:      tl,
		FormattedTime: timeline.FormatDuration(tl.GlobalTime),
		MomentTime:    timeline.FormatDuration(tl.CurrentMomentTime),
		Player:        s.player.State(),
		Soundboard:    s.board.Snapshot(),
		Library:       s.library.Snapshot(),
	}
	if i := tl.CurrentMomentIndex; i >= 0 && i < len(prod.Moments) {
		m := prod.Moments[i]
		state.CurrentMoment = &m
	}
	return state
}

// Close stops the watcher, unloads every engine and flushes pending writes.
func (s *Store) Close() error {
	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop watcher: %w", err))
		}
	}
	if err := s.player.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close player: %w", err))
	}
	s.board.Close()
	return errors.Join(errs...)
}

func (s *Store) changed() {
	s.broadcaster.Publish()
}

// syncWatch points the watcher at the current library root, or detaches it
// when files were picked one by one.
func (s *Store) syncWatch(ctx context.Context) {
	if s.watcher == nil {
		return
	}

	var path string
	if root := s.library.Root(); root != nil {
		path = root.Path()
	}

	s.mu.Lock()
	same := path == s.watched
	s.watched = path
	s.mu.Unlock()
	if same {
		return
	}

	if path == "" {
		if err := s.watcher.Unwatch(); err != nil {
			s.logger.Debug("unwatch failed", "error", err)
		}
		return
	}
	if err := s.watcher.Watch(ctx, path); err != nil {
		s.logger.Warn("cannot watch library root", "path", path, "error", err)
	}
}

func (s *Store) onLibraryChange(path string, event watcher.EventType) {
	s.logger.Debug("library changed on disk", "root", path, "event", event.String())
	if err := s.library.Rescan(context.Background()); err != nil {
		s.logger.Warn("rescan failed", "root", path, "error", err)
	}
}
