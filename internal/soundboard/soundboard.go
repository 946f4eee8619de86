// Package soundboard holds the operator's effect sounds and the search
// preview slot. Only one voice sounds at a time: a board sound or a preview.
package soundboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cuedeck/cuedeck-agent/internal/engine"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
)

const (
	DefaultVolume = 0.7
	previewVolume = 1.0
	idPrefix      = "sfx-"
)

var (
	ErrSoundNotFound = errors.New("sound not found")
	ErrNoPreview     = errors.New("result has no preview")
)

// SoundEffect is one board entry. IsPlaying is runtime state and is never
// persisted.
type SoundEffect struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Volume      float64 `json:"volume"`
	IsPlaying   bool    `json:"is_playing"`
	FreesoundID int     `json:"freesound_id,omitempty"`
}

// Store persists the whole board as one value.
type Store interface {
	LoadSounds(ctx context.Context) ([]SoundEffect, error)
	SaveSounds(ctx context.Context, sounds []SoundEffect) error
}

type Snapshot struct {
	Sounds           []SoundEffect      `json:"sounds"`
	SearchResults    []freesound.Result `json:"search_results"`
	IsSearching      bool               `json:"is_searching"`
	PlayingPreviewID int                `json:"playing_preview_id,omitempty"`
}

type Config struct {
	Factory  engine.Factory
	Searcher freesound.Searcher
	Store    Store
	Logger   *slog.Logger
	OnChange func()
}

// Board owns the sounds, their lazily created engines and the preview slot.
// Engine calls are made without mu held.
type Board struct {
	factory  engine.Factory
	searcher freesound.Searcher
	store    Store
	logger   *slog.Logger
	onChange func()

	opMu sync.Mutex

	mu           sync.Mutex
	sounds       []SoundEffect
	results      []freesound.Result
	searching    bool
	searchGen    uint64
	engines      map[string]engine.Engine
	unsubs       map[string]func()
	preview      engine.Engine
	previewID    int
	previewUnsub func()

	persistVersion uint64

	// persistMu serialises writes to the store.
	persistMu sync.Mutex
	persistWG sync.WaitGroup
}

func New(cfg Config) *Board {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Board{
		factory:  cfg.Factory,
		searcher: cfg.Searcher,
		store:    cfg.Store,
		logger:   logger,
		onChange: cfg.OnChange,
		engines:  make(map[string]engine.Engine),
		unsubs:   make(map[string]func()),
	}
}

// Hydrate restores the persisted board. Restored sounds are never playing.
func (b *Board) Hydrate(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	sounds, err := b.store.LoadSounds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load soundboard: %w", err)
	}
	for i := range sounds {
		sounds[i].IsPlaying = false
	}

	b.mu.Lock()
	b.sounds = sounds
	b.mu.Unlock()

	b.logger.Info("soundboard restored", "sounds", len(sounds))
	b.notify()
	return nil
}

// Search replaces the result list. Failures are logged and leave the list
// empty.
func (b *Board) Search(ctx context.Context, query string) []freesound.Result {
	b.mu.Lock()
	b.searchGen++
	gen := b.searchGen
	b.searching = true
	b.results = nil
	b.mu.Unlock()
	b.notify()

	var results []freesound.Result
	if b.searcher == nil {
		b.logger.Error("sound search unavailable", "error", freesound.ErrMissingAPIKey)
	} else {
		var err error
		results, err = b.searcher.Search(ctx, query)
		if err != nil {
			b.logger.Error("sound search failed", "query", query, "error", err)
			results = nil
		}
	}
	if results == nil {
		results = []freesound.Result{}
	}

	b.mu.Lock()
	if gen != b.searchGen {
		b.mu.Unlock()
		return results
	}
	b.searching = false
	b.results = results
	b.mu.Unlock()
	b.notify()

	return results
}

// ClearSearchResults empties the list and discards any search in flight.
func (b *Board) ClearSearchResults() {
	b.mu.Lock()
	b.searchGen++
	b.searching = false
	b.results = nil
	b.mu.Unlock()
	b.notify()
}

// AddToBoard turns a search hit into a board sound and drops it from the
// results. Adding a sound that is already on the board only drops it from
// the results.
func (b *Board) AddToBoard(result freesound.Result) (SoundEffect, error) {
	if result.Previews.HQMP3 == "" {
		return SoundEffect{}, ErrNoPreview
	}

	sound := SoundEffect{
		ID:          fmt.Sprintf("%s%d", idPrefix, result.ID),
		Name:        result.Name,
		URL:         result.Previews.HQMP3,
		Volume:      DefaultVolume,
		FreesoundID: result.ID,
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	b.results = slices.DeleteFunc(b.results, func(r freesound.Result) bool { return r.ID == result.ID })
	exists := slices.ContainsFunc(b.sounds, func(s SoundEffect) bool { return s.ID == sound.ID })
	if !exists {
		b.sounds = append(b.sounds, sound)
	}
	b.mu.Unlock()

	if !exists {
		b.persist()
	}
	b.notify()
	return sound, nil
}

// Play fires one board sound. Any preview and every other board sound stop
// first. Playing a sound that is already playing restarts it.
func (b *Board) Play(id string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.stopPreview()

	b.mu.Lock()
	idx := b.indexOf(id)
	if idx < 0 {
		b.mu.Unlock()
		return ErrSoundNotFound
	}
	sound := b.sounds[idx]
	others := b.enginesExcept(id)
	eng := b.engines[id]
	b.mu.Unlock()

	for _, other := range others {
		_ = other.Stop()
	}

	b.mu.Lock()
	for i := range b.sounds {
		b.sounds[i].IsPlaying = false
	}
	b.mu.Unlock()
	defer b.notify()

	if eng == nil {
		var err error
		eng, err = b.cacheEngine(sound)
		if err != nil {
			return err
		}
	}

	if err := eng.SetVolume(sound.Volume); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	_ = eng.Stop()
	if err := eng.Play(); err != nil {
		return fmt.Errorf("failed to play %s: %w", sound.Name, err)
	}

	b.mu.Lock()
	if idx := b.indexOf(id); idx >= 0 {
		b.sounds[idx].IsPlaying = true
	}
	b.mu.Unlock()
	return nil
}

// cacheEngine creates the engine for sound on first play.
func (b *Board) cacheEngine(sound SoundEffect) (engine.Engine, error) {
	eng, err := b.factory.New(sound.URL, engine.Options{Volume: sound.Volume})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for %s: %w", sound.Name, err)
	}
	unsub := eng.Subscribe(func(ev engine.Event) { b.onSoundEvent(sound.ID, eng, ev) })

	b.mu.Lock()
	b.engines[sound.ID] = eng
	b.unsubs[sound.ID] = unsub
	b.mu.Unlock()
	return eng, nil
}

func (b *Board) onSoundEvent(id string, eng engine.Engine, ev engine.Event) {
	if ev.Type != engine.EventEnd && ev.Type != engine.EventError {
		return
	}

	b.mu.Lock()
	if b.engines[id] != eng {
		b.mu.Unlock()
		return
	}
	if idx := b.indexOf(id); idx >= 0 {
		b.sounds[idx].IsPlaying = false
	}
	b.mu.Unlock()

	if ev.Type == engine.EventError {
		b.logger.Warn("sound effect failed", "id", id, "error", ev.Err)
	}
	b.notify()
}

func (b *Board) Stop(id string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	idx := b.indexOf(id)
	if idx < 0 {
		b.mu.Unlock()
		return ErrSoundNotFound
	}
	eng := b.engines[id]
	b.mu.Unlock()

	if eng != nil {
		_ = eng.Stop()
	}

	b.mu.Lock()
	if idx := b.indexOf(id); idx >= 0 {
		b.sounds[idx].IsPlaying = false
	}
	b.mu.Unlock()
	b.notify()
	return nil
}

// SetVolume clamps v to [0, 1] and applies it to a cached engine.
func (b *Board) SetVolume(id string, v float64) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	v = engine.ClampVolume(v)

	b.mu.Lock()
	idx := b.indexOf(id)
	if idx < 0 {
		b.mu.Unlock()
		return ErrSoundNotFound
	}
	b.sounds[idx].Volume = v
	eng := b.engines[id]
	b.mu.Unlock()

	if eng != nil {
		if err := eng.SetVolume(v); err != nil {
			b.logger.Warn("failed to apply volume", "id", id, "error", err)
		}
	}

	b.persist()
	b.notify()
	return nil
}

// Remove unloads the sound's engine, then drops it from the board.
func (b *Board) Remove(id string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	idx := b.indexOf(id)
	if idx < 0 {
		b.mu.Unlock()
		return ErrSoundNotFound
	}
	eng, unsub := b.engines[id], b.unsubs[id]
	delete(b.engines, id)
	delete(b.unsubs, id)
	b.mu.Unlock()

	if eng != nil {
		unsub()
		if err := eng.Unload(); err != nil {
			b.logger.Warn("failed to unload sound", "id", id, "error", err)
		}
	}

	b.mu.Lock()
	b.sounds = slices.DeleteFunc(b.sounds, func(s SoundEffect) bool { return s.ID == id })
	b.mu.Unlock()

	b.persist()
	b.notify()
	return nil
}

// PlayPreview auditions a search hit. Every board sound and any earlier
// preview stop first.
func (b *Board) PlayPreview(result freesound.Result) error {
	if result.Previews.HQMP3 == "" {
		return ErrNoPreview
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.stopPreview()
	b.stopBoard()

	eng, err := b.factory.New(result.Previews.HQMP3, engine.Options{Volume: previewVolume})
	if err != nil {
		return fmt.Errorf("failed to create preview engine: %w", err)
	}
	unsub := eng.Subscribe(func(ev engine.Event) { b.onPreviewEvent(eng, ev) })

	b.mu.Lock()
	b.preview = eng
	b.previewID = result.ID
	b.previewUnsub = unsub
	b.mu.Unlock()

	if err := eng.Play(); err != nil {
		b.stopPreview()
		return fmt.Errorf("failed to play preview: %w", err)
	}

	b.notify()
	return nil
}

func (b *Board) onPreviewEvent(eng engine.Engine, ev engine.Event) {
	if ev.Type != engine.EventEnd && ev.Type != engine.EventError {
		return
	}

	b.mu.Lock()
	if b.preview != eng {
		b.mu.Unlock()
		return
	}
	b.preview = nil
	b.previewID = 0
	unsub := b.previewUnsub
	b.previewUnsub = nil
	b.mu.Unlock()

	unsub()
	_ = eng.Unload()
	b.notify()
}

func (b *Board) StopPreview() {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	b.stopPreview()
}

// StopAll silences the preview and every board sound.
func (b *Board) StopAll() {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	b.stopPreview()
	b.stopBoard()
}

func (b *Board) stopPreview() {
	b.mu.Lock()
	eng, unsub := b.preview, b.previewUnsub
	had := eng != nil || b.previewID != 0
	b.preview = nil
	b.previewID = 0
	b.previewUnsub = nil
	b.mu.Unlock()

	if eng != nil {
		unsub()
		_ = eng.Stop()
		_ = eng.Unload()
	}
	if had {
		b.notify()
	}
}

func (b *Board) stopBoard() {
	b.mu.Lock()
	engines := b.enginesExcept("")
	for i := range b.sounds {
		b.sounds[i].IsPlaying = false
	}
	b.mu.Unlock()

	for _, eng := range engines {
		_ = eng.Stop()
	}
	b.notify()
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	sounds := slices.Clone(b.sounds)
	if sounds == nil {
		sounds = []SoundEffect{}
	}
	results := slices.Clone(b.results)
	if results == nil {
		results = []freesound.Result{}
	}
	return Snapshot{
		Sounds:           sounds,
		SearchResults:    results,
		IsSearching:      b.searching,
		PlayingPreviewID: b.previewID,
	}
}

// Close unloads every engine and waits for pending writes.
func (b *Board) Close() {
	b.opMu.Lock()
	b.stopPreview()

	b.mu.Lock()
	engines := b.engines
	unsubs := b.unsubs
	b.engines = make(map[string]engine.Engine)
	b.unsubs = make(map[string]func())
	b.mu.Unlock()

	for id, eng := range engines {
		unsubs[id]()
		_ = eng.Unload()
	}
	b.opMu.Unlock()

	b.Wait()
}

// Wait blocks until queued persistence writes are done.
func (b *Board) Wait() {
	b.persistWG.Wait()
}

// persist writes the full board in the background. A write that is
// overtaken by a newer one is skipped.
func (b *Board) persist() {
	if b.store == nil {
		return
	}

	// The clone and its version are taken together so a newer version never
	// carries an older board.
	b.mu.Lock()
	sounds := slices.Clone(b.sounds)
	b.persistVersion++
	version := b.persistVersion
	b.mu.Unlock()
	if sounds == nil {
		sounds = []SoundEffect{}
	}

	b.persistWG.Add(1)
	go func() {
		defer b.persistWG.Done()

		b.persistMu.Lock()
		defer b.persistMu.Unlock()
		b.mu.Lock()
		latest := b.persistVersion
		b.mu.Unlock()
		if version != latest {
			return
		}
		if err := b.store.SaveSounds(context.Background(), sounds); err != nil {
			b.logger.Error("failed to persist soundboard", "error", err)
		}
	}()
}

func (b *Board) indexOf(id string) int {
	return slices.IndexFunc(b.sounds, func(s SoundEffect) bool { return s.ID == id })
}

func (b *Board) enginesExcept(id string) []engine.Engine {
	out := make([]engine.Engine, 0, len(b.engines))
	for k, eng := range b.engines {
		if k != id {
			out = append(out, eng)
		}
	}
	return out
}

func (b *Board) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}
