// Package player owns the single active audio track and its transport.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/engine"
)

const DefaultVolume = 0.8

// ErrSuperseded is returned by Load when a newer Load started before it
// could commit. Callers treat it as a no-op.
var ErrSuperseded = errors.New("load superseded by a newer request")

// MediaLoadError means a track could not be prepared for playback. The
// previously active track is left untouched.
type MediaLoadError struct {
	Path string
	Err  error
}

func (e *MediaLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *MediaLoadError) Unwrap() error {
	return e.Err
}

type State int

const (
	StateEmpty State = iota
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	}
	return "unknown"
}

// ActiveTrack is the loaded track. SourceURL is the live media locator the
// engine reads from.
type ActiveTrack struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Path            string             `json:"path"`
	SourceURL       string             `json:"source_url"`
	Handle          catalog.FileHandle `json:"-"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
}

// PlaybackState is a snapshot of the player.
type PlaybackState struct {
	CurrentTrack *ActiveTrack `json:"current_track"`
	State        string       `json:"state"`
	IsPlaying    bool         `json:"is_playing"`
	PausedByUser bool         `json:"paused_by_user"`
	Volume       float64      `json:"volume"`
	CurrentTime  float64      `json:"current_time"`
	Duration     float64      `json:"duration"`
	Loop         bool         `json:"loop"`
}

// LocatorRegistry issues and releases media URLs.
type LocatorRegistry interface {
	Create(filePath string) (string, error)
	Revoke(url string) bool
}

type Config struct {
	Factory  engine.Factory
	Prober   engine.Prober
	Locators LocatorRegistry
	Autoplay bool
	Logger   *slog.Logger
	OnChange func()
}

// Player holds at most one track. Engine calls are made without mu held;
// engine event handlers take mu and are the only writers of the playing
// state.
type Player struct {
	factory  engine.Factory
	prober   engine.Prober
	locators LocatorRegistry
	autoplay bool
	logger   *slog.Logger
	onChange func()

	// opMu serialises actions that drive the engine.
	opMu sync.Mutex

	mu           sync.Mutex
	gen          uint64
	track        *ActiveTrack
	eng          engine.Engine
	unsubscribe  func()
	state        State
	pausedByUser bool
	volume       float64
	currentTime  float64
	duration     float64
	loop         bool
}

func New(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Player{
		factory:  cfg.Factory,
		prober:   cfg.Prober,
		locators: cfg.Locators,
		autoplay: cfg.Autoplay,
		logger:   logger,
		onChange: cfg.OnChange,
		volume:   DefaultVolume,
	}
}

// Load makes ref the active track. The newest call wins: a Load that
// finishes after a later one returns ErrSuperseded and changes nothing.
func (p *Player) Load(ctx context.Context, ref catalog.LocalAudioRef) error {
	if ref.Handle == nil {
		return &MediaLoadError{Path: ref.Path, Err: errors.New("no file handle")}
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	meta, err := p.prober.Probe(ctx, ref.Handle.Path())
	if !p.current(gen) {
		return ErrSuperseded
	}
	if err != nil {
		return &MediaLoadError{Path: ref.Path, Err: err}
	}

	url, err := p.locators.Create(ref.Handle.Path())
	if err != nil {
		return &MediaLoadError{Path: ref.Path, Err: err}
	}

	p.opMu.Lock()
	committed, err := p.commit(gen, ref, url, meta)
	p.opMu.Unlock()

	if err != nil || !committed {
		p.locators.Revoke(url)
		if err != nil {
			return &MediaLoadError{Path: ref.Path, Err: err}
		}
		return ErrSuperseded
	}

	p.logger.Info("track loaded", "name", ref.Name, "duration", meta.DurationSeconds)
	p.notify()

	if p.autoplay {
		return p.Play()
	}
	return nil
}

// commit swaps the new track in under opMu. The previous engine is unloaded
// and its locator revoked only after the swap.
func (p *Player) commit(gen uint64, ref catalog.LocalAudioRef, url string, meta engine.Metadata) (bool, error) {
	p.mu.Lock()
	opts := engine.Options{Volume: p.volume, Loop: p.loop}
	p.mu.Unlock()

	eng, err := p.factory.New(url, opts)
	if err != nil {
		return false, err
	}
	unsubscribe := eng.Subscribe(func(ev engine.Event) { p.onEngineEvent(eng, ev) })

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		unsubscribe()
		_ = eng.Unload()
		return false, nil
	}

	prevTrack, prevEng, prevUnsub := p.track, p.eng, p.unsubscribe
	p.track = &ActiveTrack{
		ID:              uuid.NewString(),
		Name:            ref.Name,
		Path:            ref.Path,
		SourceURL:       url,
		Handle:          ref.Handle,
		DurationSeconds: meta.DurationSeconds,
	}
	p.eng = eng
	p.unsubscribe = unsubscribe
	p.state = StatePaused
	p.pausedByUser = false
	p.currentTime = 0
	p.duration = meta.DurationSeconds
	p.mu.Unlock()

	if prevEng != nil {
		prevUnsub()
		if err := prevEng.Unload(); err != nil {
			p.logger.Warn("failed to unload previous engine", "error", err)
		}
	}
	if prevTrack != nil {
		p.locators.Revoke(prevTrack.SourceURL)
	}
	return true, nil
}

func (p *Player) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen
}

func (p *Player) onEngineEvent(eng engine.Engine, ev engine.Event) {
	p.mu.Lock()
	if p.eng != eng {
		p.mu.Unlock()
		return
	}

	switch ev.Type {
	case engine.EventPlay:
		p.state = StatePlaying
		p.currentTime = ev.Position
	case engine.EventPause:
		p.state = StatePaused
		p.currentTime = ev.Position
	case engine.EventStop, engine.EventEnd:
		p.state = StatePaused
		p.currentTime = 0
	case engine.EventError:
		p.state = StatePaused
	}
	name := ""
	if p.track != nil {
		name = p.track.Name
	}
	p.mu.Unlock()

	if ev.Type == engine.EventError {
		p.logger.Warn("playback error", "track", name, "error", ev.Err)
	}
	p.notify()
}

// activeEngine returns the active engine, or nil when nothing is loaded.
func (p *Player) activeEngine() engine.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng
}

// Play starts the active track. It is a no-op with nothing loaded.
func (p *Player) Play() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	eng := p.activeEngine()
	if eng == nil {
		return nil
	}
	if err := eng.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	p.mu.Lock()
	p.pausedByUser = false
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *Player) Pause() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	eng := p.activeEngine()
	if eng == nil {
		return nil
	}
	if err := eng.Pause(); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}

	p.mu.Lock()
	p.pausedByUser = true
	p.mu.Unlock()
	p.notify()
	return nil
}

// Stop pauses and rewinds; the track stays loaded.
func (p *Player) Stop() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	eng := p.activeEngine()
	if eng == nil {
		return nil
	}
	if err := eng.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	p.mu.Lock()
	p.currentTime = 0
	p.mu.Unlock()
	p.notify()
	return nil
}

// Seek moves the playhead, clamped to the track duration when known.
func (p *Player) Seek(seconds float64) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	eng := p.eng
	duration := p.duration
	p.mu.Unlock()
	if eng == nil {
		return nil
	}

	seconds = math.Max(seconds, 0)
	if duration > 0 {
		seconds = math.Min(seconds, duration)
	}
	if err := eng.Seek(seconds); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	p.mu.Lock()
	p.currentTime = seconds
	p.mu.Unlock()
	p.notify()
	return nil
}

// SetVolume clamps v to [0, 1]. The volume survives track changes.
func (p *Player) SetVolume(v float64) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	v = engine.ClampVolume(v)
	p.mu.Lock()
	p.volume = v
	eng := p.eng
	p.mu.Unlock()

	if eng != nil {
		if err := eng.SetVolume(v); err != nil {
			return fmt.Errorf("failed to set volume: %w", err)
		}
	}
	p.notify()
	return nil
}

func (p *Player) ToggleLoop() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	p.loop = !p.loop
	loop := p.loop
	eng := p.eng
	p.mu.Unlock()

	if eng != nil {
		if err := eng.SetLoop(loop); err != nil {
			return fmt.Errorf("failed to set loop: %w", err)
		}
	}
	p.notify()
	return nil
}

// Tick refreshes currentTime from the engine while playing.
func (p *Player) Tick() {
	p.mu.Lock()
	eng := p.eng
	playing := p.state == StatePlaying
	p.mu.Unlock()
	if eng == nil || !playing {
		return
	}

	pos := eng.Position()

	p.mu.Lock()
	if p.eng != eng {
		p.mu.Unlock()
		return
	}
	if p.duration > 0 && pos > p.duration {
		if p.loop {
			pos = math.Mod(pos, p.duration)
		} else {
			pos = p.duration
		}
	}
	changed := pos != p.currentTime
	p.currentTime = pos
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	var track *ActiveTrack
	if p.track != nil {
		cp := *p.track
		track = &cp
	}
	return PlaybackState{
		CurrentTrack: track,
		State:        p.state.String(),
		IsPlaying:    p.state == StatePlaying,
		PausedByUser: p.pausedByUser,
		Volume:       p.volume,
		CurrentTime:  p.currentTime,
		Duration:     p.duration,
		Loop:         p.loop,
	}
}

// Close unloads the engine and releases the locator.
func (p *Player) Close() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	p.gen++
	track, eng, unsub := p.track, p.eng, p.unsubscribe
	p.track, p.eng, p.unsubscribe = nil, nil, nil
	p.state = StateEmpty
	p.currentTime = 0
	p.duration = 0
	p.mu.Unlock()

	var err error
	if eng != nil {
		unsub()
		err = eng.Unload()
	}
	if track != nil {
		p.locators.Revoke(track.SourceURL)
	}
	return err
}

func (p *Player) notify() {
	if p.onChange != nil {
		p.onChange()
	}
}
