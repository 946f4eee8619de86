// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/cuedeck/cuedeck-agent/internal/engine"
)

// Engine is a scripted engine.Engine. Transport calls change state and emit
// the matching event synchronously, like a real engine would once output
// starts. Finish and Fail simulate the end of the media.
type Engine struct {
	Source string

	mu       sync.Mutex
	playing  bool
	position float64
	volume   float64
	loop     bool
	unloaded bool
	calls    []string
	next     int
	handlers map[int]engine.Handler

	// PlayErr, when set, is returned by Play.
	PlayErr error
}

func NewEngine(source string, opts engine.Options) *Engine {
	return &Engine{
		Source:   source,
		volume:   opts.Volume,
		loop:     opts.Loop,
		handlers: make(map[int]engine.Handler),
	}
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *Engine) Play() error {
	e.mu.Lock()
	e.record("play")
	if e.unloaded {
		e.mu.Unlock()
		return engine.ErrUnloaded
	}
	if e.PlayErr != nil {
		err := e.PlayErr
		e.mu.Unlock()
		return err
	}
	e.playing = true
	pos := e.position
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventPlay, Position: pos})
	return nil
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	e.record("pause")
	wasPlaying := e.playing
	e.playing = false
	pos := e.position
	e.mu.Unlock()

	if wasPlaying {
		e.emit(engine.Event{Type: engine.EventPause, Position: pos})
	}
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	e.record("stop")
	e.playing = false
	e.position = 0
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventStop})
	return nil
}

func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("seek")
	e.position = seconds
	return nil
}

func (e *Engine) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("volume")
	e.volume = v
	return nil
}

func (e *Engine) SetLoop(loop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("loop")
	e.loop = loop
	return nil
}

func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) Subscribe(h engine.Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.next
	e.next++
	e.handlers[id] = h
	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) Unload() error {
	e.mu.Lock()
	e.record("unload")
	e.playing = false
	e.unloaded = true
	e.handlers = make(map[int]engine.Handler)
	e.mu.Unlock()
	return nil
}

// SetPosition moves the playhead as if time had passed.
func (e *Engine) SetPosition(seconds float64) {
	e.mu.Lock()
	e.position = seconds
	e.mu.Unlock()
}

// Finish simulates the media reaching its end. A looping engine restarts
// from zero and stays playing without emitting End.
func (e *Engine) Finish() {
	e.mu.Lock()
	if e.loop {
		e.position = 0
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.position = 0
	e.mu.Unlock()

	e.emit(engine.Event{Type: engine.EventEnd})
}

// Fail simulates a playback error.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	e.emit(engine.Event{Type: engine.EventError, Err: err})
}

func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) Loop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop
}

func (e *Engine) Unloaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unloaded
}

// Calls returns the transport calls made so far.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *Engine) emit(ev engine.Event) {
	e.mu.Lock()
	hs := make([]engine.Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		hs = append(hs, h)
	}
	e.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Factory records every engine it creates.
type Factory struct {
	mu      sync.Mutex
	engines []*Engine
	// Err, when set, fails every New call.
	Err error
}

func (f *Factory) New(source string, opts engine.Options) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	e := NewEngine(source, opts)
	f.engines = append(f.engines, e)
	return e, nil
}

// Engines returns every engine created, oldest first.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Engine, len(f.engines))
	copy(out, f.engines)
	return out
}

// Last returns the most recent engine for source, or nil.
func (f *Factory) Last(source string) *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.engines) - 1; i >= 0; i-- {
		if f.engines[i].Source == source {
			return f.engines[i]
		}
	}
	return nil
}

// Prober returns canned metadata per path. Paths listed in Block wait until
// their channel is closed, which lets tests order concurrent loads.
type Prober struct {
	mu       sync.Mutex
	Duration map[string]float64
	Errs     map[string]error
	Block    map[string]chan struct{}
	// Started, when set, receives each path as its probe begins.
	Started chan string
}

func (p *Prober) Probe(ctx context.Context, path string) (engine.Metadata, error) {
	p.mu.Lock()
	block := p.Block[path]
	started := p.Started
	p.mu.Unlock()

	if started != nil {
		started <- path
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return engine.Metadata{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Errs[path]; err != nil {
		return engine.Metadata{}, err
	}
	d, ok := p.Duration[path]
	if !ok {
		return engine.Metadata{DurationSeconds: 60}, nil
	}
	return engine.Metadata{DurationSeconds: d}, nil
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Factory = (*Factory)(nil)
	_ engine.Prober  = (*Prober)(nil)
)
