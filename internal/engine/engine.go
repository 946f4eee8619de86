// Package engine abstracts audio output. An Engine plays one source; its
// subscribers learn about play, pause, stop, end and error transitions.
package engine

import (
	"context"
	"errors"
	"sync"
)

var ErrUnloaded = errors.New("engine unloaded")

type EventType int

const (
	EventPlay EventType = iota
	EventPause
	EventStop
	EventEnd
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventStop:
		return "stop"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is delivered to subscribers after the engine's own state changed.
// Position is in seconds.
type Event struct {
	Type     EventType
	Position float64
	Err      error
}

type Handler func(Event)

// Engine plays a single source. Implementations must not hold internal
// locks while invoking handlers.
type Engine interface {
	Play() error
	Pause() error
	// Stop pauses and rewinds to zero.
	Stop() error
	Seek(seconds float64) error
	SetVolume(volume float64) error
	SetLoop(loop bool) error
	Position() float64
	Playing() bool
	Subscribe(h Handler) (cancel func())
	// Unload stops output and releases the engine for good.
	Unload() error
}

type Options struct {
	Volume float64
	Loop   bool
}

// Factory creates engines for a source URL or path.
type Factory interface {
	New(source string, opts Options) (Engine, error)
}

// Metadata is what a probe learns about a media file.
type Metadata struct {
	DurationSeconds float64
}

type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// ClampVolume limits v to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// subscribers is a handler registry shared by engine implementations.
type subscribers struct {
	mu       sync.Mutex
	next     int
	handlers map[int]Handler
}

func (s *subscribers) add(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]Handler)
	}
	id := s.next
	s.next++
	s.handlers[id] = h
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	hs := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (s *subscribers) clear() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}
