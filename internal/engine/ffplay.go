package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFplayFactory spawns ffplay processes for playback.
type FFplayFactory struct {
	Binary string
	Logger *slog.Logger
}

func NewFFplayFactory(binary string, logger *slog.Logger) *FFplayFactory {
	if binary == "" {
		binary = "ffplay"
	}
	return &FFplayFactory{Binary: binary, Logger: logger}
}

func (f *FFplayFactory) New(source string, opts Options) (Engine, error) {
	if source == "" {
		return nil, errors.New("empty source")
	}
	return &FFplay{
		binary: f.Binary,
		source: source,
		volume: ClampVolume(opts.Volume),
		loop:   opts.Loop,
		logger: f.Logger,
	}, nil
}

// FFplay drives one headless ffplay process per playing span. Pausing kills
// the process and remembers the position; playing again respawns it with
// -ss. Volume and loop changes while playing respawn at the current
// position.
type FFplay struct {
	binary string
	source string
	logger *slog.Logger
	subs   subscribers

	mu        sync.Mutex
	cmd       *exec.Cmd
	gen       int
	playing   bool
	offset    float64
	startedAt time.Time
	volume    float64
	loop      bool
	unloaded  bool
}

func (e *FFplay) Play() error {
	e.mu.Lock()
	if e.unloaded {
		e.mu.Unlock()
		return ErrUnloaded
	}
	if e.playing {
		e.mu.Unlock()
		return nil
	}
	if err := e.spawnLocked(e.offset); err != nil {
		e.mu.Unlock()
		return err
	}
	pos := e.offset
	e.mu.Unlock()

	e.subs.emit(Event{Type: EventPlay, Position: pos})
	return nil
}

func (e *FFplay) Pause() error {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return nil
	}
	e.offset = e.positionLocked()
	e.killLocked()
	pos := e.offset
	e.mu.Unlock()

	e.subs.emit(Event{Type: EventPause, Position: pos})
	return nil
}

func (e *FFplay) Stop() error {
	e.mu.Lock()
	e.killLocked()
	e.offset = 0
	e.mu.Unlock()

	e.subs.emit(Event{Type: EventStop})
	return nil
}

func (e *FFplay) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		e.offset = seconds
		return nil
	}
	return e.respawnLocked(seconds)
}

func (e *FFplay) SetVolume(volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = ClampVolume(volume)
	if !e.playing {
		return nil
	}
	return e.respawnLocked(e.positionLocked())
}

func (e *FFplay) SetLoop(loop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loop == loop {
		return nil
	}
	e.loop = loop
	if !e.playing {
		return nil
	}
	return e.respawnLocked(e.positionLocked())
}

func (e *FFplay) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *FFplay) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *FFplay) Subscribe(h Handler) func() {
	return e.subs.add(h)
}

func (e *FFplay) Unload() error {
	e.mu.Lock()
	e.killLocked()
	e.unloaded = true
	e.mu.Unlock()
	e.subs.clear()
	return nil
}

func (e *FFplay) positionLocked() float64 {
	if !e.playing {
		return e.offset
	}
	return e.offset + time.Since(e.startedAt).Seconds()
}

func (e *FFplay) args(offset float64) []string {
	args := []string{
		"-nodisp", "-autoexit",
		"-loglevel", "error",
		"-volume", strconv.Itoa(int(e.volume * 100)),
	}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset, 'f', 3, 64))
	}
	if e.loop {
		args = append(args, "-loop", "0")
	}
	return append(args, e.source)
}

func (e *FFplay) spawnLocked(offset float64) error {
	cmd := exec.Command(e.binary, e.args(offset)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.binary, err)
	}

	e.gen++
	e.cmd = cmd
	e.playing = true
	e.offset = offset
	e.startedAt = time.Now()

	go e.wait(cmd, e.gen)
	return nil
}

func (e *FFplay) respawnLocked(offset float64) error {
	e.killLocked()
	return e.spawnLocked(offset)
}

// killLocked stops the current process. Its exit is ignored by wait because
// the generation moves on.
func (e *FFplay) killLocked() {
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.cmd = nil
	e.gen++
	e.playing = false
}

func (e *FFplay) wait(cmd *exec.Cmd, gen int) {
	err := cmd.Wait()

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.cmd = nil
	e.playing = false
	e.offset = 0
	e.mu.Unlock()

	if err != nil {
		if e.logger != nil {
			e.logger.Warn("ffplay exited with error", "source", e.source, "error", err)
		}
		e.subs.emit(Event{Type: EventError, Err: err})
		return
	}
	e.subs.emit(Event{Type: EventEnd})
}
