// Package timeline models the scripted production and the show clock that
// walks through its moments.
package timeline

import (
	"sync"
	"time"
)

type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	}
	return "unknown"
}

// State is a snapshot of the clock. Times are whole seconds.
type State struct {
	Status             string     `json:"status"`
	IsPlaying          bool       `json:"is_playing"`
	IsPaused           bool       `json:"is_paused"`
	CurrentMomentIndex int        `json:"current_moment_index"`
	GlobalTime         int        `json:"global_time"`
	CurrentMomentTime  int        `json:"current_moment_time"`
	StartTime          *time.Time `json:"start_time,omitempty"`
}

// Clock derives elapsed time from wall-clock anchors. Starting shifts the
// show anchor back by the time already elapsed, so a pause keeps the total.
// Each moment has its own anchor, reset whenever the current moment changes.
type Clock struct {
	now func() time.Time

	mu          sync.Mutex
	count       int
	status      Status
	index       int
	globalTime  int
	momentTime  int
	startTime   time.Time
	momentStart time.Time
}

// NewClock returns a stopped clock over count moments. now defaults to
// time.Now.
func NewClock(count int, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, count: count}
}

func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusPlaying {
		return
	}
	now := c.now()
	c.startTime = now.Add(-time.Duration(c.globalTime) * time.Second)
	c.momentStart = now.Add(-time.Duration(c.momentTime) * time.Second)
	c.status = StatusPlaying
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPlaying {
		return
	}
	c.advanceLocked()
	c.status = StatusPaused
}

// Stop rewinds to the first moment and clears every counter.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Clock) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(c.index + 1)
}

func (c *Clock) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(c.index - 1)
}

// GoTo jumps to moment i, clamped to the production. The play state is
// unchanged.
func (c *Clock) GoTo(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goToLocked(i)
}

// Advance recomputes elapsed times from the anchors. It is a no-op unless
// playing and reports whether any value changed.
func (c *Clock) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPlaying {
		return false
	}
	return c.advanceLocked()
}

// SetMomentCount resets the clock for a production with count moments.
func (c *Clock) SetMomentCount(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = count
	c.resetLocked()
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Status:             c.status.String(),
		IsPlaying:          c.status == StatusPlaying,
		IsPaused:           c.status == StatusPaused,
		CurrentMomentIndex: c.index,
		GlobalTime:         c.globalTime,
		CurrentMomentTime:  c.momentTime,
	}
	if c.status != StatusStopped {
		start := c.startTime
		st.StartTime = &start
	}
	return st
}

func (c *Clock) goToLocked(i int) {
	c.index = clamp(i, 0, c.count-1)
	c.momentTime = 0
	c.momentStart = c.now()
}

func (c *Clock) advanceLocked() bool {
	now := c.now()
	global := int(now.Sub(c.startTime) / time.Second)
	moment := int(now.Sub(c.momentStart) / time.Second)
	changed := global != c.globalTime || moment != c.momentTime
	c.globalTime = global
	c.momentTime = moment
	return changed
}

func (c *Clock) resetLocked() {
	c.status = StatusStopped
	c.index = 0
	c.globalTime = 0
	c.momentTime = 0
	c.startTime = time.Time{}
	c.momentStart = time.Time{}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
