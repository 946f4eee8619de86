package engine

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// DepInfo is the availability of one external binary.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports whether playback and probing can work on this host.
type Capabilities struct {
	Executables map[string]DepInfo `json:"executables"`
	CanPlay     bool               `json:"can_play"`
	CanProbe    bool               `json:"can_probe"`
	ProbedAt    time.Time          `json:"probed_at"`
}

// CheckFunc inspects one binary.
type CheckFunc func(ctx context.Context, binary string) DepInfo

// CheckBinary resolves binary on PATH and reads the first line of its
// -version output.
func CheckBinary(ctx context.Context, binary string) DepInfo {
	path, err := exec.LookPath(binary)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}

	info := DepInfo{Available: true, Path: path}
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		info.Version = sc.Text()
	}
	return info
}

// Doctor caches a capability probe of the player and prober binaries.
type Doctor struct {
	player string
	prober string
	check  CheckFunc
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewDoctor(player, prober string, check CheckFunc, logger *slog.Logger) *Doctor {
	if check == nil {
		check = CheckBinary
	}
	return &Doctor{
		player: player,
		prober: prober,
		check:  check,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *Doctor) Get(ctx context.Context) *Capabilities {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *Doctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *Doctor) Refresh(ctx context.Context) *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	playerInfo := d.check(ctx, d.player)
	proberInfo := d.check(ctx, d.prober)

	caps := &Capabilities{
		Executables: map[string]DepInfo{
			d.player: playerInfo,
			d.prober: proberInfo,
		},
		CanPlay:  playerInfo.Available,
		CanProbe: proberInfo.Available,
		ProbedAt: time.Now(),
	}

	if !caps.CanPlay || !caps.CanProbe {
		d.logger.Warn("media binaries missing",
			"player", d.player, "player_ok", caps.CanPlay,
			"prober", d.prober, "prober_ok", caps.CanProbe,
		)
	}

	d.cached = caps
	return caps
}

// Invalidate clears the cached capabilities.
func (d *Doctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
