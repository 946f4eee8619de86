package timeline

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

//go:embed sample.yaml
var sampleProduction []byte

var ErrNoMoments = errors.New("production has no moments")

type MediaFile struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Path     string  `json:"path" yaml:"path"`
	Type     string  `json:"type" yaml:"type"`
	Size     int64   `json:"size,omitempty" yaml:"size"`
	Duration float64 `json:"duration,omitempty" yaml:"duration"`
}

// Moment is one cue in the run of show.
type Moment struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	Notes         string `json:"notes" yaml:"notes"`
	ImportantNote string `json:"important_note,omitempty" yaml:"important_note"`
	// Duration is the "mm:ss" label shown to the operator.
	Duration        string      `json:"duration,omitempty" yaml:"duration"`
	DurationSeconds int         `json:"duration_seconds,omitempty" yaml:"duration_seconds"`
	Media           []MediaFile `json:"media" yaml:"media"`
	Order           int         `json:"order" yaml:"order"`
}

type Production struct {
	ID                     string    `json:"id" yaml:"id"`
	Name                   string    `json:"name" yaml:"name"`
	Description            string    `json:"description,omitempty" yaml:"description"`
	Moments                []Moment  `json:"moments" yaml:"moments"`
	CreatedAt              time.Time `json:"created_at,omitempty" yaml:"created_at"`
	UpdatedAt              time.Time `json:"updated_at,omitempty" yaml:"updated_at"`
	TotalEstimatedDuration int       `json:"total_estimated_duration" yaml:"-"`
}

// Sample returns the built-in demo production.
func Sample() (*Production, error) {
	return ParseProduction(sampleProduction)
}

// LoadProduction reads a production script. YAML and JSON are both
// accepted.
func LoadProduction(path string) (*Production, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read production: %w", err)
	}
	p, err := ParseProduction(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProduction decodes and normalises a production: moments are ordered,
// missing durations are derived from their labels and the total is summed.
func ParseProduction(data []byte) (*Production, error) {
	var p Production
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse production: %w", err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Production) normalize() error {
	if len(p.Moments) == 0 {
		return ErrNoMoments
	}

	seen := make(map[string]bool, len(p.Moments))
	for i := range p.Moments {
		m := &p.Moments[i]
		if m.ID == "" {
			m.ID = fmt.Sprintf("moment-%d", i+1)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate moment id %q", m.ID)
		}
		seen[m.ID] = true

		if m.Order == 0 {
			m.Order = i + 1
		}
		if m.DurationSeconds == 0 && m.Duration != "" {
			secs, err := ParseDuration(m.Duration)
			if err != nil {
				return fmt.Errorf("moment %q: %w", m.ID, err)
			}
			m.DurationSeconds = secs
		}
		if m.Duration == "" && m.DurationSeconds > 0 {
			m.Duration = FormatDuration(m.DurationSeconds)
		}
		if m.Media == nil {
			m.Media = []MediaFile{}
		}
	}

	sort.SliceStable(p.Moments, func(i, j int) bool {
		return p.Moments[i].Order < p.Moments[j].Order
	})

	p.TotalEstimatedDuration = 0
	for _, m := range p.Moments {
		p.TotalEstimatedDuration += m.DurationSeconds
	}
	return nil
}

// FormatDuration renders whole seconds as "mm:ss". Minutes are not capped
// at 59.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ParseDuration reads a "mm:ss" label.
func ParseDuration(label string) (int, error) {
	minStr, secStr, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: want mm:ss", label)
	}
	mins, err := strconv.Atoi(minStr)
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("invalid minutes in %q", label)
	}
	secs, err := strconv.Atoi(secStr)
	if err != nil || secs < 0 || secs > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", label)
	}
	return mins*60 + secs, nil
}
