package export

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuedeck/cuedeck-agent/internal/timeline"
)

const maxTitleLen = 80

var ErrUnsupportedFormat = errors.New("unsupported cue sheet format")

// CuesFromProduction lists the moments of p in running order. Moments without
// a duration get a zero-length cue.
func CuesFromProduction(p *timeline.Production) []Cue {
	cues := make([]Cue, 0, len(p.Moments))
	for _, m := range p.Moments {
		cue := Cue{
			Title:         m.Title,
			Notes:         m.Notes,
			ImportantNote: m.ImportantNote,
			DurationMs:    m.DurationSeconds * 1000,
		}
		if len(m.Media) > 0 {
			cue.MediaPath = m.Media[0].Path
		}
		cues = append(cues, cue)
	}
	return cues
}

// GenerateEDL renders cues as a CMX3600-style EDL. Every cue is an audio event
// on reel AX; record time accumulates across cues.
func GenerateEDL(cues []Cue, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	lines := []string{"TITLE: " + title}
	if isDropFrame(frameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordMs := 0
	for i, cue := range cues {
		dur := max(cue.DurationMs, 0)
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "A",
				msToTimecode(0, fps), msToTimecode(dur, fps),
				msToTimecode(recordMs, fps), msToTimecode(recordMs+dur, fps)),
			"* FROM CLIP NAME:  "+SanitizeName(cue.Title, maxTitleLen),
		)
		if cue.MediaPath != "" {
			lines = append(lines, "* MEDIA PATH:  "+cue.MediaPath)
		}
		if note := SanitizeName(cue.ImportantNote, 0); note != "" {
			lines = append(lines, "* IMPORTANT:  "+note)
		}
		recordMs += dur
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteCueSheet writes the production's run sheet into req.OutputDir, named
// after the production.
func WriteCueSheet(p *timeline.Production, req CueSheetRequest) (CueSheetResponse, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatEDL
	}
	if format != FormatEDL {
		return CueSheetResponse{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return CueSheetResponse{}, err
	}

	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}

	name := SanitizeName(p.Name, maxTitleLen)
	if name == "" {
		name = "production"
	}

	cues := CuesFromProduction(p)
	untimed := []string{}
	for _, c := range cues {
		if c.DurationMs <= 0 {
			untimed = append(untimed, c.Title)
		}
	}

	outPath := filepath.Join(req.OutputDir, name+"."+FormatEDL)
	content := GenerateEDL(cues, name, frameRate)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return CueSheetResponse{}, fmt.Errorf("failed to write cue sheet: %w", err)
	}

	return CueSheetResponse{
		Status:      "ok",
		Format:      format,
		OutputPath:  outPath,
		CueCount:    len(cues),
		UntimedCues: untimed,
	}, nil
}

func isDropFrame(frameRate float64) bool {
	return math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d",
		totalSeconds/3600, (totalSeconds/60)%60, totalSeconds%60, totalFrames%fps)
}
