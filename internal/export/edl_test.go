package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuedeck/cuedeck-agent/internal/timeline"
)

func TestGenerateEDL_AudioEvents(t *testing.T) {
	cues := []Cue{
		{Title: "Opening", MediaPath: "/show/intro.mp3", DurationMs: 90000},
		{Title: "Monologue", DurationMs: 30400, ImportantNote: "Lights down"},
	}

	edl := GenerateEDL(cues, "Show", 25)

	for _, want := range []string{
		"TITLE: Show",
		"FCM: NON-DROP FRAME",
		"001  AX       A     C        00:00:00:00 00:01:30:00 00:00:00:00 00:01:30:00",
		"* FROM CLIP NAME:  Opening",
		"* MEDIA PATH:  /show/intro.mp3",
		"002  AX       A     C        00:00:00:00 00:00:30:10 00:01:30:00 00:02:00:10",
		"* IMPORTANT:  Lights down",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
	if strings.Count(edl, "* MEDIA PATH:") != 1 {
		t.Errorf("cue without media should have no MEDIA PATH line:\n%s", edl)
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	edl := GenerateEDL([]Cue{{Title: "x", DurationMs: 1000}}, "Drop", 29.97)
	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
}

func TestGenerateEDL_NegativeDurationIsZeroLength(t *testing.T) {
	edl := GenerateEDL([]Cue{{Title: "x", DurationMs: -5}}, "T", 25)
	if !strings.Contains(edl, "00:00:00:00 00:00:00:00 00:00:00:00 00:00:00:00") {
		t.Fatalf("expected zero-length event: %q", edl)
	}
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		ms   int
		fps  int
		want string
	}{
		{0, 25, "00:00:00:00"},
		{500, 30, "00:00:00:15"},
		{61000, 25, "00:01:01:00"},
		{3723000, 25, "01:02:03:00"},
	}
	for _, tc := range tests {
		if got := msToTimecode(tc.ms, tc.fps); got != tc.want {
			t.Errorf("msToTimecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
		}
	}
}

func TestCuesFromProduction(t *testing.T) {
	p := &timeline.Production{Moments: []timeline.Moment{
		{Title: "A", DurationSeconds: 60, Media: []timeline.MediaFile{{Path: "/a.mp3"}, {Path: "/b.mp3"}}},
		{Title: "B"},
	}}

	cues := CuesFromProduction(p)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].DurationMs != 60000 || cues[0].MediaPath != "/a.mp3" {
		t.Errorf("unexpected first cue: %+v", cues[0])
	}
	if cues[1].DurationMs != 0 || cues[1].MediaPath != "" {
		t.Errorf("unexpected second cue: %+v", cues[1])
	}
}

func TestWriteCueSheet(t *testing.T) {
	dir := t.TempDir()
	p := &timeline.Production{Name: "Late <Show>", Moments: []timeline.Moment{
		{Title: "Intro", DurationSeconds: 10},
		{Title: "Encore"},
	}}

	resp, err := WriteCueSheet(p, CueSheetRequest{OutputDir: dir})
	if err != nil {
		t.Fatalf("WriteCueSheet failed: %v", err)
	}

	if want := filepath.Join(dir, "Late _Show_.edl"); resp.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", resp.OutputPath, want)
	}
	if resp.CueCount != 2 || resp.Format != FormatEDL || resp.Status != "ok" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.UntimedCues) != 1 || resp.UntimedCues[0] != "Encore" {
		t.Errorf("UntimedCues = %v", resp.UntimedCues)
	}

	data, err := os.ReadFile(resp.OutputPath)
	if err != nil {
		t.Fatalf("read cue sheet: %v", err)
	}
	if !strings.HasPrefix(string(data), "TITLE: Late _Show_\n") {
		t.Errorf("unexpected header: %q", data)
	}
}

func TestWriteCueSheet_Rejects(t *testing.T) {
	p := &timeline.Production{Name: "x"}

	if _, err := WriteCueSheet(p, CueSheetRequest{OutputDir: t.TempDir(), Format: "xml"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := WriteCueSheet(p, CueSheetRequest{OutputDir: ""}); !errors.Is(err, ErrInvalidOutputDir) {
		t.Errorf("expected ErrInvalidOutputDir, got %v", err)
	}
}
