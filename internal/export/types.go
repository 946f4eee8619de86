package export

// FormatEDL is the only supported cue sheet format.
const FormatEDL = "edl"

const DefaultFrameRate = 25.0

type CueSheetRequest struct {
	OutputDir string  `json:"output_dir"`
	Format    string  `json:"format"`
	FrameRate float64 `json:"frame_rate"`
}

// Cue is one moment of the production as it appears on the run sheet.
type Cue struct {
	Title         string
	Notes         string
	ImportantNote string
	MediaPath     string
	DurationMs    int
}

type CueSheetResponse struct {
	Status      string   `json:"status"`
	Format      string   `json:"format"`
	OutputPath  string   `json:"output_path"`
	CueCount    int      `json:"cue_count"`
	UntimedCues []string `json:"untimed_cues"`
}
