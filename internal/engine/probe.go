package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// FFprobe reads media metadata with the ffprobe binary.
type FFprobe struct {
	Binary string
}

func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{Binary: binary}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFprobe) Probe(ctx context.Context, path string) (Metadata, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, p.Binary, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe failed for %s: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	return parseProbeOutput(out.Bytes())
}

func parseProbeOutput(data []byte) (Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return Metadata{}, fmt.Errorf("duration not found in ffprobe output")
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid duration %q: %w", probe.Format.Duration, err)
	}
	return Metadata{DurationSeconds: duration}, nil
}
