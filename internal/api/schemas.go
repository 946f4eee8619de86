package api

import (
	"github.com/cuedeck/cuedeck-agent/internal/engine"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type OKResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	Production   string               `json:"production"`
	Timeline     timeline.State       `json:"timeline"`
	LibraryRoot  string               `json:"library_root,omitempty"`
	LibraryFiles int                  `json:"library_files"`
	LibrarySize  string               `json:"library_size"`
	IsScanning   bool                 `json:"is_scanning"`
	PlayerState  string               `json:"player_state"`
	BoardSounds  int                  `json:"board_sounds"`
	Listeners    int                  `json:"listeners"`
	Engine       *engine.Capabilities `json:"engine,omitempty"`
}

type GoToRequest struct {
	Index *int `json:"index"`
}

type DirectoryRequest struct {
	Path string `json:"path"`
}

type FilesRequest struct {
	Paths []string `json:"paths"`
}

type FilesResponse struct {
	Accepted int `json:"accepted"`
}

type LoadTrackRequest struct {
	Path string `json:"path"`
}

type SeekRequest struct {
	Seconds *float64 `json:"seconds"`
}

type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}
