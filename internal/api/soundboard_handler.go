package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cuedeck/cuedeck-agent/internal/freesound"
)

func searchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			WriteError(w, http.StatusBadRequest, "q is required", "BAD_REQUEST")
			return
		}
		results := cfg.Store.Board().Search(r.Context(), query)
		if results == nil {
			results = []freesound.Result{}
		}
		WriteJSON(w, http.StatusOK, results)
	}
}

func clearSearchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Store.Board().ClearSearchResults()
		WriteJSON(w, http.StatusOK, OKResponse{Status: "ok"})
	}
}

func addSoundHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var result freesound.Result
		if !decodeBody(w, r, &result) {
			return
		}
		sound, err := cfg.Store.Board().AddToBoard(result)
		if err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, sound)
	}
}

func soundHandler(cfg ServerConfig, action func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(chi.URLParam(r, "id")); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Board().Snapshot())
	}
}

func soundVolumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VolumeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Volume == nil {
			WriteError(w, http.StatusBadRequest, "volume is required", "BAD_REQUEST")
			return
		}
		soundHandler(cfg, func(id string) error {
			return cfg.Store.Board().SetVolume(id, *req.Volume)
		})(w, r)
	}
}

func playPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var result freesound.Result
		if !decodeBody(w, r, &result) {
			return
		}
		if err := cfg.Store.Board().PlayPreview(result); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Board().Snapshot())
	}
}

func stopPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Store.Board().StopPreview()
		WriteJSON(w, http.StatusOK, cfg.Store.Board().Snapshot())
	}
}

func stopAllHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Store.StopAllSounds()
		WriteJSON(w, http.StatusOK, cfg.Store.Board().Snapshot())
	}
}
