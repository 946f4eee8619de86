package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/export"
	"github.com/cuedeck/cuedeck-agent/internal/player"
	"github.com/cuedeck/cuedeck-agent/internal/production"
	"github.com/cuedeck/cuedeck-agent/internal/soundboard"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/state", stateHandler(cfg))
		r.Get("/events", eventsHandler(cfg))

		r.Get("/production", productionHandler(cfg))
		r.Post("/production/export", exportCueSheetHandler(cfg))

		r.Route("/timeline", func(r chi.Router) {
			r.Post("/start", timelineAction(cfg, cfg.Store.StartTimeline))
			r.Post("/pause", timelineAction(cfg, cfg.Store.PauseTimeline))
			r.Post("/stop", timelineAction(cfg, cfg.Store.StopTimeline))
			r.Post("/next", timelineAction(cfg, cfg.Store.NextMoment))
			r.Post("/previous", timelineAction(cfg, cfg.Store.PreviousMoment))
			r.Post("/goto", goToHandler(cfg))
		})

		r.Route("/library", func(r chi.Router) {
			r.Post("/directory", loadDirectoryHandler(cfg))
			r.Post("/files", selectFilesHandler(cfg))
			r.Post("/rescan", rescanHandler(cfg))
		})

		r.Route("/player", func(r chi.Router) {
			r.Post("/load", loadTrackHandler(cfg))
			r.Post("/play", playerAction(cfg, cfg.Store.Player().Play))
			r.Post("/pause", playerAction(cfg, cfg.Store.Player().Pause))
			r.Post("/stop", playerAction(cfg, cfg.Store.Player().Stop))
			r.Post("/loop", playerAction(cfg, cfg.Store.Player().ToggleLoop))
			r.Post("/seek", seekHandler(cfg))
			r.Post("/volume", playerVolumeHandler(cfg))
		})

		r.Route("/soundboard", func(r chi.Router) {
			r.Get("/search", searchHandler(cfg))
			r.Delete("/search", clearSearchHandler(cfg))
			r.Post("/sounds", addSoundHandler(cfg))
			r.Post("/sounds/{id}/play", soundHandler(cfg, cfg.Store.Board().Play))
			r.Post("/sounds/{id}/stop", soundHandler(cfg, cfg.Store.Board().Stop))
			r.Put("/sounds/{id}/volume", soundVolumeHandler(cfg))
			r.Delete("/sounds/{id}", soundHandler(cfg, cfg.Store.Board().Remove))
			r.Post("/preview", playPreviewHandler(cfg))
			r.Delete("/preview", stopPreviewHandler(cfg))
			r.Post("/stop-all", stopAllHandler(cfg))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(LoopbackOnly())
		r.Get("/media/{token}", mediaHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Store.Snapshot()

		resp := StatusResponse{
			Timeline:     snap.Timeline,
			LibraryRoot:  snap.Library.RootName,
			LibraryFiles: len(snap.Library.Files),
			LibrarySize:  humanize.Bytes(snap.Library.TotalBytes),
			IsScanning:   snap.Library.IsScanning,
			PlayerState:  snap.Player.State,
			BoardSounds:  len(snap.Soundboard.Sounds),
			Listeners:    cfg.Store.Broadcaster().ListenerCount(),
		}
		if snap.Production != nil {
			resp.Production = snap.Production.Name
		}
		if cfg.Doctor != nil {
			resp.Engine = cfg.Doctor.Get(r.Context())
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func stateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Store.Snapshot())
	}
}

func productionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Store.Production())
	}
}

func exportCueSheetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.CueSheetRequest
		if !decodeBody(w, r, &req) {
			return
		}

		resp, err := cfg.Store.ExportCueSheet(req)
		if err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func timelineAction(cfg ServerConfig, action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action()
		WriteJSON(w, http.StatusOK, cfg.Store.Snapshot().Timeline)
	}
}

func goToHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GoToRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Index == nil {
			WriteError(w, http.StatusBadRequest, "index is required", "BAD_REQUEST")
			return
		}
		cfg.Store.GoToMoment(*req.Index)
		WriteJSON(w, http.StatusOK, cfg.Store.Snapshot().Timeline)
	}
}

func loadDirectoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DirectoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Store.LoadDirectory(r.Context(), req.Path); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Library().Snapshot())
	}
}

func selectFilesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FilesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n := cfg.Store.SelectFiles(r.Context(), req.Paths)
		WriteJSON(w, http.StatusOK, FilesResponse{Accepted: n})
	}
}

func rescanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Store.Rescan(r.Context()); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Library().Snapshot())
	}
}

func loadTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadTrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Store.LoadTrack(r.Context(), req.Path); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Player().State())
	}
}

func playerAction(cfg ServerConfig, action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(); err != nil {
			writeActionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Store.Player().State())
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Seconds == nil {
			WriteError(w, http.StatusBadRequest, "seconds is required", "BAD_REQUEST")
			return
		}
		playerAction(cfg, func() error {
			return cfg.Store.Player().Seek(*req.Seconds)
		})(w, r)
	}
}

func playerVolumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VolumeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Volume == nil {
			WriteError(w, http.StatusBadRequest, "volume is required", "BAD_REQUEST")
			return
		}
		playerAction(cfg, func() error {
			return cfg.Store.Player().SetVolume(*req.Volume)
		})(w, r)
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Media.ServeLocator(w, r, chi.URLParam(r, "token")); err != nil {
			cfg.Logger.Warn("media request failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to read media", "INTERNAL_ERROR")
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

// writeActionError maps domain errors onto HTTP statuses.
func writeActionError(w http.ResponseWriter, cfg ServerConfig, err error) {
	var mediaErr *player.MediaLoadError
	switch {
	case errors.As(err, &mediaErr):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "MEDIA_LOAD_ERROR")
	case errors.Is(err, production.ErrTrackNotFound), errors.Is(err, soundboard.ErrSoundNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, catalog.ErrPermissionDenied):
		WriteError(w, http.StatusForbidden, err.Error(), "PERMISSION_DENIED")
	case errors.Is(err, catalog.ErrNotDirectory),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, soundboard.ErrNoPreview),
		errors.Is(err, export.ErrInvalidOutputDir),
		errors.Is(err, export.ErrUnsupportedFormat):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		cfg.Logger.Error("action failed", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
