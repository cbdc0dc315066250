package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/timelinecraft/studio/internal/export"
)

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		layout := ws.Store().Layout()
		if len(layout) == 0 {
			WriteError(w, http.StatusBadRequest, "timeline has no segments", "BAD_REQUEST")
			return
		}

		p := ws.Project()
		videoRef := ws.Orchestrator().VideoRef()
		if req.IncludeVideo && videoRef == "" {
			WriteError(w, http.StatusConflict, "no compiled video to include", "NOT_READY")
			return
		}

		resp, err := cfg.Exporter.ExportTimeline(req,
			export.ManifestProject{ID: p.ID, Name: p.Name, Zoom: p.Zoom}, layout, videoRef)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		if req.IncludeVideo {
			path, err := cfg.Exporter.SaveVideo(r.Context(), videoRef, req.OutputDir)
			if err != nil {
				cfg.Logger.Error("failed to export video", "project_id", p.ID, "error", err)
				WriteError(w, http.StatusBadGateway, "failed to fetch compiled video", "DOWNLOAD_FAILED")
				return
			}
			resp.VideoPath = path
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// downloadVideoHandler streams the compiled video as an attachment.
func downloadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		ref := ws.Orchestrator().VideoRef()
		if ref == "" {
			WriteError(w, http.StatusConflict, "no compiled video yet", "NOT_READY")
			return
		}

		rc, size, err := cfg.Exporter.OpenVideo(r.Context(), ref)
		if err != nil {
			if errors.Is(err, export.ErrNoVideo) {
				writeDomainError(w, cfg.Logger, err)
				return
			}
			cfg.Logger.Error("failed to open compiled video", "video_ref", ref, "error", err)
			WriteError(w, http.StatusBadGateway, "failed to fetch compiled video", "DOWNLOAD_FAILED")
			return
		}
		defer rc.Close()

		h := w.Header()
		h.Set("Content-Type", "video/mp4")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.VideoFilename(time.Now())))
		if size >= 0 {
			h.Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, rc); err != nil {
			cfg.Logger.Warn("video download interrupted", "video_ref", ref, "error", err)
		}
	}
}

// previewVideoHandler feeds the in-app player. Unlike the download it is
// seekable and never forces an attachment.
func previewVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		ref := ws.Orchestrator().VideoRef()
		if ref == "" {
			WriteError(w, http.StatusConflict, "no compiled video yet", "NOT_READY")
			return
		}
		if err := cfg.Playback.ServeVideo(w, r, ref); err != nil {
			writeDomainError(w, cfg.Logger, err)
		}
	}
}
