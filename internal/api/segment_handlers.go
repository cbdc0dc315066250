package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/timelinecraft/studio/internal/refstore"
	"github.com/timelinecraft/studio/internal/segment"
)

// multipart overhead allowed on top of the image limit
const uploadSlack = 1 << 20

func createSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req CreateSegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var (
			seg segment.Segment
			err error
		)
		switch {
		case req.Duration != nil:
			seg, err = ws.CreateSegment(r.Context(), *req.Duration)
		case req.StartTime != nil && req.EndTime != nil:
			seg, err = ws.CreateRange(r.Context(), *req.StartTime, *req.EndTime)
		default:
			WriteError(w, http.StatusBadRequest, "duration or start_time and end_time are required", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, seg)
	}
}

func updateSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req UpdateSegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "sid")
		if req.Description == nil {
			seg, err := ws.Store().Get(id)
			if err != nil {
				writeDomainError(w, cfg.Logger, err)
				return
			}
			WriteJSON(w, http.StatusOK, seg)
			return
		}

		seg, err := ws.UpdateDescription(r.Context(), id, *req.Description)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, seg)
	}
}

func deleteSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		if _, err := ws.DeleteSegment(r.Context(), chi.URLParam(r, "sid")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func selectSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		id := chi.URLParam(r, "sid")
		selected, err := ws.Select(id)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SelectResponse{SegmentID: id, Selected: selected})
	}
}

func getReferenceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		seg, err := ws.Store().Get(chi.URLParam(r, "sid"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		if seg.ReferenceImage == "" {
			WriteError(w, http.StatusNotFound, "segment has no reference image", "NOT_FOUND")
			return
		}

		data, contentType, err := cfg.References.Open(r.Context(), seg.ReferenceImage)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// uploadReferenceHandler accepts a multipart "image" field and replaces the
// segment's reference image. Nothing is stored when validation fails.
func uploadReferenceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		id := chi.URLParam(r, "sid")
		if _, err := ws.Store().Get(id); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, refstore.MaxUploadBytes+uploadSlack)
		file, header, err := r.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusBadRequest, "image must be 5MB or smaller", "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusBadRequest, "please choose an image file", "BAD_REQUEST")
			return
		}
		defer file.Close()

		declared := header.Header.Get("Content-Type")
		if declared == "application/octet-stream" {
			declared = ""
		}
		ref, err := cfg.References.Upload(r.Context(), id, declared, file)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		seg, err := ws.SetReference(r.Context(), id, ref)
		if err != nil {
			if errors.Is(err, segment.ErrNotFound) {
				cfg.References.Release(ref)
			}
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, seg)
	}
}

func removeReferenceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		seg, err := ws.SetReference(r.Context(), chi.URLParam(r, "sid"), "")
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, seg)
	}
}
