package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
)

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req GenerateRequest
		if !decodeOptional(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "sid")
		orch := ws.Orchestrator()
		if err := orch.CheckImages(id); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		opts := generation.Options{StyleHint: styleHint(req.StyleHint, cfg.StyleHint)}
		cfg.Background.Go("generate", func(ctx context.Context) {
			if _, err := orch.RequestImages(ctx, id, opts); err != nil {
				logBackgroundError(cfg, "generate", id, err)
			}
		})
		WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "generating", SegmentID: id})
	}
}

func regenerateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req RegenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		target, err := segment.ParseTarget(req.Target)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		id := chi.URLParam(r, "sid")
		orch := ws.Orchestrator()
		if err := orch.CheckRegeneration(id, target, req.Feedback); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		opts := generation.Options{StyleHint: styleHint(req.StyleHint, cfg.StyleHint)}
		feedback := req.Feedback
		cfg.Background.Go("regenerate", func(ctx context.Context) {
			if _, err := orch.RequestRegeneration(ctx, id, target, feedback, opts); err != nil {
				logBackgroundError(cfg, "regenerate", id, err)
			}
		})
		WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "generating", SegmentID: id})
	}
}

func readinessHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		orch := ws.Orchestrator()
		WriteJSON(w, http.StatusOK, ReadinessResponse{
			Ready:     generation.CompileReadiness(ws.Store().List()),
			Compiling: orch.Compiling(),
			VideoRef:  orch.VideoRef(),
		})
	}
}

func compileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		if err := ws.Orchestrator().CheckCompile(); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		cfg.Background.Go("compile", func(ctx context.Context) {
			if _, err := ws.Compile(ctx); err != nil {
				logBackgroundError(cfg, "compile", ws.ID(), err)
			}
		})
		WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "compiling"})
	}
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func styleHint(requested, fallback string) string {
	if s := strings.TrimSpace(requested); s != "" {
		return s
	}
	return fallback
}

func logBackgroundError(cfg ServerConfig, task, id string, err error) {
	if errors.Is(err, generation.ErrAlreadyInProgress) {
		cfg.Logger.Info("background request skipped", "task", task, "id", id, "reason", err)
		return
	}
	cfg.Logger.Error("background request failed", "task", task, "id", id, "error", err)
}
