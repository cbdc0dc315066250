package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/timelinecraft/studio/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoopbackGuard())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeWS)
		}

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", getProjectHandler(cfg))
			r.Delete("/", deleteProjectHandler(cfg))
			r.Put("/zoom", zoomHandler(cfg))
			r.Get("/timeline", timelineHandler(cfg))
			r.Post("/timeline/pointer", pointerHandler(cfg))

			r.Post("/segments", createSegmentHandler(cfg))
			r.Route("/segments/{sid}", func(r chi.Router) {
				r.Patch("/", updateSegmentHandler(cfg))
				r.Delete("/", deleteSegmentHandler(cfg))
				r.Post("/select", selectSegmentHandler(cfg))
				r.Get("/reference", getReferenceHandler(cfg))
				r.Put("/reference", uploadReferenceHandler(cfg))
				r.Delete("/reference", removeReferenceHandler(cfg))
				r.Post("/generate", generateHandler(cfg))
				r.Post("/regenerate", regenerateHandler(cfg))
			})

			r.Get("/compile/readiness", readinessHandler(cfg))
			r.Post("/compile", compileHandler(cfg))
			r.Get("/video/download", downloadVideoHandler(cfg))
			r.Get("/video/preview", previewVideoHandler(cfg))
			r.Post("/export", exportHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := cfg.Projects.List(r.Context())
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		st := cfg.Projects.Status()
		state := "idle"
		switch {
		case st.Compiling > 0:
			state = "compiling"
		case st.Generating > 0:
			state = "generating"
		}

		resp := StatusResponse{
			State:           state,
			ProjectsCount:   len(summaries),
			OpenProjects:    st.OpenProjects,
			SegmentsByState: st.Segments,
			Generating:      st.Generating,
			Compiling:       st.Compiling,
		}
		if cfg.Events != nil {
			resp.Subscribers = cfg.Events.ClientCount()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := cfg.Projects.List(r.Context())
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectsResponse{Projects: summaries})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		p, err := cfg.Projects.Create(r.Context(), req.Name)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ProjectResponse{Project: *p})
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		view := ws.View(containerWidth(r))
		WriteJSON(w, http.StatusOK, ProjectResponse{Project: ws.Project(), Timeline: &view})
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func zoomHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req ZoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var (
			p   project.Project
			err error
		)
		switch {
		case req.Zoom != nil:
			p, err = ws.SetZoom(r.Context(), *req.Zoom)
		case req.Step == "in" || req.Step == "out":
			p, err = ws.StepZoom(r.Context(), req.Step == "in")
		default:
			WriteError(w, http.StatusBadRequest, "zoom or step (in|out) is required", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectResponse{Project: p})
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, ws.View(containerWidth(r)))
	}
}

func pointerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := openWorkspace(w, r, cfg)
		if !ok {
			return
		}

		var req PointerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := ws.Pointer(project.PointerKind(req.Type), req.X, req.ContainerWidth)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		resp := PointerResponse{State: string(ws.DragState()), Committed: res.Committed}
		if res.Committed {
			seg := res.Segment
			resp.Segment = &seg
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// openWorkspace loads the {id} project or writes the error response.
func openWorkspace(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*project.Workspace, bool) {
	ws, err := cfg.Projects.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, cfg.Logger, err)
		return nil, false
	}
	return ws, true
}

func containerWidth(r *http.Request) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get("container_width"), 64)
	if err != nil || !(v >= 0) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
