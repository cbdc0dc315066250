package project

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/timelinecraft/studio/internal/events"
	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
	"github.com/timelinecraft/studio/internal/timeline"
)

// Deps are shared by every workspace the manager opens.
type Deps struct {
	Repo      Repository
	Images    generation.ImageGenerator
	Compiler  generation.VideoCompiler
	Publisher Publisher
	// Release frees a reference image that was replaced or removed.
	Release segment.ReleaseFunc

	GenerateTimeout time.Duration
	CompileTimeout  time.Duration

	Logger *slog.Logger
}

// Manager creates, lists and deletes projects and keeps loaded ones open.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewManager(deps Deps) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:       deps,
		logger:     deps.Logger.With("component", "projects"),
		workspaces: make(map[string]*Workspace),
	}
}

func (m *Manager) Create(ctx context.Context, name string) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:        NewID(),
		Name:      normalizeName(name),
		Zoom:      timeline.DefaultZoom,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.deps.Repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	m.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	m.deps.Publisher.Publish(events.Event{Type: events.TypeProjectUpdated, ProjectID: p.ID, Data: p})
	return p, nil
}

func (m *Manager) List(ctx context.Context) ([]*Summary, error) {
	summaries, err := m.deps.Repo.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if summaries == nil {
		summaries = []*Summary{}
	}
	return summaries, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Project, error) {
	m.mu.Lock()
	ws := m.workspaces[id]
	m.mu.Unlock()
	if ws != nil {
		p := ws.Project()
		return &p, nil
	}

	p, err := m.deps.Repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Open returns the live workspace for id, loading it on first use.
func (m *Manager) Open(ctx context.Context, id string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[id]; ok {
		return ws, nil
	}

	p, err := m.deps.Repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}

	segments, err := m.deps.Repo.LoadSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	store, err := segment.Restore(segments)
	if err != nil {
		return nil, fmt.Errorf("restore segments: %w", err)
	}
	store.SetReleaseFunc(m.deps.Release)

	logger := m.deps.Logger.With("project_id", id)
	orch := generation.New(store, m.deps.Images, m.deps.Compiler, logger.With("component", "generation"))
	orch.SetTimeouts(m.deps.GenerateTimeout, m.deps.CompileTimeout)
	orch.SetVideoRef(p.VideoRef)

	ws := &Workspace{
		repo:      m.deps.Repo,
		store:     store,
		orch:      orch,
		publisher: m.deps.Publisher,
		logger:    logger,
		project:   *p,
	}
	ws.drag = timeline.NewDragController(ws)
	orch.SetNotifier(ws)

	if recovered := store.RecoverInterrupted(); len(recovered) > 0 {
		if err := ws.persist(ctx); err != nil {
			return nil, err
		}
		logger.Warn("interrupted generations marked as failed", "segments", len(recovered))
	}

	m.workspaces[id] = ws
	logger.Info("project opened", "segments", store.Len())
	return ws, nil
}

// Delete removes the project and every reference image its segments own.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ws, err := m.Open(ctx, id)
	if err != nil {
		return err
	}

	if err := m.deps.Repo.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	m.mu.Lock()
	delete(m.workspaces, id)
	m.mu.Unlock()
	ws.close()

	if m.deps.Release != nil {
		for _, seg := range ws.store.List() {
			if seg.ReferenceImage != "" {
				m.deps.Release(seg.ReferenceImage)
			}
		}
	}

	m.logger.Info("project deleted", "project_id", id)
	m.deps.Publisher.Publish(events.Event{Type: events.TypeProjectDeleted, ProjectID: id})
	return nil
}

// Workspaces returns the open workspaces ordered by project name.
func (m *Manager) Workspaces() []*Workspace {
	m.mu.Lock()
	out := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Project().Name < out[j].Project().Name
	})
	return out
}

// Status aggregates segment counts over the open workspaces.
type Status struct {
	OpenProjects int                    `json:"open_projects"`
	Segments     map[segment.Status]int `json:"segments"`
	Generating   int                    `json:"generating"`
	Compiling    int                    `json:"compiling"`
}

func (m *Manager) Status() Status {
	st := Status{Segments: make(map[segment.Status]int)}
	for _, ws := range m.Workspaces() {
		st.OpenProjects++
		for status, n := range ws.store.Summary() {
			st.Segments[status] += n
		}
		if ws.orch.Compiling() {
			st.Compiling++
		}
	}
	st.Generating = st.Segments[segment.StatusGenerating]
	return st
}
