package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/timelinecraft/studio/internal/events"
	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
	"github.com/timelinecraft/studio/internal/timeline"
)

// Publisher receives every state change of a workspace.
type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

const persistTimeout = 10 * time.Second

// Workspace is a loaded project. Every segment mutation goes through it so
// the change is saved and broadcast.
type Workspace struct {
	repo      Repository
	store     *segment.Store
	orch      *generation.Orchestrator
	drag      *timeline.DragController
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	project Project
	closed  bool

	saveMu   sync.Mutex
	updateMu sync.Mutex
}

func (w *Workspace) ID() string {
	return w.project.ID
}

func (w *Workspace) Project() Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.project
}

func (w *Workspace) Store() *segment.Store {
	return w.store
}

func (w *Workspace) Orchestrator() *generation.Orchestrator {
	return w.orch
}

// CreateSegment appends a segment of the given duration.
func (w *Workspace) CreateSegment(ctx context.Context, duration float64) (segment.Segment, error) {
	seg, err := w.store.Create(duration)
	if err != nil {
		return segment.Segment{}, err
	}
	w.changed(ctx, seg)
	return seg, nil
}

// CreateRange appends a segment as long as [start, end].
func (w *Workspace) CreateRange(ctx context.Context, start, end float64) (segment.Segment, error) {
	seg, err := w.store.CreateRange(start, end)
	if err != nil {
		return segment.Segment{}, err
	}
	w.changed(ctx, seg)
	return seg, nil
}

// Create satisfies timeline.SegmentCreator for committed drags.
func (w *Workspace) Create(duration float64) (segment.Segment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return w.CreateSegment(ctx, duration)
}

func (w *Workspace) UpdateDescription(ctx context.Context, id, description string) (segment.Segment, error) {
	seg, err := w.store.Update(id, segment.Patch{Description: &description})
	if err != nil {
		return segment.Segment{}, err
	}
	w.changed(ctx, seg)
	return seg, nil
}

// SetReference attaches ref, releasing any previous reference. An empty ref
// removes the reference image.
func (w *Workspace) SetReference(ctx context.Context, id, ref string) (segment.Segment, error) {
	seg, err := w.store.Update(id, segment.Patch{ReferenceImage: &ref})
	if err != nil {
		return segment.Segment{}, err
	}
	w.changed(ctx, seg)
	return seg, nil
}

func (w *Workspace) DeleteSegment(ctx context.Context, id string) (segment.Segment, error) {
	seg, err := w.store.Delete(id)
	if err != nil {
		return segment.Segment{}, err
	}
	w.save(ctx)
	w.publish(events.TypeSegmentDeleted, map[string]string{"id": seg.ID})
	return seg, nil
}

// Select toggles the selection and reports whether id is now selected.
func (w *Workspace) Select(id string) (bool, error) {
	return w.store.Select(id)
}

// PointerKind is a timeline pointer event.
type PointerKind string

const (
	PointerPress   PointerKind = "press"
	PointerMove    PointerKind = "move"
	PointerRelease PointerKind = "release"
	PointerLeave   PointerKind = "leave"
)

// Pointer feeds one pointer event to the drag controller at the project's
// current zoom.
func (w *Workspace) Pointer(kind PointerKind, x, containerWidth float64) (timeline.DragResult, error) {
	vp := timeline.Viewport{Zoom: w.Project().Zoom, ContainerWidth: containerWidth}
	switch kind {
	case PointerPress:
		w.drag.Press(x, vp)
	case PointerMove:
		w.drag.Move(x, vp)
	case PointerRelease:
		return w.drag.Release()
	case PointerLeave:
		return w.drag.Leave()
	default:
		return timeline.DragResult{}, fmt.Errorf("%w: unknown pointer event %q", segment.ErrInvalidInput, kind)
	}
	return timeline.DragResult{}, nil
}

func (w *Workspace) DragState() timeline.DragState {
	return w.drag.State()
}

// SetZoom stores zoom clamped to the allowed range.
func (w *Workspace) SetZoom(ctx context.Context, zoom float64) (Project, error) {
	return w.updateProject(ctx, func(p *Project) {
		p.Zoom = timeline.ClampZoom(zoom)
	})
}

// StepZoom zooms in or out by one step.
func (w *Workspace) StepZoom(ctx context.Context, in bool) (Project, error) {
	return w.updateProject(ctx, func(p *Project) {
		if in {
			p.Zoom = timeline.ZoomIn(p.Zoom)
		} else {
			p.Zoom = timeline.ZoomOut(p.Zoom)
		}
	})
}

// Compile runs a video compile once the timeline passes CheckCompile and
// broadcasts a failure. Success is broadcast through VideoCompiled.
func (w *Workspace) Compile(ctx context.Context) (string, error) {
	ref, err := "", w.orch.CheckCompile()
	if err == nil {
		ref, err = w.orch.RequestVideoCompile(ctx)
	}
	if err != nil && !errors.Is(err, generation.ErrAlreadyInProgress) {
		w.publish(events.TypeCompileFailed, map[string]string{"error": err.Error()})
	}
	return ref, err
}

// SegmentChanged persists and broadcasts a change made by the orchestrator.
func (w *Workspace) SegmentChanged(seg segment.Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	w.changed(ctx, seg)
}

// VideoCompiled records the new video on the project.
func (w *Workspace) VideoCompiled(ref string, changed []segment.Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := w.persist(ctx); err != nil {
		w.logger.Error("failed to persist compiled segments", "error", err)
	}
	if _, err := w.updateProject(ctx, func(p *Project) { p.VideoRef = ref }); err != nil {
		w.logger.Error("failed to record video", "video_ref", ref, "error", err)
	}

	ids := make([]string, len(changed))
	for i, s := range changed {
		ids[i] = s.ID
	}
	w.publish(events.TypeVideoCompiled, map[string]any{"video_ref": ref, "segments": ids})
}

// PlacedSegment is a segment with its timeline position in seconds and pixels.
type PlacedSegment struct {
	segment.Segment
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
	Left     float64 `json:"left"`
	Width    float64 `json:"width"`
	Selected bool    `json:"selected"`
	InFlight bool    `json:"in_flight"`
}

type DragPreview struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// TimelineView is everything needed to draw the timeline at one width.
type TimelineView struct {
	ProjectID       string          `json:"project_id"`
	Zoom            float64         `json:"zoom"`
	ContainerWidth  float64         `json:"container_width"`
	PixelsPerSecond float64         `json:"pixels_per_second"`
	TimelineWidth   float64         `json:"timeline_width"`
	TotalDuration   float64         `json:"total_duration"`
	Ticks           []timeline.Tick `json:"ticks"`
	Segments        []PlacedSegment `json:"segments"`
	Drag            *DragPreview    `json:"drag,omitempty"`
	CanCompile      bool            `json:"can_compile"`
	Compiling       bool            `json:"compiling"`
	VideoRef        string          `json:"video_ref,omitempty"`
}

func (w *Workspace) View(containerWidth float64) TimelineView {
	p := w.Project()
	zoom := p.Zoom
	selected, hasSelection := w.store.Selected()

	layout := w.store.Layout()
	segs := make([]segment.Segment, len(layout))
	placed := make([]PlacedSegment, len(layout))
	total := 0.0
	for i, pl := range layout {
		segs[i] = pl.Segment
		total += pl.Duration
		left := timeline.PixelAt(pl.Offset, zoom, containerWidth)
		placed[i] = PlacedSegment{
			Segment:  pl.Segment,
			Offset:   pl.Offset,
			Duration: pl.Duration,
			Left:     left,
			Width:    timeline.PixelAt(pl.Offset+pl.Duration, zoom, containerWidth) - left,
			Selected: hasSelection && selected.ID == pl.Segment.ID,
			InFlight: w.orch.InFlight(pl.Segment.ID),
		}
	}

	view := TimelineView{
		ProjectID:       p.ID,
		Zoom:            zoom,
		ContainerWidth:  containerWidth,
		PixelsPerSecond: timeline.PixelsPerSecond(containerWidth) * timeline.ClampZoom(zoom),
		TimelineWidth:   timeline.TimelineWidth(zoom, containerWidth),
		TotalDuration:   total,
		Ticks:           timeline.RulerTicks(zoom, containerWidth),
		Segments:        placed,
		CanCompile:      generation.CompileReadiness(segs),
		Compiling:       w.orch.Compiling(),
		VideoRef:        w.orch.VideoRef(),
	}
	if start, end, ok := w.drag.Preview(); ok {
		left := timeline.PixelAt(start, zoom, containerWidth)
		view.Drag = &DragPreview{
			Start: start,
			End:   end,
			Left:  left,
			Width: timeline.PixelAt(end, zoom, containerWidth) - left,
		}
	}
	return view
}

func (w *Workspace) changed(ctx context.Context, seg segment.Segment) {
	w.save(ctx)
	w.publish(events.TypeSegmentChanged, seg)
}

// save persists a mutation already applied in memory. The store stays
// authoritative when the save fails; the next successful save writes the
// full snapshot.
func (w *Workspace) save(ctx context.Context) {
	if err := w.persist(ctx); err != nil {
		w.logger.Error("failed to persist segments, will retry on next change", "project_id", w.ID(), "error", err)
	}
}

// persist writes the store's current contents. Saves are serialized and each
// takes its snapshot under the save lock, so the last save always wins with
// the latest state.
func (w *Workspace) persist(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	if w.isClosed() {
		return nil
	}
	if err := w.repo.SaveSegments(ctx, w.project.ID, w.store.List()); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	return nil
}

func (w *Workspace) updateProject(ctx context.Context, fn func(p *Project)) (Project, error) {
	w.updateMu.Lock()
	defer w.updateMu.Unlock()

	w.mu.Lock()
	next := w.project
	fn(&next)
	next.UpdatedAt = time.Now().UTC()
	closed := w.closed
	w.mu.Unlock()

	if !closed {
		if err := w.repo.UpdateProject(ctx, &next); err != nil {
			return Project{}, fmt.Errorf("update project: %w", err)
		}
	}

	w.mu.Lock()
	w.project = next
	w.mu.Unlock()

	w.publish(events.TypeProjectUpdated, next)
	return next, nil
}

func (w *Workspace) publish(t events.Type, data any) {
	if w.isClosed() {
		return
	}
	w.publisher.Publish(events.Event{Type: t, ProjectID: w.project.ID, Data: data})
}

func (w *Workspace) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// close detaches the workspace from storage. Late completions from requests
// still in flight become no-ops.
func (w *Workspace) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
