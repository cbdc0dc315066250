package timeline

import (
	"math"
	"sync"

	"github.com/timelinecraft/studio/internal/segment"
)

// MinSegmentDuration is the drag length a gesture must exceed to commit.
const MinSegmentDuration = 0.5

// SegmentCreator is the part of segment.Store a drag needs.
type SegmentCreator interface {
	Create(duration float64) (segment.Segment, error)
}

type DragState string

const (
	DragIdle     DragState = "idle"
	DragDragging DragState = "dragging"
)

// Viewport is the zoom and container width pointer coordinates refer to.
type Viewport struct {
	Zoom           float64
	ContainerWidth float64
}

// DragResult describes how a gesture ended.
type DragResult struct {
	Committed bool
	Start     float64
	End       float64
	Segment   segment.Segment
}

func (r DragResult) Duration() float64 {
	return math.Abs(r.End - r.Start)
}

// DragController turns press/move/release pointer events into at most one
// segment creation per gesture.
type DragController struct {
	creator SegmentCreator

	mu    sync.Mutex
	state DragState
	start float64
	end   float64
}

func NewDragController(creator SegmentCreator) *DragController {
	return &DragController{creator: creator, state: DragIdle}
}

func (c *DragController) State() DragState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Preview returns the provisional range while dragging.
func (c *DragController) Preview() (start, end float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != DragDragging {
		return 0, 0, false
	}
	return math.Min(c.start, c.end), math.Max(c.start, c.end), true
}

// Press starts a gesture at pixel x. A press while dragging restarts it.
func (c *DragController) Press(x float64, vp Viewport) {
	t := TimeAt(x, vp.Zoom, vp.ContainerWidth)

	c.mu.Lock()
	c.state = DragDragging
	c.start = t
	c.end = t
	c.mu.Unlock()
}

// Move updates the provisional end. It is ignored when idle.
func (c *DragController) Move(x float64, vp Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != DragDragging {
		return
	}
	c.end = TimeAt(x, vp.Zoom, vp.ContainerWidth)
}

// Release ends the gesture and creates a segment when the dragged range is
// longer than MinSegmentDuration.
func (c *DragController) Release() (DragResult, error) {
	c.mu.Lock()
	if c.state != DragDragging {
		c.mu.Unlock()
		return DragResult{}, nil
	}
	res := DragResult{Start: c.start, End: c.end}
	c.state = DragIdle
	c.start, c.end = 0, 0
	c.mu.Unlock()

	if res.Duration() <= MinSegmentDuration {
		return res, nil
	}
	seg, err := c.creator.Create(res.Duration())
	if err != nil {
		return res, err
	}
	res.Committed = true
	res.Segment = seg
	return res, nil
}

// Leave handles the pointer leaving the surface exactly like Release so a
// drag can never get stuck.
func (c *DragController) Leave() (DragResult, error) {
	return c.Release()
}
