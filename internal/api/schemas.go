package api

import (
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/segment"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State           string                 `json:"state"`
	ProjectsCount   int                    `json:"projects_count"`
	OpenProjects    int                    `json:"open_projects"`
	SegmentsByState map[segment.Status]int `json:"segments_by_state"`
	Generating      int                    `json:"generating"`
	Compiling       int                    `json:"compiling"`
	Subscribers     int                    `json:"subscribers"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type ProjectsResponse struct {
	Projects []*project.Summary `json:"projects"`
}

type ProjectResponse struct {
	Project  project.Project       `json:"project"`
	Timeline *project.TimelineView `json:"timeline,omitempty"`
}

// ZoomRequest sets Zoom directly, or moves one step when Step is "in" or "out".
type ZoomRequest struct {
	Zoom *float64 `json:"zoom,omitempty"`
	Step string   `json:"step,omitempty"`
}

type PointerRequest struct {
	Type           string  `json:"type"`
	X              float64 `json:"x"`
	ContainerWidth float64 `json:"container_width"`
}

type PointerResponse struct {
	State     string           `json:"state"`
	Committed bool             `json:"committed"`
	Segment   *segment.Segment `json:"segment,omitempty"`
}

// CreateSegmentRequest takes either Duration or a StartTime/EndTime range.
type CreateSegmentRequest struct {
	Duration  *float64 `json:"duration,omitempty"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}

type UpdateSegmentRequest struct {
	Description *string `json:"description,omitempty"`
}

type SelectResponse struct {
	SegmentID string `json:"segment_id"`
	Selected  bool   `json:"selected"`
}

type GenerateRequest struct {
	StyleHint string `json:"style_hint,omitempty"`
}

type RegenerateRequest struct {
	Target    string `json:"target"`
	Feedback  string `json:"feedback"`
	StyleHint string `json:"style_hint,omitempty"`
}

type AcceptedResponse struct {
	Status    string `json:"status"`
	SegmentID string `json:"segment_id,omitempty"`
}

type ReadinessResponse struct {
	Ready     bool   `json:"ready"`
	Compiling bool   `json:"compiling"`
	VideoRef  string `json:"video_ref,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
