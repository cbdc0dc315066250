// Package segment owns the segment data model, the status state machine and
// the in-memory store that keeps a project's segments laid out back to back.
package segment

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Status string

const (
	StatusEmpty               Status = "empty"
	StatusDescriptionAdded    Status = "description-added"
	StatusGenerating          Status = "generating"
	StatusReady               Status = "ready"
	StatusDescriptionModified Status = "description-modified"
	StatusVideoReady          Status = "video-ready"
	StatusError               Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusEmpty, StatusDescriptionAdded, StatusGenerating, StatusReady,
		StatusDescriptionModified, StatusVideoReady, StatusError:
		return true
	}
	return false
}

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("segment not found")
	ErrIllegalTransition = errors.New("illegal status transition")

	ErrInvalidDuration   = wrapInvalid("duration must be positive")
	ErrEmptyDescription  = wrapInvalid("description is empty")
	ErrEmptyFeedback     = wrapInvalid("feedback is empty")
	ErrInvalidTimeValues = wrapInvalid("times must be non-negative")
)

type invalidInputError struct{ msg string }

func (e *invalidInputError) Error() string        { return "invalid input: " + e.msg }
func (e *invalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func wrapInvalid(msg string) error { return &invalidInputError{msg: msg} }

// Frames holds references to the generated start and end images.
type Frames struct {
	Start string `json:"start_frame"`
	End   string `json:"end_frame"`
}

// Segment is a value snapshot. Mutations go through Store.
type Segment struct {
	ID                       string  `json:"id"`
	StartTime                float64 `json:"start_time"`
	EndTime                  float64 `json:"end_time"`
	Description              string  `json:"description"`
	Status                   Status  `json:"status"`
	StartFrame               string  `json:"start_frame,omitempty"`
	EndFrame                 string  `json:"end_frame,omitempty"`
	ReferenceImage           string  `json:"reference_image,omitempty"`
	LastGeneratedDescription string  `json:"last_generated_description,omitempty"`
}

// Duration is the only meaningful use of StartTime/EndTime; rendered
// placement comes from Store.Layout.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// HasFrames reports whether a generation has ever succeeded.
func (s Segment) HasFrames() bool {
	return s.StartFrame != "" && s.EndFrame != ""
}

// Drifted reports whether the description differs from what the current
// frames were generated from.
func (s Segment) Drifted() bool {
	return s.LastGeneratedDescription != "" && s.Description != s.LastGeneratedDescription
}

// Placement is a segment with its rendered position on the virtual timeline.
type Placement struct {
	Segment  Segment `json:"segment"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// Patch is a partial update. It deliberately has no status field.
type Patch struct {
	Description *string
	// ReferenceImage replaces the reference image when non-nil. An empty
	// string removes it.
	ReferenceImage *string
}

// RegenerateTarget names the frame(s) a regeneration asks to redo.
type RegenerateTarget string

const (
	TargetStart RegenerateTarget = "start"
	TargetEnd   RegenerateTarget = "end"
	TargetBoth  RegenerateTarget = "both"
)

func ParseTarget(s string) (RegenerateTarget, error) {
	switch t := RegenerateTarget(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetStart, TargetEnd, TargetBoth:
		return t, nil
	case "":
		return TargetBoth, nil
	}
	return "", wrapInvalid("target must be start, end or both")
}

// FeedbackPrefix introduces a regeneration amendment in a description.
const FeedbackPrefix = "\n\nFeedback: "

// AmendDescription appends feedback to description as an auditable amendment.
func AmendDescription(description, feedback string) string {
	return description + FeedbackPrefix + strings.TrimSpace(feedback)
}

func NewID() string {
	return uuid.NewString()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
