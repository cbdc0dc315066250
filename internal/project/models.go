// Package project persists timelines and hosts one live workspace per open
// project: its segment store, generation orchestrator and drag controller.
package project

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("project not found")

const DefaultName = "Untitled project"

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Zoom      float64   `json:"zoom"`
	VideoRef  string    `json:"video_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a project list entry.
type Summary struct {
	Project
	SegmentCount  int     `json:"segment_count"`
	TotalDuration float64 `json:"total_duration"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
}

func NewID() string {
	return uuid.NewString()
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	return name
}
