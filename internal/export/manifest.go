package export

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/timelinecraft/studio/internal/segment"
)

// BuildManifest describes layout in rendered order.
func BuildManifest(project ManifestProject, layout []segment.Placement, videoRef string) Manifest {
	m := Manifest{
		Project:  project,
		Video:    videoRef,
		Segments: make([]ManifestSegment, 0, len(layout)),
	}
	for i, p := range layout {
		m.TotalDuration += p.Duration
		m.Segments = append(m.Segments, ManifestSegment{
			Index:          i,
			ID:             p.Segment.ID,
			Offset:         p.Offset,
			Duration:       p.Duration,
			Status:         string(p.Segment.Status),
			Description:    p.Segment.Description,
			StartFrame:     p.Segment.StartFrame,
			EndFrame:       p.Segment.EndFrame,
			ReferenceImage: p.Segment.ReferenceImage,
		})
	}
	return m
}

func MarshalManifest(m Manifest) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

func WriteManifest(path string, m Manifest) error {
	data, err := MarshalManifest(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
