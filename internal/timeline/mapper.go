// Package timeline converts between timeline seconds and pixel offsets on a
// zoomable ruler, and turns pointer drags into segment creation requests.
// Every function in mapper.go is pure: the same inputs always yield the
// same outputs, independent of any rendering surface.
package timeline

import (
	"fmt"
	"math"
)

const (
	// TotalDuration is the ruler length in seconds. It bounds TimeAt and the
	// rendered ruler only; it does not limit segment count or total duration.
	TotalDuration = 180.0

	// BasePixelsPerSecond is the rate used when the container width is unknown.
	BasePixelsPerSecond = 40.0

	// MinZoom and MaxZoom bound the zoom factor inclusively.
	MinZoom = 0.5
	MaxZoom = 3.0

	// ZoomStep is the increment applied by ZoomIn and ZoomOut.
	ZoomStep = 0.25

	// DefaultZoom is the zoom of a freshly created project.
	DefaultZoom = 1.0

	// RulerInterval is the spacing of labelled ruler ticks in seconds.
	RulerInterval = 5.0

	minFillRatio     = 0.8
	minBaseRateRatio = 0.5
)

// PixelsPerSecond returns the horizontal scale at zoom 1. The timeline fills
// at least 80% of the container, but never drops below half the base rate.
func PixelsPerSecond(containerWidth float64) float64 {
	if containerWidth <= 0 {
		return BasePixelsPerSecond
	}
	fill := containerWidth * minFillRatio / TotalDuration
	return math.Max(fill, BasePixelsPerSecond*minBaseRateRatio)
}

// PixelAt returns the pixel offset of t seconds.
func PixelAt(seconds, zoom, containerWidth float64) float64 {
	return seconds * PixelsPerSecond(containerWidth) * ClampZoom(zoom)
}

// TimeAt returns the time under pixel offset x, clamped to [0, TotalDuration].
func TimeAt(x, zoom, containerWidth float64) float64 {
	t := x / (PixelsPerSecond(containerWidth) * ClampZoom(zoom))
	return clamp(t, 0, TotalDuration)
}

// TimelineWidth is the pixel width of the whole ruler.
func TimelineWidth(zoom, containerWidth float64) float64 {
	return PixelAt(TotalDuration, zoom, containerWidth)
}

// ClampZoom bounds zoom to [MinZoom, MaxZoom]. NaN maps to DefaultZoom.
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) {
		return DefaultZoom
	}
	return clamp(zoom, MinZoom, MaxZoom)
}

// ZoomIn returns zoom increased by one step, clamped.
func ZoomIn(zoom float64) float64 {
	return ClampZoom(zoom + ZoomStep)
}

// ZoomOut returns zoom decreased by one step, clamped.
func ZoomOut(zoom float64) float64 {
	return ClampZoom(zoom - ZoomStep)
}

// Tick is a labelled ruler mark.
type Tick struct {
	Seconds float64 `json:"seconds"`
	X       float64 `json:"x"`
	Label   string  `json:"label"`
}

// RulerTicks returns one tick every RulerInterval seconds, both ends included.
func RulerTicks(zoom, containerWidth float64) []Tick {
	n := int(math.Ceil(TotalDuration/RulerInterval)) + 1
	ticks := make([]Tick, 0, n)
	for i := 0; i < n; i++ {
		s := float64(i) * RulerInterval
		ticks = append(ticks, Tick{
			Seconds: s,
			X:       PixelAt(s, zoom, containerWidth),
			Label:   FormatClock(s),
		})
	}
	return ticks
}

// FormatClock renders seconds as m:ss, truncating fractions.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
