package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/timelinecraft/studio/internal/segment"
)

// GenerateEDL writes a CMX 3600 style edit list with one still event per
// generated frame. Segments without frames are skipped; record timecodes
// still advance by their duration so the timeline keeps its shape.
func GenerateEDL(layout []segment.Placement, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	event := 0
	for i, p := range layout {
		if !p.Segment.HasFrames() {
			continue
		}
		half := p.Duration / 2
		for j, frame := range []string{p.Segment.StartFrame, p.Segment.EndFrame} {
			recIn := p.Offset + float64(j)*half
			event++
			lines = append(lines,
				fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, "AX", "V",
					secondsToTimecode(0, fps), secondsToTimecode(half, fps),
					secondsToTimecode(recIn, fps), secondsToTimecode(recIn+half, fps)),
				fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(i, j, p.Segment)),
				fmt.Sprintf("* MEDIA PATH:  %s", frame),
			)
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func clipName(index, which int, seg segment.Segment) string {
	side := "start"
	if which == 1 {
		side = "end"
	}
	name := SanitizeName(firstLine(seg.Description), 48)
	if name == "" {
		name = seg.ID
	}
	return fmt.Sprintf("%02d %s (%s)", index+1, name, side)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(sec * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
