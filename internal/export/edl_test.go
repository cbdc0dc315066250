package export

import (
	"strings"
	"testing"

	"github.com/timelinecraft/studio/internal/segment"
)

func placement(id, desc string, offset, dur float64, withFrames bool) segment.Placement {
	seg := segment.Segment{ID: id, StartTime: 0, EndTime: dur, Description: desc, Status: segment.StatusDescriptionAdded}
	if withFrames {
		seg.StartFrame = "https://img.example/" + id + "-start.jpg"
		seg.EndFrame = "https://img.example/" + id + "-end.jpg"
		seg.Status = segment.StatusReady
	}
	return segment.Placement{Segment: seg, Offset: offset, Duration: dur}
}

func TestGenerateEDL_SingleSegment(t *testing.T) {
	layout := []segment.Placement{placement("a", "Sunrise over hills", 0, 4, true)}

	edl := GenerateEDL(layout, "Project One", 30.0)

	for _, want := range []string{
		"TITLE: Project One",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00",
		"002  AX       V     C        00:00:00:00 00:00:02:00 00:00:02:00 00:00:04:00",
		"* FROM CLIP NAME:  01 Sunrise over hills (start)",
		"* FROM CLIP NAME:  01 Sunrise over hills (end)",
		"* MEDIA PATH:  https://img.example/a-start.jpg",
		"* MEDIA PATH:  https://img.example/a-end.jpg",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestGenerateEDL_SkipsSegmentsWithoutFrames(t *testing.T) {
	layout := []segment.Placement{
		placement("a", "first", 0, 2, true),
		placement("b", "pending", 2, 3, false),
		placement("c", "", 5, 1, true),
	}

	edl := GenerateEDL(layout, "Multi", 30.0)

	if strings.Contains(edl, "b-start") {
		t.Fatalf("segment without frames was exported:\n%s", edl)
	}
	// Event numbering stays dense but record time keeps the gap.
	if !strings.Contains(edl, "003  AX       V     C        00:00:00:00 00:00:00:15 00:00:05:00 00:00:05:15") {
		t.Errorf("third event mismatch:\n%s", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  03 c (start)") {
		t.Errorf("blank description should fall back to id:\n%s", edl)
	}
}

func TestGenerateEDL_DropFrameHeader(t *testing.T) {
	edl := GenerateEDL(nil, "Drop", 29.97)
	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("missing drop-frame FCM: %q", edl)
	}
}

func TestSecondsToTimecode(t *testing.T) {
	tests := []struct {
		sec  float64
		fps  int
		want string
	}{
		{0, 30, "00:00:00:00"},
		{1.5, 30, "00:00:01:15"},
		{61, 25, "00:01:01:00"},
		{3600.04, 25, "01:00:00:01"},
	}
	for _, tt := range tests {
		if got := secondsToTimecode(tt.sec, tt.fps); got != tt.want {
			t.Errorf("secondsToTimecode(%v, %d) = %q, want %q", tt.sec, tt.fps, got, tt.want)
		}
	}
}
