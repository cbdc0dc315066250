package segment

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func strPtr(s string) *string { return &s }

func mustCreate(t *testing.T, s *Store, d float64) Segment {
	t.Helper()
	seg, err := s.Create(d)
	if err != nil {
		t.Fatalf("Create(%v) error = %v", d, err)
	}
	return seg
}

func assertContiguous(t *testing.T, layout []Placement) {
	t.Helper()
	offset := 0.0
	for i, p := range layout {
		if math.Abs(p.Offset-offset) > 1e-9 {
			t.Fatalf("placement %d offset = %v, want %v", i, p.Offset, offset)
		}
		offset += p.Duration
	}
}

func TestCreate_Contiguous(t *testing.T) {
	s := NewStore()
	a := mustCreate(t, s, 3)
	b := mustCreate(t, s, 2.5)

	if a.StartTime != 0 || a.EndTime != 3 {
		t.Errorf("first segment = [%v, %v]", a.StartTime, a.EndTime)
	}
	if b.StartTime != 3 || b.EndTime != 5.5 {
		t.Errorf("second segment = [%v, %v]", b.StartTime, b.EndTime)
	}
	if b.Status != StatusEmpty {
		t.Errorf("status = %s, want empty", b.Status)
	}
	if sel, ok := s.Selected(); !ok || sel.ID != b.ID {
		t.Errorf("Selected() = %v, %v; want newest segment", sel.ID, ok)
	}
	if got := s.TotalDuration(); got != 5.5 {
		t.Errorf("TotalDuration() = %v", got)
	}
}

func TestCreate_InvalidDurationLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	mustCreate(t, s, 1)
	before := s.List()

	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := s.Create(d); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Create(%v) error = %v, want ErrInvalidInput", d, err)
		}
	}
	after := s.List()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("store changed: before %+v after %+v", before, after)
	}
}

func TestCreateRange(t *testing.T) {
	s := NewStore()
	seg, err := s.CreateRange(10, 4)
	if err != nil {
		t.Fatalf("CreateRange() error = %v", err)
	}
	if seg.StartTime != 0 || seg.Duration() != 6 {
		t.Errorf("segment = %+v", seg)
	}
	if _, err := s.CreateRange(-1, 4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative start error = %v", err)
	}
	if _, err := s.CreateRange(4, 4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero range error = %v", err)
	}
}

func TestDelete_LayoutStaysContiguous(t *testing.T) {
	s := NewStore()
	a := mustCreate(t, s, 2)
	b := mustCreate(t, s, 3)
	c := mustCreate(t, s, 4)

	if _, err := s.Delete(b.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	layout := s.Layout()
	if len(layout) != 2 {
		t.Fatalf("len(layout) = %d", len(layout))
	}
	assertContiguous(t, layout)
	if layout[0].Segment.ID != a.ID || layout[1].Segment.ID != c.ID {
		t.Errorf("order changed: %s, %s", layout[0].Segment.ID, layout[1].Segment.ID)
	}
	if layout[1].Offset != 2 {
		t.Errorf("c offset = %v, want 2", layout[1].Offset)
	}
	// Stored times are not renumbered.
	if layout[1].Segment.StartTime != 5 {
		t.Errorf("c stored start = %v, want 5", layout[1].Segment.StartTime)
	}
}

func TestDelete_ManyKeepsContiguity(t *testing.T) {
	s := NewStore()
	var ids []string
	for i := 1; i <= 10; i++ {
		ids = append(ids, mustCreate(t, s, float64(i)*0.75).ID)
	}
	for i, id := range ids {
		if i%3 == 0 {
			if _, err := s.Delete(id); err != nil {
				t.Fatal(err)
			}
		}
		assertContiguous(t, s.Layout())
	}
}

func TestDelete_ClearsSelectionAndReleasesReference(t *testing.T) {
	s := NewStore()
	var released []string
	s.SetReleaseFunc(func(ref string) { released = append(released, ref) })

	seg := mustCreate(t, s, 2)
	if _, err := s.Update(seg.ID, Patch{ReferenceImage: strPtr("ref-1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Delete(seg.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Selected(); ok {
		t.Error("selection should be cleared")
	}
	if len(released) != 1 || released[0] != "ref-1" {
		t.Errorf("released = %v", released)
	}
	if _, err := s.Delete(seg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestUpdate_ReferenceReplacementReleasesOld(t *testing.T) {
	s := NewStore()
	var released []string
	s.SetReleaseFunc(func(ref string) { released = append(released, ref) })
	seg := mustCreate(t, s, 2)

	s.Update(seg.ID, Patch{ReferenceImage: strPtr("ref-1")})
	s.Update(seg.ID, Patch{ReferenceImage: strPtr("ref-1")})
	s.Update(seg.ID, Patch{ReferenceImage: strPtr("ref-2")})
	got, _ := s.Update(seg.ID, Patch{ReferenceImage: strPtr("")})

	if got.ReferenceImage != "" {
		t.Errorf("ReferenceImage = %q", got.ReferenceImage)
	}
	if len(released) != 2 || released[0] != "ref-1" || released[1] != "ref-2" {
		t.Errorf("released = %v", released)
	}
	if got.Status != StatusEmpty {
		t.Errorf("reference change altered status to %s", got.Status)
	}
}

func TestUpdate_DescriptionDrivesStatus(t *testing.T) {
	s := NewStore()
	seg := mustCreate(t, s, 2)

	got, err := s.Update(seg.ID, Patch{Description: strPtr("a cat")})
	if err != nil || got.Status != StatusDescriptionAdded {
		t.Fatalf("Update() = %s, %v", got.Status, err)
	}
	got, _ = s.Update(seg.ID, Patch{Description: strPtr("")})
	if got.Status != StatusEmpty {
		t.Errorf("cleared status = %s", got.Status)
	}
	if _, err := s.Update("missing", Patch{Description: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id error = %v", err)
	}
}

func TestDrift_IsOneWay(t *testing.T) {
	s := NewStore()
	seg := mustCreate(t, s, 2)
	s.Update(seg.ID, Patch{Description: strPtr("a cat")})
	s.MarkGenerating(seg.ID)
	if _, err := s.CompleteGeneration(seg.ID, "a cat", Frames{Start: "s", End: "e"}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Update(seg.ID, Patch{Description: strPtr("a dog")})
	if got.Status != StatusDescriptionModified || !got.Drifted() {
		t.Fatalf("after edit status = %s", got.Status)
	}
	got, _ = s.Update(seg.ID, Patch{Description: strPtr("a cat")})
	if got.Status != StatusDescriptionModified {
		t.Errorf("reverting text changed status to %s", got.Status)
	}
	if got.Drifted() {
		t.Error("Drifted() should be false once text matches again")
	}
}

func TestSelect_Toggle(t *testing.T) {
	s := NewStore()
	a := mustCreate(t, s, 1)
	b := mustCreate(t, s, 1)

	if on, _ := s.Select(a.ID); !on {
		t.Error("selecting a should select it")
	}
	if on, _ := s.Select(a.ID); on {
		t.Error("selecting a again should clear it")
	}
	if _, ok := s.Selected(); ok {
		t.Error("nothing should be selected")
	}
	s.Select(a.ID)
	s.Select(b.ID)
	if sel, _ := s.Selected(); sel.ID != b.ID {
		t.Errorf("Selected() = %s, want b", sel.ID)
	}
	if _, err := s.Select("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Select(missing) error = %v", err)
	}
	s.Deselect()
	if _, ok := s.Selected(); ok {
		t.Error("Deselect() left a selection")
	}
}

func TestGenerationMutators(t *testing.T) {
	s := NewStore()
	seg := mustCreate(t, s, 2)

	if _, err := s.MarkGenerating(seg.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("MarkGenerating on empty description error = %v", err)
	}
	s.Update(seg.ID, Patch{Description: strPtr("a cat")})

	got, err := s.MarkGenerating(seg.ID)
	if err != nil || got.Status != StatusGenerating {
		t.Fatalf("MarkGenerating() = %s, %v", got.Status, err)
	}
	if _, err := s.MarkGenerating(seg.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("double MarkGenerating error = %v", err)
	}
	if changed := s.MarkVideoReady([]string{seg.ID}); len(changed) != 0 {
		t.Error("MarkVideoReady should skip generating segments")
	}

	got, err = s.FailGeneration(seg.ID)
	if err != nil || got.Status != StatusError {
		t.Fatalf("FailGeneration() = %s, %v", got.Status, err)
	}
	if got.HasFrames() || got.LastGeneratedDescription != "" {
		t.Error("failure must not touch frames or snapshot")
	}

	s.MarkGenerating(seg.ID)
	got, err = s.CompleteGeneration(seg.ID, "a cat", Frames{Start: "s.png", End: "e.png"})
	if err != nil || got.Status != StatusReady {
		t.Fatalf("CompleteGeneration() = %s, %v", got.Status, err)
	}
	if got.StartFrame != "s.png" || got.EndFrame != "e.png" || got.LastGeneratedDescription != "a cat" {
		t.Errorf("completion fields = %+v", got)
	}

	changed := s.MarkVideoReady([]string{seg.ID, "missing"})
	if len(changed) != 1 || changed[0].Status != StatusVideoReady {
		t.Errorf("MarkVideoReady() = %+v", changed)
	}
}

func TestAmend(t *testing.T) {
	s := NewStore()
	seg := mustCreate(t, s, 2)
	s.Update(seg.ID, Patch{Description: strPtr("a cat")})

	if _, err := s.Amend(seg.ID, "orange"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("amend before any frames error = %v", err)
	}
	if got, _ := s.Get(seg.ID); got.Description != "a cat" || got.Status != StatusDescriptionAdded {
		t.Errorf("rejected amend changed segment: %q %s", got.Description, got.Status)
	}

	s.MarkGenerating(seg.ID)
	s.CompleteGeneration(seg.ID, "a cat", Frames{Start: "s.png", End: "e.png"})

	if _, err := s.Amend(seg.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank feedback error = %v", err)
	}
	got, err := s.Amend(seg.ID, "orange")
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "a cat\n\nFeedback: orange" || got.Status != StatusDescriptionModified {
		t.Errorf("Amend() = %q %s", got.Description, got.Status)
	}

	s.Update(seg.ID, Patch{Description: strPtr("")})
	if _, err := s.Amend(seg.ID, "brighter"); !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("amend with cleared description error = %v", err)
	}
}

func TestRestoreAndRecoverInterrupted(t *testing.T) {
	s, err := Restore([]Segment{
		{ID: "a", StartTime: 0, EndTime: 2, Description: "x", Status: StatusGenerating},
		{ID: "b", StartTime: 2, EndTime: 3, Description: "y", Status: StatusReady, LastGeneratedDescription: "y"},
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	recovered := s.RecoverInterrupted()
	if len(recovered) != 1 || recovered[0].ID != "a" || recovered[0].Status != StatusError {
		t.Errorf("RecoverInterrupted() = %+v", recovered)
	}
	if sum := s.Summary(); sum[StatusError] != 1 || sum[StatusReady] != 1 {
		t.Errorf("Summary() = %v", sum)
	}

	bad := [][]Segment{
		{{ID: "", StartTime: 0, EndTime: 1, Status: StatusEmpty}},
		{{ID: "a", StartTime: 0, EndTime: 1, Status: StatusEmpty}, {ID: "a", StartTime: 1, EndTime: 2, Status: StatusEmpty}},
		{{ID: "a", StartTime: 0, EndTime: 1, Status: "weird"}},
		{{ID: "a", StartTime: 1, EndTime: 1, Status: StatusEmpty}},
	}
	for i, segs := range bad {
		if _, err := Restore(segs); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: Restore() error = %v", i, err)
		}
	}
}

func TestStore_ConcurrentCreate(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Create(1)
		}()
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("Len() = %d", s.Len())
	}
	assertContiguous(t, s.Layout())
	for i, seg := range s.List() {
		if seg.StartTime != float64(i) {
			t.Errorf("segment %d start = %v", i, seg.StartTime)
		}
	}
}
