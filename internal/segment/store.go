package segment

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// ReleaseFunc frees the resource behind a reference image that is being
// replaced or removed.
type ReleaseFunc func(ref string)

// Store holds one timeline's segments in creation order. Each exported
// method is a single atomic step.
type Store struct {
	mu       sync.Mutex
	segments []*Segment
	selected string
	release  ReleaseFunc
}

func NewStore() *Store {
	return &Store{}
}

// Restore builds a store from persisted segments, preserving order.
func Restore(segments []Segment) (*Store, error) {
	s := &Store{segments: make([]*Segment, 0, len(segments))}
	seen := make(map[string]bool, len(segments))
	for i := range segments {
		seg := segments[i]
		if seg.ID == "" || seen[seg.ID] {
			return nil, fmt.Errorf("%w: duplicate or empty id %q", ErrInvalidInput, seg.ID)
		}
		if !seg.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, seg.Status)
		}
		if !(seg.Duration() > 0) {
			return nil, fmt.Errorf("%w: segment %s", ErrInvalidDuration, seg.ID)
		}
		seen[seg.ID] = true
		s.segments = append(s.segments, &seg)
	}
	return s, nil
}

// SetReleaseFunc installs the hook used when a reference image goes away.
func (s *Store) SetReleaseFunc(fn ReleaseFunc) {
	s.mu.Lock()
	s.release = fn
	s.mu.Unlock()
}

// Create appends a segment of the given duration right after the existing ones.
func (s *Store) Create(duration float64) (Segment, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return Segment{}, ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.totalLocked()
	seg := &Segment{
		ID:        NewID(),
		StartTime: start,
		EndTime:   start + duration,
		Status:    StatusEmpty,
	}
	s.segments = append(s.segments, seg)
	s.selected = seg.ID
	return *seg, nil
}

// CreateRange creates a segment whose duration is the length of [start, end]
// in either order. Placement is still contiguous.
func (s *Store) CreateRange(start, end float64) (Segment, error) {
	if start < 0 || end < 0 {
		return Segment{}, ErrInvalidTimeValues
	}
	return s.Create(math.Abs(end - start))
}

func (s *Store) Get(id string) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, _ := s.findLocked(id)
	if seg == nil {
		return Segment{}, ErrNotFound
	}
	return *seg, nil
}

func (s *Store) List() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Segment, len(s.segments))
	for i, seg := range s.segments {
		out[i] = *seg
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Layout places segments back to back from offset zero.
func (s *Store) Layout() []Placement {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Placement, len(s.segments))
	offset := 0.0
	for i, seg := range s.segments {
		d := seg.Duration()
		out[i] = Placement{Segment: *seg, Offset: offset, Duration: d}
		offset += d
	}
	return out
}

// TotalDuration is the sum of all segment durations.
func (s *Store) TotalDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

// Update merges patch into the segment. A description change re-derives the
// status through Next.
func (s *Store) Update(id string, patch Patch) (Segment, error) {
	s.mu.Lock()
	seg, _ := s.findLocked(id)
	if seg == nil {
		s.mu.Unlock()
		return Segment{}, ErrNotFound
	}

	next := *seg
	if patch.Description != nil {
		status, err := Next(seg.Status, DescriptionChanged(*patch.Description, seg.LastGeneratedDescription))
		if err != nil {
			s.mu.Unlock()
			return Segment{}, err
		}
		next.Description = *patch.Description
		next.Status = status
	}

	var released string
	if patch.ReferenceImage != nil && *patch.ReferenceImage != seg.ReferenceImage {
		released = seg.ReferenceImage
		next.ReferenceImage = *patch.ReferenceImage
	}

	*seg = next
	release := s.release
	s.mu.Unlock()

	if released != "" && release != nil {
		release(released)
	}
	return next, nil
}

// Delete removes the segment. Other segments keep their stored times; their
// rendered offsets shift because Layout recomputes on read.
func (s *Store) Delete(id string) (Segment, error) {
	s.mu.Lock()
	seg, idx := s.findLocked(id)
	if seg == nil {
		s.mu.Unlock()
		return Segment{}, ErrNotFound
	}
	s.segments = append(s.segments[:idx], s.segments[idx+1:]...)
	if s.selected == id {
		s.selected = ""
	}
	removed := *seg
	release := s.release
	s.mu.Unlock()

	if removed.ReferenceImage != "" && release != nil {
		release(removed.ReferenceImage)
	}
	return removed, nil
}

// Select toggles selection: selecting the selected segment clears it. The
// returned bool reports whether id is selected afterwards.
func (s *Store) Select(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seg, _ := s.findLocked(id); seg == nil {
		return false, ErrNotFound
	}
	if s.selected == id {
		s.selected = ""
		return false, nil
	}
	s.selected = id
	return true, nil
}

func (s *Store) Selected() (Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == "" {
		return Segment{}, false
	}
	seg, _ := s.findLocked(s.selected)
	if seg == nil {
		return Segment{}, false
	}
	return *seg, true
}

func (s *Store) Deselect() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// MarkGenerating moves the segment to generating and returns the snapshot
// whose description the request must use.
func (s *Store) MarkGenerating(id string) (Segment, error) {
	return s.apply(id, func(seg *Segment) error {
		status, err := Next(seg.Status, GenerationRequested(seg.Description))
		if err != nil {
			return err
		}
		seg.Status = status
		return nil
	})
}

// CompleteGeneration records a successful generation. Frames and the
// description snapshot are written together.
func (s *Store) CompleteGeneration(id, description string, frames Frames) (Segment, error) {
	return s.apply(id, func(seg *Segment) error {
		status, err := Next(seg.Status, GenerationSucceeded)
		if err != nil {
			return err
		}
		// An edit made while the request was running is drift against the
		// snapshot the frames came from.
		status, err = Next(status, DescriptionChanged(seg.Description, description))
		if err != nil {
			return err
		}
		seg.Status = status
		seg.StartFrame = frames.Start
		seg.EndFrame = frames.End
		seg.LastGeneratedDescription = description
		return nil
	})
}

func (s *Store) FailGeneration(id string) (Segment, error) {
	return s.apply(id, func(seg *Segment) error {
		status, err := Next(seg.Status, GenerationFailed)
		if err != nil {
			return err
		}
		seg.Status = status
		return nil
	})
}

// Amend appends regeneration feedback to the description and flags drift.
// Only a described segment that already has frames can be amended.
func (s *Store) Amend(id, feedback string) (Segment, error) {
	if isBlank(feedback) {
		return Segment{}, ErrEmptyFeedback
	}
	return s.apply(id, func(seg *Segment) error {
		if !seg.HasFrames() {
			return wrapInvalid("segment has no frames to regenerate")
		}
		if isBlank(seg.Description) {
			return ErrEmptyDescription
		}
		amended := AmendDescription(seg.Description, feedback)
		status, err := Next(seg.Status, FeedbackApplied(amended))
		if err != nil {
			return err
		}
		seg.Description = amended
		seg.Status = status
		return nil
	})
}

// MarkVideoReady moves every listed segment that is still ready to
// video-ready in one step. Missing or drifted ids are skipped.
func (s *Store) MarkVideoReady(ids []string) []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []Segment
	for _, id := range ids {
		seg, _ := s.findLocked(id)
		if seg == nil {
			continue
		}
		status, err := Next(seg.Status, VideoCompiled)
		if err != nil {
			continue
		}
		seg.Status = status
		changed = append(changed, *seg)
	}
	return changed
}

// RecoverInterrupted fails every segment left generating, e.g. after a
// restart lost the in-flight request.
func (s *Store) RecoverInterrupted() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recovered []Segment
	for _, seg := range s.segments {
		if seg.Status != StatusGenerating {
			continue
		}
		status, err := Next(seg.Status, GenerationFailed)
		if err != nil {
			continue
		}
		seg.Status = status
		recovered = append(recovered, *seg)
	}
	return recovered
}

// Summary counts segments per status.
func (s *Store) Summary() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, seg := range s.segments {
		counts[seg.Status]++
	}
	return counts
}

func (s *Store) apply(id string, fn func(seg *Segment) error) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, _ := s.findLocked(id)
	if seg == nil {
		return Segment{}, ErrNotFound
	}
	next := *seg
	if err := fn(&next); err != nil {
		return Segment{}, err
	}
	*seg = next
	return next, nil
}

func (s *Store) findLocked(id string) (*Segment, int) {
	id = strings.TrimSpace(id)
	for i, seg := range s.segments {
		if seg.ID == id {
			return seg, i
		}
	}
	return nil, -1
}

func (s *Store) totalLocked() float64 {
	total := 0.0
	for _, seg := range s.segments {
		total += seg.Duration()
	}
	return total
}
