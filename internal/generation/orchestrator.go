// Package generation drives the external image and video services for a
// timeline and writes their results back through the segment store.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/timelinecraft/studio/internal/segment"
)

var (
	ErrAlreadyInProgress = errors.New("request already in progress")
	ErrGenerationFailed  = errors.New("image generation failed")
	ErrCompilationFailed = errors.New("video compilation failed")
	ErrNothingToCompile  = errors.New("no ready segments to compile")
	ErrNotReady          = errors.New("every segment must have generated frames before compiling")
)

const (
	DefaultGenerateTimeout = 2 * time.Minute
	DefaultCompileTimeout  = 10 * time.Minute
)

// FrameRequest is what an ImageGenerator receives for one segment.
type FrameRequest struct {
	SegmentID      string                   `json:"segment_id"`
	Description    string                   `json:"description"`
	StyleHint      string                   `json:"style_hint,omitempty"`
	ReferenceImage string                   `json:"reference_image,omitempty"`
	Target         segment.RegenerateTarget `json:"target"`
	Existing       segment.Frames           `json:"existing"`
}

// Clip is one segment's contribution to a compiled video.
type Clip struct {
	SegmentID  string  `json:"segment_id"`
	StartFrame string  `json:"start_frame"`
	EndFrame   string  `json:"end_frame"`
	Duration   float64 `json:"duration"`
}

type ImageGenerator interface {
	GenerateFrames(ctx context.Context, req FrameRequest) (segment.Frames, error)
}

type VideoCompiler interface {
	Compile(ctx context.Context, clips []Clip) (string, error)
}

// Notifier observes every change the orchestrator makes.
type Notifier interface {
	SegmentChanged(seg segment.Segment)
	VideoCompiled(videoRef string, segments []segment.Segment)
}

type nopNotifier struct{}

func (nopNotifier) SegmentChanged(segment.Segment)          {}
func (nopNotifier) VideoCompiled(string, []segment.Segment) {}

// Options carries per-request settings.
type Options struct {
	StyleHint string
}

type Orchestrator struct {
	store    *segment.Store
	images   ImageGenerator
	compiler VideoCompiler
	notifier Notifier
	logger   *slog.Logger

	generateTimeout time.Duration
	compileTimeout  time.Duration

	mu        sync.Mutex
	inFlight  map[string]struct{}
	compiling bool
	videoRef  string
}

func New(store *segment.Store, images ImageGenerator, compiler VideoCompiler, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:           store,
		images:          images,
		compiler:        compiler,
		notifier:        nopNotifier{},
		logger:          logger,
		generateTimeout: DefaultGenerateTimeout,
		compileTimeout:  DefaultCompileTimeout,
		inFlight:        make(map[string]struct{}),
	}
}

func (o *Orchestrator) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	o.mu.Lock()
	o.notifier = n
	o.mu.Unlock()
}

// SetTimeouts bounds each external call. Zero keeps the current value.
func (o *Orchestrator) SetTimeouts(generate, compile time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if generate > 0 {
		o.generateTimeout = generate
	}
	if compile > 0 {
		o.compileTimeout = compile
	}
}

// SetVideoRef restores the last compiled video, e.g. after loading a project.
func (o *Orchestrator) SetVideoRef(ref string) {
	o.mu.Lock()
	o.videoRef = ref
	o.mu.Unlock()
}

func (o *Orchestrator) VideoRef() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.videoRef
}

// InFlight reports whether an image request for id is running.
func (o *Orchestrator) InFlight(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[id]
	return ok
}

func (o *Orchestrator) Compiling() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.compiling
}

// CheckImages reports the error RequestImages would fail with before any
// state change, so callers can answer synchronously and run the request in
// the background.
func (o *Orchestrator) CheckImages(id string) error {
	seg, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(seg.Description) == "" {
		return segment.ErrEmptyDescription
	}
	if o.InFlight(id) {
		return ErrAlreadyInProgress
	}
	return nil
}

// RequestImages generates frames for the segment's current description. A
// failed generation leaves the segment in error and is not returned.
func (o *Orchestrator) RequestImages(ctx context.Context, id string, opts Options) (segment.Segment, error) {
	if err := o.CheckImages(id); err != nil {
		return segment.Segment{}, err
	}
	if !o.acquire(id) {
		return segment.Segment{}, ErrAlreadyInProgress
	}
	defer o.release(id)

	return o.generate(ctx, id, segment.TargetBoth, opts)
}

// CheckRegeneration validates a regeneration request without changing state.
func (o *Orchestrator) CheckRegeneration(id string, target segment.RegenerateTarget, feedback string) error {
	if _, err := segment.ParseTarget(string(target)); err != nil || target == "" {
		return fmt.Errorf("%w: unknown target %q", segment.ErrInvalidInput, target)
	}
	if strings.TrimSpace(feedback) == "" {
		return segment.ErrEmptyFeedback
	}
	seg, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if o.InFlight(id) {
		return ErrAlreadyInProgress
	}
	if !seg.HasFrames() {
		return fmt.Errorf("%w: segment has no frames to regenerate", segment.ErrInvalidInput)
	}
	if strings.TrimSpace(seg.Description) == "" {
		return segment.ErrEmptyDescription
	}
	return nil
}

// RequestRegeneration appends feedback to the description and generates
// again with the amended text.
func (o *Orchestrator) RequestRegeneration(ctx context.Context, id string, target segment.RegenerateTarget, feedback string, opts Options) (segment.Segment, error) {
	if err := o.CheckRegeneration(id, target, feedback); err != nil {
		return segment.Segment{}, err
	}
	if !o.acquire(id) {
		return segment.Segment{}, ErrAlreadyInProgress
	}
	defer o.release(id)

	amended, err := o.store.Amend(id, feedback)
	if err != nil {
		return segment.Segment{}, err
	}
	o.notify(amended)
	o.logger.Info("feedback applied", "segment_id", id, "target", target)

	return o.generate(ctx, id, target, opts)
}

func (o *Orchestrator) generate(ctx context.Context, id string, target segment.RegenerateTarget, opts Options) (segment.Segment, error) {
	seg, err := o.store.MarkGenerating(id)
	if err != nil {
		return segment.Segment{}, err
	}
	o.notify(seg)

	req := FrameRequest{
		SegmentID:      seg.ID,
		Description:    seg.Description,
		StyleHint:      opts.StyleHint,
		ReferenceImage: seg.ReferenceImage,
		Target:         target,
		Existing:       segment.Frames{Start: seg.StartFrame, End: seg.EndFrame},
	}

	o.mu.Lock()
	timeout := o.generateTimeout
	o.mu.Unlock()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	o.logger.Info("generating frames", "segment_id", id, "target", target)
	frames, genErr := o.images.GenerateFrames(callCtx, req)
	if genErr == nil {
		frames = mergeFrames(target, req.Existing, frames)
		if frames.Start == "" || frames.End == "" {
			genErr = fmt.Errorf("%w: generator returned incomplete frames", ErrGenerationFailed)
		}
	}

	var updated segment.Segment
	if genErr != nil {
		o.logger.Warn("frame generation failed", "segment_id", id, "error", genErr, "duration", time.Since(start))
		updated, err = o.store.FailGeneration(id)
	} else {
		updated, err = o.store.CompleteGeneration(id, seg.Description, frames)
	}

	if err != nil {
		// Deleted, or moved out of generating by an edit: the result is stale.
		if errors.Is(err, segment.ErrNotFound) || errors.Is(err, segment.ErrIllegalTransition) {
			o.logger.Info("dropping stale generation result", "segment_id", id, "reason", err)
			current, getErr := o.store.Get(id)
			if getErr != nil {
				return segment.Segment{}, nil
			}
			return current, nil
		}
		return segment.Segment{}, err
	}

	if genErr == nil {
		o.logger.Info("frames generated", "segment_id", id, "status", updated.Status, "duration", time.Since(start))
	}
	o.notify(updated)
	return updated, nil
}

// mergeFrames keeps the existing frame the target did not ask to redo.
func mergeFrames(target segment.RegenerateTarget, existing, generated segment.Frames) segment.Frames {
	out := generated
	switch target {
	case segment.TargetStart:
		if existing.End != "" {
			out.End = existing.End
		}
	case segment.TargetEnd:
		if existing.Start != "" {
			out.Start = existing.Start
		}
	}
	if out.Start == "" {
		out.Start = existing.Start
	}
	if out.End == "" {
		out.End = existing.End
	}
	return out
}

// CompileReadiness reports whether every segment has usable frames. An empty
// timeline is never ready.
func CompileReadiness(segments []segment.Segment) bool {
	if len(segments) == 0 {
		return false
	}
	for _, seg := range segments {
		if seg.Status != segment.StatusReady && seg.Status != segment.StatusVideoReady {
			return false
		}
	}
	return true
}

// CheckCompile reports whether a compile may be requested now: nothing is
// compiling, at least one segment is ready and the whole timeline passes
// CompileReadiness.
func (o *Orchestrator) CheckCompile() error {
	if o.Compiling() {
		return ErrAlreadyInProgress
	}
	if len(readyClips(o.store.Layout())) == 0 {
		return ErrNothingToCompile
	}
	if !CompileReadiness(o.store.List()) {
		return ErrNotReady
	}
	return nil
}

// RequestVideoCompile compiles the ready segments in layout order. On
// success every participant still ready becomes video-ready in one step.
func (o *Orchestrator) RequestVideoCompile(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.compiling {
		o.mu.Unlock()
		return "", ErrAlreadyInProgress
	}
	o.compiling = true
	timeout := o.compileTimeout
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.compiling = false
		o.mu.Unlock()
	}()

	clips := readyClips(o.store.Layout())
	if len(clips) == 0 {
		return "", ErrNothingToCompile
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	o.logger.Info("compiling video", "clips", len(clips))
	ref, err := o.compiler.Compile(callCtx, clips)
	if err == nil && ref == "" {
		err = errors.New("compiler returned no video")
	}
	if err != nil {
		o.logger.Error("video compilation failed", "error", err, "duration", time.Since(start))
		return "", fmt.Errorf("%w: %v", ErrCompilationFailed, err)
	}

	ids := make([]string, len(clips))
	for i, c := range clips {
		ids[i] = c.SegmentID
	}
	changed := o.store.MarkVideoReady(ids)

	o.mu.Lock()
	o.videoRef = ref
	notifier := o.notifier
	o.mu.Unlock()

	o.logger.Info("video compiled", "video_ref", ref, "segments", len(changed), "duration", time.Since(start))
	notifier.VideoCompiled(ref, changed)
	return ref, nil
}

func readyClips(layout []segment.Placement) []Clip {
	var clips []Clip
	for _, p := range layout {
		if p.Segment.Status != segment.StatusReady {
			continue
		}
		clips = append(clips, Clip{
			SegmentID:  p.Segment.ID,
			StartFrame: p.Segment.StartFrame,
			EndFrame:   p.Segment.EndFrame,
			Duration:   p.Duration,
		})
	}
	return clips
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[id]; ok {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) notify(seg segment.Segment) {
	o.mu.Lock()
	n := o.notifier
	o.mu.Unlock()
	n.SegmentChanged(seg)
}
