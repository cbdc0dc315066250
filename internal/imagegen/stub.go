package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
)

const placeholderBase = "https://picsum.photos/800/600"

// StubGenerator returns placeholder image URLs after an optional delay. It is
// used when no frame service is configured.
type StubGenerator struct {
	delay  time.Duration
	logger *slog.Logger
}

func NewStubGenerator(delay time.Duration, logger *slog.Logger) *StubGenerator {
	return &StubGenerator{delay: delay, logger: logger}
}

func (g *StubGenerator) GenerateFrames(ctx context.Context, req generation.FrameRequest) (segment.Frames, error) {
	g.logger.Info("stub: generating frames", "segment_id", req.SegmentID, "target", req.Target)

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return segment.Frames{}, ctx.Err()
		case <-timer.C:
		}
	}

	seed := req.SegmentID
	if req.Target != segment.TargetBoth && req.Target != "" {
		seed = fmt.Sprintf("%s-%d", seed, time.Now().UnixNano())
	}
	return segment.Frames{
		Start: placeholderURL(seed + "-start"),
		End:   placeholderURL(seed + "-end"),
	}, nil
}

func placeholderURL(seed string) string {
	return placeholderBase + "?random=" + url.QueryEscape(seed)
}
