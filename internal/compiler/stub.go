package compiler

import (
	"context"
	"log/slog"
	"time"

	"github.com/timelinecraft/studio/internal/generation"
)

// SampleVideoURL is what StubCompiler returns.
const SampleVideoURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

type StubCompiler struct {
	delay  time.Duration
	logger *slog.Logger
}

func NewStubCompiler(delay time.Duration, logger *slog.Logger) *StubCompiler {
	return &StubCompiler{delay: delay, logger: logger}
}

func (c *StubCompiler) Compile(ctx context.Context, clips []generation.Clip) (string, error) {
	c.logger.Info("compiler stub: compile requested (no encoding performed)", "clips", len(clips))

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return SampleVideoURL, nil
}
