// Package imagegen provides ImageGenerator implementations: an HTTP client for
// the remote frame service, a stub for local use and a Redis-backed cache.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
)

// ServiceError is a non-2xx answer from the frame service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("frame service: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500
}

func (e *ServiceError) Unwrap() error {
	return generation.ErrGenerationFailed
}

type framesResponse struct {
	StartFrame string `json:"start_frame"`
	EndFrame   string `json:"end_frame"`
}

// HTTPGenerator calls POST {baseURL}/v1/frames with a bearer token.
type HTTPGenerator struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPGenerator(baseURL, token string, logger *slog.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
		logger: logger,
	}
}

func (g *HTTPGenerator) GenerateFrames(ctx context.Context, fr generation.FrameRequest) (segment.Frames, error) {
	body, err := json.Marshal(fr)
	if err != nil {
		return segment.Frames{}, fmt.Errorf("marshal frame request: %w", err)
	}

	url := g.baseURL + "/v1/frames"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return segment.Frames{}, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	g.logger.Info("requesting frames",
		"url", url,
		"segment_id", fr.SegmentID,
		"target", fr.Target,
		"request_id", requestID,
		"has_reference", fr.ReferenceImage != "",
	)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return segment.Frames{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return segment.Frames{}, &ServiceError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out framesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return segment.Frames{}, fmt.Errorf("decode frame response: %w", err)
	}
	return segment.Frames{Start: out.StartFrame, End: out.EndFrame}, nil
}
