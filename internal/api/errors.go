package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/timelinecraft/studio/internal/export"
	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/playback"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/refstore"
	"github.com/timelinecraft/studio/internal/segment"
)

// writeDomainError maps a service error onto the HTTP error envelope.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal server error"
	}
	var upload *refstore.UploadError
	if errors.As(err, &upload) {
		msg = upload.Message
	}
	WriteError(w, status, msg, code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, segment.ErrInvalidInput),
		errors.Is(err, refstore.ErrInvalidUpload),
		errors.Is(err, export.ErrInvalidRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, segment.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, refstore.ErrNotFound),
		errors.Is(err, export.ErrNoVideo),
		errors.Is(err, playback.ErrVideoMissing):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, generation.ErrAlreadyInProgress):
		return http.StatusConflict, "ALREADY_IN_PROGRESS"
	case errors.Is(err, generation.ErrNothingToCompile):
		return http.StatusConflict, "NOTHING_TO_COMPILE"
	case errors.Is(err, segment.ErrIllegalTransition),
		errors.Is(err, generation.ErrNotReady):
		return http.StatusConflict, "NOT_READY"
	case errors.Is(err, generation.ErrCompilationFailed):
		return http.StatusBadGateway, "COMPILATION_FAILED"
	case errors.Is(err, generation.ErrGenerationFailed):
		return http.StatusBadGateway, "GENERATION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
