package pipeline

import (
	"log/slog"

	"github.com/google/uuid"
)

// RunLogger tags every line of one run with its id.
func RunLogger(logger *slog.Logger, runID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("runId", runID)
}

func newRunID() string {
	return uuid.NewString()
}
