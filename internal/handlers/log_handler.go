package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/logs"
)

const defaultLogCount = 100

// LogHandler handles HTTP requests for the structured event log
type LogHandler struct {
	sink   *logs.Sink
	logger arbor.ILogger
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(sink *logs.Sink, logger arbor.ILogger) *LogHandler {
	return &LogHandler{
		sink:   sink,
		logger: logger,
	}
}

// GetLogsHandler handles GET /api/logs?count&severity&jobId
func (h *LogHandler) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	count := QueryInt(r, "count", defaultLogCount)
	severity := r.URL.Query().Get("severity")
	jobID := r.URL.Query().Get("jobId")

	events, err := h.sink.Query(count, severity, jobID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Log query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to query logs")
		return
	}

	WriteJSON(w, http.StatusOK, events)
}
