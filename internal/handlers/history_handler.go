package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/history"
)

// HistoryHandler serves persisted terminal job snapshots. A job whose
// status is already terminal may briefly have no history file yet; that
// window surfaces as a 404 here.
type HistoryHandler struct {
	writer *history.Writer
	logger arbor.ILogger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(writer *history.Writer, logger arbor.ILogger) *HistoryHandler {
	return &HistoryHandler{
		writer: writer,
		logger: logger,
	}
}

// GetHistoryHandler handles GET /api/history/{id}
func (h *HistoryHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "History not found")
		return
	}

	job, err := h.writer.Load(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "History not found")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}
