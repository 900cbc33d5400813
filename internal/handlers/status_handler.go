package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/models"
	"github.com/ternarybob/compactd/internal/store"
	"github.com/ternarybob/compactd/internal/worker"
)

// StatusHandler serves the derived service status snapshot
type StatusHandler struct {
	store      *store.Store
	controller *worker.Controller
	startTime  time.Time
	logger     arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(jobStore *store.Store, controller *worker.Controller, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		store:      jobStore,
		controller: controller,
		startTime:  time.Now(),
		logger:     logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.Snapshot())
}

// Snapshot computes the point-in-time aggregate from the job store.
func (h *StatusHandler) Snapshot() models.ServiceStatus {
	status := models.ServiceStatus{
		ServiceRunning: true,
		TotalJobs:      h.store.Count(),
		QueuedJobs:     h.store.CountByStatus(models.JobStatusQueued),
		RunningJobs:    h.store.CountByStatus(models.JobStatusRunning),
		CompletedJobs:  h.store.CountByStatus(models.JobStatusCompleted),
		FailedJobs:     h.store.CountByStatus(models.JobStatusFailed),
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
	}

	if id, ok := h.controller.Active(); ok {
		status.CurrentJob = &id
	}

	return status
}
