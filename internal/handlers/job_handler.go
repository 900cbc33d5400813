// -----------------------------------------------------------------------
// Job Handler - job submission, lookup and listing. Submission never
// blocks on job execution: it creates the record, makes one admission
// attempt, and returns.
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/models"
	"github.com/ternarybob/compactd/internal/store"
	"github.com/ternarybob/compactd/internal/worker"
)

const defaultListLimit = 50

// JobHandler handles HTTP requests for job management
type JobHandler struct {
	store      *store.Store
	controller *worker.Controller
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobStore *store.Store, controller *worker.Controller, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		store:      jobStore,
		controller: controller,
		validate:   validator.New(),
		logger:     logger,
	}
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", defaultListLimit)
	if limit > defaultListLimit {
		limit = defaultListLimit
	}

	WriteJSON(w, http.StatusOK, h.store.List(limit))
}

// CreateJobHandler handles POST /api/jobs. The created record is returned
// with 201 regardless of the admission outcome: on contention the job
// simply stays Queued. A scheduled-time hint suppresses the admission
// attempt entirely (admission is explicit, no timer promotes the job).
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var params models.JobParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.logger.Warn().Err(err).Msg("Malformed job submission")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(params); err != nil {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}

	created := h.store.Create(params)

	if params.ScheduledTime == "" {
		if h.controller.TryAdmit(created.ID) {
			h.controller.Execute(created.ID)
		}
	}

	WriteJSON(w, http.StatusCreated, created)
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	job, ok := h.store.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}
