// -----------------------------------------------------------------------
// Job - compaction job record and lifecycle state machine
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a job.
// Transitions only move forward: Queued -> Running -> {Completed, Failed}.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "Queued"
	JobStatusRunning   JobStatus = "Running"
	JobStatusCompleted JobStatus = "Completed"
	JobStatusFailed    JobStatus = "Failed"
)

// JobParams are the caller-supplied inputs for a compaction run.
// ScheduledTime is advisory only: it is stored and echoed back, but no
// scheduler promotes a past-due job - admission is always explicit.
type JobParams struct {
	Path            string `json:"path" validate:"required"`
	SingleFile      string `json:"singleFile,omitempty"`
	IncludeTemplate bool   `json:"includeTemplate,omitempty"`
	Defrag          bool   `json:"defrag,omitempty"`
	ZeroFreeSpace   bool   `json:"zeroFreeSpace,omitempty"`
	ScheduledTime   string `json:"scheduledTime,omitempty"`
}

// Job is the unit of scheduled work. The ID is immutable; status and
// timestamps are mutated only by the worker controller, progress and size
// fields only by the work function while the job is Running.
type Job struct {
	ID     string    `json:"jobId"`
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Path            string `json:"path"`
	SingleFile      string `json:"singleFile,omitempty"`
	IncludeTemplate bool   `json:"includeTemplate"`
	Defrag          bool   `json:"defrag"`
	ZeroFreeSpace   bool   `json:"zeroFreeSpace"`
	ScheduledTime   string `json:"scheduledTime,omitempty"`

	Progress       float64 `json:"progress"`
	TotalFiles     int     `json:"totalFiles"`
	ProcessedFiles int     `json:"processedFiles"`

	SizeBefore int64 `json:"sizeBefore"`
	SizeAfter  int64 `json:"sizeAfter"`
	Savings    int64 `json:"savings"`

	Errors   []string `json:"errors"`
	Messages []string `json:"messages"`
}

// NewJob creates a job in Queued status with zeroed counters.
func NewJob(id string, params JobParams) *Job {
	return &Job{
		ID:              id,
		Status:          JobStatusQueued,
		CreatedAt:       time.Now(),
		Path:            params.Path,
		SingleFile:      params.SingleFile,
		IncludeTemplate: params.IncludeTemplate,
		Defrag:          params.Defrag,
		ZeroFreeSpace:   params.ZeroFreeSpace,
		ScheduledTime:   params.ScheduledTime,
		Errors:          []string{},
		Messages:        []string{},
	}
}

// MarkStarted transitions the job to Running and stamps StartedAt once.
func (j *Job) MarkStarted() {
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
}

// MarkCompleted transitions the job to Completed and stamps CompletedAt once.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	if j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}
}

// MarkFailed transitions the job to Failed, recording the failure detail.
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	if errorMsg != "" {
		j.Errors = append(j.Errors, errorMsg)
	}
	if j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}
}

// AddMessage appends an informational message.
func (j *Job) AddMessage(msg string) {
	j.Messages = append(j.Messages, msg)
}

// AddError appends an error message without changing status.
func (j *Job) AddError(msg string) {
	j.Errors = append(j.Errors, msg)
}

// UpdateProgress sets the file counters and recalculates the percentage.
func (j *Job) UpdateProgress(processed, total int) {
	j.ProcessedFiles = processed
	j.TotalFiles = total
	if total > 0 {
		j.Progress = float64(processed) / float64(total) * 100
	}
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Duration returns the wall-clock execution time for terminal jobs,
// or zero if the job never started or has not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Clone creates a deep copy of the job. The store hands out clones so
// readers never observe a record mid-mutation.
func (j *Job) Clone() *Job {
	clone := *j

	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}

	clone.Errors = make([]string, len(j.Errors))
	copy(clone.Errors, j.Errors)
	clone.Messages = make([]string, len(j.Messages))
	copy(clone.Messages, j.Messages)

	return &clone
}
