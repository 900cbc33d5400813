package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	params := JobParams{
		Path:   "D:\\UPD",
		Defrag: true,
	}

	job := NewJob("job_abc", params)

	assert.Equal(t, "job_abc", job.ID)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, "D:\\UPD", job.Path)
	assert.True(t, job.Defrag)
	assert.False(t, job.ZeroFreeSpace)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Zero(t, job.Progress)
	assert.Zero(t, job.SizeBefore)
	assert.NotNil(t, job.Errors)
	assert.NotNil(t, job.Messages)
	assert.Empty(t, job.Errors)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestJobLifecycleTimestamps(t *testing.T) {
	job := NewJob("job_1", JobParams{Path: "C:\\vms"})

	job.MarkStarted()
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, JobStatusRunning, job.Status)

	started := *job.StartedAt
	time.Sleep(5 * time.Millisecond)

	// A second MarkStarted must not move the timestamp.
	job.MarkStarted()
	assert.True(t, job.StartedAt.Equal(started))

	job.MarkCompleted()
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, JobStatusCompleted, job.Status)

	completed := *job.CompletedAt
	job.MarkCompleted()
	assert.True(t, job.CompletedAt.Equal(completed))

	assert.True(t, job.IsTerminal())
	assert.GreaterOrEqual(t, job.Duration(), 5*time.Millisecond)
}

func TestMarkFailedRecordsError(t *testing.T) {
	job := NewJob("job_2", JobParams{Path: "C:\\vms"})
	job.MarkStarted()
	job.MarkFailed("no files matched pattern")

	assert.Equal(t, JobStatusFailed, job.Status)
	require.NotNil(t, job.CompletedAt)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "no files matched pattern", job.Errors[0])
	assert.True(t, job.IsTerminal())
}

func TestUpdateProgress(t *testing.T) {
	job := NewJob("job_3", JobParams{Path: "C:\\vms"})

	job.UpdateProgress(0, 4)
	assert.Equal(t, 4, job.TotalFiles)
	assert.Zero(t, job.Progress)

	job.UpdateProgress(2, 4)
	assert.InDelta(t, 50.0, job.Progress, 0.001)

	job.UpdateProgress(4, 4)
	assert.InDelta(t, 100.0, job.Progress, 0.001)

	// A zero total must not divide.
	job.UpdateProgress(0, 0)
	assert.InDelta(t, 100.0, job.Progress, 0.001)
}

func TestDurationWithoutTimestamps(t *testing.T) {
	job := NewJob("job_4", JobParams{Path: "C:\\vms"})
	assert.Zero(t, job.Duration())

	job.MarkStarted()
	assert.Zero(t, job.Duration())
}

func TestCloneIsDeep(t *testing.T) {
	job := NewJob("job_5", JobParams{Path: "C:\\vms"})
	job.MarkStarted()
	job.AddMessage("first")
	job.AddError("oops")

	clone := job.Clone()

	job.AddMessage("second")
	job.Errors[0] = "mutated"
	*job.StartedAt = job.StartedAt.Add(time.Hour)
	job.MarkFailed("late failure")

	assert.Equal(t, JobStatusRunning, clone.Status)
	assert.Len(t, clone.Messages, 1)
	assert.Equal(t, "oops", clone.Errors[0])
	assert.Nil(t, clone.CompletedAt)
	assert.NotEqual(t, job.StartedAt, clone.StartedAt)
}

func TestNormalizeLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LogLevelDebug},
		{"Information", LogLevelInfo},
		{"info", LogLevelInfo},
		{"WARNING", LogLevelWarn},
		{"warn", LogLevelWarn},
		{"error", LogLevelError},
		{"ERR", LogLevelError},
		{"nonsense", "nonsense"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLogLevel(tt.in), "input %q", tt.in)
	}
}

func TestLevelRankOrdering(t *testing.T) {
	assert.Less(t, LevelRank(LogLevelDebug), LevelRank(LogLevelInfo))
	assert.Less(t, LevelRank(LogLevelInfo), LevelRank(LogLevelWarn))
	assert.Less(t, LevelRank(LogLevelWarn), LevelRank(LogLevelError))
}
