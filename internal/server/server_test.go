package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/compactd/internal/app"
	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/compact"
	"github.com/ternarybob/compactd/internal/models"
)

// gateOp reports the current file size but waits on gate first when set,
// letting tests hold a job in Running.
type gateOp struct {
	gate chan struct{}
}

func (o gateOp) Compact(ctx context.Context, path string, opts compact.Options) (int64, error) {
	if o.gate != nil {
		<-o.gate
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func newTestServer(t *testing.T, op compact.Op) (*Server, *app.App, string) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.LogsDir = t.TempDir()
	config.Storage.HistoryDir = t.TempDir()
	config.Storage.StaticDir = filepath.Join(t.TempDir(), "absent")

	application, err := app.NewWithOp(config, common.GetLogger(), op)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	imageDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "vm1.vhdx"), make([]byte, 1024), 0644))

	return New(application), application, imageDir
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func waitForTerminal(t *testing.T, handler http.Handler, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, body := doJSON(t, handler, "GET", "/api/jobs/"+jobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		status := body["status"].(string)
		if status == string(models.JobStatusCompleted) || status == string(models.JobStatusFailed) {
			return body
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestSubmitJobRunsToCompletion(t *testing.T) {
	srv, application, imageDir := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, body := doJSON(t, handler, "POST", "/api/jobs", map[string]any{
		"path":   imageDir,
		"defrag": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, string(models.JobStatusQueued), body["status"])

	jobID := body["jobId"].(string)
	require.NotEmpty(t, jobID)

	terminal := waitForTerminal(t, handler, jobID)
	assert.Equal(t, string(models.JobStatusCompleted), terminal["status"])
	assert.Equal(t, float64(1), terminal["totalFiles"])
	assert.Equal(t, float64(1024), terminal["sizeBefore"])
	assert.NotNil(t, terminal["startedAt"])
	assert.NotNil(t, terminal["completedAt"])

	require.NoError(t, application.Drain(context.Background()))

	// Terminal snapshot is served from history once persisted.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body = doJSON(t, handler, "GET", "/api/history/"+jobID, nil)
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.JobStatusCompleted), body["status"])
}

func TestSecondJobQueuesBehindRunning(t *testing.T) {
	gate := make(chan struct{})
	srv, application, imageDir := newTestServer(t, gateOp{gate: gate})
	handler := srv.Handler()

	rec, first := doJSON(t, handler, "POST", "/api/jobs", map[string]any{"path": imageDir})
	require.Equal(t, http.StatusCreated, rec.Code)
	firstID := first["jobId"].(string)

	// Wait for the first job to hold the slot.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := application.Controller.Active(); ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, second := doJSON(t, handler, "POST", "/api/jobs", map[string]any{"path": imageDir})
	require.Equal(t, http.StatusCreated, rec.Code)
	secondID := second["jobId"].(string)
	assert.Equal(t, string(models.JobStatusQueued), second["status"])

	rec, got := doJSON(t, handler, "GET", "/api/jobs/"+secondID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.JobStatusQueued), got["status"])

	// A scheduled job queues without an admission attempt.
	rec, _ = doJSON(t, handler, "POST", "/api/jobs", map[string]any{
		"path":          imageDir,
		"scheduledTime": "2026-09-02T03:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, status := doJSON(t, handler, "GET", "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, status["serviceRunning"])
	assert.Equal(t, float64(1), status["runningJobs"])
	assert.Equal(t, float64(2), status["queuedJobs"])
	assert.Equal(t, float64(3), status["totalJobs"])
	assert.Equal(t, firstID, status["currentJob"])

	close(gate)

	// The waiting job is promoted once the slot frees up.
	waitForTerminal(t, handler, firstID)
	waitForTerminal(t, handler, secondID)
	require.NoError(t, application.Drain(context.Background()))
}

func TestScheduledJobStaysQueued(t *testing.T) {
	srv, application, imageDir := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, body := doJSON(t, handler, "POST", "/api/jobs", map[string]any{
		"path":          imageDir,
		"scheduledTime": "2026-09-02T03:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := body["jobId"].(string)

	time.Sleep(50 * time.Millisecond)

	rec, got := doJSON(t, handler, "GET", "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.JobStatusQueued), got["status"])
	assert.Equal(t, "2026-09-02T03:00:00Z", got["scheduledTime"])

	_, active := application.Controller.Active()
	assert.False(t, active)
}

func TestSubmitValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/api/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request body"}`, rec.Body.String())

	rec2, _ := doJSON(t, handler, "POST", "/api/jobs", map[string]any{"defrag": true})
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
	assert.JSONEq(t, `{"error":"path is required"}`, rec2.Body.String())
}

func TestGetUnknownJob(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, "GET", "/api/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Job not found"}`, rec.Body.String())
}

func TestListJobs(t *testing.T) {
	srv, _, imageDir := newTestServer(t, gateOp{})
	handler := srv.Handler()

	for i := 0; i < 3; i++ {
		doJSON(t, handler, "POST", "/api/jobs", map[string]any{
			"path":          imageDir,
			"scheduledTime": fmt.Sprintf("2026-09-0%dT03:00:00Z", i+2),
		})
	}

	req := httptest.NewRequest("GET", "/api/jobs?limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, "DELETE", "/api/jobs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	srv, _, imageDir := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, body := doJSON(t, handler, "POST", "/api/jobs", map[string]any{"path": imageDir})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := body["jobId"].(string)
	waitForTerminal(t, handler, jobID)

	req := httptest.NewRequest("GET", "/api/logs?jobId="+jobID, nil)
	logRec := httptest.NewRecorder()
	handler.ServeHTTP(logRec, req)
	require.Equal(t, http.StatusOK, logRec.Code)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(logRec.Body.Bytes(), &events))
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, jobID, e["jobId"])
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, body := doJSON(t, handler, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = doJSON(t, handler, "GET", "/api/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["version"])
}

func TestUnknownAPIRoute(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, "GET", "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, gateOp{})
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, "GET", "/api/history/job_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"History not found"}`, rec.Body.String())
}
