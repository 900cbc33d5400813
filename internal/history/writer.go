// -----------------------------------------------------------------------
// Job History Writer - one JSON file per job identifier, written once at
// terminal transition and read back by the history API.
// -----------------------------------------------------------------------

package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/models"
)

// Writer persists terminal job snapshots under the history directory.
// Status becoming terminal and the file becoming readable are eventually
// consistent: a brief window where Load returns not-found for a job whose
// status is already terminal is expected.
type Writer struct {
	dir    string
	logger arbor.ILogger
}

// NewWriter creates the writer, ensuring the history directory exists.
func NewWriter(dir string, logger arbor.ILogger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Save serializes the terminal job record to <dir>/<jobId>.json.
// A save failure never reverts the job's terminal status; callers log it
// and move on.
func (w *Writer) Save(job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	path := w.path(job.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file for job %s: %w", job.ID, err)
	}

	w.logger.Debug().
		Str("job_id", job.ID).
		Str("path", path).
		Msg("Job history written")

	return nil
}

// Load reads a terminal snapshot back. Returns os.ErrNotExist (wrapped) if
// no history file exists for the ID.
func (w *Writer) Load(jobID string) (*models.Job, error) {
	data, err := os.ReadFile(w.path(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read history for job %s: %w", jobID, err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history for job %s: %w", jobID, err)
	}
	return &job, nil
}

// Exists reports whether a history file is present for the ID.
func (w *Writer) Exists(jobID string) bool {
	_, err := os.Stat(w.path(jobID))
	return err == nil
}

// Dir returns the history directory (the retention sweep covers it).
func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) path(jobID string) string {
	// Job IDs are generated internally, but never trust them as path input.
	safe := strings.ReplaceAll(jobID, string(os.PathSeparator), "_")
	return filepath.Join(w.dir, safe+".json")
}
