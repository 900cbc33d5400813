// -----------------------------------------------------------------------
// Log Sink - append-only structured event writer with day-keyed files,
// bounded-window queries and an age-based retention sweep.
// -----------------------------------------------------------------------

package logs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/models"
)

const (
	dayFormat      = "2006-01-02"
	filePrefix     = "events-"
	fileSuffix     = ".log"
	queryWindowDay = 7 // Query reads at most this many most-recent day files
)

// Subscriber receives each event as it is written. Subscribers must not
// block; the websocket hub hands events to per-client buffered channels.
type Subscriber func(event models.LogEvent)

// Sink owns the append cursor for the current day's file. Write is safe to
// call concurrently from handlers, the worker goroutine and the sweep.
type Sink struct {
	mu         sync.Mutex
	logsDir    string
	historyDir string
	host       string
	logger     arbor.ILogger

	file    *os.File
	fileDay string

	subMu sync.RWMutex
	subs  []Subscriber
}

// NewSink creates the sink, ensuring the logs directory exists. historyDir
// is not written by the sink but is included in the retention sweep.
func NewSink(logsDir, historyDir string, logger arbor.ILogger) (*Sink, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Sink{
		logsDir:    logsDir,
		historyDir: historyDir,
		host:       host,
		logger:     logger,
	}, nil
}

// Subscribe registers a fan-out hook invoked for every written event.
func (s *Sink) Subscribe(fn Subscriber) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

// Write appends one serialized event line to the current day's file.
// Lines never interleave; day rollover closes and reopens the handle.
func (s *Sink) Write(event models.LogEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Host == "" {
		event.Host = s.host
	}
	event.Level = models.NormalizeLogLevel(event.Level)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal log event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := event.Timestamp.Format(dayFormat)
	if s.file == nil || s.fileDay != day {
		if s.file != nil {
			s.file.Close()
			s.file = nil
		}
		path := filepath.Join(s.logsDir, filePrefix+day+fileSuffix)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		s.file = f
		s.fileDay = day
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append log event: %w", err)
	}

	s.notify(event)
	return nil
}

func (s *Sink) notify(event models.LogEvent) {
	s.subMu.RLock()
	subs := s.subs
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}

// Query returns up to count events, most recent first, reading a bounded
// window of recent day files. A line that fails to parse is skipped.
// severity and jobID filters are optional (empty = no filter).
func (s *Sink) Query(count int, severity, jobID string) ([]models.LogEvent, error) {
	if count <= 0 {
		return []models.LogEvent{}, nil
	}
	severity = models.NormalizeLogLevel(severity)

	results := make([]models.LogEvent, 0, count)

	// Flush ordering: Write holds the handle open, so sync before reading
	// today's file to observe our own appends.
	s.mu.Lock()
	if s.file != nil {
		s.file.Sync()
	}
	s.mu.Unlock()

	today := time.Now()
	for d := 0; d < queryWindowDay && len(results) < count; d++ {
		day := today.AddDate(0, 0, -d).Format(dayFormat)
		path := filepath.Join(s.logsDir, filePrefix+day+fileSuffix)

		events, err := s.readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		// Within a file, append order is generation order; walk backwards
		// so newer events come first.
		for i := len(events) - 1; i >= 0 && len(results) < count; i-- {
			e := events[i]
			if severity != "" && e.Level != severity {
				continue
			}
			if jobID != "" && e.JobID != jobID {
				continue
			}
			results = append(results, e)
		}
	}

	return results, nil
}

func (s *Sink) readFile(path string) ([]models.LogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []models.LogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event models.LogEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// Corrupt line, skip it
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file %s: %w", path, err)
	}
	return events, nil
}

// Sweep deletes whole files older than the retention cutoff across both
// the log directory and the job-history directory. Returns the number of
// files removed.
func (s *Sink) Sweep(retentionDays int) (int, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1, got %d", retentionDays)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, dir := range []string{s.logsDir, s.historyDir} {
		if dir == "" {
			continue
		}
		n, err := sweepDir(dir, cutoff)
		removed += n
		if err != nil {
			return removed, err
		}
	}

	// Drop the open handle if its file was swept out from under us.
	s.mu.Lock()
	if s.file != nil {
		if _, err := os.Stat(s.file.Name()); os.IsNotExist(err) {
			s.file.Close()
			s.file = nil
			s.fileDay = ""
		}
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("removed", removed).
		Int("retention_days", retentionDays).
		Msg("Retention sweep finished")

	return removed, nil
}

func sweepDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Close releases the current day's file handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
