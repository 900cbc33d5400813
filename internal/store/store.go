// -----------------------------------------------------------------------
// Job Store - in-memory concurrent map of job records, the single source
// of truth for job state. Readers get snapshot copies; writers go through
// Update so per-record mutation is serialized.
// -----------------------------------------------------------------------

package store

import (
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/models"
)

// EventWriter receives structured events for the domain log. The log sink
// implements it; tests substitute a recorder.
type EventWriter interface {
	Write(event models.LogEvent) error
}

type entry struct {
	mu  sync.Mutex
	seq uint64
	job *models.Job
}

// Store owns all job records for the life of the process. Records stay
// addressable after reaching a terminal state; durability is the history
// writer's concern, not the store's.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*entry
	seq    uint64
	events EventWriter
	logger arbor.ILogger
}

// New creates an empty store. events may be nil (no domain events emitted).
func New(events EventWriter, logger arbor.ILogger) *Store {
	return &Store{
		jobs:   make(map[string]*entry),
		events: events,
		logger: logger,
	}
}

// Create allocates a fresh job in Queued status and inserts it.
// The returned record is a snapshot copy.
func (s *Store) Create(params models.JobParams) *models.Job {
	job := models.NewJob(common.NewJobID(), params)

	s.mu.Lock()
	s.seq++
	s.jobs[job.ID] = &entry{seq: s.seq, job: job}
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("path", job.Path).
		Msg("Job created")

	if s.events != nil {
		s.events.Write(models.NewLogEvent(models.LogLevelInfo, job.ID, "Job created").
			WithField("path", job.Path))
	}

	return job.Clone()
}

// Get returns a snapshot of the record, or false if the ID is unknown.
// Repeated calls without intervening mutation return field-identical copies.
func (s *Store) Get(id string) (*models.Job, bool) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	job := e.job.Clone()
	e.mu.Unlock()
	return job, true
}

// List returns snapshot copies ordered by creation, most recent first,
// truncated to limit. limit <= 0 returns an empty slice.
func (s *Store) List(limit int) []*models.Job {
	if limit <= 0 {
		return []*models.Job{}
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	jobs := make([]*models.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	return jobs
}

// Update applies a mutation to the record in place. Concurrent updates to
// the same record are serialized; updates to different records never block
// each other. Returns false if the ID is unknown.
func (s *Store) Update(id string, mutator func(*models.Job)) bool {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	mutator(e.job)
	e.mu.Unlock()
	return true
}

// Count returns the total number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CountByStatus returns the number of records in the given status.
func (s *Store) CountByStatus(status models.JobStatus) int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	count := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.job.Status == status {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// NextQueued returns the oldest Queued job eligible for automatic
// admission. Jobs carrying a scheduled-time hint are skipped: they are
// admitted explicitly, never promoted.
func (s *Store) NextQueued() (string, bool) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	for _, e := range entries {
		e.mu.Lock()
		eligible := e.job.Status == models.JobStatusQueued && e.job.ScheduledTime == ""
		id := e.job.ID
		e.mu.Unlock()
		if eligible {
			return id, true
		}
	}
	return "", false
}

// Running returns the ID of the currently running job, if any.
func (s *Store) Running() (string, bool) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		running := e.job.Status == models.JobStatusRunning
		id := e.job.ID
		e.mu.Unlock()
		if running {
			return id, true
		}
	}
	return "", false
}
