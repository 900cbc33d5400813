// -----------------------------------------------------------------------
// Worker Controller - enforces the at-most-one-active-job invariant and
// runs admitted jobs on their own goroutine.
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/history"
	"github.com/ternarybob/compactd/internal/models"
	"github.com/ternarybob/compactd/internal/store"
)

// WorkFunc performs the domain operation for one job. It receives a
// snapshot of the admitted job and an update hook that routes mutations
// through the job store, so progress and size fields become visible to
// concurrent readers in write order. Failure is signalled by the returned
// error; panics are recovered by the controller and treated as failures.
type WorkFunc func(ctx context.Context, job models.Job, update func(func(*models.Job))) error

// Controller owns the single worker slot. TryAdmit is an atomic global
// check-and-set; Execute releases the slot exactly once on every exit path.
type Controller struct {
	store   *store.Store
	history *history.Writer
	events  store.EventWriter
	work    WorkFunc
	logger  arbor.ILogger

	mu     sync.Mutex
	active string

	wg sync.WaitGroup
}

// New creates a controller. events may be nil.
func New(jobStore *store.Store, historyWriter *history.Writer, events store.EventWriter, work WorkFunc, logger arbor.ILogger) *Controller {
	return &Controller{
		store:   jobStore,
		history: historyWriter,
		events:  events,
		work:    work,
		logger:  logger,
	}
}

// Active returns the ID of the job currently holding the worker slot.
func (c *Controller) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != ""
}

// TryAdmit atomically checks that no job is running and, if so, marks the
// job Running and claims the slot. On contention it returns false without
// side effects; the job simply stays Queued.
func (c *Controller) TryAdmit(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != "" {
		c.logger.Warn().
			Str("job_id", id).
			Str("active_job", c.active).
			Msg("Admission refused - another job is running")
		if c.events != nil {
			c.events.Write(models.NewLogEvent(models.LogLevelWarn, id, "Another job is running").
				WithField("activeJob", c.active))
		}
		return false
	}

	admitted := false
	ok := c.store.Update(id, func(j *models.Job) {
		if j.Status == models.JobStatusQueued {
			j.MarkStarted()
			admitted = true
		}
	})
	if !ok || !admitted {
		return false
	}

	c.active = id

	c.logger.Info().Str("job_id", id).Msg("Job admitted")
	if c.events != nil {
		c.events.Write(models.NewLogEvent(models.LogLevelInfo, id, "Job started"))
	}
	return true
}

// Execute runs the work function for an admitted job on its own goroutine
// and returns immediately. It must only be called after TryAdmit succeeds.
func (c *Controller) Execute(id string) {
	c.wg.Add(1)
	go c.run(id)
}

func (c *Controller) run(id string) {
	defer c.wg.Done()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		c.mu.Lock()
		c.active = ""
		c.mu.Unlock()
	}
	defer release()

	snapshot, ok := c.store.Get(id)
	if !ok {
		c.logger.Error().Str("job_id", id).Msg("Admitted job vanished from store")
		return
	}

	update := func(mutator func(*models.Job)) {
		c.store.Update(id, mutator)
	}

	workErr := c.invoke(*snapshot, update)

	if workErr != nil {
		c.store.Update(id, func(j *models.Job) {
			j.MarkFailed(workErr.Error())
		})
	} else {
		c.store.Update(id, func(j *models.Job) {
			j.MarkCompleted()
		})
	}

	// Slot is free before the history write: a waiting submission can be
	// admitted while the terminal record is persisted.
	release()

	terminal, _ := c.store.Get(id)
	if terminal == nil {
		return
	}

	if err := c.history.Save(terminal); err != nil {
		// The job outcome stands; persistence is best-effort.
		c.logger.Error().Err(err).Str("job_id", id).Msg("Failed to write job history")
		if c.events != nil {
			c.events.Write(models.NewLogEvent(models.LogLevelError, id, "Failed to write job history").
				WithField("error", err.Error()))
		}
	}

	c.logger.Info().
		Str("job_id", id).
		Str("status", string(terminal.Status)).
		Dur("duration", terminal.Duration()).
		Int64("savings", terminal.Savings).
		Msg("Job finished")

	if c.events != nil {
		c.events.Write(models.NewLogEvent(models.LogLevelInfo, id, fmt.Sprintf("Job %s", terminal.Status)).
			WithField("duration", terminal.Duration().String()).
			WithField("savings", fmt.Sprintf("%d", terminal.Savings)))
	}

	c.admitNext()
}

// admitNext promotes the oldest waiting submission once the slot frees up.
// Jobs with a scheduled-time hint are left for explicit admission.
func (c *Controller) admitNext() {
	next, ok := c.store.NextQueued()
	if !ok {
		return
	}
	if c.TryAdmit(next) {
		c.Execute(next)
	}
}

// invoke calls the work function with panic recovery. A panic is local to
// the job: it becomes the job's failure, never the controller's.
func (c *Controller) invoke(job models.Job, update func(func(*models.Job))) (workErr error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			c.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Work function panicked")
			workErr = fmt.Errorf("work function panicked: %v", r)
		}
	}()

	return c.work(context.Background(), job, update)
}

// Wait blocks until no job is in flight or ctx expires. Shutdown uses it
// to account for in-flight work; it never cancels the job.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if id, ok := c.Active(); ok {
			c.logger.Warn().Str("job_id", id).Msg("Shutdown proceeding with job still running")
		}
		return ctx.Err()
	}
}

// WaitTimeout is a convenience wrapper around Wait.
func (c *Controller) WaitTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Wait(ctx)
}
