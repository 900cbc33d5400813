// -----------------------------------------------------------------------
// Compactor - default work function. Walks the target path for candidate
// disk images and hands each one to the injected Op, reporting progress
// through the job store. The actual resize algorithm lives behind Op.
// -----------------------------------------------------------------------

package compact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/models"
	"github.com/ternarybob/compactd/internal/worker"
)

// Options are the per-job flags forwarded to the Op.
type Options struct {
	Defrag        bool
	ZeroFreeSpace bool
}

// Op performs the actual compaction of a single image file and returns
// its size after the operation. Implementations are external
// collaborators; MeasureOp is the built-in stand-in.
type Op interface {
	Compact(ctx context.Context, path string, opts Options) (int64, error)
}

// MeasureOp is the default Op: it performs no modification and reports
// the file's current size, so the pipeline (progress, size accounting,
// history) is fully exercised without touching images.
type MeasureOp struct{}

func (MeasureOp) Compact(ctx context.Context, path string, opts Options) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// NewWorkFunc builds the worker.WorkFunc for the given config and Op.
func NewWorkFunc(cfg common.CompactConfig, op Op, logger arbor.ILogger) worker.WorkFunc {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "*.vhdx"
	}

	return func(ctx context.Context, job models.Job, update func(func(*models.Job))) error {
		files, err := candidates(job, pattern)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no candidate files found under %s", job.Path)
		}

		var sizeBefore int64
		for _, f := range files {
			if info, err := os.Stat(f); err == nil {
				sizeBefore += info.Size()
			}
		}

		total := len(files)
		update(func(j *models.Job) {
			j.SizeBefore = sizeBefore
			j.UpdateProgress(0, total)
			j.AddMessage(fmt.Sprintf("Found %d candidate file(s), %d bytes total", total, sizeBefore))
		})

		opts := Options{Defrag: job.Defrag, ZeroFreeSpace: job.ZeroFreeSpace}

		var sizeAfter int64
		failed := 0
		for i, file := range files {
			newSize, err := op.Compact(ctx, file, opts)
			if err != nil {
				failed++
				logger.Warn().Err(err).Str("job_id", job.ID).Str("file", file).Msg("File compaction failed")
				update(func(j *models.Job) {
					j.AddError(fmt.Sprintf("%s: %v", filepath.Base(file), err))
					j.UpdateProgress(i+1, total)
				})
				continue
			}

			sizeAfter += newSize
			name := filepath.Base(file)
			update(func(j *models.Job) {
				j.SizeAfter = sizeAfter
				j.Savings = j.SizeBefore - sizeAfter
				j.UpdateProgress(i+1, total)
				j.AddMessage(fmt.Sprintf("Compacted %s", name))
			})
		}

		if failed == total {
			return fmt.Errorf("all %d file(s) failed to compact", total)
		}

		update(func(j *models.Job) {
			j.Savings = j.SizeBefore - j.SizeAfter
			j.AddMessage(fmt.Sprintf("Finished: %d of %d file(s) compacted, %d bytes saved",
				total-failed, total, j.SizeBefore-j.SizeAfter))
		})
		return nil
	}
}

// candidates resolves the file set for a job: the single-file override if
// present, otherwise a pattern match under the target path. Template
// images are skipped unless the job opts in.
func candidates(job models.Job, pattern string) ([]string, error) {
	if job.SingleFile != "" {
		file := job.SingleFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(job.Path, file)
		}
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("single file %s not accessible: %w", file, err)
		}
		return []string{file}, nil
	}

	if _, err := os.Stat(job.Path); err != nil {
		return nil, fmt.Errorf("target path %s not accessible: %w", job.Path, err)
	}

	matches, err := filepath.Glob(filepath.Join(job.Path, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if !job.IncludeTemplate && strings.Contains(strings.ToLower(filepath.Base(m)), "template") {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}
