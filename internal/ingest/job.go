package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// JobStats summarizes a Run.
type JobStats struct {
	Walked    int64 `json:"walked"`
	Skipped   int64 `json:"skipped"`
	Processed int64 `json:"processed"`
}

// Job enumerates files below start paths and feeds them to a FileIngester.
type Job struct {
	Ingester *FileIngester
	Progress *progressbar.ProgressBar
	sem      *semaphore.Weighted
	logger   *logrus.Logger
}

// NewJob initializes a Job processing at most maxConcurrency files at once.
func NewJob(ingester *FileIngester, maxConcurrency int64, logger *logrus.Logger) *Job {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Job{
		Ingester: ingester,
		sem:      semaphore.NewWeighted(maxConcurrency),
		logger:   logger,
	}
}

// jobRun tracks the goroutines and counts of one Run or RunFiles call.
type jobRun struct {
	wg                         sync.WaitGroup
	walked, skipped, processed atomic.Int64
}

func (r *jobRun) stats() JobStats {
	return JobStats{Walked: r.walked.Load(), Skipped: r.skipped.Load(), Processed: r.processed.Load()}
}

// submit processes file on its own goroutine once a slot is free.
func (j *Job) submit(ctx context.Context, run *jobRun, file File) error {
	run.walked.Add(1)

	// Acquire semaphore to limit concurrency
	if err := j.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		defer j.sem.Release(1)

		if ShouldSkip(file) {
			run.skipped.Add(1)
		} else {
			run.processed.Add(1)
		}
		j.Ingester.Process(ctx, file)
		if j.Progress != nil {
			_ = j.Progress.Add(1)
		}
	}()
	return nil
}

func (j *Job) finish(run *jobRun, err error) (JobStats, error) {
	run.wg.Wait()
	stats := run.stats()
	logger := j.logger.WithFields(logrus.Fields{
		"job":       j.Ingester.JobID(),
		"walked":    stats.Walked,
		"skipped":   stats.Skipped,
		"processed": stats.Processed,
	})
	if err != nil {
		logger.WithError(err).Warn("Ingest job interrupted")
		return stats, err
	}
	logger.Info("Ingest job completed")
	return stats, nil
}

// Run walks every path and processes each entry. Unreadable entries are
// logged and skipped; only context cancellation aborts the walk.
func (j *Job) Run(ctx context.Context, paths ...string) (JobStats, error) {
	run := &jobRun{}

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				j.logger.WithError(err).WithField("path", path).Warn("Failed to read entry")
				return nil
			}
			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				j.logger.WithError(err).WithField("path", path).Warn("Failed to stat entry")
				return nil
			}
			return j.submit(ctx, run, FileFromPath(path, info))
		})
		if err != nil {
			return j.finish(run, err)
		}
	}
	return j.finish(run, nil)
}

// RunFiles processes files that were enumerated elsewhere, such as manifest entries.
func (j *Job) RunFiles(ctx context.Context, files []File) (JobStats, error) {
	run := &jobRun{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return j.finish(run, err)
		}
		if err := j.submit(ctx, run, f); err != nil {
			return j.finish(run, err)
		}
	}
	return j.finish(run, nil)
}
