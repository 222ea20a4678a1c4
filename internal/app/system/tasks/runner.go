// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per run; defaults to Interval
	Run      func(ctx context.Context) error
}

// Runner runs each job on its own ticker until stopped.
type Runner struct {
	jobs   []Job
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner for jobs.
func NewRunner(logger *zap.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, log: logger}
}

// Start launches one goroutine per job. Jobs first run after one interval.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			r.log.Warn("skipping job without interval or body", zap.String("job", job.Name))
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.log.Info("background jobs started", zap.Int("count", len(r.jobs)))
}

// Stop cancels all jobs and waits for running ones to return.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Info("background jobs stopped")
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs job a single time with its timeout and logs the outcome.
func (r *Runner) RunOnce(ctx context.Context, job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		r.log.Error("background job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
}
