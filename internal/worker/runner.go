// Package worker provides the background job runner that executes submit and
// poll work for imagination tasks.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Job is a unit of background work keyed to one imagination task.
type Job interface {
	// ID returns the imagination id this job operates on.
	ID() uuid.UUID

	// Type returns the job type identifier.
	Type() string

	// Execute runs the job logic.
	Execute(ctx context.Context) error
}

// RecoverFunc produces the jobs needed to resume work after a restart.
// It is called once when the runner starts.
type RecoverFunc func(ctx context.Context) ([]Job, error)

// Config holds configuration for the runner.
type Config struct {
	// WorkerCount determines how many concurrent workers execute jobs.
	WorkerCount int

	// QueueSize determines the buffer size of the in-memory job queue.
	QueueSize int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{WorkerCount: 4, QueueSize: 100}
}

// Runner manages background job execution over a fixed worker pool.
// Task state is persisted by the jobs themselves; the runner only owns the
// queue and the crash-recovery kickoff.
type Runner struct {
	jobChan    chan Job
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     Config
	logger     *slog.Logger
	recover    RecoverFunc
	errHandler func(job Job, err error)
}

// NewRunner creates a new Runner.
func NewRunner(config Config, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobChan:    make(chan Job, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "worker_runner"),
		errHandler: func(job Job, err error) {
			logger.Error("job execution failed",
				"imagination_id", job.ID(),
				"job_type", job.Type(),
				"error", err)
		},
	}
}

// SetRecoverFunc installs the crash-recovery job producer, run on Start.
func (r *Runner) SetRecoverFunc(fn RecoverFunc) {
	r.recover = fn
}

// SetErrorHandler allows setting a custom error handler function.
func (r *Runner) SetErrorHandler(handler func(job Job, err error)) {
	r.errHandler = handler
}

// Submit adds a job to the queue.
func (r *Runner) Submit(job Job) error {
	select {
	case r.jobChan <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full, try again later")
	}
}

// Start launches the worker pool and runs the recovery sweep.
func (r *Runner) Start() error {
	if r.recover != nil {
		jobs, err := r.recover(r.ctx)
		if err != nil {
			return fmt.Errorf("failed to recover jobs: %w", err)
		}
		r.logger.Info("recovering unfinished work", "job_count", len(jobs))
		for _, job := range jobs {
			if err := r.Submit(job); err != nil {
				r.logger.Error("failed to requeue recovered job, queue is full",
					"imagination_id", job.ID(),
					"job_type", job.Type())
			}
		}
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	return nil
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.jobChan)
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return
		case job, ok := <-r.jobChan:
			if !ok {
				return
			}
			r.runJob(job, id)
		}
	}
}

func (r *Runner) runJob(job Job, workerID int) {
	logger := r.logger.With(
		"imagination_id", job.ID(),
		"job_type", job.Type(),
		"worker_id", workerID,
	)
	logger.Debug("executing job")

	if err := job.Execute(r.ctx); err != nil {
		logger.Error("job execution failed", "error", err)
		r.errHandler(job, err)
		return
	}
	logger.Debug("job completed")
}
