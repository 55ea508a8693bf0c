package imagination

import (
	"context"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/worker"
)

// Job type identifiers.
const (
	JobTypeSubmit = "submit"
	JobTypePoll   = "poll"
)

// SubmitJob performs the provider submission for one task on the runner.
type SubmitJob struct {
	svc *Service
	id  uuid.UUID
}

// NewSubmitJob creates a submission job for the given task.
func NewSubmitJob(svc *Service, id uuid.UUID) *SubmitJob {
	return &SubmitJob{svc: svc, id: id}
}

var _ worker.Job = (*SubmitJob)(nil)

// ID implements worker.Job.
func (j *SubmitJob) ID() uuid.UUID { return j.id }

// Type implements worker.Job.
func (j *SubmitJob) Type() string { return JobTypeSubmit }

// Execute implements worker.Job.
func (j *SubmitJob) Execute(ctx context.Context) error {
	return j.svc.Submit(ctx, j.id)
}

// PollJob reconciles one task against its provider on the runner.
type PollJob struct {
	svc *Service
	id  uuid.UUID
}

// NewPollJob creates a poll job for the given task.
func NewPollJob(svc *Service, id uuid.UUID) *PollJob {
	return &PollJob{svc: svc, id: id}
}

var _ worker.Job = (*PollJob)(nil)

// ID implements worker.Job.
func (j *PollJob) ID() uuid.UUID { return j.id }

// Type implements worker.Job.
func (j *PollJob) Type() string { return JobTypePoll }

// Execute implements worker.Job.
func (j *PollJob) Execute(ctx context.Context) error {
	return j.svc.Poll(ctx, j.id)
}
