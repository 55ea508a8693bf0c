// Package imagination implements the task lifecycle: creation, provider
// submission, poll/webhook reconciliation, retries, timeouts, and the bulk
// fan-out aggregation built on top of single tasks.
package imagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/assets"
	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/pixforge/imagine-api/internal/events"
	"github.com/pixforge/imagine-api/internal/platform/gemini"
	"github.com/pixforge/imagine-api/internal/store"
	"github.com/pixforge/imagine-api/internal/worker"
)

// midjourney delivers one 2x2 grid image; the asset pipeline crops it into
// four sections. Every other engine returns a single image.
const midjourneySections = 4

// PollScheduler is the slice of the poll scheduler the service needs.
type PollScheduler interface {
	Schedule(ctx context.Context, id uuid.UUID, delay time.Duration) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// JobQueue is the slice of the background runner the service needs.
type JobQueue interface {
	Submit(job worker.Job) error
}

// FinishedPayload is the payload of events.TypeImaginationFinished.
type FinishedPayload struct {
	ImaginationID uuid.UUID         `json:"imagination_id"`
	BulkID        *uuid.UUID        `json:"bulk_id,omitempty"`
	Status        domain.Status     `json:"status"`
	Engine        domain.Engine     `json:"engine"`
	Error         string            `json:"error,omitempty"`
	Results       []domain.ImageResult `json:"results,omitempty"`
}

// CreateRequest carries the caller's input for a new text-to-image task.
type CreateRequest struct {
	UserID        uuid.UUID
	Prompt        string
	Delineation   string
	Context       []domain.ContextRow
	EnhancePrompt bool
	Engine        domain.Engine
	AspectRatio   string
	BulkID        *uuid.UUID
}

// BackgroundRemovalRequest carries the caller's input for a new
// background-removal task.
type BackgroundRemovalRequest struct {
	UserID   uuid.UUID
	Engine   domain.Engine
	ImageURL string
}

// Service drives the imagination task lifecycle. All state transitions go
// through it, whether triggered by the API surface, a provider webhook, a
// scheduled poll, or the crash-recovery sweep.
type Service struct {
	logger    *slog.Logger
	store     store.ImaginationStore
	registry  *engine.Registry
	enricher  gemini.Enricher
	pipeline  assets.Pipeline
	scheduler PollScheduler
	queue     JobQueue
	emitter   events.Emitter
	cfg       config.LifecycleConfig

	// publicBaseURL is the externally reachable prefix for provider
	// webhook callbacks.
	publicBaseURL string

	// timeSource is swappable for tests.
	timeSource func() time.Time
}

// NewService creates the lifecycle manager with its collaborators.
func NewService(
	logger *slog.Logger,
	imaginations store.ImaginationStore,
	registry *engine.Registry,
	enricher gemini.Enricher,
	pipeline assets.Pipeline,
	scheduler PollScheduler,
	queue JobQueue,
	emitter events.Emitter,
	cfg config.LifecycleConfig,
	publicBaseURL string,
) *Service {
	return &Service{
		logger:        logger.With("component", "imagination_service"),
		store:         imaginations,
		registry:      registry,
		enricher:      enricher,
		pipeline:      pipeline,
		scheduler:     scheduler,
		queue:         queue,
		emitter:       emitter,
		cfg:           cfg,
		publicBaseURL: publicBaseURL,
		timeSource:    time.Now,
	}
}

// WithTimeSource overrides the clock. Tests use it to drive timeouts.
func (s *Service) WithTimeSource(fn func() time.Time) *Service {
	s.timeSource = fn
	return s
}

// Create validates a text-to-image request against its engine, persists the
// task in draft, and enqueues the provider submission. Validation failures
// are reported as domain.ErrValidation before any network call happens.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Imagination, error) {
	adapter, err := s.registry.Resolve(req.Engine)
	if err != nil {
		return nil, err
	}
	if ok, reason := adapter.Validate(req.AspectRatio); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, reason)
	}

	task, err := domain.NewImagination(req.UserID, req.Engine, req.AspectRatio)
	if err != nil {
		return nil, err
	}
	task.Prompt = req.Prompt
	task.Delineation = req.Delineation
	task.Context = req.Context
	task.EnhancePrompt = req.EnhancePrompt
	task.BulkID = req.BulkID

	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.queue.Submit(NewSubmitJob(s, task.ID)); err != nil {
		return nil, fmt.Errorf("failed to enqueue submission: %w", err)
	}

	s.logger.InfoContext(ctx, "imagination created",
		"imagination_id", task.ID,
		"engine", task.Engine,
		"aspect_ratio", task.AspectRatio)
	return task, nil
}

// CreateBackgroundRemoval validates and persists a background-removal task
// and enqueues its submission.
func (s *Service) CreateBackgroundRemoval(ctx context.Context, req BackgroundRemovalRequest) (*domain.Imagination, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("%w: image_url is required", domain.ErrValidation)
	}
	if _, err := s.registry.Resolve(req.Engine); err != nil {
		return nil, err
	}

	task, err := domain.NewBackgroundRemoval(req.UserID, req.Engine, req.ImageURL)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.queue.Submit(NewSubmitJob(s, task.ID)); err != nil {
		return nil, fmt.Errorf("failed to enqueue submission: %w", err)
	}

	s.logger.InfoContext(ctx, "background removal created",
		"imagination_id", task.ID,
		"engine", task.Engine)
	return task, nil
}

// Get retrieves a task by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Imagination, error) {
	return s.store.GetByID(ctx, id)
}

// List retrieves a user's tasks, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Imagination, error) {
	return s.store.FindByUser(ctx, userID, limit, offset)
}

// Submit performs the provider submission for a previously created task:
// prompt enrichment, the adapter call, poll-state persistence, and the first
// scheduled poll. It is executed on the background runner.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) error {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.IsDone() {
		return nil
	}

	adapter, err := s.registry.Resolve(task.Engine)
	if err != nil {
		return s.fail(ctx, task, err.Error())
	}

	if task.Kind == domain.KindImagine {
		prompt, err := s.buildPrompt(ctx, task)
		if err != nil {
			s.logger.WarnContext(ctx, "prompt enrichment failed, using raw prompt",
				"imagination_id", task.ID,
				"error", err)
			prompt = task.Prompt
		}
		task.Prompt = prompt
	}

	if err := task.SetStatus(domain.StatusInit); err != nil {
		return err
	}

	details, err := adapter.Submit(ctx, task, s.callbackURL(task.ID))
	if err != nil {
		s.logger.ErrorContext(ctx, "provider submission failed",
			"imagination_id", task.ID,
			"engine", task.Engine,
			"error", err)
		return s.retry(ctx, task, err.Error())
	}

	if err := s.applyDetails(task, details); err != nil {
		return s.fail(ctx, task, err.Error())
	}
	task.Report(fmt.Sprintf("Image with engine %s has been requested", task.Engine))

	if err := s.store.Update(ctx, task); err != nil {
		return err
	}
	if task.Status.IsDone() {
		// Some providers resolve synchronously.
		return s.ProcessUpdate(ctx, task, details)
	}
	return s.scheduler.Schedule(ctx, task.ID, s.cfg.PollInterval)
}

// Poll fetches the provider's current view of a task and reconciles it. It
// is executed when a scheduled poll comes due and when a webhook arrives.
func (s *Service) Poll(ctx context.Context, id uuid.UUID) error {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row is gone, stop polling it.
			return s.scheduler.Cancel(ctx, id)
		}
		return err
	}
	if task.Status.IsDone() {
		return s.scheduler.Cancel(ctx, id)
	}

	adapter, err := s.registry.Resolve(task.Engine)
	if err != nil {
		return s.fail(ctx, task, err.Error())
	}

	details, err := adapter.FetchResult(ctx, task)
	if err != nil {
		if errors.Is(err, domain.ErrMissingAdapterState) {
			return s.fail(ctx, task, err.Error())
		}
		s.logger.WarnContext(ctx, "poll request failed, will retry on next tick",
			"imagination_id", task.ID,
			"engine", task.Engine,
			"error", err)
		if s.timedOut(task) {
			return s.timeout(ctx, task)
		}
		return s.scheduler.Schedule(ctx, task.ID, s.cfg.PollInterval)
	}

	return s.ProcessUpdate(ctx, task, details)
}

// HandleWebhook reconciles a task after a provider callback. The payload is
// not trusted: the provider is re-queried so webhook and poll go through the
// same path and a spoofed or stale callback cannot corrupt state.
func (s *Service) HandleWebhook(ctx context.Context, id uuid.UUID) error {
	return s.Poll(ctx, id)
}

// Cancel marks a task cancelled on the caller's behalf and stops its
// polling. Cancelling a task that is already terminal is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.Imagination, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsDone() {
		return task, nil
	}

	if err := task.SetStatus(domain.StatusCancelled); err != nil {
		return nil, err
	}
	task.Report("Image generation has been cancelled")
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}
	if err := s.scheduler.Cancel(ctx, task.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to cancel scheduled poll",
			"imagination_id", task.ID,
			"error", err)
	}
	s.emitFinished(ctx, task)
	return task, nil
}

// ProcessUpdate reconciles a task against the provider's reported details.
// It is the single transition function shared by polls, webhooks, and
// synchronous submissions.
func (s *Service) ProcessUpdate(ctx context.Context, task *domain.Imagination, details *engine.Details) error {
	// A cancelled task never transitions again, whatever the provider says.
	if task.Status == domain.StatusCancelled {
		return s.scheduler.Cancel(ctx, task.ID)
	}

	switch {
	case details.Status == domain.StatusCancelled:
		if err := task.SetStatus(domain.StatusCancelled); err != nil {
			return err
		}
		task.Report("Image generation was cancelled by the provider")
		if err := s.store.Update(ctx, task); err != nil {
			return err
		}
		_ = s.scheduler.Cancel(ctx, task.ID)
		s.emitFinished(ctx, task)
		return nil

	case details.Status == domain.StatusError:
		msg := details.Error
		if msg == "" {
			msg = "provider reported an error"
		}
		return s.retry(ctx, task, msg)

	case details.Status.IsDone():
		return s.complete(ctx, task, details)

	default:
		if err := s.applyDetails(task, details); err != nil {
			return s.fail(ctx, task, err.Error())
		}
		if s.timedOut(task) {
			if err := s.store.Update(ctx, task); err != nil {
				return err
			}
			return s.timeout(ctx, task)
		}
		if err := s.store.Update(ctx, task); err != nil {
			return err
		}
		return s.scheduler.Schedule(ctx, task.ID, s.cfg.PollInterval)
	}
}

// RecoverJobs produces a job for every unfinished task, so work interrupted
// by a restart resumes. Drafts were persisted but never reached the provider,
// so they re-enter through submit; everything else resumes polling.
// Installed as the runner's RecoverFunc.
func (s *Service) RecoverJobs(ctx context.Context) ([]worker.Job, error) {
	stale, err := s.store.FindUnfinished(ctx, s.cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to find unfinished imaginations: %w", err)
	}
	jobs := make([]worker.Job, 0, len(stale))
	for _, task := range stale {
		if task.Status == domain.StatusDraft {
			jobs = append(jobs, NewSubmitJob(s, task.ID))
			continue
		}
		jobs = append(jobs, NewPollJob(s, task.ID))
	}
	return jobs, nil
}

// buildPrompt assembles the provider prompt: the base prompt translated to
// English, the delineation, and each context row, joined with ", ". When
// requested, the assembled prompt gets an enhancement pass.
func (s *Service) buildPrompt(ctx context.Context, task *domain.Imagination) (string, error) {
	parts := make([]string, 0, 2+len(task.Context))

	base, err := s.enricher.Translate(ctx, task.Prompt)
	if err != nil {
		return "", err
	}
	parts = append(parts, base)

	if task.Delineation != "" {
		parts = append(parts, task.Delineation)
	}
	for _, row := range task.Context {
		if row.Value == "" {
			continue
		}
		parts = append(parts, row.Value)
	}

	prompt := strings.Join(parts, ", ")
	if task.EnhancePrompt {
		enhanced, err := s.enricher.Enhance(ctx, prompt)
		if err != nil {
			return "", err
		}
		prompt = enhanced
	}
	return prompt, nil
}

// applyDetails copies a normalized provider response onto the task.
func (s *Service) applyDetails(task *domain.Imagination, details *engine.Details) error {
	if err := task.SetStatus(details.Status); err != nil {
		return err
	}
	task.Progress = domain.ClampProgress(details.Progress)
	if details.Error != "" {
		task.Error = details.Error
	}
	if details.Prompt != "" {
		task.Prompt = details.Prompt
	}
	if details.State != nil {
		raw, err := engine.EncodeState(details.State)
		if err != nil {
			return err
		}
		task.PollState = raw
	}
	return nil
}

// complete runs the asset pipeline for a finished task and closes it out.
// A pipeline failure does not demote the completed status; the error is
// recorded alongside the provider's result URI so the raw asset is not lost.
func (s *Service) complete(ctx context.Context, task *domain.Imagination, details *engine.Details) error {
	if err := s.applyDetails(task, details); err != nil {
		return s.fail(ctx, task, err.Error())
	}
	task.Progress = 100

	if details.ResultURI != "" {
		sections := 1
		if task.Engine == domain.EngineMidjourney {
			sections = midjourneySections
		}
		results, err := s.pipeline.Process(ctx, details.ResultURI, sections, assets.UploadMeta{
			UserID: task.UserID,
			Prompt: task.Prompt,
			Engine: task.Engine,
			Dir:    task.UserID.String(),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "asset processing failed for completed task",
				"imagination_id", task.ID,
				"result_uri", details.ResultURI,
				"error", err)
			task.Error = err.Error()
			task.Results = []domain.ImageResult{{URL: details.ResultURI}}
		} else {
			task.Results = results
		}
	}

	task.Report(fmt.Sprintf("Image with engine %s has been completed", task.Engine))
	if err := s.store.Update(ctx, task); err != nil {
		return err
	}
	if err := s.scheduler.Cancel(ctx, task.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to cancel scheduled poll",
			"imagination_id", task.ID,
			"error", err)
	}
	s.emitFinished(ctx, task)
	return nil
}

// retry re-submits a failed task until the retry budget runs out, then
// fails it for good.
func (s *Service) retry(ctx context.Context, task *domain.Imagination, msg string) error {
	if task.RetryCount >= s.cfg.MaxRetries {
		return s.fail(ctx, task, fmt.Sprintf("Image failed after retries, %s", msg))
	}

	task.RetryCount++
	task.Error = msg
	task.PollState = nil
	if err := task.SetStatus(domain.StatusInit); err != nil {
		return err
	}
	task.Report(fmt.Sprintf("Retry %d of %d: %s", task.RetryCount, s.cfg.MaxRetries, msg))
	if err := s.store.Update(ctx, task); err != nil {
		return err
	}
	if err := s.scheduler.Cancel(ctx, task.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to cancel scheduled poll before retry",
			"imagination_id", task.ID,
			"error", err)
	}

	s.logger.InfoContext(ctx, "retrying imagination",
		"imagination_id", task.ID,
		"retry_count", task.RetryCount,
		"error", msg)
	return s.queue.Submit(NewSubmitJob(s, task.ID))
}

// fail moves a task to the terminal error status.
func (s *Service) fail(ctx context.Context, task *domain.Imagination, msg string) error {
	if err := task.SetStatus(domain.StatusError); err != nil {
		return err
	}
	task.Error = msg
	task.Report(msg)
	if err := s.store.Update(ctx, task); err != nil {
		return err
	}
	if err := s.scheduler.Cancel(ctx, task.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to cancel scheduled poll",
			"imagination_id", task.ID,
			"error", err)
	}
	s.emitFinished(ctx, task)
	return nil
}

// timeout force-fails a task that exhausted its wall-clock window.
func (s *Service) timeout(ctx context.Context, task *domain.Imagination) error {
	return s.fail(ctx, task, "service timeout")
}

func (s *Service) timedOut(task *domain.Imagination) bool {
	return task.Age(s.timeSource()) > s.cfg.Timeout
}

func (s *Service) callbackURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/v1/imagination/%s/webhook", strings.TrimSuffix(s.publicBaseURL, "/"), id)
}

func (s *Service) emitFinished(ctx context.Context, task *domain.Imagination) {
	event, err := events.NewEvent(events.TypeImaginationFinished, FinishedPayload{
		ImaginationID: task.ID,
		BulkID:        task.BulkID,
		Status:        task.Status,
		Engine:        task.Engine,
		Error:         task.Error,
		Results:       task.Results,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build finished event",
			"imagination_id", task.ID,
			"error", err)
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "finished event handler failed",
			"imagination_id", task.ID,
			"error", err)
	}
}
