package imagination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/events"
	"github.com/pixforge/imagine-api/internal/store"
)

// defaultAspectRatio fills in when a bulk request supplies fewer aspect
// ratios than engines.
const defaultAspectRatio = "1:1"

// BulkRequest carries the caller's input for a fan-out request. AspectRatios
// and Engines are zipped positionally into combinations; missing ratios
// default to 1:1.
type BulkRequest struct {
	UserID        uuid.UUID
	Prompt        string
	Delineation   string
	Context       []domain.ContextRow
	EnhancePrompt bool
	AspectRatios  []string
	Engines       []domain.Engine
}

// BulkService owns the fan-out aggregate: it creates the parent and its
// child tasks, and recomputes the parent's counters whenever a child
// finishes. It subscribes to the finished event as an events.Handler.
type BulkService struct {
	logger       *slog.Logger
	bulks        store.BulkStore
	imaginations store.ImaginationStore
	tasks        *Service
}

// NewBulkService creates the bulk aggregator.
func NewBulkService(
	logger *slog.Logger,
	bulks store.BulkStore,
	imaginations store.ImaginationStore,
	tasks *Service,
) *BulkService {
	return &BulkService{
		logger:       logger.With("component", "bulk_service"),
		bulks:        bulks,
		imaginations: imaginations,
		tasks:        tasks,
	}
}

var _ events.Handler = (*BulkService)(nil)

// CreateBulk validates every combination, persists the parent aggregate, and
// creates one child task per combination. A validation failure on any
// combination rejects the whole request before anything is persisted.
func (s *BulkService) CreateBulk(ctx context.Context, req BulkRequest) (*domain.BulkImagination, error) {
	combinations, err := s.zipCombinations(req.AspectRatios, req.Engines)
	if err != nil {
		return nil, err
	}

	bulk, err := domain.NewBulkImagination(req.UserID, req.Prompt, combinations)
	if err != nil {
		return nil, err
	}
	bulk.Delineation = req.Delineation
	bulk.Context = req.Context
	bulk.EnhancePrompt = req.EnhancePrompt

	if err := s.bulks.Create(ctx, bulk); err != nil {
		return nil, err
	}

	for _, c := range combinations {
		_, err := s.tasks.Create(ctx, CreateRequest{
			UserID:        req.UserID,
			Prompt:        req.Prompt,
			Delineation:   req.Delineation,
			Context:       req.Context,
			EnhancePrompt: req.EnhancePrompt,
			Engine:        c.Engine,
			AspectRatio:   c.AspectRatio,
			BulkID:        &bulk.ID,
		})
		if err != nil {
			// The combination already passed validation, so this is an
			// infrastructure failure. The child is counted as failed so
			// the bulk can still resolve.
			s.logger.ErrorContext(ctx, "failed to create bulk child",
				"bulk_id", bulk.ID,
				"engine", c.Engine,
				"error", err)
			bulk.TotalFailed++
			bulk.Errors = append(bulk.Errors, domain.BulkError{
				Engine:  c.Engine,
				Message: err.Error(),
			})
		}
	}
	if bulk.TotalFailed > 0 {
		if err := s.bulks.Update(ctx, bulk); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "bulk created",
		"bulk_id", bulk.ID,
		"total_tasks", bulk.TotalTasks,
		"failed_at_creation", bulk.TotalFailed)
	return bulk, nil
}

// GetBulk retrieves a bulk aggregate. Counters are kept current by the
// child-finished event handler, not recomputed here.
func (s *BulkService) GetBulk(ctx context.Context, id uuid.UUID) (*domain.BulkImagination, error) {
	bulk, err := s.bulks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return bulk, nil
}

// HandleEvent implements events.Handler. On a finished child it recomputes
// the parent's counters from the child rows and finalizes the parent once
// every child is terminal. Recomputation makes duplicate and out-of-order
// notifications idempotent.
func (s *BulkService) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeImaginationFinished {
		return nil
	}

	var payload FinishedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to decode finished payload: %w", err)
	}
	if payload.BulkID == nil {
		return nil
	}
	return s.reconcile(ctx, *payload.BulkID)
}

// reconcile rebuilds the parent's counters, results, and errors from its
// children and finalizes it when every child has resolved.
func (s *BulkService) reconcile(ctx context.Context, bulkID uuid.UUID) error {
	bulk, err := s.bulks.GetByID(ctx, bulkID)
	if err != nil {
		return err
	}

	children, err := s.imaginations.FindByBulk(ctx, bulkID)
	if err != nil {
		return err
	}

	completed := 0
	failed := 0
	results := make([]domain.BulkResult, 0, len(children))
	bulkErrors := make([]domain.BulkError, 0)

	for _, child := range children {
		switch {
		case child.Status == domain.StatusError:
			failed++
			msg := child.Error
			if msg == "" {
				msg = "image generation failed"
			}
			bulkErrors = append(bulkErrors, domain.BulkError{
				Engine:  child.Engine,
				Message: msg,
			})
		case child.Status.IsDone():
			// done, completed, and cancelled all count as resolved
			// without failure.
			completed++
			for _, r := range child.Results {
				results = append(results, domain.BulkResult{
					URL:    r.URL,
					Width:  r.Width,
					Height: r.Height,
					Engine: child.Engine,
				})
			}
		}
	}

	// Children that could not even be created have no rows; keep the
	// creation-time failures recorded on the parent.
	creationFailures := bulk.TotalTasks - len(children)
	if creationFailures > 0 {
		failed += creationFailures
		for _, e := range bulk.Errors {
			known := false
			for _, ne := range bulkErrors {
				if ne.Engine == e.Engine && ne.Message == e.Message {
					known = true
					break
				}
			}
			if !known {
				bulkErrors = append(bulkErrors, e)
			}
		}
	}

	bulk.TotalCompleted = completed
	bulk.TotalFailed = failed
	bulk.Results = results
	bulk.Errors = bulkErrors
	if bulk.TotalCompleted > 0 || bulk.TotalFailed > 0 {
		bulk.TaskStatus = domain.TaskStatusProcessing
	}

	if bulk.Resolved() && !bulk.Finalized() {
		bulk.Finalize(s.tasks.timeSource())
		s.logger.InfoContext(ctx, "bulk finalized",
			"bulk_id", bulk.ID,
			"completed", bulk.TotalCompleted,
			"failed", bulk.TotalFailed)
	}

	return s.bulks.Update(ctx, bulk)
}

// zipCombinations pairs aspect ratios with engines positionally and
// validates each pair against its adapter.
func (s *BulkService) zipCombinations(ratios []string, engines []domain.Engine) ([]domain.Combination, error) {
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: at least one engine is required", domain.ErrValidation)
	}

	combinations := make([]domain.Combination, 0, len(engines))
	for i, eng := range engines {
		ratio := defaultAspectRatio
		if i < len(ratios) && ratios[i] != "" {
			ratio = ratios[i]
		}

		adapter, err := s.tasks.registry.Resolve(eng)
		if err != nil {
			return nil, err
		}
		if ok, reason := adapter.Validate(ratio); !ok {
			return nil, fmt.Errorf("%w: engine %s: %s", domain.ErrValidation, eng, reason)
		}
		combinations = append(combinations, domain.Combination{AspectRatio: ratio, Engine: eng})
	}
	return combinations, nil
}
