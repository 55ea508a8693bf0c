package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for BulkImagination
var (
	ErrEmptyBulkID          = errors.New("bulk ID cannot be empty")
	ErrEmptyBulkUserID      = errors.New("bulk user ID cannot be empty")
	ErrEmptyBulkCombination = errors.New("bulk requires at least one aspect ratio/engine pair")
)

// Combination is one (aspect ratio, engine) pair a bulk request fans out to.
type Combination struct {
	AspectRatio string `json:"aspect_ratio"`
	Engine      Engine `json:"engine"`
}

// BulkResult is a produced asset attributed to the engine that generated it.
type BulkResult struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Engine Engine `json:"engine"`
}

// BulkError is a failed child's error attributed to its engine.
type BulkError struct {
	Engine  Engine `json:"engine"`
	Message string `json:"message"`
}

// BulkImagination is the parent aggregate of a fan-out request. It owns child
// task creation; children carry only a weak back-reference. The counters are
// always recomputed from the child rows, never incremented blindly, so
// duplicate or out-of-order child notifications are safe.
type BulkImagination struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Prompt        string       `json:"prompt,omitempty"`
	Delineation   string       `json:"delineation,omitempty"`
	Context       []ContextRow `json:"context,omitempty"`
	EnhancePrompt bool         `json:"enhance_prompt,omitempty"`

	Combinations []Combination `json:"combinations"`

	TaskStatus     TaskStatus `json:"task_status"`
	TotalTasks     int        `json:"total_tasks"`
	TotalCompleted int        `json:"total_completed"`
	TotalFailed    int        `json:"total_failed"`

	Results []BulkResult `json:"results,omitempty"`
	Errors  []BulkError  `json:"errors,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewBulkImagination creates a bulk aggregate over the given combinations.
func NewBulkImagination(userID uuid.UUID, prompt string, combinations []Combination) (*BulkImagination, error) {
	now := time.Now().UTC()
	bulk := &BulkImagination{
		ID:           uuid.New(),
		UserID:       userID,
		Prompt:       prompt,
		Combinations: combinations,
		TaskStatus:   TaskStatusInit,
		TotalTasks:   len(combinations),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := bulk.Validate(); err != nil {
		return nil, err
	}
	return bulk, nil
}

// Validate checks if the BulkImagination has valid data.
func (b *BulkImagination) Validate() error {
	if b.ID == uuid.Nil {
		return ErrEmptyBulkID
	}
	if b.UserID == uuid.Nil {
		return ErrEmptyBulkUserID
	}
	if len(b.Combinations) == 0 {
		return ErrEmptyBulkCombination
	}
	for _, c := range b.Combinations {
		if !IsValidEngine(c.Engine) {
			return ErrInvalidEngine
		}
	}
	return nil
}

// Resolved reports whether every child has reached a terminal outcome.
func (b *BulkImagination) Resolved() bool {
	return b.TotalCompleted+b.TotalFailed >= b.TotalTasks
}

// Finalized reports whether the bulk has already been marked completed.
// Re-finalizing a finalized bulk is a no-op for callers that check this.
func (b *BulkImagination) Finalized() bool {
	return b.CompletedAt != nil
}

// Finalize stamps the completion time and marks the coarse status completed.
// Calling it on an already finalized bulk does nothing.
func (b *BulkImagination) Finalize(now time.Time) {
	if b.Finalized() {
		return
	}
	completed := now.UTC()
	b.CompletedAt = &completed
	b.TaskStatus = TaskStatusCompleted
	b.UpdatedAt = completed
}
