package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two task families driven by the same lifecycle.
type Kind string

// Task kinds
const (
	KindImagine           Kind = "imagine"
	KindBackgroundRemoval Kind = "background_removal"
)

// Common validation errors for Imagination
var (
	ErrEmptyImaginationID     = errors.New("imagination ID cannot be empty")
	ErrEmptyImaginationUserID = errors.New("imagination user ID cannot be empty")
	ErrInvalidImaginationKind = errors.New("invalid imagination kind")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidEngine          = errors.New("invalid engine")
)

// ContextRow is one structured prompt attribute (e.g. style, mood). Rows are
// translated and appended to the base prompt at submit time.
type ContextRow struct {
	Topic string `json:"topic"`
	Value string `json:"value"`
}

// ImageResult is one produced asset.
type ImageResult struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Imagination is a single generation job driven by one engine adapter.
// It is created in draft, mutated by the lifecycle manager on submit and on
// each poll/webhook tick, and never deleted by the lifecycle core.
type Imagination struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Kind   Kind      `json:"kind"`

	Prompt        string       `json:"prompt,omitempty"`
	Delineation   string       `json:"delineation,omitempty"`
	Context       []ContextRow `json:"context,omitempty"`
	EnhancePrompt bool         `json:"enhance_prompt,omitempty"`

	// ImageURL is the source image for background-removal tasks.
	ImageURL string `json:"image_url,omitempty"`

	Engine      Engine `json:"engine"`
	AspectRatio string `json:"aspect_ratio,omitempty"`

	Status     Status     `json:"status"`
	TaskStatus TaskStatus `json:"task_status"`
	Progress   int        `json:"progress"`
	Error      string     `json:"error,omitempty"`

	// PollState holds the adapter-specific identifiers needed to poll the
	// provider (job id, session id). Its concrete shape is owned by the
	// engine package; the entity treats it as opaque.
	PollState json.RawMessage `json:"poll_state,omitempty"`

	Results []ImageResult `json:"results,omitempty"`

	// BulkID is a weak back-reference to the owning bulk batch, if any.
	BulkID *uuid.UUID `json:"bulk_id,omitempty"`

	RetryCount int `json:"retry_count"`

	// Reports is the audit trail appended on every lifecycle transition.
	Reports []string `json:"reports,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewImagination creates a text-to-image task in draft state.
// Returns an error if validation fails.
func NewImagination(userID uuid.UUID, engine Engine, aspectRatio string) (*Imagination, error) {
	now := time.Now().UTC()
	img := &Imagination{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        KindImagine,
		Engine:      engine,
		AspectRatio: aspectRatio,
		Status:      StatusDraft,
		TaskStatus:  StatusDraft.TaskStatus(),
		Progress:    ProgressUnknown,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// NewBackgroundRemoval creates a background-removal task in draft state.
func NewBackgroundRemoval(userID uuid.UUID, engine Engine, imageURL string) (*Imagination, error) {
	now := time.Now().UTC()
	img := &Imagination{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindBackgroundRemoval,
		Engine:     engine,
		ImageURL:   imageURL,
		Status:     StatusDraft,
		TaskStatus: StatusDraft.TaskStatus(),
		Progress:   ProgressUnknown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks if the Imagination has valid data.
func (i *Imagination) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyImaginationID
	}
	if i.UserID == uuid.Nil {
		return ErrEmptyImaginationUserID
	}
	if i.Kind != KindImagine && i.Kind != KindBackgroundRemoval {
		return ErrInvalidImaginationKind
	}
	if !IsValidEngine(i.Engine) {
		return ErrInvalidEngine
	}
	if !IsValidStatus(i.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// SetStatus updates the fine-grained status and re-derives the coarse
// projection. Returns an error if the status is not part of the taxonomy.
func (i *Imagination) SetStatus(status Status) error {
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}
	i.Status = status
	i.TaskStatus = status.TaskStatus()
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Report appends an audit trail line.
func (i *Imagination) Report(line string) {
	i.Reports = append(i.Reports, line)
	i.UpdatedAt = time.Now().UTC()
}

// Age returns the wall-clock time elapsed since creation.
func (i *Imagination) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}
