package engine

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pixforge/imagine-api/internal/domain"
)

// StateKind tags the variant stored in a task's poll state.
type StateKind string

// State variants, one per polling protocol.
const (
	StateKindMidjourney StateKind = "midjourney"
	StateKindImagen     StateKind = "imagen"
	StateKindPrediction StateKind = "prediction"
)

// MidjourneyState holds what the midjourney task API needs to poll.
type MidjourneyState struct {
	TaskID string `json:"task_id"`
}

// ImagenState holds what the imagen session API needs to poll.
type ImagenState struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
}

// PredictionState holds what the prediction API needs to poll.
type PredictionState struct {
	PredictionID string `json:"prediction_id"`
	Model        string `json:"model"`
}

// State is the tagged union of per-provider polling identifiers persisted on
// the task between submit and the poll ticks. Exactly one variant is set,
// matching Kind.
type State struct {
	Kind       StateKind        `json:"kind"`
	Midjourney *MidjourneyState `json:"midjourney,omitempty"`
	Imagen     *ImagenState     `json:"imagen,omitempty"`
	Prediction *PredictionState `json:"prediction,omitempty"`
}

// EncodeState serializes a state for storage on the task.
func EncodeState(s *State) (json.RawMessage, error) {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode poll state: %w", err)
	}
	return raw, nil
}

// DecodeState deserializes a task's stored poll state. An empty raw state is
// a domain.ErrMissingAdapterState error: the task was never submitted.
func DecodeState(raw json.RawMessage) (*State, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: task has no poll state", domain.ErrMissingAdapterState)
	}
	var s State
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: undecodable poll state: %v", domain.ErrMissingAdapterState, err)
	}
	return &s, nil
}

// midjourneyState extracts the midjourney variant from a task.
func midjourneyState(task *domain.Imagination) (*MidjourneyState, error) {
	s, err := DecodeState(task.PollState)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateKindMidjourney || s.Midjourney == nil || s.Midjourney.TaskID == "" {
		return nil, fmt.Errorf("%w: missing midjourney task id", domain.ErrMissingAdapterState)
	}
	return s.Midjourney, nil
}

// imagenState extracts the imagen variant from a task.
func imagenState(task *domain.Imagination) (*ImagenState, error) {
	s, err := DecodeState(task.PollState)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateKindImagen || s.Imagen == nil ||
		s.Imagen.TaskID == "" || s.Imagen.SessionID == "" {
		return nil, fmt.Errorf("%w: missing imagen task or session id", domain.ErrMissingAdapterState)
	}
	return s.Imagen, nil
}

// predictionState extracts the prediction variant from a task.
func predictionState(task *domain.Imagination) (*PredictionState, error) {
	s, err := DecodeState(task.PollState)
	if err != nil {
		return nil, err
	}
	if s.Kind != StateKindPrediction || s.Prediction == nil || s.Prediction.PredictionID == "" {
		return nil, fmt.Errorf("%w: missing prediction id", domain.ErrMissingAdapterState)
	}
	return s.Prediction, nil
}
