package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
)

// imagenRatios is the supported aspect-ratio set for the imagen backend.
var imagenRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// imagenStatuses maps the session API vocabulary onto the fine-grained
// taxonomy. Anything not in the table is an error.
var imagenStatuses = map[string]domain.Status{
	"RUNNING":  domain.StatusProcessing,
	"FINISHED": domain.StatusCompleted,
	"FAILED":   domain.StatusError,
}

// Wire shapes of the session API.
type imagenSession struct {
	ID string `json:"id"`
}

type imagenTask struct {
	TaskID  string          `json:"taskId"`
	Status  string          `json:"status"`
	Error   json.RawMessage `json:"error"`
	Message *struct {
		Attachments []struct {
			Content string `json:"content"`
		} `json:"attachments"`
	} `json:"message"`
}

// Imagen drives a session-based backend: submit opens a session and starts a
// generation task inside it; polling needs both identifiers.
type Imagen struct {
	cfg    config.ImagenConfig
	client *http.Client
}

// NewImagen creates the imagen adapter.
func NewImagen(cfg config.ImagenConfig, client *http.Client) *Imagen {
	return &Imagen{cfg: cfg, client: client}
}

var _ Adapter = (*Imagen)(nil)

// Engine implements Adapter.
func (g *Imagen) Engine() domain.Engine { return domain.EngineImagen }

// Validate implements Adapter.
func (g *Imagen) Validate(aspectRatio string) (bool, string) {
	if !containsRatio(imagenRatios, aspectRatio) {
		return false, ratioMessage(imagenRatios)
	}
	return true, ""
}

// Submit implements Adapter.
func (g *Imagen) Submit(ctx context.Context, task *domain.Imagination, callbackURL string) (*Details, error) {
	var session imagenSession
	err := doJSON(ctx, g.client, http.MethodPost, g.cfg.BaseURL+"/session", g.headers(), map[string]any{}, &session)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"prompt":       task.Prompt,
		"aspect_ratio": task.AspectRatio,
	}
	var created imagenTask
	taskURL := fmt.Sprintf("%s/session/%s/task", g.cfg.BaseURL, session.ID)
	if err := doJSON(ctx, g.client, http.MethodPost, taskURL, g.headers(), payload, &created); err != nil {
		return nil, err
	}
	return g.normalize(&created, session.ID, task.Prompt), nil
}

// FetchResult implements Adapter.
func (g *Imagen) FetchResult(ctx context.Context, task *domain.Imagination) (*Details, error) {
	state, err := imagenState(task)
	if err != nil {
		return nil, err
	}

	var resp imagenTask
	url := fmt.Sprintf("%s/session/%s/task/%s", g.cfg.BaseURL, state.SessionID, state.TaskID)
	if err := doJSON(ctx, g.client, http.MethodGet, url, g.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return g.normalize(&resp, state.SessionID, task.Prompt), nil
}

func (g *Imagen) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.cfg.APIKey}
}

func (g *Imagen) normalize(resp *imagenTask, sessionID, prompt string) *Details {
	status, ok := imagenStatuses[resp.Status]
	if !ok {
		status = domain.StatusError
	}

	var uri string
	if resp.Message != nil && len(resp.Message.Attachments) > 0 {
		uri = resp.Message.Attachments[0].Content
	}

	return &Details{
		ID:        resp.TaskID,
		Prompt:    prompt,
		Status:    status,
		Progress:  domain.ProgressUnknown,
		Error:     errorFromRaw(resp.Error),
		ResultURI: uri,
		State: &State{
			Kind:   StateKindImagen,
			Imagen: &ImagenState{TaskID: resp.TaskID, SessionID: sessionID},
		},
	}
}
