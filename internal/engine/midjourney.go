package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
)

// midjourneyRatios is the supported aspect-ratio set for the midjourney
// backend.
var midjourneyRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "2:3", "3:2"}

// midjourneyStatuses maps the task API vocabulary onto the fine-grained
// taxonomy. Anything not in the table is an error, never a silent hang.
var midjourneyStatuses = map[string]domain.Status{
	"initialized": domain.StatusInit,
	"queue":       domain.StatusQueue,
	"waiting":     domain.StatusWaiting,
	"running":     domain.StatusProcessing,
	"completed":   domain.StatusCompleted,
	"error":       domain.StatusError,
}

// midjourneyTask is the wire shape of the task API responses.
type midjourneyTask struct {
	UUID       string          `json:"uuid"`
	Status     string          `json:"status"`
	Percentage json.RawMessage `json:"percentage"`
	URI        string          `json:"uri"`
	Error      json.RawMessage `json:"error"`
	Command    string          `json:"command"`
}

// Midjourney drives the midjourney task API: submit returns a task uuid that
// is then short-polled, and the API additionally pushes webhook callbacks.
type Midjourney struct {
	cfg    config.MidjourneyConfig
	client *http.Client
}

// NewMidjourney creates the midjourney adapter with an injected HTTP client
// whose timeout bounds every call.
func NewMidjourney(cfg config.MidjourneyConfig, client *http.Client) *Midjourney {
	return &Midjourney{cfg: cfg, client: client}
}

var _ Adapter = (*Midjourney)(nil)

// Engine implements Adapter.
func (m *Midjourney) Engine() domain.Engine { return domain.EngineMidjourney }

// Validate implements Adapter.
func (m *Midjourney) Validate(aspectRatio string) (bool, string) {
	if !containsRatio(midjourneyRatios, aspectRatio) {
		return false, ratioMessage(midjourneyRatios)
	}
	return true, ""
}

// Submit implements Adapter. The aspect ratio rides along as a prompt suffix,
// which is how this backend expects it.
func (m *Midjourney) Submit(ctx context.Context, task *domain.Imagination, callbackURL string) (*Details, error) {
	payload := map[string]any{
		"prompt":   fmt.Sprintf("%s --ar %s", task.Prompt, task.AspectRatio),
		"command":  "imagine",
		"callback": callbackURL,
	}

	var resp midjourneyTask
	err := doJSON(ctx, m.client, http.MethodPost, m.cfg.BaseURL+"/task", m.headers(), payload, &resp)
	if err != nil {
		return nil, err
	}
	return m.normalize(&resp), nil
}

// FetchResult implements Adapter.
func (m *Midjourney) FetchResult(ctx context.Context, task *domain.Imagination) (*Details, error) {
	state, err := midjourneyState(task)
	if err != nil {
		return nil, err
	}

	var resp midjourneyTask
	url := fmt.Sprintf("%s/task/%s", m.cfg.BaseURL, state.TaskID)
	if err := doJSON(ctx, m.client, http.MethodGet, url, m.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return m.normalize(&resp), nil
}

func (m *Midjourney) headers() map[string]string {
	return map[string]string{"Authorization": m.cfg.Token}
}

func (m *Midjourney) normalize(resp *midjourneyTask) *Details {
	status, ok := midjourneyStatuses[resp.Status]
	if !ok {
		status = domain.StatusError
	}
	// The wire echoes the submitted prompt with the --ar suffix attached
	// and a separate command field; neither is the task's own prompt, so
	// Details carries no prompt and the stored one stays authoritative.
	return &Details{
		ID:        resp.UUID,
		Status:    status,
		Progress:  progressFromRaw(resp.Percentage),
		Error:     errorFromRaw(resp.Error),
		ResultURI: resp.URI,
		State: &State{
			Kind:       StateKindMidjourney,
			Midjourney: &MidjourneyState{TaskID: resp.UUID},
		},
	}
}
