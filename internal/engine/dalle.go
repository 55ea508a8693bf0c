package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
)

// dalleSizes maps aspect ratios onto the fixed sizes the images API accepts.
// The keys double as the supported-ratio set.
var dalleSizes = map[string]string{
	"1:1": "1024x1024",
	"7:4": "1792x1024",
	"4:7": "1024x1792",
}

// dalleImagesResponse is the wire shape of the OpenAI-compatible images
// endpoint. The call is synchronous: the response already carries the result.
type dalleImagesResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Dalle drives an OpenAI-compatible images endpoint. Unlike the other
// backends it resolves in the submit call itself, so there is no poll state
// and nothing to fetch afterwards.
type Dalle struct {
	cfg    config.DalleConfig
	client *http.Client
}

// NewDalle creates the dalle adapter with an injected HTTP client whose
// timeout bounds every call.
func NewDalle(cfg config.DalleConfig, client *http.Client) *Dalle {
	return &Dalle{cfg: cfg, client: client}
}

var _ Adapter = (*Dalle)(nil)

// Engine implements Adapter.
func (d *Dalle) Engine() domain.Engine { return domain.EngineDalle }

// Validate implements Adapter.
func (d *Dalle) Validate(aspectRatio string) (bool, string) {
	if _, ok := dalleSizes[aspectRatio]; !ok {
		return false, ratioMessage([]string{"1:1", "7:4", "4:7"})
	}
	return true, ""
}

// Submit implements Adapter. The callback URL is unused: the generation
// completes within this call and the returned details are already terminal.
func (d *Dalle) Submit(ctx context.Context, task *domain.Imagination, _ string) (*Details, error) {
	payload := map[string]any{
		"prompt": task.Prompt,
		"n":      1,
		"model":  d.cfg.Model,
		"size":   dalleSizes[task.AspectRatio],
	}

	var resp dalleImagesResponse
	url := d.cfg.BaseURL + "/images/generations"
	if err := doJSON(ctx, d.client, http.MethodPost, url, d.headers(), payload, &resp); err != nil {
		return nil, err
	}
	return d.normalize(task, &resp), nil
}

// FetchResult implements Adapter. The backend stores no job to poll, so a
// task can only land here when its submit result was lost.
func (d *Dalle) FetchResult(_ context.Context, _ *domain.Imagination) (*Details, error) {
	return nil, fmt.Errorf("%w: dalle resolves at submit and keeps no pollable job", domain.ErrMissingAdapterState)
}

func (d *Dalle) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + d.cfg.APIKey}
}

func (d *Dalle) normalize(task *domain.Imagination, resp *dalleImagesResponse) *Details {
	details := &Details{
		Prompt:   task.Prompt,
		Progress: 100,
	}
	if resp.Error != nil {
		details.Error = resp.Error.Message
	}
	if len(resp.Data) == 0 {
		details.Status = domain.StatusError
		if details.Error == "" {
			details.Error = "provider returned no image"
		}
		return details
	}
	details.Status = domain.StatusCompleted
	details.ResultURI = resp.Data[0].URL
	return details
}
