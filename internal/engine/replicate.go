package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
)

// replicateModels maps engine identifiers to prediction-API model names.
var replicateModels = map[domain.Engine]string{
	domain.EngineIdeogram:     "ideogram-ai/ideogram-v2-turbo",
	domain.EngineFluxSchnell:  "black-forest-labs/flux-schnell",
	domain.EngineFlux11:       "black-forest-labs/flux-1.1-pro",
	domain.EngineStability:    "stability-ai/stable-diffusion-3",
	domain.EngineCjwbw:        "cjwbw/rembg",
	domain.EngineLucataco:     "lucataco/remove-bg",
	domain.EnginePollinations: "pollinations/modnet",
}

// replicateRatios enumerates the aspect-ratio set each generation model
// accepts. The background-removal models take a source image instead of a
// ratio and have no entry here.
var replicateRatios = map[string][]string{
	"ideogram-ai/ideogram-v2-turbo": {
		"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "16:10", "10:16", "3:1", "1:3",
	},
	"black-forest-labs/flux-schnell": {
		"1:1", "16:9", "21:9", "3:2", "2:3", "4:5", "5:4", "3:4", "4:3", "9:16", "9:21",
	},
	"black-forest-labs/flux-1.1-pro": {
		"1:1", "16:9", "2:3", "3:2", "4:5", "5:4", "9:16", "3:4", "4:3",
	},
	"stability-ai/stable-diffusion-3": {
		"1:1", "16:9", "21:9", "3:2", "2:3", "4:5", "5:4", "9:16", "9:21",
	},
}

// replicateStatuses maps the prediction vocabulary onto the fine-grained
// taxonomy. Anything not in the table is an error.
var replicateStatuses = map[string]domain.Status{
	"starting":   domain.StatusInit,
	"processing": domain.StatusProcessing,
	"succeeded":  domain.StatusCompleted,
	"failed":     domain.StatusError,
	"canceled":   domain.StatusCancelled,
}

// replicatePrediction is the wire shape of the prediction API.
type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Input  map[string]any  `json:"input"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Replicate drives one model behind the generic prediction API. The same
// implementation serves the text-to-image engines and the background-removal
// engines; only the model name and input shape differ.
type Replicate struct {
	engine domain.Engine
	model  string
	cfg    config.ReplicateConfig
	client *http.Client
}

// NewReplicate creates the prediction-API adapter for the given engine.
// It panics if the engine has no model mapping, which is a wiring bug.
func NewReplicate(e domain.Engine, cfg config.ReplicateConfig, client *http.Client) *Replicate {
	model, ok := replicateModels[e]
	if !ok {
		panic(fmt.Sprintf("no prediction model registered for engine %s", e))
	}
	return &Replicate{engine: e, model: model, cfg: cfg, client: client}
}

var _ Adapter = (*Replicate)(nil)

// Engine implements Adapter.
func (r *Replicate) Engine() domain.Engine { return r.engine }

// Validate implements Adapter. Background-removal models accept any ratio
// since they operate on a source image.
func (r *Replicate) Validate(aspectRatio string) (bool, string) {
	ratios, ok := replicateRatios[r.model]
	if !ok {
		return true, ""
	}
	if !containsRatio(ratios, aspectRatio) {
		return false, ratioMessage(ratios)
	}
	return true, ""
}

// Submit implements Adapter. The webhook fires on completion only; progress
// in between comes from the poll loop.
func (r *Replicate) Submit(ctx context.Context, task *domain.Imagination, callbackURL string) (*Details, error) {
	input := map[string]any{}
	if task.Kind == domain.KindBackgroundRemoval {
		input["image"] = task.ImageURL
	} else {
		input["prompt"] = task.Prompt
		input["aspect_ratio"] = task.AspectRatio
	}

	payload := map[string]any{
		"input":                 input,
		"webhook":               callbackURL,
		"webhook_events_filter": []string{"completed"},
	}

	var resp replicatePrediction
	url := fmt.Sprintf("%s/models/%s/predictions", r.cfg.BaseURL, r.model)
	if err := doJSON(ctx, r.client, http.MethodPost, url, r.headers(), payload, &resp); err != nil {
		return nil, err
	}
	return r.normalize(&resp, task), nil
}

// FetchResult implements Adapter.
func (r *Replicate) FetchResult(ctx context.Context, task *domain.Imagination) (*Details, error) {
	state, err := predictionState(task)
	if err != nil {
		return nil, err
	}

	var resp replicatePrediction
	url := fmt.Sprintf("%s/predictions/%s", r.cfg.BaseURL, state.PredictionID)
	if err := doJSON(ctx, r.client, http.MethodGet, url, r.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return r.normalize(&resp, task), nil
}

func (r *Replicate) headers() map[string]string {
	return map[string]string{"Authorization": "Token " + r.cfg.Token}
}

func (r *Replicate) normalize(resp *replicatePrediction, task *domain.Imagination) *Details {
	status, ok := replicateStatuses[resp.Status]
	if !ok {
		status = domain.StatusError
	}

	// Output is a list of URIs for generation models and a single URI for
	// the background-removal ones; the first asset wins either way.
	var uri string
	if len(resp.Output) > 0 {
		var many []string
		if err := jsonUnmarshal(resp.Output, &many); err == nil && len(many) > 0 {
			uri = many[0]
		} else {
			var one string
			if err := jsonUnmarshal(resp.Output, &one); err == nil {
				uri = one
			}
		}
	}

	// The prediction API does not report granular progress.
	return &Details{
		ID:        resp.ID,
		Prompt:    task.Prompt,
		Status:    status,
		Progress:  100,
		Error:     errorFromRaw(resp.Error),
		ResultURI: uri,
		State: &State{
			Kind:       StateKindPrediction,
			Prediction: &PredictionState{PredictionID: resp.ID, Model: r.model},
		},
	}
}
