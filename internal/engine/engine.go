// Package engine defines the polymorphic adapter contract that lets a single
// imagination task be driven by any of the structurally different generation
// backends, and the per-provider adapter implementations.
package engine

import (
	"context"
	"fmt"

	"github.com/pixforge/imagine-api/internal/domain"
)

// Details is the normalized adapter response. It is produced by every adapter
// call, consumed immediately to update a task, and then discarded.
type Details struct {
	// ID is the provider-side job identifier, when the provider has one.
	ID string

	// Prompt is the prompt as the provider received it.
	Prompt string

	// Status is the provider status mapped onto the fine-grained taxonomy.
	Status domain.Status

	// Progress is the clamped percentage, domain.ProgressUnknown when the
	// provider does not report one.
	Progress int

	// Error carries the provider-reported error message, if any.
	Error string

	// ResultURI is the produced asset, present once the provider completes.
	ResultURI string

	// State holds the identifiers a later FetchResult needs. A nil State
	// leaves the task's stored state untouched.
	State *State
}

// Adapter is implemented once per provider. Submit and FetchResult perform
// network calls with bounded timeouts delegated to the transport; Validate is
// pure and must run at task-creation time before any network call.
type Adapter interface {
	// Engine returns the engine identifier this adapter serves.
	Engine() domain.Engine

	// Validate checks provider-specific constraints on a creation request.
	// It returns false and a human-readable rejection reason on failure.
	Validate(aspectRatio string) (bool, string)

	// Submit issues the generation request and returns normalized details.
	// Transport failures are reported as domain.ErrProviderRequest.
	Submit(ctx context.Context, task *domain.Imagination, callbackURL string) (*Details, error)

	// FetchResult queries the current status/result using the identifiers
	// persisted in the task's poll state. A missing required identifier is
	// a domain.ErrMissingAdapterState error.
	FetchResult(ctx context.Context, task *domain.Imagination) (*Details, error)
}

// Registry resolves engine identifiers to their adapters. It is assembled
// once at startup by the composition root.
type Registry struct {
	adapters map[domain.Engine]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.Engine]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Engine()] = a
	}
	return &Registry{adapters: m}
}

// Resolve returns the adapter for the given engine, or
// domain.ErrUnknownEngine if none is registered.
func (r *Registry) Resolve(e domain.Engine) (Adapter, error) {
	a, ok := r.adapters[e]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEngine, e)
	}
	return a, nil
}

// Engines lists the registered engine identifiers.
func (r *Registry) Engines() []domain.Engine {
	out := make([]domain.Engine, 0, len(r.adapters))
	for e := range r.adapters {
		out = append(out, e)
	}
	return out
}

// ratioMessage formats the standard rejection reason for an unsupported
// aspect ratio.
func ratioMessage(supported []string) string {
	return fmt.Sprintf("aspect_ratio must be one of them %v", supported)
}

// containsRatio reports whether ratio is in the supported set.
func containsRatio(supported []string, ratio string) bool {
	for _, s := range supported {
		if s == ratio {
			return true
		}
	}
	return false
}
