// Package domain defines the core imagination entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a creation request fails adapter or
	// entity validation. The task is never submitted to a provider.
	ErrValidation = errors.New("validation failed")

	// ErrProviderRequest is returned when a network call to a generation
	// backend fails. It triggers the bounded retry policy.
	ErrProviderRequest = errors.New("provider request failed")

	// ErrMissingAdapterState is returned when a poll requires an identifier
	// (job id, session id) that is absent from the task's stored adapter
	// state. The task cannot recover without re-submitting.
	ErrMissingAdapterState = errors.New("missing adapter state")

	// ErrServiceTimeout is returned when a task has not reached a terminal
	// status within the configured wall-clock window.
	ErrServiceTimeout = errors.New("service timeout")

	// ErrProcessing is returned when downloading or uploading a generated
	// asset fails after the provider reported success.
	ErrProcessing = errors.New("asset processing failed")

	// ErrUnknownEngine is returned when a task references an engine with no
	// registered adapter.
	ErrUnknownEngine = errors.New("unknown engine")
)
