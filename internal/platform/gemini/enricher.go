// Package gemini adapts Google's Gemini API into the prompt enrichment
// operations the imagination lifecycle uses before submitting work to a
// provider: translating prompts to English and optionally enhancing them.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pixforge/imagine-api/internal/config"
	"google.golang.org/genai"
)

// Enricher rewrites user prompts before provider submission.
type Enricher interface {
	// Translate returns the prompt rendered in English. Prompts already in
	// English come back unchanged.
	Translate(ctx context.Context, prompt string) (string, error)

	// Enhance expands the prompt with additional visual detail while
	// preserving its subject.
	Enhance(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyPrompt is returned when an enrichment operation is called with no
// prompt text.
var ErrEmptyPrompt = errors.New("prompt text cannot be empty")

const (
	translateInstruction = "Translate the following image generation prompt to English. " +
		"If it is already in English, return it unchanged. " +
		"Return only the translated prompt with no commentary.\n\nPrompt: "

	enhanceInstruction = "Rewrite the following image generation prompt with richer visual " +
		"detail, keeping the original subject and intent. " +
		"Return only the rewritten prompt with no commentary.\n\nPrompt: "
)

// GenAIEnricher implements Enricher with the Gemini API.
type GenAIEnricher struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGenAIEnricher creates an Enricher backed by the Gemini API.
func NewGenAIEnricher(ctx context.Context, logger *slog.Logger, cfg config.EnrichmentConfig) (*GenAIEnricher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GenAIEnricher{
		logger: logger.With("component", "prompt_enricher"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

var _ Enricher = (*GenAIEnricher)(nil)

// Translate implements Enricher.
func (e *GenAIEnricher) Translate(ctx context.Context, prompt string) (string, error) {
	return e.rewrite(ctx, translateInstruction, prompt)
}

// Enhance implements Enricher.
func (e *GenAIEnricher) Enhance(ctx context.Context, prompt string) (string, error) {
	return e.rewrite(ctx, enhanceInstruction, prompt)
}

func (e *GenAIEnricher) rewrite(ctx context.Context, instruction, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(instruction+prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		e.logger.WarnContext(ctx, "Gemini returned empty rewrite, keeping original prompt",
			"prompt_length", len(prompt))
		return prompt, nil
	}

	e.logger.DebugContext(ctx, "Prompt rewritten",
		"original_length", len(prompt),
		"rewritten_length", len(text))
	return text, nil
}

// NoopEnricher passes prompts through untouched. It is used when no Gemini
// API key is configured.
type NoopEnricher struct{}

var _ Enricher = (*NoopEnricher)(nil)

// Translate implements Enricher.
func (NoopEnricher) Translate(_ context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

// Enhance implements Enricher.
func (NoopEnricher) Enhance(_ context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}
