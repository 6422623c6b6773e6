package external

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/womens-health-report-analyzer/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator calls the Gemini API in JSON response mode
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a Gemini API client for the configured model
func NewGeminiGenerator(ctx context.Context, cfg domain.ComparisonConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("comparison.api_key is required for gemini")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	return &GeminiGenerator{client: client, model: model, temperature: temperature}, nil
}

// Name identifies the provider in logs
func (g *GeminiGenerator) Name() string { return "gemini" }

// GenerateJSON sends the prompt and returns the raw JSON text
func (g *GeminiGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return result.Text(), nil
}
