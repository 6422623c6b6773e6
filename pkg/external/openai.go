package external

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/womens-health-report-analyzer/internal/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator calls any OpenAI compatible chat completion endpoint
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIGenerator creates a chat completion client. BaseURL overrides the
// default OpenAI endpoint.
func NewOpenAIGenerator(cfg domain.ComparisonConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: temperature,
	}
}

// Name identifies the provider in logs
func (g *OpenAIGenerator) Name() string { return "openai" }

// GenerateJSON sends the prompt in JSON object mode and returns the reply
func (g *OpenAIGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You compare lab reports and answer with JSON only."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
