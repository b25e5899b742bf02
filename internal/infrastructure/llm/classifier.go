package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ReviewRanker/internal/config"
	"ReviewRanker/internal/ports"
)

const defaultPrompt = `You rate customer reviews of a local service business.
Reply with a JSON object {"qualityMultiplier": number between 0.5 and 1.5, "keywords": [up to 5 short strings]}.
1.0 is neutral; raise it for specific, detailed praise and lower it for vague or suspicious text.`

// Classifier implements ports.Classifier backed by an OpenAI-compatible chat API.
type Classifier struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a client from configuration.
func NewClassifier(cfg config.ClassifierConfig) (*Classifier, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("llm classifier misconfigured: api key and model are required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	return &Classifier{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
	}, nil
}

// Analyze asks the model for a quality multiplier and keywords in JSON mode.
func (c *Classifier) Analyze(ctx context.Context, text string) (ports.Analysis, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return ports.Analysis{}, fmt.Errorf("classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Analysis{}, fmt.Errorf("classify: empty response")
	}

	var analysis ports.Analysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return ports.Analysis{}, fmt.Errorf("decode classification: %w", err)
	}
	return analysis, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultPrompt
	}
	return prompt
}
