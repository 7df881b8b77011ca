package translator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend serves models behind any OpenAI-compatible endpoint
// (OpenAI, OpenRouter, vLLM, llama.cpp server). Loading only verifies that
// the endpoint knows the model.
type OpenAIBackend struct {
	client *openai.Client
}

func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeoutOr(cfg.Timeout, 120*time.Second)}
	return &OpenAIBackend{client: openai.NewClientWithConfig(config)}
}

func (b *OpenAIBackend) Name() string {
	return "openai"
}

func (b *OpenAIBackend) Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error) {
	report(progress, modelID, 0)
	if _, err := b.client.GetModel(ctx, modelID); err != nil {
		return nil, fmt.Errorf("model lookup failed: %w", err)
	}
	report(progress, modelID, 100)
	return &openAIModel{client: b.client, model: modelID}, nil
}

type openAIModel struct {
	client *openai.Client
	model  string
}

func (m *openAIModel) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return withMarkup(text, func(protected, hint string) (string, error) {
		system := fmt.Sprintf("You translate live captions from English to %s. Reply with the translation only.", targetLang)
		if hint != "" {
			system += " " + hint
		}
		resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: m.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: protected},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// report emits a single-file progress update for backends without real files.
func report(progress ProgressFunc, file string, pct float64) {
	if progress != nil {
		progress(LoadProgress{File: file, Percent: pct})
	}
}
