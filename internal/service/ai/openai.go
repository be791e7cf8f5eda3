package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, xAI ...) and always returns the full text at once.
type OpenAIBackend struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIOptions configure the client.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOpenAIBackend builds a backend from options.
func NewOpenAIBackend(opts OpenAIOptions) (*OpenAIBackend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openai model is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIBackend{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: opts.Model,
	}, nil
}

// GenerateTurn sends the history as one chat completion request.
func (b *OpenAIBackend) GenerateTurn(ctx context.Context, history []*schema.Message, opts GenerateOptions) (*Reply, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = b.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toOpenAIMessages(history),
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	log.Printf("[ai] openai turn model=%s length=%d tokens=%d", modelName, len(text), resp.Usage.TotalTokens)

	return &Reply{
		Text: text,
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenAIMessages(history []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
