package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// GeminiBackend uses the Gemini API in single-shot mode.
type GeminiBackend struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiBackend creates a Gemini API client.
func NewGeminiBackend(ctx context.Context, apiKey, modelName string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, errors.New("gemini model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiBackend{client: client, defaultModel: modelName}, nil
}

// GenerateTurn sends the conversation and returns the full response text.
func (b *GeminiBackend) GenerateTurn(ctx context.Context, history []*schema.Message, opts GenerateOptions) (*Reply, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = b.defaultModel
	}

	system, contents := toGeminiContents(history)
	if len(contents) == 0 {
		return nil, errors.New("gemini request has no conversation content")
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature != nil {
		temperature := *opts.Temperature
		cfg.Temperature = &temperature
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := b.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	reply := &Reply{Text: text}
	if usage := resp.UsageMetadata; usage != nil {
		reply.Usage = &schema.TokenUsage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}

	log.Printf("[ai] gemini turn model=%s length=%d", modelName, len(text))
	return reply, nil
}

// toGeminiContents splits system messages into one instruction and maps the
// remaining history onto user/model roles.
func toGeminiContents(history []*schema.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
