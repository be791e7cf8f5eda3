package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelBackend adapts an eino chat model. When streaming is enabled it
// hands back the model's delta stream, otherwise one generated message.
type ChatModelBackend struct {
	chatModel model.BaseChatModel
	streaming bool
}

// NewChatModelBackend wraps chatModel.
func NewChatModelBackend(chatModel model.BaseChatModel, streaming bool) *ChatModelBackend {
	return &ChatModelBackend{chatModel: chatModel, streaming: streaming}
}

// StreamingEnabled 指示是否开启流式输出。
func (b *ChatModelBackend) StreamingEnabled() bool {
	return b.streaming
}

// GenerateTurn runs the model against the history.
func (b *ChatModelBackend) GenerateTurn(ctx context.Context, history []*schema.Message, opts GenerateOptions) (*Reply, error) {
	if b.chatModel == nil {
		return nil, fmt.Errorf("chat model not configured")
	}

	modelOpts := buildModelOptions(opts)

	if b.streaming {
		stream, err := b.chatModel.Stream(ctx, history, modelOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to stream chat model output: %w", err)
		}
		return &Reply{Stream: stream}, nil
	}

	response, err := b.chatModel.Generate(ctx, history, modelOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to run chat model: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("chat model returned no message")
	}

	log.Printf("[ai] generated turn model=%s length=%d", opts.Model, len(response.Content))
	return &Reply{Text: response.Content, Usage: UsageOf(response)}, nil
}

// UsageOf extracts token usage from a message, if the provider reported it.
func UsageOf(msg *schema.Message) *schema.TokenUsage {
	if msg == nil || msg.ResponseMeta == nil {
		return nil
	}
	return msg.ResponseMeta.Usage
}

func buildModelOptions(opts GenerateOptions) []model.Option {
	var out []model.Option
	if opts.Model != "" {
		out = append(out, model.WithModel(opts.Model))
	}
	if opts.Temperature != nil {
		out = append(out, model.WithTemperature(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		out = append(out, model.WithMaxTokens(opts.MaxTokens))
	}
	return out
}
