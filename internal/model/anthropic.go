package model

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// AnthropicOptions configure the Anthropic provider.
type AnthropicOptions struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
}

// Anthropic wraps the Anthropic Messages API behind the Provider interface.
type Anthropic struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

// NewAnthropic creates an Anthropic provider using the default client (API
// key from the environment).
func NewAnthropic(optFns ...func(o *AnthropicOptions)) *Anthropic {
	client := anthropic.NewClient()
	return NewAnthropicFromClient(&client, optFns...)
}

// NewAnthropicFromClient creates an Anthropic provider from an existing client.
func NewAnthropicFromClient(client *anthropic.Client, optFns ...func(o *AnthropicOptions)) *Anthropic {
	opts := AnthropicOptions{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Anthropic{client: client, opts: opts}
}

// Name returns the provider identifier.
func (p *Anthropic) Name() string { return "anthropic" }

// Complete issues a non-streaming message request and returns the
// concatenated text blocks.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAdapter, "anthropic api error: %s", err.Error()).WithCause(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", schema.NewError(schema.ErrCodeAdapter, "anthropic returned no text content")
	}
	return sb.String(), nil
}

var _ Provider = (*Anthropic)(nil)
