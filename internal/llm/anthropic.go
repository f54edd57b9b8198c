package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 2048

// Anthropic is a cloud completion provider. The Messages API has no
// embedding surface, so ReasoningVector reports ErrUnsupported and the
// router falls through to the next provider for vectors.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a provider for the given model id.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(
			aoption.WithAPIKey(apiKey),
			aoption.WithMaxRetries(0),
		),
		model: model,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

// Complete calls the Messages API. JSON mode is requested through the
// system prompt; the router's JSON extraction enforces the payload.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}

	system := req.System
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single valid JSON document and nothing else."
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", fmt.Errorf("anthropic: complete: %w", &StatusError{Provider: "anthropic", Code: apierr.StatusCode})
		}
		return "", fmt.Errorf("anthropic: complete: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty completion")
	}
	return sb.String(), nil
}

// ReasoningVector is not available on the Messages API.
func (p *Anthropic) ReasoningVector(context.Context, string) ([]float32, error) {
	return nil, ErrUnsupported
}
