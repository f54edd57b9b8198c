package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oshared "github.com/openai/openai-go/shared"
)

// OpenAICompatible is the cloud provider for any OpenAI-compatible API.
// With the Groq base URL it is the fast primary of the default chain; with
// no base URL it talks to OpenAI proper and also serves reasoning vectors
// through the embeddings API.
type OpenAICompatible struct {
	name       string
	client     openai.Client
	model      string
	embedModel string
}

// NewOpenAICompatible creates a provider. baseURL may be empty (OpenAI) or
// a compatible gateway such as "https://api.groq.com/openai/v1".
// embedModel may be empty for gateways without an embeddings surface
// (Groq); ReasoningVector then reports ErrUnsupported.
func NewOpenAICompatible(name, apiKey, baseURL, model, embedModel string) *OpenAICompatible {
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(apiKey),
		// The router owns retry policy; disable the SDK's.
		ooption.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	return &OpenAICompatible{
		name:       name,
		client:     openai.NewClient(opts...),
		model:      model,
		embedModel: embedModel,
	}
}

func (p *OpenAICompatible) Name() string { return p.name }

// Complete calls the chat completions API.
func (p *OpenAICompatible) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oshared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.wrapErr("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in completion", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// ReasoningVector embeds the prompt via the embeddings API.
func (p *OpenAICompatible) ReasoningVector(ctx context.Context, prompt string) ([]float32, error) {
	if p.embedModel == "" {
		return nil, ErrUnsupported
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(prompt)},
	})
	if err != nil {
		return nil, p.wrapErr("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%s: empty embedding returned", p.name)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (p *OpenAICompatible) wrapErr(op string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return fmt.Errorf("%s: %s: %w", p.name, op, &StatusError{Provider: p.name, Code: apierr.StatusCode})
	}
	return fmt.Errorf("%s: %s: %w", p.name, op, err)
}
