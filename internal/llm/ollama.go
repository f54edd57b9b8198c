package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Ollama is the local self-hosted provider. Completions go through
// /api/generate and reasoning vectors through /api/embeddings; nothing
// leaves the machine, which makes it the preferred secondary in the chain.
type Ollama struct {
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

// NewOllama creates a provider against a local Ollama server. model is the
// completion model, embedModel the embedding model (e.g.
// "nomic-embed-text").
func NewOllama(baseURL, model, embedModel string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
		// No client timeout: the router owns the per-call deadline.
		httpClient: &http.Client{},
	}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Complete calls Ollama's generate API.
func (o *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	body := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	if req.JSONMode {
		body.Format = "json"
	}

	var result ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", body, &result); err != nil {
		return "", err
	}
	if result.Response == "" {
		return "", fmt.Errorf("ollama: empty completion")
	}
	return result.Response, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ReasoningVector calls Ollama's embedding API.
func (o *Ollama) ReasoningVector(ctx context.Context, prompt string) ([]float32, error) {
	var result ollamaEmbedResponse
	if err := o.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: o.embedModel, Prompt: prompt}, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding returned")
	}
	return result.Embedding, nil
}

func (o *Ollama) post(ctx context.Context, path string, payload, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ollama: %s: %w", string(body), &StatusError{Provider: "ollama", Code: resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}
