// Package openai implements embedding.Embedder against the OpenAI
// embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foundercircle/semindex/core"
)

const defaultModel = "text-embedding-3-small"

// Provider calls the OpenAI embeddings endpoint.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// New creates an OpenAI embedding provider. Empty baseURL and model select
// the API default and text-embedding-3-small (1536 dimensions).
func New(baseURL, apiKey, model string) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: 1536,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling embeddings API: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: embeddings API returned status %d", core.ErrProviderUnavailable, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: embeddings API returned status %d: %s", core.ErrValidation, resp.StatusCode, msg)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding embeddings response: %v", core.ErrProviderUnavailable, err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("%w: embeddings response contained no data", core.ErrProviderUnavailable)
	}
	return embedResp.Data[0].Embedding, nil
}

// Dimensions returns the model's embedding size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}
