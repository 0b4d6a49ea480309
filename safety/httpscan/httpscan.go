// Package httpscan implements safety.Provider against a generic JSON scan
// API reachable over HTTP with an API key.
package httpscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/safety"
)

// Provider calls a scan endpoint: POST {base}/v1/scan.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates an HTTP scan provider.
func New(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type scanRequest struct {
	Text   string   `json:"text"`
	Checks []string `json:"checks"`
}

// Scan submits text to the scan API and parses the verdict JSON.
//
// 4xx responses become a SafetyServiceError (caller bug); 5xx and transport
// failures become ErrProviderUnavailable so the Scanner's degradation
// policy applies.
func (p *Provider) Scan(ctx context.Context, text string, checks []safety.Check) (*safety.RawVerdict, error) {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = string(c)
	}

	body, err := json.Marshal(scanRequest{Text: text, Checks: names})
	if err != nil {
		return nil, fmt.Errorf("marshaling scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/scan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling scan API: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &core.SafetyServiceError{StatusCode: resp.StatusCode, Message: string(msg)}
	default:
		return nil, fmt.Errorf("%w: scan API returned status %d", core.ErrProviderUnavailable, resp.StatusCode)
	}

	var verdict safety.RawVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("%w: decoding scan response: %v", core.ErrProviderUnavailable, err)
	}
	return &verdict, nil
}
