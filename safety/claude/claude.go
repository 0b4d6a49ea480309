// Package claude implements safety.Provider on top of the Anthropic API.
// Claude classifies the text and reports a strict-JSON verdict that maps
// directly onto safety.RawVerdict.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/safety"
)

const systemPrompt = `You are a content safety classifier for a founder networking platform.
Analyze the user-provided text and respond with ONLY a JSON object, no prose:
{
  "contains_pii": bool,
  "pii_types": ["phone", "email", "ssn", "bank_account", ...],
  "is_scam": bool,
  "scam_confidence": 0.0-1.0,
  "content_flags": ["harassment", ...],
  "moderation_flagged": bool
}
Only evaluate the checks listed in the request. For checks not listed,
report the neutral value (false, empty list, 0.0).`

// Provider classifies content via Claude.
type Provider struct {
	client *anthropic.Client
	model  string
}

// New creates a Claude-backed scan provider. An empty model selects a
// fast default suitable for classification.
func New(client *anthropic.Client, model string) *Provider {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Provider{client: client, model: model}
}

// Scan asks Claude for a verdict over the text.
func (p *Provider) Scan(ctx context.Context, text string, checks []safety.Check) (*safety.RawVerdict, error) {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = string(c)
	}

	userMessage := fmt.Sprintf("Checks to run: %s\n\nText to classify:\n%s",
		strings.Join(names, ", "), text)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: claude scan: %v", core.ErrProviderUnavailable, err)
	}

	var raw string
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: claude scan: %v", core.ErrProviderUnavailable, err)
	}
	return verdict, nil
}

// parseVerdict extracts the JSON object from the model output. The model
// occasionally wraps JSON in a code fence despite instructions.
func parseVerdict(raw string) (*safety.RawVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in classifier output")
	}

	var verdict safety.RawVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("unmarshal classifier verdict: %w", err)
	}
	return &verdict, nil
}
