// Package mock provides a rule-based offline safety provider for tests and
// local development. It approximates provider behavior with regex PII
// detection and keyword-based scam scoring.
package mock

import (
	"context"
	"regexp"
	"strings"

	"github.com/foundercircle/semindex/safety"
)

// Provider is a deterministic, offline safety.Provider.
type Provider struct{}

// New creates a mock provider.
func New() *Provider {
	return &Provider{}
}

var piiPatterns = map[string]*regexp.Regexp{
	"phone":        regexp.MustCompile(`\b(\+?\d{1,2}[\s.-]?)?(\(?\d{3}\)?[\s.-]?)?\d{3}[\s.-]?\d{4}\b`),
	"email":        regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"ssn":          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"bank_account": regexp.MustCompile(`\b(account|acct)\s*#?\s*\d{6,}\b`),
}

// scamSignals each add weight to the scam confidence score.
var scamSignals = map[string]float64{
	"wire":            0.3,
	"quick deal":      0.3,
	"guaranteed":      0.25,
	"act now":         0.25,
	"send money":      0.3,
	"western union":   0.4,
	"crypto wallet":   0.25,
	"limited time":    0.2,
	"risk free":       0.25,
	"double your":     0.35,
}

// moneyPattern adds weight when a concrete dollar amount accompanies
// other scam signals.
var moneyPattern = regexp.MustCompile(`\$\d+`)

var moderationSignals = []string{"kill", "hate speech", "explicit"}

// Scan runs the rule-based screens requested in checks.
func (p *Provider) Scan(ctx context.Context, text string, checks []safety.Check) (*safety.RawVerdict, error) {
	verdict := &safety.RawVerdict{}
	lower := strings.ToLower(text)

	for _, check := range checks {
		switch check {
		case safety.CheckPII:
			for piiType, pattern := range piiPatterns {
				if pattern.MatchString(lower) {
					verdict.ContainsPII = true
					verdict.PIITypes = append(verdict.PIITypes, piiType)
				}
			}
		case safety.CheckScamDetection:
			var confidence float64
			for signal, weight := range scamSignals {
				if strings.Contains(lower, signal) {
					confidence += weight
				}
			}
			if confidence > 0 && moneyPattern.MatchString(lower) {
				confidence += 0.2
			}
			if confidence > 1.0 {
				confidence = 1.0
			}
			verdict.ScamConfidence = confidence
			verdict.IsScam = confidence >= 0.5
		case safety.CheckContentModeration:
			for _, signal := range moderationSignals {
				if strings.Contains(lower, signal) {
					verdict.ContentFlags = append(verdict.ContentFlags, signal)
					verdict.ModerationFlagged = true
				}
			}
		}
	}

	return verdict, nil
}
