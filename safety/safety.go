// Package safety screens free-text content for PII, scam patterns, and
// policy violations before it is allowed to be indexed or acted on by an
// agent.
//
// The Scanner owns classification policy and degradation behavior; the
// Provider interface is the pluggable network call. Provider outages never
// block the user-facing write path: the scan degrades to safe and the
// event is logged for monitoring.
package safety

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/foundercircle/semindex/core"
)

// Check selects which screens a scan runs.
type Check string

const (
	CheckPII               Check = "pii"
	CheckScamDetection     Check = "scam_detection"
	CheckContentModeration Check = "content_moderation"
)

// AllChecks enables every screen.
var AllChecks = []Check{CheckPII, CheckScamDetection, CheckContentModeration}

// RawVerdict is what a Provider reports before policy is applied.
type RawVerdict struct {
	ContainsPII    bool     `json:"contains_pii"`
	PIITypes       []string `json:"pii_types"`
	IsScam         bool     `json:"is_scam"`
	ScamConfidence float64  `json:"scam_confidence"`
	ContentFlags   []string `json:"content_flags"`

	// ModerationFlagged is the provider's own content-moderation verdict
	// (true means the provider judged the content unsafe).
	ModerationFlagged bool `json:"moderation_flagged"`
}

// Verdict is the policy-resolved scan result. Derived, never persisted.
type Verdict struct {
	ContainsPII    bool
	PIITypes       []string
	IsScam         bool
	ScamConfidence float64
	ContentFlags   []string
	IsSafe         bool
}

// Provider performs the actual scan against an external safety service.
// Implementations: httpscan.Provider, claude.Provider, mock.Provider.
type Provider interface {
	Scan(ctx context.Context, text string, checks []Check) (*RawVerdict, error)
}

// Config holds Scanner policy knobs.
type Config struct {
	// CriticalPIITypes force is_safe=false regardless of the provider's
	// own verdict.
	CriticalPIITypes []string

	// ScamThreshold is the scam_confidence at or above which content is
	// unsafe.
	ScamThreshold float64

	// Timeout bounds each provider call.
	Timeout time.Duration
}

// DefaultConfig returns the production policy.
var DefaultConfig = &Config{
	CriticalPIITypes: []string{"ssn", "national_id", "bank_account", "credit_card", "routing_number"},
	ScamThreshold:    0.7,
	Timeout:          10 * time.Second,
}

// Scanner applies classification policy over a Provider's raw verdicts.
type Scanner struct {
	provider Provider
	config   *Config
	metrics  core.MetricsCollector
}

// NewScanner creates a Scanner. A nil config uses DefaultConfig; a nil
// metrics collector discards metrics.
func NewScanner(provider Provider, config *Config, metrics core.MetricsCollector) *Scanner {
	if config == nil {
		config = DefaultConfig
	}
	if metrics == nil {
		metrics = core.NoopMetricsCollector{}
	}
	return &Scanner{provider: provider, config: config, metrics: metrics}
}

// Scan screens text with the requested checks and returns a
// policy-resolved verdict.
//
// Empty or whitespace-only text short-circuits to safe without a network
// call. Provider timeouts and unavailability degrade to safe (logged at
// warning level); a SafetyServiceError from the provider propagates, since
// it indicates a caller bug rather than an outage.
func (s *Scanner) Scan(ctx context.Context, text string, checks []Check) (*Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return &Verdict{IsSafe: true}, nil
	}
	if len(checks) == 0 {
		checks = AllChecks
	}

	start := time.Now()
	scanCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	raw, err := s.provider.Scan(scanCtx, text, checks)
	if err != nil {
		var svcErr *core.SafetyServiceError
		if errors.As(err, &svcErr) {
			s.metrics.RecordScan(time.Since(start), false, err)
			return nil, err
		}
		// Outage class: fail open so the write path is never blocked on
		// the provider, but make noise for monitoring.
		log.Printf("[SAFETY] WARN provider unavailable, degrading to safe: %v", err)
		s.metrics.RecordScan(time.Since(start), true, err)
		return &Verdict{IsSafe: true}, nil
	}

	verdict := s.resolve(raw)
	s.metrics.RecordScan(time.Since(start), false, nil)
	if !verdict.IsSafe {
		log.Printf("[SAFETY] Content flagged: pii=%v scam=%.2f flags=%v",
			verdict.ContainsPII, verdict.ScamConfidence, verdict.ContentFlags)
	}
	return verdict, nil
}

// resolve applies the OR'd policy triggers: critical PII, scam confidence
// at or above threshold, or a moderation flag. Any one is sufficient.
func (s *Scanner) resolve(raw *RawVerdict) *Verdict {
	v := &Verdict{
		ContainsPII:    raw.ContainsPII,
		PIITypes:       raw.PIITypes,
		IsScam:         raw.IsScam,
		ScamConfidence: raw.ScamConfidence,
		ContentFlags:   raw.ContentFlags,
		IsSafe:         true,
	}

	for _, piiType := range raw.PIITypes {
		if s.isCriticalPII(piiType) {
			v.IsSafe = false
		}
	}
	if raw.ScamConfidence >= s.config.ScamThreshold {
		v.IsScam = true
		v.IsSafe = false
	}
	if raw.ModerationFlagged {
		v.IsSafe = false
	}
	return v
}

func (s *Scanner) isCriticalPII(piiType string) bool {
	for _, critical := range s.config.CriticalPIITypes {
		if strings.EqualFold(piiType, critical) {
			return true
		}
	}
	return false
}
