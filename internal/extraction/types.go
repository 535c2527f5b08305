package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// ErrUnavailable marks a transient provider failure. Callers decide whether
// and how to retry; any other error is terminal for the window.
var ErrUnavailable = errors.New("extraction provider unavailable")

// DefaultMaxWindowTurns bounds how many turns a single window may carry
// when the caller does not configure its own bound.
const DefaultMaxWindowTurns = 50

// Turn is one utterance in a conversation window.
type Turn struct {
	// Role is "user" or "assistant". Only user turns express preferences,
	// but assistant turns stay in the window as disambiguating context.
	Role string `json:"role"`

	Content string `json:"content"`
}

// Window is the unit of extraction: an ordered slice of recent turns for
// one user. Windows are bounded; callers truncate to the most recent turns
// before handing one over.
type Window struct {
	UserID string `json:"user_id"`

	// LocaleHint is an optional BCP 47 tag ("pt-BR") used downstream to
	// disambiguate regional language variants. Never required.
	LocaleHint string `json:"locale_hint,omitempty"`

	Turns []Turn `json:"turns"`
}

// Validate checks the window for structural problems using the default
// turn bound.
func (w Window) Validate() error {
	return w.ValidateMax(DefaultMaxWindowTurns)
}

// ValidateMax checks the window for structural problems, enforcing the
// given turn bound. A maxTurns of zero or less falls back to
// DefaultMaxWindowTurns.
func (w Window) ValidateMax(maxTurns int) error {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxWindowTurns
	}
	if w.UserID == "" {
		return preference.ErrEmptyUserID
	}
	if len(w.Turns) == 0 {
		return errors.New("window has no turns")
	}
	if len(w.Turns) > maxTurns {
		return fmt.Errorf("window has %d turns, max %d", len(w.Turns), maxTurns)
	}
	for i, t := range w.Turns {
		if t.Role != "user" && t.Role != "assistant" {
			return fmt.Errorf("turn %d: unknown role %q", i, t.Role)
		}
	}
	return nil
}

// Usage is the token accounting for one extraction call. Zero for providers
// that don't report usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another call's usage.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Result is the validated output of one extraction call.
type Result struct {
	// Candidates are structurally valid preference candidates. Their
	// ExtractedAt timestamps are zero; sequencing belongs to the caller.
	Candidates []preference.Candidate `json:"candidates"`

	// Warnings report entries the provider produced but validation dropped
	// or repaired. Extraction fails open: a bad entry never fails the window.
	Warnings []string `json:"warnings,omitempty"`

	Usage Usage `json:"usage"`
}

// Extractor extracts preference candidates from a conversation window.
type Extractor interface {
	// Extract makes exactly one provider attempt for the window. Transient
	// failures are wrapped in ErrUnavailable.
	Extract(ctx context.Context, window Window) (Result, error)

	// Available returns true if the extractor is configured and ready.
	Available() bool
}

// ExtractionConfig selects and configures the extraction provider.
type ExtractionConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"` // "disabled", "heuristic", "anthropic", "openai", "langchain"

	Providers map[string]Config `json:"providers,omitempty"`

	// Heuristic configuration.
	Patterns []Pattern `json:"patterns,omitempty"`

	// MinConfidence drops heuristic matches below this weight. Zero keeps
	// every match.
	MinConfidence float64 `json:"min_confidence"`

	// MaxWindowTurns bounds incoming windows. Zero or less means
	// DefaultMaxWindowTurns.
	MaxWindowTurns int `json:"max_window_turns"`
}

// Config holds provider-specific configuration.
type Config struct {
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"` // seconds

	// MaxWindowTurns is stamped by NewExtractor from the parent
	// ExtractionConfig so every provider enforces the same bound.
	MaxWindowTurns int `json:"max_window_turns,omitempty"`
}

// DefaultConfig returns a default extraction configuration.
func DefaultConfig() ExtractionConfig {
	return ExtractionConfig{
		Enabled:        true,
		Provider:       "heuristic",
		MinConfidence:  0.5,
		MaxWindowTurns: DefaultMaxWindowTurns,
		Patterns:       DefaultPatterns(),
	}
}
