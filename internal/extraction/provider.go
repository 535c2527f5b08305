package extraction

import (
	"context"
	"fmt"
)

// NewExtractor creates an extractor based on configuration.
func NewExtractor(cfg ExtractionConfig) (Extractor, error) {
	if !cfg.Enabled || cfg.Provider == "disabled" {
		return &NoOpExtractor{maxTurns: cfg.MaxWindowTurns}, nil
	}

	if cfg.Provider == "" || cfg.Provider == "heuristic" {
		return NewHeuristicExtractor(cfg)
	}

	providerCfg, ok := cfg.Providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", cfg.Provider)
	}
	providerCfg.MaxWindowTurns = cfg.MaxWindowTurns

	switch cfg.Provider {
	case "anthropic":
		return newAnthropicExtractor(providerCfg)
	case "openai":
		return newOpenAIExtractor(providerCfg)
	case "langchain":
		return newLangchainExtractor(providerCfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NoOpExtractor is a no-op implementation of Extractor. It accepts every
// valid window and extracts nothing, so the pipeline stays runnable when
// extraction is switched off.
type NoOpExtractor struct {
	maxTurns int
}

// Extract returns an empty result.
func (n *NoOpExtractor) Extract(ctx context.Context, window Window) (Result, error) {
	if err := window.ValidateMax(n.maxTurns); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// Available returns false for NoOpExtractor.
func (n *NoOpExtractor) Available() bool {
	return false
}

// Ensure interface is implemented.
var _ Extractor = (*NoOpExtractor)(nil)
