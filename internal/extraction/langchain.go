package extraction

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// langchainExtractor implements Extractor through langchaingo, which lets
// operators point the engine at any OpenAI-compatible endpoint or a local
// Ollama without a dedicated client in this package.
type langchainExtractor struct {
	model     llms.Model
	maxTokens int
	maxTurns  int
	available bool
}

// newLangchainExtractor creates an extractor backed by a langchaingo model.
// The Model field selects the upstream ("gpt-4o-mini", "llama3", ...); an
// empty BaseURL means the provider's public endpoint.
func newLangchainExtractor(cfg Config) (Extractor, error) {
	var model llms.Model
	var err error

	switch {
	case cfg.APIKey != "":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case cfg.BaseURL != "":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
	default:
		return nil, fmt.Errorf("langchain provider needs an API key or a base URL")
	}
	if err != nil {
		return nil, fmt.Errorf("creating langchain model: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &langchainExtractor{
		model:     model,
		maxTokens: maxTokens,
		maxTurns:  cfg.MaxWindowTurns,
		available: true,
	}, nil
}

// Extract asks the configured model for preference candidates in the window.
func (l *langchainExtractor) Extract(ctx context.Context, window Window) (Result, error) {
	if err := window.ValidateMax(l.maxTurns); err != nil {
		return Result{}, fmt.Errorf("invalid window: %w", err)
	}

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(extractPrompt)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(renderWindow(window))},
		},
	}

	resp, err := l.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(l.maxTokens),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		// langchaingo does not expose status codes, so every transport
		// error is treated as transient.
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty response from model")
	}

	candidates, warnings := parseCandidatesJSON(resp.Choices[0].Content, len(window.Turns))

	return Result{
		Candidates: candidates,
		Warnings:   warnings,
	}, nil
}

// Available returns true if the extractor is configured.
func (l *langchainExtractor) Available() bool {
	return l.available
}

// Ensure interface is implemented.
var _ Extractor = (*langchainExtractor)(nil)
