package scoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/external"
)

// MockGenerator returns a canned completion without calling a model.
type MockGenerator struct{}

// Generate returns "(mock) Output for prompt length N chars".
func (MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("(mock) Output for prompt length %d chars", len(prompt)), nil
}

// GenerateWithModel ignores model; the mock has none.
func (m MockGenerator) GenerateWithModel(ctx context.Context, _, prompt string) (string, error) {
	return m.Generate(ctx, prompt)
}

// LLMGenerator sends each prompt as a single user turn to an LLM provider.
type LLMGenerator struct {
	params external.CallLLMParams
}

// LLMGeneratorConfig configures an LLMGenerator.
type LLMGeneratorConfig struct {
	Provider     string
	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
	HTTPClient   *http.Client // nil uses a default client; Bedrock needs a signing client
}

// NewLLMGenerator creates an LLMGenerator.
func NewLLMGenerator(cfg LLMGeneratorConfig) *LLMGenerator {
	return &LLMGenerator{params: external.CallLLMParams{
		Provider:     cfg.Provider,
		Endpoint:     cfg.Endpoint,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
	}}
}

// Generate returns the model's completion for prompt.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.GenerateWithModel(ctx, "", prompt)
}

// GenerateWithModel is Generate against model instead of the configured one.
// An empty model uses the configured one.
func (g *LLMGenerator) GenerateWithModel(ctx context.Context, model, prompt string) (string, error) {
	params := g.params
	params.UserPrompt = prompt
	if model != "" {
		params.Model = model
	}

	start := time.Now()
	res, err := external.CallLLM(ctx, params)
	if err != nil {
		return "", err
	}
	log.Debug().
		Str("provider", res.Provider).
		Str("model", params.Model).
		Int("input_tokens", res.InputTokens).
		Int("output_tokens", res.OutputTokens).
		Dur("latency", time.Since(start)).
		Msg("generation complete")
	return res.Content, nil
}
