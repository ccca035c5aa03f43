package scoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/compresr/prompt-pruner/external"
	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/config"
	"github.com/compresr/prompt-pruner/internal/engine"
)

// NewImportanceScorer builds the importance scorer selected by cfg.
// client may be nil.
func NewImportanceScorer(cfg config.ScoringConfig, client *http.Client) (compression.ImportanceScorer, error) {
	switch cfg.Importance.Strategy {
	case config.ImportanceLocal:
		return NewFrequencyScorer(), nil
	case config.ImportanceAPI:
		svc, err := external.NewService("surprisal", cfg.Importance.API, client)
		if err != nil {
			return nil, err
		}
		return external.NewSurprisalClient(svc), nil
	default:
		return nil, fmt.Errorf("unknown importance strategy: %q", cfg.Importance.Strategy)
	}
}

// NewSimilarityScorer builds the similarity scorer selected by cfg.
// client may be nil.
func NewSimilarityScorer(cfg config.ScoringConfig, client *http.Client) (compression.SimilarityScorer, error) {
	switch cfg.Similarity.Strategy {
	case config.SimilarityLexical:
		return NewLexicalSimilarity(), nil
	case config.SimilarityEmbedding:
		svc, err := external.NewService("embeddings", cfg.Similarity.API, client)
		if err != nil {
			return nil, err
		}
		return NewEmbeddingSimilarity(external.NewEmbeddingClient(svc)), nil
	default:
		return nil, fmt.Errorf("unknown similarity strategy: %q", cfg.Similarity.Strategy)
	}
}

// NewGenerator builds the generator selected by cfg.Generation.
func NewGenerator(ctx context.Context, cfg *config.Config) (engine.Generator, error) {
	gen := cfg.Generation
	switch gen.Strategy {
	case config.GenerationMock:
		return MockGenerator{}, nil
	case config.GenerationProvider:
	default:
		return nil, fmt.Errorf("unknown generation strategy: %q", gen.Strategy)
	}

	p, err := cfg.ResolveProvider(gen.Provider)
	if err != nil {
		return nil, err
	}

	var client *http.Client
	if p.Provider == "bedrock" {
		transport, err := external.NewBedrockSigningTransport(ctx, p.Region, nil)
		if err != nil {
			return nil, fmt.Errorf("bedrock generation: %w", err)
		}
		client = transport.Client()
	}

	return NewLLMGenerator(LLMGeneratorConfig{
		Provider:     p.Provider,
		Endpoint:     p.Endpoint,
		APIKey:       p.APIKey,
		Model:        p.Model,
		SystemPrompt: gen.SystemPrompt,
		MaxTokens:    gen.MaxTokens,
		Timeout:      gen.Timeout,
		HTTPClient:   client,
	}), nil
}
