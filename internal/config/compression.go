// Compression configuration - analyzer, pruner, scorers and generation.
package config

import (
	"fmt"
	"time"

	"github.com/compresr/prompt-pruner/external"
)

// AnalyzerConfig configures candidate ranking.
type AnalyzerConfig struct {
	MaxPhraseLen  int    `yaml:"max_phrase_len"` // used when a request omits it
	MaxCandidates int    `yaml:"max_candidates"` // display cap
	DisplayOrder  string `yaml:"display_order"`  // "descending" or "ascending"
}

// Validate checks the analyzer section.
func (a AnalyzerConfig) Validate() error {
	if a.MaxPhraseLen < 1 {
		return fmt.Errorf("analyzer.max_phrase_len must be >= 1")
	}
	if a.MaxCandidates < 1 {
		return fmt.Errorf("analyzer.max_candidates must be >= 1")
	}
	switch a.DisplayOrder {
	case "descending", "ascending":
	case "":
		return fmt.Errorf("analyzer.display_order is required")
	default:
		return fmt.Errorf("invalid analyzer.display_order: %q (must be descending or ascending)", a.DisplayOrder)
	}
	return nil
}

// PrunerConfig bounds the pruning loop.
type PrunerConfig struct {
	MaxSimilarityChecks int `yaml:"max_similarity_checks"` // per run
}

// Validate checks the pruner section.
func (p PrunerConfig) Validate() error {
	if p.MaxSimilarityChecks < 1 {
		return fmt.Errorf("pruner.max_similarity_checks must be >= 1")
	}
	return nil
}

// Scorer strategies.
const (
	ImportanceLocal     = "local"     // in-process term-frequency surprisal
	ImportanceAPI       = "api"       // remote surprisal service
	SimilarityLexical   = "lexical"   // bag-of-words cosine
	SimilarityEmbedding = "embedding" // remote embeddings cosine
)

// ScorerConfig selects one scorer implementation.
type ScorerConfig struct {
	Strategy string                 `yaml:"strategy"`
	API      external.ServiceConfig `yaml:"api"` // used by "api" and "embedding"
}

// ScoringConfig configures the importance and similarity scorers.
type ScoringConfig struct {
	Importance    ScorerConfig `yaml:"importance"`
	Similarity    ScorerConfig `yaml:"similarity"`
	TokenEncoding string       `yaml:"token_encoding"` // tiktoken encoding for model token counts
}

// Validate checks the scoring section.
func (s ScoringConfig) Validate() error {
	switch s.Importance.Strategy {
	case ImportanceLocal:
	case ImportanceAPI:
		if err := validateService("scoring.importance.api", s.Importance.API); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("scoring.importance.strategy is required")
	default:
		return fmt.Errorf("invalid scoring.importance.strategy: %q (must be local or api)", s.Importance.Strategy)
	}

	switch s.Similarity.Strategy {
	case SimilarityLexical:
	case SimilarityEmbedding:
		if err := validateService("scoring.similarity.api", s.Similarity.API); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("scoring.similarity.strategy is required")
	default:
		return fmt.Errorf("invalid scoring.similarity.strategy: %q (must be lexical or embedding)", s.Similarity.Strategy)
	}

	if s.TokenEncoding == "" {
		return fmt.Errorf("scoring.token_encoding is required")
	}
	return nil
}

func validateService(prefix string, svc external.ServiceConfig) error {
	if svc.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required", prefix)
	}
	if svc.Endpoint == "" {
		return fmt.Errorf("%s.endpoint is required", prefix)
	}
	if svc.Timeout <= 0 {
		return fmt.Errorf("%s.timeout is required", prefix)
	}
	if svc.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0", prefix)
	}
	return nil
}

// Generation strategies.
const (
	GenerationMock     = "mock"              // canned text, no network
	GenerationProvider = "external_provider" // CallLLM via a configured provider
)

// GenerationConfig configures downstream completions for generate/compare.
type GenerationConfig struct {
	Strategy     string        `yaml:"strategy"`
	Provider     string        `yaml:"provider"` // key in providers
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt,omitempty"`
}

// Validate checks the generation section.
func (g GenerationConfig) Validate() error {
	switch g.Strategy {
	case GenerationMock:
		return nil
	case GenerationProvider:
	case "":
		return fmt.Errorf("generation.strategy is required")
	default:
		return fmt.Errorf("invalid generation.strategy: %q (must be mock or external_provider)", g.Strategy)
	}
	if g.Provider == "" {
		return fmt.Errorf("generation.provider is required for external_provider strategy")
	}
	if g.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be > 0")
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("generation.timeout is required")
	}
	return nil
}
