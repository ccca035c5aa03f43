package engine

import (
	"context"

	"github.com/compresr/prompt-pruner/internal/compression"
)

// Generator produces a completion for a prompt. It is the only way the
// engine reaches a generative model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelGenerator is a Generator that can target another model for one call.
type ModelGenerator interface {
	Generator
	GenerateWithModel(ctx context.Context, model, prompt string) (string, error)
}

// =============================================================================
// REQUESTS
// =============================================================================

// AnalyzeRequest asks for the ranked phrase candidates of a prompt.
type AnalyzeRequest struct {
	Prompt       string `json:"prompt"`
	MaxPhraseLen int    `json:"max_phrase_len,omitempty"` // 0 = configured default
}

// PruneRequest asks for phrase pruning. The knobs are pointers so a missing
// value can be told apart from a zero value. RunID continues an existing run
// and supplies its prompt.
type PruneRequest struct {
	Prompt       string   `json:"prompt"`
	KeepRatio    *float64 `json:"keep_ratio"`
	MaxPhraseLen *int     `json:"max_phrase_len"`
	SimThreshold *float64 `json:"sim_threshold"`
	RunID        string   `json:"run_id,omitempty"`
}

// HybridRequest asks for phrase pruning followed by word pruning. When RunID
// is set, the run supplies the prompt and, if absent here, the keep_ratio and
// max_phrase_len recorded by its prune.
type HybridRequest struct {
	Prompt           string   `json:"prompt"`
	SimThreshold     *float64 `json:"sim_threshold"`
	KeepRatioPhrases *float64 `json:"keep_ratio_phrases"`
	KeepRatio        *float64 `json:"keep_ratio,omitempty"`
	MaxPhraseLen     *int     `json:"max_phrase_len,omitempty"`
	RunID            string   `json:"run_id,omitempty"`
}

// GenerateRequest asks the generator for a completion. Exactly one of
// Prompt and RunID is read: RunID wins when both are set.
//
// Model overrides the configured model for this call only.
type GenerateRequest struct {
	Which  Variant `json:"which"`
	Prompt string  `json:"prompt,omitempty"`
	RunID  string  `json:"run_id,omitempty"`
	Model  string  `json:"model,omitempty"`
}

// ValidateRequest compares two texts.
type ValidateRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// CompareRequest generates every available variant of a run.
type CompareRequest struct {
	RunID string `json:"run_id"`
	Model string `json:"model,omitempty"`
}

// SectionsRequest asks for per-section compression of a "## " structured
// prompt. Summarize turns on the summarize-then-validate step, which uses the
// generator with Model when set.
type SectionsRequest struct {
	Prompt           string   `json:"prompt"`
	Headers          []string `json:"headers,omitempty"`
	SimThreshold     *float64 `json:"sim_threshold"`
	KeepRatioPhrases *float64 `json:"keep_ratio_phrases"`
	MaxPhraseLen     *int     `json:"max_phrase_len"`
	Summarize        bool     `json:"summarize,omitempty"`
	Model            string   `json:"model,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// AnalyzeResponse is the analysis plus the model token count of the prompt.
type AnalyzeResponse struct {
	compression.Analysis
	ModelTokenCount int `json:"model_token_count"`
}

// PruneResponse is the result of a prune.
type PruneResponse struct {
	RunID             string                          `json:"run_id"`
	Compressed        string                          `json:"compressed"`
	Log               []compression.IterationLogEntry `json:"log"`
	OriginalWordCount int                             `json:"original_word_count"`
	WordCount         int                             `json:"word_count"`
	Target            int                             `json:"target"`
	Reached           bool                            `json:"reached"`
	Rejected          int                             `json:"rejected"`
}

// HybridResponse is the result of a hybrid compression.
type HybridResponse struct {
	RunID             string                          `json:"run_id"`
	Hybrid            string                          `json:"hybrid"`
	Log               []compression.IterationLogEntry `json:"log"`
	OriginalWordCount int                             `json:"original_word_count"`
	PhraseWordCount   int                             `json:"phrase_word_count"`
	WordCount         int                             `json:"word_count"`
	Target            int                             `json:"target"`
	Reached           bool                            `json:"reached"`
	Rejected          int                             `json:"rejected"`
	PruneFallback     bool                            `json:"prune_fallback,omitempty"`
}

// GenerateResponse is a completion. Used differs from the requested variant
// when a hybrid request fell back to the pruned or original prompt.
type GenerateResponse struct {
	Text  string   `json:"text"`
	Which Variant  `json:"which"`
	Used  *Variant `json:"used,omitempty"` // set only for run-backed requests
	Model string   `json:"model,omitempty"`
}

// SectionsResponse is the per-section result plus model token counts.
type SectionsResponse struct {
	compression.SectionResult
	OriginalTokens int `json:"original_tokens"`
	Tokens         int `json:"tokens"`
}

// ValidateResponse is the similarity of two texts and their model token counts.
type ValidateResponse struct {
	Similarity float64 `json:"similarity"`
	TokensA    int     `json:"tokens_a"`
	TokensB    int     `json:"tokens_b"`
}

// CompareOutput is one variant's completion. Similarity is measured against
// the original's completion and is nil for the original itself or when the
// similarity scorer failed.
type CompareOutput struct {
	Which           Variant  `json:"which"`
	PromptWords     int      `json:"prompt_words"`
	Text            string   `json:"text"`
	Similarity      *float64 `json:"similarity,omitempty"`
	SimilarityError string   `json:"similarity_error,omitempty"`
}

// CompareResponse holds the completions of every variant the run has.
type CompareResponse struct {
	RunID   string          `json:"run_id"`
	Outputs []CompareOutput `json:"outputs"`
}
