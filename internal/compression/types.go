// Package compression implements the prompt compression core.
//
// DESIGN: Every prompt is tokenized once into an immutable arena. Each
// compression step produces a new Snapshot (arena + removed set), so a
// tentative removal is just a cheap copy that can be thrown away.
//
// FLOW:
//  1. Analyzer scores tokens and ranks phrase candidates by mean surprisal
//  2. Pruner removes the least informative candidate that keeps the text
//     similar enough to the original, until the word budget is met
//  3. Hybrid runs the Pruner at a looser ratio, then trims single words
//
// Scoring, embedding and generation are external capabilities reached
// through the ImportanceScorer and SimilarityScorer interfaces.
package compression

import (
	"context"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// =============================================================================
// SCORERS
// =============================================================================

// ImportanceScorer assigns a surprisal value to each token.
// The result must be aligned with tokens: one finite value per token.
type ImportanceScorer interface {
	Surprisal(ctx context.Context, tokens []tokenizer.Token) ([]float64, error)
}

// SimilarityScorer returns a semantic similarity in [0,1].
// Similarity(x, x) must be 1.
type SimilarityScorer interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// =============================================================================
// RESULTS
// =============================================================================

// PhraseCandidate is a removable span of 1..max_phrase_len live words.
type PhraseCandidate struct {
	Phrase  string  `json:"phrase"`
	Start   int     `json:"start"` // byte offset of the first word in the original prompt
	End     int     `json:"end"`   // byte offset just past the last word
	Length  int     `json:"length"`
	Norm    float64 `json:"norm"` // mean surprisal over the span
	Indices []int   `json:"-"`    // original token indices
}

// IterationLogEntry records one committed removal.
type IterationLogEntry struct {
	Iter             int     `json:"iter"`
	RemovedPhrase    string  `json:"removed_phrase"`
	CurrentWordCount int     `json:"current_word_count"`
	Norm             float64 `json:"norm"`
	Similarity       float64 `json:"similarity"`
}

// Observer is called after every committed iteration.
type Observer func(IterationLogEntry)
