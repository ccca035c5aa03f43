// Package scoring provides the importance, similarity and generation
// implementations behind the compression interfaces.
//
// STRATEGIES:
//   - FrequencyScorer:     in-process surprisal from term frequency
//   - SurprisalClient:     remote surprisal (external package)
//   - LexicalSimilarity:   bag-of-words cosine, no network
//   - EmbeddingSimilarity: cosine over remote embeddings
//   - MockGenerator / LLMGenerator for generate and compare
//
// NewImportanceScorer, NewSimilarityScorer and NewGenerator pick one from config.
package scoring

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// stopWords carry little information on their own.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "do": {}, "for": {},
	"from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "if": {},
	"in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "over": {}, "per": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "which": {}, "will": {}, "with": {}, "very": {}, "just": {},
	"really": {}, "please": {},
}

const (
	stopWordFactor = 0.25
	numberFactor   = 1.5
	lengthWeight   = 0.05
	maxLengthBonus = 12
)

// FrequencyScorer estimates surprisal without a language model.
//
// For a word w seen c times among N words of the live text:
//
//	s(w) = log2((N+1) / (c+0.5)) + 0.05*min(len(w), 12)
//
// scaled by 0.25 for stop words and 1.5 for words containing digits.
// Punctuation scores 0.
type FrequencyScorer struct{}

// NewFrequencyScorer creates a FrequencyScorer.
func NewFrequencyScorer() *FrequencyScorer { return &FrequencyScorer{} }

// Surprisal implements compression.ImportanceScorer.
func (*FrequencyScorer) Surprisal(ctx context.Context, tokens []tokenizer.Token) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	n := 0
	for _, t := range tokens {
		if t.IsWord() {
			counts[strings.ToLower(t.Text)]++
			n++
		}
	}

	out := make([]float64, len(tokens))
	for i, t := range tokens {
		if !t.IsWord() {
			continue
		}
		term := strings.ToLower(t.Text)
		s := math.Log2(float64(n+1)/(float64(counts[term])+0.5)) +
			lengthWeight*float64(min(utf8.RuneCountInString(term), maxLengthBonus))
		if _, stop := stopWords[term]; stop {
			s *= stopWordFactor
		}
		if strings.IndexFunc(term, unicode.IsDigit) >= 0 {
			s *= numberFactor
		}
		out[i] = max(s, 0)
	}
	return out, nil
}
