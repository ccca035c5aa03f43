package compression_test

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

const foxPrompt = "The quick brown fox jumps over the lazy dog in the quiet green meadow"

// lengthScorer scores each word by its length; punctuation scores 0.
type lengthScorer struct {
	calls     atomic.Int32
	failAfter int32 // fail every call after this many, -1 = never fail
}

func newLengthScorer() *lengthScorer {
	s := &lengthScorer{}
	s.failAfter = -1
	return s
}

func (s *lengthScorer) Surprisal(_ context.Context, tokens []tokenizer.Token) ([]float64, error) {
	n := s.calls.Add(1)
	if s.failAfter >= 0 && n > s.failAfter {
		return nil, errors.New("scorer down")
	}
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		if tok.IsWord() {
			out[i] = float64(len(tok.Text))
		}
	}
	return out, nil
}

// ratioSimilarity is the fraction of a's words still present in b.
type ratioSimilarity struct{}

func (ratioSimilarity) Similarity(_ context.Context, a, b string) (float64, error) {
	na, nb := tokenizer.WordCount(a), tokenizer.WordCount(b)
	if na == 0 {
		return 1, nil
	}
	return min(float64(nb)/float64(na), 1), nil
}

type failingSimilarity struct{}

func (failingSimilarity) Similarity(context.Context, string, string) (float64, error) {
	return 0, errors.New("embedding endpoint down")
}
