package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// LexicalSimilarity is the cosine of lower-cased bag-of-words vectors.
type LexicalSimilarity struct{}

// NewLexicalSimilarity creates a LexicalSimilarity.
func NewLexicalSimilarity() *LexicalSimilarity { return &LexicalSimilarity{} }

// Similarity implements compression.SimilarityScorer.
func (*LexicalSimilarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a == b {
		return 1, nil
	}

	va, vb := termVector(a), termVector(b)
	if len(va) == 0 || len(vb) == 0 {
		if len(va) == len(vb) {
			return 1, nil
		}
		return 0, nil
	}

	var dot, na, nb float64
	for term, x := range va {
		na += x * x
		if y, ok := vb[term]; ok {
			dot += x * y
		}
	}
	for _, y := range vb {
		nb += y * y
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

func termVector(text string) map[string]float64 {
	v := make(map[string]float64)
	for _, w := range tokenizer.Words(tokenizer.Tokenize(text)) {
		v[strings.ToLower(strings.Trim(w, `"`))]++
	}
	return v
}

// Embedder turns texts into vectors. external.EmbeddingClient implements it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}

// EmbeddingSimilarity is the cosine of embedding vectors, clamped to [0,1].
type EmbeddingSimilarity struct {
	embedder Embedder
}

// NewEmbeddingSimilarity wraps an Embedder.
func NewEmbeddingSimilarity(e Embedder) *EmbeddingSimilarity {
	return &EmbeddingSimilarity{embedder: e}
}

// Similarity implements compression.SimilarityScorer.
func (s *EmbeddingSimilarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	if a == b {
		return 1, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("embedder returned %d vectors for 2 inputs", len(vecs))
	}
	return Cosine(vecs[0], vecs[1])
}

// Cosine returns the cosine similarity of two vectors clamped to [0,1].
func Cosine(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(x), len(y))
	}
	var dot, nx, ny float64
	for i := range x {
		dot += x[i] * y[i]
		nx += x[i] * x[i]
		ny += y[i] * y[i]
	}
	if nx == 0 || ny == 0 {
		return 0, fmt.Errorf("zero vector")
	}
	return clamp01(dot / (math.Sqrt(nx) * math.Sqrt(ny))), nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
