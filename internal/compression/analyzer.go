package compression

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// Order is the display order of analyzer candidates.
type Order string

const (
	OrderDescending Order = "descending" // most informative first
	OrderAscending  Order = "ascending"  // least informative first, the order pruning uses
)

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	MaxPhraseLen  int   // used when a request does not set one
	MaxCandidates int   // display cap, 0 = no cap
	DisplayOrder  Order // "descending" or "ascending"
}

// Analysis is the result of Analyze.
type Analysis struct {
	TokenCount     int               `json:"token_count"`
	Words          []string          `json:"words"`
	Candidates     []PhraseCandidate `json:"top_phrase_candidates"`
	CandidateCount int               `json:"phrase_candidates_count"`
	MaxPhraseLen   int               `json:"max_phrase_len"`
}

// Analyzer ranks phrase candidates by how informative they are.
type Analyzer struct {
	scorer ImportanceScorer
	cfg    AnalyzerConfig
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(scorer ImportanceScorer, cfg AnalyzerConfig) *Analyzer {
	if cfg.DisplayOrder == "" {
		cfg.DisplayOrder = OrderDescending
	}
	return &Analyzer{scorer: scorer, cfg: cfg}
}

// Analyze scores prompt and returns its ranked phrase candidates.
// maxPhraseLen of 0 selects the configured length.
func (a *Analyzer) Analyze(ctx context.Context, prompt string, maxPhraseLen int) (*Analysis, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Errorf(StageAnalyze, ErrEmptyInput, nil, "prompt is blank")
	}
	if maxPhraseLen == 0 {
		maxPhraseLen = a.cfg.MaxPhraseLen
	}
	if maxPhraseLen < 1 {
		return nil, Errorf(StageAnalyze, ErrInvalidConfig, nil, "max_phrase_len must be >= 1, got %d", maxPhraseLen)
	}

	snap := NewSnapshot(prompt)
	surprisal, err := scoreLive(ctx, a.scorer, snap, nil)
	if err != nil {
		return nil, Errorf(StageAnalyze, ErrScoringUnavailable, err, "importance scorer failed")
	}

	all := candidates(snap, surprisal, maxPhraseLen, 0)
	if a.cfg.DisplayOrder == OrderAscending {
		slices.SortFunc(all, pruneOrder)
	} else {
		slices.SortFunc(all, displayOrder)
	}
	top := all
	if a.cfg.MaxCandidates > 0 && len(top) > a.cfg.MaxCandidates {
		top = top[:a.cfg.MaxCandidates]
	}

	return &Analysis{
		TokenCount:     snap.WordCount(),
		Words:          tokenizer.Words(snap.Tokens()),
		Candidates:     top,
		CandidateCount: len(all),
		MaxPhraseLen:   maxPhraseLen,
	}, nil
}

// =============================================================================
// SHARED SCORING HELPERS
// =============================================================================

// scoreLive scores the live tokens of snap. The result is indexed by original
// token index; entries for removed tokens are copied from prev.
func scoreLive(ctx context.Context, scorer ImportanceScorer, snap *Snapshot, prev []float64) ([]float64, error) {
	out := make([]float64, len(snap.Tokens()))
	copy(out, prev)

	live := snap.Live()
	if len(live) == 0 {
		return out, nil
	}
	vals, err := scorer.Surprisal(ctx, live)
	if err != nil {
		return nil, err
	}
	if len(vals) != len(live) {
		return nil, fmt.Errorf("scorer returned %d values for %d tokens", len(vals), len(live))
	}
	for i, tok := range live {
		v := vals[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("scorer returned non-finite value for token %q", tok.Text)
		}
		out[tok.Index] = max(v, 0)
	}
	return out, nil
}

// candidates enumerates every span of 1..maxLen consecutive live removable
// words within one clause. A live punctuation or protected token breaks a
// span; removed tokens do not. limit > 0 drops spans longer than limit.
func candidates(snap *Snapshot, surprisal []float64, maxLen, limit int) []PhraseCandidate {
	if limit > 0 && limit < maxLen {
		maxLen = limit
	}

	var out []PhraseCandidate
	var run []tokenizer.Token
	flush := func() {
		for i := range run {
			for l := 1; l <= maxLen && i+l <= len(run); l++ {
				out = append(out, newCandidate(run[i:i+l], surprisal))
			}
		}
		run = run[:0]
	}

	for i, tok := range snap.Tokens() {
		if snap.IsRemoved(i) {
			continue
		}
		if !tok.Removable() {
			flush()
			continue
		}
		if len(run) > 0 && run[len(run)-1].Clause != tok.Clause {
			flush()
		}
		run = append(run, tok)
	}
	flush()
	return out
}

func newCandidate(span []tokenizer.Token, surprisal []float64) PhraseCandidate {
	texts := make([]string, len(span))
	indices := make([]int, len(span))
	sum := 0.0
	for i, tok := range span {
		texts[i] = tok.Text
		indices[i] = tok.Index
		sum += surprisal[tok.Index]
	}
	return PhraseCandidate{
		Phrase:  strings.Join(texts, " "),
		Start:   span[0].Start,
		End:     span[len(span)-1].End,
		Length:  len(span),
		Norm:    sum / float64(len(span)),
		Indices: indices,
	}
}

// pruneOrder: lowest norm first, then longer, then earlier.
func pruneOrder(a, b PhraseCandidate) int {
	if c := cmp.Compare(a.Norm, b.Norm); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Length, a.Length); c != 0 {
		return c
	}
	return cmp.Compare(a.Start, b.Start)
}

// displayOrder: highest norm first, then longer, then earlier.
func displayOrder(a, b PhraseCandidate) int {
	if c := cmp.Compare(b.Norm, a.Norm); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Length, a.Length); c != 0 {
		return c
	}
	return cmp.Compare(a.Start, b.Start)
}

// candidateKey identifies a candidate across iterations by its original token indices.
func candidateKey(indices []int) string {
	var b strings.Builder
	for i, idx := range indices {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", idx)
	}
	return b.String()
}
