package compression_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

func TestHybrid_WordCountsAreOrdered(t *testing.T) {
	p := newPruner(compression.PrunerConfig{})
	cfg := compression.Config{KeepRatio: 0.5, MaxPhraseLen: 3, SimThreshold: 0.5, KeepRatioPhrases: 0.75}

	res, err := p.Hybrid(context.Background(), foxPrompt, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 11, res.PhraseWordCount)
	assert.LessOrEqual(t, res.WordCount, res.PhraseWordCount)
	assert.LessOrEqual(t, res.PhraseWordCount, 14)
	assert.Equal(t, res.WordCount, tokenizer.WordCount(res.Hybrid))
	assert.True(t, res.Reached)

	// One numbering across both stages.
	for i, e := range res.Log {
		assert.Equal(t, i+1, e.Iter)
	}
	assert.Equal(t, 2, res.PhraseSteps)
}

func TestHybrid_NotLongerThanPrune(t *testing.T) {
	p := newPruner(compression.PrunerConfig{})
	cfg := compression.Config{KeepRatio: 0.5, MaxPhraseLen: 3, SimThreshold: 0.5, KeepRatioPhrases: 0.8}

	pruned, err := p.Prune(context.Background(), foxPrompt, cfg, nil)
	require.NoError(t, err)
	hybrid, err := p.Hybrid(context.Background(), foxPrompt, cfg, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, tokenizer.WordCount(hybrid.Hybrid), tokenizer.WordCount(pruned.Compressed))
}

func TestHybrid_FinishesWholeClausesWithPhrases(t *testing.T) {
	p := newPruner(compression.PrunerConfig{})
	prompt := "Go now. Stop here. Run fast. Eat well."
	cfg := compression.Config{KeepRatio: 0.25, MaxPhraseLen: 2, SimThreshold: 0, KeepRatioPhrases: 1}

	pruned, err := p.Prune(context.Background(), prompt, cfg, nil)
	require.NoError(t, err)
	hybrid, err := p.Hybrid(context.Background(), prompt, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, pruned.WordCount)
	assert.Equal(t, 2, hybrid.WordCount)
	assert.True(t, hybrid.Reached)
	assert.False(t, hybrid.PruneFallback)
	assert.Equal(t, hybrid.WordCount, tokenizer.WordCount(hybrid.Hybrid))
	assert.Equal(t, hybrid.WordCount, hybrid.Log[len(hybrid.Log)-1].CurrentWordCount)
	assert.False(t, strings.HasPrefix(hybrid.Hybrid, "."), hybrid.Hybrid)
}

func TestHybrid_NeverLongerThanPrune_Random(t *testing.T) {
	vocab := []string{"go", "now", "stop", "here", "run", "fast", "eat", "well", "the", "a",
		"quick", "summary", "report", "carefully", "very", "model", "answer", "in", "of", "data"}
	breaks := []string{" ", " ", " ", ". ", ", ", "; ", "\n"}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 300; i++ {
		var b strings.Builder
		words := 2 + rng.IntN(24)
		for w := 0; w < words; w++ {
			b.WriteString(vocab[rng.IntN(len(vocab))])
			if w < words-1 {
				b.WriteString(breaks[rng.IntN(len(breaks))])
			}
		}
		b.WriteString(".")
		prompt := b.String()

		kr := 0.1 + 0.8*rng.Float64()
		cfg := compression.Config{
			KeepRatio:        kr,
			MaxPhraseLen:     1 + rng.IntN(4),
			SimThreshold:     0.9 * rng.Float64(),
			KeepRatioPhrases: kr + (1-kr)*rng.Float64(),
		}

		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			p := newPruner(compression.PrunerConfig{MaxSimilarityChecks: 200})
			pruned, err := p.Prune(context.Background(), prompt, cfg, nil)
			require.NoError(t, err)
			hybrid, err := p.Hybrid(context.Background(), prompt, cfg, nil)
			require.NoError(t, err)

			assert.LessOrEqual(t, hybrid.WordCount, pruned.WordCount, "prompt %q cfg %+v", prompt, cfg)
			assert.Equal(t, hybrid.WordCount, tokenizer.WordCount(hybrid.Hybrid))
			if len(hybrid.Log) > 0 {
				assert.Equal(t, hybrid.WordCount, hybrid.Log[len(hybrid.Log)-1].CurrentWordCount)
			}
		})
	}
}

func TestHybrid_WordPassKeepsLastWordOfEachClause(t *testing.T) {
	p := newPruner(compression.PrunerConfig{})
	cfg := compression.Config{KeepRatio: 0.2, MaxPhraseLen: 3, SimThreshold: 0, KeepRatioPhrases: 1}

	res, err := p.Hybrid(context.Background(), "Yes. Please write the summary", cfg, nil)
	require.NoError(t, err)

	var removed []string
	for _, e := range res.Log {
		removed = append(removed, e.RemovedPhrase)
	}
	// The word pass stops at "summary"; the lone "Yes" clause goes as a phrase.
	assert.Equal(t, []string{"the", "write", "Please", "Yes"}, removed)
	assert.Equal(t, "summary", res.Hybrid)
	assert.Equal(t, 0, res.PhraseSteps)
	assert.True(t, res.Reached)
}

func TestHybrid_RequiresPhraseRatio(t *testing.T) {
	p := newPruner(compression.PrunerConfig{})
	cfg := compression.Config{KeepRatio: 0.5, MaxPhraseLen: 3, SimThreshold: 0.5}

	_, err := p.Hybrid(context.Background(), foxPrompt, cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, compression.ErrInvalidConfig)
	assert.Equal(t, compression.StageHybrid, compression.StageOf(err))
}

func TestHybrid_ScorerDownOnFirstCall(t *testing.T) {
	scorer := newLengthScorer()
	scorer.failAfter = 0
	p := compression.NewPruner(scorer, ratioSimilarity{}, compression.PrunerConfig{})
	cfg := compression.Config{KeepRatio: 0.5, MaxPhraseLen: 3, SimThreshold: 0.5, KeepRatioPhrases: 1}

	_, err := p.Hybrid(context.Background(), foxPrompt, cfg, nil)
	assert.ErrorIs(t, err, compression.ErrScoringUnavailable)
}
