package compression

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// HybridResult is the outcome of a hybrid compression.
type HybridResult struct {
	Hybrid          string              `json:"hybrid"`
	Log             []IterationLogEntry `json:"log"` // phrase steps then word steps, one numbering
	PhraseSteps     int                 `json:"phrase_steps"`
	PhraseWordCount int                 `json:"phrase_word_count"` // words after stage 1
	WordCount       int                 `json:"word_count"`
	Target          int                 `json:"target"`
	Reached         bool                `json:"reached"`
	Rejected        int                 `json:"rejected"`
	Checks          int                 `json:"checks"`
	PruneFallback   bool                `json:"prune_fallback"` // plain prune was shorter and was returned
}

// Hybrid runs the phrase pruner at keep_ratio_phrases, then removes single
// words, least informative first, down to keep_ratio. A word that is the last
// live word of its clause is never removed in the word pass.
//
// When the word pass stalls above the keep_ratio target, phrases are tried
// again at that target. If the result is still above target and a plain prune
// at keep_ratio ends with fewer words, the prune result is returned instead
// with PruneFallback set. The hybrid is therefore never longer than Prune with
// the same config. Steps of the fallback prune are not sent to obs.
func (p *Pruner) Hybrid(ctx context.Context, prompt string, cfg Config, obs Observer) (*HybridResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Errorf(StageHybrid, ErrEmptyInput, nil, "prompt is blank")
	}
	if err := cfg.ValidateForHybrid(); err != nil {
		return nil, err
	}

	snap := NewSnapshot(prompt)
	n := snap.WordCount()
	st := &pruneState{
		stage:    StageHybrid,
		original: prompt,
		snap:     snap,
		target:   TargetWords(cfg.KeepRatioPhrases, n),
		rejected: make(map[string]bool),
		obs:      obs,
	}

	// Stage 1: phrases.
	if err := p.phrasePass(ctx, st, cfg.MaxPhraseLen, cfg.SimThreshold); err != nil {
		return nil, err
	}
	phraseSteps := len(st.log)
	phraseWords := st.snap.WordCount()

	// Stage 2: single words.
	st.target = TargetWords(cfg.KeepRatio, n)
	if err := p.wordPass(ctx, st, cfg.SimThreshold); err != nil {
		return nil, err
	}

	// Whole clauses can only go as phrases.
	if st.snap.WordCount() > st.target {
		if err := p.phrasePass(ctx, st, cfg.MaxPhraseLen, cfg.SimThreshold); err != nil {
			return nil, err
		}
	}

	res := st.result()
	out := &HybridResult{
		Hybrid:          res.Compressed,
		Log:             res.Log,
		PhraseSteps:     phraseSteps,
		PhraseWordCount: phraseWords,
		WordCount:       res.WordCount,
		Target:          res.Target,
		Reached:         res.Reached,
		Rejected:        res.Rejected,
		Checks:          res.Checks,
	}
	if res.Reached {
		return out, nil
	}

	// A prune never goes below the target, so only a stalled hybrid needs
	// bounding by a plain prune.
	pruned, err := p.prune(ctx, StageHybrid, prompt, cfg, nil)
	if err != nil {
		return nil, err
	}
	if pruned.WordCount >= out.WordCount {
		return out, nil
	}
	log.Debug().
		Int("hybrid_words", out.WordCount).
		Int("prune_words", pruned.WordCount).
		Msg("hybrid stalled above prune, returning prune result")
	return &HybridResult{
		Hybrid:          pruned.Compressed,
		Log:             pruned.Log,
		PhraseSteps:     len(pruned.Log),
		PhraseWordCount: pruned.WordCount,
		WordCount:       pruned.WordCount,
		Target:          pruned.Target,
		Reached:         pruned.Reached,
		Rejected:        pruned.Rejected,
		Checks:          out.Checks + pruned.Checks,
		PruneFallback:   true,
	}, nil
}

func (p *Pruner) wordPass(ctx context.Context, st *pruneState, threshold float64) error {
	if st.snap.WordCount() <= st.target {
		return nil
	}
	if err := p.score(ctx, st); err != nil {
		return err
	}

	for st.snap.WordCount() > st.target && p.budgetLeft(st) {
		if err := ctx.Err(); err != nil {
			return Errorf(st.stage, nil, err, "canceled")
		}

		cands := wordCandidates(st.snap, st.surprisal)
		slices.SortFunc(cands, pruneOrder)
		idx := slices.IndexFunc(cands, func(c PhraseCandidate) bool {
			return !st.rejected[candidateKey(c.Indices)]
		})
		if idx < 0 {
			break
		}

		committed, err := p.try(ctx, st, cands[idx], threshold)
		if err != nil {
			return err
		}
		if committed {
			if err := p.score(ctx, st); err != nil {
				return err
			}
		}
	}
	return nil
}

// wordCandidates returns every live removable word that is not the last live
// word of its clause.
func wordCandidates(snap *Snapshot, surprisal []float64) []PhraseCandidate {
	live := snap.Live()
	perClause := make(map[int]int)
	for _, tok := range live {
		if tok.IsWord() {
			perClause[tok.Clause]++
		}
	}

	out := make([]PhraseCandidate, 0, len(live))
	for i, tok := range live {
		if !tok.Removable() || perClause[tok.Clause] < 2 {
			continue
		}
		out = append(out, newCandidate(live[i:i+1], surprisal))
	}
	return out
}
