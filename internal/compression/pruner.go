package compression

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// PrunerConfig configures a Pruner.
type PrunerConfig struct {
	// MaxSimilarityChecks bounds similarity calls per run. 0 = unbounded.
	MaxSimilarityChecks int
}

// PruneResult is the outcome of a prune.
type PruneResult struct {
	Compressed string              `json:"compressed"`
	Log        []IterationLogEntry `json:"log"`
	WordCount  int                 `json:"word_count"`
	Target     int                 `json:"target"`
	Reached    bool                `json:"reached"`  // false = best effort
	Rejected   int                 `json:"rejected"` // candidates ruled out by similarity
	Checks     int                 `json:"checks"`   // similarity calls made

	snapshot *Snapshot
}

// Snapshot returns the final state of the prompt.
func (r *PruneResult) Snapshot() *Snapshot { return r.snapshot }

// Pruner removes low-information phrases under a similarity floor.
type Pruner struct {
	importance ImportanceScorer
	similarity SimilarityScorer
	cfg        PrunerConfig
}

// NewPruner creates a Pruner.
func NewPruner(importance ImportanceScorer, similarity SimilarityScorer, cfg PrunerConfig) *Pruner {
	return &Pruner{importance: importance, similarity: similarity, cfg: cfg}
}

// Prune compresses prompt to ceil(keep_ratio * words) words, or as close as
// the similarity floor allows. obs may be nil.
func (p *Pruner) Prune(ctx context.Context, prompt string, cfg Config, obs Observer) (*PruneResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Errorf(StagePrune, ErrEmptyInput, nil, "prompt is blank")
	}
	if err := cfg.ValidateForPrune(StagePrune); err != nil {
		return nil, err
	}
	return p.prune(ctx, StagePrune, prompt, cfg, obs)
}

// prune runs the phrase loop at keep_ratio. Errors carry stage.
func (p *Pruner) prune(ctx context.Context, stage Stage, prompt string, cfg Config, obs Observer) (*PruneResult, error) {
	snap := NewSnapshot(prompt)
	st := &pruneState{
		stage:    stage,
		original: prompt,
		snap:     snap,
		target:   TargetWords(cfg.KeepRatio, snap.WordCount()),
		rejected: make(map[string]bool),
		obs:      obs,
	}
	if err := p.phrasePass(ctx, st, cfg.MaxPhraseLen, cfg.SimThreshold); err != nil {
		return nil, err
	}
	return st.result(), nil
}

// =============================================================================
// LOOP STATE
// =============================================================================

// pruneState is the mutable state of one compression run. The snapshot
// itself is immutable; committing a step swaps in a new one.
type pruneState struct {
	stage     Stage
	original  string
	snap      *Snapshot
	surprisal []float64
	target    int
	rejected  map[string]bool
	log       []IterationLogEntry
	checks    int
	obs       Observer
}

func (st *pruneState) result() *PruneResult {
	entries := st.log
	if entries == nil {
		entries = []IterationLogEntry{}
	}
	return &PruneResult{
		Compressed: st.snap.Render(),
		Log:        entries,
		WordCount:  st.snap.WordCount(),
		Target:     st.target,
		Reached:    st.snap.WordCount() <= st.target,
		Rejected:   len(st.rejected),
		Checks:     st.checks,
		snapshot:   st.snap,
	}
}

// score refreshes per-token surprisal. The first call must succeed; later
// failures keep the last known values.
func (p *Pruner) score(ctx context.Context, st *pruneState) error {
	s, err := scoreLive(ctx, p.importance, st.snap, st.surprisal)
	if err == nil {
		st.surprisal = s
		return nil
	}
	if st.surprisal == nil {
		return Errorf(st.stage, ErrScoringUnavailable, err, "importance scorer failed")
	}
	if ctx.Err() != nil {
		return Errorf(st.stage, nil, ctx.Err(), "canceled")
	}
	log.Warn().Err(err).Str("stage", string(st.stage)).Msg("rescoring failed, reusing previous surprisal")
	return nil
}

// budgetLeft reports whether another similarity call is allowed.
func (p *Pruner) budgetLeft(st *pruneState) bool {
	return p.cfg.MaxSimilarityChecks <= 0 || st.checks < p.cfg.MaxSimilarityChecks
}

// try checks a tentative removal against the original and commits it when
// similar enough. It reports whether the step was committed.
func (p *Pruner) try(ctx context.Context, st *pruneState, c PhraseCandidate, threshold float64) (bool, error) {
	key := candidateKey(c.Indices)
	tentative := st.snap.Without(c.Indices)

	st.checks++
	sim, err := p.similarity.Similarity(ctx, st.original, tentative.Render())
	if err != nil {
		if ctx.Err() != nil {
			return false, Errorf(st.stage, nil, ctx.Err(), "canceled")
		}
		log.Debug().Err(err).Str("phrase", c.Phrase).Msg("similarity failed, candidate ineligible")
		st.rejected[key] = true
		return false, nil
	}
	if sim < threshold {
		st.rejected[key] = true
		return false, nil
	}

	st.snap = tentative
	entry := IterationLogEntry{
		Iter:             len(st.log) + 1,
		RemovedPhrase:    c.Phrase,
		CurrentWordCount: tentative.WordCount(),
		Norm:             c.Norm,
		Similarity:       sim,
	}
	st.log = append(st.log, entry)
	if st.obs != nil {
		st.obs(entry)
	}
	return true, nil
}

// phrasePass is the greedy phrase loop shared by Prune and Hybrid stage 1.
func (p *Pruner) phrasePass(ctx context.Context, st *pruneState, maxPhraseLen int, threshold float64) error {
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

		cands := candidates(st.snap, st.surprisal, maxPhraseLen, st.snap.WordCount()-st.target)
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
