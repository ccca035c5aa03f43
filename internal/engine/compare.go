package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/monitoring"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

type variantPrompt struct {
	which Variant
	text  string
}

// Compare generates a completion for every prompt the run has (original,
// then pruned and hybrid when present) concurrently, and scores each
// compressed completion against the original's. A similarity failure is
// reported on that output only; a generation failure fails the call.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) (resp *CompareResponse, err error) {
	defer e.observe(ctx, monitoring.OpCompare, time.Now(), &err, nil)

	if e.generator == nil {
		return nil, compression.Errorf(compression.StageGenerate, compression.ErrGenerationUnavailable, nil, "no generator configured")
	}
	if req.RunID == "" {
		return nil, compression.Errorf(compression.StageGenerate, compression.ErrEmptyInput, nil, "run_id is required")
	}
	if err := e.checkModel(req.Model); err != nil {
		return nil, err
	}
	run, err := e.store.Get(ctx, req.RunID)
	if err != nil {
		return nil, withStage(compression.StageGenerate, err)
	}

	prompts := []variantPrompt{{Original, run.OriginalPrompt}}
	if run.Compressed != nil {
		prompts = append(prompts, variantPrompt{Pruned, *run.Compressed})
	}
	if run.Hybrid != nil {
		prompts = append(prompts, variantPrompt{Hybrid, *run.Hybrid})
	}

	outputs := make([]CompareOutput, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prompts {
		g.Go(func() error {
			text, err := e.generate(gctx, p.which, req.Model, p.text)
			if err != nil {
				return err
			}
			outputs[i] = CompareOutput{
				Which:       p.which,
				PromptWords: tokenizer.WordCount(p.text),
				Text:        text,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reference := outputs[0].Text
	g, gctx = errgroup.WithContext(ctx)
	for i := 1; i < len(outputs); i++ {
		g.Go(func() error {
			sim, err := e.similarity.Similarity(gctx, reference, outputs[i].Text)
			if err != nil {
				outputs[i].SimilarityError = compression.Errorf(compression.StageValidate,
					compression.ErrScoringUnavailable, err, "similarity scorer failed").Error()
				return nil
			}
			outputs[i].Similarity = &sim
			return nil
		})
	}
	_ = g.Wait()

	return &CompareResponse{RunID: run.RunID, Outputs: outputs}, nil
}
