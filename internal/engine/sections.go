package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/monitoring"
)

// summaryInstruction is sent ahead of each section body.
const summaryInstruction = "Summarize the following text in at most %d words. Keep every instruction and constraint. Reply with the summary only.\n\n%s"

// Sections compresses a prompt section by section. Nothing is stored.
func (e *Engine) Sections(ctx context.Context, req SectionsRequest) (resp *SectionsResponse, err error) {
	defer e.observe(ctx, monitoring.OpSections, time.Now(), &err, nil)

	cfg, err := sectionConfig(req)
	if err != nil {
		return nil, err
	}

	var sum compression.Summarizer
	if req.Summarize {
		if e.generator == nil {
			return nil, compression.Errorf(compression.StageSections, compression.ErrGenerationUnavailable, nil, "summarize needs a generator")
		}
		if err := e.checkModel(req.Model); err != nil {
			return nil, compression.Errorf(compression.StageSections, compression.ErrInvalidConfig, err, "model")
		}
		sum = &generatorSummarizer{engine: e, model: req.Model}
	}

	res, err := e.pruner.CompressSections(ctx, req.Prompt, cfg, sum)
	if err != nil {
		return nil, err
	}
	return &SectionsResponse{
		SectionResult:  *res,
		OriginalTokens: e.counter.Count(req.Prompt),
		Tokens:         e.counter.Count(res.Text),
	}, nil
}

func sectionConfig(req SectionsRequest) (compression.SectionConfig, error) {
	var missing []string
	cfg := compression.SectionConfig{Headers: req.Headers}
	if req.KeepRatioPhrases != nil {
		cfg.KeepRatioPhrases = *req.KeepRatioPhrases
	} else {
		missing = append(missing, "keep_ratio_phrases")
	}
	if req.MaxPhraseLen != nil {
		cfg.MaxPhraseLen = *req.MaxPhraseLen
	} else {
		missing = append(missing, "max_phrase_len")
	}
	if req.SimThreshold != nil {
		cfg.SimThreshold = *req.SimThreshold
	} else {
		missing = append(missing, "sim_threshold")
	}
	if len(missing) > 0 {
		return compression.SectionConfig{}, compression.Errorf(compression.StageSections, compression.ErrInvalidConfig, nil,
			"missing %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// generatorSummarizer summarizes through the engine's generator.
type generatorSummarizer struct {
	engine *Engine
	model  string
}

func (s *generatorSummarizer) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	return s.engine.generate(ctx, Original, s.model, fmt.Sprintf(summaryInstruction, maxWords, text))
}
