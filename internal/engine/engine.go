// Package engine is the request API of the compression service.
//
// DESIGN: Engine wires the compression core to its collaborators:
//   - compression.Analyzer / compression.Pruner do the work
//   - store.Store keeps runs so prune, hybrid and generate can chain
//   - Generator reaches the downstream model
//   - monitoring records metrics, telemetry and alerts
//
// FLOW (prune / hybrid):
//  1. Resolve the prompt (inline, or from the run when run_id is set)
//  2. Validate the config, no defaults
//  3. Compress with no store lock held
//  4. Publish the result on the run in one write
//
// A failed call never publishes anything, so stored runs stay intact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/monitoring"
	"github.com/compresr/prompt-pruner/internal/store"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// Options configures an Engine.
type Options struct {
	Analyzer compression.AnalyzerConfig
	Pruner   compression.PrunerConfig
	// RecordContent puts full prompt text into run telemetry.
	RecordContent bool
}

// Deps are the collaborators of an Engine. Importance, Similarity, Store and
// Counter are required; Generator is required only by Generate and Compare.
// Metrics, Tracker and Alerts may be nil.
type Deps struct {
	Importance compression.ImportanceScorer
	Similarity compression.SimilarityScorer
	Generator  Generator
	Store      store.Store
	Counter    *tokenizer.Counter
	Metrics    *monitoring.Metrics
	Tracker    *monitoring.Tracker
	Alerts     *monitoring.AlertManager
}

// Engine serves analyze, prune, hybrid, sections, generate, validate and compare.
type Engine struct {
	opts       Options
	analyzer   *compression.Analyzer
	pruner     *compression.Pruner
	similarity compression.SimilarityScorer
	generator  Generator
	store      store.Store
	counter    *tokenizer.Counter
	metrics    *monitoring.Metrics
	tracker    *monitoring.Tracker
	alerts     *monitoring.AlertManager
}

// New creates an Engine.
func New(opts Options, deps Deps) (*Engine, error) {
	switch {
	case deps.Importance == nil:
		return nil, fmt.Errorf("engine: importance scorer is required")
	case deps.Similarity == nil:
		return nil, fmt.Errorf("engine: similarity scorer is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("engine: store is required")
	case deps.Counter == nil:
		return nil, fmt.Errorf("engine: token counter is required")
	}
	return &Engine{
		opts:       opts,
		analyzer:   compression.NewAnalyzer(deps.Importance, opts.Analyzer),
		pruner:     compression.NewPruner(deps.Importance, deps.Similarity, opts.Pruner),
		similarity: deps.Similarity,
		generator:  deps.Generator,
		store:      deps.Store,
		counter:    deps.Counter,
		metrics:    deps.Metrics,
		tracker:    deps.Tracker,
		alerts:     deps.Alerts,
	}, nil
}

// Store returns the run store.
func (e *Engine) Store() store.Store { return e.store }

// =============================================================================
// ANALYZE
// =============================================================================

// Analyze ranks the phrase candidates of a prompt.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (resp *AnalyzeResponse, err error) {
	defer e.observe(ctx, monitoring.OpAnalyze, time.Now(), &err, nil)

	a, err := e.analyzer.Analyze(ctx, req.Prompt, req.MaxPhraseLen)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResponse{Analysis: *a, ModelTokenCount: e.counter.Count(req.Prompt)}, nil
}

// =============================================================================
// PRUNE
// =============================================================================

// Prune compresses a prompt by removing phrases and records the result on a run.
func (e *Engine) Prune(ctx context.Context, req PruneRequest) (*PruneResponse, error) {
	return e.StreamPrune(ctx, req, nil)
}

// StreamPrune is Prune with obs called after every committed iteration.
func (e *Engine) StreamPrune(ctx context.Context, req PruneRequest, obs compression.Observer) (resp *PruneResponse, err error) {
	start := time.Now()
	reached := true
	defer e.observe(ctx, monitoring.OpPrune, start, &err, &reached)

	cfg, err := pruneConfig(req)
	if err != nil {
		return nil, err
	}
	prompt, err := e.resolvePrompt(ctx, compression.StagePrune, req.Prompt, req.RunID)
	if err != nil {
		return nil, err
	}

	res, err := e.pruner.Prune(ctx, prompt, cfg, obs)
	if err != nil {
		return nil, err
	}

	runID, err := e.ensureRun(ctx, compression.StagePrune, req.RunID, prompt)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutCompressed(ctx, runID, res.Compressed, res.Log, cfg); err != nil {
		return nil, withStage(compression.StagePrune, err)
	}

	original := res.Snapshot().OriginalWordCount()
	reached = res.Reached
	e.finishRun(ctx, monitoring.OpPrune, start, runID, cfg, prompt, res.Compressed, runStats{
		original: original,
		final:    res.WordCount,
		target:   res.Target,
		reached:  res.Reached,
		rejected: res.Rejected,
		checks:   res.Checks,
		log:      res.Log,
	})

	return &PruneResponse{
		RunID:             runID,
		Compressed:        res.Compressed,
		Log:               res.Log,
		OriginalWordCount: original,
		WordCount:         res.WordCount,
		Target:            res.Target,
		Reached:           res.Reached,
		Rejected:          res.Rejected,
	}, nil
}

func pruneConfig(req PruneRequest) (compression.Config, error) {
	var missing []string
	if req.KeepRatio == nil {
		missing = append(missing, "keep_ratio")
	}
	if req.MaxPhraseLen == nil {
		missing = append(missing, "max_phrase_len")
	}
	if req.SimThreshold == nil {
		missing = append(missing, "sim_threshold")
	}
	if len(missing) > 0 {
		return compression.Config{}, compression.Errorf(compression.StagePrune, compression.ErrInvalidConfig, nil,
			"missing %s", strings.Join(missing, ", "))
	}
	return compression.Config{
		KeepRatio:    *req.KeepRatio,
		MaxPhraseLen: *req.MaxPhraseLen,
		SimThreshold: *req.SimThreshold,
	}, nil
}

// =============================================================================
// HYBRID
// =============================================================================

// Hybrid compresses a prompt with phrase then word pruning and records the
// result on a run.
func (e *Engine) Hybrid(ctx context.Context, req HybridRequest) (resp *HybridResponse, err error) {
	start := time.Now()
	reached := true
	defer e.observe(ctx, monitoring.OpHybrid, start, &err, &reached)

	var run *store.Run
	prompt := req.Prompt
	if req.RunID != "" {
		if run, err = e.store.Get(ctx, req.RunID); err != nil {
			return nil, withStage(compression.StageHybrid, err)
		}
		if err := checkSamePrompt(compression.StageHybrid, prompt, run); err != nil {
			return nil, err
		}
		prompt = run.OriginalPrompt
	}

	cfg, err := hybridConfig(req, run)
	if err != nil {
		return nil, err
	}

	res, err := e.pruner.Hybrid(ctx, prompt, cfg, nil)
	if err != nil {
		return nil, err
	}

	runID, err := e.ensureRun(ctx, compression.StageHybrid, req.RunID, prompt)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutHybrid(ctx, runID, res.Hybrid, res.Log); err != nil {
		return nil, withStage(compression.StageHybrid, err)
	}

	original := tokenizer.WordCount(prompt)
	reached = res.Reached
	e.finishRun(ctx, monitoring.OpHybrid, start, runID, cfg, prompt, res.Hybrid, runStats{
		original: original,
		final:    res.WordCount,
		target:   res.Target,
		reached:  res.Reached,
		rejected: res.Rejected,
		checks:   res.Checks,
		log:      res.Log,
	})

	return &HybridResponse{
		RunID:             runID,
		Hybrid:            res.Hybrid,
		Log:               res.Log,
		OriginalWordCount: original,
		PhraseWordCount:   res.PhraseWordCount,
		WordCount:         res.WordCount,
		Target:            res.Target,
		Reached:           res.Reached,
		Rejected:          res.Rejected,
		PruneFallback:     res.PruneFallback,
	}, nil
}

// hybridConfig fills keep_ratio and max_phrase_len from the run's prune when
// the request leaves them out.
func hybridConfig(req HybridRequest, run *store.Run) (compression.Config, error) {
	var recorded compression.Config
	if run != nil && run.Config != nil {
		recorded = *run.Config
	}

	var missing []string
	cfg := compression.Config{
		KeepRatio:    recorded.KeepRatio,
		MaxPhraseLen: recorded.MaxPhraseLen,
	}
	if req.KeepRatio != nil {
		cfg.KeepRatio = *req.KeepRatio
	} else if recorded.KeepRatio == 0 {
		missing = append(missing, "keep_ratio")
	}
	if req.MaxPhraseLen != nil {
		cfg.MaxPhraseLen = *req.MaxPhraseLen
	} else if recorded.MaxPhraseLen == 0 {
		missing = append(missing, "max_phrase_len")
	}
	if req.SimThreshold != nil {
		cfg.SimThreshold = *req.SimThreshold
	} else {
		missing = append(missing, "sim_threshold")
	}
	if req.KeepRatioPhrases != nil {
		cfg.KeepRatioPhrases = *req.KeepRatioPhrases
	} else {
		missing = append(missing, "keep_ratio_phrases")
	}
	if len(missing) > 0 {
		return compression.Config{}, compression.Errorf(compression.StageHybrid, compression.ErrInvalidConfig, nil,
			"missing %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// =============================================================================
// GENERATE / VALIDATE
// =============================================================================

// Generate sends the selected prompt to the generator.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (resp *GenerateResponse, err error) {
	defer e.observe(ctx, monitoring.OpGenerate, time.Now(), &err, nil)

	if e.generator == nil {
		return nil, compression.Errorf(compression.StageGenerate, compression.ErrGenerationUnavailable, nil, "no generator configured")
	}

	prompt := req.Prompt
	var used *Variant
	if req.RunID != "" {
		run, err := e.store.Get(ctx, req.RunID)
		if err != nil {
			return nil, withStage(compression.StageGenerate, err)
		}
		text, v, err := req.Which.Resolve(run)
		if err != nil {
			return nil, err
		}
		prompt, used = text, &v
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, compression.Errorf(compression.StageGenerate, compression.ErrEmptyInput, nil, "either run_id or prompt is required")
	}

	text, err := e.generate(ctx, req.Which, req.Model, prompt)
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Text: text, Which: req.Which, Used: used, Model: req.Model}, nil
}

// checkModel rejects a model override the generator cannot honour.
func (e *Engine) checkModel(model string) error {
	if model == "" {
		return nil
	}
	if _, ok := e.generator.(ModelGenerator); !ok {
		return compression.Errorf(compression.StageGenerate, compression.ErrInvalidConfig, nil, "generator does not support a model override (model %q)", model)
	}
	return nil
}

func (e *Engine) generate(ctx context.Context, which Variant, model, prompt string) (string, error) {
	if err := e.checkModel(model); err != nil {
		return "", err
	}

	var text string
	var err error
	if mg, ok := e.generator.(ModelGenerator); ok && model != "" {
		text, err = mg.GenerateWithModel(ctx, model, prompt)
	} else {
		text, err = e.generator.Generate(ctx, prompt)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", compression.Errorf(compression.StageGenerate, nil, ctx.Err(), "generation canceled")
		}
		if e.alerts != nil {
			e.alerts.FlagGenerationError(monitoring.RequestIDFromContext(ctx), which.String(), err)
		}
		return "", compression.Errorf(compression.StageGenerate, compression.ErrGenerationUnavailable, err, "generating %s completion", which)
	}
	return text, nil
}

// Validate measures the similarity of two texts.
func (e *Engine) Validate(ctx context.Context, req ValidateRequest) (resp *ValidateResponse, err error) {
	defer e.observe(ctx, monitoring.OpValidate, time.Now(), &err, nil)

	if strings.TrimSpace(req.A) == "" || strings.TrimSpace(req.B) == "" {
		return nil, compression.Errorf(compression.StageValidate, compression.ErrEmptyInput, nil, "both a and b are required")
	}
	sim, err := e.similarity.Similarity(ctx, req.A, req.B)
	if err != nil {
		return nil, compression.Errorf(compression.StageValidate, compression.ErrScoringUnavailable, err, "similarity scorer failed")
	}
	return &ValidateResponse{
		Similarity: sim,
		TokensA:    e.counter.Count(req.A),
		TokensB:    e.counter.Count(req.B),
	}, nil
}

// =============================================================================
// RUNS
// =============================================================================

// GetRun returns a stored run.
func (e *Engine) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	return e.store.Get(ctx, runID)
}

// DeleteRun evicts a stored run.
func (e *Engine) DeleteRun(ctx context.Context, runID string) error {
	return e.store.Delete(ctx, runID)
}

// resolvePrompt returns the inline prompt, or the run's original prompt when
// runID is set.
func (e *Engine) resolvePrompt(ctx context.Context, stage compression.Stage, prompt, runID string) (string, error) {
	if runID == "" {
		return prompt, nil
	}
	run, err := e.store.Get(ctx, runID)
	if err != nil {
		return "", withStage(stage, err)
	}
	if err := checkSamePrompt(stage, prompt, run); err != nil {
		return "", err
	}
	return run.OriginalPrompt, nil
}

func checkSamePrompt(stage compression.Stage, prompt string, run *store.Run) error {
	if prompt != "" && prompt != run.OriginalPrompt {
		return compression.Errorf(stage, compression.ErrInvalidConfig, nil,
			"prompt differs from the original prompt of run %s", run.RunID)
	}
	return nil
}

// ensureRun returns runID, creating a fresh run for prompt when it is empty.
func (e *Engine) ensureRun(ctx context.Context, stage compression.Stage, runID, prompt string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	run, err := e.store.CreateOrGet(ctx, "", prompt)
	if err != nil {
		return "", withStage(stage, err)
	}
	return run.RunID, nil
}

// withStage re-tags a store error with the calling stage, keeping its kind.
func withStage(stage compression.Stage, err error) error {
	var ce *compression.Error
	if errors.As(err, &ce) && ce.Stage == compression.StageStore {
		return &compression.Error{Stage: stage, Err: ce.Err, Message: ce.Message, Cause: ce.Cause}
	}
	return err
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

type runStats struct {
	original, final, target int
	reached                 bool
	rejected, checks        int
	log                     []compression.IterationLogEntry
}

func (e *Engine) finishRun(ctx context.Context, op monitoring.Operation, start time.Time, runID string, cfg compression.Config, original, compressed string, st runStats) {
	requestID := monitoring.RequestIDFromContext(ctx)

	e.metrics.RecordRun(op, len(st.log), st.rejected, st.original-st.final)
	if !st.reached && e.alerts != nil {
		e.alerts.FlagBestEffort(requestID, runID, op, st.final, st.target)
	}

	log.Debug().
		Str("request_id", requestID).
		Str("run_id", runID).
		Str("operation", string(op)).
		Int("original_words", st.original).
		Int("final_words", st.final).
		Int("iterations", len(st.log)).
		Int("rejected", st.rejected).
		Bool("reached", st.reached).
		Msg("run complete")

	if e.tracker == nil {
		return
	}
	ratio := 1.0
	if st.original > 0 {
		ratio = float64(st.final) / float64(st.original)
	}
	ev := &monitoring.RunEvent{
		RunID:            runID,
		RequestID:        requestID,
		Timestamp:        start.UTC(),
		Operation:        op,
		Config:           cfg,
		OriginalWords:    st.original,
		FinalWords:       st.final,
		TargetWords:      st.target,
		Reached:          st.reached,
		Rejected:         st.rejected,
		SimilarityChecks: st.checks,
		CompressionRatio: ratio,
		OriginalTokens:   e.counter.Count(original),
		CompressedTokens: e.counter.Count(compressed),
		Log:              st.log,
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	if e.opts.RecordContent {
		ev.OriginalContent = original
		ev.CompressedContent = compressed
	}
	e.tracker.RecordRun(ev)
}

// observe records metrics and alerts for one operation. reached may be nil
// for operations without a word target.
func (e *Engine) observe(ctx context.Context, op monitoring.Operation, start time.Time, errp *error, reached *bool) {
	d := time.Since(start)
	requestID := monitoring.RequestIDFromContext(ctx)

	outcome := "ok"
	if err := *errp; err != nil {
		outcome = "error"
		stage := string(compression.StageOf(err))
		if stage == "" {
			stage = string(op)
		}
		e.metrics.RecordError(stage, ErrorKind(err))
		if errors.Is(err, compression.ErrScoringUnavailable) && e.alerts != nil {
			e.alerts.FlagScoringFailure(requestID, op, err)
		}
	} else if reached != nil && !*reached {
		outcome = "best_effort"
	}
	e.metrics.RecordOperation(op, outcome, d)
	if e.alerts != nil {
		e.alerts.FlagHighLatency(requestID, op, d)
	}
}

// ErrorKind names the sentinel err carries, for metrics and responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, compression.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, compression.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, compression.ErrScoringUnavailable):
		return "scoring_unavailable"
	case errors.Is(err, compression.ErrRunNotFound):
		return "run_not_found"
	case errors.Is(err, compression.ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}
