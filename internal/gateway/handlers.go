package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/monitoring"
)

// =============================================================================
// ENDPOINTS
// =============================================================================

func (g *Gateway) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.AnalyzeRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	resp, err := g.engine.Analyze(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleSections(w http.ResponseWriter, r *http.Request) {
	var req engine.SectionsRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	resp, err := g.engine.Sections(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req engine.PruneRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := g.engine.Prune(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.logRun(r, monitoring.OpPrune, start, resp.RunID, resp.OriginalWordCount, resp.WordCount, len(resp.Log), resp.Reached)
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleHybrid(w http.ResponseWriter, r *http.Request) {
	var req engine.HybridRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := g.engine.Hybrid(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.logRun(r, monitoring.OpHybrid, start, resp.RunID, resp.OriginalWordCount, resp.WordCount, len(resp.Log), resp.Reached)
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req engine.GenerateRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	resp, err := g.engine.Generate(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req engine.ValidateRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	resp, err := g.engine.Validate(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req engine.CompareRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	resp, err := g.engine.Compare(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := g.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (g *Gateway) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := g.engine.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Store:      g.config.Store.Type,
		Importance: g.config.Scoring.Importance.Strategy,
		Similarity: g.config.Scoring.Similarity.Strategy,
		Generation: g.config.Generation.Strategy,
	})
}

func (g *Gateway) logRun(r *http.Request, op monitoring.Operation, start time.Time, runID string, original, final, iterations int, reached bool) {
	g.requestLogger.LogOperation(&monitoring.OperationInfo{
		RequestID:     monitoring.RequestIDFromContext(r.Context()),
		Operation:     op,
		RunID:         runID,
		OriginalWords: original,
		FinalWords:    final,
		Iterations:    iterations,
		Reached:       reached,
		Duration:      time.Since(start),
	})
}

// =============================================================================
// ENCODING
// =============================================================================

// decodeJSON reads a bounded JSON body into v. On failure it writes the
// error response and returns false.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		g.writeRequestError(w, r, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return false
	}
	if len(body) > MaxRequestBodySize {
		g.writeRequestError(w, r, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		// A bad "which" surfaces its own stage error from UnmarshalText.
		if compression.StageOf(err) != "" {
			g.writeError(w, r, err)
			return false
		}
		g.writeRequestError(w, r, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, compression.ErrEmptyInput), errors.Is(err, compression.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, compression.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, compression.ErrScoringUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, compression.ErrGenerationUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError writes the {error, stage, kind} body for an engine error.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	stage := string(compression.StageOf(err))
	if stage == "" {
		stage = StageRequest
	}
	kind := engine.ErrorKind(err)

	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", monitoring.RequestIDFromContext(r.Context())).
			Str("stage", stage).
			Msg("request failed")
	} else {
		g.alerts.FlagInvalidRequest(monitoring.RequestIDFromContext(r.Context()), err.Error())
	}

	recordFailure(w, err.Error(), stage)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Stage: stage, Kind: kind})
}

// writeRequestError rejects a request before it reaches the engine.
func (g *Gateway) writeRequestError(w http.ResponseWriter, r *http.Request, msg string, status int) {
	g.alerts.FlagInvalidRequest(monitoring.RequestIDFromContext(r.Context()), msg)
	recordFailure(w, msg, StageRequest)
	writeJSON(w, status, ErrorResponse{Error: msg, Stage: StageRequest, Kind: "invalid_request"})
}
