// Package gateway types - wire types that only exist at the HTTP edge.
//
// DESIGN: Engine request/response types are served as-is. The types here
// cover what the engine does not model:
//   - ErrorResponse: {error, stage, kind} body of every failed request
//   - HealthResponse
//   - StreamFrame:   one websocket message of /api/prune/stream
package gateway

import (
	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/engine"
)

// StageRequest marks errors raised before the engine is reached (bad JSON).
const StageRequest = "request"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
	Kind  string `json:"kind"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	Importance string `json:"importance"`
	Similarity string `json:"similarity"`
	Generation string `json:"generation"`
}

// Stream frame types.
const (
	FrameIteration = "iteration"
	FrameResult    = "result"
	FrameError     = "error"
)

// StreamFrame is one server message on /api/prune/stream. Exactly one of
// Entry, Result and Error is set, matching Type.
type StreamFrame struct {
	Type   string                         `json:"type"`
	Entry  *compression.IterationLogEntry `json:"entry,omitempty"`
	Result *engine.PruneResponse          `json:"result,omitempty"`
	Error  *ErrorResponse                 `json:"error,omitempty"`
}
