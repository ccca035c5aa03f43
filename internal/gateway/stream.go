package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/monitoring"
)

// streamReadTimeout bounds the wait for the client's request frame.
const streamReadTimeout = 30 * time.Second

// handlePruneStream runs one prune over a websocket.
//
// The client sends a single PruneRequest frame. The server answers with one
// "iteration" frame per committed removal, then a "result" or "error" frame,
// then closes. A client that goes away cancels the run; nothing is stored.
func (g *Gateway) handlePruneStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		// Accept has already written the HTTP error.
		recordFailure(w, err.Error(), StageRequest)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	requestID := monitoring.RequestIDFromContext(ctx)

	var req engine.PruneRequest
	readCtx, readCancel := context.WithTimeout(ctx, streamReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	readCancel()
	if err != nil {
		g.alerts.FlagInvalidRequest(requestID, err.Error())
		_ = conn.Close(websocket.StatusUnsupportedData, "expected a prune request frame")
		return
	}

	observe := func(entry compression.IterationLogEntry) {
		if err := wsjson.Write(ctx, conn, StreamFrame{Type: FrameIteration, Entry: &entry}); err != nil {
			log.Debug().Err(err).Str("request_id", requestID).Msg("stream: client gone, canceling run")
			cancel()
		}
	}

	start := time.Now()
	resp, err := g.engine.StreamPrune(ctx, req, observe)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		frame := StreamFrame{Type: FrameError, Error: &ErrorResponse{
			Error: err.Error(),
			Stage: string(compression.StageOf(err)),
			Kind:  engine.ErrorKind(err),
		}}
		_ = wsjson.Write(ctx, conn, frame)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	g.logRun(r, monitoring.OpPrune, start, resp.RunID, resp.OriginalWordCount, resp.WordCount, len(resp.Log), resp.Reached)
	if err := wsjson.Write(ctx, conn, StreamFrame{Type: FrameResult, Result: resp}); err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("stream: failed to send result")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
