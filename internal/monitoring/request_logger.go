// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:   Request received from client
//   - LogResponse:   Response sent to client
//   - LogOperation:  Engine operation outcome (words, iterations, run id)
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   int(max(r.ContentLength, 0)),
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	BodySize   int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Int("body_size", info.BodySize).
		Dur("latency", info.Latency).
		Msg("response")
}

// OperationInfo contains engine operation information.
type OperationInfo struct {
	RequestID     string
	Operation     Operation
	RunID         string
	OriginalWords int
	FinalWords    int
	Iterations    int
	Reached       bool
	Duration      time.Duration
}

// LogOperation logs an engine operation.
func (rl *RequestLogger) LogOperation(info *OperationInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("operation", string(info.Operation)).
		Dur("duration", info.Duration)
	if info.RunID != "" {
		event = event.
			Str("run_id", info.RunID).
			Int("original_words", info.OriginalWords).
			Int("final_words", info.FinalWords).
			Int("iterations", info.Iterations).
			Bool("reached", info.Reached)
	}
	event.Msg("operation")
}
