// HTTP middleware for security, logging, and panic recovery.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:     Catch panics, return 500, log stack trace
//  2. loggingMiddleware: Request id, request/response logs, metrics, failed request telemetry
//  3. security:          Security headers, CORS
package gateway

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/monitoring"
)

// responseWriter wraps http.ResponseWriter to capture what was sent.
// Handlers that fail record the error and stage here for telemetry.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int
	errMsg  string
	stage   string
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker so websocket upgrades pass through.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// recordFailure is a no-op for writers not wrapped by loggingMiddleware.
func recordFailure(w http.ResponseWriter, msg, stage string) {
	if rw, ok := w.(*responseWriter); ok {
		rw.errMsg = msg
		rw.stage = stage
	}
}

// loggingMiddleware logs request details and duration using the structured logging system.
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		r = r.WithContext(monitoring.WithRequestIDContext(r.Context(), requestID))

		reqInfo := monitoring.NewRequestInfo(r, requestID)
		g.requestLogger.LogIncoming(reqInfo)

		if g.metrics != nil {
			g.metrics.HTTPRequestsInFlight.Inc()
			defer g.metrics.HTTPRequestsInFlight.Dec()
		}

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		latency := time.Since(start)
		g.requestLogger.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: wrapped.status,
			BodySize:   wrapped.written,
			Latency:    latency,
		})

		// r.Pattern is filled in by the mux; unmatched requests share one label.
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		g.metrics.RecordHTTP(r.Method, pattern, wrapped.status, latency)

		if wrapped.status >= 400 {
			g.tracker.RecordFailedRequest(&monitoring.RequestEvent{
				RequestID:        requestID,
				Timestamp:        start,
				Method:           r.Method,
				Path:             r.URL.Path,
				ClientIP:         g.getClientIP(r),
				RequestBodySize:  reqInfo.BodySize,
				ResponseBodySize: wrapped.written,
				StatusCode:       wrapped.status,
				Error:            wrapped.errMsg,
				Stage:            wrapped.stage,
				TotalLatencyMs:   latency.Milliseconds(),
			})
		}

		log.Info().
			Str("id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", latency).
			Msg("request")
	})
}

// panicRecovery middleware recovers from panics and returns a 500 error.
func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				// The request context here predates loggingMiddleware; the id is on the response.
				requestID := w.Header().Get(HeaderRequestID)

				g.alerts.FlagPanic(requestID, err, stack)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error: "internal error",
					Stage: StageRequest,
					Kind:  "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// security middleware adds security headers and handles CORS.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		origin := r.Header.Get("Origin")
		if origin != "" && isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin permits local development frontends only.
func isAllowedOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// getClientIP extracts the client IP address from the request.
// Trusts X-Forwarded-For and X-Real-IP headers only from localhost.
func (g *Gateway) getClientIP(r *http.Request) string {
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
