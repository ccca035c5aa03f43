// Package gateway serves the compression engine over HTTP.
//
// DESIGN: A single net/http server fronts the engine:
//   - router.go:     route table
//   - handlers.go:   JSON endpoints, error → status mapping
//   - stream.go:     websocket endpoint streaming prune iterations
//   - middleware.go: panic recovery, request logging, security headers
//
// Handlers hold no state of their own; everything lives in the engine and
// its run store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/config"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/monitoring"
)

const (
	// HeaderRequestID carries the request id in and out.
	HeaderRequestID = "X-Request-ID"

	// MaxRequestBodySize bounds JSON request bodies.
	MaxRequestBodySize = 8 << 20

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 15 * time.Second
)

// Monitoring bundles the observability collaborators. Metrics and Tracker may be nil.
type Monitoring struct {
	Logger  *monitoring.Logger
	Metrics *monitoring.Metrics
	Tracker *monitoring.Tracker
	Alerts  *monitoring.AlertManager
}

// Gateway is the HTTP front of the engine.
type Gateway struct {
	config        *config.Config
	engine        *engine.Engine
	metrics       *monitoring.Metrics
	tracker       *monitoring.Tracker
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	server        *http.Server
	handler       http.Handler
}

// New creates a Gateway.
func New(cfg *config.Config, eng *engine.Engine, mon Monitoring) *Gateway {
	logger := mon.Logger
	if logger == nil {
		logger = monitoring.New(monitoring.LoggerConfig{
			Level:  cfg.Monitoring.LogLevel,
			Format: cfg.Monitoring.LogFormat,
			Output: cfg.Monitoring.LogOutput,
		})
	}
	alerts := mon.Alerts
	if alerts == nil {
		alerts = monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold})
	}

	g := &Gateway{
		config:        cfg,
		engine:        eng,
		metrics:       mon.Metrics,
		tracker:       mon.Tracker,
		alerts:        alerts,
		requestLogger: monitoring.NewRequestLogger(logger),
	}
	g.handler = g.panicRecovery(g.loggingMiddleware(g.security(g.routes())))
	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           g.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g
}

// Handler returns the full middleware-wrapped handler.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (g *Gateway) Start() error {
	log.Info().
		Int("port", g.config.Server.Port).
		Str("store", g.config.Store.Type).
		Str("importance", g.config.Scoring.Importance.Strategy).
		Str("similarity", g.config.Scoring.Similarity.Strategy).
		Str("generation", g.config.Generation.Strategy).
		Msg("prompt-pruner listening")

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (g *Gateway) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}
