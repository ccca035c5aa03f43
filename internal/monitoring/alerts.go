// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:      Warn when an operation exceeds the threshold
//   - FlagScoringFailure:   Error when a scorer is unavailable
//   - FlagGenerationError:  Warn when the downstream model fails
//   - FlagBestEffort:       Info when a run stopped short of its target
//   - FlagPanic:            Error on recovered panics
package monitoring

import (
	"time"
)

// DefaultHighLatencyThreshold applies when AlertConfig leaves it unset.
const DefaultHighLatencyThreshold = 5 * time.Second

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = DefaultHighLatencyThreshold
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when an operation exceeds the threshold.
func (am *AlertManager) FlagHighLatency(requestID string, op Operation, latency time.Duration) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Str("operation", string(op)).
		Dur("latency", latency).
		Dur("threshold", am.highLatencyThreshold).
		Msg("high_latency")
}

// FlagScoringFailure logs an unavailable importance or similarity scorer.
func (am *AlertManager) FlagScoringFailure(requestID string, op Operation, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("operation", string(op)).
		Err(err).
		Msg("scoring_unavailable")
}

// FlagGenerationError logs a failed downstream completion.
func (am *AlertManager) FlagGenerationError(requestID, variant string, err error) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("variant", variant).
		Err(err).
		Msg("generation_failed")
}

// FlagBestEffort logs a run that stopped above its word target.
func (am *AlertManager) FlagBestEffort(requestID, runID string, op Operation, words, target int) {
	am.logger.Info().
		Str("request_id", requestID).
		Str("run_id", runID).
		Str("operation", string(op)).
		Int("words", words).
		Int("target", target).
		Msg("target_not_reached")
}

// FlagInvalidRequest logs an invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs a recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue any, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
