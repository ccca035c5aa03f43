// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the engine, gateway and monitoring packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Operation:     Which engine call produced an event
//   - RunEvent:      Replayable record of one prune/hybrid run
//   - RequestEvent:  Telemetry data for each HTTP request
//   - Config types:  TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import (
	"time"

	"github.com/compresr/prompt-pruner/internal/compression"
)

// =============================================================================
// OPERATIONS - Used by metrics and telemetry
// =============================================================================

// Operation names an engine call.
type Operation string

const (
	OpAnalyze  Operation = "analyze"
	OpPrune    Operation = "prune"
	OpHybrid   Operation = "hybrid"
	OpGenerate Operation = "generate"
	OpValidate Operation = "validate"
	OpCompare  Operation = "compare"
	OpSections Operation = "sections"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RunEvent captures one compression run. The log is complete, so the
// run can be replayed step by step from the telemetry file alone.
type RunEvent struct {
	RunID             string                          `json:"run_id"`
	RequestID         string                          `json:"request_id,omitempty"`
	Timestamp         time.Time                       `json:"timestamp"`
	Operation         Operation                       `json:"operation"`
	Config            compression.Config              `json:"config"`
	OriginalWords     int                             `json:"original_words"`
	FinalWords        int                             `json:"final_words"`
	TargetWords       int                             `json:"target_words"`
	Reached           bool                            `json:"reached"`
	Rejected          int                             `json:"rejected"`
	SimilarityChecks  int                             `json:"similarity_checks"`
	CompressionRatio  float64                         `json:"compression_ratio"`
	OriginalTokens    int                             `json:"original_tokens"`
	CompressedTokens  int                             `json:"compressed_tokens"`
	Log               []compression.IterationLogEntry `json:"log"`
	LatencyMs         int64                           `json:"latency_ms"`
	OriginalContent   string                          `json:"original_content,omitempty"`
	CompressedContent string                          `json:"compressed_content,omitempty"`
}

// RequestEvent captures a request through the HTTP surface.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	ClientIP         string    `json:"client_ip"`
	RequestBodySize  int       `json:"request_body_size"`
	ResponseBodySize int       `json:"response_body_size"`
	StatusCode       int       `json:"status_code"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	Stage            string    `json:"stage,omitempty"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled              bool   `yaml:"enabled"`
	LogPath              string `yaml:"log_path"` // run events
	LogToStdout          bool   `yaml:"log_to_stdout"`
	FailedRequestLogPath string `yaml:"failed_request_log_path"` // failed request events
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
