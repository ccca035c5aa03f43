// Monitoring configuration - logging, metrics and telemetry settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry is a replayable record of every
// compression run.
package config

import (
	"fmt"
	"time"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto (console on a TTY)
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Record one JSONL line per compression run
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry events
	RecordContent    bool   `yaml:"record_content"`    // Include prompt text in run events

	// Failed request log
	FailedRequestLogPath string `yaml:"failed_request_log_path"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"` // Expose /metrics

	// Alerts
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// Validate checks the monitoring section.
func (m MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console", "auto":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json, console or auto)", m.LogFormat)
	}
	if m.TelemetryEnabled && m.TelemetryPath == "" {
		return fmt.Errorf("monitoring.telemetry_path is required when telemetry is enabled")
	}
	return nil
}
