// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - RunEvent:      Every prune/hybrid run, with its full iteration log
//   - RequestEvent:  Failed HTTP requests, to the failed request log
//
// Events are appended to files immediately after each event for real-time logging.
package monitoring

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config        TelemetryConfig
	runLogPath    string
	failedLogPath string
	runCount      int
	failedCount   int
	mu            sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if cfg.Enabled && cfg.LogPath != "" {
		if err := touch(cfg.LogPath); err != nil {
			return nil, err
		}
		t.runLogPath = cfg.LogPath
	}
	// The failed request log is independent of run telemetry.
	if cfg.FailedRequestLogPath != "" {
		if err := touch(cfg.FailedRequestLogPath); err != nil {
			return nil, err
		}
		t.failedLogPath = cfg.FailedRequestLogPath
	}
	return t, nil
}

// touch ensures the directory exists and creates an empty file if needed.
func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordRun records a compression run.
func (t *Tracker) RecordRun(event *RunEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("run_id", event.RunID).
			Str("operation", string(event.Operation)).
			Int("original_words", event.OriginalWords).
			Int("final_words", event.FinalWords).
			Int("iterations", len(event.Log)).
			Bool("reached", event.Reached).
			Msg("telemetry")
	}

	if t.runLogPath != "" {
		if err := appendJSONL(t.runLogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.runLogPath).Msg("telemetry: failed to write run event")
		} else {
			t.runCount++
		}
	}
}

// RecordFailedRequest appends a failed request to the failed request log.
func (t *Tracker) RecordFailedRequest(event *RequestEvent) {
	if t == nil || t.failedLogPath == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.failedLogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.failedLogPath).Msg("telemetry: failed to write request event")
	} else {
		t.failedCount++
	}
}

// ReadRunEvents loads every run event from a telemetry file, in order.
func ReadRunEvents(path string) ([]RunEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []RunEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev RunEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runLogPath != "" && t.runCount > 0 {
		log.Info().
			Str("path", t.runLogPath).
			Int("events", t.runCount).
			Msg("telemetry: session complete")
	}
	if t.failedCount > 0 {
		log.Info().
			Str("path", t.failedLogPath).
			Int("events", t.failedCount).
			Msg("telemetry: failed requests recorded")
	}
	return nil
}
