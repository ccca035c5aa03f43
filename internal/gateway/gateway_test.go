package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/config"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/gateway"
	"github.com/compresr/prompt-pruner/internal/monitoring"
	"github.com/compresr/prompt-pruner/internal/scoring"
	"github.com/compresr/prompt-pruner/internal/store"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

const foxPrompt = "The quick brown fox jumps over the lazy dog in the quiet green meadow"

type fixture struct {
	gw         *gateway.Gateway
	metrics    *monitoring.Metrics
	failedPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Server:     config.ServerConfig{Port: 18080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Store:      config.StoreConfig{Type: config.StoreMemory},
		Scoring:    config.ScoringConfig{Importance: config.ScorerConfig{Strategy: config.ImportanceLocal}, Similarity: config.ScorerConfig{Strategy: config.SimilarityLexical}},
		Generation: config.GenerationConfig{Strategy: config.GenerationMock},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true},
	}

	failedPath := filepath.Join(t.TempDir(), "failed.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{FailedRequestLogPath: failedPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })

	s := store.NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })

	logger := monitoring.NewWithWriter(io.Discard, zerolog.Disabled)
	metrics := monitoring.NewMetrics()
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{})

	eng, err := engine.New(engine.Options{
		Analyzer: compression.AnalyzerConfig{MaxPhraseLen: 3, MaxCandidates: 20, DisplayOrder: compression.OrderDescending},
	}, engine.Deps{
		Importance: scoring.NewFrequencyScorer(),
		Similarity: scoring.NewLexicalSimilarity(),
		Generator:  scoring.MockGenerator{},
		Store:      s,
		Counter:    tokenizer.NewEstimator(4),
		Metrics:    metrics,
		Alerts:     alerts,
	})
	require.NoError(t, err)

	gw := gateway.New(cfg, eng, gateway.Monitoring{Logger: logger, Metrics: metrics, Tracker: tracker, Alerts: alerts})
	return &fixture{gw: gw, metrics: metrics, failedPath: failedPath}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func pruneBody(prompt string) map[string]any {
	return map[string]any{"prompt": prompt, "keep_ratio": 0.6, "max_phrase_len": 3, "sim_threshold": 0.3}
}

// =============================================================================
// JSON ENDPOINTS
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h := decode[gateway.HealthResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, config.StoreMemory, h.Store)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(gateway.HeaderRequestID))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(gateway.HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(gateway.HeaderRequestID))
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/analyze", map[string]any{"prompt": foxPrompt})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[map[string]any](t, rec)
	assert.Contains(t, resp, "top_phrase_candidates")
	assert.Contains(t, resp, "model_token_count")
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/prune", pruneBody(foxPrompt))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pruned := decode[engine.PruneResponse](t, rec)
	require.NotEmpty(t, pruned.RunID)
	assert.Less(t, pruned.WordCount, pruned.OriginalWordCount)

	rec = f.do(t, http.MethodPost, "/api/hybrid", map[string]any{
		"run_id": pruned.RunID, "sim_threshold": 0.3, "keep_ratio_phrases": 0.8,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hybrid := decode[engine.HybridResponse](t, rec)
	assert.Equal(t, pruned.RunID, hybrid.RunID)

	rec = f.do(t, http.MethodGet, "/api/runs/"+pruned.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[store.Run](t, rec)
	assert.Equal(t, foxPrompt, run.OriginalPrompt)
	require.NotNil(t, run.Compressed)
	assert.Equal(t, pruned.Compressed, *run.Compressed)
	require.NotNil(t, run.Hybrid)

	rec = f.do(t, http.MethodPost, "/api/generate", map[string]any{"which": "pruned", "run_id": pruned.RunID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gen := decode[engine.GenerateResponse](t, rec)
	assert.Equal(t, engine.Pruned, gen.Which)
	assert.Contains(t, gen.Text, "(mock)")

	rec = f.do(t, http.MethodPost, "/api/compare", map[string]any{"run_id": pruned.RunID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cmp := decode[engine.CompareResponse](t, rec)
	assert.Len(t, cmp.Outputs, 3)

	rec = f.do(t, http.MethodDelete, "/api/runs/"+pruned.RunID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/runs/"+pruned.RunID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	e := decode[gateway.ErrorResponse](t, rec)
	assert.Equal(t, "run_not_found", e.Kind)
	assert.Equal(t, "store", e.Stage)
}

func TestSections(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/sections", map[string]any{
		"prompt":             "Intro line.\n\n## Rules\nalpha beta gamma delta epsilon zeta",
		"sim_threshold":      0.5,
		"keep_ratio_phrases": 0.5,
		"max_phrase_len":     2,
		"summarize":          true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[engine.SectionsResponse](t, rec)
	require.Len(t, resp.Sections, 2)
	rules := resp.Sections[1]
	assert.Equal(t, "Rules", rules.Header)
	assert.Equal(t, compression.MethodPruned, rules.Method, "the mock completion is no summary")
	assert.NotEmpty(t, rules.SummaryError)
	assert.Equal(t, 3, rules.Words)
	assert.True(t, strings.HasPrefix(resp.Text, "Intro line.\n\n## Rules\n"), resp.Text)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/validate", map[string]any{"a": "the fox jumps", "b": "the fox jumps"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[engine.ValidateResponse](t, rec)
	assert.InDelta(t, 1.0, resp.Similarity, 1e-9)
	assert.Positive(t, resp.TokensA)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		wantCode  int
		wantKind  string
		wantStage string
	}{
		{"bad json", http.MethodPost, "/api/prune", "{", http.StatusBadRequest, "invalid_request", gateway.StageRequest},
		{"missing knobs", http.MethodPost, "/api/prune", map[string]any{"prompt": foxPrompt}, http.StatusBadRequest, "invalid_config", "prune"},
		{"empty prompt", http.MethodPost, "/api/analyze", map[string]any{"prompt": "  "}, http.StatusBadRequest, "empty_input", "analyze"},
		{"bad which", http.MethodPost, "/api/generate", `{"which":"summary","prompt":"p"}`, http.StatusBadRequest, "invalid_config", "generate"},
		{"empty validate", http.MethodPost, "/api/validate", map[string]any{"a": "x"}, http.StatusBadRequest, "empty_input", "validate"},
		{"missing section knobs", http.MethodPost, "/api/sections", map[string]any{"prompt": "## A\nb c"}, http.StatusBadRequest, "invalid_config", "sections"},
		{"unknown run", http.MethodPost, "/api/hybrid", map[string]any{"run_id": "nope", "sim_threshold": 0.3, "keep_ratio_phrases": 0.8}, http.StatusNotFound, "run_not_found", "hybrid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			e := decode[gateway.ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantStage, e.Stage)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestFailedRequestsAreLogged(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/prune", map[string]any{"prompt": foxPrompt})
	f.do(t, http.MethodGet, "/health", nil)

	data, err := os.ReadFile(f.failedPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var ev monitoring.RequestEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, http.StatusBadRequest, ev.StatusCode)
	assert.Equal(t, "/api/prune", ev.Path)
	assert.Equal(t, "prune", ev.Stage)
	assert.Contains(t, ev.Error, "keep_ratio")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/prune", pruneBody(foxPrompt))
	f.do(t, http.MethodGet, "/no/such/route", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("POST", "POST /api/prune", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.HTTPRequestsInFlight))

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompt_pruner_operations_total")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/prune", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// STREAM
// =============================================================================

func dialStream(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.gw.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/prune/stream", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestPruneStream(t *testing.T) {
	f := newFixture(t)
	conn := dialStream(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, pruneBody(foxPrompt)))

	var iterations []compression.IterationLogEntry
	var result *engine.PruneResponse
	for result == nil {
		var frame gateway.StreamFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		switch frame.Type {
		case gateway.FrameIteration:
			require.NotNil(t, frame.Entry)
			iterations = append(iterations, *frame.Entry)
		case gateway.FrameResult:
			require.NotNil(t, frame.Result)
			result = frame.Result
		default:
			t.Fatalf("unexpected frame %q", frame.Type)
		}
	}
	assert.NotEmpty(t, iterations)
	assert.Equal(t, result.Log, iterations)

	// The server closes after the result.
	var extra gateway.StreamFrame
	err := wsjson.Read(ctx, conn, &extra)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	rec := f.do(t, http.MethodGet, "/api/runs/"+result.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[store.Run](t, rec)
	require.NotNil(t, run.Compressed)
	assert.Equal(t, result.Compressed, *run.Compressed)
}

func TestPruneStream_ErrorFrame(t *testing.T) {
	f := newFixture(t)
	conn := dialStream(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"prompt": foxPrompt}))

	var frame gateway.StreamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, gateway.FrameError, frame.Type)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "invalid_config", frame.Error.Kind)
	assert.Equal(t, "prune", frame.Error.Stage)
}
