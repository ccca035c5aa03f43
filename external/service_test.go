package external_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/prompt-pruner/external"
	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

func newService(t *testing.T, url, endpoint string, retries int) *external.Service {
	t.Helper()
	svc, err := external.NewService("test", external.ServiceConfig{
		BaseURL:    url,
		Endpoint:   endpoint,
		APIKey:     "secret",
		Model:      "scorer-1",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, nil)
	require.NoError(t, err)
	return svc
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	out, err := newService(t, srv.URL, "/x", 2).Post(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestService_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newService(t, srv.URL, "/x", 3).Post(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewService_RequiresBaseURL(t *testing.T) {
	_, err := external.NewService("scorer", external.ServiceConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

// =============================================================================
// SURPRISAL
// =============================================================================

func TestSurprisalClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/surprisal", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req struct {
			Model  string   `json:"model"`
			Tokens []string `json:"tokens"`
		}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "scorer-1", req.Model)
		assert.Equal(t, []string{"Hello", ",", "world"}, req.Tokens)
		_, _ = w.Write([]byte(`{"surprisal":[1.5,0,7.25]}`))
	}))
	defer srv.Close()

	client := external.NewSurprisalClient(newService(t, srv.URL, "/v1/surprisal", 0))
	vals, err := client.Surprisal(context.Background(), tokenizer.Tokenize("Hello, world"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 0, 7.25}, vals)
}

func TestSurprisalClient_LengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"surprisal":[1]}`))
	}))
	defer srv.Close()

	client := external.NewSurprisalClient(newService(t, srv.URL, "/v1/surprisal", 0))
	_, err := client.Surprisal(context.Background(), tokenizer.Tokenize("two words"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 values for 2 tokens")
}

// =============================================================================
// EMBEDDINGS
// =============================================================================

func TestEmbeddingClient_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	client := external.NewEmbeddingClient(newService(t, srv.URL, "/v1/embeddings", 0))
	vecs, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}

func TestEmbeddingClient_MissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	client := external.NewEmbeddingClient(newService(t, srv.URL, "/v1/embeddings", 0))
	_, err := client.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}
