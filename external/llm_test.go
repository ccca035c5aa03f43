package external_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/prompt-pruner/external"
)

// captureServer records the last request body and headers and replies with reply.
func captureServer(t *testing.T, reply string, got *[]byte, hdr *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		*got = body
		*hdr = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// PROVIDER DETECTION
// =============================================================================

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"https://api.anthropic.com/v1/messages", "anthropic"},
		{"https://api.openai.com/v1/chat/completions", "openai"},
		{"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent", "gemini"},
		{"https://bedrock-runtime.us-east-1.amazonaws.com/model/x/invoke", "bedrock"},
		{"http://localhost:11434/v1/chat/completions", "openai"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, external.DetectProvider(tt.endpoint), tt.endpoint)
	}
}

// =============================================================================
// REQUEST / RESPONSE ROUND TRIPS
// =============================================================================

func TestCallLLM_OpenAI(t *testing.T) {
	var body []byte
	var hdr http.Header
	srv := captureServer(t, `{"choices":[{"message":{"content":"a poem"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`, &body, &hdr)

	res, err := external.CallLLM(context.Background(), external.CallLLMParams{
		Provider:     "openai",
		Endpoint:     srv.URL,
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini",
		SystemPrompt: "be brief",
		UserPrompt:   "write a poem",
		MaxTokens:    64,
	})
	require.NoError(t, err)

	assert.Equal(t, "a poem", res.Content)
	assert.Equal(t, 12, res.InputTokens)
	assert.Equal(t, 3, res.OutputTokens)
	assert.Equal(t, "Bearer sk-test", hdr.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
	assert.Equal(t, "write a poem", gjson.GetBytes(body, "messages.1.content").String())
	assert.Equal(t, int64(64), gjson.GetBytes(body, "max_completion_tokens").Int())
	assert.False(t, gjson.GetBytes(body, "temperature").Exists())
}

func TestCallLLM_Anthropic(t *testing.T) {
	var body []byte
	var hdr http.Header
	srv := captureServer(t, `{"content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}],"usage":{"input_tokens":5,"output_tokens":2}}`, &body, &hdr)

	res, err := external.CallLLM(context.Background(), external.CallLLMParams{
		Provider:   "anthropic",
		Endpoint:   srv.URL,
		APIKey:     "ak-test",
		Model:      "claude-haiku-4-5",
		UserPrompt: "say hello",
		MaxTokens:  32,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", res.Content)
	assert.Equal(t, "ak-test", hdr.Get("x-api-key"))
	assert.NotEmpty(t, hdr.Get("anthropic-version"))
	assert.Equal(t, "user", gjson.GetBytes(body, "messages.0.role").String())
	assert.False(t, gjson.GetBytes(body, "system").Exists())
	assert.Equal(t, int64(0), gjson.GetBytes(body, "temperature").Int())
}

func TestCallLLM_Gemini(t *testing.T) {
	var body []byte
	var hdr http.Header
	srv := captureServer(t, `{"candidates":[{"content":{"parts":[{"text":"gemini says hi"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":3}}`, &body, &hdr)

	res, err := external.CallLLM(context.Background(), external.CallLLMParams{
		Provider:     "gemini",
		Endpoint:     srv.URL,
		APIKey:       "g-test",
		Model:        "gemini-2.0-flash",
		SystemPrompt: "sys",
		UserPrompt:   "hi",
		MaxTokens:    16,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini says hi", res.Content)
	assert.Equal(t, 4, res.InputTokens)
	assert.Equal(t, "g-test", hdr.Get("x-goog-api-key"))
	assert.Equal(t, "sys", gjson.GetBytes(body, "systemInstruction.parts.0.text").String())
	assert.Equal(t, "hi", gjson.GetBytes(body, "contents.0.parts.0.text").String())
	assert.Equal(t, int64(16), gjson.GetBytes(body, "generationConfig.maxOutputTokens").Int())
}

func TestCallLLM_BedrockIsSigned(t *testing.T) {
	var body []byte
	var hdr http.Header
	srv := captureServer(t, `{"content":[{"type":"text","text":"signed"}]}`, &body, &hdr)

	creds := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	transport := external.NewBedrockSigningTransportWithCredentials(creds, "us-west-2", nil)

	res, err := external.CallLLM(context.Background(), external.CallLLMParams{
		Provider:   "bedrock",
		Endpoint:   srv.URL,
		Model:      "anthropic.claude-3-haiku",
		UserPrompt: "hi",
		MaxTokens:  16,
		HTTPClient: transport.Client(),
	})
	require.NoError(t, err)

	assert.Equal(t, "signed", res.Content)
	assert.True(t, strings.HasPrefix(hdr.Get("Authorization"), "AWS4-HMAC-SHA256"))
	assert.Contains(t, hdr.Get("Authorization"), "us-west-2/bedrock")
	assert.Equal(t, "bedrock-2023-05-31", gjson.GetBytes(body, "anthropic_version").String())
	assert.False(t, gjson.GetBytes(body, "model").Exists())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestCallLLM_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	base := external.CallLLMParams{Provider: "openai", Endpoint: srv.URL, APIKey: "k", Model: "m", UserPrompt: "p", MaxTokens: 8}

	_, err := external.CallLLM(context.Background(), base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	missing := base
	missing.Model = ""
	_, err = external.CallLLM(context.Background(), missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model required")

	noKey := base
	noKey.APIKey = ""
	_, err = external.CallLLM(context.Background(), noKey)
	require.Error(t, err)
}

func TestCallLLM_EmptyContentIsAnError(t *testing.T) {
	var body []byte
	var hdr http.Header
	srv := captureServer(t, `{"choices":[{"message":{"content":""}}]}`, &body, &hdr)

	_, err := external.CallLLM(context.Background(), external.CallLLMParams{
		Provider: "openai", Endpoint: srv.URL, APIKey: "k", Model: "m", UserPrompt: "p", MaxTokens: 8,
		Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
