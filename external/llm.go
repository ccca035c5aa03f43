// LLM API client for generation.
//
// CallLLM is the single entry point for calling any supported LLM provider
// (Anthropic, OpenAI, Gemini, Bedrock) to produce a completion for a prompt
// variant.
//
// ADDING A NEW PROVIDER:
//  1. Add a case to DetectProvider(), setAuthHeaders(), buildRequestBody(), parseResponse()
//  2. Add a request/response round trip to llm_test.go
//  3. Add an example block to configs/config.yaml
package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultTimeout for LLM API calls.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages.
	maxErrorBodyLen = 500

	anthropicVersion = "2023-06-01"
	bedrockVersion   = "bedrock-2023-05-31"
)

// CallLLMParams contains parameters for calling an LLM provider.
type CallLLMParams struct {
	// Provider overrides auto-detection. One of: "anthropic", "openai", "gemini", "bedrock".
	Provider string

	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Timeout      time.Duration

	// HTTPClient overrides the default client. For Bedrock it must carry a
	// BedrockSigningTransport.
	HTTPClient *http.Client
}

func (p *CallLLMParams) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	if p.APIKey == "" && p.Provider != "bedrock" {
		return fmt.Errorf("api key required")
	}
	if p.Model == "" {
		return fmt.Errorf("model required")
	}
	if p.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0")
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return nil
}

// CallLLMResult contains the response from an LLM call.
type CallLLMResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Provider     string
}

// CallLLM sends a single-turn prompt to an LLM provider.
//
// Provider detection (when params.Provider is empty):
//   - "bedrock" in URL → Bedrock (Anthropic Messages format, SigV4 auth)
//   - "anthropic" in URL → Anthropic Messages API
//   - "generativelanguage.googleapis.com" in URL → Gemini generateContent API
//   - otherwise → OpenAI Chat Completions API
func CallLLM(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	if params.Provider == "" {
		params.Provider = DetectProvider(params.Endpoint)
	}
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid CallLLM params: %w", err)
	}
	provider := params.Provider

	body, err := buildRequestBody(provider, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, provider, params.APIKey)

	client := params.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API returned status %d: %s", provider, resp.StatusCode, truncate(string(respBody)))
	}

	return parseResponse(provider, respBody)
}

// DetectProvider infers the LLM provider from an endpoint URL.
func DetectProvider(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "bedrock"):
		return "bedrock"
	case strings.Contains(endpoint, "anthropic"):
		return "anthropic"
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"):
		return "gemini"
	default:
		return "openai"
	}
}

func setAuthHeaders(req *http.Request, provider, apiKey string) {
	switch provider {
	case "anthropic":
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	case "bedrock":
		// Signed by the transport.
	case "gemini":
		req.Header.Set("x-goog-api-key", apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// Temperature is 0 for reproducible comparisons, except OpenAI where
// o-series models reject the field.
func buildRequestBody(provider string, p CallLLMParams) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}

	switch provider {
	case "anthropic", "bedrock":
		if provider == "bedrock" {
			set("anthropic_version", bedrockVersion)
		} else {
			set("model", p.Model)
		}
		set("max_tokens", p.MaxTokens)
		if p.SystemPrompt != "" {
			set("system", p.SystemPrompt)
		}
		set("messages", []message{{Role: "user", Content: p.UserPrompt}})
		set("temperature", 0)
	case "gemini":
		if p.SystemPrompt != "" {
			set("systemInstruction", geminiContent{Parts: []geminiPart{{Text: p.SystemPrompt}}})
		}
		set("contents", []geminiContent{{Role: "user", Parts: []geminiPart{{Text: p.UserPrompt}}}})
		set("generationConfig.maxOutputTokens", p.MaxTokens)
		set("generationConfig.temperature", 0)
	default:
		msgs := make([]message, 0, 2)
		if p.SystemPrompt != "" {
			msgs = append(msgs, message{Role: "system", Content: p.SystemPrompt})
		}
		msgs = append(msgs, message{Role: "user", Content: p.UserPrompt})
		set("model", p.Model)
		set("messages", msgs)
		set("max_completion_tokens", p.MaxTokens)
	}
	return body, err
}

func parseResponse(provider string, body []byte) (*CallLLMResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse %s response: invalid JSON", provider)
	}
	res := gjson.ParseBytes(body)
	result := &CallLLMResult{Provider: provider}

	switch provider {
	case "anthropic", "bedrock":
		var parts []string
		for _, t := range res.Get(`content.#(type=="text")#.text`).Array() {
			parts = append(parts, t.String())
		}
		result.Content = strings.Join(parts, "")
		result.InputTokens = int(res.Get("usage.input_tokens").Int())
		result.OutputTokens = int(res.Get("usage.output_tokens").Int())
	case "gemini":
		var parts []string
		for _, t := range res.Get("candidates.0.content.parts.#.text").Array() {
			parts = append(parts, t.String())
		}
		result.Content = strings.Join(parts, "")
		result.InputTokens = int(res.Get("usageMetadata.promptTokenCount").Int())
		result.OutputTokens = int(res.Get("usageMetadata.candidatesTokenCount").Int())
	default:
		result.Content = res.Get("choices.0.message.content").String()
		result.InputTokens = int(res.Get("usage.prompt_tokens").Int())
		result.OutputTokens = int(res.Get("usage.completion_tokens").Int())
	}

	if result.Content == "" {
		return nil, fmt.Errorf("empty %s response content", provider)
	}
	return result, nil
}
