// Package external provides clients for remote model capabilities.
//
// DESIGN: Everything that needs a model lives behind HTTP and is reached
// from this package:
//   - SurprisalClient:  per-token importance scores from a scoring service
//   - EmbeddingClient:  vectors from an OpenAI-compatible /embeddings API
//   - CallLLM:          completions from Anthropic, OpenAI, Gemini or Bedrock
//
// Request bodies are built with sjson and responses read with gjson, so
// no provider needs a full struct mirror of its API.
package external

import (
	"time"
)

// ServiceConfig configures a remote scoring or embedding service.
type ServiceConfig struct {
	// BaseURL of the service, e.g. "http://localhost:8090".
	BaseURL string `yaml:"base_url"`

	// Endpoint path appended to BaseURL, e.g. "/v1/surprisal" or "/v1/embeddings".
	Endpoint string `yaml:"endpoint"`

	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key"`

	// Model to request (optional, service-specific).
	Model string `yaml:"model,omitempty"`

	// Timeout per attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries for failed requests. 0 = a single attempt.
	MaxRetries int `yaml:"max_retries"`
}

// URL returns BaseURL joined with Endpoint.
func (c ServiceConfig) URL() string {
	return c.BaseURL + c.Endpoint
}
