// Remote scoring services.
//
// A Service is one HTTP endpoint that takes a JSON body and returns JSON.
// It owns the retry loop, auth header and response size limits; the typed
// clients (SurprisalClient, EmbeddingClient) only build and read bodies.
package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultServiceTimeout is used when ServiceConfig.Timeout is zero.
const DefaultServiceTimeout = 30 * time.Second

// Service posts JSON to a single remote endpoint.
type Service struct {
	name       string
	config     ServiceConfig
	httpClient *http.Client
}

// NewService creates a Service. client may be nil.
func NewService(name string, cfg ServiceConfig, client *http.Client) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base_url required", name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultServiceTimeout
	}
	if client == nil {
		client = &http.Client{} // timeout via context, not client
	}
	return &Service{name: name, config: cfg, httpClient: client}, nil
}

// Name returns the service name used in logs and errors.
func (s *Service) Name() string { return s.name }

// Model returns the configured model, possibly empty.
func (s *Service) Model() string { return s.config.Model }

// Post sends body to the endpoint with retries and returns the response body.
func (s *Service) Post(ctx context.Context, body []byte) ([]byte, error) {
	var out []byte
	retry := RetryConfig{MaxAttempts: s.config.MaxRetries + 1}
	err := Retry(ctx, s.name, retry, func(ctx context.Context) error {
		resp, err := s.doRequest(ctx, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// doRequest performs a single HTTP request.
func (s *Service) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s: create request: %w", s.name, err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", s.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s: API returned status %d: %s", s.name, resp.StatusCode, truncate(string(respBody)))
		// 4xx other than 408/429 will not get better on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return nil, Permanent(err)
		}
		return nil, err
	}
	return respBody, nil
}

func truncate(s string) string {
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "... (truncated)"
	}
	return s
}
