package external

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint.
//
// Request:  {"model": "...", "input": ["text a", "text b"]}
// Response: {"data": [{"index": 0, "embedding": [...]}, ...]}
type EmbeddingClient struct {
	svc *Service
}

// NewEmbeddingClient wraps svc.
func NewEmbeddingClient(svc *Service) *EmbeddingClient {
	return &EmbeddingClient{svc: svc}
}

// Embed returns one vector per input, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	body, err := sjson.SetBytes([]byte(`{}`), "input", inputs)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.svc.Name(), err)
	}
	if m := c.svc.Model(); m != "" {
		if body, err = sjson.SetBytes(body, "model", m); err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.svc.Name(), err)
		}
	}

	resp, err := c.svc.Post(ctx, body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp) {
		return nil, fmt.Errorf("%s: invalid JSON response", c.svc.Name())
	}

	out := make([][]float64, len(inputs))
	var parseErr error
	pos := 0
	gjson.GetBytes(resp, "data").ForEach(func(_, item gjson.Result) bool {
		idx := pos
		pos++
		if i := item.Get("index"); i.Exists() {
			idx = int(i.Int())
		}
		if idx < 0 || idx >= len(out) {
			parseErr = fmt.Errorf("%s: embedding index %d out of range", c.svc.Name(), idx)
			return false
		}
		values := item.Get("embedding").Array()
		vec := make([]float64, len(values))
		for j, v := range values {
			vec[j] = v.Float()
		}
		out[idx] = vec
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	for i, vec := range out {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%s: missing embedding for input %d", c.svc.Name(), i)
		}
	}
	return out, nil
}
