package external

import (
	"context"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// SurprisalClient asks a remote scoring service for per-token surprisal.
//
// Request:  {"model": "...", "tokens": ["The", "quick", ...]}
// Response: {"surprisal": [4.1, 7.9, ...]}  one value per token
type SurprisalClient struct {
	svc *Service
}

// NewSurprisalClient wraps svc.
func NewSurprisalClient(svc *Service) *SurprisalClient {
	return &SurprisalClient{svc: svc}
}

// Surprisal implements compression.ImportanceScorer.
func (c *SurprisalClient) Surprisal(ctx context.Context, tokens []tokenizer.Token) ([]float64, error) {
	texts := make([]string, len(tokens))
	for i, t := range tokens {
		texts[i] = t.Text
	}

	body, err := sjson.SetBytes([]byte(`{}`), "tokens", texts)
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

	values := gjson.GetBytes(resp, "surprisal")
	if !values.IsArray() {
		return nil, fmt.Errorf("%s: response has no surprisal array", c.svc.Name())
	}
	arr := values.Array()
	if len(arr) != len(tokens) {
		return nil, fmt.Errorf("%s: got %d values for %d tokens", c.svc.Name(), len(arr), len(tokens))
	}

	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%s: surprisal[%d] is not a number", c.svc.Name(), i)
		}
		out[i] = v.Float()
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("%s: surprisal[%d] is not finite", c.svc.Name(), i)
		}
	}
	return out, nil
}
