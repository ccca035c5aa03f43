package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used for model token counts.
const DefaultEncoding = "cl100k_base"

// Counter reports model-token counts, the unit LLM providers bill in.
// When no encoding is loaded it estimates from byte length.
type Counter struct {
	enc           *tiktoken.Tiktoken
	bytesPerToken int
}

// NewCounter loads a tiktoken encoding such as "cl100k_base".
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding %q: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

// NewEstimator returns a Counter that divides byte length by bytesPerToken.
func NewEstimator(bytesPerToken int) *Counter {
	if bytesPerToken <= 0 {
		bytesPerToken = 4
	}
	return &Counter{bytesPerToken: bytesPerToken}
}

// Count returns the number of model tokens in s.
func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	n := len(s) / c.bytesPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// Exact reports whether counts come from a real encoding.
func (c *Counter) Exact() bool { return c.enc != nil }
