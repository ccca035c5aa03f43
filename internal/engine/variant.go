package engine

import (
	"fmt"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/store"
)

// Variant selects which prompt of a run is sent to the generator.
type Variant int

const (
	Original Variant = iota
	Pruned
	Hybrid
)

var variantNames = [...]string{
	Original: "original",
	Pruned:   "pruned",
	Hybrid:   "hybrid",
}

func (v Variant) String() string {
	if v < Original || v > Hybrid {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant parses "original", "pruned" or "hybrid".
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if s == name {
			return Variant(i), nil
		}
	}
	return 0, compression.Errorf(compression.StageGenerate, compression.ErrInvalidConfig, nil,
		"which must be original, pruned or hybrid, got %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if v < Original || v > Hybrid {
		return nil, fmt.Errorf("invalid variant %d", int(v))
	}
	return []byte(variantNames[v]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Resolve returns the prompt text v selects from run and the variant that
// actually supplied it. Hybrid falls back to the compressed prompt and then
// the original when the run has no hybrid text yet. Pruned has no fallback.
func (v Variant) Resolve(run *store.Run) (string, Variant, error) {
	switch v {
	case Original:
		return run.OriginalPrompt, Original, nil
	case Pruned:
		if run.Compressed == nil {
			return "", v, compression.Errorf(compression.StageGenerate, compression.ErrRunNotFound, nil,
				"run %s has no pruned prompt", run.RunID)
		}
		return *run.Compressed, Pruned, nil
	case Hybrid:
		switch {
		case run.Hybrid != nil:
			return *run.Hybrid, Hybrid, nil
		case run.Compressed != nil:
			return *run.Compressed, Pruned, nil
		default:
			return run.OriginalPrompt, Original, nil
		}
	}
	return "", v, compression.Errorf(compression.StageGenerate, compression.ErrInvalidConfig, nil, "unknown variant %d", int(v))
}
