package compression

import "math"

// Config holds the per-call knobs. It is passed by value and never mutated.
// There are no defaults: every field a stage reads must be set by the caller.
type Config struct {
	KeepRatio        float64 `json:"keep_ratio"`
	MaxPhraseLen     int     `json:"max_phrase_len"`
	SimThreshold     float64 `json:"sim_threshold"`
	KeepRatioPhrases float64 `json:"keep_ratio_phrases,omitempty"`
}

// ValidateForPrune checks the fields the phrase pruner reads.
func (c Config) ValidateForPrune(stage Stage) error {
	if !validRatio(c.KeepRatio) {
		return Errorf(stage, ErrInvalidConfig, nil, "keep_ratio must be in (0,1], got %v", c.KeepRatio)
	}
	if c.MaxPhraseLen < 1 {
		return Errorf(stage, ErrInvalidConfig, nil, "max_phrase_len must be >= 1, got %d", c.MaxPhraseLen)
	}
	if math.IsNaN(c.SimThreshold) || c.SimThreshold < 0 || c.SimThreshold > 1 {
		return Errorf(stage, ErrInvalidConfig, nil, "sim_threshold must be in [0,1], got %v", c.SimThreshold)
	}
	return nil
}

// ValidateForHybrid checks everything ValidateForPrune does plus keep_ratio_phrases.
func (c Config) ValidateForHybrid() error {
	if err := c.ValidateForPrune(StageHybrid); err != nil {
		return err
	}
	if !validRatio(c.KeepRatioPhrases) {
		return Errorf(StageHybrid, ErrInvalidConfig, nil, "keep_ratio_phrases must be in (0,1], got %v", c.KeepRatioPhrases)
	}
	return nil
}

func validRatio(r float64) bool {
	return !math.IsNaN(r) && r > 0 && r <= 1
}

// TargetWords is the word budget for n words at ratio r: ceil(r*n).
func TargetWords(r float64, n int) int {
	t := int(math.Ceil(r*float64(n) - 1e-9))
	if t < 0 {
		return 0
	}
	if t > n {
		return n
	}
	return t
}
