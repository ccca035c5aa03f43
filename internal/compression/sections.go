package compression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// Summarizer rewrites a section body in at most maxWords words.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

// SectionConfig configures CompressSections.
type SectionConfig struct {
	// Headers selects sections by title, with or without the leading "## ".
	// Empty selects every section.
	Headers          []string `json:"headers,omitempty"`
	KeepRatioPhrases float64  `json:"keep_ratio_phrases"`
	MaxPhraseLen     int      `json:"max_phrase_len"`
	SimThreshold     float64  `json:"sim_threshold"`
}

// Validate checks every field CompressSections reads.
func (c SectionConfig) Validate() error {
	if !validRatio(c.KeepRatioPhrases) {
		return Errorf(StageSections, ErrInvalidConfig, nil, "keep_ratio_phrases must be in (0,1], got %v", c.KeepRatioPhrases)
	}
	if c.MaxPhraseLen < 1 {
		return Errorf(StageSections, ErrInvalidConfig, nil, "max_phrase_len must be >= 1, got %d", c.MaxPhraseLen)
	}
	if math.IsNaN(c.SimThreshold) || c.SimThreshold < 0 || c.SimThreshold > 1 {
		return Errorf(StageSections, ErrInvalidConfig, nil, "sim_threshold must be in [0,1], got %v", c.SimThreshold)
	}
	return nil
}

// How a section body was handled.
const (
	MethodKept       = "kept"       // not selected, or nothing could go
	MethodSummarized = "summarized" // summary passed the similarity floor
	MethodPruned     = "pruned"     // phrase pruned at keep_ratio_phrases
)

// Section is one "## " block of a prompt. The preamble before the first
// header has an empty Header.
type Section struct {
	Header string `json:"header"` // title without "## "
	Body   string `json:"body"`
}

// SectionOutcome reports what happened to one section.
type SectionOutcome struct {
	Header        string  `json:"header"`
	Method        string  `json:"method"`
	OriginalWords int     `json:"original_words"`
	Words         int     `json:"words"`
	Similarity    float64 `json:"similarity"`
	SummaryError  string  `json:"summary_error,omitempty"`
}

// SectionResult is the outcome of CompressSections.
type SectionResult struct {
	Text              string           `json:"text"`
	Sections          []SectionOutcome `json:"sections"`
	OriginalWordCount int              `json:"original_word_count"`
	WordCount         int              `json:"word_count"`
}

var (
	blankLines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize is the structural pre-pass: runs of blank lines become one blank
// line and runs of spaces or tabs become one space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitSections splits text at lines starting with "## ".
func SplitSections(text string) []Section {
	var out []Section
	cur := Section{}
	var body []string
	flush := func() {
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Header != "" || cur.Body != "" {
			out = append(out, cur)
		}
		body = body[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if title, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			cur = Section{Header: strings.TrimSpace(title)}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// JoinSections is the inverse of SplitSections for normalized text.
func JoinSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		switch {
		case s.Header == "":
			parts = append(parts, s.Body)
		case s.Body == "":
			parts = append(parts, "## "+s.Header)
		default:
			parts = append(parts, "## "+s.Header+"\n"+s.Body)
		}
	}
	return strings.Join(parts, "\n\n")
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(h), "#")))
}

// CompressSections normalizes prompt, then compresses each selected "## "
// section on its own. With a summarizer, a section is first summarized in
// at most ceil(keep_ratio_phrases * words) words and the summary is kept
// when it is shorter and at least sim_threshold similar to the body.
// Otherwise the body is phrase pruned at keep_ratio_phrases under the same
// floor. sum may be nil, in which case every selected section is pruned.
func (p *Pruner) CompressSections(ctx context.Context, prompt string, cfg SectionConfig, sum Summarizer) (*SectionResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Errorf(StageSections, ErrEmptyInput, nil, "prompt is blank")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	selected := make([]string, 0, len(cfg.Headers))
	for _, h := range cfg.Headers {
		selected = append(selected, headerKey(h))
	}

	sections := SplitSections(Normalize(prompt))
	outcomes := make([]SectionOutcome, 0, len(sections))
	for i, sec := range sections {
		words := tokenizer.WordCount(sec.Body)
		outcome := SectionOutcome{Header: sec.Header, Method: MethodKept, OriginalWords: words, Words: words, Similarity: 1}

		chosen := sec.Header != "" && (len(selected) == 0 || slices.Contains(selected, headerKey(sec.Header)))
		if chosen && words > 0 {
			body, err := p.compressSection(ctx, sec.Body, words, cfg, sum, &outcome)
			if err != nil {
				return nil, err
			}
			sections[i].Body = body
		}
		outcomes = append(outcomes, outcome)
	}

	text := JoinSections(sections)
	return &SectionResult{
		Text:              text,
		Sections:          outcomes,
		OriginalWordCount: tokenizer.WordCount(prompt),
		WordCount:         tokenizer.WordCount(text),
	}, nil
}

func (p *Pruner) compressSection(ctx context.Context, body string, words int, cfg SectionConfig, sum Summarizer, out *SectionOutcome) (string, error) {
	target := TargetWords(cfg.KeepRatioPhrases, words)
	if target >= words {
		return body, nil
	}

	if sum != nil {
		summary, sim, err := p.summarize(ctx, body, target, sum)
		switch {
		case ctx.Err() != nil:
			return "", Errorf(StageSections, nil, ctx.Err(), "canceled")
		case err != nil:
			out.SummaryError = err.Error()
			log.Debug().Err(err).Str("section", out.Header).Msg("summary failed, pruning section")
		case sim < cfg.SimThreshold:
			out.SummaryError = fmt.Sprintf("summary similarity %.3f below %.3f", sim, cfg.SimThreshold)
		default:
			out.Method = MethodSummarized
			out.Words = tokenizer.WordCount(summary)
			out.Similarity = sim
			return summary, nil
		}
	}

	res, err := p.prune(ctx, StageSections, body, Config{
		KeepRatio:    cfg.KeepRatioPhrases,
		MaxPhraseLen: cfg.MaxPhraseLen,
		SimThreshold: cfg.SimThreshold,
	}, nil)
	if err != nil {
		return "", err
	}
	if len(res.Log) == 0 {
		return body, nil
	}
	out.Method = MethodPruned
	out.Words = res.WordCount
	out.Similarity = res.Log[len(res.Log)-1].Similarity
	return res.Compressed, nil
}

var errSummaryNotShorter = errors.New("summary is not shorter than the section")

// summarize returns a summary of body and its similarity to body.
func (p *Pruner) summarize(ctx context.Context, body string, maxWords int, sum Summarizer) (string, float64, error) {
	summary, err := sum.Summarize(ctx, body, maxWords)
	if err != nil {
		return "", 0, err
	}
	summary = strings.TrimSpace(summary)
	if n := tokenizer.WordCount(summary); n == 0 || n >= tokenizer.WordCount(body) {
		return "", 0, errSummaryNotShorter
	}
	sim, err := p.similarity.Similarity(ctx, body, summary)
	if err != nil {
		return "", 0, fmt.Errorf("summary similarity: %w", err)
	}
	return summary, sim, nil
}
