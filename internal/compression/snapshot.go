package compression

import (
	"strings"

	"github.com/compresr/prompt-pruner/internal/tokenizer"
)

// Snapshot is one state of a prompt during compression. Tokens are shared
// between snapshots; only the removed set is per-snapshot.
type Snapshot struct {
	source  string
	tokens  []tokenizer.Token
	removed []bool
	words   int
	total   int
}

// NewSnapshot tokenizes source into a snapshot with nothing removed.
func NewSnapshot(source string) *Snapshot {
	tokens := tokenizer.Tokenize(source)
	n := tokenizer.CountWords(tokens)
	return &Snapshot{
		source:  source,
		tokens:  tokens,
		removed: make([]bool, len(tokens)),
		words:   n,
		total:   n,
	}
}

// Source returns the original prompt.
func (s *Snapshot) Source() string { return s.source }

// Tokens returns the full token arena including removed tokens. Do not modify.
func (s *Snapshot) Tokens() []tokenizer.Token { return s.tokens }

// IsRemoved reports whether token i has been removed.
func (s *Snapshot) IsRemoved(i int) bool { return s.removed[i] }

// WordCount returns the number of live words.
func (s *Snapshot) WordCount() int { return s.words }

// OriginalWordCount returns the number of words in the source prompt.
func (s *Snapshot) OriginalWordCount() int { return s.total }

// Live returns the live tokens in order.
func (s *Snapshot) Live() []tokenizer.Token {
	live := make([]tokenizer.Token, 0, len(s.tokens))
	for i, t := range s.tokens {
		if !s.removed[i] {
			live = append(live, t)
		}
	}
	return live
}

// Without returns a new snapshot with the given token indices removed.
// Non-removable and already removed indices are ignored.
func (s *Snapshot) Without(indices []int) *Snapshot {
	next := &Snapshot{
		source:  s.source,
		tokens:  s.tokens,
		removed: make([]bool, len(s.removed)),
		words:   s.words,
		total:   s.total,
	}
	copy(next.removed, s.removed)
	for _, i := range indices {
		if i < 0 || i >= len(s.tokens) || next.removed[i] || !s.tokens[i].Removable() {
			continue
		}
		next.removed[i] = true
		next.words--
	}
	return next
}

// closing punctuation attaches to the preceding token once the words between were removed.
var closingPunct = map[string]bool{
	".": true, ",": true, ":": true, ";": true, "?": true, "!": true,
	")": true, "]": true, "}": true,
}

// orphanPunct is dropped on render when a removed run leaves it with no words
// of its own, e.g. "Go now. Stop here." without "Stop here" is "Go now."
var orphanPunct = map[string]bool{".": true, ",": true, ":": true, ";": true, "?": true, "!": true}

// Render produces the text of the live tokens.
//
// Adjacent live tokens keep their original separator. Across a removed run the
// separator is the line break if the run spanned one, otherwise the whitespace
// before the run. Closing punctuation is re-attached to the preceding word.
// A clause mark left after a removed run is dropped when the text before the
// run already ends a clause, or when nothing precedes it.
// With nothing removed the source is returned verbatim.
func (s *Snapshot) Render() string {
	if s.words == s.total {
		return s.source
	}

	var b strings.Builder
	b.Grow(len(s.source))
	prev := -1
	for i, tok := range s.tokens {
		if s.removed[i] {
			continue
		}
		if s.orphaned(prev, i) {
			continue
		}
		if prev >= 0 {
			b.WriteString(s.separator(prev, i))
		}
		b.WriteString(tok.Text)
		prev = i
	}
	return strings.TrimSpace(b.String())
}

// separator returns the text to put between live tokens p and k (p < k).
func (s *Snapshot) separator(p, k int) string {
	pt, kt := s.tokens[p], s.tokens[k]
	if k == p+1 {
		return s.source[pt.End:kt.Start]
	}

	before := s.source[pt.End:s.tokens[p+1].Start]
	after := s.source[s.tokens[k-1].End:kt.Start]
	if strings.Contains(s.source[pt.End:kt.Start], "\n") {
		switch {
		case strings.Contains(after, "\n"):
			return after
		case strings.Contains(before, "\n"):
			return before
		default:
			return "\n"
		}
	}
	if kt.Kind == tokenizer.KindPunct && closingPunct[kt.Text] {
		return ""
	}
	if before == "" {
		return " "
	}
	return before
}

// orphaned reports whether live token k is clause punctuation stranded by the
// removed run before it. p is the last rendered token, -1 for none.
func (s *Snapshot) orphaned(p, k int) bool {
	kt := s.tokens[k]
	if kt.Kind != tokenizer.KindPunct || !orphanPunct[kt.Text] || k == p+1 {
		return false
	}
	if p < 0 {
		return true
	}
	pt := s.tokens[p]
	return pt.Kind == tokenizer.KindPunct && clauseEnd(pt.Text)
}

func clauseEnd(text string) bool {
	return text != "," && orphanPunct[text]
}
