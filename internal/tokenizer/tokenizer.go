// Package tokenizer splits prompts into word-level tokens with stable offsets.
//
// DESIGN: Tokens are produced once per prompt and never mutated:
//   - word:   letter/digit runs, in-word apostrophes kept ("don't");
//     decimals and grouped numbers ("3.5", "1,000") stay one word
//   - quoted: "..." on a single line, kept as one protected unit
//   - punct:  any other non-space rune
//
// Only word and quoted tokens count as words. Punctuation is carried along
// so a compressed prompt can be rendered with its original punctuation.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	KindWord   Kind = iota // plain word
	KindQuoted             // double-quoted literal
	KindPunct              // single punctuation rune
)

// Token is one unit of the source prompt. Start/End are byte offsets.
type Token struct {
	Index     int    // position in the token sequence
	Text      string // exact source text
	Start     int    // inclusive byte offset
	End       int    // exclusive byte offset
	Kind      Kind
	Clause    int  // clause id, increments after spaced . ! ? ; : and line breaks
	Protected bool // never removed by compression
}

// IsWord reports whether the token counts toward the word budget.
func (t Token) IsWord() bool { return t.Kind != KindPunct }

// Removable reports whether compression may delete this token.
func (t Token) Removable() bool { return t.Kind == KindWord && !t.Protected }

var tokenPattern = regexp.MustCompile(`"[^"\n]*"|\p{N}+(?:[.,]\p{N}+)+|[\p{L}\p{N}_]+(?:['’][\p{L}\p{N}_]+)*|[^\s\p{L}\p{N}_]`)

// clauseBreaks end a clause when they appear as punctuation tokens.
var clauseBreaks = map[string]bool{".": true, "!": true, "?": true, ";": true, ":": true}

// Tokenize splits text into tokens. The result is never nil for non-blank input.
func Tokenize(text string) []Token {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	tokens := make([]Token, 0, len(locs))

	clause := 0
	lineStart := true
	for i, loc := range locs {
		start, end := loc[0], loc[1]
		raw := text[start:end]

		if i > 0 {
			gap := text[locs[i-1][1]:start]
			prev := tokens[i-1]
			if strings.Contains(gap, "\n") {
				lineStart = true
				clause++
			} else if prev.Kind == KindPunct && clauseBreaks[prev.Text] && gap != "" {
				clause++
			}
		}

		tok := Token{
			Index:  i,
			Text:   raw,
			Start:  start,
			End:    end,
			Kind:   classify(raw),
			Clause: clause,
		}
		if tok.Kind == KindQuoted {
			tok.Protected = true
		}
		// Line-leading label such as "Input:" or "Output:".
		if tok.Kind == KindWord && lineStart && i+1 < len(locs) && text[locs[i+1][0]:locs[i+1][1]] == ":" && locs[i+1][0] == end {
			tok.Protected = true
		}
		if tok.Kind != KindPunct || raw != "#" {
			lineStart = false
		}

		tokens = append(tokens, tok)
	}
	return tokens
}

func classify(raw string) Kind {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return KindQuoted
	}
	r, _ := utf8.DecodeRuneInString(raw)
	if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r) {
		return KindWord
	}
	return KindPunct
}

// CountWords returns the number of word tokens in tokens.
func CountWords(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.IsWord() {
			n++
		}
	}
	return n
}

// WordCount tokenizes text and counts its words.
func WordCount(text string) int {
	return CountWords(Tokenize(text))
}

// Words returns the text of every word token in order.
func Words(tokens []Token) []string {
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.IsWord() {
			words = append(words, t.Text)
		}
	}
	return words
}
