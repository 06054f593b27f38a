package docpool

import (
	"regexp"
	"strconv"
)

// Answer text embeds positional markers like [3]. Rendering mutates styled
// output, never the source text, so the transform from text to tokens is a
// pure function that can safely run again on its own plain segments.

var citationPattern = regexp.MustCompile(`\[(\d{1,3})\]`)

type TokenKind int

const (
	TokenText TokenKind = iota
	TokenCitation
)

// Token is one span of answer text: either literal text or a citation
// marker with its parsed 1-based index.
type Token struct {
	Kind  TokenKind
	Text  string
	Index int
}

// Tokenize splits text into an ordered sequence of plain-text and citation
// tokens. Concatenating every token's Text reproduces the input exactly.
func Tokenize(text string) []Token {
	if text == "" {
		return nil
	}
	matches := citationPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Token{{Kind: TokenText, Text: text}}
	}
	tokens := make([]Token, 0, len(matches)*2+1)
	prev := 0
	for _, m := range matches {
		if m[0] > prev {
			tokens = append(tokens, Token{Kind: TokenText, Text: text[prev:m[0]]})
		}
		index, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || index < 1 {
			// Not a citation after all; keep the literal text.
			tokens = append(tokens, Token{Kind: TokenText, Text: text[m[0]:m[1]]})
		} else {
			tokens = append(tokens, Token{Kind: TokenCitation, Text: text[m[0]:m[1]], Index: index})
		}
		prev = m[1]
	}
	if prev < len(text) {
		tokens = append(tokens, Token{Kind: TokenText, Text: text[prev:]})
	}
	return tokens
}
