package docpool

import (
	"strings"
	"testing"
)

func joinTokens(tokens []Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(tok.Text)
	}
	return b.String()
}

func TestTokenizeRoundTrips(t *testing.T) {
	text := "Deep learning [1] outperforms classic retrieval [2], see [12] for details."
	tokens := Tokenize(text)
	if joinTokens(tokens) != text {
		t.Fatalf("tokens do not reproduce the input: %q", joinTokens(tokens))
	}
	var indexes []int
	for _, tok := range tokens {
		if tok.Kind == TokenCitation {
			indexes = append(indexes, tok.Index)
		}
	}
	if len(indexes) != 3 || indexes[0] != 1 || indexes[1] != 2 || indexes[2] != 12 {
		t.Fatalf("unexpected citation indexes: %v", indexes)
	}
}

func TestTokenizePlainText(t *testing.T) {
	tokens := Tokenize("no citations here")
	if len(tokens) != 1 || tokens[0].Kind != TokenText {
		t.Fatalf("expected one text token, got %+v", tokens)
	}
	if Tokenize("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestTokenizeIsStableOnPlainSegments(t *testing.T) {
	// Re-running the transform on a plain segment of a previous run must not
	// invent or corrupt anything.
	first := Tokenize("answer [1] tail")
	for _, tok := range first {
		if tok.Kind != TokenText {
			continue
		}
		again := Tokenize(tok.Text)
		if joinTokens(again) != tok.Text {
			t.Fatalf("re-tokenizing %q changed it", tok.Text)
		}
		for _, inner := range again {
			if inner.Kind != TokenText {
				t.Fatalf("plain segment %q produced a citation token", tok.Text)
			}
		}
	}
}

func TestTokenizeIgnoresNonNumericBrackets(t *testing.T) {
	tokens := Tokenize("array[index] and [0] and [1]")
	citations := 0
	for _, tok := range tokens {
		if tok.Kind == TokenCitation {
			citations++
			if tok.Index != 1 {
				t.Fatalf("unexpected citation index %d", tok.Index)
			}
		}
	}
	if citations != 1 {
		t.Fatalf("expected exactly one citation, got %d", citations)
	}
}
