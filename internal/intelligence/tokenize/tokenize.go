// Package tokenize derives token boundaries for span alignment. Tokens come
// from the prose tokenizer; their offsets are recovered by scanning the
// source text, since prose reports token text only.
package tokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/turtacn/ResumeLens/internal/intelligence/spanresolve"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// Token is one token with code-point offsets into the text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer is stateless and safe for concurrent use.
type Tokenizer struct{}

// New returns a Tokenizer.
func New() *Tokenizer { return &Tokenizer{} }

// Tokens splits text and locates every token. A token whose text cannot be
// found at or after the previous token is dropped.
func (t *Tokenizer) Tokens(text string) ([]Token, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "tokenize")
	}

	raw := doc.Tokens()
	out := make([]Token, 0, len(raw))
	byteCursor, runeCursor := 0, 0
	for _, tok := range raw {
		if tok.Text == "" {
			continue
		}
		idx := strings.Index(text[byteCursor:], tok.Text)
		if idx < 0 {
			continue
		}
		startByte := byteCursor + idx
		start := runeCursor + utf8.RuneCountInString(text[byteCursor:startByte])
		end := start + utf8.RuneCountInString(tok.Text)
		out = append(out, splitInfixes(Token{Text: tok.Text, Start: start, End: end})...)
		byteCursor = startByte + len(tok.Text)
		runeCursor = end
	}
	return out, nil
}

// splitInfixes breaks a token at infix punctuation the way English NER
// tokenizers do: "Python/Django" is three tokens. A separator splits only
// when a letter follows it and a letter (or, except for commas, a digit)
// precedes it.
func splitInfixes(tok Token) []Token {
	runes := []rune(tok.Text)
	if len(runes) < 3 {
		return []Token{tok}
	}
	var out []Token
	from := 0
	for i := 1; i < len(runes)-1; i++ {
		if !isInfix(runes[i-1], runes[i], runes[i+1]) {
			continue
		}
		if i > from {
			out = append(out, Token{Text: string(runes[from:i]), Start: tok.Start + from, End: tok.Start + i})
		}
		out = append(out, Token{Text: string(runes[i]), Start: tok.Start + i, End: tok.Start + i + 1})
		from = i + 1
	}
	if out == nil {
		return []Token{tok}
	}
	return append(out, Token{Text: string(runes[from:]), Start: tok.Start + from, End: tok.End})
}

func isInfix(prev, r, next rune) bool {
	if !unicode.IsLetter(next) {
		return false
	}
	switch r {
	case ',':
		return unicode.IsLetter(prev)
	case '/', ':', '<', '>', '=', '-', '\u2013', '\u2014', '~':
		return unicode.IsLetter(prev) || unicode.IsDigit(prev)
	}
	return false
}

// Boundaries returns the token boundaries of text for use by the resolver.
func (t *Tokenizer) Boundaries(text string) (*spanresolve.Boundaries, error) {
	toks, err := t.Tokens(text)
	if err != nil {
		return nil, err
	}
	starts := make([]int, len(toks))
	ends := make([]int, len(toks))
	for i, tok := range toks {
		starts[i], ends[i] = tok.Start, tok.End
	}
	return spanresolve.NewBoundaries(starts, ends), nil
}
