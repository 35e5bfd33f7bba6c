// Package termmatch produces weak-label candidate spans from a versioned
// table of case-insensitive patterns.
package termmatch

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

type compiledRule struct {
	re    *regexp.Regexp
	label resume.Label
}

// Matcher is a compiled Table. It is read-only and safe for concurrent use.
type Matcher struct {
	table  Table
	rules  []compiledRule
	labels []resume.Label // first-appearance order
}

// Compile builds a Matcher. A pattern that fails to compile or a rule with
// an unknown label is a configuration error naming the rule.
func Compile(t Table) (*Matcher, error) {
	m := &Matcher{table: t, rules: make([]compiledRule, 0, len(t.Rules))}
	seen := make(map[resume.Label]bool)
	for i, r := range t.Rules {
		if !r.Label.Valid() {
			return nil, errors.Configuration("termmatch: unknown label").
				WithDetailf("rule %d: label=%q pattern=%q", i, r.Label, r.Pattern)
		}
		re, err := regexp.Compile(`(?i)\b(?:` + r.Pattern + `)\b`)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "termmatch: bad pattern").
				WithDetailf("rule %d: pattern=%q", i, r.Pattern)
		}
		m.rules = append(m.rules, compiledRule{re: re, label: r.Label})
		if !seen[r.Label] {
			seen[r.Label] = true
			m.labels = append(m.labels, r.Label)
		}
	}
	return m, nil
}

// MustCompile is Compile for built-in tables.
func MustCompile(t Table) *Matcher {
	m, err := Compile(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Version returns the table version.
func (m *Matcher) Version() string { return m.table.Version }

// Score returns the table score.
func (m *Matcher) Score() float64 { return m.table.Score }

// Table returns the source table.
func (m *Matcher) Table() Table { return m.table }

// FindCandidates returns every non-empty match, deduped within each label:
// matches sorted by (start, end) are kept when they start at or after the
// end of the last kept match. Groups follow first-appearance order of the
// labels in the table. Offsets are code points.
func (m *Matcher) FindCandidates(text string) resume.SpanSet {
	if text == "" || len(m.rules) == 0 {
		return resume.SpanSet{}
	}
	toRune := runeIndex(text)

	groups := make(map[resume.Label]resume.SpanSet, len(m.labels))
	for _, r := range m.rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] || !wordBoundary(text, loc[0]) || !wordBoundary(text, loc[1]) {
				continue
			}
			groups[r.label] = append(groups[r.label], resume.Span{
				Start:  toRune[loc[0]],
				End:    toRune[loc[1]],
				Label:  r.label,
				Source: resume.SourceRegex,
			})
		}
	}

	out := resume.SpanSet{}
	for _, label := range m.labels {
		out = append(out, dedupe(groups[label])...)
	}
	return out
}

// wordBoundary reports whether byte offset b sits between a word and a
// non-word rune, counting any Unicode letter or digit as a word rune. The
// regexp \b only knows ASCII word runes, so "Pythonä" would match without
// this check.
func wordBoundary(text string, b int) bool {
	var prev, next rune = -1, -1
	if b > 0 {
		prev, _ = utf8.DecodeLastRuneInString(text[:b])
	}
	if b < len(text) {
		next, _ = utf8.DecodeRuneInString(text[b:])
	}
	return isWordRune(prev) != isWordRune(next)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func dedupe(spans resume.SpanSet) resume.SpanSet {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	kept := make(resume.SpanSet, 0, len(spans))
	lastEnd := -1
	for _, s := range spans {
		if s.Start >= lastEnd {
			kept = append(kept, s)
			lastEnd = s.End
		}
	}
	return kept
}

// runeIndex maps every byte offset that starts a rune, plus len(text), to
// its code-point offset.
func runeIndex(text string) []int {
	idx := make([]int, len(text)+1)
	n := 0
	for b := range text {
		idx[b] = n
		n++
	}
	idx[len(text)] = n
	return idx
}
