// Package normalize canonicalizes raw extracted resume text. Every span
// offset in the system refers to text produced here, so a Normalizer is
// always bound to a named Mode that travels with the text.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// ---------------------------------------------------------------------------
// Mode
// ---------------------------------------------------------------------------

// Mode names a normalization pipeline.
type Mode string

const (
	// ModeSoftBreak repairs soft line breaks inside words. Used by the
	// serving path and the batch cleaner.
	ModeSoftBreak Mode = "soft_break"
	// ModeDehyphenate joins words hyphenated across a line break. Used by
	// the weak-labelling path.
	ModeDehyphenate Mode = "dehyphenate"
)

// Modes returns every known mode.
func Modes() []Mode {
	return []Mode{ModeSoftBreak, ModeDehyphenate}
}

func (m Mode) String() string { return string(m) }

// ParseMode resolves a mode name. An empty name is rejected: there is no
// implicit default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSoftBreak, ModeDehyphenate:
		return Mode(s), nil
	case "":
		return "", errors.Configuration("normalization mode is required").
			WithDetail("expected soft_break or dehyphenate")
	}
	return "", errors.Configuration("unknown normalization mode").
		WithDetailf("mode=%q", s)
}

// ---------------------------------------------------------------------------
// Normalizer
// ---------------------------------------------------------------------------

var (
	cidPattern       = regexp.MustCompile(`\(cid:\d+\)`)
	hyphenBreak      = regexp.MustCompile(`-\s*\n\s*`)
	horizontalSpaces = regexp.MustCompile(`[ \t]+`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
	lineEndings      = regexp.MustCompile(`\r\n?`)
)

// Normalizer applies one mode. It is stateless and safe for concurrent use.
type Normalizer struct {
	mode  Mode
	steps []step
}

// New returns the Normalizer for mode.
func New(mode Mode) (*Normalizer, error) {
	n := &Normalizer{mode: mode}
	switch mode {
	case ModeSoftBreak:
		n.steps = softBreakSteps
	case ModeDehyphenate:
		n.steps = dehyphenateSteps
	default:
		if _, err := ParseMode(string(mode)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// MustNew is New for package-level and test setup.
func MustNew(mode Mode) *Normalizer {
	n, err := New(mode)
	if err != nil {
		panic(err)
	}
	return n
}

// Mode returns the mode the normalizer was built with.
func (n *Normalizer) Mode() Mode { return n.mode }

// Normalize returns the canonical form of raw. The pass repeats until the
// text stops changing: a join can reassemble a (cid:N) marker or bring two
// letters next to a newline. Every pass either shrinks the text or replaces
// a newline or tab with a space, so the loop terminates.
func (n *Normalizer) Normalize(raw string) string {
	text, _ := n.NormalizeWithOffsets(raw)
	return text
}

// NormalizeWithOffsets is Normalize that also returns where each rune
// boundary of raw lands in the result.
func (n *Normalizer) NormalizeWithOffsets(raw string) (string, OffsetMap) {
	m := identityMap(resume.RuneLen(raw))
	if raw == "" {
		return "", m
	}
	s := raw
	for {
		next := s
		changed := false
		for _, step := range n.steps {
			var pm *OffsetMap
			next, pm = applyEdits(next, step(next))
			if pm != nil {
				m = m.then(*pm)
				changed = true
			}
		}
		if !changed || next == s {
			return next, m
		}
		s = next
	}
}

// Document normalizes raw and records the mode alongside the result.
func (n *Normalizer) Document(raw string) resume.Document {
	return resume.Document{Raw: raw, Normalized: n.Normalize(raw), Mode: n.mode.String()}
}

// step lists the rewrites one stage makes to s, in order and disjoint.
type step func(s string) []edit

func replaceAll(re *regexp.Regexp, repl string) step {
	return func(s string) []edit {
		locs := re.FindAllStringIndex(s, -1)
		edits := make([]edit, 0, len(locs))
		for _, loc := range locs {
			if s[loc[0]:loc[1]] != repl {
				edits = append(edits, edit{start: loc[0], end: loc[1], repl: repl})
			}
		}
		return edits
	}
}

var (
	cidStep         = replaceAll(cidPattern, " ")
	lineEndingStep  = replaceAll(lineEndings, "\n")
	hyphenBreakStep = replaceAll(hyphenBreak, "")
	spacesStep      = replaceAll(horizontalSpaces, " ")
	blankLinesStep  = replaceAll(blankLines, "\n\n")

	softBreakSteps   = []step{lineEndingStep, cidStep, softBreakStep, spacesStep, blankLinesStep, trimStep}
	dehyphenateSteps = []step{cidStep, lineEndingStep, hyphenBreakStep, spacesStep, blankLinesStep, trimStep}
)

// softBreakStep turns a newline between two ASCII letters into a space.
// Neighbours are read from the input, so "a\nb\nc" is repaired in one call.
func softBreakStep(s string) []edit {
	var edits []edit
	for i := 1; i < len(s)-1; i++ {
		if s[i] == '\n' && isASCIILetter(s[i-1]) && isASCIILetter(s[i+1]) {
			edits = append(edits, edit{start: i, end: i + 1, repl: " "})
		}
	}
	return edits
}

func trimStep(s string) []edit {
	left := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	if left == len(s) {
		if left == 0 {
			return nil
		}
		return []edit{{start: 0, end: len(s)}}
	}
	right := len(strings.TrimRightFunc(s, unicode.IsSpace))
	var edits []edit
	if left > 0 {
		edits = append(edits, edit{start: 0, end: left})
	}
	if right < len(s) {
		edits = append(edits, edit{start: right, end: len(s)})
	}
	return edits
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
