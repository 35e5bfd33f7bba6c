package resume

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Span is a half-open interval [Start, End) of Unicode code points over a
// normalized text, tagged with a label and its provenance.
type Span struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Label  Label  `json:"label"`
	Source Source `json:"source,omitempty"`
}

// Len returns the number of code points the span covers.
func (s Span) Len() int { return s.End - s.Start }

// ValidFor reports whether 0 <= Start < End <= textLen.
func (s Span) ValidFor(textLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= textLen
}

// Overlaps reports whether the two half-open ranges intersect.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Text returns the covered substring of runes. Out-of-range spans yield "".
func (s Span) Text(runes []rune) string {
	if !s.ValidFor(len(runes)) {
		return ""
	}
	return string(runes[s.Start:s.End])
}

func (s Span) String() string {
	return fmt.Sprintf("(%d,%d,%s)", s.Start, s.End, s.Label)
}

// SpanSet is an ordered sequence of spans over one document.
type SpanSet []Span

// Sorted returns a copy ordered by (Start, End). Equal keys keep input order.
func (ss SpanSet) Sorted() SpanSet {
	out := make(SpanSet, len(ss))
	copy(out, ss)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Disjoint reports whether no two spans in the set overlap.
func (ss SpanSet) Disjoint() bool {
	sorted := ss.Sorted()
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return false
		}
	}
	return true
}

// WithSource returns a copy of the set with every span's Source replaced.
func (ss SpanSet) WithSource(src Source) SpanSet {
	out := make(SpanSet, len(ss))
	for i, s := range ss {
		s.Source = src
		out[i] = s
	}
	return out
}

// RuneLen is the offset unit used by every span: the code-point length of text.
func RuneLen(text string) int { return utf8.RuneCountInString(text) }
