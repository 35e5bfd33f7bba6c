// Package spanresolve turns an arbitrary multiset of candidate spans into a
// pairwise disjoint, optionally token-aligned set. Resolution is total: bad
// candidates are counted, never returned as errors.
package spanresolve

import (
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// Result is the outcome of one resolution.
type Result struct {
	Spans resume.SpanSet
	// Invalid counts candidates with start >= end or offsets outside the text.
	Invalid int
	// Overlapping counts candidates that touched an already owned position.
	Overlapping int
	// Unaligned counts accepted candidates that contained no whole token.
	Unaligned int
}

// Rejected is the total number of dropped candidates.
func (r Result) Rejected() int { return r.Invalid + r.Overlapping + r.Unaligned }

// Resolve selects spans left to right, earliest start first and shorter
// first on ties, accepting a candidate only when none of its positions is
// owned. With bounds, an accepted span is contracted to token boundaries and
// dropped if nothing remains; the original range is claimed only when the
// contraction succeeds. Input order breaks remaining ties, so the output is
// deterministic for a given candidate slice.
func Resolve(textLen int, candidates resume.SpanSet, bounds *Boundaries) Result {
	var res Result
	if len(candidates) == 0 || textLen <= 0 {
		res.Invalid = len(candidates)
		res.Spans = resume.SpanSet{}
		return res
	}

	valid := make(resume.SpanSet, 0, len(candidates))
	for _, c := range candidates {
		if !c.ValidFor(textLen) {
			res.Invalid++
			continue
		}
		valid = append(valid, c)
	}

	owned := make([]bool, textLen)
	out := make(resume.SpanSet, 0, len(valid))
	for _, c := range valid.Sorted() {
		if anyOwned(owned, c.Start, c.End) {
			res.Overlapping++
			continue
		}
		span := c
		if bounds != nil {
			s, e, ok := bounds.Contract(c.Start, c.End)
			if !ok {
				res.Unaligned++
				continue
			}
			span.Start, span.End = s, e
		}
		for i := c.Start; i < c.End; i++ {
			owned[i] = true
		}
		out = append(out, span)
	}
	res.Spans = out
	return res
}

func anyOwned(owned []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if owned[i] {
			return true
		}
	}
	return false
}
