package normalize

import (
	"strings"
	"unicode/utf8"
)

// edit replaces the bytes [start, end) of a string with repl.
type edit struct {
	start, end int
	repl       string
}

// OffsetMap translates rune offsets of a raw text into rune offsets of its
// normalized form. An offset inside rewritten characters is snapped out of
// the rewrite: a span start moves past it, a span end moves before it.
type OffsetMap struct {
	// starts and ends hold the image of every raw rune boundary when read as
	// a span start or a span end. They differ only inside rewrites.
	starts []int
	ends   []int
}

func identityMap(n int) OffsetMap {
	pos := make([]int, n+1)
	for i := range pos {
		pos[i] = i
	}
	return OffsetMap{starts: pos, ends: pos}
}

// Len is the rune length of the raw text.
func (m OffsetMap) Len() int { return len(m.starts) - 1 }

// Span maps the raw range [start, end). ok is false when the range lies
// outside the raw text or nothing of it survives normalization.
func (m OffsetMap) Span(start, end int) (int, int, bool) {
	if start < 0 || end > m.Len() || start >= end {
		return 0, 0, false
	}
	s, e := m.starts[start], m.ends[end]
	if s >= e {
		return 0, 0, false
	}
	return s, e, true
}

// then composes m with next, which maps the output of m.
func (m OffsetMap) then(next OffsetMap) OffsetMap {
	starts := make([]int, len(m.starts))
	ends := make([]int, len(m.ends))
	for i := range m.starts {
		starts[i] = next.starts[m.starts[i]]
		ends[i] = next.ends[m.ends[i]]
	}
	return OffsetMap{starts: starts, ends: ends}
}

// applyEdits rewrites s with edits, which must be ordered and disjoint. The
// map is nil when edits is empty.
func applyEdits(s string, edits []edit) (string, *OffsetMap) {
	if len(edits) == 0 {
		return s, nil
	}
	var sb strings.Builder
	sb.Grow(len(s))
	n := utf8.RuneCountInString(s) + 1
	starts, ends := make([]int, 0, n), make([]int, 0, n)
	at, out := 0, 0
	keep := func(upto int) {
		for at < upto {
			_, size := utf8.DecodeRuneInString(s[at:])
			starts, ends = append(starts, out), append(ends, out)
			sb.WriteString(s[at : at+size])
			at += size
			out++
		}
	}
	for _, e := range edits {
		if e.start >= e.end {
			continue
		}
		keep(e.start)
		after := out + utf8.RuneCountInString(e.repl)
		starts, ends = append(starts, out), append(ends, out)
		for p := e.start; ; {
			_, size := utf8.DecodeRuneInString(s[p:])
			p += size
			if p >= e.end {
				break
			}
			starts, ends = append(starts, after), append(ends, out)
		}
		sb.WriteString(e.repl)
		out = after
		at = e.end
	}
	keep(len(s))
	starts, ends = append(starts, out), append(ends, out)
	return sb.String(), &OffsetMap{starts: starts, ends: ends}
}
