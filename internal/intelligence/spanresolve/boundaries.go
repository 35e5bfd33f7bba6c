package spanresolve

import "sort"

// Boundaries holds the token start and end offsets of one text, in code
// points. Both slices are sorted ascending and free of duplicates.
type Boundaries struct {
	starts []int
	ends   []int
}

// NewBoundaries copies, sorts and dedupes the given offsets.
func NewBoundaries(starts, ends []int) *Boundaries {
	return &Boundaries{starts: sortedUnique(starts), ends: sortedUnique(ends)}
}

// Starts returns the token start offsets.
func (b *Boundaries) Starts() []int { return b.starts }

// Ends returns the token end offsets.
func (b *Boundaries) Ends() []int { return b.ends }

// Contract shrinks [start, end) inward to token boundaries: the smallest
// token start >= start and the largest token end <= end. ok is false when
// no token fits inside the range.
func (b *Boundaries) Contract(start, end int) (int, int, bool) {
	i := sort.SearchInts(b.starts, start)
	if i == len(b.starts) {
		return 0, 0, false
	}
	j := sort.SearchInts(b.ends, end+1) - 1
	if j < 0 {
		return 0, 0, false
	}
	ns, ne := b.starts[i], b.ends[j]
	if ns >= ne {
		return 0, 0, false
	}
	return ns, ne, true
}

func sortedUnique(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
