// Package ipranges implements the compact address-range list used to ship
// bulk IP address sets between the scheduler and the server: a sorted array
// of disjoint ordered pairs (low, countAbove) where a pair (a, b) represents
// the contiguous run {a, a+1, ..., a+b}. This mirrors OpenPBS's
// PBS_IP_RANGE/PBS_IP_LIST ("T"-range) structure in pbs_array_list.h.
package ipranges

import "sort"

// T is the integer element type stored in the list (an address, or any
// other orderable unsigned quantity).
type T = uint64

// Pair is one ordered-pair run: {Low, Low+1, ..., Low+Count}.
type Pair struct {
	Low   T
	Count T
}

// List is a sorted, disjoint collection of Pairs.
type List struct {
	pairs []Pair
}

// Pairs returns the list's pairs in sorted order. Must not be mutated.
func (l *List) Pairs() []Pair {
	return l.pairs
}

// Len returns the number of stored pairs (not the number of addresses).
func (l *List) Len() int {
	return len(l.pairs)
}

func (p Pair) high() T {
	return p.Low + p.Count
}

func (p Pair) contains(v T) bool {
	return v >= p.Low && v <= p.high()
}

// search returns the index of the first pair whose Low is > v (i.e. the
// insertion point), and the index of a pair containing v if one exists
// (-1 otherwise).
func (l *List) search(v T) (insertAt int, containing int) {
	insertAt = sort.Search(len(l.pairs), func(i int) bool {
		return l.pairs[i].Low > v
	})
	// The only pair that could contain v is the one just before insertAt.
	if insertAt > 0 && l.pairs[insertAt-1].contains(v) {
		return insertAt, insertAt - 1
	}
	return insertAt, -1
}

// Contains reports whether v is a member of the set.
func (l *List) Contains(v T) bool {
	_, idx := l.search(v)
	return idx >= 0
}

// Insert adds v to the set, merging with an adjacent predecessor/successor
// pair when possible rather than creating redundant singleton pairs.
func (l *List) Insert(v T) {
	insertAt, containing := l.search(v)
	if containing >= 0 {
		return
	}

	mergeLeft := insertAt > 0 && l.pairs[insertAt-1].high()+1 == v
	mergeRight := insertAt < len(l.pairs) && l.pairs[insertAt].Low == v+1

	switch {
	case mergeLeft && mergeRight:
		// v is the single gap between two runs: fuse them into one.
		left := &l.pairs[insertAt-1]
		right := l.pairs[insertAt]
		left.Count = right.high() - left.Low
		l.pairs = append(l.pairs[:insertAt], l.pairs[insertAt+1:]...)
	case mergeLeft:
		l.pairs[insertAt-1].Count++
	case mergeRight:
		l.pairs[insertAt].Low = v
		l.pairs[insertAt].Count++
	default:
		l.pairs = append(l.pairs, Pair{})
		copy(l.pairs[insertAt+1:], l.pairs[insertAt:])
		l.pairs[insertAt] = Pair{Low: v, Count: 0}
	}
}

// Delete removes v from the set. If v is interior to a run, the run is
// split into two; if v is at an edge, the run shrinks; if v is the run's
// only member, the run is removed. A no-op if v is absent.
func (l *List) Delete(v T) {
	_, idx := l.search(v)
	if idx < 0 {
		return
	}
	p := l.pairs[idx]

	switch {
	case p.Low == v && p.high() == v:
		l.pairs = append(l.pairs[:idx], l.pairs[idx+1:]...)
	case p.Low == v:
		l.pairs[idx].Low = v + 1
		l.pairs[idx].Count--
	case p.high() == v:
		l.pairs[idx].Count--
	default:
		// Interior removal: split into [Low, v-1] and [v+1, high].
		left := Pair{Low: p.Low, Count: v - 1 - p.Low}
		right := Pair{Low: v + 1, Count: p.high() - (v + 1)}
		l.pairs[idx] = left
		l.pairs = append(l.pairs, Pair{})
		copy(l.pairs[idx+2:], l.pairs[idx+1:])
		l.pairs[idx+1] = right
	}
}

// Clone returns an independent copy of the list.
func (l *List) Clone() *List {
	out := &List{pairs: make([]Pair, len(l.pairs))}
	copy(out.pairs, l.pairs)
	return out
}
