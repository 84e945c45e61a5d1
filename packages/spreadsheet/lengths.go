package spreadsheet

import (
	"golang.org/x/exp/constraints"
)

// LengthInfo is the effective display metadata of one row or column.
// Length is only meaningful when HasLength is set.
type LengthInfo struct {
	Length    uint32
	HasLength bool
	Hidden    bool
}

// lengthRun covers [start, end) with a single value
type lengthRun[K constraints.Unsigned, V comparable] struct {
	start K
	end   K
	value V
}

// runMap is a run-length encoded map from an index domain to values. runs are
// sorted, never overlap, never hold the zero value, and adjacent runs always
// differ so every stored run is maximal.
type runMap[K constraints.Unsigned, V comparable] struct {
	runs []lengthRun[K, V]
}

// get returns the value at index i
func (m *runMap[K, V]) get(i K) V {
	lo, hi := 0, len(m.runs)
	for lo < hi {
		mid := (lo + hi) / 2
		r := m.runs[mid]
		switch {
		case i < r.start:
			hi = mid
		case i >= r.end:
			lo = mid + 1
		default:
			return r.value
		}
	}
	var zero V
	return zero
}

// update replaces the value of every index in [start, end) with fn(old)
func (m *runMap[K, V]) update(start, end K, fn func(V) V) {
	if start >= end {
		return
	}
	var zero V
	out := make([]lengthRun[K, V], 0, len(m.runs)+2)
	cursor := start
	for _, r := range m.runs {
		if r.end <= start || r.start >= end {
			if r.start >= end && cursor < end {
				out = append(out, lengthRun[K, V]{start: cursor, end: end, value: fn(zero)})
				cursor = end
			}
			out = append(out, r)
			continue
		}
		// split off the part before the updated span
		if r.start < start {
			out = append(out, lengthRun[K, V]{start: r.start, end: start, value: r.value})
		}
		if r.start > cursor {
			out = append(out, lengthRun[K, V]{start: cursor, end: r.start, value: fn(zero)})
		}
		from := max(r.start, start)
		to := min(r.end, end)
		out = append(out, lengthRun[K, V]{start: from, end: to, value: fn(r.value)})
		cursor = to
		// and the part after it
		if r.end > end {
			out = append(out, lengthRun[K, V]{start: end, end: r.end, value: r.value})
		}
	}
	if cursor < end {
		out = append(out, lengthRun[K, V]{start: cursor, end: end, value: fn(zero)})
	}
	m.runs = normalizeRuns(out)
}

// forEach reports every maximal run intersecting [start, end), clipped to
// it, in ascending order. returns false if fn asked to stop early.
func (m *runMap[K, V]) forEach(start, end K, fn func(start, end K, value V) bool) bool {
	var zero V
	cursor := start
	for _, r := range m.runs {
		if r.end <= start {
			continue
		}
		if r.start >= end {
			break
		}
		if r.start > cursor {
			if !fn(cursor, r.start, zero) {
				return false
			}
		}
		from := max(r.start, cursor)
		to := min(r.end, end)
		if !fn(from, to, r.value) {
			return false
		}
		cursor = to
	}
	if cursor < end {
		return fn(cursor, end, zero)
	}
	return true
}

// insert opens a gap of n indices at index at. the run containing at grows
// so the new indices inherit its value, later runs shift. nothing survives at
// or beyond limit.
func (m *runMap[K, V]) insert(at, n, limit K) {
	if n == 0 {
		return
	}
	out := make([]lengthRun[K, V], 0, len(m.runs))
	for _, r := range m.runs {
		switch {
		case r.start > at:
			r.start = shiftClamp(r.start, n, limit)
			r.end = shiftClamp(r.end, n, limit)
		case r.end > at:
			r.end = shiftClamp(r.end, n, limit)
		}
		if r.start < r.end {
			out = append(out, r)
		}
	}
	m.runs = normalizeRuns(out)
}

// remove deletes [at, at+n) and closes the gap
func (m *runMap[K, V]) remove(at, n K) {
	if n == 0 {
		return
	}
	stop := at + n
	out := make([]lengthRun[K, V], 0, len(m.runs))
	for _, r := range m.runs {
		start, end := r.start, r.end
		switch {
		case start >= stop:
			start -= n
		case start > at:
			start = at
		}
		switch {
		case end >= stop:
			end -= n
		case end > at:
			end = at
		}
		if start < end {
			out = append(out, lengthRun[K, V]{start: start, end: end, value: r.value})
		}
	}
	m.runs = normalizeRuns(out)
}

func shiftClamp[K constraints.Unsigned](v, n, limit K) K {
	if v > limit || limit-v < n {
		return limit
	}
	return v + n
}

func normalizeRuns[K constraints.Unsigned, V comparable](runs []lengthRun[K, V]) []lengthRun[K, V] {
	var zero V
	out := runs[:0]
	for _, r := range runs {
		if r.value == zero || r.start >= r.end {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].end == r.start && out[last].value == r.value {
			out[last].end = r.end
			continue
		}
		out = append(out, r)
	}
	return out
}

// LengthStore keeps per-index display length and hidden flags for one axis.
// length and hidden are independent attributes.
type LengthStore struct {
	runs  runMap[uint32, LengthInfo]
	limit uint32
}

// NewLengthStore creates a store over [0, limit)
func NewLengthStore(limit uint32) *LengthStore {
	return &LengthStore{limit: limit}
}

// SetLength sets the length of [start, start+count)
func (ls *LengthStore) SetLength(start, count, length uint32) {
	ls.runs.update(start, start+count, func(info LengthInfo) LengthInfo {
		info.Length = length
		info.HasLength = true
		return info
	})
}

// ClearLength reverts [start, start+count) to an unset length
func (ls *LengthStore) ClearLength(start, count uint32) {
	ls.runs.update(start, start+count, func(info LengthInfo) LengthInfo {
		info.Length = 0
		info.HasLength = false
		return info
	})
}

// SetHidden sets the hidden flag of [start, start+count)
func (ls *LengthStore) SetHidden(start, count uint32, hidden bool) {
	ls.runs.update(start, start+count, func(info LengthInfo) LengthInfo {
		info.Hidden = hidden
		return info
	})
}

// Get returns the effective info of one index
func (ls *LengthStore) Get(index uint32) LengthInfo {
	return ls.runs.get(index)
}

// ForEach reports the maximal runs covering [start, end). returns true if
// the scan reached end, false if fn stopped it.
func (ls *LengthStore) ForEach(start, end uint32, fn func(start, end uint32, info LengthInfo) bool) bool {
	if start >= end {
		return true
	}
	return ls.runs.forEach(start, end, fn)
}

// Insert shifts everything at or after index by count
func (ls *LengthStore) Insert(index, count uint32) {
	ls.runs.insert(index, count, ls.limit)
}

// Remove deletes [index, index+count) and shifts the rest back
func (ls *LengthStore) Remove(index, count uint32) {
	ls.runs.remove(index, count)
}

// RunCount returns the number of stored runs
func (ls *LengthStore) RunCount() int {
	return len(ls.runs.runs)
}
