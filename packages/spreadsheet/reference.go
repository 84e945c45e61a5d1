package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// refKind is the shape of a reference in formula text
type refKind uint8

const (
	refCell    refKind = iota // A1
	refArea                   // A1:B2
	refRows                   // 3:5
	refColumns                // C:E
)

// axisRef is one component of a reference. relative components store the
// offset from the formula cell, absolute ones ($) store the index, so a
// formula's references look the same wherever the formula sits.
type axisRef struct {
	absolute bool
	value    int64
}

func (a axisRef) resolve(origin uint32) int64 {
	if a.absolute {
		return a.value
	}
	return int64(origin) + a.value
}

// encode builds the component that resolves to index when seen from origin
func (a axisRef) encode(index int64, origin uint32) axisRef {
	if a.absolute {
		return axisRef{absolute: true, value: index}
	}
	return axisRef{value: index - int64(origin)}
}

// Reference is a position-independent cell, area, row or column reference.
// cell references use x1/y1, rows use y1/y2 and columns use x1/x2. the two
// corners keep the order they were written in.
type Reference struct {
	kind    refKind
	x1, y1  axisRef
	x2, y2  axisRef
	invalid bool
}

// axisLimit is the exclusive bound of an axis
func axisLimit(vertical bool) int64 {
	if vertical {
		return int64(MaxHeight)
	}
	return int64(MaxWidth)
}

func inAxis(v int64, vertical bool) bool {
	return v >= 0 && v < axisLimit(vertical)
}

func (r Reference) hasX() bool { return r.kind != refRows }
func (r Reference) hasY() bool { return r.kind != refColumns }
func (r Reference) spans() bool {
	return r.kind != refCell
}

// Resolve returns the absolute rectangle the reference names when its
// formula sits at origin. false means the reference points off the grid.
func (r Reference) Resolve(origin Point) (Rect, bool) {
	if r.invalid {
		return Rect{}, false
	}
	x1, y1 := r.x1.resolve(origin.X), r.y1.resolve(origin.Y)
	x2, y2 := r.x2.resolve(origin.X), r.y2.resolve(origin.Y)
	switch r.kind {
	case refCell:
		if !inAxis(x1, false) || !inAxis(y1, true) {
			return Rect{}, false
		}
		return Rect{Origin: Point{X: uint32(x1), Y: uint32(y1)}, Size: Size{Width: 1, Height: 1}}, true
	case refRows:
		if !inAxis(y1, true) || !inAxis(y2, true) {
			return Rect{}, false
		}
		lo, hi := min(y1, y2), max(y1, y2)
		return Rect{Origin: Point{Y: uint32(lo)}, Size: Size{Width: MaxWidth, Height: uint32(hi - lo + 1)}}, true
	case refColumns:
		if !inAxis(x1, false) || !inAxis(x2, false) {
			return Rect{}, false
		}
		lo, hi := min(x1, x2), max(x1, x2)
		return Rect{Origin: Point{X: uint32(lo)}, Size: Size{Width: uint32(hi - lo + 1), Height: MaxHeight}}, true
	default:
		if !inAxis(x1, false) || !inAxis(y1, true) || !inAxis(x2, false) || !inAxis(y2, true) {
			return Rect{}, false
		}
		return rectFromPoints(Point{X: uint32(x1), Y: uint32(y1)}, Point{X: uint32(x2), Y: uint32(y2)}), true
	}
}

// IsWholeAxis reports whether the reference names entire rows or columns
func (r Reference) IsWholeAxis() bool {
	return r.kind == refRows || r.kind == refColumns
}

// Render writes the reference as formula text for a formula sitting at origin
func (r Reference) Render(origin Point) string {
	if _, ok := r.Resolve(origin); !ok {
		return ErrInvalidReference.name
	}
	col := func(a axisRef) string {
		s := columnName(uint32(a.resolve(origin.X)))
		if a.absolute {
			return "$" + s
		}
		return s
	}
	row := func(a axisRef) string {
		s := strconv.FormatInt(a.resolve(origin.Y)+1, 10)
		if a.absolute {
			return "$" + s
		}
		return s
	}
	switch r.kind {
	case refCell:
		return col(r.x1) + row(r.y1)
	case refRows:
		return row(r.y1) + ":" + row(r.y2)
	case refColumns:
		return col(r.x1) + ":" + col(r.x2)
	default:
		return col(r.x1) + row(r.y1) + ":" + col(r.x2) + row(r.y2)
	}
}

// key identifies the encoded reference, independent of any position
func (r Reference) key() string {
	if r.invalid {
		return "!"
	}
	var b strings.Builder
	b.WriteByte(byte('c' + r.kind))
	for _, a := range []axisRef{r.x1, r.y1, r.x2, r.y2} {
		if a.absolute {
			b.WriteByte('$')
		}
		b.WriteString(strconv.FormatInt(a.value, 10))
		b.WriteByte(',')
	}
	return b.String()
}

func (r Reference) String() string {
	return fmt.Sprintf("Reference(%s)", r.key())
}

// relocate re-encodes the reference for a formula moving from `from` to `to`
// after mapping every resolved component along one axis through fn. fn maps
// a single index, or a span end when span is set, and reports false when the
// component no longer exists.
func (r Reference) relocate(from, to Point, vertical bool, mapAxis func(lo, hi int64, span bool) (int64, int64, bool)) Reference {
	if r.invalid {
		return r
	}
	x1, y1 := r.x1.resolve(from.X), r.y1.resolve(from.Y)
	x2, y2 := r.x2.resolve(from.X), r.y2.resolve(from.Y)

	apply := func(a, b *int64, present bool) bool {
		if !present {
			return true
		}
		if !r.spans() {
			na, _, ok := mapAxis(*a, *a, false)
			*a, *b = na, na
			return ok
		}
		if *a <= *b {
			na, nb, ok := mapAxis(*a, *b, true)
			*a, *b = na, nb
			return ok
		}
		nb, na, ok := mapAxis(*b, *a, true)
		*a, *b = na, nb
		return ok
	}

	var ok bool
	if vertical {
		ok = apply(&y1, &y2, r.hasY())
	} else {
		ok = apply(&x1, &x2, r.hasX())
	}
	if !ok {
		return Reference{kind: r.kind, invalid: true}
	}

	out := Reference{kind: r.kind}
	if r.hasX() {
		out.x1, out.x2 = r.x1.encode(x1, to.X), r.x2.encode(x2, to.X)
	}
	if r.hasY() {
		out.y1, out.y2 = r.y1.encode(y1, to.Y), r.y2.encode(y2, to.Y)
	}
	if _, valid := out.Resolve(to); !valid {
		return Reference{kind: r.kind, invalid: true}
	}
	return out
}

// insertMapper shifts every index at or past `at` by n. a single component
// pushed off the grid is lost, a span end is clipped to the last index.
func insertMapper(at, n int64, vertical bool) func(lo, hi int64, span bool) (int64, int64, bool) {
	limit := axisLimit(vertical)
	return func(lo, hi int64, span bool) (int64, int64, bool) {
		if lo >= at {
			lo += n
		}
		if hi >= at {
			hi += n
		}
		if lo >= limit {
			return 0, 0, false
		}
		if hi >= limit {
			if !span {
				return 0, 0, false
			}
			hi = limit - 1
		}
		return lo, hi, true
	}
}

// deleteMapper removes [at, at+n). single components inside the band are
// lost, spans are trimmed to their surviving part.
func deleteMapper(at, n int64) func(lo, hi int64, span bool) (int64, int64, bool) {
	stop := at + n
	return func(lo, hi int64, span bool) (int64, int64, bool) {
		if lo >= at && hi < stop {
			return 0, 0, false
		}
		switch {
		case lo >= stop:
			lo -= n
		case lo >= at:
			lo = at
		}
		switch {
		case hi >= stop:
			hi -= n
		case hi >= at:
			hi = at - 1
		}
		return lo, hi, true
	}
}

// copiedTo returns the reference as it reads in a copy of its formula placed
// at `to`. relative components keep their offsets, so the only change is that
// a component landing off the grid turns the reference invalid.
func (r Reference) copiedTo(to Point) Reference {
	if r.invalid {
		return r
	}
	if _, ok := r.Resolve(to); !ok {
		return Reference{kind: r.kind, invalid: true}
	}
	return r
}

// refPart is one corner of a reference as scanned from text
type refPart struct {
	colAbs bool
	col    string
	rowAbs bool
	row    string
}

func (p refPart) isCell() bool   { return p.col != "" && p.row != "" }
func (p refPart) isColumn() bool { return p.col != "" && p.row == "" }
func (p refPart) isRow() bool    { return p.col == "" && p.row != "" }

func (p refPart) compatible(o refPart) bool {
	return (p.isCell() && o.isCell()) || (p.isColumn() && o.isColumn()) || (p.isRow() && o.isRow())
}

// buildReference turns scanned corners into a reference relative to origin.
// second is nil for single cell references.
func buildReference(first refPart, second *refPart, origin Point) (Reference, bool) {
	component := func(abs bool, index uint32, base uint32) axisRef {
		if abs {
			return axisRef{absolute: true, value: int64(index)}
		}
		return axisRef{value: int64(index) - int64(base)}
	}
	col := func(p refPart) (axisRef, bool) {
		x, ok := ParseColumn(p.col)
		return component(p.colAbs, x, origin.X), ok
	}
	row := func(p refPart) (axisRef, bool) {
		y, ok := ParseRow(p.row)
		return component(p.rowAbs, y, origin.Y), ok
	}

	var ref Reference
	var ok1, ok2, ok3, ok4 bool
	switch {
	case second == nil && first.isCell():
		ref.kind = refCell
		ref.x1, ok1 = col(first)
		ref.y1, ok2 = row(first)
		ref.x2, ref.y2 = ref.x1, ref.y1
		return ref, ok1 && ok2
	case second == nil:
		return Reference{}, false
	case first.isCell():
		ref.kind = refArea
		ref.x1, ok1 = col(first)
		ref.y1, ok2 = row(first)
		ref.x2, ok3 = col(*second)
		ref.y2, ok4 = row(*second)
		return ref, ok1 && ok2 && ok3 && ok4
	case first.isRow():
		ref.kind = refRows
		ref.y1, ok1 = row(first)
		ref.y2, ok2 = row(*second)
		return ref, ok1 && ok2
	default:
		ref.kind = refColumns
		ref.x1, ok1 = col(first)
		ref.x2, ok2 = col(*second)
		return ref, ok1 && ok2
	}
}
