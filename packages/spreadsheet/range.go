package spreadsheet

import (
	"iter"
)

// cellReader is the read side of a sheet as formulas see it
type cellReader interface {
	// valueAt returns the current value of a cell, nil when blank
	valueAt(p Point) Primitive
	// storedValues yields the non-blank cells inside r in row-major chunk order
	storedValues(r Rect) iter.Seq2[Point, Primitive]
	// extent is the used size of the sheet
	extent() Size
}

// Range represents a lazy range type for memory-efficient formula evaluation
type Range interface {
	Bounds() Rect
	// At returns the value at column x, row y relative to the top left corner
	At(x, y uint32) Primitive
	// IterateValues yields the values a function aggregating over the range
	// should see
	IterateValues() iter.Seq[Primitive]
}

// CellRange is a live view of a rectangle of cells
type CellRange struct {
	rect      Rect
	wholeAxis bool // names entire rows or columns
	cells     cellReader
}

// Bounds returns the range boundaries
func (r *CellRange) Bounds() Rect {
	return r.rect
}

func (r *CellRange) At(x, y uint32) Primitive {
	return r.cells.valueAt(Point{X: r.rect.Origin.X + x, Y: r.rect.Origin.Y + y})
}

// IterateValues yields the non-blank values of the range. blank cells are
// skipped, which is what every aggregate wants and keeps whole column
// references cheap.
func (r *CellRange) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, v := range r.cells.storedValues(r.rect) {
			if !yield(v) {
				return
			}
		}
	}
}

// clipped returns the part of the range that lies inside the used extent.
// whole row or column references are clipped to at least one row or column.
func (r *CellRange) clipped() Rect {
	if !r.wholeAxis {
		return r.rect
	}
	ext := r.cells.extent()
	rect := r.rect
	if rect.Size.Width == MaxWidth {
		rect.Size.Width = max(ext.Width, 1)
	}
	if rect.Size.Height == MaxHeight {
		rect.Size.Height = max(ext.Height, 1)
	}
	return rect
}

// Array is an evaluated block of values, row-major
type Array struct {
	width  uint32
	height uint32
	values []Primitive
}

// NewArray creates a width x height array of blanks
func NewArray(width, height uint32) *Array {
	return &Array{width: width, height: height, values: make([]Primitive, int(width)*int(height))}
}

func (a *Array) Bounds() Rect {
	return Rect{Size: Size{Width: a.width, Height: a.height}}
}

func (a *Array) At(x, y uint32) Primitive {
	if x >= a.width || y >= a.height {
		return ErrInvalidArgs
	}
	return a.values[int(y)*int(a.width)+int(x)]
}

func (a *Array) set(x, y uint32, v Primitive) {
	a.values[int(y)*int(a.width)+int(x)] = v
}

// IterateValues yields every element, blanks included
func (a *Array) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, v := range a.values {
			if !yield(v) {
				return
			}
		}
	}
}

// materialize evaluates a range into an array. returns #VALUE! when the
// array would be larger than limit cells.
func materialize(r Range, limit int) (*Array, *ErrorValue) {
	switch v := r.(type) {
	case *Array:
		return v, nil
	case *CellRange:
		rect := v.clipped()
		if rect.Size.area() > uint64(limit) {
			return nil, ErrInvalidValue
		}
		out := NewArray(rect.Size.Width, rect.Size.Height)
		for p, val := range v.cells.storedValues(rect) {
			out.set(p.X-rect.Origin.X, p.Y-rect.Origin.Y, val)
		}
		return out, nil
	default:
		b := r.Bounds()
		if b.Size.area() > uint64(limit) {
			return nil, ErrInvalidValue
		}
		out := NewArray(b.Size.Width, b.Size.Height)
		for y := uint32(0); y < b.Size.Height; y++ {
			for x := uint32(0); x < b.Size.Width; x++ {
				out.set(x, y, r.At(x, y))
			}
		}
		return out, nil
	}
}

// rangeCells yields the non-blank values of a range with their position
// relative to its top left corner
func rangeCells(r Range) iter.Seq2[Point, Primitive] {
	return func(yield func(Point, Primitive) bool) {
		if cr, ok := r.(*CellRange); ok {
			origin := cr.rect.Origin
			for p, v := range cr.cells.storedValues(cr.rect) {
				if !yield(Point{X: p.X - origin.X, Y: p.Y - origin.Y}, v) {
					return
				}
			}
			return
		}
		b := r.Bounds()
		for y := uint32(0); y < b.Size.Height; y++ {
			for x := uint32(0); x < b.Size.Width; x++ {
				if v := r.At(x, y); v != nil {
					if !yield(Point{X: x, Y: y}, v) {
						return
					}
				}
			}
		}
	}
}

// subRange returns the part of r at offset (x, y) with size w x h
func subRange(r Range, x, y, w, h uint32) Range {
	if cr, ok := r.(*CellRange); ok {
		origin := cr.rect.Origin
		return &CellRange{
			rect:      Rect{Origin: Point{X: origin.X + x, Y: origin.Y + y}, Size: Size{Width: w, Height: h}},
			wholeAxis: cr.wholeAxis && (w == MaxWidth || h == MaxHeight),
			cells:     cr.cells,
		}
	}
	out := NewArray(w, h)
	for dy := uint32(0); dy < h; dy++ {
		for dx := uint32(0); dx < w; dx++ {
			out.set(dx, dy, r.At(x+dx, y+dy))
		}
	}
	return out
}

// scalarOf reduces single cell ranges to their value. other ranges are
// returned unchanged.
func scalarOf(v Primitive) Primitive {
	if r, ok := v.(Range); ok {
		if b := r.Bounds(); b.Size.Width == 1 && b.Size.Height == 1 {
			return r.At(0, 0)
		}
	}
	return v
}

// broadcast applies fn element-wise over its arguments. plain scalars and
// single cell ranges are repeated for every position, positions outside a
// smaller range are #N/A. when no argument is a multi-cell range fn is
// applied once and its result returned as is.
func broadcast(args []Primitive, limit int, fn func([]Primitive) Primitive) Primitive {
	var width, height uint32
	arrays := make([]*Array, len(args))
	scalars := make([]Primitive, len(args))
	lifted := false
	for i, arg := range args {
		arg = scalarOf(arg)
		r, ok := arg.(Range)
		if !ok {
			scalars[i] = arg
			continue
		}
		arr, err := materialize(r, limit)
		if err != nil {
			return err
		}
		arrays[i] = arr
		width = max(width, arr.width)
		height = max(height, arr.height)
		lifted = true
	}

	if !lifted {
		return fn(scalars)
	}
	if uint64(width)*uint64(height) > uint64(limit) {
		return ErrInvalidValue
	}

	out := NewArray(width, height)
	current := make([]Primitive, len(args))
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			for i := range args {
				if arrays[i] == nil {
					current[i] = scalars[i]
				} else {
					current[i] = arrays[i].At(x, y)
				}
			}
			v := scalarOf(fn(current))
			if _, nested := v.(Range); nested {
				v = ErrInvalidValue
			}
			out.set(x, y, v)
		}
	}
	return out
}
