package spreadsheet

import (
	"log/slog"
)

// InsertRows opens count empty rows at y, shifting everything at or below y
// down
func (s *Sheet) InsertRows(y, count uint32) error {
	return s.insert(true, y, count)
}

// InsertColumns opens count empty columns at x, shifting everything at or
// right of x
func (s *Sheet) InsertColumns(x, count uint32) error {
	return s.insert(false, x, count)
}

// DeleteRows removes count rows from y. deleting past the used rows removes
// everything from y on.
func (s *Sheet) DeleteRows(y, count uint32) error {
	return s.delete(true, y, count)
}

// DeleteColumns removes count columns from x
func (s *Sheet) DeleteColumns(x, count uint32) error {
	return s.delete(false, x, count)
}

func axisName(vertical bool) string {
	if vertical {
		return "rows"
	}
	return "columns"
}

func (s *Sheet) axisExtent(vertical bool) uint32 {
	if vertical {
		return s.size.Height
	}
	return s.size.Width
}

func (s *Sheet) setAxisExtent(vertical bool, v uint32) {
	if vertical {
		s.size.Height = v
	} else {
		s.size.Width = v
	}
}

func (s *Sheet) insert(vertical bool, at, count uint32) error {
	if err := s.live(); err != nil {
		return err
	}
	limit := uint32(axisLimit(vertical))
	if at >= limit {
		return validationError(OutOfRange, "index %d is outside [0, %d)", at, limit)
	}
	if count == 0 {
		return nil
	}
	extent := s.axisExtent(vertical)
	if count > limit-max(at, extent) {
		return structuralError("inserting %d %s at %d passes the sheet limit of %d", count, axisName(vertical), at, limit)
	}

	s.logger.Debug("insert", slog.String("axis", axisName(vertical)), slog.Uint64("index", uint64(at)), slog.Uint64("count", uint64(count)))
	s.restructure(vertical,
		func(v uint32) (uint32, bool) {
			if v < at {
				return v, true
			}
			if v >= limit-count {
				return 0, false
			}
			return v + count, true
		},
		insertMapper(int64(at), int64(count), vertical))

	if vertical {
		s.rows.Insert(at, count)
	} else {
		s.columns.Insert(at, count)
	}
	if at < extent {
		s.setAxisExtent(vertical, extent+count)
	} else {
		s.setAxisExtent(vertical, at+count)
	}
	s.settle()
	return nil
}

func (s *Sheet) delete(vertical bool, at, count uint32) error {
	if err := s.live(); err != nil {
		return err
	}
	limit := uint32(axisLimit(vertical))
	if at >= limit {
		return validationError(OutOfRange, "index %d is outside [0, %d)", at, limit)
	}
	if count == 0 {
		return nil
	}
	if count > limit-at {
		return structuralError("deleting %d %s at %d passes the sheet limit of %d", count, axisName(vertical), at, limit)
	}

	extent := s.axisExtent(vertical)
	s.logger.Debug("delete", slog.String("axis", axisName(vertical)), slog.Uint64("index", uint64(at)), slog.Uint64("count", uint64(count)))
	stop := at + count
	s.restructure(vertical,
		func(v uint32) (uint32, bool) {
			switch {
			case v < at:
				return v, true
			case v < stop:
				return 0, false
			}
			return v - count, true
		},
		deleteMapper(int64(at), int64(count)))

	if vertical {
		s.rows.Remove(at, count)
	} else {
		s.columns.Remove(at, count)
	}
	// references shift by the full count, the extent only loses used indices
	if at < extent {
		s.setAxisExtent(vertical, extent-min(count, extent-at))
	}
	s.settle()
	return nil
}

// restructure moves every cell along one axis through mapIndex, rewrites
// every formula's references through mapAxis and rebuilds the dependency
// graph. array results are dropped and come back when their anchors are
// recalculated.
func (s *Sheet) restructure(vertical bool, mapIndex func(uint32) (uint32, bool), mapAxis func(lo, hi int64, span bool) (int64, int64, bool)) {
	s.dropSpills()

	mapPoint := func(p Point) (Point, bool) {
		if vertical {
			y, ok := mapIndex(p.Y)
			return Point{X: p.X, Y: y}, ok
		}
		x, ok := mapIndex(p.X)
		return Point{X: x, Y: p.Y}, ok
	}

	type rewrite struct {
		at Point
		id uint32
	}
	var rewrites []rewrite
	for p, rec := range s.cells.All() {
		if rec.kind != cellFormula {
			continue
		}
		f, ok := s.formulas.Get(rec.formulaID)
		if !ok {
			continue
		}
		to, kept := mapPoint(p)
		if !kept {
			continue
		}
		moved := f.mapRefs(func(r Reference) Reference {
			return r.relocate(p, to, vertical, mapAxis)
		})
		if moved != f {
			rewrites = append(rewrites, rewrite{at: p, id: s.formulas.Intern(moved)})
		}
	}
	for _, rw := range rewrites {
		s.cells.ReplaceFormula(rw.at, rw.id)
	}

	s.cells.Remap(mapPoint)
	s.rebuildGraph()
}

// dropSpills removes every spilled cell and resets every anchor to a single
// cell result
func (s *Sheet) dropSpills() {
	var spilled, anchors []Point
	for p, rec := range s.cells.All() {
		switch {
		case rec.kind == cellSpill:
			spilled = append(spilled, p)
		case rec.kind == cellFormula && rec.extent != (Size{Width: 1, Height: 1}):
			anchors = append(anchors, p)
		}
	}
	for _, p := range spilled {
		s.cells.Remove(p)
	}
	for _, p := range anchors {
		s.cells.SetFormulaResult(p, s.cells.Value(p), Size{Width: 1, Height: 1})
	}
}

// rebuildGraph registers every formula again and marks them all dirty
func (s *Sheet) rebuildGraph() {
	s.graph.Reset()
	for p, rec := range s.cells.All() {
		if rec.kind != cellFormula {
			continue
		}
		if f, ok := s.formulas.Get(rec.formulaID); ok && f.Valid() {
			s.register(p, f)
		}
	}
	s.graph.MarkAllFormulasDirty()
}

// stagedCell is a cell read out of the sheet ahead of a copy or move
type stagedCell struct {
	value   Primitive
	formula *Formula // nil for value cells
}

// stage reads the cell at p. spilled cells read as empty.
func (s *Sheet) stage(p Point) (stagedCell, bool) {
	rec, ok := s.cells.record(p)
	if !ok || rec.kind == cellSpill {
		return stagedCell{}, false
	}
	if rec.kind == cellFormula {
		f, ok := s.formulas.Get(rec.formulaID)
		if !ok {
			return stagedCell{}, false
		}
		return stagedCell{formula: f}, true
	}
	return stagedCell{value: s.cells.decode(rec)}, true
}

// place writes a staged cell at p, or clears p when there is nothing staged
func (s *Sheet) place(p Point, c stagedCell, present bool) {
	switch {
	case !present:
		s.writeEmpty(p)
	case c.formula != nil:
		s.writeFormula(p, c.formula.mapRefs(func(r Reference) Reference { return r.copiedTo(p) }))
	default:
		s.writeValue(p, c.value)
	}
}

// CopyCell copies the cell at from into every cell of to
func (s *Sheet) CopyCell(from Point, to Rect) error {
	return s.copyCell(from, to, false)
}

// MoveCell copies the cell at from into every cell of to and clears from,
// unless from lies inside to
func (s *Sheet) MoveCell(from Point, to Rect) error {
	return s.copyCell(from, to, true)
}

// CopyCells copies the block from so its top left corner lands at to
func (s *Sheet) CopyCells(from Rect, to Point) error {
	return s.copyCells(from, to, false)
}

// MoveCells moves the block from so its top left corner lands at to. the
// source is read in full before anything is written, so the blocks may
// overlap.
func (s *Sheet) MoveCells(from Rect, to Point) error {
	return s.copyCells(from, to, true)
}

func (s *Sheet) copyCell(from Point, to Rect, move bool) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := validatePoint(from); err != nil {
		return err
	}
	if err := validateRect(to); err != nil {
		return structuralError("destination: %s", err.(*AppError).Message)
	}

	s.logger.Debug("copy cell", slog.String("from", from.String()), slog.String("to", to.String()), slog.Bool("move", move))
	c, present := s.stage(from)
	if move {
		s.writeEmpty(from)
	}
	if !present {
		var occupied []Point
		for p := range s.cells.Cells(to) {
			occupied = append(occupied, p)
		}
		for _, p := range occupied {
			s.writeEmpty(p)
		}
	} else {
		last := to.last()
		for y := to.Origin.Y; y <= last.Y; y++ {
			for x := to.Origin.X; x <= last.X; x++ {
				s.place(Point{X: x, Y: y}, c, true)
			}
		}
	}
	s.settle()
	return nil
}

func (s *Sheet) copyCells(from Rect, to Point, move bool) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := validateRect(from); err != nil {
		return err
	}
	dest := Rect{Origin: to, Size: from.Size}
	if err := validateRect(dest); err != nil {
		return structuralError("destination: %s", err.(*AppError).Message)
	}

	s.logger.Debug("copy cells", slog.String("from", from.String()), slog.String("to", dest.String()), slog.Bool("move", move))
	staged := make(map[Point]stagedCell)
	var sources []Point
	for p := range s.cells.Cells(from) {
		sources = append(sources, p)
		if c, ok := s.stage(p); ok {
			staged[Point{X: p.X - from.Origin.X, Y: p.Y - from.Origin.Y}] = c
		}
	}

	if move {
		for _, p := range sources {
			s.writeEmpty(p)
		}
	}
	var stale []Point
	for p := range s.cells.Cells(dest) {
		if _, ok := staged[Point{X: p.X - to.X, Y: p.Y - to.Y}]; !ok {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		s.writeEmpty(p)
	}
	for offset, c := range staged {
		s.place(Point{X: to.X + offset.X, Y: to.Y + offset.Y}, c, true)
	}
	s.settle()
	return nil
}
