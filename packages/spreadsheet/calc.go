package spreadsheet

import (
	"errors"
	"fmt"
	"log/slog"
)

// CalculationStack tracks cells being evaluated and the cells finished in
// the current pass
type CalculationStack struct {
	stack      []Point
	processing map[Point]struct{}
	completed  map[Point]struct{}
}

func NewCalculationStack() *CalculationStack {
	return &CalculationStack{
		processing: make(map[Point]struct{}),
		completed:  make(map[Point]struct{}),
	}
}

func (cs *CalculationStack) push(p Point) {
	cs.stack = append(cs.stack, p)
	cs.processing[p] = struct{}{}
}

func (cs *CalculationStack) pop() (Point, bool) {
	if len(cs.stack) == 0 {
		return Point{}, false
	}
	p := cs.stack[len(cs.stack)-1]
	cs.stack = cs.stack[:len(cs.stack)-1]
	delete(cs.processing, p)
	return p, true
}

func (cs *CalculationStack) isProcessing(p Point) bool {
	_, ok := cs.processing[p]
	return ok
}

func (cs *CalculationStack) markCompleted(p Point) {
	cs.completed[p] = struct{}{}
}

func (cs *CalculationStack) isCompleted(p Point) bool {
	_, ok := cs.completed[p]
	return ok
}

func (cs *CalculationStack) reset() {
	cs.stack = cs.stack[:0]
	clear(cs.processing)
	clear(cs.completed)
}

// cycleError travels up the calculation stack from the cell that closed a
// circular reference back to the cell it started at
type cycleError struct {
	head Point
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("circular reference through %s", e.head)
}

// calculate evaluates every dirty formula. evaluation runs in passes: a pass
// evaluates the cells dirty when it starts, spills written during a pass can
// dirty cells that were already evaluated, and those wait for the next one.
func (s *Sheet) calculate() {
	if s.graph.DirtyCount() == 0 {
		return
	}

	passes := 0
	evaluated := 0
	for s.graph.DirtyCount() > 0 {
		if passes == s.opts.MaxCalculationPasses {
			s.logger.Debug("calculation did not settle",
				slog.Int("passes", passes),
				slog.Int("dirty", s.graph.DirtyCount()))
			// clearing a spill can dirty another stuck anchor. once every
			// anchor holds a single cell this stops.
			for s.graph.DirtyCount() > 0 {
				for _, p := range s.graph.SortedDirty() {
					s.storeResult(p, ErrInvalidReference)
					s.graph.ClearDirty(p)
				}
			}
			break
		}
		passes++
		s.stack.reset()

		dirty := s.graph.SortedDirty()
		s.logger.Debug("calculation pass", slog.Int("pass", passes), slog.Int("dirty", len(dirty)))
		for _, p := range dirty {
			if !s.graph.IsDirty(p) || s.stack.isCompleted(p) {
				continue
			}
			// a cycle error that reaches the top has already been stored
			_ = s.calculateCell(p)
		}
		evaluated += len(s.stack.completed)
	}
	s.stack.reset()
	s.logger.Debug("calculation finished", slog.Int("passes", passes), slog.Int("evaluated", evaluated), slog.Int("formulas", s.graph.FormulaCount()))
}

// calculateCell evaluates one formula cell after the dirty cells it reads
func (s *Sheet) calculateCell(p Point) error {
	if s.stack.isCompleted(p) {
		return nil
	}
	if s.stack.isProcessing(p) {
		s.logger.Debug("circular reference", slog.String("cell", p.String()))
		return &cycleError{head: p}
	}

	rec, ok := s.cells.record(p)
	if !ok || rec.kind != cellFormula {
		s.graph.ClearDirty(p)
		return nil
	}
	formula, ok := s.formulas.Get(rec.formulaID)
	if !ok {
		s.graph.ClearDirty(p)
		return nil
	}

	s.stack.push(p)
	defer func() {
		s.stack.pop()
		s.stack.markCompleted(p)
		s.graph.ClearDirty(p)
	}()

	// a cell cannot depend on a range that includes itself
	for _, r := range s.graph.GetRangePrecedents(p) {
		if r.Contains(p) {
			s.storeResult(p, ErrInvalidReference)
			return nil
		}
	}

	if err := s.calculatePrecedents(p); err != nil {
		var cycle *cycleError
		if errors.As(err, &cycle) {
			s.storeResult(p, ErrInvalidReference)
			if cycle.head == p {
				return nil
			}
			return err
		}
	}

	s.storeResult(p, formula.Eval(p, s, s.functions, s.opts.MaxArrayCells))
	return nil
}

// calculatePrecedents brings every dirty cell p reads up to date
func (s *Sheet) calculatePrecedents(p Point) error {
	for _, q := range s.graph.GetDirectPrecedents(p) {
		if err := s.calculateInput(q); err != nil {
			return err
		}
	}

	for _, r := range s.graph.GetRangePrecedents(p) {
		var inputs []Point
		if r.Size.area() <= uint64(s.graph.DirtyCount()) {
			for q, rec := range s.cells.Cells(r) {
				switch {
				case rec.kind == cellFormula && s.graph.IsDirty(q):
					inputs = append(inputs, q)
				case rec.kind == cellSpill && s.graph.IsDirty(rec.anchor):
					inputs = append(inputs, rec.anchor)
				}
			}
		} else {
			inputs = append(s.graph.dirtyIn(r), s.graph.dirtyAnchorsOver(r)...)
		}
		for _, q := range inputs {
			if err := s.calculateCell(q); err != nil {
				return err
			}
		}
	}
	return nil
}

// calculateInput brings a single input cell up to date. spilled cells are
// brought up to date by evaluating their anchor.
func (s *Sheet) calculateInput(q Point) error {
	if s.graph.IsDirty(q) {
		return s.calculateCell(q)
	}
	if rec, ok := s.cells.record(q); ok && rec.kind == cellSpill && s.graph.IsDirty(rec.anchor) {
		return s.calculateCell(rec.anchor)
	}
	return nil
}

// storeResult writes the value of the formula at p, spilling array results
// into the cells below and to the right
func (s *Sheet) storeResult(p Point, result Primitive) {
	rec, ok := s.cells.record(p)
	if !ok || rec.kind != cellFormula {
		return
	}
	oldExtent := rec.extent

	value, arr := s.resultShape(result)
	if arr == nil {
		s.unspill(p, oldExtent, Rect{})
		s.graph.ClearSpillRegion(p)
		s.cells.SetFormulaResult(p, value, Size{Width: 1, Height: 1})
		return
	}

	want := Rect{Origin: p, Size: Size{Width: arr.width, Height: arr.height}}
	if s.readsOwnSpill(p, want) {
		s.logger.Debug("array reads its own result", slog.String("anchor", p.String()), slog.String("extent", want.String()))
		s.unspill(p, oldExtent, Rect{})
		s.graph.ClearSpillRegion(p)
		s.cells.SetFormulaResult(p, ErrInvalidReference, Size{Width: 1, Height: 1})
		return
	}
	s.graph.SetSpillRegion(p, want)
	if blocker, blocked := s.spillBlocker(p, want); blocked {
		s.logger.Debug("spill blocked",
			slog.String("anchor", p.String()),
			slog.String("extent", want.String()),
			slog.String("blocker", blocker.String()))
		s.unspill(p, oldExtent, Rect{})
		s.cells.SetFormulaResult(p, ErrSpill, Size{Width: 1, Height: 1})
		return
	}

	s.unspill(p, oldExtent, want)
	s.cells.SetFormulaResult(p, spillValue(arr.At(0, 0)), want.Size)
	for y := uint32(0); y < arr.height; y++ {
		for x := uint32(0); x < arr.width; x++ {
			if x == 0 && y == 0 {
				continue
			}
			q := Point{X: p.X + x, Y: p.Y + y}
			v := spillValue(arr.At(x, y))
			if old, ok := s.cells.record(q); ok && old.kind == cellSpill && old.anchor == p && sameValue(s.cells.decode(old), v) {
				continue
			}
			s.cells.SetSpill(q, p, v)
			s.graph.markSpillChange(q, p)
		}
	}
	s.grow(want.last())
}

// resultShape reduces a formula result to a scalar, or to the array it
// spills
func (s *Sheet) resultShape(result Primitive) (Primitive, *Array) {
	result = scalarOf(result)
	r, isRange := result.(Range)
	if !isRange {
		if result == nil {
			return 0.0, nil
		}
		return result, nil
	}
	arr, errValue := materialize(r, s.opts.MaxArrayCells)
	if errValue != nil {
		return errValue, nil
	}
	if arr.width == 1 && arr.height == 1 {
		return spillValue(arr.At(0, 0)), nil
	}
	return nil, arr
}

// spillValue is the value stored for one array element
func spillValue(v Primitive) Primitive {
	switch v.(type) {
	case nil:
		return 0.0
	case Range:
		return ErrInvalidValue
	}
	return v
}

// readsOwnSpill reports whether the formula at anchor reads a cell its array
// result would cover
func (s *Sheet) readsOwnSpill(anchor Point, want Rect) bool {
	for _, q := range s.graph.GetDirectPrecedents(anchor) {
		if q != anchor && want.Contains(q) {
			return true
		}
	}
	for _, r := range s.graph.GetRangePrecedents(anchor) {
		if r.Intersects(want) {
			return true
		}
	}
	return false
}

// spillBlocker finds a cell preventing anchor from spilling into want
func (s *Sheet) spillBlocker(anchor Point, want Rect) (Point, bool) {
	if !want.withinMax() {
		return want.Origin, true
	}
	for q, rec := range s.cells.Cells(want) {
		if q == anchor {
			continue
		}
		if rec.kind != cellSpill || rec.anchor != anchor {
			return q, true
		}
	}
	return Point{}, false
}

// unspill clears the spill cells of anchor inside its old extent that fall
// outside keep
func (s *Sheet) unspill(anchor Point, extent Size, keep Rect) {
	if extent.Width <= 1 && extent.Height <= 1 {
		return
	}
	old := Rect{Origin: anchor, Size: extent}
	var cleared []Point
	for q, rec := range s.cells.Cells(old) {
		if rec.kind == cellSpill && rec.anchor == anchor && !keep.Contains(q) {
			cleared = append(cleared, q)
		}
	}
	for _, q := range cleared {
		s.cells.Remove(q)
		s.graph.markSpillChange(q, anchor)
	}
}
