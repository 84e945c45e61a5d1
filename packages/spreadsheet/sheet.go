package spreadsheet

import (
	"context"
	"iter"
	"log/slog"
	"math"
)

const (
	// DefaultMaxArrayCells caps the number of cells an array result may hold
	DefaultMaxArrayCells = 1 << 22
	// DefaultMaxCalculationPasses caps re-evaluation passes caused by spills
	DefaultMaxCalculationPasses = 64
)

// Options configures a Sheet
type Options struct {
	Logger *slog.Logger
	Clock  Clock
	Rand   RandomGenerator

	// MaxArrayCells is the largest array a formula may produce. larger
	// results evaluate to #VALUE!.
	MaxArrayCells int
	// MaxCalculationPasses bounds one recalculation. cells still dirty after
	// that many passes resolve to #REF!.
	MaxCalculationPasses int
}

// DefaultOptions returns the options NewSheet starts from
func DefaultOptions() Options {
	return Options{
		Logger:               slog.New(discardHandler{}),
		Clock:                &WallClock{},
		Rand:                 &DefaultRandomGenerator{},
		MaxArrayCells:        DefaultMaxArrayCells,
		MaxCalculationPasses: DefaultMaxCalculationPasses,
	}
}

// Option changes one setting of a Sheet
type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithClock(clock Clock) Option {
	return func(o *Options) { o.Clock = clock }
}

func WithRandom(rng RandomGenerator) Option {
	return func(o *Options) { o.Rand = rng }
}

func WithMaxArrayCells(n int) Option {
	return func(o *Options) { o.MaxArrayCells = n }
}

func WithMaxCalculationPasses(n int) Option {
	return func(o *Options) { o.MaxCalculationPasses = n }
}

// EditInfo describes how a cell was written. Formula is nil for cells that
// do not hold a formula.
type EditInfo struct {
	Formula *FormulaInfo
}

// FormulaInfo is the text of a formula cell as it reads at that cell, and
// the extent of its result
type FormulaInfo struct {
	Text   string
	Extent Size
}

// Sheet is a single spreadsheet: a sparse grid of values and formulas that
// recalculates as it is edited, plus row and column display metadata.
//
// a Sheet is not safe for concurrent use.
type Sheet struct {
	opts   Options
	logger *slog.Logger

	strings   *StringTable
	formulas  *FormulaTable
	cells     *Worksheet
	graph     *DependencyGraph
	stack     *CalculationStack
	functions *BuiltInFunctions

	rows    *LengthStore
	columns *LengthStore

	size         Size
	suspendDepth int
	disposed     bool
}

// NewSheet creates an empty sheet
func NewSheet(opts ...Option) *Sheet {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(discardHandler{})
	}
	if o.MaxArrayCells <= 0 {
		o.MaxArrayCells = DefaultMaxArrayCells
	}
	if o.MaxCalculationPasses <= 0 {
		o.MaxCalculationPasses = DefaultMaxCalculationPasses
	}

	strings := NewStringTable()
	formulas := NewFormulaTable()
	return &Sheet{
		opts:      o,
		logger:    o.Logger,
		strings:   strings,
		formulas:  formulas,
		cells:     NewWorksheet(strings, formulas),
		graph:     NewDependencyGraph(),
		stack:     NewCalculationStack(),
		functions: NewBuiltInFunctions(o.Clock, o.Rand, o.MaxArrayCells),
		rows:      NewLengthStore(MaxHeight),
		columns:   NewLengthStore(MaxWidth),
	}
}

// Logger returns the logger the sheet writes to
func (s *Sheet) Logger() *slog.Logger {
	return s.logger
}

func (s *Sheet) live() error {
	if s.disposed {
		return usageError("sheet has been disposed")
	}
	return nil
}

func validatePoint(p Point) error {
	if !p.valid() {
		return validationError(OutOfRange, "cell (%d, %d) is outside the sheet", p.X, p.Y)
	}
	return nil
}

func validateRect(r Rect) error {
	if r.Empty() {
		return validationError(InvalidArgument, "area %dx%d covers no cells", r.Size.Width, r.Size.Height)
	}
	if !r.Origin.valid() || !r.withinMax() {
		return validationError(OutOfRange, "area at (%d, %d) of %dx%d is outside the sheet",
			r.Origin.X, r.Origin.Y, r.Size.Width, r.Size.Height)
	}
	return nil
}

// grow extends the used size to include p
func (s *Sheet) grow(p Point) {
	s.size.Width = max(s.size.Width, p.X+1)
	s.size.Height = max(s.size.Height, p.Y+1)
}

// settle recalculates unless recalculation is suspended
func (s *Sheet) settle() {
	if s.suspendDepth == 0 {
		s.calculate()
	}
}

// Size returns the used size of the sheet
func (s *Sheet) Size() (Size, error) {
	if err := s.live(); err != nil {
		return Size{}, err
	}
	return s.size, nil
}

// NonNullCellCount returns the number of cells whose value is not nil
func (s *Sheet) NonNullCellCount() (uint64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	return s.cells.NonBlankCount(), nil
}

// SetValue writes a scalar to a cell. nil clears it.
func (s *Sheet) SetValue(p Point, value any) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := validatePoint(p); err != nil {
		return err
	}
	v, err := normalizeScalar(value)
	if err != nil {
		return err
	}
	if v == nil {
		s.writeEmpty(p)
	} else {
		s.writeValue(p, v)
	}
	s.settle()
	return nil
}

// SetFormula writes formula text to a cell. text that does not parse is
// kept and evaluates to #ERROR!.
func (s *Sheet) SetFormula(p Point, text string) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := validatePoint(p); err != nil {
		return err
	}
	s.writeFormula(p, ParseFormula(text, p))
	s.settle()
	return nil
}

// Clear removes the content of a cell
func (s *Sheet) Clear(p Point) error {
	return s.SetValue(p, nil)
}

// Value returns the value of a cell: the stored value, or the result of its
// formula
func (s *Sheet) Value(p Point) (Primitive, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if err := validatePoint(p); err != nil {
		return nil, err
	}
	return s.cells.Value(p), nil
}

// EditInfo returns the formula of a cell
func (s *Sheet) EditInfo(p Point) (EditInfo, error) {
	if err := s.live(); err != nil {
		return EditInfo{}, err
	}
	if err := validatePoint(p); err != nil {
		return EditInfo{}, err
	}
	rec, ok := s.cells.record(p)
	if !ok || rec.kind != cellFormula {
		return EditInfo{}, nil
	}
	f, ok := s.formulas.Get(rec.formulaID)
	if !ok {
		return EditInfo{}, NewApplicationError(Internal, "formula of "+p.String()+" is missing")
	}
	return EditInfo{Formula: &FormulaInfo{Text: f.Text(p), Extent: rec.extent}}, nil
}

// SuspendRecalc defers recalculation until a matching ResumeRecalc. calls
// nest.
func (s *Sheet) SuspendRecalc() error {
	if err := s.live(); err != nil {
		return err
	}
	s.suspendDepth++
	return nil
}

// ResumeRecalc undoes one SuspendRecalc, recalculating when the last one is
// undone. resuming a sheet that is not suspended is a usage fault.
func (s *Sheet) ResumeRecalc() error {
	if err := s.live(); err != nil {
		return err
	}
	if s.suspendDepth == 0 {
		return usageError("recalculation is not suspended")
	}
	s.suspendDepth--
	s.settle()
	return nil
}

// Recalculate evaluates every dirty and volatile formula now, whether or not
// recalculation is suspended. volatile formulas are only re-evaluated here.
func (s *Sheet) Recalculate() error {
	if err := s.live(); err != nil {
		return err
	}
	s.graph.MarkAllVolatileDirty()
	s.calculate()
	return nil
}

// Dispose releases the sheet. every later call faults with ErrUsage.
func (s *Sheet) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.cells = nil
	s.graph = nil
	s.strings = nil
	s.formulas = nil
	s.rows = nil
	s.columns = nil
}

// Disposed reports whether Dispose was called
func (s *Sheet) Disposed() bool {
	return s.disposed
}

// Cells iterates the stored cells of the sheet with their values, row by row
// within 64x64 blocks. formulas still waiting for a result yield nil.
func (s *Sheet) Cells() iter.Seq2[Point, Primitive] {
	return func(yield func(Point, Primitive) bool) {
		if s.disposed {
			return
		}
		for p, rec := range s.cells.All() {
			if !yield(p, s.cells.decode(rec)) {
				return
			}
		}
	}
}

// writeValue stores a non-nil scalar at p and marks what reads it
func (s *Sheet) writeValue(p Point, v Primitive) {
	if rec, ok := s.cells.record(p); ok {
		s.dropFormula(p, rec)
	}
	s.cells.SetValue(p, v)
	s.grow(p)
	s.graph.MarkDependentsDirty(p)
}

// writeEmpty clears p. spilled cells belong to their anchor and are left
// alone.
func (s *Sheet) writeEmpty(p Point) {
	rec, ok := s.cells.record(p)
	if !ok || rec.kind == cellSpill {
		return
	}
	s.dropFormula(p, rec)
	s.cells.Remove(p)
	s.graph.MarkDependentsDirty(p)
}

// writeFormula stores f at p. while recalculation is suspended a formula
// replacing another keeps showing the old result.
func (s *Sheet) writeFormula(p Point, f *Formula) {
	var result Primitive
	old, ok := s.cells.record(p)
	if ok && old.kind == cellFormula && s.suspendDepth > 0 {
		result = s.cells.decode(old)
	}
	if ok {
		s.dropFormula(p, old)
	}
	if !f.Valid() {
		result = ErrInvalidFormula
	}

	s.cells.SetFormula(p, s.formulas.Intern(f), result)
	s.grow(p)
	if f.Valid() {
		s.register(p, f)
		s.graph.MarkDirty(p)
	} else {
		s.graph.MarkDependentsDirty(p)
	}
}

// dropFormula forgets the formula stored in rec at p, clearing its spill
func (s *Sheet) dropFormula(p Point, rec cellRecord) {
	if rec.kind != cellFormula {
		return
	}
	s.unspill(p, rec.extent, Rect{})
	s.graph.RemoveFormula(p)
}

// register adds the formula at p to the dependency graph
func (s *Sheet) register(p Point, f *Formula) {
	cells, ranges := f.precedents(p)
	s.graph.AddFormula(p, cells, ranges, f.Volatile())
}

// valueAt, storedValues and extent let formulas read the sheet

func (s *Sheet) valueAt(p Point) Primitive {
	return s.cells.Value(p)
}

func (s *Sheet) storedValues(r Rect) iter.Seq2[Point, Primitive] {
	return func(yield func(Point, Primitive) bool) {
		for p, rec := range s.cells.Cells(r) {
			if rec.blank() {
				continue
			}
			if !yield(p, s.cells.decode(rec)) {
				return
			}
		}
	}
}

func (s *Sheet) extent() Size {
	return s.size
}

// validateSpan checks that [index, index+count) lies on an axis of the given
// limit
func validateSpan(index, count, limit uint32) error {
	if index >= limit {
		return validationError(OutOfRange, "index %d is outside [0, %d)", index, limit)
	}
	if count > limit-index {
		return validationError(OutOfRange, "count %d from index %d passes %d", count, index, limit)
	}
	return nil
}

func validateLength(length uint64) error {
	if length > math.MaxUint32 {
		return validationError(OutOfRange, "length %d does not fit 32 bits", length)
	}
	return nil
}

// lengthAxis is one of the two metadata axes
type lengthAxis struct {
	store    func(*Sheet) *LengthStore
	limit    uint32
	vertical bool
}

var (
	rowAxis    = lengthAxis{store: func(s *Sheet) *LengthStore { return s.rows }, limit: MaxHeight, vertical: true}
	columnAxis = lengthAxis{store: func(s *Sheet) *LengthStore { return s.columns }, limit: MaxWidth}
)

// touchAxis grows the extent on one axis to cover [0, end)
func (s *Sheet) touchAxis(vertical bool, end uint32) {
	if vertical {
		s.size.Height = max(s.size.Height, end)
	} else {
		s.size.Width = max(s.size.Width, end)
	}
}

func (s *Sheet) updateLengths(axis lengthAxis, index, count uint32, fn func(*LengthStore)) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := validateSpan(index, count, axis.limit); err != nil {
		return err
	}
	fn(axis.store(s))
	s.touchAxis(axis.vertical, index+count)
	return nil
}

func (s *Sheet) lengthInfo(axis lengthAxis, index uint32) (LengthInfo, error) {
	if err := s.live(); err != nil {
		return LengthInfo{}, err
	}
	if index >= axis.limit {
		return LengthInfo{}, validationError(OutOfRange, "index %d is outside [0, %d)", index, axis.limit)
	}
	return axis.store(s).Get(index), nil
}

func (s *Sheet) forEachLength(axis lengthAxis, start, end uint32, fn func(start, end uint32, info LengthInfo) bool) (bool, error) {
	if err := s.live(); err != nil {
		return false, err
	}
	if start > end || end > axis.limit {
		return false, validationError(OutOfRange, "span [%d, %d) is outside [0, %d)", start, end, axis.limit)
	}
	return axis.store(s).ForEach(start, end, fn), nil
}

// SetRowHeight sets the height of count rows from y
func (s *Sheet) SetRowHeight(y, count uint32, length uint64) error {
	if err := validateLength(length); err != nil {
		return err
	}
	return s.updateLengths(rowAxis, y, count, func(ls *LengthStore) { ls.SetLength(y, count, uint32(length)) })
}

// SetColumnWidth sets the width of count columns from x
func (s *Sheet) SetColumnWidth(x, count uint32, length uint64) error {
	if err := validateLength(length); err != nil {
		return err
	}
	return s.updateLengths(columnAxis, x, count, func(ls *LengthStore) { ls.SetLength(x, count, uint32(length)) })
}

func (s *Sheet) ClearRowHeight(y, count uint32) error {
	return s.updateLengths(rowAxis, y, count, func(ls *LengthStore) { ls.ClearLength(y, count) })
}

func (s *Sheet) ClearColumnWidth(x, count uint32) error {
	return s.updateLengths(columnAxis, x, count, func(ls *LengthStore) { ls.ClearLength(x, count) })
}

func (s *Sheet) HideRows(y, count uint32, hidden bool) error {
	return s.updateLengths(rowAxis, y, count, func(ls *LengthStore) { ls.SetHidden(y, count, hidden) })
}

func (s *Sheet) HideColumns(x, count uint32, hidden bool) error {
	return s.updateLengths(columnAxis, x, count, func(ls *LengthStore) { ls.SetHidden(x, count, hidden) })
}

func (s *Sheet) RowInfo(y uint32) (LengthInfo, error) {
	return s.lengthInfo(rowAxis, y)
}

func (s *Sheet) ColumnInfo(x uint32) (LengthInfo, error) {
	return s.lengthInfo(columnAxis, x)
}

// ForEachRowInfo reports the runs of rows in [start, end) sharing the same
// info. it returns false when fn stopped the scan early.
func (s *Sheet) ForEachRowInfo(start, end uint32, fn func(start, end uint32, info LengthInfo) bool) (bool, error) {
	return s.forEachLength(rowAxis, start, end, fn)
}

// ForEachColumnInfo is ForEachRowInfo for columns
func (s *Sheet) ForEachColumnInfo(start, end uint32, fn func(start, end uint32, info LengthInfo) bool) (bool, error) {
	return s.forEachLength(columnAxis, start, end, fn)
}

// discardHandler drops every record
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h discardHandler) WithGroup(string) slog.Handler { return h }
