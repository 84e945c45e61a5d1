package spreadsheet

import (
	"iter"
	"math/bits"
	"slices"

	"golang.org/x/exp/maps"
)

// cellKind distinguishes what a stored cell record holds
type cellKind uint8

const (
	cellEmpty   cellKind = iota
	cellValue            // a scalar written by the host
	cellFormula          // formula text plus cached result
	cellSpill            // one element of another formula's array result
)

// cellRecord is the stored form of one cell. a record owns one reference to
// its interned text (stringID) and, for formula cells, to its formula.
type cellRecord struct {
	kind      cellKind
	value     Primitive // non-text value or cached result
	stringID  uint32    // interned text value, 0 when the value is not text
	formulaID uint32    // formula table id for formula cells
	extent    Size      // result extent for formula cells
	anchor    Point     // owning formula for spill cells
}

// ChunkKey represents the key for indexing chunks in Worksheet
type ChunkKey struct {
	ChunkRow uint32
	ChunkCol uint32
}

const (
	ChunkRows uint32 = 64                    // rows per chunk - power of 2 for efficient modulo
	ChunkCols uint32 = 64                    // columns per chunk
	ChunkSize        = ChunkRows * ChunkCols // 4096 cells per chunk
)

// Chunk is a ChunkRows x ChunkCols region of cells, row-major
type Chunk struct {
	Cells          []cellRecord
	OccupiedBitmap []uint64 // bit-packed occupancy, 64 cells per word
	NonEmptyCount  int
}

// Worksheet is the sparse cell store of a sheet.
//
// architecture:
// - cells are partitioned into 64x64 chunks for spatial locality
// - chunks are allocated on first write and dropped when they empty out
// - text is interned through the StringTable, formulas through the
// FormulaTable, records only hold ids
type Worksheet struct {
	chunks     map[ChunkKey]*Chunk
	totalCells uint64
	blankCells uint64 // stored records whose value is nil, pending formulas
	strings    *StringTable
	formulas   *FormulaTable
}

// NewWorksheet creates an empty cell store
func NewWorksheet(strings *StringTable, formulas *FormulaTable) *Worksheet {
	return &Worksheet{
		chunks:   make(map[ChunkKey]*Chunk),
		strings:  strings,
		formulas: formulas,
	}
}

func locate(p Point) (ChunkKey, uint32) {
	key := ChunkKey{ChunkRow: p.Y / ChunkRows, ChunkCol: p.X / ChunkCols}
	return key, (p.Y%ChunkRows)*ChunkCols + p.X%ChunkCols
}

func (c *Chunk) occupied(idx uint32) bool {
	return c.OccupiedBitmap[idx/64]&(1<<(idx%64)) != 0
}

// record returns the stored record at p
func (w *Worksheet) record(p Point) (cellRecord, bool) {
	key, idx := locate(p)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) {
		return cellRecord{}, false
	}
	return chunk.Cells[idx], true
}

// decode returns the value held by a record
func (w *Worksheet) decode(rec cellRecord) Primitive {
	if rec.stringID != 0 {
		if s, ok := w.strings.GetString(rec.stringID); ok {
			return s
		}
	}
	return rec.value
}

// encode stores v into rec, interning text
func (w *Worksheet) encode(rec *cellRecord, v Primitive) {
	if s, ok := v.(string); ok {
		rec.stringID = w.strings.Intern(s)
		rec.value = nil
		return
	}
	rec.stringID = 0
	rec.value = v
}

// Value returns the value visible at p, nil for empty cells
func (w *Worksheet) Value(p Point) Primitive {
	rec, ok := w.record(p)
	if !ok {
		return nil
	}
	return w.decode(rec)
}

// release drops the references a record owns
func (w *Worksheet) release(rec cellRecord) {
	if rec.stringID != 0 {
		w.strings.RemoveReference(rec.stringID)
	}
	if rec.formulaID != 0 {
		w.formulas.RemoveReference(rec.formulaID)
	}
}

// retain adds the references a copy of rec will own
func (w *Worksheet) retain(rec cellRecord) cellRecord {
	if rec.stringID != 0 {
		w.strings.AddReference(rec.stringID)
	}
	if rec.formulaID != 0 {
		w.formulas.AddReference(rec.formulaID)
	}
	return rec
}

// put stores rec at p, taking over its references and releasing whatever
// was there before
func (w *Worksheet) put(p Point, rec cellRecord) {
	key, idx := locate(p)
	chunk, exists := w.chunks[key]
	if !exists {
		chunk = &Chunk{
			Cells:          make([]cellRecord, ChunkSize),
			OccupiedBitmap: make([]uint64, ChunkSize/64),
		}
		w.chunks[key] = chunk
	}

	if chunk.occupied(idx) {
		w.release(chunk.Cells[idx])
		if chunk.Cells[idx].blank() {
			w.blankCells--
		}
	} else {
		chunk.OccupiedBitmap[idx/64] |= 1 << (idx % 64)
		chunk.NonEmptyCount++
		w.totalCells++
	}
	chunk.Cells[idx] = rec
	if rec.blank() {
		w.blankCells++
	}
}

func (rec cellRecord) blank() bool {
	return rec.value == nil && rec.stringID == 0
}

// take removes the record at p and hands its references to the caller
func (w *Worksheet) take(p Point) (cellRecord, bool) {
	key, idx := locate(p)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) {
		return cellRecord{}, false
	}
	rec := chunk.Cells[idx]
	chunk.Cells[idx] = cellRecord{}
	chunk.OccupiedBitmap[idx/64] &^= 1 << (idx % 64)
	chunk.NonEmptyCount--
	w.totalCells--
	if rec.blank() {
		w.blankCells--
	}
	if chunk.NonEmptyCount == 0 {
		delete(w.chunks, key)
	}
	return rec, true
}

// Remove clears the cell at p. returns false if it was already empty.
func (w *Worksheet) Remove(p Point) bool {
	rec, ok := w.take(p)
	if ok {
		w.release(rec)
	}
	return ok
}

// SetValue stores a scalar value cell
func (w *Worksheet) SetValue(p Point, v Primitive) {
	rec := cellRecord{kind: cellValue}
	w.encode(&rec, v)
	w.put(p, rec)
}

// SetFormula stores a formula cell. the caller hands over one reference to
// formulaID.
func (w *Worksheet) SetFormula(p Point, formulaID uint32, result Primitive) {
	rec := cellRecord{kind: cellFormula, formulaID: formulaID, extent: Size{Width: 1, Height: 1}}
	w.encode(&rec, result)
	w.put(p, rec)
}

// SetFormulaResult replaces the cached result of the formula cell at p
func (w *Worksheet) SetFormulaResult(p Point, result Primitive, extent Size) {
	key, idx := locate(p)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) || chunk.Cells[idx].kind != cellFormula {
		return
	}
	rec := &chunk.Cells[idx]
	if rec.stringID != 0 {
		w.strings.RemoveReference(rec.stringID)
	}
	if rec.blank() {
		w.blankCells--
	}
	w.encode(rec, result)
	if rec.blank() {
		w.blankCells++
	}
	rec.extent = extent
}

// ReplaceFormula swaps the formula of the formula cell at p. the caller hands
// over one reference to formulaID.
func (w *Worksheet) ReplaceFormula(p Point, formulaID uint32) {
	key, idx := locate(p)
	chunk, exists := w.chunks[key]
	if !exists || !chunk.occupied(idx) || chunk.Cells[idx].kind != cellFormula {
		w.formulas.RemoveReference(formulaID)
		return
	}
	rec := &chunk.Cells[idx]
	w.formulas.RemoveReference(rec.formulaID)
	rec.formulaID = formulaID
}

// SetSpill stores one element of anchor's array result at p
func (w *Worksheet) SetSpill(p Point, anchor Point, v Primitive) {
	rec := cellRecord{kind: cellSpill, anchor: anchor}
	w.encode(&rec, v)
	w.put(p, rec)
}

// NonBlankCount returns the number of stored cells with a value. formula
// cells still waiting for their first result do not count.
func (w *Worksheet) NonBlankCount() uint64 {
	return w.totalCells - w.blankCells
}

func (w *Worksheet) sortedChunkKeys() []ChunkKey {
	keys := maps.Keys(w.chunks)
	slices.SortFunc(keys, func(a, b ChunkKey) int {
		if a.ChunkRow != b.ChunkRow {
			if a.ChunkRow < b.ChunkRow {
				return -1
			}
			return 1
		}
		if a.ChunkCol < b.ChunkCol {
			return -1
		}
		if a.ChunkCol > b.ChunkCol {
			return 1
		}
		return 0
	})
	return keys
}

// Cells iterates the stored cells inside r. chunks are visited top to
// bottom, left to right, and cells row-major within each chunk.
func (w *Worksheet) Cells(r Rect) iter.Seq2[Point, cellRecord] {
	return func(yield func(Point, cellRecord) bool) {
		if r.Empty() {
			return
		}
		last := r.last()
		for _, key := range w.sortedChunkKeys() {
			baseX := key.ChunkCol * ChunkCols
			baseY := key.ChunkRow * ChunkRows
			if baseX > last.X || baseY > last.Y ||
				uint64(baseX)+uint64(ChunkCols) <= uint64(r.Origin.X) ||
				uint64(baseY)+uint64(ChunkRows) <= uint64(r.Origin.Y) {
				continue
			}
			chunk := w.chunks[key]
			for word, bitsLeft := range chunk.OccupiedBitmap {
				for bitsLeft != 0 {
					bit := uint32(bits.TrailingZeros64(bitsLeft))
					bitsLeft &^= 1 << bit
					idx := uint32(word)*64 + bit
					p := Point{X: baseX + idx%ChunkCols, Y: baseY + idx/ChunkCols}
					if !r.Contains(p) {
						continue
					}
					if !yield(p, chunk.Cells[idx]) {
						return
					}
				}
			}
		}
	}
}

// All iterates every stored cell
func (w *Worksheet) All() iter.Seq2[Point, cellRecord] {
	return w.Cells(Rect{Size: MaxSize})
}

// Remap moves every stored cell to fn(point). cells for which fn returns
// false are dropped, spill cells are dropped when their anchor is. fn must
// not map two cells onto the same point.
func (w *Worksheet) Remap(fn func(Point) (Point, bool)) {
	type moved struct {
		at  Point
		rec cellRecord
	}
	var kept []moved
	for p, rec := range w.All() {
		to, ok := fn(p)
		if ok && rec.kind == cellSpill {
			rec.anchor, ok = fn(rec.anchor)
		}
		if ok {
			kept = append(kept, moved{at: to, rec: rec})
		} else {
			w.release(rec)
		}
	}

	w.chunks = make(map[ChunkKey]*Chunk)
	w.totalCells = 0
	w.blankCells = 0
	for _, m := range kept {
		w.put(m.at, m.rec)
	}
}
