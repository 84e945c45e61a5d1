package spreadsheet

import (
	"fmt"
	"log/slog"
)

// Runner provides a chainable interface for sheet operations. it wraps a
// Sheet, addresses cells in A1 notation and keeps the first error: once a
// call fails every later call is a no-op.
type Runner struct {
	sheet *Sheet
	err   error
}

// NewRunner creates a runner over a new sheet
func NewRunner(opts ...Option) *Runner {
	return &Runner{sheet: NewSheet(opts...)}
}

// RunnerFor creates a runner over an existing sheet
func RunnerFor(sheet *Sheet) *Runner {
	return &Runner{sheet: sheet}
}

func resolvePoint(address string) (Point, error) {
	p, ok := ParsePoint(address)
	if !ok {
		return Point{}, validationError(InvalidArgument, "invalid cell address %q", address)
	}
	return p, nil
}

func resolveArea(address string) (Rect, error) {
	r, ok := ParseArea(address)
	if !ok {
		return Rect{}, validationError(InvalidArgument, "invalid area %q", address)
	}
	return r, nil
}

// do runs fn unless an earlier call failed
func (r *Runner) do(fn func() error) *Runner {
	if r.err != nil {
		return r
	}
	r.err = fn()
	return r
}

// Set writes a value to a cell (chainable)
func (r *Runner) Set(address string, value any) *Runner {
	return r.do(func() error {
		p, err := resolvePoint(address)
		if err != nil {
			return err
		}
		return r.sheet.SetValue(p, value)
	})
}

// Formula writes formula text to a cell (chainable)
func (r *Runner) Formula(address, text string) *Runner {
	return r.do(func() error {
		p, err := resolvePoint(address)
		if err != nil {
			return err
		}
		return r.sheet.SetFormula(p, text)
	})
}

// Clear clears a cell (chainable)
func (r *Runner) Clear(address string) *Runner {
	return r.do(func() error {
		p, err := resolvePoint(address)
		if err != nil {
			return err
		}
		return r.sheet.Clear(p)
	})
}

func (r *Runner) InsertRows(y, count uint32) *Runner {
	return r.do(func() error { return r.sheet.InsertRows(y, count) })
}

func (r *Runner) DeleteRows(y, count uint32) *Runner {
	return r.do(func() error { return r.sheet.DeleteRows(y, count) })
}

func (r *Runner) InsertColumns(x, count uint32) *Runner {
	return r.do(func() error { return r.sheet.InsertColumns(x, count) })
}

func (r *Runner) DeleteColumns(x, count uint32) *Runner {
	return r.do(func() error { return r.sheet.DeleteColumns(x, count) })
}

// Copy copies one cell into every cell of an area (chainable)
func (r *Runner) Copy(from, to string) *Runner {
	return r.do(func() error {
		src, dest, err := r.cellAndArea(from, to)
		if err != nil {
			return err
		}
		return r.sheet.CopyCell(src, dest)
	})
}

// Move is Copy followed by clearing the source (chainable)
func (r *Runner) Move(from, to string) *Runner {
	return r.do(func() error {
		src, dest, err := r.cellAndArea(from, to)
		if err != nil {
			return err
		}
		return r.sheet.MoveCell(src, dest)
	})
}

// CopyBlock copies an area so its top left corner lands on a cell
// (chainable)
func (r *Runner) CopyBlock(from, to string) *Runner {
	return r.do(func() error {
		src, dest, err := r.areaAndCell(from, to)
		if err != nil {
			return err
		}
		return r.sheet.CopyCells(src, dest)
	})
}

// MoveBlock moves an area so its top left corner lands on a cell
// (chainable)
func (r *Runner) MoveBlock(from, to string) *Runner {
	return r.do(func() error {
		src, dest, err := r.areaAndCell(from, to)
		if err != nil {
			return err
		}
		return r.sheet.MoveCells(src, dest)
	})
}

func (r *Runner) cellAndArea(from, to string) (Point, Rect, error) {
	src, err := resolvePoint(from)
	if err != nil {
		return Point{}, Rect{}, err
	}
	dest, err := resolveArea(to)
	return src, dest, err
}

func (r *Runner) areaAndCell(from, to string) (Rect, Point, error) {
	src, err := resolveArea(from)
	if err != nil {
		return Rect{}, Point{}, err
	}
	dest, err := resolvePoint(to)
	return src, dest, err
}

func (r *Runner) RowHeight(y, count uint32, length uint64) *Runner {
	return r.do(func() error { return r.sheet.SetRowHeight(y, count, length) })
}

func (r *Runner) ColumnWidth(x, count uint32, length uint64) *Runner {
	return r.do(func() error { return r.sheet.SetColumnWidth(x, count, length) })
}

func (r *Runner) HideRows(y, count uint32, hidden bool) *Runner {
	return r.do(func() error { return r.sheet.HideRows(y, count, hidden) })
}

func (r *Runner) HideColumns(x, count uint32, hidden bool) *Runner {
	return r.do(func() error { return r.sheet.HideColumns(x, count, hidden) })
}

func (r *Runner) Suspend() *Runner {
	return r.do(r.sheet.SuspendRecalc)
}

func (r *Runner) Resume() *Runner {
	return r.do(r.sheet.ResumeRecalc)
}

func (r *Runner) Recalculate() *Runner {
	return r.do(r.sheet.Recalculate)
}

// Err returns the current error state
func (r *Runner) Err() error {
	return r.err
}

// Sheet returns the underlying sheet. use with caution as it bypasses error
// tracking.
func (r *Runner) Sheet() *Sheet {
	return r.sheet
}

// Reset clears the error state (chainable)
func (r *Runner) Reset() *Runner {
	r.err = nil
	return r
}

// Then runs fn unless an earlier call failed
func (r *Runner) Then(fn func(*Runner) *Runner) *Runner {
	if r.err != nil {
		return r
	}
	return fn(r)
}

// If runs fn when condition holds and no earlier call failed
func (r *Runner) If(condition bool, fn func(*Runner) *Runner) *Runner {
	if r.err != nil || !condition {
		return r
	}
	return fn(r)
}

// OnError allows error handling in the chain. returning nil recovers.
func (r *Runner) OnError(fn func(error) error) *Runner {
	if r.err != nil {
		r.err = fn(r.err)
	}
	return r
}

// Must panics if there's an error (chainable)
func (r *Runner) Must() *Runner {
	if r.err != nil {
		panic(r.err)
	}
	return r
}

// Value returns the value of a cell, nil if the chain has failed
func (r *Runner) Value(address string) Primitive {
	if r.err != nil {
		return nil
	}
	p, err := resolvePoint(address)
	if err != nil {
		r.err = err
		return nil
	}
	v, err := r.sheet.Value(p)
	if err != nil {
		r.err = err
		return nil
	}
	return v
}

// Values returns the values of several cells
func (r *Runner) Values(addresses ...string) []Primitive {
	if r.err != nil {
		return nil
	}
	values := make([]Primitive, len(addresses))
	for i, address := range addresses {
		values[i] = r.Value(address)
		if r.err != nil {
			return nil
		}
	}
	return values
}

// Log writes the value of a cell to the sheet's logger (chainable)
func (r *Runner) Log(address string) *Runner {
	v := r.Value(address)
	if r.err != nil {
		r.sheet.Logger().Error("cell read failed", slog.String("cell", address), slog.Any("error", r.err))
		return r
	}
	r.sheet.Logger().Info("cell", slog.String("cell", address), slog.String("value", FormatValue(v)))
	return r
}

// FormatValue renders a cell value for display
func FormatValue(v Primitive) string {
	switch val := v.(type) {
	case nil:
		return "<empty>"
	case *ErrorValue:
		return val.String()
	case string:
		return fmt.Sprintf("%q", val)
	}
	return toString(v)
}
