package spreadsheet

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sheetTestCase struct {
	t     *testing.T
	name  string
	sheet *Sheet
	err   error
}

func newSheetTestCase(t *testing.T, name string, opts ...Option) *sheetTestCase {
	return &sheetTestCase{t: t, name: name, sheet: NewSheet(opts...)}
}

func (tc *sheetTestCase) point(address string) Point {
	tc.t.Helper()
	p, ok := ParsePoint(address)
	require.Truef(tc.t, ok, "%s: bad address %q", tc.name, address)
	return p
}

func (tc *sheetTestCase) area(address string) Rect {
	tc.t.Helper()
	r, ok := ParseArea(address)
	require.Truef(tc.t, ok, "%s: bad area %q", tc.name, address)
	return r
}

// apply runs one edit, stopping the case at the first failure
func (tc *sheetTestCase) apply(op string, fn func() error) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	tc.err = fn()
	assert.NoErrorf(tc.t, tc.err, "%s: %s", tc.name, op)
	return tc
}

func (tc *sheetTestCase) Set(address string, value any) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("Set("+address+")", func() error { return tc.sheet.SetValue(tc.point(address), value) })
}

func (tc *sheetTestCase) Formula(address, text string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("Formula("+address+")", func() error { return tc.sheet.SetFormula(tc.point(address), text) })
}

func (tc *sheetTestCase) Clear(address string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("Clear("+address+")", func() error { return tc.sheet.Clear(tc.point(address)) })
}

func (tc *sheetTestCase) InsertRows(y, count uint32) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("InsertRows", func() error { return tc.sheet.InsertRows(y, count) })
}

func (tc *sheetTestCase) DeleteRows(y, count uint32) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("DeleteRows", func() error { return tc.sheet.DeleteRows(y, count) })
}

func (tc *sheetTestCase) InsertColumns(x, count uint32) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("InsertColumns", func() error { return tc.sheet.InsertColumns(x, count) })
}

func (tc *sheetTestCase) DeleteColumns(x, count uint32) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("DeleteColumns", func() error { return tc.sheet.DeleteColumns(x, count) })
}

func (tc *sheetTestCase) Copy(from, to string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("CopyCell("+from+")", func() error { return tc.sheet.CopyCell(tc.point(from), tc.area(to)) })
}

func (tc *sheetTestCase) Move(from, to string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("MoveCell("+from+")", func() error { return tc.sheet.MoveCell(tc.point(from), tc.area(to)) })
}

func (tc *sheetTestCase) CopyBlock(from, to string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("CopyCells("+from+")", func() error { return tc.sheet.CopyCells(tc.area(from), tc.point(to)) })
}

func (tc *sheetTestCase) MoveBlock(from, to string) *sheetTestCase {
	tc.t.Helper()
	return tc.apply("MoveCells("+from+")", func() error { return tc.sheet.MoveCells(tc.area(from), tc.point(to)) })
}

func (tc *sheetTestCase) Suspend() *sheetTestCase {
	tc.t.Helper()
	return tc.apply("SuspendRecalc", tc.sheet.SuspendRecalc)
}

func (tc *sheetTestCase) Resume() *sheetTestCase {
	tc.t.Helper()
	return tc.apply("ResumeRecalc", tc.sheet.ResumeRecalc)
}

func (tc *sheetTestCase) Recalculate() *sheetTestCase {
	tc.t.Helper()
	return tc.apply("Recalculate", tc.sheet.Recalculate)
}

// ExpectFault runs fn and checks that it fails with the given kind of fault
func (tc *sheetTestCase) ExpectFault(kind error, fn func(s *Sheet) error) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	err := fn(tc.sheet)
	if assert.Errorf(tc.t, err, "%s: expected a fault", tc.name) {
		assert.Truef(tc.t, errors.Is(err, kind), "%s: got %v, want %v", tc.name, err, kind)
	}
	return tc
}

func (tc *sheetTestCase) value(address string) (Primitive, bool) {
	tc.t.Helper()
	if tc.err != nil {
		return nil, false
	}
	v, err := tc.sheet.Value(tc.point(address))
	if !assert.NoErrorf(tc.t, err, "%s: Value(%s)", tc.name, address) {
		return nil, false
	}
	return v, true
}

func (tc *sheetTestCase) AssertCellEq(address string, expected Primitive) *sheetTestCase {
	tc.t.Helper()
	actual, ok := tc.value(address)
	if !ok {
		return tc
	}
	switch exp := expected.(type) {
	case float64:
		if act, isNum := actual.(float64); assert.Truef(tc.t, isNum, "%s: cell %s = %v (%T), want %v", tc.name, address, actual, actual, exp) {
			assert.InDeltaf(tc.t, exp, act, 1e-10, "%s: cell %s", tc.name, address)
		}
	case int:
		if act, isNum := actual.(float64); assert.Truef(tc.t, isNum, "%s: cell %s = %v (%T), want %v", tc.name, address, actual, actual, exp) {
			assert.InDeltaf(tc.t, float64(exp), act, 1e-10, "%s: cell %s", tc.name, address)
		}
	case ErrorCode:
		if ev, isErr := actual.(*ErrorValue); assert.Truef(tc.t, isErr, "%s: cell %s = %v, want error %d", tc.name, address, actual, exp) {
			assert.Equalf(tc.t, exp, ev.Code(), "%s: cell %s holds %s", tc.name, address, ev)
		}
	default:
		assert.Equalf(tc.t, expected, actual, "%s: cell %s", tc.name, address)
	}
	return tc
}

func (tc *sheetTestCase) AssertCellEmpty(address string) *sheetTestCase {
	tc.t.Helper()
	if actual, ok := tc.value(address); ok {
		assert.Nilf(tc.t, actual, "%s: cell %s", tc.name, address)
	}
	return tc
}

func (tc *sheetTestCase) AssertCellErr(address string, code ErrorCode) *sheetTestCase {
	tc.t.Helper()
	return tc.AssertCellEq(address, code)
}

func (tc *sheetTestCase) AssertCellFn(address string, fn func(t *testing.T, value Primitive)) *sheetTestCase {
	tc.t.Helper()
	if actual, ok := tc.value(address); ok {
		fn(tc.t, actual)
	}
	return tc
}

// AssertText checks the formula text of a cell as it reads there
func (tc *sheetTestCase) AssertText(address, text string) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	info, err := tc.sheet.EditInfo(tc.point(address))
	if assert.NoErrorf(tc.t, err, "%s: EditInfo(%s)", tc.name, address) &&
		assert.NotNilf(tc.t, info.Formula, "%s: cell %s holds no formula", tc.name, address) {
		assert.Equalf(tc.t, text, info.Formula.Text, "%s: formula of %s", tc.name, address)
	}
	return tc
}

func (tc *sheetTestCase) AssertNoFormula(address string) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	info, err := tc.sheet.EditInfo(tc.point(address))
	if assert.NoErrorf(tc.t, err, "%s: EditInfo(%s)", tc.name, address) {
		assert.Nilf(tc.t, info.Formula, "%s: cell %s", tc.name, address)
	}
	return tc
}

func (tc *sheetTestCase) AssertExtent(address string, width, height uint32) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	info, err := tc.sheet.EditInfo(tc.point(address))
	if assert.NoErrorf(tc.t, err, "%s: EditInfo(%s)", tc.name, address) &&
		assert.NotNilf(tc.t, info.Formula, "%s: cell %s holds no formula", tc.name, address) {
		assert.Equalf(tc.t, Size{Width: width, Height: height}, info.Formula.Extent, "%s: extent of %s", tc.name, address)
	}
	return tc
}

func (tc *sheetTestCase) AssertSize(width, height uint32) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	size, err := tc.sheet.Size()
	if assert.NoError(tc.t, err) {
		assert.Equalf(tc.t, Size{Width: width, Height: height}, size, "%s: size", tc.name)
	}
	return tc
}

func (tc *sheetTestCase) AssertCount(n uint64) *sheetTestCase {
	tc.t.Helper()
	if tc.err != nil {
		return tc
	}
	count, err := tc.sheet.NonNullCellCount()
	if assert.NoError(tc.t, err) {
		assert.Equalf(tc.t, n, count, "%s: non-null cells", tc.name)
	}
	return tc
}

func (tc *sheetTestCase) End() {}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

// sequenceRandom hands out its values in order, wrapping around
type sequenceRandom struct {
	values []float64
	next   int
}

func (r *sequenceRandom) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

func TestBasicTypes(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		newSheetTestCase(t, "float").
			Set("A1", 42.5).
			AssertCellEq("A1", 42.5).
			End()

		newSheetTestCase(t, "integers become floats").
			Set("A1", 7).
			Set("A2", int64(-3)).
			Set("A3", uint8(200)).
			AssertCellEq("A1", 7.0).
			AssertCellEq("A2", -3.0).
			AssertCellEq("A3", 200.0).
			End()

		newSheetTestCase(t, "negative zero").
			Set("A1", math.Copysign(0, -1)).
			AssertCellFn("A1", func(t *testing.T, value Primitive) {
				f, ok := value.(float64)
				require.True(t, ok)
				assert.True(t, math.Signbit(f))
			}).
			End()

		newSheetTestCase(t, "NaN and infinities").
			Set("A1", math.NaN()).
			Set("A2", math.Inf(1)).
			Set("A3", math.Inf(-1)).
			AssertCellErr("A1", ErrorCodeNotANumber).
			AssertCellErr("A2", ErrorCodeNotANumber).
			AssertCellErr("A3", ErrorCodeNotANumber).
			End()
	})

	t.Run("Text", func(t *testing.T) {
		newSheetTestCase(t, "ascii").
			Set("A1", "hello").
			AssertCellEq("A1", "hello").
			End()

		newSheetTestCase(t, "unicode").
			Set("A1", "Hello 世界").
			Set("A2", "Test 😀 emoji").
			AssertCellEq("A1", "Hello 世界").
			AssertCellEq("A2", "Test 😀 emoji").
			End()

		newSheetTestCase(t, "empty text is a value").
			Set("A1", "").
			AssertCellEq("A1", "").
			AssertCount(1).
			End()

		newSheetTestCase(t, "text that looks like a formula stays text").
			Set("A1", "=1+2").
			AssertCellEq("A1", "=1+2").
			AssertNoFormula("A1").
			End()
	})

	t.Run("Booleans", func(t *testing.T) {
		newSheetTestCase(t, "true and false").
			Set("A1", true).
			Set("A2", false).
			AssertCellEq("A1", true).
			AssertCellEq("A2", false).
			End()
	})

	t.Run("Errors", func(t *testing.T) {
		newSheetTestCase(t, "canonical error").
			Set("A1", ErrorFromCode(ErrorCodeDivisionByZero)).
			AssertCellEq("A1", ErrDivisionByZero).
			End()

		custom := ErrorFromCode(ErrorCode(42))
		newSheetTestCase(t, "custom error keeps its identity").
			Set("A1", custom).
			AssertCellFn("A1", func(t *testing.T, value Primitive) {
				assert.Same(t, custom, value)
			}).
			End()
	})

	t.Run("Nil clears", func(t *testing.T) {
		newSheetTestCase(t, "nil").
			Set("A1", 1.0).
			Set("A1", nil).
			AssertCellEmpty("A1").
			AssertCount(0).
			End()
	})

	t.Run("Unsupported values", func(t *testing.T) {
		newSheetTestCase(t, "struct").
			ExpectFault(ErrValidation, func(s *Sheet) error { return s.SetValue(Point{}, struct{}{}) }).
			ExpectFault(ErrValidation, func(s *Sheet) error { return s.SetValue(Point{}, []float64{1}) }).
			AssertCount(0).
			End()
	})
}

func TestBinaryOperators(t *testing.T) {
	tests := []struct {
		formula  string
		expected Primitive
	}{
		{"1+2", 3.0},
		{"5-8", -3.0},
		{"2*3", 6.0},
		{"7/2", 3.5},
		{"2^10", 1024.0},
		{"2+3*4", 14.0},
		{"(2+3)*4", 20.0},
		{"-5+2", -3.0},
		{"50%", 0.5},
		{`"a"&"b"`, "ab"},
		{`1&"x"`, "1x"},
		{`"3"+1`, 4.0},
		{"1=1", true},
		{"1<>1", false},
		{"2>1", true},
		{"2<=1", false},
		{`"abc"<"abd"`, true},
		{"1/0", ErrorCodeDivisionByZero},
		{"0^0", ErrorCodeNotANumber},
		{`1+"x"`, ErrorCodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			newSheetTestCase(t, tt.formula).
				Formula("A1", tt.formula).
				AssertCellEq("A1", tt.expected).
				AssertText("A1", tt.formula).
				End()
		})
	}
}

func TestCellReferences(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		newSheetTestCase(t, "reference updates").
			Set("A1", 10.0).
			Formula("B1", "A1*2").
			AssertCellEq("B1", 20.0).
			Set("A1", 5.0).
			AssertCellEq("B1", 10.0).
			End()

		newSheetTestCase(t, "scenario from the docs").
			Set("A1", 1.0).
			Formula("B1", "A1+3").
			AssertCellEq("B1", 4.0).
			End()
	})

	t.Run("Chain", func(t *testing.T) {
		newSheetTestCase(t, "three cell chain").
			Set("A1", 1.0).
			Formula("A2", "A1+1").
			Formula("A3", "A2+1").
			AssertCellEq("A3", 3.0).
			Set("A1", 10.0).
			AssertCellEq("A2", 11.0).
			AssertCellEq("A3", 12.0).
			End()

		newSheetTestCase(t, "formula written before its input").
			Formula("A3", "A2+1").
			Formula("A2", "A1+1").
			Set("A1", 1.0).
			AssertCellEq("A3", 3.0).
			End()
	})

	t.Run("Empty", func(t *testing.T) {
		newSheetTestCase(t, "empty cell reads as zero").
			Formula("B1", "A1+1").
			AssertCellEq("B1", 1.0).
			End()

		newSheetTestCase(t, "bare reference to an empty cell").
			Formula("B1", "A1").
			AssertCellEq("B1", 0.0).
			End()
	})

	t.Run("Text", func(t *testing.T) {
		newSheetTestCase(t, "text reference").
			Set("A1", "x").
			Formula("B1", `A1&"y"`).
			AssertCellEq("B1", "xy").
			End()
	})

	t.Run("Absolute", func(t *testing.T) {
		newSheetTestCase(t, "absolute reference").
			Set("A1", 3.0).
			Formula("C3", "$A$1*2").
			AssertCellEq("C3", 6.0).
			AssertText("C3", "$A$1*2").
			End()

		newSheetTestCase(t, "text keeps spacing and case").
			Set("A1", 3.0).
			Formula("B2", "sum( a1 ,  $A1 )").
			AssertCellEq("B2", 6.0).
			AssertText("B2", "sum( A1 ,  $A1 )").
			End()
	})

	t.Run("Errors", func(t *testing.T) {
		newSheetTestCase(t, "error propagates").
			Formula("A1", "1/0").
			Formula("B1", "A1+1").
			Formula("C1", "B1*2").
			AssertCellErr("C1", ErrorCodeDivisionByZero).
			Set("A1", 4.0).
			AssertCellEq("C1", 10.0).
			End()
	})
}

func TestRangeReferences(t *testing.T) {
	t.Run("Sum", func(t *testing.T) {
		newSheetTestCase(t, "text is skipped").
			Set("A1", 10.0).
			Set("A2", "text").
			Set("A3", 30.0).
			Formula("B1", "SUM(A1:A3)").
			AssertCellEq("B1", 40.0).
			End()

		newSheetTestCase(t, "reversed corners").
			Set("A1", 10.0).
			Set("A2", 20.0).
			Set("A3", 30.0).
			Formula("B1", "SUM(A3:A1)").
			AssertCellEq("B1", 60.0).
			AssertText("B1", "SUM(A3:A1)").
			End()

		newSheetTestCase(t, "edits inside the range recalculate").
			Set("A1", 1.0).
			Formula("B1", "SUM(A1:A3)").
			Set("A3", 5.0).
			AssertCellEq("B1", 6.0).
			Clear("A1").
			AssertCellEq("B1", 5.0).
			End()
	})

	t.Run("Whole axis", func(t *testing.T) {
		newSheetTestCase(t, "whole column").
			Set("A1", 1.0).
			Set("A2", 2.0).
			Set("A3", 3.0).
			Formula("B1", "SUM(A:A)").
			AssertCellEq("B1", 6.0).
			Set("A100", 4.0).
			AssertCellEq("B1", 10.0).
			End()

		newSheetTestCase(t, "whole row").
			Set("A1", 1.0).
			Set("B1", 2.0).
			Formula("A2", "SUM(1:1)").
			AssertCellEq("A2", 3.0).
			AssertText("A2", "SUM(1:1)").
			End()
	})

	t.Run("Self", func(t *testing.T) {
		newSheetTestCase(t, "range containing its own cell").
			Formula("A2", "SUM(A1:A3)").
			AssertCellErr("A2", ErrorCodeInvalidReference).
			End()
	})
}

func TestCircularReferences(t *testing.T) {
	newSheetTestCase(t, "self reference").
		Formula("A1", "A1+1").
		AssertCellErr("A1", ErrorCodeInvalidReference).
		End()

	newSheetTestCase(t, "three cell cycle").
		Formula("A1", "C1").
		Formula("B1", "A1").
		Formula("C1", "B1").
		AssertCellErr("A1", ErrorCodeInvalidReference).
		AssertCellErr("B1", ErrorCodeInvalidReference).
		AssertCellErr("C1", ErrorCodeInvalidReference).
		End()

	newSheetTestCase(t, "cycle through IF").
		Formula("A1", "IF(B1>0, B1, 0)").
		Formula("B1", "A1+1").
		AssertCellErr("A1", ErrorCodeInvalidReference).
		AssertCellErr("B1", ErrorCodeInvalidReference).
		End()

	newSheetTestCase(t, "breaking the cycle").
		Formula("A1", "B1").
		Formula("B1", "A1").
		Set("B1", 5.0).
		AssertCellEq("A1", 5.0).
		End()

	newSheetTestCase(t, "cells outside the cycle still read it").
		Formula("A1", "A2").
		Formula("A2", "A1").
		Formula("B1", "ISERROR(A1)").
		AssertCellEq("B1", true).
		End()
}

func TestInvalidFormulas(t *testing.T) {
	for _, text := range []string{"", "1+", "SUM(", "A1:", "(1", `"open`} {
		t.Run(text, func(t *testing.T) {
			newSheetTestCase(t, text).
				Formula("A1", text).
				AssertCellErr("A1", ErrorCodeInvalidFormula).
				AssertText("A1", text).
				AssertCount(1).
				End()
		})
	}

	newSheetTestCase(t, "readers see the error").
		Formula("A1", "1+").
		Formula("B1", "A1").
		AssertCellErr("B1", ErrorCodeInvalidFormula).
		Formula("A1", "1+1").
		AssertCellEq("B1", 2.0).
		End()

	newSheetTestCase(t, "unknown function").
		Formula("A1", "NOPE(1)").
		AssertCellErr("A1", ErrorCodeInvalidName).
		End()

	newSheetTestCase(t, "unknown name").
		Formula("A1", "price*2").
		AssertCellErr("A1", ErrorCodeInvalidName).
		End()

	newSheetTestCase(t, "wrong argument count").
		Formula("A1", "ABS(1, 2)").
		AssertCellErr("A1", ErrorCodeInvalidArgs).
		End()
}

func TestUpdateAndRecalculation(t *testing.T) {
	newSheetTestCase(t, "formula replaced by value").
		Set("A1", 2.0).
		Formula("B1", "A1*2").
		Formula("C1", "B1+1").
		Set("B1", 100.0).
		AssertNoFormula("B1").
		AssertCellEq("C1", 101.0).
		Set("A1", 3.0).
		AssertCellEq("B1", 100.0).
		End()

	newSheetTestCase(t, "value replaced by formula").
		Set("A1", 2.0).
		Set("B1", 9.0).
		Formula("C1", "B1+1").
		Formula("B1", "A1*2").
		AssertCellEq("C1", 5.0).
		End()

	newSheetTestCase(t, "clearing a formula").
		Set("A1", 2.0).
		Formula("B1", "A1*2").
		Formula("C1", "B1+1").
		Clear("B1").
		AssertCellEmpty("B1").
		AssertCellEq("C1", 1.0).
		AssertCount(2).
		End()

	newSheetTestCase(t, "diamond").
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		Formula("B2", "A1*10").
		Formula("C1", "B1+B2").
		AssertCellEq("C1", 12.0).
		Set("A1", 2.0).
		AssertCellEq("C1", 23.0).
		End()
}

func TestSuspendRecalc(t *testing.T) {
	newSheetTestCase(t, "new formula waits").
		Suspend().
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		AssertCellEmpty("B1").
		AssertText("B1", "A1+1").
		Resume().
		AssertCellEq("B1", 2.0).
		End()

	newSheetTestCase(t, "stale until resumed").
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		Suspend().
		Set("A1", 5.0).
		AssertCellEq("B1", 2.0).
		Resume().
		AssertCellEq("B1", 6.0).
		End()

	newSheetTestCase(t, "replaced formula keeps its result").
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		Suspend().
		Formula("B1", "A1*10").
		AssertCellEq("B1", 2.0).
		AssertText("B1", "A1*10").
		Resume().
		AssertCellEq("B1", 10.0).
		End()

	newSheetTestCase(t, "nesting").
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		Suspend().
		Suspend().
		Set("A1", 2.0).
		Resume().
		AssertCellEq("B1", 2.0).
		Resume().
		AssertCellEq("B1", 3.0).
		End()

	newSheetTestCase(t, "recalculate while suspended").
		Set("A1", 1.0).
		Formula("B1", "A1+1").
		Suspend().
		Set("A1", 7.0).
		Recalculate().
		AssertCellEq("B1", 8.0).
		Resume().
		End()

	newSheetTestCase(t, "invalid formula shows its error at once").
		Suspend().
		Formula("A1", "1+").
		AssertCellErr("A1", ErrorCodeInvalidFormula).
		Resume().
		End()

	newSheetTestCase(t, "resume without suspend").
		ExpectFault(ErrUsage, func(s *Sheet) error { return s.ResumeRecalc() }).
		End()
}

func TestVolatileFunctions(t *testing.T) {
	rng := &sequenceRandom{values: []float64{0.25, 0.5, 0.75}}
	newSheetTestCase(t, "RAND changes on recalculate only", WithRandom(rng)).
		Formula("A1", "RAND()").
		AssertCellEq("A1", 0.25).
		Set("B1", 1.0).
		AssertCellEq("A1", 0.25).
		Suspend().
		Set("B2", 2.0).
		Resume().
		AssertCellEq("A1", 0.25).
		Recalculate().
		AssertCellEq("A1", 0.5).
		Recalculate().
		AssertCellEq("A1", 0.75).
		End()

	newSheetTestCase(t, "readers of a volatile cell follow it", WithRandom(&sequenceRandom{values: []float64{0.1, 0.2, 0.3}})).
		Formula("A1", "RAND()*10").
		Formula("B1", "A1+1").
		AssertCellEq("A1", 1.0).
		AssertCellEq("B1", 2.0).
		Recalculate().
		AssertCellEq("A1", 2.0).
		AssertCellEq("B1", 3.0).
		End()

	newSheetTestCase(t, "RANDBETWEEN", WithRandom(&sequenceRandom{values: []float64{0.99}})).
		Formula("A1", "RANDBETWEEN(1, 6)").
		AssertCellEq("A1", 6.0).
		End()

	clock := &fixedClock{now: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
	newSheetTestCase(t, "NOW and TODAY", WithClock(clock)).
		Formula("A1", "TODAY()").
		Formula("A2", "NOW()").
		AssertCellEq("A1", 45292.0).
		AssertCellEq("A2", 45292.5).
		End()
}

func TestSheetLifecycle(t *testing.T) {
	newSheetTestCase(t, "size tracks the used area").
		AssertSize(0, 0).
		Set("C5", 1.0).
		AssertSize(3, 5).
		Set("A1", 1.0).
		AssertSize(3, 5).
		Clear("C5").
		AssertSize(3, 5).
		End()

	newSheetTestCase(t, "non-null count").
		Set("A1", 1.0).
		Set("A2", "x").
		Formula("A3", "A1+1").
		AssertCount(3).
		Clear("A2").
		AssertCount(2).
		End()

	newSheetTestCase(t, "cells outside the sheet").
		ExpectFault(ErrValidation, func(s *Sheet) error {
			return s.SetValue(Point{X: MaxWidth, Y: 0}, 1.0)
		}).
		ExpectFault(ErrValidation, func(s *Sheet) error {
			_, err := s.Value(Point{X: 0, Y: MaxHeight})
			return err
		}).
		End()

	t.Run("Dispose", func(t *testing.T) {
		sheet := NewSheet()
		require.NoError(t, sheet.SetValue(Point{}, 1.0))
		sheet.Dispose()
		sheet.Dispose()
		assert.True(t, sheet.Disposed())

		_, err := sheet.Value(Point{})
		assert.ErrorIs(t, err, ErrUsage)
		assert.ErrorIs(t, sheet.SetFormula(Point{}, "1"), ErrUsage)
		assert.ErrorIs(t, sheet.InsertRows(0, 1), ErrUsage)
		_, err = sheet.Size()
		assert.ErrorIs(t, err, ErrUsage)

		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, FailedPrecondition, appErr.Code)
	})

	t.Run("Cells", func(t *testing.T) {
		sheet := NewSheet()
		require.NoError(t, sheet.SetValue(Point{X: 1, Y: 1}, "b"))
		require.NoError(t, sheet.SetValue(Point{X: 0, Y: 0}, 1.0))
		require.NoError(t, sheet.SetFormula(Point{X: 0, Y: 2}, "A1*2"))

		seen := map[Point]Primitive{}
		for p, v := range sheet.Cells() {
			seen[p] = v
		}
		assert.Equal(t, map[Point]Primitive{
			{X: 0, Y: 0}: 1.0,
			{X: 1, Y: 1}: "b",
			{X: 0, Y: 2}: 2.0,
		}, seen)
	})
}

func TestLengthMetadata(t *testing.T) {
	t.Run("Heights", func(t *testing.T) {
		sheet := NewSheet()
		require.NoError(t, sheet.SetRowHeight(2, 3, 40))

		info, err := sheet.RowInfo(3)
		require.NoError(t, err)
		assert.Equal(t, LengthInfo{Length: 40, HasLength: true}, info)

		info, err = sheet.RowInfo(5)
		require.NoError(t, err)
		assert.Equal(t, LengthInfo{}, info)

		size, err := sheet.Size()
		require.NoError(t, err)
		assert.Equal(t, Size{Width: 0, Height: 5}, size)
	})

	t.Run("Hidden columns", func(t *testing.T) {
		sheet := NewSheet()
		require.NoError(t, sheet.SetColumnWidth(0, 4, 100))
		require.NoError(t, sheet.HideColumns(1, 2, true))

		var runs []LengthInfo
		complete, err := sheet.ForEachColumnInfo(0, 4, func(start, end uint32, info LengthInfo) bool {
			runs = append(runs, info)
			return true
		})
		require.NoError(t, err)
		assert.True(t, complete)
		assert.Equal(t, []LengthInfo{
			{Length: 100, HasLength: true},
			{Length: 100, HasLength: true, Hidden: true},
			{Length: 100, HasLength: true},
		}, runs)

		require.NoError(t, sheet.ClearColumnWidth(0, 4))
		info, err := sheet.ColumnInfo(1)
		require.NoError(t, err)
		assert.Equal(t, LengthInfo{Hidden: true}, info)
	})

	t.Run("Rows follow structural edits", func(t *testing.T) {
		sheet := NewSheet()
		require.NoError(t, sheet.SetRowHeight(1, 1, 30))
		require.NoError(t, sheet.InsertRows(0, 2))

		info, err := sheet.RowInfo(3)
		require.NoError(t, err)
		assert.Equal(t, uint32(30), info.Length)

		require.NoError(t, sheet.DeleteRows(2, 2))
		info, err = sheet.RowInfo(2)
		require.NoError(t, err)
		assert.Equal(t, LengthInfo{}, info)
	})

	t.Run("Limits", func(t *testing.T) {
		sheet := NewSheet()
		assert.ErrorIs(t, sheet.SetRowHeight(0, 1, math.MaxUint32+1), ErrValidation)
		assert.ErrorIs(t, sheet.SetColumnWidth(MaxWidth, 1, 10), ErrValidation)
		assert.ErrorIs(t, sheet.HideRows(MaxHeight-1, 2, true), ErrValidation)
		_, err := sheet.ForEachRowInfo(5, 2, func(uint32, uint32, LengthInfo) bool { return true })
		assert.ErrorIs(t, err, ErrValidation)
	})
}
