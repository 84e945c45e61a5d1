package spreadsheet

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculationStack(t *testing.T) {
	cs := NewCalculationStack()
	a, b := Point{X: 0, Y: 0}, Point{X: 1, Y: 0}

	cs.push(a)
	cs.push(b)
	assert.True(t, cs.isProcessing(a))
	assert.True(t, cs.isProcessing(b))

	p, ok := cs.pop()
	require.True(t, ok)
	assert.Equal(t, b, p)
	assert.False(t, cs.isProcessing(b))
	cs.markCompleted(b)
	assert.True(t, cs.isCompleted(b))

	cs.reset()
	assert.False(t, cs.isProcessing(a))
	assert.False(t, cs.isCompleted(b))
	_, ok = cs.pop()
	assert.False(t, ok)
}

func TestSpill(t *testing.T) {
	t.Run("Column", func(t *testing.T) {
		newSheetTestCase(t, "sequence down").
			Formula("A1", "SEQUENCE(3)").
			AssertCellEq("A1", 1.0).
			AssertCellEq("A2", 2.0).
			AssertCellEq("A3", 3.0).
			AssertExtent("A1", 1, 3).
			AssertNoFormula("A2").
			AssertSize(1, 3).
			AssertCount(3).
			End()
	})

	t.Run("Block", func(t *testing.T) {
		newSheetTestCase(t, "two rows of three").
			Formula("B2", "SEQUENCE(2, 3)").
			AssertCellEq("B2", 1.0).
			AssertCellEq("D2", 3.0).
			AssertCellEq("B3", 4.0).
			AssertCellEq("D3", 6.0).
			AssertExtent("B2", 3, 2).
			AssertSize(4, 3).
			End()

		newSheetTestCase(t, "broadcast operator").
			Set("A1", 1.0).
			Set("A2", 2.0).
			Formula("B1", "A1:A2*10").
			AssertCellEq("B1", 10.0).
			AssertCellEq("B2", 20.0).
			AssertExtent("B1", 1, 2).
			End()

		newSheetTestCase(t, "single element array is a scalar").
			Formula("A1", "SEQUENCE(1)").
			AssertCellEq("A1", 1.0).
			AssertExtent("A1", 1, 1).
			End()

		newSheetTestCase(t, "transpose").
			Set("A1", 1.0).
			Set("B1", 2.0).
			Formula("D1", "TRANSPOSE(A1:B1)").
			AssertCellEq("D1", 1.0).
			AssertCellEq("D2", 2.0).
			End()
	})

	t.Run("Resize", func(t *testing.T) {
		newSheetTestCase(t, "shrinking clears the tail").
			Set("B1", 3.0).
			Formula("A1", "SEQUENCE(B1)").
			AssertCellEq("A3", 3.0).
			Set("B1", 2.0).
			AssertCellEq("A2", 2.0).
			AssertCellEmpty("A3").
			AssertExtent("A1", 1, 2).
			AssertCount(3).
			End()

		newSheetTestCase(t, "becoming a scalar clears every spilled cell").
			Set("B1", 3.0).
			Formula("A1", "SEQUENCE(B1)").
			Set("B1", 1.0).
			AssertCellEq("A1", 1.0).
			AssertCellEmpty("A2").
			AssertExtent("A1", 1, 1).
			End()

		newSheetTestCase(t, "replacing the anchor").
			Formula("A1", "SEQUENCE(3)").
			Set("A1", "done").
			AssertCellEmpty("A2").
			AssertCellEmpty("A3").
			AssertCount(1).
			End()
	})

	t.Run("Blocked", func(t *testing.T) {
		newSheetTestCase(t, "value in the way").
			Set("A3", "x").
			Formula("A1", "SEQUENCE(3)").
			AssertCellErr("A1", ErrorCodeSpill).
			AssertCellEmpty("A2").
			AssertExtent("A1", 1, 1).
			Clear("A3").
			AssertCellEq("A1", 1.0).
			AssertCellEq("A3", 3.0).
			End()

		newSheetTestCase(t, "writing into a spilled cell").
			Formula("A1", "SEQUENCE(3)").
			Set("A2", "x").
			AssertCellErr("A1", ErrorCodeSpill).
			AssertCellEq("A2", "x").
			AssertCellEmpty("A3").
			End()

		newSheetTestCase(t, "clearing a spilled cell does nothing").
			Formula("A1", "SEQUENCE(3)").
			Clear("A2").
			AssertCellEq("A2", 2.0).
			AssertExtent("A1", 1, 3).
			End()

		newSheetTestCase(t, "an array written over another").
			Formula("A1", "SEQUENCE(3)").
			Formula("A3", "SEQUENCE(2)").
			AssertCellErr("A1", ErrorCodeSpill).
			AssertCellEmpty("A2").
			AssertCellEq("A3", 1.0).
			AssertCellEq("A4", 2.0).
			End()

		t.Run("past the last row", func(t *testing.T) {
			sheet := NewSheet()
			last := Point{Y: MaxHeight - 1}
			require.NoError(t, sheet.SetFormula(last, "SEQUENCE(2)"))
			v, err := sheet.Value(last)
			require.NoError(t, err)
			assert.Same(t, ErrSpill, v)
		})
	})

	t.Run("Readers", func(t *testing.T) {
		newSheetTestCase(t, "range over an array").
			Formula("A1", "SEQUENCE(3)").
			Formula("C1", "SUM(A1:A3)").
			AssertCellEq("C1", 6.0).
			End()

		newSheetTestCase(t, "range written before the array").
			Formula("C1", "SUM(A1:A3)").
			AssertCellEq("C1", 0.0).
			Formula("A1", "SEQUENCE(3)").
			AssertCellEq("C1", 6.0).
			End()

		newSheetTestCase(t, "reference to a spilled cell").
			Formula("B2", "A2*10").
			Formula("A1", "SEQUENCE(3)").
			AssertCellEq("B2", 20.0).
			Set("A2", 7.0).
			AssertCellEq("B2", 70.0).
			End()

		newSheetTestCase(t, "input of the array changes").
			Set("D1", 10.0).
			Formula("A1", "SEQUENCE(2, 1, D1)").
			Formula("B2", "A2+1").
			AssertCellEq("B2", 12.0).
			Set("D1", 20.0).
			AssertCellEq("B2", 22.0).
			End()
	})

	t.Run("Limits", func(t *testing.T) {
		newSheetTestCase(t, "array too large", WithMaxArrayCells(4)).
			Formula("A1", "SEQUENCE(5)").
			AssertCellErr("A1", ErrorCodeInvalidValue).
			AssertCellEmpty("A2").
			End()

		newSheetTestCase(t, "reading its own array is circular").
			Formula("A1", "SEQUENCE(COUNTA(A2:A10)+2)").
			AssertCellErr("A1", ErrorCodeInvalidReference).
			AssertCellEmpty("A2").
			End()

		newSheetTestCase(t, "reading a cell of its own array").
			Formula("B1", "SEQUENCE(3)+B3").
			AssertCellErr("B1", ErrorCodeInvalidReference).
			AssertCellEmpty("B2").
			End()
	})
}

func TestCalculationPasses(t *testing.T) {
	newSheetTestCase(t, "arrays feeding each other settle").
		Formula("A1", "SEQUENCE(COUNTA(B2:B10)+2)").
		Formula("B1", "SEQUENCE(COUNTA(A2:A10)+2)").
		AssertExtent("A1", 1, 11).
		AssertExtent("B1", 1, 11).
		AssertCellEq("A11", 11.0).
		AssertCellEq("B11", 11.0).
		End()

	newSheetTestCase(t, "pass limit", WithMaxCalculationPasses(3)).
		Formula("A1", "SEQUENCE(COUNTA(B2:B10)+2)").
		AssertExtent("A1", 1, 2).
		Formula("B1", "SEQUENCE(COUNTA(A2:A10)+2)").
		AssertCellErr("A1", ErrorCodeInvalidReference).
		AssertCellErr("B1", ErrorCodeInvalidReference).
		AssertCellEmpty("A2").
		AssertCellEmpty("B2").
		End()

	t.Run("nothing left dirty", func(t *testing.T) {
		sheet := NewSheet(WithMaxCalculationPasses(3))
		require.NoError(t, sheet.SetFormula(Point{X: 0}, "SEQUENCE(COUNTA(B2:B10)+2)"))
		require.NoError(t, sheet.SetFormula(Point{X: 1}, "SEQUENCE(COUNTA(A2:A10)+2)"))
		assert.Zero(t, sheet.graph.DirtyCount())
	})
}

func TestCalculationLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sheet := NewSheet(WithLogger(logger))
	require.NoError(t, sheet.SetValue(Point{}, 1.0))
	require.NoError(t, sheet.SetFormula(Point{Y: 1}, "A1+1"))

	buf.Reset()
	require.NoError(t, sheet.SetFormula(Point{Y: 2}, "A2*2"))
	out := buf.String()
	assert.Contains(t, out, "calculation finished")
	assert.Contains(t, out, "evaluated=1")
	assert.Contains(t, out, "formulas=2")
}
