package spreadsheet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFunctionSheet fills a small data block shared by the function tests:
//
//	A: 1 2 3 4 "text"
//	B: apple banana cherry date <blank>
//	C: 10 20 30 40
//	D1: TRUE
func newFunctionSheet(t *testing.T, name string) *sheetTestCase {
	return newSheetTestCase(t, name).
		Set("A1", 1.0).Set("A2", 2.0).Set("A3", 3.0).Set("A4", 4.0).Set("A5", "text").
		Set("B1", "apple").Set("B2", "banana").Set("B3", "cherry").Set("B4", "date").
		Set("C1", 10.0).Set("C2", 20.0).Set("C3", 30.0).Set("C4", 40.0).
		Set("D1", true)
}

type functionCase struct {
	formula  string
	expected Primitive
}

func runFunctionCases(t *testing.T, cases []functionCase) {
	for _, tt := range cases {
		t.Run(tt.formula, func(t *testing.T) {
			newFunctionSheet(t, tt.formula).
				Formula("F1", tt.formula).
				AssertCellEq("F1", tt.expected).
				End()
		})
	}
}

func TestAggregateFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{"SUM(A1:A5)", 10.0},
		{`SUM(A1:A4, 5, "2")`, 17.0},
		{"SUM(C:C)", 100.0},
		{"SUM(A1, 1/0)", ErrorCodeDivisionByZero},
		{"SUM(0.1, 0.2)", 0.3},
		{"PRODUCT(A1:A4)", 24.0},
		{"AVERAGE(A1:A4)", 2.5},
		{"AVERAGE(B1:B4)", ErrorCodeDivisionByZero},
		{"AVERAGEA(A1:A5)", 2.0},
		{"COUNT(A1:A5)", 4.0},
		{"COUNTA(A1:B5)", 9.0},
		{"COUNTBLANK(B1:B5)", 1.0},
		{"MAX(C1:C4)", 40.0},
		{"MIN(A1:A4, -1)", -1.0},
		{"MAX(B1:B4)", 0.0},
		{"MEDIAN(A1:A4)", 2.5},
		{"MEDIAN(1, 3, 2)", 2.0},
		{"MODE(1, 2, 2, 3, 3)", 2.0},
		{"MODE(1, 2)", ErrorCodeInvalidArgs},
		{`SUMIF(A1:A4, ">2")`, 7.0},
		{`SUMIF(B1:B4, "b*", C1:C4)`, 20.0},
		{`COUNTIF(A1:A5, ">=2")`, 3.0},
		{`COUNTIF(B1:B5, "")`, 1.0},
		{`COUNTIF(B1:B4, "?????")`, 1.0},
		{`AVERAGEIF(A1:A4, "<3")`, 1.5},
	})
}

func TestLogicalFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{`IF(A1>1, "big", "small")`, "small"},
		{"IF(FALSE, 1)", false},
		{`IF("maybe", 1, 2)`, ErrorCodeInvalidValue},
		{`IFERROR(1/0, "oops")`, "oops"},
		{"IFERROR(A1, 0)", 1.0},
		{`IFNA(MATCH(9, A1:A4, 0), "none")`, "none"},
		{"IFNA(1/0, 0)", ErrorCodeDivisionByZero},
		{"AND(TRUE, A1)", true},
		{"AND(B1:B4)", ErrorCodeInvalidValue},
		{"OR(FALSE, 0)", false},
		{"XOR(TRUE, TRUE, TRUE)", true},
		{"NOT(D1)", false},
		{`CHOOSE(2, "a", "b", "c")`, "b"},
		{`CHOOSE(4, "a", "b")`, ErrorCodeInvalidValue},
		{`SWITCH(A2, 1, "one", 2, "two", "many")`, "two"},
		{`SWITCH(7, 1, "one", "many")`, "many"},
		{`SWITCH(9, 1, "one")`, ErrorCodeInvalidArgs},
	})
}

func TestTextFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{`CONCATENATE("a", 1, TRUE)`, "a1TRUE"},
		{`CONCAT(A1:A3, "!")`, "123!"},
		{`LEN("héllo")`, 5.0},
		{"UPPER(B1)", "APPLE"},
		{`LOWER("MiXed")`, "mixed"},
		{`TRIM("  a   b  ")`, "a b"},
		{`LEFT("spread", 3)`, "spr"},
		{`LEFT("abc")`, "a"},
		{`LEFT("abc", -1)`, ErrorCodeInvalidValue},
		{`RIGHT("sheet", 2)`, "et"},
		{`MID("spreadsheet", 7, 5)`, "sheet"},
		{`MID("abc", 9, 1)`, ""},
		{`FIND("s", "spreadsheets", 2)`, 7.0},
		{`FIND("z", "abc")`, ErrorCodeInvalidValue},
		{`SUBSTITUTE("a-b-c", "-", "+")`, "a+b+c"},
		{`SUBSTITUTE("a-b-c", "-", "+", 2)`, "a-b+c"},
		{`REPLACE("abcdef", 2, 3, "X")`, "aXef"},
		{`REPT("ab", 3)`, "ababab"},
		{`EXACT("a", "A")`, false},
		{`"n=" & A2`, "n=2"},
	})
}

func TestMathFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{"ABS(-2)", 2.0},
		{"ROUND(2.345, 2)", 2.35},
		{"ROUND(-2.5)", -3.0},
		{"ROUNDUP(1.21, 1)", 1.3},
		{"ROUNDDOWN(-1.29, 1)", -1.2},
		{"INT(-1.5)", -2.0},
		{"SIGN(-3)", -1.0},
		{"FLOOR(7, 2)", 6.0},
		{"CEILING(7, 2)", 8.0},
		{"SQRT(16)", 4.0},
		{"SQRT(-1)", ErrorCodeNotANumber},
		{"POWER(2, 10)", 1024.0},
		{"0^0", ErrorCodeNotANumber},
		{"MOD(-7, 3)", 2.0},
		{"MOD(1, 0)", ErrorCodeDivisionByZero},
		{"PI()", math.Pi},
		{"EXP(0)", 1.0},
		{"LN(0)", ErrorCodeNotANumber},
		{"LOG10(1000)", 3.0},
		{"ABS()", ErrorCodeInvalidArgs},
		{`ABS("x")`, ErrorCodeInvalidValue},
	})
}

func TestInformationFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{"ISBLANK(B5)", true},
		{"ISBLANK(A1)", false},
		{"ISERR(#N/A)", false},
		{"ISERROR(1/0)", true},
		{"ISNA(#N/A)", true},
		{"ISNUMBER(A1)", true},
		{"ISTEXT(A5)", true},
		{"ISNONTEXT(A1)", true},
		{"ISLOGICAL(D1)", true},
		{"ISEVEN(4)", true},
		{"ISODD(3.7)", true},
	})
}

func TestLookupFunctions(t *testing.T) {
	runFunctionCases(t, []functionCase{
		{"ROW()", 1.0},
		{"ROW(C3)", 3.0},
		{"COLUMN()", 6.0},
		{"COLUMNS(A1:C2)", 3.0},
		{"ROWS(A1:C2)", 2.0},
		{"INDEX(C1:C4, 3)", 30.0},
		{"INDEX(A1:C4, 2, 3)", 20.0},
		{"INDEX(C1:C4, 9)", ErrorCodeInvalidReference},
		{"MATCH(3, A1:A4, 0)", 3.0},
		{"MATCH(2.5, A1:A4)", 2.0},
		{`MATCH("ban*", B1:B4, 0)`, 2.0},
		{`MATCH("BANANA", B1:B4, 0)`, 2.0},
		{"VLOOKUP(3, A1:C4, 3, FALSE)", 30.0},
		{"VLOOKUP(9, A1:C4, 2, FALSE)", ErrorCodeInvalidArgs},
		{"VLOOKUP(2, A1:C4, 5)", ErrorCodeInvalidReference},
		{"HLOOKUP(1, A1:C2, 2, FALSE)", 2.0},
		{"TRANSPOSE(5)", 5.0},
	})

	t.Run("array results spill", func(t *testing.T) {
		newFunctionSheet(t, "row of a range").
			Formula("F1", "ROW(A2:A4)").
			AssertCellEq("F1", 2.0).
			AssertCellEq("F3", 4.0).
			End()

		newFunctionSheet(t, "index selecting a column").
			Formula("F1", "INDEX(A1:C2, 0, 3)").
			AssertCellEq("F1", 10.0).
			AssertCellEq("F2", 20.0).
			AssertExtent("F1", 1, 2).
			End()
	})
}

func TestCall(t *testing.T) {
	bf := NewBuiltInFunctions(&fixedClock{}, &sequenceRandom{values: []float64{0.5}}, 100)

	v, err := bf.Call("sum", Point{}, 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = bf.Call("NOPE", Point{})
	assert.Same(t, ErrInvalidName, err)

	_, err = bf.Call("ABS", Point{})
	assert.Same(t, ErrInvalidArgs, err)

	t.Run("element-wise over ranges", func(t *testing.T) {
		arr := NewArray(2, 1)
		arr.set(0, 0, -1.0)
		arr.set(1, 0, "x")
		v, err := bf.Call("ABS", Point{}, arr)
		require.NoError(t, err)
		out, ok := v.(*Array)
		require.True(t, ok)
		assert.Equal(t, 1.0, out.At(0, 0))
		assert.Same(t, ErrInvalidValue, out.At(1, 0))
	})

	t.Run("random between", func(t *testing.T) {
		v, err := bf.Call("RANDBETWEEN", Point{}, 1.0, 4.0)
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)

		_, err = bf.Call("RANDBETWEEN", Point{}, 5.0, 4.0)
		assert.Same(t, ErrNotANumber, err)
	})
}

func TestCriteria(t *testing.T) {
	tests := []struct {
		criterion Primitive
		value     Primitive
		matches   bool
	}{
		{">=10", 10.0, true},
		{">=10", 9.0, false},
		{">=10", "10", false},
		{"<>x", "X", false},
		{"<>x", "y", true},
		{"a*c", "ABC", true},
		{"a?c", "abbc", false},
		{"~*", "*", true},
		{"~*", "a", false},
		{"true", true, true},
		{"#N/A", ErrInvalidArgs, true},
		{2.0, 2.0, true},
		{2.0, "2", false},
		{"", nil, true},
	}

	for _, tt := range tests {
		c := newCriterion(tt.criterion)
		assert.Equalf(t, tt.matches, c.matches(tt.value), "%v against %v", tt.criterion, tt.value)
	}
}
