package spreadsheet

import (
	"strings"
)

// criterion is a parsed SUMIF/COUNTIF condition such as ">=10", "<>x" or
// "ab*"
type criterion struct {
	op      string // one of = <> < <= > >=
	operand Primitive
}

var criterionOps = []string{"<=", ">=", "<>", "<", ">", "="}

func newCriterion(v Primitive) criterion {
	s, ok := v.(string)
	if !ok {
		return criterion{op: "=", operand: v}
	}

	op := "="
	for _, candidate := range criterionOps {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			s = s[len(candidate):]
			break
		}
	}

	var operand Primitive = s
	if num, ok := toNumber(s); ok && strings.TrimSpace(s) != "" {
		operand = num
	} else if upper := strings.ToUpper(s); upper == "TRUE" || upper == "FALSE" {
		operand = upper == "TRUE"
	} else if ev, ok := ErrorFromName(upper); ok {
		operand = ev
	}
	return criterion{op: op, operand: operand}
}

func (c criterion) matches(v Primitive) bool {
	switch c.op {
	case "=":
		return c.equals(v)
	case "<>":
		return !c.equals(v)
	}
	if v == nil || !sameKind(v, c.operand) {
		return false
	}
	cmp := comparePrimitives(v, c.operand)
	switch c.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func (c criterion) equals(v Primitive) bool {
	switch operand := c.operand.(type) {
	case nil:
		return v == nil || v == ""
	case string:
		if operand == "" {
			return v == nil || v == ""
		}
		s, ok := v.(string)
		return ok && wildcardMatch([]rune(strings.ToLower(operand)), []rune(strings.ToLower(s)))
	default:
		return v != nil && lookupEqual(v, operand)
	}
}

// wildcardMatch matches s against a pattern where * is any run, ? is any
// single character and ~ escapes the next wildcard
func wildcardMatch(pattern, s []rune) bool {
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		if p < len(pattern) {
			switch {
			case pattern[p] == '~' && p+1 < len(pattern) && strings.ContainsRune("*?~", pattern[p+1]):
				if pattern[p+1] == s[i] {
					p += 2
					i++
					continue
				}
			case pattern[p] == '*':
				star, mark = p, i
				p++
				continue
			case pattern[p] == '?' || pattern[p] == s[i]:
				p++
				i++
				continue
			}
		}
		if star >= 0 {
			p = star + 1
			mark++
			i = mark
			continue
		}
		return false
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// sameKind reports whether two scalars have the same value type
func sameKind(a, b Primitive) bool {
	switch a.(type) {
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	case *ErrorValue:
		_, ok := b.(*ErrorValue)
		return ok
	}
	return a == nil && b == nil
}

// lookupEqual is equality for lookups: same type, text ignoring case
func lookupEqual(a, b Primitive) bool {
	return sameKind(a, b) && comparePrimitives(a, b) == 0
}

// rangeArg checks that an argument is a range, letting errors through
func rangeArg(arg any) (Range, error) {
	if err := checkForError(arg); err != nil {
		return nil, err
	}
	r, ok := arg.(Range)
	if !ok {
		return nil, ErrInvalidValue
	}
	return r, nil
}

// conditional walks the cells of a range matching a criterion and hands the
// corresponding value of the target range to fn
func conditional(args []any, fn func(v Primitive)) error {
	r, err := rangeArg(args[0])
	if err != nil {
		return err
	}
	crit := scalarOf(args[1])
	if _, multi := crit.(Range); multi {
		return ErrInvalidValue
	}
	c := newCriterion(crit)
	target := r
	if len(args) == 3 {
		if target, err = rangeArg(args[2]); err != nil {
			return err
		}
	}
	for p, v := range rangeCells(r) {
		if c.matches(v) {
			fn(target.At(p.X, p.Y))
		}
	}
	return nil
}

// SUMIF(range, criterion, [sum_range])
func (bf *BuiltInFunctions) SUMIF(args ...any) (Primitive, error) {
	sum := 0.0
	var found *ErrorValue
	err := conditional(args, func(v Primitive) {
		switch x := v.(type) {
		case float64:
			sum += x
		case *ErrorValue:
			if found == nil {
				found = x
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if found != nil {
		return nil, found
	}
	return numberResult(roundSignificant(sum)), nil
}

// AVERAGEIF(range, criterion, [average_range])
func (bf *BuiltInFunctions) AVERAGEIF(args ...any) (Primitive, error) {
	sum, count := 0.0, 0
	var found *ErrorValue
	err := conditional(args, func(v Primitive) {
		switch x := v.(type) {
		case float64:
			sum += x
			count++
		case *ErrorValue:
			if found == nil {
				found = x
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if found != nil {
		return nil, found
	}
	if count == 0 {
		return nil, ErrDivisionByZero
	}
	return numberResult(sum / float64(count)), nil
}

// COUNTIF(range, criterion). blank cells count when the criterion accepts
// a blank.
func (bf *BuiltInFunctions) COUNTIF(args ...any) (Primitive, error) {
	count := uint64(0)
	filled := uint64(0)
	err := conditional(args, func(Primitive) { count++ })
	if err != nil {
		return nil, err
	}
	r := args[0].(Range)
	if newCriterion(scalarOf(args[1])).matches(nil) {
		for range rangeCells(r) {
			filled++
		}
		count += r.Bounds().Size.area() - filled
	}
	return float64(count), nil
}

// referenceArg reads the rectangle of a reference argument
func referenceArg(arg any) (*CellRange, error) {
	if err := checkForError(arg); err != nil {
		return nil, err
	}
	cr, ok := arg.(*CellRange)
	if !ok {
		return nil, ErrInvalidValue
	}
	return cr, nil
}

// ROW returns the 1-based row of the formula cell, or the rows of a
// reference as a vertical array
func (bf *BuiltInFunctions) ROW(args ...any) (Primitive, error) {
	if len(args) == 0 {
		return float64(bf.origin.Y) + 1, nil
	}
	cr, err := referenceArg(args[0])
	if err != nil {
		return nil, err
	}
	rect := cr.rect
	if rect.Size.Height == 1 || cr.wholeAxis {
		return float64(rect.Origin.Y) + 1, nil
	}
	if uint64(rect.Size.Height) > uint64(bf.maxArrayCells) {
		return nil, ErrInvalidValue
	}
	out := NewArray(1, rect.Size.Height)
	for i := uint32(0); i < rect.Size.Height; i++ {
		out.set(0, i, float64(rect.Origin.Y+i)+1)
	}
	return out, nil
}

// COLUMN returns the 1-based column of the formula cell, or the columns of a
// reference as a horizontal array
func (bf *BuiltInFunctions) COLUMN(args ...any) (Primitive, error) {
	if len(args) == 0 {
		return float64(bf.origin.X) + 1, nil
	}
	cr, err := referenceArg(args[0])
	if err != nil {
		return nil, err
	}
	rect := cr.rect
	if rect.Size.Width == 1 || cr.wholeAxis {
		return float64(rect.Origin.X) + 1, nil
	}
	if uint64(rect.Size.Width) > uint64(bf.maxArrayCells) {
		return nil, ErrInvalidValue
	}
	out := NewArray(rect.Size.Width, 1)
	for i := uint32(0); i < rect.Size.Width; i++ {
		out.set(i, 0, float64(rect.Origin.X+i)+1)
	}
	return out, nil
}

func (bf *BuiltInFunctions) ROWS(args ...any) (Primitive, error) {
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if r, ok := args[0].(Range); ok {
		return float64(r.Bounds().Size.Height), nil
	}
	return 1.0, nil
}

func (bf *BuiltInFunctions) COLUMNS(args ...any) (Primitive, error) {
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if r, ok := args[0].(Range); ok {
		return float64(r.Bounds().Size.Width), nil
	}
	return 1.0, nil
}

// INDEX(range, row, [column]). a 0 row or column selects the whole column
// or row.
func (bf *BuiltInFunctions) INDEX(args ...any) (Primitive, error) {
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	r, ok := args[0].(Range)
	if !ok {
		single := NewArray(1, 1)
		single.set(0, 0, args[0])
		r = single
	}
	size := r.Bounds().Size

	row, err := intArg(args[1])
	if err != nil {
		return nil, err
	}
	col := 0
	switch {
	case len(args) == 3:
		if col, err = intArg(args[2]); err != nil {
			return nil, err
		}
	case size.Height == 1 && size.Width > 1:
		row, col = 1, row
	case size.Width == 1:
		col = 1
	}
	if row < 0 || col < 0 {
		return nil, ErrInvalidValue
	}
	if uint64(row) > uint64(size.Height) || uint64(col) > uint64(size.Width) {
		return nil, ErrInvalidReference
	}

	x, w := uint32(0), size.Width
	if col > 0 {
		x, w = uint32(col-1), 1
	}
	y, h := uint32(0), size.Height
	if row > 0 {
		y, h = uint32(row-1), 1
	}
	if w == 1 && h == 1 {
		return r.At(x, y), nil
	}
	return subRange(r, x, y, w, h), nil
}

// lookupVector materializes a single row or column
func (bf *BuiltInFunctions) lookupVector(arg any) ([]Primitive, error) {
	r, err := rangeArg(scalarOrRange(arg))
	if err != nil {
		return nil, err
	}
	arr, errValue := materialize(r, bf.maxArrayCells)
	if errValue != nil {
		return nil, errValue
	}
	if arr.width != 1 && arr.height != 1 {
		return nil, ErrInvalidArgs
	}
	return arr.values, nil
}

// scalarOrRange wraps a plain scalar into a one element array
func scalarOrRange(arg any) any {
	if _, ok := arg.(Range); ok {
		return arg
	}
	if err := checkForError(arg); err != nil {
		return err
	}
	single := NewArray(1, 1)
	single.set(0, 0, arg)
	return single
}

// matchIndex finds lookup in values. mode 0 is an exact match (wildcards
// allowed in text), 1 the largest value not above lookup in ascending data,
// -1 the smallest value not below lookup in descending data. -1 when nothing
// matches.
func matchIndex(values []Primitive, lookup Primitive, mode int) int {
	if mode == 0 {
		c := criterion{op: "=", operand: lookup}
		for i, v := range values {
			if v != nil && c.equals(v) {
				return i
			}
		}
		return -1
	}

	found := -1
	for i, v := range values {
		if v == nil || !sameKind(v, lookup) {
			continue
		}
		cmp := comparePrimitives(v, lookup)
		if (mode > 0 && cmp > 0) || (mode < 0 && cmp < 0) {
			break
		}
		found = i
		if cmp == 0 {
			break
		}
	}
	return found
}

// lookupArg reads the value being looked up
func lookupArg(arg any) (Primitive, error) {
	v := scalarOf(arg)
	if err := checkForError(v); err != nil {
		return nil, err
	}
	if _, multi := v.(Range); multi {
		return nil, ErrInvalidValue
	}
	if v == nil {
		return nil, ErrInvalidArgs
	}
	return v, nil
}

// MATCH(lookup, vector, [type]) returns the 1-based position of lookup
func (bf *BuiltInFunctions) MATCH(args ...any) (Primitive, error) {
	lookup, err := lookupArg(args[0])
	if err != nil {
		return nil, err
	}
	values, err := bf.lookupVector(args[1])
	if err != nil {
		return nil, err
	}
	mode := 1
	if len(args) == 3 {
		n, err := numberArg(args[2])
		if err != nil {
			return nil, err
		}
		switch {
		case n > 0:
			mode = 1
		case n < 0:
			mode = -1
		default:
			mode = 0
		}
	}
	idx := matchIndex(values, lookup, mode)
	if idx < 0 {
		return nil, ErrInvalidArgs
	}
	return float64(idx + 1), nil
}

// tableLookup implements VLOOKUP and HLOOKUP. vertical searches the first
// column and returns from the index-th column.
func (bf *BuiltInFunctions) tableLookup(args []any, vertical bool) (Primitive, error) {
	lookup, err := lookupArg(args[0])
	if err != nil {
		return nil, err
	}
	r, err := rangeArg(args[1])
	if err != nil {
		return nil, err
	}
	index, err := intArg(args[2])
	if err != nil {
		return nil, err
	}
	approximate := true
	if len(args) == 4 {
		if approximate, err = boolArg(args[3]); err != nil {
			return nil, err
		}
	}

	table, errValue := materialize(r, bf.maxArrayCells)
	if errValue != nil {
		return nil, errValue
	}
	across, along := table.width, table.height
	if !vertical {
		across, along = along, across
	}
	if index < 1 {
		return nil, ErrInvalidValue
	}
	if uint64(index) > uint64(across) {
		return nil, ErrInvalidReference
	}

	keys := make([]Primitive, along)
	for i := range keys {
		if vertical {
			keys[i] = table.At(0, uint32(i))
		} else {
			keys[i] = table.At(uint32(i), 0)
		}
	}
	mode := 0
	if approximate {
		mode = 1
	}
	found := matchIndex(keys, lookup, mode)
	if found < 0 {
		return nil, ErrInvalidArgs
	}
	if vertical {
		return table.At(uint32(index-1), uint32(found)), nil
	}
	return table.At(uint32(found), uint32(index-1)), nil
}

// VLOOKUP(lookup, table, column, [approximate])
func (bf *BuiltInFunctions) VLOOKUP(args ...any) (Primitive, error) {
	return bf.tableLookup(args, true)
}

// HLOOKUP(lookup, table, row, [approximate])
func (bf *BuiltInFunctions) HLOOKUP(args ...any) (Primitive, error) {
	return bf.tableLookup(args, false)
}

func (bf *BuiltInFunctions) TRANSPOSE(args ...any) (Primitive, error) {
	r, ok := args[0].(Range)
	if !ok {
		if err := checkForError(args[0]); err != nil {
			return nil, err
		}
		return args[0], nil
	}
	arr, errValue := materialize(r, bf.maxArrayCells)
	if errValue != nil {
		return nil, errValue
	}
	out := NewArray(arr.height, arr.width)
	for y := uint32(0); y < arr.height; y++ {
		for x := uint32(0); x < arr.width; x++ {
			out.set(y, x, arr.At(x, y))
		}
	}
	return out, nil
}

// SEQUENCE(rows, [columns], [start], [step]) fills an array row by row
func (bf *BuiltInFunctions) SEQUENCE(args ...any) (Primitive, error) {
	params := []float64{0, 1, 1, 1}
	for i, arg := range args {
		n, err := numberArg(arg)
		if err != nil {
			return nil, err
		}
		params[i] = n
	}
	rows, cols := int64(params[0]), int64(params[1])
	start, step := params[2], params[3]
	if rows < 1 || cols < 1 {
		return nil, ErrInvalidValue
	}
	if rows > int64(MaxHeight) || cols > int64(MaxWidth) || rows*cols > int64(bf.maxArrayCells) {
		return nil, ErrInvalidValue
	}
	if rows == 1 && cols == 1 {
		return start, nil
	}
	out := NewArray(uint32(cols), uint32(rows))
	for i := range out.values {
		out.values[i] = start + float64(i)*step
	}
	return out, nil
}
