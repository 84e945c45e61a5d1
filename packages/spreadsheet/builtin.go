package spreadsheet

import (
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	clock         Clock
	rng           RandomGenerator
	maxArrayCells int

	// origin is the cell of the formula currently calling in, for ROW and
	// COLUMN without arguments
	origin Point
}

// builtin is the shape every function implementation has
type builtin func(bf *BuiltInFunctions, args ...any) (Primitive, error)

type functionSpec struct {
	minArgs int
	maxArgs int  // -1 for no limit
	lift    bool // applied element-wise when an argument is a multi-cell range
	fn      builtin
}

const variadic = -1

var functionTable = map[string]functionSpec{
	// aggregates
	"SUM":        {1, variadic, false, (*BuiltInFunctions).SUM},
	"AVERAGE":    {1, variadic, false, (*BuiltInFunctions).AVERAGE},
	"AVERAGEA":   {1, variadic, false, (*BuiltInFunctions).AVERAGEA},
	"COUNT":      {1, variadic, false, (*BuiltInFunctions).COUNT},
	"COUNTA":     {1, variadic, false, (*BuiltInFunctions).COUNTA},
	"COUNTBLANK": {1, 1, false, (*BuiltInFunctions).COUNTBLANK},
	"MAX":        {1, variadic, false, (*BuiltInFunctions).MAX},
	"MIN":        {1, variadic, false, (*BuiltInFunctions).MIN},
	"MEDIAN":     {1, variadic, false, (*BuiltInFunctions).MEDIAN},
	"MODE":       {1, variadic, false, (*BuiltInFunctions).MODE},
	"PRODUCT":    {1, variadic, false, (*BuiltInFunctions).PRODUCT},
	"SUMIF":      {2, 3, false, (*BuiltInFunctions).SUMIF},
	"COUNTIF":    {2, 2, false, (*BuiltInFunctions).COUNTIF},
	"AVERAGEIF":  {2, 3, false, (*BuiltInFunctions).AVERAGEIF},

	// logical
	"IF":      {2, 3, true, (*BuiltInFunctions).IF},
	"IFERROR": {2, 2, true, (*BuiltInFunctions).IFERROR},
	"IFNA":    {2, 2, true, (*BuiltInFunctions).IFNA},
	"AND":     {1, variadic, false, (*BuiltInFunctions).AND},
	"OR":      {1, variadic, false, (*BuiltInFunctions).OR},
	"XOR":     {1, variadic, false, (*BuiltInFunctions).XOR},
	"NOT":     {1, 1, true, (*BuiltInFunctions).NOT},
	"CHOOSE":  {2, variadic, false, (*BuiltInFunctions).CHOOSE},
	"SWITCH":  {3, variadic, false, (*BuiltInFunctions).SWITCH},

	// text
	"CONCATENATE": {1, variadic, true, (*BuiltInFunctions).CONCATENATE},
	"CONCAT":      {1, variadic, false, (*BuiltInFunctions).CONCAT},
	"LEN":         {1, 1, true, (*BuiltInFunctions).LEN},
	"UPPER":       {1, 1, true, (*BuiltInFunctions).UPPER},
	"LOWER":       {1, 1, true, (*BuiltInFunctions).LOWER},
	"TRIM":        {1, 1, true, (*BuiltInFunctions).TRIM},
	"LEFT":        {1, 2, true, (*BuiltInFunctions).LEFT},
	"RIGHT":       {1, 2, true, (*BuiltInFunctions).RIGHT},
	"MID":         {3, 3, true, (*BuiltInFunctions).MID},
	"FIND":        {2, 3, true, (*BuiltInFunctions).FIND},
	"SUBSTITUTE":  {3, 4, true, (*BuiltInFunctions).SUBSTITUTE},
	"REPLACE":     {4, 4, true, (*BuiltInFunctions).REPLACE},
	"REPT":        {2, 2, true, (*BuiltInFunctions).REPT},
	"EXACT":       {2, 2, true, (*BuiltInFunctions).EXACT},

	// math
	"ABS":       {1, 1, true, (*BuiltInFunctions).ABS},
	"ROUND":     {1, 2, true, (*BuiltInFunctions).ROUND},
	"ROUNDUP":   {1, 2, true, (*BuiltInFunctions).ROUNDUP},
	"ROUNDDOWN": {1, 2, true, (*BuiltInFunctions).ROUNDDOWN},
	"INT":       {1, 1, true, (*BuiltInFunctions).INT},
	"SIGN":      {1, 1, true, (*BuiltInFunctions).SIGN},
	"FLOOR":     {1, 2, true, (*BuiltInFunctions).FLOOR},
	"CEILING":   {1, 2, true, (*BuiltInFunctions).CEILING},
	"SQRT":      {1, 1, true, (*BuiltInFunctions).SQRT},
	"POWER":     {2, 2, true, (*BuiltInFunctions).POWER},
	"MOD":       {2, 2, true, (*BuiltInFunctions).MOD},
	"PI":        {0, 0, false, (*BuiltInFunctions).PI},
	"EXP":       {1, 1, true, (*BuiltInFunctions).EXP},
	"LN":        {1, 1, true, (*BuiltInFunctions).LN},
	"LOG10":     {1, 1, true, (*BuiltInFunctions).LOG10},

	// information
	"ISBLANK":   {1, 1, true, (*BuiltInFunctions).ISBLANK},
	"ISERR":     {1, 1, true, (*BuiltInFunctions).ISERR},
	"ISERROR":   {1, 1, true, (*BuiltInFunctions).ISERROR},
	"ISNA":      {1, 1, true, (*BuiltInFunctions).ISNA},
	"ISNUMBER":  {1, 1, true, (*BuiltInFunctions).ISNUMBER},
	"ISTEXT":    {1, 1, true, (*BuiltInFunctions).ISTEXT},
	"ISNONTEXT": {1, 1, true, (*BuiltInFunctions).ISNONTEXT},
	"ISLOGICAL": {1, 1, true, (*BuiltInFunctions).ISLOGICAL},
	"ISEVEN":    {1, 1, true, (*BuiltInFunctions).ISEVEN},
	"ISODD":     {1, 1, true, (*BuiltInFunctions).ISODD},

	// lookup and reference
	"ROW":       {0, 1, false, (*BuiltInFunctions).ROW},
	"COLUMN":    {0, 1, false, (*BuiltInFunctions).COLUMN},
	"ROWS":      {1, 1, false, (*BuiltInFunctions).ROWS},
	"COLUMNS":   {1, 1, false, (*BuiltInFunctions).COLUMNS},
	"INDEX":     {2, 3, false, (*BuiltInFunctions).INDEX},
	"MATCH":     {2, 3, false, (*BuiltInFunctions).MATCH},
	"VLOOKUP":   {3, 4, false, (*BuiltInFunctions).VLOOKUP},
	"HLOOKUP":   {3, 4, false, (*BuiltInFunctions).HLOOKUP},
	"TRANSPOSE": {1, 1, false, (*BuiltInFunctions).TRANSPOSE},
	"SEQUENCE":  {1, 4, false, (*BuiltInFunctions).SEQUENCE},

	// date and random
	"NOW":         {0, 0, false, (*BuiltInFunctions).NOW},
	"TODAY":       {0, 0, false, (*BuiltInFunctions).TODAY},
	"RAND":        {0, 0, false, (*BuiltInFunctions).RAND},
	"RANDBETWEEN": {2, 2, false, (*BuiltInFunctions).RANDBETWEEN},
}

// checkForError returns the error if value is an error value, nil otherwise
func checkForError(value any) *ErrorValue {
	if err, ok := value.(*ErrorValue); ok {
		return err
	}
	return nil
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(&WallClock{}, &DefaultRandomGenerator{}, DefaultMaxArrayCells)
}

func NewBuiltInFunctions(clock Clock, rng RandomGenerator, maxArrayCells int) *BuiltInFunctions {
	return &BuiltInFunctions{
		clock:         clock,
		rng:           rng,
		maxArrayCells: maxArrayCells,
	}
}

// Call invokes a built-in function by name for a formula sitting at origin.
// unknown names are #NAME?, a wrong number of arguments is #N/A.
func (bf *BuiltInFunctions) Call(name string, origin Point, args ...any) (Primitive, error) {
	spec, exists := functionTable[strings.ToUpper(name)]
	if !exists {
		return nil, ErrInvalidName
	}
	if len(args) < spec.minArgs || (spec.maxArgs != variadic && len(args) > spec.maxArgs) {
		return nil, ErrInvalidArgs
	}
	bf.origin = origin

	if !spec.lift {
		return spec.fn(bf, args...)
	}

	lifted := false
	prims := make([]Primitive, len(args))
	for i, arg := range args {
		prims[i] = scalarOf(arg)
		if _, ok := prims[i].(Range); ok {
			lifted = true
		}
	}
	if !lifted {
		return spec.fn(bf, toArgs(prims)...)
	}
	return broadcast(prims, bf.maxArrayCells, func(current []Primitive) Primitive {
		v, err := spec.fn(bf, toArgs(current)...)
		if err != nil {
			return errorToValue(err)
		}
		return v
	}), nil
}

func toArgs(values []Primitive) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// takesReferences reports whether a function looks at the shape of a
// reference argument rather than its value
func takesReferences(name string) bool {
	switch strings.ToUpper(name) {
	case "ROW", "COLUMN", "ROWS", "COLUMNS":
		return true
	default:
		return false
	}
}

// isVolatileFunction returns true if the function should trigger recalculation
// on every Calculate() call
func isVolatileFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND", "RANDBETWEEN":
		return true
	default:
		return false
	}
}

// numberArg converts a scalar argument to a number. errors propagate, text
// that is not a number is #VALUE!.
func numberArg(arg any) (float64, error) {
	v := scalarOf(arg)
	switch x := v.(type) {
	case *ErrorValue:
		return 0, x
	case Range:
		return 0, ErrInvalidValue
	}
	num, ok := toNumber(v)
	if !ok {
		return 0, ErrInvalidValue
	}
	return num, nil
}

// intArg is numberArg truncated toward zero
func intArg(arg any) (int, error) {
	num, err := numberArg(arg)
	if err != nil {
		return 0, err
	}
	if math.Abs(num) > math.MaxInt32 {
		return 0, ErrInvalidValue
	}
	return int(num), nil
}

func textArg(arg any) (string, error) {
	v := scalarOf(arg)
	switch x := v.(type) {
	case *ErrorValue:
		return "", x
	case Range:
		return "", ErrInvalidValue
	}
	return toString(v), nil
}

func boolArg(arg any) (bool, error) {
	v := scalarOf(arg)
	if err := checkForError(v); err != nil {
		return false, err
	}
	b, ok := toBool(v)
	if !ok {
		return false, ErrInvalidValue
	}
	return b, nil
}

// collectNumbers feeds the numbers among the arguments to fn. inside ranges
// only numeric cells count, direct arguments are converted when they can be.
// the first error value found is returned.
func collectNumbers(args []any, fn func(float64)) error {
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				switch v := value.(type) {
				case *ErrorValue:
					return v
				case float64:
					fn(v)
				}
			}
			continue
		}
		if err := checkForError(arg); err != nil {
			return err
		}
		if arg == nil {
			continue
		}
		if num, ok := toNumber(arg); ok {
			fn(num)
		}
	}
	return nil
}

// roundSignificant rounds to 15 significant digits, which hides binary
// representation noise in sums
func roundSignificant(v float64) float64 {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 15, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

func (bf *BuiltInFunctions) SUM(args ...any) (Primitive, error) {
	sum := 0.0
	if err := collectNumbers(args, func(n float64) { sum += n }); err != nil {
		return nil, err
	}
	return numberResult(roundSignificant(sum)), nil
}

func (bf *BuiltInFunctions) PRODUCT(args ...any) (Primitive, error) {
	product := 1.0
	seen := false
	err := collectNumbers(args, func(n float64) {
		product *= n
		seen = true
	})
	if err != nil {
		return nil, err
	}
	if !seen {
		return 0.0, nil
	}
	return numberResult(product), nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...any) (Primitive, error) {
	sum, count := 0.0, 0
	err := collectNumbers(args, func(n float64) {
		sum += n
		count++
	})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrDivisionByZero
	}
	return numberResult(roundSignificant(sum / float64(count))), nil
}

// AVERAGEA counts text in ranges as 0 and booleans as 1 or 0
func (bf *BuiltInFunctions) AVERAGEA(args ...any) (Primitive, error) {
	sum, count := 0.0, 0
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				switch v := value.(type) {
				case *ErrorValue:
					return nil, v
				case float64:
					sum += v
				case bool:
					if v {
						sum++
					}
				}
				count++
			}
			continue
		}
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if arg == nil {
			continue
		}
		num, ok := toNumber(arg)
		if !ok {
			return nil, ErrInvalidValue
		}
		sum += num
		count++
	}
	if count == 0 {
		return nil, ErrDivisionByZero
	}
	return numberResult(sum / float64(count)), nil
}

func (bf *BuiltInFunctions) COUNT(args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if _, isNum := value.(float64); isNum {
					count++
				}
			}
			continue
		}
		switch arg.(type) {
		case float64, bool:
			count++
		case string:
			if _, ok := toNumber(arg); ok {
				count++
			}
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTA(args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if value != nil {
					count++
				}
			}
			continue
		}
		if arg != nil {
			count++
		}
	}
	return float64(count), nil
}

// COUNTBLANK counts empty cells and cells holding empty text
func (bf *BuiltInFunctions) COUNTBLANK(args ...any) (Primitive, error) {
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	r, ok := args[0].(Range)
	if !ok {
		if args[0] == nil || args[0] == "" {
			return 1.0, nil
		}
		return 0.0, nil
	}
	filled := uint64(0)
	for value := range r.IterateValues() {
		if value != nil && value != "" {
			filled++
		}
	}
	return float64(r.Bounds().Size.area() - filled), nil
}

func (bf *BuiltInFunctions) MAX(args ...any) (Primitive, error) {
	max := math.Inf(-1)
	hasValues := false
	err := collectNumbers(args, func(n float64) {
		if n > max {
			max = n
		}
		hasValues = true
	})
	if err != nil {
		return nil, err
	}
	if hasValues {
		return max, nil
	}
	return 0.0, nil
}

func (bf *BuiltInFunctions) MIN(args ...any) (Primitive, error) {
	min := math.Inf(1)
	hasValues := false
	err := collectNumbers(args, func(n float64) {
		if n < min {
			min = n
		}
		hasValues = true
	})
	if err != nil {
		return nil, err
	}
	if hasValues {
		return min, nil
	}
	return 0.0, nil
}

func (bf *BuiltInFunctions) MEDIAN(args ...any) (Primitive, error) {
	var values []float64
	if err := collectNumbers(args, func(n float64) { values = append(values, n) }); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotANumber
	}
	slices.Sort(values)

	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2, nil
	}
	return values[mid], nil
}

// MODE returns the most frequent number, the smallest one on ties. #N/A when
// no value repeats.
func (bf *BuiltInFunctions) MODE(args ...any) (Primitive, error) {
	frequencyMap := make(map[float64]int)
	if err := collectNumbers(args, func(n float64) { frequencyMap[n]++ }); err != nil {
		return nil, err
	}
	if len(frequencyMap) == 0 {
		return nil, ErrNotANumber
	}

	maxFreq := 0
	for _, freq := range frequencyMap {
		maxFreq = max(maxFreq, freq)
	}
	if maxFreq == 1 {
		return nil, ErrInvalidArgs
	}

	var modes []float64
	for value, freq := range frequencyMap {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	return slices.Min(modes), nil
}

func (bf *BuiltInFunctions) IF(args ...any) (Primitive, error) {
	condition, err := boolArg(args[0])
	if err != nil {
		return nil, err
	}
	if condition {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (bf *BuiltInFunctions) IFERROR(args ...any) (Primitive, error) {
	if checkForError(args[0]) != nil {
		return args[1], nil
	}
	return args[0], nil
}

func (bf *BuiltInFunctions) IFNA(args ...any) (Primitive, error) {
	if checkForError(args[0]) == ErrInvalidArgs {
		return args[1], nil
	}
	return args[0], nil
}

// logicalValues feeds the truth values among the arguments to fn. text inside
// ranges is skipped, direct text must spell a boolean.
func logicalValues(args []any, fn func(bool)) error {
	seen := false
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				switch v := value.(type) {
				case *ErrorValue:
					return v
				case bool:
					fn(v)
					seen = true
				case float64:
					fn(v != 0)
					seen = true
				}
			}
			continue
		}
		if arg == nil {
			continue
		}
		b, err := boolArg(arg)
		if err != nil {
			return err
		}
		fn(b)
		seen = true
	}
	if !seen {
		return ErrInvalidValue
	}
	return nil
}

func (bf *BuiltInFunctions) AND(args ...any) (Primitive, error) {
	result := true
	if err := logicalValues(args, func(b bool) { result = result && b }); err != nil {
		return nil, err
	}
	return result, nil
}

func (bf *BuiltInFunctions) OR(args ...any) (Primitive, error) {
	result := false
	if err := logicalValues(args, func(b bool) { result = result || b }); err != nil {
		return nil, err
	}
	return result, nil
}

func (bf *BuiltInFunctions) XOR(args ...any) (Primitive, error) {
	result := false
	if err := logicalValues(args, func(b bool) { result = result != b }); err != nil {
		return nil, err
	}
	return result, nil
}

func (bf *BuiltInFunctions) NOT(args ...any) (Primitive, error) {
	b, err := boolArg(args[0])
	if err != nil {
		return nil, err
	}
	return !b, nil
}

// CHOOSE returns the index-th of the remaining arguments, ranges included
func (bf *BuiltInFunctions) CHOOSE(args ...any) (Primitive, error) {
	index, err := intArg(args[0])
	if err != nil {
		return nil, err
	}
	if index < 1 || index >= len(args) {
		return nil, ErrInvalidValue
	}
	return args[index], nil
}

// SWITCH(expression, value1, result1, ..., [default])
func (bf *BuiltInFunctions) SWITCH(args ...any) (Primitive, error) {
	subject := scalarOf(args[0])
	if err := checkForError(subject); err != nil {
		return nil, err
	}
	rest := args[1:]
	for len(rest) >= 2 {
		candidate := scalarOf(rest[0])
		if err := checkForError(candidate); err != nil {
			return nil, err
		}
		if lookupEqual(subject, candidate) {
			return rest[1], nil
		}
		rest = rest[2:]
	}
	if len(rest) == 1 {
		return rest[0], nil
	}
	return nil, ErrInvalidArgs
}

func (bf *BuiltInFunctions) ABS(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	return math.Abs(num), nil
}

// digitsArg reads the optional digit count of the rounding functions
func digitsArg(args []any) (float64, error) {
	if len(args) < 2 {
		return 0, nil
	}
	digits, err := numberArg(args[1])
	if err != nil {
		return 0, err
	}
	return math.Trunc(digits), nil
}

// roundWith scales num by 10^digits, applies fn and scales back
func roundWith(args []any, fn func(float64) float64) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	digits, err := digitsArg(args)
	if err != nil {
		return nil, err
	}
	multiplier := math.Pow(10, digits)
	scaled := roundSignificant(math.Abs(num) * multiplier)
	result := fn(scaled) / multiplier
	if num < 0 && result != 0 {
		result = -result
	}
	return numberResult(result), nil
}

func (bf *BuiltInFunctions) ROUND(args ...any) (Primitive, error) {
	return roundWith(args, math.Round)
}

// ROUNDUP rounds away from zero
func (bf *BuiltInFunctions) ROUNDUP(args ...any) (Primitive, error) {
	return roundWith(args, math.Ceil)
}

// ROUNDDOWN rounds toward zero
func (bf *BuiltInFunctions) ROUNDDOWN(args ...any) (Primitive, error) {
	return roundWith(args, math.Floor)
}

func (bf *BuiltInFunctions) INT(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	return math.Floor(num), nil
}

func (bf *BuiltInFunctions) SIGN(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	switch {
	case num > 0:
		return 1.0, nil
	case num < 0:
		return -1.0, nil
	}
	return 0.0, nil
}

// toMultiple rounds num to a multiple of the optional significance with fn
func toMultiple(args []any, fn func(float64) float64) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	significance := 1.0
	if len(args) == 2 {
		if significance, err = numberArg(args[1]); err != nil {
			return nil, err
		}
	}
	if significance == 0 {
		return 0.0, nil
	}
	if num > 0 && significance < 0 {
		return nil, ErrNotANumber
	}
	return numberResult(fn(roundSignificant(num/significance)) * significance), nil
}

func (bf *BuiltInFunctions) FLOOR(args ...any) (Primitive, error) {
	return toMultiple(args, math.Floor)
}

func (bf *BuiltInFunctions) CEILING(args ...any) (Primitive, error) {
	return toMultiple(args, math.Ceil)
}

func (bf *BuiltInFunctions) SQRT(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, ErrNotANumber
	}
	return math.Sqrt(num), nil
}

func (bf *BuiltInFunctions) POWER(args ...any) (Primitive, error) {
	base, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	exp, err := numberArg(args[1])
	if err != nil {
		return nil, err
	}
	if base == 0 && exp == 0 {
		return nil, ErrNotANumber
	}
	return numberResult(pow(base, exp)), nil
}

// MOD takes the sign of the divisor
func (bf *BuiltInFunctions) MOD(args ...any) (Primitive, error) {
	dividend, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	divisor, err := numberArg(args[1])
	if err != nil {
		return nil, err
	}
	if divisor == 0 {
		return nil, ErrDivisionByZero
	}
	return numberResult(dividend - divisor*math.Floor(dividend/divisor)), nil
}

func (bf *BuiltInFunctions) PI(args ...any) (Primitive, error) {
	return math.Pi, nil
}

func (bf *BuiltInFunctions) EXP(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	return numberResult(math.Exp(num)), nil
}

func (bf *BuiltInFunctions) LN(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	if num <= 0 {
		return nil, ErrNotANumber
	}
	return math.Log(num), nil
}

func (bf *BuiltInFunctions) LOG10(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	if num <= 0 {
		return nil, ErrNotANumber
	}
	return math.Log10(num), nil
}

func (bf *BuiltInFunctions) ISBLANK(args ...any) (Primitive, error) {
	return args[0] == nil, nil
}

// ISERR is true for every error except #N/A
func (bf *BuiltInFunctions) ISERR(args ...any) (Primitive, error) {
	err := checkForError(args[0])
	return err != nil && err != ErrInvalidArgs, nil
}

func (bf *BuiltInFunctions) ISERROR(args ...any) (Primitive, error) {
	return checkForError(args[0]) != nil, nil
}

func (bf *BuiltInFunctions) ISNA(args ...any) (Primitive, error) {
	return checkForError(args[0]) == ErrInvalidArgs, nil
}

func (bf *BuiltInFunctions) ISNUMBER(args ...any) (Primitive, error) {
	_, ok := args[0].(float64)
	return ok, nil
}

func (bf *BuiltInFunctions) ISTEXT(args ...any) (Primitive, error) {
	_, ok := args[0].(string)
	return ok, nil
}

func (bf *BuiltInFunctions) ISNONTEXT(args ...any) (Primitive, error) {
	_, ok := args[0].(string)
	return !ok, nil
}

func (bf *BuiltInFunctions) ISLOGICAL(args ...any) (Primitive, error) {
	_, ok := args[0].(bool)
	return ok, nil
}

func (bf *BuiltInFunctions) ISEVEN(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	return math.Mod(math.Trunc(num), 2) == 0, nil
}

func (bf *BuiltInFunctions) ISODD(args ...any) (Primitive, error) {
	num, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	return math.Mod(math.Trunc(num), 2) != 0, nil
}

// Excel date/time constants
const (
	// Excel epoch: December 30, 1899 00:00:00 UTC in Unix milliseconds
	EXCEL_EPOCH_MS = -2209161600000
	MS_PER_DAY     = 86400000 // milliseconds in a day
)

// serialDate converts a time to days since the epoch, keeping the wall clock
// of the time's location
func serialDate(t time.Time) float64 {
	_, offset := t.Zone()
	local := t.UnixMilli() + int64(offset)*1000
	return float64(local-EXCEL_EPOCH_MS) / MS_PER_DAY
}

func (bf *BuiltInFunctions) NOW(args ...any) (Primitive, error) {
	return serialDate(bf.clock.Now()), nil
}

func (bf *BuiltInFunctions) TODAY(args ...any) (Primitive, error) {
	return math.Floor(serialDate(bf.clock.Now())), nil
}

func (bf *BuiltInFunctions) RAND(args ...any) (Primitive, error) {
	return bf.rng.Float64(), nil
}

// RANDBETWEEN returns an integer in [low, high]
func (bf *BuiltInFunctions) RANDBETWEEN(args ...any) (Primitive, error) {
	low, err := numberArg(args[0])
	if err != nil {
		return nil, err
	}
	high, err := numberArg(args[1])
	if err != nil {
		return nil, err
	}
	low, high = math.Ceil(low), math.Floor(high)
	if low > high {
		return nil, ErrNotANumber
	}
	return low + math.Floor(bf.rng.Float64()*(high-low+1)), nil
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsInf(num, 0) || math.IsNaN(num) {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toBool converts value to a truth value. text must spell TRUE or FALSE.
func toBool(value Primitive) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case nil:
		return false, true
	case string:
		switch strings.ToUpper(v) {
		case "TRUE":
			return true, true
		case "FALSE":
			return false, true
		}
	}
	return false, false
}

// toString converts value to its display text
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return formatNumber(v)
	case *ErrorValue:
		return v.name
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// numberResult turns non-finite arithmetic results into #NUM!
func numberResult(f float64) Primitive {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNotANumber
	}
	return f
}

func pow(base, exp float64) float64 {
	return math.Pow(base, exp)
}
