package spreadsheet

import (
	"fmt"
	"math"
	"sync"
)

// Primitive represents basic spreadsheet value types.
// types:
//   - nil: empty cells
//   - bool: boolean values (TRUE/FALSE)
//   - float64: numeric values, always finite
//   - string: text values
//   - *ErrorValue: error values (#DIV/0!, #VALUE!, etc.)
//
// formula evaluation additionally passes Range values around, they never end
// up stored in a cell.
type Primitive any

// ErrorCode identifies an error value. the first ten codes follow spreadsheet
// conventions, any other code is accepted and interned on first use.
type ErrorCode uint32

const (
	ErrorCodeNullRange        ErrorCode = 1  // #NULL! - no cells in common between ranges
	ErrorCodeDivisionByZero   ErrorCode = 2  // #DIV/0! - division by zero
	ErrorCodeInvalidValue     ErrorCode = 3  // #VALUE! - wrong type of argument or operand
	ErrorCodeInvalidReference ErrorCode = 4  // #REF! - invalid cell reference
	ErrorCodeInvalidName      ErrorCode = 5  // #NAME? - unrecognized function or name
	ErrorCodeNotANumber       ErrorCode = 6  // #NUM! - number not representable
	ErrorCodeInvalidArgs      ErrorCode = 7  // #N/A - value not available, bad argument count
	ErrorCodeGettingData      ErrorCode = 8  // #GETTING_DATA - pending external data
	ErrorCodeSpill            ErrorCode = 9  // #SPILL! - array result blocked
	ErrorCodeInvalidFormula   ErrorCode = 10 // #ERROR! - formula text could not be parsed
)

// errorNames maps the canonical error codes to their display strings
var errorNames = map[ErrorCode]string{
	ErrorCodeNullRange:        "#NULL!",
	ErrorCodeDivisionByZero:   "#DIV/0!",
	ErrorCodeInvalidValue:     "#VALUE!",
	ErrorCodeInvalidReference: "#REF!",
	ErrorCodeInvalidName:      "#NAME?",
	ErrorCodeNotANumber:       "#NUM!",
	ErrorCodeInvalidArgs:      "#N/A",
	ErrorCodeGettingData:      "#GETTING_DATA",
	ErrorCodeSpill:            "#SPILL!",
	ErrorCodeInvalidFormula:   "#ERROR!",
}

// ErrorValue is an immutable, identity-stable spreadsheet error. two error
// values with the same code are always the same pointer, so they can be
// compared with ==.
type ErrorValue struct {
	code ErrorCode
	name string
}

// Code returns the numeric code of the error value
func (e *ErrorValue) Code() ErrorCode {
	return e.code
}

// Error returns the display string, e.g. "#DIV/0!"
func (e *ErrorValue) Error() string {
	return e.name
}

func (e *ErrorValue) String() string {
	return e.name
}

// the canonical error values
var (
	ErrNullRange        = &ErrorValue{code: ErrorCodeNullRange, name: errorNames[ErrorCodeNullRange]}
	ErrDivisionByZero   = &ErrorValue{code: ErrorCodeDivisionByZero, name: errorNames[ErrorCodeDivisionByZero]}
	ErrInvalidValue     = &ErrorValue{code: ErrorCodeInvalidValue, name: errorNames[ErrorCodeInvalidValue]}
	ErrInvalidReference = &ErrorValue{code: ErrorCodeInvalidReference, name: errorNames[ErrorCodeInvalidReference]}
	ErrInvalidName      = &ErrorValue{code: ErrorCodeInvalidName, name: errorNames[ErrorCodeInvalidName]}
	ErrNotANumber       = &ErrorValue{code: ErrorCodeNotANumber, name: errorNames[ErrorCodeNotANumber]}
	ErrInvalidArgs      = &ErrorValue{code: ErrorCodeInvalidArgs, name: errorNames[ErrorCodeInvalidArgs]}
	ErrGettingData      = &ErrorValue{code: ErrorCodeGettingData, name: errorNames[ErrorCodeGettingData]}
	ErrSpill            = &ErrorValue{code: ErrorCodeSpill, name: errorNames[ErrorCodeSpill]}
	ErrInvalidFormula   = &ErrorValue{code: ErrorCodeInvalidFormula, name: errorNames[ErrorCodeInvalidFormula]}
)

// errorRegistry interns error values by code. it is shared by every sheet in
// the process and entries are never evicted.
type errorRegistry struct {
	mu     sync.Mutex
	byCode map[ErrorCode]*ErrorValue
	byName map[string]*ErrorValue
}

var registry = newErrorRegistry()

func newErrorRegistry() *errorRegistry {
	r := &errorRegistry{
		byCode: make(map[ErrorCode]*ErrorValue),
		byName: make(map[string]*ErrorValue),
	}
	for _, e := range []*ErrorValue{
		ErrNullRange, ErrDivisionByZero, ErrInvalidValue, ErrInvalidReference, ErrInvalidName,
		ErrNotANumber, ErrInvalidArgs, ErrGettingData, ErrSpill, ErrInvalidFormula,
	} {
		r.byCode[e.code] = e
		r.byName[e.name] = e
	}
	return r
}

func (r *errorRegistry) fromCode(code ErrorCode) *ErrorValue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.byCode[code]; exists {
		return e
	}
	e := &ErrorValue{code: code, name: fmt.Sprintf("#ERR%d!", code)}
	r.byCode[code] = e
	return e
}

func (r *errorRegistry) fromName(name string) (*ErrorValue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.byName[name]
	return e, exists
}

// ErrorFromCode returns the error value for a code. canonical codes return
// the predefined values, any other code is interned on first request and the
// same instance is returned for every later request.
func ErrorFromCode(code ErrorCode) *ErrorValue {
	return registry.fromCode(code)
}

// ErrorFromName looks up a canonical error value by its display string, e.g.
// "#N/A"
func ErrorFromName(name string) (*ErrorValue, bool) {
	return registry.fromName(name)
}

// normalizeScalar converts a host value into a Primitive. non-finite numbers
// become ErrNotANumber, go integer kinds become float64. any other kind is
// rejected.
func normalizeScalar(value any) (Primitive, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool, string, *ErrorValue:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNotANumber, nil
		}
		return v, nil
	case float32:
		return normalizeScalar(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return nil, validationError(InvalidArgument, "unsupported value kind %T", value)
	}
}

// sameValue reports whether two stored values are indistinguishable,
// including the sign of zero
func sameValue(a, b Primitive) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf && math.Signbit(af) == math.Signbit(bf)
	}
	if aok != bok {
		return false
	}
	return a == b
}
