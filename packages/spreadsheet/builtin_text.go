package spreadsheet

import (
	"strings"
	"unicode/utf8"
)

// maxTextLength is the longest text a text function will build
const maxTextLength = 32767

func (bf *BuiltInFunctions) CONCATENATE(args ...any) (Primitive, error) {
	var b strings.Builder
	for _, arg := range args {
		s, err := textArg(arg)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// CONCAT joins its arguments, ranges row by row
func (bf *BuiltInFunctions) CONCAT(args ...any) (Primitive, error) {
	var b strings.Builder
	for _, arg := range args {
		r, ok := arg.(Range)
		if !ok {
			s, err := textArg(arg)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
			continue
		}
		arr, errValue := materialize(r, bf.maxArrayCells)
		if errValue != nil {
			return nil, errValue
		}
		for value := range arr.IterateValues() {
			if err := checkForError(value); err != nil {
				return nil, err
			}
			b.WriteString(toString(value))
		}
		if b.Len() > maxTextLength {
			return nil, ErrInvalidValue
		}
	}
	return b.String(), nil
}

func (bf *BuiltInFunctions) LEN(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	return float64(utf8.RuneCountInString(s)), nil
}

func (bf *BuiltInFunctions) UPPER(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

func (bf *BuiltInFunctions) LOWER(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

// TRIM removes leading and trailing spaces and collapses inner runs to one
func (bf *BuiltInFunctions) TRIM(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	words := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
	return strings.Join(words, " "), nil
}

// countArg reads an optional non-negative character count
func countArg(args []any, i int, fallback int) (int, error) {
	if len(args) <= i {
		return fallback, nil
	}
	n, err := intArg(args[i])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrInvalidValue
	}
	return n, nil
}

func (bf *BuiltInFunctions) LEFT(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := countArg(args, 1, 1)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	return string(runes[:min(n, len(runes))]), nil
}

func (bf *BuiltInFunctions) RIGHT(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := countArg(args, 1, 1)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	return string(runes[len(runes)-min(n, len(runes)):]), nil
}

// MID(text, start, count) with a 1-based start
func (bf *BuiltInFunctions) MID(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	start, err := intArg(args[1])
	if err != nil {
		return nil, err
	}
	if start < 1 {
		return nil, ErrInvalidValue
	}
	n, err := countArg(args, 2, 0)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	if start > len(runes) {
		return "", nil
	}
	end := min(start-1+n, len(runes))
	return string(runes[start-1 : end]), nil
}

// FIND is case-sensitive and returns the 1-based position of the match
func (bf *BuiltInFunctions) FIND(args ...any) (Primitive, error) {
	needle, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	haystack, err := textArg(args[1])
	if err != nil {
		return nil, err
	}
	start := 1
	if len(args) == 3 {
		if start, err = intArg(args[2]); err != nil {
			return nil, err
		}
	}
	runes := []rune(haystack)
	if start < 1 || start > len(runes)+1 {
		return nil, ErrInvalidValue
	}
	idx := strings.Index(string(runes[start-1:]), needle)
	if idx < 0 {
		return nil, ErrInvalidValue
	}
	tail := string(runes[start-1:])
	return float64(start + utf8.RuneCountInString(tail[:idx])), nil
}

// SUBSTITUTE(text, old, new, [instance]) replaces every occurrence of old, or
// only the instance-th one
func (bf *BuiltInFunctions) SUBSTITUTE(args ...any) (Primitive, error) {
	texts := make([]string, 3)
	for i := range texts {
		s, err := textArg(args[i])
		if err != nil {
			return nil, err
		}
		texts[i] = s
	}
	text, old, replacement := texts[0], texts[1], texts[2]
	if old == "" {
		return text, nil
	}
	if len(args) < 4 {
		return checkedText(strings.ReplaceAll(text, old, replacement))
	}

	instance, err := intArg(args[3])
	if err != nil {
		return nil, err
	}
	if instance < 1 {
		return nil, ErrInvalidValue
	}
	offset := 0
	for i := 1; ; i++ {
		idx := strings.Index(text[offset:], old)
		if idx < 0 {
			return text, nil
		}
		at := offset + idx
		if i == instance {
			return checkedText(text[:at] + replacement + text[at+len(old):])
		}
		offset = at + len(old)
	}
}

// REPLACE(text, start, count, new) swaps count characters from start
func (bf *BuiltInFunctions) REPLACE(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	start, err := intArg(args[1])
	if err != nil {
		return nil, err
	}
	n, err := countArg(args, 2, 0)
	if err != nil {
		return nil, err
	}
	replacement, err := textArg(args[3])
	if err != nil {
		return nil, err
	}
	if start < 1 {
		return nil, ErrInvalidValue
	}
	runes := []rune(s)
	from := min(start-1, len(runes))
	to := min(from+n, len(runes))
	return checkedText(string(runes[:from]) + replacement + string(runes[to:]))
}

func (bf *BuiltInFunctions) REPT(args ...any) (Primitive, error) {
	s, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	n, err := countArg(args, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(s)*n > maxTextLength {
		return nil, ErrInvalidValue
	}
	return strings.Repeat(s, n), nil
}

// EXACT compares text case-sensitively
func (bf *BuiltInFunctions) EXACT(args ...any) (Primitive, error) {
	a, err := textArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := textArg(args[1])
	if err != nil {
		return nil, err
	}
	return a == b, nil
}

func checkedText(s string) (Primitive, error) {
	if utf8.RuneCountInString(s) > maxTextLength {
		return nil, ErrInvalidValue
	}
	return s, nil
}
