package spreadsheet

import (
	"strconv"
	"strings"
)

const (
	MaxWidth  uint32 = 65535      // number of addressable columns, A..CRXO
	MaxHeight uint32 = 2147483647 // number of addressable rows
)

// MaxSize is the capacity of a sheet
var MaxSize = Size{Width: MaxWidth, Height: MaxHeight}

// Point is a zero-based cell coordinate
type Point struct {
	X uint32
	Y uint32
}

// Size is a width and height in cells
type Size struct {
	Width  uint32
	Height uint32
}

// Rect is a rectangle of cells anchored at its top left corner
type Rect struct {
	Origin Point
	Size   Size
}

// String returns the A1 form of the point
func (p Point) String() string {
	return columnName(p.X) + strconv.FormatUint(uint64(p.Y)+1, 10)
}

func (p Point) valid() bool {
	return p.X < MaxWidth && p.Y < MaxHeight
}

func (s Size) area() uint64 {
	return uint64(s.Width) * uint64(s.Height)
}

// String returns "A1" for single cells and "A1:B2" otherwise
func (r Rect) String() string {
	if r.Size.Width == 1 && r.Size.Height == 1 {
		return r.Origin.String()
	}
	if r.Empty() {
		return r.Origin.String() + ":" + r.Origin.String()
	}
	return r.Origin.String() + ":" + r.last().String()
}

// Empty reports whether the rectangle covers no cells
func (r Rect) Empty() bool {
	return r.Size.Width == 0 || r.Size.Height == 0
}

// Contains reports whether the point lies within the rectangle
func (r Rect) Contains(p Point) bool {
	return uint64(p.X) >= uint64(r.Origin.X) && uint64(p.X) < uint64(r.Origin.X)+uint64(r.Size.Width) &&
		uint64(p.Y) >= uint64(r.Origin.Y) && uint64(p.Y) < uint64(r.Origin.Y)+uint64(r.Size.Height)
}

// Intersects reports whether two rectangles share at least one cell
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return uint64(r.Origin.X) < uint64(o.Origin.X)+uint64(o.Size.Width) &&
		uint64(o.Origin.X) < uint64(r.Origin.X)+uint64(r.Size.Width) &&
		uint64(r.Origin.Y) < uint64(o.Origin.Y)+uint64(o.Size.Height) &&
		uint64(o.Origin.Y) < uint64(r.Origin.Y)+uint64(r.Size.Height)
}

// last returns the bottom right cell of a non-empty rectangle
func (r Rect) last() Point {
	return Point{X: r.Origin.X + r.Size.Width - 1, Y: r.Origin.Y + r.Size.Height - 1}
}

// withinMax reports whether the rectangle fits inside MaxSize
func (r Rect) withinMax() bool {
	return uint64(r.Origin.X)+uint64(r.Size.Width) <= uint64(MaxWidth) &&
		uint64(r.Origin.Y)+uint64(r.Size.Height) <= uint64(MaxHeight)
}

// rectFromPoints returns the bounding rectangle of two points in any order
func rectFromPoints(a, b Point) Rect {
	lo := Point{X: min(a.X, b.X), Y: min(a.Y, b.Y)}
	hi := Point{X: max(a.X, b.X), Y: max(a.Y, b.Y)}
	return Rect{Origin: lo, Size: Size{Width: hi.X - lo.X + 1, Height: hi.Y - lo.Y + 1}}
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// ParseColumn parses bijective base-26 column letters, case-insensitive.
// returns false for anything that is not a column below MaxWidth.
func ParseColumn(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	var value uint64
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !isLetter(ch) {
			return 0, false
		}
		if ch >= 'a' {
			ch -= 'a' - 'A'
		}
		value = value*26 + uint64(ch-'A'+1)
		if value > uint64(MaxWidth) {
			return 0, false
		}
	}
	return uint32(value - 1), true
}

// ParseRow parses a 1-based decimal row number without leading zeros.
// returns the 0-based index, or false when the text is not a row.
func ParseRow(s string) (uint32, bool) {
	if s == "" || s[0] == '0' {
		return 0, false
	}
	var value uint64
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
		value = value*10 + uint64(s[i]-'0')
		if value > uint64(MaxHeight) {
			return 0, false
		}
	}
	return uint32(value - 1), true
}

// ParsePoint parses "A1" style coordinates
func ParsePoint(s string) (Point, bool) {
	split := 0
	for split < len(s) && isLetter(s[split]) {
		split++
	}
	x, ok := ParseColumn(s[:split])
	if !ok {
		return Point{}, false
	}
	y, ok := ParseRow(s[split:])
	if !ok {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// ParseArea parses either a single point, which yields a 1x1 rectangle, or
// two points joined by ':' in either corner order
func ParseArea(s string) (Rect, bool) {
	first, second, found := strings.Cut(s, ":")
	start, ok := ParsePoint(first)
	if !ok {
		return Rect{}, false
	}
	if !found {
		return Rect{Origin: start, Size: Size{Width: 1, Height: 1}}, true
	}
	end, ok := ParsePoint(second)
	if !ok {
		return Rect{}, false
	}
	return rectFromPoints(start, end), true
}

// IndexToColumn returns the column letters for a 0-based column index
func IndexToColumn(x uint32) (string, error) {
	if x >= MaxWidth {
		return "", validationError(OutOfRange, "column index %d is out of range", x)
	}
	return columnName(x), nil
}

// IndexToRow returns the 1-based row number text for a 0-based row index
func IndexToRow(y uint32) (string, error) {
	if y >= MaxHeight {
		return "", validationError(OutOfRange, "row index %d is out of range", y)
	}
	return strconv.FormatUint(uint64(y)+1, 10), nil
}

// columnName renders column letters without range checking
func columnName(x uint32) string {
	var buf [8]byte
	i := len(buf)
	n := uint64(x) + 1
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}
