package spreadsheet

import (
	"strings"
)

// Formula is a parsed, position-independent formula. its text is kept as the
// runs of source between references, so rendering it at any cell only
// rewrites the references and leaves spacing and casing alone.
//
// formulas are immutable and shared through the FormulaTable: every cell
// holding the same text relative to its own position points at one Formula.
type Formula struct {
	segments []string    // len(refs)+1 runs of literal text
	refs     []Reference // in the order they appear in the text
	root     ASTNode     // nil when the text does not parse
	volatile bool
	key      string
}

// invalidKeyPrefix marks formulas that failed to parse, whose key is their
// text
const invalidKeyPrefix = "\x01"

// ParseFormula parses text for a formula sitting at origin. text that does
// not parse still produces a formula, one that evaluates to #ERROR! and
// keeps its text as is.
func ParseFormula(text string, origin Point) *Formula {
	tokens, err := NewLexer(text).Tokenize()
	var root ASTNode
	var parser *Parser
	if err == nil {
		parser = NewParser(tokens, origin)
		root, err = parser.Parse()
	}
	if err != nil {
		return &Formula{segments: []string{text}, key: invalidKeyPrefix + text}
	}

	runes := []rune(text)
	segments := make([]string, 0, len(parser.References())+1)
	last := 0
	for _, tok := range tokens {
		if tok.Type != TokenCell && tok.Type != TokenRange {
			continue
		}
		segments = append(segments, string(runes[last:tok.Pos]))
		last = tok.End
	}
	segments = append(segments, string(runes[last:]))

	f := &Formula{
		segments: segments,
		refs:     parser.References(),
		root:     root,
		volatile: containsVolatile(root),
	}
	f.key = f.buildKey()
	return f
}

func containsVolatile(node ASTNode) bool {
	switch n := node.(type) {
	case *FunctionCallNode:
		if isVolatileFunction(n.Name) {
			return true
		}
		for _, arg := range n.Args {
			if containsVolatile(arg) {
				return true
			}
		}
	case *BinaryOpNode:
		return containsVolatile(n.Left) || containsVolatile(n.Right)
	case *UnaryOpNode:
		return containsVolatile(n.Operand)
	}
	return false
}

func (f *Formula) buildKey() string {
	var b strings.Builder
	for i, seg := range f.segments {
		b.WriteString(seg)
		if i < len(f.refs) {
			b.WriteByte(0)
			b.WriteString(f.refs[i].key())
			b.WriteByte(0)
		}
	}
	return b.String()
}

// Valid reports whether the text parsed
func (f *Formula) Valid() bool {
	return f.root != nil
}

// Volatile reports whether the formula calls a function that changes on
// every recalculation
func (f *Formula) Volatile() bool {
	return f.volatile
}

// Text renders the formula as it reads at origin
func (f *Formula) Text(origin Point) string {
	if len(f.refs) == 0 {
		return f.segments[0]
	}
	var b strings.Builder
	for i, seg := range f.segments {
		b.WriteString(seg)
		if i < len(f.refs) {
			b.WriteString(f.refs[i].Render(origin))
		}
	}
	return b.String()
}

// withRefs returns a copy of the formula with its references replaced. the
// syntax tree is shared.
func (f *Formula) withRefs(refs []Reference) *Formula {
	out := &Formula{
		segments: f.segments,
		refs:     refs,
		root:     f.root,
		volatile: f.volatile,
	}
	out.key = out.buildKey()
	return out
}

// mapRefs applies fn to every reference. the formula itself is returned when
// nothing changes.
func (f *Formula) mapRefs(fn func(Reference) Reference) *Formula {
	if !f.Valid() || len(f.refs) == 0 {
		return f
	}
	refs := make([]Reference, len(f.refs))
	changed := false
	for i, ref := range f.refs {
		refs[i] = fn(ref)
		if refs[i] != ref {
			changed = true
		}
	}
	if !changed {
		return f
	}
	return f.withRefs(refs)
}

// Eval evaluates the formula sitting at origin
func (f *Formula) Eval(origin Point, cells cellReader, functions *BuiltInFunctions, maxArrayCells int) Primitive {
	if f.root == nil {
		return ErrInvalidFormula
	}
	ctx := &EvalContext{
		origin:        origin,
		refs:          f.refs,
		cells:         cells,
		functions:     functions,
		maxArrayCells: maxArrayCells,
	}
	return evalOperand(f.root, ctx)
}

// precedents resolves the references of the formula at origin. single cell
// references come back as points, everything else as rectangles. references
// that point off the grid are skipped.
func (f *Formula) precedents(origin Point) ([]Point, []Rect) {
	var cells []Point
	var ranges []Rect
	for _, ref := range f.refs {
		rect, ok := ref.Resolve(origin)
		if !ok {
			continue
		}
		if ref.kind == refCell {
			cells = append(cells, rect.Origin)
		} else {
			ranges = append(ranges, rect)
		}
	}
	return cells, ranges
}

// FormulaTable interns formulas by their position-independent key
type FormulaTable struct {
	table *internTable[string, *Formula]
}

func NewFormulaTable() *FormulaTable {
	return &FormulaTable{table: newInternTable[string, *Formula]()}
}

// Intern adds a reference to f, or to the equal formula already held, and
// returns its id
func (ft *FormulaTable) Intern(f *Formula) uint32 {
	return ft.table.intern(f.key, func() *Formula { return f })
}

func (ft *FormulaTable) Get(id uint32) (*Formula, bool) {
	return ft.table.get(id)
}

func (ft *FormulaTable) AddReference(id uint32) bool {
	return ft.table.retain(id)
}

func (ft *FormulaTable) RemoveReference(id uint32) bool {
	return ft.table.release(id)
}

// ReferenceCount returns how many cells hold the formula
func (ft *FormulaTable) ReferenceCount(id uint32) int {
	return ft.table.refCount(id)
}

// Count returns the number of distinct formulas held
func (ft *FormulaTable) Count() int {
	return ft.table.count()
}
