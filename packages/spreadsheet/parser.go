package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// AST enables dependency extraction, reference rewriting, and volatile
// function detection through tree traversal rather than string manipulation.
// nodes never hold coordinates, references are indexes into the formula's
// reference list, so one tree serves every cell a formula is copied to.
type ASTNode interface {
	Eval(ctx *EvalContext) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// EvalContext is what a formula sees while it evaluates at one cell
type EvalContext struct {
	origin        Point
	refs          []Reference
	cells         cellReader
	functions     *BuiltInFunctions
	maxArrayCells int
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
	origin Point
	refs   []Reference
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return formatNumber(n.Value)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorNode represents an error literal like #N/A
type ErrorNode struct {
	Value    *ErrorValue
	Position NodePosition
}

func (n *ErrorNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *ErrorNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ErrorNode) ToString() string {
	return n.Value.name
}

// RefNode is a cell, area, row or column reference
type RefNode struct {
	Index    int // into the formula's reference list
	Position NodePosition
}

func (n *RefNode) Eval(ctx *EvalContext) (Primitive, error) {
	ref := ctx.refs[n.Index]
	rect, ok := ref.Resolve(ctx.origin)
	if !ok {
		return nil, ErrInvalidReference
	}
	if ref.kind == refCell {
		return ctx.cells.valueAt(rect.Origin), nil
	}
	return &CellRange{rect: rect, wholeAxis: ref.IsWholeAxis(), cells: ctx.cells}, nil
}

// evalRange evaluates the reference as a range even when it names one cell
func (n *RefNode) evalRange(ctx *EvalContext) (Primitive, error) {
	ref := ctx.refs[n.Index]
	rect, ok := ref.Resolve(ctx.origin)
	if !ok {
		return nil, ErrInvalidReference
	}
	return &CellRange{rect: rect, wholeAxis: ref.IsWholeAxis(), cells: ctx.cells}, nil
}

func (n *RefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RefNode) ToString() string {
	return fmt.Sprintf("REF(%d)", n.Index)
}

// NameNode is a bare identifier. there are no defined names, so it always
// evaluates to #NAME?
type NameNode struct {
	Name     string
	Position NodePosition
}

func (n *NameNode) Eval(ctx *EvalContext) (Primitive, error) {
	return nil, ErrInvalidName
}

func (n *NameNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NameNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

// evalOperand evaluates a node and turns evaluation errors into values
func evalOperand(node ASTNode, ctx *EvalContext) Primitive {
	val, err := node.Eval(ctx)
	if err != nil {
		return errorToValue(err)
	}
	return val
}

// errorToValue converts an evaluation error into an error value
func errorToValue(err error) *ErrorValue {
	if ev, ok := err.(*ErrorValue); ok {
		return ev
	}
	return ErrInvalidValue
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) (Primitive, error) {
	leftVal := evalOperand(n.Left, ctx)
	rightVal := evalOperand(n.Right, ctx)
	return broadcast([]Primitive{leftVal, rightVal}, ctx.maxArrayCells, func(args []Primitive) Primitive {
		return applyBinary(n.Op, args[0], args[1])
	}), nil
}

// applyBinary applies an operator to two scalars
func applyBinary(op BinaryOp, leftVal, rightVal Primitive) Primitive {
	// propagate errors
	if err, ok := leftVal.(*ErrorValue); ok {
		return err
	}
	if err, ok := rightVal.(*ErrorValue); ok {
		return err
	}

	switch op {
	case BinOpConcat:
		return toString(leftVal) + toString(rightVal)
	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		cmp := comparePrimitives(leftVal, rightVal)
		switch op {
		case BinOpEqual:
			return cmp == 0
		case BinOpNotEqual:
			return cmp != 0
		case BinOpLess:
			return cmp < 0
		case BinOpLessEqual:
			return cmp <= 0
		case BinOpGreater:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}

	leftNum, leftOk := toNumber(leftVal)
	rightNum, rightOk := toNumber(rightVal)
	if !leftOk || !rightOk {
		return ErrInvalidValue
	}

	var result float64
	switch op {
	case BinOpAdd:
		result = leftNum + rightNum
	case BinOpSubtract:
		result = leftNum - rightNum
	case BinOpMultiply:
		result = leftNum * rightNum
	case BinOpDivide:
		if rightNum == 0 {
			return ErrDivisionByZero
		}
		result = leftNum / rightNum
	case BinOpPower:
		if leftNum == 0 && rightNum == 0 {
			return ErrNotANumber
		}
		result = pow(leftNum, rightNum)
	default:
		return ErrInvalidValue
	}
	return numberResult(result)
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpText[n.Op], n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) (Primitive, error) {
	val := evalOperand(n.Operand, ctx)
	return broadcast([]Primitive{val}, ctx.maxArrayCells, func(args []Primitive) Primitive {
		if err, ok := args[0].(*ErrorValue); ok {
			return err
		}
		num, ok := toNumber(args[0])
		if !ok {
			return ErrInvalidValue
		}
		switch n.Op {
		case UnaryOpMinus:
			return numberResult(-num)
		case UnaryOpPercent:
			return numberResult(num / 100.0)
		default:
			return num
		}
	}), nil
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	default:
		return "+" + n.Operand.ToString()
	}
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) (Primitive, error) {
	args := make([]any, len(n.Args))
	for i, argNode := range n.Args {
		// reference functions look at the shape of their argument, not its
		// value
		if ref, ok := argNode.(*RefNode); ok && takesReferences(n.Name) {
			val, err := ref.evalRange(ctx)
			if err != nil {
				args[i] = errorToValue(err)
			} else {
				args[i] = val
			}
			continue
		}
		// functions decide how to handle error values
		args[i] = evalOperand(argNode, ctx)
	}

	result, err := ctx.functions.Call(n.Name, ctx.origin, args...)
	if err != nil {
		return nil, errorToValue(err)
	}
	return result, nil
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// NewParser creates a parser for a formula sitting at origin
func NewParser(tokens []Token, origin Point) *Parser {
	return &Parser{
		tokens: tokens,
		origin: origin,
	}
}

// References returns the references collected while parsing, in the order
// they appear in the text
func (p *Parser) References() []Reference {
	return p.refs
}

func parseError(format string, args ...any) *AppError {
	return NewApplicationError(InvalidArgument, fmt.Sprintf(format, args...))
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, parseError("empty formula")
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, parseError("unexpected token after expression: %s", p.tokens[p.pos].Value)
	}

	return node, nil
}

// parseBinaryLevel parses one left-associative precedence level
func (p *Parser) parseBinaryLevel(next func() (ASTNode, error), ops map[string]BinaryOp) (ASTNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}
		op, ok := ops[tok.Value]
		if !ok {
			break
		}

		p.pos++
		right, err := next()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

var (
	comparisonOps     = map[string]BinaryOp{"=": BinOpEqual, "<>": BinOpNotEqual, "<": BinOpLess, "<=": BinOpLessEqual, ">": BinOpGreater, ">=": BinOpGreaterEqual}
	concatenationOps  = map[string]BinaryOp{"&": BinOpConcat}
	additionOps       = map[string]BinaryOp{"+": BinOpAdd, "-": BinOpSubtract}
	multiplicationOps = map[string]BinaryOp{"*": BinOpMultiply, "/": BinOpDivide}
)

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseConcatenation, comparisonOps)
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseAddition, concatenationOps)
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseMultiplication, additionOps)
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	return p.parseBinaryLevel(p.parsePower, multiplicationOps)
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}

		return &BinaryOpNode{
			Op:       BinOpPower,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}, nil
	}

	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, parseError("unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePostfix()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}

	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		end := p.tokens[p.pos].End
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: end},
		}
	}

	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, parseError("unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	position := NodePosition{Start: tok.Pos, End: tok.End}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, parseError("invalid number: %s", tok.Value)
		}
		return &NumberNode{Value: val, Position: position}, nil

	case TokenString:
		p.pos++
		return &StringNode{Value: tok.Value, Position: position}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{Value: tok.Value == "TRUE", Position: position}, nil

	case TokenErrorLiteral:
		p.pos++
		ev, ok := ErrorFromName(tok.Value)
		if !ok {
			return nil, parseError("unknown error literal: %s", tok.Value)
		}
		return &ErrorNode{Value: ev, Position: position}, nil

	case TokenCell, TokenRange:
		p.pos++
		ref, ok := parseReferenceText(tok.Value, p.origin)
		if !ok {
			return nil, parseError("invalid reference: %s", tok.Value)
		}
		p.refs = append(p.refs, ref)
		return &RefNode{Index: len(p.refs) - 1, Position: position}, nil

	case TokenIdentifier:
		p.pos++
		return &NameNode{Name: tok.Value, Position: position}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, parseError("expected closing parenthesis")
		}
		p.pos++
		return node, nil

	default:
		return nil, parseError("unexpected token: %s", tok.Value)
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.tokens[p.pos]
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, parseError("expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}

	// check for empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcTok.Value,
			Args:     args,
			Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].End},
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, parseError("unexpected end in function arguments")
		}
		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}
		if p.tokens[p.pos].Type != TokenComma {
			return nil, parseError("expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].End},
	}, nil
}

// parseReferenceText turns the text of a reference token into a reference
// relative to origin
func parseReferenceText(text string, origin Point) (Reference, bool) {
	l := NewLexer(text)
	first, end, ok := l.scanRefPart(0)
	if !ok {
		return Reference{}, false
	}
	if end == len(l.runes) {
		return buildReference(first, nil, origin)
	}
	if l.at(end) != charColon {
		return Reference{}, false
	}
	second, end2, ok := l.scanRefPart(end + 1)
	if !ok || end2 != len(l.runes) || !first.compatible(second) {
		return Reference{}, false
	}
	return buildReference(first, &second, origin)
}

// comparePrimitives orders two scalars: numbers sort before text, text
// before booleans, and blanks compare as the zero value of the other side.
// text comparison ignores case.
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		left = blankLike(right)
	}
	if right == nil {
		right = blankLike(left)
	}

	rank := func(v Primitive) int {
		switch v.(type) {
		case float64:
			return 0
		case string:
			return 1
		case bool:
			return 2
		default:
			return 3
		}
	}
	if rl, rr := rank(left), rank(right); rl != rr {
		if rl < rr {
			return -1
		}
		return 1
	}

	switch l := left.(type) {
	case float64:
		r := right.(float64)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
		return 0
	case string:
		return strings.Compare(strings.ToUpper(l), strings.ToUpper(right.(string)))
	case bool:
		r := right.(bool)
		switch {
		case l == r:
			return 0
		case !l:
			return -1
		}
		return 1
	case *ErrorValue:
		r := right.(*ErrorValue)
		switch {
		case l.code < r.code:
			return -1
		case l.code > r.code:
			return 1
		}
	}
	return 0
}

func blankLike(v Primitive) Primitive {
	switch v.(type) {
	case string:
		return ""
	case bool:
		return false
	default:
		return 0.0
	}
}
