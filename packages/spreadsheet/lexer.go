package spreadsheet

import (
	"strings"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenErrorLiteral
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenInvalid
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charHash       = '#'
	charDollar     = '$'
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
)

// valueTokens can start an operand
var valueTokens = map[TokenType]bool{
	TokenNumber:        true,
	TokenString:        true,
	TokenBoolean:       true,
	TokenErrorLiteral:  true,
	TokenCell:          true,
	TokenRange:         true,
	TokenFunction:      true,
	TokenIdentifier:    true,
	TokenLeftParen:     true,
	TokenUnaryPrefixOp: true,
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart:         valueTokens,
	StateAfterOperator: valueTokens,
	StateAfterComma:    valueTokens,
	StateAfterValue: { // after number, string, cell, range
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenComma:          true,
		TokenEOF:            true,
	},
	StateAfterLeftParen: {
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenErrorLiteral:  true,
		TokenCell:          true,
		TokenRange:         true,
		TokenFunction:      true,
		TokenIdentifier:    true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true,
		TokenRightParen:    true, // empty parens for arg-less functions like PI()
	},
	StateAfterFunction: {
		TokenLeftParen: true,
	},
}

// Token represents a lexical token with its rune span in the input
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position of the first character
	End   int // rune position after the last character
}

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterComma
	StateAfterFunction
)

// Lexer tokenizes formula text. formulas carry no '=' prefix, so '=' is
// always the comparison operator.
type Lexer struct {
	runes      []rune
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
}

// NewLexer creates a new lexer for the given formula text
func NewLexer(input string) *Lexer {
	return &Lexer{
		runes:  []rune(input),
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input. the token list ends with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok := l.nextToken()
		if tok.Type == TokenInvalid {
			return nil, NewApplicationError(InvalidArgument, tok.Value)
		}
		if !l.validateTransition(tok.Type) {
			if tok.Type == TokenEOF {
				return nil, NewApplicationError(InvalidArgument, "unexpected end of formula")
			}
			return nil, NewApplicationError(InvalidArgument, "unexpected token: "+tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		return nil, NewApplicationError(InvalidArgument, "unbalanced parentheses: missing closing parenthesis")
	}
	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenString, TokenBoolean, TokenErrorLiteral, TokenCell, TokenRange, TokenIdentifier:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators don't change state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterValue
	case TokenComma:
		l.state = StateAfterComma
	case TokenFunction:
		l.state = StateAfterFunction
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: startPos, End: startPos}
	}

	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}
	if ch == charHash {
		return l.scanErrorLiteral()
	}

	if l.isDigit(ch) || ch == charDollar {
		// rows like 3:5 start with digits too
		if tok, ok := l.scanReference(); ok {
			return tok
		}
	}
	if l.isDigit(ch) || (ch == charPeriod && l.pos+1 < len(l.runes) && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return l.token(TokenLeftParen, "(", startPos)
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return l.token(TokenInvalid, "unbalanced parentheses: too many closing parentheses", startPos)
		}
		return l.token(TokenRightParen, ")", startPos)
	case charComma:
		l.pos++
		return l.token(TokenComma, ",", startPos)
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand, charLess, charGreater, charEqual:
		return l.scanBinaryOp()
	case charPercent:
		l.pos++
		return l.token(TokenUnaryPostfixOp, "%", startPos)
	}

	if l.isAlpha(ch) || ch == charUnderscore {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return l.token(TokenInvalid, "unexpected character: "+string(ch), startPos)
}

func (l *Lexer) token(t TokenType, value string, start int) Token {
	return Token{Type: t, Value: value, Pos: start, End: l.pos}
}

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	return l.at(l.pos)
}

func (l *Lexer) at(pos int) rune {
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) peek(offset int) rune {
	return l.at(l.pos + offset)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isNameChar(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch) || ch == charUnderscore || ch == charPeriod
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod {
		l.pos++
		for l.isDigit(l.current()) {
			l.pos++
		}
	}

	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return l.token(TokenNumber, l.substring(startPos, l.pos), startPos)
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch != charQuote {
			result = append(result, ch)
			l.pos++
			continue
		}
		if l.peek(1) == charQuote {
			result = append(result, charQuote)
			l.pos += 2
			continue
		}
		l.pos++ // consume closing quote
		return l.token(TokenString, string(result), startPos)
	}

	return l.token(TokenInvalid, "unclosed string literal", startPos)
}

// scanErrorLiteral scans one of the canonical error names, e.g. #DIV/0!
func (l *Lexer) scanErrorLiteral() Token {
	startPos := l.pos
	rest := strings.ToUpper(l.substring(l.pos, len(l.runes)))
	best := ""
	for _, name := range errorNames {
		if strings.HasPrefix(rest, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		l.pos++
		return l.token(TokenInvalid, "unknown error literal", startPos)
	}
	l.pos += len([]rune(best))
	return l.token(TokenErrorLiteral, best, startPos)
}

// scanIdentifierOrCell scans functions, booleans, references and names
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos
	for l.isNameChar(l.current()) {
		l.pos++
	}
	value := l.substring(startPos, l.pos)
	upperValue := strings.ToUpper(value)

	// names directly followed by '(' are calls, even when they look like
	// cells, e.g. LOG10(
	if l.current() == charLParen {
		return l.token(TokenFunction, upperValue, startPos)
	}

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return l.token(TokenBoolean, upperValue, startPos)
	}

	l.pos = startPos
	if tok, ok := l.scanReference(); ok {
		return tok
	}

	for l.isNameChar(l.current()) {
		l.pos++
	}
	return l.token(TokenIdentifier, value, startPos)
}

// scanRefPart scans one reference corner like $A$1, A, $3 starting at pos.
// returns the corner and the position after it.
func (l *Lexer) scanRefPart(pos int) (refPart, int, bool) {
	var part refPart
	if l.at(pos) == charDollar {
		part.colAbs = true
		pos++
	}
	start := pos
	for l.isAlpha(l.at(pos)) {
		pos++
	}
	part.col = l.substring(start, pos)
	if part.col == "" {
		// a lone $ belongs to the row
		part.rowAbs, part.colAbs = part.colAbs, false
	} else if l.at(pos) == charDollar {
		part.rowAbs = true
		pos++
	}
	start = pos
	for l.isDigit(l.at(pos)) {
		pos++
	}
	part.row = l.substring(start, pos)

	if part.col == "" && part.row == "" {
		return refPart{}, pos, false
	}
	if part.rowAbs && part.row == "" {
		return refPart{}, pos, false
	}
	if part.col != "" {
		if _, ok := ParseColumn(part.col); !ok {
			return refPart{}, pos, false
		}
	}
	if part.row != "" {
		if _, ok := ParseRow(part.row); !ok {
			return refPart{}, pos, false
		}
	}
	return part, pos, true
}

// scanReference scans a cell, area, row span or column span reference. the
// lexer position is left untouched when the text is not a reference.
func (l *Lexer) scanReference() (Token, bool) {
	startPos := l.pos
	first, end, ok := l.scanRefPart(startPos)
	if !ok {
		return Token{}, false
	}

	if l.at(end) == charColon {
		if second, end2, ok := l.scanRefPart(end + 1); ok && first.compatible(second) && !l.isNameChar(l.at(end2)) {
			l.pos = end2
			return l.token(TokenRange, strings.ToUpper(l.substring(startPos, end2)), startPos), true
		}
	}

	if !first.isCell() || l.isNameChar(l.at(end)) {
		return Token{}, false
	}
	l.pos = end
	return l.token(TokenCell, strings.ToUpper(l.substring(startPos, end)), startPos), true
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return l.token(TokenUnaryPrefixOp, string(ch), startPos)
	}
	return l.token(TokenBinaryOp, string(ch), startPos)
}

// scanBinaryOp scans binary operators
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		switch l.current() {
		case charEqual:
			l.pos++
			return l.token(TokenBinaryOp, "<=", startPos)
		case charGreater:
			l.pos++
			return l.token(TokenBinaryOp, "<>", startPos)
		}
		return l.token(TokenBinaryOp, "<", startPos)
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return l.token(TokenBinaryOp, ">=", startPos)
		}
		return l.token(TokenBinaryOp, ">", startPos)
	case charAsterisk, charSlash, charCaret, charAmpersand, charEqual:
		return l.token(TokenBinaryOp, string(ch), startPos)
	}

	return l.token(TokenInvalid, "unknown operator", startPos)
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	// unary operators are allowed after:
	// - start of expression
	// - after another operator
	// - after left paren
	// - after comma
	switch l.state {
	case StateStart, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
