package sqlguard

import (
	"fmt"
)

// Lexer tokenizes SQL input with one database's quoting rules.
type Lexer struct {
	input   string
	q       Quoting
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int
	col     int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string, q Quoting) *Lexer {
	l := &Lexer{
		input: input,
		q:     q,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// Tokenize lexes the whole input. Whitespace is dropped; comments are kept as
// Comment tokens.
func Tokenize(input string, q Quoting) ([]Token, error) {
	l := NewLexer(input, q)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Kind == EOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(n int) byte {
	if l.readPos+n >= len(l.input) {
		return 0
	}
	return l.input[l.readPos+n]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// NextToken returns the next token, or a *LexError.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	pos := l.currentPos()
	if l.atEOF() {
		return Token{Kind: EOF, Pos: pos}, nil
	}

	start := l.pos
	emit := func(kind TokenKind) (Token, error) {
		return Token{Kind: kind, Text: l.input[start:l.pos], Pos: pos}, nil
	}

	switch {
	case l.ch == '-' && l.peekChar() == '-':
		l.skipLineComment()
		return emit(Comment)
	case l.q.HashComments && l.ch == '#' && (l.peekChar() == ' ' || l.peekChar() == '!'):
		l.skipLineComment()
		return emit(Comment)
	case l.ch == '/' && l.peekChar() == '*':
		if l.peekAt(1) == '!' {
			return Token{}, &LexError{Pos: pos, Message: errExecutableComment}
		}
		if err := l.skipBlockComment(pos); err != nil {
			return Token{}, err
		}
		return emit(Comment)
	case l.ch == '\'':
		if err := l.readQuoted('\'', l.q.BackslashEscapes, pos, errUnterminatedString); err != nil {
			return Token{}, err
		}
		return emit(String)
	case l.ch == '"':
		if err := l.readQuoted('"', l.q.BackslashEscapes, pos, errUnterminatedIdentifier); err != nil {
			return Token{}, err
		}
		return emit(QuotedIdent)
	case l.ch == '`':
		if err := l.readQuoted('`', l.q.BackslashEscapes, pos, errUnterminatedIdentifier); err != nil {
			return Token{}, err
		}
		return emit(QuotedIdent)
	case l.ch == '[' && l.q.BracketIdentifiers:
		if err := l.readBracketed(pos); err != nil {
			return Token{}, err
		}
		return emit(QuotedIdent)
	case l.q.SQLiteVariables && isVariablePrefix(l.ch) && isWordPart(l.peekChar()):
		if err := l.readVariable(pos); err != nil {
			return Token{}, err
		}
		return emit(Param)
	case l.ch == '$':
		return l.readDollar(pos)
	case l.ch == '?':
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return emit(Param)
	case l.ch == ':' && l.peekChar() == ':':
		l.readChar()
		l.readChar()
		return emit(Operator)
	case (l.ch == ':' || l.ch == '@') && isWordStart(l.peekChar()):
		l.readChar()
		l.readWord()
		return emit(Param)
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		l.readNumber()
		return emit(Number)
	case isWordStart(l.ch):
		// String literal prefixes. E'...' takes backslash escapes where the
		// database has escape strings; elsewhere E is an identifier.
		if l.peekChar() == '\'' {
			switch l.ch {
			case 'e', 'E':
				if !l.q.EscapeStrings {
					break
				}
				l.readChar()
				if err := l.readQuoted('\'', true, pos, errUnterminatedString); err != nil {
					return Token{}, err
				}
				return emit(String)
			case 'x', 'X', 'b', 'B', 'n', 'N':
				l.readChar()
				if err := l.readQuoted('\'', l.q.BackslashEscapes, pos, errUnterminatedString); err != nil {
					return Token{}, err
				}
				return emit(String)
			}
		}
		l.readWord()
		return emit(Word)
	}

	switch l.ch {
	case '(':
		l.readChar()
		return emit(LParen)
	case ')':
		l.readChar()
		return emit(RParen)
	case ';':
		l.readChar()
		return emit(Semicolon)
	case ',':
		l.readChar()
		return emit(Comma)
	case '.':
		l.readChar()
		return emit(Dot)
	}

	if isOperatorChar(l.ch) {
		l.readChar()
		return emit(Operator)
	}

	return Token{}, &LexError{Pos: pos, Message: fmt.Sprintf(errUnexpectedChar, l.ch)}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEOF() && isSpace(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) skipLineComment() {
	for !l.atEOF() && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipBlockComment(pos Position) error {
	l.readChar() // '/'
	l.readChar() // '*'
	depth := 1
	for !l.atEOF() {
		switch {
		case l.ch == '*' && l.peekChar() == '/':
			l.readChar()
			l.readChar()
			depth--
			if depth == 0 {
				return nil
			}
		case l.q.NestedComments && l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			depth++
		default:
			l.readChar()
		}
	}
	return &LexError{Pos: pos, Message: errUnterminatedComment}
}

// readQuoted consumes a quoted run starting at the opening quote. A doubled
// quote is an escaped quote. With backslashEscapes, a backslash escapes the
// next character; without, a backslash before a quote is rejected since
// another database would read it as an escape.
func (l *Lexer) readQuoted(quote byte, backslashEscapes bool, pos Position, msg string) error {
	l.readChar() // opening quote
	for !l.atEOF() {
		switch {
		case backslashEscapes && l.ch == '\\':
			l.readChar()
			if l.atEOF() {
				return &LexError{Pos: pos, Message: msg}
			}
			l.readChar()
		case l.ch == '\\' && l.peekChar() == quote:
			return &LexError{Pos: l.currentPos(), Message: errBackslashQuote}
		case l.ch == quote:
			if l.peekChar() == quote {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return nil
		default:
			l.readChar()
		}
	}
	return &LexError{Pos: pos, Message: msg}
}

// readBracketed consumes a SQLite [identifier]. There is no escape; the first
// ']' closes it.
func (l *Lexer) readBracketed(pos Position) error {
	l.readChar() // '['
	for !l.atEOF() {
		if l.ch == ']' {
			l.readChar()
			return nil
		}
		l.readChar()
	}
	return &LexError{Pos: pos, Message: errUnterminatedIdentifier}
}

// readVariable consumes a SQLite host parameter: the prefix, identifier
// characters with "::" separators, and an optional "(...)" suffix that may
// not contain whitespace.
func (l *Lexer) readVariable(pos Position) error {
	l.readChar() // prefix
	for !l.atEOF() {
		switch {
		case isWordPart(l.ch):
			l.readChar()
		case l.ch == ':' && l.peekChar() == ':':
			l.readChar()
			l.readChar()
		case l.ch == '(':
			for !l.atEOF() && !isSpace(l.ch) && l.ch != ')' {
				l.readChar()
			}
			if l.atEOF() || l.ch != ')' {
				return &LexError{Pos: pos, Message: errMalformedParameter}
			}
			l.readChar()
			return nil
		default:
			return nil
		}
	}
	return nil
}

// readDollar handles $1 positional parameters, $name parameters and, where
// the database has them, $tag$...$tag$ dollar-quoted strings.
func (l *Lexer) readDollar(pos Position) (Token, error) {
	start := l.pos
	if isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return Token{Kind: Param, Text: l.input[start:l.pos], Pos: pos}, nil
	}

	// Find the end of a potential opening tag.
	end := start + 1
	for end < len(l.input) && isWordPart(l.input[end]) && l.input[end] != '$' {
		end++
	}
	if l.q.DollarQuotes && end < len(l.input) && l.input[end] == '$' && (end == start+1 || isWordStart(l.input[start+1])) {
		tag := l.input[start : end+1]
		for l.pos <= end {
			l.readChar()
		}
		for !l.atEOF() {
			if l.ch == '$' && hasPrefixAt(l.input, l.pos, tag) {
				for i := 0; i < len(tag); i++ {
					l.readChar()
				}
				return Token{Kind: String, Text: l.input[start:l.pos], Pos: pos}, nil
			}
			l.readChar()
		}
		return Token{}, &LexError{Pos: pos, Message: errUnterminatedDollarQuote}
	}

	l.readChar()
	if isWordStart(l.ch) {
		l.readWord()
		return Token{Kind: Param, Text: l.input[start:l.pos], Pos: pos}, nil
	}
	return Token{Kind: Operator, Text: "$", Pos: pos}, nil
}

func (l *Lexer) readWord() {
	for !l.atEOF() && isWordPart(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) readNumber() {
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return
	}
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if next := l.peekChar(); l.ch == '.' && (isDigit(next) || (!isWordStart(next) && next != '.')) {
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) || ((l.peekChar() == '+' || l.peekChar() == '-') && isDigit(l.peekAt(1)))) {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
}

func hasPrefixAt(s string, i int, prefix string) bool {
	return len(s)-i >= len(prefix) && s[i:i+len(prefix)] == prefix
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// Bytes >= 0x80 are treated as identifier characters so UTF-8 identifiers lex
// as a single word.
func isWordStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isWordPart(ch byte) bool {
	return isWordStart(ch) || isDigit(ch) || ch == '$'
}

func isVariablePrefix(ch byte) bool {
	return ch == '$' || ch == '@' || ch == ':' || ch == '#'
}

func isOperatorChar(ch byte) bool {
	switch ch {
	case '+', '-', '*', '/', '%', '<', '>', '=', '!', '|', '&', '^', '~', '#', ':', '@', '[', ']', '{', '}', '\\':
		return true
	}
	return false
}
