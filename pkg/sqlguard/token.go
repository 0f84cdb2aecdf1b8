package sqlguard

import (
	"fmt"
	"strings"
)

// TokenKind classifies a lexed token.
type TokenKind int

const (
	EOF TokenKind = iota
	Word
	QuotedIdent
	String
	Number
	Param
	LParen
	RParen
	Semicolon
	Comma
	Dot
	Operator
	Comment
)

var tokenKindNames = map[TokenKind]string{
	EOF:         "EOF",
	Word:        "WORD",
	QuotedIdent: "QUOTED_IDENT",
	String:      "STRING",
	Number:      "NUMBER",
	Param:       "PARAM",
	LParen:      "(",
	RParen:      ")",
	Semicolon:   ";",
	Comma:       ",",
	Dot:         ".",
	Operator:    "OPERATOR",
	Comment:     "COMMENT",
}

func (k TokenKind) String() string {
	if s, ok := tokenKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Position is a location in the input. Line and Column are 1-based, Offset is
// the byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token is a lexical token. Text is the raw input slice, quotes included.
type Token struct {
	Kind TokenKind
	Text string
	Pos  Position
}

// Upper returns the upper-cased text of a Word token.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// LexError reports input the lexer could not tokenize.
type LexError struct {
	Pos     Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexer error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// ParseError reports a structural problem in an otherwise tokenizable input.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

const (
	errUnterminatedString      = "unterminated string literal"
	errUnterminatedIdentifier  = "unterminated quoted identifier"
	errUnterminatedComment     = "unterminated block comment"
	errUnterminatedDollarQuote = "unterminated dollar-quoted string"
	errExecutableComment       = "executable comments are not allowed"
	errUnexpectedChar          = "unexpected character %q"
	errUnexpectedRParen        = "unexpected ')'"
	errUnclosedLParen          = "unclosed '('"
	errNestedSemicolon         = "unexpected ';' inside parentheses"
	errBackslashQuote          = "backslash before a quote is ambiguous"
	errMalformedParameter      = "malformed host parameter"
)
