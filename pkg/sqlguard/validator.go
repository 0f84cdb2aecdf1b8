package sqlguard

import (
	"fmt"
	"strings"
)

// Kind classifies why a query was rejected.
type Kind string

const (
	KindNone              Kind = ""
	KindEmpty             Kind = "empty"
	KindParse             Kind = "parse"
	KindMultipleStatement Kind = "multiple_statements"
	KindNotSelect         Kind = "not_select"
	KindForbiddenDDL      Kind = "forbidden_ddl"
	KindForbiddenDML      Kind = "forbidden_dml"
	KindForbiddenCommand  Kind = "forbidden_command"
	KindForbiddenFunction Kind = "forbidden_function"
)

// Result is the outcome of validating one SQL string. SQL echoes the input
// unchanged when Valid is true.
type Result struct {
	Valid bool   `json:"is_valid"`
	SQL   string `json:"sql,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  Kind   `json:"kind,omitempty"`
}

// SafetyViolation reports whether the rejection was about what the query
// does, as opposed to the input being empty or unreadable.
func (r Result) SafetyViolation() bool {
	return !r.Valid && r.Kind != KindEmpty && r.Kind != KindParse
}

var ddlKeywords = map[string]struct{}{
	"CREATE":   {},
	"ALTER":    {},
	"DROP":     {},
	"TRUNCATE": {},
	"RENAME":   {},
}

var dmlKeywords = map[string]struct{}{
	"INSERT":  {},
	"UPDATE":  {},
	"DELETE":  {},
	"REPLACE": {},
	"MERGE":   {},
	"UPSERT":  {},
}

// Keywords that can write, load code, or change privileges from inside an
// otherwise SELECT-shaped statement.
var commandKeywords = map[string]struct{}{
	"INTO":    {},
	"ATTACH":  {},
	"DETACH":  {},
	"PRAGMA":  {},
	"VACUUM":  {},
	"REINDEX": {},
	"GRANT":   {},
	"REVOKE":  {},
	"COPY":    {},
	"CALL":    {},
	"EXEC":    {},
	"EXECUTE": {},
}

var sideEffectFunctions = map[string]struct{}{
	"LOAD_EXTENSION":       {},
	"WRITEFILE":            {},
	"PG_TERMINATE_BACKEND": {},
	"PG_CANCEL_BACKEND":    {},
	"PG_RELOAD_CONF":       {},
	"LO_IMPORT":            {},
	"LO_EXPORT":            {},
	"DBLINK_EXEC":          {},
	"SET_CONFIG":           {},
	"NEXTVAL":              {},
	"SETVAL":               {},
}

// Keywords that are also common scalar functions. Followed by '(' they are
// function calls, e.g. replace(name, 'a', 'b').
var keywordFunctions = map[string]struct{}{
	"REPLACE": {},
}

// Statement keywords that can follow a WITH clause.
var statementKeywords = map[string]struct{}{
	"SELECT":  {},
	"INSERT":  {},
	"UPDATE":  {},
	"DELETE":  {},
	"REPLACE": {},
	"MERGE":   {},
	"UPSERT":  {},
	"VALUES":  {},
}

// Validator proves a SQL string is a single read-only SELECT under each of
// its quoting rules. It is safe for concurrent use.
type Validator struct {
	quotings []Quoting
}

// New returns a validator for the given quoting rules, or for AllQuotings
// when none are given.
func New(quotings ...Quoting) *Validator {
	if len(quotings) == 0 {
		quotings = AllQuotings
	}
	return &Validator{quotings: quotings}
}

// Validate is shorthand for New().Validate(sql).
func Validate(sql string) Result {
	return New().Validate(sql)
}

func (v *Validator) Validate(sql string) Result {
	if strings.TrimSpace(sql) == "" {
		return invalid(KindEmpty, "empty query")
	}
	for _, q := range v.quotings {
		if res := validateAs(sql, q); !res.Valid {
			return res
		}
	}
	return Result{Valid: true, SQL: sql}
}

func validateAs(sql string, q Quoting) Result {
	tokens, err := Tokenize(sql, q)
	if err != nil {
		return invalid(KindParse, "could not parse SQL: "+err.Error())
	}
	tokens = significant(tokens)
	if len(tokens) == 0 {
		return invalid(KindEmpty, "empty query")
	}

	statements, err := SplitStatements(tokens)
	if err != nil {
		return invalid(KindParse, "could not parse SQL: "+err.Error())
	}
	if len(statements) != 1 {
		return invalid(KindMultipleStatement, fmt.Sprintf("Safety Error: expected a single statement, found %d", len(statements)))
	}

	if typ := StatementType(statements[0]); typ != "SELECT" {
		if typ == "" {
			typ = "UNKNOWN"
		}
		return invalid(KindNotSelect, fmt.Sprintf("Safety Error: Forbidden statement type '%s', query must be a SELECT statement", typ))
	}

	// The whole token stream is scanned, not just the top-level clause, so
	// mutations nested in CTEs or subqueries are caught.
	for i, tok := range tokens {
		var name string
		switch tok.Kind {
		case Word:
			name = tok.Upper()
		case Param:
			name = strings.ToUpper(strings.TrimLeft(tok.Text, ":@$#"))
		default:
			continue
		}

		if tok.Kind == Word && i+1 < len(tokens) && tokens[i+1].Kind == LParen {
			if _, ok := sideEffectFunctions[name]; ok {
				return invalid(KindForbiddenFunction, fmt.Sprintf("Safety Error: Forbidden function call found '%s'", tok.Text))
			}
			if _, ok := keywordFunctions[name]; ok {
				continue
			}
		}

		if _, ok := ddlKeywords[name]; ok {
			return invalid(KindForbiddenDDL, fmt.Sprintf("Safety Error: Forbidden DDL command found '%s'", tok.Text))
		}
		if _, ok := dmlKeywords[name]; ok {
			return invalid(KindForbiddenDML, fmt.Sprintf("Safety Error: Forbidden DML command found '%s'", tok.Text))
		}
		if _, ok := commandKeywords[name]; ok {
			return invalid(KindForbiddenCommand, fmt.Sprintf("Safety Error: Forbidden command found '%s'", tok.Text))
		}
	}

	return Result{Valid: true, SQL: sql}
}

func invalid(kind Kind, msg string) Result {
	return Result{Valid: false, Error: msg, Kind: kind}
}

// significant drops comment tokens.
func significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind == Comment {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// SplitStatements splits a comment-free token stream on top-level semicolons,
// dropping empty statements. Parentheses must balance.
func SplitStatements(tokens []Token) ([][]Token, error) {
	var (
		statements [][]Token
		current    []Token
		depth      int
		lastOpen   []Position
	)
	for _, tok := range tokens {
		switch tok.Kind {
		case LParen:
			depth++
			lastOpen = append(lastOpen, tok.Pos)
		case RParen:
			if depth == 0 {
				return nil, &ParseError{Pos: tok.Pos, Message: errUnexpectedRParen}
			}
			depth--
			lastOpen = lastOpen[:len(lastOpen)-1]
		case Semicolon:
			if depth > 0 {
				return nil, &ParseError{Pos: tok.Pos, Message: errNestedSemicolon}
			}
			if len(current) > 0 {
				statements = append(statements, current)
			}
			current = nil
			continue
		}
		current = append(current, tok)
	}
	if depth > 0 {
		return nil, &ParseError{Pos: lastOpen[len(lastOpen)-1], Message: errUnclosedLParen}
	}
	if len(current) > 0 {
		statements = append(statements, current)
	}
	return statements, nil
}

// StatementType returns the upper-cased primary keyword of a statement.
// Leading parentheses are skipped. For WITH, it is the first statement
// keyword at the top level after the CTE list. Returns "" when the statement
// does not start with a keyword.
func StatementType(stmt []Token) string {
	i := 0
	for i < len(stmt) && stmt[i].Kind == LParen {
		i++
	}
	if i >= len(stmt) || stmt[i].Kind != Word {
		return ""
	}
	kw := stmt[i].Upper()
	if kw != "WITH" {
		return kw
	}

	depth := 0
	for _, tok := range stmt[i+1:] {
		switch tok.Kind {
		case LParen:
			depth++
		case RParen:
			depth--
		case Word:
			if depth != 0 {
				continue
			}
			if _, ok := statementKeywords[tok.Upper()]; ok {
				return tok.Upper()
			}
		}
	}
	return kw
}
