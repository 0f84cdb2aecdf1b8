package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Kind)
	}
	return out
}

func TestTextToSQL_SQLGuard_Lexer_Tokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		kinds []TokenKind
		texts []string
	}{
		{
			name:  "simple select",
			input: "SELECT * FROM users;",
			kinds: []TokenKind{Word, Operator, Word, Word, Semicolon},
			texts: []string{"SELECT", "*", "FROM", "users", ";"},
		},
		{
			name:  "string with doubled quote",
			input: "SELECT 'it''s'",
			kinds: []TokenKind{Word, String},
			texts: []string{"SELECT", "'it''s'"},
		},
		{
			name:  "escape string",
			input: `SELECT E'it\'s'`,
			kinds: []TokenKind{Word, String},
			texts: []string{"SELECT", `E'it\'s'`},
		},
		{
			name:  "quoted identifiers",
			input: "SELECT \"delete\", `drop` FROM t",
			kinds: []TokenKind{Word, QuotedIdent, Comma, QuotedIdent, Word, Word},
			texts: []string{"SELECT", `"delete"`, ",", "`drop`", "FROM", "t"},
		},
		{
			name:  "comments",
			input: "SELECT 1 -- trailing\n/* block */",
			kinds: []TokenKind{Word, Number, Comment, Comment},
			texts: []string{"SELECT", "1", "-- trailing", "/* block */"},
		},
		{
			name:  "numbers",
			input: "1.5e3 .5 0xFF 42",
			kinds: []TokenKind{Number, Number, Number, Number},
			texts: []string{"1.5e3", ".5", "0xFF", "42"},
		},
		{
			name:  "parameters",
			input: "? $1 :name @id $var",
			kinds: []TokenKind{Param, Param, Param, Param, Param},
			texts: []string{"?", "$1", ":name", "@id", "$var"},
		},
		{
			name:  "dollar quoted string",
			input: "SELECT $tag$ a $ b $tag$",
			kinds: []TokenKind{Word, String},
			texts: []string{"SELECT", "$tag$ a $ b $tag$"},
		},
		{
			name:  "cast operator",
			input: "x::text",
			kinds: []TokenKind{Word, Operator, Word},
			texts: []string{"x", "::", "text"},
		},
		{
			name:  "qualified name and call",
			input: "count(u.id)",
			kinds: []TokenKind{Word, LParen, Word, Dot, Word, RParen},
			texts: []string{"count", "(", "u", ".", "id", ")"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokens, err := Tokenize(tt.input, QuotingPostgres)
			require.NoError(t, err)
			require.Equal(t, tt.kinds, kinds(tokens))
			texts := make([]string, 0, len(tokens))
			for _, tok := range tokens {
				texts = append(texts, tok.Text)
			}
			require.Equal(t, tt.texts, texts)
		})
	}
}

func TestTextToSQL_SQLGuard_Lexer_Quoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		quoting Quoting
		input   string
		kinds   []TokenKind
		texts   []string
	}{
		{
			name:    "sqlite bracket identifier",
			quoting: QuotingSQLite,
			input:   "SELECT [a'] ; x",
			kinds:   []TokenKind{Word, QuotedIdent, Semicolon, Word},
			texts:   []string{"SELECT", "[a']", ";", "x"},
		},
		{
			name:    "postgres subscript",
			quoting: QuotingPostgres,
			input:   "a[1]",
			kinds:   []TokenKind{Word, Operator, Number, Operator},
			texts:   []string{"a", "[", "1", "]"},
		},
		{
			name:    "sqlite dollar variable",
			quoting: QuotingSQLite,
			input:   "SELECT $a$; x",
			kinds:   []TokenKind{Word, Param, Semicolon, Word},
			texts:   []string{"SELECT", "$a$", ";", "x"},
		},
		{
			name:    "sqlite variable suffix",
			quoting: QuotingSQLite,
			input:   "SELECT $a::b(x;y) #c",
			kinds:   []TokenKind{Word, Param, Param},
			texts:   []string{"SELECT", "$a::b(x;y)", "#c"},
		},
		{
			name:    "sqlite e is an identifier",
			quoting: QuotingSQLite,
			input:   "SELECT e'x'",
			kinds:   []TokenKind{Word, Word, String},
			texts:   []string{"SELECT", "e", "'x'"},
		},
		{
			name:    "clickhouse backslash escape",
			quoting: QuotingClickHouse,
			input:   `SELECT 'x\'' ; y`,
			kinds:   []TokenKind{Word, String, Semicolon, Word},
			texts:   []string{"SELECT", `'x\''`, ";", "y"},
		},
		{
			name:    "clickhouse hash comment",
			quoting: QuotingClickHouse,
			input:   "SELECT 1 # ' note\n, 2",
			kinds:   []TokenKind{Word, Number, Comment, Comma, Number},
			texts:   []string{"SELECT", "1", "# ' note", ",", "2"},
		},
		{
			name:    "nested block comment",
			quoting: QuotingPostgres,
			input:   "SELECT /* a /* b */ ' */ 1",
			kinds:   []TokenKind{Word, Comment, Number},
			texts:   []string{"SELECT", "/* a /* b */ ' */", "1"},
		},
		{
			name:    "flat block comment",
			quoting: QuotingSQLite,
			input:   "SELECT /* a /* b */ 1",
			kinds:   []TokenKind{Word, Comment, Number},
			texts:   []string{"SELECT", "/* a /* b */", "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokens, err := Tokenize(tt.input, tt.quoting)
			require.NoError(t, err)
			require.Equal(t, tt.kinds, kinds(tokens))
			texts := make([]string, 0, len(tokens))
			for _, tok := range tokens {
				texts = append(texts, tok.Text)
			}
			require.Equal(t, tt.texts, texts)
		})
	}
}

func TestTextToSQL_SQLGuard_QuotingFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Quoting{QuotingSQLite}, QuotingFor("sqlite"))
	require.Equal(t, []Quoting{QuotingPostgres}, QuotingFor("pgx"))
	require.Equal(t, []Quoting{QuotingDuckDB}, QuotingFor("DuckDB"))
	require.Equal(t, []Quoting{QuotingClickHouse}, QuotingFor("clickhouse"))
	require.Equal(t, AllQuotings, QuotingFor("oracle"))
}

func TestTextToSQL_SQLGuard_Lexer_Positions(t *testing.T) {
	t.Parallel()

	tokens, err := Tokenize("SELECT a\nFROM t", QuotingPostgres)
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	require.Equal(t, Position{Line: 1, Column: 1, Offset: 0}, tokens[0].Pos)
	require.Equal(t, Position{Line: 1, Column: 8, Offset: 7}, tokens[1].Pos)
	require.Equal(t, Position{Line: 2, Column: 1, Offset: 9}, tokens[2].Pos)
}

func TestTextToSQL_SQLGuard_Lexer_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"unterminated string", "SELECT 'abc", errUnterminatedString},
		{"unterminated identifier", `SELECT "abc`, errUnterminatedIdentifier},
		{"unterminated block comment", "SELECT 1 /* open", errUnterminatedComment},
		{"unterminated dollar quote", "SELECT $$ open", errUnterminatedDollarQuote},
		{"executable comment", "/*! DELETE FROM users */ SELECT 1", errExecutableComment},
		{"nul byte", "SELECT \x00", `unexpected character '\x00'`},
		{"backslash before quote", `SELECT 'x\''`, errBackslashQuote},
		{"unterminated nested comment", "SELECT 1 /* /* */", errUnterminatedComment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Tokenize(tt.input, QuotingPostgres)
			require.Error(t, err)
			var lexErr *LexError
			require.ErrorAs(t, err, &lexErr)
			require.Equal(t, tt.message, lexErr.Message)
		})
	}

	t.Run("error position", func(t *testing.T) {
		t.Parallel()

		_, err := Tokenize("SELECT 'abc", QuotingPostgres)
		require.EqualError(t, err, "lexer error at line 1, column 8: unterminated string literal")
	})
}

func TestTextToSQL_SQLGuard_SplitStatements(t *testing.T) {
	t.Parallel()

	t.Run("drops empty statements", func(t *testing.T) {
		t.Parallel()

		tokens, err := Tokenize("SELECT 1;; ;", QuotingPostgres)
		require.NoError(t, err)
		stmts, err := SplitStatements(tokens)
		require.NoError(t, err)
		require.Len(t, stmts, 1)
	})

	t.Run("splits top-level semicolons", func(t *testing.T) {
		t.Parallel()

		tokens, err := Tokenize("SELECT 1; SELECT 2", QuotingPostgres)
		require.NoError(t, err)
		stmts, err := SplitStatements(tokens)
		require.NoError(t, err)
		require.Len(t, stmts, 2)
	})

	t.Run("unbalanced parentheses", func(t *testing.T) {
		t.Parallel()

		for _, input := range []string{"SELECT (1", "SELECT 1)", "SELECT (1; 2)"} {
			tokens, err := Tokenize(input, QuotingPostgres)
			require.NoError(t, err)
			_, err = SplitStatements(tokens)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr, input)
		}
	})
}
