package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// tokenExpectation represents an expected token for testing. Position is
// omitted for most cases; dedicated tests cover position tracking.
type tokenExpectation struct {
	Type TokenType
	Text string
}

// assertTokens compares the lexed stream with expected types and text.
func assertTokens(t *testing.T, name string, input string, expected []tokenExpectation) {
	t.Helper()

	lex := New([]byte(input))
	tokens, diags := lex.Tokens()
	if diags.HasErrors() {
		t.Fatalf("%s: unexpected lex errors: %v", name, diags)
	}

	actual := make([]tokenExpectation, 0, len(tokens))
	for _, tok := range tokens {
		actual = append(actual, tokenExpectation{Type: tok.Type, Text: tok.String()})
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("%s: token mismatch (-expected +actual):\n%s", name, diff)
	}
}

func TestEmptyInput(t *testing.T) {
	assertTokens(t, "empty", "", []tokenExpectation{
		{EOF, ""},
	})
}

func TestValDeclaration(t *testing.T) {
	assertTokens(t, "val", `val greeting = "hello"`, []tokenExpectation{
		{VAL, "val"},
		{IDENT, "greeting"},
		{EQUALS, ""},
		{STRING, `"hello"`},
		{NEWLINE, ""},
		{EOF, ""},
	})
}

func TestNumericLiterals(t *testing.T) {
	assertTokens(t, "numbers", "val x = 42\nval y = 3.14\nval z = .5", []tokenExpectation{
		{VAL, "val"}, {IDENT, "x"}, {EQUALS, ""}, {INT, "42"}, {NEWLINE, ""},
		{VAL, "val"}, {IDENT, "y"}, {EQUALS, ""}, {FLOAT, "3.14"}, {NEWLINE, ""},
		{VAL, "val"}, {IDENT, "z"}, {EQUALS, ""}, {FLOAT, ".5"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestIndentDedent(t *testing.T) {
	input := "fn greet\n    case n = n\nval x = 1\n"
	assertTokens(t, "layout", input, []tokenExpectation{
		{FN, "fn"}, {IDENT, "greet"}, {NEWLINE, ""},
		{INDENT, ""},
		{CASE, "case"}, {IDENT, "n"}, {EQUALS, ""}, {IDENT, "n"}, {NEWLINE, ""},
		{DEDENT, ""},
		{VAL, "val"}, {IDENT, "x"}, {EQUALS, ""}, {INT, "1"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestNestedIndentation(t *testing.T) {
	input := "if a\n    if b\n        c\nd\n"
	assertTokens(t, "nested", input, []tokenExpectation{
		{IF, "if"}, {IDENT, "a"}, {NEWLINE, ""},
		{INDENT, ""},
		{IF, "if"}, {IDENT, "b"}, {NEWLINE, ""},
		{INDENT, ""},
		{IDENT, "c"}, {NEWLINE, ""},
		{DEDENT, ""}, {DEDENT, ""},
		{IDENT, "d"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestRepeatedBlocks(t *testing.T) {
	input := "if a\n    b\nif c\n    d\ne\n"
	assertTokens(t, "repeated blocks", input, []tokenExpectation{
		{IF, "if"}, {IDENT, "a"}, {NEWLINE, ""},
		{INDENT, ""},
		{IDENT, "b"}, {NEWLINE, ""},
		{DEDENT, ""},
		{IF, "if"}, {IDENT, "c"}, {NEWLINE, ""},
		{INDENT, ""},
		{IDENT, "d"}, {NEWLINE, ""},
		{DEDENT, ""},
		{IDENT, "e"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestDedentsFlushedAtEOF(t *testing.T) {
	input := "while x\n    y"
	assertTokens(t, "eof dedent", input, []tokenExpectation{
		{WHILE, "while"}, {IDENT, "x"}, {NEWLINE, ""},
		{INDENT, ""},
		{IDENT, "y"}, {NEWLINE, ""},
		{DEDENT, ""},
		{EOF, ""},
	})
}

// Newlines inside brackets must not produce layout tokens: the bracket-depth
// counter suppresses NEWLINE/INDENT/DEDENT inside [...], {...} and (...).
func TestBracketsSuppressLayout(t *testing.T) {
	input := "val xs = [1 2\n    3\n  4]\n"
	assertTokens(t, "bracket layout", input, []tokenExpectation{
		{VAL, "val"}, {IDENT, "xs"}, {EQUALS, ""},
		{LSQUARE, ""}, {INT, "1"}, {INT, "2"}, {INT, "3"}, {INT, "4"}, {RSQUARE, ""},
		{NEWLINE, ""},
		{EOF, ""},
	})
}

func TestBlankLinesDoNotAffectLayout(t *testing.T) {
	input := "fn f\n    case 0 = 1\n\n\n    case n = n\n"
	assertTokens(t, "blank lines", input, []tokenExpectation{
		{FN, "fn"}, {IDENT, "f"}, {NEWLINE, ""},
		{INDENT, ""},
		{CASE, "case"}, {INT, "0"}, {EQUALS, ""}, {INT, "1"}, {NEWLINE, ""},
		{CASE, "case"}, {IDENT, "n"}, {EQUALS, ""}, {IDENT, "n"}, {NEWLINE, ""},
		{DEDENT, ""},
		{EOF, ""},
	})
}

func TestRangeTokens(t *testing.T) {
	assertTokens(t, "range", "[0..5]\n[0 2..10]", []tokenExpectation{
		{LSQUARE, ""}, {INT, "0"}, {RANGE, ""}, {INT, "5"}, {RSQUARE, ""}, {NEWLINE, ""},
		{LSQUARE, ""}, {INT, "0"}, {INT, "2"}, {RANGE, ""}, {INT, "10"}, {RSQUARE, ""}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestConsAndWildcard(t *testing.T) {
	assertTokens(t, "patterns", "case [h :: t] = h\ncase _ = 0", []tokenExpectation{
		{CASE, "case"}, {LSQUARE, ""}, {IDENT, "h"}, {CONS, ""}, {IDENT, "t"}, {RSQUARE, ""},
		{EQUALS, ""}, {IDENT, "h"}, {NEWLINE, ""},
		{CASE, "case"}, {UNDERSCORE, ""}, {EQUALS, ""}, {INT, "0"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

// Literal classification priority: quoted string > numeric > path/option >
// bare identifier. Paths and options are first-class literal forms.
func TestPathAndOptionLiterals(t *testing.T) {
	assertTokens(t, "paths", "ls -la /tmp/logs ./build ~/notes dir/file", []tokenExpectation{
		{IDENT, "ls"},
		{OPTION, "-la"},
		{PATH, "/tmp/logs"},
		{PATH, "./build"},
		{PATH, "~/notes"},
		{PATH, "dir/file"},
		{NEWLINE, ""},
		{EOF, ""},
	})
}

func TestLongOption(t *testing.T) {
	assertTokens(t, "long option", "grep --ignore-case foo", []tokenExpectation{
		{IDENT, "grep"},
		{OPTION, "--ignore-case"},
		{IDENT, "foo"},
		{NEWLINE, ""},
		{EOF, ""},
	})
}

func TestMinusRemainsMinus(t *testing.T) {
	assertTokens(t, "minus", "n - 1", []tokenExpectation{
		{IDENT, "n"}, {MINUS, ""}, {INT, "1"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestDivisionVersusPath(t *testing.T) {
	assertTokens(t, "slash", "a / b", []tokenExpectation{
		{IDENT, "a"}, {SLASH, ""}, {IDENT, "b"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestOperators(t *testing.T) {
	assertTokens(t, "operators", "a == b != c <= d >= e && f || !g", []tokenExpectation{
		{IDENT, "a"}, {EQ_EQ, ""}, {IDENT, "b"}, {NOT_EQ, ""}, {IDENT, "c"},
		{LT_EQ, ""}, {IDENT, "d"}, {GT_EQ, ""}, {IDENT, "e"},
		{AND_AND, ""}, {IDENT, "f"}, {OR_OR, ""}, {NOT, ""}, {IDENT, "g"},
		{NEWLINE, ""},
		{EOF, ""},
	})
}

func TestPipeAndRedirect(t *testing.T) {
	assertTokens(t, "pipes", "cat x | grep y > out.log\necho z >> out.log", []tokenExpectation{
		{IDENT, "cat"}, {IDENT, "x"}, {PIPE, ""}, {IDENT, "grep"}, {IDENT, "y"},
		{GT, ""}, {PATH, "out.log"}, {NEWLINE, ""},
		{IDENT, "echo"}, {IDENT, "z"}, {APPEND, ""}, {PATH, "out.log"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestQuestionSuffix(t *testing.T) {
	assertTokens(t, "question", "exists? /tmp", []tokenExpectation{
		{IDENT, "exists"}, {QUESTION, ""}, {PATH, "/tmp"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestArgSpecTokens(t *testing.T) {
	assertTokens(t, "argspec", "@1 src: path\n@force: bool", []tokenExpectation{
		{AT, ""}, {INT, "1"}, {IDENT, "src"}, {COLON, ""}, {IDENT, "path"}, {NEWLINE, ""},
		{AT, ""}, {IDENT, "force"}, {COLON, ""}, {IDENT, "bool"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestCommentsAreDropped(t *testing.T) {
	assertTokens(t, "comments", "val x = 1 # trailing\n# whole line\nval y = 2", []tokenExpectation{
		{VAL, "val"}, {IDENT, "x"}, {EQUALS, ""}, {INT, "1"}, {NEWLINE, ""},
		{VAL, "val"}, {IDENT, "y"}, {EQUALS, ""}, {INT, "2"}, {NEWLINE, ""},
		{EOF, ""},
	})
}

func TestCommentsKeptWithOption(t *testing.T) {
	lex := New([]byte("val x = 1 # note"), WithComments())
	tokens, diags := lex.Tokens()
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags)
	}

	found := false
	for _, tok := range tokens {
		if tok.Type == COMMENT {
			found = true
			if tok.String() != "# note" {
				t.Errorf("comment text = %q, want %q", tok.String(), "# note")
			}
		}
	}
	if !found {
		t.Error("expected COMMENT token with WithComments option")
	}
}

func TestStringInterpolation(t *testing.T) {
	lex := New([]byte(`"hi $name and $(1 + 2)!"`))
	tokens, diags := lex.Tokens()
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags)
	}

	if tokens[0].Type != STRING {
		t.Fatalf("expected STRING token, got %s", tokens[0].Type)
	}
	segs := tokens[0].Segments
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Lit != "hi " {
		t.Errorf("segment 0 = %q, want %q", segs[0].Lit, "hi ")
	}
	if len(segs[1].Expr) != 1 || segs[1].Expr[0].String() != "name" {
		t.Errorf("segment 1 should be the identifier 'name', got %+v", segs[1])
	}
	if segs[2].Lit != " and " {
		t.Errorf("segment 2 = %q, want %q", segs[2].Lit, " and ")
	}
	// $(1 + 2) re-lexes to three expression tokens
	if len(segs[3].Expr) != 3 {
		t.Fatalf("segment 3 should have 3 tokens, got %+v", segs[3].Expr)
	}
	if segs[3].Expr[0].Type != INT || segs[3].Expr[1].Type != PLUS || segs[3].Expr[2].Type != INT {
		t.Errorf("segment 3 tokens = %v %v %v, want INT PLUS INT",
			segs[3].Expr[0].Type, segs[3].Expr[1].Type, segs[3].Expr[2].Type)
	}
	if segs[4].Lit != "!" {
		t.Errorf("segment 4 = %q, want %q", segs[4].Lit, "!")
	}
}

func TestEscapeSequences(t *testing.T) {
	lex := New([]byte(`"a\n\t\\\"\$b"`))
	tokens, diags := lex.Tokens()
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags)
	}
	want := "a\n\t\\\"$b"
	if got := tokens[0].Segments[0].Lit; got != want {
		t.Errorf("unescaped value = %q, want %q", got, want)
	}
}

func TestMultiLineString(t *testing.T) {
	lex := New([]byte("val banner = \"\"\"line one\nline two\"\"\"\n"))
	tokens, diags := lex.Tokens()
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags)
	}

	var str *Token
	for i := range tokens {
		if tokens[i].Type == STRING {
			str = &tokens[i]
		}
	}
	if str == nil {
		t.Fatal("expected a STRING token")
	}
	if got := str.Segments[0].Lit; got != "line one\nline two" {
		t.Errorf("multi-line value = %q", got)
	}
}

func TestUnterminatedString(t *testing.T) {
	lex := New([]byte(`val x = "oops`))
	_, diags := lex.Tokens()
	if !diags.HasErrors() {
		t.Fatal("expected a LexError for unterminated string")
	}
}

func TestInvalidEscape(t *testing.T) {
	lex := New([]byte(`"bad \q escape"`))
	_, diags := lex.Tokens()
	if !diags.HasErrors() {
		t.Fatal("expected a LexError for invalid escape")
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	lex := New([]byte("### never closed\nval x = 1"))
	_, diags := lex.Tokens()
	if !diags.HasErrors() {
		t.Fatal("expected a LexError for unterminated block comment")
	}
}

func TestInconsistentDedent(t *testing.T) {
	lex := New([]byte("if a\n        b\n    c\n"))
	_, diags := lex.Tokens()
	if !diags.HasErrors() {
		t.Fatal("expected a LexError for unaligned dedent")
	}
}

func TestPositionTracking(t *testing.T) {
	lex := New([]byte("val x = 1\nval y = 2"))
	tokens, _ := lex.Tokens()

	// Second 'val' starts line 2 column 1
	var second *Token
	count := 0
	for i := range tokens {
		if tokens[i].Type == VAL {
			count++
			if count == 2 {
				second = &tokens[i]
			}
		}
	}
	if second == nil {
		t.Fatal("expected two val tokens")
	}
	if second.Position.Line != 2 || second.Position.Column != 1 {
		t.Errorf("second val at %d:%d, want 2:1", second.Position.Line, second.Position.Column)
	}
}

func TestStreamingMatchesBatch(t *testing.T) {
	input := "fn f\n    case 0 = 1\nf 5\n"

	batchLex := New([]byte(input))
	batch, _ := batchLex.Tokens()

	streamLex := New([]byte(input))
	var stream []Token
	for {
		tok := streamLex.Next()
		stream = append(stream, tok)
		if tok.Type == EOF {
			break
		}
	}

	if len(batch) != len(stream) {
		t.Fatalf("batch has %d tokens, stream has %d", len(batch), len(stream))
	}
	for i := range batch {
		if batch[i].Type != stream[i].Type {
			t.Errorf("token %d: batch %s, stream %s", i, batch[i].Type, stream[i].Type)
		}
	}
}
