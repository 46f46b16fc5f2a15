package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hash-lang/hash/core/ast"
)

// parseProgram parses source and fails the test on any error diagnostic.
func parseProgram(t *testing.T, source string) *ast.Program {
	t.Helper()
	prog, diags := Parse([]byte(source))
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors:\n%s", diags.Error())
	}
	return prog
}

// stmtStrings renders each top-level statement for comparison.
func stmtStrings(prog *ast.Program) []string {
	out := make([]string, len(prog.Statements))
	for i, s := range prog.Statements {
		out[i] = s.String()
	}
	return out
}

func TestValDeclaration(t *testing.T) {
	prog := parseProgram(t, "val x = 5\n")
	want := []string{"val x = 5"}
	if diff := cmp.Diff(want, stmtStrings(prog)); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"mul binds tighter", "val y = 1 + 2 * 3\n", "val y = (1 + (2 * 3))"},
		{"parens override", "val y = (1 + 2) * 3\n", "val y = ((1 + 2) * 3)"},
		{"left associative", "val y = 10 - 3 - 2\n", "val y = ((10 - 3) - 2)"},
		{"comparison below arithmetic", "val ok = 1 + 1 == 2\n", "val ok = ((1 + 1) == 2)"},
		{"logic below comparison", "val ok = 1 < 2 && 3 > 2\n", "val ok = ((1 < 2) && (3 > 2))"},
		{"or below and", "val ok = true || false && true\n", "val ok = (true || (false && true))"},
		{"modulo", "val r = 7 % 2\n", "val r = (7 % 2)"},
		{"negation", "val no = !true\n", "val no = !true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := parseProgram(t, tt.source)
			if diff := cmp.Diff([]string{tt.want}, stmtStrings(prog)); diff != "" {
				t.Errorf("statements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFunctionClauses(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"fn factorial",
		"    case 0 = 1",
		"    case n = n * factorial (n - 1)",
		"",
	}, "\n"))

	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	fn, ok := prog.Statements[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("expected FunctionDecl, got %T", prog.Statements[0])
	}
	if fn.Name != "factorial" {
		t.Errorf("name = %q, want factorial", fn.Name)
	}
	if len(fn.Clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(fn.Clauses))
	}

	if _, ok := fn.Clauses[0].Patterns[0].(*ast.LiteralPat); !ok {
		t.Errorf("clause 0 pattern = %T, want LiteralPat", fn.Clauses[0].Patterns[0])
	}
	if got := fn.Clauses[0].Expr.String(); got != "1" {
		t.Errorf("clause 0 expr = %q, want 1", got)
	}

	bind, ok := fn.Clauses[1].Patterns[0].(*ast.BindingPat)
	if !ok || bind.Name != "n" {
		t.Fatalf("clause 1 pattern = %v, want binding n", fn.Clauses[1].Patterns[0])
	}
	if got := fn.Clauses[1].Expr.String(); got != "(n * factorial((n - 1)))" {
		t.Errorf("clause 1 expr = %q", got)
	}
}

func TestFunctionHeaderParameters(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"fn greet name",
		"    print \"hi $name\"",
		"",
	}, "\n"))

	fn := prog.Statements[0].(*ast.FunctionDecl)
	if len(fn.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(fn.Clauses))
	}
	clause := fn.Clauses[0]
	if len(clause.Patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(clause.Patterns))
	}
	if bind, ok := clause.Patterns[0].(*ast.BindingPat); !ok || bind.Name != "name" {
		t.Errorf("pattern = %v, want binding name", clause.Patterns[0])
	}
	if len(clause.Body) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(clause.Body))
	}
}

func TestExternalCommandVersusFunction(t *testing.T) {
	prog := parseProgram(t, "ls -la /tmp\nprint \"hi\"\n")

	ext, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.ExternalCommand)
	if !ok {
		t.Fatalf("statement 0 = %T, want ExternalCommand", prog.Statements[0].(*ast.ExprStmt).Expr)
	}
	if ext.Name != "ls" || len(ext.Args) != 2 {
		t.Errorf("external = %s with %d args, want ls with 2", ext.Name, len(ext.Args))
	}

	call, ok := prog.Statements[1].(*ast.ExprStmt).Expr.(*ast.Call)
	if !ok {
		t.Fatalf("statement 1 = %T, want Call", prog.Statements[1].(*ast.ExprStmt).Expr)
	}
	if call.Name != "print" {
		t.Errorf("call name = %q, want print", call.Name)
	}
}

func TestUserFunctionShadowsExternal(t *testing.T) {
	// A declared function wins over an external program of the same name.
	prog := parseProgram(t, strings.Join([]string{
		"fn date",
		"    print \"not the real date\"",
		"date",
		"",
	}, "\n"))

	if _, ok := prog.Statements[1].(*ast.ExprStmt).Expr.(*ast.Call); !ok {
		t.Errorf("expected declared date to parse as a call, got %T",
			prog.Statements[1].(*ast.ExprStmt).Expr)
	}
}

func TestPipeline(t *testing.T) {
	prog := parseProgram(t, "cat notes.txt | lines | len\n")

	pipe, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.Pipe)
	if !ok {
		t.Fatalf("expected Pipe, got %T", prog.Statements[0].(*ast.ExprStmt).Expr)
	}
	// Left associative: ((cat | lines) | len)
	inner, ok := pipe.Left.(*ast.Pipe)
	if !ok {
		t.Fatalf("expected nested pipe on the left, got %T", pipe.Left)
	}
	if _, ok := inner.Left.(*ast.ExternalCommand); !ok {
		t.Errorf("pipeline head = %T, want ExternalCommand", inner.Left)
	}
	if got := pipe.String(); got != "cat notes.txt | lines() | len()" {
		t.Errorf("pipeline = %q", got)
	}
}

func TestRedirects(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		stream     string
		appendMode bool
	}{
		{"default stream", "make > build.log\n", "out", false},
		{"stderr", "make err> build.log\n", "err", false},
		{"append all", "make all>> everything.log\n", "all", true},
		{"append default", "make >> build.log\n", "out", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := parseProgram(t, tt.source)
			redir, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.Redirect)
			if !ok {
				t.Fatalf("expected Redirect, got %T", prog.Statements[0].(*ast.ExprStmt).Expr)
			}
			if redir.Stream != tt.stream {
				t.Errorf("stream = %q, want %q", redir.Stream, tt.stream)
			}
			if redir.Append != tt.appendMode {
				t.Errorf("append = %v, want %v", redir.Append, tt.appendMode)
			}
		})
	}
}

func TestRedirectAfterPipeline(t *testing.T) {
	prog := parseProgram(t, "cat in.txt | sort > sorted.txt\n")
	redir, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.Redirect)
	if !ok {
		t.Fatalf("expected Redirect at top, got %T", prog.Statements[0].(*ast.ExprStmt).Expr)
	}
	if _, ok := redir.Cmd.(*ast.Pipe); !ok {
		t.Errorf("redirect target = %T, want the whole pipe", redir.Cmd)
	}
}

func TestGreaterThanInConditions(t *testing.T) {
	// '>' is a comparison in expression position, a redirect in command
	// position.
	prog := parseProgram(t, strings.Join([]string{
		"val n = 3",
		"if n > 0",
		"    print \"positive\"",
		"",
	}, "\n"))

	ifStmt := prog.Statements[1].(*ast.If)
	if got := ifStmt.Condition.String(); got != "(n > 0)" {
		t.Errorf("condition = %q, want (n > 0)", got)
	}
}

func TestIfElseChain(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val n = 5",
		"if n > 10",
		"    print \"big\"",
		"else if n > 3",
		"    print \"medium\"",
		"else",
		"    print \"small\"",
		"",
	}, "\n"))

	ifStmt := prog.Statements[1].(*ast.If)
	if len(ifStmt.Then) != 1 {
		t.Errorf("then arm has %d statements, want 1", len(ifStmt.Then))
	}
	nested, ok := ifStmt.Else[0].(*ast.If)
	if !ok {
		t.Fatalf("else arm = %T, want nested If", ifStmt.Else[0])
	}
	if len(nested.Else) != 1 {
		t.Errorf("final else has %d statements, want 1", len(nested.Else))
	}
}

func TestWhileAndFor(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"var n = 3",
		"while n > 0",
		"    n = n - 1",
		"for x in [1 2 3]",
		"    print \"$x\"",
		"",
	}, "\n"))

	while := prog.Statements[1].(*ast.While)
	if got := while.Condition.String(); got != "(n > 0)" {
		t.Errorf("while condition = %q", got)
	}
	if _, ok := while.Body[0].(*ast.Assignment); !ok {
		t.Errorf("while body = %T, want Assignment", while.Body[0])
	}

	forStmt := prog.Statements[2].(*ast.For)
	if forStmt.Var != "x" {
		t.Errorf("loop variable = %q, want x", forStmt.Var)
	}
	if _, ok := forStmt.Source.(*ast.ListLit); !ok {
		t.Errorf("loop source = %T, want ListLit", forStmt.Source)
	}
}

func TestSwitchClauses(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val xs = [1 2 3]",
		"switch xs",
		"    case [] = 0",
		"    case [h :: t] = h",
		"    case _ = -1",
		"",
	}, "\n"))

	sw := prog.Statements[1].(*ast.Switch)
	if got := sw.Subject.String(); got != "xs" {
		t.Errorf("subject = %q, want xs", got)
	}
	if len(sw.Clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(sw.Clauses))
	}

	if exact, ok := sw.Clauses[0].Pattern.(*ast.ListExactPat); !ok || len(exact.Elems) != 0 {
		t.Errorf("clause 0 = %v, want empty list pattern", sw.Clauses[0].Pattern)
	}
	cons, ok := sw.Clauses[1].Pattern.(*ast.ListConsPat)
	if !ok {
		t.Fatalf("clause 1 = %T, want cons pattern", sw.Clauses[1].Pattern)
	}
	if head, ok := cons.Head.(*ast.BindingPat); !ok || head.Name != "h" {
		t.Errorf("cons head = %v, want binding h", cons.Head)
	}
	if _, ok := sw.Clauses[2].Pattern.(*ast.WildcardPat); !ok {
		t.Errorf("clause 2 = %T, want wildcard", sw.Clauses[2].Pattern)
	}
}

func TestPatternForms(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"fn classify",
		"    case -1 = \"negative one\"",
		"    case true = \"yes\"",
		"    case \"exact\" = \"text\"",
		"    case [a b] = \"pair\"",
		"    case {status: s} = s",
		"    case (a, b) = a",
		"    case _ = \"other\"",
		"",
	}, "\n"))

	fn := prog.Statements[0].(*ast.FunctionDecl)
	if len(fn.Clauses) != 7 {
		t.Fatalf("expected 7 clauses, got %d", len(fn.Clauses))
	}

	neg := fn.Clauses[0].Patterns[0].(*ast.LiteralPat)
	if neg.Lit.Value != "-1" {
		t.Errorf("negative literal = %q, want -1", neg.Lit.Value)
	}
	boolean := fn.Clauses[1].Patterns[0].(*ast.LiteralPat)
	if boolean.Lit.Kind != ast.BoolLit {
		t.Errorf("bool pattern kind = %v, want BoolLit", boolean.Lit.Kind)
	}
	exact := fn.Clauses[3].Patterns[0].(*ast.ListExactPat)
	if len(exact.Elems) != 2 {
		t.Errorf("exact list pattern has %d elements, want 2", len(exact.Elems))
	}
	mp := fn.Clauses[4].Patterns[0].(*ast.MapPat)
	if len(mp.Entries) != 1 || mp.Entries[0].Key != "status" {
		t.Errorf("map pattern = %v, want one status entry", mp.Entries)
	}
	tp := fn.Clauses[5].Patterns[0].(*ast.TuplePat)
	if len(tp.Elems) != 2 {
		t.Errorf("tuple pattern has %d elements, want 2", len(tp.Elems))
	}
}

func TestLambda(t *testing.T) {
	prog := parseProgram(t, "val f = (x -> x * 2)\n")
	decl := prog.Statements[0].(*ast.ValDecl)
	lambda, ok := decl.Value.(*ast.Lambda)
	if !ok {
		t.Fatalf("value = %T, want Lambda", decl.Value)
	}
	if diff := cmp.Diff([]string{"x"}, lambda.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if got := lambda.Body.String(); got != "(x * 2)" {
		t.Errorf("body = %q", got)
	}
}

func TestUnderscoreShorthand(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val nums = [1 2 3]",
		"val big = filter (_ > 1) nums",
		"",
	}, "\n"))

	decl := prog.Statements[1].(*ast.ValDecl)
	call, ok := decl.Value.(*ast.Call)
	if !ok {
		t.Fatalf("value = %T, want Call", decl.Value)
	}
	lambda, ok := call.Args[0].(*ast.Lambda)
	if !ok {
		t.Fatalf("first argument = %T, want Lambda", call.Args[0])
	}
	if diff := cmp.Diff([]string{"_"}, lambda.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if got := lambda.Body.String(); got != "(_ > 1)" {
		t.Errorf("body = %q", got)
	}
}

func TestRangesAndSlices(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val nums = [0..5]",
		"val evens = [0 2..10]",
		"val mid = nums[1..3]",
		"",
	}, "\n"))

	plain := prog.Statements[0].(*ast.ValDecl).Value.(*ast.Range)
	if plain.Step != nil {
		t.Errorf("plain range has step %v, want nil", plain.Step)
	}
	stepped := prog.Statements[1].(*ast.ValDecl).Value.(*ast.Range)
	if stepped.Step == nil || stepped.Step.String() != "2" {
		t.Errorf("stepped range step = %v, want 2", stepped.Step)
	}
	slice, ok := prog.Statements[2].(*ast.ValDecl).Value.(*ast.Slice)
	if !ok {
		t.Fatalf("value = %T, want Slice", prog.Statements[2].(*ast.ValDecl).Value)
	}
	if got := slice.String(); got != "nums[1..3]" {
		t.Errorf("slice = %q", got)
	}
}

func TestComprehension(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val nums = [1 2 3]",
		"val doubled = [x * 2 for x in nums if x > 1]",
		"",
	}, "\n"))

	comp, ok := prog.Statements[1].(*ast.ValDecl).Value.(*ast.Comprehension)
	if !ok {
		t.Fatalf("value = %T, want Comprehension", prog.Statements[1].(*ast.ValDecl).Value)
	}
	if got := comp.String(); got != "[(x * 2) for x in nums if (x > 1)]" {
		t.Errorf("comprehension = %q", got)
	}
}

func TestImportRevision(t *testing.T) {
	prog := parseProgram(t, "import text@1.4.0\n")
	if len(prog.Imports) != 1 {
		t.Fatalf("expected 1 import, got %d", len(prog.Imports))
	}
	imp := prog.Imports[0]
	if imp.Name != "text" || imp.Revision != "1.4.0" {
		t.Errorf("import = %s@%s, want text@1.4.0", imp.Name, imp.Revision)
	}
}

func TestArgSpecs(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"@1 src: path \"source file\"",
		"@force: bool",
		"@level: int = 3",
		"",
	}, "\n"))

	if len(prog.Args) != 3 {
		t.Fatalf("expected 3 argument declarations, got %d", len(prog.Args))
	}
	src := prog.Args[0]
	if src.Index != 1 || src.Name != "src" || src.Type != "path" || src.Desc != "source file" {
		t.Errorf("positional = %+v", src)
	}
	force := prog.Args[1]
	if force.Index != 0 || force.Type != "bool" {
		t.Errorf("flag = %+v", force)
	}
	level := prog.Args[2]
	if level.Default == nil || level.Default.String() != "3" {
		t.Errorf("default = %v, want 3", level.Default)
	}
}

func TestStringInterpolation(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"val name = \"bo\"",
		"print \"hi $name and $(1 + 2)\"",
		"",
	}, "\n"))

	call := prog.Statements[1].(*ast.ExprStmt).Expr.(*ast.Call)
	lit, ok := call.Args[0].(*ast.Literal)
	if !ok {
		t.Fatalf("argument = %T, want Literal", call.Args[0])
	}
	if !lit.Interpolated() {
		t.Fatal("expected interpolated string")
	}
	if len(lit.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(lit.Parts))
	}
	if v, ok := lit.Parts[1].Expr.(*ast.Variable); !ok || v.Name != "name" {
		t.Errorf("part 1 = %v, want variable name", lit.Parts[1].Expr)
	}
	if b, ok := lit.Parts[3].Expr.(*ast.Binary); !ok || b.String() != "(1 + 2)" {
		t.Errorf("part 3 = %v, want (1 + 2)", lit.Parts[3].Expr)
	}
}

func TestPredicateCall(t *testing.T) {
	prog := parseProgram(t, strings.Join([]string{
		"if exists? /tmp/cache",
		"    print \"warm\"",
		"",
	}, "\n"))

	ifStmt := prog.Statements[0].(*ast.If)
	call, ok := ifStmt.Condition.(*ast.Call)
	if !ok {
		t.Fatalf("condition = %T, want Call", ifStmt.Condition)
	}
	if !call.Predicate || call.Name != "exists" {
		t.Errorf("call = %+v, want predicate exists", call)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected 1 argument, got %d", len(call.Args))
	}
}

func TestVarAndAssignment(t *testing.T) {
	prog := parseProgram(t, "var count\ncount = 1\n")

	decl := prog.Statements[0].(*ast.VarDecl)
	if decl.Value != nil {
		t.Errorf("uninitialized var has value %v", decl.Value)
	}
	assign, ok := prog.Statements[1].(*ast.Assignment)
	if !ok {
		t.Fatalf("statement 1 = %T, want Assignment", prog.Statements[1])
	}
	if assign.Name != "count" {
		t.Errorf("assignment target = %q, want count", assign.Name)
	}
}

func TestValuePipedIntoBinding(t *testing.T) {
	prog := parseProgram(t, "val xs = [3 1 2]\nval sorted = xs | reverse\n")
	pipe, ok := prog.Statements[1].(*ast.ValDecl).Value.(*ast.Pipe)
	if !ok {
		t.Fatalf("value = %T, want Pipe", prog.Statements[1].(*ast.ValDecl).Value)
	}
	if _, ok := pipe.Right.(*ast.Call); !ok {
		t.Errorf("pipe right = %T, want Call", pipe.Right)
	}
}

func TestKnownNamesOption(t *testing.T) {
	source := []byte("upper \"hello\"\n")

	prog, diags := Parse(source, WithKnownNames([]string{"upper"}))
	if diags.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", diags.Error())
	}
	if _, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.Call); !ok {
		t.Errorf("known name parsed as %T, want Call", prog.Statements[0].(*ast.ExprStmt).Expr)
	}

	prog, diags = Parse(source)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", diags.Error())
	}
	if _, ok := prog.Statements[0].(*ast.ExprStmt).Expr.(*ast.ExternalCommand); !ok {
		t.Errorf("unknown name parsed as %T, want ExternalCommand", prog.Statements[0].(*ast.ExprStmt).Expr)
	}
}

func TestErrorAccumulation(t *testing.T) {
	_, diags := Parse([]byte("val = 5\nval ok = 1\nfor in xs\n    print \"x\"\n"))
	if !diags.HasErrors() {
		t.Fatal("expected parse errors")
	}
	if len(diags.Errors()) < 2 {
		t.Errorf("expected at least 2 errors, got %d:\n%s", len(diags.Errors()), diags.Error())
	}
}

func TestErrorMentionsExpectedAndFound(t *testing.T) {
	_, diags := Parse([]byte("val = 5\n"))
	if len(diags.Errors()) == 0 {
		t.Fatal("expected an error")
	}
	msg := diags.Errors()[0].Message
	if !strings.Contains(msg, "expected") || !strings.Contains(msg, "found") {
		t.Errorf("message %q should carry expected/found", msg)
	}
}
