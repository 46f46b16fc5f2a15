package sema

import (
	"strings"
	"testing"

	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/parser"
)

// check parses and runs the checker, failing on parse errors so that every
// reported diagnostic comes from this pass.
func check(t *testing.T, source string) diag.List {
	t.Helper()
	prog, diags := parser.Parse([]byte(source))
	if diags.HasErrors() {
		t.Fatalf("parse errors:\n%s", diags.Error())
	}
	return Check(prog, source)
}

func wantKind(t *testing.T, diags diag.List, kind diag.Kind) diag.Diagnostic {
	t.Helper()
	for _, d := range diags {
		if d.Kind == kind {
			return d
		}
	}
	t.Fatalf("expected a %s diagnostic, got:\n%s", kind, diags.Error())
	return diag.Diagnostic{}
}

func TestCleanProgram(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val greeting = \"hello\"",
		"var count = 0",
		"count = count + 1",
		"print \"$greeting $count\"",
		"",
	}, "\n"))
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics:\n%s", diags.Error())
	}
}

func TestAssignToVal(t *testing.T) {
	diags := check(t, "val x = 1\nx = 2\n")
	d := wantKind(t, diags, diag.ConstantViolation)
	if !strings.Contains(d.Message, "val") {
		t.Errorf("message %q should name the binding form", d.Message)
	}
}

func TestAssignToStatus(t *testing.T) {
	diags := check(t, "status = 0\n")
	wantKind(t, diags, diag.ConstantViolation)
}

func TestAssignToLoopVariable(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"for x in [1 2 3]",
		"    x = 9",
		"",
	}, "\n"))
	wantKind(t, diags, diag.ConstantViolation)
}

func TestUndeclaredVariable(t *testing.T) {
	diags := check(t, "val total = 1\nprint \"$totl\"\n")
	d := wantKind(t, diags, diag.UndeclaredVariable)
	if len(d.Suggestions) == 0 || !strings.Contains(d.Suggestions[0], "total") {
		t.Errorf("expected a 'total' suggestion, got %v", d.Suggestions)
	}
}

func TestTransposedNameSuggestion(t *testing.T) {
	diags := check(t, "val count = 3\nprint \"$cuont\"\n")
	d := wantKind(t, diags, diag.UndeclaredVariable)
	if len(d.Suggestions) == 0 || !strings.Contains(d.Suggestions[0], "count") {
		t.Errorf("expected a 'count' suggestion, got %v", d.Suggestions)
	}
}

func TestUseBeforeDeclaration(t *testing.T) {
	diags := check(t, "print \"$late\"\nval late = 1\n")
	wantKind(t, diags, diag.UndeclaredVariable)
}

func TestShadowingAllowed(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val x = 1",
		"if x > 0",
		"    val x = 2",
		"    print \"$x\"",
		"",
	}, "\n"))
	if len(diags) != 0 {
		t.Errorf("shadowing should be clean, got:\n%s", diags.Error())
	}
}

func TestRedeclarationInSameScope(t *testing.T) {
	diags := check(t, "val x = 1\nval x = 2\n")
	wantKind(t, diags, diag.ConstantViolation)
}

func TestBlockScopeEnds(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val go = true",
		"if go",
		"    val inner = 1",
		"print \"$inner\"",
		"",
	}, "\n"))
	wantKind(t, diags, diag.UndeclaredVariable)
}

func TestClauseBindingsScopedToClause(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"fn describe",
		"    case 0 = \"zero\"",
		"    case n = \"number $n\"",
		"print \"$n\"",
		"",
	}, "\n"))
	wantKind(t, diags, diag.UndeclaredVariable)
}

func TestLambdaParamScope(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val nums = [1 2 3]",
		"val doubled = map (x -> x * 2) nums",
		"",
	}, "\n"))
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics:\n%s", diags.Error())
	}
}

func TestComprehensionVariableScope(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val nums = [1 2 3]",
		"val big = [x for x in nums if x > 1]",
		"print \"$x\"",
		"",
	}, "\n"))
	wantKind(t, diags, diag.UndeclaredVariable)
}

func TestExternalNamesOption(t *testing.T) {
	prog, pdiags := parser.Parse([]byte("upper \"hi\"\n"),
		parser.WithKnownNames([]string{"upper"}))
	if pdiags.HasErrors() {
		t.Fatalf("parse errors:\n%s", pdiags.Error())
	}

	diags := Check(prog, "upper \"hi\"\n", WithExternalNames([]string{"upper"}))
	if len(diags) != 0 {
		t.Errorf("external name should resolve, got:\n%s", diags.Error())
	}

	diags = Check(prog, "upper \"hi\"\n")
	wantKind(t, diags, diag.UndeclaredVariable)
}

func TestAllViolationsReported(t *testing.T) {
	diags := check(t, strings.Join([]string{
		"val a = 1",
		"a = 2",
		"print \"$missing\"",
		"",
	}, "\n"))
	if len(diags.Errors()) < 2 {
		t.Errorf("expected both violations, got:\n%s", diags.Error())
	}
}
