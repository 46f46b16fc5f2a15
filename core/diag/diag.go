// Package diag defines the diagnostic taxonomy shared by every compiler
// stage. Stages accumulate diagnostics instead of failing fast so that one
// compile reports everything it found; fatal kinds still halt the pipeline
// at the stage that produced them.
package diag

import (
	"fmt"
	"strings"
)

// Kind identifies the category of a diagnostic.
type Kind int

const (
	LexError Kind = iota
	ParseError
	UndeclaredVariable
	ConstantViolation
	NonExhaustiveMatch
	UnreachableClause
	ImportError
	UnsupportedConstruct
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "lex error"
	case ParseError:
		return "parse error"
	case UndeclaredVariable:
		return "undeclared variable"
	case ConstantViolation:
		return "constant violation"
	case NonExhaustiveMatch:
		return "non-exhaustive match"
	case UnreachableClause:
		return "unreachable clause"
	case ImportError:
		return "import error"
	case UnsupportedConstruct:
		return "unsupported construct"
	default:
		return "error"
	}
}

// Severity distinguishes fatal diagnostics from warnings. Warnings attach to
// generated output; errors stop the pipeline at the producing stage.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Fatal reports whether this kind halts compilation. NonExhaustiveMatch and
// UnreachableClause are attached to the compiled tree as warnings.
func (k Kind) Fatal() bool {
	return k != NonExhaustiveMatch && k != UnreachableClause
}

// Position is a location in source text. Line and Column are 1-based,
// Offset is the 0-based byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Diagnostic is one reported problem with enough context to render a
// caret-annotated snippet.
type Diagnostic struct {
	Kind    Kind
	Message string
	Pos     Position
	Source  string // full source text, used for snippet rendering

	// Suggestions holds possible fixes ("did you mean" candidates).
	Suggestions []string
}

// Severity derives from the kind.
func (d Diagnostic) Severity() Severity {
	if d.Kind.Fatal() {
		return SeverityError
	}
	return SeverityWarning
}

// Error renders the diagnostic with location and a code snippet.
func (d Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	if snippet := d.snippet(); snippet != "" {
		b.WriteString("\n")
		b.WriteString(snippet)
	}
	for _, s := range d.Suggestions {
		fmt.Fprintf(&b, "\n   = suggestion: %s", s)
	}
	return b.String()
}

// snippet renders the source line with a caret under the offending column.
func (d Diagnostic) snippet() string {
	if d.Source == "" || d.Pos.Line == 0 {
		return ""
	}

	lines := strings.Split(d.Source, "\n")
	if d.Pos.Line > len(lines) {
		return ""
	}
	lineContent := lines[d.Pos.Line-1]

	var b strings.Builder
	fmt.Fprintf(&b, "  --> %d:%d\n", d.Pos.Line, d.Pos.Column)
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", d.Pos.Line, lineContent)
	b.WriteString("   | ")
	if d.Pos.Column > 0 && d.Pos.Column <= len(lineContent)+1 {
		b.WriteString(strings.Repeat(" ", d.Pos.Column-1) + "^")
	}
	return b.String()
}

// List is an ordered collection of diagnostics for one compilation unit.
type List []Diagnostic

// HasErrors reports whether any diagnostic is fatal.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity() == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the fatal diagnostics.
func (l List) Errors() List {
	var out List
	for _, d := range l {
		if d.Severity() == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns only the non-fatal diagnostics.
func (l List) Warnings() List {
	var out List
	for _, d := range l {
		if d.Severity() == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Error joins every diagnostic so a single compile surfaces the full report,
// not just the first problem.
func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n\n")
}
