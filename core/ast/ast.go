// Package ast defines the abstract syntax tree for hash source. Nodes are
// build-once, read-only artifacts owned exclusively by their parent; cross
// references (a clause body referring to bound names) are resolved by name
// lookup against the enclosing scope, never by pointer aliasing.
package ast

import (
	"fmt"
	"strings"

	"github.com/hash-lang/hash/core/diag"
)

// Node represents any node in the AST
type Node interface {
	String() string
	Position() diag.Position
}

// Statement is a node that can appear at statement position.
type Statement interface {
	Node
	stmtNode()
}

// Expression is a node that yields a value.
type Expression interface {
	Node
	exprNode()
}

// Program represents a whole compilation unit (script or hashlet).
type Program struct {
	Imports    []*Import
	Args       []*ArgSpec
	Statements []Statement
	Pos        diag.Position
}

func (p *Program) String() string {
	var parts []string
	for _, imp := range p.Imports {
		parts = append(parts, imp.String())
	}
	for _, a := range p.Args {
		parts = append(parts, a.String())
	}
	for _, s := range p.Statements {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n")
}

func (p *Program) Position() diag.Position { return p.Pos }

// Import brings a hashlet's fn/val declarations into scope at a pinned
// revision.
type Import struct {
	Name     string // hashlet identifier, e.g. "text"
	Revision string // pinned revision, e.g. "1.4.0"
	Pos      diag.Position
}

func (i *Import) String() string {
	if i.Revision == "" {
		return fmt.Sprintf("import %s", i.Name)
	}
	return fmt.Sprintf("import %s@%s", i.Name, i.Revision)
}
func (i *Import) Position() diag.Position { return i.Pos }
func (i *Import) stmtNode()               {}

// ArgSpec declares one command-line argument of the generated script.
// Index > 0 means positional (@1, @2, ...); Index == 0 means a named flag
// (@force). Bool-typed named arguments are presence flags.
type ArgSpec struct {
	Index   int    // positional index, 0 for named arguments
	Name    string // binding name
	Type    string // int, float, text, path, bool
	Default Expression
	Desc    string // help text
	Pos     diag.Position
}

func (a *ArgSpec) String() string {
	var b strings.Builder
	if a.Index > 0 {
		fmt.Fprintf(&b, "@%d %s", a.Index, a.Name)
	} else {
		fmt.Fprintf(&b, "@%s", a.Name)
	}
	if a.Type != "" {
		fmt.Fprintf(&b, ": %s", a.Type)
	}
	if a.Default != nil {
		fmt.Fprintf(&b, " = %s", a.Default.String())
	}
	if a.Desc != "" {
		fmt.Fprintf(&b, " %q", a.Desc)
	}
	return b.String()
}
func (a *ArgSpec) Position() diag.Position { return a.Pos }
func (a *ArgSpec) stmtNode()               {}

// LitKind distinguishes literal forms.
type LitKind int

const (
	IntLit LitKind = iota
	FloatLit
	StringLit
	BoolLit
	PathLit
	OptionLit
)

func (k LitKind) String() string {
	switch k {
	case IntLit:
		return "int"
	case FloatLit:
		return "float"
	case StringLit:
		return "string"
	case BoolLit:
		return "bool"
	case PathLit:
		return "path"
	case OptionLit:
		return "option"
	default:
		return "literal"
	}
}

// StringPart is one segment of an interpolated string literal.
type StringPart struct {
	Lit  string     // literal fragment when Expr is nil
	Expr Expression // embedded expression otherwise
}

// Literal is a literal value. String literals carry interpolation parts;
// other kinds carry their raw source spelling in Value.
type Literal struct {
	Kind  LitKind
	Value string
	Parts []StringPart // StringLit only
	Pos   diag.Position
}

func (l *Literal) String() string {
	if l.Kind == StringLit {
		var b strings.Builder
		b.WriteString(`"`)
		for _, p := range l.Parts {
			if p.Expr != nil {
				fmt.Fprintf(&b, "$(%s)", p.Expr.String())
			} else {
				b.WriteString(p.Lit)
			}
		}
		b.WriteString(`"`)
		return b.String()
	}
	return l.Value
}
func (l *Literal) Position() diag.Position { return l.Pos }
func (l *Literal) exprNode()               {}

// Interpolated reports whether the string literal embeds expressions.
func (l *Literal) Interpolated() bool {
	for _, p := range l.Parts {
		if p.Expr != nil {
			return true
		}
	}
	return false
}

// Variable references a binding by name.
type Variable struct {
	Name string
	Pos  diag.Position
}

func (v *Variable) String() string          { return v.Name }
func (v *Variable) Position() diag.Position { return v.Pos }
func (v *Variable) exprNode()               {}

// ListLit is a literal list: [1 2 3].
type ListLit struct {
	Elems []Expression
	Pos   diag.Position
}

func (l *ListLit) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
func (l *ListLit) Position() diag.Position { return l.Pos }
func (l *ListLit) exprNode()               {}

// MapEntry is one key/value pair of a map literal.
type MapEntry struct {
	Key   Expression
	Value Expression
}

// MapLit is a literal map: {a: 1, b: 2}.
type MapLit struct {
	Entries []MapEntry
	Pos     diag.Position
}

func (m *MapLit) String() string {
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = fmt.Sprintf("%s: %s", e.Key.String(), e.Value.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (m *MapLit) Position() diag.Position { return m.Pos }
func (m *MapLit) exprNode()               {}

// Range is an inclusive range: [0..5] or stepped [0 2..10]. Step is the
// second element when present; the effective stride is Step - Start.
type Range struct {
	Start Expression
	Step  Expression // nil for unit stride
	End   Expression
	Pos   diag.Position
}

func (r *Range) String() string {
	if r.Step != nil {
		return fmt.Sprintf("[%s %s..%s]", r.Start.String(), r.Step.String(), r.End.String())
	}
	return fmt.Sprintf("[%s..%s]", r.Start.String(), r.End.String())
}
func (r *Range) Position() diag.Position { return r.Pos }
func (r *Range) exprNode()               {}

// Slice extracts an inclusive sub-list: xs[1..3].
type Slice struct {
	Target Expression
	Start  Expression
	End    Expression
	Pos    diag.Position
}

func (s *Slice) String() string {
	return fmt.Sprintf("%s[%s..%s]", s.Target.String(), s.Start.String(), s.End.String())
}
func (s *Slice) Position() diag.Position { return s.Pos }
func (s *Slice) exprNode()               {}

// Comprehension builds a list: [x * 2 for x in xs if x > 0].
type Comprehension struct {
	Body   Expression
	Var    string
	Source Expression
	Cond   Expression // nil when unfiltered
	Pos    diag.Position
}

func (c *Comprehension) String() string {
	s := fmt.Sprintf("[%s for %s in %s", c.Body.String(), c.Var, c.Source.String())
	if c.Cond != nil {
		s += " if " + c.Cond.String()
	}
	return s + "]"
}
func (c *Comprehension) Position() diag.Position { return c.Pos }
func (c *Comprehension) exprNode()               {}

// Lambda is an anonymous function: (x -> x * 2). The underscore shorthand
// (_ > 1) parses into a one-parameter lambda over the placeholder.
type Lambda struct {
	Params []string
	Body   Expression
	Pos    diag.Position
}

func (l *Lambda) String() string {
	return fmt.Sprintf("(%s -> %s)", strings.Join(l.Params, " "), l.Body.String())
}
func (l *Lambda) Position() diag.Position { return l.Pos }
func (l *Lambda) exprNode()               {}

// Call applies a known function or lambda-valued binding. Predicate marks a
// name?-suffixed call that evaluates to the boolean of the exit status.
type Call struct {
	Name      string
	Args      []Expression
	Predicate bool
	Pos       diag.Position
}

func (c *Call) String() string {
	name := c.Name
	if c.Predicate {
		name += "?"
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	if len(parts) == 0 {
		return name + "()"
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
func (c *Call) Position() diag.Position { return c.Pos }
func (c *Call) exprNode()               {}

// ExternalCommand invokes a program outside the language. Arguments keep
// unparsed shell word semantics: literals pass through verbatim.
type ExternalCommand struct {
	Name string
	Args []Expression
	Pos  diag.Position
}

func (e *ExternalCommand) String() string {
	parts := []string{e.Name}
	for _, a := range e.Args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}
func (e *ExternalCommand) Position() diag.Position { return e.Pos }
func (e *ExternalCommand) exprNode()               {}

// Pipe connects two pipeline stages. Piping a value into a function supplies
// it as the function's final argument; piping into an external command is
// byte-stream piping.
type Pipe struct {
	Left  Expression
	Right Expression
	Pos   diag.Position
}

func (p *Pipe) String() string {
	return fmt.Sprintf("%s | %s", p.Left.String(), p.Right.String())
}
func (p *Pipe) Position() diag.Position { return p.Pos }
func (p *Pipe) exprNode()               {}

// Redirect sends a command's stream to a file. Stream is one of the
// descriptive names "out", "err", "all".
type Redirect struct {
	Cmd    Expression
	Stream string
	Target Expression
	Append bool
	Pos    diag.Position
}

func (r *Redirect) String() string {
	op := ">"
	if r.Append {
		op = ">>"
	}
	stream := ""
	if r.Stream != "out" {
		stream = r.Stream
	}
	return fmt.Sprintf("%s %s%s %s", r.Cmd.String(), stream, op, r.Target.String())
}
func (r *Redirect) Position() diag.Position { return r.Pos }
func (r *Redirect) exprNode()               {}

// Binary is an infix operation: arithmetic, comparison, or logic.
type Binary struct {
	Op    string
	Left  Expression
	Right Expression
	Pos   diag.Position
}

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Op, b.Right.String())
}
func (b *Binary) Position() diag.Position { return b.Pos }
func (b *Binary) exprNode()               {}

// Unary is a prefix operation: !x.
type Unary struct {
	Op      string
	Operand Expression
	Pos     diag.Position
}

func (u *Unary) String() string          { return u.Op + u.Operand.String() }
func (u *Unary) Position() diag.Position { return u.Pos }
func (u *Unary) exprNode()               {}

// ValDecl is an immutable binding.
type ValDecl struct {
	Name  string
	Value Expression
	Pos   diag.Position
}

func (v *ValDecl) String() string          { return fmt.Sprintf("val %s = %s", v.Name, v.Value.String()) }
func (v *ValDecl) Position() diag.Position { return v.Pos }
func (v *ValDecl) stmtNode()               {}

// VarDecl is a mutable binding. Value is nil when declared without an
// initializer; such variables hold the unset sentinel until assigned.
type VarDecl struct {
	Name  string
	Value Expression
	Pos   diag.Position
}

func (v *VarDecl) String() string {
	if v.Value == nil {
		return fmt.Sprintf("var %s", v.Name)
	}
	return fmt.Sprintf("var %s = %s", v.Name, v.Value.String())
}
func (v *VarDecl) Position() diag.Position { return v.Pos }
func (v *VarDecl) stmtNode()               {}

// Assignment mutates an existing var binding.
type Assignment struct {
	Name  string
	Value Expression
	Pos   diag.Position
}

func (a *Assignment) String() string          { return fmt.Sprintf("%s = %s", a.Name, a.Value.String()) }
func (a *Assignment) Position() diag.Position { return a.Pos }
func (a *Assignment) stmtNode()               {}

// If is a conditional with an optional else branch.
type If struct {
	Condition Expression
	Then      []Statement
	Else      []Statement
	Pos       diag.Position
}

func (i *If) String() string {
	s := fmt.Sprintf("if %s ...", i.Condition.String())
	if len(i.Else) > 0 {
		s += " else ..."
	}
	return s
}
func (i *If) Position() diag.Position { return i.Pos }
func (i *If) stmtNode()               {}

// While loops while the condition holds.
type While struct {
	Condition Expression
	Body      []Statement
	Pos       diag.Position
}

func (w *While) String() string          { return fmt.Sprintf("while %s ...", w.Condition.String()) }
func (w *While) Position() diag.Position { return w.Pos }
func (w *While) stmtNode()               {}

// For iterates a list value, binding each element.
type For struct {
	Var    string
	Source Expression
	Body   []Statement
	Pos    diag.Position
}

func (f *For) String() string          { return fmt.Sprintf("for %s in %s ...", f.Var, f.Source.String()) }
func (f *For) Position() diag.Position { return f.Pos }
func (f *For) stmtNode()               {}

// SwitchClause is one case of a switch. Either Expr (single-expression
// clause) or Body (indented block) is set.
type SwitchClause struct {
	Pattern Pattern
	Expr    Expression
	Body    []Statement
	Pos     diag.Position
}

// Switch dispatches a subject value over ordered pattern clauses.
type Switch struct {
	Subject Expression
	Clauses []SwitchClause
	Pos     diag.Position
}

func (s *Switch) String() string          { return fmt.Sprintf("switch %s ...", s.Subject.String()) }
func (s *Switch) Position() diag.Position { return s.Pos }
func (s *Switch) stmtNode()               {}

// Clause is one case of a function declaration. Patterns match the
// arguments left to right; order across clauses is significant and
// preserved for exhaustiveness and priority.
type Clause struct {
	Patterns []Pattern
	Expr     Expression  // single-expression clause body
	Body     []Statement // indented block body
	Pos      diag.Position
}

// FunctionDecl declares a function as an ordered list of pattern clauses.
type FunctionDecl struct {
	Name    string
	Clauses []Clause
	Pos     diag.Position
}

func (f *FunctionDecl) String() string          { return fmt.Sprintf("fn %s (%d clauses)", f.Name, len(f.Clauses)) }
func (f *FunctionDecl) Position() diag.Position { return f.Pos }
func (f *FunctionDecl) stmtNode()               {}

// ExprStmt is an expression at statement position (commands, calls, pipes).
type ExprStmt struct {
	Expr Expression
	Pos  diag.Position
}

func (e *ExprStmt) String() string          { return e.Expr.String() }
func (e *ExprStmt) Position() diag.Position { return e.Pos }
func (e *ExprStmt) stmtNode()               {}
