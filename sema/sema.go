// Package sema checks name resolution and mutability over a parsed program.
//
// The pass is single and top-down: a binding must be declared before the
// statement that uses it, and an inner scope may shadow an outer name. val
// bindings are immutable; assigning one is a constant violation, as is
// writing the runtime-maintained status variable.
package sema

import (
	"fmt"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/hash-lang/hash/core/ast"
	"github.com/hash-lang/hash/core/builtins"
	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/core/invariant"
)

type bindKind int

const (
	bindVal bindKind = iota
	bindVar
	bindFunc
	bindParam   // clause and lambda bindings, immutable
	bindLoop    // loop variables, immutable
	bindBuiltin // pre-declared names, immutable
)

func (k bindKind) mutable() bool { return k == bindVar }

func (k bindKind) describe() string {
	switch k {
	case bindVal:
		return "val"
	case bindVar:
		return "var"
	case bindFunc:
		return "function"
	case bindParam:
		return "pattern binding"
	case bindLoop:
		return "loop variable"
	case bindBuiltin:
		return "built-in"
	}
	return "binding"
}

type binding struct {
	kind bindKind
	pos  diag.Position
}

// scope is one frame of the lexical chain. Lookup walks outward; declaration
// is always in the innermost frame.
type scope struct {
	parent *scope
	names  map[string]binding
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]binding)}
}

func (s *scope) lookup(name string) (binding, bool) {
	for frame := s; frame != nil; frame = frame.parent {
		if b, ok := frame.names[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// visible collects every name reachable from this scope, for suggestions.
func (s *scope) visible() []string {
	seen := make(map[string]bool)
	var names []string
	for frame := s; frame != nil; frame = frame.parent {
		for name := range frame.names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Opt configures a check run.
type Opt func(*checker)

// WithExternalNames declares resolved hashlet exports before checking.
func WithExternalNames(names []string) Opt {
	return func(c *checker) {
		for _, name := range names {
			c.scope.names[name] = binding{kind: bindFunc}
		}
	}
}

type checker struct {
	source string
	diags  diag.List
	scope  *scope
}

// Check validates name use and mutability across the program and reports
// every violation found; it never stops at the first.
func Check(prog *ast.Program, source string, opts ...Opt) diag.List {
	invariant.NotNil(prog, "program")

	c := &checker{source: source, scope: newScope(nil)}
	for name := range builtins.Functions {
		c.scope.names[name] = binding{kind: bindBuiltin}
	}
	for name := range builtins.Variables {
		c.scope.names[name] = binding{kind: bindBuiltin}
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, arg := range prog.Args {
		if arg.Default != nil {
			c.checkExpr(arg.Default)
		}
		c.declare(arg.Name, bindVal, arg.Pos)
	}
	for _, imp := range prog.Imports {
		c.declare(imp.Name, bindBuiltin, imp.Pos)
	}
	c.checkStatements(prog.Statements)
	return c.diags
}

func (c *checker) push() { c.scope = newScope(c.scope) }
func (c *checker) pop()  { c.scope = c.scope.parent }

func (c *checker) report(kind diag.Kind, pos diag.Position, message string, suggestions ...string) {
	c.diags = append(c.diags, diag.Diagnostic{
		Kind:        kind,
		Message:     message,
		Pos:         pos,
		Source:      c.source,
		Suggestions: suggestions,
	})
}

// declare binds a name in the innermost scope. Redeclaring a name in the
// same scope is an error; shadowing an outer one is not.
func (c *checker) declare(name string, kind bindKind, pos diag.Position) {
	if prior, ok := c.scope.names[name]; ok && prior.kind != bindBuiltin {
		c.report(diag.ConstantViolation, pos,
			fmt.Sprintf("'%s' is already declared in this scope", name))
		return
	}
	c.scope.names[name] = binding{kind: kind, pos: pos}
}

// resolve looks a name up and reports it with a fuzzy suggestion when
// missing.
func (c *checker) resolve(name string, pos diag.Position, what string) (binding, bool) {
	b, ok := c.scope.lookup(name)
	if ok {
		return b, true
	}

	msg := fmt.Sprintf("%s '%s' is not declared", what, name)
	if closest := closestName(name, c.scope.visible()); closest != "" {
		c.report(diag.UndeclaredVariable, pos, msg, fmt.Sprintf("did you mean '%s'?", closest))
	} else {
		c.report(diag.UndeclaredVariable, pos, msg)
	}
	return binding{}, false
}

// closestName finds the nearest visible name by edit distance. Transposed
// letters still suggest, which subsequence matching would miss.
func closestName(target string, candidates []string) string {
	best := ""
	bestDist := len(target)/2 + 1
	for _, cand := range candidates {
		d := fuzzy.LevenshteinDistance(target, cand)
		if d < bestDist {
			best = cand
			bestDist = d
		}
	}
	return best
}

func (c *checker) checkStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		c.checkStatement(stmt)
	}
}

func (c *checker) checkStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ValDecl:
		c.checkExpr(s.Value)
		c.declare(s.Name, bindVal, s.Pos)

	case *ast.VarDecl:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
		c.declare(s.Name, bindVar, s.Pos)

	case *ast.Assignment:
		c.checkExpr(s.Value)
		b, ok := c.resolve(s.Name, s.Pos, "variable")
		if ok && !b.kind.mutable() {
			c.report(diag.ConstantViolation, s.Pos,
				fmt.Sprintf("cannot assign to %s '%s'", b.kind.describe(), s.Name))
		}

	case *ast.FunctionDecl:
		c.declare(s.Name, bindFunc, s.Pos)
		for _, clause := range s.Clauses {
			c.push()
			for _, pat := range clause.Patterns {
				for _, bound := range ast.Bindings(pat) {
					c.declare(bound, bindParam, clause.Pos)
				}
			}
			if clause.Expr != nil {
				c.checkExpr(clause.Expr)
			}
			c.checkStatements(clause.Body)
			c.pop()
		}

	case *ast.If:
		c.checkExpr(s.Condition)
		c.push()
		c.checkStatements(s.Then)
		c.pop()
		c.push()
		c.checkStatements(s.Else)
		c.pop()

	case *ast.While:
		c.checkExpr(s.Condition)
		c.push()
		c.checkStatements(s.Body)
		c.pop()

	case *ast.For:
		c.checkExpr(s.Source)
		c.push()
		c.declare(s.Var, bindLoop, s.Pos)
		c.checkStatements(s.Body)
		c.pop()

	case *ast.Switch:
		c.checkExpr(s.Subject)
		for _, clause := range s.Clauses {
			c.push()
			for _, bound := range ast.Bindings(clause.Pattern) {
				c.declare(bound, bindParam, clause.Pos)
			}
			if clause.Expr != nil {
				c.checkExpr(clause.Expr)
			}
			c.checkStatements(clause.Body)
			c.pop()
		}

	case *ast.ExprStmt:
		c.checkExpr(s.Expr)
	}
}

func (c *checker) checkExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Literal:
		for _, part := range e.Parts {
			if part.Expr != nil {
				c.checkExpr(part.Expr)
			}
		}

	case *ast.Variable:
		c.resolve(e.Name, e.Pos, "variable")

	case *ast.Call:
		c.resolve(e.Name, e.Pos, "function")
		for _, arg := range e.Args {
			c.checkExpr(arg)
		}

	case *ast.ExternalCommand:
		// The command name resolves at run time on PATH; only
		// interpolations inside its arguments are ours to check.
		for _, arg := range e.Args {
			c.checkExpr(arg)
		}

	case *ast.Lambda:
		c.push()
		for _, param := range e.Params {
			c.declare(param, bindParam, e.Pos)
		}
		c.checkExpr(e.Body)
		c.pop()

	case *ast.ListLit:
		for _, elem := range e.Elems {
			c.checkExpr(elem)
		}

	case *ast.MapLit:
		for _, entry := range e.Entries {
			c.checkExpr(entry.Key)
			c.checkExpr(entry.Value)
		}

	case *ast.Range:
		c.checkExpr(e.Start)
		if e.Step != nil {
			c.checkExpr(e.Step)
		}
		c.checkExpr(e.End)

	case *ast.Slice:
		c.checkExpr(e.Target)
		c.checkExpr(e.Start)
		c.checkExpr(e.End)

	case *ast.Comprehension:
		c.checkExpr(e.Source)
		c.push()
		c.declare(e.Var, bindLoop, e.Pos)
		c.checkExpr(e.Body)
		if e.Cond != nil {
			c.checkExpr(e.Cond)
		}
		c.pop()

	case *ast.Pipe:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)

	case *ast.Redirect:
		c.checkExpr(e.Cmd)
		c.checkExpr(e.Target)

	case *ast.Binary:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)

	case *ast.Unary:
		c.checkExpr(e.Operand)
	}
}
