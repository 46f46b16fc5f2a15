// Package match compiles ordered pattern clauses into a decision tree.
//
// The tree is an arena of indexed nodes. Test nodes probe one sub-value of
// the argument tuple and branch; leaf nodes select a clause and carry the
// binding paths its body needs; the fail node is reached only when no
// clause matches. Clause order is preserved: when two clauses both match a
// value, the earlier one wins, so each clause's tests fail over to the next
// clause's chain.
//
// Exhaustiveness and reachability are checked here. A match is exhaustive
// when some clause is irrefutable in every position; a clause is
// unreachable when an earlier clause subsumes it. Both produce warnings,
// not errors: the generated dispatch still fails cleanly at run time.
package match

import (
	"fmt"
	"strings"

	"github.com/hash-lang/hash/core/ast"
	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/core/invariant"
)

// StepKind addresses one link of an access path.
type StepKind int

const (
	StepArg   StepKind = iota // argument i of the tuple
	StepHead                  // first element of a list
	StepTail                  // rest of a list
	StepIndex                 // element i of a list
	StepKey                   // map entry by key
)

// Step is one link of a Path.
type Step struct {
	Kind  StepKind
	Index int
	Key   string
}

// Path addresses a sub-value of the matched argument tuple.
type Path []Step

func (p Path) String() string {
	var b strings.Builder
	for _, s := range p {
		switch s.Kind {
		case StepArg:
			fmt.Fprintf(&b, "$%d", s.Index+1)
		case StepHead:
			b.WriteString(".head")
		case StepTail:
			b.WriteString(".tail")
		case StepIndex:
			fmt.Fprintf(&b, "[%d]", s.Index)
		case StepKey:
			fmt.Fprintf(&b, ".%s", s.Key)
		}
	}
	return b.String()
}

// child returns p extended by one step, without sharing backing storage.
func (p Path) child(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// TestKind distinguishes what a test node checks.
type TestKind int

const (
	TestLiteral TestKind = iota // value equals a literal
	TestEmpty                   // list with zero elements
	TestCons                    // list with at least one element
	TestLen                     // list with exactly Len elements
	TestHasKey                  // map containing Key
)

// Test is the probe a test node applies to the value at its path.
type Test struct {
	Kind TestKind
	Lit  *ast.Literal // TestLiteral
	Len  int          // TestLen
	Key  string       // TestHasKey
}

func (t Test) String() string {
	switch t.Kind {
	case TestLiteral:
		return "== " + t.Lit.String()
	case TestEmpty:
		return "empty"
	case TestCons:
		return "non-empty"
	case TestLen:
		return fmt.Sprintf("len == %d", t.Len)
	case TestHasKey:
		return fmt.Sprintf("has %q", t.Key)
	}
	return "?"
}

// Binding names a sub-value a clause body uses.
type Binding struct {
	Name string
	Path Path
}

// NodeKind distinguishes arena node roles.
type NodeKind int

const (
	NodeTest NodeKind = iota
	NodeLeaf
	NodeFail
)

// Node is one arena slot. Test nodes use Path, Test, Pass, and Fail; leaf
// nodes use Clause and Bindings.
type Node struct {
	Kind NodeKind

	Path Path
	Test Test
	Pass int
	Fail int

	Clause   int
	Bindings []Binding
}

// Tree is the compiled decision tree for one function or switch.
type Tree struct {
	Nodes      []Node
	Root       int
	Arity      int
	Exhaustive bool
}

// Compile builds the decision tree for name's ordered clauses and reports
// exhaustiveness and reachability findings. A fatal diagnostic is returned
// when the clauses disagree on arity; the tree is nil in that case.
func Compile(name string, clauses []ast.Clause, source string) (*Tree, diag.List) {
	invariant.Precondition(len(clauses) > 0, "at least one clause is required")

	var diags diag.List
	report := func(kind diag.Kind, pos diag.Position, msg string, suggestions ...string) {
		diags = append(diags, diag.Diagnostic{
			Kind: kind, Message: msg, Pos: pos, Source: source, Suggestions: suggestions,
		})
	}

	arity := len(clauses[0].Patterns)
	for _, clause := range clauses[1:] {
		if len(clause.Patterns) != arity {
			report(diag.UnsupportedConstruct, clause.Pos,
				fmt.Sprintf("clauses of '%s' disagree on arity: first takes %d argument(s), this one takes %d",
					name, arity, len(clause.Patterns)))
			return nil, diags
		}
	}

	// Reachability: a clause no value can reach is dead.
	for j := 1; j < len(clauses); j++ {
		for i := 0; i < j; i++ {
			if clauseSubsumes(clauses[i], clauses[j]) {
				report(diag.UnreachableClause, clauses[j].Pos,
					fmt.Sprintf("clause %d of '%s' is unreachable: an earlier clause matches everything it matches", j+1, name))
				break
			}
		}
	}

	tree := &Tree{Arity: arity}
	for _, clause := range clauses {
		if clauseIrrefutable(clause) {
			tree.Exhaustive = true
			break
		}
	}
	if !tree.Exhaustive {
		report(diag.NonExhaustiveMatch, clauses[0].Pos,
			fmt.Sprintf("match in '%s' does not cover every value", name),
			"add a final case _ clause")
	}

	b := &builder{tree: tree}
	failAt := b.add(Node{Kind: NodeFail})
	next := failAt
	for ci := len(clauses) - 1; ci >= 0; ci-- {
		next = b.clauseChain(ci, clauses[ci], next)
	}
	tree.Root = next

	invariant.InRange(tree.Root, 0, len(tree.Nodes)-1, "tree root")
	return tree, diags
}

type builder struct {
	tree *Tree

	conds []cond
	binds []Binding
}

type cond struct {
	path Path
	test Test
}

func (b *builder) add(n Node) int {
	b.tree.Nodes = append(b.tree.Nodes, n)
	return len(b.tree.Nodes) - 1
}

// clauseChain emits the test chain for one clause and returns its entry
// node. Every failing test falls through to failTo, the next clause's
// entry.
func (b *builder) clauseChain(ci int, clause ast.Clause, failTo int) int {
	b.conds = b.conds[:0]
	b.binds = b.binds[:0]
	for i, pat := range clause.Patterns {
		b.walk(pat, Path{{Kind: StepArg, Index: i}})
	}

	bindings := make([]Binding, len(b.binds))
	copy(bindings, b.binds)
	next := b.add(Node{Kind: NodeLeaf, Clause: ci, Bindings: bindings})

	for i := len(b.conds) - 1; i >= 0; i-- {
		next = b.add(Node{
			Kind: NodeTest,
			Path: b.conds[i].path,
			Test: b.conds[i].test,
			Pass: next,
			Fail: failTo,
		})
	}
	return next
}

// walk flattens one pattern into its conditions and bindings, in source
// order.
func (b *builder) walk(pat ast.Pattern, path Path) {
	switch p := pat.(type) {
	case *ast.WildcardPat:
		// matches anything

	case *ast.BindingPat:
		b.binds = append(b.binds, Binding{Name: p.Name, Path: path})

	case *ast.LiteralPat:
		b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestLiteral, Lit: p.Lit}})

	case *ast.ListExactPat:
		if len(p.Elems) == 0 {
			b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestEmpty}})
			return
		}
		b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestLen, Len: len(p.Elems)}})
		for i, elem := range p.Elems {
			b.walk(elem, path.child(Step{Kind: StepIndex, Index: i}))
		}

	case *ast.ListConsPat:
		b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestCons}})
		b.walk(p.Head, path.child(Step{Kind: StepHead}))
		b.walk(p.Tail, path.child(Step{Kind: StepTail}))

	case *ast.MapPat:
		for _, entry := range p.Entries {
			b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestHasKey, Key: entry.Key}})
			b.walk(entry.Value, path.child(Step{Kind: StepKey, Key: entry.Key}))
		}

	case *ast.TuplePat:
		// Tuples share the list encoding, so the probe is a length check.
		b.conds = append(b.conds, cond{path: path, test: Test{Kind: TestLen, Len: len(p.Elems)}})
		for i, elem := range p.Elems {
			b.walk(elem, path.child(Step{Kind: StepIndex, Index: i}))
		}
	}
}

// clauseIrrefutable reports whether a clause matches any argument tuple.
func clauseIrrefutable(clause ast.Clause) bool {
	for _, pat := range clause.Patterns {
		if !ast.Irrefutable(pat) {
			return false
		}
	}
	return true
}

// clauseSubsumes reports whether earlier matches every tuple later matches,
// position by position.
func clauseSubsumes(earlier, later ast.Clause) bool {
	for i := range earlier.Patterns {
		if !subsumes(earlier.Patterns[i], later.Patterns[i]) {
			return false
		}
	}
	return true
}

// subsumes is a conservative ordering on patterns: true means every value q
// matches, p matches too. False negatives only cost a missed warning.
func subsumes(p, q ast.Pattern) bool {
	if ast.Irrefutable(p) {
		switch p.(type) {
		case *ast.WildcardPat, *ast.BindingPat:
			return true
		}
	}

	switch pp := p.(type) {
	case *ast.LiteralPat:
		qq, ok := q.(*ast.LiteralPat)
		return ok && pp.Lit.Kind == qq.Lit.Kind && pp.Lit.Value == qq.Lit.Value

	case *ast.ListExactPat:
		qq, ok := q.(*ast.ListExactPat)
		if !ok || len(pp.Elems) != len(qq.Elems) {
			return false
		}
		for i := range pp.Elems {
			if !subsumes(pp.Elems[i], qq.Elems[i]) {
				return false
			}
		}
		return true

	case *ast.ListConsPat:
		switch qq := q.(type) {
		case *ast.ListConsPat:
			return subsumes(pp.Head, qq.Head) && subsumes(pp.Tail, qq.Tail)
		case *ast.ListExactPat:
			if len(qq.Elems) == 0 {
				return false
			}
			rest := &ast.ListExactPat{Elems: qq.Elems[1:], Pos: qq.Pos}
			return subsumes(pp.Head, qq.Elems[0]) && subsumes(pp.Tail, rest)
		}
		return false

	case *ast.MapPat:
		qq, ok := q.(*ast.MapPat)
		if !ok {
			return false
		}
		// p matches more maps when it constrains a subset of q's keys.
		byKey := make(map[string]ast.Pattern, len(qq.Entries))
		for _, e := range qq.Entries {
			byKey[e.Key] = e.Value
		}
		for _, e := range pp.Entries {
			qv, ok := byKey[e.Key]
			if !ok || !subsumes(e.Value, qv) {
				return false
			}
		}
		return true

	case *ast.TuplePat:
		qq, ok := q.(*ast.TuplePat)
		if !ok || len(pp.Elems) != len(qq.Elems) {
			return false
		}
		for i := range pp.Elems {
			if !subsumes(pp.Elems[i], qq.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}
