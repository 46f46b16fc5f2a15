package ast

import (
	"fmt"
	"strings"

	"github.com/hash-lang/hash/core/diag"
)

// Pattern is a tagged variant over the match pattern forms. Patterns are
// immutable trees built once per clause and consumed by the pattern-match
// compiler.
type Pattern interface {
	Node
	patNode()
}

// WildcardPat matches anything without binding: _.
type WildcardPat struct {
	Pos diag.Position
}

func (w *WildcardPat) String() string          { return "_" }
func (w *WildcardPat) Position() diag.Position { return w.Pos }
func (w *WildcardPat) patNode()                {}

// LiteralPat matches a value equal to the literal.
type LiteralPat struct {
	Lit *Literal
	Pos diag.Position
}

func (l *LiteralPat) String() string          { return l.Lit.String() }
func (l *LiteralPat) Position() diag.Position { return l.Pos }
func (l *LiteralPat) patNode()                {}

// BindingPat matches anything and binds it to Name in the clause body.
type BindingPat struct {
	Name string
	Pos  diag.Position
}

func (b *BindingPat) String() string          { return b.Name }
func (b *BindingPat) Position() diag.Position { return b.Pos }
func (b *BindingPat) patNode()                {}

// ListConsPat matches a non-empty list, binding head and tail: [h :: t].
type ListConsPat struct {
	Head Pattern
	Tail Pattern
	Pos  diag.Position
}

func (l *ListConsPat) String() string {
	return fmt.Sprintf("[%s :: %s]", l.Head.String(), l.Tail.String())
}
func (l *ListConsPat) Position() diag.Position { return l.Pos }
func (l *ListConsPat) patNode()                {}

// ListExactPat matches only lists of exactly this length: [], [a b c].
type ListExactPat struct {
	Elems []Pattern
	Pos   diag.Position
}

func (l *ListExactPat) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
func (l *ListExactPat) Position() diag.Position { return l.Pos }
func (l *ListExactPat) patNode()                {}

// MapPatEntry is one key of a map pattern.
type MapPatEntry struct {
	Key   string
	Value Pattern
}

// MapPat matches a map that has at least the named keys, each value
// matching the corresponding sub-pattern.
type MapPat struct {
	Entries []MapPatEntry
	Pos     diag.Position
}

func (m *MapPat) String() string {
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = fmt.Sprintf("%s: %s", e.Key, e.Value.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (m *MapPat) Position() diag.Position { return m.Pos }
func (m *MapPat) patNode()                {}

// TuplePat matches a fixed-size grouping: (a, b).
type TuplePat struct {
	Elems []Pattern
	Pos   diag.Position
}

func (t *TuplePat) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (t *TuplePat) Position() diag.Position { return t.Pos }
func (t *TuplePat) patNode()                {}

// Bindings returns the names bound by this pattern, in source order.
func Bindings(p Pattern) []string {
	var names []string
	collectBindings(p, &names)
	return names
}

func collectBindings(p Pattern, names *[]string) {
	switch pat := p.(type) {
	case *BindingPat:
		*names = append(*names, pat.Name)
	case *ListConsPat:
		collectBindings(pat.Head, names)
		collectBindings(pat.Tail, names)
	case *ListExactPat:
		for _, e := range pat.Elems {
			collectBindings(e, names)
		}
	case *MapPat:
		for _, e := range pat.Entries {
			collectBindings(e.Value, names)
		}
	case *TuplePat:
		for _, e := range pat.Elems {
			collectBindings(e, names)
		}
	}
}

// Irrefutable reports whether the pattern matches every value (wildcards
// and bare bindings, recursively for tuples of such).
func Irrefutable(p Pattern) bool {
	switch pat := p.(type) {
	case *WildcardPat, *BindingPat:
		return true
	case *TuplePat:
		for _, e := range pat.Elems {
			if !Irrefutable(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
