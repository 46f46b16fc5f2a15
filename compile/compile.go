// Package compile orchestrates the full pipeline for one script: import
// resolution, parsing, scope checking, decision-tree compilation, and bash
// generation.
//
// Stages run strictly in sequence over a unit; a stage that produces any
// fatal diagnostic halts the pipeline for that unit after accumulating
// everything the stage found. Imported hashlet units compile in parallel
// with each other, sharing only the resolver's read-only cache.
package compile

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/hash-lang/hash/codegen"
	"github.com/hash-lang/hash/core/ast"
	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/hashlet"
	"github.com/hash-lang/hash/match"
	"github.com/hash-lang/hash/parser"
	"github.com/hash-lang/hash/sema"
)

// Unit is one source file presented to the compiler.
type Unit struct {
	Name   string // display name for diagnostics and the script header
	Source []byte
}

// ReadUnit loads a unit from disk.
func ReadUnit(path string) (Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Unit{Name: path, Source: src}, nil
}

// Options configures a compilation.
type Options struct {
	// Resolver supplies imported hashlets. A nil resolver turns any import
	// into an ImportError.
	Resolver *hashlet.Resolver
}

// Result is a successful compilation. Warnings never block generation;
// they ride along with the script.
type Result struct {
	Script   string
	Warnings diag.List
}

// Compile runs the pipeline over one unit. On failure the Result is nil
// and the returned list carries every diagnostic accumulated up to and
// including the failing stage.
func Compile(ctx context.Context, unit Unit, opts Options) (*Result, diag.List) {
	var all diag.List

	// Parse. A unit with imports parses twice: once to learn what it
	// imports, then again with the resolved exports in scope so bare
	// imported names classify as applications rather than external
	// commands.
	prog, diags := parser.Parse(unit.Source)
	all = append(all, diags...)
	if all.HasErrors() {
		return nil, all
	}

	var imported []*compiledImport
	if len(prog.Imports) > 0 {
		imported = resolveImports(ctx, unit, prog.Imports, opts.Resolver, &all)
		if all.HasErrors() {
			return nil, all
		}

		var fns, vals []string
		for _, imp := range imported {
			fns = append(fns, imp.fns...)
			vals = append(vals, imp.vals...)
		}
		prog, diags = parser.Parse(unit.Source,
			parser.WithKnownNames(fns), parser.WithKnownValues(vals))
		all = append(all, diags...)
		if all.HasErrors() {
			return nil, all
		}
	}

	// Scope and mutability.
	var external []string
	for _, imp := range imported {
		external = append(external, imp.fns...)
		external = append(external, imp.vals...)
	}
	all = append(all, sema.Check(prog, string(unit.Source), sema.WithExternalNames(external))...)
	if all.HasErrors() {
		return nil, all
	}

	// Decision trees for the unit's own functions and switches.
	trees := newTrees()
	all = append(all, collectTrees(prog.Statements, string(unit.Source), trees)...)
	if all.HasErrors() {
		return nil, all
	}

	// Splice imported declarations ahead of the script body and merge
	// their trees so generation sees one flat unit. A hashlet reachable
	// through several imports splices once; resolved paths key the dedup.
	merged := &ast.Program{Args: prog.Args, Imports: prog.Imports}
	spliced := make(map[string]bool)
	for _, imp := range imported {
		for _, p := range imp.order {
			if spliced[p] {
				continue
			}
			spliced[p] = true
			u := imp.units[p]
			merged.Statements = append(merged.Statements, u.decls...)
			for fn, tree := range u.trees.Functions {
				trees.Functions[fn] = tree
			}
		}
	}
	merged.Statements = append(merged.Statements, prog.Statements...)

	sum := blake2b.Sum256(unit.Source)
	script, diags := codegen.Generate(merged, trees,
		codegen.WithHeader(fmt.Sprintf("generated by hash from %s (blake2b:%s)", unit.Name, hex.EncodeToString(sum[:8]))))
	all = append(all, diags...)
	if all.HasErrors() {
		return nil, all
	}

	return &Result{Script: script, Warnings: all.Warnings()}, all
}

// compiledImport is one import statement resolved all the way down: every
// hashlet unit it reaches, keyed by resolved path, dependencies first.
type compiledImport struct {
	order []string
	units map[string]*importedUnit
	fns   []string
	vals  []string
}

// importedUnit is one hashlet reduced to what an importer consumes: its
// fn/val declarations, their names, and its decision trees.
type importedUnit struct {
	fns   []string
	vals  []string
	decls []ast.Statement
	trees *codegen.Trees
}

// resolveImports fetches and compiles every import concurrently. Failures
// surface as ImportError diagnostics at the import's position.
func resolveImports(ctx context.Context, unit Unit, imports []*ast.Import, resolver *hashlet.Resolver, all *diag.List) []*compiledImport {
	results := make([]*compiledImport, len(imports))
	errs := make([]diag.List, len(imports))

	var wg sync.WaitGroup
	for i, imp := range imports {
		if resolver == nil {
			*all = append(*all, diag.Diagnostic{
				Kind:    diag.ImportError,
				Message: fmt.Sprintf("cannot import '%s': no hashlet resolver configured", imp.Name),
				Pos:     imp.Pos,
				Source:  string(unit.Source),
			})
			continue
		}
		wg.Add(1)
		go func(i int, imp *ast.Import) {
			defer wg.Done()
			results[i], errs[i] = loadImport(ctx, unit.Source, imp, resolver, map[string]bool{})
		}(i, imp)
	}
	wg.Wait()

	var ok []*compiledImport
	for i := range imports {
		*all = append(*all, errs[i]...)
		if results[i] == nil || errs[i].HasErrors() {
			continue
		}
		ok = append(ok, results[i])
	}
	return ok
}

// loadImport resolves one hashlet, compiles it, and folds in its own
// imports depth-first. importer is the source text holding the import
// statement; chain guards against import cycles.
func loadImport(ctx context.Context, importer []byte, imp *ast.Import, resolver *hashlet.Resolver, chain map[string]bool) (*compiledImport, diag.List) {
	importErr := func(format string, args ...any) diag.List {
		return diag.List{{
			Kind:    diag.ImportError,
			Message: fmt.Sprintf(format, args...),
			Pos:     imp.Pos,
			Source:  string(importer),
		}}
	}

	key := imp.Name + "@" + imp.Revision
	if chain[key] {
		return nil, importErr("import cycle through '%s'", key)
	}
	chain[key] = true
	defer delete(chain, key)

	path, err := resolver.Resolve(ctx, imp.Name, imp.Revision)
	if err != nil {
		return nil, importErr("cannot import '%s': %v", imp.Name, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, importErr("cannot import '%s': %v", imp.Name, err)
	}

	// The first parse only discovers imports. Parse errors are judged on
	// the seeded re-parse below: without the nested exports in scope, bare
	// imported names misparse as external commands.
	pre, preDiags := parser.Parse(src)

	out := &compiledImport{units: make(map[string]*importedUnit)}
	for _, sub := range pre.Imports {
		nested, nestedDiags := loadImport(ctx, src, sub, resolver, chain)
		if nestedDiags.HasErrors() {
			return nil, nestedDiags
		}
		for _, p := range nested.order {
			if _, dup := out.units[p]; dup {
				continue
			}
			out.units[p] = nested.units[p]
			out.order = append(out.order, p)
		}
		out.fns = append(out.fns, nested.fns...)
		out.vals = append(out.vals, nested.vals...)
	}

	// Re-parse and check with the nested exports in scope, exactly as the
	// importing script is handled.
	prog, diags := pre, preDiags
	if len(pre.Imports) > 0 {
		prog, diags = parser.Parse(src,
			parser.WithKnownNames(out.fns), parser.WithKnownValues(out.vals))
	}
	if diags.HasErrors() {
		return nil, append(importErr("hashlet '%s' does not compile", imp.Name), diags...)
	}
	external := append(append([]string{}, out.fns...), out.vals...)
	if semaDiags := sema.Check(prog, string(src), sema.WithExternalNames(external)); semaDiags.HasErrors() {
		return nil, append(importErr("hashlet '%s' does not compile", imp.Name), semaDiags...)
	}

	// Only fn and val declarations cross the import boundary; a hashlet's
	// other top-level statements never run in the importer.
	u := &importedUnit{trees: newTrees()}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.FunctionDecl:
			tree, treeDiags := match.Compile(s.Name, s.Clauses, string(src))
			if treeDiags.HasErrors() {
				return nil, append(importErr("hashlet '%s' does not compile", imp.Name), treeDiags...)
			}
			u.trees.Functions[s] = tree
			u.fns = append(u.fns, s.Name)
			u.decls = append(u.decls, s)
		case *ast.ValDecl:
			u.vals = append(u.vals, s.Name)
			u.decls = append(u.decls, s)
		}
	}
	if _, dup := out.units[path]; !dup {
		out.units[path] = u
		out.order = append(out.order, path)
	}
	out.fns = append(out.fns, u.fns...)
	out.vals = append(out.vals, u.vals...)
	return out, nil
}

func newTrees() *codegen.Trees {
	return &codegen.Trees{
		Functions: make(map[*ast.FunctionDecl]*match.Tree),
		Switches:  make(map[*ast.Switch]*match.Tree),
	}
}

// collectTrees compiles a decision tree for every function and switch in a
// statement list, recursing into nested blocks.
func collectTrees(stmts []ast.Statement, source string, trees *codegen.Trees) diag.List {
	var all diag.List
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.FunctionDecl:
			tree, diags := match.Compile(s.Name, s.Clauses, source)
			all = append(all, diags...)
			trees.Functions[s] = tree
			for _, clause := range s.Clauses {
				all = append(all, collectTrees(clause.Body, source, trees)...)
			}
		case *ast.Switch:
			clauses := make([]ast.Clause, len(s.Clauses))
			for i, c := range s.Clauses {
				clauses[i] = ast.Clause{Patterns: []ast.Pattern{c.Pattern}, Expr: c.Expr, Body: c.Body, Pos: c.Pos}
				all = append(all, collectTrees(c.Body, source, trees)...)
			}
			tree, diags := match.Compile("switch", clauses, source)
			all = append(all, diags...)
			trees.Switches[s] = tree
		case *ast.If:
			all = append(all, collectTrees(s.Then, source, trees)...)
			all = append(all, collectTrees(s.Else, source, trees)...)
		case *ast.While:
			all = append(all, collectTrees(s.Body, source, trees)...)
		case *ast.For:
			all = append(all, collectTrees(s.Body, source, trees)...)
		}
	}
	return all
}
