// Package codegen lowers a checked program and its decision trees to a
// self-contained bash script.
//
// Every generated script opens with the runtime prelude, then the argument
// preamble, then one shell function per source function, then the
// translated top-level statements. Values follow the encode package's
// scheme: primitives travel as plain strings, containers and closures as
// tagged encodings, so the only state a pipeline stage needs is one string.
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hash-lang/hash/core/ast"
	"github.com/hash-lang/hash/core/builtins"
	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/core/invariant"
	"github.com/hash-lang/hash/encode"
	"github.com/hash-lang/hash/match"
)

// Trees carries the compiled decision trees the generator dispatches with.
type Trees struct {
	Functions map[*ast.FunctionDecl]*match.Tree
	Switches  map[*ast.Switch]*match.Tree
}

// Opt configures a generation run.
type Opt func(*generator)

// WithHeader adds comment lines (without the leading #) under the shebang.
func WithHeader(lines ...string) Opt {
	return func(g *generator) {
		g.header = append(g.header, lines...)
	}
}

// Generate renders the program to bash source. The only fatal failure is an
// UnsupportedConstruct, which a complete front end should have caught
// earlier.
func Generate(prog *ast.Program, trees *Trees, opts ...Opt) (string, diag.List) {
	invariant.NotNil(prog, "program")
	invariant.NotNil(trees, "decision trees")

	g := &generator{
		trees:   trees,
		fnNames: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*ast.FunctionDecl); ok {
			g.fnNames[fn.Name] = true
		}
	}

	g.cur = &g.body
	for _, stmt := range prog.Statements {
		g.genStmt(stmt)
	}

	var out strings.Builder
	out.WriteString("#!/usr/bin/env bash\n")
	for _, h := range g.header {
		out.WriteString("# " + h + "\n")
	}
	out.WriteString("\n")
	out.WriteString(prelude)
	out.WriteString("\n")
	if len(prog.Args) > 0 {
		g.genArgPreamble(&out, prog.Args)
	}
	out.WriteString(g.fns.String())
	out.WriteString(g.lambdas.String())
	out.WriteString(g.body.String())
	return out.String(), g.diags
}

type generator struct {
	trees   *Trees
	header  []string
	fnNames map[string]bool
	diags   diag.List

	fns     strings.Builder // user function definitions
	lambdas strings.Builder // generated lambda procedures
	body    strings.Builder // top-level statements

	cur     *strings.Builder
	indent  int
	inFn    bool
	tmpN    int
	lambdaN int
	subjN   int
	elemsN  int
}

func (g *generator) report(kind diag.Kind, pos diag.Position, msg string) {
	g.diags = append(g.diags, diag.Diagnostic{Kind: kind, Message: msg, Pos: pos})
}

func (g *generator) line(format string, args ...any) {
	g.cur.WriteString(strings.Repeat("  ", g.indent))
	fmt.Fprintf(g.cur, format, args...)
	g.cur.WriteString("\n")
}

// tmp declares a fresh temporary, local inside functions so recursion stays
// safe.
func (g *generator) tmp() string {
	g.tmpN++
	return fmt.Sprintf("__t%d", g.tmpN)
}

func (g *generator) assign(name, word string) {
	if g.inFn {
		g.line(`local %s="%s"`, name, word)
	} else {
		g.line(`%s="%s"`, name, word)
	}
}

// escapeBash makes literal text safe inside a double-quoted bash string.
func escapeBash(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// runtimeName maps a built-in to its prelude procedure.
func runtimeName(name string) string { return "__hash_" + name }

// --- Statements ---

func (g *generator) genStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ValDecl:
		g.assign(s.Name, g.genExpr(s.Value))

	case *ast.VarDecl:
		if s.Value == nil {
			g.assign(s.Name, "")
			return
		}
		g.assign(s.Name, g.genExpr(s.Value))

	case *ast.Assignment:
		// Assignment never declares, so no local.
		g.line(`%s="%s"`, s.Name, g.genExpr(s.Value))

	case *ast.FunctionDecl:
		g.genFunction(s)

	case *ast.If:
		g.genIf(s)

	case *ast.While:
		cond := g.inlineCond(s.Condition)
		g.line("while %s; do", cond)
		g.indent++
		g.genBlock(s.Body)
		g.indent--
		g.line("done")

	case *ast.For:
		g.genFor(s)

	case *ast.Switch:
		g.genSwitch(s)

	case *ast.ExprStmt:
		g.genExprStmt(s.Expr)
	}
}

func (g *generator) genBlock(stmts []ast.Statement) {
	if len(stmts) == 0 {
		g.line(":")
		return
	}
	for _, s := range stmts {
		g.genStmt(s)
	}
}

func (g *generator) genIf(s *ast.If) {
	g.line("if %s; then", g.inlineCond(s.Condition))
	g.indent++
	g.genBlock(s.Then)
	g.indent--
	if len(s.Else) > 0 {
		g.line("else")
		g.indent++
		g.genBlock(s.Else)
		g.indent--
	}
	g.line("fi")
}

func (g *generator) genFor(s *ast.For) {
	src := g.genExpr(s.Source)
	g.elemsN++
	elems := fmt.Sprintf("__elems%d", g.elemsN)
	g.line(`__hash_fields "%s"`, src)
	g.line(`%s=(${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"})`, elems)
	g.line(`for %s in ${%s[@]+"${%s[@]}"}; do`, s.Var, elems, elems)
	g.indent++
	g.genBlock(s.Body)
	g.indent--
	g.line("done")
}

// genExprStmt runs an expression for its effect. External commands keep
// their streams; the status variable records their exit code.
func (g *generator) genExprStmt(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.ExternalCommand, *ast.Redirect:
		g.line("%s", g.genCmd(expr))
		g.line("__HASH_STATUS=$?")

	case *ast.Pipe:
		if cmd, ok := g.bytePipe(e); ok {
			g.line("%s", cmd)
			g.line("__HASH_STATUS=$?")
			return
		}
		g.genExpr(e) // value pipe: run for __hash_ret

	case *ast.Call:
		g.genCallStmt(e)

	default:
		g.line(`__hash_ret="%s"`, g.genExpr(expr))
	}
}

// genCallStmt emits a call at statement position, leaving the result in
// __hash_ret.
func (g *generator) genCallStmt(call *ast.Call) {
	words := make([]string, len(call.Args))
	for i, a := range call.Args {
		words[i] = g.genExpr(a)
	}
	g.emitCall(call.Name, words)
}

func (g *generator) emitCall(name string, words []string) {
	target := name
	if builtins.IsFunction(name) && !g.fnNames[name] {
		target = runtimeName(name)
	}
	var b strings.Builder
	b.WriteString(target)
	for _, w := range words {
		b.WriteString(` "` + w + `"`)
	}
	g.line("%s", b.String())
}

// --- Commands: external invocations, pipes, redirects ---

// genCmd renders command-position expressions that run as real processes.
func (g *generator) genCmd(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.ExternalCommand:
		parts := []string{e.Name}
		for _, a := range e.Args {
			parts = append(parts, `"`+g.genExpr(a)+`"`)
		}
		return strings.Join(parts, " ")

	case *ast.Pipe:
		if cmd, ok := g.bytePipe(e); ok {
			return cmd
		}
		// A value pipeline in byte context prints its result.
		return fmt.Sprintf(`printf '%%s\n' "%s"`, g.genExpr(e))

	case *ast.Redirect:
		return g.genCmd(e.Cmd) + " " + redirectOp(e) + ` "` + g.genExpr(e.Target) + `"`
	}
	// A plain value in byte context becomes a producer.
	return fmt.Sprintf(`printf '%%s\n' "%s"`, g.genExpr(expr))
}

func redirectOp(r *ast.Redirect) string {
	var stream string
	switch r.Stream {
	case "err":
		stream = "2"
	case "all":
		stream = "&"
	default:
		stream = "1"
	}
	if r.Append {
		if stream == "&" {
			return "&>>"
		}
		return stream + ">>"
	}
	if stream == "&" {
		return "&>"
	}
	return stream + ">"
}

// bytePipe renders a pipeline as real concurrent processes when every stage
// is an external command; a single function stage makes it a value pipe
// handled by genExpr.
func (g *generator) bytePipe(p *ast.Pipe) (string, bool) {
	left, ok := g.byteStage(p.Left)
	if !ok {
		return "", false
	}
	right, ok := g.byteStage(p.Right)
	if !ok {
		return "", false
	}
	return left + " | " + right, true
}

func (g *generator) byteStage(e ast.Expression) (string, bool) {
	switch s := e.(type) {
	case *ast.ExternalCommand:
		return g.genCmd(s), true
	case *ast.Redirect:
		if _, ok := s.Cmd.(*ast.ExternalCommand); ok {
			return g.genCmd(s), true
		}
	case *ast.Pipe:
		return g.bytePipe(s)
	}
	return "", false
}

// --- Conditions ---

// genCond renders an expression as a command whose exit status is its
// truth.
func (g *generator) genCond(e ast.Expression) string {
	switch c := e.(type) {
	case *ast.Binary:
		switch c.Op {
		case "&&", "||":
			return fmt.Sprintf("{ %s %s %s; }", g.genCond(c.Left), c.Op, g.genCond(c.Right))
		case "==", "!=", "<", "<=", ">", ">=":
			return fmt.Sprintf(`__hash_cmp "%s" '%s' "%s"`, g.genExpr(c.Left), c.Op, g.genExpr(c.Right))
		}

	case *ast.Unary:
		if c.Op == "!" {
			return "! " + g.genCond(c.Operand)
		}

	case *ast.Call:
		if c.Predicate {
			words := make([]string, len(c.Args))
			for i, a := range c.Args {
				words[i] = `"` + g.genExpr(a) + `"`
			}
			target := c.Name
			if builtins.IsFunction(c.Name) && !g.fnNames[c.Name] {
				target = runtimeName(c.Name)
			}
			return strings.TrimSpace(target + " " + strings.Join(words, " "))
		}
	}
	return fmt.Sprintf(`[ "%s" = true ]`, g.genExpr(e))
}

// inlineCond renders a condition including any statements its
// subexpressions need, as one command list. while re-evaluates the whole
// list each iteration.
func (g *generator) inlineCond(e ast.Expression) string {
	saved := g.cur
	savedIndent := g.indent
	var buf strings.Builder
	g.cur = &buf
	g.indent = 0
	cond := g.genCond(e)
	g.cur = saved
	g.indent = savedIndent

	pre := strings.TrimSpace(buf.String())
	if pre == "" {
		return cond
	}
	lines := strings.Split(pre, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "; ") + "; " + cond
}

// --- Expressions ---

// genExpr renders an expression as a fragment valid inside a double-quoted
// bash word, emitting any prerequisite statements first.
func (g *generator) genExpr(e ast.Expression) string {
	switch x := e.(type) {
	case *ast.Literal:
		return g.genLiteral(x)

	case *ast.Variable:
		if x.Name == "status" {
			return "${__HASH_STATUS}"
		}
		if x.Name == "_" {
			// bash rewrites $_ after every command; the anonymous
			// parameter lives under a reserved name instead.
			return "${__hash_it}"
		}
		if g.fnNames[x.Name] {
			return "F;" + x.Name
		}
		if builtins.IsFunction(x.Name) {
			return "F;" + runtimeName(x.Name)
		}
		return "${" + x.Name + "}"

	case *ast.Call:
		return g.genCallExpr(x)

	case *ast.Binary:
		return g.genBinary(x)

	case *ast.Unary:
		return g.boolTemp(g.genCond(x))

	case *ast.ListLit:
		// Constant lists encode at compile time; the runtime helper is only
		// for elements known at run time. Both sides share one scheme.
		if vals, ok := staticElems(x.Elems); ok {
			return escapeBash(encode.EncodeList(vals))
		}
		words := make([]string, len(x.Elems))
		for i, el := range x.Elems {
			words[i] = `"` + g.genExpr(el) + `"`
		}
		return "$(__hash_list " + strings.Join(words, " ") + ")"

	case *ast.MapLit:
		if keys, vals, ok := staticEntries(x.Entries); ok {
			return escapeBash(encode.EncodeMap(keys, vals))
		}
		var words []string
		for _, entry := range x.Entries {
			words = append(words, `"`+g.genExpr(entry.Key)+`"`, `"`+g.genExpr(entry.Value)+`"`)
		}
		return "$(__hash_map_new " + strings.Join(words, " ") + ")"

	case *ast.Range:
		step := ""
		if x.Step != nil {
			step = g.genExpr(x.Step)
		}
		return fmt.Sprintf(`$(__hash_range "%s" "%s" "%s")`, g.genExpr(x.Start), step, g.genExpr(x.End))

	case *ast.Slice:
		return fmt.Sprintf(`$(__hash_slice "%s" "%s" "%s")`,
			g.genExpr(x.Target), g.genExpr(x.Start), g.genExpr(x.End))

	case *ast.Comprehension:
		return g.genComprehension(x)

	case *ast.Lambda:
		return g.genLambda(x)

	case *ast.Pipe:
		return g.genValuePipe(x)

	case *ast.Redirect:
		g.line("%s", g.genCmd(x))
		g.line("__HASH_STATUS=$?")
		return ""

	case *ast.ExternalCommand:
		// A command in value position yields its output.
		t := g.tmp()
		g.line(`%s=$(%s)`, maybeLocal(g, t), g.genCmd(x))
		g.line("__HASH_STATUS=$?")
		return "${" + t + "}"
	}

	g.report(diag.UnsupportedConstruct, e.Position(),
		fmt.Sprintf("cannot generate code for %T", e))
	return ""
}

// maybeLocal prefixes a declaration with local inside functions.
func maybeLocal(g *generator, name string) string {
	if g.inFn {
		return "local " + name
	}
	return name
}

func (g *generator) genLiteral(l *ast.Literal) string {
	switch l.Kind {
	case ast.StringLit:
		var b strings.Builder
		for _, part := range l.Parts {
			if part.Expr != nil {
				b.WriteString(g.genExpr(part.Expr))
			} else {
				b.WriteString(escapeBash(part.Lit))
			}
		}
		return b.String()
	default:
		return escapeBash(l.Value)
	}
}

func (g *generator) genBinary(b *ast.Binary) string {
	switch b.Op {
	case "+", "-", "*", "/", "%":
		return fmt.Sprintf(`$(__hash_arith "%s" '%s' "%s")`,
			g.genExpr(b.Left), b.Op, g.genExpr(b.Right))
	}
	// Comparisons and logic in value position materialize a boolean.
	return g.boolTemp(g.genCond(b))
}

// boolTemp assigns true or false to a fresh temporary depending on cond.
// The declaration sits outside the branch so function scope covers both arms.
func (g *generator) boolTemp(cond string) string {
	t := g.tmp()
	if g.inFn {
		g.line("local %s", t)
	}
	g.line("if %s; then", cond)
	g.line("  %s=true", t)
	g.line("else")
	g.line("  %s=false", t)
	g.line("fi")
	return "${" + t + "}"
}

func (g *generator) genCallExpr(call *ast.Call) string {
	if call.Predicate {
		return g.boolTemp(g.genCond(call))
	}

	g.genCallStmt(call)
	t := g.tmp()
	g.assign(t, "${__hash_ret}")
	return "${" + t + "}"
}

// genValuePipe applies the pipeline rule: a value piped into a function
// becomes its final argument; piping into an external command feeds bytes.
func (g *generator) genValuePipe(p *ast.Pipe) string {
	if cmd, ok := g.bytePipe(p); ok {
		t := g.tmp()
		g.line(`%s=$(%s)`, maybeLocal(g, t), cmd)
		g.line("__HASH_STATUS=$?")
		return "${" + t + "}"
	}

	left := g.stageWord(p.Left)
	switch right := p.Right.(type) {
	case *ast.Call:
		words := make([]string, len(right.Args), len(right.Args)+1)
		for i, a := range right.Args {
			words[i] = g.genExpr(a)
		}
		words = append(words, left)
		g.emitCall(right.Name, words)
		t := g.tmp()
		g.assign(t, "${__hash_ret}")
		return "${" + t + "}"

	case *ast.Variable:
		// Piping into a function-valued binding applies it.
		g.line(`__hash_apply "%s" "%s"`, g.genExpr(right), left)
		t := g.tmp()
		g.assign(t, "${__hash_ret}")
		return "${" + t + "}"

	case *ast.ExternalCommand:
		t := g.tmp()
		g.line(`%s=$(printf '%%s\n' "%s" | %s)`, maybeLocal(g, t), left, g.genCmd(right))
		g.line("__HASH_STATUS=$?")
		return "${" + t + "}"
	}

	g.report(diag.UnsupportedConstruct, p.Pos, "cannot pipe into this expression")
	return ""
}

// stageWord renders a pipeline stage as a value word, capturing external
// output when the stage is a real process.
func (g *generator) stageWord(e ast.Expression) string {
	switch s := e.(type) {
	case *ast.ExternalCommand:
		t := g.tmp()
		g.line(`%s=$(%s)`, maybeLocal(g, t), g.genCmd(s))
		g.line("__HASH_STATUS=$?")
		return "${" + t + "}"
	case *ast.Pipe:
		return g.genValuePipe(s)
	}
	return g.genExpr(e)
}

func (g *generator) genComprehension(c *ast.Comprehension) string {
	src := g.genExpr(c.Source)
	g.elemsN++
	elems := fmt.Sprintf("__elems%d", g.elemsN)
	acc := fmt.Sprintf("__acc%d", g.elemsN)

	g.line(`__hash_fields "%s"`, src)
	g.line(`%s=(${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"})`, elems)
	g.line(`%s=()`, acc)
	g.line(`for %s in ${%s[@]+"${%s[@]}"}; do`, c.Var, elems, elems)
	g.indent++
	if c.Cond != nil {
		g.line("if %s; then", g.inlineCond(c.Cond))
		g.indent++
	}
	body := g.genExpr(c.Body)
	g.line(`%s+=("%s")`, acc, body)
	if c.Cond != nil {
		g.indent--
		g.line("fi")
	}
	g.indent--
	g.line("done")

	t := g.tmp()
	g.line(`%s=$(__hash_list ${%s[@]+"${%s[@]}"})`, maybeLocal(g, t), acc, acc)
	return "${" + t + "}"
}

// genLambda hoists the body into a named procedure whose leading arguments
// replay the captured environment, then yields the closure record.
func (g *generator) genLambda(l *ast.Lambda) string {
	g.lambdaN++
	proc := fmt.Sprintf("__hash_lambda_%d", g.lambdaN)
	captures := g.freeVars(l)

	saved := g.cur
	savedIndent := g.indent
	savedInFn := g.inFn
	g.cur = &g.lambdas
	g.indent = 0
	g.inFn = true

	g.line("%s() {", proc)
	g.indent++
	arg := 1
	for _, name := range captures {
		g.line(`local %s="$%d"`, lambdaVar(name), arg)
		arg++
	}
	for _, param := range l.Params {
		g.line(`local %s="$%d"`, lambdaVar(param), arg)
		arg++
	}
	g.line(`__hash_ret="%s"`, g.genExpr(l.Body))
	g.indent--
	g.line("}")

	g.cur = saved
	g.indent = savedIndent
	g.inFn = savedInFn

	if len(captures) == 0 {
		return "F;" + proc
	}
	words := make([]string, len(captures))
	for i, name := range captures {
		words[i] = `"${` + lambdaVar(name) + `}"`
	}
	return fmt.Sprintf(`$(__hash_closure %s %s)`, proc, strings.Join(words, " "))
}

// lambdaVar maps the anonymous parameter to a name the shell leaves alone.
func lambdaVar(name string) string {
	if name == "_" {
		return "__hash_it"
	}
	return name
}

// freeVars lists the variables a lambda body reads from its defining
// environment, in first-use order.
func (g *generator) freeVars(l *ast.Lambda) []string {
	bound := make(map[string]bool)
	for _, p := range l.Params {
		bound[p] = true
	}
	seen := make(map[string]bool)
	var free []string

	var walk func(e ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.Variable:
			name := x.Name
			if bound[name] || seen[name] || g.fnNames[name] ||
				builtins.IsFunction(name) || builtins.IsVariable(name) {
				return
			}
			seen[name] = true
			free = append(free, name)
		case *ast.Literal:
			for _, p := range x.Parts {
				if p.Expr != nil {
					walk(p.Expr)
				}
			}
		case *ast.Call:
			for _, a := range x.Args {
				walk(a)
			}
		case *ast.Binary:
			walk(x.Left)
			walk(x.Right)
		case *ast.Unary:
			walk(x.Operand)
		case *ast.ListLit:
			for _, el := range x.Elems {
				walk(el)
			}
		case *ast.MapLit:
			for _, entry := range x.Entries {
				walk(entry.Key)
				walk(entry.Value)
			}
		case *ast.Range:
			walk(x.Start)
			if x.Step != nil {
				walk(x.Step)
			}
			walk(x.End)
		case *ast.Slice:
			walk(x.Target)
			walk(x.Start)
			walk(x.End)
		case *ast.Pipe:
			walk(x.Left)
			walk(x.Right)
		case *ast.Lambda:
			inner := g.freeVars(x)
			for _, name := range inner {
				if !bound[name] && !seen[name] {
					seen[name] = true
					free = append(free, name)
				}
			}
		case *ast.Comprehension:
			walk(x.Source)
			wasBound := bound[x.Var]
			bound[x.Var] = true
			walk(x.Body)
			if x.Cond != nil {
				walk(x.Cond)
			}
			bound[x.Var] = wasBound
		}
	}
	walk(l.Body)
	return free
}

// --- Functions and dispatch ---

func (g *generator) genFunction(fn *ast.FunctionDecl) {
	tree := g.trees.Functions[fn]
	if tree == nil {
		g.report(diag.UnsupportedConstruct, fn.Pos,
			fmt.Sprintf("no decision tree for function '%s'", fn.Name))
		return
	}

	saved := g.cur
	savedIndent := g.indent
	savedInFn := g.inFn
	g.cur = &g.fns
	g.indent = 0
	g.inFn = true

	g.line("%s() {", fn.Name)
	g.indent++
	args := make([]string, tree.Arity)
	for i := 0; i < tree.Arity; i++ {
		args[i] = fmt.Sprintf("__a%d", i+1)
		g.line(`local %s="$%d"`, args[i], i+1)
	}

	g.genDispatch(tree, args, fn.Name, func(ci int) {
		clause := fn.Clauses[ci]
		if clause.Expr != nil {
			g.line(`__hash_ret="%s"`, g.genExpr(clause.Expr))
			return
		}
		g.genBlock(clause.Body)
	})

	g.indent--
	g.line("}")

	g.cur = saved
	g.indent = savedIndent
	g.inFn = savedInFn
}

func (g *generator) genSwitch(s *ast.Switch) {
	tree := g.trees.Switches[s]
	if tree == nil {
		g.report(diag.UnsupportedConstruct, s.Pos, "no decision tree for switch")
		return
	}

	g.subjN++
	subj := fmt.Sprintf("__subj%d", g.subjN)
	g.assign(subj, g.genExpr(s.Subject))

	g.genDispatch(tree, []string{subj}, "switch", func(ci int) {
		clause := s.Clauses[ci]
		if clause.Expr != nil {
			g.line(`__hash_ret="%s"`, g.genExpr(clause.Expr))
			return
		}
		g.genBlock(clause.Body)
	})
}

// genDispatch lowers a decision tree to an if/elif/else ladder. Each
// clause's chain of tests joins with &&; binding extraction runs only after
// the whole chain passes. The final else is the runtime no-match failure,
// unreachable for exhaustive matches.
func (g *generator) genDispatch(tree *match.Tree, args []string, what string, body func(ci int)) {
	type clausePlan struct {
		conds []match.Node
		leaf  match.Node
	}

	var plans []clausePlan
	entry := tree.Root
	for entry >= 0 {
		var plan clausePlan
		node := tree.Nodes[entry]
		for node.Kind == match.NodeTest {
			plan.conds = append(plan.conds, node)
			node = tree.Nodes[node.Pass]
		}
		if node.Kind == match.NodeFail {
			break
		}
		plan.leaf = node
		plans = append(plans, plan)
		if len(plan.conds) == 0 {
			break // irrefutable clause; nothing follows
		}
		entry = plan.conds[0].Fail
	}

	opened := false
	for i, plan := range plans {
		if len(plan.conds) == 0 {
			if opened {
				g.line("else")
				g.indent++
			}
			g.emitLeaf(plan.leaf, args, body)
			if opened {
				g.indent--
				g.line("fi")
			}
			return
		}

		probes := make([]string, len(plan.conds))
		for j, c := range plan.conds {
			probes[j] = g.probe(c, args)
		}
		if i == 0 {
			g.line("if %s; then", strings.Join(probes, " && "))
			opened = true
		} else {
			g.line("elif %s; then", strings.Join(probes, " && "))
		}
		g.indent++
		g.emitLeaf(plan.leaf, args, body)
		g.indent--
	}

	if opened {
		g.line("else")
		g.line(`  __hash_nomatch "%s"`, what)
		g.line("fi")
	} else {
		g.line(`__hash_nomatch "%s"`, what)
	}
}

func (g *generator) emitLeaf(leaf match.Node, args []string, body func(ci int)) {
	for _, b := range leaf.Bindings {
		g.line(`%s="%s"`, maybeLocal(g, b.Name), g.pathWord(b.Path, args))
	}
	body(leaf.Clause)
}

// probe renders one decision-tree test as a shell condition.
func (g *generator) probe(n match.Node, args []string) string {
	at := g.pathWord(n.Path, args)
	switch n.Test.Kind {
	case match.TestLiteral:
		return fmt.Sprintf(`[ "%s" = "%s" ]`, at, escapeBash(litRaw(n.Test.Lit)))
	case match.TestEmpty:
		return fmt.Sprintf(`[ "$(__hash_count "%s")" -eq 0 ]`, at)
	case match.TestCons:
		return fmt.Sprintf(`[ "$(__hash_count "%s")" -ge 1 ]`, at)
	case match.TestLen:
		return fmt.Sprintf(`[ "$(__hash_count "%s")" -eq %d ]`, at, n.Test.Len)
	case match.TestHasKey:
		return fmt.Sprintf(`__hash_has "%s" "%s"`, at, escapeBash(n.Test.Key))
	}
	invariant.Invariant(false, "unknown test kind %d", n.Test.Kind)
	return ""
}

// pathWord renders the access path to a sub-value of the dispatch
// arguments.
func (g *generator) pathWord(p match.Path, args []string) string {
	invariant.Precondition(len(p) > 0 && p[0].Kind == match.StepArg, "path must start at an argument")
	root := "${" + args[p[0].Index] + "}"
	if len(p) == 1 {
		return root
	}
	steps := make([]string, 0, len(p)-1)
	for _, s := range p[1:] {
		switch s.Kind {
		case match.StepHead:
			steps = append(steps, "h")
		case match.StepTail:
			steps = append(steps, "t")
		case match.StepIndex:
			steps = append(steps, "i:"+strconv.Itoa(s.Index))
		case match.StepKey:
			steps = append(steps, "k:"+s.Key)
		}
	}
	return fmt.Sprintf(`$(__hash_at "%s" %s)`, root, strings.Join(steps, " "))
}

// staticText yields an expression's runtime text when it is a constant
// literal with no interpolation.
func staticText(e ast.Expression) (string, bool) {
	l, ok := e.(*ast.Literal)
	if !ok {
		return "", false
	}
	if l.Kind == ast.StringLit {
		if l.Interpolated() {
			return "", false
		}
		var b strings.Builder
		for _, p := range l.Parts {
			b.WriteString(p.Lit)
		}
		return b.String(), true
	}
	return l.Value, true
}

func staticElems(elems []ast.Expression) ([]encode.Value, bool) {
	vals := make([]encode.Value, len(elems))
	for i, el := range elems {
		text, ok := staticText(el)
		if !ok {
			return nil, false
		}
		vals[i] = encode.Text(text)
	}
	return vals, true
}

func staticEntries(entries []ast.MapEntry) ([]string, []encode.Value, bool) {
	keys := make([]string, len(entries))
	vals := make([]encode.Value, len(entries))
	for i, entry := range entries {
		key, ok := staticText(entry.Key)
		if !ok {
			return nil, nil, false
		}
		val, ok := staticText(entry.Value)
		if !ok {
			return nil, nil, false
		}
		keys[i] = key
		vals[i] = encode.Text(val)
	}
	return keys, vals, true
}

// litRaw yields the comparable runtime text of a pattern literal.
func litRaw(l *ast.Literal) string {
	if l.Kind == ast.StringLit {
		var b strings.Builder
		for _, p := range l.Parts {
			b.WriteString(p.Lit)
		}
		return b.String()
	}
	return l.Value
}
