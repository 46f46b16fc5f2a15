// Package parser builds the hash AST from the lexer's token stream.
//
// The grammar is indentation-sensitive and expression-oriented. The core
// ambiguity - whether a bare word sequence is a function application or an
// external command - is resolved deterministically against the visible
// symbol chain: a leading name known in scope is an application, anything
// else is an external command whose arguments keep unparsed shell word
// semantics. A user-defined function always wins over an external program
// of the same name; the decision is made once, statically.
package parser

import (
	"fmt"
	"strings"

	"github.com/hash-lang/hash/core/ast"
	"github.com/hash-lang/hash/core/builtins"
	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/core/invariant"
	"github.com/hash-lang/hash/lexer"
)

// Opt represents a parser configuration option
type Opt func(*config)

type config struct {
	knownNames  []string
	knownValues []string
}

// WithKnownNames seeds the parser's name-resolution chain with externally
// declared function names, typically the exports of resolved hashlet
// imports.
func WithKnownNames(names []string) Opt {
	return func(c *config) {
		c.knownNames = append(c.knownNames, names...)
	}
}

// WithKnownValues seeds externally declared constant names, so a bare use
// reads as a value instead of an external command.
func WithKnownValues(names []string) Opt {
	return func(c *config) {
		c.knownValues = append(c.knownValues, names...)
	}
}

// Parse lexes and parses source into a Program. The returned diagnostics
// include lex errors; callers must treat any fatal diagnostic as ending the
// pipeline for this unit.
func Parse(source []byte, opts ...Opt) (*ast.Program, diag.List) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	lex := lexer.New(source)
	tokens, diags := lex.Tokens()

	p := &parser{
		tokens: tokens,
		source: string(source),
		diags:  diags,
		scope:  newNameScope(nil),
	}
	for name := range builtins.Functions {
		p.scope.declareFunc(name)
	}
	for name := range builtins.Variables {
		p.scope.declare(name)
	}
	for _, name := range cfg.knownNames {
		p.scope.declareFunc(name)
	}
	for _, name := range cfg.knownValues {
		p.scope.declare(name)
	}

	prog := p.parseProgram()
	return prog, p.diags
}

type nameKind int

const (
	valueName nameKind = iota
	funcName
)

// nameScope tracks names visible at parse time for the application versus
// external-command decision. Full scope checking happens in sema.
type nameScope struct {
	parent *nameScope
	names  map[string]nameKind
}

func newNameScope(parent *nameScope) *nameScope {
	return &nameScope{parent: parent, names: make(map[string]nameKind)}
}

func (s *nameScope) declare(name string)     { s.names[name] = valueName }
func (s *nameScope) declareFunc(name string) { s.names[name] = funcName }

func (s *nameScope) known(name string) bool {
	for scope := s; scope != nil; scope = scope.parent {
		if _, ok := scope.names[name]; ok {
			return true
		}
	}
	return false
}

// isFunc reports whether the innermost declaration of name is a function.
func (s *nameScope) isFunc(name string) bool {
	for scope := s; scope != nil; scope = scope.parent {
		if kind, ok := scope.names[name]; ok {
			return kind == funcName
		}
	}
	return false
}

type parser struct {
	tokens []lexer.Token
	pos    int
	source string
	diags  diag.List
	scope  *nameScope

	// exprDepth > 0 switches '>' from redirect to comparison: inside
	// parens, brackets, conditions, and binding right-hand sides.
	exprDepth int

	// sawUnderscore supports the (_ > 1) lambda shorthand.
	sawUnderscore bool
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peek(offset int) lexer.Token {
	if p.pos+offset >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) at(t lexer.TokenType) bool { return p.current().Type == t }

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// eat consumes the current token if it has the given type.
func (p *parser) eat(t lexer.TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of the given type or records a ParseError.
func (p *parser) expect(t lexer.TokenType, what string) lexer.Token {
	if p.at(t) {
		return p.advance()
	}
	p.errExpected(what)
	return p.current()
}

func (p *parser) pushScope() { p.scope = newNameScope(p.scope) }
func (p *parser) popScope()  { p.scope = p.scope.parent }

// parseProgram parses the whole unit: imports and argument declarations
// first (in any order), then statements.
func (p *parser) parseProgram() *ast.Program {
	prog := &ast.Program{Pos: p.current().Position}

	prevPos := -1
	for !p.at(lexer.EOF) {
		invariant.Invariant(p.pos > prevPos, "parser position must advance (stuck at %d)", p.pos)
		prevPos = p.pos

		if p.eat(lexer.NEWLINE) {
			continue
		}

		switch p.current().Type {
		case lexer.IMPORT:
			prog.Imports = append(prog.Imports, p.parseImport())
		case lexer.AT:
			prog.Args = append(prog.Args, p.parseArgSpec())
		default:
			if stmt := p.parseStatement(); stmt != nil {
				prog.Statements = append(prog.Statements, stmt)
			}
		}
	}
	return prog
}

// parseImport parses `import name@revision`. The revision may lex as several
// adjacent tokens (1.4.0 is FLOAT '.0'); their raw texts are concatenated.
func (p *parser) parseImport() *ast.Import {
	start := p.advance() // import
	name := p.expect(lexer.IDENT, "hashlet name").String()

	revision := ""
	if p.eat(lexer.AT) {
		var b strings.Builder
		for !p.at(lexer.NEWLINE) && !p.at(lexer.EOF) {
			tok := p.current()
			if tok.HasSpaceBefore && b.Len() > 0 {
				break
			}
			b.WriteString(tok.String())
			p.advance()
		}
		revision = b.String()
		if revision == "" {
			p.errExpected("revision after '@'")
		}
	}

	p.expect(lexer.NEWLINE, "end of import statement")
	p.scope.declare(name)
	return &ast.Import{Name: name, Revision: revision, Pos: start.Position}
}

// parseArgSpec parses `@1 src: path "desc"` and `@force: bool = default`.
func (p *parser) parseArgSpec() *ast.ArgSpec {
	start := p.advance() // @
	spec := &ast.ArgSpec{Pos: start.Position}

	if p.at(lexer.INT) {
		fmt.Sscanf(p.advance().String(), "%d", &spec.Index)
		if spec.Index < 1 {
			p.errAt(start.Position, "positional argument index must be 1 or greater")
		}
		spec.Name = p.expect(lexer.IDENT, "argument name").String()
	} else {
		spec.Name = p.expect(lexer.IDENT, "argument name").String()
	}

	if p.eat(lexer.COLON) {
		spec.Type = p.expect(lexer.IDENT, "argument type").String()
		switch spec.Type {
		case "int", "float", "text", "path", "bool":
		default:
			p.errAt(p.peek(-1).Position,
				fmt.Sprintf("unknown argument type %q (want int, float, text, path, or bool)", spec.Type))
		}
	} else {
		spec.Type = "text"
	}

	if p.eat(lexer.EQUALS) {
		spec.Default = p.parseExpr()
	}
	if p.at(lexer.STRING) {
		tok := p.advance()
		spec.Desc = flatString(tok)
	}

	p.expect(lexer.NEWLINE, "end of argument declaration")
	p.scope.declare(spec.Name)
	return spec
}

// flatString returns the literal text of an uninterpolated string token.
func flatString(tok lexer.Token) string {
	var b strings.Builder
	for _, seg := range tok.Segments {
		b.WriteString(seg.Lit)
	}
	return b.String()
}

func (p *parser) parseStatement() ast.Statement {
	switch p.current().Type {
	case lexer.FN:
		return p.parseFunction()
	case lexer.VAL:
		return p.parseVal()
	case lexer.VAR:
		return p.parseVar()
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.SWITCH:
		return p.parseSwitch()
	case lexer.IDENT:
		// Assignment requires lookahead: name = expr
		if p.peek(1).Type == lexer.EQUALS {
			return p.parseAssignment()
		}
	}

	start := p.current()
	expr := p.parsePipeline()
	if expr == nil {
		p.errExpected("statement")
		p.syncToLine()
		return nil
	}
	p.expect(lexer.NEWLINE, "end of statement")
	return &ast.ExprStmt{Expr: expr, Pos: start.Position}
}

func (p *parser) parseVal() ast.Statement {
	start := p.advance() // val
	name := p.expect(lexer.IDENT, "binding name").String()
	p.expect(lexer.EQUALS, "'=' in val declaration")
	value := p.parseBindingValue()
	p.expect(lexer.NEWLINE, "end of declaration")
	p.scope.declare(name)
	return &ast.ValDecl{Name: name, Value: value, Pos: start.Position}
}

func (p *parser) parseVar() ast.Statement {
	start := p.advance() // var
	name := p.expect(lexer.IDENT, "binding name").String()

	var value ast.Expression
	if p.eat(lexer.EQUALS) {
		value = p.parseBindingValue()
	}
	p.expect(lexer.NEWLINE, "end of declaration")
	p.scope.declare(name)
	return &ast.VarDecl{Name: name, Value: value, Pos: start.Position}
}

func (p *parser) parseAssignment() ast.Statement {
	nameTok := p.advance()
	p.advance() // =
	value := p.parseBindingValue()
	p.expect(lexer.NEWLINE, "end of assignment")
	return &ast.Assignment{Name: nameTok.String(), Value: value, Pos: nameTok.Position}
}

// parseBindingValue parses the right-hand side of = where '>' is a
// comparison, while pipes still apply: val big = xs | reverse.
func (p *parser) parseBindingValue() ast.Expression {
	p.exprDepth++
	left := p.parseStage()
	for p.eat(lexer.PIPE) {
		right := p.parseStage()
		left = &ast.Pipe{Left: left, Right: right, Pos: left.Position()}
	}
	p.exprDepth--
	return left
}

func (p *parser) parseIf() ast.Statement {
	start := p.advance() // if
	cond := p.parseCondition()
	then := p.parseBlock()

	var els []ast.Statement
	if p.at(lexer.ELSE) {
		p.advance()
		if p.at(lexer.IF) {
			els = []ast.Statement{p.parseIf()}
		} else {
			els = p.parseBlock()
		}
	}
	return &ast.If{Condition: cond, Then: then, Else: els, Pos: start.Position}
}

func (p *parser) parseWhile() ast.Statement {
	start := p.advance() // while
	cond := p.parseCondition()
	body := p.parseBlock()
	return &ast.While{Condition: cond, Body: body, Pos: start.Position}
}

func (p *parser) parseFor() ast.Statement {
	start := p.advance() // for
	name := p.expect(lexer.IDENT, "loop variable").String()
	p.expect(lexer.IN, "'in'")
	p.exprDepth++
	source := p.parseExpr()
	p.exprDepth--

	p.pushScope()
	p.scope.declare(name)
	body := p.parseBlock()
	p.popScope()
	return &ast.For{Var: name, Source: source, Body: body, Pos: start.Position}
}

func (p *parser) parseCondition() ast.Expression {
	p.exprDepth++
	cond := p.parseExpr()
	p.exprDepth--
	return cond
}

// parseBlock parses NEWLINE INDENT statement+ DEDENT.
func (p *parser) parseBlock() []ast.Statement {
	p.expect(lexer.NEWLINE, "newline before block")
	if !p.eat(lexer.INDENT) {
		p.errExpected("indented block")
		return nil
	}

	p.pushScope()
	var stmts []ast.Statement
	prevPos := -1
	for !p.at(lexer.DEDENT) && !p.at(lexer.EOF) {
		invariant.Invariant(p.pos > prevPos, "block parse must advance")
		prevPos = p.pos

		if p.eat(lexer.NEWLINE) {
			continue
		}
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.eat(lexer.DEDENT)
	p.popScope()
	return stmts
}

// parseFunction parses fn declarations. Two shapes exist:
//
//	fn factorial
//	    case 0 = 1
//	    case n = n * factorial (n - 1)
//
//	fn greet name
//	    print "hi $name"
//
// The second is sugar for a single clause whose patterns are the bare
// parameter bindings.
func (p *parser) parseFunction() ast.Statement {
	start := p.advance() // fn
	name := p.expect(lexer.IDENT, "function name").String()
	p.scope.declareFunc(name) // visible to its own clauses for recursion

	fn := &ast.FunctionDecl{Name: name, Pos: start.Position}

	// Parameter sugar on the fn line
	var params []ast.Pattern
	for p.at(lexer.IDENT) {
		tok := p.advance()
		params = append(params, &ast.BindingPat{Name: tok.String(), Pos: tok.Position})
	}

	p.expect(lexer.NEWLINE, "newline after function header")
	if !p.eat(lexer.INDENT) {
		p.errExpected("function body")
		return fn
	}

	if p.at(lexer.CASE) {
		if len(params) > 0 {
			p.errAt(start.Position, "function cannot mix header parameters with case clauses")
		}
		prevPos := -1
		for p.at(lexer.CASE) {
			invariant.Invariant(p.pos > prevPos, "clause parse must advance")
			prevPos = p.pos
			fn.Clauses = append(fn.Clauses, p.parseClause())
			for p.eat(lexer.NEWLINE) {
			}
		}
	} else {
		clause := ast.Clause{Patterns: params, Pos: start.Position}
		p.pushScope()
		for _, pat := range params {
			for _, bound := range ast.Bindings(pat) {
				p.scope.declare(bound)
			}
		}
		var stmts []ast.Statement
		for !p.at(lexer.DEDENT) && !p.at(lexer.EOF) {
			if p.eat(lexer.NEWLINE) {
				continue
			}
			if stmt := p.parseStatement(); stmt != nil {
				stmts = append(stmts, stmt)
			}
		}
		p.popScope()
		clause.Body = stmts
		fn.Clauses = append(fn.Clauses, clause)
	}

	p.eat(lexer.DEDENT)
	return fn
}

// parseClause parses one `case PATTERNS = expr` or block-bodied clause.
func (p *parser) parseClause() ast.Clause {
	start := p.advance() // case
	clause := ast.Clause{Pos: start.Position}

	for !p.at(lexer.EQUALS) && !p.at(lexer.NEWLINE) && !p.at(lexer.EOF) {
		pat := p.parsePattern()
		if pat == nil {
			p.syncToLine()
			return clause
		}
		clause.Patterns = append(clause.Patterns, pat)
	}

	p.pushScope()
	for _, pat := range clause.Patterns {
		for _, bound := range ast.Bindings(pat) {
			p.scope.declare(bound)
		}
	}

	if p.eat(lexer.EQUALS) {
		p.exprDepth++
		clause.Expr = p.parseExpr()
		p.exprDepth--
		p.expect(lexer.NEWLINE, "end of clause")
	} else {
		clause.Body = p.parseBlock()
	}
	p.popScope()
	return clause
}

func (p *parser) parseSwitch() ast.Statement {
	start := p.advance() // switch
	subject := p.parseCondition()
	sw := &ast.Switch{Subject: subject, Pos: start.Position}

	p.expect(lexer.NEWLINE, "newline after switch subject")
	if !p.eat(lexer.INDENT) {
		p.errExpected("switch body")
		return sw
	}

	prevPos := -1
	for p.at(lexer.CASE) {
		invariant.Invariant(p.pos > prevPos, "switch clause parse must advance")
		prevPos = p.pos

		caseTok := p.advance()
		pat := p.parsePattern()
		if pat == nil {
			p.syncToLine()
			continue
		}

		p.pushScope()
		for _, bound := range ast.Bindings(pat) {
			p.scope.declare(bound)
		}

		clause := ast.SwitchClause{Pattern: pat, Pos: caseTok.Position}
		if p.eat(lexer.EQUALS) {
			p.exprDepth++
			clause.Expr = p.parseExpr()
			p.exprDepth--
			p.expect(lexer.NEWLINE, "end of case")
		} else {
			clause.Body = p.parseBlock()
		}
		p.popScope()

		sw.Clauses = append(sw.Clauses, clause)
		for p.eat(lexer.NEWLINE) {
		}
	}
	if len(sw.Clauses) == 0 {
		p.errExpected("at least one case clause")
	}
	p.eat(lexer.DEDENT)
	return sw
}

// --- Patterns ---

func (p *parser) parsePattern() ast.Pattern {
	tok := p.current()
	switch tok.Type {
	case lexer.UNDERSCORE:
		p.advance()
		return &ast.WildcardPat{Pos: tok.Position}

	case lexer.INT:
		p.advance()
		return &ast.LiteralPat{Lit: &ast.Literal{Kind: ast.IntLit, Value: tok.String(), Pos: tok.Position}, Pos: tok.Position}

	case lexer.MINUS:
		p.advance()
		num := p.expect(lexer.INT, "number after '-'")
		return &ast.LiteralPat{Lit: &ast.Literal{Kind: ast.IntLit, Value: "-" + num.String(), Pos: tok.Position}, Pos: tok.Position}

	case lexer.FLOAT:
		p.advance()
		return &ast.LiteralPat{Lit: &ast.Literal{Kind: ast.FloatLit, Value: tok.String(), Pos: tok.Position}, Pos: tok.Position}

	case lexer.STRING:
		p.advance()
		lit := p.stringLiteral(tok)
		if lit.Interpolated() {
			p.errAt(tok.Position, "pattern strings cannot interpolate")
		}
		return &ast.LiteralPat{Lit: lit, Pos: tok.Position}

	case lexer.IDENT:
		p.advance()
		name := tok.String()
		if name == "true" || name == "false" {
			return &ast.LiteralPat{Lit: &ast.Literal{Kind: ast.BoolLit, Value: name, Pos: tok.Position}, Pos: tok.Position}
		}
		return &ast.BindingPat{Name: name, Pos: tok.Position}

	case lexer.LSQUARE:
		return p.parseListPattern()

	case lexer.LBRACE:
		return p.parseMapPattern()

	case lexer.LPAREN:
		return p.parseTuplePattern()
	}

	p.errExpected("pattern")
	return nil
}

func (p *parser) parseListPattern() ast.Pattern {
	start := p.advance() // [
	if p.eat(lexer.RSQUARE) {
		return &ast.ListExactPat{Pos: start.Position}
	}

	first := p.parsePattern()
	if first == nil {
		return nil
	}

	if p.eat(lexer.CONS) {
		tail := p.parsePattern()
		p.expect(lexer.RSQUARE, "']' after cons pattern")
		return &ast.ListConsPat{Head: first, Tail: tail, Pos: start.Position}
	}

	elems := []ast.Pattern{first}
	for !p.at(lexer.RSQUARE) && !p.at(lexer.EOF) {
		pat := p.parsePattern()
		if pat == nil {
			break
		}
		elems = append(elems, pat)
	}
	p.expect(lexer.RSQUARE, "']' after list pattern")
	return &ast.ListExactPat{Elems: elems, Pos: start.Position}
}

func (p *parser) parseMapPattern() ast.Pattern {
	start := p.advance() // {
	mp := &ast.MapPat{Pos: start.Position}
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		key := p.expect(lexer.IDENT, "map key").String()
		p.expect(lexer.COLON, "':' after map key")
		value := p.parsePattern()
		mp.Entries = append(mp.Entries, ast.MapPatEntry{Key: key, Value: value})
		if !p.eat(lexer.COMMA) {
			break
		}
	}
	p.expect(lexer.RBRACE, "'}' after map pattern")
	return mp
}

func (p *parser) parseTuplePattern() ast.Pattern {
	start := p.advance() // (
	tp := &ast.TuplePat{Pos: start.Position}
	for {
		pat := p.parsePattern()
		if pat == nil {
			break
		}
		tp.Elems = append(tp.Elems, pat)
		if !p.eat(lexer.COMMA) {
			break
		}
	}
	p.expect(lexer.RPAREN, "')' after tuple pattern")
	if len(tp.Elems) < 2 {
		p.errAt(start.Position, "tuple pattern needs at least two elements")
	}
	return tp
}

// --- Expressions ---

// parsePipeline parses a statement-position expression: pipeline stages
// joined by '|' with postfix redirects. Pipe and redirection bind looser
// than application and tighter than the statement separator, associating
// left.
func (p *parser) parsePipeline() ast.Expression {
	left := p.parseStage()
	if left == nil {
		return nil
	}

	for {
		switch {
		case p.at(lexer.PIPE):
			p.advance()
			right := p.parseStage()
			if right == nil {
				p.errExpected("pipeline stage after '|'")
				return left
			}
			left = &ast.Pipe{Left: left, Right: right, Pos: left.Position()}

		case p.atRedirect():
			left = p.parseRedirect(left)

		default:
			return left
		}
	}
}

// atRedirect reports whether the current tokens begin a redirect: '>' or
// '>>', optionally prefixed by a stream name glued to the operator
// (err> log). In expression context '>' is a comparison instead.
func (p *parser) atRedirect() bool {
	if p.exprDepth > 0 {
		return false
	}
	if p.at(lexer.GT) || p.at(lexer.APPEND) {
		return true
	}
	if p.at(lexer.IDENT) && isStreamName(p.current().String()) {
		next := p.peek(1)
		return (next.Type == lexer.GT || next.Type == lexer.APPEND) && !next.HasSpaceBefore
	}
	return false
}

func isStreamName(s string) bool { return s == "out" || s == "err" || s == "all" }

func (p *parser) parseRedirect(cmd ast.Expression) ast.Expression {
	stream := "out"
	if p.at(lexer.IDENT) {
		stream = p.advance().String()
	}

	appendMode := false
	switch p.current().Type {
	case lexer.APPEND:
		appendMode = true
		p.advance()
	case lexer.GT:
		p.advance()
	default:
		p.errExpected("redirect operator")
		return cmd
	}

	target := p.parseAtom()
	if target == nil {
		p.errExpected("redirect target")
		return cmd
	}
	return &ast.Redirect{Cmd: cmd, Stream: stream, Target: target, Append: appendMode, Pos: cmd.Position()}
}

// parseStage parses one pipeline stage: a function application, an external
// command, or a plain expression.
func (p *parser) parseStage() ast.Expression {
	if p.at(lexer.IDENT) {
		name := p.current().String()
		if p.scope.known(name) || (p.peek(1).Type == lexer.LPAREN && !p.peek(1).HasSpaceBefore) ||
			(p.peek(1).Type == lexer.QUESTION && !p.peek(1).HasSpaceBefore) {
			return p.parseApplication()
		}
		return p.parseExternalCommand()
	}
	return p.parseExpr()
}

// parseApplication parses `name arg arg`, `name(a, b)`, and `name?` forms.
// Bare known names in a pipeline become zero-argument calls; argument atoms
// follow until a token that cannot start one.
func (p *parser) parseApplication() ast.Expression {
	nameTok := p.advance()
	call := &ast.Call{Name: nameTok.String(), Pos: nameTok.Position}

	// A glued bracket is a slice on the name, not a list argument.
	if p.at(lexer.LSQUARE) && !p.current().HasSpaceBefore {
		var expr ast.Expression = &ast.Variable{Name: call.Name, Pos: call.Pos}
		for p.at(lexer.LSQUARE) && !p.current().HasSpaceBefore {
			start := p.advance()
			p.exprDepth++
			low := p.parseExpr()
			p.expect(lexer.RANGE, "'..' in slice")
			high := p.parseExpr()
			p.exprDepth--
			p.expect(lexer.RSQUARE, "']' after slice")
			expr = &ast.Slice{Target: expr, Start: low, End: high, Pos: start.Position}
		}
		return p.continueInfix(expr)
	}

	if p.at(lexer.QUESTION) && !p.current().HasSpaceBefore {
		p.advance()
		call.Predicate = true
	}

	if p.at(lexer.LPAREN) && !p.current().HasSpaceBefore {
		p.advance()
		p.exprDepth++
		for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
			call.Args = append(call.Args, p.parseExpr())
			if !p.eat(lexer.COMMA) {
				break
			}
		}
		p.exprDepth--
		p.expect(lexer.RPAREN, "')' after arguments")
	} else {
		for p.atAtomStart() {
			arg := p.parseAtom()
			if arg == nil {
				break
			}
			call.Args = append(call.Args, arg)
		}
	}

	if len(call.Args) == 0 && !call.Predicate {
		// A bare function name at stage position is a zero-argument
		// call (| lines); a bare value name is a reference, possibly
		// opening an arithmetic expression (n - 1).
		if p.infixFollows() || !p.scope.isFunc(call.Name) {
			return p.continueInfix(&ast.Variable{Name: call.Name, Pos: call.Pos})
		}
	}
	return call
}

// infixFollows reports whether an infix operator is next, meaning the bare
// name was an operand rather than a zero-argument application.
func (p *parser) infixFollows() bool {
	switch p.current().Type {
	case lexer.PLUS, lexer.MINUS, lexer.STAR, lexer.SLASH, lexer.PERCENT,
		lexer.EQ_EQ, lexer.NOT_EQ, lexer.LT, lexer.LT_EQ, lexer.GT_EQ,
		lexer.AND_AND, lexer.OR_OR:
		return true
	case lexer.GT:
		return p.exprDepth > 0
	}
	return false
}

// continueInfix resumes precedence climbing with an already-parsed operand.
func (p *parser) continueInfix(left ast.Expression) ast.Expression {
	return p.parseBinaryFrom(left, 0)
}

// parseExternalCommand consumes the command word and its verbatim word
// arguments. Word boundaries stop at pipe, redirect, newline, and closers.
func (p *parser) parseExternalCommand() ast.Expression {
	nameTok := p.advance()
	cmd := &ast.ExternalCommand{Name: nameTok.String(), Pos: nameTok.Position}

	for {
		tok := p.current()
		switch tok.Type {
		case lexer.IDENT:
			if isStreamName(tok.String()) {
				next := p.peek(1)
				if (next.Type == lexer.GT || next.Type == lexer.APPEND) && !next.HasSpaceBefore {
					return cmd // redirect belongs to the pipeline level
				}
			}
			p.advance()
			cmd.Args = append(cmd.Args, wordLiteral(tok))
		case lexer.PATH, lexer.OPTION, lexer.INT, lexer.FLOAT:
			p.advance()
			cmd.Args = append(cmd.Args, wordLiteral(tok))
		case lexer.STRING:
			p.advance()
			cmd.Args = append(cmd.Args, p.stringLiteral(tok))
		case lexer.EQUALS:
			// KEY=value style words pass through verbatim
			p.advance()
			cmd.Args = append(cmd.Args, &ast.Literal{Kind: ast.StringLit, Value: "=", Parts: []ast.StringPart{{Lit: "="}}, Pos: tok.Position})
		default:
			return cmd
		}
	}
}

// wordLiteral converts a bare word token to its literal form.
func wordLiteral(tok lexer.Token) *ast.Literal {
	kind := ast.StringLit
	switch tok.Type {
	case lexer.PATH:
		kind = ast.PathLit
	case lexer.OPTION:
		kind = ast.OptionLit
	case lexer.INT:
		kind = ast.IntLit
	case lexer.FLOAT:
		kind = ast.FloatLit
	}
	lit := &ast.Literal{Kind: kind, Value: tok.String(), Pos: tok.Position}
	if kind == ast.StringLit {
		lit.Parts = []ast.StringPart{{Lit: tok.String()}}
	}
	return lit
}

// parseExpr parses a full expression with operator precedence.
func (p *parser) parseExpr() ast.Expression {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	return p.parseBinaryFrom(left, 0)
}

// Binding powers, loosest first: || < && < comparisons < + - < * / %.
func (p *parser) bindingPower(t lexer.TokenType) int {
	switch t {
	case lexer.OR_OR:
		return 1
	case lexer.AND_AND:
		return 2
	case lexer.EQ_EQ, lexer.NOT_EQ, lexer.LT, lexer.LT_EQ, lexer.GT_EQ:
		return 3
	case lexer.GT:
		if p.exprDepth > 0 {
			return 3
		}
		return 0 // redirect, not comparison
	case lexer.PLUS, lexer.MINUS:
		return 4
	case lexer.STAR, lexer.SLASH, lexer.PERCENT:
		return 5
	}
	return 0
}

func operatorText(t lexer.TokenType) string {
	switch t {
	case lexer.OR_OR:
		return "||"
	case lexer.AND_AND:
		return "&&"
	case lexer.EQ_EQ:
		return "=="
	case lexer.NOT_EQ:
		return "!="
	case lexer.LT:
		return "<"
	case lexer.LT_EQ:
		return "<="
	case lexer.GT:
		return ">"
	case lexer.GT_EQ:
		return ">="
	case lexer.PLUS:
		return "+"
	case lexer.MINUS:
		return "-"
	case lexer.STAR:
		return "*"
	case lexer.SLASH:
		return "/"
	case lexer.PERCENT:
		return "%"
	}
	return "?"
}

// parseBinaryFrom climbs operator precedence starting from an existing left
// operand.
func (p *parser) parseBinaryFrom(left ast.Expression, minPower int) ast.Expression {
	for {
		power := p.bindingPower(p.current().Type)
		if power == 0 || power <= minPower {
			return left
		}
		opTok := p.advance()
		right := p.parseUnary()
		if right == nil {
			p.errExpected("expression after operator")
			return left
		}
		right = p.parseBinaryFrom(right, power)
		left = &ast.Binary{Op: operatorText(opTok.Type), Left: left, Right: right, Pos: left.Position()}
	}
}

func (p *parser) parseUnary() ast.Expression {
	if p.at(lexer.NOT) {
		tok := p.advance()
		operand := p.parseUnary()
		return &ast.Unary{Op: "!", Operand: operand, Pos: tok.Position}
	}
	if p.at(lexer.MINUS) &&
		(p.peek(1).Type == lexer.INT || p.peek(1).Type == lexer.FLOAT) && !p.peek(1).HasSpaceBefore {
		tok := p.advance()
		num := p.advance()
		kind := ast.IntLit
		if num.Type == lexer.FLOAT {
			kind = ast.FloatLit
		}
		return &ast.Literal{Kind: kind, Value: "-" + num.String(), Pos: tok.Position}
	}
	return p.parseAtom()
}

// atAtomStart reports whether the current token can begin an argument atom.
func (p *parser) atAtomStart() bool {
	switch p.current().Type {
	case lexer.INT, lexer.FLOAT, lexer.STRING, lexer.PATH, lexer.OPTION,
		lexer.IDENT, lexer.UNDERSCORE, lexer.LPAREN, lexer.LSQUARE, lexer.LBRACE:
		return true
	}
	return false
}

// parseAtom parses a primary expression with its postfix slice.
func (p *parser) parseAtom() ast.Expression {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	// Slice binds only when the bracket is glued to the target: xs[1..3]
	for p.at(lexer.LSQUARE) && !p.current().HasSpaceBefore {
		start := p.advance()
		p.exprDepth++
		low := p.parseExpr()
		p.expect(lexer.RANGE, "'..' in slice")
		high := p.parseExpr()
		p.exprDepth--
		p.expect(lexer.RSQUARE, "']' after slice")
		expr = &ast.Slice{Target: expr, Start: low, End: high, Pos: start.Position}
	}
	return expr
}

func (p *parser) parsePrimary() ast.Expression {
	tok := p.current()
	switch tok.Type {
	case lexer.INT:
		p.advance()
		return &ast.Literal{Kind: ast.IntLit, Value: tok.String(), Pos: tok.Position}
	case lexer.FLOAT:
		p.advance()
		return &ast.Literal{Kind: ast.FloatLit, Value: tok.String(), Pos: tok.Position}
	case lexer.STRING:
		p.advance()
		return p.stringLiteral(tok)
	case lexer.PATH:
		p.advance()
		return &ast.Literal{Kind: ast.PathLit, Value: tok.String(), Pos: tok.Position}
	case lexer.OPTION:
		p.advance()
		return &ast.Literal{Kind: ast.OptionLit, Value: tok.String(), Pos: tok.Position}

	case lexer.UNDERSCORE:
		p.advance()
		p.sawUnderscore = true
		return &ast.Variable{Name: "_", Pos: tok.Position}

	case lexer.IDENT:
		p.advance()
		name := tok.String()
		if name == "true" || name == "false" {
			return &ast.Literal{Kind: ast.BoolLit, Value: name, Pos: tok.Position}
		}
		// Glued parens make a call even in argument position
		if p.at(lexer.LPAREN) && !p.current().HasSpaceBefore {
			call := &ast.Call{Name: name, Pos: tok.Position}
			p.advance()
			p.exprDepth++
			for !p.at(lexer.RPAREN) && !p.at(lexer.EOF) {
				call.Args = append(call.Args, p.parseExpr())
				if !p.eat(lexer.COMMA) {
					break
				}
			}
			p.exprDepth--
			p.expect(lexer.RPAREN, "')' after arguments")
			return call
		}
		// A known function applied to parenthesized groups is a call even
		// in operand position: n * factorial (n - 1). Each group is one
		// argument; bare juxtaposition stays head-position only so that
		// map double xs passes double by reference.
		if p.at(lexer.LPAREN) && p.scope.isFunc(name) {
			call := &ast.Call{Name: name, Pos: tok.Position}
			for p.at(lexer.LPAREN) {
				call.Args = append(call.Args, p.parseParen())
			}
			return call
		}
		if p.at(lexer.QUESTION) && !p.current().HasSpaceBefore {
			p.advance()
			call := &ast.Call{Name: name, Predicate: true, Pos: tok.Position}
			for p.atAtomStart() {
				arg := p.parseAtom()
				if arg == nil {
					break
				}
				call.Args = append(call.Args, arg)
			}
			return call
		}
		return &ast.Variable{Name: name, Pos: tok.Position}

	case lexer.LPAREN:
		return p.parseParen()
	case lexer.LSQUARE:
		return p.parseBracket()
	case lexer.LBRACE:
		return p.parseMapLit()
	}

	p.errExpected("expression")
	p.advance()
	return nil
}

// parseParen handles lambdas `(x -> body)`, the underscore shorthand
// `(_ > 1)`, and grouped expressions.
func (p *parser) parseParen() ast.Expression {
	start := p.advance() // (

	// Lambda heads: IDENT+ ARROW
	if p.at(lexer.IDENT) {
		offset := 0
		for p.peek(offset).Type == lexer.IDENT {
			offset++
		}
		if p.peek(offset).Type == lexer.ARROW {
			var params []string
			for p.at(lexer.IDENT) {
				params = append(params, p.advance().String())
			}
			p.advance() // ->

			p.pushScope()
			for _, param := range params {
				p.scope.declare(param)
			}
			p.exprDepth++
			body := p.parseExpr()
			p.exprDepth--
			p.popScope()
			p.expect(lexer.RPAREN, "')' after lambda body")
			return &ast.Lambda{Params: params, Body: body, Pos: start.Position}
		}
	}

	savedUnderscore := p.sawUnderscore
	p.sawUnderscore = false

	p.pushScope()
	p.scope.declare("_")
	p.exprDepth++
	inner := p.parseStageExpr()
	p.exprDepth--
	p.popScope()
	p.expect(lexer.RPAREN, "')'")

	if p.sawUnderscore {
		p.sawUnderscore = savedUnderscore
		return &ast.Lambda{Params: []string{"_"}, Body: inner, Pos: start.Position}
	}
	p.sawUnderscore = savedUnderscore
	return inner
}

// parseStageExpr parses an expression that may itself be an application,
// for parenthesized stages like (filter (_ > 1) xs).
func (p *parser) parseStageExpr() ast.Expression {
	if p.at(lexer.IDENT) {
		name := p.current().String()
		if p.scope.isFunc(name) && p.peek(1).Type != lexer.RPAREN && !p.infixAfterName() {
			return p.parseApplication()
		}
	}
	return p.parseExpr()
}

// infixAfterName checks whether the token after the leading identifier is an
// infix operator, in which case the identifier is an operand.
func (p *parser) infixAfterName() bool {
	next := p.peek(1)
	switch next.Type {
	case lexer.PLUS, lexer.MINUS, lexer.STAR, lexer.SLASH, lexer.PERCENT,
		lexer.EQ_EQ, lexer.NOT_EQ, lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ,
		lexer.AND_AND, lexer.OR_OR, lexer.RANGE:
		return true
	}
	return false
}

// parseBracket handles list literals, ranges, stepped ranges, and
// comprehensions, which all open with '['.
func (p *parser) parseBracket() ast.Expression {
	start := p.advance() // [
	p.exprDepth++
	defer func() { p.exprDepth-- }()

	if p.eat(lexer.RSQUARE) {
		return &ast.ListLit{Pos: start.Position}
	}

	first := p.parseExpr()
	if first == nil {
		p.expect(lexer.RSQUARE, "']'")
		return &ast.ListLit{Pos: start.Position}
	}

	// [start..end]
	if p.eat(lexer.RANGE) {
		end := p.parseExpr()
		p.expect(lexer.RSQUARE, "']' after range")
		return &ast.Range{Start: first, End: end, Pos: start.Position}
	}

	// [body for x in xs if cond]
	if p.at(lexer.FOR) {
		p.advance()
		name := p.expect(lexer.IDENT, "comprehension variable").String()
		p.expect(lexer.IN, "'in'")

		p.pushScope()
		p.scope.declare(name)
		source := p.parseExpr()
		var cond ast.Expression
		if p.eat(lexer.IF) {
			cond = p.parseExpr()
		}
		p.popScope()
		p.expect(lexer.RSQUARE, "']' after comprehension")
		return &ast.Comprehension{Body: first, Var: name, Source: source, Cond: cond, Pos: start.Position}
	}

	elems := []ast.Expression{first}
	for !p.at(lexer.RSQUARE) && !p.at(lexer.EOF) {
		elem := p.parseExpr()
		if elem == nil {
			break
		}
		// [first step..end] - stepped range
		if len(elems) == 1 && p.eat(lexer.RANGE) {
			end := p.parseExpr()
			p.expect(lexer.RSQUARE, "']' after range")
			return &ast.Range{Start: first, Step: elem, End: end, Pos: start.Position}
		}
		elems = append(elems, elem)
	}
	p.expect(lexer.RSQUARE, "']' after list")
	return &ast.ListLit{Elems: elems, Pos: start.Position}
}

func (p *parser) parseMapLit() ast.Expression {
	start := p.advance() // {
	p.exprDepth++
	defer func() { p.exprDepth-- }()

	m := &ast.MapLit{Pos: start.Position}
	for !p.at(lexer.RBRACE) && !p.at(lexer.EOF) {
		var key ast.Expression
		switch p.current().Type {
		case lexer.IDENT:
			tok := p.advance()
			key = &ast.Literal{Kind: ast.StringLit, Value: tok.String(),
				Parts: []ast.StringPart{{Lit: tok.String()}}, Pos: tok.Position}
		case lexer.STRING:
			tok := p.advance()
			key = p.stringLiteral(tok)
		case lexer.INT:
			tok := p.advance()
			key = &ast.Literal{Kind: ast.IntLit, Value: tok.String(), Pos: tok.Position}
		default:
			p.errExpected("map key")
			p.expect(lexer.RBRACE, "'}'")
			return m
		}
		p.expect(lexer.COLON, "':' after map key")
		value := p.parseExpr()
		m.Entries = append(m.Entries, ast.MapEntry{Key: key, Value: value})
		if !p.eat(lexer.COMMA) {
			break
		}
	}
	p.expect(lexer.RBRACE, "'}' after map")
	return m
}

// stringLiteral converts a STRING token, recursively parsing interpolated
// expression segments into sub-expressions.
func (p *parser) stringLiteral(tok lexer.Token) *ast.Literal {
	lit := &ast.Literal{Kind: ast.StringLit, Value: tok.String(), Pos: tok.Position}
	for _, seg := range tok.Segments {
		if seg.Expr == nil {
			lit.Parts = append(lit.Parts, ast.StringPart{Lit: seg.Lit})
			continue
		}
		sub := &parser{
			tokens: seg.Expr,
			source: p.source,
			scope:  p.scope,
		}
		sub.exprDepth = 1
		expr := sub.parseExpr()
		p.diags = append(p.diags, sub.diags...)
		if expr == nil {
			p.errAt(tok.Position, "invalid interpolation expression")
			continue
		}
		lit.Parts = append(lit.Parts, ast.StringPart{Expr: expr})
	}
	return lit
}
