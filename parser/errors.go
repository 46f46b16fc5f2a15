package parser

import (
	"fmt"

	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/lexer"
)

// describe renders a token for error messages.
func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of input"
	case lexer.NEWLINE:
		return "end of line"
	case lexer.INDENT:
		return "indented block"
	case lexer.DEDENT:
		return "end of block"
	}
	if len(tok.Text) > 0 {
		return fmt.Sprintf("'%s'", tok.String())
	}
	return tok.Type.String()
}

// errExpected records a ParseError carrying what was expected and what was
// found, at the current token.
func (p *parser) errExpected(expected string) {
	found := p.current()
	p.report(diag.ParseError, found.Position,
		fmt.Sprintf("expected %s, found %s", expected, describe(found)))
}

// errAt records a ParseError with a custom message at a position.
func (p *parser) errAt(pos diag.Position, message string) {
	p.report(diag.ParseError, pos, message)
}

func (p *parser) report(kind diag.Kind, pos diag.Position, message string) {
	p.diags = append(p.diags, diag.Diagnostic{
		Kind:    kind,
		Message: message,
		Pos:     pos,
		Source:  p.source,
	})
}

// syncToLine skips tokens until the start of the next statement so one
// syntax error does not cascade; the whole unit still reports every
// diagnostic found.
func (p *parser) syncToLine() {
	depth := 0
	for {
		switch p.current().Type {
		case lexer.EOF:
			return
		case lexer.INDENT:
			depth++
		case lexer.DEDENT:
			if depth == 0 {
				return
			}
			depth--
		case lexer.NEWLINE:
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}
