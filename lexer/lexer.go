package lexer

import (
	"fmt"
	"unicode/utf8"

	"github.com/hash-lang/hash/core/diag"
	"github.com/hash-lang/hash/core/invariant"
)

// Opt represents a lexer configuration option
type Opt func(*config)

type config struct {
	keepComments bool
}

// WithComments makes the lexer emit COMMENT tokens instead of dropping them.
// Parsers skip them; formatting tools want them.
func WithComments() Opt {
	return func(c *config) {
		c.keepComments = true
	}
}

// Lexer turns hash source text into a token stream.
//
// Block structure is indentation-delimited, so the lexer maintains an
// indentation stack and emits INDENT/DEDENT tokens at line starts. An
// explicit-brace grammar is used inside lists/maps/parens: the bracket-depth
// counter suppresses NEWLINE/INDENT/DEDENT between [...], {...} and (...).
type Lexer struct {
	// Core lexing state
	input    []byte
	position int
	line     int
	column   int

	source string // full source for diagnostic snippets
	diags  diag.List

	// Layout state
	indents      []int   // indentation stack, always starts with 0
	bracketDepth int     // >0 inside [...] {...} (...)
	pending      []Token // queued DEDENT tokens
	atLineStart  bool
	lineHadToken bool // a non-layout token was emitted on the current line
	eofFlushed   bool

	keepComments bool
}

// New creates a lexer over source with optional configuration.
func New(source []byte, opts ...Opt) *Lexer {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Lexer{
		input:        source,
		line:         1,
		column:       1,
		source:       string(source),
		indents:      []int{0},
		atLineStart:  true,
		keepComments: cfg.keepComments,
	}
}

// Tokens lexes the whole input and returns the token stream along with any
// accumulated diagnostics. The stream always ends with EOF, even on error.
func (l *Lexer) Tokens() ([]Token, diag.List) {
	var tokens []Token
	prevPos := -1
	prevDepth := len(l.indents)
	for {
		pendingBefore := len(l.pending)
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			break
		}
		// INVARIANT: input position, pending queue, or indent stack must change
		invariant.Invariant(l.position > prevPos || len(l.pending) != pendingBefore ||
			len(l.indents) != prevDepth || l.eofFlushed,
			"lexer must advance (stuck at offset %d)", l.position)
		prevPos = l.position
		prevDepth = len(l.indents)
	}
	return tokens, l.diags
}

// Next returns the next token using the streaming interface.
func (l *Lexer) Next() Token {
	// Queued layout tokens first (DEDENT runs)
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	// Layout handling at line start, unless brackets suppress it
	if l.atLineStart && l.bracketDepth == 0 {
		if tok, ok := l.lexLayout(); ok {
			return tok
		}
	}
	l.atLineStart = false

	hadWhitespace := l.skipInlineWhitespace()

	// Newlines end statements at depth 0 and are plain whitespace inside
	// brackets.
	for l.position < len(l.input) && l.input[l.position] == '\n' {
		l.advanceChar()
		if l.bracketDepth > 0 {
			hadWhitespace = true
			l.skipInlineWhitespace()
			continue
		}
		l.atLineStart = true
		if l.lineHadToken {
			l.lineHadToken = false
			return Token{Type: NEWLINE, Position: diag.Position{Line: l.line - 1, Column: 1}}
		}
		// Blank line: restart layout handling
		return l.Next()
	}

	if l.position >= len(l.input) {
		return l.flushEOF()
	}

	start := l.pos()
	ch := l.currentChar()

	tok := l.lexToken(start, ch, hadWhitespace)
	if tok.Type == COMMENT && !l.keepComments {
		return l.Next()
	}
	l.lineHadToken = true
	return tok
}

// lexLayout measures leading indentation and emits INDENT/DEDENT tokens.
// Blank and comment-only lines never affect the indentation stack.
func (l *Lexer) lexLayout() (Token, bool) {
	for {
		lineStart := l.position
		width := 0
		for l.position < len(l.input) {
			ch := l.input[l.position]
			if ch == ' ' {
				width++
			} else if ch == '\t' {
				// Tabs count as one column, matching byte-based positions
				width++
			} else {
				break
			}
			l.advanceChar()
		}

		if l.position >= len(l.input) {
			l.atLineStart = false
			return Token{}, false // flushEOF handles trailing DEDENTs
		}

		ch := l.input[l.position]
		if ch == '\n' {
			// Blank line: consume and re-measure the next one
			l.advanceChar()
			continue
		}
		if ch == '#' && !l.keepComments {
			// Comment-only line: consume through end of line
			start := l.pos()
			l.lexComment(start, false)
			continue
		}

		_ = lineStart
		l.atLineStart = false
		current := l.indents[len(l.indents)-1]

		switch {
		case width > current:
			l.indents = append(l.indents, width)
			return Token{Type: INDENT, Position: l.pos()}, true

		case width < current:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: DEDENT, Position: l.pos()})
			}
			if l.indents[len(l.indents)-1] != width {
				l.report(diag.LexError, l.pos(),
					"unindent does not match any outer indentation level")
			}
			tok := l.pending[0]
			l.pending = l.pending[1:]
			return tok, true
		}
		return Token{}, false
	}
}

// flushEOF emits the final NEWLINE, any outstanding DEDENTs, and then EOF.
func (l *Lexer) flushEOF() Token {
	if !l.eofFlushed {
		l.eofFlushed = true
		if l.lineHadToken {
			l.lineHadToken = false
			l.pending = append(l.pending, Token{Type: NEWLINE, Position: l.pos()})
		}
		for len(l.indents) > 1 {
			l.indents = l.indents[:len(l.indents)-1]
			l.pending = append(l.pending, Token{Type: DEDENT, Position: l.pos()})
		}
		if len(l.pending) > 0 {
			tok := l.pending[0]
			l.pending = l.pending[1:]
			return tok
		}
	}
	return Token{Type: EOF, Position: l.pos()}
}

// lexToken dispatches on the current character. Literal classification
// order is a documented rule: quoted string > numeric literal > path/option
// literal > bare identifier/command name.
func (l *Lexer) lexToken(start diag.Position, ch byte, hadWhitespace bool) Token {
	// Quoted strings first
	if ch == '"' {
		return l.lexString(start, hadWhitespace)
	}

	// Numeric literals
	if isDigit(ch) {
		return l.lexNumber(start, hadWhitespace)
	}

	// Path/option literal forms, then bare identifiers
	if isIdentStart(ch) {
		return l.lexIdentifier(start, hadWhitespace)
	}

	switch ch {
	case '#':
		return l.lexComment(start, hadWhitespace)
	case '~':
		return l.lexPath(start, hadWhitespace)
	case '/':
		if l.peekAt(1) != 0 && isPathPart(l.peekAt(1)) {
			return l.lexPath(start, hadWhitespace)
		}
		l.advanceChar()
		return Token{Type: SLASH, Position: start, HasSpaceBefore: hadWhitespace}
	case '.':
		return l.lexDot(start, hadWhitespace)
	case '-':
		return l.lexMinus(start, hadWhitespace)
	case '_':
		if isIdentPart(l.peekAt(1)) {
			return l.lexIdentifier(start, hadWhitespace)
		}
		l.advanceChar()
		return Token{Type: UNDERSCORE, Position: start, HasSpaceBefore: hadWhitespace}
	case '=':
		l.advanceChar()
		if l.currentChar() == '=' {
			l.advanceChar()
			return Token{Type: EQ_EQ, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: EQUALS, Position: start, HasSpaceBefore: hadWhitespace}
	case ':':
		l.advanceChar()
		if l.currentChar() == ':' {
			l.advanceChar()
			return Token{Type: CONS, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: COLON, Position: start, HasSpaceBefore: hadWhitespace}
	case '<':
		l.advanceChar()
		if l.currentChar() == '=' {
			l.advanceChar()
			return Token{Type: LT_EQ, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: LT, Position: start, HasSpaceBefore: hadWhitespace}
	case '>':
		l.advanceChar()
		if l.currentChar() == '=' {
			l.advanceChar()
			return Token{Type: GT_EQ, Position: start, HasSpaceBefore: hadWhitespace}
		}
		if l.currentChar() == '>' {
			l.advanceChar()
			return Token{Type: APPEND, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: GT, Position: start, HasSpaceBefore: hadWhitespace}
	case '!':
		l.advanceChar()
		if l.currentChar() == '=' {
			l.advanceChar()
			return Token{Type: NOT_EQ, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: NOT, Position: start, HasSpaceBefore: hadWhitespace}
	case '&':
		l.advanceChar()
		if l.currentChar() == '&' {
			l.advanceChar()
			return Token{Type: AND_AND, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: ILLEGAL, Text: []byte{'&'}, Position: start, HasSpaceBefore: hadWhitespace}
	case '|':
		l.advanceChar()
		if l.currentChar() == '|' {
			l.advanceChar()
			return Token{Type: OR_OR, Position: start, HasSpaceBefore: hadWhitespace}
		}
		return Token{Type: PIPE, Position: start, HasSpaceBefore: hadWhitespace}
	case '+':
		l.advanceChar()
		return Token{Type: PLUS, Position: start, HasSpaceBefore: hadWhitespace}
	case '*':
		l.advanceChar()
		return Token{Type: STAR, Position: start, HasSpaceBefore: hadWhitespace}
	case '%':
		l.advanceChar()
		return Token{Type: PERCENT, Position: start, HasSpaceBefore: hadWhitespace}
	case '?':
		l.advanceChar()
		return Token{Type: QUESTION, Position: start, HasSpaceBefore: hadWhitespace}
	case '@':
		l.advanceChar()
		return Token{Type: AT, Position: start, HasSpaceBefore: hadWhitespace}
	case ',':
		l.advanceChar()
		return Token{Type: COMMA, Position: start, HasSpaceBefore: hadWhitespace}
	case '(':
		l.bracketDepth++
		l.advanceChar()
		return Token{Type: LPAREN, Position: start, HasSpaceBefore: hadWhitespace}
	case ')':
		l.closeBracket()
		l.advanceChar()
		return Token{Type: RPAREN, Position: start, HasSpaceBefore: hadWhitespace}
	case '[':
		l.bracketDepth++
		l.advanceChar()
		return Token{Type: LSQUARE, Position: start, HasSpaceBefore: hadWhitespace}
	case ']':
		l.closeBracket()
		l.advanceChar()
		return Token{Type: RSQUARE, Position: start, HasSpaceBefore: hadWhitespace}
	case '{':
		l.bracketDepth++
		l.advanceChar()
		return Token{Type: LBRACE, Position: start, HasSpaceBefore: hadWhitespace}
	case '}':
		l.closeBracket()
		l.advanceChar()
		return Token{Type: RBRACE, Position: start, HasSpaceBefore: hadWhitespace}
	}

	// Unrecognized character - advance and mark as illegal
	l.advanceChar()
	l.report(diag.LexError, start, fmt.Sprintf("unexpected character %q", string(ch)))
	return Token{Type: ILLEGAL, Text: []byte{ch}, Position: start, HasSpaceBefore: hadWhitespace}
}

func (l *Lexer) closeBracket() {
	if l.bracketDepth > 0 {
		l.bracketDepth--
	}
}

// lexIdentifier reads an identifier, keyword, or bare word that turns out to
// be a path (contains '/').
func (l *Lexer) lexIdentifier(start diag.Position, hadWhitespace bool) Token {
	startPos := l.position

	for l.position < len(l.input) && isIdentPart(l.input[l.position]) {
		l.advanceChar()
	}

	// A bare word continuing with '/' is a relative path (dir/file); one
	// continuing with '.'+letter is a filename (out.log). There is no member
	// access in the grammar, so the dot form is unambiguous.
	if (l.currentChar() == '/' && isPathPart(l.peekAt(1))) ||
		(l.currentChar() == '.' && isLetter(l.peekAt(1))) {
		return l.continuePath(start, startPos, hadWhitespace)
	}

	text := l.input[startPos:l.position]
	tokenType := IDENT
	if kw, ok := Keywords[string(text)]; ok {
		tokenType = kw
	}

	return Token{Type: tokenType, Text: text, Position: start, HasSpaceBefore: hadWhitespace}
}

// lexPath reads a file-path literal starting at '/', '~', './' or '../'.
func (l *Lexer) lexPath(start diag.Position, hadWhitespace bool) Token {
	return l.continuePath(start, l.position, hadWhitespace)
}

// continuePath consumes the remainder of a path literal from startPos.
func (l *Lexer) continuePath(start diag.Position, startPos int, hadWhitespace bool) Token {
	for l.position < len(l.input) && isPathPart(l.input[l.position]) {
		l.advanceChar()
	}
	return Token{Type: PATH, Text: l.input[startPos:l.position], Position: start, HasSpaceBefore: hadWhitespace}
}

// lexDot handles '..' (range), '../' and './' (paths), and '.5' (float).
func (l *Lexer) lexDot(start diag.Position, hadWhitespace bool) Token {
	next := l.peekAt(1)

	if next == '.' {
		if l.peekAt(2) == '/' {
			return l.lexPath(start, hadWhitespace)
		}
		l.advanceChar()
		l.advanceChar()
		return Token{Type: RANGE, Position: start, HasSpaceBefore: hadWhitespace}
	}
	if next == '/' {
		return l.lexPath(start, hadWhitespace)
	}
	if isDigit(next) {
		return l.lexNumber(start, hadWhitespace)
	}

	l.advanceChar()
	l.report(diag.LexError, start, "unexpected character '.'")
	return Token{Type: ILLEGAL, Text: []byte{'.'}, Position: start, HasSpaceBefore: hadWhitespace}
}

// lexMinus handles '->', option literals (-l, --verbose), and minus.
// A '-' immediately followed by a letter lexes as an option literal;
// subtraction is written with surrounding whitespace.
func (l *Lexer) lexMinus(start diag.Position, hadWhitespace bool) Token {
	next := l.peekAt(1)

	if next == '>' {
		l.advanceChar()
		l.advanceChar()
		return Token{Type: ARROW, Position: start, HasSpaceBefore: hadWhitespace}
	}

	if isLetter(next) || (next == '-' && isLetter(l.peekAt(2))) {
		startPos := l.position
		l.advanceChar()
		if l.currentChar() == '-' {
			l.advanceChar()
		}
		for l.position < len(l.input) && isOptionPart(l.input[l.position]) {
			l.advanceChar()
		}
		return Token{Type: OPTION, Text: l.input[startPos:l.position], Position: start, HasSpaceBefore: hadWhitespace}
	}

	l.advanceChar()
	return Token{Type: MINUS, Position: start, HasSpaceBefore: hadWhitespace}
}

// lexNumber tokenizes integer and float literals. '..' after the integer
// part belongs to a range, not a float.
func (l *Lexer) lexNumber(start diag.Position, hadWhitespace bool) Token {
	startPos := l.position
	isFloat := false

	if l.currentChar() == '.' {
		l.advanceChar()
		l.readDigits()
		isFloat = true
	} else {
		l.readDigits()
		if l.currentChar() == '.' && isDigit(l.peekAt(1)) {
			l.advanceChar()
			l.readDigits()
			isFloat = true
		}
	}

	text := l.input[startPos:l.position]
	if isFloat {
		return Token{Type: FLOAT, Text: text, Position: start, HasSpaceBefore: hadWhitespace}
	}
	return Token{Type: INT, Text: text, Position: start, HasSpaceBefore: hadWhitespace}
}

func (l *Lexer) readDigits() bool {
	startPos := l.position
	for l.position < len(l.input) && isDigit(l.input[l.position]) {
		l.advanceChar()
	}
	return l.position > startPos
}

// lexComment handles '#' line comments and '###' block comments.
// Block comments must be terminated; hitting EOF first is a LexError.
func (l *Lexer) lexComment(start diag.Position, hadWhitespace bool) Token {
	startPos := l.position

	if l.peekAt(1) == '#' && l.peekAt(2) == '#' {
		l.advanceChar()
		l.advanceChar()
		l.advanceChar()
		for l.position < len(l.input) {
			if l.currentChar() == '#' && l.peekAt(1) == '#' && l.peekAt(2) == '#' {
				l.advanceChar()
				l.advanceChar()
				l.advanceChar()
				return Token{Type: COMMENT, Text: l.input[startPos:l.position], Position: start, HasSpaceBefore: hadWhitespace}
			}
			l.advanceChar()
		}
		l.report(diag.LexError, start, "unterminated block comment")
		return Token{Type: COMMENT, Text: l.input[startPos:l.position], Position: start, HasSpaceBefore: hadWhitespace}
	}

	for l.position < len(l.input) && l.currentChar() != '\n' {
		l.advanceChar()
	}
	return Token{Type: COMMENT, Text: l.input[startPos:l.position], Position: start, HasSpaceBefore: hadWhitespace}
}

// lexString reads a quoted string with interpolation. "..." is single-line,
// """...""" spans lines. Interpolation spans ($x and $(expr)) become
// expression segments, lexed by recursively invoking the lexer on the
// embedded text.
func (l *Lexer) lexString(start diag.Position, hadWhitespace bool) Token {
	startPos := l.position
	triple := l.peekAt(1) == '"' && l.peekAt(2) == '"'

	l.advanceChar()
	if triple {
		l.advanceChar()
		l.advanceChar()
	}

	var segments []Segment
	var lit []byte

	flush := func() {
		if len(lit) > 0 {
			segments = append(segments, Segment{Lit: string(lit)})
			lit = nil
		}
	}

	for {
		if l.position >= len(l.input) {
			l.report(diag.LexError, start, "unterminated string literal")
			break
		}
		ch := l.currentChar()

		if ch == '\n' && !triple {
			l.report(diag.LexError, start, "unterminated string literal")
			break
		}

		if ch == '"' {
			if !triple {
				l.advanceChar()
				break
			}
			if l.peekAt(1) == '"' && l.peekAt(2) == '"' {
				l.advanceChar()
				l.advanceChar()
				l.advanceChar()
				break
			}
			lit = append(lit, ch)
			l.advanceChar()
			continue
		}

		if ch == '\\' {
			esc := l.peekAt(1)
			escStart := l.pos()
			l.advanceChar()
			l.advanceChar()
			switch esc {
			case 'n':
				lit = append(lit, '\n')
			case 't':
				lit = append(lit, '\t')
			case '\\':
				lit = append(lit, '\\')
			case '"':
				lit = append(lit, '"')
			case '$':
				lit = append(lit, '$')
			default:
				l.report(diag.LexError, escStart, fmt.Sprintf("invalid escape sequence '\\%s'", string(esc)))
			}
			continue
		}

		if ch == '$' {
			next := l.peekAt(1)
			if isIdentStart(next) || next == '_' {
				flush()
				l.advanceChar() // consume '$'
				nameStart := l.position
				for l.position < len(l.input) && isIdentPart(l.input[l.position]) {
					l.advanceChar()
				}
				name := l.input[nameStart:l.position]
				segments = append(segments, Segment{Expr: []Token{{
					Type:     IDENT,
					Text:     name,
					Position: diag.Position{Line: l.line, Column: l.column - len(name)},
				}}})
				continue
			}
			if next == '(' {
				flush()
				exprStart := l.pos()
				l.advanceChar() // consume '$'
				l.advanceChar() // consume '('
				exprPos := l.position
				depth := 1
				for l.position < len(l.input) && depth > 0 {
					switch l.currentChar() {
					case '(':
						depth++
					case ')':
						depth--
					}
					if depth > 0 {
						l.advanceChar()
					}
				}
				if depth > 0 {
					l.report(diag.LexError, exprStart, "unterminated interpolation expression")
					break
				}
				inner := l.input[exprPos:l.position]
				l.advanceChar() // consume ')'
				segments = append(segments, Segment{Expr: l.lexEmbedded(inner, exprStart)})
				continue
			}
		}

		lit = append(lit, ch)
		l.advanceChar()
	}

	flush()
	if len(segments) == 0 {
		segments = append(segments, Segment{Lit: ""})
	}

	return Token{
		Type:           STRING,
		Text:           l.input[startPos:l.position],
		Position:       start,
		HasSpaceBefore: hadWhitespace,
		Segments:       segments,
	}
}

// lexEmbedded recursively lexes an interpolation expression, dropping layout
// tokens (the embedded text is a single expression, never a block).
func (l *Lexer) lexEmbedded(text []byte, at diag.Position) []Token {
	sub := New(text)
	tokens, diags := sub.Tokens()
	for _, d := range diags {
		d.Pos = at
		d.Source = l.source
		l.diags = append(l.diags, d)
	}

	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		switch tok.Type {
		case NEWLINE, INDENT, DEDENT, EOF:
			continue
		}
		out = append(out, tok)
	}
	return out
}

// skipInlineWhitespace skips spaces and tabs, returning true if any were
// skipped. Newlines are significant and handled separately.
func (l *Lexer) skipInlineWhitespace() bool {
	start := l.position
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch != ' ' && ch != '\t' && ch != '\r' {
			break
		}
		l.advanceChar()
	}
	return l.position > start
}

func (l *Lexer) pos() diag.Position {
	return diag.Position{Line: l.line, Column: l.column, Offset: l.position}
}

func (l *Lexer) report(kind diag.Kind, pos diag.Position, msg string) {
	l.diags = append(l.diags, diag.Diagnostic{Kind: kind, Message: msg, Pos: pos, Source: l.source})
}

// currentChar returns the current byte (ASCII fast path)
func (l *Lexer) currentChar() byte {
	if l.position >= len(l.input) {
		return 0
	}
	return l.input[l.position]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.position+offset >= len(l.input) {
		return 0
	}
	return l.input[l.position+offset]
}

// advanceChar moves to the next character, handling Unicode for position
// tracking only. Token content stays raw bytes.
func (l *Lexer) advanceChar() {
	if l.position >= len(l.input) {
		return
	}

	ch := l.input[l.position]
	if ch < 128 {
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.position++
		return
	}

	_, size := utf8.DecodeRune(l.input[l.position:])
	if size <= 0 {
		size = 1 // Invalid UTF-8, treat as single byte
	}
	l.position += size
	l.column++
}

func isDigit(ch byte) bool  { return ch >= '0' && ch <= '9' }
func isLetter(ch byte) bool { return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') }

func isIdentStart(ch byte) bool { return isLetter(ch) }

func isIdentPart(ch byte) bool { return isLetter(ch) || isDigit(ch) || ch == '_' }

// isPathPart reports whether ch may appear in a path literal.
func isPathPart(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '/' || ch == '.' || ch == '-' || ch == '~'
}

// isOptionPart reports whether ch may appear in an option literal after the
// leading dashes.
func isOptionPart(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '-' || ch == '_'
}
