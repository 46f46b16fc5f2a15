package lexer

import "github.com/hash-lang/hash/core/diag"

// TokenType represents lexical tokens for the hash language
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Layout tokens. Block structure is indentation-delimited, so the
	// lexer emits INDENT/DEDENT as first-class tokens. Newlines inside
	// brackets are suppressed by the bracket-depth counter.
	NEWLINE
	INDENT
	DEDENT

	// Keywords
	FN     // fn
	CASE   // case
	VAL    // val - immutable binding
	VAR    // var - mutable binding
	IF     // if
	ELSE   // else
	FOR    // for
	IN     // in
	WHILE  // while
	SWITCH // switch
	IMPORT // import - hashlet import

	// Language structure
	AT         // @ - argument declarations (@1, @name)
	COLON      // :
	COMMA      // ,
	EQUALS     // =
	ARROW      // -> (lambda bodies, clause arrows)
	RANGE      // .. (ranges and slices)
	CONS       // :: (list head/tail pattern)
	QUESTION   // ? (exit-status boolean call suffix)
	UNDERSCORE // _ (wildcard pattern, lambda shorthand)

	// Brackets and braces
	LPAREN  // (
	RPAREN  // )
	LBRACE  // {
	RBRACE  // }
	LSQUARE // [
	RSQUARE // ]

	// Comparison operators
	EQ_EQ  // ==
	NOT_EQ // !=
	LT     // <
	LT_EQ  // <=
	GT     // > (comparison or redirect, disambiguated by the parser)
	GT_EQ  // >=

	// Logical operators
	AND_AND // &&
	OR_OR   // ||
	NOT     // !

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %

	// Shell operators
	PIPE   // |
	APPEND // >> (appending redirect)

	// Literals and content
	IDENT  // identifiers, command names
	INT    // 123, 0
	FLOAT  // 3.14, .5
	STRING // "interpolated $x" or """multi-line"""
	PATH   // /usr/bin, ./x, ~/y, dir/file
	OPTION // -l, --verbose

	// Comments
	COMMENT // # single line, ### block ###
)

// String returns a string representation of the token type
func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case ILLEGAL:
		return "ILLEGAL"
	case NEWLINE:
		return "NEWLINE"
	case INDENT:
		return "INDENT"
	case DEDENT:
		return "DEDENT"
	case FN:
		return "FN"
	case CASE:
		return "CASE"
	case VAL:
		return "VAL"
	case VAR:
		return "VAR"
	case IF:
		return "IF"
	case ELSE:
		return "ELSE"
	case FOR:
		return "FOR"
	case IN:
		return "IN"
	case WHILE:
		return "WHILE"
	case SWITCH:
		return "SWITCH"
	case IMPORT:
		return "IMPORT"
	case AT:
		return "AT"
	case COLON:
		return "COLON"
	case COMMA:
		return "COMMA"
	case EQUALS:
		return "EQUALS"
	case ARROW:
		return "ARROW"
	case RANGE:
		return "RANGE"
	case CONS:
		return "CONS"
	case QUESTION:
		return "QUESTION"
	case UNDERSCORE:
		return "UNDERSCORE"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	case LSQUARE:
		return "LSQUARE"
	case RSQUARE:
		return "RSQUARE"
	case EQ_EQ:
		return "EQ_EQ"
	case NOT_EQ:
		return "NOT_EQ"
	case LT:
		return "LT"
	case LT_EQ:
		return "LT_EQ"
	case GT:
		return "GT"
	case GT_EQ:
		return "GT_EQ"
	case AND_AND:
		return "AND_AND"
	case OR_OR:
		return "OR_OR"
	case NOT:
		return "NOT"
	case PLUS:
		return "PLUS"
	case MINUS:
		return "MINUS"
	case STAR:
		return "STAR"
	case SLASH:
		return "SLASH"
	case PERCENT:
		return "PERCENT"
	case PIPE:
		return "PIPE"
	case APPEND:
		return "APPEND"
	case IDENT:
		return "IDENT"
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	case PATH:
		return "PATH"
	case OPTION:
		return "OPTION"
	case COMMENT:
		return "COMMENT"
	default:
		return "UNKNOWN"
	}
}

// Segment is one piece of an interpolated string: either a literal fragment
// (Expr is nil) or an embedded expression lexed recursively ($x, $(expr)).
type Segment struct {
	Lit  string
	Expr []Token
}

// Token represents a lexical token. Tokens are immutable once produced.
type Token struct {
	Type           TokenType
	Text           []byte // raw source bytes, nil for self-identifying tokens
	Position       diag.Position
	HasSpaceBefore bool // true if whitespace preceded this token

	// Segments carries interpolation structure for STRING tokens only.
	// A plain string has exactly one literal segment.
	Segments []Segment
}

// String returns the token text as a string (for testing and debugging)
func (t Token) String() string {
	return string(t.Text)
}

// Keywords maps identifier spellings to keyword token types
var Keywords = map[string]TokenType{
	"fn":     FN,
	"case":   CASE,
	"val":    VAL,
	"var":    VAR,
	"if":     IF,
	"else":   ELSE,
	"for":    FOR,
	"in":     IN,
	"while":  WHILE,
	"switch": SWITCH,
	"import": IMPORT,
}
