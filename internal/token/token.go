package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// Line separates expressions in a sequence: a newline or ';'.
	Line Type = "LINE"

	// identifiers and literals
	Name   Type = "NAME"
	Number Type = "NUMBER"
	String Type = "STRING"

	// keywords
	Fn    Type = "FN"
	Var   Type = "VAR"
	If    Type = "IF"
	Then  Type = "THEN"
	Else  Type = "ELSE"
	True  Type = "TRUE"
	False Type = "FALSE"

	// delimiters
	Equals Type = "EQUALS"
	Comma  Type = "COMMA"
	LParen Type = "LPAREN"
	RParen Type = "RPAREN"
	LBrace Type = "LBRACE"
	RBrace Type = "RBRACE"
)

var keywords = map[string]Type{
	"fn":    Fn,
	"var":   Var,
	"if":    If,
	"then":  Then,
	"else":  Else,
	"true":  True,
	"false": False,
}

// LookupIdent returns the keyword token type or Name.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Name
}
