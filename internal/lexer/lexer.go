package lexer

import (
	"strings"

	"github.com/xirelogy/bulfinch/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input     string
	pos       int  // current position in bytes
	readPos   int  // next read position
	ch        byte // current char
	line      int
	column    int
	lastToken token.Type
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	l := &Lexer{
		input:     input,
		line:      1,
		column:    0,
		lastToken: token.Line, // treat start as a line boundary
	}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == '#' {
			l.skipLineComment()
			continue
		}

		if l.ch == '\n' || l.ch == ';' {
			if tok, ok := l.consumeLine(); ok {
				return tok
			}
			continue
		}

		if l.ch == 0 {
			return l.makeToken(token.EOF, "")
		}

		switch l.ch {
		case '=':
			tok := l.makeToken(token.Equals, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case ',':
			tok := l.makeToken(token.Comma, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case '(':
			tok := l.makeToken(token.LParen, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case ')':
			tok := l.makeToken(token.RParen, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case '{':
			tok := l.makeToken(token.LBrace, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case '}':
			tok := l.makeToken(token.RBrace, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		case '"':
			return l.readString()
		default:
			if isLetter(l.ch) {
				return l.readIdentifier()
			}
			if isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())) {
				return l.readNumber()
			}

			tok := l.makeToken(token.Illegal, string(l.ch))
			l.readChar()
			return l.finishToken(tok)
		}
	}
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos: token.Position{
			Offset: l.pos,
			Line:   l.line,
			Column: l.column,
		},
	}
}

func (l *Lexer) finishToken(tok token.Token) token.Token {
	l.lastToken = tok.Type
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// consumeLine emits a single Line token for a run of separators, and only
// after a token that can end an expression. A newline after '(' or ',' is
// just whitespace.
func (l *Lexer) consumeLine() (token.Token, bool) {
	tok := l.makeToken(token.Line, "")
	if l.ch == ';' {
		tok.Literal = ";"
	}
	l.readChar()

	if lineEligible(l.lastToken) {
		l.lastToken = token.Line
		return tok, true
	}
	return token.Token{}, false
}

func (l *Lexer) skipLineComment() {
	for l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.makeToken(token.Name, "")
	var sb strings.Builder
	for isLetter(l.ch) || isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	lit := sb.String()
	start.Type = token.LookupIdent(lit)
	start.Literal = lit
	return l.finishToken(start)
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Number, "")
	var sb strings.Builder
	if l.ch == '-' {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	for isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		sb.WriteByte(l.ch)
		l.readChar()
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	start.Literal = sb.String()
	return l.finishToken(start)
}

func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder

	for {
		l.readChar()
		if l.ch == 0 {
			illegal := l.makeToken(token.Illegal, "unterminated string")
			l.lastToken = token.Illegal
			return illegal
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case '"', '\\':
				sb.WriteByte(l.ch)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(l.ch)
			}
			continue
		}
		sb.WriteByte(l.ch)
	}

	start.Literal = sb.String()
	return l.finishToken(start)
}

func lineEligible(t token.Type) bool {
	switch t {
	case token.Name, token.Number, token.String,
		token.True, token.False,
		token.RParen, token.RBrace:
		return true
	default:
		return false
	}
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = l.readPos
		l.ch = 0
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}
