package parser

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/xirelogy/bulfinch/internal/ast"
	"github.com/xirelogy/bulfinch/internal/lexer"
	"github.com/xirelogy/bulfinch/internal/token"
)

// Parser is a recursive-descent parser over the lexer's token stream.
// Parsing stops at the first syntax error; duplicate top-level names are
// collected without stopping.
type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
	errors    *multierror.Error
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Read two tokens, so curToken and peekToken are set
	p.nextToken()
	p.nextToken()
	return p
}

// Err returns all parse errors as one error, or nil.
func (p *Parser) Err() error {
	return p.errors.ErrorOrNil()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// ParseProgram parses a sequence of `fn name(params) { body }` definitions.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	seen := make(map[string]bool)

	for {
		p.skipLines()
		if p.curToken.Type == token.EOF {
			break
		}
		decl := p.parseFuncDecl()
		if decl == nil {
			break
		}
		if seen[decl.Name] {
			p.errorf(decl.PosT, "function %s is already defined", decl.Name)
			continue
		}
		seen[decl.Name] = true
		prog.Functions = append(prog.Functions, decl)
	}
	return prog
}

// ParseExpression parses a single expression sequence up to EOF. Used by
// tests and tools that work on bare expressions.
func (p *Parser) ParseExpression() ast.Expression {
	expr := p.parseSequence(token.EOF)
	if expr != nil && p.curToken.Type != token.EOF {
		p.errorf(p.curToken.Pos, "unexpected token %s", p.curToken.Type)
		return nil
	}
	return expr
}

func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	decl := &ast.FuncDecl{PosT: p.curToken.Pos}
	if !p.expect(token.Fn) {
		return nil
	}
	p.nextToken()
	if !p.expect(token.Name) {
		return nil
	}
	decl.Name = p.curToken.Literal
	p.nextToken()
	fn := p.parseFunctionRest(decl.PosT)
	if fn == nil {
		return nil
	}
	decl.Func = fn
	return decl
}

// parseFunctionRest parses `(params) { body }` with curToken on '('.
func (p *Parser) parseFunctionRest(pos token.Position) *ast.FunctionLiteral {
	params, ok := p.parseParams()
	if !ok {
		return nil
	}
	body := p.parseGroup(token.LBrace, token.RBrace)
	if body == nil {
		return nil
	}
	return &ast.FunctionLiteral{Params: params, Body: body, PosT: pos}
}

func (p *Parser) parseParams() ([]string, bool) {
	if !p.expect(token.LParen) {
		return nil, false
	}
	p.nextToken()
	params := []string{}
	if p.curToken.Type == token.RParen {
		p.nextToken()
		return params, true
	}
	for {
		if !p.expect(token.Name) {
			return nil, false
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if p.curToken.Type == token.Comma {
			p.nextToken()
			continue
		}
		if !p.expect(token.RParen) {
			return nil, false
		}
		p.nextToken()
		return params, true
	}
}

// parseGroup parses open sequence close, leaving curToken past close.
func (p *Parser) parseGroup(open, close token.Type) ast.Expression {
	if !p.expect(open) {
		return nil
	}
	p.nextToken()
	body := p.parseSequence(close)
	if body == nil {
		return nil
	}
	if !p.expect(close) {
		return nil
	}
	p.nextToken()
	return body
}

// parseSequence parses expressions separated by lines (or plain
// juxtaposition) until closer. A single expression is returned as itself.
func (p *Parser) parseSequence(closer token.Type) ast.Expression {
	pos := p.curToken.Pos
	p.skipLines()
	exprs := []ast.Expression{}
	for p.curToken.Type != closer && p.curToken.Type != token.EOF {
		expr := p.parseExpressionInner()
		if expr == nil {
			return nil
		}
		exprs = append(exprs, expr)
		p.skipLines()
	}
	switch len(exprs) {
	case 0:
		p.errorf(p.curToken.Pos, "expected expression, got %s", p.curToken.Type)
		return nil
	case 1:
		return exprs[0]
	default:
		return &ast.SequenceExpr{Expressions: exprs, PosT: pos}
	}
}

func (p *Parser) parseExpressionInner() ast.Expression {
	if p.curToken.Type == token.Name && p.peekToken.Type == token.Equals {
		target := &ast.Name{Identifier: p.curToken.Literal, PosT: p.curToken.Pos}
		p.nextToken() // move to '='
		p.nextToken() // move to value start
		value := p.parseExpressionInner()
		if value == nil {
			return nil
		}
		return &ast.AssignExpr{Target: target, Value: value}
	}
	return p.parseCall()
}

func (p *Parser) parseCall() ast.Expression {
	expr := p.parsePrimary()
	for expr != nil && p.curToken.Type == token.LParen {
		call := &ast.CallExpr{Callee: expr, PosT: p.curToken.Pos}
		p.nextToken()
		args, ok := p.parseArguments()
		if !ok {
			return nil
		}
		call.Arguments = args
		expr = call
	}
	return expr
}

func (p *Parser) parseArguments() ([]ast.Expression, bool) {
	args := []ast.Expression{}
	if p.curToken.Type == token.RParen {
		p.nextToken()
		return args, true
	}
	for {
		arg := p.parseExpressionInner()
		if arg == nil {
			return nil, false
		}
		args = append(args, arg)
		p.skipLines()
		if p.curToken.Type == token.Comma {
			p.nextToken()
			continue
		}
		if !p.expect(token.RParen) {
			return nil, false
		}
		p.nextToken()
		return args, true
	}
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.curToken
	switch tok.Type {
	case token.Name:
		p.nextToken()
		return &ast.NameExpr{Name: &ast.Name{Identifier: tok.Literal, PosT: tok.Pos}}
	case token.True, token.False:
		p.nextToken()
		return &ast.BoolLiteral{Value: tok.Type == token.True, PosT: tok.Pos}
	case token.Number:
		num, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf(tok.Pos, "invalid number %q", tok.Literal)
			return nil
		}
		p.nextToken()
		return &ast.NumberLiteral{Value: num, PosT: tok.Pos}
	case token.String:
		p.nextToken()
		return &ast.StringLiteral{Value: tok.Literal, PosT: tok.Pos}
	case token.Var:
		return p.parseVar()
	case token.Fn:
		p.nextToken()
		fn := p.parseFunctionRest(tok.Pos)
		if fn == nil {
			return nil
		}
		return fn
	case token.If:
		return p.parseIf()
	case token.LParen:
		return p.parseGroup(token.LParen, token.RParen)
	case token.LBrace:
		return p.parseGroup(token.LBrace, token.RBrace)
	case token.Illegal:
		p.errorf(tok.Pos, "illegal token %q", tok.Literal)
		return nil
	default:
		p.errorf(tok.Pos, "unexpected token %s", tok.Type)
		return nil
	}
}

func (p *Parser) parseVar() ast.Expression {
	pos := p.curToken.Pos
	p.nextToken()
	if !p.expect(token.Name) {
		return nil
	}
	target := &ast.Name{Identifier: p.curToken.Literal, PosT: p.curToken.Pos}
	p.nextToken()
	if !p.expect(token.Equals) {
		return nil
	}
	p.nextToken()
	value := p.parseExpressionInner()
	if value == nil {
		return nil
	}
	return &ast.VarExpr{Target: target, Value: value, PosT: pos}
}

func (p *Parser) parseIf() ast.Expression {
	expr := &ast.IfExpr{PosT: p.curToken.Pos}
	p.nextToken()
	if expr.Condition = p.parseExpressionInner(); expr.Condition == nil {
		return nil
	}
	p.skipLines()
	if !p.expect(token.Then) {
		return nil
	}
	p.nextToken()
	if expr.Then = p.parseExpressionInner(); expr.Then == nil {
		return nil
	}
	p.skipLines()
	if !p.expect(token.Else) {
		return nil
	}
	p.nextToken()
	if expr.Else = p.parseExpressionInner(); expr.Else == nil {
		return nil
	}
	return expr
}

func (p *Parser) expect(t token.Type) bool {
	if p.curToken.Type == t {
		return true
	}
	p.errorf(p.curToken.Pos, "expected %s, got %s", t, p.curToken.Type)
	return false
}

func (p *Parser) skipLines() {
	for p.curToken.Type == token.Line {
		p.nextToken()
	}
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.errors = multierror.Append(p.errors, fmt.Errorf("%d:%d: %s", pos.Line, pos.Column, msg))
}
