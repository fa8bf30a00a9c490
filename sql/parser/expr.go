package parser

import (
	"coredb/sql/ast"
	"coredb/sql/lexer"
)

// precedence levels, lowest to highest.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precUnary
)

func precedenceOf(kind lexer.TokenKind) int {
	switch kind {
	case lexer.OR:
		return precOr
	case lexer.AND:
		return precAnd
	case lexer.EQUAL, lexer.NOTEQUAL, lexer.LESS, lexer.LESSEQ, lexer.GREATER, lexer.GREATEREQ:
		return precCompare
	case lexer.PLUS, lexer.MINUS:
		return precAdd
	case lexer.ASTERISK, lexer.SLASH, lexer.PERCENT:
		return precMul
	default:
		return precLowest
	}
}

// parseExpr parses a full expression via precedence climbing, the
// conventional extension of the teacher's flat single-comparison WHERE
// clause (`col = value`) into arbitrary boolean/arithmetic trees, which
// spec.md §6 requires for WHERE/HAVING/ON/CHECK.
func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parseUnary()

	for {
		op, isPostfix := p.matchPostfixOp()
		if isPostfix {
			left = p.parsePostfix(left, op)
			continue
		}

		prec := precedenceOf(p.curToken.Kind)
		if prec == precLowest || prec < minPrec {
			break
		}
		opTok := p.curToken
		p.nextToken()
		right := p.parseExpr(prec + 1)
		left = &ast.BinaryExpr{Op: opTok.Kind.String(), Left: left, Right: right}
	}
	return left
}

// matchPostfixOp recognizes the multi-token trailing forms (IS [NOT] NULL,
// [NOT] BETWEEN, [NOT] LIKE, [NOT] IN) that don't fit the simple
// binary-operator shape.
func (p *Parser) matchPostfixOp() (lexer.TokenKind, bool) {
	switch p.curToken.Kind {
	case lexer.IS, lexer.BETWEEN, lexer.LIKE, lexer.IN:
		return p.curToken.Kind, true
	case lexer.NOT:
		switch p.peekToken.Kind {
		case lexer.BETWEEN, lexer.LIKE, lexer.IN:
			return p.peekToken.Kind, true
		}
	}
	return 0, false
}

func (p *Parser) parsePostfix(left ast.Expr, kind lexer.TokenKind) ast.Expr {
	not := false
	if p.curToken.Kind == lexer.NOT {
		not = true
		p.nextToken()
	}

	switch kind {
	case lexer.IS:
		p.nextToken() // consume IS
		if p.curToken.Kind == lexer.NOT {
			not = true
			p.nextToken()
		}
		if !p.expectConsume(lexer.NULL_) {
			return left
		}
		return &ast.IsNullExpr{Expr: left, Not: not}

	case lexer.BETWEEN:
		p.nextToken() // consume BETWEEN
		low := p.parseExpr(precAdd)
		if !p.expectConsume(lexer.AND) {
			return left
		}
		high := p.parseExpr(precAdd)
		return &ast.BetweenExpr{Expr: left, Low: low, High: high, Not: not}

	case lexer.LIKE:
		p.nextToken() // consume LIKE
		pattern := p.parseExpr(precAdd)
		return &ast.LikeExpr{Expr: left, Pattern: pattern, Not: not}

	case lexer.IN:
		p.nextToken() // consume IN
		if !p.expectConsume(lexer.OPENPAREN) {
			return left
		}
		if p.curToken.Kind == lexer.SELECT {
			sub := p.parseSelect()
			p.expectConsume(lexer.CLOSEPAREN)
			return &ast.InExpr{Expr: left, Subquery: sub, Not: not}
		}
		var list []ast.Expr
		for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
			list = append(list, p.parseExpr(precLowest+1))
			if p.curToken.Kind == lexer.COMMA {
				p.nextToken()
			}
		}
		p.expectConsume(lexer.CLOSEPAREN)
		return &ast.InExpr{Expr: left, List: list, Not: not}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.curToken.Kind {
	case lexer.NOT:
		p.nextToken()
		return &ast.UnaryExpr{Op: "NOT", Expr: p.parseExpr(precNot)}
	case lexer.MINUS, lexer.PLUS:
		op := p.curToken.Kind.String()
		p.nextToken()
		return &ast.UnaryExpr{Op: op, Expr: p.parseExpr(precUnary)}
	case lexer.EXISTS:
		p.nextToken()
		if !p.expectConsume(lexer.OPENPAREN) {
			return nil
		}
		sub := p.parseSelect()
		p.expectConsume(lexer.CLOSEPAREN)
		return &ast.ExistsExpr{Subquery: sub}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() ast.Expr {
	switch p.curToken.Kind {
	case lexer.NUMBER:
		lit := &ast.NumberLiteral{Text: p.curToken.Value}
		p.nextToken()
		return lit
	case lexer.STRING:
		lit := &ast.StringLiteral{Value: p.curToken.Value}
		p.nextToken()
		return lit
	case lexer.TRUE:
		p.nextToken()
		return &ast.BoolLiteral{Value: true}
	case lexer.FALSE:
		p.nextToken()
		return &ast.BoolLiteral{Value: false}
	case lexer.NULL_:
		p.nextToken()
		return &ast.NullLiteral{}
	case lexer.QUESTION:
		p.nextToken()
		return &ast.ParamPlaceholder{}
	case lexer.OPENPAREN:
		p.nextToken()
		if p.curToken.Kind == lexer.SELECT {
			sub := p.parseSelect()
			p.expectConsume(lexer.CLOSEPAREN)
			return &ast.ScalarSubquery{Query: sub}
		}
		expr := p.parseExpr(precLowest)
		p.expectConsume(lexer.CLOSEPAREN)
		return expr
	case lexer.IDENT:
		return p.parseIdentOrCall()
	}
	p.fail("unexpected token in expression: %s (%q)", p.curToken.Kind, p.curToken.Value)
	p.nextToken()
	return nil
}

// parseIdentOrCall handles a bare column, a table.column reference, and a
// function call (aggregate or scalar), e.g. COUNT(*), COUNT(DISTINCT x),
// SUM(price).
func (p *Parser) parseIdentOrCall() ast.Expr {
	name := p.curToken.Value
	p.nextToken()

	if p.curToken.Kind == lexer.DOT {
		p.nextToken()
		col := p.identText()
		return &ast.ColumnRef{Table: name, Name: col}
	}

	if p.curToken.Kind == lexer.OPENPAREN {
		p.nextToken()
		call := &ast.FuncCall{Name: name}
		if p.curToken.Kind == lexer.DISTINCT {
			call.Distinct = true
			p.nextToken()
		}
		if p.curToken.Kind == lexer.ASTERISK {
			call.Star = true
			p.nextToken()
		} else {
			for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
				call.Args = append(call.Args, p.parseExpr(precLowest+1))
				if p.curToken.Kind == lexer.COMMA {
					p.nextToken()
				}
			}
		}
		p.expectConsume(lexer.CLOSEPAREN)
		return call
	}

	return &ast.ColumnRef{Name: name}
}
