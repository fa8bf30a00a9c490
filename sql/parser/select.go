package parser

import (
	"coredb/sql/ast"
	"coredb/sql/lexer"
)

// parseSelect parses a full SELECT, generalizing the teacher's
// SelectStmt{Columns,Table} (a bare column list plus one table, no WHERE
// tree at all) into the full clause set spec.md §6 requires.
func (p *Parser) parseSelect() *ast.SelectStmt {
	if !p.expectConsume(lexer.SELECT) {
		return nil
	}
	stmt := &ast.SelectStmt{}

	if p.curToken.Kind == lexer.DISTINCT {
		stmt.Distinct = true
		p.nextToken()
	}

	stmt.Columns = p.parseSelectList()

	if p.curToken.Kind == lexer.FROM {
		p.nextToken()
		stmt.From = p.identText()
		if p.curToken.Kind == lexer.AS {
			p.nextToken()
			stmt.FromAlias = p.identText()
		} else if p.curToken.Kind == lexer.IDENT {
			stmt.FromAlias = p.identText()
		}
	}

	for p.isJoinStart() {
		stmt.Joins = append(stmt.Joins, p.parseJoinClause())
	}

	if p.curToken.Kind == lexer.WHERE {
		p.nextToken()
		stmt.Where = p.parseExpr(precLowest)
	}

	if p.curToken.Kind == lexer.GROUP {
		p.nextToken()
		p.expectConsume(lexer.BY)
		stmt.GroupBy = p.parseExprList()
	}

	if p.curToken.Kind == lexer.HAVING {
		p.nextToken()
		stmt.Having = p.parseExpr(precLowest)
	}

	if p.curToken.Kind == lexer.ORDER {
		p.nextToken()
		p.expectConsume(lexer.BY)
		stmt.OrderBy = p.parseOrderByList()
	}

	if p.curToken.Kind == lexer.LIMIT {
		p.nextToken()
		if !p.expect(lexer.NUMBER) {
			return stmt
		}
		n := parseIntLiteral(p.curToken.Value)
		stmt.Limit = &n
		p.nextToken()
	}

	return stmt
}

func (p *Parser) parseSelectList() []ast.SelectItem {
	var items []ast.SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return items
}

func (p *Parser) parseSelectItem() ast.SelectItem {
	if p.curToken.Kind == lexer.ASTERISK {
		p.nextToken()
		return ast.SelectItem{Star: true}
	}
	expr := p.parseExpr(precLowest)
	item := ast.SelectItem{Expr: expr}
	if p.curToken.Kind == lexer.AS {
		p.nextToken()
		item.Alias = p.identText()
	} else if p.curToken.Kind == lexer.IDENT {
		item.Alias = p.identText()
	}
	return item
}

func (p *Parser) isJoinStart() bool {
	switch p.curToken.Kind {
	case lexer.JOIN, lexer.INNER, lexer.LEFT, lexer.RIGHT, lexer.FULL:
		return true
	}
	return false
}

func (p *Parser) parseJoinClause() ast.JoinClause {
	jt := ast.JoinInner
	switch p.curToken.Kind {
	case lexer.INNER:
		p.nextToken()
	case lexer.LEFT:
		jt = ast.JoinLeft
		p.nextToken()
	case lexer.RIGHT:
		jt = ast.JoinRight
		p.nextToken()
	case lexer.FULL:
		jt = ast.JoinFull
		p.nextToken()
	}
	p.expectConsume(lexer.JOIN)

	jc := ast.JoinClause{Type: jt, Table: p.identText()}
	if p.curToken.Kind == lexer.AS {
		p.nextToken()
		jc.Alias = p.identText()
	} else if p.curToken.Kind == lexer.IDENT {
		jc.Alias = p.identText()
	}
	if p.expectConsume(lexer.ON) {
		jc.On = p.parseExpr(precLowest)
	}
	return jc
}

func (p *Parser) parseExprList() []ast.Expr {
	var list []ast.Expr
	for {
		list = append(list, p.parseExpr(precLowest+1))
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return list
}

func (p *Parser) parseOrderByList() []ast.OrderByItem {
	var items []ast.OrderByItem
	for {
		item := ast.OrderByItem{Expr: p.parseExpr(precLowest + 1)}
		switch p.curToken.Kind {
		case lexer.ASC:
			p.nextToken()
		case lexer.DESC:
			item.Desc = true
			p.nextToken()
		}
		items = append(items, item)
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return items
}

// parseIntLiteral converts a lexed NUMBER token's text to an int64,
// truncating any fractional part; LIMIT never takes a decimal.
func parseIntLiteral(text string) int64 {
	var n int64
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
