package parser

import (
	"coredb/sql/ast"
	"coredb/sql/lexer"
)

// parseInsert generalizes the teacher's InsertStmt{Table,Values} (a single
// row of bare values, no column list) into an optional column list and
// multiple VALUES rows.
func (p *Parser) parseInsert() *ast.InsertStmt {
	if !p.expectConsume(lexer.INSERT) {
		return nil
	}
	if !p.expectConsume(lexer.INTO) {
		return nil
	}
	stmt := &ast.InsertStmt{Table: p.identText()}

	if p.curToken.Kind == lexer.OPENPAREN {
		p.nextToken()
		for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
			stmt.Columns = append(stmt.Columns, p.identText())
			if p.curToken.Kind == lexer.COMMA {
				p.nextToken()
			}
		}
		p.expectConsume(lexer.CLOSEPAREN)
	}

	if !p.expectConsume(lexer.VALUES) {
		return stmt
	}

	for {
		row := p.parseValuesRow()
		stmt.Values = append(stmt.Values, row)
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return stmt
}

func (p *Parser) parseValuesRow() []ast.Expr {
	if !p.expectConsume(lexer.OPENPAREN) {
		return nil
	}
	var row []ast.Expr
	for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
		row = append(row, p.parseExpr(precLowest+1))
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expectConsume(lexer.CLOSEPAREN)
	return row
}

// parseUpdate generalizes the teacher's UpdateStmt (assignments only, no
// WHERE) by adding a WHERE clause.
func (p *Parser) parseUpdate() *ast.UpdateStmt {
	if !p.expectConsume(lexer.UPDATE) {
		return nil
	}
	stmt := &ast.UpdateStmt{Table: p.identText()}
	if !p.expectConsume(lexer.SET) {
		return stmt
	}

	for {
		col := p.identText()
		if !p.expectConsume(lexer.EQUAL) {
			break
		}
		val := p.parseExpr(precLowest + 1)
		stmt.Assignments = append(stmt.Assignments, ast.Assignment{Column: col, Value: val})
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			continue
		}
		break
	}

	if p.curToken.Kind == lexer.WHERE {
		p.nextToken()
		stmt.Where = p.parseExpr(precLowest)
	}
	return stmt
}

// parseDelete has no teacher counterpart at all; the teacher never
// implemented DELETE as a parsed statement.
func (p *Parser) parseDelete() *ast.DeleteStmt {
	if !p.expectConsume(lexer.DELETE) {
		return nil
	}
	if !p.expectConsume(lexer.FROM) {
		return nil
	}
	stmt := &ast.DeleteStmt{Table: p.identText()}
	if p.curToken.Kind == lexer.WHERE {
		p.nextToken()
		stmt.Where = p.parseExpr(precLowest)
	}
	return stmt
}
