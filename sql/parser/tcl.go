package parser

import (
	"coredb/sql/ast"
	"coredb/sql/lexer"
)

// parseBegin accepts both BEGIN and BEGIN TRANSACTION; the teacher never
// implemented transaction control in its parser at all.
func (p *Parser) parseBegin() *ast.BeginStmt {
	if !p.expectConsume(lexer.BEGIN) {
		return nil
	}
	if p.curToken.Kind == lexer.TRANSACTION {
		p.nextToken()
	}
	return &ast.BeginStmt{}
}

func (p *Parser) parseDeclareCursor() *ast.DeclareCursorStmt {
	if !p.expectConsume(lexer.DECLARE) {
		return nil
	}
	stmt := &ast.DeclareCursorStmt{Name: p.identText()}
	p.expectConsume(lexer.CURSOR)
	p.expectConsume(lexer.FOR)
	stmt.Query = p.parseSelect()
	return stmt
}

func (p *Parser) parseOpenCursor() *ast.OpenCursorStmt {
	if !p.expectConsume(lexer.OPEN) {
		return nil
	}
	return &ast.OpenCursorStmt{Name: p.identText()}
}

func (p *Parser) parseFetchCursor() *ast.FetchCursorStmt {
	if !p.expectConsume(lexer.FETCH) {
		return nil
	}
	if p.curToken.Kind == lexer.FROM {
		p.nextToken()
	}
	return &ast.FetchCursorStmt{Name: p.identText()}
}

func (p *Parser) parseCloseCursor() *ast.CloseCursorStmt {
	if !p.expectConsume(lexer.CLOSE) {
		return nil
	}
	return &ast.CloseCursorStmt{Name: p.identText()}
}

// parseShow generalizes the teacher's bare ShowDatabasesStmt into the
// full introspection surface spec.md §8 lists.
func (p *Parser) parseShow() ast.Statement {
	if !p.expectConsume(lexer.SHOW) {
		return nil
	}
	switch p.curToken.Kind {
	case lexer.TABLES:
		p.nextToken()
		return &ast.ShowTablesStmt{}
	case lexer.COLUMNS:
		p.nextToken()
		p.expectConsume(lexer.FROM)
		return &ast.ShowColumnsStmt{Table: p.identText()}
	case lexer.INDEX:
		p.nextToken()
		p.expectConsume(lexer.FROM)
		return &ast.ShowIndexStmt{Table: p.identText()}
	case lexer.TRIGGERS:
		p.nextToken()
		return &ast.ShowTriggersStmt{}
	case lexer.VIEWS:
		p.nextToken()
		return &ast.ShowViewsStmt{}
	}
	p.fail("expected TABLES, COLUMNS, INDEX, TRIGGERS or VIEWS after SHOW, got %s", p.curToken.Kind)
	return nil
}
