// Package parser turns SQL text into the sql/ast tree, grounded on
// query_parser/parser's curToken/peekToken recursive-descent shape. Unlike
// the teacher, which panics on a malformed statement, every entry point here
// returns a *dberr.Error of kind ParseError — per spec.md §7, the core
// rejects a malformed statement before any side effect rather than crashing
// the process.
package parser

import (
	"coredb/dberr"
	"coredb/sql/ast"
	"coredb/sql/lexer"
)

type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	err       error
}

func New(input string) *Parser {
	p := &Parser{l: lexer.New(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses exactly one statement (an optional trailing ';' is consumed).
func Parse(input string) (ast.Statement, error) {
	p := New(input)
	stmt := p.ParseStatement()
	if p.err != nil {
		return nil, p.err
	}
	if p.curToken.Kind == lexer.SEMICOLON {
		p.nextToken()
	}
	if p.curToken.Kind != lexer.END {
		return nil, dberr.New(dberr.ParseError, "unexpected trailing token %s (%q)", p.curToken.Kind, p.curToken.Value)
	}
	return stmt, nil
}

// ParseExpr parses input as a single standalone expression rather than a
// full statement, for callers that only have an expression's worth of SQL
// text on hand — e.g. a CHECK constraint's body stored in the catalog.
func ParseExpr(input string) (ast.Expr, error) {
	p := New(input)
	expr := p.parseExpr(precLowest)
	if p.err != nil {
		return nil, p.err
	}
	if p.curToken.Kind != lexer.END {
		return nil, dberr.New(dberr.ParseError, "unexpected trailing token %s (%q)", p.curToken.Kind, p.curToken.Value)
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// fail records the first parse error seen; later calls are no-ops so one
// malformed clause doesn't cascade into a wall of follow-on errors.
func (p *Parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = dberr.New(dberr.ParseError, format, args...)
	}
}

func (p *Parser) expect(kind lexer.TokenKind) bool {
	if p.curToken.Kind != kind {
		p.fail("expected %s, got %s (%q)", kind, p.curToken.Kind, p.curToken.Value)
		return false
	}
	return true
}

// expectConsume checks kind and advances past it, returning false (without
// advancing) on mismatch so the caller can bail out.
func (p *Parser) expectConsume(kind lexer.TokenKind) bool {
	if !p.expect(kind) {
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) identText() string {
	if p.curToken.Kind != lexer.IDENT {
		p.fail("expected identifier, got %s (%q)", p.curToken.Kind, p.curToken.Value)
		return ""
	}
	name := p.curToken.Value
	p.nextToken()
	return name
}

// ParseStatement is the entry point: dispatch on the leading keyword.
func (p *Parser) ParseStatement() ast.Statement {
	switch p.curToken.Kind {
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.INSERT:
		return p.parseInsert()
	case lexer.UPDATE:
		return p.parseUpdate()
	case lexer.DELETE:
		return p.parseDelete()
	case lexer.CREATE:
		return p.parseCreate()
	case lexer.DROP:
		return p.parseDrop()
	case lexer.ALTER:
		return p.parseAlter()
	case lexer.USE:
		return p.parseUseDatabase()
	case lexer.BEGIN:
		return p.parseBegin()
	case lexer.COMMIT:
		p.nextToken()
		return &ast.CommitStmt{}
	case lexer.ROLLBACK:
		p.nextToken()
		return &ast.RollbackStmt{}
	case lexer.DECLARE:
		return p.parseDeclareCursor()
	case lexer.OPEN:
		return p.parseOpenCursor()
	case lexer.FETCH:
		return p.parseFetchCursor()
	case lexer.CLOSE:
		return p.parseCloseCursor()
	case lexer.SHOW:
		return p.parseShow()
	case lexer.EXPLAIN:
		p.nextToken()
		return &ast.ExplainStmt{Statement: p.ParseStatement()}
	}
	p.fail("unexpected token %s (%q)", p.curToken.Kind, p.curToken.Value)
	return nil
}
