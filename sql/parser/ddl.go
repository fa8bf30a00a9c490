package parser

import (
	"strings"

	"coredb/sql/ast"
	"coredb/sql/lexer"
)

// parseUseDatabase parses USE <name>, carried over unchanged from the
// teacher's minimal handling of this statement.
func (p *Parser) parseUseDatabase() *ast.UseDatabaseStmt {
	if !p.expectConsume(lexer.USE) {
		return nil
	}
	return &ast.UseDatabaseStmt{Name: p.identText()}
}

func (p *Parser) parseCreate() ast.Statement {
	if !p.expectConsume(lexer.CREATE) {
		return nil
	}
	switch p.curToken.Kind {
	case lexer.DATABASE:
		p.nextToken()
		return &ast.CreateDatabaseStmt{Name: p.identText()}
	case lexer.TABLE:
		return p.parseCreateTable()
	case lexer.UNIQUE:
		p.nextToken()
		return p.parseCreateIndex(true)
	case lexer.INDEX:
		return p.parseCreateIndex(false)
	case lexer.VIEW:
		return p.parseCreateView()
	case lexer.TRIGGER:
		return p.parseCreateTrigger()
	}
	p.fail("expected DATABASE, TABLE, INDEX, VIEW or TRIGGER after CREATE, got %s", p.curToken.Kind)
	return nil
}

// parseCreateTable generalizes the teacher's CreateTableStmt{TableName,
// Columns} (ColumnDef{Name,Type} only, no constraints at all) into a full
// column constraint set plus table-level FOREIGN KEY and CHECK clauses.
func (p *Parser) parseCreateTable() *ast.CreateTableStmt {
	if !p.expectConsume(lexer.TABLE) {
		return nil
	}
	stmt := &ast.CreateTableStmt{Table: p.identText()}
	if !p.expectConsume(lexer.OPENPAREN) {
		return stmt
	}

	for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
		switch p.curToken.Kind {
		case lexer.FOREIGN:
			stmt.ForeignKeys = append(stmt.ForeignKeys, p.parseForeignKeyDef())
		case lexer.CHECK:
			stmt.Checks = append(stmt.Checks, p.parseTableCheckDef())
		case lexer.PRIMARY:
			p.nextToken()
			p.expectConsume(lexer.KEY)
			p.expectConsume(lexer.OPENPAREN)
			col := p.identText()
			p.expectConsume(lexer.CLOSEPAREN)
			markPrimaryKey(stmt, col)
		default:
			stmt.Columns = append(stmt.Columns, p.parseColumnDef())
		}
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expectConsume(lexer.CLOSEPAREN)
	return stmt
}

func markPrimaryKey(stmt *ast.CreateTableStmt, col string) {
	for i := range stmt.Columns {
		if stmt.Columns[i].Name == col {
			stmt.Columns[i].PrimaryKey = true
			return
		}
	}
}

func (p *Parser) parseColumnDef() ast.ColumnDef {
	col := ast.ColumnDef{Name: p.identText(), Type: p.curToken.Value}
	p.nextToken() // consume the type keyword (lexed as IDENT, e.g. VARCHAR)

	if p.curToken.Kind == lexer.OPENPAREN {
		p.nextToken()
		n := int(parseIntLiteral(p.curToken.Value))
		p.expect(lexer.NUMBER)
		p.nextToken()
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
			col.Precision = n
			col.Scale = int(parseIntLiteral(p.curToken.Value))
			p.nextToken()
		} else {
			col.Length = n
		}
		p.expectConsume(lexer.CLOSEPAREN)
	}

	for {
		switch p.curToken.Kind {
		case lexer.PRIMARY:
			p.nextToken()
			p.expectConsume(lexer.KEY)
			col.PrimaryKey = true
			continue
		case lexer.UNIQUE:
			p.nextToken()
			col.Unique = true
			continue
		case lexer.NOT:
			p.nextToken()
			p.expectConsume(lexer.NULL_)
			col.NotNull = true
			continue
		case lexer.NULL_:
			p.nextToken()
			continue
		case lexer.DEFAULT:
			p.nextToken()
			col.HasDefault = true
			col.Default = p.curToken.Value
			p.nextToken()
			continue
		case lexer.CHECK:
			p.nextToken()
			p.expectConsume(lexer.OPENPAREN)
			col.CheckExpr = p.parseExpr(precLowest)
			p.expectConsume(lexer.CLOSEPAREN)
			continue
		}
		break
	}
	return col
}

func (p *Parser) parseForeignKeyDef() ast.ForeignKeyDef {
	p.expectConsume(lexer.FOREIGN)
	p.expectConsume(lexer.KEY)
	p.expectConsume(lexer.OPENPAREN)
	fk := ast.ForeignKeyDef{Column: p.identText()}
	p.expectConsume(lexer.CLOSEPAREN)
	p.expectConsume(lexer.REFERENCES)
	fk.RefTable = p.identText()
	p.expectConsume(lexer.OPENPAREN)
	fk.RefColumn = p.identText()
	p.expectConsume(lexer.CLOSEPAREN)
	return fk
}

func (p *Parser) parseTableCheckDef() ast.TableCheckDef {
	p.expectConsume(lexer.CHECK)
	p.expectConsume(lexer.OPENPAREN)
	def := ast.TableCheckDef{Expr: p.parseExpr(precLowest)}
	p.expectConsume(lexer.CLOSEPAREN)
	return def
}

func (p *Parser) parseCreateIndex(unique bool) *ast.CreateIndexStmt {
	if !p.expectConsume(lexer.INDEX) {
		return nil
	}
	stmt := &ast.CreateIndexStmt{Unique: unique, Name: p.identText()}
	if !p.expectConsume(lexer.ON) {
		return stmt
	}
	stmt.Table = p.identText()
	if !p.expectConsume(lexer.OPENPAREN) {
		return stmt
	}
	for p.curToken.Kind != lexer.CLOSEPAREN && p.curToken.Kind != lexer.END {
		stmt.Columns = append(stmt.Columns, p.identText())
		if p.curToken.Kind == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expectConsume(lexer.CLOSEPAREN)
	return stmt
}

func (p *Parser) parseCreateView() *ast.CreateViewStmt {
	if !p.expectConsume(lexer.VIEW) {
		return nil
	}
	stmt := &ast.CreateViewStmt{Name: p.identText()}
	if !p.expectConsume(lexer.AS) {
		return stmt
	}
	start := p.curToken.Start
	stmt.Query = p.parseSelect()
	stmt.RawQuery = strings.TrimSpace(p.l.Input()[start:p.curToken.Start])
	return stmt
}

func (p *Parser) parseCreateTrigger() *ast.CreateTriggerStmt {
	if !p.expectConsume(lexer.TRIGGER) {
		return nil
	}
	stmt := &ast.CreateTriggerStmt{Name: p.identText()}

	switch p.curToken.Kind {
	case lexer.BEFORE:
		stmt.Timing = "BEFORE"
		p.nextToken()
	case lexer.AFTER:
		stmt.Timing = "AFTER"
		p.nextToken()
	default:
		p.fail("expected BEFORE or AFTER, got %s", p.curToken.Kind)
	}

	switch p.curToken.Kind {
	case lexer.INSERT:
		stmt.Event = "INSERT"
	case lexer.UPDATE:
		stmt.Event = "UPDATE"
	case lexer.DELETE:
		stmt.Event = "DELETE"
	default:
		p.fail("expected INSERT, UPDATE or DELETE, got %s", p.curToken.Kind)
	}
	p.nextToken()

	p.expectConsume(lexer.ON)
	stmt.Table = p.identText()

	if p.curToken.Kind == lexer.WHEN {
		p.nextToken()
		p.expectConsume(lexer.OPENPAREN)
		stmt.Condition = p.parseExpr(precLowest)
		p.expectConsume(lexer.CLOSEPAREN)
	}

	p.expectConsume(lexer.BEGIN)
	stmt.Body = p.ParseStatement()
	if p.curToken.Kind == lexer.SEMICOLON {
		p.nextToken()
	}
	p.expectConsume(lexer.ENDBLOCK)
	return stmt
}

func (p *Parser) parseDrop() ast.Statement {
	if !p.expectConsume(lexer.DROP) {
		return nil
	}
	switch p.curToken.Kind {
	case lexer.TABLE:
		p.nextToken()
		return &ast.DropTableStmt{Table: p.identText()}
	case lexer.INDEX:
		p.nextToken()
		stmt := &ast.DropIndexStmt{Name: p.identText()}
		if p.expectConsume(lexer.ON) {
			stmt.Table = p.identText()
		}
		return stmt
	case lexer.VIEW:
		p.nextToken()
		return &ast.DropViewStmt{Name: p.identText()}
	case lexer.TRIGGER:
		p.nextToken()
		stmt := &ast.DropTriggerStmt{Name: p.identText()}
		if p.curToken.Kind == lexer.ON {
			p.nextToken()
			stmt.Table = p.identText()
		}
		return stmt
	}
	p.fail("expected TABLE, INDEX, VIEW or TRIGGER after DROP, got %s", p.curToken.Kind)
	return nil
}

func (p *Parser) parseAlter() ast.Statement {
	if !p.expectConsume(lexer.ALTER) {
		return nil
	}
	if !p.expectConsume(lexer.VIEW) {
		p.fail("ALTER is only supported for VIEW")
		return nil
	}
	stmt := &ast.AlterViewStmt{Name: p.identText()}
	if !p.expectConsume(lexer.AS) {
		return stmt
	}
	start := p.curToken.Start
	stmt.Query = p.parseSelect()
	stmt.RawQuery = strings.TrimSpace(p.l.Input()[start:p.curToken.Start])
	return stmt
}
