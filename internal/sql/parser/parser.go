// Package parser - SQL Parser implementation
//
// EDUCATIONAL NOTES:
// ------------------
// A parser reads tokens from the lexer and builds an Abstract Syntax Tree (AST).
// This is the second phase of compilation/interpretation, after lexing.
//
// We use a "recursive descent" parser: each grammar rule becomes a
// function (parseStatement, parseSelectStatement, parseCreateStatement,
// ...). The parser maintains a "current token" and can "peek" at the
// next token, which is enough to drive this dialect's four statement
// shapes without any operator-precedence machinery.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cabewaldrop/pagestore/internal/sql/lexer"
)

// Parser parses SQL tokens into an AST.
type Parser struct {
	lexer     *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
}

// New creates a new Parser for the given lexer.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{lexer: l}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns the AST.
func (p *Parser) Parse() (Statement, error) {
	stmt := p.parseStatement()
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors: %s", strings.Join(p.errors, "; "))
	}
	return stmt, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t lexer.TokenType) {
	p.errors = append(p.errors, fmt.Sprintf("expected next token %v, got %v (literal: %q)", t, p.peekToken.Type, p.peekToken.Literal))
}

// parseStatement dispatches on the leading keyword.
func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case lexer.TokenSelect:
		return p.parseSelectStatement()
	case lexer.TokenInsert:
		return p.parseInsertStatement()
	case lexer.TokenCreate:
		return p.parseCreateStatement()
	case lexer.TokenFlush:
		return &FlushStatement{}
	default:
		p.errors = append(p.errors, fmt.Sprintf("unexpected token: %q", p.curToken.Literal))
		return nil
	}
}

// parseSelectStatement parses: SELECT (ident|*), ... FROM ident [WHERE ident EQUALS value]
func (p *Parser) parseSelectStatement() *SelectStatement {
	stmt := &SelectStatement{}

	p.nextToken() // move past SELECT
	stmt.Columns = p.parseColumnList()

	if !p.expectPeek(lexer.TokenFrom) {
		return nil
	}
	if !p.expectPeek(lexer.TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if p.peekTokenIs(lexer.TokenWhere) {
		p.nextToken() // move to WHERE
		if !p.expectPeek(lexer.TokenIdent) {
			return nil
		}
		column := p.curToken.Literal
		if !p.expectPeek(lexer.TokenEquals) {
			return nil
		}
		p.nextToken()
		value, ok := p.parseValue()
		if !ok {
			return nil
		}
		stmt.Where = &Filter{Column: column, Value: value}
	}

	return stmt
}

// parseColumnList parses a comma-separated (ident|*) list.
func (p *Parser) parseColumnList() []string {
	var cols []string
	for {
		switch p.curToken.Type {
		case lexer.TokenAsterisk:
			cols = append(cols, "*")
		case lexer.TokenIdent:
			cols = append(cols, p.curToken.Literal)
		default:
			p.errors = append(p.errors, fmt.Sprintf("expected column name or *, got %q", p.curToken.Literal))
			return nil
		}

		if !p.peekTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken() // move to comma
		p.nextToken() // move past comma
	}
	return cols
}

// parseInsertStatement parses: INSERT INTO ident VALUES tuple ("," tuple)*
func (p *Parser) parseInsertStatement() *InsertStatement {
	stmt := &InsertStatement{}

	if !p.expectPeek(lexer.TokenInto) {
		return nil
	}
	if !p.expectPeek(lexer.TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if !p.expectPeek(lexer.TokenValues) {
		return nil
	}

	for {
		row := p.parseTuple()
		if row == nil {
			return nil
		}
		stmt.Rows = append(stmt.Rows, row)

		if !p.peekTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken() // move to comma
	}

	return stmt
}

// parseTuple parses: "(" value ("," value)* ")"
func (p *Parser) parseTuple() []Value {
	if !p.expectPeek(lexer.TokenLeftParen) {
		return nil
	}

	var values []Value
	p.nextToken() // move past (
	for {
		v, ok := p.parseValue()
		if !ok {
			return nil
		}
		values = append(values, v)

		if !p.peekTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken() // move to comma
		p.nextToken() // move past comma
	}

	if !p.expectPeek(lexer.TokenRightParen) {
		return nil
	}
	return values
}

// parseValue parses a single integer or string literal at curToken.
func (p *Parser) parseValue() (Value, bool) {
	switch p.curToken.Type {
	case lexer.TokenNumber:
		n, err := strconv.ParseUint(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errors = append(p.errors, fmt.Sprintf("invalid integer literal %q: %v", p.curToken.Literal, err))
			return Value{}, false
		}
		return Value{Int: n}, true
	case lexer.TokenString:
		return Value{IsString: true, Str: p.curToken.Literal}, true
	default:
		p.errors = append(p.errors, fmt.Sprintf("expected a value, got %q", p.curToken.Literal))
		return Value{}, false
	}
}

// parseCreateStatement parses: CREATE TABLE ident "(" col ("," col)* ")"
func (p *Parser) parseCreateStatement() *CreateTableStatement {
	if !p.expectPeek(lexer.TokenTable) {
		return nil
	}

	stmt := &CreateTableStatement{}
	if !p.expectPeek(lexer.TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if !p.expectPeek(lexer.TokenLeftParen) {
		return nil
	}

	for {
		if !p.expectPeek(lexer.TokenIdent) {
			return nil
		}
		col := ColumnDefinition{Name: p.curToken.Literal}

		p.nextToken()
		switch p.curToken.Type {
		case lexer.TokenIntType:
			col.Type = TypeInt
		case lexer.TokenStringType:
			col.Type = TypeString
		default:
			p.errors = append(p.errors, fmt.Sprintf("unknown column type %q", p.curToken.Literal))
			return nil
		}
		stmt.Columns = append(stmt.Columns, col)

		if !p.peekTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken() // move to comma
	}

	if !p.expectPeek(lexer.TokenRightParen) {
		return nil
	}
	return stmt
}
