package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jbdura/settlement-project/pkg/types"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses SQL statements into AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns a Statement. The statement may end
// with a semicolon; anything after it is an error.
func Parse(input string) (Statement, error) {
	p := NewParser(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// errorf builds a ParseError at the current token.
func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect advances past the current token if it matches, otherwise returns
// an error naming what was required.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// expectEnd consumes an optional trailing semicolon and requires EOF.
func (p *Parser) expectEnd() error {
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return p.errorf("unexpected input after statement")
	}
	return nil
}

// ParseStatement parses a single SQL statement.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.curToken.Type {
	case TokenSelect:
		return p.parseSelectStatement()
	case TokenCreate:
		return p.parseCreateTableStatement()
	case TokenInsert:
		return p.parseInsertStatement()
	case TokenUpdate:
		return p.parseUpdateStatement()
	case TokenDelete:
		return p.parseDeleteStatement()
	case TokenDrop:
		return p.parseDropTableStatement()
	default:
		return nil, p.errorf("expected SELECT, CREATE, INSERT, UPDATE, DELETE, or DROP")
	}
}

// parseIdent consumes an identifier and returns its literal.
func (p *Parser) parseIdent(what string) (string, error) {
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected %s", what)
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, nil
}

// parseCreateTableStatement parses CREATE TABLE name (col type [constraints], ...).
func (p *Parser) parseCreateTableStatement() (*CreateTableStatement, error) {
	p.nextToken() // Skip CREATE

	if err := p.expect(TokenTable); err != nil {
		return nil, err
	}
	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	stmt := &CreateTableStatement{Table: table}
	for {
		col, err := p.parseColumnDefinition()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseColumnDefinition parses one column entry of a CREATE TABLE statement.
func (p *Parser) parseColumnDefinition() (types.ColumnDefinition, error) {
	col := types.ColumnDefinition{Nullable: true}

	name, err := p.parseIdent("column name")
	if err != nil {
		return col, err
	}
	col.Name = name

	if !p.curTokenIs(TokenIdent) {
		return col, p.errorf("expected column type")
	}
	colType, ok := types.ParseColumnType(p.curToken.Literal)
	if !ok {
		return col, p.errorf("unknown column type '%s'", strings.ToUpper(p.curToken.Literal))
	}
	col.Type = colType
	p.nextToken()

	// Optional size, as in VARCHAR(50)
	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return col, p.errorf("expected size after (")
		}
		size, err := strconv.Atoi(p.curToken.Literal)
		if err != nil || size <= 0 {
			return col, p.errorf("invalid column size")
		}
		col.Size = size
		p.nextToken()
		if err := p.expect(TokenRParen); err != nil {
			return col, err
		}
	}

	// Constraints in any order
	for {
		switch p.curToken.Type {
		case TokenPrimary:
			p.nextToken()
			if err := p.expect(TokenKey); err != nil {
				return col, err
			}
			col.PrimaryKey = true
		case TokenUnique:
			p.nextToken()
			col.Unique = true
		case TokenNot:
			p.nextToken()
			if err := p.expect(TokenNull); err != nil {
				return col, err
			}
			col.Nullable = false
		case TokenNull:
			p.nextToken()
			col.Nullable = true
		default:
			return col, nil
		}
	}
}

// parseInsertStatement parses INSERT INTO name (cols) VALUES (values).
func (p *Parser) parseInsertStatement() (*InsertStatement, error) {
	p.nextToken() // Skip INSERT

	if err := p.expect(TokenInto); err != nil {
		return nil, err
	}
	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}

	stmt := &InsertStatement{Table: table}

	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if err := p.expect(TokenValues); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	for {
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return stmt, nil
}

// parseSelectStatement parses SELECT cols FROM name [JOIN ...] [WHERE ...].
func (p *Parser) parseSelectStatement() (*SelectStatement, error) {
	p.nextToken() // Skip SELECT

	stmt := &SelectStatement{}

	if p.curTokenIs(TokenStar) {
		stmt.Star = true
		p.nextToken()
	} else {
		for {
			ref, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, ref)

			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	if p.curTokenIs(TokenJoin) {
		join, err := p.parseJoinClause()
		if err != nil {
			return nil, err
		}
		stmt.Join = join
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseConditions()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

// parseJoinClause parses JOIN name ON t1.col = t2.col.
func (p *Parser) parseJoinClause() (*JoinClause, error) {
	p.nextToken() // Skip JOIN

	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenOn); err != nil {
		return nil, err
	}

	left, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenEq); err != nil {
		return nil, err
	}
	right, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}

	if left.Table == "" || right.Table == "" {
		return nil, p.errorf("join condition requires table-qualified columns")
	}

	return &JoinClause{
		Table:       table,
		LeftTable:   left.Table,
		LeftColumn:  left.Column,
		RightTable:  right.Table,
		RightColumn: right.Column,
	}, nil
}

// parseUpdateStatement parses UPDATE name SET col = value, ... [WHERE ...].
func (p *Parser) parseUpdateStatement() (*UpdateStatement, error) {
	p.nextToken() // Skip UPDATE

	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenSet); err != nil {
		return nil, err
	}

	stmt := &UpdateStatement{Table: table}
	for {
		col, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: val})

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseConditions()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

// parseDeleteStatement parses DELETE FROM name [WHERE ...].
func (p *Parser) parseDeleteStatement() (*DeleteStatement, error) {
	p.nextToken() // Skip DELETE

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}

	stmt := &DeleteStatement{Table: table}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseConditions()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

// parseDropTableStatement parses DROP TABLE name.
func (p *Parser) parseDropTableStatement() (*DropTableStatement, error) {
	p.nextToken() // Skip DROP

	if err := p.expect(TokenTable); err != nil {
		return nil, err
	}
	table, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}

	return &DropTableStatement{Table: table}, nil
}

// parseColumnRef parses a column reference, optionally table-qualified.
func (p *Parser) parseColumnRef() (ColumnRef, error) {
	name, err := p.parseIdent("column name")
	if err != nil {
		return ColumnRef{}, err
	}

	if !p.curTokenIs(TokenDot) {
		return ColumnRef{Column: name}, nil
	}
	p.nextToken() // Skip dot

	col, err := p.parseIdent("column name after dot")
	if err != nil {
		return ColumnRef{}, err
	}
	return ColumnRef{Table: name, Column: col}, nil
}

// parseConditions parses a conjunction of comparisons joined by AND.
func (p *Parser) parseConditions() ([]Condition, error) {
	var conds []Condition

	for {
		ref, err := p.parseColumnRef()
		if err != nil {
			return nil, err
		}

		op, ok := comparisonOp(p.curToken.Type)
		if !ok {
			return nil, p.errorf("expected comparison operator")
		}
		p.nextToken()

		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}

		conds = append(conds, Condition{
			Table:  ref.Table,
			Column: ref.Column,
			Op:     op,
			Value:  val,
		})

		if !p.curTokenIs(TokenAnd) {
			break
		}
		p.nextToken() // Skip AND
	}

	return conds, nil
}

// comparisonOp maps a comparison token to its operator.
func comparisonOp(t TokenType) (types.Operator, bool) {
	switch t {
	case TokenEq:
		return types.OpEq, true
	case TokenNe:
		return types.OpNe, true
	case TokenLt:
		return types.OpLt, true
	case TokenGt:
		return types.OpGt, true
	case TokenLe:
		return types.OpLe, true
	case TokenGe:
		return types.OpGe, true
	default:
		return "", false
	}
}

// parseLiteral parses a literal value.
func (p *Parser) parseLiteral() (types.Value, error) {
	switch p.curToken.Type {
	case TokenNumber:
		return p.parseNumber(false)
	case TokenMinus:
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return types.Value{}, p.errorf("expected number after -")
		}
		return p.parseNumber(true)
	case TokenString:
		val := types.NewText(p.curToken.Literal)
		p.nextToken()
		return val, nil
	case TokenTrue:
		p.nextToken()
		return types.NewBoolean(true), nil
	case TokenFalse:
		p.nextToken()
		return types.NewBoolean(false), nil
	case TokenNull:
		p.nextToken()
		return types.Null(), nil
	default:
		return types.Value{}, p.errorf("expected a literal value")
	}
}

// parseNumber parses a numeric literal as INTEGER or DECIMAL.
func (p *Parser) parseNumber(negate bool) (types.Value, error) {
	literal := p.curToken.Literal

	// Try parsing as int64 first
	if !strings.Contains(literal, ".") {
		val, err := strconv.ParseInt(literal, 10, 64)
		if err == nil {
			p.nextToken()
			if negate {
				val = -val
			}
			return types.NewInteger(val), nil
		}
	}

	val, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return types.Value{}, p.errorf("invalid number")
	}
	p.nextToken()
	if negate {
		val = -val
	}
	return types.NewDecimal(val), nil
}
