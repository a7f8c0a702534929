package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabewaldrop/pagestore/internal/sql/lexer"
)

func parse(t *testing.T, input string) Statement {
	t.Helper()
	p := New(lexer.New(input))
	stmt, err := p.Parse()
	require.NoError(t, err)
	require.NotNil(t, stmt)
	return stmt
}

func TestParseCreateTable(t *testing.T) {
	stmt := parse(t, `CREATE TABLE widgets (id INT, name STRING)`)
	create, ok := stmt.(*CreateTableStatement)
	require.True(t, ok)
	assert.Equal(t, "widgets", create.Table)
	require.Len(t, create.Columns, 2)
	assert.Equal(t, ColumnDefinition{Name: "id", Type: TypeInt}, create.Columns[0])
	assert.Equal(t, ColumnDefinition{Name: "name", Type: TypeString}, create.Columns[1])
}

func TestParseInsertMultipleTuples(t *testing.T) {
	stmt := parse(t, `INSERT INTO widgets VALUES (1, "a"), (2, "b")`)
	insert, ok := stmt.(*InsertStatement)
	require.True(t, ok)
	assert.Equal(t, "widgets", insert.Table)
	require.Len(t, insert.Rows, 2)
	assert.Equal(t, []Value{{Int: 1}, {IsString: true, Str: "a"}}, insert.Rows[0])
	assert.Equal(t, []Value{{Int: 2}, {IsString: true, Str: "b"}}, insert.Rows[1])
}

func TestParseSelectWithWhere(t *testing.T) {
	stmt := parse(t, `SELECT * FROM widgets WHERE id EQUALS 4`)
	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	assert.Equal(t, []string{"*"}, sel.Columns)
	assert.Equal(t, "widgets", sel.Table)
	require.NotNil(t, sel.Where)
	assert.Equal(t, "id", sel.Where.Column)
	assert.Equal(t, Value{Int: 4}, sel.Where.Value)
}

func TestParseSelectColumnListNoWhere(t *testing.T) {
	stmt := parse(t, `SELECT id, name FROM widgets`)
	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, sel.Columns)
	assert.Nil(t, sel.Where)
}

func TestParseFlush(t *testing.T) {
	stmt := parse(t, `FLUSH`)
	_, ok := stmt.(*FlushStatement)
	assert.True(t, ok)
}

func TestParseErrorOnMalformedStatement(t *testing.T) {
	p := New(lexer.New(`SELECT FROM`))
	_, err := p.Parse()
	assert.Error(t, err)
}

func TestParseErrorOnUnknownColumnType(t *testing.T) {
	p := New(lexer.New(`CREATE TABLE t (id FLOAT)`))
	_, err := p.Parse()
	assert.Error(t, err)
}

func TestParseErrorOnUnexpectedLeadingToken(t *testing.T) {
	p := New(lexer.New(`DROP TABLE t`))
	_, err := p.Parse()
	assert.Error(t, err)
}
