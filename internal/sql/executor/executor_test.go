package executor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabewaldrop/pagestore/internal/catalog"
	"github.com/cabewaldrop/pagestore/internal/sql/lexer"
	"github.com/cabewaldrop/pagestore/internal/sql/parser"
	"github.com/cabewaldrop/pagestore/internal/storage"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec.db1")
	ps, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	cat, err := catalog.Open(ps)
	require.NoError(t, err)
	return New(ps, cat)
}

func run(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	l := lexer.New(sql)
	p := parser.New(l)
	stmt, err := p.Parse()
	require.NoError(t, err)
	result, err := e.Execute(stmt)
	require.NoError(t, err)
	return result
}

func TestExecuteCreateInsertSelect(t *testing.T) {
	e := newTestExecutor(t)

	run(t, e, `CREATE TABLE t (id INT, name STRING)`)
	run(t, e, `INSERT INTO t VALUES (1, "a"), (4, "b")`)

	result := run(t, e, `SELECT * FROM t WHERE id EQUALS 4`)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "[[4,\"b\"]]", result.JSONRows())
}

func TestExecuteSelectWithoutWhereReturnsAllRows(t *testing.T) {
	e := newTestExecutor(t)
	run(t, e, `CREATE TABLE t (id INT, name STRING)`)
	run(t, e, `INSERT INTO t VALUES (1, "a"), (2, "b"), (3, "c")`)

	result := run(t, e, `SELECT * FROM t`)
	assert.Len(t, result.Rows, 3)
}

func TestExecuteSelectNarrowedColumnsStillFullWidth(t *testing.T) {
	e := newTestExecutor(t)
	run(t, e, `CREATE TABLE t (id INT, name STRING)`)
	run(t, e, `INSERT INTO t VALUES (1, "a")`)

	result := run(t, e, `SELECT id FROM t WHERE id EQUALS 1`)
	require.Len(t, result.Rows, 1)
	require.Len(t, result.Rows[0], 2, "row keeps full table width even when the SELECT list narrows it")
	assert.Equal(t, "0", result.Rows[0][1].String(), "masked column renders as the literal 0")
}

func TestExecuteInsertRowArityMismatch(t *testing.T) {
	e := newTestExecutor(t)
	run(t, e, `CREATE TABLE t (id INT, name STRING)`)

	l := lexer.New(`INSERT INTO t VALUES (1)`)
	p := parser.New(l)
	stmt, err := p.Parse()
	require.NoError(t, err)

	_, err = e.Execute(stmt)
	assert.Error(t, err)
}

func TestExecuteSelectUnknownTable(t *testing.T) {
	e := newTestExecutor(t)
	l := lexer.New(`SELECT * FROM nope`)
	p := parser.New(l)
	stmt, err := p.Parse()
	require.NoError(t, err)

	_, err = e.Execute(stmt)
	assert.Error(t, err)
}

func TestExecuteFlush(t *testing.T) {
	e := newTestExecutor(t)
	result := run(t, e, `FLUSH`)
	assert.Equal(t, "FLUSH complete", result.Message)
}

func TestResultStringFormatsRows(t *testing.T) {
	e := newTestExecutor(t)
	run(t, e, `CREATE TABLE t (id INT, name STRING)`)
	run(t, e, `INSERT INTO t VALUES (1, "a")`)

	result := run(t, e, `SELECT * FROM t`)
	out := result.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "(1 rows)")
}
