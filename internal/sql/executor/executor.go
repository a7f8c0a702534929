// Package executor implements the SQL query executor.
//
// EDUCATIONAL NOTES:
// ------------------
// The executor is the component that actually runs SQL queries. It
// takes an AST from the parser, resolves table names through the
// catalog, and drives storage.TypedTable/NamedTables operations
// directly -- there is no separate physical-plan stage, because this
// dialect's only query shape is "optionally probe one equality filter
// column" and NamedTables.Select already picks index-vs-scan on its
// own (see internal/catalog).
package executor

import (
	"fmt"
	"strings"

	"github.com/cabewaldrop/pagestore/internal/catalog"
	"github.com/cabewaldrop/pagestore/internal/sql/parser"
	"github.com/cabewaldrop/pagestore/internal/storage"
)

// Result is the outcome of executing one statement.
type Result struct {
	Columns []string
	Rows    [][]storage.TypeData
	Message string
}

// String formats the result for REPL display.
func (r *Result) String() string {
	if r.Message != "" {
		return r.Message
	}
	if len(r.Rows) == 0 {
		return "(no rows)"
	}

	widths := make([]int, len(r.Columns))
	for i, col := range r.Columns {
		widths[i] = len(col)
	}
	for _, row := range r.Rows {
		for i, val := range row {
			if len(val.String()) > widths[i] {
				widths[i] = len(val.String())
			}
		}
	}

	var sb strings.Builder
	writeRule := func() {
		sb.WriteString("+")
		for _, w := range widths {
			sb.WriteString(strings.Repeat("-", w+2))
			sb.WriteString("+")
		}
		sb.WriteString("\n")
	}

	writeRule()
	sb.WriteString("|")
	for i, col := range r.Columns {
		sb.WriteString(fmt.Sprintf(" %-*s |", widths[i], col))
	}
	sb.WriteString("\n")
	writeRule()
	for _, row := range r.Rows {
		sb.WriteString("|")
		for i, val := range row {
			sb.WriteString(fmt.Sprintf(" %-*s |", widths[i], val.String()))
		}
		sb.WriteString("\n")
	}
	writeRule()
	sb.WriteString(fmt.Sprintf("(%d rows)\n", len(r.Rows)))
	return sb.String()
}

// JSONRows renders the SELECT result as the "array of arrays of
// scalars" format from SPEC_FULL.md section 6: ints decimal, strings
// quoted, nulls as the literal 0. Non-SELECT statements have no rows.
func (r *Result) JSONRows() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, row := range r.Rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("[")
		for j, v := range row {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(v.String())
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}

// Executor executes SQL statements against a catalog and its backing
// page serializer.
type Executor struct {
	ps  *storage.PageSerializer
	cat *catalog.NamedTables
}

// New wraps an already-open catalog and page serializer.
func New(ps *storage.PageSerializer, cat *catalog.NamedTables) *Executor {
	return &Executor{ps: ps, cat: cat}
}

// Flush re-flushes every dirty cached page; the pages stay cached.
func (e *Executor) Flush() error {
	return e.cat.Flush(e.ps)
}

// Catalog exposes the underlying catalog for read-only inspection
// (table listing, schema lookups) by the HTTP surface.
func (e *Executor) Catalog() *catalog.NamedTables {
	return e.cat
}

// Execute runs a single parsed statement.
func (e *Executor) Execute(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStatement:
		return e.executeCreateTable(s)
	case *parser.InsertStatement:
		return e.executeInsert(s)
	case *parser.SelectStatement:
		return e.executeSelect(s)
	case *parser.FlushStatement:
		if err := e.Flush(); err != nil {
			return nil, err
		}
		return &Result{Message: "FLUSH complete"}, nil
	default:
		return nil, fmt.Errorf("executor: unsupported statement type %T", stmt)
	}
}

func (e *Executor) executeCreateTable(s *parser.CreateTableStatement) (*Result, error) {
	columns := make([]catalog.ColumnDef, len(s.Columns))
	for i, c := range s.Columns {
		t, err := storageType(c.Type)
		if err != nil {
			return nil, err
		}
		columns[i] = catalog.ColumnDef{Name: c.Name, Type: t}
	}
	if _, err := e.cat.CreateTable(e.ps, s.Table, columns); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("CREATE TABLE %s", s.Table)}, nil
}

func (e *Executor) executeInsert(s *parser.InsertStatement) (*Result, error) {
	tbl, ok := e.cat.Tables[s.Table]
	if !ok {
		return nil, fmt.Errorf("executor: unknown table %q", s.Table)
	}

	rows := make([]storage.Tuple, len(s.Rows))
	for i, values := range s.Rows {
		if len(values) != len(tbl.Schema.Fields) {
			return nil, fmt.Errorf("executor: row %d has %d values, table %q has %d columns", i, len(values), s.Table, len(tbl.Schema.Fields))
		}
		tupleValues := make([]storage.TypeData, len(values))
		for j, v := range values {
			tupleValues[j] = valueToTypeData(v)
		}
		rows[i] = storage.Tuple{Values: tupleValues}
	}

	if err := e.cat.Insert(e.ps, s.Table, rows); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("INSERT %d", len(rows))}, nil
}

func (e *Executor) executeSelect(s *parser.SelectStatement) (*Result, error) {
	tbl, ok := e.cat.Tables[s.Table]
	if !ok {
		return nil, fmt.Errorf("executor: unknown table %q", s.Table)
	}

	var filterColumn string
	var filterValue *storage.TypeData
	if s.Where != nil {
		filterColumn = s.Where.Column
		v := valueToTypeData(s.Where.Value)
		filterValue = &v
	}

	rows, err := e.cat.Select(e.ps, s.Table, s.Columns, filterColumn, filterValue)
	if err != nil {
		return nil, err
	}

	// Every result row keeps the table's full width; a column left out
	// of the SELECT list simply reads back as Null (rendered as 0),
	// exactly as storage.Read's columnMask behaves -- the list narrows
	// which columns are materialized, not the row shape.
	outRows := make([][]storage.TypeData, len(rows))
	for i, row := range rows {
		outRows[i] = row.Values
	}

	return &Result{Columns: tbl.Schema.Names, Rows: outRows}, nil
}

func storageType(t parser.DataType) (storage.Type, error) {
	switch t {
	case parser.TypeInt:
		return storage.TypeInt, nil
	case parser.TypeString:
		return storage.TypeString, nil
	default:
		return 0, fmt.Errorf("executor: unknown column type %v", t)
	}
}

func valueToTypeData(v parser.Value) storage.TypeData {
	if v.IsString {
		return storage.StringData([]byte(v.Str))
	}
	return storage.IntData(v.Int)
}
