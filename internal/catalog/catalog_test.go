package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabewaldrop/pagestore/internal/storage"
)

func openCatalog(t *testing.T) (*storage.PageSerializer, *NamedTables) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db1")
	ps, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	cat, err := Open(ps)
	require.NoError(t, err)
	return ps, cat
}

func TestOpenBootstrapsEmptyCatalog(t *testing.T) {
	_, cat := openCatalog(t)
	assert.Empty(t, cat.ListTables())
	assert.Equal(t, uint64(IndexSchemaTableID), cat.largestID)
}

func TestCreateTableAndInsertSelect(t *testing.T) {
	ps, cat := openCatalog(t)

	_, err := cat.CreateTable(ps, "widgets", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)
	assert.Contains(t, cat.ListTables(), "widgets")

	require.NoError(t, cat.Insert(ps, "widgets", []storage.Tuple{
		{Values: []storage.TypeData{storage.IntData(1), storage.StringData([]byte("a"))}},
		{Values: []storage.TypeData{storage.IntData(4), storage.StringData([]byte("b"))}},
	}))

	filterValue := storage.IntData(4)
	rows, err := cat.Select(ps, "widgets", []string{"*"}, "id", &filterValue)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(4), rows[0].Values[0].Int)
	assert.Equal(t, "b", string(rows[0].Values[1].Str))
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	ps, cat := openCatalog(t)
	cols := []ColumnDef{{Name: "id", Type: storage.TypeInt}}
	_, err := cat.CreateTable(ps, "widgets", cols)
	require.NoError(t, err)

	_, err = cat.CreateTable(ps, "widgets", cols)
	assert.Error(t, err)
}

func TestCreateTableWithStringPrimaryKeyStaysTableData(t *testing.T) {
	ps, cat := openCatalog(t)
	_, err := cat.CreateTable(ps, "t", []ColumnDef{
		{Name: "name", Type: storage.TypeString},
		{Name: "val", Type: storage.TypeInt},
	})
	require.NoError(t, err)

	assert.Equal(t, storage.TableData, cat.Tables["t"].Kind, "an ordinary table is TableData regardless of its primary key's type")
}

func TestSelectUnindexedColumnFallsBackToScan(t *testing.T) {
	ps, cat := openCatalog(t)
	_, err := cat.CreateTable(ps, "widgets", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)
	require.NoError(t, cat.Insert(ps, "widgets", []storage.Tuple{
		{Values: []storage.TypeData{storage.IntData(1), storage.StringData([]byte("alpha"))}},
		{Values: []storage.TypeData{storage.IntData(2), storage.StringData([]byte("beta"))}},
	}))

	filterValue := storage.StringData([]byte("beta"))
	rows, err := cat.Select(ps, "widgets", []string{"*"}, "name", &filterValue)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].Values[0].Int)
}

func TestSelectUsesAttachedIndex(t *testing.T) {
	ps, cat := openCatalog(t)
	_, err := cat.CreateTable(ps, "widgets", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)

	_, err = cat.CreateIndex(ps, "widgets", 1)
	require.NoError(t, err)

	require.NoError(t, cat.Insert(ps, "widgets", []storage.Tuple{
		{Values: []storage.TypeData{storage.IntData(1), storage.StringData([]byte("shared"))}},
		{Values: []storage.TypeData{storage.IntData(2), storage.StringData([]byte("shared"))}},
	}))

	filterValue := storage.StringData([]byte("shared"))
	rows, err := cat.Select(ps, "widgets", []string{"*"}, "name", &filterValue)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestColumnMaskAllAndWildcard(t *testing.T) {
	ps, cat := openCatalog(t)
	_, err := cat.CreateTable(ps, "widgets", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)
	tbl := cat.Tables["widgets"]

	mask, err := ColumnMask(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, tbl.Schema.AllColumns(), mask)

	mask, err = ColumnMask(tbl, []string{"*"})
	require.NoError(t, err)
	assert.Equal(t, tbl.Schema.AllColumns(), mask)

	mask, err = ColumnMask(tbl, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0b01), mask)

	_, err = ColumnMask(tbl, []string{"nope"})
	assert.Error(t, err)
}

func TestSelectMaskedColumnsReadAsNull(t *testing.T) {
	ps, cat := openCatalog(t)
	_, err := cat.CreateTable(ps, "t", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)
	require.NoError(t, cat.Insert(ps, "t", []storage.Tuple{
		{Values: []storage.TypeData{storage.IntData(4), storage.StringData([]byte("b"))}},
	}))

	filterValue := storage.IntData(4)
	rows, err := cat.Select(ps, "t", []string{"id"}, "id", &filterValue)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Values, 2, "row keeps its full width even when narrowing the requested columns")
	assert.Equal(t, uint64(4), rows[0].Values[0].Int)
}

func TestReopenRehydratesTablesAndIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db1")
	ps, err := storage.Open(path)
	require.NoError(t, err)
	cat, err := Open(ps)
	require.NoError(t, err)

	_, err = cat.CreateTable(ps, "widgets", []ColumnDef{
		{Name: "id", Type: storage.TypeInt},
		{Name: "name", Type: storage.TypeString},
	})
	require.NoError(t, err)
	_, err = cat.CreateIndex(ps, "widgets", 1)
	require.NoError(t, err)
	require.NoError(t, cat.Insert(ps, "widgets", []storage.Tuple{
		{Values: []storage.TypeData{storage.IntData(1), storage.StringData([]byte("x"))}},
	}))
	require.NoError(t, cat.Flush(ps))
	require.NoError(t, ps.Close())

	ps2, err := storage.Open(path)
	require.NoError(t, err)
	defer ps2.Close()
	cat2, err := Open(ps2)
	require.NoError(t, err)

	assert.Contains(t, cat2.ListTables(), "widgets")
	tbl := cat2.Tables["widgets"]
	require.Len(t, tbl.AttachedIndexes, 1)

	filterValue := storage.StringData([]byte("x"))
	rows, err := cat2.Select(ps2, "widgets", []string{"*"}, "name", &filterValue)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].Values[0].Int)
}
