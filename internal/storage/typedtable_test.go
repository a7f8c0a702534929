package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, id uint64) (*PageSerializer, *TypedTable) {
	t.Helper()
	ps := openTestSerializer(t)
	s := testSchema(t)
	return ps, NewTypedTable(id, s, TableData)
}

func TestTypedTableStoreAndGetAll(t *testing.T) {
	ps, tbl := newTestTable(t, 1)

	for _, row := range []struct {
		id   uint64
		name string
	}{
		{1, "alice"}, {2, "bob"}, {3, "carol"},
	} {
		require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(row.id), StringData([]byte(row.name))}}))
	}

	rows, err := tbl.GetAll(ps, tbl.Schema.AllColumns()).Collect()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, uint64(1), rows[0].Values[0].Int)
	assert.Equal(t, "carol", string(rows[2].Values[1].Str))
}

func TestTypedTableStoreRejectsSchemaMismatch(t *testing.T) {
	ps, tbl := newTestTable(t, 1)
	err := tbl.Store(ps, Tuple{Values: []TypeData{IntData(1)}})
	assert.Error(t, err)
}

func TestTypedTableStoreRejectsSentinelPrimaryKey(t *testing.T) {
	ps, tbl := newTestTable(t, 1)
	err := tbl.Store(ps, Tuple{Values: []TypeData{MaxIntData, StringData([]byte("x"))}})
	assert.Error(t, err)
}

func TestTypedTableScanByKey(t *testing.T) {
	ps, tbl := newTestTable(t, 1)
	for _, id := range []uint64{1, 2, 3} {
		require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(id), StringData([]byte("v"))}}))
	}

	key := IntData(2)
	rows, err := tbl.Scan(ps, &key, tbl.Schema.AllColumns()).Collect()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].Values[0].Int)
}

func TestTypedTableSplitsAcrossPageCeiling(t *testing.T) {
	ps := openTestSerializer(t, WithPageCeiling(256))
	s := testSchema(t)
	tbl := NewTypedTable(1, s, TableData)

	for id := uint64(0); id < 50; id++ {
		require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(id), StringData([]byte("padding-value"))}}))
	}

	offsets := ps.GetInAll(1, nil)
	assert.Greater(t, len(offsets), 1, "expected the table to span more than one page after many inserts")

	rows, err := tbl.GetAll(ps, tbl.Schema.AllColumns()).Collect()
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}

func TestTypedTableMaintainsAttachedIndex(t *testing.T) {
	ps, tbl := newTestTable(t, 1)
	indexTbl, err := CreateIndexTable(2, tbl, 1)
	require.NoError(t, err)
	tbl.AttachIndex(1, indexTbl)

	require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(1), StringData([]byte("dup"))}}))
	require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(2), StringData([]byte("dup"))}}))

	keys, err := QueryIndex(ps, indexTbl, StringData([]byte("dup")))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestCursorCloseUnpinsWithoutExhausting(t *testing.T) {
	ps, tbl := newTestTable(t, 1)
	require.NoError(t, tbl.Store(ps, Tuple{Values: []TypeData{IntData(1), StringData([]byte("a"))}}))

	cursor := tbl.GetAll(ps, tbl.Schema.AllColumns())
	_, ok, err := cursor.Next()
	require.NoError(t, err)
	require.True(t, ok)
	cursor.Close()
	assert.Empty(t, ps.pinned)
}
