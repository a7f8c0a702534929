package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIndexTableDerivesSchemaFromBase(t *testing.T) {
	base := NewTypedTable(1, testSchema(t), TableData)

	idx, err := CreateIndexTable(2, base, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"value", "row"}, idx.Schema.Names)
	assert.Equal(t, TypeString, idx.Schema.Fields[0])
	assert.Equal(t, TypeInt, idx.Schema.Fields[1])
	assert.Equal(t, TableIndexString, idx.Kind)
}

func TestCreateIndexTableOnIntColumnUsesIndexIntKind(t *testing.T) {
	s, err := NewSchema([]string{"id", "age"}, []Type{TypeInt, TypeInt})
	require.NoError(t, err)
	base := NewTypedTable(1, s, TableData)

	idx, err := CreateIndexTable(2, base, 1)
	require.NoError(t, err)
	assert.Equal(t, TableIndexInt, idx.Kind)
}

func TestCreateIndexTableRejectsOutOfRangeColumn(t *testing.T) {
	base := NewTypedTable(1, testSchema(t), TableData)
	_, err := CreateIndexTable(2, base, 7)
	assert.Error(t, err)
}

func TestQueryIndexReturnsMatchingBaseKeys(t *testing.T) {
	ps := openTestSerializer(t)
	base := NewTypedTable(1, testSchema(t), TableData)
	idx, err := CreateIndexTable(2, base, 1)
	require.NoError(t, err)

	require.NoError(t, idx.Store(ps, Tuple{Values: []TypeData{StringData([]byte("shared")), IntData(10)}}))
	require.NoError(t, idx.Store(ps, Tuple{Values: []TypeData{StringData([]byte("shared")), IntData(20)}}))
	require.NoError(t, idx.Store(ps, Tuple{Values: []TypeData{StringData([]byte("other")), IntData(30)}}))

	keys, err := QueryIndex(ps, idx, StringData([]byte("shared")))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.ElementsMatch(t, []uint64{10, 20}, []uint64{keys[0].Int, keys[1].Int})
}
