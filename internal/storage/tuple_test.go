package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]string{"id", "name"}, []Type{TypeInt, TypeString})
	require.NoError(t, err)
	return s
}

func TestNewSchemaValidation(t *testing.T) {
	_, err := NewSchema([]string{"id"}, []Type{TypeInt, TypeString})
	assert.Error(t, err, "mismatched names/fields length")

	_, err = NewSchema(nil, nil)
	assert.Error(t, err, "must have at least one column")

	names := make([]string, maxSchemaColumns+1)
	fields := make([]Type, maxSchemaColumns+1)
	for i := range names {
		names[i] = "c"
		fields[i] = TypeInt
	}
	_, err = NewSchema(names, fields)
	assert.Error(t, err, "exceeds column cap")
}

func TestSchemaColumnIndexAndAllColumns(t *testing.T) {
	s := testSchema(t)
	idx, ok := s.ColumnIndex("name")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = s.ColumnIndex("missing")
	assert.False(t, ok)

	assert.Equal(t, uint64(0b11), s.AllColumns())
}

func TestSchemaValidatePrimaryKeyRejectsSentinel(t *testing.T) {
	s := testSchema(t)
	assert.Error(t, s.ValidatePrimaryKey(MaxIntData))
	assert.NoError(t, s.ValidatePrimaryKey(IntData(42)))
}

func TestTupleTypeCheck(t *testing.T) {
	s := testSchema(t)

	ok := Tuple{Values: []TypeData{IntData(1), StringData([]byte("a"))}}
	assert.NoError(t, ok.TypeCheck(s))

	wrongArity := Tuple{Values: []TypeData{IntData(1)}}
	assert.Error(t, wrongArity.TypeCheck(s))

	nullPK := Tuple{Values: []TypeData{NullData, StringData([]byte("a"))}}
	assert.Error(t, nullPK.TypeCheck(s), "primary key must not be null")

	nullNonPK := Tuple{Values: []TypeData{IntData(1), NullData}}
	assert.NoError(t, nullNonPK.TypeCheck(s), "non-key columns may be null")

	wrongKind := Tuple{Values: []TypeData{StringData([]byte("x")), StringData([]byte("a"))}}
	assert.Error(t, wrongKind.TypeCheck(s))
}

func TestBuildAndReadRoundTrip(t *testing.T) {
	s := testSchema(t)
	tup := Tuple{Values: []TypeData{IntData(7), StringData([]byte("seven"))}}

	heap := &growableHeap{}
	record, err := Build(s, tup, heap)
	require.NoError(t, err)
	assert.Len(t, record, s.TypeSize())

	got := Read(s, record, heap.Bytes(), s.AllColumns())
	assert.Equal(t, uint64(7), got.Values[0].Int)
	assert.Equal(t, "seven", string(got.Values[1].Str))
}

func TestReadAppliesColumnMask(t *testing.T) {
	s := testSchema(t)
	tup := Tuple{Values: []TypeData{IntData(7), StringData([]byte("seven"))}}

	heap := &growableHeap{}
	record, err := Build(s, tup, heap)
	require.NoError(t, err)

	// Mask off column 1 (name): it should read back as Null rather than
	// be narrowed out of the tuple.
	got := Read(s, record, heap.Bytes(), 0b01)
	assert.Equal(t, uint64(7), got.Values[0].Int)
	assert.Equal(t, KindNull, got.Values[1].Kind)
	assert.Len(t, got.Values, 2)
}

func TestReadPrimaryKey(t *testing.T) {
	s := testSchema(t)
	tup := Tuple{Values: []TypeData{IntData(99), StringData([]byte("x"))}}
	heap := &growableHeap{}
	record, err := Build(s, tup, heap)
	require.NoError(t, err)

	pk := ReadPrimaryKey(s, record, heap.Bytes())
	assert.Equal(t, uint64(99), pk.Int)
}

func TestBuildRejectsNullPrimaryKey(t *testing.T) {
	s := testSchema(t)
	tup := Tuple{Values: []TypeData{NullData, StringData([]byte("a"))}}
	heap := &growableHeap{}
	_, err := Build(s, tup, heap)
	assert.Error(t, err)
}
