// Package storage -- Secondary Index component
//
// EDUCATIONAL NOTES:
// ------------------
// A secondary index here is not a B-tree: it is itself an ordinary
// TypedTable with schema (indexed_value, base_primary_key), ordered by
// indexed_value. Maintaining it on insert is pushing one more tuple
// through TypedTable.Store; querying it is a Scan restricted to the
// probed value followed by a point lookup on the base table using the
// returned primary keys.
package storage

import "fmt"

// CreateIndexTable builds the TypedTable backing a secondary index on
// baseTable's onColumn, matching SPEC_FULL.md section 4.6.
func CreateIndexTable(indexTableID uint64, baseTable *TypedTable, onColumn uint64) (*TypedTable, error) {
	if int(onColumn) >= len(baseTable.Schema.Fields) {
		return nil, fmt.Errorf("storage: column %d is out of range for table %d", onColumn, baseTable.ID)
	}
	valueType := baseTable.Schema.Fields[onColumn]
	pkType := baseTable.Schema.PrimaryKeyType()

	schema, err := NewSchema([]string{"value", "row"}, []Type{valueType, pkType})
	if err != nil {
		return nil, err
	}

	var kind TableType
	switch valueType {
	case TypeString:
		kind = TableIndexString
	default:
		kind = TableIndexInt
	}
	return NewTypedTable(indexTableID, schema, kind), nil
}

// QueryIndex looks up every base-table primary key whose indexed value
// equals value, via a scan of the index table restricted to that value.
func QueryIndex(ps *PageSerializer, index *TypedTable, value TypeData) ([]TypeData, error) {
	cursor := index.Scan(ps, &value, index.Schema.AllColumns())
	defer cursor.Close()
	tuples, err := cursor.Collect()
	if err != nil {
		return nil, err
	}
	out := make([]TypeData, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, t.Values[1])
	}
	return out, nil
}
