// Package catalog manages the database catalog (metadata about tables).
//
// EDUCATIONAL NOTES:
// ------------------
// Every database has a "catalog" or "system tables" that store metadata:
// - What tables exist
// - What columns each table has
// - Column types
// - Secondary index attachments
//
// In production databases like PostgreSQL, this is stored in special
// system tables (pg_class, pg_attribute, etc.). SQLite stores it in
// sqlite_master.
//
// Here the catalog is not a special page format at all: it is two
// ordinary TypedTables, reserved at table ids 2 and 3, that describe
// every other table (including themselves, reflexively). Opening the
// database means scanning those two tables and rebuilding the in-memory
// name -> TypedTable map from their rows; there is no separate on-disk
// catalog format to parse.
package catalog

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cabewaldrop/pagestore/internal/storage"
)

// Reserved table ids. 0 and 1 are left free for a future free-list or
// transaction log; schema metadata starts at 2, mirroring the original
// prototype's NamedTables layout.
const (
	SchemaTableID      = 2
	IndexSchemaTableID = 3
)

// ColumnDef is one column of a CreateTable request: name plus declared
// type. The first column in a CreateTable's list is always the primary
// key.
type ColumnDef struct {
	Name string
	Type storage.Type
}

// NamedTables is the catalog: a name -> TypedTable map rehydrated from
// (and kept in sync with) the two reserved schema tables.
type NamedTables struct {
	Tables    map[string]*storage.TypedTable
	largestID uint64
}

// Open rehydrates the catalog from ps, bootstrapping the two schema
// tables on a fresh database. Grounded on named_tables.rs's `new` and
// `init_secondary_indices`.
func Open(ps *storage.PageSerializer) (*NamedTables, error) {
	schema, err := storage.NewSchema(
		[]string{"table_id", "table_name", "column_name", "column_type"},
		[]storage.Type{storage.TypeInt, storage.TypeString, storage.TypeString, storage.TypeInt},
	)
	if err != nil {
		return nil, err
	}
	schemaTable := storage.NewTypedTable(SchemaTableID, schema, storage.TableData)

	nt := &NamedTables{
		Tables:    map[string]*storage.TypedTable{"schema": schemaTable},
		largestID: IndexSchemaTableID,
	}

	rows, err := schemaTable.GetAll(ps, schema.AllColumns()).Collect()
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to scan schema table: %w", err)
	}
	// Replayed in reverse: rows sharing a table id are inserted at the
	// front of their run, so the scan sees a table's columns last-first,
	// and reversing appends its first column (the primary key) first.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		id := row.Values[0].Int
		tableName := string(row.Values[1].Str)
		columnName := string(row.Values[2].Str)
		columnType := storage.Type(row.Values[3].Int)

		tbl, ok := nt.Tables[tableName]
		if !ok {
			tbl = storage.NewTypedTable(id, &storage.Schema{}, storage.TableData)
			nt.Tables[tableName] = tbl
		}
		tbl.ColumnMap[columnName] = len(tbl.Schema.Fields)
		tbl.Schema.Fields = append(tbl.Schema.Fields, columnType)
		tbl.Schema.Names = append(tbl.Schema.Names, columnName)
		if id > nt.largestID {
			nt.largestID = id
		}
	}

	if err := nt.rehydrateIndexSchema(ps); err != nil {
		return nil, err
	}
	return nt, nil
}

// rehydrateIndexSchema loads (or bootstraps) the index_schema table and
// re-attaches every secondary index it lists to its base table.
func (nt *NamedTables) rehydrateIndexSchema(ps *storage.PageSerializer) error {
	indexSchema, err := storage.NewSchema(
		[]string{"base_table_id", "index_table_id", "on_column"},
		[]storage.Type{storage.TypeInt, storage.TypeInt, storage.TypeInt},
	)
	if err != nil {
		return err
	}

	indexSchemaTable, ok := nt.Tables["index_schema"]
	if !ok {
		indexSchemaTable = storage.NewTypedTable(IndexSchemaTableID, indexSchema, storage.TableData)
		nt.Tables["index_schema"] = indexSchemaTable
	} else {
		indexSchemaTable.Schema = indexSchema
	}

	rows, err := indexSchemaTable.GetAll(ps, indexSchema.AllColumns()).Collect()
	if err != nil {
		return fmt.Errorf("catalog: failed to scan index schema table: %w", err)
	}

	byID := make(map[uint64]*storage.TypedTable, len(nt.Tables))
	for _, t := range nt.Tables {
		byID[t.ID] = t
	}

	for _, row := range rows {
		baseID := row.Values[0].Int
		indexID := row.Values[1].Int
		onColumn := row.Values[2].Int

		base, ok := byID[baseID]
		if !ok {
			return fmt.Errorf("catalog: index schema references unknown base table %d", baseID)
		}
		indexTable, ok := byID[indexID]
		if !ok {
			indexTable, err = storage.CreateIndexTable(indexID, base, onColumn)
			if err != nil {
				return fmt.Errorf("catalog: failed to rebuild index table %d: %w", indexID, err)
			}
			byID[indexID] = indexTable
		}
		base.AttachIndex(onColumn, indexTable)
		if indexID > nt.largestID {
			nt.largestID = indexID
		}
	}
	return nil
}

// CreateTable allocates a new table id, persists its columns into the
// schema table, and registers the live TypedTable. Grounded on
// named_tables.rs's `insert_table`.
func (nt *NamedTables) CreateTable(ps *storage.PageSerializer, name string, columns []ColumnDef) (*storage.TypedTable, error) {
	if _, exists := nt.Tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	nt.largestID++
	tableID := nt.largestID

	schemaTable := nt.Tables["schema"]
	for _, col := range columns {
		tup := storage.Tuple{Values: []storage.TypeData{
			storage.IntData(tableID),
			storage.StringData([]byte(name)),
			storage.StringData([]byte(col.Name)),
			storage.IntData(uint64(col.Type)),
		}}
		if err := schemaTable.Store(ps, tup); err != nil {
			return nil, fmt.Errorf("catalog: failed to persist column %q of table %q: %w", col.Name, name, err)
		}
	}

	names := make([]string, len(columns))
	types := make([]storage.Type, len(columns))
	for i, c := range columns {
		names[i] = c.Name
		types[i] = c.Type
	}
	schema, err := storage.NewSchema(names, types)
	if err != nil {
		return nil, err
	}

	tbl := storage.NewTypedTable(tableID, schema, storage.TableData)
	nt.Tables[name] = tbl
	ps.Logger().Info().Str("table", name).Uint64("id", tableID).Int("columns", len(columns)).Msg("created table")
	return tbl, nil
}

// CreateIndex builds and registers a secondary index on baseTable's
// column onColumn, persisting the attachment into the index schema
// table so it survives a reopen.
func (nt *NamedTables) CreateIndex(ps *storage.PageSerializer, tableName string, onColumn uint64) (*storage.TypedTable, error) {
	base, ok := nt.Tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown table %q", tableName)
	}

	nt.largestID++
	indexID := nt.largestID
	indexTable, err := storage.CreateIndexTable(indexID, base, onColumn)
	if err != nil {
		return nil, err
	}
	base.AttachIndex(onColumn, indexTable)

	indexSchemaTable := nt.Tables["index_schema"]
	tup := storage.Tuple{Values: []storage.TypeData{
		storage.IntData(base.ID),
		storage.IntData(indexID),
		storage.IntData(onColumn),
	}}
	if err := indexSchemaTable.Store(ps, tup); err != nil {
		return nil, fmt.Errorf("catalog: failed to persist index attachment: %w", err)
	}
	return indexTable, nil
}

// Insert type-checks and stores rows into an existing table.
func (nt *NamedTables) Insert(ps *storage.PageSerializer, tableName string, rows []storage.Tuple) error {
	tbl, ok := nt.Tables[tableName]
	if !ok {
		return fmt.Errorf("catalog: unknown table %q", tableName)
	}
	for _, row := range rows {
		if err := tbl.Store(ps, row); err != nil {
			return err
		}
	}
	return nil
}

// ColumnMask computes the bitmask for a SELECT's requested columns,
// treating an empty or "*" list as every column -- grounded on
// named_tables.rs's calculate_column_mask.
func ColumnMask(tbl *storage.TypedTable, fields []string) (uint64, error) {
	if len(fields) == 0 {
		return tbl.Schema.AllColumns(), nil
	}
	var mask uint64
	for _, f := range fields {
		if f == "*" {
			return tbl.Schema.AllColumns(), nil
		}
		idx, ok := tbl.ColumnMap[f]
		if !ok {
			return 0, fmt.Errorf("catalog: unknown column %q", f)
		}
		if idx >= 64 {
			return 0, fmt.Errorf("catalog: column index %d exceeds mask width", idx)
		}
		mask |= uint64(1) << uint(idx)
	}
	return mask, nil
}

// Select runs an optional single-column equality filter against a
// table: a point lookup when the filter is on the primary key (column
// 0), an index probe plus per-key point lookups when an attached
// secondary index covers the filter column, and a full scan with an
// in-memory filter otherwise. Grounded on named_tables.rs's
// execute_select.
func (nt *NamedTables) Select(ps *storage.PageSerializer, tableName string, fields []string, filterColumn string, filterValue *storage.TypeData) ([]storage.Tuple, error) {
	tbl, ok := nt.Tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown table %q", tableName)
	}
	mask, err := ColumnMask(tbl, fields)
	if err != nil {
		return nil, err
	}

	if filterValue == nil {
		return tbl.GetAll(ps, mask).Collect()
	}

	colIdx, ok := tbl.ColumnMap[filterColumn]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown column %q", filterColumn)
	}

	if colIdx == 0 {
		return tbl.Scan(ps, filterValue, mask).Collect()
	}

	for _, idx := range tbl.AttachedIndexes {
		if idx.OnColumn == uint64(colIdx) {
			keys, err := storage.QueryIndex(ps, idx.Index, *filterValue)
			if err != nil {
				return nil, err
			}
			out := make([]storage.Tuple, 0, len(keys))
			for _, k := range keys {
				rows, err := tbl.Scan(ps, &k, mask).Collect()
				if err != nil {
					return nil, err
				}
				out = append(out, rows...)
			}
			return out, nil
		}
	}

	// No index on this column: a full scan plus an in-memory filter.
	// The original marks this path with a runtime warning rather than
	// refusing the query outright.
	ps.Logger().Warn().Str("table", tableName).Str("column", filterColumn).Msg("using inefficient table scan: no index on filter column")
	rows, err := tbl.GetAll(ps, tbl.Schema.AllColumns()).Collect()
	if err != nil {
		return nil, err
	}
	out := make([]storage.Tuple, 0, len(rows))
	for _, row := range rows {
		if row.Values[colIdx].Equals(*filterValue) {
			out = append(out, applyMask(row, mask))
		}
	}
	return out, nil
}

func applyMask(t storage.Tuple, mask uint64) storage.Tuple {
	out := make([]storage.TypeData, len(t.Values))
	for i, v := range t.Values {
		if mask&(uint64(1)<<uint(i)) != 0 {
			out[i] = v
		} else {
			out[i] = storage.NullData
		}
	}
	return storage.Tuple{Values: out}
}

// ListTables returns every user-visible table name (the two reserved
// schema tables are excluded).
func (nt *NamedTables) ListTables() []string {
	names := make([]string, 0, len(nt.Tables))
	for name := range nt.Tables {
		if name == "schema" || name == "index_schema" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Flush ensures all catalog and table changes are written to disk.
func (nt *NamedTables) Flush(ps *storage.PageSerializer) error {
	return ps.FlushAll()
}

// Logger exposes the underlying serializer's per-handle logger so
// callers (executor, cmd) can log under the same logger rather than a
// process-wide singleton.
func (nt *NamedTables) Logger(ps *storage.PageSerializer) zerolog.Logger {
	return ps.Logger()
}
