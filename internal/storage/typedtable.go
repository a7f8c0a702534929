package storage

import "fmt"

// IndexDescriptor attaches a secondary index (itself a TypedTable with
// schema (indexed_value, base_primary_key)) to the column of its base
// table it was built from.
type IndexDescriptor struct {
	OnColumn uint64
	Index    *TypedTable
}

// TypedTable is the logical table abstraction mapping a table id to a
// set of pages. Store and Scan never modify it: AttachIndex appends to
// AttachedIndexes, and the catalog fills in Schema and ColumnMap while
// rehydrating. All page state lives in the PageSerializer it is given
// on every call.
type TypedTable struct {
	Schema          *Schema
	ID              uint64
	Kind            TableType
	ColumnMap       map[string]int
	AttachedIndexes []IndexDescriptor
}

// NewTypedTable builds a TypedTable of the given kind; it does not
// itself touch the serializer (no pages exist yet until the first
// Store). kind is carried explicitly rather than re-derived from the
// primary key's type on every page creation -- see SPEC_FULL.md section
// 9's decision on the TableType open question, which also resolves the
// Index(Int) case the original prototype left ambiguous.
func NewTypedTable(id uint64, schema *Schema, kind TableType) *TypedTable {
	cm := make(map[string]int, len(schema.Names))
	for i, n := range schema.Names {
		cm[n] = i
	}
	return &TypedTable{Schema: schema, ID: id, Kind: kind, ColumnMap: cm}
}

// AttachIndex registers a secondary index so future Store calls
// maintain it.
func (t *TypedTable) AttachIndex(onColumn uint64, index *TypedTable) {
	t.AttachedIndexes = append(t.AttachedIndexes, IndexDescriptor{OnColumn: onColumn, Index: index})
}

// Store type-checks tuple, routes it to the correct page (allocating a
// fresh one on miss), splits if the page has grown past the ceiling,
// and pushes the tuple through every attached secondary index. This
// follows SPEC_FULL.md section 4.4's Store algorithm exactly.
func (t *TypedTable) Store(ps *PageSerializer, tuple Tuple) error {
	if err := tuple.TypeCheck(t.Schema); err != nil {
		return err
	}
	pkey := tuple.PrimaryKey()
	if err := t.Schema.ValidatePrimaryKey(pkey); err != nil {
		return err
	}

	var page *TypedPage

	if existing, ok := ps.GetInAllInsert(t.ID, pkey); ok {
		var err error
		page, err = ps.LoadPageCached(existing)
		if err != nil {
			return fmt.Errorf("storage: failed to load page for table %d: %w", t.ID, err)
		}
		page.AttachSchema(t.Schema)
		if !page.Limits().Contains(pkey) {
			ps.UpdateLimits(t.ID, existing, pkey)
		}
		defer ps.UnpinPage(existing)
	} else {
		page = NewTypedPage(t.ID, t.Kind, t.Schema)
		if err := page.Insert(tuple); err != nil {
			return err
		}
		if _, err := ps.ForceFlush(page); err != nil {
			return fmt.Errorf("storage: failed to flush new page for table %d: %w", t.ID, err)
		}
		if err := t.maybeSplit(ps, page); err != nil {
			return err
		}
		return t.storeIntoIndexes(ps, tuple)
	}

	if err := page.Insert(tuple); err != nil {
		return err
	}
	if err := t.maybeSplit(ps, page); err != nil {
		return err
	}
	return t.storeIntoIndexes(ps, tuple)
}

// maybeSplit splits page when its serialized size reaches the
// serializer's page-size ceiling. Only the new half is force-flushed
// immediately; the original half stays dirty in the cache and is
// flushed lazily on eviction or FlushAll, exactly as SPEC_FULL.md
// section 4.4 step 6 specifies.
func (t *TypedTable) maybeSplit(ps *PageSerializer, page *TypedPage) error {
	if page.SerializedLen() < ps.PageCeiling() {
		return nil
	}
	oldMin := page.Limits().Min
	newPage := page.Split()
	ps.ResetLimits(t.ID, oldMin, page.Limits())

	if _, err := ps.ForceFlush(newPage); err != nil {
		return fmt.Errorf("storage: failed to flush split half for table %d: %w", t.ID, err)
	}
	return nil
}

func (t *TypedTable) storeIntoIndexes(ps *PageSerializer, tuple Tuple) error {
	for _, idx := range t.AttachedIndexes {
		indexTuple := Tuple{Values: []TypeData{tuple.Values[idx.OnColumn], tuple.PrimaryKey()}}
		if err := idx.Index.Store(ps, indexTuple); err != nil {
			return fmt.Errorf("storage: failed to maintain index on column %d: %w", idx.OnColumn, err)
		}
	}
	return nil
}

// Cursor iterates tuples across a table's pages, reloading each page
// through the cache on every advance rather than holding a borrowed
// reference across yields -- required because the cache can evict
// between calls (SPEC_FULL.md section 9, "Coroutines / iterators").
type Cursor struct {
	ps          *PageSerializer
	schema      *Schema
	offsets     []uint64
	columnMask  uint64
	key         *TypeData
	offsetIdx   int
	withinPage  int
	pageEnd     int
	currentPage *TypedPage
	currentOff  uint64
	pinned      bool
}

// Scan returns a cursor over a table's tuples. When pkey is non-nil the
// cursor is restricted to pages whose limits overlap it and, within each
// page, to the records whose primary key equals it; otherwise it
// traverses every tuple of every page in page-discovery order.
func (t *TypedTable) Scan(ps *PageSerializer, pkey *TypeData, columnMask uint64) *Cursor {
	offsets := ps.GetInAll(t.ID, pkey)
	return &Cursor{ps: ps, schema: t.Schema, offsets: offsets, columnMask: columnMask, key: pkey}
}

// GetAll is Scan(nil, columnMask).
func (t *TypedTable) GetAll(ps *PageSerializer, columnMask uint64) *Cursor {
	return t.Scan(ps, nil, columnMask)
}

// Next advances the cursor, returning false once exhausted. It re-pins
// the page it is about to read from and unpins the previous one.
func (c *Cursor) Next() (Tuple, bool, error) {
	for {
		if c.currentPage == nil {
			if c.offsetIdx >= len(c.offsets) {
				return Tuple{}, false, nil
			}
			offset := c.offsets[c.offsetIdx]
			page, err := c.ps.LoadPageCached(offset)
			if err != nil {
				return Tuple{}, false, fmt.Errorf("storage: cursor failed to load page at offset %d: %w", offset, err)
			}
			page.AttachSchema(c.schema)
			c.currentPage = page
			c.currentOff = offset
			c.pinned = true
			if c.key != nil {
				c.withinPage, c.pageEnd = page.GetRanges(*c.key, *c.key)
			} else {
				c.withinPage, c.pageEnd = 0, page.TupleCount()
			}
		}

		if c.withinPage >= c.pageEnd {
			if c.pinned {
				c.ps.UnpinPage(c.currentOff)
				c.pinned = false
			}
			c.currentPage = nil
			c.offsetIdx++
			continue
		}

		tup := c.currentPage.ReadTuple(c.withinPage, c.columnMask)
		c.withinPage++
		return tup, true, nil
	}
}

// Close releases any page the cursor still has pinned. Callers that
// exhaust the cursor via Next returning false need not call this.
func (c *Cursor) Close() {
	if c.pinned {
		c.ps.UnpinPage(c.currentOff)
		c.pinned = false
	}
}

// Collect drains the cursor into a slice; intended for small result
// sets (tests, secondary-index probes), not production scan paths.
func (c *Cursor) Collect() ([]Tuple, error) {
	var out []Tuple
	for {
		tup, ok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tup)
	}
}
