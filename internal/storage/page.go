// Package storage -- Typed Page component
//
// EDUCATIONAL NOTES:
// ------------------
// A TypedPage is nothing like the fixed 4KB block of a conventional
// page store: it is a sorted, fixed-width array of tuple records (one
// table's rows, all sharing the table's schema) plus a growing
// page-local heap that backs the variable-length string payloads those
// records reference. Lookup is a binary search over the record array by
// primary key; growth is handled by splitting the page in two once its
// serialized size crosses a ceiling, not by overflow chaining.
package storage

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultPageCeiling is the default maximum serialized page size (bytes)
// before a Split is required.
const DefaultPageCeiling = 16000

// pageTrailerMagic is the trailing per-page magic from SPEC_FULL.md
// section 6.
const pageTrailerMagic uint64 = 0xf6c4f2fcf200310e

// TableType distinguishes a page belonging to ordinary table storage
// from one belonging to a secondary index, and for index pages, what
// type the indexed (primary-key) column is.
type TableType uint8

const (
	TableData TableType = iota
	TableIndexInt
	TableIndexString
)

func (t TableType) String() string {
	switch t {
	case TableData:
		return "Data"
	case TableIndexInt:
		return "IndexInt"
	case TableIndexString:
		return "IndexString"
	default:
		return "Unknown"
	}
}

// TypedPage is one frame's worth of one table's rows.
type TypedPage struct {
	TableID   uint64
	TableType TableType
	TypeSize  int

	data []byte // row-major fixed-width tuple array
	heap []byte // page-local heap backing string payloads

	limits Limits
	dirty  bool

	// location is the page's offset in the backing file, or nil if it
	// has never been flushed.
	location *uint64

	// schema is attached by the caller (TypedTable) after construction
	// or after a cache load; it is never persisted on the page itself
	// (only TypeSize and TableType are), since every page of a table
	// shares the table's schema and the table already owns one.
	schema *Schema
}

// NewTypedPage creates an empty page for the given table.
func NewTypedPage(tableID uint64, tableType TableType, schema *Schema) *TypedPage {
	return &TypedPage{
		TableID:   tableID,
		TableType: tableType,
		TypeSize:  schema.TypeSize(),
		schema:    schema,
		dirty:     true,
	}
}

// AttachSchema associates a schema with a page freshly loaded from disk.
func (p *TypedPage) AttachSchema(s *Schema) { p.schema = s }

func (p *TypedPage) IsDirty() bool    { return p.dirty }
func (p *TypedPage) Limits() Limits   { return p.limits }
func (p *TypedPage) TupleCount() int  { return len(p.data) / p.TypeSize }
func (p *TypedPage) Location() uint64 { return *p.location }
func (p *TypedPage) HasLocation() bool {
	return p.location != nil
}

// SerializedLen estimates the page's on-disk frame body size: chunk
// header plus tuple array plus heap. Used against the page-size ceiling.
func (p *TypedPage) SerializedLen() int {
	return chunkHeaderFixedSize + len(p.data) + len(p.heap)
}

func (p *TypedPage) recordAt(i int) []byte {
	off := i * p.TypeSize
	return p.data[off : off+p.TypeSize]
}

func (p *TypedPage) pkAt(i int) TypeData {
	return ReadPrimaryKey(p.schema, p.recordAt(i), p.heap)
}

// LowerBound returns the first index whose primary key is >= key.
func (p *TypedPage) LowerBound(key TypeData) int {
	n := p.TupleCount()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if p.pkAt(mid).Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpperBound returns the first index whose primary key is > key.
func (p *TypedPage) UpperBound(key TypeData) int {
	n := p.TupleCount()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if p.pkAt(mid).Compare(key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// GetRanges returns the half-open record-index range [start,end)
// covering the inclusive key bounds [lo,hi].
func (p *TypedPage) GetRanges(lo, hi TypeData) (start, end int) {
	return p.LowerBound(lo), p.UpperBound(hi)
}

// Search returns every record whose primary key equals key.
func (p *TypedPage) Search(key TypeData) [][]byte {
	start, end := p.GetRanges(key, key)
	out := make([][]byte, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, p.recordAt(i))
	}
	return out
}

// ReadTuple decodes the i-th record under columnMask.
func (p *TypedPage) ReadTuple(i int, columnMask uint64) Tuple {
	return Read(p.schema, p.recordAt(i), p.heap, columnMask)
}

// Insert adds t to the page in sorted position, growing the heap for
// any string payloads. The page must have its schema attached.
func (p *TypedPage) Insert(t Tuple) error {
	h := &growableHeap{buf: p.heap}
	record, err := Build(p.schema, t, h)
	if err != nil {
		return err
	}
	if len(record) != p.TypeSize {
		return fmt.Errorf("storage: built record width %d does not match page type size %d", len(record), p.TypeSize)
	}
	p.heap = h.Bytes()

	pk := t.PrimaryKey()
	idx := p.LowerBound(pk)
	off := idx * p.TypeSize
	p.data = append(p.data, make([]byte, p.TypeSize)...)
	copy(p.data[off+p.TypeSize:], p.data[off:len(p.data)-p.TypeSize])
	copy(p.data[off:off+p.TypeSize], record)

	p.limits.Add(pk)
	p.dirty = true
	return nil
}

// findSplitPoint advances past any run of tuples sharing a primary key
// so the two halves produced by Split have disjoint limits. If that run
// reaches the end of the page it walks backward to the run's start
// instead. It panics only if no valid split point exists -- i.e. every
// tuple on the page shares a single primary key. This mirrors the
// "Fails fatally" policy for the Internal/page-overflow error class in
// SPEC_FULL.md section 7.
func (p *TypedPage) findSplitPoint(v int) int {
	n := p.TupleCount()
	if v <= 0 || v >= n {
		panic("storage: split point out of range")
	}
	pivotKey := p.pkAt(v)
	i := v
	for i < n && p.pkAt(i).Compare(pivotKey) == 0 {
		i++
	}
	if i < n {
		return i
	}
	// No boundary after v; try walking backward instead.
	i = v
	for i > 0 && p.pkAt(i-1).Compare(pivotKey) == 0 {
		i--
	}
	if i > 0 {
		return i
	}
	panic(fmt.Sprintf("storage: cannot split page for table %d: a single primary key occupies the whole page", p.TableID))
}

// Split is required when SerializedLen is >= the page-size ceiling. It
// re-encodes both halves into fresh heaps to compact: the receiver
// retains [0, middle) with rebuilt heap and limits; the returned page
// holds [middle, n) with its own heap and limits.
func (p *TypedPage) Split() *TypedPage {
	n := p.TupleCount()
	middle := p.findSplitPoint(n / 2)

	left := p.reencodeRange(0, middle)
	right := p.reencodeRange(middle, n)

	p.data = left.data
	p.heap = left.heap
	p.limits = left.limits
	p.dirty = true

	newPage := &TypedPage{
		TableID:   p.TableID,
		TableType: p.TableType,
		TypeSize:  p.TypeSize,
		schema:    p.schema,
		data:      right.data,
		heap:      right.heap,
		limits:    right.limits,
		dirty:     true,
	}
	return newPage
}

type reencoded struct {
	data   []byte
	heap   []byte
	limits Limits
}

func (p *TypedPage) reencodeRange(start, end int) reencoded {
	h := &growableHeap{}
	var data bytes.Buffer
	var limits Limits
	for i := start; i < end; i++ {
		t := p.ReadTuple(i, p.schema.AllColumns())
		record, err := Build(p.schema, t, h)
		if err != nil {
			panic(fmt.Sprintf("storage: re-encode failed during split: %v", err))
		}
		data.Write(record)
		limits.Add(t.PrimaryKey())
	}
	return reencoded{data: data.Bytes(), heap: h.Bytes(), limits: limits}
}

// chunkHeaderFixedSize is the byte size of the chunk header excluding
// the variable-length limits encoding: magic(8) + table_id(8) +
// total_len(4) + type_size(4) + tuple_count(4) + heap_size(4) +
// table_type(1).
const chunkHeaderFixedSize = 8 + 8 + 4 + 4 + 4 + 4 + 1

// serializeBody writes the chunk header, tuple array, heap and trailing
// magic -- everything inside a LIVE frame's body.
func (p *TypedPage) serializeBody() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeU64(&buf, chunkHeaderMagic); err != nil {
		return nil, err
	}
	if err := writeU64(&buf, p.TableID); err != nil {
		return nil, err
	}
	totalLen := uint32(chunkHeaderFixedSize + len(p.data) + len(p.heap) + 8) // +8 for trailing magic; the limits encoding is not counted
	if err := writeU32(&buf, totalLen); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, uint32(p.TypeSize)); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, uint32(p.TupleCount())); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, uint32(len(p.heap))); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte{byte(p.TableType)}); err != nil {
		return nil, err
	}
	if err := p.limits.Serialize(&buf); err != nil {
		return nil, err
	}
	buf.Write(p.data)
	buf.Write(p.heap)
	if err := writeU64(&buf, pageTrailerMagic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeBody parses a LIVE frame's body back into a page. The
// caller must AttachSchema before using any operation that decodes
// tuples.
func deserializeBody(body []byte) (*TypedPage, error) {
	r := bytes.NewReader(body)
	magic, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if magic != chunkHeaderMagic {
		return nil, fmt.Errorf("storage: bad chunk header magic %#x", magic)
	}
	tableID, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if _, err := readU32(r); err != nil { // total_len, unused on read
		return nil, err
	}
	typeSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	tupleCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	heapSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var tableTypeByte [1]byte
	if _, err := io.ReadFull(r, tableTypeByte[:]); err != nil {
		return nil, err
	}
	limits, err := ReadLimits(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, int(tupleCount)*int(typeSize))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	heap := make([]byte, heapSize)
	if _, err := io.ReadFull(r, heap); err != nil {
		return nil, err
	}
	trailer, err := readU64(r)
	if err != nil {
		return nil, err
	}
	if trailer != pageTrailerMagic {
		return nil, fmt.Errorf("storage: bad page trailer magic %#x", trailer)
	}
	return &TypedPage{
		TableID:   tableID,
		TableType: TableType(tableTypeByte[0]),
		TypeSize:  int(typeSize),
		data:      data,
		heap:      heap,
		limits:    limits,
		dirty:     false,
	}, nil
}
