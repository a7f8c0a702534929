package storage

import (
	"bytes"
	"fmt"
)

// maxSchemaColumns is the "at most 63 columns" cap from SPEC_FULL.md
// section 3. Column masks are uint64; bit 63 is reserved and always
// zero so that AllColumns() has a single, consistent representation
// rather than overloading the all-ones pattern for both "64 columns"
// and "every declared column."
const maxSchemaColumns = 63

// maxRecordSize is the resource cap on a tuple record's fixed-width
// payload; string bytes live in the page heap and do not count.
const maxRecordSize = 400

// Schema is a DynamicTuple: a fixed vector of column types plus the
// names used by the catalog and executor layers. The first field is
// always the primary key.
type Schema struct {
	Fields []Type
	Names  []string
}

// NewSchema builds a schema, asserting the column cap, the record-size
// cap and that names and fields line up one-to-one.
func NewSchema(names []string, fields []Type) (*Schema, error) {
	if len(names) != len(fields) {
		return nil, fmt.Errorf("storage: schema has %d names but %d field types", len(names), len(fields))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("storage: schema must have at least one column (the primary key)")
	}
	if len(fields) > maxSchemaColumns {
		return nil, fmt.Errorf("storage: schema has %d columns, exceeding the %d column cap", len(fields), maxSchemaColumns)
	}
	s := &Schema{Fields: append([]Type(nil), fields...), Names: append([]string(nil), names...)}
	if s.TypeSize() > maxRecordSize {
		return nil, fmt.Errorf("storage: schema record width %d bytes exceeds the %d-byte cap", s.TypeSize(), maxRecordSize)
	}
	return s, nil
}

// PrimaryKeyType returns the type of column 0.
func (s *Schema) PrimaryKeyType() Type { return s.Fields[0] }

// TypeSize returns the fixed on-page width of one tuple record.
func (s *Schema) TypeSize() int {
	total := 0
	for _, f := range s.Fields {
		total += f.FixedWidth()
	}
	return total
}

// fieldOffset returns the byte offset of field i within a fixed-width
// record.
func (s *Schema) fieldOffset(i int) int {
	off := 0
	for j := 0; j < i; j++ {
		off += s.Fields[j].FixedWidth()
	}
	return off
}

// ColumnIndex looks up a column by name.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, n := range s.Names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// AllColumns returns the column mask selecting every declared field.
func (s *Schema) AllColumns() uint64 {
	return (uint64(1) << uint(len(s.Fields))) - 1
}

// ValidatePrimaryKey rejects the reserved "greater than anything"
// sentinel as a user-supplied key -- see SPEC_FULL.md section 9's
// decision on the Int(u64::MAX) open question.
func (s *Schema) ValidatePrimaryKey(pk TypeData) error {
	if pk.Kind == KindInt && pk.Int == MaxIntData.Int {
		return fmt.Errorf("storage: primary key value %d is reserved as an internal sentinel", pk.Int)
	}
	return nil
}

// Tuple is one row's worth of values, one per schema field.
type Tuple struct {
	Values []TypeData
}

// TypeCheck asserts that t's values match schema's declared kinds
// (Null is always permitted for non-primary-key columns).
func (t Tuple) TypeCheck(schema *Schema) error {
	if len(t.Values) != len(schema.Fields) {
		return fmt.Errorf("storage: tuple has %d values, schema expects %d", len(t.Values), len(schema.Fields))
	}
	for i, v := range t.Values {
		want := schema.Fields[i]
		if v.Kind == KindNull {
			if i == 0 {
				return fmt.Errorf("storage: primary key (column 0) must not be null")
			}
			continue
		}
		if (want == TypeInt && v.Kind != KindInt) || (want == TypeString && v.Kind != KindString) {
			return fmt.Errorf("storage: column %d expects %s, got kind %d", i, want, v.Kind)
		}
	}
	return nil
}

// PrimaryKey returns column 0.
func (t Tuple) PrimaryKey() TypeData { return t.Values[0] }

// Build encodes t into a fixed-width record, appending string payloads
// to heap. Integers are written little-endian inline; the primary key
// (column 0) must not be Null.
func Build(schema *Schema, t Tuple, heap *growableHeap) ([]byte, error) {
	if err := t.TypeCheck(schema); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for i, v := range t.Values {
		switch schema.Fields[i] {
		case TypeInt:
			iv := v.Int
			if v.Kind == KindNull {
				iv = 0
			}
			if err := writeU64(&buf, iv); err != nil {
				return nil, err
			}
		case TypeString:
			var desc StringDescriptor
			if v.Kind == KindNull {
				desc = OwnedDescriptor(nil)
			} else {
				desc = OwnedDescriptor(v.Str)
			}
			if err := desc.SerializeWithHeap(&buf, heap); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("storage: unknown field type %d", schema.Fields[i])
		}
	}
	if buf.Len() != schema.TypeSize() {
		return nil, fmt.Errorf("storage: built record is %d bytes, schema type size is %d", buf.Len(), schema.TypeSize())
	}
	return buf.Bytes(), nil
}

// Read decodes a fixed-width record. For each column, if bit i of
// columnMask is set the value is materialized (strings as Pointer-state
// descriptors resolved against heap); otherwise the column reads as
// Null without touching the heap. columnMask == 0 loads no user columns
// (used by index-only probes); schema.AllColumns() loads everything.
func Read(schema *Schema, record []byte, heap []byte, columnMask uint64) Tuple {
	values := make([]TypeData, len(schema.Fields))
	for i := range schema.Fields {
		off := schema.fieldOffset(i)
		if columnMask&(uint64(1)<<uint(i)) == 0 {
			values[i] = NullData
			continue
		}
		switch schema.Fields[i] {
		case TypeInt:
			v := binaryLE.Uint64(record[off : off+8])
			values[i] = IntData(v)
		case TypeString:
			desc, err := ReadStringDescriptor(bytes.NewReader(record[off : off+stringDescriptorSize]))
			if err != nil {
				panic(err)
			}
			desc.Resolve(heap)
			values[i] = StringData(desc.Bytes())
		}
	}
	return Tuple{Values: values}
}

// ReadPrimaryKey decodes only column 0, used by binary search so the
// rest of the record is never touched for a comparison.
func ReadPrimaryKey(schema *Schema, record []byte, heap []byte) TypeData {
	switch schema.Fields[0] {
	case TypeInt:
		return IntData(binaryLE.Uint64(record[0:8]))
	case TypeString:
		desc, err := ReadStringDescriptor(bytes.NewReader(record[0:stringDescriptorSize]))
		if err != nil {
			panic(err)
		}
		desc.Resolve(heap)
		return StringData(desc.Bytes())
	default:
		panic(fmt.Sprintf("storage: unknown primary key type %d", schema.Fields[0]))
	}
}
