// Package storage implements the persistent paged store: the page
// serializer, the typed page (sorted tuple array + heap), the typed
// table that routes tuples across pages, and the bounded page cache.
//
// EDUCATIONAL NOTES:
// ------------------
// Unlike a conventional fixed-size-page B-tree engine, this store keeps
// one flat, disjoint range of pages per logical table. There is no
// multi-level index over pages: a table's pages are found by table id
// in an in-memory map, and within a page, lookup is a binary search over
// a sorted, fixed-width tuple array. Splitting a page is the only
// balancing operation; there is no merge.
package storage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the column type of a schema field. Only two scalar kinds are
// supported; Null is a value state, not a declared column type.
type Type uint8

const (
	TypeInt Type = iota + 1
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// FixedWidth returns the number of bytes this type occupies inline in a
// tuple record: 8 for an Int, 18 for a String descriptor (see
// StringDescriptor).
func (t Type) FixedWidth() int {
	switch t {
	case TypeInt:
		return 8
	case TypeString:
		return stringDescriptorSize
	default:
		panic(fmt.Sprintf("storage: unknown type %d", t))
	}
}

// Kind tags a TypeData value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindString
)

// TypeData is the tagged union of runtime values: Int(u64), String(bytes)
// or Null. Comparisons across mismatched non-null kinds are a bug and
// panic rather than return an arbitrary ordering.
type TypeData struct {
	Kind Kind
	Int  uint64
	Str  []byte
}

// NullData is the Null value, less than every other TypeData.
var NullData = TypeData{Kind: KindNull}

func IntData(v uint64) TypeData { return TypeData{Kind: KindInt, Int: v} }

func StringData(v []byte) TypeData { return TypeData{Kind: KindString, Str: v} }

// MaxIntData is the internal "greater than anything" sentinel used for
// open-ended upper bounds. It is never a legal user-supplied primary key
// (see Schema.ValidatePrimaryKey).
var MaxIntData = IntData(^uint64(0))

// Compare returns -1, 0 or 1. Null sorts below everything else; same-kind
// non-null values compare by value; Int(max) sorts greatest among ints by
// construction. Comparing two non-null values of different kinds is a
// well-formedness violation and panics.
func (d TypeData) Compare(other TypeData) int {
	if d.Kind == KindNull && other.Kind == KindNull {
		return 0
	}
	if d.Kind == KindNull {
		return -1
	}
	if other.Kind == KindNull {
		return 1
	}
	if d.Kind != other.Kind {
		panic(fmt.Sprintf("storage: comparing mismatched kinds %d and %d", d.Kind, other.Kind))
	}
	switch d.Kind {
	case KindInt:
		switch {
		case d.Int < other.Int:
			return -1
		case d.Int > other.Int:
			return 1
		default:
			return 0
		}
	case KindString:
		switch {
		case string(d.Str) < string(other.Str):
			return -1
		case string(d.Str) > string(other.Str):
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("storage: unreachable kind %d", d.Kind))
	}
}

func (d TypeData) Equals(other TypeData) bool { return d.Compare(other) == 0 }

// String renders a value the way the SQL exec return format expects:
// ints decimal, strings quoted, and null rendered as the literal 0 --
// this is the open-question behavior preserved verbatim, see
// SPEC_FULL.md section 9.
func (d TypeData) String() string {
	switch d.Kind {
	case KindNull:
		return "0"
	case KindInt:
		return fmt.Sprintf("%d", d.Int)
	case KindString:
		return fmt.Sprintf("%q", string(d.Str))
	default:
		return "?"
	}
}

const typeDataCheckByte = 98 // "Range check: 98" in SPEC_FULL.md section 6

var binaryLE = binary.LittleEndian

func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU64(w io.Writer, v uint64) error { return binary.Write(w, binary.LittleEndian, v) }

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// encodeTypeData writes a tagged value: a one-byte kind followed by its
// payload (8 bytes for Int, a u32 length prefix plus bytes for String,
// nothing for Null).
func encodeTypeData(w io.Writer, v TypeData) error {
	if _, err := w.Write([]byte{byte(v.Kind)}); err != nil {
		return err
	}
	switch v.Kind {
	case KindInt:
		return writeU64(w, v.Int)
	case KindString:
		if err := writeU32(w, uint32(len(v.Str))); err != nil {
			return err
		}
		_, err := w.Write(v.Str)
		return err
	case KindNull:
		return nil
	default:
		return fmt.Errorf("storage: cannot encode kind %d", v.Kind)
	}
}

func decodeTypeData(r io.Reader) (TypeData, error) {
	var kindByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return TypeData{}, err
	}
	switch Kind(kindByte[0]) {
	case KindInt:
		v, err := readU64(r)
		if err != nil {
			return TypeData{}, err
		}
		return IntData(v), nil
	case KindString:
		n, err := readU32(r)
		if err != nil {
			return TypeData{}, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return TypeData{}, err
		}
		return StringData(buf), nil
	case KindNull:
		return NullData, nil
	default:
		return TypeData{}, fmt.Errorf("storage: unknown type tag %d", kindByte[0])
	}
}
