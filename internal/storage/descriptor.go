package storage

import (
	"fmt"
	"io"
)

// stringDescriptorSize is the fixed on-page width of a String
// descriptor: check(u16) + heap_offset(u64) + length(u64).
const stringDescriptorSize = 18

// stringDescriptorCheck is the "String descriptor check" magic from
// SPEC_FULL.md section 6.
const stringDescriptorCheck uint16 = 0x72a0

// descState tracks where a StringDescriptor's bytes currently live.
type descState uint8

const (
	descUnresolved descState = iota // only a heap offset; not yet materialized
	descPointer                     // bytes borrowed from a pinned page's heap
	descOwned                       // bytes independently allocated
)

// StringDescriptor is the in-memory counterpart of the 18-byte on-page
// string reference. Its on-disk form is always Unresolved; Resolve and
// Own move it through Pointer and Owned respectively. A Pointer-state
// descriptor's bytes are only valid while the owning page is pinned --
// call Own to detach before the page can be evicted.
type StringDescriptor struct {
	state      descState
	heapOffset uint64
	length     uint64
	bytes      []byte
}

// UnresolvedDescriptor builds a descriptor that only knows its heap
// location; it must be Resolve'd against a heap before Bytes is valid.
func UnresolvedDescriptor(heapOffset, length uint64) StringDescriptor {
	return StringDescriptor{state: descUnresolved, heapOffset: heapOffset, length: length}
}

// OwnedDescriptor wraps already-independent bytes (e.g. a freshly
// constructed tuple not yet written to any heap).
func OwnedDescriptor(b []byte) StringDescriptor {
	return StringDescriptor{state: descOwned, bytes: b, length: uint64(len(b))}
}

// Resolve materializes an Unresolved descriptor into a Pointer into the
// supplied heap. It is a no-op once already Pointer or Owned.
func (d *StringDescriptor) Resolve(heap []byte) {
	if d.state != descUnresolved {
		return
	}
	end := d.heapOffset + d.length
	if end > uint64(len(heap)) {
		panic(fmt.Sprintf("storage: string descriptor out of heap bounds: offset=%d length=%d heap=%d",
			d.heapOffset, d.length, len(heap)))
	}
	d.bytes = heap[d.heapOffset:end]
	d.state = descPointer
}

// Own copies the descriptor's bytes into independently allocated memory
// so they remain valid after the owning page is unpinned or evicted.
func (d *StringDescriptor) Own() {
	if d.state == descOwned {
		return
	}
	if d.state == descUnresolved {
		panic("storage: Own called on an unresolved string descriptor")
	}
	cp := make([]byte, len(d.bytes))
	copy(cp, d.bytes)
	d.bytes = cp
	d.state = descOwned
}

// Bytes returns the descriptor's value. It panics if called while still
// Unresolved (Resolve must run first).
func (d StringDescriptor) Bytes() []byte {
	if d.state == descUnresolved {
		panic("storage: Bytes called on an unresolved string descriptor")
	}
	return d.bytes
}

func (d StringDescriptor) Length() uint64 { return d.length }

// SerializeWithHeap appends the descriptor's bytes to heap and writes the
// fixed 18-byte on-page form (always Unresolved) referencing the
// position it was appended at.
func (d StringDescriptor) SerializeWithHeap(data io.Writer, heap *growableHeap) error {
	offset := uint64(heap.Len())
	heap.Write(d.bytesForWrite())
	if err := writeU16(data, stringDescriptorCheck); err != nil {
		return err
	}
	if err := writeU64(data, offset); err != nil {
		return err
	}
	return writeU64(data, d.length)
}

func (d StringDescriptor) bytesForWrite() []byte {
	if d.state == descUnresolved {
		panic("storage: cannot serialize an unresolved string descriptor")
	}
	return d.bytes
}

// ReadStringDescriptor reads the fixed 18-byte on-page form (always
// Unresolved) from data.
func ReadStringDescriptor(data io.Reader) (StringDescriptor, error) {
	check, err := readU16(data)
	if err != nil {
		return StringDescriptor{}, err
	}
	if check != stringDescriptorCheck {
		return StringDescriptor{}, fmt.Errorf("storage: bad string descriptor check %#x, want %#x", check, stringDescriptorCheck)
	}
	offset, err := readU64(data)
	if err != nil {
		return StringDescriptor{}, err
	}
	length, err := readU64(data)
	if err != nil {
		return StringDescriptor{}, err
	}
	return UnresolvedDescriptor(offset, length), nil
}

// growableHeap is a minimal append-only byte buffer used while building
// a page's heap region during Insert/Split re-encoding.
type growableHeap struct {
	buf []byte
}

func (h *growableHeap) Write(p []byte) (int, error) {
	h.buf = append(h.buf, p...)
	return len(p), nil
}

func (h *growableHeap) Len() int { return len(h.buf) }

func (h *growableHeap) Bytes() []byte { return h.buf }
