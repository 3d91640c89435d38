package typeslot

import (
	"fmt"
	"unsafe"
)

// Payload is the second word of an Entry: a raw pointer, a byte offset, or
// flag bits. Which one is part of the capability's definition.
type Payload uintptr

// Entry is one capability record. It is exactly two machine words on every
// platform so hosts can lay tables out without per-platform offsets.
type Entry struct {
	ID      ID
	Payload Payload
}

// PointerEntry builds an entry whose payload is p. Tables built through
// Type.DeclarePointer keep p reachable; callers using PointerEntry directly
// must keep the referent alive themselves.
func PointerEntry(id ID, p unsafe.Pointer) Entry {
	return Entry{ID: id, Payload: Payload(uintptr(p))}
}

// OffsetEntry builds an entry whose payload is a byte offset into instances.
func OffsetEntry(id ID, offset uintptr) Entry {
	return Entry{ID: id, Payload: Payload(offset)}
}

// FlagsEntry builds an entry whose payload is a set of flag bits.
func FlagsEntry(id ID, bits uintptr) Entry {
	return Entry{ID: id, Payload: Payload(bits)}
}

// Pointer returns the payload as a pointer. The referent is kept alive by
// the table the entry came from (see Type.DeclarePointer).
func (e Entry) Pointer() unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&e.Payload))
}

// Offset returns the payload as a byte offset.
func (e Entry) Offset() uintptr {
	return uintptr(e.Payload)
}

// Flags returns the payload as flag bits.
func (e Entry) Flags() uintptr {
	return uintptr(e.Payload)
}

// String implements the Stringer interface.
func (e Entry) String() string {
	return fmt.Sprintf("%v=%#x", e.ID, uintptr(e.Payload))
}
