package typeslot

import (
	"fmt"
	"unsafe"
)

// ID identifies one capability. The low bit splits the space in two:
//
//	1: allocated id   registrar[31:24] concept[23:8] version[7:1] 1
//	0: pointer id     address of a Key owned by whoever defined the capability
//
// 0 is padding and 1 is the skip marker; neither ever matches a lookup.
type ID uintptr

const (
	Padding ID = 0
	Skip    ID = 1
)

// Registrar is the administratively assigned owner of an allocated id range.
type Registrar uint8

const (
	RegistrarReserved Registrar = 0x00
	RegistrarPrivate  Registrar = 0x01 // internal use, never published
	RegistrarCore     Registrar = 0x02 // capabilities defined by this module
	RegistrarSciPy    Registrar = 0x03
	RegistrarNumba    Registrar = 0x04
	RegistrarCython   Registrar = 0x05
)

// MaxVersion is the largest version an allocated id can carry.
const MaxVersion = 0x7f

// Allocated builds an allocated id. It panics if version does not fit in
// seven bits.
func Allocated(r Registrar, concept uint16, version uint8) ID {
	if version > MaxVersion {
		panic(fmt.Sprintf("typeslot: version %d out of range", version))
	}
	return ID(uint32(r)<<24 | uint32(concept)<<8 | uint32(version)<<1 | 1)
}

// IsReserved reports whether id is padding or the skip marker.
func (id ID) IsReserved() bool {
	return id <= Skip
}

// IsAllocated reports whether id is a statically partitioned id.
func (id ID) IsAllocated() bool {
	return id&1 == 1 && id != Skip
}

// IsPointer reports whether id is the address of a Key.
func (id ID) IsPointer() bool {
	return id&1 == 0 && id != Padding
}

// Registrar returns bits 31..24. Only meaningful for allocated ids.
func (id ID) Registrar() Registrar {
	return Registrar(uint32(id) >> 24)
}

// Concept returns bits 23..8. Only meaningful for allocated ids.
func (id ID) Concept() uint16 {
	return uint16(uint32(id) >> 8)
}

// Version returns bits 7..1. Only meaningful for allocated ids.
func (id ID) Version() uint8 {
	return uint8(uint32(id)>>1) & MaxVersion
}

// String implements the Stringer interface.
func (id ID) String() string {
	switch {
	case id == Padding:
		return "padding"
	case id == Skip:
		return "skip"
	case id.IsAllocated():
		return fmt.Sprintf("%02x:%04x:v%d", uint8(id.Registrar()), id.Concept(), id.Version())
	default:
		return fmt.Sprintf("ptr:%#x", uintptr(id))
	}
}

// Key is a private rendezvous point. Its address is the pointer id, so a
// Key must live as long as any table that mentions it; package-level
// variables are the usual home.
//
//	var myCapability typeslot.Key
//	...
//	t.Declare(typeslot.FlagsEntry(myCapability.ID(), 1))
type Key struct {
	_ uint64 // non-zero size, 8-byte aligned
}

// ID returns the pointer id of k.
func (k *Key) ID() ID {
	return ID(uintptr(unsafe.Pointer(k)))
}
