package callable

import (
	"unsafe"

	"github.com/dagss/sep/typeslot"
)

// CapabilityID is the slot id under which a type advertises its callable
// cell. The payload is a pointer to the Cell.
var CapabilityID = typeslot.Allocated(typeslot.RegistrarCore, 0x0001, 1)

// Publish declares c on t. The cell becomes visible to consumers once t is
// ready.
func Publish(t *typeslot.Type, c *Cell) {
	t.DeclarePointer(CapabilityID, unsafe.Pointer(c))
}

// FromType returns the callable cell advertised by t. pos is the expected
// position of the capability, 0 when unknown.
func FromType(t typeslot.Host, pos int) (*Cell, bool) {
	e, ok := typeslot.Find(t, CapabilityID, pos)
	if !ok {
		return nil, false
	}
	return (*Cell)(e.Pointer()), true
}
