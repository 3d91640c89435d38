//go:build 386 || arm || mips || mipsle

package callable

import (
	"unsafe"

	"github.com/dagss/sep/intern"
)

// Entry is one native callable. Fn starts at the third word and is padded
// to 8 bytes so the entry has the same shape as on 64-bit platforms.
type Entry struct {
	Signature *intern.String
	Flags     Flags
	Fn        unsafe.Pointer
	_         uint32
}
