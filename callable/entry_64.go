//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x || wasm

package callable

import (
	"unsafe"

	"github.com/dagss/sep/intern"
)

// Entry is one native callable: three machine words. The function word is
// the third word and always occupies 8 bytes.
type Entry struct {
	Signature *intern.String
	Flags     Flags
	_         uint32
	Fn        unsafe.Pointer
}
