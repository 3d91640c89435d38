// Package callable implements native callable dispatch tables: per-object
// lists of raw functions keyed by interned call signatures.
//
// A consumer interns the signature it wants to call with once, then scans
// the published table comparing handles by pointer. Tables are immutable;
// the owning provider swaps in a new table through a Cell and the old one is
// reclaimed after a grace period of the cell's reclamation domain.
package callable

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/dagss/sep/signature"
)

var (
	// ErrSignature reports a signature that is not canonical.
	ErrSignature = errors.New("callable: bad signature")

	// ErrFuncType reports a Go function whose type does not implement the
	// entry's signature.
	ErrFuncType = errors.New("callable: function type mismatch")
)

// String implements the Stringer interface.
func (e *Entry) String() string {
	return fmt.Sprintf("%s [%v] %p", e.Signature, e.Flags, e.Fn)
}

// Spec describes an entry before its signature is interned.
type Spec struct {
	Signature string
	Flags     Flags
	Fn        unsafe.Pointer
}

type eface struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

// GoFunc builds a Spec for a Go function. sig may be written in any form
// the signature front-end accepts; it is stored canonically. The function's
// type must implement sig.
func GoFunc(sig string, flags Flags, fn any) (Spec, error) {
	canon, err := signature.Canonicalize(sig)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %w", ErrSignature, err)
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Spec{}, fmt.Errorf("%w: %T is not a function", ErrFuncType, fn)
	}
	if err := signature.CheckType(canon, v.Type()); err != nil {
		return Spec{}, fmt.Errorf("%w: %w", ErrFuncType, err)
	}
	// A func value is one pointer; an interface holding it stores that
	// pointer directly in its data word.
	return Spec{
		Signature: canon,
		Flags:     flags,
		Fn:        (*eface)(unsafe.Pointer(&fn)).data,
	}, nil
}

// MustGoFunc is GoFunc for static tables known to be correct.
func MustGoFunc(sig string, flags Flags, fn any) Spec {
	s, err := GoFunc(sig, flags, fn)
	if err != nil {
		panic(err)
	}
	return s
}

// As returns the entry's function as F without any check. F must be the Go
// type the entry was built from, or a type with identical layout.
func As[F any](e *Entry) F {
	return *(*F)(unsafe.Pointer(&e.Fn))
}

// Bind is As with a check that F implements the entry's signature.
func Bind[F any](e *Entry) (F, error) {
	var zero F
	ft := reflect.TypeOf((*F)(nil)).Elem()
	if err := signature.CheckType(e.Signature.String(), ft); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrFuncType, err)
	}
	return As[F](e), nil
}
