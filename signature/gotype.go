package signature

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"
)

// ErrMismatch reports a Go function whose type does not implement a
// signature.
var ErrMismatch = errors.New("signature: Go type mismatch")

var (
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
	unsafePointerType = reflect.TypeOf((*unsafe.Pointer)(nil)).Elem()
)

var scalarKinds = map[byte]reflect.Kind{
	'?': reflect.Bool,
	'b': reflect.Int8,
	'B': reflect.Uint8,
	'h': reflect.Int16,
	'H': reflect.Uint16,
	'i': reflect.Int32,
	'I': reflect.Uint32,
	'q': reflect.Int64,
	'Q': reflect.Uint64,
	'n': reflect.Int,
	'N': reflect.Uint,
	'f': reflect.Float32,
	'd': reflect.Float64,
	'O': reflect.UnsafePointer,
	'p': reflect.UnsafePointer,
}

// GoType returns the Go func type that implements canon: arguments in
// order, results in order, and a trailing error result when the signature
// raises. Aggregates become unnamed structs with fields F0, F1, ...
func GoType(canon string) (reflect.Type, error) {
	sig, err := Parse(canon)
	if err != nil {
		return nil, err
	}

	in := make([]reflect.Type, 0, len(sig.Args))
	for _, a := range sig.Args {
		rt, err := goType(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, canon)
		}
		in = append(in, rt)
	}
	out := make([]reflect.Type, 0, len(sig.Results)+1)
	for _, r := range sig.Results {
		rt, err := goType(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, canon)
		}
		out = append(out, rt)
	}
	if sig.Raises {
		out = append(out, errorType)
	}
	return reflect.FuncOf(in, out, false), nil
}

func goType(t Type) (reflect.Type, error) {
	switch t.Kind {
	case KindPointer:
		elem, err := goType(*t.Elem)
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil

	case KindAggregate:
		fields := make([]reflect.StructField, len(t.Members))
		for i, m := range t.Members {
			rt, err := goType(m)
			if err != nil {
				return nil, err
			}
			fields[i] = reflect.StructField{Name: fmt.Sprintf("F%d", i), Type: rt}
		}
		return reflect.StructOf(fields), nil
	}

	kind, ok := scalarKinds[t.Code]
	if !ok {
		return nil, fmt.Errorf("%w: no Go type for %q", ErrMismatch, t.Code)
	}
	if kind == reflect.UnsafePointer {
		return unsafePointerType, nil
	}
	return scalarType(kind), nil
}

func scalarType(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Bool:
		return reflect.TypeOf((*bool)(nil)).Elem()
	case reflect.Int8:
		return reflect.TypeOf((*int8)(nil)).Elem()
	case reflect.Uint8:
		return reflect.TypeOf((*uint8)(nil)).Elem()
	case reflect.Int16:
		return reflect.TypeOf((*int16)(nil)).Elem()
	case reflect.Uint16:
		return reflect.TypeOf((*uint16)(nil)).Elem()
	case reflect.Int32:
		return reflect.TypeOf((*int32)(nil)).Elem()
	case reflect.Uint32:
		return reflect.TypeOf((*uint32)(nil)).Elem()
	case reflect.Int64:
		return reflect.TypeOf((*int64)(nil)).Elem()
	case reflect.Uint64:
		return reflect.TypeOf((*uint64)(nil)).Elem()
	case reflect.Int:
		return reflect.TypeOf((*int)(nil)).Elem()
	case reflect.Uint:
		return reflect.TypeOf((*uint)(nil)).Elem()
	case reflect.Float32:
		return reflect.TypeOf((*float32)(nil)).Elem()
	default:
		return reflect.TypeOf((*float64)(nil)).Elem()
	}
}

// CheckType reports whether ft, a func type, implements canon. Matching is
// structural: named types with the right underlying kind are accepted and
// struct field names are ignored.
func CheckType(canon string, ft reflect.Type) error {
	sig, err := Parse(canon)
	if err != nil {
		return err
	}
	if ft == nil || ft.Kind() != reflect.Func || ft.IsVariadic() {
		return fmt.Errorf("%w: %v is not a plain func", ErrMismatch, ft)
	}

	nout := len(sig.Results)
	if sig.Raises {
		nout++
	}
	if ft.NumIn() != len(sig.Args) || ft.NumOut() != nout {
		return fmt.Errorf("%w: %v has %d in/%d out, %s wants %d/%d",
			ErrMismatch, ft, ft.NumIn(), ft.NumOut(), canon, len(sig.Args), nout)
	}
	for i, a := range sig.Args {
		if !matches(a, ft.In(i)) {
			return fmt.Errorf("%w: argument %d of %v is not %v", ErrMismatch, i, ft, a)
		}
	}
	for i, r := range sig.Results {
		if !matches(r, ft.Out(i)) {
			return fmt.Errorf("%w: result %d of %v is not %v", ErrMismatch, i, ft, r)
		}
	}
	if sig.Raises && ft.Out(nout-1) != errorType {
		return fmt.Errorf("%w: last result of %v must be error", ErrMismatch, ft)
	}
	return nil
}

// Check is CheckType for a func value.
func Check(canon string, fn any) error {
	return CheckType(canon, reflect.TypeOf(fn))
}

func matches(t Type, rt reflect.Type) bool {
	switch t.Kind {
	case KindPointer:
		return rt.Kind() == reflect.Pointer && matches(*t.Elem, rt.Elem())
	case KindAggregate:
		if rt.Kind() != reflect.Struct || rt.NumField() != len(t.Members) {
			return false
		}
		for i, m := range t.Members {
			if !matches(m, rt.Field(i).Type) {
				return false
			}
		}
		return true
	}
	kind, ok := scalarKinds[t.Code]
	return ok && rt.Kind() == kind
}
