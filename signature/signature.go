// Package signature defines the canonical text form of native call
// signatures and a lenient front-end that produces it.
//
// Canonical form:
//
//	sig    := args ':' rets ['!']
//	type   := code | '{' type+ '}' | '*' type
//	code   := ? b B h H i I q Q n N f d g O p
//
// "dd:d" takes two doubles and returns one. A trailing '!' marks the
// error out-argument. Canonical text is ASCII with no whitespace, field
// names or alignment annotations, so two equal signatures are equal bytes
// and intern to the same handle.
package signature

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every parse and validation error.
var ErrInvalid = errors.New("signature: invalid")

// Error describes a problem at a byte offset of the input.
type Error struct {
	Text string
	Pos  int
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("signature: %s at offset %d in %q", e.Msg, e.Pos, e.Text)
}

// Unwrap returns ErrInvalid.
func (e *Error) Unwrap() error {
	return ErrInvalid
}

// Codes lists the scalar type codes in canonical form.
const Codes = "?bBhHiIqQnNfdgOp"

func isCode(ch byte) bool {
	return ch != 0 && strings.IndexByte(Codes, ch) >= 0
}

// aliases maps long type names accepted by the front-end to codes.
var aliases = map[string]byte{
	"bool":       '?',
	"int8":       'b',
	"schar":      'b',
	"uint8":      'B',
	"byte":       'B',
	"uchar":      'B',
	"int16":      'h',
	"short":      'h',
	"uint16":     'H',
	"ushort":     'H',
	"int32":      'i',
	"int":        'i',
	"uint32":     'I',
	"uint":       'I',
	"int64":      'q',
	"uint64":     'Q',
	"ssize_t":    'n',
	"isize":      'n',
	"size_t":     'N',
	"usize":      'N',
	"float":      'f',
	"float32":    'f',
	"double":     'd',
	"float64":    'd',
	"longdouble": 'g',
	"object":     'O',
	"pointer":    'p',
	"ptr":        'p',
	"voidptr":    'p',
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Kind classifies a Type.
type Kind uint8

const (
	KindScalar Kind = iota
	KindPointer
	KindAggregate
)

// Type is one argument or result type.
type Type struct {
	Kind    Kind
	Code    byte   // KindScalar
	Elem    *Type  // KindPointer
	Members []Type // KindAggregate
}

func (t Type) write(sb *strings.Builder) {
	switch t.Kind {
	case KindScalar:
		sb.WriteByte(t.Code)
	case KindPointer:
		sb.WriteByte('*')
		t.Elem.write(sb)
	case KindAggregate:
		sb.WriteByte('{')
		for _, m := range t.Members {
			m.write(sb)
		}
		sb.WriteByte('}')
	}
}

// String returns the canonical text of t.
func (t Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

// Signature is a parsed signature.
type Signature struct {
	Args    []Type
	Results []Type
	Raises  bool // error out-argument
}

// String returns the canonical text.
func (s *Signature) String() string {
	var sb strings.Builder
	for _, a := range s.Args {
		a.write(&sb)
	}
	sb.WriteByte(':')
	for _, r := range s.Results {
		r.write(&sb)
	}
	if s.Raises {
		sb.WriteByte('!')
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Parse parses text in the lenient front-end syntax. Canonical text is a
// subset of it.
func Parse(text string) (*Signature, error) {
	return newParser(text).parse()
}

// Canonicalize returns the canonical form of text.
func Canonicalize(text string) (string, error) {
	sig, err := Parse(text)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// MustCanonicalize is like Canonicalize but panics on error.
// Useful for static tables.
func MustCanonicalize(text string) string {
	canon, err := Canonicalize(text)
	if err != nil {
		panic(err)
	}
	return canon
}

// Validate reports whether text is already in canonical form.
func Validate(text string) error {
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch >= 0x80:
			return &Error{Text: text, Pos: i, Msg: "non-ASCII byte"}
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			return &Error{Text: text, Pos: i, Msg: "whitespace"}
		case ch == '=':
			return &Error{Text: text, Pos: i, Msg: "field name"}
		case ch == '@':
			return &Error{Text: text, Pos: i, Msg: "alignment annotation"}
		}
	}

	canon, err := Canonicalize(text)
	if err != nil {
		return err
	}
	if canon != text {
		return &Error{Text: text, Pos: firstDiff(canon, text), Msg: fmt.Sprintf("not canonical (want %q)", canon)}
	}
	return nil
}

func firstDiff(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
