package callable

import (
	"fmt"
	"unsafe"

	"github.com/dagss/sep/signature"
)

// ---------------------------------------------------------------------------
// StaticTable: registry-free tables keyed by signature hash
// ---------------------------------------------------------------------------

// StaticEntry is an entry of a StaticTable. Key is signature.Key of the
// canonical text.
type StaticEntry struct {
	Key       uint64
	Signature string
	Flags     Flags
	Fn        unsafe.Pointer
}

// StaticTable serves deployments that bake tables at build time and share
// no interning registry. Lookups hash the text and confirm by comparing
// bytes; they never allocate. Static tables and interned tables are
// separate lookup paths and are not mixed.
type StaticTable struct {
	entries []StaticEntry
}

// NewStaticTable builds a static table from canonical specs.
func NewStaticTable(specs ...Spec) (*StaticTable, error) {
	t := &StaticTable{entries: make([]StaticEntry, len(specs))}
	for i, s := range specs {
		if err := signature.Validate(s.Signature); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSignature, err)
		}
		t.entries[i] = StaticEntry{
			Key:       signature.Key(s.Signature),
			Signature: s.Signature,
			Flags:     s.Flags,
			Fn:        s.Fn,
		}
	}
	return t, nil
}

// Len returns the number of entries.
func (t *StaticTable) Len() int {
	return len(t.entries)
}

// Lookup returns the first compatible entry for canonical text.
func (t *StaticTable) Lookup(text string) (*StaticEntry, bool) {
	return t.LookupKey(signature.Key(text), text)
}

// LookupKey is Lookup with a key the caller computed once.
func (t *StaticTable) LookupKey(key uint64, text string) (*StaticEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key == key && e.Signature == text && e.Flags.Version() == ABIVersion {
			return e, true
		}
	}
	return nil, false
}

// StaticAs returns the function of a static entry as F without any check.
func StaticAs[F any](e *StaticEntry) F {
	return *(*F)(unsafe.Pointer(&e.Fn))
}
