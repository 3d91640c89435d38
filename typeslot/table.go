package typeslot

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrCapacityExceeded reports a merged table larger than the storage the
	// subclass reserved. Type creation must abort.
	ErrCapacityExceeded = errors.New("typeslot: capacity exceeded")

	// ErrDuplicateID reports the same id declared twice by one type.
	ErrDuplicateID = errors.New("typeslot: duplicate capability id")
)

// ---------------------------------------------------------------------------
// Table: immutable capability list
// ---------------------------------------------------------------------------

// Table is the ordered capability list of one type. It is never modified
// after it has been built; readers need no locks.
//
// Order carries no meaning beyond scan order. Providers put the capability
// queried most often first.
type Table struct {
	entries []Entry
	retain  []unsafe.Pointer // referents of pointer payloads
}

// NewTable builds a table from entries. Padding entries are dropped and
// duplicate ids are rejected.
func NewTable(entries ...Entry) (*Table, error) {
	return Merge(nil, entries, len(entries))
}

// Len returns the number of entries, skip markers included.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// At returns the entry at index i.
func (t *Table) At(i int) Entry {
	return t.entries[i]
}

// Entries returns a copy of the entries.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Find returns the entry for id.
//
// When expectedPos is non-zero and the entry there carries id, it is
// returned without scanning. Otherwise every entry is compared in order.
// The hint only changes how fast the answer comes, never the answer.
func (t *Table) Find(id ID, expectedPos int) (Entry, bool) {
	if i := t.Index(id, expectedPos); i >= 0 {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Index is Find returning the position, or -1.
func (t *Table) Index(id ID, expectedPos int) int {
	if t == nil || id.IsReserved() {
		return -1
	}
	es := t.entries
	if expectedPos > 0 && expectedPos < len(es) && es[expectedPos].ID == id {
		return expectedPos
	}
	// Padding and skip entries cannot equal id here, so a plain compare
	// skips them.
	for i := range es {
		if es[i].ID == id {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries id.
func (t *Table) Has(id ID) bool {
	return t.Index(id, 0) >= 0
}

// Retains reports whether e's payload is a pointer the table keeps alive,
// that is, whether it was declared through Type.DeclarePointer.
func (t *Table) Retains(e Entry) bool {
	if t == nil || e.Payload == 0 {
		return false
	}
	for _, p := range t.retain {
		if Payload(uintptr(p)) == e.Payload {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Merge: subclass build rule
// ---------------------------------------------------------------------------

// Merge builds a subclass table from the parent's table and the entries the
// subclass declares itself. A declared entry replaces the parent entry with
// the same id. The result is laid out as
//
//	overriding own entries, in declaration order
//	parent entries that were not overridden, in parent order
//	new own entries, in declaration order
//
// so an override keeps the front of the table hot. Padding is dropped; skip
// markers are kept and count toward capacity.
func Merge(parent *Table, own []Entry, capacity int) (*Table, error) {
	return merge(parent, Declaration{Entries: own}, capacity)
}

func merge(parent *Table, own Declaration, capacity int) (*Table, error) {
	declared := make(map[ID]struct{}, len(own.Entries))
	for _, e := range own.Entries {
		if e.ID.IsReserved() {
			continue
		}
		if _, dup := declared[e.ID]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, e.ID)
		}
		declared[e.ID] = struct{}{}
	}

	var inherited map[ID]struct{}
	if parent != nil {
		inherited = make(map[ID]struct{}, len(parent.entries))
		for _, e := range parent.entries {
			if !e.ID.IsReserved() {
				inherited[e.ID] = struct{}{}
			}
		}
	}

	result := make([]Entry, 0, parent.Len()+len(own.Entries))
	for _, e := range own.Entries {
		if _, ok := inherited[e.ID]; ok {
			result = append(result, e)
		}
	}
	if parent != nil {
		for _, e := range parent.entries {
			if _, overridden := declared[e.ID]; overridden {
				continue
			}
			result = append(result, e)
		}
	}
	for _, e := range own.Entries {
		if e.ID == Padding {
			continue
		}
		if _, ok := inherited[e.ID]; !ok {
			result = append(result, e)
		}
	}

	if len(result) > capacity {
		return nil, fmt.Errorf("%w: %d entries, %d reserved", ErrCapacityExceeded, len(result), capacity)
	}

	t := &Table{entries: result}
	if parent != nil && len(parent.retain) > 0 {
		t.retain = append(t.retain, parent.retain...)
	}
	t.retain = append(t.retain, own.Retain...)
	return t, nil
}
