package typeslot

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/tliron/commonlog"
)

var (
	// ErrAlreadyReady reports a second ReadyType on the same type.
	ErrAlreadyReady = errors.New("typeslot: type already ready")

	// ErrBaseNotReady reports a base type that declares capabilities but has
	// not been readied yet.
	ErrBaseNotReady = errors.New("typeslot: base type not ready")
)

var log = commonlog.GetLogger("sep.typeslot")

// Declaration is what a type contributes on its own before it is readied.
type Declaration struct {
	Entries []Entry
	Retain  []unsafe.Pointer // referents of pointer payloads
}

func (d Declaration) empty() bool {
	for _, e := range d.Entries {
		if e.ID != Padding {
			return false
		}
	}
	return true
}

// Host is what the engine needs from a host object model: the subclassing
// relation, the entries a type declares, and the per-type metadata pointer.
//
// The host keeps a type alive while it is being queried.
type Host interface {
	// Base returns the parent type, or nil at the root.
	Base() Host
	// Declared returns the type's own capability entries.
	Declared() Declaration
	// SlotCell returns the metadata pointer. A nil table means the type is
	// not extensible (or not ready).
	SlotCell() *atomic.Pointer[Table]
}

// ---------------------------------------------------------------------------
// Provider lifecycle
// ---------------------------------------------------------------------------

// ReadyType finalizes t as an extensible type. It merges the base type's
// table with t's declared entries, checks the result against capacity and
// publishes it with a single atomic store. It must be called exactly once,
// after the base type is ready and before any consumer queries t.
//
// A base chain in which no type is extensible contributes nothing. A base
// that is not ready while it, or any type above it, declares entries or is
// ready is ErrBaseNotReady. A type that declares nothing shares its base's
// table.
//
// On error nothing is published.
func ReadyType(t Host, capacity int) error {
	cell := t.SlotCell()
	if cell.Load() != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyReady, t)
	}

	var parent *Table
	if base := t.Base(); base != nil {
		parent = base.SlotCell().Load()
		if parent == nil {
			if pending := unreadyAncestor(base); pending != nil {
				return fmt.Errorf("%w: %v", ErrBaseNotReady, pending)
			}
		}
	}

	own := t.Declared()
	var table *Table
	switch {
	case parent != nil && own.empty():
		table = parent
	default:
		var err error
		table, err = merge(parent, own, capacity)
		if err != nil {
			log.Warningf("cannot ready %v: %s", t, err)
			return fmt.Errorf("ready %v: %w", t, err)
		}
	}

	if !cell.CompareAndSwap(nil, table) {
		return fmt.Errorf("%w: %v", ErrAlreadyReady, t)
	}
	log.Debugf("ready %v: %d slots (shared=%t)", t, table.Len(), table == parent)
	return nil
}

// unreadyAncestor walks up from an unready base and returns the first type
// that makes the chain extensible: one that declares entries, or the base
// itself when some ancestor is already ready. It returns nil when no type in
// the chain is extensible.
func unreadyAncestor(base Host) Host {
	for h := base; h != nil; h = h.Base() {
		if h.SlotCell().Load() != nil {
			return base
		}
		if !h.Declared().empty() {
			return h
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Consumer queries
// ---------------------------------------------------------------------------

// SupportsCapabilities reports whether t carries a capability table.
func SupportsCapabilities(t Host) bool {
	return t.SlotCell().Load() != nil
}

// SlotCount returns the number of entries in t's table.
func SlotCount(t Host) int {
	return t.SlotCell().Load().Len()
}

// TableOf returns t's table, or nil if t is not extensible.
func TableOf(t Host) *Table {
	return t.SlotCell().Load()
}

// Find looks id up on t. See Table.Find for the meaning of expectedPos.
func Find(t Host, id ID, expectedPos int) (Entry, bool) {
	return t.SlotCell().Load().Find(id, expectedPos)
}
