package callable

import (
	"fmt"
	"sync/atomic"

	"github.com/dagss/sep/intern"
	"github.com/dagss/sep/signature"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sep.callable")

// ---------------------------------------------------------------------------
// Table state
// ---------------------------------------------------------------------------

// State is the lifecycle state of a Table. It only moves forward, one step
// at a time.
type State uint32

const (
	Uninitialized State = iota
	Published
	SupersededPending
	Reclaimed
)

var stateNames = [...]string{"uninitialized", "published", "superseded-pending", "reclaimed"}

// String implements the Stringer interface.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is an immutable list of entries. Its entries are never modified
// once it is built; a changed table is a new table.
type Table struct {
	entries []Entry
	reg     *intern.Registry
	state   atomic.Uint32
	hooks   []func()
}

// NewTable builds a table. Every signature must be canonical and is
// interned in reg; the table holds one reference per entry until it is
// reclaimed.
func NewTable(reg *intern.Registry, specs ...Spec) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(specs)),
		reg:     reg,
	}
	for _, s := range specs {
		if err := signature.Validate(s.Signature); err != nil {
			t.releaseHandles()
			return nil, fmt.Errorf("%w: %w", ErrSignature, err)
		}
		h, err := reg.Acquire(s.Signature)
		if err != nil {
			t.releaseHandles()
			return nil, fmt.Errorf("callable: intern %q: %w", s.Signature, err)
		}
		t.entries = append(t.entries, Entry{Signature: h, Flags: s.Flags, Fn: s.Fn})
	}
	return t, nil
}

// MustTable is NewTable that panics on error.
func MustTable(reg *intern.Registry, specs ...Spec) *Table {
	t, err := NewTable(reg, specs...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) releaseHandles() {
	for _, e := range t.entries {
		t.reg.Release(e.Signature)
	}
}

// State returns the lifecycle state.
func (t *Table) State() State {
	return State(t.state.Load())
}

// OnReclaim registers fn to run when the table is reclaimed. Providers use
// it to release resources the functions depend on. Hooks can only be added
// before the table is published.
func (t *Table) OnReclaim(fn func()) {
	if t.State() != Uninitialized {
		panic("callable: OnReclaim on published table")
	}
	t.hooks = append(t.hooks, fn)
}

func (t *Table) advance(from, to State) {
	if !t.state.CompareAndSwap(uint32(from), uint32(to)) {
		panic(fmt.Sprintf("callable: table is %v, cannot move from %v to %v", t.State(), from, to))
	}
}

// live returns the entries, panicking on a reclaimed table.
func (t *Table) live() []Entry {
	if State(t.state.Load()) == Reclaimed {
		panic("callable: read of reclaimed table")
	}
	return t.entries
}

// Reclaim implements reclaim.Reclaimable. It must only be called after a
// grace period that began once the table was superseded.
func (t *Table) Reclaim() {
	t.advance(SupersededPending, Reclaimed)
	t.releaseHandles()
	for _, fn := range t.hooks {
		fn()
	}
	log.Debugf("reclaimed table of %d entries", len(t.entries))
}

// Discard releases a table that was never published.
func (t *Table) Discard() {
	t.advance(Uninitialized, Reclaimed)
	t.releaseHandles()
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.live())
}

// At returns entry i.
func (t *Table) At(i int) *Entry {
	return &t.live()[i]
}

// Entries returns a copy of the entries.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	entries := t.live()
	result := make([]Entry, len(entries))
	copy(result, entries)
	return result
}

// Signatures returns the signature text of every entry in table order.
func (t *Table) Signatures() []string {
	if t == nil {
		return nil
	}
	entries := t.live()
	result := make([]string, len(entries))
	for i := range entries {
		result[i] = entries[i].Signature.String()
	}
	return result
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Lookup returns the first entry whose signature is text. Text that was
// never interned cannot be in any table, so Lookup never creates handles.
// Entries with an unsupported ABI version are skipped.
func (t *Table) Lookup(text string) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	entries := t.live()
	h := t.reg.Lookup(text)
	if h == nil {
		return nil, false
	}
	return lookup(entries, h, func(f Flags) bool { return f.Version() == ABIVersion })
}

// LookupIn is Lookup that also skips entries a caller in ctx may not call.
func (t *Table) LookupIn(ctx ExecContext, text string) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	entries := t.live()
	h := t.reg.Lookup(text)
	if h == nil {
		return nil, false
	}
	return lookup(entries, h, ctx.Compatible)
}

// LookupHandle looks up a handle the caller interned in the table's
// registry beforehand.
func (t *Table) LookupHandle(h *intern.String) (*Entry, bool) {
	if t == nil || h == nil {
		return nil, false
	}
	return lookup(t.live(), h, func(f Flags) bool { return f.Version() == ABIVersion })
}

func lookup(entries []Entry, h *intern.String, ok func(Flags) bool) (*Entry, bool) {
	for i := range entries {
		e := &entries[i]
		if e.Signature == h && ok(e.Flags) {
			return e, true
		}
	}
	return nil, false
}
