package callable

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dagss/sep/reclaim"
)

// ErrPublished reports an attempt to publish a table that is not fresh.
var ErrPublished = errors.New("callable: table already published")

// Cell holds the current table of one native callable. Readers take a
// Snapshot; the owning provider calls Replace.
type Cell struct {
	current atomic.Pointer[Table]
	mu      sync.Mutex // serializes writers
	domain  *reclaim.Domain
}

// NewCell creates an empty cell whose superseded tables are retired into d.
func NewCell(d *reclaim.Domain) *Cell {
	return &Cell{domain: d}
}

// Domain returns the reclamation domain of the cell.
func (c *Cell) Domain() *reclaim.Domain {
	return c.domain
}

// Replace publishes t. The previous table, if any, becomes
// SupersededPending and is retired; it is reclaimed by a later collection
// of the cell's domain, after every reader that could see it has left.
func (c *Cell) Replace(t *Table) error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrPublished)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !t.state.CompareAndSwap(uint32(Uninitialized), uint32(Published)) {
		return fmt.Errorf("%w: table is %v", ErrPublished, t.State())
	}
	old := c.current.Swap(t)
	if old == nil {
		log.Infof("published table of %d entries", len(t.entries))
		return nil
	}
	old.advance(Published, SupersededPending)
	c.domain.Retire(old)
	log.Debugf("replaced table of %d entries with %d entries", len(old.entries), len(t.entries))
	return nil
}

// ReplaceSync is Replace followed by a collection of the domain, so the
// previous table is reclaimed before it returns. It must not be called while
// holding a snapshot from the same domain.
func (c *Cell) ReplaceSync(t *Table) error {
	if err := c.Replace(t); err != nil {
		return err
	}
	c.domain.Collect()
	return nil
}

// Load returns the current table without entering the domain. The result is
// only safe to read inside a guard the caller already holds.
func (c *Cell) Load() *Table {
	return c.current.Load()
}

// Snapshot enters the domain and loads the current table once. The table
// stays readable until Release, even if it is replaced meanwhile.
func (c *Cell) Snapshot() Snapshot {
	g := c.domain.Enter()
	return Snapshot{Table: c.current.Load(), guard: g}
}

// Lookup resolves text against the current table and returns a copy of the
// entry. Fn and Flags stay valid after the table is replaced. Signature is
// nil in the copy: the handle belongs to the table and is released when the
// table is reclaimed.
func (c *Cell) Lookup(text string) (Entry, bool) {
	s := c.Snapshot()
	defer s.Release()
	e, ok := s.Table.Lookup(text)
	if !ok {
		return Entry{}, false
	}
	result := *e
	result.Signature = nil
	return result, true
}

// Snapshot is one reader's view of a cell.
type Snapshot struct {
	Table *Table
	guard reclaim.Guard
}

// Release ends the snapshot. Entries obtained from it must not be used
// afterwards.
func (s Snapshot) Release() {
	s.guard.Exit()
}
