// Package reclaim defers the release of superseded tables until no reader
// can still be looking at them.
//
// Readers bracket every access to a published pointer with Enter and Exit.
// Writers swap the pointer, Retire the old value, and a later Collect
// releases it once a grace period has passed: every reader that was inside
// a guard when the grace period began has left.
//
// The grace period uses two phases. A reader registers in the phase of the
// current epoch; Synchronize advances the epoch twice and waits for the
// phase it just left to drain each time.
package reclaim

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dagss/sep/rendezvous"
	"github.com/tliron/commonlog"
)

// Key is the well-known rendezvous key of the shared domain.
const Key = "sep.reclaim/v1"

var log = commonlog.GetLogger("sep.reclaim")

// Reclaimable is a retired value. Reclaim is called exactly once, after a
// grace period.
type Reclaimable interface {
	Reclaim()
}

// ReclaimFunc adapts a function to Reclaimable.
type ReclaimFunc func()

// Reclaim implements Reclaimable.
func (f ReclaimFunc) Reclaim() { f() }

// Domain is one reclamation domain. Readers and writers of the same
// pointers must use the same domain.
type Domain struct {
	epoch   atomic.Uint64
	readers [2]atomic.Int64

	syncMu sync.Mutex // one grace period at a time

	mu      sync.Mutex
	retired []Reclaimable

	gracePeriods atomic.Uint64
	reclaimed    atomic.Uint64
}

// NewDomain creates an empty domain.
func NewDomain() *Domain {
	return &Domain{}
}

// Shared returns the process-wide domain, creating it on first use.
func Shared() *Domain {
	d, err := rendezvous.Resolve(rendezvous.Default(), Key, NewDomain)
	if err != nil {
		panic(err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Readers
// ---------------------------------------------------------------------------

// Guard marks a reader inside the domain.
type Guard struct {
	d     *Domain
	phase uint64
}

// Enter registers a reader. Pointers loaded after Enter stay valid until
// the matching Exit. Enter never blocks.
func (d *Domain) Enter() Guard {
	for {
		e := d.epoch.Load()
		d.readers[e&1].Add(1)
		if d.epoch.Load() == e {
			return Guard{d: d, phase: e & 1}
		}
		// The epoch moved between the load and the registration; the writer
		// may already have seen this phase as drained.
		d.readers[e&1].Add(-1)
	}
}

// Exit leaves the domain. Each Guard must be exited exactly once.
func (g Guard) Exit() {
	if n := g.d.readers[g.phase].Add(-1); n < 0 {
		panic("reclaim: guard exited twice")
	}
}

// Readers returns the number of readers currently inside the domain.
func (d *Domain) Readers() int64 {
	return d.readers[0].Load() + d.readers[1].Load()
}

// ---------------------------------------------------------------------------
// Writers
// ---------------------------------------------------------------------------

// Synchronize waits for a full grace period. It must not be called while
// holding a Guard of the same domain.
func (d *Domain) Synchronize() {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	for i := 0; i < 2; i++ {
		e := d.epoch.Add(1) - 1
		d.waitDrained(e & 1)
	}
	d.gracePeriods.Add(1)
}

func (d *Domain) waitDrained(phase uint64) {
	for spins := 0; d.readers[phase].Load() != 0; spins++ {
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// Retire queues obj for reclamation after a future grace period. The caller
// must already have unpublished obj so no new reader can reach it.
func (d *Domain) Retire(obj Reclaimable) {
	d.mu.Lock()
	d.retired = append(d.retired, obj)
	d.mu.Unlock()
}

// Collect runs one grace period and reclaims everything retired before it
// began. It returns the number of values reclaimed.
func (d *Domain) Collect() int {
	d.mu.Lock()
	batch := d.retired
	d.retired = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	d.Synchronize()
	for _, obj := range batch {
		obj.Reclaim()
	}
	d.reclaimed.Add(uint64(len(batch)))
	log.Debugf("reclaimed %d values", len(batch))
	return len(batch)
}

// Pending returns the number of retired values not yet reclaimed.
func (d *Domain) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.retired)
}

// GracePeriods returns the number of completed grace periods.
func (d *Domain) GracePeriods() uint64 {
	return d.gracePeriods.Load()
}

// Reclaimed returns the total number of reclaimed values.
func (d *Domain) Reclaimed() uint64 {
	return d.reclaimed.Load()
}
