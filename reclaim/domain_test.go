package reclaim

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type counted struct {
	n *atomic.Int32
}

func (c counted) Reclaim() { c.n.Add(1) }

func TestDomainCollectReclaimsRetired(t *testing.T) {
	d := NewDomain()
	var n atomic.Int32
	for i := 0; i < 3; i++ {
		d.Retire(counted{&n})
	}
	if d.Pending() != 3 {
		t.Fatalf("Pending: got %d, want 3", d.Pending())
	}
	if got := d.Collect(); got != 3 {
		t.Errorf("Collect: got %d, want 3", got)
	}
	if n.Load() != 3 {
		t.Errorf("reclaim calls: got %d, want 3", n.Load())
	}
	if d.Pending() != 0 || d.Reclaimed() != 3 || d.GracePeriods() != 1 {
		t.Errorf("after collect: pending=%d reclaimed=%d grace=%d", d.Pending(), d.Reclaimed(), d.GracePeriods())
	}
}

func TestDomainCollectEmptySkipsGracePeriod(t *testing.T) {
	d := NewDomain()
	if got := d.Collect(); got != 0 {
		t.Errorf("Collect: got %d", got)
	}
	if d.GracePeriods() != 0 {
		t.Errorf("empty collect ran a grace period")
	}
}

func TestDomainSynchronizeWaitsForReader(t *testing.T) {
	d := NewDomain()
	g := d.Enter()

	var reclaimed atomic.Bool
	d.Retire(ReclaimFunc(func() { reclaimed.Store(true) }))

	done := make(chan struct{})
	go func() {
		d.Collect()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Collect returned while a reader was inside the domain")
	case <-time.After(50 * time.Millisecond):
	}
	if reclaimed.Load() {
		t.Fatal("value reclaimed under an active reader")
	}

	g.Exit()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Collect did not finish after the reader left")
	}
	if !reclaimed.Load() {
		t.Error("value not reclaimed")
	}
}

func TestDomainLateReaderDoesNotBlock(t *testing.T) {
	d := NewDomain()
	d.Retire(ReclaimFunc(func() {}))

	// A reader that entered after the epoch advanced registers in the new
	// phase; the writer only waits for the phase it left.
	d.epoch.Add(1)
	g := d.Enter()
	defer g.Exit()

	done := make(chan struct{})
	go func() {
		d.waitDrained((d.epoch.Load() - 1) & 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer waited for a reader of the current phase")
	}
}

func TestGuardExitTwicePanics(t *testing.T) {
	d := NewDomain()
	g := d.Enter()
	g.Exit()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	g.Exit()
}

func TestDomainReaders(t *testing.T) {
	d := NewDomain()
	g1 := d.Enter()
	g2 := d.Enter()
	if d.Readers() != 2 {
		t.Errorf("Readers: got %d, want 2", d.Readers())
	}
	g1.Exit()
	g2.Exit()
	if d.Readers() != 0 {
		t.Errorf("Readers: got %d, want 0", d.Readers())
	}
}

// TestDomainConcurrentPublication swaps a published pointer while readers
// dereference it. A reader must never observe a reclaimed value.
func TestDomainConcurrentPublication(t *testing.T) {
	type box struct {
		dead atomic.Bool
	}

	d := NewDomain()
	var cur atomic.Pointer[box]
	cur.Store(&box{})

	const readers = 8
	stop := make(chan struct{})
	var violations atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := d.Enter()
				b := cur.Load()
				for j := 0; j < 10; j++ {
					if b.dead.Load() {
						violations.Add(1)
					}
				}
				g.Exit()
			}
		}()
	}

	for i := 0; i < 200; i++ {
		old := cur.Swap(&box{})
		d.Retire(ReclaimFunc(func() { old.dead.Store(true) }))
		if i%10 == 0 {
			d.Collect()
		}
	}
	d.Collect()
	close(stop)
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Errorf("%d reads of reclaimed values", v)
	}
	if d.Reclaimed() != 200 {
		t.Errorf("Reclaimed: got %d, want 200", d.Reclaimed())
	}
}

func TestShared(t *testing.T) {
	if Shared() != Shared() {
		t.Error("Shared must return the same domain")
	}
}
