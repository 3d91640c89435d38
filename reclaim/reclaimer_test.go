package reclaim

import (
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Reclaimer lifecycle
// ---------------------------------------------------------------------------

func TestReclaimerDefaultInterval(t *testing.T) {
	r := NewReclaimer(NewDomain(), 0)
	if r.Interval() != DefaultInterval {
		t.Errorf("Interval: got %v, want %v", r.Interval(), DefaultInterval)
	}
	if !r.IsEnabled() {
		t.Error("new reclaimer should be enabled")
	}
	if r.LastStats() != nil {
		t.Error("LastStats before any collection should be nil")
	}
}

func TestReclaimerCollectNow(t *testing.T) {
	d := NewDomain()
	r := NewReclaimer(d, time.Hour)
	var n atomic.Int32
	d.Retire(counted{&n})
	d.Retire(counted{&n})

	stats := r.CollectNow()
	if stats.Reclaimed != 2 || stats.Pending != 0 {
		t.Errorf("stats: %+v", stats)
	}
	if r.CollectCount() != 1 {
		t.Errorf("CollectCount: got %d", r.CollectCount())
	}
	if r.LastStats() != stats {
		t.Error("LastStats should return the latest collection")
	}
}

func TestReclaimerBackgroundCollection(t *testing.T) {
	d := NewDomain()
	r := NewReclaimer(d, 5*time.Millisecond)
	r.Start()
	r.Start() // no second loop
	defer r.Stop()

	var n atomic.Int32
	d.Retire(counted{&n})

	deadline := time.Now().Add(5 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n.Load() != 1 {
		t.Fatal("background collection never ran")
	}
	if !r.Running() {
		t.Error("Running: got false")
	}
}

func TestReclaimerDisabledSkips(t *testing.T) {
	d := NewDomain()
	r := NewReclaimer(d, 5*time.Millisecond)
	r.SetEnabled(false)
	r.Start()

	var n atomic.Int32
	d.Retire(counted{&n})
	time.Sleep(30 * time.Millisecond)
	if n.Load() != 0 {
		t.Error("disabled reclaimer collected")
	}

	// Stop always drains.
	r.Stop()
	if n.Load() != 1 {
		t.Error("Stop did not run the final collection")
	}
	if r.Running() {
		t.Error("Running after Stop")
	}
}

func TestReclaimerStopIdempotent(t *testing.T) {
	r := NewReclaimer(NewDomain(), time.Millisecond)
	r.Stop()
	r.Start()
	r.Stop()
	r.Stop()
}
