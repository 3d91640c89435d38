package reclaim

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Reclaimer: periodic collection for a domain
// ---------------------------------------------------------------------------

// Stats holds statistics from a single collection.
type Stats struct {
	Reclaimed int
	Pending   int
	Duration  time.Duration
	Timestamp time.Time
}

// Reclaimer periodically collects a domain so retired tables are released
// without writers waiting for a grace period themselves.
type Reclaimer struct {
	domain   *Domain
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	collectCount atomic.Uint64
	lastStats    atomic.Value // *Stats
}

// DefaultInterval is the default collection interval.
const DefaultInterval = 100 * time.Millisecond

// NewReclaimer creates a Reclaimer for d. A non-positive interval selects
// DefaultInterval.
func NewReclaimer(d *Domain, interval time.Duration) *Reclaimer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reclaimer{
		domain:   d,
		interval: interval,
	}
	r.enabled.Store(true)
	return r
}

// Start begins the collection goroutine. Calling Start on a running
// Reclaimer does nothing.
func (r *Reclaimer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		return
	}

	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})

	stopCh := r.stop
	stoppedCh := r.stopped
	go r.loop(stopCh, stoppedCh)
	log.Debugf("reclaimer started, interval %s", r.interval)
}

// Stop halts the collection goroutine, waits for it, and runs one final
// collection. It is safe to call Stop multiple times or on a Reclaimer that
// was never started.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	stopCh := r.stop
	stoppedCh := r.stopped
	r.stop = nil
	r.stopped = nil
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
		r.CollectNow()
	}
}

// Running reports whether the collection goroutine is active.
func (r *Reclaimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// SetEnabled enables or disables collection. When disabled the goroutine
// keeps running but skips collections.
func (r *Reclaimer) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// IsEnabled reports whether collection is enabled.
func (r *Reclaimer) IsEnabled() bool {
	return r.enabled.Load()
}

// Interval returns the collection interval.
func (r *Reclaimer) Interval() time.Duration {
	return r.interval
}

// CollectCount returns the number of collections performed.
func (r *Reclaimer) CollectCount() uint64 {
	return r.collectCount.Load()
}

// LastStats returns the statistics of the most recent collection, or nil.
func (r *Reclaimer) LastStats() *Stats {
	v := r.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*Stats)
}

// CollectNow runs a collection immediately, regardless of the enabled flag.
func (r *Reclaimer) CollectNow() *Stats {
	return r.collect()
}

func (r *Reclaimer) loop(stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if r.enabled.Load() {
				r.collect()
			}
		}
	}
}

func (r *Reclaimer) collect() *Stats {
	start := time.Now()
	n := r.domain.Collect()
	stats := &Stats{
		Reclaimed: n,
		Pending:   r.domain.Pending(),
		Duration:  time.Since(start),
		Timestamp: start,
	}
	r.collectCount.Add(1)
	r.lastStats.Store(stats)
	return stats
}
