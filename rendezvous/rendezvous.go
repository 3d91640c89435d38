// Package rendezvous is the well-known discovery location shared by every
// participant in the process.
//
// Libraries that need a single process-wide authority (the interning
// registry, the reclamation domain) look it up here under an agreed key.
// Whichever participant asks first creates the value; everybody else finds
// and reuses it.
package rendezvous

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sep.rendezvous")

// Directory maps well-known keys to process-wide singletons.
type Directory struct {
	mu      sync.Mutex
	entries map[string]any
}

// NewDirectory creates an empty directory. Tests use private directories;
// production code goes through Default.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]any)}
}

var defaultDirectory = NewDirectory()

// Default returns the process-wide directory.
func Default() *Directory {
	return defaultDirectory
}

// LoadOrCreate returns the value registered under key. If there is none,
// create is called exactly once and its result is stored. The second result
// reports whether this call created the value.
func (d *Directory) LoadOrCreate(key string, create func() any) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.entries[key]; ok {
		return v, false
	}
	v := create()
	d.entries[key] = v
	log.Debugf("created %s (%T)", key, v)
	return v, true
}

// Load returns the value under key without creating one.
func (d *Directory) Load(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.entries[key]
	return v, ok
}

// Keys returns the registered keys in no particular order.
func (d *Directory) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	return keys
}

// Resolve is the typed form of LoadOrCreate. A value of a different type
// already living under key is an error: the caller must not fall back to a
// private instance, since that would split the authority in two.
func Resolve[T any](d *Directory, key string, create func() T) (T, error) {
	v, _ := d.LoadOrCreate(key, func() any { return create() })
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("rendezvous: %s holds %T, want %T", key, v, zero)
	}
	return t, nil
}
