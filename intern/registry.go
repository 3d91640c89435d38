// Package intern canonicalizes signature strings to process-wide handles.
//
// Two handles for equal text are the same pointer, so consumers compare
// signatures with == and never look at the bytes. A handle stays valid as
// long as somebody holds a reference obtained from Acquire.
package intern

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dagss/sep/rendezvous"
	"github.com/tliron/commonlog"
)

// Key is the well-known rendezvous key of the shared registry. Every
// participant must agree on it.
const Key = "sep.intern/v1"

var (
	// ErrExhausted reports that no new handle can be allocated.
	ErrExhausted = errors.New("intern: registry exhausted")

	// ErrIncompatible reports that the rendezvous key holds something that is
	// not a registry.
	ErrIncompatible = errors.New("intern: incompatible registry under rendezvous key")
)

var log = commonlog.GetLogger("sep.intern")

// ---------------------------------------------------------------------------
// String: an interned handle
// ---------------------------------------------------------------------------

// String is the canonical representative of one piece of text.
type String struct {
	text string
	refs atomic.Int64
}

// String returns the interned text.
func (s *String) String() string {
	return s.text
}

// Refs returns the current reference count.
func (s *String) Refs() int64 {
	return s.refs.Load()
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry interns text to *String handles with reference counting.
//
// All mutation happens under one RWMutex. Acquire of an existing handle only
// needs the read lock; creation and final release take the write lock.
type Registry struct {
	mu     sync.RWMutex
	byText map[string]*String
	limit  int // 0 = unlimited
}

// NewRegistry creates an empty registry with no size limit.
func NewRegistry() *Registry {
	return &Registry{byText: make(map[string]*String)}
}

// NewRegistryWithLimit creates a registry that holds at most limit live
// handles. Acquire of new text beyond that fails with ErrExhausted.
func NewRegistryWithLimit(limit int) *Registry {
	r := NewRegistry()
	r.limit = limit
	return r
}

// Shared returns the process-wide registry, creating it on first use.
func Shared() (*Registry, error) {
	r, err := rendezvous.Resolve(rendezvous.Default(), Key, NewRegistry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return r, nil
}

// MustShared is like Shared but panics if the rendezvous key is taken by a
// foreign value.
func MustShared() *Registry {
	r, err := Shared()
	if err != nil {
		panic(err)
	}
	return r
}

// Acquire returns the handle for text and takes a reference to it.
func (r *Registry) Acquire(text string) (*String, error) {
	// Fast path: existing handle. Holding the read lock keeps a concurrent
	// final Release from dropping the entry under us.
	r.mu.RLock()
	if s, ok := r.byText[text]; ok {
		s.refs.Add(1)
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byText[text]; ok {
		s.refs.Add(1)
		return s, nil
	}
	if r.limit > 0 && len(r.byText) >= r.limit {
		return nil, fmt.Errorf("%w: %d live strings", ErrExhausted, len(r.byText))
	}

	s := &String{text: text}
	s.refs.Store(1)
	r.byText[text] = s
	return s, nil
}

// MustAcquire is Acquire for registries without a limit.
func (r *Registry) MustAcquire(text string) *String {
	s, err := r.Acquire(text)
	if err != nil {
		panic(err)
	}
	return s
}

// Release drops one reference. The entry is removed once the count reaches
// zero; a later Acquire of the same text yields a fresh handle.
func (r *Registry) Release(s *String) {
	n := s.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("intern: release of %q without matching acquire", s.text))
	}
	if n > 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// An Acquire may have revived the handle between the decrement and the
	// lock.
	if s.refs.Load() == 0 && r.byText[s.text] == s {
		delete(r.byText, s.text)
		log.Debugf("dropped %q", s.text)
	}
}

// Lookup returns the live handle for text, or nil. It takes no reference
// and never allocates.
func (r *Registry) Lookup(text string) *String {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byText[text]
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byText)
}

// All returns the text of every live handle. For diagnostics only.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.byText))
	for text := range r.byText {
		result = append(result, text)
	}
	return result
}
