package typeslot

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Type: reference host type
// ---------------------------------------------------------------------------

// Type is a minimal host type: a name, a base, the capabilities it declares
// and its published table. Hosts with their own object model implement Host
// instead.
type Type struct {
	Name      string
	Namespace string

	base     *Type
	mu       sync.Mutex // guards declared until ready
	declared Declaration
	slots    atomic.Pointer[Table]
}

// NewType creates a type with the given name and base (nil for a root).
func NewType(name string, base *Type) *Type {
	return &Type{Name: name, base: base}
}

// NewTypeInNamespace creates a type in a specific namespace.
func NewTypeInNamespace(namespace, name string, base *Type) *Type {
	t := NewType(name, base)
	t.Namespace = namespace
	return t
}

// Declare adds entries the type provides itself. It panics once the type
// is ready: the table is fixed at that point.
func (t *Type) Declare(entries ...Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mustNotBeReady()
	t.declared.Entries = append(t.declared.Entries, entries...)
}

// DeclarePointer declares an entry whose payload is p and keeps p reachable
// for as long as any table built from this declaration lives.
func (t *Type) DeclarePointer(id ID, p unsafe.Pointer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mustNotBeReady()
	t.declared.Entries = append(t.declared.Entries, PointerEntry(id, p))
	t.declared.Retain = append(t.declared.Retain, p)
}

func (t *Type) mustNotBeReady() {
	if t.slots.Load() != nil {
		panic("typeslot: declare on ready type " + t.FullName())
	}
}

// Base implements Host.
func (t *Type) Base() Host {
	if t.base == nil {
		return nil
	}
	return t.base
}

// BaseType returns the parent type, or nil.
func (t *Type) BaseType() *Type {
	return t.base
}

// Declared implements Host.
func (t *Type) Declared() Declaration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Declaration{
		Entries: append([]Entry(nil), t.declared.Entries...),
		Retain:  append([]unsafe.Pointer(nil), t.declared.Retain...),
	}
}

// SlotCell implements Host.
func (t *Type) SlotCell() *atomic.Pointer[Table] {
	return &t.slots
}

// Ready reports whether ReadyType has published a table for t.
func (t *Type) Ready() bool {
	return t.slots.Load() != nil
}

// IsSubtypeOf returns true if t is other or derives from it.
func (t *Type) IsSubtypeOf(other *Type) bool {
	for current := t; current != nil; current = current.base {
		if current == other {
			return true
		}
	}
	return false
}

// Supertypes returns all bases from the immediate parent to the root.
func (t *Type) Supertypes() []*Type {
	var result []*Type
	for current := t.base; current != nil; current = current.base {
		result = append(result, current)
	}
	return result
}

// Depth returns the inheritance depth (0 for a root).
func (t *Type) Depth() int {
	depth := 0
	for current := t.base; current != nil; current = current.base {
		depth++
	}
	return depth
}

// FullName returns namespace::name, or just name.
func (t *Type) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "::" + t.Name
}

// String implements the Stringer interface.
func (t *Type) String() string {
	return t.FullName()
}

// ---------------------------------------------------------------------------
// TypeTable: registry of types by name
// ---------------------------------------------------------------------------

// TypeTable maps qualified names to types. It is safe for concurrent use.
type TypeTable struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewTypeTable creates an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{types: make(map[string]*Type)}
}

// Register adds t and returns the type previously registered under the same
// name, or nil.
func (tt *TypeTable) Register(t *Type) *Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	key := t.FullName()
	old := tt.types[key]
	tt.types[key] = t
	return old
}

// Lookup finds a type by qualified name.
func (tt *TypeTable) Lookup(name string) *Type {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.types[name]
}

// LookupInNamespace finds a type by namespace and name.
func (tt *TypeTable) LookupInNamespace(namespace, name string) *Type {
	key := name
	if namespace != "" {
		key = namespace + "::" + name
	}
	return tt.Lookup(key)
}

// All returns every registered type, in no particular order.
func (tt *TypeTable) All() []*Type {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	result := make([]*Type, 0, len(tt.types))
	for _, t := range tt.types {
		result = append(result, t)
	}
	return result
}

// Len returns the number of registered types.
func (tt *TypeTable) Len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return len(tt.types)
}
