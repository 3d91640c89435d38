package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/intern"
	"github.com/dagss/sep/reclaim"
	"github.com/dagss/sep/typeslot"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sep.manifest")

var (
	// ErrUnknownSymbol reports a symbol missing from the symbol map.
	ErrUnknownSymbol = errors.New("manifest: unknown symbol")

	// ErrUnknownBase reports a base type that is neither in the manifest nor
	// registered beforehand.
	ErrUnknownBase = errors.New("manifest: unknown base type")

	// ErrCycle reports types that are their own ancestors.
	ErrCycle = errors.New("manifest: inheritance cycle")
)

// Symbols maps symbol names used in a manifest to Go values: functions for
// callables, pointers for pointer slots.
type Symbols map[string]any

// Env is what Build needs from the process. Zero fields select the shared
// registry, the shared domain and a fresh type table.
type Env struct {
	Registry *intern.Registry
	Domain   *reclaim.Domain
	Types    *typeslot.TypeTable
	Symbols  Symbols
}

// Provider is a built manifest: its types, ready and registered, and the
// callable cells of the types that publish callables.
type Provider struct {
	Manifest  *Manifest
	Types     []*typeslot.Type // in ready order, bases first
	Cells     map[string]*callable.Cell
	Reclaimer *reclaim.Reclaimer // nil when background collection is off

	env Env
}

// Build creates, declares and readies every type of m, bases first. Types
// whose base is not in m must already be ready in env.Types. On error no
// type of m is registered; types readied before the failure stay private to
// the failed build.
func Build(m *Manifest, env Env) (*Provider, error) {
	if env.Registry == nil {
		reg, err := intern.Shared()
		if err != nil {
			return nil, err
		}
		env.Registry = reg
	}
	if env.Domain == nil {
		env.Domain = reclaim.Shared()
	}
	if env.Types == nil {
		env.Types = typeslot.NewTypeTable()
	}

	order, err := readyOrder(m)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		Manifest: m,
		Cells:    make(map[string]*callable.Cell),
		env:      env,
	}
	var staged []stagedTable
	built := make(map[string]*typeslot.Type, len(order))

	for _, spec := range order {
		t, err := p.buildType(spec, built, &staged)
		if err != nil {
			p.discard(staged)
			return nil, fmt.Errorf("type %s: %w", spec.FullName(), err)
		}
		built[spec.FullName()] = t
		p.Types = append(p.Types, t)
	}

	for _, s := range staged {
		if err := s.cell.Replace(s.table); err != nil {
			p.discard(staged)
			return nil, err
		}
	}
	for _, t := range p.Types {
		env.Types.Register(t)
	}

	if m.Reclaim.BackgroundEnabled() {
		interval, _ := m.Reclaim.IntervalDuration()
		p.Reclaimer = reclaim.NewReclaimer(env.Domain, interval)
	}
	log.Infof("provider %s: %d types, %d callable cells", m.Provider.Name, len(p.Types), len(p.Cells))
	return p, nil
}

// stagedTable is a callable table waiting to be published into its cell.
// Tables are published only once every type of the manifest has been built.
type stagedTable struct {
	cell  *callable.Cell
	table *callable.Table
}

// discard releases the handles of a failed build's tables. None of them
// was ever published, so no grace period is needed.
func (p *Provider) discard(staged []stagedTable) {
	for _, s := range staged {
		if s.table.State() == callable.Uninitialized {
			s.table.Discard()
		}
	}
	clear(p.Cells)
}

func (p *Provider) buildType(spec *TypeSpec, built map[string]*typeslot.Type, staged *[]stagedTable) (*typeslot.Type, error) {
	var base *typeslot.Type
	if spec.Base != "" {
		base = p.resolveBase(spec, built)
		if base == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBase, spec.Base)
		}
	}

	t := typeslot.NewTypeInNamespace(spec.Namespace, spec.Name, base)
	for _, s := range spec.Slots {
		if err := p.declareSlot(t, s); err != nil {
			return nil, err
		}
	}

	if len(spec.Callables) > 0 {
		table, err := p.callableTable(spec.Callables)
		if err != nil {
			return nil, err
		}
		cell := callable.NewCell(p.env.Domain)
		*staged = append(*staged, stagedTable{cell, table})
		p.Cells[spec.FullName()] = cell
		callable.Publish(t, cell)
	}

	if err := typeslot.ReadyType(t, spec.Capacity); err != nil {
		return nil, err
	}
	return t, nil
}

// resolveBase finds a base in the manifest first, then in the type table.
// A bare name is tried in the type's own namespace before the root.
func (p *Provider) resolveBase(spec *TypeSpec, built map[string]*typeslot.Type) *typeslot.Type {
	candidates := []string{spec.Base}
	if spec.Namespace != "" {
		candidates = []string{spec.Namespace + "::" + spec.Base, spec.Base}
	}
	for _, name := range candidates {
		if t := built[name]; t != nil {
			return t
		}
	}
	for _, name := range candidates {
		if t := p.env.Types.Lookup(name); t != nil && t.Ready() {
			return t
		}
	}
	return nil
}

func (p *Provider) declareSlot(t *typeslot.Type, s SlotSpec) error {
	if s.Kind == "skip" {
		t.Declare(typeslot.Entry{ID: typeslot.Skip})
		return nil
	}
	id, err := ParseID(s.ID)
	if err != nil {
		return err
	}
	switch s.Kind {
	case "offset":
		t.Declare(typeslot.OffsetEntry(id, uintptr(s.Value)))
	case "flags":
		t.Declare(typeslot.FlagsEntry(id, uintptr(s.Value)))
	case "symbol":
		ptr, err := p.pointerSymbol(s.Symbol)
		if err != nil {
			return err
		}
		t.DeclarePointer(id, ptr)
	default:
		return fmt.Errorf("slot %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}

func (p *Provider) pointerSymbol(name string) (unsafe.Pointer, error) {
	sym, ok := p.env.Symbols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, name)
	}
	v := reflect.ValueOf(sym)
	switch v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer:
		if v.IsNil() {
			return nil, fmt.Errorf("symbol %s is nil", name)
		}
		return v.UnsafePointer(), nil
	}
	return nil, fmt.Errorf("symbol %s is %T, not a pointer", name, sym)
}

func (p *Provider) callableTable(specs []CallableSpec) (*callable.Table, error) {
	built := make([]callable.Spec, 0, len(specs))
	for _, c := range specs {
		fn, ok := p.env.Symbols[c.Symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, c.Symbol)
		}
		flags, err := c.CallableFlags()
		if err != nil {
			return nil, err
		}
		s, err := callable.GoFunc(c.Signature, flags, fn)
		if err != nil {
			return nil, fmt.Errorf("callable %s: %w", c.Symbol, err)
		}
		built = append(built, s)
	}
	return callable.NewTable(p.env.Registry, built...)
}

// readyOrder sorts the types of m so every base comes before the types
// derived from it. Bases outside m are left for Build to resolve.
func readyOrder(m *Manifest) ([]*TypeSpec, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	byName := make(map[string]*TypeSpec, len(m.Types))
	for i := range m.Types {
		t := &m.Types[i]
		if _, dup := byName[t.FullName()]; dup {
			return nil, fmt.Errorf("manifest: type %s declared twice", t.FullName())
		}
		byName[t.FullName()] = t
	}

	state := make(map[*TypeSpec]int, len(m.Types))
	var order []*TypeSpec
	var visit func(t *TypeSpec) error
	visit = func(t *TypeSpec) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCycle, t.FullName())
		}
		state[t] = visiting
		if base := localBase(t, byName); base != nil {
			if err := visit(base); err != nil {
				return err
			}
		}
		state[t] = done
		order = append(order, t)
		return nil
	}

	for i := range m.Types {
		if err := visit(&m.Types[i]); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func localBase(t *TypeSpec, byName map[string]*TypeSpec) *TypeSpec {
	if t.Base == "" {
		return nil
	}
	if t.Namespace != "" {
		if b := byName[t.Namespace+"::"+t.Base]; b != nil {
			return b
		}
	}
	return byName[t.Base]
}

// ---------------------------------------------------------------------------
// Running provider
// ---------------------------------------------------------------------------

// Type returns the provider's type with the given qualified name.
func (p *Provider) Type(name string) *typeslot.Type {
	for _, t := range p.Types {
		if t.FullName() == name {
			return t
		}
	}
	return nil
}

// Start starts background collection, if configured.
func (p *Provider) Start() {
	if p.Reclaimer != nil {
		p.Reclaimer.Start()
	}
}

// Close stops background collection and reclaims everything retired.
func (p *Provider) Close() {
	if p.Reclaimer != nil {
		p.Reclaimer.Stop()
	}
	p.env.Domain.Collect()
}

// Reload replaces the callable tables of p's types with the ones declared
// in m. Types of m without a callable cell in p are ignored: capabilities
// are fixed once a type is ready. Every table is built before any is
// published.
func (p *Provider) Reload(m *Manifest, symbols Symbols) error {
	if symbols != nil {
		p.env.Symbols = symbols
	}

	var updates []stagedTable

	for i := range m.Types {
		spec := &m.Types[i]
		cell := p.Cells[spec.FullName()]
		if cell == nil {
			continue
		}
		table, err := p.callableTable(spec.Callables)
		if err != nil {
			for _, u := range updates {
				u.table.Discard()
			}
			return fmt.Errorf("reload %s: %w", spec.FullName(), err)
		}
		updates = append(updates, stagedTable{cell, table})
	}

	for _, u := range updates {
		if err := u.cell.Replace(u.table); err != nil {
			return err
		}
	}
	log.Infof("provider %s: reloaded %d callable tables", p.Manifest.Provider.Name, len(updates))
	return nil
}
