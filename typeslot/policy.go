package typeslot

// Policy decides which entries a consumer is willing to interpret.
//
// An allocated id from a registrar the consumer does not know is not an
// error; the entry is simply ignored. Pointer ids are always accepted since
// only code holding the Key can ask for them.
type Policy struct {
	known map[Registrar]bool
}

// NewPolicy creates a policy that knows the given registrars.
func NewPolicy(registrars ...Registrar) *Policy {
	p := &Policy{known: make(map[Registrar]bool, len(registrars))}
	for _, r := range registrars {
		p.Allow(r)
	}
	return p
}

// DefaultPolicy knows the private and core registrars.
func DefaultPolicy() *Policy {
	return NewPolicy(RegistrarPrivate, RegistrarCore)
}

// Allow adds r to the known registrars. The reserved registrar can never be
// allowed.
func (p *Policy) Allow(r Registrar) {
	if r == RegistrarReserved {
		return
	}
	p.known[r] = true
}

// Accept reports whether an entry with id should be interpreted.
func (p *Policy) Accept(id ID) bool {
	switch {
	case id.IsReserved():
		return false
	case id.IsPointer():
		return true
	default:
		return p.known[id.Registrar()]
	}
}

// Find is the package-level Find restricted to accepted ids.
func (p *Policy) Find(t Host, id ID, expectedPos int) (Entry, bool) {
	if !p.Accept(id) {
		return Entry{}, false
	}
	return Find(t, id, expectedPos)
}

// Accepted returns the entries of table the policy accepts, in table order.
func (p *Policy) Accepted(table *Table) []Entry {
	var result []Entry
	for _, e := range table.Entries() {
		if p.Accept(e.ID) {
			result = append(result, e)
		}
	}
	return result
}
