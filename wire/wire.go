// Package wire encodes published tables as canonical CBOR snapshots, for
// inspection tools and for comparing what two builds of a provider
// publish.
//
// Addresses are process-local: pointer ids and pointer payloads are carried
// for display but excluded from the fingerprint. Offsets and flag bits are
// fingerprinted.
package wire

import (
	"crypto/sha256"
	"fmt"

	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/typeslot"
	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Slot is one capability entry.
type Slot struct {
	ID      uint64 `cbor:"1,keyasint"`           // allocated id; 0 for pointer ids
	Private bool   `cbor:"2,keyasint,omitempty"` // pointer id
	Skip    bool   `cbor:"3,keyasint,omitempty"` // skip marker
	Payload uint64 `cbor:"4,keyasint,omitempty"`
	Address bool   `cbor:"5,keyasint,omitempty"` // payload is a pointer; not fingerprinted
}

// Callable is one native callable entry.
type Callable struct {
	Signature string `cbor:"1,keyasint"`
	Flags     uint32 `cbor:"2,keyasint"`
}

// TypeSnapshot is what one type publishes.
type TypeSnapshot struct {
	Name      string     `cbor:"1,keyasint"`
	Namespace string     `cbor:"2,keyasint,omitempty"`
	Base      string     `cbor:"3,keyasint,omitempty"`
	Ready     bool       `cbor:"4,keyasint"`
	Slots     []Slot     `cbor:"5,keyasint,omitempty"`
	Callables []Callable `cbor:"6,keyasint,omitempty"`
}

// SnapshotSlots records the entries of a slot table.
func SnapshotSlots(table *typeslot.Table) []Slot {
	if table.Len() == 0 {
		return nil
	}
	slots := make([]Slot, 0, table.Len())
	for _, e := range table.Entries() {
		s := Slot{Payload: uint64(e.Payload), Address: table.Retains(e)}
		switch {
		case e.ID == typeslot.Skip:
			s.Skip = true
		case e.ID.IsPointer():
			s.Private = true
		default:
			s.ID = uint64(e.ID)
		}
		slots = append(slots, s)
	}
	return slots
}

// SnapshotCallables records the entries of a callable table. The caller
// must hold the table through a snapshot or own it.
func SnapshotCallables(table *callable.Table) []Callable {
	entries := table.Entries()
	if len(entries) == 0 {
		return nil
	}
	result := make([]Callable, len(entries))
	for i, e := range entries {
		result[i] = Callable{Signature: e.Signature.String(), Flags: uint32(e.Flags)}
	}
	return result
}

// SnapshotType records t's published slot table and, when t advertises a
// callable cell, its current callable table.
func SnapshotType(t *typeslot.Type) *TypeSnapshot {
	s := &TypeSnapshot{
		Name:      t.Name,
		Namespace: t.Namespace,
		Ready:     t.Ready(),
		Slots:     SnapshotSlots(typeslot.TableOf(t)),
	}
	if base := t.BaseType(); base != nil {
		s.Base = base.FullName()
	}
	if !s.Ready {
		return s
	}
	if cell, ok := callable.FromType(t, 0); ok {
		snap := cell.Snapshot()
		s.Callables = SnapshotCallables(snap.Table)
		snap.Release()
	}
	return s
}

// MarshalType serializes a TypeSnapshot to CBOR bytes.
func MarshalType(s *TypeSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalType deserializes a TypeSnapshot from CBOR bytes.
func UnmarshalType(data []byte) (*TypeSnapshot, error) {
	var s TypeSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal type: %w", err)
	}
	return &s, nil
}

// Fingerprint hashes the canonical encoding of s with every pointer payload
// cleared. Two processes publishing the same capabilities and callables
// in the same order get the same fingerprint.
func Fingerprint(s *TypeSnapshot) ([32]byte, error) {
	stable := *s
	stable.Slots = make([]Slot, len(s.Slots))
	for i, slot := range s.Slots {
		if slot.Address {
			slot.Payload = 0
		}
		stable.Slots[i] = slot
	}
	data, err := cborEncMode.Marshal(&stable)
	if err != nil {
		return [32]byte{}, fmt.Errorf("wire: fingerprint %s: %w", s.Name, err)
	}
	return sha256.Sum256(data), nil
}
