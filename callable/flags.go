package callable

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is the flags word of an entry. Bits 31..24 hold the ABI version,
// bits 23..0 capability bits a caller checks before calling.
type Flags uint32

// ABIVersion is the only ABI version understood by this package. Entries
// with any other version are skipped by lookups.
const ABIVersion = 0

const (
	// RequiresExclusive: the caller must hold the exclusive execution token.
	RequiresExclusive Flags = 1 << iota
	// AcquiresExclusive: the callee takes the exclusive token itself.
	AcquiresExclusive
	// MaySignalError: the callee may leave an error set for the caller.
	MaySignalError
)

const (
	capabilityMask Flags = 1<<24 - 1
	versionShift         = 24
)

var flagNames = map[string]Flags{
	"requires_exclusive": RequiresExclusive,
	"acquires_exclusive": AcquiresExclusive,
	"may_signal_error":   MaySignalError,
}

// WithVersion returns f with its ABI version byte set to v.
func (f Flags) WithVersion(v uint8) Flags {
	return f&capabilityMask | Flags(v)<<versionShift
}

// Version returns the ABI version byte.
func (f Flags) Version() uint8 {
	return uint8(f >> versionShift)
}

// Capabilities returns the capability bits.
func (f Flags) Capabilities() Flags {
	return f & capabilityMask
}

// Has reports whether all bits of c are set.
func (f Flags) Has(c Flags) bool {
	return f&c == c
}

// String implements the Stringer interface.
func (f Flags) String() string {
	var names []string
	for name, bit := range flagNames {
		if f.Has(bit) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if rest := f.Capabilities() &^ (RequiresExclusive | AcquiresExclusive | MaySignalError); rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	s := strings.Join(names, "|")
	if v := f.Version(); v != ABIVersion {
		s = fmt.Sprintf("%s@v%d", s, v)
	}
	if s == "" {
		return "0"
	}
	return s
}

// ParseFlags combines named capability bits, as written in manifests.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		bit, ok := flagNames[n]
		if !ok {
			return 0, fmt.Errorf("callable: unknown flag %q", n)
		}
		f |= bit
	}
	return f, nil
}

// ExecContext describes the caller for LookupIn.
type ExecContext struct {
	HoldsExclusive bool
}

// Compatible reports whether a caller in ctx may call an entry with flags f.
func (ctx ExecContext) Compatible(f Flags) bool {
	if f.Version() != ABIVersion {
		return false
	}
	if f.Has(RequiresExclusive) && !ctx.HoldsExclusive {
		return false
	}
	return true
}
