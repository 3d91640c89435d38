package signature

import "github.com/zeebo/xxh3"

// Key returns the deterministic 64-bit key of canonical text.
//
// Keys serve deployments that bake tables at build time and cannot share an
// interning registry: a consumer computes the key once, compares keys while
// scanning, and confirms a hit by comparing bytes. Interned handles and keys
// are two different encodings; a lookup path uses one or the other.
func Key(canon string) uint64 {
	return xxh3.HashString(canon)
}
