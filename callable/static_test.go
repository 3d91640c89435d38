package callable

import (
	"errors"
	"testing"

	"github.com/dagss/sep/signature"
)

func TestStaticTable(t *testing.T) {
	table, err := NewStaticTable(
		MustGoFunc("d:d", 0, double),
		MustGoFunc("i:i", 0, incr),
		MustGoFunc("f:f", Flags(0).WithVersion(2), half),
	)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 3 {
		t.Errorf("Len: got %d", table.Len())
	}

	e, ok := table.Lookup("d:d")
	if !ok || StaticAs[func(float64) float64](e)(2) != 4 {
		t.Error("d:d lookup failed")
	}
	if e.Key != signature.Key("d:d") {
		t.Error("entry key should be the signature key")
	}
	if _, ok := table.LookupKey(signature.Key("i:i"), "i:i"); !ok {
		t.Error("LookupKey(i:i) failed")
	}
	if _, ok := table.Lookup("f:f"); ok {
		t.Error("entry with another ABI version should be skipped")
	}
	// A colliding key alone never matches.
	if _, ok := table.LookupKey(signature.Key("d:d"), "q:q"); ok {
		t.Error("key match without text match")
	}
}

func TestStaticTableRejectsNonCanonical(t *testing.T) {
	_, err := NewStaticTable(Spec{Signature: "d -> d"})
	if !errors.Is(err, ErrSignature) {
		t.Errorf("got %v, want ErrSignature", err)
	}
}

func TestStaticLookupDoesNotAllocate(t *testing.T) {
	table, _ := NewStaticTable(MustGoFunc("d:d", 0, double), MustGoFunc("i:i", 0, incr))
	allocs := testing.AllocsPerRun(100, func() {
		table.Lookup("i:i")
	})
	if allocs != 0 {
		t.Errorf("Lookup allocates %v times", allocs)
	}
}
