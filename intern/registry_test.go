package intern

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/dagss/sep/rendezvous"
)

func TestAcquire_SameTextSameHandle(t *testing.T) {
	r := NewRegistry()

	a := r.MustAcquire("d:d")
	b := r.MustAcquire("d:d")
	if a != b {
		t.Fatal("equal text must yield the same handle")
	}
	if a.Refs() != 2 {
		t.Errorf("refs: got %d, want 2", a.Refs())
	}

	c := r.MustAcquire("i:i")
	if c == a {
		t.Error("different text must yield different handles")
	}
	if c.String() != "i:i" {
		t.Errorf("text: got %q", c.String())
	}
}

func TestRelease_DropsAtZero(t *testing.T) {
	r := NewRegistry()

	a := r.MustAcquire("d:d")
	r.MustAcquire("d:d")

	r.Release(a)
	if r.Lookup("d:d") != a {
		t.Fatal("handle dropped while still referenced")
	}

	r.Release(a)
	if r.Lookup("d:d") != nil {
		t.Fatal("handle should be dropped after matching releases")
	}
	if r.Len() != 0 {
		t.Errorf("len: got %d, want 0", r.Len())
	}

	fresh := r.MustAcquire("d:d")
	if fresh.Refs() != 1 {
		t.Errorf("fresh refs: got %d, want 1", fresh.Refs())
	}
}

func TestRelease_Underflow(t *testing.T) {
	r := NewRegistry()
	s := r.MustAcquire("x")
	r.Release(s)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unmatched release")
		}
	}()
	r.Release(s)
}

func TestLookup_NoAllocation(t *testing.T) {
	r := NewRegistry()
	if r.Lookup("f:f") != nil {
		t.Error("lookup of unknown text should be nil")
	}
	if r.Len() != 0 {
		t.Error("lookup must not create entries")
	}
}

func TestAcquire_Limit(t *testing.T) {
	r := NewRegistryWithLimit(2)
	r.MustAcquire("a")
	r.MustAcquire("b")

	if _, err := r.Acquire("c"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
	// Existing text is still fine at the limit.
	if _, err := r.Acquire("a"); err != nil {
		t.Errorf("re-acquire at limit: %v", err)
	}
}

func TestAll(t *testing.T) {
	r := NewRegistry()
	r.MustAcquire("b")
	r.MustAcquire("a")

	got := r.All()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("all: got %v", got)
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	r := NewRegistry()
	keep := r.MustAcquire("d:d")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := r.MustAcquire("d:d")
				if s != keep {
					t.Error("handle identity changed while referenced")
					return
				}
				tmp := r.MustAcquire("tmp")
				r.Release(tmp)
				r.Release(s)
			}
		}()
	}
	wg.Wait()

	if keep.Refs() != 1 {
		t.Errorf("refs after churn: got %d, want 1", keep.Refs())
	}
	if r.Lookup("tmp") != nil {
		t.Error("tmp should be gone after balanced releases")
	}
}

func TestShared_SingleAuthority(t *testing.T) {
	a, err := Shared()
	if err != nil {
		t.Fatal(err)
	}
	b := MustShared()
	if a != b {
		t.Error("Shared must return the same registry every time")
	}
	v, ok := rendezvous.Default().Load(Key)
	if !ok || v != a {
		t.Error("shared registry must live under the well-known key")
	}
}
