package manifest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/typeslot"
	"github.com/google/go-cmp/cmp"
)

func mustLoad(t *testing.T) *Manifest {
	t.Helper()
	m, err := Load("testdata")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func slotIDs(table *typeslot.Table) []typeslot.ID {
	var ids []typeslot.ID
	for _, e := range table.Entries() {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestBuild(t *testing.T) {
	env := testEnv()
	p, err := Build(mustLoad(t), env)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()

	bufferID, _ := ParseID("03:0010:v1")
	infoID, _ := ParseID("0x04000205")

	fn := p.Type("sci::Function")
	ufunc := p.Type("sci::Ufunc")
	gufunc := p.Type("sci::Gufunc")
	if fn == nil || ufunc == nil || gufunc == nil {
		t.Fatal("missing types")
	}
	if env.Types.Lookup("sci::Ufunc") != ufunc {
		t.Error("types should be registered in the env type table")
	}

	want := []typeslot.ID{bufferID, typeslot.Skip, infoID, callable.CapabilityID}
	if diff := cmp.Diff(want, slotIDs(typeslot.TableOf(ufunc))); diff != "" {
		t.Errorf("Ufunc slots (-want +got):\n%s", diff)
	}
	if e, ok := typeslot.Find(ufunc, bufferID, 0); !ok || e.Offset() != 24 {
		t.Errorf("override: got %v", e)
	}
	if e, ok := typeslot.Find(fn, bufferID, 0); !ok || e.Offset() != 16 {
		t.Errorf("base entry: got %v", e)
	}

	e, _ := typeslot.Find(ufunc, infoID, 2)
	if info := (*ufuncInfo)(e.Pointer()); info.NIn != 1 {
		t.Errorf("symbol slot: %+v", info)
	}

	if typeslot.TableOf(gufunc) != typeslot.TableOf(ufunc) {
		t.Error("Gufunc declares nothing and should share Ufunc's table")
	}

	cell, ok := callable.FromType(gufunc, 3)
	if !ok || cell != p.Cells["sci::Ufunc"] {
		t.Fatal("callable cell not reachable through Gufunc")
	}
	entry, ok := cell.Lookup("d:d")
	if !ok {
		t.Fatal("d:d not published")
	}
	if got := callable.As[func(float64) float64](&entry)(0); got != 0 {
		t.Errorf("sin(0) = %v", got)
	}
	if !entry.Flags.Has(callable.MaySignalError) {
		t.Errorf("flags = %v", entry.Flags)
	}
}

func TestBuildOrdersBasesFirst(t *testing.T) {
	m, err := Parse([]byte(`
[provider]
name = "p"

[[type]]
name = "C"
base = "B"

[[type]]
name = "B"
base = "A"

[[type]]
name = "A"
  [[type.slot]]
  id = "01:0001:v1"
`))
	if err != nil {
		t.Fatal(err)
	}
	p, err := Build(m, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, typ := range p.Types {
		names = append(names, typ.Name)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, names); diff != "" {
		t.Errorf("ready order (-want +got):\n%s", diff)
	}
}

func TestBuildExternalBase(t *testing.T) {
	env := testEnv()
	object := typeslot.NewType("Object", nil)
	object.Declare(typeslot.FlagsEntry(typeslot.Allocated(typeslot.RegistrarCore, 9, 1), 1))
	if err := typeslot.ReadyType(object, 1); err != nil {
		t.Fatal(err)
	}
	env.Types.Register(object)

	m, _ := Parse([]byte(`
[provider]
name = "p"
namespace = "ext"
[[type]]
name = "T"
base = "Object"
`))
	p, err := Build(m, env)
	if err != nil {
		t.Fatal(err)
	}
	if p.Type("ext::T").BaseType() != object {
		t.Error("external base not resolved")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		err  error
	}{
		{"unknown base", `[provider]
name = "p"
[[type]]
name = "T"
base = "Missing"`, ErrUnknownBase},
		{"cycle", `[provider]
name = "p"
[[type]]
name = "A"
base = "B"
[[type]]
name = "B"
base = "A"`, ErrCycle},
		{"unknown symbol", `[provider]
name = "p"
[[type]]
name = "T"
  [[type.callable]]
  signature = "d:d"
  symbol = "cos"`, ErrUnknownSymbol},
		{"func type mismatch", `[provider]
name = "p"
[[type]]
name = "T"
  [[type.callable]]
  signature = "i:i"
  symbol = "sin"`, callable.ErrFuncType},
		{"capacity", `[provider]
name = "p"
[[type]]
name = "T"
capacity = 1
  [[type.slot]]
  id = "01:0001:v1"
  [[type.slot]]
  id = "01:0002:v1"`, typeslot.ErrCapacityExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Parse([]byte(tc.toml))
			if err != nil {
				t.Fatal(err)
			}
			env := testEnv()
			_, err = Build(m, env)
			if !errors.Is(err, tc.err) {
				t.Fatalf("got %v, want %v", err, tc.err)
			}
			if env.Types.Len() != 0 {
				t.Error("failed build registered types")
			}
		})
	}
}

func TestBuildFailureReleasesHandles(t *testing.T) {
	m, _ := Parse([]byte(`
[provider]
name = "p"
[[type]]
name = "T"
capacity = 1
  [[type.slot]]
  id = "01:0001:v1"
  [[type.callable]]
  signature = "d:d"
  symbol = "sin"
`))
	env := testEnv()
	if _, err := Build(m, env); !errors.Is(err, typeslot.ErrCapacityExceeded) {
		t.Fatalf("got %v", err)
	}
	if env.Registry.Lookup("d:d") != nil {
		t.Error("failed build kept d:d interned")
	}
}

func TestBuildFailureUnderSnapshot(t *testing.T) {
	m, _ := Parse([]byte(`
[provider]
name = "p"
[[type]]
name = "A"
  [[type.callable]]
  signature = "d:d"
  symbol = "sin"
[[type]]
name = "B"
  [[type.callable]]
  signature = "d:d"
  symbol = "nope"
`))
	env := testEnv()
	guard := env.Domain.Enter()
	defer guard.Exit()

	done := make(chan error, 1)
	go func() {
		_, err := Build(m, env)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrUnknownSymbol) {
			t.Fatalf("got %v, want ErrUnknownSymbol", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("failed build waited for a grace period")
	}
	if env.Registry.Lookup("d:d") != nil {
		t.Error("failed build kept d:d interned")
	}
}

func TestReload(t *testing.T) {
	env := testEnv()
	p, err := Build(mustLoad(t), env)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer p.Close()

	next := mustLoad(t)
	next.Types[1].Callables = []CallableSpec{
		{Signature: "d:d", Symbol: "cos"},
		{Signature: "f:f", Symbol: "halve"},
	}
	symbols := testSymbols()
	symbols["cos"] = math.Cos
	symbols["halve"] = func(x float32) float32 { return x / 2 }

	cell := p.Cells["sci::Ufunc"]
	old := cell.Load()
	if err := p.Reload(next, symbols); err != nil {
		t.Fatal(err)
	}
	if old.State() == callable.Published {
		t.Error("old table still published after reload")
	}

	e, ok := cell.Lookup("d:d")
	if !ok || callable.As[func(float64) float64](&e)(0) != 1 {
		t.Error("d:d should now be cos")
	}
	if _, ok := cell.Lookup("i:i"); ok {
		t.Error("i:i should be gone after reload")
	}

	bad := mustLoad(t)
	bad.Types[1].Callables = []CallableSpec{{Signature: "d:d", Symbol: "nope"}}
	current := cell.Load()
	if err := p.Reload(bad, nil); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("got %v", err)
	}
	if cell.Load() != current {
		t.Error("failed reload replaced a table")
	}
}
