package manifest

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/intern"
	"github.com/dagss/sep/reclaim"
	"github.com/dagss/sep/typeslot"
	"github.com/google/go-cmp/cmp"
)

type ufuncInfo struct {
	NIn, NOut int
}

func testSymbols() Symbols {
	return Symbols{
		"sin":        math.Sin,
		"neg":        func(x int32) int32 { return -x },
		"ufunc_info": &ufuncInfo{NIn: 1, NOut: 1},
	}
}

func testEnv() Env {
	return Env{
		Registry: intern.NewRegistry(),
		Domain:   reclaim.NewDomain(),
		Types:    typeslot.NewTypeTable(),
		Symbols:  testSymbols(),
	}
}

func TestLoadManifest(t *testing.T) {
	m, err := Load("testdata")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Provider.Name != "special" {
		t.Errorf("provider name = %q, want special", m.Provider.Name)
	}
	if !filepath.IsAbs(m.Path) || filepath.Base(m.Path) != FileName {
		t.Errorf("path = %q", m.Path)
	}
	if len(m.Types) != 3 {
		t.Fatalf("types count = %d, want 3", len(m.Types))
	}

	ufunc := m.Types[1]
	if ufunc.FullName() != "sci::Ufunc" {
		t.Errorf("namespace default not applied: %s", ufunc.FullName())
	}
	if ufunc.Capacity != 6 {
		t.Errorf("capacity default = %d, want 6", ufunc.Capacity)
	}
	want := []CallableSpec{
		{Signature: "double -> double", Symbol: "sin", Flags: []string{"may_signal_error"}},
		{Signature: "i:i", Symbol: "neg"},
	}
	if diff := cmp.Diff(want, ufunc.Callables); diff != "" {
		t.Errorf("callables (-want +got):\n%s", diff)
	}

	d, err := m.Reclaim.IntervalDuration()
	if err != nil || d != 20*time.Millisecond {
		t.Errorf("interval = %v, %v", d, err)
	}
	if !m.Reclaim.BackgroundEnabled() {
		t.Error("background collection should default to on")
	}
}

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte(`
[provider]
name = "p"

[[type]]
name = "T"

  [[type.slot]]
  id = "01:0001:v1"
  value = 3
`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Provider.Capacity != DefaultCapacity || m.Types[0].Capacity != DefaultCapacity {
		t.Errorf("capacity defaults: %d, %d", m.Provider.Capacity, m.Types[0].Capacity)
	}
	if m.Types[0].Slots[0].Kind != "offset" {
		t.Errorf("slot kind default = %q", m.Types[0].Slots[0].Kind)
	}
	if d, _ := m.Reclaim.IntervalDuration(); d != reclaim.DefaultInterval {
		t.Errorf("interval default = %v", d)
	}
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"missing provider", `[[type]]
name = "T"`},
		{"unknown key", `[provider]
name = "p"
colour = "red"`},
		{"bad slot kind", `[provider]
name = "p"
[[type]]
name = "T"
  [[type.slot]]
  id = "01:0001:v1"
  kind = "function"`},
		{"bad id", `[provider]
name = "p"
[[type]]
name = "T"
  [[type.slot]]
  id = "one"`},
		{"bad flag", `[provider]
name = "p"
[[type]]
name = "T"
  [[type.callable]]
  signature = "d:d"
  symbol = "sin"
  flags = ["fast"]`},
		{"bad type name", `[provider]
name = "p"
[[type]]
name = "no spaces"`},
		{"negative capacity", `[provider]
name = "p"
capacity = -1`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.toml))
			if err == nil || !strings.Contains(err.Error(), "schema") {
				t.Errorf("got %v, want schema error", err)
			}
		})
	}
}

func TestParseBadInterval(t *testing.T) {
	_, err := Parse([]byte(`[provider]
name = "p"
[reclaim]
interval = "soon"`))
	if err == nil {
		t.Error("expected interval error")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want typeslot.ID
		ok   bool
	}{
		{"skip", typeslot.Skip, true},
		{"02:0001:v1", typeslot.Allocated(typeslot.RegistrarCore, 1, 1), true},
		{"0x04000205", typeslot.Allocated(typeslot.RegistrarNumba, 2, 2), true},
		{"0x04000204", 0, false},
		{"02:0001:v200", 0, false},
		{"02:0001", 0, false},
		{"zz:0001:v1", 0, false},
	}
	for _, tc := range tests {
		got, err := ParseID(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseID(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseID(%q) should fail", tc.in)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[provider]\nname = \"up\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Provider.Name != "up" {
		t.Fatalf("FindAndLoad = %+v", m)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestCallableFlags(t *testing.T) {
	c := CallableSpec{Flags: []string{"requires_exclusive"}, ABIVersion: 2}
	f, err := c.CallableFlags()
	if err != nil {
		t.Fatal(err)
	}
	if !f.Has(callable.RequiresExclusive) || f.Version() != 2 {
		t.Errorf("flags = %v", f)
	}
}
