// Package manifest handles sep.toml provider manifests: the types a
// provider defines, the capabilities each declares, and the native
// callables it publishes.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dagss/sep/callable"
	"github.com/dagss/sep/reclaim"
	"github.com/dagss/sep/typeslot"
)

// FileName is the manifest file looked for in a provider directory.
const FileName = "sep.toml"

// DefaultCapacity is the slot capacity of types that do not set one.
const DefaultCapacity = 8

// Manifest represents a sep.toml provider manifest.
type Manifest struct {
	Provider ProviderInfo  `toml:"provider"`
	Reclaim  ReclaimConfig `toml:"reclaim"`
	Types    []TypeSpec    `toml:"type"`

	// Path is the file the manifest was read from (set at load time).
	Path string `toml:"-"`
}

// ProviderInfo contains provider metadata and defaults for its types.
type ProviderInfo struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
	Capacity  int    `toml:"capacity"`
}

// ReclaimConfig configures collection of superseded callable tables.
type ReclaimConfig struct {
	Interval   string `toml:"interval"`
	Background *bool  `toml:"background"`
}

// TypeSpec declares one type.
type TypeSpec struct {
	Name      string         `toml:"name"`
	Namespace string         `toml:"namespace"`
	Base      string         `toml:"base"`
	Capacity  int            `toml:"capacity"`
	Slots     []SlotSpec     `toml:"slot"`
	Callables []CallableSpec `toml:"callable"`
}

// SlotSpec declares one capability entry.
type SlotSpec struct {
	ID     string `toml:"id"`
	Kind   string `toml:"kind"` // offset, flags, symbol or skip
	Value  uint64 `toml:"value"`
	Symbol string `toml:"symbol"`
}

// CallableSpec declares one native callable.
type CallableSpec struct {
	Signature  string   `toml:"signature"`
	Symbol     string   `toml:"symbol"`
	Flags      []string `toml:"flags"`
	ABIVersion uint8    `toml:"abi_version"`
}

// Load parses the sep.toml file in dir.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a manifest file.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Defaults
	if m.Provider.Capacity == 0 {
		m.Provider.Capacity = DefaultCapacity
	}
	for i := range m.Types {
		t := &m.Types[i]
		if t.Namespace == "" {
			t.Namespace = m.Provider.Namespace
		}
		if t.Capacity == 0 {
			t.Capacity = m.Provider.Capacity
		}
		for j := range t.Slots {
			if t.Slots[j].Kind == "" {
				t.Slots[j].Kind = "offset"
			}
		}
	}
	if _, err := m.Reclaim.IntervalDuration(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a sep.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// FullName returns the namespace-qualified name of the type.
func (t *TypeSpec) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "::" + t.Name
}

// IntervalDuration returns the configured collection interval, or
// reclaim.DefaultInterval.
func (c ReclaimConfig) IntervalDuration() (time.Duration, error) {
	if c.Interval == "" {
		return reclaim.DefaultInterval, nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("reclaim interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("reclaim interval must be positive, got %s", c.Interval)
	}
	return d, nil
}

// BackgroundEnabled reports whether a background reclaimer should run.
// It defaults to true.
func (c ReclaimConfig) BackgroundEnabled() bool {
	return c.Background == nil || *c.Background
}

// ParseID parses a slot id as written in manifests: "skip", a hex word
// such as "0x02000103", or registrar:concept:version as printed by
// typeslot.ID, e.g. "02:0001:v1".
func ParseID(s string) (typeslot.ID, error) {
	if s == "skip" {
		return typeslot.Skip, nil
	}
	if strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad slot id %q: %w", s, err)
		}
		id := typeslot.ID(v)
		if !id.IsAllocated() {
			return 0, fmt.Errorf("bad slot id %q: not an allocated id", s)
		}
		return id, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "v") {
		return 0, fmt.Errorf("bad slot id %q: want registrar:concept:vN", s)
	}
	r, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("bad registrar in %q: %w", s, err)
	}
	c, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad concept in %q: %w", s, err)
	}
	v, err := strconv.ParseUint(parts[2][1:], 10, 8)
	if err != nil || v > typeslot.MaxVersion {
		return 0, fmt.Errorf("bad version in %q", s)
	}
	return typeslot.Allocated(typeslot.Registrar(r), uint16(c), uint8(v)), nil
}

// CallableFlags returns the flags word of a callable declaration.
func (c *CallableSpec) CallableFlags() (callable.Flags, error) {
	f, err := callable.ParseFlags(c.Flags)
	if err != nil {
		return 0, err
	}
	return f.WithVersion(c.ABIVersion), nil
}
