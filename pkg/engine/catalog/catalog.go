// Package catalog is the declarative runner catalog (spec.md §6 "Runner
// descriptor catalog"): a compile-time registration table populated by each
// runner package's init(), plus an external JSON/YAML loader for the same
// record shape ("Encoding may be inlined with the class ... or external").
//
// Grounded on the teacher's main.go, which builds its backends map by
// calling each backend package's constructor directly; generalized here
// into a self-registering table so pkg/runners/* packages need no
// knowledge of main.go, mirroring the blank-import + init() registration
// idiom the go ecosystem uses for driver-style plugins (database/sql
// drivers, image format decoders).
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/discovery"
)

var (
	mu      sync.Mutex
	entries []discovery.CatalogEntry
)

// Register adds an entry to the process-wide compile-time catalog. Runner
// packages call this from their init(); it must not be called after
// discovery has read Entries().
func Register(descriptor engine.RunnerDescriptor, factory engine.Factory) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, discovery.CatalogEntry{Descriptor: descriptor, Factory: factory})
}

// Entries returns a snapshot of every compile-time registered entry.
func Entries() []discovery.CatalogEntry {
	mu.Lock()
	defer mu.Unlock()
	out := make([]discovery.CatalogEntry, len(entries))
	copy(out, entries)
	return out
}

// record is the external-file shape from spec.md §6's example. Factory
// construction for externally-declared descriptors is resolved by name
// against a caller-supplied factory registry (external records describe
// runners the binary already links; the file only tunes their
// descriptor fields).
type record struct {
	Name                 string   `json:"name" yaml:"name"`
	Vendor               string   `json:"vendor" yaml:"vendor"`
	Priority             string   `json:"priority" yaml:"priority"`
	Capabilities         []string `json:"capabilities" yaml:"capabilities"`
	HardwareRequirements []string `json:"hardware_requirements" yaml:"hardware_requirements"`
	Enabled              bool     `json:"enabled" yaml:"enabled"`
	DefaultModelID       string   `json:"default_model_id" yaml:"default_model_id"`
	APILevel             int      `json:"api_level" yaml:"api_level"`
}

func (r record) toDescriptor() engine.RunnerDescriptor {
	caps := make([]engine.Capability, 0, len(r.Capabilities))
	for _, c := range r.Capabilities {
		caps = append(caps, engine.Capability(c))
	}
	reqs := make([]engine.HardwareRequirement, 0, len(r.HardwareRequirements))
	for _, h := range r.HardwareRequirements {
		reqs = append(reqs, engine.HardwareRequirement(h))
	}
	return engine.RunnerDescriptor{
		Name:                 r.Name,
		Vendor:               engine.Vendor(r.Vendor),
		Priority:             parsePriority(r.Priority),
		Capabilities:         caps,
		HardwareRequirements: reqs,
		Enabled:              r.Enabled,
		DefaultModelID:       r.DefaultModelID,
		APILevel:             r.APILevel,
	}
}

func parsePriority(s string) engine.Priority {
	switch strings.ToUpper(s) {
	case "HIGH":
		return engine.PriorityHigh
	case "LOW":
		return engine.PriorityLow
	default:
		return engine.PriorityNormal
	}
}

// LoadFile reads an external catalog file (JSON or YAML, chosen by
// extension) and returns its descriptors. factories maps each descriptor's
// Name to the engine.Factory the binary links for it; a record naming a
// factory that isn't present is skipped with an error collected in the
// returned slice rather than aborting the whole load.
func LoadFile(path string, factories map[string]engine.Factory) ([]discovery.CatalogEntry, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("catalog: reading %s: %w", path, err)}
	}

	var records []record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &records)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &records)
	default:
		return nil, []error{fmt.Errorf("catalog: unrecognized extension for %s", path)}
	}
	if err != nil {
		return nil, []error{fmt.Errorf("catalog: parsing %s: %w", path, err)}
	}

	var out []discovery.CatalogEntry
	var errs []error
	for _, r := range records {
		factory, ok := factories[r.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("catalog: no linked factory for runner %q", r.Name))
			continue
		}
		out = append(out, discovery.CatalogEntry{Descriptor: r.toDescriptor(), Factory: factory})
	}
	return out, errs
}
