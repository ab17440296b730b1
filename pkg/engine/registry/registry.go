// Package registry implements the runner registry (spec C2): an in-memory
// index of runner instances by name and by capability.
//
// Grounded on the teacher's Scheduler.backends map[string]inference.Backend
// plus its derived defaultBackend, generalized into the dual by-name/
// by-capability index spec.md §4.2 calls for. A plain map guarded by a
// sync.RWMutex is the required-stdlib choice here: no map/index library in
// the examples pack offers anything beyond what the standard library gives
// for an in-process name -> value index.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

type entry struct {
	instance   engine.Runner
	descriptor engine.RunnerDescriptor
}

// Registry indexes runner instances by name and by capability.
type Registry struct {
	log logging.Logger

	mu           sync.RWMutex
	byName       map[string]entry
	byCapability map[engine.Capability][]string
}

// New creates an empty Registry.
func New(log logging.Logger) *Registry {
	return &Registry{
		log:          log,
		byName:       make(map[string]entry),
		byCapability: make(map[engine.Capability][]string),
	}
}

// Register indexes instance under descriptor.Name, rebuilding the affected
// capability lists. If a descriptor with the same name was already
// registered, the new registration wins and the collision is logged (spec
// invariant: two descriptors with the same name collide, later wins).
//
// Register refuses to index instance if instance.Capabilities() is not a
// superset of descriptor.Capabilities (capability soundness): a live
// instance must be able to actually do everything its static descriptor
// advertises. On violation it logs and returns false without registering.
func (r *Registry) Register(instance engine.Runner, descriptor engine.RunnerDescriptor) bool {
	if !isSuperset(instance.Capabilities(), descriptor.Capabilities) {
		r.log.Errorf("registry: %q instance capabilities %v are not a superset of descriptor capabilities %v, refusing to register", descriptor.Name, instance.Capabilities(), descriptor.Capabilities)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[descriptor.Name]; exists {
		r.log.Warnf("registry: runner name %q already registered, overwriting", descriptor.Name)
		for c, names := range r.byCapability {
			r.byCapability[c] = removeName(names, descriptor.Name)
		}
	}
	r.byName[descriptor.Name] = entry{instance: instance, descriptor: descriptor.Clone()}

	for _, c := range descriptor.Capabilities {
		r.insertSorted(c, descriptor)
	}
	return true
}

// isSuperset reports whether every capability in want is present in have.
func isSuperset(have, want []engine.Capability) bool {
	set := make(map[engine.Capability]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

// insertSorted inserts descriptor.Name into byCapability[c], keeping the
// list ordered by priority resolver scoring tie-break (name ascending is
// enough here; the priority resolver itself re-scores at selection time).
// Callers must hold r.mu.
func (r *Registry) insertSorted(c engine.Capability, descriptor engine.RunnerDescriptor) {
	names := r.byCapability[c]
	for _, n := range names {
		if n == descriptor.Name {
			return
		}
	}
	names = append(names, descriptor.Name)
	sort.Strings(names)
	r.byCapability[c] = names
}

// Unregister unloads the instance (best effort) and evicts it from both
// indexes.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	e, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byName, name)
	for c, names := range r.byCapability {
		r.byCapability[c] = removeName(names, name)
	}
	r.mu.Unlock()

	if e.instance != nil {
		if err := e.instance.Unload(context.Background()); err != nil {
			r.log.Warnf("registry: best-effort unload of %q failed: %v", name, err)
		}
	}
}

func removeName(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// GetByName returns the instance and descriptor registered under name.
func (r *Registry) GetByName(name string) (engine.Runner, engine.RunnerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, engine.RunnerDescriptor{}, false
	}
	return e.instance, e.descriptor.Clone(), true
}

// Candidate is one runner available for a capability.
type Candidate struct {
	Name       string
	Instance   engine.Runner
	Descriptor engine.RunnerDescriptor
}

// GetAllByCapability returns the candidates registered for capability c,
// ordered by name.
func (r *Registry) GetAllByCapability(c engine.Capability) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.byCapability[c]
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		e := r.byName[n]
		out = append(out, Candidate{Name: n, Instance: e.instance, Descriptor: e.descriptor.Clone()})
	}
	return out
}

// GetAll returns every registered descriptor, keyed by name.
func (r *Registry) GetAll() map[string]engine.RunnerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]engine.RunnerDescriptor, len(r.byName))
	for name, e := range r.byName {
		out[name] = e.descriptor.Clone()
	}
	return out
}

// SupportedCapabilities returns every capability with at least one
// registered runner.
func (r *Registry) SupportedCapabilities() []engine.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]engine.Capability, 0, len(r.byCapability))
	for c, names := range r.byCapability {
		if len(names) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Clear removes every registered runner, without unloading them. Used by
// Reinitialize before a fresh discovery pass.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]entry)
	r.byCapability = make(map[engine.Capability][]string)
}
