// Package reload implements the reload manager (spec C7): it observes a
// settings transition, figures out which runners it invalidates, and
// schedules their unload/reload without disturbing unaffected in-flight
// work.
//
// Grounded on the teacher's ResetInstaller (Scheduler.ResetInstaller
// rebuilds the installer in place when its dependency, the http.Client,
// changes) — generalized from "one dependency changed, rebuild one
// component" to "diff two settings snapshots, rebuild exactly the runners
// the diff touches."
package reload

import (
	"context"
	"reflect"
	"sync"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

// RunnerManager is the subset of pkg/engine/manager.Manager the reload
// manager drives.
type RunnerManager interface {
	Defaults() map[engine.Capability]string
	SetDefaults(defaults map[engine.Capability]string)
	Reload(ctx context.Context, name string, eager bool) *engine.RunnerError
}

// Registry is the subset of pkg/engine/registry.Registry the reload manager
// consults to know which runners exist and whether they are loaded.
type Registry interface {
	GetAll() map[string]engine.RunnerDescriptor
	GetByName(name string) (engine.Runner, engine.RunnerDescriptor, bool)
}

// Result summarizes the outcome of one Apply call (spec.md §4.7 step 3).
type Result struct {
	Reloaded   []string
	Failed     map[string]*engine.RunnerError
	Unaffected []string
}

// Observer receives every Result produced by Apply.
type Observer func(Result)

// Manager computes and applies settings-triggered reloads.
type Manager struct {
	log     logging.Logger
	reg     Registry
	manager RunnerManager

	mu        sync.Mutex
	observers []Observer
}

// New constructs a reload Manager.
func New(log logging.Logger, reg Registry, runnerManager RunnerManager) *Manager {
	return &Manager{log: log, reg: reg, manager: runnerManager}
}

// Subscribe registers obs to be called with every future Result.
func (m *Manager) Subscribe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// changedRunners computes spec.md §4.7 step 1: runners whose persisted
// parameters differ, union'd with the old default runner for every
// capability whose selected runner changed.
func changedRunners(old, new engine.EngineSettings, oldDefaults map[engine.Capability]string) map[string]bool {
	changed := make(map[string]bool)

	names := make(map[string]bool)
	for name := range old.RunnerParameters {
		names[name] = true
	}
	for name := range new.RunnerParameters {
		names[name] = true
	}
	for name := range names {
		if !reflect.DeepEqual(old.RunnerParameters[name], new.RunnerParameters[name]) {
			changed[name] = true
		}
	}

	capabilities := make(map[engine.Capability]bool)
	for c := range old.SelectedRunners {
		capabilities[c] = true
	}
	for c := range new.SelectedRunners {
		capabilities[c] = true
	}
	for c := range capabilities {
		if old.SelectedRunners[c] != new.SelectedRunners[c] {
			if oldDefault, ok := oldDefaults[c]; ok && oldDefault != "" {
				changed[oldDefault] = true
			}
		}
	}

	return changed
}

// Apply computes the settings diff between old and new, reloads every
// currently-loaded affected runner, updates the manager's default-runner
// map to new.SelectedRunners, and notifies observers. It never cancels
// in-flight work (spec.md §4.7: "The reload manager never forces
// cancellation of in-flight work").
func (m *Manager) Apply(ctx context.Context, old, new engine.EngineSettings) Result {
	oldDefaults := m.manager.Defaults()
	changed := changedRunners(old, new, oldDefaults)

	isOldDefault := make(map[string]bool, len(oldDefaults))
	for _, name := range oldDefaults {
		isOldDefault[name] = true
	}

	result := Result{Failed: make(map[string]*engine.RunnerError)}
	touched := make(map[string]bool)

	for name := range changed {
		instance, _, ok := m.reg.GetByName(name)
		if !ok || instance == nil {
			continue
		}
		if !instance.IsLoaded() {
			continue
		}
		touched[name] = true

		if err := m.manager.Reload(ctx, name, isOldDefault[name]); err != nil {
			m.log.Warnf("reload: %q failed: %v", name, err)
			result.Failed[name] = err
			continue
		}
		result.Reloaded = append(result.Reloaded, name)
	}

	for name := range m.reg.GetAll() {
		if touched[name] {
			continue
		}
		result.Unaffected = append(result.Unaffected, name)
	}

	m.manager.SetDefaults(new.SelectedRunners)

	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()
	for _, obs := range observers {
		obs(result)
	}

	return result
}
