// Package manager implements the engine manager (spec C5): the thread-safe
// facade that turns (capability, optional preferred runner, request) into a
// Result or a stream of Results, owning the active-runner cache and the
// default-runner-per-capability map.
//
// Grounded on the teacher's Scheduler (pkg/inference/scheduling/scheduler.go)
// — same "hold a map of backends plus a derived default, serialize
// construction, dispatch a request to the resolved one" shape — generalized
// from a single defaultBackend to a per-capability default map, and from
// format-based backend selection (selectBackendForModel) to the full
// selection algorithm (preferred -> default -> priority resolver).
package manager

import (
	"context"
	"sync"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/metrics"
	"github.com/edgerunner/engine/pkg/engine/priority"
	"github.com/edgerunner/engine/pkg/engine/registry"
	"github.com/edgerunner/engine/pkg/internal/utils"
	"github.com/edgerunner/engine/pkg/logging"
)

// SettingsSource supplies the current persisted settings used for lazy
// loads. pkg/engine/settings.Store satisfies this.
type SettingsSource interface {
	Current() engine.EngineSettings
}

// Manager is the engine manager. The zero value is not usable; construct
// with New.
type Manager struct {
	log      logging.Logger
	reg      *registry.Registry
	settings SettingsSource
	otel     *metrics.OTelMetrics

	mu             sync.RWMutex
	defaultRunners map[engine.Capability]string
	activeRunners  map[string]engine.Runner

	loadLocksMu sync.Mutex
	loadLocks   map[string]*sync.Mutex

	inFlightMu sync.Mutex
	inFlight   map[string]*sync.WaitGroup

	cancelMu      sync.Mutex
	cancelHandles map[string]context.CancelFunc
}

// New constructs a Manager backed by reg. settings supplies the effective
// EngineSettings consulted on lazy load. otel may be nil, in which case load
// and reload outcomes are not recorded.
func New(log logging.Logger, reg *registry.Registry, settings SettingsSource, otel *metrics.OTelMetrics) *Manager {
	return &Manager{
		log:            log,
		reg:            reg,
		settings:       settings,
		otel:           otel,
		defaultRunners: make(map[engine.Capability]string),
		activeRunners:  make(map[string]engine.Runner),
		loadLocks:      make(map[string]*sync.Mutex),
		inFlight:       make(map[string]*sync.WaitGroup),
		cancelHandles:  make(map[string]context.CancelFunc),
	}
}

// SetDefaults replaces the per-capability default runner map, typically
// called from the reload manager after settings change.
func (m *Manager) SetDefaults(defaults map[engine.Capability]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultRunners = make(map[engine.Capability]string, len(defaults))
	for c, name := range defaults {
		m.defaultRunners[c] = name
	}
}

// Defaults returns a copy of the current per-capability default runner map.
func (m *Manager) Defaults() map[engine.Capability]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[engine.Capability]string, len(m.defaultRunners))
	for c, name := range m.defaultRunners {
		out[c] = name
	}
	return out
}

// resolve implements the selection algorithm's naming step (spec.md §4.5
// steps 1-3): preferred, else default, else priority resolver. It returns
// the chosen runner name or a selection error.
func (m *Manager) resolve(capability engine.Capability, preferred string) (string, *engine.RunnerError) {
	if preferred != "" {
		if _, _, ok := m.reg.GetByName(preferred); !ok {
			return "", engine.NewRunnerNotFoundError(preferred)
		}
		return preferred, nil
	}

	m.mu.RLock()
	defaultName, hasDefault := m.defaultRunners[capability]
	m.mu.RUnlock()
	if hasDefault {
		if _, _, ok := m.reg.GetByName(defaultName); ok {
			return defaultName, nil
		}
	}

	candidates := m.reg.GetAllByCapability(capability)
	if len(candidates) == 0 {
		return "", engine.NewRunnerNotFoundError(string(capability))
	}
	return priority.Resolve(candidates).Name, nil
}

// loadLockFor returns the per-instance mutex serializing Load/Unload calls
// for name, creating it on first use.
func (m *Manager) loadLockFor(name string) *sync.Mutex {
	m.loadLocksMu.Lock()
	defer m.loadLocksMu.Unlock()
	lock, ok := m.loadLocks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.loadLocks[name] = lock
	}
	return lock
}

// wgFor returns the WaitGroup tracking in-flight Run/RunAsFlow calls against
// name's instance, creating it on first use. Reload waits on this to drain
// before unloading, so it never pulls an instance out from under a request
// that already started on it.
func (m *Manager) wgFor(name string) *sync.WaitGroup {
	m.inFlightMu.Lock()
	defer m.inFlightMu.Unlock()
	wg, ok := m.inFlight[name]
	if !ok {
		wg = &sync.WaitGroup{}
		m.inFlight[name] = wg
	}
	return wg
}

// getOrCreateRunner implements the full selection algorithm (spec.md §4.5
// steps 1-6): resolve a name, verify capability support, and ensure the
// instance is loaded, using double-checked locking against activeRunners so
// concurrent callers for the same name do not race to load it twice. The
// returned release func marks this call's use of the instance as finished;
// it must be called exactly once the caller is done running against the
// instance (spec.md §9: in-flight requests run to completion on the instance
// they started on, even if a concurrent Reload swaps it out).
func (m *Manager) getOrCreateRunner(ctx context.Context, capability engine.Capability, preferred string) (engine.Runner, func(), *engine.RunnerError) {
	name, selErr := m.resolve(capability, preferred)
	if selErr != nil {
		return nil, nil, selErr
	}

	instance, descriptor, ok := m.reg.GetByName(name)
	if !ok {
		return nil, nil, engine.NewRunnerNotFoundError(name)
	}
	if !descriptor.HasCapability(capability) {
		return nil, nil, engine.NewCapabilityUnsupportedError(name, capability)
	}

	m.mu.RLock()
	_, active := m.activeRunners[name]
	if active && instance.IsLoaded() {
		wg := m.wgFor(name)
		wg.Add(1)
		m.mu.RUnlock()
		return instance, wg.Done, nil
	}
	m.mu.RUnlock()

	lock := m.loadLockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if instance.IsLoaded() {
		m.mu.Lock()
		m.activeRunners[name] = instance
		m.mu.Unlock()
		wg := m.wgFor(name)
		wg.Add(1)
		return instance, wg.Done, nil
	}

	settings := m.settings.Current()
	modelID := descriptor.DefaultModelID
	initialParams := settings.ParametersFor(name)

	loaded, err := instance.Load(ctx, modelID, settings, initialParams)
	if err != nil {
		m.log.Warnf("manager: load of %q with model %q failed: %v", name, utils.SanitizeForLog(modelID), err)
		m.otel.RecordLoad(ctx, name, "error")
		return nil, nil, engine.NewLoadFailedError(name, err)
	}
	if !loaded {
		m.log.Warnf("manager: load of %q with model %q returned false", name, utils.SanitizeForLog(modelID))
		m.otel.RecordLoad(ctx, name, "failed")
		return nil, nil, engine.NewLoadFailedError(name, nil)
	}
	m.otel.RecordLoad(ctx, name, "success")

	m.mu.Lock()
	m.activeRunners[name] = instance
	m.mu.Unlock()
	wg := m.wgFor(name)
	wg.Add(1)
	return instance, wg.Done, nil
}

// Process runs request synchronously against the resolved runner for
// capability (spec.md §4.5 "Processing contract").
func (m *Manager) Process(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) (result engine.Result) {
	instance, release, selErr := m.getOrCreateRunner(ctx, capability, preferred)
	if selErr != nil {
		return engine.ErrorResult(selErr)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("manager: runner %v panicked during Run: %v", capability, r)
			result = engine.ErrorResult(engine.NewRuntimeError(nil))
		}
	}()

	return instance.Run(ctx, request)
}

// ProcessStream runs request against the resolved runner's streaming mode.
// If selection fails, or the runner does not implement streaming, the
// returned stream yields exactly one terminal error Result.
func (m *Manager) ProcessStream(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) engine.ResultStream {
	instance, release, selErr := m.getOrCreateRunner(ctx, capability, preferred)
	if selErr != nil {
		return newSingleResultStream(engine.ErrorResult(selErr))
	}

	stream, err := instance.RunAsFlow(ctx, request)
	if err != nil {
		release()
		if rerr, ok := err.(*engine.RunnerError); ok {
			return newSingleResultStream(engine.ErrorResult(rerr))
		}
		return newSingleResultStream(engine.ErrorResult(engine.NewRuntimeError(err)))
	}
	rs := &releasingStream{inner: stream, release: release}
	context.AfterFunc(ctx, func() { rs.once.Do(rs.release) })
	return rs
}

// Track registers a cancellation handle for requestID, deriving a
// cancellable context from ctx. The returned release func must be called
// once the request completes (successfully, with error, or cancelled) to
// free the handle; calling it is idempotent.
func (m *Manager) Track(ctx context.Context, requestID string) (context.Context, func()) {
	trackedCtx, cancel := context.WithCancel(ctx)

	m.cancelMu.Lock()
	m.cancelHandles[requestID] = cancel
	m.cancelMu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.cancelMu.Lock()
			delete(m.cancelHandles, requestID)
			m.cancelMu.Unlock()
			cancel()
		})
	}
	return trackedCtx, release
}

// Cancel signals the tracked cancellation handle for requestID, returning
// whether a live handle was found.
func (m *Manager) Cancel(requestID string) bool {
	m.cancelMu.Lock()
	cancel, ok := m.cancelHandles[requestID]
	m.cancelMu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Reload unloads name's instance (if currently loaded) under its
// per-instance load lock and evicts it from the active-runner cache, but
// first drains every already-started Process/ProcessStream call against it
// (spec.md §9: in-flight requests complete on the instance they started on;
// only new requests observe the reload). Evicting activeRunners before
// draining closes the window where a fresh caller could still acquire the
// soon-to-be-unloaded instance through getOrCreateRunner's fast path. If
// eager is true the instance is immediately reloaded with the current
// settings; otherwise the next request reloads it lazily through
// getOrCreateRunner. Used by the reload manager (spec.md §4.7 step 2).
func (m *Manager) Reload(ctx context.Context, name string, eager bool) *engine.RunnerError {
	instance, descriptor, ok := m.reg.GetByName(name)
	if !ok {
		return engine.NewRunnerNotFoundError(name)
	}

	lock := m.loadLockFor(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.activeRunners, name)
	m.mu.Unlock()

	m.wgFor(name).Wait()

	if instance.IsLoaded() {
		if err := instance.Unload(ctx); err != nil {
			m.log.Warnf("manager: reload unload of %q failed: %v", name, err)
		}
	}

	if !eager {
		m.otel.RecordReload(ctx, name, "unloaded")
		return nil
	}

	settings := m.settings.Current()
	loaded, err := instance.Load(ctx, descriptor.DefaultModelID, settings, settings.ParametersFor(name))
	if err != nil {
		m.otel.RecordReload(ctx, name, "error")
		return engine.NewLoadFailedError(name, err)
	}
	if !loaded {
		m.otel.RecordReload(ctx, name, "failed")
		return engine.NewLoadFailedError(name, nil)
	}

	m.mu.Lock()
	m.activeRunners[name] = instance
	m.mu.Unlock()
	m.otel.RecordReload(ctx, name, "success")
	return nil
}

// UnloadAllModels best-effort unloads every active instance. The registry
// keeps each instance, so a subsequent request re-loads it lazily. In-flight
// requests are not cancelled: under its per-instance load lock, each instance
// is evicted from the active-runner cache and its already-started requests
// are drained before it is unloaded.
func (m *Manager) UnloadAllModels(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.activeRunners))
	for name := range m.activeRunners {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		m.unloadOne(ctx, name)
	}
}

// ForceCleanupAll cancels every tracked in-flight request, then unloads and
// clears the active-runner map. Used on abnormal shutdown. Individual
// failures are logged and swallowed.
func (m *Manager) ForceCleanupAll(ctx context.Context) {
	m.cancelMu.Lock()
	for id, cancel := range m.cancelHandles {
		cancel()
		delete(m.cancelHandles, id)
	}
	m.cancelMu.Unlock()

	m.mu.Lock()
	names := make([]string, 0, len(m.activeRunners))
	for name := range m.activeRunners {
		names = append(names, name)
	}
	m.activeRunners = make(map[string]engine.Runner)
	m.mu.Unlock()

	for _, name := range names {
		lock := m.loadLockFor(name)
		lock.Lock()
		m.unloadInstance(ctx, name)
		lock.Unlock()
	}
}

func (m *Manager) unloadOne(ctx context.Context, name string) {
	lock := m.loadLockFor(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.activeRunners, name)
	m.mu.Unlock()

	m.wgFor(name).Wait()
	m.unloadInstance(ctx, name)
}

func (m *Manager) unloadInstance(ctx context.Context, name string) {
	instance, _, ok := m.reg.GetByName(name)
	if !ok || instance == nil {
		return
	}
	if err := instance.Unload(ctx); err != nil {
		m.log.Warnf("manager: unload of %q failed: %v", name, err)
	}
}

// singleResultStream yields exactly one Result then ends. Used to surface
// selection/mode errors through the ResultStream interface.
type singleResultStream struct {
	result engine.Result
	done   bool
}

func newSingleResultStream(result engine.Result) *singleResultStream {
	return &singleResultStream{result: result}
}

func (s *singleResultStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.done {
		return engine.Result{}, false
	}
	s.done = true
	return s.result, true
}

// releasingStream wraps a runner's ResultStream so the instance's in-flight
// refcount is held for the stream's entire lifetime and released exactly
// once, whether the stream runs to completion or the caller abandons it
// mid-stream via context cancellation.
type releasingStream struct {
	inner   engine.ResultStream
	release func()
	once    sync.Once
}

func (s *releasingStream) Next(ctx context.Context) (engine.Result, bool) {
	result, ok := s.inner.Next(ctx)
	if !ok || !result.Partial {
		s.once.Do(s.release)
	}
	return result, ok
}
