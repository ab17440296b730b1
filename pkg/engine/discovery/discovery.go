// Package discovery walks the compile-time runner catalog, filters it down
// to the descriptors the current host can actually support, instantiates
// the survivors, and registers them (spec C3).
//
// Grounded on the teacher's main.go backend-construction sequence
// (construct a backend -> check platform support via pkg/inference/platform
// -> register into the backends map), generalized from the teacher's two
// platform checks (SupportsVLLM, SupportsMLX) into the full
// engine.HardwareRequirement set, with the memory-tier probe shape taken
// from leo-pony-model-runner's pkg/inference/memory.systemMemoryInfo.
package discovery

import (
	"context"
	"fmt"

	"github.com/elastic/go-sysinfo"
	"github.com/jaypipes/ghw"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/metrics"
	"github.com/edgerunner/engine/pkg/engine/registry"
	"github.com/edgerunner/engine/pkg/logging"
)

// Memory tier thresholds, in bytes. A host clears HIGH_MEMORY at 8GiB+,
// MEDIUM_MEMORY at 4GiB+; any non-zero RAM reading clears LOW_MEMORY.
const (
	highMemoryThreshold   = 8 << 30
	mediumMemoryThreshold = 4 << 30
)

// Storage tier thresholds, in bytes.
const (
	largeStorageThreshold  = 64 << 30
	mediumStorageThreshold = 16 << 30
)

// HostProbe reports the hardware facts discovery gates registration on. A
// single probe instance is reused across Run calls; its values are sampled
// once at construction (spec.md does not require re-probing mid-session,
// only a fresh pass on Reinitialize, which is handed its HostProbe by the
// caller).
type HostProbe struct {
	TotalRAM     uint64
	TotalStorage uint64
	CPUCores     uint32
	HasNPU       bool
	HasMic       bool
	HasCamera    bool
	HasInternet  bool
}

// ProbeHost samples the running host via go-sysinfo (RAM) and ghw
// (storage, CPU). Peripheral probes (microphone, camera, internet
// reachability, NPU presence) have no portable cross-platform library in
// the examples pack; callers inject them via overrides, defaulting to false
// so a descriptor requiring them is never wrongly registered on a host that
// cannot actually support it.
func ProbeHost(log logging.Logger, overrides HostProbe) (HostProbe, error) {
	probe := overrides

	host, err := sysinfo.Host()
	if err != nil {
		log.Warnf("discovery: could not read host info: %v", err)
	} else if mem, err := host.Memory(); err != nil {
		log.Warnf("discovery: could not read RAM size: %v", err)
	} else {
		probe.TotalRAM = mem.Total
	}

	if block, err := ghw.Block(); err != nil {
		log.Warnf("discovery: could not read storage info: %v", err)
	} else {
		probe.TotalStorage = block.TotalPhysicalBytes
	}

	if cpu, err := ghw.CPU(); err != nil {
		log.Warnf("discovery: could not read CPU info: %v", err)
	} else {
		probe.CPUCores = cpu.TotalCores
	}

	return probe, nil
}

// Supports reports whether probe satisfies req.
func (probe HostProbe) Supports(req engine.HardwareRequirement) bool {
	switch req {
	case engine.HardwareMTKNPU:
		return probe.HasNPU
	case engine.HardwareHighMemory:
		return probe.TotalRAM >= highMemoryThreshold
	case engine.HardwareMediumMemory:
		return probe.TotalRAM >= mediumMemoryThreshold
	case engine.HardwareLowMemory:
		return probe.TotalRAM > 0
	case engine.HardwareLargeStorage:
		return probe.TotalStorage >= largeStorageThreshold
	case engine.HardwareMediumStorage:
		return probe.TotalStorage >= mediumStorageThreshold
	case engine.HardwareInternet:
		return probe.HasInternet
	case engine.HardwareMicrophone:
		return probe.HasMic
	case engine.HardwareCamera:
		return probe.HasCamera
	case engine.HardwareCPU:
		return probe.CPUCores > 0
	default:
		return false
	}
}

// IsSupported reports whether probe satisfies every requirement d declares.
// A descriptor with no requirements is always supported.
func IsSupported(probe HostProbe, d engine.RunnerDescriptor) bool {
	for _, req := range d.HardwareRequirements {
		if !probe.Supports(req) {
			return false
		}
	}
	return true
}

// CatalogEntry pairs a descriptor with the factory that builds its runner
// instance. The catalog package assembles these at compile time from each
// runner package's init(); discovery treats the catalog as an opaque input.
type CatalogEntry struct {
	Descriptor engine.RunnerDescriptor
	Factory    engine.Factory
}

// Discoverer runs catalog filtering and registration against a Registry.
type Discoverer struct {
	log     logging.Logger
	reg     *registry.Registry
	catalog []CatalogEntry
	metrics *metrics.PromCollectors
}

// New builds a Discoverer over the given catalog entries. promCollectors may
// be nil, in which case skip counts are not recorded.
func New(log logging.Logger, reg *registry.Registry, catalog []CatalogEntry, promCollectors *metrics.PromCollectors) *Discoverer {
	return &Discoverer{log: log, reg: reg, catalog: catalog, metrics: promCollectors}
}

// Run filters the catalog down to descriptors the host supports, constructs
// a runner instance for each survivor, and registers it. Disabled
// descriptors (Enabled == false) are skipped before the hardware check.
// Factory errors are logged and the descriptor is skipped rather than
// aborting the whole pass: one bad runner must not prevent the rest of the
// catalog from registering.
func (d *Discoverer) Run(ctx context.Context, probe HostProbe) (registered, skipped int) {
	for _, entry := range d.catalog {
		if !entry.Descriptor.Enabled {
			d.log.Debugf("discovery: %q disabled, skipping", entry.Descriptor.Name)
			skipped++
			d.metrics.IncDiscoverySkipped()
			continue
		}
		if !IsSupported(probe, entry.Descriptor) {
			d.log.Infof("discovery: %q unsupported on this host, skipping", entry.Descriptor.Name)
			skipped++
			d.metrics.IncDiscoverySkipped()
			continue
		}

		instance, err := entry.Factory()
		if err != nil {
			d.log.Warnf("discovery: failed to construct %q: %v", entry.Descriptor.Name, err)
			skipped++
			d.metrics.IncDiscoverySkipped()
			continue
		}

		if !d.reg.Register(instance, entry.Descriptor) {
			skipped++
			d.metrics.IncDiscoverySkipped()
			continue
		}
		registered++
	}
	return registered, skipped
}

// Reinitialize clears the registry and re-runs discovery with a fresh host
// probe. Used when settings or environment changes invalidate the previous
// pass (e.g. a peripheral permission grant changes HasMic/HasCamera).
func (d *Discoverer) Reinitialize(ctx context.Context, probe HostProbe) (registered, skipped int, err error) {
	if ctx.Err() != nil {
		return 0, 0, fmt.Errorf("discovery: reinitialize aborted: %w", ctx.Err())
	}
	d.reg.Clear()
	registered, skipped = d.Run(ctx, probe)
	return registered, skipped, nil
}
