// Package settings implements the settings store (spec C8): a single-file
// read-through cache over EngineSettings with atomic writes.
//
// Grounded on the teacher's preference for atomic file replacement when
// persisting state that other processes or a crash must never observe
// half-written (the teacher carries github.com/moby/sys/atomicwriter as a
// direct dependency for exactly this purpose in its config/model-store
// persistence paths). The read-through cache shape follows
// leo-pony-model-runner's memory.systemMemoryInfo pattern of "sample once,
// serve from memory, refresh explicitly."
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

const filePerm = 0o600

// Store is a single-file, read-through EngineSettings cache. The zero value
// is not usable; construct with New.
type Store struct {
	log  logging.Logger
	path string

	mu       sync.Mutex
	snapshot engine.EngineSettings
}

// New constructs a Store backed by path, loading the current on-disk
// snapshot (or empty defaults if absent).
func New(log logging.Logger, path string) (*Store, error) {
	s := &Store{log: log, path: path}
	snapshot, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.snapshot = snapshot
	return s, nil
}

func (s *Store) readFile() (engine.EngineSettings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return engine.EmptySettings(), nil
	}
	if err != nil {
		return engine.EngineSettings{}, fmt.Errorf("settings: reading %s: %w", s.path, err)
	}

	var loaded engine.EngineSettings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return engine.EngineSettings{}, fmt.Errorf("settings: parsing %s: %w", s.path, err)
	}
	if loaded.SelectedRunners == nil {
		loaded.SelectedRunners = make(map[engine.Capability]string)
	}
	if loaded.RunnerParameters == nil {
		loaded.RunnerParameters = make(map[string]map[string]any)
	}
	return loaded, nil
}

// Current returns the cached EngineSettings snapshot (spec.md §4.8 `load()`
// without touching disk again; the snapshot was already populated at
// construction and kept current by every successful Save).
func (s *Store) Current() engine.EngineSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Save atomically persists snapshot (write-temp-then-rename via
// atomicwriter.WriteFile) and, only on success, updates the in-memory
// cache. A failed write leaves Current() returning the previous snapshot
// (spec.md §4.8: "the in-memory snapshot is not updated on failed
// writes"), and the error is returned to the caller as a recoverable
// RunnerError.
func (s *Store) Save(snapshot engine.EngineSettings) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return engine.NewProcessingError("settings: failed to encode snapshot", false, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicwriter.WriteFile(s.path, data, filePerm); err != nil {
		s.log.Warnf("settings: atomic write to %s failed: %v", s.path, err)
		return engine.NewProcessingError("settings: failed to persist snapshot", true, err)
	}

	s.snapshot = snapshot.Clone()
	return nil
}
