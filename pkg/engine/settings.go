package engine

// EngineSettings is the persistent, per-capability runner selection plus
// per-runner parameter overrides. No field is required; missing entries
// fall back to defaults.
type EngineSettings struct {
	SelectedRunners  map[Capability]string         `json:"selected_runners"`
	RunnerParameters map[string]map[string]any     `json:"runner_parameters"`
}

// EmptySettings returns a zero-value EngineSettings with initialized maps,
// used when no persisted settings file exists yet.
func EmptySettings() EngineSettings {
	return EngineSettings{
		SelectedRunners:  make(map[Capability]string),
		RunnerParameters: make(map[string]map[string]any),
	}
}

// Clone returns a deep copy of s so that callers can mutate their copy
// without aliasing the store's in-memory snapshot.
func (s EngineSettings) Clone() EngineSettings {
	out := EngineSettings{
		SelectedRunners:  make(map[Capability]string, len(s.SelectedRunners)),
		RunnerParameters: make(map[string]map[string]any, len(s.RunnerParameters)),
	}
	for k, v := range s.SelectedRunners {
		out.SelectedRunners[k] = v
	}
	for runner, params := range s.RunnerParameters {
		cp := make(map[string]any, len(params))
		for k, v := range params {
			cp[k] = v
		}
		out.RunnerParameters[runner] = cp
	}
	return out
}

// ParametersFor returns the persisted parameter map for runner, or an empty
// map if none is set.
func (s EngineSettings) ParametersFor(runner string) map[string]any {
	if p, ok := s.RunnerParameters[runner]; ok {
		return p
	}
	return map[string]any{}
}
