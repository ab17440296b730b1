// Package priority implements the deterministic runner selection rule
// (spec C4): given several candidates for one capability, pick exactly one.
//
// Grounded on the teacher's defaultBackend resolution in
// pkg/inference/scheduling (a single pass over registered backends picking
// the best by a fixed rule), generalized from "first vLLM, else llama.cpp"
// to a numeric score over vendor and declared priority. The resolver holds
// no state and touches nothing but its arguments, so it needs nothing from
// the examples pack beyond the standard library.
package priority

import (
	"sort"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/registry"
)

// Score computes vendor_index*10 + priority_value for d. Lower scores win.
func Score(d engine.RunnerDescriptor) int {
	return engine.VendorIndex(d.Vendor)*10 + int(d.Priority)
}

// Resolve picks the minimum-score candidate from candidates, breaking ties
// by descriptor name ascending. Resolve panics if candidates is empty;
// callers must check for an empty slice first (an empty candidate list means
// "no runner supports this capability", which is the caller's E404/E405 to
// raise, not the resolver's).
func Resolve(candidates []registry.Candidate) registry.Candidate {
	if len(candidates) == 0 {
		panic("priority: Resolve called with no candidates")
	}

	best := candidates[0]
	bestScore := Score(best.Descriptor)
	for _, c := range candidates[1:] {
		s := Score(c.Descriptor)
		switch {
		case s < bestScore:
			best, bestScore = c, s
		case s == bestScore && c.Name < best.Name:
			best = c
		}
	}
	return best
}

// SortByScore returns candidates ordered best-first, ties broken by name
// ascending. Used where callers want a full ranking rather than just the
// winner (e.g. for a "next candidate on failure" fallback list).
func SortByScore(candidates []registry.Candidate) []registry.Candidate {
	out := make([]registry.Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := Score(out[i].Descriptor), Score(out[j].Descriptor)
		if si != sj {
			return si < sj
		}
		return out[i].Name < out[j].Name
	})
	return out
}
